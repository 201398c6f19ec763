// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"
)

// Report is the periodic submission the oracle collaborator makes:
// (max_share_rate, max_timestamp, batches, amount_to_lock), plus the
// report timestamp the queue stores as last_report_timestamp
// (spec.md §6).
type Report struct {
	MaxShareRate *uint256.Int `json:"max_share_rate"`
	MaxTimestamp uint64       `json:"max_timestamp"`
	Batches      []uint64     `json:"batches"`
	AmountToLock *uint256.Int `json:"amount_to_lock"`
	ReportedAt   uint64       `json:"reported_at"`
}

// OracleClient polls an external oracle endpoint for the latest
// Report. Retries/backoff live entirely in this collaborator, never in
// the core (spec.md §1 Non-goals: "no retry/backoff" in-core).
type OracleClient struct {
	httpClient *retryablehttp.Client
	baseURL    string
	log        *logrus.Entry
}

// NewOracleClient builds an OracleClient against baseURL, retrying
// transient failures with retryablehttp's default exponential backoff.
func NewOracleClient(baseURL string, log *logrus.Entry) *OracleClient {
	client := retryablehttp.NewClient()
	client.Logger = nil // logrus.Entry doesn't satisfy retryablehttp's Logger interfaces; we log around calls instead.

	return &OracleClient{
		httpClient: client,
		baseURL:    baseURL,
		log:        log.WithField("component", "oracle_client"),
	}
}

// LatestReport fetches the most recent report the oracle has published.
func (o *OracleClient) LatestReport(ctx context.Context) (Report, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/v1/reports/latest", nil)
	if err != nil {
		return Report{}, fmt.Errorf("failed to build oracle request: %w", err)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return Report{}, fmt.Errorf("oracle request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Report{}, fmt.Errorf("oracle returned status %d", resp.StatusCode)
	}

	var report Report
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return Report{}, fmt.Errorf("failed to decode oracle report: %w", err)
	}

	o.log.WithFields(logrus.Fields{
		"max_timestamp": report.MaxTimestamp,
		"batches":       len(report.Batches),
	}).Debug("fetched oracle report")

	return report, nil
}
