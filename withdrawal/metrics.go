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

package withdrawal

import (
	"math/big"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics wraps the prometheus collectors a running queue exposes
// under the ops-only /metrics surface (httpapi/server.go). A nil
// *Metrics is always safe to call methods on from this package's
// perspective (callers guard with a nil check), so wiring metrics is
// optional for an embedder that doesn't want them.
type Metrics struct {
	requestsEnqueued prometheus.Counter
	batchesFinalized prometheus.Counter
	requestsClaimed  prometheus.Counter
	natLocked        prometheus.Counter
	natPaid          prometheus.Counter
	sharesBurned     prometheus.Counter
	lastRequestID    prometheus.Gauge
}

// NewMetrics registers the withdrawal-queue collectors against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requestsEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "withdrawalqueue",
			Name:      "requests_enqueued_total",
			Help:      "Total withdrawal requests appended to the book.",
		}),
		batchesFinalized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "withdrawalqueue",
			Name:      "batches_finalized_total",
			Help:      "Total finalize() calls that succeeded.",
		}),
		requestsClaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "withdrawalqueue",
			Name:      "requests_claimed_total",
			Help:      "Total claim() calls that succeeded.",
		}),
		natLocked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "withdrawalqueue",
			Name:      "nat_locked_total",
			Help:      "Cumulative NAT locked by finalize().",
		}),
		natPaid: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "withdrawalqueue",
			Name:      "nat_paid_total",
			Help:      "Cumulative NAT paid out by claim().",
		}),
		sharesBurned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "withdrawalqueue",
			Name:      "shares_burned_total",
			Help:      "Cumulative shares burned by finalize().",
		}),
		lastRequestID: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "withdrawalqueue",
			Name:      "last_request_id",
			Help:      "Highest assigned request id.",
		}),
	}

	reg.MustRegister(
		m.requestsEnqueued,
		m.batchesFinalized,
		m.requestsClaimed,
		m.natLocked,
		m.natPaid,
		m.sharesBurned,
		m.lastRequestID,
	)

	return m
}

// ObserveEnqueue records a successful Enqueue.
func (m *Metrics) ObserveEnqueue(id RequestID) {
	if m == nil {
		return
	}

	m.requestsEnqueued.Inc()
	m.lastRequestID.Set(float64(id))
}

// ObserveFinalize records a successful Finalize covering width requests.
func (m *Metrics) ObserveFinalize(width RequestID, natLocked, sharesBurned *uint256.Int) {
	if m == nil {
		return
	}

	m.batchesFinalized.Inc()
	m.natLocked.Add(uint256ToFloat(natLocked))
	m.sharesBurned.Add(uint256ToFloat(sharesBurned))
}

// ObserveClaim records a successful Claim.
func (m *Metrics) ObserveClaim(natPaid *uint256.Int) {
	if m == nil {
		return
	}

	m.requestsClaimed.Inc()
	m.natPaid.Add(uint256ToFloat(natPaid))
}

// uint256ToFloat narrows a uint256 amount to float64 for a prometheus
// counter; amounts at this scale (NAT/STK base units, typically 1e18
// wei-like precision) lose low-order precision in the conversion, the
// same tradeoff any prometheus counter over a big.Int-shaped value
// makes — the persisted ledger (Store) remains the source of truth,
// this is an approximate dashboard figure only.
func uint256ToFloat(v *uint256.Int) float64 {
	f := new(big.Float).SetInt(v.ToBig())
	out, _ := f.Float64()

	return out
}
