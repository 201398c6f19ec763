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

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/liquidqueue/withdrawalqueue/collab"
	wqconfig "github.com/liquidqueue/withdrawalqueue/config"
	"github.com/liquidqueue/withdrawalqueue/httpapi"
	"github.com/liquidqueue/withdrawalqueue/storage"
	"github.com/liquidqueue/withdrawalqueue/withdrawal"
)

// server bundles the wired components serve needs to answer /healthz,
// drive the oracle polling loop, and (via its embedded core) accept
// operator-issued domain operations from a future interactive surface.
type server struct {
	store       *storage.BoltStore
	oracle      *collab.OracleClient
	queue       *withdrawal.Queue
	checkpoints *withdrawal.Checkpoints
	calculator  *withdrawal.BatchCalculator
	finalizer   *withdrawal.Finalizer
	claims      *withdrawal.ClaimResolver
}

func (s *server) Healthy() error {
	if _, err := s.store.LastRequestID(); err != nil {
		return fmt.Errorf("store unreachable: %w", err)
	}

	return nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the withdrawal-queue ops surface and oracle polling loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")

			cfg, err := wqconfig.Load(configPath)
			if err != nil {
				return err
			}

			log := newLogger(cfg.LoggingLevel)

			store, err := storage.OpenBoltStore(cfg.Store.DataPath)
			if err != nil {
				return fmt.Errorf("failed to open store: %w", err)
			}
			defer store.Close()

			// The default registerer is what promhttp.Handler serves on /metrics.
			metrics := withdrawal.NewMetrics(prometheus.DefaultRegisterer)

			checkpoints := withdrawal.NewCheckpoints(store, log)
			oracle := collab.NewOracleClient(cfg.Oracle.BaseURL, log)

			srv := &server{
				store:       store,
				oracle:      oracle,
				queue:       withdrawal.NewQueue(store, log),
				checkpoints: checkpoints,
				calculator:  withdrawal.NewBatchCalculator(store, log),
				finalizer:   withdrawal.NewFinalizer(store, checkpoints, metrics, log),
				claims:      withdrawal.NewClaimResolver(store, checkpoints, metrics, log),
			}

			httpSrv := httpapi.New(cfg.HTTP.ListenAddr, srv, cfg.HTTP.CORSAllowed, log)

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			errCh := make(chan error, 1)

			go func() {
				errCh <- httpSrv.ListenAndServe()
			}()

			pollInterval, err := time.ParseDuration(cfg.Oracle.PollInterval)
			if err != nil {
				return fmt.Errorf("oracle.poll_interval: %w", err)
			}

			go pollOracle(ctx, oracle, store, pollInterval, log)

			select {
			case <-ctx.Done():
				log.Info("shutting down")
				return httpSrv.Shutdown()
			case err := <-errCh:
				return err
			}
		},
	}
}

// pollOracle periodically fetches the latest report and records its
// timestamp, leaving the report's batches/amount_to_lock for an
// operator to feed through `finalize` deliberately rather than
// auto-finalizing (spec.md §1 non-goal: no in-core pricing model, and
// finalize requires the authorisation role check this loop doesn't carry).
func pollOracle(ctx context.Context, oracle *collab.OracleClient, store *storage.BoltStore, interval time.Duration, log *logrus.Entry) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := oracle.LatestReport(ctx)
			if err != nil {
				log.WithError(err).Warn("oracle poll failed")
				continue
			}

			if err := store.SetLastReportTimestamp(report.ReportedAt); err != nil {
				log.WithError(err).Error("failed to record report timestamp")
			}
		}
	}
}

func newLogger(level string) *logrus.Entry {
	l := logrus.New()

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}

	l.SetLevel(parsed)

	return logrus.NewEntry(l)
}
