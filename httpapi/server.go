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

// Package httpapi exposes the ops-only HTTP surface: liveness and
// prometheus metrics. Deliberately nothing else — spec.md §1 scopes
// "any UI/RPC wrappers" out as an external collaborator's concern, so
// the domain operations (enqueue, finalize, claim, ...) are never
// reachable over this server.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// HealthChecker reports whether the process is ready to serve.
type HealthChecker interface {
	Healthy() error
}

// Server is the ops-only HTTP surface.
type Server struct {
	httpServer *http.Server
	log        *logrus.Entry
}

// New builds a Server listening on addr, allowing the given CORS
// origins (usually empty — this surface is meant for cluster-internal
// scraping, not browser access).
func New(addr string, health HealthChecker, corsOrigins []string, log *logrus.Entry) *Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	if len(corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsOrigins,
			AllowedMethods: []string{http.MethodGet},
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if err := health.Healthy(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(err.Error()))

			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Handle("/metrics", promhttp.Handler())

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: log.WithField("component", "httpapi"),
	}
}

// ListenAndServe blocks serving the ops surface until the server is
// shut down or an unrecoverable error occurs.
func (s *Server) ListenAndServe() error {
	s.log.WithField("addr", s.httpServer.Addr).Info("ops http server starting")

	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}

	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.httpServer.Shutdown(context.Background())
}
