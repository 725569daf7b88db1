// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CareDesk Contributors

// Package httpapi exposes the identity service over HTTP.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/samber/oops"

	"github.com/caredesk/caredesk/internal/identity"
)

// DefaultWorkers is the request concurrency limit when unconfigured.
const DefaultWorkers = 4

// LoginMetrics records login attempt outcomes. Implementations must be
// safe for concurrent use.
type LoginMetrics interface {
	RecordLoginAttempt(outcome string)
}

// noopMetrics satisfies LoginMetrics when no recorder is wired.
type noopMetrics struct{}

func (noopMetrics) RecordLoginAttempt(string) {}

// Deps bundles the collaborators the server needs.
type Deps struct {
	Identity *identity.Service
	Metrics  LoginMetrics
	Logger   *slog.Logger

	// Workers caps concurrently handled requests. Zero means DefaultWorkers.
	Workers int
}

// Server is the identity HTTP API.
type Server struct {
	identity *identity.Service
	metrics  LoginMetrics
	logger   *slog.Logger
	router   chi.Router
}

// NewServer creates the identity HTTP API server.
func NewServer(deps Deps) (*Server, error) {
	if deps.Identity == nil {
		return nil, oops.Errorf("identity service is required")
	}
	if deps.Metrics == nil {
		deps.Metrics = noopMetrics{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Workers <= 0 {
		deps.Workers = DefaultWorkers
	}

	s := &Server{
		identity: deps.Identity,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Throttle(deps.Workers))

	r.Route("/auth", func(r chi.Router) {
		r.Post("/token", s.handleToken)
		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Get("/me", s.handleGetMe)
			r.Put("/me", s.handleUpdateMe)
			r.Post("/password", s.handleChangePassword)
		})
	})

	s.router = r
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}
