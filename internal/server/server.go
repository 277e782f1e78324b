// Copyright (c) 2025-present deep.rent GmbH (https://www.deep.rent)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package server wires the mux, probes, middleware chain, and proxy into
// one http.Server.
package server

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/deep-rent/warden/internal/config"
	"github.com/deep-rent/warden/internal/middleware"
)

// Server wraps an http.Server, wiring middleware around the proxy handler
// and exposing health/readiness endpoints.
type Server struct {
	srv   *http.Server
	mux   *http.ServeMux
	probe *probe
}

// New constructs a Server that hands requests to h after the middleware
// chain. Middlewares are applied outermost-first; typically Recover, then
// Guard, then Logout.
func New(
	target *url.URL,
	healthPath string,
	h http.Handler,
	mws ...middleware.Middleware,
) *Server {
	s := &Server{
		mux:   http.NewServeMux(),
		probe: newProbe(target, healthPath),
	}
	s.routes(h, mws...)
	return s
}

// routes registers public probe endpoints and the guarded handler.
func (s *Server) routes(h http.Handler, mws ...middleware.Middleware) {
	// Unprotected readiness and liveness probes.
	s.mux.HandleFunc("GET /ready", s.probe.ready)
	s.mux.HandleFunc("HEAD /ready", s.probe.ready)
	s.mux.HandleFunc("GET /healthy", s.probe.healthy)
	s.mux.HandleFunc("HEAD /healthy", s.probe.healthy)

	// Everything else goes through the middleware chain.
	s.mux.Handle("/", middleware.Chain(h, mws...))
}

// Handler exposes the composed mux, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start runs the HTTP server on addr with the given timeouts and blocks
// until the server stops. It returns nil on graceful shutdown, or the
// terminal error otherwise.
func (s *Server) Start(addr string, cfg config.Server) error {
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadTimeout:       time.Duration(cfg.ReadTimeout) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.ReadHeaderTimeout) * time.Second,
		WriteTimeout:      0, // Allow streaming responses
		IdleTimeout:       time.Duration(cfg.IdleTimeout) * time.Second,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	err := s.srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown attempts a graceful server shutdown within ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
