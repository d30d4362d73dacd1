// Package server exposes a document store over HTTP so several devices can
// share one user's profile.
//
// Routes:
//
//	GET   /healthz
//	GET   /users/:id                      current document (404 when absent)
//	PUT   /users/:id?merge=true|false     set, optionally merging top-level fields
//	PATCH /users/:id                      update an existing document (404 when absent)
//	GET   /users/:id/watch?after=N&timeout=30s
//	                                      long-poll until revision > N (304 on timeout)
//
// Every document response is an envelope {"revision": N, "document": {...}}.
package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/roach88/pomoflo/internal/remote"
	"github.com/roach88/pomoflo/internal/store"
)

// Backend is the storage the server fronts. *store.Store implements it.
type Backend interface {
	Record(ctx context.Context, userID string) (store.Record, error)
	Set(ctx context.Context, userID string, fields remote.Document, merge bool) error
	Update(ctx context.Context, userID string, fields remote.Document) error
	Watch(ctx context.Context, userID string, after int64) (store.Record, error)
}

// Server is the document API server.
type Server struct {
	backend Backend
	router  *gin.Engine
}

// New creates a server over backend.
func New(backend Backend) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	s := &Server{
		backend: backend,
		router:  router,
	}

	router.GET("/healthz", s.handleHealth)

	users := router.Group("/users")
	{
		users.GET("/:id", s.handleGet)
		users.PUT("/:id", s.handleSet)
		users.PATCH("/:id", s.handleUpdate)
		users.GET("/:id/watch", s.handleWatch)
	}

	return s
}

// Handler returns the HTTP handler, for http.Server and httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
