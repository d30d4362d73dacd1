package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/roach88/pomoflo/internal/remote"
	"github.com/roach88/pomoflo/internal/store"
)

const (
	maxContentSize = 1 << 20 // 1MB

	defaultWatchTimeout = 30 * time.Second
	maxWatchTimeout     = 2 * time.Minute
	shutdownGrace       = 5 * time.Second
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleGet(c *gin.Context) {
	rec, err := s.backend.Record(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, envelope(rec))
}

func (s *Server) handleSet(c *gin.Context) {
	fields, ok := readFields(c)
	if !ok {
		return
	}
	merge := c.DefaultQuery("merge", "false") == "true"

	id := c.Param("id")
	if err := s.backend.Set(c.Request.Context(), id, fields, merge); err != nil {
		writeError(c, err)
		return
	}
	s.respondCurrent(c, id)
}

func (s *Server) handleUpdate(c *gin.Context) {
	fields, ok := readFields(c)
	if !ok {
		return
	}

	id := c.Param("id")
	if err := s.backend.Update(c.Request.Context(), id, fields); err != nil {
		writeError(c, err)
		return
	}
	s.respondCurrent(c, id)
}

func (s *Server) handleWatch(c *gin.Context) {
	after, err := strconv.ParseInt(c.DefaultQuery("after", "0"), 10, 64)
	if err != nil || after < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "after must be a non-negative integer"})
		return
	}

	timeout := defaultWatchTimeout
	if raw := c.Query("timeout"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "timeout must be a positive duration"})
			return
		}
		timeout = min(d, maxWatchTimeout)
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	rec, err := s.backend.Watch(ctx, c.Param("id"), after)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && c.Request.Context().Err() == nil {
			c.Status(http.StatusNotModified)
			return
		}
		if c.Request.Context().Err() != nil {
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, envelope(rec))
}

func (s *Server) respondCurrent(c *gin.Context, id string) {
	rec, err := s.backend.Record(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, envelope(rec))
}

// readFields decodes a JSON object body into document fields. It writes a
// 400 response and returns false on bad input.
func readFields(c *gin.Context) (remote.Document, bool) {
	dec := json.NewDecoder(http.MaxBytesReader(c.Writer, c.Request.Body, maxContentSize))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must be a JSON object"})
		return nil, false
	}
	return remote.NormalizeDocument(raw), true
}

func envelope(rec store.Record) remote.Envelope {
	doc := map[string]any(rec.Document)
	if doc == nil {
		doc = map[string]any{}
	}
	return remote.Envelope{Revision: rec.Revision, Document: doc}
}

func writeError(c *gin.Context, err error) {
	if errors.Is(err, remote.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
		return
	}
	slog.Error("document request failed", "method", c.Request.Method, "path", c.Request.URL.Path, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
