package console

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// defaultLogLimit is used when GET /log has no limit parameter.
const defaultLogLimit = 100

// startRequest optionally overrides the configured bind address.
type startRequest struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.accessLogMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.allowedOrigins(),
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))
	r.Use(limitBody)

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Post("/start", s.handleStart)
	r.Post("/stop", s.handleStop)
	r.Get("/log", s.handleLog)
	r.Get("/log/ws", s.hub.ServeWS)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "not found")
	})

	return r
}

// allowedOrigins returns the configured CORS origins. An empty list allows
// all origins.
func (s *Server) allowedOrigins() []string {
	if len(s.cfg.AllowedOrigins) == 0 {
		return []string{"*"}
	}
	return s.cfg.AllowedOrigins
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.controller.Status())
}

// handleStart starts the relay. An optional JSON body {"host", "port"}
// overrides the configured address; omitted fields keep the current values.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	var err error
	if req.Host == "" && req.Port == 0 {
		err = s.controller.Start(r.Context())
	} else {
		current := s.controller.Status()
		host, port := req.Host, req.Port
		if host == "" {
			host = current.BindAddress
		}
		if port == 0 {
			port = current.Port
		}
		err = s.controller.StartAt(r.Context(), host, port)
	}

	if err != nil {
		s.writeStartError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.controller.Status())
}

func (s *Server) writeStartError(w http.ResponseWriter, err error) {
	status, code := classifyStartError(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("relay start failed", "error", err)
	}
	writeError(w, status, code, err.Error())
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	s.controller.Stop()
	writeJSON(w, http.StatusOK, s.controller.Status())
}

// handleLog returns the most recent log entries, newest first.
func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	limit := defaultLogLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": s.hub.Recent(limit),
		"clients": s.hub.ClientCount(),
	})
}
