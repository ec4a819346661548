package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/doridoridoriand/connwatch/internal/autostart"
	"github.com/doridoridoriand/connwatch/internal/config"
	"github.com/doridoridoriand/connwatch/internal/journal"
	"github.com/doridoridoriand/connwatch/internal/metrics"
	"github.com/doridoridoriand/connwatch/internal/scheduler"
	"github.com/doridoridoriand/connwatch/internal/state"
)

// Controller is the part of the scheduler the API drives.
type Controller interface {
	State() scheduler.Status
	Pause()
	Resume()
	SetTarget(host string) error
}

// JournalReader serves recent journal rows.
type JournalReader interface {
	Recent(ctx context.Context, limit int) ([]journal.Entry, error)
}

type Server struct {
	Logger    *zap.Logger
	Control   Controller
	Autostart autostart.Manager
	Journal   JournalReader

	limiter *rate.Limiter
	origins []string
}

// Option customises a Server.
type Option func(*Server)

func WithAutostart(m autostart.Manager) Option {
	return func(s *Server) { s.Autostart = m }
}

func WithJournal(j JournalReader) Option {
	return func(s *Server) { s.Journal = j }
}

// WithRateLimit limits mutating requests to rps per second. Zero disables it.
func WithRateLimit(rps int) Option {
	return func(s *Server) {
		if rps <= 0 {
			s.limiter = nil
			return
		}
		s.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	}
}

// WithAllowedOrigins lets browser pages on origins call the API. Without it
// cross-origin requests get no CORS headers and mutations from any page
// origin are refused.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		s.origins = nil
		for _, o := range origins {
			if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
				s.origins = append(s.origins, o)
			}
		}
	}
}

func NewServer(l *zap.Logger, c Controller, opts ...Option) *Server {
	if l == nil {
		l = zap.NewNop()
	}
	s := &Server{Logger: l, Control: c}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	if len(s.origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", metrics.NewServer(s.Control).Handler())

	r.Get("/api/status", s.handleStatus)
	r.Get("/api/history", s.handleHistory)
	r.Get("/api/autostart", s.handleGetAutostart)
	r.Get("/api/journal", s.handleJournal)

	r.Group(func(r chi.Router) {
		r.Use(s.checkOrigin)
		r.Use(s.rateLimit)
		r.Post("/api/pause", s.handlePause)
		r.Post("/api/resume", s.handleResume)
		r.Put("/api/target", s.handleSetTarget)
		r.Put("/api/autostart", s.handleSetAutostart)
	})

	return r
}

// checkOrigin refuses mutations sent by pages on origins outside the allow
// list. Requests without an Origin header (curl, scripts) pass.
func (s *Server) checkOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && !s.originAllowed(origin) {
			s.Logger.Warn("api_origin_rejected", zap.String("origin", origin), zap.String("path", r.URL.Path))
			writeError(w, http.StatusForbidden, "origin not allowed")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	for _, o := range s.origins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusResponse struct {
	Target          string   `json:"target"`
	RunState        string   `json:"run_state"`
	Health          string   `json:"health"`
	DisplayHealth   string   `json:"display_health"`
	AverageMs       *int     `json:"average_ms"`
	AverageText     string   `json:"average_text"`
	DropRatePercent int      `json:"drop_rate_percent"`
	History         []string `json:"history"`
	Seq             uint64   `json:"seq"`
}

func newStatusResponse(st scheduler.Status) statusResponse {
	resp := statusResponse{
		Target:          st.Target,
		RunState:        strings.ToLower(string(st.RunState)),
		Health:          strings.ToLower(string(st.Health)),
		DisplayHealth:   strings.ToLower(string(st.Health.Display())),
		AverageText:     st.Summary.AverageText(),
		DropRatePercent: st.Summary.DropRatePercent,
		History:         st.Labels(),
		Seq:             st.Seq,
	}
	if st.Summary.HasAverage {
		avg := st.Summary.AverageMs
		resp.AverageMs = &avg
	}
	return resp
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newStatusResponse(s.Control.State()))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(state.FormatHistory(s.Control.State().History)))
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.Control.Pause()
	s.Logger.Info("api_pause", zap.String("remote", r.RemoteAddr))
	writeJSON(w, http.StatusOK, newStatusResponse(s.Control.State()))
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.Control.Resume()
	s.Logger.Info("api_resume", zap.String("remote", r.RemoteAddr))
	writeJSON(w, http.StatusOK, newStatusResponse(s.Control.State()))
}

type targetPayload struct {
	Host string `json:"host"`
}

func (s *Server) handleSetTarget(w http.ResponseWriter, r *http.Request) {
	var p targetPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	if err := s.Control.SetTarget(p.Host); err != nil {
		if errors.Is(err, config.ErrEmptyTarget) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "could not set target")
		return
	}
	s.Logger.Info("api_set_target", zap.String("target", strings.TrimSpace(p.Host)))
	writeJSON(w, http.StatusOK, newStatusResponse(s.Control.State()))
}

type autostartPayload struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleGetAutostart(w http.ResponseWriter, r *http.Request) {
	if s.Autostart == nil {
		writeError(w, http.StatusNotImplemented, autostart.ErrUnsupported.Error())
		return
	}
	enabled, err := s.Autostart.Enabled(r.Context())
	if err != nil {
		s.autostartError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, autostartPayload{Enabled: enabled})
}

func (s *Server) handleSetAutostart(w http.ResponseWriter, r *http.Request) {
	if s.Autostart == nil {
		writeError(w, http.StatusNotImplemented, autostart.ErrUnsupported.Error())
		return
	}
	var p autostartPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	if err := s.Autostart.SetEnabled(r.Context(), p.Enabled); err != nil {
		s.autostartError(w, err)
		return
	}
	s.Logger.Info("api_set_autostart", zap.Bool("enabled", p.Enabled))
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) autostartError(w http.ResponseWriter, err error) {
	if errors.Is(err, autostart.ErrUnsupported) {
		writeError(w, http.StatusNotImplemented, err.Error())
		return
	}
	s.Logger.Error("autostart_failed", zap.Error(err))
	writeError(w, http.StatusBadGateway, "autostart unavailable")
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if s.Journal == nil {
		writeError(w, http.StatusNotFound, journal.ErrDisabled.Error())
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	entries, err := s.Journal.Recent(r.Context(), limit)
	if err != nil {
		if errors.Is(err, journal.ErrDisabled) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.Logger.Error("journal_read_failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "journal read failed")
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// Serve runs the handler on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return context.Canceled
		}
		return err
	}
}
