package visualization

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/nvandessel/rbdc/internal/logging"
	"github.com/nvandessel/rbdc/internal/models"
	"github.com/nvandessel/rbdc/internal/query"
	"github.com/nvandessel/rbdc/internal/ratelimit"
	"github.com/nvandessel/rbdc/internal/render"
	"github.com/nvandessel/rbdc/internal/sweep"
)

// SessionHeader names the exploration session a request belongs to. A new
// query in a session cancels that session's unfinished one.
const SessionHeader = "X-RBDC-Session"

// KindRateLimited is reported when a client exceeds its request budget.
const KindRateLimited = "rate_limited"

const (
	maxBodyBytes = 1 << 16
	pruneEvery   = time.Minute
)

// Options configures a Server.
type Options struct {
	// Addr is the listen address; empty picks a free localhost port.
	Addr string

	// RateLimit is the per-client request rate in requests per second.
	// Zero disables limiting.
	RateLimit float64
	Burst     int

	Logger *slog.Logger
}

// Server serves the exploration page and the query API.
type Server struct {
	explorer *query.Explorer
	limiter  *ratelimit.Limiter
	logger   *slog.Logger
	opts     Options

	httpServer *http.Server
	listener   net.Listener
	mu         sync.Mutex
	addr       string
}

// NewServer creates a query server backed by explorer.
func NewServer(explorer *query.Explorer, opts Options) *Server {
	s := &Server{
		explorer: explorer,
		logger:   opts.Logger,
		opts:     opts,
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = ratelimit.NewLimiter(opts.RateLimit, burst)
	}
	return s
}

// Addr returns the address the server is listening on (e.g., "localhost:PORT").
// Returns empty string if the server hasn't started yet.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/defaults", s.limit(s.handleDefaults))
	mux.HandleFunc("GET /api/query", s.limit(s.handleQuery))
	mux.HandleFunc("POST /api/query", s.limit(s.handleQuery))
	mux.HandleFunc("GET /api/plot.png", s.limit(s.handlePlot))
	return mux
}

// ListenAndServe starts the HTTP server and blocks until the context is
// cancelled. Returns nil on clean shutdown.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := s.opts.Addr
	if addr == "" {
		addr = "localhost:0"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	s.mu.Lock()
	s.listener = ln
	s.addr = ln.Addr().String()
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.mu.Unlock()

	s.logger.Info("query server listening", "addr", s.Addr())

	// Graceful shutdown when context is cancelled.
	go func() {
		ticker := time.NewTicker(pruneEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if s.limiter != nil {
					s.limiter.Prune(pruneEvery)
				}
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				s.httpServer.Shutdown(shutdownCtx)
				return
			}
		}
	}()

	err = s.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// limit applies the per-client rate limit.
func (s *Server) limit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil {
			next(w, r)
			return
		}
		key := clientKey(r)
		if wait := s.limiter.Reserve(key); wait > 0 {
			lerr := &ratelimit.LimitError{Key: key, RetryAfter: wait}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(wait)))
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: lerr.Error(), Kind: KindRateLimited})
			return
		}
		next(w, r)
	}
}

// retryAfterSeconds rounds wait up to whole seconds, capped at a day.
func retryAfterSeconds(wait time.Duration) int {
	secs := math.Ceil(min(wait, 24*time.Hour).Seconds())
	return max(int(secs), 1)
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// handleIndex serves the exploration page.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	page, err := templates.ReadFile("templates/index.html")
	if err != nil {
		http.Error(w, "page unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.explorer.Active(),
	})
}

// DefaultsResponse is the body of GET /api/defaults.
type DefaultsResponse struct {
	Params     models.ParameterSet `json:"params"`
	Parameters []string            `json:"parameters"`
	Numeric    []string            `json:"numeric"`
}

func (s *Server) handleDefaults(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, DefaultsResponse{
		Params:     s.explorer.Service().Base(),
		Parameters: models.ParameterNames(),
		Numeric:    models.NumericParameterNames(),
	})
}

// handleQuery answers a query given as URL parameters (GET) or a JSON
// object of option overrides (POST).
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	p, err := s.requestParams(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp, err := s.explorer.Query(r.Context(), session(r), p)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handlePlot renders the queried radius series as a PNG chart.
func (s *Server) handlePlot(w http.ResponseWriter, r *http.Request) {
	p, err := s.requestParams(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp, err := s.explorer.Query(r.Context(), session(r), p)
	if err != nil {
		s.writeError(w, err)
		return
	}
	chart, err := render.SeriesPlot(resp.Series)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := render.WritePNG(&buf, chart); err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(buf.Bytes())
}

// requestParams applies the request's overrides to the base parameter set.
func (s *Server) requestParams(w http.ResponseWriter, r *http.Request) (models.ParameterSet, error) {
	p := s.explorer.Service().Base()

	if r.Method == http.MethodPost {
		var overrides sweep.Overrides
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err := dec.Decode(&overrides); err != nil {
			return p, &models.ValidationError{Field: "body", Reason: fmt.Sprintf("invalid JSON: %v", err)}
		}
		return overrides.Apply(p)
	}

	for name, values := range r.URL.Query() {
		if name == "session" || len(values) == 0 {
			continue
		}
		if err := p.Set(name, values[len(values)-1]); err != nil {
			return p, err
		}
	}
	return p, nil
}

func session(r *http.Request) string {
	if v := r.Header.Get(SessionHeader); v != "" {
		return v
	}
	return r.URL.Query().Get("session")
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// writeError reports err with its kind. Superseded and canceled queries
// get 409 so a client can tell them apart from failures.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind := models.Kind(err)
	status := http.StatusInternalServerError
	switch kind {
	case models.KindValidation:
		status = http.StatusBadRequest
	case models.KindInstability:
		status = http.StatusUnprocessableEntity
	case models.KindCanceled:
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("query failed", "kind", kind, "error", err)
	} else {
		s.logger.Debug("query rejected", "kind", kind, "error", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Kind: kind})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
