package main

// ===========================================================================
// HTTP SERVER - Serving the visualizations and their JSON API
// ===========================================================================
//
// Every route is mounted under the configured base path (/llm-apps/ by
// default):
//
//   GET  /                              directory page
//   GET  /perplexity-visualization      perplexity page   (?text=&cursor=&k=)
//   GET  /recommendation-optimization   optimization page (?target=&initial=&iterations=&lr=&run=1)
//   GET  /api/apps                      list of visualizations
//   GET  /api/perplexity                perplexity of a text          (GET query, form or JSON body)
//   GET  /api/optimize                  gradient-descent trajectory   (GET query, form or JSON body)
//   GET  /healthz                       liveness
//
// Requests never share mutable state: analyses come from an LRU cache of
// immutable values and trajectories are recomputed per request.
//
// ===========================================================================

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"
)

// Initial state of the visualization pages.
const (
	DefaultCursor     = 3
	DefaultTarget     = 4.0
	DefaultInitial    = 2.0
	DefaultIterations = 10
)

var (
	errTextTooLong      = errors.New("text is too long")
	errRatingOutOfRange = fmt.Errorf("rating must be within [%g, %g]", RatingMin, RatingMax)
	errBadLearningRate  = errors.New("learning rate must be in (0, 2)")
	errBadTopK          = errors.New("k must be a positive integer")
)

// metricsSource is implemented by reporters that can be scraped over HTTP.
type metricsSource interface {
	Handler() http.Handler
}

// Server serves the visualization pages and the JSON API.
type Server struct {
	cfg       *Config
	log       *slog.Logger
	evaluator *PerplexityEvaluator
	analyses  *AnalysisCache
	reporter  Reporter
	metrics   http.Handler
	router    *mux.Router
}

// NewServer wires a server from cfg. A nil reporter disables metrics.
func NewServer(cfg *Config, reporter Reporter) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if reporter == nil {
		reporter = NoopReporter{}
	}
	analyses, err := NewAnalysisCache(DefaultEvaluator, cfg.Cache.Size, reporter)
	if err != nil {
		return nil, err
	}
	s := &Server{
		cfg:       cfg,
		log:       slog.With("component", "Server"),
		evaluator: DefaultEvaluator,
		analyses:  analyses,
		reporter:  reporter,
	}
	if ms, ok := reporter.(metricsSource); ok {
		s.metrics = ms.Handler()
	}
	s.router = s.routes()
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.instrument)
	// Middleware only wraps matched routes; router-level errors are
	// instrumented here and carry no route template.
	r.NotFoundHandler = s.instrument(http.NotFoundHandler())
	r.MethodNotAllowedHandler = s.instrument(http.HandlerFunc(methodNotAllowed))

	basePath := s.cfg.Server.BasePath
	api := r
	if prefix := strings.TrimSuffix(basePath, "/"); prefix != "" {
		r.Handle(prefix, http.RedirectHandler(basePath, http.StatusMovedPermanently))
		api = r.PathPrefix(prefix).Subrouter()
	}

	if s.metrics != nil && s.cfg.SharedMetricsPort() {
		r.Handle(s.cfg.Metrics.Path, s.metrics).Methods(http.MethodGet)
	}

	api.HandleFunc("/", s.directory).Methods(http.MethodGet)
	api.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	api.HandleFunc("/api/apps", s.apiApps).Methods(http.MethodGet)
	api.HandleFunc("/api/perplexity", s.apiPerplexity).Methods(http.MethodGet, http.MethodPost)
	api.HandleFunc("/api/optimize", s.apiOptimize).Methods(http.MethodGet, http.MethodPost)
	api.HandleFunc("/{app}", s.appPage).Methods(http.MethodGet)
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	servers := []*http.Server{{
		Addr:              fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}}
	if s.metrics != nil && !s.cfg.SharedMetricsPort() {
		mm := http.NewServeMux()
		mm.Handle(s.cfg.Metrics.Path, s.metrics)
		servers = append(servers, &http.Server{
			Addr:              fmt.Sprintf(":%d", s.cfg.Metrics.Port),
			Handler:           mm,
			ReadHeaderTimeout: 10 * time.Second,
		})
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		srv := srv // per-iteration copy; go directive is 1.21 (pre-1.22 loop semantics)
		g.Go(func() error {
			s.log.Info("starting HTTP server", "address", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP server on %s: %w", srv.Addr, err)
			}
			s.log.Debug("HTTP server was closed", "address", srv.Addr)
			return nil
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
		defer cancel()
		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("shutting down %s: %w", srv.Addr, err))
			}
		}
		return errors.Join(errs...)
	})
	return g.Wait()
}

// ---------------------------------------------------------------------------
// Pages
// ---------------------------------------------------------------------------

func (s *Server) directory(w http.ResponseWriter, _ *http.Request) {
	s.writeHTML(w, func(w *strings.Builder) error {
		return RenderDirectoryHTML(w, NewDirectoryPage(s.cfg.Server.BasePath))
	})
}

func (s *Server) appPage(w http.ResponseWriter, r *http.Request) {
	app, ok := FindApp(mux.Vars(r)["app"])
	if !ok {
		http.NotFound(w, r)
		return
	}
	switch app.ID {
	case AppPerplexity:
		s.perplexityPage(w, r)
	case AppRecommendation:
		s.optimizationPage(w, r)
	}
}

func (s *Server) perplexityPage(w http.ResponseWriter, r *http.Request) {
	req, err := s.parsePerplexityRequest(r, true)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	a := s.analyses.Analyze(req.Text)
	page := NewPerplexityPage(s.cfg.Server.BasePath, a, req.Cursor, req.K, s.evaluator)
	s.writeHTML(w, func(w *strings.Builder) error {
		return RenderPerplexityHTML(w, page)
	})
}

func (s *Server) optimizationPage(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseOptimizeRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var traj *Trajectory
	if r.FormValue("run") != "" {
		t := s.optimize(req)
		traj = &t
	}
	page := NewOptimizationPage(s.cfg.Server.BasePath, req.Target, req.Initial, req.Iterations, req.LearningRate, traj)
	s.writeHTML(w, func(w *strings.Builder) error {
		return RenderOptimizationHTML(w, page)
	})
}

// writeHTML renders fully before writing so template errors become a 500
// instead of a truncated page.
func (s *Server) writeHTML(w http.ResponseWriter, render func(*strings.Builder) error) {
	var sb strings.Builder
	if err := render(&sb); err != nil {
		s.log.Error("rendering page", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, sb.String())
}

// ---------------------------------------------------------------------------
// JSON API
// ---------------------------------------------------------------------------

// PerplexityRequest selects a text, a cursor and a ranking size.
type PerplexityRequest struct {
	Text   string `json:"text"`
	Cursor int    `json:"cursor"`
	K      int    `json:"k"`
}

// PerplexityResponse is the body of /api/perplexity.
type PerplexityResponse struct {
	Text       string           `json:"text"`
	Result     PerplexityResult `json:"result"`
	Cursor     int              `json:"cursor"`
	Current    *CharScore       `json:"current,omitempty"`
	Context    string           `json:"context"`
	UnigramTop []Prediction     `json:"unigram_top"`
	LLMTop     []Prediction     `json:"llm_top"`
	Chars      []CharScore      `json:"chars"`
}

// OptimizeRequest parameterizes one gradient-descent run.
type OptimizeRequest struct {
	Target       float64 `json:"target"`
	Initial      float64 `json:"initial"`
	Iterations   int     `json:"iterations"`
	LearningRate float64 `json:"learning_rate"`
}

// OptimizeResponse is the body of /api/optimize.
type OptimizeResponse struct {
	Trajectory
	FinalPrediction float64 `json:"final"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) apiApps(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, Apps)
}

func (s *Server) apiPerplexity(w http.ResponseWriter, r *http.Request) {
	req, err := s.parsePerplexityRequest(r, false)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	a := s.analyses.Analyze(req.Text)
	cursor := ClampCursor(req.Cursor, a.Len())
	resp := PerplexityResponse{
		Text:       a.Text,
		Result:     a.Result,
		Cursor:     cursor,
		UnigramTop: s.evaluator.TopUnigram(req.K),
		Chars:      a.Chars,
	}
	if cur, ok := a.At(cursor); ok {
		resp.Current = &cur
		resp.Context = a.ContextAt(cursor)
		resp.LLMTop = s.evaluator.TopPredictions(resp.Context, req.K)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) apiOptimize(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseOptimizeRequest(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	traj := s.optimize(req)
	s.writeJSON(w, http.StatusOK, OptimizeResponse{Trajectory: traj, FinalPrediction: traj.Final()})
}

func (s *Server) optimize(req OptimizeRequest) Trajectory {
	t := Optimize(req.Target, req.Initial, req.Iterations, req.LearningRate)
	s.reporter.Optimization(t.Len())
	return t
}

func methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("error encoding json", "error", err)
	}
}

// ---------------------------------------------------------------------------
// Request parsing
// ---------------------------------------------------------------------------

func isJSON(r *http.Request) bool {
	return r.Method == http.MethodPost &&
		strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}

func (s *Server) parsePerplexityRequest(r *http.Request, page bool) (PerplexityRequest, error) {
	req := PerplexityRequest{K: s.cfg.Perplexity.TopK}
	if isJSON(r) {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, fmt.Errorf("decoding request: %w", err)
		}
		if req.K == 0 {
			req.K = s.cfg.Perplexity.TopK
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return req, fmt.Errorf("parsing form: %w", err)
		}
		if page && !r.Form.Has("text") {
			req.Text = s.cfg.Perplexity.DefaultText
			req.Cursor = DefaultCursor
		} else {
			req.Text = r.Form.Get("text")
		}
		var err error
		if req.Cursor, err = formInt(r, "cursor", req.Cursor); err != nil {
			return req, err
		}
		if req.K, err = formInt(r, "k", req.K); err != nil {
			return req, err
		}
	}
	if req.K <= 0 {
		return req, errBadTopK
	}
	if len(req.Text) > s.cfg.Perplexity.MaxTextLength {
		return req, errTextTooLong
	}
	return req, nil
}

func (s *Server) parseOptimizeRequest(r *http.Request) (OptimizeRequest, error) {
	req := OptimizeRequest{
		Target:       DefaultTarget,
		Initial:      DefaultInitial,
		Iterations:   DefaultIterations,
		LearningRate: s.cfg.Optimizer.LearningRate,
	}
	if isJSON(r) {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, fmt.Errorf("decoding request: %w", err)
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return req, fmt.Errorf("parsing form: %w", err)
		}
		var err error
		if req.Target, err = formFloat(r, "target", req.Target); err != nil {
			return req, err
		}
		if req.Initial, err = formFloat(r, "initial", req.Initial); err != nil {
			return req, err
		}
		if req.Iterations, err = formInt(r, "iterations", req.Iterations); err != nil {
			return req, err
		}
		if req.LearningRate, err = formFloat(r, "lr", req.LearningRate); err != nil {
			return req, err
		}
	}

	if !inRatingRange(req.Target) || !inRatingRange(req.Initial) {
		return req, errRatingOutOfRange
	}
	if !ValidLearningRate(req.LearningRate) {
		return req, errBadLearningRate
	}
	req.Iterations = min(max(req.Iterations, 0), s.cfg.Optimizer.MaxIterations)
	return req, nil
}

func inRatingRange(v float64) bool {
	return !math.IsNaN(v) && v >= RatingMin && v <= RatingMax
}

func formInt(r *http.Request, key string, def int) (int, error) {
	raw := r.Form.Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: not an integer", key, raw)
	}
	return v, nil
}

func formFloat(r *http.Request, key string, def float64) (float64, error) {
	raw := r.Form.Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, fmt.Errorf("invalid %s %q: not a finite number", key, raw)
	}
	return v, nil
}

// ---------------------------------------------------------------------------
// Middleware
// ---------------------------------------------------------------------------

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(status int) {
	sr.status = status
	sr.ResponseWriter.WriteHeader(status)
}

// instrument logs and counts every request by route template.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if cr := mux.CurrentRoute(r); cr != nil {
			if tpl, err := cr.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		s.reporter.HTTPRequest(route, rec.status)
		s.log.Debug("served request",
			"method", r.Method, "uri", r.RequestURI, "route", route,
			"status", rec.status, "duration", time.Since(start))
	})
}
