package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type routeRecorder struct {
	NoopReporter
	mu     sync.Mutex
	routes []string
}

func (r *routeRecorder) HTTPRequest(route string, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, route)
}

func newTestServer(t *testing.T, reporter Reporter) *Server {
	t.Helper()
	srv, err := NewServer(DefaultConfig(), reporter)
	require.NoError(t, err)
	return srv
}

func serve(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	return serve(t, h, httptest.NewRequest(http.MethodGet, target, nil))
}

func postJSON(t *testing.T, h http.Handler, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return serve(t, h, req)
}

func TestNewServerInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.BasePath = "nope"
	_, err := NewServer(cfg, nil)
	assert.ErrorIs(t, err, errInvalidBasePath)
}

func TestDirectoryPage(t *testing.T) {
	h := newTestServer(t, nil).Handler()

	rec := get(t, h, "/llm-apps/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "LLM Applications Directory")
	assert.Contains(t, body, `href="/llm-apps/perplexity-visualization"`)
	assert.Contains(t, body, `href="/llm-apps/recommendation-optimization"`)
}

func TestBasePathRedirect(t *testing.T) {
	h := newTestServer(t, nil).Handler()

	rec := get(t, h, "/llm-apps")
	assert.Equal(t, http.StatusMovedPermanently, rec.Code)
	assert.Equal(t, "/llm-apps/", rec.Header().Get("Location"))
}

func TestUnknownApp(t *testing.T) {
	h := newTestServer(t, nil).Handler()
	assert.Equal(t, http.StatusNotFound, get(t, h, "/llm-apps/does-not-exist").Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/elsewhere/").Code)
}

func TestRootBasePath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.BasePath = "/"
	srv, err := NewServer(cfg, nil)
	require.NoError(t, err)

	rec := get(t, srv.Handler(), "/perplexity-visualization")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthz(t *testing.T) {
	rec := get(t, newTestServer(t, nil).Handler(), "/llm-apps/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAPIApps(t *testing.T) {
	rec := get(t, newTestServer(t, nil).Handler(), "/llm-apps/api/apps")
	require.Equal(t, http.StatusOK, rec.Code)

	var apps []App
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apps))
	assert.Equal(t, Apps, apps)
}

func TestAPIPerplexity(t *testing.T) {
	h := newTestServer(t, nil).Handler()

	rec := get(t, h, "/llm-apps/api/perplexity?text="+url.QueryEscape("the cat")+"&cursor=2&k=3")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp PerplexityResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "the cat", resp.Text)
	assert.Equal(t, Evaluate("the cat"), resp.Result)
	assert.Equal(t, 2, resp.Cursor)
	assert.Equal(t, "th", resp.Context)
	require.NotNil(t, resp.Current)
	assert.Equal(t, 'e', resp.Current.Char)
	assert.Equal(t, 0.70, resp.Current.ContextProb)
	assert.Len(t, resp.UnigramTop, 3)
	assert.Equal(t, []Prediction{{'e', 0.70}, {'i', 0.10}, {'a', 0.08}}, resp.LLMTop)
	assert.Len(t, resp.Chars, 7)
}

func TestAPIPerplexityJSONBody(t *testing.T) {
	h := newTestServer(t, nil).Handler()

	rec := postJSON(t, h, "/llm-apps/api/perplexity", `{"text":"the","cursor":99}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp PerplexityResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Cursor, "cursor is clamped into the text")
	assert.Len(t, resp.UnigramTop, 5, "k defaults to the configured top-k")
}

func TestAPIPerplexityEmptyText(t *testing.T) {
	rec := get(t, newTestServer(t, nil).Handler(), "/llm-apps/api/perplexity?text=")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp PerplexityResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, PerplexityResult{}, resp.Result)
	assert.Nil(t, resp.Current)
	assert.Empty(t, resp.LLMTop)
}

func TestAPIPerplexityBadRequests(t *testing.T) {
	h := newTestServer(t, nil).Handler()

	tests := []struct {
		name string
		rec  *httptest.ResponseRecorder
	}{
		{"zero k", get(t, h, "/llm-apps/api/perplexity?text=a&k=0")},
		{"non-numeric cursor", get(t, h, "/llm-apps/api/perplexity?text=a&cursor=x")},
		{"text too long", get(t, h, "/llm-apps/api/perplexity?text="+strings.Repeat("a", 5000))},
		{"malformed json", postJSON(t, h, "/llm-apps/api/perplexity", `{"text":`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, http.StatusBadRequest, tt.rec.Code)
			var resp errorResponse
			require.NoError(t, json.Unmarshal(tt.rec.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestAPIOptimize(t *testing.T) {
	h := newTestServer(t, nil).Handler()

	rec := postJSON(t, h, "/llm-apps/api/optimize", `{"target":4,"initial":2,"iterations":10}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp OptimizeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, DefaultLearningRate, resp.LearningRate)
	assert.Len(t, resp.Steps, 10)
	assert.InDelta(t, 3.7852516352, resp.FinalPrediction, 1e-9)

	cfg := DefaultConfig()
	cfg.Optimizer.LearningRate = 1
	srv, err := NewServer(cfg, nil)
	require.NoError(t, err)
	rec = get(t, srv.Handler(), "/llm-apps/api/optimize?iterations=1")
	require.Equal(t, http.StatusOK, rec.Code)
	resp = OptimizeResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1.0, resp.LearningRate, "configured rate is the request default")
	assert.Equal(t, DefaultTarget, resp.FinalPrediction)
	assert.InDelta(t, 2.4, resp.Steps[0].Prediction, 1e-12)
}

func TestAPIOptimizeQuery(t *testing.T) {
	h := newTestServer(t, nil).Handler()

	rec := get(t, h, "/llm-apps/api/optimize?target=5&initial=1&iterations=2&lr=1")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp OptimizeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Steps, 2)
	assert.Equal(t, 5.0, resp.FinalPrediction)
}

func TestAPIOptimizeClampsIterations(t *testing.T) {
	h := newTestServer(t, nil).Handler()

	rec := get(t, h, "/llm-apps/api/optimize?iterations=5000")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp OptimizeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Steps, DefaultConfig().Optimizer.MaxIterations)

	rec = get(t, h, "/llm-apps/api/optimize?iterations=-3")
	require.Equal(t, http.StatusOK, rec.Code)
	resp = OptimizeResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Steps)
	assert.Equal(t, DefaultInitial, resp.FinalPrediction)
}

func TestAPIOptimizeBadRequests(t *testing.T) {
	h := newTestServer(t, nil).Handler()

	for _, target := range []string{
		"/llm-apps/api/optimize?target=6",
		"/llm-apps/api/optimize?initial=0.5",
		"/llm-apps/api/optimize?lr=2.5",
		"/llm-apps/api/optimize?lr=0",
		"/llm-apps/api/optimize?target=NaN",
		"/llm-apps/api/optimize?iterations=many",
	} {
		assert.Equal(t, http.StatusBadRequest, get(t, h, target).Code, target)
	}
	assert.Equal(t, http.StatusBadRequest,
		postJSON(t, h, "/llm-apps/api/optimize", `{"target":4,"initial":9}`).Code)
}

func TestPerplexityPageDefaults(t *testing.T) {
	rec := get(t, newTestServer(t, nil).Handler(), "/llm-apps/perplexity-visualization")
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `value="the cat sat on the mat"`)
	assert.Contains(t, body, `Context: <strong>"the"</strong>`)
	assert.Contains(t, body, `Top predictions after "he"`)
	assert.Contains(t, body, "Unigram Model Perplexity")
}

func TestPerplexityPageEscapesText(t *testing.T) {
	h := newTestServer(t, nil).Handler()

	rec := get(t, h, "/llm-apps/perplexity-visualization?text="+url.QueryEscape("<script>alert(1)</script>"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "<script>")
}

func TestOptimizationPage(t *testing.T) {
	h := newTestServer(t, nil).Handler()

	rec := get(t, h, "/llm-apps/recommendation-optimization")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "<polyline")

	rec = get(t, h, "/llm-apps/recommendation-optimization?run=1&target=4&initial=2&iterations=10")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Equal(t, 3, strings.Count(body, "<polyline"))
	assert.Contains(t, body, "Improved to: 3.79/5")

	rec = get(t, h, "/llm-apps/recommendation-optimization?run=1&target=7")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequestsAreCountedByRoute(t *testing.T) {
	reporter := &routeRecorder{}
	h := newTestServer(t, reporter).Handler()

	get(t, h, "/llm-apps/perplexity-visualization")
	get(t, h, "/llm-apps/api/apps")

	assert.Equal(t, []string{"/llm-apps/{app}", "/llm-apps/api/apps"}, reporter.routes)
}

type requestRecord struct {
	route  string
	status int
}

type statusRecorderReporter struct {
	NoopReporter
	mu       sync.Mutex
	requests []requestRecord
}

func (r *statusRecorderReporter) HTTPRequest(route string, status int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, requestRecord{route: route, status: status})
}

func TestUnroutedRequestsAreCounted(t *testing.T) {
	reporter := &statusRecorderReporter{}
	h := newTestServer(t, reporter).Handler()

	for _, target := range []string{"/llm-apps/api/nope", "/nothing", "/llm-apps/nope/deeper"} {
		rec := get(t, h, target)
		assert.Equal(t, http.StatusNotFound, rec.Code, target)
	}
	require.Len(t, reporter.requests, 3)
	for _, req := range reporter.requests {
		assert.Equal(t, requestRecord{route: "unmatched", status: http.StatusNotFound}, req)
	}
}

func TestWrongMethodIsCounted(t *testing.T) {
	reporter := &statusRecorderReporter{}
	h := newTestServer(t, reporter).Handler()

	rec := serve(t, h, httptest.NewRequest(http.MethodDelete, "/llm-apps/api/apps", nil))
	assert.Contains(t, []int{http.StatusMethodNotAllowed, http.StatusNotFound}, rec.Code)

	require.Len(t, reporter.requests, 1)
	assert.Equal(t, "unmatched", reporter.requests[0].route)
	assert.Equal(t, rec.Code, reporter.requests[0].status)
}

func TestUnknownAppIsCountedByTemplate(t *testing.T) {
	reporter := &statusRecorderReporter{}
	h := newTestServer(t, reporter).Handler()

	get(t, h, "/llm-apps/nope")
	require.Len(t, reporter.requests, 1)
	assert.Equal(t, requestRecord{route: "/llm-apps/{app}", status: http.StatusNotFound}, reporter.requests[0])
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(t, NewPrometheusReporter()).Handler()

	get(t, h, "/llm-apps/api/perplexity?text=the")
	get(t, h, "/llm-apps/api/perplexity?text=the")
	get(t, h, "/llm-apps/api/optimize")

	rec := get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "llm_apps_evaluations_total 1")
	assert.Contains(t, body, `llm_apps_cache_lookups_total{result="hit"} 1`)
	assert.Contains(t, body, `llm_apps_cache_lookups_total{result="miss"} 1`)
	assert.Contains(t, body, "llm_apps_optimizations_total 1")
	assert.Contains(t, body, `llm_apps_http_requests_total{route="/llm-apps/api/perplexity",status="200"} 2`)

	get(t, h, "/llm-apps/api/nope")
	body = get(t, h, "/metrics").Body.String()
	assert.Contains(t, body, `llm_apps_http_requests_total{route="unmatched",status="404"} 1`)
}

func TestMetricsNotServedWithoutPrometheus(t *testing.T) {
	h := newTestServer(t, nil).Handler()
	assert.Equal(t, http.StatusNotFound, get(t, h, "/metrics").Code)
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Port = 0
	srv, err := NewServer(cfg, NewPrometheusReporter())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServerOverHTTP(t *testing.T) {
	ts := httptest.NewServer(newTestServer(t, nil).Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/llm-apps/api/optimize?iterations=3")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out OptimizeResponse
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Len(t, out.Steps, 3)
}
