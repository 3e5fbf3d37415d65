package visualization

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nvandessel/rbdc/internal/constants"
	"github.com/nvandessel/rbdc/internal/models"
	"github.com/nvandessel/rbdc/internal/query"
)

func fastParams() models.ParameterSet {
	return models.ParameterSet{
		Dose:                 1,
		DecayRate:            2,
		DiffusionCoefficient: 0.01,
		ActivationThreshold:  0.5,
		GridExtent:           1,
		GridResolution:       0.05,
		BoundaryCondition:    constants.BoundaryAbsorbing,
		Duration:             2,
		RecordInterval:       0.5,
	}.WithDefaults()
}

// setupTestServer serves a fresh query server through httptest.
func setupTestServer(t *testing.T, opts Options) (*Server, *httptest.Server) {
	t.Helper()
	srv := NewServer(query.NewExplorer(query.NewService(fastParams())), opts)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return v
}

func TestServer_ServesHTML(t *testing.T) {
	_, ts := setupTestServer(t, Options{})

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET / status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q, want text/html; charset=utf-8", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "/api/query") {
		t.Error("page does not call the query API")
	}
}

func TestServer_UnknownPath(t *testing.T) {
	_, ts := setupTestServer(t, Options{})

	resp, err := http.Get(ts.URL + "/nope")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestServer_Health(t *testing.T) {
	_, ts := setupTestServer(t, Options{})

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	body := decode[map[string]any](t, resp)
	if body["status"] != "ok" {
		t.Errorf("health = %v", body)
	}
}

func TestServer_Defaults(t *testing.T) {
	_, ts := setupTestServer(t, Options{})

	resp, err := http.Get(ts.URL + "/api/defaults")
	if err != nil {
		t.Fatal(err)
	}
	got := decode[DefaultsResponse](t, resp)
	if got.Params != fastParams() {
		t.Errorf("Params = %+v, want the base set", got.Params)
	}
	if len(got.Numeric) == 0 {
		t.Error("no numeric option names")
	}
}

func TestServer_QueryGET(t *testing.T) {
	_, ts := setupTestServer(t, Options{})

	resp, err := http.Get(ts.URL + "/api/query?dose=2&session=s1")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	got := decode[query.Response](t, resp)
	if got.Params.Dose != 2 {
		t.Errorf("Params.Dose = %v, want 2", got.Params.Dose)
	}
	if len(got.Series) != 5 {
		t.Errorf("Series has %d samples, want 5", len(got.Series))
	}
}

func TestServer_QueryPOST(t *testing.T) {
	_, ts := setupTestServer(t, Options{})

	body := strings.NewReader(`{"dose": 2, "boundary_condition": "reflecting"}`)
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/query", body)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set(SessionHeader, "s1")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	got := decode[query.Response](t, resp)
	if got.Params.Dose != 2 || got.Params.BoundaryCondition != constants.BoundaryReflecting {
		t.Errorf("Params = %+v", got.Params)
	}
}

func TestServer_QueryErrors(t *testing.T) {
	_, ts := setupTestServer(t, Options{})

	tests := []struct {
		name     string
		method   string
		target   string
		body     string
		status   int
		wantKind string
	}{
		{"unknown option", http.MethodGet, "/api/query?bogus=1", "", http.StatusBadRequest, models.KindValidation},
		{"not a number", http.MethodGet, "/api/query?dose=lots", "", http.StatusBadRequest, models.KindValidation},
		{"invalid value", http.MethodGet, "/api/query?grid_resolution=-1", "", http.StatusBadRequest, models.KindValidation},
		{"bad JSON", http.MethodPost, "/api/query", "{", http.StatusBadRequest, models.KindValidation},
		{"unstable step", http.MethodPost, "/api/query", `{"time_step": 10}`, http.StatusUnprocessableEntity, models.KindInstability},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, ts.URL+tt.target, strings.NewReader(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			got := decode[errorBody](t, resp)
			if got.Kind != tt.wantKind {
				t.Errorf("kind = %q, want %q (error %q)", got.Kind, tt.wantKind, got.Error)
			}
		})
	}
}

func TestServer_Plot(t *testing.T) {
	_, ts := setupTestServer(t, Options{})

	resp, err := http.Get(ts.URL + "/api/plot.png?dose=1.5")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q, want image/png", ct)
	}
	data, _ := io.ReadAll(resp.Body)
	if !bytes.HasPrefix(data, []byte("\x89PNG")) {
		t.Error("body is not a PNG")
	}
}

func TestServer_RateLimited(t *testing.T) {
	_, ts := setupTestServer(t, Options{RateLimit: 0.001, Burst: 2})

	for i := range 2 {
		resp, err := http.Get(ts.URL + "/api/defaults")
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i, resp.StatusCode)
		}
	}

	resp, err := http.Get(ts.URL + "/api/defaults")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", resp.StatusCode)
	}
	// One token per 1000s.
	if ra := resp.Header.Get("Retry-After"); ra != "1000" {
		t.Errorf("Retry-After = %q, want 1000", ra)
	}
	if got := decode[errorBody](t, resp); got.Kind != KindRateLimited {
		t.Errorf("kind = %q, want %q", got.Kind, KindRateLimited)
	}

	// Health checks are never limited.
	resp, err = http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", resp.StatusCode)
	}
}

func TestServer_SupersededQuery(t *testing.T) {
	srv, ts := setupTestServer(t, Options{})

	slow := "/api/query?grid_resolution=0.002&duration=10000&record_interval=1000"
	firstStatus := make(chan int, 1)
	go func() {
		req, _ := http.NewRequest(http.MethodGet, ts.URL+slow, nil)
		req.Header.Set(SessionHeader, "explore")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			firstStatus <- 0
			return
		}
		resp.Body.Close()
		firstStatus <- resp.StatusCode
	}()

	deadline := time.Now().Add(5 * time.Second)
	for srv.explorer.Active() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first query never started")
		}
		time.Sleep(time.Millisecond)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/query?dose=2", nil)
	req.Header.Set(SessionHeader, "explore")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("second query status = %d, want 200", resp.StatusCode)
	}

	select {
	case status := <-firstStatus:
		if status != http.StatusConflict {
			t.Errorf("superseded query status = %d, want 409", status)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("superseded query did not finish")
	}
}

func TestServer_ListenAndServeCleanShutdown(t *testing.T) {
	srv := NewServer(query.NewExplorer(query.NewService(fastParams())), Options{})
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx) }()

	waitForServer(t, srv, 2*time.Second)

	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("unexpected error on shutdown: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down within 3 seconds")
	}
}

// waitForServer polls the server until it's ready or the timeout is reached.
func waitForServer(t *testing.T, srv *Server, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		addr := srv.Addr()
		if addr == "" {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		resp, err := http.Get("http://" + addr + "/healthz")
		if err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("server did not start within timeout")
}
