package routes

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/card-control/app"
	"github.com/upb/card-control/config"
	"go.uber.org/zap/zaptest"
)

// fakeGateway issues one card and serves queued transactions in order
type fakeGateway struct {
	mu   sync.Mutex
	txns []string
}

func (g *fakeGateway) push(txn string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.txns = append(g.txns, txn)
}

func (g *fakeGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/cards/":
		_, _ = io.WriteString(w, `{"id":"card-1","user":7,"balance":"500.00",
			"created":"2024-03-01T10:00:00Z","updated":"2024-03-01T10:00:00Z"}`)
	case r.Method == http.MethodGet && r.URL.Path == "/transaction/":
		g.mu.Lock()
		defer g.mu.Unlock()
		if len(g.txns) == 0 {
			http.Error(w, "no transactions", http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, g.txns[0])
		g.txns = g.txns[1:]
	default:
		http.NotFound(w, r)
	}
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	*httptest.Server
	gateway *fakeGateway
	deps    *app.Dependencies
	token   string
}

func newTestServer(t *testing.T, configure func(cfg *config.Config)) *testServer {
	t.Helper()

	gw := &fakeGateway{}
	gwServer := httptest.NewServer(gw)
	t.Cleanup(gwServer.Close)

	cfg := &config.Config{
		Environment: "test",
		Server:      config.ServerConfig{AllowedOrigins: []string{"http://localhost:3000"}},
		Storage:     config.StorageConfig{Backend: config.StorageBackendMemory},
		Cache: config.CacheConfig{
			Backend:    config.CacheBackendMemory,
			TTL:        time.Minute,
			MaxEntries: 100,
		},
		Gateway:       config.GatewayConfig{BaseURL: gwServer.URL, Timeout: time.Second},
		Auth:          config.AuthConfig{JWTSecret: "routes-test-secret"},
		Observability: config.ObservabilityConfig{LogLevel: "debug", MetricsEnabled: true},
	}
	if configure != nil {
		configure(cfg)
	}

	ctx := context.Background()
	deps, err := app.NewDependencies(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = deps.Close(ctx) })

	token, err := deps.TokenValidator.Issue("alice", "Alice", time.Hour)
	require.NoError(t, err)

	ts := httptest.NewServer(SetupRoutes(deps))
	t.Cleanup(ts.Close)

	return &testServer{Server: ts, gateway: gw, deps: deps, token: token}
}

func (s *testServer) do(t *testing.T, method, path, body, token string) (int, envelope) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var e envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &e), string(raw))
	}
	return resp.StatusCode, e
}

func TestCardControlWorkflow(t *testing.T) {
	s := newTestServer(t, nil)

	status, e := s.do(t, http.MethodPost, "/stub/card", "", s.token)
	require.Equal(t, http.StatusCreated, status, e.Message)
	assert.Equal(t, "Success", e.Status)

	// Nothing configured yet: mandatory controls missing
	s.gateway.push(`{"id":"txn-0","card":"card-1","amount":"10","merchant":"Coles","merchant_category":"5411"}`)
	status, e = s.do(t, http.MethodGet, "/stub/txn", "", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Fail", e.Status)
	assert.Contains(t, e.Message, "Mandatory Control MAX_AMT not configured")

	for _, body := range []string{
		`{"control_name":"max_amt","control_value":"200"}`,
		`{"control_name":"MERCH_CAT","control_value":"5411"}`,
	} {
		status, e = s.do(t, http.MethodPost, "/api/v1/card/card-1/control", body, s.token)
		require.Equal(t, http.StatusCreated, status, e.Message)
	}

	status, e = s.do(t, http.MethodGet, "/api/v1/card/card-1/control", "", s.token)
	require.Equal(t, http.StatusOK, status)
	var listed []map[string]interface{}
	require.NoError(t, json.Unmarshal(e.Data, &listed))
	assert.Len(t, listed, 2)

	s.gateway.push(`{"id":"txn-1","card":"card-1","amount":"150.00","merchant":"Coles","merchant_category":"5411"}`)
	status, e = s.do(t, http.MethodGet, "/stub/txn", "", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Success", e.Status)
	assert.Contains(t, string(e.Data), `"status":"A"`)

	s.gateway.push(`{"id":"txn-2","card":"card-1","amount":"300.00","merchant":"Coles","merchant_category":"5411"}`)
	status, e = s.do(t, http.MethodGet, "/stub/txn", "", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Fail", e.Status)
	assert.Contains(t, e.Message, "MAX_AMT")

	status, e = s.do(t, http.MethodPost, "/api/v1/transactions/authorize",
		`{"id":"txn-3","card":"card-1","amount":"100","merchant":"Coles","merchant_category":"5812"}`, s.token)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Fail", e.Status)
	assert.Contains(t, e.Message, "MERCH_CAT")

	status, e = s.do(t, http.MethodGet, "/api/v1/transactions/txn-1", "", s.token)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(e.Data), `"card":"card-1"`)

	status, e = s.do(t, http.MethodGet, "/api/v1/card/card-1/transactions", "", s.token)
	require.Equal(t, http.StatusOK, status)
	var history []map[string]interface{}
	require.NoError(t, json.Unmarshal(e.Data, &history))
	assert.Len(t, history, 4)

	// Replaying an authorized id is refused
	status, _ = s.do(t, http.MethodPost, "/api/v1/transactions/authorize",
		`{"id":"txn-1","card":"card-1","amount":"1","merchant":"Coles","merchant_category":"5411"}`, s.token)
	assert.Equal(t, http.StatusConflict, status)
}

func TestAuthorize_OnlyCardCreator(t *testing.T) {
	s := newTestServer(t, nil)

	status, e := s.do(t, http.MethodPost, "/stub/card", "", s.token)
	require.Equal(t, http.StatusCreated, status, e.Message)
	for _, body := range []string{
		`{"control_name":"MAX_AMT","control_value":"1000"}`,
		`{"control_name":"MERCH_CAT","control_value":"5411"}`,
	} {
		status, e = s.do(t, http.MethodPost, "/api/v1/card/card-1/control", body, s.token)
		require.Equal(t, http.StatusCreated, status, e.Message)
	}

	mallory, err := s.deps.TokenValidator.Issue("mallory", "Mallory", time.Hour)
	require.NoError(t, err)

	status, e = s.do(t, http.MethodPost, "/api/v1/transactions/authorize",
		`{"id":"other-1","card":"card-1","amount":"499","merchant":"Coles","merchant_category":"5411"}`, mallory)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "Fail", e.Status)

	status, _ = s.do(t, http.MethodPost, "/api/v1/transactions/authorize",
		`{"id":"other-2","card":"card-9","amount":"1","merchant":"Coles","merchant_category":"5411"}`, mallory)
	assert.Equal(t, http.StatusNotFound, status)

	card, err := s.deps.Repos.Cards.GetByID(context.Background(), "card-1")
	require.NoError(t, err)
	assert.Equal(t, "500", card.Balance.String())

	status, e = s.do(t, http.MethodGet, "/api/v1/transactions/other-1", "", s.token)
	assert.Equal(t, http.StatusNotFound, status, e.Message)

	// Sub-cent amounts never reach the balance
	status, _ = s.do(t, http.MethodPost, "/api/v1/transactions/authorize",
		`{"id":"txn-1","card":"card-1","amount":"0.004","merchant":"Coles","merchant_category":"5411"}`, s.token)
	assert.Equal(t, http.StatusBadRequest, status)

	status, e = s.do(t, http.MethodPost, "/api/v1/transactions/authorize",
		`{"id":"txn-2","card":"card-1","amount":"499","merchant":"Coles","merchant_category":"5411"}`, s.token)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Success", e.Status)
}

func TestStubTransaction_GatewayDown(t *testing.T) {
	s := newTestServer(t, nil)

	status, e := s.do(t, http.MethodGet, "/stub/txn", "", "")
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, "Fail", e.Status)
}

func TestControlManagement(t *testing.T) {
	s := newTestServer(t, nil)

	status, _ := s.do(t, http.MethodPost, "/stub/card", "", s.token)
	require.Equal(t, http.StatusCreated, status)

	status, e := s.do(t, http.MethodPost, "/api/v1/card/card-1/control",
		`{"control_name":"MAX_AMT","control_value":"200"}`, s.token)
	require.Equal(t, http.StatusCreated, status)
	var created struct {
		ID int64 `json:"id"`
	}
	require.NoError(t, json.Unmarshal(e.Data, &created))

	status, _ = s.do(t, http.MethodPost, "/api/v1/card/card-1/control",
		`{"control_name":"NOPE","control_value":"1"}`, s.token)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = s.do(t, http.MethodDelete, "/api/v1/card/card-1/control/999", "", s.token)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = s.do(t, http.MethodDelete, "/api/v1/card/card-1/control/"+strconv.FormatInt(created.ID, 10), "", s.token)
	assert.Equal(t, http.StatusNoContent, status)
}

func TestProtectedEndpoints(t *testing.T) {
	s := newTestServer(t, nil)

	testCases := []struct {
		name           string
		method         string
		path           string
		token          string
		expectedStatus int
	}{
		{"create card", "POST", "/stub/card", "", http.StatusUnauthorized},
		{"list controls", "GET", "/api/v1/card/card-1/control", "", http.StatusUnauthorized},
		{"create control", "POST", "/api/v1/card/card-1/control", "", http.StatusUnauthorized},
		{"delete control", "DELETE", "/api/v1/card/card-1/control/1", "", http.StatusUnauthorized},
		{"definitions", "GET", "/api/v1/controls/definitions", "", http.StatusUnauthorized},
		{"authorize", "POST", "/api/v1/transactions/authorize", "", http.StatusUnauthorized},
		{"bad token", "GET", "/api/v1/transactions/txn-1", "not-a-jwt", http.StatusUnauthorized},
		{"definitions with token", "GET", "/api/v1/controls/definitions", s.token, http.StatusOK},
		{"missing card", "GET", "/api/v1/card/ghost/control", s.token, http.StatusNotFound},
		{"not found", "GET", "/api/v1/nonexistent", s.token, http.StatusNotFound},
		{"method not allowed", "PUT", "/healthz", "", http.StatusMethodNotAllowed},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			status, _ := s.do(t, tc.method, tc.path, "", tc.token)
			assert.Equal(t, tc.expectedStatus, status, "endpoint: %s %s", tc.method, tc.path)
		})
	}
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t, nil)

	t.Run("liveness", func(t *testing.T) {
		status, e := s.do(t, http.MethodGet, "/healthz", "", "")
		assert.Equal(t, http.StatusOK, status)
		assert.Contains(t, string(e.Data), `"status":"healthy"`)
	})

	t.Run("readiness", func(t *testing.T) {
		status, e := s.do(t, http.MethodGet, "/readyz", "", "")
		assert.Equal(t, http.StatusOK, status)
		assert.Contains(t, string(e.Data), `"database":"healthy"`)
	})

	t.Run("metrics", func(t *testing.T) {
		// generate at least one labelled request first
		_, _ = s.do(t, http.MethodGet, "/healthz", "", "")

		resp, err := http.Get(s.URL + "/metrics")
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, string(body), "card_control_http_requests_total")
	})
}

func TestMetricsDisabled(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.Observability.MetricsEnabled = false
	})

	resp, err := http.Get(s.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCORSMiddleware(t *testing.T) {
	s := newTestServer(t, nil)

	req, err := http.NewRequest(http.MethodOptions, s.URL+"/api/v1/transactions/authorize", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
}
