package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"dacgov.org/internal/auth"
	"dacgov.org/internal/engine"
	"dacgov.org/internal/kv"
	"dacgov.org/internal/params"
	"dacgov.org/internal/stream"
)

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	t.Setenv("DAC_AUTH_SECRET", "test-secret")
	auth.ResetSecretForTests()
	t.Cleanup(auth.ResetSecretForTests)

	st := stream.New()
	eng, err := engine.New(kv.NewMemory(), params.Default(), engine.WithPublisher(st))
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	api := New(ReadyProbe{}, "test", eng, st, WithRateLimit(100, 100))

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		t:       t,
	}
}

func (c *apiClient) post(path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) get(path string, params url.Values, headers map[string]string) *http.Response {
	c.t.Helper()
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		c.t.Fatalf("parse url: %v", err)
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("get request: %v", err)
	}
	return resp
}

func bearerFor(t *testing.T, account string, roles ...string) map[string]string {
	t.Helper()
	token, err := auth.GenerateToken(account, roles, time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func expectStatus(t *testing.T, resp *http.Response, want int) map[string]any {
	t.Helper()
	body := decode[map[string]any](t, resp)
	if resp.StatusCode != want {
		t.Fatalf("expected %d, got %d: %v", want, resp.StatusCode, body)
	}
	return body
}

func TestAPIMembershipAndGovernanceFlow(t *testing.T) {
	api := newTestAPI(t)
	admin := bearerFor(t, "ops", auth.RoleAdmin)
	alice := bearerFor(t, "alice")

	expectStatus(t, api.post("/v1/actions/create", map[string]any{
		"issuer":         "ednadac",
		"maximum_supply": "1000000.0000 EDNA",
	}, admin), http.StatusOK)
	expectStatus(t, api.post("/v1/actions/issue", map[string]any{
		"to":       "alice",
		"quantity": "10.0000 EDNA",
		"memo":     "welcome",
	}, admin), http.StatusOK)
	expectStatus(t, api.post("/v1/actions/set_fund_account", map[string]any{"account": "dacfund"}, admin), http.StatusOK)

	res := expectStatus(t, api.post("/v1/actions/join", map[string]any{
		"account": "alice",
		"handle":  "alice",
		"dues":    "0.0001 EDNA",
	}, alice), http.StatusOK)
	if res["call_id"] == "" {
		t.Fatalf("expected call id in %v", res)
	}

	member := expectStatus(t, api.get("/v1/members/alice", nil, nil), http.StatusOK)
	if member["account"] != "alice" {
		t.Fatalf("unexpected member: %v", member)
	}

	bal := expectStatus(t, api.get("/v1/balances/dacfund/EDNA", nil, nil), http.StatusOK)
	if bal["balance"] != "0.0001 EDNA" {
		t.Fatalf("unexpected fund balance: %v", bal)
	}

	cfg := expectStatus(t, api.get("/v1/config", nil, nil), http.StatusOK)
	if cfg["member_count"] != float64(1) || cfg["fund_account"] != "dacfund" {
		t.Fatalf("unexpected config: %v", cfg)
	}

	expectStatus(t, api.post("/v1/actions/propose", map[string]any{
		"sponsor":  "alice",
		"title":    "<script>alert(1)</script>",
		"body_ref": "ipfs://x",
	}, alice), http.StatusBadRequest)

	expectStatus(t, api.post("/v1/actions/propose", map[string]any{
		"sponsor":  "alice",
		"title":    "R&D budget",
		"body_ref": "ipfs://x",
	}, alice), http.StatusOK)

	// A single member at 40% escalates on the first vote.
	vote := expectStatus(t, api.post("/v1/actions/vote", map[string]any{
		"voter":       "alice",
		"proposal_id": 1,
		"choice":      1,
	}, alice), http.StatusOK)
	result := vote["result"].(map[string]any)
	if result["escalated"] != true {
		t.Fatalf("expected escalation, got %v", result)
	}

	list := expectStatus(t, api.get("/v1/proposals", url.Values{"status": {"escalated"}}, nil), http.StatusOK)
	if items := list["items"].([]any); len(items) != 1 {
		t.Fatalf("expected one escalated proposal, got %v", items)
	}
	expectStatus(t, api.get("/v1/proposals", url.Values{"status": {"bogus"}}, nil), http.StatusBadRequest)

	v := expectStatus(t, api.get("/v1/votes/alice/1", nil, nil), http.StatusOK)
	if v["choice"] != float64(1) {
		t.Fatalf("unexpected vote: %v", v)
	}

	anns := expectStatus(t, api.get("/v1/announcements", url.Values{"limit": {"10"}}, nil), http.StatusOK)
	if items := anns["items"].([]any); len(items) != 3 {
		t.Fatalf("expected new member, new proposal and escalation announcements, got %v", items)
	}

	usage := expectStatus(t, api.get("/v1/usage/ednadac", nil, nil), http.StatusOK)
	if usage["bytes"].(float64) <= 0 {
		t.Fatalf("expected contract storage usage, got %v", usage)
	}
}

func TestAPIErrorMapping(t *testing.T) {
	api := newTestAPI(t)
	admin := bearerFor(t, "ops", auth.RoleAdmin)
	bob := bearerFor(t, "bob")

	body := expectStatus(t, api.post("/v1/actions/create", map[string]any{
		"issuer":         "bob",
		"maximum_supply": "10.0000 EDNA",
	}, bob), http.StatusForbidden)
	if body["request_id"] == "" {
		t.Fatalf("expected request id in error body")
	}

	expectStatus(t, api.post("/v1/actions/join", map[string]any{
		"account": "bob", "handle": "bob", "dues": "0.0001 EDNA",
	}, bob), http.StatusConflict)

	expectStatus(t, api.post("/v1/actions/create", map[string]any{
		"issuer": "ednadac", "maximum_supply": "10.0000 EDNA",
	}, admin), http.StatusOK)
	expectStatus(t, api.post("/v1/actions/create", map[string]any{
		"issuer": "ednadac", "maximum_supply": "10.0000 EDNA",
	}, admin), http.StatusConflict)

	expectStatus(t, api.post("/v1/actions/transfer", map[string]any{
		"from": "bob", "to": "bob", "quantity": "1.0000 EDNA",
	}, bob), http.StatusBadRequest)

	expectStatus(t, api.post("/v1/actions/mint", map[string]any{}, admin), http.StatusNotFound)
	expectStatus(t, api.post("/v1/actions/join", map[string]any{"surprise": true}, bob), http.StatusBadRequest)
	expectStatus(t, api.get("/v1/actions/join", nil, nil), http.StatusMethodNotAllowed)

	expectStatus(t, api.get("/v1/members/nobody", nil, nil), http.StatusNotFound)
	expectStatus(t, api.get("/v1/proposals/abc", nil, nil), http.StatusBadRequest)
	expectStatus(t, api.get("/v1/supply/NOPE", nil, nil), http.StatusNotFound)
	expectStatus(t, api.get("/v1/announcements", url.Values{"limit": {"0"}}, nil), http.StatusBadRequest)
}

func TestAPIEnforcesAuth(t *testing.T) {
	api := newTestAPI(t)

	resp := api.post("/v1/actions/join", map[string]any{
		"account": "alice", "handle": "alice", "dues": "0.0001 EDNA",
	}, nil)
	body := expectStatus(t, resp, http.StatusUnauthorized)
	if body["error"] == "" {
		t.Fatalf("expected error message")
	}
	if resp.Header.Get("WWW-Authenticate") == "" {
		t.Fatalf("expected WWW-Authenticate header")
	}
}

func TestTokenEndpoint(t *testing.T) {
	api := newTestAPI(t)

	expectStatus(t, api.post("/v1/auth/token", map[string]any{"account": "alice"}, bearerFor(t, "alice")), http.StatusForbidden)

	admin := bearerFor(t, "ops", auth.RoleAdmin)
	expectStatus(t, api.post("/v1/auth/token", map[string]any{"account": ""}, admin), http.StatusBadRequest)
	expectStatus(t, api.post("/v1/auth/token", map[string]any{"account": "alice", "ttl": "72h"}, admin), http.StatusBadRequest)

	body := expectStatus(t, api.post("/v1/auth/token", map[string]any{"account": "alice", "roles": []string{"member"}}, admin), http.StatusOK)
	claims, err := auth.ParseAndValidate(body["token"].(string))
	if err != nil {
		t.Fatalf("issued token invalid: %v", err)
	}
	if claims.Subject != "alice" {
		t.Fatalf("unexpected subject %q", claims.Subject)
	}
}

func TestHealthAndInfo(t *testing.T) {
	api := newTestAPI(t)

	health := expectStatus(t, api.get("/healthz", nil, nil), http.StatusOK)
	if health["service"] != serviceName {
		t.Fatalf("unexpected health body: %v", health)
	}
	expectStatus(t, api.get("/readyz", nil, nil), http.StatusOK)

	info := expectStatus(t, api.get("/v1/info", nil, nil), http.StatusOK)
	if info["contract"] != params.DefaultContract || info["version"] != "test" {
		t.Fatalf("unexpected info: %v", info)
	}

	actions := expectStatus(t, api.get("/v1/actions", nil, nil), http.StatusOK)
	if len(actions["actions"].([]any)) != len(engine.ActionNames()) {
		t.Fatalf("unexpected action list: %v", actions)
	}
}

func TestReadyReportsProbeFailure(t *testing.T) {
	eng, err := engine.New(kv.NewMemory(), params.Default())
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	api := New(failingReadiness{}, "test", eng, nil)
	rr := httptest.NewRecorder()
	api.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestEventsStreamDeliversCommittedEvents(t *testing.T) {
	api := newTestAPI(t)
	admin := bearerFor(t, "ops", auth.RoleAdmin)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, api.baseURL+"/v1/events", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := api.client.Do(req)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	// The comment line is written after the subscription is registered.
	if line, err := reader.ReadString('\n'); err != nil || !strings.HasPrefix(line, ":") {
		t.Fatalf("expected stream comment, got %q (%v)", line, err)
	}

	expectStatus(t, api.post("/v1/actions/create", map[string]any{
		"issuer": "ednadac", "maximum_supply": "10.0000 EDNA",
	}, admin), http.StatusOK)
	expectStatus(t, api.post("/v1/actions/issue", map[string]any{
		"to": "alice", "quantity": "1.0000 EDNA",
	}, admin), http.StatusOK)

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var evt stream.Event
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &evt); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if evt.Kind != "notify" || evt.Action != "issue" || evt.CallID == "" {
			t.Fatalf("unexpected event: %+v", evt)
		}
		return
	}
}
