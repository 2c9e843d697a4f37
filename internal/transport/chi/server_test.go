package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/aiorch/internal/domain"
	dedupuc "github.com/kailas-cloud/aiorch/internal/usecase/dedup"
	healthuc "github.com/kailas-cloud/aiorch/internal/usecase/health"
	usageuc "github.com/kailas-cloud/aiorch/internal/usecase/usage"
)

// --- Mocks ---

type mockExecutor struct {
	resp *domain.Response
	err  error
	got  *domain.GenerationRequest
}

func (m *mockExecutor) Execute(_ context.Context, req *domain.GenerationRequest) (*domain.Response, error) {
	m.got = req
	return m.resp, m.err
}

type mockDedup struct {
	result    dedupuc.Result
	err       error
	scope     dedupuc.Scope
	forgotten string
}

func (m *mockDedup) Check(_ context.Context, scope dedupuc.Scope, _ string) (dedupuc.Result, error) {
	m.scope = scope
	return m.result, m.err
}

func (m *mockDedup) Remember(_ context.Context, scope dedupuc.Scope, _ string) (string, error) {
	m.scope = scope
	return "doc-1", m.err
}

func (m *mockDedup) ForgetScope(_ context.Context, projectID string) (int, error) {
	m.forgotten = projectID
	return 3, m.err
}

type mockRecords struct {
	recs      []domain.ExecutionRecord
	usageType string
	limit     int
}

func (m *mockRecords) ListRecent(_ context.Context, usageType string, limit int) ([]domain.ExecutionRecord, error) {
	m.usageType, m.limit = usageType, limit
	return m.recs, nil
}

type mockUsage struct{}

func (mockUsage) GetReport(_ context.Context, period usageuc.Period) []usageuc.Report {
	return []usageuc.Report{{Provider: "openai", Kind: "generation", Period: period, Limit: 100, Used: 10, Remaining: 90}}
}

type mockHealth struct {
	report healthuc.Report
}

func (m mockHealth) Check(_ context.Context) healthuc.Report { return m.report }

func newTestServer(exec *mockExecutor, dd *mockDedup, recs *mockRecords) http.Handler {
	if exec == nil {
		exec = &mockExecutor{}
	}
	if dd == nil {
		dd = &mockDedup{}
	}
	if recs == nil {
		recs = &mockRecords{}
	}
	health := mockHealth{report: healthuc.Report{Status: healthuc.Healthy, Checks: map[string]healthuc.CheckResult{}}}
	return NewServer(exec, dd, recs, mockUsage{}, health, nil).Handler(nil)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return resp
}

// --- Tests ---

func TestExecute_Success(t *testing.T) {
	exec := &mockExecutor{resp: &domain.Response{
		Content:  "hello",
		Usage:    domain.Usage{InputTokens: 5, OutputTokens: 2},
		CacheHit: true,
		Tier:     domain.TierExact,
		Provider: "openai",
		Model:    "gpt-4o",
	}}
	h := newTestServer(exec, nil, nil)

	rr := do(t, h, http.MethodPost, "/v1/execute",
		`{"usage_type":"interview","conversation":[{"role":"user","content":"hi"}],"sampling":{"temperature":0}}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("got %d, want %d: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	if got := rr.Header().Get("X-Cache-Tier"); got != "L1" {
		t.Errorf("expected X-Cache-Tier L1, got %q", got)
	}
	var resp domain.Response
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Content != "hello" || !resp.CacheHit {
		t.Errorf("unexpected response: %+v", resp)
	}
	if exec.got.UsageType != "interview" || !exec.got.Sampling.IsDeterministic() {
		t.Errorf("request not decoded: %+v", exec.got)
	}
}

func TestExecute_BadBody(t *testing.T) {
	h := newTestServer(nil, nil, nil)
	rr := do(t, h, http.MethodPost, "/v1/execute", `{"usage_type":`)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusBadRequest)
	}
	if resp := decodeError(t, rr); resp.Code != CodeBadRequest {
		t.Errorf("code: got %s, want %s", resp.Code, CodeBadRequest)
	}
}

func TestExecute_ErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   ErrorCode
	}{
		{"invalid", fmt.Errorf("%w: usage_type is required", domain.ErrInvalidRequest), http.StatusBadRequest, CodeValidationFailed},
		{"no config", domain.ErrNoModelConfig, http.StatusNotFound, CodeNoModelConfig},
		{"exhausted", &domain.ChainExhaustedError{UsageType: "x", Attempts: 2, Last: domain.NewTransientError("openai", 503, errors.New("down"))},
			http.StatusServiceUnavailable, CodeChainExhausted},
		{"permanent", domain.NewPermanentError("openai", 400, errors.New("bad")), http.StatusBadGateway, CodeProviderError},
		{"internal", errors.New("boom"), http.StatusInternalServerError, CodeInternalError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestServer(&mockExecutor{err: tc.err}, nil, nil)
			rr := do(t, h, http.MethodPost, "/v1/execute", `{}`)

			if rr.Code != tc.status {
				t.Fatalf("got %d, want %d", rr.Code, tc.status)
			}
			resp := decodeError(t, rr)
			if resp.Code != tc.code {
				t.Errorf("code: got %s, want %s", resp.Code, tc.code)
			}
			if tc.code == CodeInternalError && resp.Message != "internal error" {
				t.Errorf("internal details leaked: %q", resp.Message)
			}
		})
	}
}

func TestExecute_ValidationMessageIsEchoed(t *testing.T) {
	err := fmt.Errorf("%w: usage_type is required", domain.ErrInvalidRequest)
	h := newTestServer(&mockExecutor{err: err}, nil, nil)
	rr := do(t, h, http.MethodPost, "/v1/execute", `{}`)

	if resp := decodeError(t, rr); !strings.Contains(resp.Message, "usage_type") {
		t.Errorf("expected field name in message, got %q", resp.Message)
	}
}

func TestDedupCheck(t *testing.T) {
	dd := &mockDedup{result: dedupuc.Result{
		IsDuplicate: true,
		Score:       0.91,
		Match:       &domain.Match{ID: "m1", Text: "qual a capital", Score: 0.91},
	}}
	h := newTestServer(nil, dd, nil)

	rr := do(t, h, http.MethodPost, "/v1/dedup/check",
		`{"text":"Qual a capital?","project_id":"p1","doc_type":"question","tags":["geo"]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("got %d: %s", rr.Code, rr.Body.String())
	}

	var resp dedupCheckResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.IsDuplicate || resp.Match == nil || resp.Match.ID != "m1" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if dd.scope.ProjectID != "p1" || dd.scope.DocType != "question" || len(dd.scope.Tags) != 1 {
		t.Errorf("scope not forwarded: %+v", dd.scope)
	}
}

func TestDedupCheck_EmptyScope(t *testing.T) {
	h := newTestServer(nil, &mockDedup{err: domain.ErrEmptyScope}, nil)
	rr := do(t, h, http.MethodPost, "/v1/dedup/check", `{"text":"x"}`)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestDedupRemember(t *testing.T) {
	h := newTestServer(nil, &mockDedup{}, nil)
	rr := do(t, h, http.MethodPost, "/v1/dedup/remember", `{"text":"x","project_id":"p1"}`)

	if rr.Code != http.StatusCreated {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusCreated)
	}
	if !strings.Contains(rr.Body.String(), `"doc-1"`) {
		t.Errorf("expected id in body, got %s", rr.Body.String())
	}
}

func TestForgetScope(t *testing.T) {
	dd := &mockDedup{}
	h := newTestServer(nil, dd, nil)
	rr := do(t, h, http.MethodDelete, "/v1/scopes/p42", "")

	if rr.Code != http.StatusOK {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusOK)
	}
	if dd.forgotten != "p42" {
		t.Errorf("expected project p42, got %q", dd.forgotten)
	}
	if !strings.Contains(rr.Body.String(), `"deleted":3`) {
		t.Errorf("unexpected body %s", rr.Body.String())
	}
}

func TestListRecords(t *testing.T) {
	recs := &mockRecords{recs: []domain.ExecutionRecord{{
		ID:        "r1",
		UsageType: "interview",
		Outcome:   domain.OutcomeSuccess,
		Latency:   1500 * time.Millisecond,
	}}}
	h := newTestServer(nil, nil, recs)

	rr := do(t, h, http.MethodGet, "/v1/records?usage_type=interview&limit=10", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("got %d: %s", rr.Code, rr.Body.String())
	}
	if recs.usageType != "interview" || recs.limit != 10 {
		t.Errorf("query not forwarded: %q %d", recs.usageType, recs.limit)
	}
	var body struct {
		Items []recordResponse `json:"items"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Items) != 1 || body.Items[0].LatencyMs != 1500 || body.Items[0].Outcome != "success" {
		t.Errorf("unexpected items: %+v", body.Items)
	}
}

func TestListRecords_BadLimit(t *testing.T) {
	h := newTestServer(nil, nil, nil)
	for _, limit := range []string{"0", "abc", "501"} {
		rr := do(t, h, http.MethodGet, "/v1/records?limit="+limit, "")
		if rr.Code != http.StatusBadRequest {
			t.Errorf("limit=%s: got %d, want %d", limit, rr.Code, http.StatusBadRequest)
		}
	}
}

func TestListRecords_DefaultLimit(t *testing.T) {
	recs := &mockRecords{}
	h := newTestServer(nil, nil, recs)
	do(t, h, http.MethodGet, "/v1/records", "")

	if recs.limit != defaultRecordLimit {
		t.Errorf("expected default limit %d, got %d", defaultRecordLimit, recs.limit)
	}
}

func TestGetUsage(t *testing.T) {
	h := newTestServer(nil, nil, nil)

	rr := do(t, h, http.MethodGet, "/v1/usage?period=month", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"period":"month"`) {
		t.Errorf("unexpected body %s", rr.Body.String())
	}

	rr = do(t, h, http.MethodGet, "/v1/usage?period=year", "")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestHealthCheck_Degraded(t *testing.T) {
	health := mockHealth{report: healthuc.Report{
		Status: healthuc.Degraded,
		Checks: map[string]healthuc.CheckResult{"records": healthuc.CheckError},
	}}
	h := NewServer(&mockExecutor{}, &mockDedup{}, &mockRecords{}, mockUsage{}, health, nil).Handler(nil)

	rr := do(t, h, http.MethodGet, "/health", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}
	if !strings.Contains(rr.Body.String(), `"records":"error"`) {
		t.Errorf("unexpected body %s", rr.Body.String())
	}
}

func TestHandler_RequiresAuth(t *testing.T) {
	health := mockHealth{report: healthuc.Report{Status: healthuc.Healthy}}
	h := NewServer(&mockExecutor{}, &mockDedup{}, &mockRecords{}, mockUsage{}, health, nil).Handler([]string{"secret"})

	if rr := do(t, h, http.MethodPost, "/v1/execute", `{}`); rr.Code != http.StatusUnauthorized {
		t.Errorf("execute without token: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
	if rr := do(t, h, http.MethodGet, "/health", ""); rr.Code != http.StatusOK {
		t.Errorf("health is exempt: got %d, want %d", rr.Code, http.StatusOK)
	}
	if rr := do(t, h, http.MethodGet, "/health", ""); rr.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
}

func TestHandler_UnknownRoute(t *testing.T) {
	h := newTestServer(nil, nil, nil)
	if rr := do(t, h, http.MethodGet, "/v1/nope", ""); rr.Code != http.StatusNotFound {
		t.Errorf("got %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestJSONRecoverer(t *testing.T) {
	h := JSONRecoverer(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	}))
	rr := do(t, h, http.MethodGet, "/", "")

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusInternalServerError)
	}
	if resp := decodeError(t, rr); resp.Code != CodeInternalError {
		t.Errorf("code: got %s", resp.Code)
	}
}
