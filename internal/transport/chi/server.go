package chi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/aiorch/internal/domain"
	"github.com/kailas-cloud/aiorch/internal/metrics"
	dedupuc "github.com/kailas-cloud/aiorch/internal/usecase/dedup"
	healthuc "github.com/kailas-cloud/aiorch/internal/usecase/health"
	usageuc "github.com/kailas-cloud/aiorch/internal/usecase/usage"
)

const (
	maxBodyBytes       = 1 << 20
	defaultRecordLimit = 50
	maxRecordLimit     = 500
)

// Executor runs a generation request through cache and fallback chain.
type Executor interface {
	Execute(ctx context.Context, req *domain.GenerationRequest) (*domain.Response, error)
}

// Deduplicator detects repeated texts within a project scope.
type Deduplicator interface {
	Check(ctx context.Context, scope dedupuc.Scope, text string) (dedupuc.Result, error)
	Remember(ctx context.Context, scope dedupuc.Scope, text string) (string, error)
	ForgetScope(ctx context.Context, projectID string) (int, error)
}

// RecordReader lists execution records.
type RecordReader interface {
	ListRecent(ctx context.Context, usageType string, limit int) ([]domain.ExecutionRecord, error)
}

// UsageReporter reports token budgets.
type UsageReporter interface {
	GetReport(ctx context.Context, period usageuc.Period) []usageuc.Report
}

// HealthChecker aggregates component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// Server is the aiorch HTTP API.
type Server struct {
	executor Executor
	dedup    Deduplicator
	records  RecordReader
	usage    UsageReporter
	health   HealthChecker
	logger   *zap.Logger
}

// NewServer creates an HTTP API server.
func NewServer(
	executor Executor,
	dedup Deduplicator,
	records RecordReader,
	usage UsageReporter,
	health HealthChecker,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		executor: executor,
		dedup:    dedup,
		records:  records,
		usage:    usage,
		health:   health,
		logger:   logger,
	}
}

// Handler builds the chi router with the full middleware stack.
func (s *Server) Handler(apiKeys []string) http.Handler {
	r := chi.NewRouter()
	r.Use(JSONRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(WideEventMiddleware(s.logger))
	r.Use(BearerAuthMiddleware(apiKeys))
	r.Use(metrics.Middleware())

	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/execute", s.Execute)
		r.Post("/dedup/check", s.DedupCheck)
		r.Post("/dedup/remember", s.DedupRemember)
		r.Delete("/scopes/{project}", s.ForgetScope)
		r.Get("/records", s.ListRecords)
		r.Get("/usage", s.GetUsage)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, CodeBadRequest, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, CodeBadRequest, "method not allowed")
	})
	return r
}

// Execute handles POST /v1/execute.
func (s *Server) Execute(w http.ResponseWriter, r *http.Request) {
	var req domain.GenerationRequest
	if !s.decode(w, r, &req) {
		return
	}

	resp, err := s.executor.Execute(r.Context(), &req)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	if resp.CacheHit {
		w.Header().Set("X-Cache-Tier", string(resp.Tier))
	}
	writeJSON(w, http.StatusOK, resp)
}

type dedupRequest struct {
	Text      string   `json:"text"`
	ProjectID string   `json:"project_id"`
	DocType   string   `json:"doc_type,omitempty"`
	Tags      []string `json:"tags,omitempty"`
}

func (r dedupRequest) scope() dedupuc.Scope {
	return dedupuc.Scope{ProjectID: r.ProjectID, DocType: r.DocType, Tags: r.Tags}
}

type matchResponse struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Score    float64           `json:"score"`
}

type dedupCheckResponse struct {
	IsDuplicate bool           `json:"is_duplicate"`
	Score       float64        `json:"score"`
	Match       *matchResponse `json:"match,omitempty"`
}

// DedupCheck handles POST /v1/dedup/check.
func (s *Server) DedupCheck(w http.ResponseWriter, r *http.Request) {
	var req dedupRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.dedup.Check(r.Context(), req.scope(), req.Text)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	resp := dedupCheckResponse{IsDuplicate: res.IsDuplicate, Score: res.Score}
	if res.Match != nil {
		resp.Match = &matchResponse{
			ID:       res.Match.ID,
			Text:     res.Match.Text,
			Metadata: res.Match.Metadata,
			Score:    res.Match.Score,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// DedupRemember handles POST /v1/dedup/remember.
func (s *Server) DedupRemember(w http.ResponseWriter, r *http.Request) {
	var req dedupRequest
	if !s.decode(w, r, &req) {
		return
	}

	id, err := s.dedup.Remember(r.Context(), req.scope(), req.Text)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// ForgetScope handles DELETE /v1/scopes/{project}.
func (s *Server) ForgetScope(w http.ResponseWriter, r *http.Request) {
	project := chi.URLParam(r, "project")

	n, err := s.dedup.ForgetScope(r.Context(), project)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

type recordResponse struct {
	ID           string    `json:"id"`
	Fingerprint  string    `json:"fingerprint"`
	UsageType    string    `json:"usage_type"`
	ConfigID     string    `json:"config_id,omitempty"`
	Provider     string    `json:"provider,omitempty"`
	Model        string    `json:"model,omitempty"`
	Attempt      int       `json:"attempt"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	LatencyMs    int64     `json:"latency_ms"`
	Outcome      string    `json:"outcome"`
	Error        string    `json:"error,omitempty"`
	CacheHit     bool      `json:"cache_hit"`
	CacheTier    string    `json:"cache_tier,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// ListRecords handles GET /v1/records?usage_type=&limit=.
func (s *Server) ListRecords(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecordLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxRecordLimit {
			writeError(w, http.StatusBadRequest, CodeValidationFailed,
				"limit must be an integer between 1 and "+strconv.Itoa(maxRecordLimit))
			return
		}
		limit = n
	}

	recs, err := s.records.ListRecent(r.Context(), r.URL.Query().Get("usage_type"), limit)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	items := make([]recordResponse, len(recs))
	for i := range recs {
		items[i] = recordToResponse(&recs[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// GetUsage handles GET /v1/usage?period=day|month.
func (s *Server) GetUsage(w http.ResponseWriter, r *http.Request) {
	period := usageuc.PeriodDay
	if p := r.URL.Query().Get("period"); p != "" {
		period = usageuc.Period(p)
		if period != usageuc.PeriodDay && period != usageuc.PeriodMonth {
			writeError(w, http.StatusBadRequest, CodeValidationFailed, `period must be "day" or "month"`)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": s.usage.GetReport(r.Context(), period)})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, report)
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func recordToResponse(rec *domain.ExecutionRecord) recordResponse {
	return recordResponse{
		ID:           rec.ID,
		Fingerprint:  rec.Fingerprint,
		UsageType:    rec.UsageType,
		ConfigID:     rec.ConfigID,
		Provider:     rec.Provider,
		Model:        rec.Model,
		Attempt:      rec.Attempt,
		InputTokens:  rec.InputTokens,
		OutputTokens: rec.OutputTokens,
		LatencyMs:    rec.Latency.Milliseconds(),
		Outcome:      string(rec.Outcome),
		Error:        rec.Error,
		CacheHit:     rec.CacheHit,
		CacheTier:    string(rec.CacheTier),
		CreatedAt:    rec.CreatedAt,
	}
}
