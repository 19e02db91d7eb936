package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	gochi "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/entsearch/internal/domain"
	"github.com/kailas-cloud/entsearch/internal/domain/entity"
	domreindex "github.com/kailas-cloud/entsearch/internal/domain/reindex"
	"github.com/kailas-cloud/entsearch/internal/domain/search/query"
	"github.com/kailas-cloud/entsearch/internal/domain/search/result"
	"github.com/kailas-cloud/entsearch/internal/domain/stats"
	logpkg "github.com/kailas-cloud/entsearch/internal/logger"
	analyticsuc "github.com/kailas-cloud/entsearch/internal/usecase/analytics"
	healthuc "github.com/kailas-cloud/entsearch/internal/usecase/health"
	indexeruc "github.com/kailas-cloud/entsearch/internal/usecase/indexer"
	"github.com/kailas-cloud/entsearch/internal/usecase/ratelimit"
	reindexuc "github.com/kailas-cloud/entsearch/internal/usecase/reindex"
	searchuc "github.com/kailas-cloud/entsearch/internal/usecase/search"
)

// maxEntityBodyBytes bounds a lifecycle hook payload.
const maxEntityBodyBytes = 1 << 20

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server serves the search, reindex, stats, analytics and lifecycle endpoints.
type Server struct {
	indexer       *indexeruc.Service
	search        *searchuc.Service
	reindex       *reindexuc.Service
	analytics     *analyticsuc.Recorder
	health        *healthuc.Service
	limits        query.Limits
	logger        *zap.Logger
	errorHandlers []errorHandler

	trustUserHeader bool
}

// ServerOption configures optional Server behavior.
type ServerOption func(*Server)

// WithTrustedUserHeader lets X-User-ID split a credential's rate-limit bucket
// per user. Enable only behind a gateway that sets the header.
func WithTrustedUserHeader(trust bool) ServerOption {
	return func(s *Server) { s.trustUserHeader = trust }
}

// NewServer creates an HTTP API server.
func NewServer(
	indexer *indexeruc.Service,
	search *searchuc.Service,
	reindex *reindexuc.Service,
	analytics *analyticsuc.Recorder,
	health *healthuc.Service,
	limits query.Limits,
	logger *zap.Logger,
	opts ...ServerOption,
) *Server {
	s := &Server{
		indexer:   indexer,
		search:    search,
		reindex:   reindex,
		analytics: analytics,
		health:    health,
		limits:    limits,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	// Order matters: the first matching sentinel decides the status.
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrTenantRequired, http.StatusBadRequest, CodeTenantRequired),
		sentinelHandler(domain.ErrInvalidQuery, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrInvalidEntityType, http.StatusBadRequest, CodeInvalidEntityType),
		sentinelHandler(domain.ErrInvalidEntity, http.StatusBadRequest, CodeInvalidEntity),
		sentinelHandler(domain.ErrEmptyProjection, http.StatusBadRequest, CodeEmptyProjection),
		rateLimitHandler,
		sentinelHandler(domain.ErrJobNotFound, http.StatusNotFound, CodeJobNotFound),
		sentinelHandler(domain.ErrReindexBusy, http.StatusServiceUnavailable, CodeReindexBusy),
		sentinelHandler(domain.ErrShuttingDown, http.StatusServiceUnavailable, CodeShuttingDown),
		sentinelHandler(domain.ErrSourceUnavailable, http.StatusServiceUnavailable, CodeSourceUnavailable),
		sentinelHandler(domain.ErrStoreUnavailable, http.StatusServiceUnavailable, CodeStoreUnavailable),
	}
	return s
}

// Routes mounts the API on r. adminKeys guard reindex requests when non-empty.
func (s *Server) Routes(r gochi.Router, adminKeys []string) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.Route("/api/v1", func(r gochi.Router) {
		r.Get("/search", s.Search)
		r.With(AdminKeyMiddleware(adminKeys)).Post("/reindex", s.StartReindex)
		r.Get("/reindex/{jobId}", s.GetReindexJob)
		r.Get("/stats", s.GetStats)
		r.Get("/analytics/popular", s.PopularQueries)
		r.Put("/entities/{type}/{id}", s.PutEntity)
		r.Delete("/entities/{type}/{id}", s.DeleteEntity)
	})
}

// Search handles GET /api/v1/search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantFromRequest(r)
	params := r.URL.Query()

	limit, err := limitParam(params)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	offset, _, err := intParam(params, "offset")
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	text := params.Get("query")
	if text == "" {
		text = params.Get("q")
	}
	q, err := query.New(tenantID, text, splitList(params.Get("types")), limit, offset, s.limits)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	page, err := s.search.Search(r.Context(), identityFromRequest(r, tenantID, s.trustUserHeader), q)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	items := make([]SearchResultItem, len(page.Results))
	for i := range page.Results {
		items[i] = searchResultToDTO(&page.Results[i])
	}

	writeJSON(w, http.StatusOK, SearchResponse{
		Items:           items,
		Total:           page.Total,
		HasMore:         page.HasMore,
		Limit:           page.Limit,
		Offset:          page.Offset,
		Truncated:       page.Truncated,
		ExecutionTimeMs: float64(page.ExecutionTime.Microseconds()) / 1000,
	})
}

// StartReindex handles POST /api/v1/reindex.
func (s *Server) StartReindex(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantFromRequest(r)

	jobID, started, err := s.reindex.StartReindex(r.Context(), tenantID)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	status := string(domreindex.StatusQueued)
	if !started {
		if j, err := s.reindex.JobStatus(r.Context(), tenantID, jobID); err == nil {
			status = string(j.Status)
		}
	}

	w.Header().Set("Location", "/api/v1/reindex/"+jobID)
	writeJSON(w, http.StatusAccepted, ReindexStartedResponse{
		JobID:     jobID,
		Status:    status,
		Coalesced: !started,
	})
}

// GetReindexJob handles GET /api/v1/reindex/{jobId}.
func (s *Server) GetReindexJob(w http.ResponseWriter, r *http.Request) {
	j, err := s.reindex.JobStatus(r.Context(), tenantFromRequest(r), gochi.URLParam(r, "jobId"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jobToDTO(j))
}

// GetStats handles GET /api/v1/stats.
func (s *Server) GetStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.indexer.Stats(r.Context(), tenantFromRequest(r))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statsToDTO(st))
}

// PopularQueries handles GET /api/v1/analytics/popular.
func (s *Server) PopularQueries(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r.URL.Query())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	popular, err := s.analytics.PopularQueries(r.Context(), tenantFromRequest(r), limit)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	items := make([]PopularQueryItem, len(popular))
	for i, p := range popular {
		items[i] = PopularQueryItem{Query: p.Query, Count: p.Count}
	}
	writeJSON(w, http.StatusOK, PopularQueriesResponse{Items: items})
}

// PutEntity handles PUT /api/v1/entities/{type}/{id}: the create/update hook.
func (s *Server) PutEntity(w http.ResponseWriter, r *http.Request) {
	t, err := entity.ParseType(gochi.URLParam(r, "type"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	var raw entity.Raw
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEntityBodyBytes)).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if raw == nil {
		writeError(w, http.StatusBadRequest, CodeInvalidEntity, "entity body must be a JSON object")
		return
	}

	if err := s.indexer.Index(r.Context(), tenantFromRequest(r), t, gochi.URLParam(r, "id"), raw); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteEntity handles DELETE /api/v1/entities/{type}/{id}: the delete hook. Idempotent.
func (s *Server) DeleteEntity(w http.ResponseWriter, r *http.Request) {
	t, err := entity.ParseType(gochi.URLParam(r, "type"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	if err := s.indexer.Remove(r.Context(), tenantFromRequest(r), t, gochi.URLParam(r, "id")); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// clientErrors carry details that are safe to echo back.
var clientErrors = []error{
	domain.ErrTenantRequired,
	domain.ErrInvalidQuery,
	domain.ErrInvalidEntityType,
	domain.ErrInvalidEntity,
	domain.ErrEmptyProjection,
}

// safeDomainMessage returns a client-facing message without exposing internals.
func safeDomainMessage(err error) string {
	for _, s := range clientErrors {
		if errors.Is(err, s) {
			return err.Error()
		}
	}
	sentinels := []error{
		domain.ErrRateLimited,
		domain.ErrJobNotFound,
		domain.ErrReindexBusy,
		domain.ErrShuttingDown,
		domain.ErrSourceUnavailable,
		domain.ErrStoreUnavailable,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// rateLimitHandler handles ErrRateLimited with a Retry-After header.
func rateLimitHandler(w http.ResponseWriter, err error, msg string) bool {
	if !errors.Is(err, domain.ErrRateLimited) {
		return false
	}
	retryAfter := 1
	var ex *ratelimit.ExceededError
	if errors.As(err, &ex) {
		if secs := int(math.Ceil(ex.RetryAfter.Seconds())); secs > retryAfter {
			retryAfter = secs
		}
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	writeError(w, http.StatusTooManyRequests, CodeRateLimited, msg)
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logpkg.FromContext(r.Context(), s.logger)
	log.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}

// intParam parses an optional integer query parameter. ok is false when absent.
func intParam(params url.Values, name string) (v int, ok bool, err error) {
	if !params.Has(name) {
		return 0, false, nil
	}
	v, err = strconv.Atoi(params.Get(name))
	if err != nil {
		return 0, true, fmt.Errorf("%w: %s must be an integer", domain.ErrInvalidQuery, name)
	}
	return v, true, nil
}

// limitParam returns the page size. Zero means absent and takes the default;
// an explicit limit=0 is rejected.
func limitParam(params url.Values) (int, error) {
	limit, ok, err := intParam(params, "limit")
	if err != nil {
		return 0, err
	}
	if ok && limit == 0 {
		return 0, fmt.Errorf("%w: limit must be at least 1", domain.ErrInvalidQuery)
	}
	return limit, nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func searchResultToDTO(r *result.Result) SearchResultItem {
	item := SearchResultItem{
		EntityType:  string(r.EntityType()),
		EntityID:    r.EntityID(),
		Score:       r.Score(),
		Title:       r.Title(),
		Subtitle:    r.Subtitle(),
		Description: r.Description(),
		URL:         r.URL(),
		IndexedAt:   r.IndexedAt().UTC(),
	}
	m := r.Metadata()
	if m.Status != "" || m.Amount != nil || m.Currency != "" || m.Date != "" || len(m.Fields) > 0 {
		item.Metadata = &ResultMetadata{
			Status:   m.Status,
			Amount:   m.Amount,
			Currency: m.Currency,
			Date:     m.Date,
			Fields:   m.Fields,
		}
	}
	return item
}

func jobToDTO(j *domreindex.Job) JobResponse {
	indexed, failed := j.Totals()
	progress := make(map[string]TypeProgress, len(j.Progress))
	for t, p := range j.Progress {
		progress[string(t)] = TypeProgress{
			Pages:   p.Pages,
			Indexed: p.Indexed,
			Failed:  p.Failed,
			Pruned:  p.Pruned,
			Done:    p.Done,
			Skipped: p.Skipped,
			Error:   p.Error,
		}
	}
	errs := j.Errors
	if errs == nil {
		errs = []string{}
	}
	return JobResponse{
		JobID:         j.ID,
		Status:        string(j.Status),
		Indexed:       indexed,
		Failed:        failed,
		Progress:      progress,
		Errors:        errs,
		DroppedErrors: j.DroppedErrors,
		FailureReason: j.FailureReason,
		CreatedAt:     j.CreatedAt,
		StartedAt:     j.StartedAt,
		FinishedAt:    j.FinishedAt,
	}
}

func statsToDTO(st stats.IndexStats) StatsResponse {
	byType := make(map[string]int64, len(st.ByType))
	for t, n := range st.ByType {
		byType[string(t)] = n
	}

	resp := StatsResponse{Total: st.Total, ByType: byType}
	if !st.LastUpdatedAt.IsZero() {
		ts := st.LastUpdatedAt.UTC()
		resp.LastUpdatedAt = &ts
	}
	return resp
}
