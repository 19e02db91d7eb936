package chi

import "time"

// ErrorCode is a machine-readable error code returned in ErrorResponse.
type ErrorCode string

// Error codes.
const (
	CodeBadRequest        ErrorCode = "bad_request"
	CodeValidationFailed  ErrorCode = "validation_failed"
	CodeTenantRequired    ErrorCode = "tenant_required"
	CodeInvalidEntityType ErrorCode = "invalid_entity_type"
	CodeInvalidEntity     ErrorCode = "invalid_entity"
	CodeEmptyProjection   ErrorCode = "empty_projection"
	CodeUnauthorized      ErrorCode = "unauthorized"
	CodeForbidden         ErrorCode = "forbidden"
	CodeRateLimited       ErrorCode = "rate_limited"
	CodeJobNotFound       ErrorCode = "job_not_found"
	CodeReindexBusy       ErrorCode = "reindex_busy"
	CodeShuttingDown      ErrorCode = "shutting_down"
	CodeStoreUnavailable  ErrorCode = "store_unavailable"
	CodeSourceUnavailable ErrorCode = "source_unavailable"
	CodeInternalError     ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// SearchResultItem is one ranked hit.
type SearchResultItem struct {
	EntityType  string          `json:"entity_type"`
	EntityID    string          `json:"entity_id"`
	Score       float64         `json:"score"`
	Title       string          `json:"title"`
	Subtitle    string          `json:"subtitle,omitempty"`
	Description string          `json:"description,omitempty"`
	URL         string          `json:"url,omitempty"`
	Metadata    *ResultMetadata `json:"metadata,omitempty"`
	IndexedAt   time.Time       `json:"indexed_at"`
}

// ResultMetadata carries the display fields beyond title and subtitle.
type ResultMetadata struct {
	Status   string            `json:"status,omitempty"`
	Amount   *float64          `json:"amount,omitempty"`
	Currency string            `json:"currency,omitempty"`
	Date     string            `json:"date,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`
}

// SearchResponse is a page of search results.
type SearchResponse struct {
	Items           []SearchResultItem `json:"items"`
	Total           int                `json:"total"`
	HasMore         bool               `json:"has_more"`
	Limit           int                `json:"limit"`
	Offset          int                `json:"offset"`
	Truncated       bool               `json:"truncated"`
	ExecutionTimeMs float64            `json:"execution_time_ms"`
}

// ReindexStartedResponse acknowledges a reindex request.
type ReindexStartedResponse struct {
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
	Coalesced bool   `json:"coalesced"`
}

// TypeProgress is the per-type progress of a job.
type TypeProgress struct {
	Pages   int    `json:"pages"`
	Indexed int    `json:"indexed"`
	Failed  int    `json:"failed"`
	Pruned  int    `json:"pruned"`
	Done    bool   `json:"done"`
	Skipped bool   `json:"skipped,omitempty"`
	Error   string `json:"error,omitempty"`
}

// JobResponse is a reindex job record.
type JobResponse struct {
	JobID         string                  `json:"job_id"`
	Status        string                  `json:"status"`
	Indexed       int                     `json:"indexed"`
	Failed        int                     `json:"failed"`
	Progress      map[string]TypeProgress `json:"progress"`
	Errors        []string                `json:"errors"`
	DroppedErrors int                     `json:"dropped_errors,omitempty"`
	FailureReason string                  `json:"failure_reason,omitempty"`
	CreatedAt     time.Time               `json:"created_at"`
	StartedAt     *time.Time              `json:"started_at,omitempty"`
	FinishedAt    *time.Time              `json:"finished_at,omitempty"`
}

// StatsResponse is the tenant's index summary.
type StatsResponse struct {
	Total         int64            `json:"total"`
	ByType        map[string]int64 `json:"by_type"`
	LastUpdatedAt *time.Time       `json:"last_updated_at"`
}

// PopularQueryItem is one frequently searched query.
type PopularQueryItem struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// PopularQueriesResponse lists popular queries, most frequent first.
type PopularQueriesResponse struct {
	Items []PopularQueryItem `json:"items"`
}

// HealthResponse reports component health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
