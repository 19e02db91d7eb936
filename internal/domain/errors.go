package domain

import "errors"

var (
	// ErrInvalidQuery signals a search request that failed validation.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrInvalidEntityType signals an entity type outside the registered enumeration.
	ErrInvalidEntityType = errors.New("invalid entity type")
	// ErrInvalidEntity signals a malformed entity identifier or payload.
	ErrInvalidEntity = errors.New("invalid entity")
	// ErrEmptyProjection signals that a projection produced no searchable text.
	ErrEmptyProjection = errors.New("empty searchable text")
	// ErrTenantRequired signals a missing or malformed tenant id.
	ErrTenantRequired = errors.New("tenant required")

	// ErrRateLimited signals that the caller exceeded its search rate.
	ErrRateLimited = errors.New("rate limited")

	// ErrStoreUnavailable signals that the index store could not serve the request.
	ErrStoreUnavailable = errors.New("index store unavailable")
	// ErrSourceUnavailable signals that the system of record could not be read.
	ErrSourceUnavailable = errors.New("system of record unavailable")

	// ErrJobNotFound signals a missing reindex job.
	ErrJobNotFound = errors.New("reindex job not found")
	// ErrShuttingDown signals that the service no longer accepts background work.
	ErrShuttingDown = errors.New("shutting down")
	// ErrReindexBusy signals that the reindex queue is full.
	ErrReindexBusy = errors.New("reindex queue full")
)
