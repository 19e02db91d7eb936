package health

import "context"

// StorePinger checks index store availability.
type StorePinger interface {
	Ping(ctx context.Context) error
}

// SourcePinger checks system of record availability.
type SourcePinger interface {
	Ping(ctx context.Context) error
}
