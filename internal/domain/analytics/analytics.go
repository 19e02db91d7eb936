package analytics

// PopularQuery is a normalized query and how often it appears in the recency log.
type PopularQuery struct {
	Query string
	Count int64
}

// DefaultLogCap is the number of recent queries kept per tenant.
const DefaultLogCap = 1000
