package health

import "context"

// DBPinger checks database availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}

// KeywordChecker checks that the full-text index answers queries.
type KeywordChecker interface {
	Healthy(ctx context.Context) error
}

// ObjectStoreChecker checks that uploaded bytes can be written.
type ObjectStoreChecker interface {
	Writable(ctx context.Context) error
}
