package port

import "context"

type CacheRepository interface {
	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ReleaseIdempotency removes a key so a failed request can be retried
	ReleaseIdempotency(ctx context.Context, key string) error
}

// ReportCache stores serialized dashboard results.
type ReportCache interface {
	// GetReport unmarshals a cached entry into dst, returns false on a miss
	GetReport(ctx context.Context, key string, dst any) (bool, error)

	SetReport(ctx context.Context, key string, value any) error

	DeleteReport(ctx context.Context, key string) error

	// InvalidateReports drops every cached dashboard entry
	InvalidateReports(ctx context.Context) error
}
