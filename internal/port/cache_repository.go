package port

import (
	"context"

	"github.com/hwlab/inventory/internal/core/domain"
)

type CacheRepository interface {
	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ClearIdempotency removes a key so a failed request may be retried
	ClearIdempotency(ctx context.Context, key string) error

	// GetAvailability returns the cached snapshot; ok is false on a miss
	GetAvailability(ctx context.Context, hardwareName string) (av *domain.Availability, ok bool, err error)

	// SetAvailability stores a snapshot with a short TTL
	SetAvailability(ctx context.Context, av domain.Availability) error

	// InvalidateAvailability drops the snapshot after a committed mutation
	InvalidateAvailability(ctx context.Context, hardwareName string) error
}
