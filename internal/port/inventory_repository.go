package port

import (
	"context"

	"github.com/hwlab/inventory/internal/core/domain"
)

type InventoryRepository interface {
	// Reserve increments the hardware set's checked-out counter and upserts
	// the project's checkout record in a single transaction. Both writes
	// commit together or not at all. Fails with ErrHardwareNotFound or
	// ErrInsufficientAvailability without any state change.
	Reserve(ctx context.Context, hardwareName, projectID string, quantity int) (*domain.Availability, error)

	// Release decrements the counter and the project's checkout record,
	// deleting the record when its quantity reaches zero. Fails with
	// ErrHardwareNotFound, ErrNoActiveCheckout or ErrOverRelease without any
	// state change.
	Release(ctx context.Context, hardwareName, projectID string, quantity int) (*domain.Availability, error)

	// GetHardwareSet returns nil when the set does not exist.
	GetHardwareSet(ctx context.Context, name string) (*domain.HardwareSet, error)

	ListHardwareSets(ctx context.Context) ([]domain.HardwareSet, error)

	CreateHardwareSet(ctx context.Context, hw domain.HardwareSet) error

	// UpdateCapacity applies a new total capacity with a version check for
	// optimistic locking; a stale version fails with ErrConcurrencyConflict.
	UpdateCapacity(ctx context.Context, hw domain.HardwareSet) error

	// AppendLedgerEvent persists an audit record outside the reservation
	// transaction.
	AppendLedgerEvent(ctx context.Context, ev domain.LedgerEvent) error
}
