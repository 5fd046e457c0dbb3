package port

import (
	"context"

	"github.com/hwlab/inventory/internal/core/domain"
)

// ProjectDirectory is the read side of the external project store. The
// reservation core consults it for existence and membership but never writes
// through it.
type ProjectDirectory interface {
	// GetProject returns nil when the project does not exist.
	GetProject(ctx context.Context, projectID string) (*domain.Project, error)

	IsMember(ctx context.Context, projectID, username string) (bool, error)
}
