package status

import (
	"context"

	"github.com/orpheus-edu/orpheus-core/internal/types"
)

// Updater is the write seam used by the pipeline and the render worker. It is
// satisfied by the local Store and by the remote status-service client, so the
// caller never knows where the status lives.
type Updater interface {
	Patch(ctx context.Context, promptID string, patch types.StatusPatch) error
	Status(ctx context.Context, promptID string) (types.Status, error)
}

type localUpdater struct {
	store *Store
}

// NewLocalUpdater adapts the in-memory store to the Updater seam.
func NewLocalUpdater(store *Store) Updater {
	return &localUpdater{store: store}
}

func (u *localUpdater) Patch(_ context.Context, promptID string, patch types.StatusPatch) error {
	u.store.Update(promptID, patch)
	return nil
}

func (u *localUpdater) Status(_ context.Context, promptID string) (types.Status, error) {
	return u.store.Get(promptID), nil
}
