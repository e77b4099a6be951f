package lifecycle

import (
	"context"

	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/notify"
)

// MutateFunc changes an application loaded under lock and returns the events
// to stage with the change. Returning an error discards the change.
type MutateFunc func(app *Application) ([]notify.Event, error)

// Repository persists applications together with the outbox events their
// changes produce.
type Repository interface {
	// Create inserts app, links it to its job and stages events in one
	// atomic unit. It returns ErrDuplicateApplication when the (candidate,
	// job) pair already exists and a *ClosedError when the job's active
	// applications already fill its openings. Both checks are made under
	// the same lock as the insert.
	Create(ctx context.Context, app *Application, events []notify.Event) error

	// Get returns a copy of the application or ErrNotFound.
	Get(ctx context.Context, id string) (*Application, error)

	// List returns applications matching f, newest first.
	List(ctx context.Context, f Filter) ([]*Application, error)

	// Mutate serialises writers of one application: it loads the current
	// state exclusively, applies fn, and persists the result along with new
	// timeline entries and the returned events. Concurrent callers observe
	// each other's committed state.
	Mutate(ctx context.Context, id string, fn MutateFunc) (*Application, error)
}
