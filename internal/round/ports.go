package round

import "context"

// Store persists round aggregates. Implementations must treat a round and its hands as
// one document.
type Store interface {
	// Create inserts a new round. It returns ErrJoinCodeTaken when an unfinished round
	// already uses the join code.
	Create(ctx context.Context, r *Round) error
	// Get returns a copy of the round or ErrRoundNotFound.
	Get(ctx context.Context, id string) (*Round, error)
	// GetByJoinCode returns the round most recently registered under code, or ErrRoundNotFound.
	GetByJoinCode(ctx context.Context, code string) (*Round, error)
	// Save replaces the stored round if its version still equals r.Version, then
	// increments r.Version. A stale version yields ErrVersionConflict.
	Save(ctx context.Context, r *Round) error
	// Ping checks backend reachability.
	Ping(ctx context.Context) error
}

// Directory resolves member ids to display names.
type Directory interface {
	DisplayName(ctx context.Context, userID string) string
}

// DirectoryFunc adapts a function to Directory.
type DirectoryFunc func(ctx context.Context, userID string) string

func (f DirectoryFunc) DisplayName(ctx context.Context, userID string) string {
	return f(ctx, userID)
}

type idDirectory struct{}

func (idDirectory) DisplayName(_ context.Context, userID string) string {
	return userID
}
