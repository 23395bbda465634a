// internal/storage/storage.go
package storage

import (
	"context"
	"errors"

	"github.com/mockloc/mockloc/pkg/core"
)

var (
	// ErrNotFound is returned when no favorite has the requested name.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a favorite name is already taken.
	ErrDuplicate = errors.New("already exists")
)

// Favorites is the saved-target store.
type Favorites interface {
	Add(ctx context.Context, f core.Favorite) (core.Favorite, error)
	Get(ctx context.Context, name string) (core.Favorite, error)
	List(ctx context.Context) ([]core.Favorite, error)
	Remove(ctx context.Context, name string) error
	// MarkUsed increments the usage counter and stamps the last use.
	MarkUsed(ctx context.Context, name string) error
}

// History reads recorded sessions, newest first.
type History interface {
	Sessions(ctx context.Context, limit int) ([]core.SessionSummary, error)
}
