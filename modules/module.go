package modules

import (
	"context"

	"p2pcalc/commontypes"
	"p2pcalc/modules/state"
)

// Module defines the interface that all query modules must implement.
// The store gives modules access to the caller's preferences (language).
type Module interface {
	Name() string
	DefaultIconPath() string
	ProcessQuery(ctx context.Context, query string, store *state.Store) ([]commontypes.Result, error)
}
