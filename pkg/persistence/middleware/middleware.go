// Package middleware wraps a CheckpointStore with cross-cutting persistence
// behavior: sealing checkpoint state with AES-GCM and masking PII before
// anything reaches storage. Middlewares compose; the store at the end of the
// chain never sees what the inner layers removed.
package middleware

import "github.com/quarrydata/quarry/pkg/ports"

// Middleware wraps a CheckpointStore to add behavior.
type Middleware func(ports.CheckpointStore) ports.CheckpointStore

// Chain applies middlewares so the first listed is outermost: writes pass
// through it first, reads pass through it last.
func Chain(store ports.CheckpointStore, mws ...Middleware) ports.CheckpointStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
