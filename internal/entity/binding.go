package entity

import (
	"sync"

	"github.com/nwalden/homepulse-core/internal/coordinator"
)

// Source is the coordinator surface entities consume. Satisfied by
// *coordinator.Coordinator[T] for any T.
type Source interface {
	Snapshot() coordinator.Snapshot
	AddListener(fn func(), context any) func()
}

// Binding ties one listener to a coordinator for the lifetime of an
// entity. Close deregisters the listener; calling it repeatedly is safe.
type Binding struct {
	remove func()
	once   sync.Once
}

// Bind registers fn as a coordinator listener and returns its binding.
func Bind(source Source, fn func()) *Binding {
	return &Binding{remove: source.AddListener(fn, nil)}
}

// Close deregisters the listener. Idempotent.
func (b *Binding) Close() {
	b.once.Do(b.remove)
}
