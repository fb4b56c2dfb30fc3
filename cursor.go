// Copyright 2024 TernDB Corp. All rights reserved.
package tern

import (
	"sync"

	"github.com/google/uuid"
)

// RegisteredRunner is the piece of a query runner the cursor registry needs
// to see. Runners register themselves for the duration of an operation so
// that invalidation events (drops, deletions) can reach them.
type RegisteredRunner interface {
	ID() uuid.UUID
	NS() string
	Kill(reason string)
}

// CursorRegistry tracks the runners currently open against one collection.
type CursorRegistry struct {
	mu      sync.Mutex
	runners map[uuid.UUID]RegisteredRunner
}

func NewCursorRegistry() *CursorRegistry {
	return &CursorRegistry{
		runners: make(map[uuid.UUID]RegisteredRunner),
	}
}

// Register adds r to the registry. Registering the same runner twice is a
// no-op.
func (reg *CursorRegistry) Register(r RegisteredRunner) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.runners[r.ID()] = r
}

// Deregister removes r from the registry if present.
func (reg *CursorRegistry) Deregister(r RegisteredRunner) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	delete(reg.runners, r.ID())
}

// Size returns the number of registered runners.
func (reg *CursorRegistry) Size() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.runners)
}

// KillAll kills every registered runner, e.g. when the collection is
// dropped. The runners stay registered; their owners deregister them on the
// way out.
func (reg *CursorRegistry) KillAll(reason string) {
	reg.mu.Lock()
	rs := make([]RegisteredRunner, 0, len(reg.runners))
	for _, r := range reg.runners {
		rs = append(rs, r)
	}
	reg.mu.Unlock()
	for _, r := range rs {
		r.Kill(reason)
	}
}

// RunnerRegistration is a scoped registration of a runner with its
// collection's cursor registry. Construction registers, Close deregisters;
// Close must run even on error unwinding. A registration for a runner with
// no collection (an EOF runner) is a no-op.
type RunnerRegistration struct {
	registry *CursorRegistry
	runner   RegisteredRunner
	closed   bool
}

// RegisterRunner binds r to coll's cursor registry. coll may be nil.
func RegisterRunner(coll *Collection, r RegisteredRunner) *RunnerRegistration {
	s := &RunnerRegistration{runner: r}
	if coll != nil {
		s.registry = coll.Registry()
		s.registry.Register(r)
	}
	return s
}

// Close deregisters the runner. Safe to call more than once.
func (s *RunnerRegistration) Close() {
	if s.closed || s.registry == nil {
		s.closed = true
		return
	}
	s.closed = true
	s.registry.Deregister(s.runner)
}
