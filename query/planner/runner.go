// Copyright 2024 TernDB Corp. All rights reserved.
package planner

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"

	tern "github.com/terndb/tern"
	"github.com/terndb/tern/errors"
	"github.com/terndb/tern/query"
)

const (
	ErrRunnerKilled errors.Code = "ErrRunnerKilled"
)

// RunnerKind names the runner variants.
type RunnerKind int

const (
	RunnerEOF RunnerKind = iota
	RunnerIDHack
	RunnerSingleSolution
	RunnerCachedPlan
	RunnerMultiPlan
)

func (k RunnerKind) String() string {
	switch k {
	case RunnerEOF:
		return "EOF"
	case RunnerIDHack:
		return "IDHACK"
	case RunnerSingleSolution:
		return "SINGLE_SOLUTION"
	case RunnerCachedPlan:
		return "CACHED_PLAN"
	case RunnerMultiPlan:
		return "MULTI_PLAN"
	}
	return "<unknown>"
}

// Runner executes one selected plan. It owns its canonical query and its
// solution tree(s); those transfer in at construction and nothing else
// holds them afterwards.
type Runner interface {
	ID() uuid.UUID
	NS() string
	Kind() RunnerKind
	CanonicalQuery() *query.CanonicalQuery
	Collection() *tern.Collection

	// Next returns the next result document, or ErrNoMoreRows.
	Next(ctx context.Context) (bson.D, error)

	// Kill stops the runner; subsequent Next calls fail.
	Kill(reason string)

	// Plan describes the plan this runner executes.
	Plan() map[string]interface{}
}

// Every runner can be held by a cursor registry.
var (
	_ tern.RegisteredRunner = (Runner)(nil)
)

// runnerBase carries the state common to all runner variants.
type runnerBase struct {
	id   uuid.UUID
	ns   string
	coll *tern.Collection
	cq   *query.CanonicalQuery

	mu         sync.Mutex
	killed     bool
	killReason string
}

func newRunnerBase(ns string, coll *tern.Collection, cq *query.CanonicalQuery) runnerBase {
	return runnerBase{
		id:   uuid.New(),
		ns:   ns,
		coll: coll,
		cq:   cq,
	}
}

func (b *runnerBase) ID() uuid.UUID                         { return b.id }
func (b *runnerBase) NS() string                            { return b.ns }
func (b *runnerBase) CanonicalQuery() *query.CanonicalQuery { return b.cq }
func (b *runnerBase) Collection() *tern.Collection          { return b.coll }

func (b *runnerBase) Kill(reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.killed = true
	b.killReason = reason
}

func (b *runnerBase) killedErr() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.killed {
		return errors.Newf(ErrRunnerKilled, "runner killed: %s", b.killReason)
	}
	return nil
}
