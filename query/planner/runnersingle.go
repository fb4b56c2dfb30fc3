// Copyright 2024 TernDB Corp. All rights reserved.
package planner

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	tern "github.com/terndb/tern"
	"github.com/terndb/tern/query"
)

// SingleSolutionRunner executes the only plan the planner produced (or the
// one the selector reduced the choice to). It owns the solution.
type SingleSolutionRunner struct {
	runnerBase
	soln *QuerySolution
	ectx *ExecContext
	iter RowIterator
}

func NewSingleSolutionRunner(coll *tern.Collection, cq *query.CanonicalQuery, soln *QuerySolution, ectx *ExecContext) *SingleSolutionRunner {
	return &SingleSolutionRunner{
		runnerBase: newRunnerBase(coll.NS(), coll, cq),
		soln:       soln,
		ectx:       ectx,
	}
}

func (r *SingleSolutionRunner) Kind() RunnerKind {
	return RunnerSingleSolution
}

func (r *SingleSolutionRunner) Next(ctx context.Context) (bson.D, error) {
	if err := r.killedErr(); err != nil {
		return nil, err
	}
	if r.iter == nil {
		iter, err := r.soln.Root.Iterator(ctx, r.ectx)
		if err != nil {
			return nil, err
		}
		r.iter = iter
	}
	row, err := r.iter.Next(ctx)
	if err != nil {
		return nil, err
	}
	return row.Doc, nil
}

func (r *SingleSolutionRunner) Plan() map[string]interface{} {
	return r.soln.Plan()
}

// Solution exposes the owned solution for inspection.
func (r *SingleSolutionRunner) Solution() *QuerySolution {
	return r.soln
}
