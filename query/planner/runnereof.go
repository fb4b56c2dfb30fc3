// Copyright 2024 TernDB Corp. All rights reserved.
package planner

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/terndb/tern/query"
)

// EOFRunner serves queries against a collection that does not exist: it
// returns no results, and holds no collection.
type EOFRunner struct {
	runnerBase
}

func NewEOFRunner(cq *query.CanonicalQuery, ns string) *EOFRunner {
	return &EOFRunner{
		runnerBase: newRunnerBase(ns, nil, cq),
	}
}

func (r *EOFRunner) Kind() RunnerKind {
	return RunnerEOF
}

func (r *EOFRunner) Next(ctx context.Context) (bson.D, error) {
	if err := r.killedErr(); err != nil {
		return nil, err
	}
	return nil, ErrNoMoreRows
}

func (r *EOFRunner) Plan() map[string]interface{} {
	return map[string]interface{}{
		"_op": fmt.Sprintf("%T", r),
		"ns":  r.ns,
	}
}
