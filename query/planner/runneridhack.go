// Copyright 2024 TernDB Corp. All rights reserved.
package planner

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	tern "github.com/terndb/tern"
	"github.com/terndb/tern/query"
)

// IDHackRunner serves a simple _id equality straight off the id index,
// bypassing the planner entirely.
type IDHackRunner struct {
	runnerBase
	key  interface{}
	done bool
}

// NewIDHackRunner builds the runner from a canonicalised query whose
// filter is a simple _id equality.
func NewIDHackRunner(coll *tern.Collection, cq *query.CanonicalQuery) *IDHackRunner {
	key, _ := query.LookupField(cq.Filter(), "_id")
	return &IDHackRunner{
		runnerBase: newRunnerBase(coll.NS(), coll, cq),
		key:        key,
	}
}

// NewIDHackRunnerRaw builds the runner straight from an unparsed query,
// skipping canonicalisation.
func NewIDHackRunnerRaw(coll *tern.Collection, queryObj bson.D) *IDHackRunner {
	key, _ := query.LookupField(queryObj, "_id")
	return &IDHackRunner{
		runnerBase: newRunnerBase(coll.NS(), coll, nil),
		key:        key,
	}
}

func (r *IDHackRunner) Kind() RunnerKind {
	return RunnerIDHack
}

func (r *IDHackRunner) Next(ctx context.Context) (bson.D, error) {
	if err := r.killedErr(); err != nil {
		return nil, err
	}
	if r.done {
		return nil, ErrNoMoreRows
	}
	r.done = true
	doc, found := r.coll.FindByID(r.key)
	if !found {
		return nil, ErrNoMoreRows
	}
	if r.cq != nil && r.cq.Proj() != nil {
		doc = r.cq.Proj().Apply(doc)
	}
	return doc, nil
}

func (r *IDHackRunner) Plan() map[string]interface{} {
	return map[string]interface{}{
		"_op": fmt.Sprintf("%T", r),
		"key": fmt.Sprintf("%v", r.key),
	}
}
