// Copyright 2024 TernDB Corp. All rights reserved.
package planner

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	tern "github.com/terndb/tern"
	"github.com/terndb/tern/query"
)

// CachedPlanRunner executes a plan recovered from the plan cache. If the
// primary plan fails before producing its first result and a backup plan
// exists, the runner fails over to the backup and evicts the cache entry.
type CachedPlanRunner struct {
	runnerBase
	primary *QuerySolution
	backup  *QuerySolution
	cache   *PlanCache
	ectx    *ExecContext

	iter     RowIterator
	returned int
	onBackup bool
}

func NewCachedPlanRunner(coll *tern.Collection, cq *query.CanonicalQuery, primary, backup *QuerySolution, cache *PlanCache, ectx *ExecContext) *CachedPlanRunner {
	return &CachedPlanRunner{
		runnerBase: newRunnerBase(coll.NS(), coll, cq),
		primary:    primary,
		backup:     backup,
		cache:      cache,
		ectx:       ectx,
	}
}

func (r *CachedPlanRunner) Kind() RunnerKind {
	return RunnerCachedPlan
}

// UsingBackup reports whether the runner failed over.
func (r *CachedPlanRunner) UsingBackup() bool {
	return r.onBackup
}

func (r *CachedPlanRunner) Next(ctx context.Context) (bson.D, error) {
	if err := r.killedErr(); err != nil {
		return nil, err
	}

	row, err := r.nextRow(ctx)
	if err != nil && err != ErrNoMoreRows && !r.onBackup && r.returned == 0 && r.backup != nil {
		// The cached plan went bad before producing anything; run the
		// backup and drop the stale cache entry.
		r.failover()
		row, err = r.nextRow(ctx)
	}
	if err != nil {
		return nil, err
	}
	r.returned++
	return row.Doc, nil
}

func (r *CachedPlanRunner) current() *QuerySolution {
	if r.onBackup {
		return r.backup
	}
	return r.primary
}

func (r *CachedPlanRunner) nextRow(ctx context.Context) (Row, error) {
	if r.iter == nil {
		iter, err := r.current().Root.Iterator(ctx, r.ectx)
		if err != nil {
			return Row{}, err
		}
		r.iter = iter
	}
	return r.iter.Next(ctx)
}

func (r *CachedPlanRunner) failover() {
	r.onBackup = true
	r.iter = nil
	if r.cache != nil && r.cq != nil {
		r.cache.Remove(r.cq)
	}
}

func (r *CachedPlanRunner) Plan() map[string]interface{} {
	if r.onBackup {
		return r.backup.Plan()
	}
	return r.primary.Plan()
}
