// Copyright 2024 TernDB Corp. All rights reserved.
package planner

import (
	"context"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"golang.org/x/sync/errgroup"

	tern "github.com/terndb/tern"
	"github.com/terndb/tern/logger"
	"github.com/terndb/tern/query"
)

// trialWorkLimit is how many results each candidate may produce during the
// trial period before the race is called.
const trialWorkLimit = 101

// MultiPlanRunner owns every candidate solution the planner produced,
// races them, keeps the winner and reports it to the plan cache.
type MultiPlanRunner struct {
	runnerBase
	candidates []*QuerySolution
	cache      *PlanCache
	ectx       *ExecContext
	logger     logger.Logger

	picked   bool
	winner   int
	buffered []Row
	pos      int
	iter     RowIterator
	eof      bool
}

func NewMultiPlanRunner(coll *tern.Collection, cq *query.CanonicalQuery, candidates []*QuerySolution, cache *PlanCache, ectx *ExecContext, log logger.Logger) *MultiPlanRunner {
	if log == nil {
		log = logger.NopLogger
	}
	return &MultiPlanRunner{
		runnerBase: newRunnerBase(coll.NS(), coll, cq),
		candidates: candidates,
		cache:      cache,
		ectx:       ectx,
		logger:     log,
	}
}

func (r *MultiPlanRunner) Kind() RunnerKind {
	return RunnerMultiPlan
}

// Solutions exposes the owned candidates for inspection.
func (r *MultiPlanRunner) Solutions() []*QuerySolution {
	return r.candidates
}

// Winner returns the index of the winning candidate; valid once the race
// has run.
func (r *MultiPlanRunner) Winner() int {
	return r.winner
}

func (r *MultiPlanRunner) Next(ctx context.Context) (bson.D, error) {
	if err := r.killedErr(); err != nil {
		return nil, err
	}
	if !r.picked {
		if err := r.pickBestPlan(ctx); err != nil {
			return nil, err
		}
	}
	if r.pos < len(r.buffered) {
		row := r.buffered[r.pos]
		r.pos++
		return row.Doc, nil
	}
	if r.eof {
		return nil, ErrNoMoreRows
	}
	row, err := r.iter.Next(ctx)
	if err != nil {
		return nil, err
	}
	return row.Doc, nil
}

type trialResult struct {
	rows []Row
	eof  bool
	err  error
	iter RowIterator
}

// pickBestPlan runs every candidate for a bounded trial period and keeps
// the most productive one. The trial's output is replayed before the
// winner's iterator continues.
func (r *MultiPlanRunner) pickBestPlan(ctx context.Context) error {
	results := make([]trialResult, len(r.candidates))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for i := range r.candidates {
		i := i
		g.Go(func() error {
			res := trialResult{}
			iter, err := r.candidates[i].Root.Iterator(gctx, r.ectx)
			if err != nil {
				res.err = err
			} else {
				res.iter = iter
				for len(res.rows) < trialWorkLimit {
					row, err := iter.Next(gctx)
					if err == ErrNoMoreRows {
						res.eof = true
						break
					}
					if err != nil {
						res.err = err
						break
					}
					res.rows = append(res.rows, row)
				}
			}
			mu.Lock()
			results[i] = res
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Rank by productivity: most rows wins, an early EOF breaks ties,
	// earlier candidates win remaining ties.
	best := -1
	for i, res := range results {
		if res.err != nil {
			continue
		}
		if best < 0 {
			best = i
			continue
		}
		switch {
		case len(res.rows) > len(results[best].rows):
			best = i
		case len(res.rows) == len(results[best].rows) && res.eof && !results[best].eof:
			best = i
		}
	}
	if best < 0 {
		// Every candidate failed; surface the first failure.
		for _, res := range results {
			if res.err != nil {
				return res.err
			}
		}
		return query.NewErrInternalf("no candidate plans survived the trial")
	}

	r.picked = true
	r.winner = best
	r.buffered = results[best].rows
	r.iter = results[best].iter
	r.eof = results[best].eof
	r.logger.Debugf("multi plan race over %d candidates picked plan %d (%d rows, eof=%v)",
		len(r.candidates), best, len(r.buffered), r.eof)

	// Report the winner, with the loser that produced the most rows
	// (earliest candidate on ties) as a backup plan.
	if r.cache != nil && r.cq != nil {
		runnerUp := -1
		for i, res := range results {
			if i == best || res.err != nil {
				continue
			}
			if runnerUp < 0 || len(res.rows) > len(results[runnerUp].rows) {
				runnerUp = i
			}
		}
		var backup *QuerySolution
		if runnerUp >= 0 {
			backup = r.candidates[runnerUp]
		}
		r.cache.Put(r.cq, r.candidates[best], backup)
	}
	return nil
}

func (r *MultiPlanRunner) Plan() map[string]interface{} {
	if r.picked {
		return r.candidates[r.winner].Plan()
	}
	plans := make([]interface{}, 0, len(r.candidates))
	for _, c := range r.candidates {
		plans = append(plans, c.Plan())
	}
	return map[string]interface{}{
		"_op":        "MultiPlan",
		"candidates": plans,
	}
}
