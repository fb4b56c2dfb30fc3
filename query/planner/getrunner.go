// Copyright 2024 TernDB Corp. All rights reserved.
package planner

import (
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	tern "github.com/terndb/tern"
	"github.com/terndb/tern/logger"
	"github.com/terndb/tern/query"
)

// Selector picks a runner for each query: EOF for a missing collection,
// the id hack for trivial _id lookups, a cached plan when the plan cache
// has one, a single solution when planning leaves no choice, and a
// multi-plan race otherwise.
type Selector struct {
	logger   logger.Logger
	stats    tern.StatsClient
	settings tern.EngineSettings
	sharding *tern.ShardingState

	mu     sync.Mutex
	caches map[string]*PlanCache
}

// SelectorOption is a functional option for NewSelector.
type SelectorOption func(s *Selector)

func OptSelectorLogger(l logger.Logger) SelectorOption {
	return func(s *Selector) { s.logger = l }
}

func OptSelectorStats(c tern.StatsClient) SelectorOption {
	return func(s *Selector) { s.stats = c }
}

func OptSelectorSettings(es tern.EngineSettings) SelectorOption {
	return func(s *Selector) { s.settings = es }
}

func OptSelectorSharding(ss *tern.ShardingState) SelectorOption {
	return func(s *Selector) { s.sharding = ss }
}

func NewSelector(opts ...SelectorOption) *Selector {
	s := &Selector{
		logger: logger.NopLogger,
		stats:  tern.NopStatsClient,
		caches: make(map[string]*PlanCache),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PlanCacheFor returns the plan cache of a namespace, creating it on first
// use.
func (s *Selector) PlanCacheFor(ns string) *PlanCache {
	s.mu.Lock()
	defer s.mu.Unlock()
	pc, ok := s.caches[ns]
	if !ok {
		pc = NewPlanCache(s.settings.PlanCacheSize, s.stats)
		s.caches[ns] = pc
	}
	return pc
}

func (s *Selector) execContext(coll *tern.Collection) *ExecContext {
	return &ExecContext{
		Coll:     coll,
		Metadata: s.sharding.GetCollectionMetadata(coll.NS()),
	}
}

func (s *Selector) countRunner(kind RunnerKind) {
	s.stats.Count("runners_"+strings.ToLower(kind.String()), 1)
}

// canUseIDHack gates the planner bypass for trivial _id lookups.
func canUseIDHack(cq *query.CanonicalQuery) bool {
	return !cq.Parsed().Explain &&
		!cq.Parsed().ShowDiskLoc &&
		!cq.Parsed().Tailable &&
		query.IsSimpleIDQuery(cq.Filter())
}

// GetRunner selects a runner for an already-canonicalised query. The
// canonical query's ownership transfers into the returned runner.
func (s *Selector) GetRunner(coll *tern.Collection, cq *query.CanonicalQuery, opts Options) (Runner, error) {
	// This can happen as we're called by internal clients as well.
	if coll == nil {
		s.countRunner(RunnerEOF)
		return NewEOFRunner(cq, cq.NS()), nil
	}

	// If we have an _id index we can use the id hack runner.
	if canUseIDHack(cq) && coll.Catalog().FindIDIndex() != nil {
		s.countRunner(RunnerIDHack)
		return NewIDHackRunner(coll, cq), nil
	}

	params, err := BuildPlannerParams(coll, cq, opts, s.settings, s.sharding)
	if err != nil {
		return nil, err
	}

	// Try to look up a cached solution for the query.
	cache := s.PlanCacheFor(cq.NS())
	if cache.ShouldCache(cq) {
		if cs, ok := cache.Get(cq); ok {
			if runner, ok := s.runnerFromCache(coll, cq, opts, params, cache, cs); ok {
				return runner, nil
			}
			// Hydration failed; fall through to full planning.
			s.logger.Debugf("discarding stale cached plan for shape %s", cq.ShapeKey())
		}
	}

	start := time.Now()
	solutions, err := Plan(cq, params)
	s.stats.Timing("planning_duration", time.Since(start))
	if err != nil {
		return nil, query.NewErrBadValue("error processing query: %s planner returned error: %s", cq, err)
	}

	// We cannot figure out how to answer the query. Should this ever
	// happen?
	if len(solutions) == 0 {
		return nil, query.NewErrBadValue("No query solutions")
	}

	ectx := s.execContext(coll)

	// A count can often skip fetching entirely; take the first solution
	// the key-interval rewrite accepts. Count plans never enter the
	// cache.
	if opts&OptionPrivateIsCount != 0 {
		for _, soln := range solutions {
			if TurnIxscanIntoCount(soln) {
				s.countRunner(RunnerSingleSolution)
				return NewSingleSolutionRunner(coll, cq, soln, ectx), nil
			}
		}
	}

	if len(solutions) == 1 {
		// Only one possible plan. Run it.
		s.countRunner(RunnerSingleSolution)
		return NewSingleSolutionRunner(coll, cq, solutions[0], ectx), nil
	}

	// A limited sorted query prefers a plan that reads its order off an
	// index over finding out which plan races best.
	if cq.Parsed().Limit > 0 && len(cq.Sort()) > 0 {
		for _, soln := range solutions {
			if !soln.HasBlockingSort() {
				s.countRunner(RunnerSingleSolution)
				return NewSingleSolutionRunner(coll, cq, soln, ectx), nil
			}
		}
	}

	// Many solutions. Let the multi plan runner pick the best, update the
	// cache, and so on.
	var cacheForRace *PlanCache
	if cache.ShouldCache(cq) {
		cacheForRace = cache
	}
	s.countRunner(RunnerMultiPlan)
	return NewMultiPlanRunner(coll, cq, solutions, cacheForRace, ectx, s.logger), nil
}

// runnerFromCache applies the cached plan policy. The second return is
// false when the entry could not be hydrated.
func (s *Selector) runnerFromCache(
	coll *tern.Collection,
	cq *query.CanonicalQuery,
	opts Options,
	params *PlannerParams,
	cache *PlanCache,
	cs *CachedSolution,
) (Runner, bool) {
	primary, backup, err := PlanFromCache(cq, params, cs)
	if err != nil {
		return nil, false
	}

	ectx := s.execContext(coll)

	// Historical compatibility: a limited sorted query runs the backup
	// plan directly rather than trusting a primary that may sort in
	// memory.
	if backup != nil && cq.Parsed().Limit > 0 && len(cq.Sort()) > 0 {
		s.countRunner(RunnerSingleSolution)
		return NewSingleSolutionRunner(coll, cq, backup, ectx), true
	}

	if opts&OptionPrivateIsCount != 0 && TurnIxscanIntoCount(primary) {
		s.countRunner(RunnerSingleSolution)
		return NewSingleSolutionRunner(coll, cq, primary, ectx), true
	}

	s.countRunner(RunnerCachedPlan)
	return NewCachedPlanRunner(coll, cq, primary, backup, cache, ectx), true
}

// GetRunnerUnparsed selects a runner for a query that has not been
// canonicalised yet. A simple _id lookup skips canonicalisation entirely,
// in which case the returned canonical query is nil.
func (s *Selector) GetRunnerUnparsed(coll *tern.Collection, ns string, queryObj bson.D, opts Options) (*query.CanonicalQuery, Runner, error) {
	if coll != nil && query.IsSimpleIDQuery(queryObj) && coll.Catalog().FindIDIndex() != nil {
		s.countRunner(RunnerIDHack)
		return nil, NewIDHackRunnerRaw(coll, queryObj), nil
	}

	cq, err := query.Canonicalize(&query.LiteParsedQuery{NS: ns, Filter: queryObj})
	if err != nil {
		return nil, nil, err
	}
	runner, err := s.GetRunner(coll, cq, opts)
	if err != nil {
		return nil, nil, err
	}
	return cq, runner, nil
}

// GetRunnerCount selects a runner for a count operation. The chosen plan
// may collapse into a key-interval count.
func (s *Selector) GetRunnerCount(coll *tern.Collection, queryObj, hintObj bson.D) (Runner, error) {
	cq, err := query.Canonicalize(&query.LiteParsedQuery{
		NS:     coll.NS(),
		Filter: queryObj,
		Hint:   hintObj,
	})
	if err != nil {
		return nil, err
	}
	return s.GetRunner(coll, cq, OptionPrivateIsCount)
}

// GetRunnerDistinct selects a runner for a distinct operation over field.
// It runs a restricted planning cycle whose only candidate indexes lead
// with the field; when none fits, it falls back to the normal entry point.
func (s *Selector) GetRunnerDistinct(coll *tern.Collection, queryObj bson.D, field string) (Runner, error) {
	// Synthesise a projection that keeps only the distinct field, so the
	// planner can produce a covered plan the distinct rewrite accepts.
	var proj bson.D
	if field == "_id" {
		proj = bson.D{{Key: "_id", Value: 1}}
	} else {
		proj = bson.D{{Key: "_id", Value: 0}, {Key: field, Value: 1}}
	}

	cq, err := query.Canonicalize(&query.LiteParsedQuery{
		NS:         coll.NS(),
		Filter:     queryObj,
		Projection: proj,
	})
	if err != nil {
		return nil, err
	}

	params, err := BuildPlannerParams(coll, cq, 0, s.settings, s.sharding)
	if err != nil {
		return nil, err
	}

	// Only indexes leading with the field can drive a distinct scan.
	restricted := params.Indices[:0]
	for _, entry := range params.Indices {
		if entry.NumFields() > 0 && entry.KeyPattern[0].Key == field {
			restricted = append(restricted, entry)
		}
	}
	params.Indices = restricted

	if len(params.Indices) == 0 {
		return s.getRunnerPlain(coll, queryObj)
	}

	ectx := s.execContext(coll)

	// An empty query wants every distinct value; scan the smallest
	// ordinary index leading with the field.
	if cq.IsEmptyQuery() {
		if entry := distinctShortcutIndex(params.Indices); entry != nil {
			fieldNo := entry.FieldPosition(field)
			if fieldNo < 0 {
				fieldNo = 0
			}
			soln := &QuerySolution{
				Root:      NewDistinctScanNode(*entry, 1, AllValuesBounds(entry.KeyPattern, entry.Directions()), fieldNo),
				CacheData: &SolutionCacheData{IndexFiltersApplied: params.IndexFiltersApplied},
			}
			s.countRunner(RunnerSingleSolution)
			return NewSingleSolutionRunner(coll, cq, soln, ectx), nil
		}
	}

	solutions, err := Plan(cq, params)
	if err != nil || len(solutions) == 0 {
		return s.getRunnerPlain(coll, queryObj)
	}

	// The first solution the rewrite accepts wins; the rest are dropped.
	for _, soln := range solutions {
		if TurnIxscanIntoDistinct(soln, field) {
			s.countRunner(RunnerSingleSolution)
			return NewSingleSolutionRunner(coll, cq, soln, ectx), nil
		}
	}

	return s.getRunnerPlain(coll, queryObj)
}

// getRunnerPlain is the distinct fallback: a fresh canonicalisation with
// no synthesised projection through the normal entry point.
func (s *Selector) getRunnerPlain(coll *tern.Collection, queryObj bson.D) (Runner, error) {
	cq, err := query.Canonicalize(&query.LiteParsedQuery{NS: coll.NS(), Filter: queryObj})
	if err != nil {
		return nil, err
	}
	return s.GetRunner(coll, cq, 0)
}
