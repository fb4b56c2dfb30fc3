// Copyright 2024 TernDB Corp. All rights reserved.
package planner

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"go.mongodb.org/mongo-driver/bson"

	tern "github.com/terndb/tern"
	"github.com/terndb/tern/query"
)

// cachedPlan is the shape-level description of one winning plan: which
// index drove it, or a collection scan. Constants are not cached; the
// gateway rebuilds the solution for each query's own bounds.
type cachedPlan struct {
	IndexName  string
	KeyPattern bson.D
	CollScan   bool
}

// CachedSolution is one plan cache entry: the winning plan for a query
// shape plus, when a race produced one, the runner-up kept as a backup.
type CachedSolution struct {
	Key     string
	Primary cachedPlan
	Backup  *cachedPlan
}

// PlanCache memoises winning plans per query shape for one collection.
type PlanCache struct {
	entries *lru.Cache[string, *CachedSolution]
	stats   tern.StatsClient
}

func NewPlanCache(size int, stats tern.StatsClient) *PlanCache {
	if size <= 0 {
		size = tern.DefaultPlanCacheSize
	}
	if stats == nil {
		stats = tern.NopStatsClient
	}
	entries, err := lru.New[string, *CachedSolution](size)
	if err != nil {
		// lru.New only fails on a non-positive size.
		panic(err)
	}
	return &PlanCache{entries: entries, stats: stats}
}

// ShouldCache reports whether the query's shape is worth caching. Trivial
// and unshaped queries never enter the cache.
func (pc *PlanCache) ShouldCache(cq *query.CanonicalQuery) bool {
	if cq.Parsed().Explain || cq.Parsed().Tailable {
		return false
	}
	if cq.IsEmptyQuery() {
		return false
	}
	if query.IsSimpleIDQuery(cq.Filter()) {
		return false
	}
	return true
}

// Get looks up the cached solution for the query's shape.
func (pc *PlanCache) Get(cq *query.CanonicalQuery) (*CachedSolution, bool) {
	cs, ok := pc.entries.Get(cq.ShapeKey())
	if ok {
		pc.stats.Count("plan_cache_hits", 1)
	} else {
		pc.stats.Count("plan_cache_misses", 1)
	}
	return cs, ok
}

// Put records the winner (and optional runner-up) for the query's shape.
func (pc *PlanCache) Put(cq *query.CanonicalQuery, primary, backup *QuerySolution) {
	cs := &CachedSolution{
		Key:     cq.ShapeKey(),
		Primary: describeSolution(primary),
	}
	if backup != nil {
		b := describeSolution(backup)
		cs.Backup = &b
	}
	pc.entries.Add(cs.Key, cs)
}

// Remove evicts the entry for the query's shape, e.g. after a cached plan
// failed over to its backup.
func (pc *PlanCache) Remove(cq *query.CanonicalQuery) {
	pc.entries.Remove(cq.ShapeKey())
}

// Clear drops every entry.
func (pc *PlanCache) Clear() {
	pc.entries.Purge()
}

// Size returns the number of cached shapes.
func (pc *PlanCache) Size() int {
	return pc.entries.Len()
}

// describeSolution reduces a solution tree to its cacheable shape: the
// index its scan uses, or a collection scan.
func describeSolution(soln *QuerySolution) cachedPlan {
	var plan cachedPlan
	plan.CollScan = true
	InspectNode(soln.Root, func(n Node) bool {
		var entry *IndexEntry
		switch tn := n.(type) {
		case *IndexScanNode:
			entry = &tn.Index
		case *CountNode:
			entry = &tn.Index
		case *DistinctScanNode:
			entry = &tn.Index
		default:
			return true
		}
		plan = cachedPlan{IndexName: entry.Name, KeyPattern: entry.KeyPattern}
		return false
	})
	return plan
}

// PlanFromCache hydrates runnable solutions from a cache entry by
// replanning against the current query's constants, restricted to the
// cached plan's index. A non-nil error means the entry is stale; the
// caller falls through to full planning.
func PlanFromCache(cq *query.CanonicalQuery, params *PlannerParams, cs *CachedSolution) (*QuerySolution, *QuerySolution, error) {
	primary, err := solutionFromCachedPlan(cq, params, cs.Primary)
	if err != nil {
		return nil, nil, err
	}
	var backup *QuerySolution
	if cs.Backup != nil {
		backup, err = solutionFromCachedPlan(cq, params, *cs.Backup)
		if err != nil {
			return nil, nil, err
		}
	}
	return primary, backup, nil
}

func solutionFromCachedPlan(cq *query.CanonicalQuery, params *PlannerParams, plan cachedPlan) (*QuerySolution, error) {
	sortSpec := effectiveSort(cq)
	if plan.CollScan {
		if params.Options&OptionIncludeCollscan == 0 {
			return nil, query.NewErrInternalf("cached collection scan plan forbidden by current options")
		}
		return buildCollScanSolution(cq, params, sortSpec), nil
	}
	for _, entry := range params.Indices {
		if entry.Name == plan.IndexName && KeyPatternsEqual(entry.KeyPattern, plan.KeyPattern) {
			return buildIndexedSolution(cq, params, entry, collectPredicates(cq.Root()), sortSpec), nil
		}
	}
	return nil, query.NewErrInternalf("cached plan references missing index %s", plan.IndexName)
}
