// Copyright 2024 TernDB Corp. All rights reserved.
package planner_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	tern "github.com/terndb/tern"
	"github.com/terndb/tern/errors"
	"github.com/terndb/tern/query"
	"github.com/terndb/tern/query/planner"
)

func indexName(pattern bson.D) string {
	name := ""
	for i, elem := range pattern {
		if i > 0 {
			name += "_"
		}
		name += fmt.Sprintf("%s_%v", elem.Key, elem.Value)
	}
	return name
}

func newTestCollection(t *testing.T, ns string, patterns ...bson.D) *tern.Collection {
	t.Helper()
	coll := tern.NewCollection(ns)
	for _, pattern := range patterns {
		err := coll.Catalog().AddIndex(&tern.IndexDescriptor{
			Name:       indexName(pattern),
			KeyPattern: pattern,
		})
		require.NoError(t, err)
	}
	return coll
}

func idIndex() bson.D {
	return bson.D{{Key: "_id", Value: 1}}
}

func canonicalize(t *testing.T, lpq *query.LiteParsedQuery) *query.CanonicalQuery {
	t.Helper()
	cq, err := query.Canonicalize(lpq)
	require.NoError(t, err)
	return cq
}

func drainRunner(t *testing.T, r planner.Runner) []bson.D {
	t.Helper()
	var docs []bson.D
	for {
		doc, err := r.Next(context.Background())
		if err == planner.ErrNoMoreRows {
			return docs
		}
		require.NoError(t, err)
		docs = append(docs, doc)
	}
}

func TestGetRunner_CollectionAbsent(t *testing.T) {
	s := planner.NewSelector()
	cq := canonicalize(t, &query.LiteParsedQuery{
		NS:     "t.c",
		Filter: bson.D{{Key: "a", Value: 1}},
	})

	r, err := s.GetRunner(nil, cq, 0)
	require.NoError(t, err)
	assert.Equal(t, planner.RunnerEOF, r.Kind())
	assert.Equal(t, "t.c", r.NS())
	assert.Nil(t, r.Collection())
	assert.Empty(t, drainRunner(t, r))
}

func TestGetRunner_IDHack(t *testing.T) {
	coll := newTestCollection(t, "test.users", idIndex())
	require.NoError(t, coll.Insert(
		bson.D{{Key: "_id", Value: 41}, {Key: "name", Value: "ana"}},
		bson.D{{Key: "_id", Value: 42}, {Key: "name", Value: "bob"}},
	))
	s := planner.NewSelector()

	t.Run("SimpleEquality", func(t *testing.T) {
		cq := canonicalize(t, &query.LiteParsedQuery{
			NS:     "test.users",
			Filter: bson.D{{Key: "_id", Value: 42}},
		})
		r, err := s.GetRunner(coll, cq, 0)
		require.NoError(t, err)
		assert.Equal(t, planner.RunnerIDHack, r.Kind())

		docs := drainRunner(t, r)
		require.Len(t, docs, 1)
		name, _ := query.LookupField(docs[0], "name")
		assert.Equal(t, "bob", name)
	})

	t.Run("ExplainDisablesIDHack", func(t *testing.T) {
		cq := canonicalize(t, &query.LiteParsedQuery{
			NS:      "test.users",
			Filter:  bson.D{{Key: "_id", Value: 42}},
			Explain: true,
		})
		r, err := s.GetRunner(coll, cq, 0)
		require.NoError(t, err)
		assert.NotEqual(t, planner.RunnerIDHack, r.Kind())
	})

	t.Run("NoIDIndexPlansNormally", func(t *testing.T) {
		bare := tern.NewCollection("test.bare")
		cq := canonicalize(t, &query.LiteParsedQuery{
			NS:     "test.bare",
			Filter: bson.D{{Key: "_id", Value: 1}},
		})
		r, err := s.GetRunner(bare, cq, 0)
		require.NoError(t, err)
		assert.NotEqual(t, planner.RunnerIDHack, r.Kind())
	})
}

func TestGetRunnerUnparsed(t *testing.T) {
	coll := newTestCollection(t, "test.users", idIndex())
	require.NoError(t, coll.Insert(bson.D{{Key: "_id", Value: 7}, {Key: "v", Value: "x"}}))
	s := planner.NewSelector()

	t.Run("SimpleIDSkipsCanonicalisation", func(t *testing.T) {
		cq, r, err := s.GetRunnerUnparsed(coll, "test.users", bson.D{{Key: "_id", Value: 7}}, 0)
		require.NoError(t, err)
		assert.Nil(t, cq)
		assert.Equal(t, planner.RunnerIDHack, r.Kind())
		assert.Len(t, drainRunner(t, r), 1)
	})

	t.Run("OtherQueriesCanonicalise", func(t *testing.T) {
		cq, r, err := s.GetRunnerUnparsed(coll, "test.users", bson.D{{Key: "v", Value: "x"}}, 0)
		require.NoError(t, err)
		require.NotNil(t, cq)
		assert.NotEqual(t, planner.RunnerIDHack, r.Kind())
		assert.Len(t, drainRunner(t, r), 1)
	})
}

func TestGetRunnerCount_KeyIntervalRewrite(t *testing.T) {
	coll := newTestCollection(t, "test.nums",
		idIndex(),
		bson.D{{Key: "a", Value: 1}},
		bson.D{{Key: "a", Value: 1}, {Key: "b", Value: 1}},
	)
	require.NoError(t, coll.Insert(
		bson.D{{Key: "_id", Value: 1}, {Key: "a", Value: 3}},
		bson.D{{Key: "_id", Value: 2}, {Key: "a", Value: 6}},
		bson.D{{Key: "_id", Value: 3}, {Key: "a", Value: 8}},
		bson.D{{Key: "_id", Value: 4}},
	))
	s := planner.NewSelector()

	r, err := s.GetRunnerCount(coll, bson.D{{Key: "a", Value: bson.D{{Key: "$gt", Value: 5}}}}, nil)
	require.NoError(t, err)
	require.Equal(t, planner.RunnerSingleSolution, r.Kind())

	single := r.(*planner.SingleSolutionRunner)
	count, ok := single.Solution().Root.(*planner.CountNode)
	require.True(t, ok, "expected the count rewrite to fire, got %v", single.Plan())
	if diff := cmp.Diff(bson.D{{Key: "", Value: 5}}, count.StartKey); diff != "" {
		t.Fatal(diff)
	}
	assert.False(t, count.StartInclusive)
	if diff := cmp.Diff(bson.D{{Key: "", Value: primitive.MaxKey{}}}, count.EndKey); diff != "" {
		t.Fatal(diff)
	}
	assert.True(t, count.EndInclusive)

	docs := drainRunner(t, r)
	require.Len(t, docs, 1)
	n, _ := query.LookupField(docs[0], "n")
	assert.Equal(t, 2, n)
}

func TestGetRunnerDistinct(t *testing.T) {
	coll := newTestCollection(t, "test.shapes",
		idIndex(),
		bson.D{{Key: "x", Value: 1}},
		bson.D{{Key: "x", Value: 1}, {Key: "y", Value: 1}},
	)
	require.NoError(t, coll.Insert(
		bson.D{{Key: "_id", Value: 1}, {Key: "x", Value: 1}, {Key: "y", Value: "p"}},
		bson.D{{Key: "_id", Value: 2}, {Key: "x", Value: 1}, {Key: "y", Value: "q"}},
		bson.D{{Key: "_id", Value: 3}, {Key: "x", Value: 2}, {Key: "y", Value: "p"}},
		bson.D{{Key: "_id", Value: 4}, {Key: "x", Value: 9}, {Key: "y", Value: "r"}},
	))
	s := planner.NewSelector()

	t.Run("EmptyQueryShortcut", func(t *testing.T) {
		r, err := s.GetRunnerDistinct(coll, bson.D{}, "x")
		require.NoError(t, err)
		require.Equal(t, planner.RunnerSingleSolution, r.Kind())

		single := r.(*planner.SingleSolutionRunner)
		distinct, ok := single.Solution().Root.(*planner.DistinctScanNode)
		require.True(t, ok, "expected a bare distinct scan, got %v", single.Plan())
		// Fewest key fields wins.
		assert.Equal(t, "x_1", distinct.Index.Name)
		assert.Equal(t, 0, distinct.FieldNo)

		var values []interface{}
		for _, doc := range drainRunner(t, r) {
			v, _ := query.LookupField(doc, "x")
			values = append(values, v)
		}
		if diff := cmp.Diff([]interface{}{1, 2, 9}, values); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("FilteredQueryRewrites", func(t *testing.T) {
		r, err := s.GetRunnerDistinct(coll, bson.D{{Key: "x", Value: bson.D{{Key: "$gt", Value: 1}}}}, "x")
		require.NoError(t, err)
		require.Equal(t, planner.RunnerSingleSolution, r.Kind())

		single := r.(*planner.SingleSolutionRunner)
		proj, ok := single.Solution().Root.(*planner.ProjectionNode)
		require.True(t, ok, "projection parent must survive the rewrite, got %v", single.Plan())
		_, ok = proj.ChildOp.(*planner.DistinctScanNode)
		require.True(t, ok)

		docs := drainRunner(t, r)
		if diff := cmp.Diff([]bson.D{
			{{Key: "x", Value: 2}},
			{{Key: "x", Value: 9}},
		}, docs); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("NoLeadingIndexFallsBack", func(t *testing.T) {
		r, err := s.GetRunnerDistinct(coll, bson.D{}, "y")
		require.NoError(t, err)
		// y only appears as a later key pattern component, so the
		// restricted cycle finds nothing and the normal entry serves the
		// query.
		_, isDistinct := r.(*planner.SingleSolutionRunner)
		if isDistinct {
			_, bare := r.(*planner.SingleSolutionRunner).Solution().Root.(*planner.DistinctScanNode)
			assert.False(t, bare)
		}
		assert.Len(t, drainRunner(t, r), 4)
	})
}

func TestGetRunner_TailableCursor(t *testing.T) {
	s := planner.NewSelector()

	t.Run("NonCappedRejected", func(t *testing.T) {
		coll := newTestCollection(t, "test.plain")
		cq := canonicalize(t, &query.LiteParsedQuery{
			NS:       "test.plain",
			Filter:   bson.D{{Key: "a", Value: 1}},
			Tailable: true,
		})
		_, err := s.GetRunner(coll, cq, 0)
		require.Error(t, err)
		assert.True(t, errors.Is(err, query.ErrBadValue))
	})

	t.Run("CappedWithEmptySort", func(t *testing.T) {
		coll := tern.NewCollection("test.capped", tern.OptCollectionCapped())
		cq := canonicalize(t, &query.LiteParsedQuery{
			NS:       "test.capped",
			Tailable: true,
		})
		r, err := s.GetRunner(coll, cq, 0)
		require.NoError(t, err)
		assert.NotNil(t, r)
	})

	t.Run("CappedWithReverseNaturalSortRejected", func(t *testing.T) {
		coll := tern.NewCollection("test.capped", tern.OptCollectionCapped())
		cq := canonicalize(t, &query.LiteParsedQuery{
			NS:       "test.capped",
			Tailable: true,
			Sort:     bson.D{{Key: "$natural", Value: -1}},
		})
		_, err := s.GetRunner(coll, cq, 0)
		require.Error(t, err)
		assert.True(t, errors.Is(err, query.ErrBadValue))
	})
}

func TestGetRunner_NoTableScan(t *testing.T) {
	settings := tern.EngineSettings{NoTableScan: true}

	t.Run("NoUsableIndexMeansNoSolutions", func(t *testing.T) {
		coll := newTestCollection(t, "test.plain", idIndex())
		s := planner.NewSelector(planner.OptSelectorSettings(settings))
		cq := canonicalize(t, &query.LiteParsedQuery{
			NS:     "test.plain",
			Filter: bson.D{{Key: "a", Value: 1}},
		})
		_, err := s.GetRunner(coll, cq, 0)
		require.Error(t, err)
		assert.True(t, errors.Is(err, query.ErrBadValue))
	})

	t.Run("LocalDatabaseExempt", func(t *testing.T) {
		coll := newTestCollection(t, "local.oplog")
		s := planner.NewSelector(planner.OptSelectorSettings(settings))
		cq := canonicalize(t, &query.LiteParsedQuery{
			NS:     "local.oplog",
			Filter: bson.D{{Key: "a", Value: 1}},
		})
		r, err := s.GetRunner(coll, cq, 0)
		require.NoError(t, err)
		assert.Equal(t, planner.RunnerSingleSolution, r.Kind())
	})

	t.Run("SystemNamespaceExempt", func(t *testing.T) {
		coll := newTestCollection(t, "test.system.indexes")
		s := planner.NewSelector(planner.OptSelectorSettings(settings))
		cq := canonicalize(t, &query.LiteParsedQuery{
			NS:     "test.system.indexes",
			Filter: bson.D{{Key: "a", Value: 1}},
		})
		_, err := s.GetRunner(coll, cq, 0)
		require.NoError(t, err)
	})

	t.Run("EmptyQueryExempt", func(t *testing.T) {
		coll := newTestCollection(t, "test.plain")
		s := planner.NewSelector(planner.OptSelectorSettings(settings))
		cq := canonicalize(t, &query.LiteParsedQuery{NS: "test.plain"})
		_, err := s.GetRunner(coll, cq, 0)
		require.NoError(t, err)
	})
}

func TestGetRunner_LimitedSortPrefersNonBlockingPlan(t *testing.T) {
	coll := newTestCollection(t, "test.events",
		bson.D{{Key: "b", Value: 1}},
		bson.D{{Key: "a", Value: 1}},
	)
	require.NoError(t, coll.Insert(
		bson.D{{Key: "a", Value: 3}, {Key: "b", Value: 30}},
		bson.D{{Key: "a", Value: 1}, {Key: "b", Value: 10}},
		bson.D{{Key: "a", Value: 2}, {Key: "b", Value: 20}},
	))
	s := planner.NewSelector()

	cq := canonicalize(t, &query.LiteParsedQuery{
		NS:     "test.events",
		Filter: bson.D{{Key: "b", Value: bson.D{{Key: "$gt", Value: 0}}}},
		Sort:   bson.D{{Key: "a", Value: 1}},
		Limit:  2,
	})
	r, err := s.GetRunner(coll, cq, 0)
	require.NoError(t, err)
	require.Equal(t, planner.RunnerSingleSolution, r.Kind())

	single := r.(*planner.SingleSolutionRunner)
	assert.False(t, single.Solution().HasBlockingSort())

	docs := drainRunner(t, r)
	require.Len(t, docs, 2)
	a0, _ := query.LookupField(docs[0], "a")
	a1, _ := query.LookupField(docs[1], "a")
	assert.Equal(t, 1, a0)
	assert.Equal(t, 2, a1)
}

func TestGetRunner_MultiPlanRaceAndCache(t *testing.T) {
	coll := newTestCollection(t, "test.race",
		idIndex(),
		bson.D{{Key: "a", Value: 1}},
		bson.D{{Key: "a", Value: 1}, {Key: "b", Value: 1}},
	)
	for i := 0; i < 20; i++ {
		require.NoError(t, coll.Insert(bson.D{
			{Key: "_id", Value: i},
			{Key: "a", Value: i},
			{Key: "b", Value: i % 3},
		}))
	}
	s := planner.NewSelector()

	filter := bson.D{{Key: "a", Value: bson.D{{Key: "$gt", Value: 14}}}}
	cq := canonicalize(t, &query.LiteParsedQuery{NS: "test.race", Filter: filter})

	r, err := s.GetRunner(coll, cq, 0)
	require.NoError(t, err)
	require.Equal(t, planner.RunnerMultiPlan, r.Kind())

	multi := r.(*planner.MultiPlanRunner)
	assert.True(t, len(multi.Solutions()) >= 2, "race needs at least two candidates")

	docs := drainRunner(t, r)
	assert.Len(t, docs, 5)

	// The race reported its winner; the same shape now runs from cache.
	cq2 := canonicalize(t, &query.LiteParsedQuery{
		NS:     "test.race",
		Filter: bson.D{{Key: "a", Value: bson.D{{Key: "$gt", Value: 9}}}},
	})
	r2, err := s.GetRunner(coll, cq2, 0)
	require.NoError(t, err)
	assert.Equal(t, planner.RunnerCachedPlan, r2.Kind())
	assert.Len(t, drainRunner(t, r2), 10)
}

func TestGetRunner_CacheFallthroughOnStaleEntry(t *testing.T) {
	coll := newTestCollection(t, "test.stale",
		bson.D{{Key: "a", Value: 1}},
		bson.D{{Key: "a", Value: 1}, {Key: "b", Value: 1}},
	)
	require.NoError(t, coll.Insert(bson.D{{Key: "a", Value: 1}}))
	s := planner.NewSelector()

	filter := bson.D{{Key: "a", Value: bson.D{{Key: "$gte", Value: 0}}}}
	cq := canonicalize(t, &query.LiteParsedQuery{NS: "test.stale", Filter: filter})

	r, err := s.GetRunner(coll, cq, 0)
	require.NoError(t, err)
	require.Equal(t, planner.RunnerMultiPlan, r.Kind())
	drainRunner(t, r)
	require.Equal(t, 1, s.PlanCacheFor("test.stale").Size())

	// Restrict this shape to an index the cached plan doesn't use. The
	// cached tree no longer hydrates and selection replans.
	coll.QuerySettings().SetAllowedIndices(cq.ShapeKey(), []bson.D{
		{{Key: "nope", Value: 1}},
	})

	cq2 := canonicalize(t, &query.LiteParsedQuery{NS: "test.stale", Filter: filter})
	r2, err := s.GetRunner(coll, cq2, 0)
	require.NoError(t, err)
	assert.Equal(t, planner.RunnerSingleSolution, r2.Kind())
	assert.Len(t, drainRunner(t, r2), 1)
}

func TestGetRunner_CachedBackupServesLimitedSort(t *testing.T) {
	coll := newTestCollection(t, "test.backup",
		bson.D{{Key: "a", Value: 1}},
		bson.D{{Key: "a", Value: 1}, {Key: "b", Value: 1}},
	)
	for i := 0; i < 10; i++ {
		require.NoError(t, coll.Insert(bson.D{{Key: "a", Value: i}, {Key: "b", Value: i}}))
	}
	s := planner.NewSelector()

	filter := bson.D{{Key: "a", Value: bson.D{{Key: "$gt", Value: 3}}}}
	sortSpec := bson.D{{Key: "a", Value: 1}}

	// Prime the cache through a race; no limit, so the limited-sort
	// shortcut does not apply and a backup plan gets recorded.
	cq := canonicalize(t, &query.LiteParsedQuery{NS: "test.backup", Filter: filter, Sort: sortSpec})
	r, err := s.GetRunner(coll, cq, 0)
	require.NoError(t, err)
	require.Equal(t, planner.RunnerMultiPlan, r.Kind())
	drainRunner(t, r)

	// Same shape with a limit: the gateway prefers the backup plan as a
	// plain single-solution runner.
	cq2 := canonicalize(t, &query.LiteParsedQuery{
		NS:     "test.backup",
		Filter: filter,
		Sort:   sortSpec,
		Limit:  3,
	})
	r2, err := s.GetRunner(coll, cq2, 0)
	require.NoError(t, err)
	assert.Equal(t, planner.RunnerSingleSolution, r2.Kind())
	assert.Len(t, drainRunner(t, r2), 3)
}

func TestRunnerRegistration(t *testing.T) {
	coll := newTestCollection(t, "test.reg", idIndex())
	require.NoError(t, coll.Insert(bson.D{{Key: "_id", Value: 1}}))
	s := planner.NewSelector()

	cq := canonicalize(t, &query.LiteParsedQuery{
		NS:     "test.reg",
		Filter: bson.D{{Key: "_id", Value: 1}},
	})
	r, err := s.GetRunner(coll, cq, 0)
	require.NoError(t, err)

	before := coll.Registry().Size()
	reg := tern.RegisterRunner(coll, r)
	assert.Equal(t, before+1, coll.Registry().Size())
	reg.Close()
	assert.Equal(t, before, coll.Registry().Size())

	// Closing twice keeps the registry unchanged.
	reg.Close()
	assert.Equal(t, before, coll.Registry().Size())

	// An EOF runner has no collection and registration is a no-op.
	eofCq := canonicalize(t, &query.LiteParsedQuery{NS: "test.gone", Filter: bson.D{{Key: "a", Value: 1}}})
	eof, err := s.GetRunner(nil, eofCq, 0)
	require.NoError(t, err)
	eofReg := tern.RegisterRunner(eof.Collection(), eof)
	eofReg.Close()
}

func TestGetRunner_ShardFilter(t *testing.T) {
	t.Run("MetadataPresent", func(t *testing.T) {
		sharding := tern.NewShardingState()
		sharding.SetCollectionMetadata("test.sharded", &tern.CollectionMetadata{
			KeyPattern: bson.D{{Key: "a", Value: 1}},
			OwnsDoc: func(doc bson.D) bool {
				v, _ := query.LookupField(doc, "a")
				return query.CompareValues(v, 10) < 0
			},
		})
		coll := newTestCollection(t, "test.sharded")
		require.NoError(t, coll.Insert(
			bson.D{{Key: "a", Value: 5}},
			bson.D{{Key: "a", Value: 15}},
		))
		s := planner.NewSelector(planner.OptSelectorSharding(sharding))

		cq := canonicalize(t, &query.LiteParsedQuery{NS: "test.sharded"})
		r, err := s.GetRunner(coll, cq, planner.OptionIncludeShardFilter)
		require.NoError(t, err)
		docs := drainRunner(t, r)
		require.Len(t, docs, 1)
		a, _ := query.LookupField(docs[0], "a")
		assert.Equal(t, 5, a)
	})

	t.Run("MetadataAbsentStripsOption", func(t *testing.T) {
		coll := newTestCollection(t, "test.unsharded")
		require.NoError(t, coll.Insert(bson.D{{Key: "a", Value: 1}}))
		s := planner.NewSelector()

		cq := canonicalize(t, &query.LiteParsedQuery{NS: "test.unsharded"})
		r, err := s.GetRunner(coll, cq, planner.OptionIncludeShardFilter)
		require.NoError(t, err)
		assert.Len(t, drainRunner(t, r), 1)
	})
}
