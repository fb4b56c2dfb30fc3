// Copyright 2024 TernDB Corp. All rights reserved.
package planner

import (
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	tern "github.com/terndb/tern"
	"github.com/terndb/tern/query"
)

// Options is the planner option bitset.
type Options uint32

const (
	// OptionNoTableScan forbids collection scan solutions.
	OptionNoTableScan Options = 1 << 0

	// OptionIncludeCollscan adds a collection scan candidate alongside
	// indexed solutions.
	OptionIncludeCollscan Options = 1 << 1

	// OptionIncludeShardFilter wraps solutions with a shard ownership
	// filter.
	OptionIncludeShardFilter Options = 1 << 2

	// OptionIndexIntersection records that index intersection is enabled;
	// the heuristic planner does not build intersection plans.
	OptionIndexIntersection Options = 1 << 3

	// OptionKeepMutations keeps documents that mutate out of the query
	// during yields.
	OptionKeepMutations Options = 1 << 4

	// OptionPrivateIsCount marks planning on behalf of a count operation,
	// making the key-interval count rewrite eligible.
	OptionPrivateIsCount Options = 1 << 5
)

// PlannerParams is the configuration bundle handed to the planner: the
// usable indexes, the option bitset, and the shard key pattern when the
// collection is sharded.
type PlannerParams struct {
	Indices             []IndexEntry
	Options             Options
	ShardKey            bson.D
	IndexFiltersApplied bool
}

// BuildPlannerParams assembles the planner parameters for one invocation.
// The engine settings snapshot is read once here and never mid-flight.
func BuildPlannerParams(
	coll *tern.Collection,
	cq *query.CanonicalQuery,
	opts Options,
	settings tern.EngineSettings,
	sharding *tern.ShardingState,
) (*PlannerParams, error) {
	params := &PlannerParams{Options: opts}

	// Fill out the index entries from the live catalog.
	for _, desc := range coll.Catalog().Indexes(false) {
		params.Indices = append(params.Indices, MakeIndexEntry(desc))
	}

	// Apply the index filters configured for this query shape. When a
	// filter applies, any client-supplied hint is ignored downstream.
	if allowed := coll.QuerySettings().AllowedIndices(cq.ShapeKey()); allowed != nil && len(allowed.KeyPatterns) > 0 {
		filtered := params.Indices[:0]
		for _, entry := range params.Indices {
			for _, pattern := range allowed.KeyPatterns {
				if KeyPatternsEqual(entry.KeyPattern, pattern) {
					filtered = append(filtered, entry)
					break
				}
			}
		}
		params.Indices = filtered
		params.IndexFiltersApplied = true
	}

	// Tailable cursors require a capped collection read in natural order.
	if cq.Parsed().Tailable {
		if !coll.IsCapped() {
			return nil, query.NewErrBadValue("tailable cursor requested on non capped collection")
		}
		if len(cq.Sort()) > 0 && !cq.HasNaturalSort(1) {
			return nil, query.NewErrBadValue("invalid sort specified for tailable cursor: %v", cq.Sort())
		}
	}

	if settings.NoTableScan {
		ns := cq.NS()
		// There are certain cases where we ignore this restriction:
		ignore := cq.IsEmptyQuery() ||
			strings.Contains(ns, ".system.") ||
			strings.HasPrefix(ns, "local.")
		if !ignore {
			params.Options |= OptionNoTableScan
		}
	}

	if params.Options&OptionNoTableScan == 0 {
		params.Options |= OptionIncludeCollscan
	}

	// If the caller wants a shard filter, make sure we're actually
	// sharded. With no metadata we won't know the key pattern anyway, so
	// drop the option rather than fail.
	if params.Options&OptionIncludeShardFilter != 0 {
		if md := sharding.GetCollectionMetadata(cq.NS()); md != nil {
			params.ShardKey = md.KeyPattern
		} else {
			params.Options &^= OptionIncludeShardFilter
		}
	}

	if settings.IndexIntersection {
		params.Options |= OptionIndexIntersection
	}

	params.Options |= OptionKeepMutations

	return params, nil
}
