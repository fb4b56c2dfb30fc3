// Copyright 2024 TernDB Corp. All rights reserved.
package planner

import (
	"sort"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/terndb/tern/query"
)

// Plan enumerates candidate solutions for the query under the given
// parameters. Indexed solutions come first in catalog order; a collection
// scan, when permitted, comes last. Zero solutions is a valid outcome the
// caller must handle.
func Plan(cq *query.CanonicalQuery, params *PlannerParams) ([]*QuerySolution, error) {
	preds := collectPredicates(cq.Root())
	sortSpec := effectiveSort(cq)

	// Resolve the hint. Index filters for this shape override any hint.
	var hinted *IndexEntry
	if hint := cq.Parsed().Hint; len(hint) > 0 && !params.IndexFiltersApplied {
		entry, err := resolveHint(hint, params.Indices)
		if err != nil {
			return nil, err
		}
		hinted = entry
	}

	var candidates []IndexEntry
	if hinted != nil {
		candidates = []IndexEntry{*hinted}
	} else {
		for _, entry := range params.Indices {
			if entry.PluginName() != "" || entry.NumFields() == 0 {
				continue
			}
			first := entry.KeyPattern[0].Key
			if len(preds[first]) > 0 {
				candidates = append(candidates, entry)
				continue
			}
			if provided, _ := indexProvidesSort(entry, sortSpec); provided {
				candidates = append(candidates, entry)
			}
		}
	}

	var solutions []*QuerySolution
	for _, entry := range candidates {
		solutions = append(solutions, buildIndexedSolution(cq, params, entry, preds, sortSpec))
	}

	// A hinted query must use the hinted index; otherwise a collection
	// scan rides along when table scans are allowed.
	if hinted == nil && params.Options&OptionIncludeCollscan != 0 {
		solutions = append(solutions, buildCollScanSolution(cq, params, sortSpec))
	}

	return solutions, nil
}

// effectiveSort is the sort the solution must honor; a $natural sort is
// the scan order itself, not a sort stage.
func effectiveSort(cq *query.CanonicalQuery) bson.D {
	if cq.HasNaturalSort(1) || cq.HasNaturalSort(-1) {
		return nil
	}
	return cq.Sort()
}

func resolveHint(hint bson.D, indices []IndexEntry) (*IndexEntry, error) {
	if hint[0].Key == "$hint" {
		name, ok := hint[0].Value.(string)
		if !ok {
			return nil, query.NewErrBadValue("bad hint: %v", hint)
		}
		for i := range indices {
			if indices[i].Name == name {
				return &indices[i], nil
			}
		}
		return nil, query.NewErrBadValue("bad hint: index %s does not exist", name)
	}
	for i := range indices {
		if KeyPatternsEqual(indices[i].KeyPattern, hint) {
			return &indices[i], nil
		}
	}
	return nil, query.NewErrBadValue("bad hint: no index matches %v", hint)
}

// collectPredicates gathers the indexable leaves reachable through
// top-level conjunction: equality, ranges and $in. Anything under $or,
// $not or $elemMatch stays in the residual filter.
func collectPredicates(m *query.MatchExpression) map[string][]*query.MatchExpression {
	preds := make(map[string][]*query.MatchExpression)
	var walk func(n *query.MatchExpression)
	walk = func(n *query.MatchExpression) {
		if n == nil {
			return
		}
		if n.Op == query.MatchAnd && n.Field == "" {
			for _, c := range n.Children {
				walk(c)
			}
			return
		}
		switch n.Op {
		case query.MatchEQ, query.MatchGT, query.MatchGTE, query.MatchLT, query.MatchLTE, query.MatchIn:
			preds[n.Field] = append(preds[n.Field], n)
		}
	}
	walk(m)
	return preds
}

// isPureConjunction reports whether the filter is nothing but AND-ed
// indexable leaves, i.e. whether absorbing all collected predicates into
// bounds leaves no residual work.
func isPureConjunction(m *query.MatchExpression) bool {
	if m == nil {
		return true
	}
	if m.Op == query.MatchAnd && m.Field == "" {
		for _, c := range m.Children {
			if !isPureConjunction(c) {
				return false
			}
		}
		return true
	}
	switch m.Op {
	case query.MatchEQ, query.MatchGT, query.MatchGTE, query.MatchLT, query.MatchLTE, query.MatchIn:
		return true
	}
	return false
}

func buildIndexedSolution(
	cq *query.CanonicalQuery,
	params *PlannerParams,
	entry IndexEntry,
	preds map[string][]*query.MatchExpression,
	sortSpec bson.D,
) *QuerySolution {
	bounds, absorbedAll := boundsForIndex(entry, preds)

	// Residual filter: when the filter is a pure conjunction and every
	// predicate went into the bounds there is nothing left to check.
	var residual *query.MatchExpression
	if !cq.IsEmptyQuery() && !(absorbedAll && isPureConjunction(cq.Root())) {
		residual = cq.Root()
	}

	dir := 1
	needSort := false
	if len(sortSpec) > 0 {
		provided, d := indexProvidesSort(entry, sortSpec)
		if provided {
			dir = d
		} else {
			needSort = true
		}
	}

	proj := cq.Proj()
	covered := proj != nil && !proj.RequiresDocument() && !entry.Multikey && residual == nil
	if covered {
		for _, f := range proj.RequiredFields() {
			if entry.FieldPosition(f) < 0 {
				covered = false
				break
			}
		}
	}

	var root Node = NewIndexScanNode(entry, bounds, nil, dir)
	if !covered {
		root = NewFetchNode(root, residual)
	}
	return &QuerySolution{
		Root:      finishSolution(root, cq, params, needSort, sortSpec),
		CacheData: &SolutionCacheData{IndexFiltersApplied: params.IndexFiltersApplied},
	}
}

func buildCollScanSolution(cq *query.CanonicalQuery, params *PlannerParams, sortSpec bson.D) *QuerySolution {
	var filter *query.MatchExpression
	if !cq.IsEmptyQuery() {
		filter = cq.Root()
	}
	dir := 1
	if cq.HasNaturalSort(-1) {
		dir = -1
	}
	root := finishSolution(NewCollScanNode(filter, dir), cq, params, len(sortSpec) > 0, sortSpec)
	return &QuerySolution{
		Root:      root,
		CacheData: &SolutionCacheData{IndexFiltersApplied: params.IndexFiltersApplied},
	}
}

// finishSolution layers the common upper stages over a scan: blocking
// sort, shard filter, skip, projection, limit.
func finishSolution(root Node, cq *query.CanonicalQuery, params *PlannerParams, needSort bool, sortSpec bson.D) Node {
	if needSort {
		root = NewSortNode(sortSpec, root, 0)
	}
	if params.Options&OptionIncludeShardFilter != 0 {
		root = NewShardFilterNode(params.ShardKey, root)
	}
	if skip := cq.Parsed().Skip; skip > 0 {
		root = NewSkipNode(skip, root)
	}
	if proj := cq.Proj(); proj != nil {
		root = NewProjectionNode(proj, root)
	}
	if limit := cq.Parsed().Limit; limit > 0 {
		root = NewLimitNode(limit, root)
	}
	return root
}

// boundsForIndex derives the per-field intervals from the absorbable
// predicates. Once a field's interval is not a single point, the remaining
// fields scan all values. The second return reports whether every
// collected predicate was folded into the bounds.
func boundsForIndex(entry IndexEntry, preds map[string][]*query.MatchExpression) (IndexBounds, bool) {
	dirs := entry.Directions()
	bounds := IndexBounds{}
	absorbed := make(map[*query.MatchExpression]bool)

	sawNonPoint := false
	for i, elem := range entry.KeyPattern {
		dir := dirs[i]
		if sawNonPoint {
			bounds.Fields = append(bounds.Fields, OrderedIntervalList{
				Name:      elem.Key,
				Intervals: []Interval{AllValuesInterval(dir)},
			})
			continue
		}
		fieldPreds := preds[elem.Key]
		list, used, point := intervalsForField(fieldPreds, dir)
		bounds.Fields = append(bounds.Fields, OrderedIntervalList{Name: elem.Key, Intervals: list})
		for _, p := range used {
			absorbed[p] = true
		}
		if !point {
			sawNonPoint = true
		}
	}

	absorbedAll := true
	for _, fieldPreds := range preds {
		for _, p := range fieldPreds {
			if !absorbed[p] {
				absorbedAll = false
			}
		}
	}
	return bounds, absorbedAll
}

// intervalsForField folds one field's predicates into an interval list.
// It returns the list, the predicates it absorbed, and whether the list is
// a single point.
func intervalsForField(fieldPreds []*query.MatchExpression, dir int) ([]Interval, []*query.MatchExpression, bool) {
	if len(fieldPreds) == 0 {
		return []Interval{AllValuesInterval(dir)}, nil, false
	}

	// An equality pins the field to one point.
	for _, p := range fieldPreds {
		if p.Op == query.MatchEQ {
			return []Interval{PointInterval(p.Value)}, []*query.MatchExpression{p}, true
		}
	}

	// $in expands to one point per member.
	for _, p := range fieldPreds {
		if p.Op == query.MatchIn {
			members := query.ArrayValue(p.Value)
			sorted := make([]interface{}, len(members))
			copy(sorted, members)
			sort.SliceStable(sorted, func(a, b int) bool {
				c := query.CompareValues(sorted[a], sorted[b])
				if dir < 0 {
					return c > 0
				}
				return c < 0
			})
			list := make([]Interval, 0, len(sorted))
			for i, v := range sorted {
				if i > 0 && query.CompareValues(sorted[i-1], v) == 0 {
					continue
				}
				list = append(list, PointInterval(v))
			}
			return list, []*query.MatchExpression{p}, len(list) == 1
		}
	}

	// Combine the ranges into one interval.
	iv := Interval{
		Start:          primitive.MinKey{},
		End:            primitive.MaxKey{},
		StartInclusive: true,
		EndInclusive:   true,
	}
	var used []*query.MatchExpression
	for _, p := range fieldPreds {
		switch p.Op {
		case query.MatchGT:
			if query.IsMinKey(iv.Start) || query.CompareValues(p.Value, iv.Start) >= 0 {
				iv.Start, iv.StartInclusive = p.Value, false
			}
		case query.MatchGTE:
			if query.IsMinKey(iv.Start) || query.CompareValues(p.Value, iv.Start) > 0 {
				iv.Start, iv.StartInclusive = p.Value, true
			}
		case query.MatchLT:
			if query.IsMaxKey(iv.End) || query.CompareValues(p.Value, iv.End) <= 0 {
				iv.End, iv.EndInclusive = p.Value, false
			}
		case query.MatchLTE:
			if query.IsMaxKey(iv.End) || query.CompareValues(p.Value, iv.End) < 0 {
				iv.End, iv.EndInclusive = p.Value, true
			}
		default:
			continue
		}
		used = append(used, p)
	}
	if dir < 0 {
		iv.Start, iv.End = iv.End, iv.Start
		iv.StartInclusive, iv.EndInclusive = iv.EndInclusive, iv.StartInclusive
	}
	return []Interval{iv}, used, false
}

// indexProvidesSort reports whether scanning the index yields the sort
// order without a blocking sort, and in which direction.
func indexProvidesSort(entry IndexEntry, sortSpec bson.D) (bool, int) {
	if len(sortSpec) == 0 || len(sortSpec) > entry.NumFields() {
		return false, 0
	}
	dirs := entry.Directions()
	overall := 0
	for i, elem := range sortSpec {
		if entry.KeyPattern[i].Key != elem.Key {
			return false, 0
		}
		want := numberDirection(elem.Value)
		rel := 1
		if want != dirs[i] {
			rel = -1
		}
		if overall == 0 {
			overall = rel
		} else if overall != rel {
			return false, 0
		}
	}
	return true, overall
}
