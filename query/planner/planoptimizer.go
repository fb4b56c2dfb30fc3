// Copyright 2024 TernDB Corp. All rights reserved.
package planner

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TurnIxscanIntoCount rewrites a FETCH over an IXSCAN into a key-interval
// count when the scan's bounds collapse into one interval. It returns true
// and replaces the solution root on success; on failure the solution is
// untouched.
//
// The bounds must decompose as a run of point intervals, then at most one
// non-point interval, then only all-values intervals:
//
//	bounds ::= point* (non-point-interval full-range*)?
func TurnIxscanIntoCount(soln *QuerySolution) bool {
	fetch, ok := soln.Root.(*FetchNode)
	if !ok || fetch.Filter != nil {
		return false
	}
	ixscan, ok := fetch.ChildOp.(*IndexScanNode)
	if !ok || ixscan.Filter != nil || ixscan.Bounds.SimpleRange {
		return false
	}

	fields := ixscan.Bounds.Fields
	for _, f := range fields {
		if len(f.Intervals) != 1 {
			return false
		}
	}

	startKey := bson.D{}
	endKey := bson.D{}
	startInclusive, endInclusive := true, true

	// The point prefix pins both ends of the interval to the same tuple.
	i := 0
	for ; i < len(fields); i++ {
		iv := fields[i].Intervals[0]
		if !iv.IsPoint() {
			break
		}
		startKey = append(startKey, bson.E{Key: "", Value: iv.Start})
		endKey = append(endKey, bson.E{Key: "", Value: iv.Start})
	}

	if i < len(fields) {
		// One non-point interval contributes the real endpoints.
		iv := fields[i].Intervals[0]
		startKey = append(startKey, bson.E{Key: "", Value: iv.Start})
		endKey = append(endKey, bson.E{Key: "", Value: iv.End})
		startInclusive = iv.StartInclusive
		endInclusive = iv.EndInclusive
		i++

		// Anything after it must cover all values; the sentinels align
		// with the inclusivity already decided, mirrored for descending
		// fields.
		for ; i < len(fields); i++ {
			iv := fields[i].Intervals[0]
			if !iv.IsAllValues() {
				return false
			}
			if iv.IsDescending() {
				startKey = append(startKey, bson.E{Key: "", Value: pickKey(startInclusive, maxKeySentinel, minKeySentinel)})
				endKey = append(endKey, bson.E{Key: "", Value: pickKey(endInclusive, minKeySentinel, maxKeySentinel)})
			} else {
				startKey = append(startKey, bson.E{Key: "", Value: pickKey(startInclusive, minKeySentinel, maxKeySentinel)})
				endKey = append(endKey, bson.E{Key: "", Value: pickKey(endInclusive, maxKeySentinel, minKeySentinel)})
			}
		}
	}

	soln.Root = &CountNode{
		Index:          ixscan.Index,
		StartKey:       startKey,
		StartInclusive: startInclusive,
		EndKey:         endKey,
		EndInclusive:   endInclusive,
	}
	return true
}

var (
	minKeySentinel = primitive.MinKey{}
	maxKeySentinel = primitive.MaxKey{}
)

func pickKey(inclusive bool, whenInclusive, whenExclusive interface{}) interface{} {
	if inclusive {
		return whenInclusive
	}
	return whenExclusive
}

// TurnIxscanIntoDistinct rewrites a PROJECTION over an IXSCAN into a
// projection over a distinct scan advancing one key per distinct value of
// field. The projection parent is retained.
func TurnIxscanIntoDistinct(soln *QuerySolution, field string) bool {
	proj, ok := soln.Root.(*ProjectionNode)
	if !ok {
		return false
	}
	ixscan, ok := proj.ChildOp.(*IndexScanNode)
	if !ok || ixscan.Filter != nil || ixscan.Bounds.SimpleRange {
		return false
	}

	fieldNo := ixscan.Index.FieldPosition(field)
	if fieldNo < 0 {
		fieldNo = 0
	}
	proj.ChildOp = NewDistinctScanNode(ixscan.Index, ixscan.Direction, ixscan.Bounds.Clone(), fieldNo)
	return true
}

// distinctShortcutIndex picks the index serving the no-query distinct
// shortcut: the fewest key fields wins among ordinary (non-plugin)
// indexes. Ties resolve to catalog order.
func distinctShortcutIndex(indices []IndexEntry) *IndexEntry {
	var best *IndexEntry
	for i := range indices {
		if indices[i].PluginName() != "" {
			continue
		}
		if best == nil || indices[i].NumFields() < best.NumFields() {
			best = &indices[i]
		}
	}
	return best
}
