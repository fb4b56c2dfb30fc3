// Copyright 2024 TernDB Corp. All rights reserved.
package planner

import (
	"context"
	"fmt"
	"sort"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	tern "github.com/terndb/tern"
	"github.com/terndb/tern/query"
)

// IndexScanNode scans one index within the given bounds. A residual filter,
// when present, applies to the fetched document.
type IndexScanNode struct {
	Index     IndexEntry
	Bounds    IndexBounds
	Filter    *query.MatchExpression
	Direction int
}

func NewIndexScanNode(index IndexEntry, bounds IndexBounds, filter *query.MatchExpression, direction int) *IndexScanNode {
	if direction == 0 {
		direction = 1
	}
	return &IndexScanNode{Index: index, Bounds: bounds, Filter: filter, Direction: direction}
}

func (n *IndexScanNode) Children() []Node {
	return []Node{}
}

func (n *IndexScanNode) WithChildren(children ...Node) (Node, error) {
	if len(children) != 0 {
		return nil, query.NewErrInternalf("unexpected number of children '%d'", len(children))
	}
	return NewIndexScanNode(n.Index, n.Bounds, n.Filter, n.Direction), nil
}

func (n *IndexScanNode) Clone() Node {
	c := *n
	c.Bounds = n.Bounds.Clone()
	return &c
}

func (n *IndexScanNode) Plan() map[string]interface{} {
	result := make(map[string]interface{})
	result["_op"] = fmt.Sprintf("%T", n)
	result["index"] = n.Index.Name
	result["keyPattern"] = fmt.Sprintf("%v", n.Index.KeyPattern)
	result["direction"] = n.Direction
	result["bounds"] = n.Bounds.String()
	if n.Filter != nil {
		result["filter"] = n.Filter.String()
	}
	return result
}

func (n *IndexScanNode) Iterator(ctx context.Context, ectx *ExecContext) (RowIterator, error) {
	entries := buildIndexKeys(ectx.Coll, n.Index)
	if n.Direction < 0 {
		reverseKeyEntries(entries)
	}
	return &indexScanRowIter{node: n, entries: entries, seen: make(map[tern.RecordID]bool)}, nil
}

type indexScanRowIter struct {
	node    *IndexScanNode
	entries []indexKeyEntry
	pos     int
	seen    map[tern.RecordID]bool
}

func (i *indexScanRowIter) Next(ctx context.Context) (Row, error) {
	for i.pos < len(i.entries) {
		e := i.entries[i.pos]
		i.pos++
		if !i.node.Bounds.ContainsKey(e.key) {
			continue
		}
		// A multikey index can produce the same record several times
		// inside the bounds; a scan returns it once.
		if i.seen[e.rid] {
			continue
		}
		if i.node.Filter != nil && !i.node.Filter.Matches(e.doc) {
			continue
		}
		i.seen[e.rid] = true
		return Row{RecordID: e.rid, Doc: e.doc, Key: e.key}, nil
	}
	return Row{}, ErrNoMoreRows
}

// indexKeyEntry is one key in an index's key space.
type indexKeyEntry struct {
	key []interface{}
	rid tern.RecordID
	doc bson.D
}

// buildIndexKeys materialises the ordered key space of an index over the
// collection's current snapshot, expanding array values the way a multikey
// index does.
func buildIndexKeys(coll *tern.Collection, index IndexEntry) []indexKeyEntry {
	dirs := index.Directions()
	var entries []indexKeyEntry
	for _, rec := range coll.Snapshot() {
		for _, key := range extractDocKeys(rec.Doc, index) {
			entries = append(entries, indexKeyEntry{key: key, rid: rec.ID, doc: rec.Doc})
		}
	}
	sort.SliceStable(entries, func(a, b int) bool {
		return query.CompareKeys(entries[a].key, entries[b].key, dirs) < 0
	})
	return entries
}

// extractDocKeys computes the index keys one document contributes: the
// cartesian product of its per-field values, with array values expanded
// one key per element. Missing fields key as null; for a sparse index a
// document with all fields missing contributes nothing.
func extractDocKeys(doc bson.D, index IndexEntry) [][]interface{} {
	perField := make([][]interface{}, len(index.KeyPattern))
	anyPresent := false
	for i, elem := range index.KeyPattern {
		v, found := query.LookupFieldDotted(doc, elem.Key)
		if !found {
			perField[i] = []interface{}{primitive.Null{}}
			continue
		}
		anyPresent = true
		if arr := query.ArrayValue(v); arr != nil && len(arr) > 0 {
			perField[i] = arr
		} else {
			perField[i] = []interface{}{v}
		}
	}
	if index.Sparse && !anyPresent {
		return nil
	}

	keys := [][]interface{}{{}}
	for _, vals := range perField {
		next := make([][]interface{}, 0, len(keys)*len(vals))
		for _, k := range keys {
			for _, v := range vals {
				nk := make([]interface{}, len(k), len(k)+1)
				copy(nk, k)
				next = append(next, append(nk, v))
			}
		}
		keys = next
	}
	return keys
}

func reverseKeyEntries(entries []indexKeyEntry) {
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
}
