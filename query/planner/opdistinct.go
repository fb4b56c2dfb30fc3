// Copyright 2024 TernDB Corp. All rights reserved.
package planner

import (
	"context"
	"fmt"

	"github.com/terndb/tern/query"
)

// DistinctScanNode scans one index inside bounds, advancing one key per
// distinct value of the key pattern field at ordinal FieldNo.
type DistinctScanNode struct {
	Index     IndexEntry
	Direction int
	Bounds    IndexBounds
	FieldNo   int
}

func NewDistinctScanNode(index IndexEntry, direction int, bounds IndexBounds, fieldNo int) *DistinctScanNode {
	if direction == 0 {
		direction = 1
	}
	return &DistinctScanNode{Index: index, Direction: direction, Bounds: bounds, FieldNo: fieldNo}
}

func (n *DistinctScanNode) Children() []Node {
	return []Node{}
}

func (n *DistinctScanNode) WithChildren(children ...Node) (Node, error) {
	if len(children) != 0 {
		return nil, query.NewErrInternalf("unexpected number of children '%d'", len(children))
	}
	c := *n
	return &c, nil
}

func (n *DistinctScanNode) Clone() Node {
	c := *n
	c.Bounds = n.Bounds.Clone()
	return &c
}

func (n *DistinctScanNode) Plan() map[string]interface{} {
	result := make(map[string]interface{})
	result["_op"] = fmt.Sprintf("%T", n)
	result["index"] = n.Index.Name
	result["keyPattern"] = fmt.Sprintf("%v", n.Index.KeyPattern)
	result["direction"] = n.Direction
	result["bounds"] = n.Bounds.String()
	result["fieldNo"] = n.FieldNo
	return result
}

func (n *DistinctScanNode) Iterator(ctx context.Context, ectx *ExecContext) (RowIterator, error) {
	entries := buildIndexKeys(ectx.Coll, n.Index)
	if n.Direction < 0 {
		reverseKeyEntries(entries)
	}
	return &distinctScanRowIter{node: n, entries: entries}, nil
}

type distinctScanRowIter struct {
	node    *DistinctScanNode
	entries []indexKeyEntry
	pos     int
	seen    []interface{}
}

func (i *distinctScanRowIter) Next(ctx context.Context) (Row, error) {
	for i.pos < len(i.entries) {
		e := i.entries[i.pos]
		i.pos++
		if !i.node.Bounds.ContainsKey(e.key) {
			continue
		}
		if i.node.FieldNo >= len(e.key) {
			continue
		}
		val := e.key[i.node.FieldNo]
		if i.haveSeen(val) {
			continue
		}
		i.seen = append(i.seen, val)
		return Row{RecordID: e.rid, Doc: e.doc, Key: e.key}, nil
	}
	return Row{}, ErrNoMoreRows
}

func (i *distinctScanRowIter) haveSeen(val interface{}) bool {
	for _, s := range i.seen {
		if query.CompareValues(s, val) == 0 {
			return true
		}
	}
	return false
}
