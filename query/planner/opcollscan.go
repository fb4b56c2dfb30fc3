// Copyright 2024 TernDB Corp. All rights reserved.
package planner

import (
	"context"
	"fmt"

	tern "github.com/terndb/tern"
	"github.com/terndb/tern/query"
)

// CollScanNode scans the collection in natural order, applying the query
// filter to every document.
type CollScanNode struct {
	Filter    *query.MatchExpression
	Direction int
}

func NewCollScanNode(filter *query.MatchExpression, direction int) *CollScanNode {
	if direction == 0 {
		direction = 1
	}
	return &CollScanNode{Filter: filter, Direction: direction}
}

func (n *CollScanNode) Children() []Node {
	return []Node{}
}

func (n *CollScanNode) WithChildren(children ...Node) (Node, error) {
	if len(children) != 0 {
		return nil, query.NewErrInternalf("unexpected number of children '%d'", len(children))
	}
	return NewCollScanNode(n.Filter, n.Direction), nil
}

func (n *CollScanNode) Clone() Node {
	c := *n
	return &c
}

func (n *CollScanNode) Plan() map[string]interface{} {
	result := make(map[string]interface{})
	result["_op"] = fmt.Sprintf("%T", n)
	result["direction"] = n.Direction
	if n.Filter != nil {
		result["filter"] = n.Filter.String()
	}
	return result
}

func (n *CollScanNode) Iterator(ctx context.Context, ectx *ExecContext) (RowIterator, error) {
	records := ectx.Coll.Snapshot()
	if n.Direction < 0 {
		for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
			records[i], records[j] = records[j], records[i]
		}
	}
	return &collScanRowIter{node: n, records: records}, nil
}

type collScanRowIter struct {
	node    *CollScanNode
	records []tern.Record
	pos     int
}

func (i *collScanRowIter) Next(ctx context.Context) (Row, error) {
	for i.pos < len(i.records) {
		rec := i.records[i.pos]
		i.pos++
		if i.node.Filter != nil && !i.node.Filter.Matches(rec.Doc) {
			continue
		}
		return Row{RecordID: rec.ID, Doc: rec.Doc}, nil
	}
	return Row{}, ErrNoMoreRows
}
