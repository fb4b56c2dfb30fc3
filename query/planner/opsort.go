// Copyright 2024 TernDB Corp. All rights reserved.
package planner

import (
	"context"
	"fmt"
	"sort"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/terndb/tern/query"
)

// SortNode sorts its child's full output in memory; it is the blocking
// sort the selector tries to avoid for limited queries.
type SortNode struct {
	Pattern bson.D
	ChildOp Node
	Limit   int
}

func NewSortNode(pattern bson.D, child Node, limit int) *SortNode {
	return &SortNode{Pattern: pattern, ChildOp: child, Limit: limit}
}

func (n *SortNode) Children() []Node {
	return []Node{n.ChildOp}
}

func (n *SortNode) WithChildren(children ...Node) (Node, error) {
	if len(children) != 1 {
		return nil, query.NewErrInternalf("unexpected number of children '%d'", len(children))
	}
	return NewSortNode(n.Pattern, children[0], n.Limit), nil
}

func (n *SortNode) Clone() Node {
	return NewSortNode(n.Pattern, n.ChildOp.Clone(), n.Limit)
}

func (n *SortNode) Plan() map[string]interface{} {
	result := make(map[string]interface{})
	result["_op"] = fmt.Sprintf("%T", n)
	result["pattern"] = fmt.Sprintf("%v", n.Pattern)
	if n.Limit > 0 {
		result["limit"] = n.Limit
	}
	result["child"] = n.ChildOp.Plan()
	return result
}

func (n *SortNode) Iterator(ctx context.Context, ectx *ExecContext) (RowIterator, error) {
	child, err := n.ChildOp.Iterator(ctx, ectx)
	if err != nil {
		return nil, err
	}
	return &sortRowIter{node: n, child: child}, nil
}

type sortRowIter struct {
	node    *SortNode
	child   RowIterator
	sorted  []Row
	pos     int
	drained bool
}

func (i *sortRowIter) Next(ctx context.Context) (Row, error) {
	if !i.drained {
		for {
			row, err := i.child.Next(ctx)
			if err == ErrNoMoreRows {
				break
			}
			if err != nil {
				return Row{}, err
			}
			i.sorted = append(i.sorted, row)
		}
		pattern := i.node.Pattern
		sort.SliceStable(i.sorted, func(a, b int) bool {
			return compareBySortPattern(i.sorted[a].Doc, i.sorted[b].Doc, pattern) < 0
		})
		if i.node.Limit > 0 && len(i.sorted) > i.node.Limit {
			i.sorted = i.sorted[:i.node.Limit]
		}
		i.drained = true
	}
	if i.pos >= len(i.sorted) {
		return Row{}, ErrNoMoreRows
	}
	row := i.sorted[i.pos]
	i.pos++
	return row, nil
}

func compareBySortPattern(a, b bson.D, pattern bson.D) int {
	for _, elem := range pattern {
		av, _ := query.LookupFieldDotted(a, elem.Key)
		bv, _ := query.LookupFieldDotted(b, elem.Key)
		c := query.CompareValues(av, bv)
		if numberDirection(elem.Value) < 0 {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return 0
}
