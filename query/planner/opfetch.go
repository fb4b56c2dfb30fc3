// Copyright 2024 TernDB Corp. All rights reserved.
package planner

import (
	"context"
	"fmt"

	"github.com/terndb/tern/query"
)

// FetchNode materialises the full document for each row its child
// produces, then applies the residual filter.
type FetchNode struct {
	ChildOp Node
	Filter  *query.MatchExpression
}

func NewFetchNode(child Node, filter *query.MatchExpression) *FetchNode {
	return &FetchNode{ChildOp: child, Filter: filter}
}

func (n *FetchNode) Children() []Node {
	return []Node{n.ChildOp}
}

func (n *FetchNode) WithChildren(children ...Node) (Node, error) {
	if len(children) != 1 {
		return nil, query.NewErrInternalf("unexpected number of children '%d'", len(children))
	}
	return NewFetchNode(children[0], n.Filter), nil
}

func (n *FetchNode) Clone() Node {
	return NewFetchNode(n.ChildOp.Clone(), n.Filter)
}

func (n *FetchNode) Plan() map[string]interface{} {
	result := make(map[string]interface{})
	result["_op"] = fmt.Sprintf("%T", n)
	if n.Filter != nil {
		result["filter"] = n.Filter.String()
	}
	result["child"] = n.ChildOp.Plan()
	return result
}

func (n *FetchNode) Iterator(ctx context.Context, ectx *ExecContext) (RowIterator, error) {
	child, err := n.ChildOp.Iterator(ctx, ectx)
	if err != nil {
		return nil, err
	}
	return &fetchRowIter{node: n, child: child}, nil
}

type fetchRowIter struct {
	node  *FetchNode
	child RowIterator
}

func (i *fetchRowIter) Next(ctx context.Context) (Row, error) {
	for {
		row, err := i.child.Next(ctx)
		if err != nil {
			return Row{}, err
		}
		if i.node.Filter != nil && !i.node.Filter.Matches(row.Doc) {
			continue
		}
		return row, nil
	}
}
