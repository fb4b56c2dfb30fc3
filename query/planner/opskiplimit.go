// Copyright 2024 TernDB Corp. All rights reserved.
package planner

import (
	"context"
	"fmt"

	"github.com/terndb/tern/query"
)

// SkipNode discards the first N rows of its child.
type SkipNode struct {
	N       int
	ChildOp Node
}

func NewSkipNode(n int, child Node) *SkipNode {
	return &SkipNode{N: n, ChildOp: child}
}

func (n *SkipNode) Children() []Node {
	return []Node{n.ChildOp}
}

func (n *SkipNode) WithChildren(children ...Node) (Node, error) {
	if len(children) != 1 {
		return nil, query.NewErrInternalf("unexpected number of children '%d'", len(children))
	}
	return NewSkipNode(n.N, children[0]), nil
}

func (n *SkipNode) Clone() Node {
	return NewSkipNode(n.N, n.ChildOp.Clone())
}

func (n *SkipNode) Plan() map[string]interface{} {
	result := make(map[string]interface{})
	result["_op"] = fmt.Sprintf("%T", n)
	result["skip"] = n.N
	result["child"] = n.ChildOp.Plan()
	return result
}

func (n *SkipNode) Iterator(ctx context.Context, ectx *ExecContext) (RowIterator, error) {
	child, err := n.ChildOp.Iterator(ctx, ectx)
	if err != nil {
		return nil, err
	}
	return &skipRowIter{remaining: n.N, child: child}, nil
}

type skipRowIter struct {
	remaining int
	child     RowIterator
}

func (i *skipRowIter) Next(ctx context.Context) (Row, error) {
	for i.remaining > 0 {
		if _, err := i.child.Next(ctx); err != nil {
			return Row{}, err
		}
		i.remaining--
	}
	return i.child.Next(ctx)
}

// LimitNode stops after N rows.
type LimitNode struct {
	N       int
	ChildOp Node
}

func NewLimitNode(n int, child Node) *LimitNode {
	return &LimitNode{N: n, ChildOp: child}
}

func (n *LimitNode) Children() []Node {
	return []Node{n.ChildOp}
}

func (n *LimitNode) WithChildren(children ...Node) (Node, error) {
	if len(children) != 1 {
		return nil, query.NewErrInternalf("unexpected number of children '%d'", len(children))
	}
	return NewLimitNode(n.N, children[0]), nil
}

func (n *LimitNode) Clone() Node {
	return NewLimitNode(n.N, n.ChildOp.Clone())
}

func (n *LimitNode) Plan() map[string]interface{} {
	result := make(map[string]interface{})
	result["_op"] = fmt.Sprintf("%T", n)
	result["limit"] = n.N
	result["child"] = n.ChildOp.Plan()
	return result
}

func (n *LimitNode) Iterator(ctx context.Context, ectx *ExecContext) (RowIterator, error) {
	child, err := n.ChildOp.Iterator(ctx, ectx)
	if err != nil {
		return nil, err
	}
	return &limitRowIter{remaining: n.N, child: child}, nil
}

type limitRowIter struct {
	remaining int
	child     RowIterator
}

func (i *limitRowIter) Next(ctx context.Context) (Row, error) {
	if i.remaining <= 0 {
		return Row{}, ErrNoMoreRows
	}
	row, err := i.child.Next(ctx)
	if err != nil {
		return Row{}, err
	}
	i.remaining--
	return row, nil
}
