// Copyright 2024 TernDB Corp. All rights reserved.
package planner

import (
	"context"
	"fmt"

	"github.com/terndb/tern/query"
)

// ProjectionNode shapes each document per the parsed projection.
type ProjectionNode struct {
	Proj    *query.ParsedProjection
	ChildOp Node
}

func NewProjectionNode(proj *query.ParsedProjection, child Node) *ProjectionNode {
	return &ProjectionNode{Proj: proj, ChildOp: child}
}

func (n *ProjectionNode) Children() []Node {
	return []Node{n.ChildOp}
}

func (n *ProjectionNode) WithChildren(children ...Node) (Node, error) {
	if len(children) != 1 {
		return nil, query.NewErrInternalf("unexpected number of children '%d'", len(children))
	}
	return NewProjectionNode(n.Proj, children[0]), nil
}

func (n *ProjectionNode) Clone() Node {
	return NewProjectionNode(n.Proj, n.ChildOp.Clone())
}

func (n *ProjectionNode) Plan() map[string]interface{} {
	result := make(map[string]interface{})
	result["_op"] = fmt.Sprintf("%T", n)
	result["spec"] = fmt.Sprintf("%v", n.Proj.Source())
	result["requiresDocument"] = n.Proj.RequiresDocument()
	result["child"] = n.ChildOp.Plan()
	return result
}

func (n *ProjectionNode) Iterator(ctx context.Context, ectx *ExecContext) (RowIterator, error) {
	child, err := n.ChildOp.Iterator(ctx, ectx)
	if err != nil {
		return nil, err
	}
	return &projectionRowIter{node: n, child: child}, nil
}

type projectionRowIter struct {
	node  *ProjectionNode
	child RowIterator
}

func (i *projectionRowIter) Next(ctx context.Context) (Row, error) {
	row, err := i.child.Next(ctx)
	if err != nil {
		return Row{}, err
	}
	row.Doc = i.node.Proj.Apply(row.Doc)
	return row, nil
}
