// Copyright 2024 TernDB Corp. All rights reserved.
package planner

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/terndb/tern/query"
)

// ShardFilterNode drops documents this shard does not own. With no
// sharding metadata at execution time it passes everything through.
type ShardFilterNode struct {
	KeyPattern bson.D
	ChildOp    Node
}

func NewShardFilterNode(keyPattern bson.D, child Node) *ShardFilterNode {
	return &ShardFilterNode{KeyPattern: keyPattern, ChildOp: child}
}

func (n *ShardFilterNode) Children() []Node {
	return []Node{n.ChildOp}
}

func (n *ShardFilterNode) WithChildren(children ...Node) (Node, error) {
	if len(children) != 1 {
		return nil, query.NewErrInternalf("unexpected number of children '%d'", len(children))
	}
	return NewShardFilterNode(n.KeyPattern, children[0]), nil
}

func (n *ShardFilterNode) Clone() Node {
	return NewShardFilterNode(n.KeyPattern, n.ChildOp.Clone())
}

func (n *ShardFilterNode) Plan() map[string]interface{} {
	result := make(map[string]interface{})
	result["_op"] = fmt.Sprintf("%T", n)
	result["keyPattern"] = fmt.Sprintf("%v", n.KeyPattern)
	result["child"] = n.ChildOp.Plan()
	return result
}

func (n *ShardFilterNode) Iterator(ctx context.Context, ectx *ExecContext) (RowIterator, error) {
	child, err := n.ChildOp.Iterator(ctx, ectx)
	if err != nil {
		return nil, err
	}
	return &shardFilterRowIter{node: n, child: child, ectx: ectx}, nil
}

type shardFilterRowIter struct {
	node  *ShardFilterNode
	child RowIterator
	ectx  *ExecContext
}

func (i *shardFilterRowIter) Next(ctx context.Context) (Row, error) {
	for {
		row, err := i.child.Next(ctx)
		if err != nil {
			return Row{}, err
		}
		if i.ectx.Metadata != nil && !i.ectx.Metadata.Owns(row.Doc) {
			continue
		}
		return row, nil
	}
}
