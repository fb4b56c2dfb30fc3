// Copyright 2024 TernDB Corp. All rights reserved.
package planner

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/terndb/tern/query"
)

// CountNode counts the index keys inside one key interval without
// fetching any documents. Its single output row carries the count as
// {"n": <count>}.
type CountNode struct {
	Index          IndexEntry
	StartKey       bson.D
	StartInclusive bool
	EndKey         bson.D
	EndInclusive   bool
}

func (n *CountNode) Children() []Node {
	return []Node{}
}

func (n *CountNode) WithChildren(children ...Node) (Node, error) {
	if len(children) != 0 {
		return nil, query.NewErrInternalf("unexpected number of children '%d'", len(children))
	}
	c := *n
	return &c, nil
}

func (n *CountNode) Clone() Node {
	c := *n
	return &c
}

func (n *CountNode) Plan() map[string]interface{} {
	result := make(map[string]interface{})
	result["_op"] = fmt.Sprintf("%T", n)
	result["index"] = n.Index.Name
	result["keyPattern"] = fmt.Sprintf("%v", n.Index.KeyPattern)
	result["startKey"] = fmt.Sprintf("%v", n.StartKey)
	result["startKeyInclusive"] = n.StartInclusive
	result["endKey"] = fmt.Sprintf("%v", n.EndKey)
	result["endKeyInclusive"] = n.EndInclusive
	return result
}

func (n *CountNode) Iterator(ctx context.Context, ectx *ExecContext) (RowIterator, error) {
	dirs := n.Index.Directions()
	start := keyValues(n.StartKey)
	end := keyValues(n.EndKey)

	count := 0
	for _, e := range buildIndexKeys(ectx.Coll, n.Index) {
		if c := query.CompareKeys(e.key, start, dirs); c < 0 || (c == 0 && !n.StartInclusive) {
			continue
		}
		if c := query.CompareKeys(e.key, end, dirs); c > 0 || (c == 0 && !n.EndInclusive) {
			continue
		}
		count++
	}
	return &countRowIter{count: count}, nil
}

type countRowIter struct {
	count int
	done  bool
}

func (i *countRowIter) Next(ctx context.Context) (Row, error) {
	if i.done {
		return Row{}, ErrNoMoreRows
	}
	i.done = true
	return Row{Doc: bson.D{{Key: "n", Value: i.count}}}, nil
}

func keyValues(key bson.D) []interface{} {
	out := make([]interface{}, len(key))
	for i, elem := range key {
		out[i] = elem.Value
	}
	return out
}
