// Copyright 2024 TernDB Corp. All rights reserved.

// Package planner decides how a query against a collection executes: by
// short-circuiting trivial cases, reusing a cached plan, running a single
// generated plan, or racing several candidates and keeping the winner.
package planner

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	tern "github.com/terndb/tern"
	"github.com/terndb/tern/errors"
)

// ErrNoMoreRows is returned by row iterators when iteration is complete.
var ErrNoMoreRows = errors.Errorf("no more rows")

// Row is one unit of execution output: the record it came from plus the
// index key that produced it, when an index scan produced it.
type Row struct {
	RecordID tern.RecordID
	Doc      bson.D
	Key      []interface{}
}

// RowIterator streams rows out of an executing plan.
type RowIterator interface {
	Next(ctx context.Context) (Row, error)
}

// ExecContext carries the execution-time collaborators a node needs to
// build its iterator.
type ExecContext struct {
	Coll     *tern.Collection
	Metadata *tern.CollectionMetadata
}

// Node is one operator in a query solution tree. A parent owns its
// children; rewrites swap a child slot and drop the old subtree.
type Node interface {
	// Children returns the node's child operators.
	Children() []Node

	// WithChildren creates a new node with the children replaced.
	WithChildren(children ...Node) (Node, error)

	// Clone deep-copies the subtree rooted here.
	Clone() Node

	// Plan returns a rich description of this node; intended to be
	// marshalled into json.
	Plan() map[string]interface{}

	// Iterator begins execution of the subtree rooted here.
	Iterator(ctx context.Context, ectx *ExecContext) (RowIterator, error)
}

// SolutionCacheData is the side-band information a solution carries into
// the plan cache.
type SolutionCacheData struct {
	IndexFiltersApplied bool
}

func (d *SolutionCacheData) clone() *SolutionCacheData {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}

// QuerySolution is a rooted tree of solution nodes plus its cache data.
// A solution has exactly one owner: the planner until selection, then the
// runner. The plan cache keeps only a description of a solution's shape,
// never the solution itself.
type QuerySolution struct {
	Root      Node
	CacheData *SolutionCacheData
}

// Clone deep-copies the solution.
func (s *QuerySolution) Clone() *QuerySolution {
	return &QuerySolution{
		Root:      s.Root.Clone(),
		CacheData: s.CacheData.clone(),
	}
}

// Plan returns the solution tree as a json-able map.
func (s *QuerySolution) Plan() map[string]interface{} {
	return s.Root.Plan()
}

// HasBlockingSort reports whether any node in the solution sorts in
// memory rather than reading an index in order.
func (s *QuerySolution) HasBlockingSort() bool {
	found := false
	InspectNode(s.Root, func(n Node) bool {
		if _, ok := n.(*SortNode); ok {
			found = true
			return false
		}
		return true
	})
	return found
}

// InspectNode traverses the tree depth-first; if f(n) returns false the
// walk stops descending under n.
func InspectNode(n Node, f func(Node) bool) {
	if !f(n) {
		return
	}
	for _, child := range n.Children() {
		InspectNode(child, f)
	}
}
