// Copyright 2024 TernDB Corp. All rights reserved.
package tern

import (
	"sync"

	"go.mongodb.org/mongo-driver/bson"
)

// AllowedIndices is an index filter: the set of key patterns the planner
// may consider for one query shape. When a filter with at least one key
// pattern is set for a shape, any client-supplied hint for that shape is
// ignored; a filter with no key patterns has no effect.
type AllowedIndices struct {
	KeyPatterns []bson.D
}

// QuerySettings holds the per-collection index filters, keyed by query
// shape.
type QuerySettings struct {
	mu      sync.RWMutex
	allowed map[string]*AllowedIndices
}

func NewQuerySettings() *QuerySettings {
	return &QuerySettings{
		allowed: make(map[string]*AllowedIndices),
	}
}

// AllowedIndices returns the filter for the given query shape, or nil when
// no filter is set.
func (qs *QuerySettings) AllowedIndices(shapeKey string) *AllowedIndices {
	qs.mu.RLock()
	defer qs.mu.RUnlock()
	return qs.allowed[shapeKey]
}

// SetAllowedIndices installs an index filter for a query shape.
func (qs *QuerySettings) SetAllowedIndices(shapeKey string, keyPatterns []bson.D) {
	qs.mu.Lock()
	defer qs.mu.Unlock()
	qs.allowed[shapeKey] = &AllowedIndices{KeyPatterns: keyPatterns}
}

// RemoveAllowedIndices drops the filter for a query shape.
func (qs *QuerySettings) RemoveAllowedIndices(shapeKey string) {
	qs.mu.Lock()
	defer qs.mu.Unlock()
	delete(qs.allowed, shapeKey)
}

// Clear drops all filters.
func (qs *QuerySettings) Clear() {
	qs.mu.Lock()
	defer qs.mu.Unlock()
	qs.allowed = make(map[string]*AllowedIndices)
}
