// Copyright 2024 TernDB Corp. All rights reserved.
package planner

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	tern "github.com/terndb/tern"
	"github.com/terndb/tern/query"
)

// IndexEntry describes one index available to the planner. Its lifetime is
// bound to the planner params record it travels in.
type IndexEntry struct {
	KeyPattern bson.D
	Multikey   bool
	Sparse     bool
	Name       string
	InfoObj    bson.D
}

// MakeIndexEntry builds an entry from a catalog descriptor.
func MakeIndexEntry(d *tern.IndexDescriptor) IndexEntry {
	return IndexEntry{
		KeyPattern: d.KeyPattern,
		Multikey:   d.Multikey,
		Sparse:     d.Sparse,
		Name:       d.Name,
		InfoObj:    d.InfoObj,
	}
}

// PluginName returns the special index plugin serving this index, or the
// empty string for an ordinary btree index.
func (e IndexEntry) PluginName() string {
	for _, elem := range e.KeyPattern {
		if s, ok := elem.Value.(string); ok {
			return s
		}
	}
	return ""
}

// NumFields returns the number of key pattern fields.
func (e IndexEntry) NumFields() int {
	return len(e.KeyPattern)
}

// FieldPosition returns the ordinal of the first key pattern field named
// field, or -1 when the pattern has no such field.
func (e IndexEntry) FieldPosition(field string) int {
	for i, elem := range e.KeyPattern {
		if elem.Key == field {
			return i
		}
	}
	return -1
}

// Directions returns the per-field scan directions of the key pattern. A
// special (string) component counts as ascending.
func (e IndexEntry) Directions() []int {
	out := make([]int, len(e.KeyPattern))
	for i, elem := range e.KeyPattern {
		out[i] = 1
		switch v := elem.Value.(type) {
		case int, int32, int64, float64:
			if numberDirection(v) < 0 {
				out[i] = -1
			}
		}
	}
	return out
}

func (e IndexEntry) String() string {
	return fmt.Sprintf("%s:%v", e.Name, e.KeyPattern)
}

func numberDirection(v interface{}) int {
	switch tv := v.(type) {
	case int:
		return tv
	case int32:
		return int(tv)
	case int64:
		return int(tv)
	case float64:
		return int(tv)
	}
	return 1
}

// KeyPatternsEqual compares two key patterns field by field, including
// order and directions.
func KeyPatternsEqual(a, b bson.D) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Key != b[i].Key {
			return false
		}
		if query.CompareValues(a[i].Value, b[i].Value) != 0 {
			return false
		}
	}
	return true
}
