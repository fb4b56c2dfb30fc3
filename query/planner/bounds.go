// Copyright 2024 TernDB Corp. All rights reserved.
package planner

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/terndb/tern/query"
)

// Interval is one contiguous key range over a single field, with
// inclusivity flags at both ends. Descending intervals run from the larger
// value to the smaller one.
type Interval struct {
	Start          interface{}
	End            interface{}
	StartInclusive bool
	EndInclusive   bool
}

// PointInterval is the interval holding exactly v.
func PointInterval(v interface{}) Interval {
	return Interval{Start: v, End: v, StartInclusive: true, EndInclusive: true}
}

// AllValuesInterval covers the whole key space of one field. Direction -1
// yields the descending form, running max to min.
func AllValuesInterval(direction int) Interval {
	if direction < 0 {
		return Interval{
			Start:          primitive.MaxKey{},
			End:            primitive.MinKey{},
			StartInclusive: true,
			EndInclusive:   true,
		}
	}
	return Interval{
		Start:          primitive.MinKey{},
		End:            primitive.MaxKey{},
		StartInclusive: true,
		EndInclusive:   true,
	}
}

// IsPoint reports whether the interval holds exactly one value.
func (iv Interval) IsPoint() bool {
	return iv.StartInclusive && iv.EndInclusive && query.CompareValues(iv.Start, iv.End) == 0
}

// IsAllValues reports whether the interval covers the whole key space, in
// either direction.
func (iv Interval) IsAllValues() bool {
	if !iv.StartInclusive || !iv.EndInclusive {
		return false
	}
	return (query.IsMinKey(iv.Start) && query.IsMaxKey(iv.End)) ||
		(query.IsMaxKey(iv.Start) && query.IsMinKey(iv.End))
}

// IsDescending reports whether the interval runs from larger to smaller
// values.
func (iv Interval) IsDescending() bool {
	return query.CompareValues(iv.Start, iv.End) > 0
}

// Contains reports whether v falls inside the interval.
func (iv Interval) Contains(v interface{}) bool {
	lo, hi := iv.Start, iv.End
	loInc, hiInc := iv.StartInclusive, iv.EndInclusive
	if iv.IsDescending() {
		lo, hi = hi, lo
		loInc, hiInc = hiInc, loInc
	}
	if c := query.CompareValues(v, lo); c < 0 || (c == 0 && !loInc) {
		return false
	}
	if c := query.CompareValues(v, hi); c > 0 || (c == 0 && !hiInc) {
		return false
	}
	return true
}

func (iv Interval) String() string {
	lo, hi := "[", "]"
	if !iv.StartInclusive {
		lo = "("
	}
	if !iv.EndInclusive {
		hi = ")"
	}
	return fmt.Sprintf("%s%v, %v%s", lo, iv.Start, iv.End, hi)
}

// OrderedIntervalList is the interval set for one index field, ordered in
// scan direction.
type OrderedIntervalList struct {
	Name      string
	Intervals []Interval
}

// IndexBounds is the per-field interval decomposition of an index scan.
// SimpleRange marks bounds expressed as a single raw [start, end] key pair
// instead of per-field interval lists.
type IndexBounds struct {
	Fields      []OrderedIntervalList
	SimpleRange bool
}

// AllValuesBounds covers the whole index.
func AllValuesBounds(keyPattern bson.D, directions []int) IndexBounds {
	b := IndexBounds{}
	for i, elem := range keyPattern {
		dir := 1
		if i < len(directions) {
			dir = directions[i]
		}
		b.Fields = append(b.Fields, OrderedIntervalList{
			Name:      elem.Key,
			Intervals: []Interval{AllValuesInterval(dir)},
		})
	}
	return b
}

// ContainsKey reports whether every component of key falls inside the
// corresponding field's intervals.
func (b IndexBounds) ContainsKey(key []interface{}) bool {
	if len(key) < len(b.Fields) {
		return false
	}
	for i, field := range b.Fields {
		ok := false
		for _, iv := range field.Intervals {
			if iv.Contains(key[i]) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// Clone deep-copies the bounds.
func (b IndexBounds) Clone() IndexBounds {
	out := IndexBounds{SimpleRange: b.SimpleRange}
	for _, field := range b.Fields {
		ivs := make([]Interval, len(field.Intervals))
		copy(ivs, field.Intervals)
		out.Fields = append(out.Fields, OrderedIntervalList{Name: field.Name, Intervals: ivs})
	}
	return out
}

func (b IndexBounds) String() string {
	var parts []string
	for _, field := range b.Fields {
		var ivs []string
		for _, iv := range field.Intervals {
			ivs = append(ivs, iv.String())
		}
		parts = append(parts, fmt.Sprintf("%s: %s", field.Name, strings.Join(ivs, " ")))
	}
	return strings.Join(parts, ", ")
}
