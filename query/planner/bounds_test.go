// Copyright 2024 TernDB Corp. All rights reserved.
package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
)

func TestInterval(t *testing.T) {
	t.Run("Point", func(t *testing.T) {
		iv := PointInterval(5)
		assert.True(t, iv.IsPoint())
		assert.True(t, iv.Contains(5))
		assert.False(t, iv.Contains(6))
		assert.False(t, iv.IsAllValues())
	})

	t.Run("HalfOpen", func(t *testing.T) {
		iv := Interval{Start: 5, End: 10, StartInclusive: false, EndInclusive: true}
		assert.False(t, iv.Contains(5))
		assert.True(t, iv.Contains(6))
		assert.True(t, iv.Contains(10))
		assert.False(t, iv.Contains(11))
		assert.False(t, iv.IsPoint())
	})

	t.Run("AllValuesAscending", func(t *testing.T) {
		iv := AllValuesInterval(1)
		assert.True(t, iv.IsAllValues())
		assert.False(t, iv.IsDescending())
		assert.True(t, iv.Contains("anything"))
		assert.True(t, iv.Contains(nil))
	})

	t.Run("AllValuesDescending", func(t *testing.T) {
		iv := AllValuesInterval(-1)
		assert.True(t, iv.IsAllValues())
		assert.True(t, iv.IsDescending())
		assert.True(t, iv.Contains(7))
	})

	t.Run("DescendingRange", func(t *testing.T) {
		iv := Interval{Start: 10, End: 5, StartInclusive: true, EndInclusive: false}
		assert.True(t, iv.IsDescending())
		assert.True(t, iv.Contains(10))
		assert.True(t, iv.Contains(7))
		assert.False(t, iv.Contains(5))
	})
}

func TestIndexBounds_ContainsKey(t *testing.T) {
	b := IndexBounds{Fields: []OrderedIntervalList{
		{Name: "a", Intervals: []Interval{PointInterval(1), PointInterval(3)}},
		{Name: "b", Intervals: []Interval{{Start: 10, End: 20, StartInclusive: true, EndInclusive: false}}},
	}}

	assert.True(t, b.ContainsKey([]interface{}{1, 10}))
	assert.True(t, b.ContainsKey([]interface{}{3, 19}))
	assert.False(t, b.ContainsKey([]interface{}{2, 10}))
	assert.False(t, b.ContainsKey([]interface{}{1, 20}))
	assert.False(t, b.ContainsKey([]interface{}{1}))
}

func TestAllValuesBounds(t *testing.T) {
	pattern := bson.D{{Key: "a", Value: 1}, {Key: "b", Value: -1}}
	entry := IndexEntry{KeyPattern: pattern}
	b := AllValuesBounds(pattern, entry.Directions())
	assert.Len(t, b.Fields, 2)
	assert.False(t, b.Fields[0].Intervals[0].IsDescending())
	assert.True(t, b.Fields[1].Intervals[0].IsDescending())
}
