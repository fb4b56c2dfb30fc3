// Copyright 2024 TernDB Corp. All rights reserved.
package query_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/terndb/tern/query"
)

func TestCompareValues(t *testing.T) {
	t.Run("Numbers", func(t *testing.T) {
		assert.Equal(t, 0, query.CompareValues(2, 2.0))
		assert.Equal(t, 0, query.CompareValues(int32(7), int64(7)))
		assert.Equal(t, -1, query.CompareValues(1, 2))
		assert.Equal(t, 1, query.CompareValues(3.5, 2))
	})

	t.Run("Strings", func(t *testing.T) {
		assert.Equal(t, -1, query.CompareValues("a", "b"))
		assert.Equal(t, 0, query.CompareValues("a", "a"))
	})

	t.Run("TypeBrackets", func(t *testing.T) {
		// MinKey < null < number < string < object < array < bool < MaxKey
		assert.Equal(t, -1, query.CompareValues(primitive.MinKey{}, nil))
		assert.Equal(t, -1, query.CompareValues(nil, 1))
		assert.Equal(t, -1, query.CompareValues(1, "a"))
		assert.Equal(t, -1, query.CompareValues("a", bson.D{}))
		assert.Equal(t, -1, query.CompareValues(bson.D{}, bson.A{}))
		assert.Equal(t, -1, query.CompareValues(bson.A{}, true))
		assert.Equal(t, -1, query.CompareValues(true, primitive.MaxKey{}))
		assert.Equal(t, 1, query.CompareValues(primitive.MaxKey{}, "zzz"))
	})

	t.Run("Arrays", func(t *testing.T) {
		assert.Equal(t, -1, query.CompareValues(bson.A{1, 2}, bson.A{1, 3}))
		assert.Equal(t, 0, query.CompareValues(bson.A{1, 2}, bson.A{1, 2}))
		assert.Equal(t, -1, query.CompareValues(bson.A{1}, bson.A{1, 0}))
	})

	t.Run("Documents", func(t *testing.T) {
		a := bson.D{{Key: "x", Value: 1}}
		b := bson.D{{Key: "x", Value: 2}}
		assert.Equal(t, -1, query.CompareValues(a, b))
		assert.Equal(t, 0, query.CompareValues(a, bson.D{{Key: "x", Value: 1}}))
	})
}

func TestCompareKeys(t *testing.T) {
	dirs := []int{1, -1}
	assert.Equal(t, -1, query.CompareKeys([]interface{}{1, 5}, []interface{}{2, 5}, dirs))
	// The second component is descending, so the larger value sorts first.
	assert.Equal(t, -1, query.CompareKeys([]interface{}{1, 9}, []interface{}{1, 5}, dirs))
	assert.Equal(t, 0, query.CompareKeys([]interface{}{1, 5}, []interface{}{1, 5}, dirs))
}

func TestLookupFieldDotted(t *testing.T) {
	doc := bson.D{
		{Key: "a", Value: bson.D{{Key: "b", Value: bson.D{{Key: "c", Value: 9}}}}},
		{Key: "top", Value: 1},
	}

	v, ok := query.LookupFieldDotted(doc, "a.b.c")
	assert.True(t, ok)
	assert.Equal(t, 9, v)

	v, ok = query.LookupFieldDotted(doc, "top")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = query.LookupFieldDotted(doc, "a.x")
	assert.False(t, ok)

	_, ok = query.LookupFieldDotted(doc, "top.b")
	assert.False(t, ok)
}
