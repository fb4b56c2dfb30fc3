// Copyright 2024 TernDB Corp. All rights reserved.
package query

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Canonical type brackets for cross-type value ordering. Values of
// different brackets order by bracket; values of the same bracket order by
// the bracket's own comparison.
const (
	typeMinKey = iota
	typeNull
	typeNumber
	typeString
	typeObject
	typeArray
	typeObjectID
	typeBool
	typeDate
	typeMaxKey
)

func typeBracket(v interface{}) int {
	switch v.(type) {
	case primitive.MinKey:
		return typeMinKey
	case nil, primitive.Null:
		return typeNull
	case int, int32, int64, float64:
		return typeNumber
	case string:
		return typeString
	case bson.D:
		return typeObject
	case bson.A, []interface{}:
		return typeArray
	case primitive.ObjectID:
		return typeObjectID
	case bool:
		return typeBool
	case time.Time, primitive.DateTime:
		return typeDate
	case primitive.MaxKey:
		return typeMaxKey
	default:
		return typeObject
	}
}

func numberValue(v interface{}) float64 {
	switch tv := v.(type) {
	case int:
		return float64(tv)
	case int32:
		return float64(tv)
	case int64:
		return float64(tv)
	case float64:
		return tv
	}
	return 0
}

func arrayValue(v interface{}) []interface{} {
	switch tv := v.(type) {
	case bson.A:
		return []interface{}(tv)
	case []interface{}:
		return tv
	}
	return nil
}

func dateValue(v interface{}) int64 {
	switch tv := v.(type) {
	case time.Time:
		return tv.UnixMilli()
	case primitive.DateTime:
		return int64(tv)
	}
	return 0
}

// ArrayValue returns v's elements when v is an array, or nil.
func ArrayValue(v interface{}) []interface{} {
	return arrayValue(v)
}

// CompareValues orders two document values the way the key space orders
// them: first by type bracket, then within the bracket.
func CompareValues(a, b interface{}) int {
	ab, bb := typeBracket(a), typeBracket(b)
	if ab != bb {
		if ab < bb {
			return -1
		}
		return 1
	}

	switch ab {
	case typeMinKey, typeNull, typeMaxKey:
		return 0
	case typeNumber:
		an, bn := numberValue(a), numberValue(b)
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		}
		return 0
	case typeString:
		return strings.Compare(a.(string), b.(string))
	case typeObject:
		return compareDocs(a, b)
	case typeArray:
		return compareArrays(arrayValue(a), arrayValue(b))
	case typeObjectID:
		ao, bo := a.(primitive.ObjectID), b.(primitive.ObjectID)
		return strings.Compare(ao.Hex(), bo.Hex())
	case typeBool:
		av, bv := a.(bool), b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		}
		return 1
	case typeDate:
		ad, bd := dateValue(a), dateValue(b)
		switch {
		case ad < bd:
			return -1
		case ad > bd:
			return 1
		}
		return 0
	}
	return 0
}

func compareDocs(a, b interface{}) int {
	ad, aok := a.(bson.D)
	bd, bok := b.(bson.D)
	if !aok || !bok {
		return 0
	}
	for i := 0; i < len(ad) && i < len(bd); i++ {
		if c := strings.Compare(ad[i].Key, bd[i].Key); c != 0 {
			return c
		}
		if c := CompareValues(ad[i].Value, bd[i].Value); c != 0 {
			return c
		}
	}
	switch {
	case len(ad) < len(bd):
		return -1
	case len(ad) > len(bd):
		return 1
	}
	return 0
}

func compareArrays(a, b []interface{}) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := CompareValues(a[i], b[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}

// CompareKeys orders two index keys field by field, honoring per-field
// directions from the key pattern (1 ascending, -1 descending).
func CompareKeys(a, b []interface{}, directions []int) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		c := CompareValues(a[i], b[i])
		if i < len(directions) && directions[i] < 0 {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

// LookupField returns the value of a top-level field.
func LookupField(doc bson.D, name string) (interface{}, bool) {
	for _, elem := range doc {
		if elem.Key == name {
			return elem.Value, true
		}
	}
	return nil, false
}

// LookupFieldDotted resolves a (possibly dotted) field path against a
// document. Path components never traverse into arrays; array values are
// returned whole.
func LookupFieldDotted(doc bson.D, path string) (interface{}, bool) {
	parts := strings.Split(path, ".")
	var cur interface{} = doc
	for _, part := range parts {
		d, ok := cur.(bson.D)
		if !ok {
			return nil, false
		}
		v, ok := LookupField(d, part)
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

// IsMinKey reports whether v is the MinKey sentinel.
func IsMinKey(v interface{}) bool {
	_, ok := v.(primitive.MinKey)
	return ok
}

// IsMaxKey reports whether v is the MaxKey sentinel.
func IsMaxKey(v interface{}) bool {
	_, ok := v.(primitive.MaxKey)
	return ok
}
