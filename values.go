// Copyright 2024 TernDB Corp. All rights reserved.
package tern

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// valueKey builds a map key for a document value. Numeric types collapse
// into one key space so that an int32 2 and a float64 2 address the same
// record.
func valueKey(v interface{}) string {
	switch tv := v.(type) {
	case int:
		return fmt.Sprintf("n:%v", float64(tv))
	case int32:
		return fmt.Sprintf("n:%v", float64(tv))
	case int64:
		return fmt.Sprintf("n:%v", float64(tv))
	case float64:
		return fmt.Sprintf("n:%v", tv)
	case string:
		return "s:" + tv
	case bool:
		return fmt.Sprintf("b:%v", tv)
	case primitive.ObjectID:
		return "o:" + tv.Hex()
	default:
		return fmt.Sprintf("x:%T:%v", v, v)
	}
}
