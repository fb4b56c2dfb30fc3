// Copyright 2024 TernDB Corp. All rights reserved.
package query

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MatchType enumerates the supported match expression node kinds.
type MatchType int

const (
	MatchAnd MatchType = iota
	MatchOr
	MatchNot
	MatchEQ
	MatchNE
	MatchGT
	MatchGTE
	MatchLT
	MatchLTE
	MatchIn
	MatchNotIn
	MatchExists
	MatchElemMatch
)

func (t MatchType) String() string {
	switch t {
	case MatchAnd:
		return "$and"
	case MatchOr:
		return "$or"
	case MatchNot:
		return "$not"
	case MatchEQ:
		return "$eq"
	case MatchNE:
		return "$ne"
	case MatchGT:
		return "$gt"
	case MatchGTE:
		return "$gte"
	case MatchLT:
		return "$lt"
	case MatchLTE:
		return "$lte"
	case MatchIn:
		return "$in"
	case MatchNotIn:
		return "$nin"
	case MatchExists:
		return "$exists"
	case MatchElemMatch:
		return "$elemMatch"
	}
	return "<unknown>"
}

// MatchExpression is a node in a parsed filter tree. Leaf nodes carry a
// field path and a comparison value; logical nodes carry children.
type MatchExpression struct {
	Op       MatchType
	Field    string
	Value    interface{}
	Children []*MatchExpression
}

// String renders the expression tree for diagnostics.
func (m *MatchExpression) String() string {
	if m == nil {
		return "{}"
	}
	if m.IsLogical() && m.Field == "" {
		parts := make([]string, 0, len(m.Children))
		for _, c := range m.Children {
			parts = append(parts, c.String())
		}
		return m.Op.String() + "[" + strings.Join(parts, ", ") + "]"
	}
	if len(m.Children) > 0 {
		parts := make([]string, 0, len(m.Children))
		for _, c := range m.Children {
			parts = append(parts, c.String())
		}
		return fmt.Sprintf("%s %s [%s]", m.Field, m.Op, strings.Join(parts, ", "))
	}
	return fmt.Sprintf("%s %s %v", m.Field, m.Op, m.Value)
}

// IsLogical reports whether the node is a pure logical connective.
func (m *MatchExpression) IsLogical() bool {
	switch m.Op {
	case MatchAnd, MatchOr, MatchNot:
		return true
	}
	return false
}

// ParseMatchExpression parses a filter document into an expression tree.
// The result for an empty filter is an $and with no children, which matches
// everything.
func ParseMatchExpression(filter bson.D) (*MatchExpression, error) {
	children := make([]*MatchExpression, 0, len(filter))
	for _, elem := range filter {
		switch {
		case elem.Key == "$and" || elem.Key == "$or":
			sub, err := parseLogicalArray(elem.Key, elem.Value)
			if err != nil {
				return nil, err
			}
			children = append(children, sub)
		case strings.HasPrefix(elem.Key, "$"):
			return nil, NewErrBadValue("unknown top level operator: %s", elem.Key)
		default:
			sub, err := parsePredicate(elem.Key, elem.Value)
			if err != nil {
				return nil, err
			}
			children = append(children, sub...)
		}
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return &MatchExpression{Op: MatchAnd, Children: children}, nil
}

func parseLogicalArray(op string, arg interface{}) (*MatchExpression, error) {
	arr := arrayValue(arg)
	if arr == nil {
		return nil, NewErrBadValue("%s argument must be an array", op)
	}
	node := &MatchExpression{Op: MatchAnd}
	if op == "$or" {
		node.Op = MatchOr
	}
	for _, item := range arr {
		doc, ok := item.(bson.D)
		if !ok {
			return nil, NewErrBadValue("%s argument must be an array of objects", op)
		}
		child, err := ParseMatchExpression(doc)
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, child)
	}
	return node, nil
}

// parsePredicate parses one field's predicate, which is either a literal
// equality or an operator document like {$gt: 5, $lt: 10}.
func parsePredicate(field string, value interface{}) ([]*MatchExpression, error) {
	doc, ok := value.(bson.D)
	if !ok || len(doc) == 0 || !strings.HasPrefix(doc[0].Key, "$") {
		return []*MatchExpression{{Op: MatchEQ, Field: field, Value: value}}, nil
	}

	out := make([]*MatchExpression, 0, len(doc))
	for _, opElem := range doc {
		switch opElem.Key {
		case "$eq":
			out = append(out, &MatchExpression{Op: MatchEQ, Field: field, Value: opElem.Value})
		case "$ne":
			out = append(out, &MatchExpression{Op: MatchNE, Field: field, Value: opElem.Value})
		case "$gt":
			out = append(out, &MatchExpression{Op: MatchGT, Field: field, Value: opElem.Value})
		case "$gte":
			out = append(out, &MatchExpression{Op: MatchGTE, Field: field, Value: opElem.Value})
		case "$lt":
			out = append(out, &MatchExpression{Op: MatchLT, Field: field, Value: opElem.Value})
		case "$lte":
			out = append(out, &MatchExpression{Op: MatchLTE, Field: field, Value: opElem.Value})
		case "$in", "$nin":
			arr := arrayValue(opElem.Value)
			if arr == nil {
				return nil, NewErrBadValue("%s argument must be an array", opElem.Key)
			}
			op := MatchIn
			if opElem.Key == "$nin" {
				op = MatchNotIn
			}
			out = append(out, &MatchExpression{Op: op, Field: field, Value: arr})
		case "$exists":
			out = append(out, &MatchExpression{Op: MatchExists, Field: field, Value: truthy(opElem.Value)})
		case "$elemMatch":
			sub, ok := opElem.Value.(bson.D)
			if !ok {
				return nil, NewErrBadValue("$elemMatch argument must be an object")
			}
			child, err := ParseMatchExpression(sub)
			if err != nil {
				return nil, err
			}
			out = append(out, &MatchExpression{
				Op:       MatchElemMatch,
				Field:    field,
				Children: []*MatchExpression{child},
			})
		case "$not":
			sub, ok := opElem.Value.(bson.D)
			if !ok {
				return nil, NewErrBadValue("$not argument must be an object")
			}
			inner, err := parsePredicate(field, sub)
			if err != nil {
				return nil, err
			}
			// A compound $not negates the conjunction of its operators,
			// so multiple siblings fold into one $and before negation.
			if len(inner) > 1 {
				inner = []*MatchExpression{{Op: MatchAnd, Children: inner}}
			}
			out = append(out, &MatchExpression{
				Op:       MatchNot,
				Field:    field,
				Children: inner,
			})
		default:
			return nil, NewErrBadValue("unknown operator: %s", opElem.Key)
		}
	}
	return out, nil
}

// Matches evaluates the expression against a document.
func (m *MatchExpression) Matches(doc bson.D) bool {
	switch m.Op {
	case MatchAnd:
		for _, c := range m.Children {
			if !c.Matches(doc) {
				return false
			}
		}
		return true
	case MatchOr:
		for _, c := range m.Children {
			if c.Matches(doc) {
				return true
			}
		}
		return false
	case MatchNot:
		for _, c := range m.Children {
			if c.Matches(doc) {
				return false
			}
		}
		return true
	case MatchExists:
		_, found := LookupFieldDotted(doc, m.Field)
		return found == m.Value.(bool)
	case MatchElemMatch:
		val, found := LookupFieldDotted(doc, m.Field)
		if !found {
			return false
		}
		arr := arrayValue(val)
		for _, item := range arr {
			sub, ok := item.(bson.D)
			if !ok {
				continue
			}
			matched := true
			for _, c := range m.Children {
				if !c.Matches(sub) {
					matched = false
					break
				}
			}
			if matched {
				return true
			}
		}
		return false
	case MatchNE:
		return !matchLeaf(MatchEQ, doc, m.Field, m.Value)
	case MatchNotIn:
		return !matchLeaf(MatchIn, doc, m.Field, m.Value)
	default:
		return matchLeaf(m.Op, doc, m.Field, m.Value)
	}
}

// matchLeaf evaluates a comparison leaf with array-any semantics: a
// predicate over an array field matches if any element matches, or if the
// array as a whole matches.
func matchLeaf(op MatchType, doc bson.D, field string, value interface{}) bool {
	val, found := LookupFieldDotted(doc, field)
	if !found {
		return false
	}
	if compareLeafValue(op, val, value) {
		return true
	}
	for _, item := range arrayValue(val) {
		if compareLeafValue(op, item, value) {
			return true
		}
	}
	return false
}

func compareLeafValue(op MatchType, val, rhs interface{}) bool {
	switch op {
	case MatchEQ:
		return typeBracket(val) == typeBracket(rhs) && CompareValues(val, rhs) == 0
	case MatchGT:
		return typeBracket(val) == typeBracket(rhs) && CompareValues(val, rhs) > 0
	case MatchGTE:
		return typeBracket(val) == typeBracket(rhs) && CompareValues(val, rhs) >= 0
	case MatchLT:
		return typeBracket(val) == typeBracket(rhs) && CompareValues(val, rhs) < 0
	case MatchLTE:
		return typeBracket(val) == typeBracket(rhs) && CompareValues(val, rhs) <= 0
	case MatchIn:
		for _, member := range arrayValue(rhs) {
			if typeBracket(val) == typeBracket(member) && CompareValues(val, member) == 0 {
				return true
			}
		}
		return false
	}
	return false
}

func truthy(v interface{}) bool {
	switch tv := v.(type) {
	case bool:
		return tv
	case int, int32, int64, float64:
		return numberValue(v) != 0
	case nil, primitive.Null:
		return false
	}
	return true
}

// IsSimpleIDQuery reports whether filter is an equality over _id alone,
// with a value the id index can serve directly.
func IsSimpleIDQuery(filter bson.D) bool {
	if len(filter) != 1 {
		return false
	}
	elem := filter[0]
	if elem.Key != "_id" {
		return false
	}
	switch tv := elem.Value.(type) {
	case bson.D:
		// An operator object like {_id: {$gt: ...}} disqualifies; a
		// literal subdocument does not.
		return len(tv) > 0 && !strings.HasPrefix(tv[0].Key, "$")
	case bson.A, []interface{}:
		return false
	default:
		return true
	}
}
