// Copyright 2024 TernDB Corp. All rights reserved.
package query

import (
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// ProjectionArrayOp classifies the array operator context of a projection.
type ProjectionArrayOp int

const (
	ProjectionArrayOpNormal ProjectionArrayOp = iota
	ProjectionArrayOpPositional
	ProjectionArrayOpElemMatch
)

// ParsedProjection is a validated projection specification. If
// RequiresDocument is false the projection can be computed from index keys
// alone and RequiredFields lists the fields it needs.
type ParsedProjection struct {
	source           bson.D
	requiresDocument bool
	requiredFields   []string
	includeID        bool
	arrayOp          ProjectionArrayOp
}

func (p *ParsedProjection) Source() bson.D               { return p.source }
func (p *ParsedProjection) RequiresDocument() bool       { return p.requiresDocument }
func (p *ParsedProjection) RequiredFields() []string     { return p.requiredFields }
func (p *ParsedProjection) IncludeID() bool              { return p.includeID }
func (p *ParsedProjection) ArrayOpType() ProjectionArrayOp { return p.arrayOp }

// MakeParsedProjection parses the projection spec and checks its validity
// with respect to the query document.
func MakeParsedProjection(spec, queryDoc bson.D) (*ParsedProjection, error) {
	// Are we including or excluding fields? -1 when we haven't decided
	// yet, 1 including, 0 excluding.
	includeExclude := -1

	// If any of these end up 'true' the projection isn't covered.
	include := true
	hasNonSimple := false
	hasDottedField := false

	includeID := true

	// Until we see a positional or elemMatch operator we're normal.
	arrayOp := ProjectionArrayOpNormal

	for _, e := range spec {
		if !isNumberOrBool(e.Value) {
			hasNonSimple = true
		}

		if obj, ok := e.Value.(bson.D); ok {
			if len(obj) != 1 {
				return nil, NewErrBadValue(">1 field in obj: %v", obj)
			}

			e2 := obj[0]
			switch e2.Key {
			case "$slice":
				if isNumberOrBool(e2.Value) && !isBool(e2.Value) {
					// A number is A-OK.
				} else if arr := arrayValue(e2.Value); arr != nil {
					if len(arr) != 2 {
						return nil, NewErrBadValue("$slice array wrong size")
					}
					limit := int(numberValue(arr[1]))
					if limit <= 0 {
						return nil, NewErrBadValue("$slice limit must be positive")
					}
				} else {
					return nil, NewErrBadValue("$slice only supports numbers and [skip, limit] arrays")
				}
			case "$elemMatch":
				arg, ok := e2.Value.(bson.D)
				if !ok {
					return nil, NewErrBadValue("elemMatch: Invalid argument, object required.")
				}
				if arrayOp == ProjectionArrayOpPositional {
					return nil, NewErrBadValue("Cannot specify positional operator and $elemMatch.")
				}
				if strings.Contains(e.Key, ".") {
					return nil, NewErrBadValue("Cannot use $elemMatch projection on a nested field.")
				}
				arrayOp = ProjectionArrayOpElemMatch

				// The argument must parse as a match expression.
				if _, err := ParseMatchExpression(bson.D{{Key: e.Key, Value: bson.D{{Key: "$elemMatch", Value: arg}}}}); err != nil {
					return nil, err
				}
			case "$meta":
				// Field for $meta must be top level.
				if strings.Contains(e.Key, ".") {
					return nil, NewErrBadValue("field for $meta cannot be nested")
				}
				s, ok := e2.Value.(string)
				if !ok {
					return nil, NewErrBadValue("unexpected argument to $meta in proj")
				}
				if s != "text" && s != "diskloc" {
					return nil, NewErrBadValue("unsupported $meta operator: %s", s)
				}
			default:
				return nil, NewErrBadValue("Unsupported projection option: %s: %v", e.Key, e.Value)
			}
		} else if e.Key == "_id" && !truthy(e.Value) {
			includeID = false
		} else {
			// Projections of dotted fields aren't covered.
			if strings.Contains(e.Key, ".") {
				hasDottedField = true
			}

			if includeExclude == -1 {
				// We haven't specified an include/exclude yet; further
				// includes/excludes must match this one.
				if truthy(e.Value) {
					includeExclude = 1
					include = false
				} else {
					includeExclude = 0
				}
			} else if (includeExclude == 1) != truthy(e.Value) {
				return nil, NewErrBadValue("Projection cannot have a mix of inclusion and exclusion.")
			}
		}

		if strings.Contains(e.Key, ".$") {
			// Validate the positional op.
			if !truthy(e.Value) {
				return nil, NewErrBadValue("Cannot exclude array elements with the positional operator.")
			}
			if arrayOp == ProjectionArrayOpPositional {
				return nil, NewErrBadValue("Cannot specify more than one positional proj. per query.")
			}
			if arrayOp == ProjectionArrayOpElemMatch {
				return nil, NewErrBadValue("Cannot specify positional operator and $elemMatch.")
			}
			arrayOp = ProjectionArrayOpPositional
		}
	}

	pp := &ParsedProjection{
		source:    spec,
		includeID: includeID,
		arrayOp:   arrayOp,
	}

	// Dotted fields aren't covered, non-simple need the document, and if
	// we default to including then we can't use an index because we don't
	// know what we're missing.
	pp.requiresDocument = include || hasNonSimple || hasDottedField

	// If the projection can be computed in a covered fashion, populate the
	// required fields so the planner can perform projection analysis.
	if !pp.requiresDocument {
		if includeID {
			pp.requiredFields = append(pp.requiredFields, "_id")
		}
		for _, e := range spec {
			if e.Key != "_id" && truthy(e.Value) {
				pp.requiredFields = append(pp.requiredFields, e.Key)
			}
		}
	}

	if arrayOp != ProjectionArrayOpPositional {
		return pp, nil
	}

	// Validate the positional projection against the query: some top-level
	// query field must share the positional field's pre-dot prefix. A
	// top-level $and waives the check rather than comparing its arguments
	// deeply.
	for _, queryElem := range queryDoc {
		if queryElem.Key == "$and" {
			return pp, nil
		}
		for _, projElem := range spec {
			if strings.Contains(projElem.Key, ".$") &&
				beforeDot(queryElem.Key) == beforeDot(projElem.Key) {
				return pp, nil
			}
		}
	}

	return nil, NewErrBadValue("Positional operator does not match the query specifier.")
}

// Apply computes the projected form of doc. Operator projections ($slice,
// $elemMatch, $meta) and positional markers pass the field through whole;
// the planner has already forced a full document fetch for those.
func (p *ParsedProjection) Apply(doc bson.D) bson.D {
	if len(p.source) == 0 {
		return doc
	}

	inclusive := false
	fields := make(map[string]bool)
	for _, e := range p.source {
		if e.Key == "_id" {
			continue
		}
		name := e.Key
		if i := strings.Index(name, ".$"); i >= 0 {
			name = name[:i]
		} else if i := strings.Index(name, "."); i >= 0 {
			name = name[:i]
		}
		fields[name] = true
		if _, isOp := e.Value.(bson.D); isOp || truthy(e.Value) {
			inclusive = true
		}
	}

	out := bson.D{}
	for _, elem := range doc {
		if elem.Key == "_id" {
			if p.includeID {
				out = append(out, elem)
			}
			continue
		}
		if fields[elem.Key] == inclusive {
			out = append(out, elem)
		}
	}
	return out
}

func beforeDot(s string) string {
	if i := strings.Index(s, "."); i >= 0 {
		return s[:i]
	}
	return s
}

func isNumberOrBool(v interface{}) bool {
	switch v.(type) {
	case int, int32, int64, float64, bool:
		return true
	}
	return false
}

func isBool(v interface{}) bool {
	_, ok := v.(bool)
	return ok
}
