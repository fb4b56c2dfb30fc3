// Copyright 2024 TernDB Corp. All rights reserved.
package query

import (
	"fmt"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// LiteParsedQuery is the wire-level form of a query: the target namespace
// plus the raw filter, sort, projection, limits and option flags.
type LiteParsedQuery struct {
	NS         string
	Filter     bson.D
	Sort       bson.D
	Projection bson.D
	Skip       int
	Limit      int
	BatchSize  int
	Hint       bson.D

	Explain     bool
	ShowDiskLoc bool
	Snapshot    bool
	Tailable    bool
	AwaitData   bool
}

// CanonicalQuery is the validated, normalised form of a query. Immutable
// after construction; ownership transfers into the runner that serves it.
type CanonicalQuery struct {
	parsed *LiteParsedQuery
	root   *MatchExpression
	proj   *ParsedProjection
}

// Canonicalize validates lpq and parses its filter and projection.
func Canonicalize(lpq *LiteParsedQuery) (*CanonicalQuery, error) {
	if lpq.NS == "" {
		return nil, NewErrBadValue("query has no namespace")
	}
	if lpq.Skip < 0 {
		return nil, NewErrBadValue("skip value must be non-negative")
	}
	if lpq.Limit < 0 {
		return nil, NewErrBadValue("limit value must be non-negative")
	}
	if err := validateSort(lpq.Sort); err != nil {
		return nil, err
	}

	root, err := ParseMatchExpression(lpq.Filter)
	if err != nil {
		return nil, err
	}

	cq := &CanonicalQuery{
		parsed: lpq,
		root:   root,
	}

	if len(lpq.Projection) > 0 {
		proj, err := MakeParsedProjection(lpq.Projection, lpq.Filter)
		if err != nil {
			return nil, err
		}
		cq.proj = proj
	}
	return cq, nil
}

func validateSort(sortSpec bson.D) error {
	for _, elem := range sortSpec {
		if elem.Key == "$natural" && len(sortSpec) != 1 {
			return NewErrBadValue("$natural sort cannot be combined with other sort fields")
		}
		if isBool(elem.Value) || !isNumberOrBool(elem.Value) {
			return NewErrBadValue("bad sort specification: %v", sortSpec)
		}
		if v := numberValue(elem.Value); v != 1 && v != -1 {
			return NewErrBadValue("bad sort specification: %v", sortSpec)
		}
	}
	return nil
}

func (cq *CanonicalQuery) NS() string               { return cq.parsed.NS }
func (cq *CanonicalQuery) Parsed() *LiteParsedQuery { return cq.parsed }
func (cq *CanonicalQuery) Filter() bson.D           { return cq.parsed.Filter }
func (cq *CanonicalQuery) Root() *MatchExpression   { return cq.root }
func (cq *CanonicalQuery) Sort() bson.D             { return cq.parsed.Sort }
func (cq *CanonicalQuery) Proj() *ParsedProjection  { return cq.proj }

// IsEmptyQuery reports whether the filter matches everything.
func (cq *CanonicalQuery) IsEmptyQuery() bool {
	return len(cq.parsed.Filter) == 0
}

// HasNaturalSort reports whether the sort is exactly {$natural: dir}.
func (cq *CanonicalQuery) HasNaturalSort(dir int) bool {
	s := cq.parsed.Sort
	return len(s) == 1 && s[0].Key == "$natural" && int(numberValue(s[0].Value)) == dir
}

// ShapeKey is the canonical encoding of the query shape: filter structure
// (fields and operators, not constants), sort and projection. Two queries
// with the same shape share plan cache entries and index filters.
func (cq *CanonicalQuery) ShapeKey() string {
	var b strings.Builder
	b.WriteString(cq.parsed.NS)
	b.WriteString("|f:")
	writeExprShape(&b, cq.root)
	b.WriteString("|s:")
	for _, elem := range cq.parsed.Sort {
		fmt.Fprintf(&b, "%s:%d,", elem.Key, int(numberValue(elem.Value)))
	}
	b.WriteString("|p:")
	for _, elem := range cq.parsed.Projection {
		b.WriteString(elem.Key)
		b.WriteString(",")
	}
	return b.String()
}

func writeExprShape(b *strings.Builder, m *MatchExpression) {
	if m == nil {
		return
	}
	if m.IsLogical() && m.Field == "" {
		b.WriteString(m.Op.String())
		b.WriteString("(")
		shapes := make([]string, 0, len(m.Children))
		for _, c := range m.Children {
			var cb strings.Builder
			writeExprShape(&cb, c)
			shapes = append(shapes, cb.String())
		}
		// Child order doesn't change what a connective matches.
		sort.Strings(shapes)
		b.WriteString(strings.Join(shapes, ","))
		b.WriteString(")")
		return
	}
	b.WriteString(m.Field)
	b.WriteString(m.Op.String())
	if len(m.Children) > 0 {
		b.WriteString("(")
		for i, c := range m.Children {
			if i > 0 {
				b.WriteString(",")
			}
			writeExprShape(b, c)
		}
		b.WriteString(")")
	}
}

// String renders the query for diagnostics.
func (cq *CanonicalQuery) String() string {
	return fmt.Sprintf("ns=%s filter=%v sort=%v proj=%v skip=%d limit=%d",
		cq.parsed.NS, cq.parsed.Filter, cq.parsed.Sort, cq.parsed.Projection,
		cq.parsed.Skip, cq.parsed.Limit)
}
