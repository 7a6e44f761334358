// Package plan turns raw client parameters into a validated, immutable
// QueryPlan. Validation is fail-fast: the first bad parameter aborts the
// build and no partial plan is ever returned.
package plan

import (
	"github.com/contactbench/contactbench/contactbench/registry"
)

// Value is a coerced filter value. Str is set for string fields; Int holds
// the value for int fields and epoch milliseconds for date fields; Hi is the
// inclusive upper bound for range operators.
type Value struct {
	Kind registry.FieldType
	Str  string
	Int  int64
	Hi   int64
}

// FilterClause is one validated (field, operator, value) predicate.
// Clauses on a plan are AND-combined.
type FilterClause struct {
	Path  string
	Op    registry.Operator
	Value Value
}

// OrderClause is one ordering entry; later clauses break ties for earlier
// ones.
type OrderClause struct {
	Path string
	Desc bool
}

// SearchSpec matches rows whose term occurs case-insensitively in any of the
// entity's searchable fields.
type SearchSpec struct {
	Term   string
	Fields []string
}

// Pagination is normalized page-number pagination. Page is 1-based and
// PageSize is always within [1, MaxPageSize].
type Pagination struct {
	Page     int
	PageSize int
}

// Offset returns the row offset for the page
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// QueryPlan is the validated description of one query. Built once by Build
// and never mutated afterwards.
type QueryPlan struct {
	Entity  string
	Filters []FilterClause
	Order   []OrderClause
	Search  *SearchSpec
	Name    string // non-empty: first OR last name contains, case-insensitive
	Page    Pagination
}

// WithPage returns a copy of the plan pointing at a different page. The
// receiver is left untouched; pagination variants in the harness rely on
// this.
func (q *QueryPlan) WithPage(page int) *QueryPlan {
	cp := *q
	if page < 1 {
		page = 1
	}
	cp.Page.Page = page

	cp.Filters = make([]FilterClause, len(q.Filters))
	copy(cp.Filters, q.Filters)
	cp.Order = make([]OrderClause, len(q.Order))
	copy(cp.Order, q.Order)
	if q.Search != nil {
		s := *q.Search
		s.Fields = make([]string, len(q.Search.Fields))
		copy(s.Fields, q.Search.Fields)
		cp.Search = &s
	}
	return &cp
}
