package plan

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/contactbench/contactbench/contactbench"
	"github.com/contactbench/contactbench/contactbench/registry"
)

// Parameter names with reserved meaning; everything else is treated as a
// filter key.
const (
	paramOrdering = "ordering"
	paramSearch   = "search"
	paramName     = "name"
	paramPage     = "page"
	paramPageSize = "page_size"
	paramOffset   = "offset"
	paramLimit    = "limit"
)

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Build validates raw parameters against the registry and compiles them into
// a QueryPlan. Filter keys use the wire form `field__op` where the field part
// may traverse a related entity (`relationship__points__gte`); dotted paths
// are accepted as well. Pagination values out of range clamp; anything else
// invalid fails with the first error encountered.
func Build(reg *registry.Registry, entity string, params map[string]string) (*QueryPlan, error) {
	ent, err := reg.Lookup(entity)
	if err != nil {
		return nil, err
	}

	q := &QueryPlan{Entity: entity}

	// Deterministic processing order: plans built from the same parameters
	// must be structurally equal.
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := params[key]
		switch key {
		case paramOrdering, paramSearch, paramName, paramPage, paramPageSize, paramOffset, paramLimit:
			continue
		}
		clause, err := buildFilter(ent, key, value)
		if err != nil {
			return nil, err
		}
		q.Filters = append(q.Filters, clause)
	}

	if ordering, ok := params[paramOrdering]; ok && strings.TrimSpace(ordering) != "" {
		order, err := buildOrdering(ent, ordering)
		if err != nil {
			return nil, err
		}
		q.Order = order
	} else {
		path, desc := ent.DefaultOrdering()
		q.Order = []OrderClause{{Path: path, Desc: desc}}
	}

	if term := strings.TrimSpace(params[paramSearch]); term != "" {
		q.Search = &SearchSpec{Term: term, Fields: ent.SearchFields()}
	}

	q.Name = strings.TrimSpace(params[paramName])

	page, err := buildPagination(params)
	if err != nil {
		return nil, err
	}
	q.Page = page

	return q, nil
}

// normalizePath converts the wire form (double underscores) to the dotted
// FieldPath form.
func normalizePath(raw string) string {
	return strings.ReplaceAll(raw, "__", ".")
}

func buildFilter(ent *registry.Entity, key, value string) (FilterClause, error) {
	fieldPart := key
	op := registry.OpEquals

	if i := strings.LastIndex(key, "__"); i >= 0 {
		if candidate, ok := registry.OperatorFromSuffix(key[i+2:]); ok {
			op = candidate
			fieldPart = key[:i]
		}
	}
	path := normalizePath(fieldPart)

	spec, err := ent.FilterField(path)
	if err != nil {
		return FilterClause{}, err
	}
	if !registry.Compatible(op, spec.Type) {
		return FilterClause{}, contactbench.ValidationError(path,
			fmt.Sprintf("operator %s not applicable to %s field", op, spec.Type))
	}

	val, err := coerceValue(path, spec.Type, op, value)
	if err != nil {
		return FilterClause{}, err
	}
	return FilterClause{Path: path, Op: op, Value: val}, nil
}

func coerceValue(path string, t registry.FieldType, op registry.Operator, raw string) (Value, error) {
	if op == registry.OpRange {
		lo, hi, ok := strings.Cut(raw, ",")
		if !ok {
			return Value{}, contactbench.ValidationError(path, "range value must be lo,hi")
		}
		loVal, err := coerceScalar(path, t, strings.TrimSpace(lo))
		if err != nil {
			return Value{}, err
		}
		hiVal, err := coerceScalar(path, t, strings.TrimSpace(hi))
		if err != nil {
			return Value{}, err
		}
		if loVal.Int > hiVal.Int {
			return Value{}, contactbench.ValidationError(path, "range lower bound exceeds upper bound")
		}
		loVal.Hi = hiVal.Int
		return loVal, nil
	}
	return coerceScalar(path, t, raw)
}

func coerceScalar(path string, t registry.FieldType, raw string) (Value, error) {
	switch t {
	case registry.TypeString:
		return Value{Kind: t, Str: raw}, nil

	case registry.TypeInt:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Value{}, contactbench.ValidationError(path, fmt.Sprintf("not an integer: %q", raw))
		}
		return Value{Kind: t, Int: n}, nil

	case registry.TypeDate:
		for _, layout := range dateLayouts {
			if ts, err := time.Parse(layout, raw); err == nil {
				return Value{Kind: t, Int: ts.UnixMilli()}, nil
			}
		}
		return Value{}, contactbench.ValidationError(path, fmt.Sprintf("not a date: %q", raw))

	default:
		return Value{}, contactbench.ValidationError(path, fmt.Sprintf("unsupported field type %s", t))
	}
}

func buildOrdering(ent *registry.Entity, raw string) ([]OrderClause, error) {
	parts := strings.Split(raw, ",")
	out := make([]OrderClause, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		desc := false
		if strings.HasPrefix(part, "-") {
			desc = true
			part = part[1:]
		}
		path := normalizePath(part)
		if _, err := ent.OrderField(path); err != nil {
			return nil, err
		}
		out = append(out, OrderClause{Path: path, Desc: desc})
	}
	if len(out) == 0 {
		path, desc := ent.DefaultOrdering()
		out = append(out, OrderClause{Path: path, Desc: desc})
	}
	return out, nil
}

func buildPagination(params map[string]string) (Pagination, error) {
	p := Pagination{Page: 1, PageSize: contactbench.DefaultPageSize}

	if raw, ok := params[paramPageSize]; ok {
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return Pagination{}, contactbench.ValidationError(paramPageSize, fmt.Sprintf("not an integer: %q", raw))
		}
		p.PageSize = clamp(n, 1, contactbench.MaxPageSize)
	} else if raw, ok := params[paramLimit]; ok {
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return Pagination{}, contactbench.ValidationError(paramLimit, fmt.Sprintf("not an integer: %q", raw))
		}
		p.PageSize = clamp(n, 1, contactbench.MaxPageSize)
	}

	if raw, ok := params[paramPage]; ok {
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return Pagination{}, contactbench.ValidationError(paramPage, fmt.Sprintf("not an integer: %q", raw))
		}
		if n < 1 {
			n = 1
		}
		p.Page = n
	} else if raw, ok := params[paramOffset]; ok {
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return Pagination{}, contactbench.ValidationError(paramOffset, fmt.Sprintf("not an integer: %q", raw))
		}
		if n < 0 {
			n = 0
		}
		p.Page = n/p.PageSize + 1
	}

	return p, nil
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
