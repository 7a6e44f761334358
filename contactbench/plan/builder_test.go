package plan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contactbench/contactbench/contactbench"
	"github.com/contactbench/contactbench/contactbench/registry"
)

func buildOK(t *testing.T, params map[string]string) *QueryPlan {
	t.Helper()
	q, err := Build(registry.Contacts(), registry.EntityAppUser, params)
	require.NoError(t, err)
	require.NotNil(t, q)
	return q
}

func TestBuildFilterCountMatchesParams(t *testing.T) {
	q := buildOK(t, map[string]string{
		"first_name__icontains":     "John",
		"gender":                    "M",
		"relationship__points__gte": "1000",
		"created__lte":              "2024-06-01",
	})
	assert.Len(t, q.Filters, 4)
}

func TestBuildUnknownFieldFailsWithoutPlan(t *testing.T) {
	q, err := Build(registry.Contacts(), registry.EntityAppUser, map[string]string{
		"nonexistent__icontains": "x",
	})
	require.Error(t, err)
	assert.Nil(t, q)
	assert.True(t, contactbench.IsKind(err, contactbench.ErrUnknownField))
}

func TestBuildTypeMismatch(t *testing.T) {
	cases := map[string]map[string]string{
		"int field gets text":    {"relationship__points__gte": "lots"},
		"date field gets text":   {"created__gte": "yesterday"},
		"icontains on int field": {"relationship__points__icontains": "12"},
		"gt on string field":     {"first_name__gt": "J"},
		"malformed range":        {"relationship__points__range": "100"},
		"inverted range":         {"relationship__points__range": "500,100"},
		"page not an integer":    {"page": "two"},
	}
	for name, params := range cases {
		t.Run(name, func(t *testing.T) {
			q, err := Build(registry.Contacts(), registry.EntityAppUser, params)
			require.Error(t, err)
			assert.Nil(t, q)
			assert.True(t, contactbench.IsKind(err, contactbench.ErrValidation), "got %v", err)
		})
	}
}

func TestBuildValueCoercion(t *testing.T) {
	q := buildOK(t, map[string]string{
		"relationship__points__range": "100,500",
		"birthday__gte":               "1990-01-01",
	})
	require.Len(t, q.Filters, 2)

	// Filters are sorted by parameter key: birthday before points.
	bday := q.Filters[0]
	assert.Equal(t, "birthday", bday.Path)
	want := time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	assert.Equal(t, want, bday.Value.Int)

	pts := q.Filters[1]
	assert.Equal(t, "relationship.points", pts.Path)
	assert.Equal(t, registry.OpRange, pts.Op)
	assert.Equal(t, int64(100), pts.Value.Int)
	assert.Equal(t, int64(500), pts.Value.Hi)
}

func TestBuildOrdering(t *testing.T) {
	q := buildOK(t, map[string]string{
		"ordering": "-relationship__points,last_name,first_name",
	})
	require.Len(t, q.Order, 3)
	assert.Equal(t, OrderClause{Path: "relationship.points", Desc: true}, q.Order[0])
	assert.Equal(t, OrderClause{Path: "last_name", Desc: false}, q.Order[1])
	assert.Equal(t, OrderClause{Path: "first_name", Desc: false}, q.Order[2])
}

func TestBuildOrderingUnknownField(t *testing.T) {
	_, err := Build(registry.Contacts(), registry.EntityAppUser, map[string]string{
		"ordering": "-salary",
	})
	require.Error(t, err)
	assert.True(t, contactbench.IsKind(err, contactbench.ErrUnknownField))
}

func TestBuildDefaultOrdering(t *testing.T) {
	q := buildOK(t, map[string]string{})
	require.Len(t, q.Order, 1)
	assert.Equal(t, OrderClause{Path: "created", Desc: true}, q.Order[0])
}

func TestBuildSearch(t *testing.T) {
	q := buildOK(t, map[string]string{"search": "John"})
	require.NotNil(t, q.Search)
	assert.Equal(t, "John", q.Search.Term)
	assert.Contains(t, q.Search.Fields, "address.city")
	assert.Contains(t, q.Search.Fields, "customer_id")

	empty := buildOK(t, map[string]string{"search": "   "})
	assert.Nil(t, empty.Search)
}

func TestBuildPaginationClamps(t *testing.T) {
	q := buildOK(t, map[string]string{"page": "0", "page_size": "999999"})
	assert.Equal(t, 1, q.Page.Page)
	assert.Equal(t, contactbench.MaxPageSize, q.Page.PageSize)

	q = buildOK(t, map[string]string{"page_size": "-5"})
	assert.Equal(t, 1, q.Page.PageSize)

	q = buildOK(t, map[string]string{})
	assert.Equal(t, 1, q.Page.Page)
	assert.Equal(t, contactbench.DefaultPageSize, q.Page.PageSize)
}

func TestBuildOffsetLimitNormalized(t *testing.T) {
	q := buildOK(t, map[string]string{"offset": "100", "limit": "25"})
	assert.Equal(t, 25, q.Page.PageSize)
	assert.Equal(t, 5, q.Page.Page)
	assert.Equal(t, 100, q.Page.Offset())
}

func TestBuildStructurallyEqualForSameParams(t *testing.T) {
	params := map[string]string{
		"first_name__icontains": "John",
		"ordering":              "-created",
		"page_size":             "50",
		"search":                "smith",
	}
	a := buildOK(t, params)
	b := buildOK(t, params)
	assert.Equal(t, a, b)
}

func TestWithPageDoesNotMutateOriginal(t *testing.T) {
	q := buildOK(t, map[string]string{"page": "2", "search": "x"})
	p := q.WithPage(7)
	assert.Equal(t, 2, q.Page.Page)
	assert.Equal(t, 7, p.Page.Page)
	assert.Equal(t, q.Search.Term, p.Search.Term)
}

func TestBuildNameParam(t *testing.T) {
	q := buildOK(t, map[string]string{"name": "John"})
	assert.Equal(t, "John", q.Name)
	assert.Empty(t, q.Filters)
}
