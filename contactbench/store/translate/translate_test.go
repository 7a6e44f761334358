package translate

import (
	"testing"

	"github.com/doug-martin/goqu/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contactbench/contactbench/contactbench/plan"
	"github.com/contactbench/contactbench/contactbench/registry"
)

func buildSQL(t *testing.T, params map[string]string) string {
	t.Helper()
	ent, err := registry.Contacts().Lookup(registry.EntityAppUser)
	require.NoError(t, err)
	q, err := plan.Build(registry.Contacts(), registry.EntityAppUser, params)
	require.NoError(t, err)

	// The default dialect keeps the rendering assertions about structure
	// rather than backend quoting rules.
	ds, err := Contacts(goqu.New("default", nil), ent, q)
	require.NoError(t, err)
	sql, _, err := ds.ToSQL()
	require.NoError(t, err)
	return sql
}

func TestContactsJoinsAllThreeTables(t *testing.T) {
	sql := buildSQL(t, nil)
	assert.Contains(t, sql, `FROM "appuser"`)
	assert.Contains(t, sql, `LEFT JOIN "address"`)
	assert.Contains(t, sql, `LEFT JOIN "customer_relationship"`)
	assert.Contains(t, sql, `AS "relationship_created"`)
	assert.Contains(t, sql, `AS "last_activity"`)
}

func TestContactsFilterRendering(t *testing.T) {
	sql := buildSQL(t, map[string]string{
		"first_name__icontains":       "John",
		"relationship__points__gte":   "1000",
		"relationship__points__range": "100,500",
	})
	assert.Contains(t, sql, `LOWER("appuser"."first_name") LIKE '%john%'`)
	assert.Contains(t, sql, `"customer_relationship"."points" >= 1000`)
	assert.Contains(t, sql, `"customer_relationship"."points" BETWEEN 100 AND 500`)
}

func TestContactsEscapesLikeMetacharacters(t *testing.T) {
	sql := buildSQL(t, map[string]string{"first_name__icontains": "100%_done"})
	assert.Contains(t, sql, `LIKE '%100\%\_done%' ESCAPE '\'`)

	sql = buildSQL(t, map[string]string{"last_name__icontains": `O\Brien`})
	assert.Contains(t, sql, `LIKE '%o\\brien%' ESCAPE '\'`)
}

func TestContactsSearchRendersDisjunction(t *testing.T) {
	sql := buildSQL(t, map[string]string{"search": "Berlin"})
	assert.Contains(t, sql, `LOWER("address"."city") LIKE '%berlin%'`)
	assert.Contains(t, sql, `LOWER("appuser"."customer_id") LIKE '%berlin%'`)
	assert.Contains(t, sql, ` OR `)
}

func TestContactsNameMatchesEitherName(t *testing.T) {
	sql := buildSQL(t, map[string]string{"name": "John"})
	assert.Contains(t, sql, `LOWER("appuser"."first_name") LIKE '%john%'`)
	assert.Contains(t, sql, `LOWER("appuser"."last_name") LIKE '%john%'`)
}

func TestContactsOrderingWithTieBreaker(t *testing.T) {
	sql := buildSQL(t, map[string]string{"ordering": "-relationship__points,last_name"})
	assert.Contains(t, sql, `ORDER BY "customer_relationship"."points" DESC, "appuser"."last_name" ASC, "appuser"."id" ASC`)
}

func TestContactsDefaultOrderingAndPage(t *testing.T) {
	sql := buildSQL(t, map[string]string{"page": "3", "page_size": "50"})
	assert.Contains(t, sql, `ORDER BY "appuser"."created" DESC, "appuser"."id" ASC`)
	assert.Contains(t, sql, `LIMIT 50 OFFSET 100`)
}

func TestCountHasNoOrderingOrPage(t *testing.T) {
	ent, err := registry.Contacts().Lookup(registry.EntityAppUser)
	require.NoError(t, err)
	q, err := plan.Build(registry.Contacts(), registry.EntityAppUser, map[string]string{
		"first_name__icontains": "John",
		"ordering":              "-created",
		"page":                  "7",
	})
	require.NoError(t, err)

	ds, err := Count(goqu.New("default", nil), ent, q)
	require.NoError(t, err)
	sql, _, err := ds.ToSQL()
	require.NoError(t, err)

	assert.Contains(t, sql, `COUNT(*)`)
	assert.Contains(t, sql, `LOWER("appuser"."first_name") LIKE '%john%'`)
	assert.NotContains(t, sql, "ORDER BY")
	assert.NotContains(t, sql, "LIMIT")
}
