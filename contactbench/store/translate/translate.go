// Package translate compiles a validated QueryPlan into goqu datasets. It is
// the only place that knows how the three contact tables join together;
// backends supply a dialect-bound database and execute what comes out.
package translate

import (
	"strings"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"

	"github.com/contactbench/contactbench/contactbench"
	"github.com/contactbench/contactbench/contactbench/plan"
	"github.com/contactbench/contactbench/contactbench/registry"
)

var (
	// Tables
	appuserTable      = goqu.T("appuser")
	addressTable      = goqu.T("address")
	relationshipTable = goqu.T("customer_relationship")

	// Columns: appuser
	appuser_id          = goqu.I("appuser.id")
	appuser_firstName   = goqu.I("appuser.first_name")
	appuser_lastName    = goqu.I("appuser.last_name")
	appuser_gender      = goqu.I("appuser.gender")
	appuser_customerId  = goqu.I("appuser.customer_id")
	appuser_phoneNumber = goqu.I("appuser.phone_number")
	appuser_created     = goqu.I("appuser.created")
	appuser_birthday    = goqu.I("appuser.birthday")
	appuser_lastUpdated = goqu.I("appuser.last_updated")
	appuser_addressId   = goqu.I("appuser.address_id")

	// Columns: address
	address_id           = goqu.I("address.id")
	address_street       = goqu.I("address.street")
	address_streetNumber = goqu.I("address.street_number")
	address_cityCode     = goqu.I("address.city_code")
	address_city         = goqu.I("address.city")
	address_country      = goqu.I("address.country")

	// Columns: customer_relationship
	rel_appuserId    = goqu.I("customer_relationship.appuser_id")
	rel_points       = goqu.I("customer_relationship.points")
	rel_created      = goqu.I("customer_relationship.created")
	rel_lastActivity = goqu.I("customer_relationship.last_activity")
)

// Queryable is satisfied by *goqu.Database and *goqu.TxDatabase.
type Queryable interface {
	From(...interface{}) *goqu.SelectDataset
}

// Contacts builds the paginated row query for a plan: one SELECT over the
// three-table join with the plan's filters, search, ordering, and page
// window applied.
func Contacts(db Queryable, ent *registry.Entity, q *plan.QueryPlan) (*goqu.SelectDataset, error) {
	ds := base(db).Select(
		appuser_id,
		appuser_firstName,
		appuser_lastName,
		appuser_gender,
		appuser_customerId,
		appuser_phoneNumber,
		appuser_created,
		appuser_birthday,
		appuser_lastUpdated,
		appuser_addressId,
		address_street,
		address_streetNumber,
		address_cityCode,
		address_city,
		address_country,
		rel_points,
		rel_created.As("relationship_created"),
		rel_lastActivity.As("last_activity"),
	)

	where, err := whereExpressions(ent, q)
	if err != nil {
		return nil, err
	}
	if len(where) > 0 {
		ds = ds.Where(where...)
	}

	order, err := ordering(ent, q)
	if err != nil {
		return nil, err
	}
	ds = ds.Order(order...)

	ds = ds.Limit(uint(q.Page.PageSize)).Offset(uint(q.Page.Offset()))
	return ds, nil
}

// Count builds the unpaginated match-count query for a plan.
func Count(db Queryable, ent *registry.Entity, q *plan.QueryPlan) (*goqu.SelectDataset, error) {
	ds := base(db).Select(goqu.COUNT(goqu.Star()))

	where, err := whereExpressions(ent, q)
	if err != nil {
		return nil, err
	}
	if len(where) > 0 {
		ds = ds.Where(where...)
	}
	return ds, nil
}

func base(db Queryable) *goqu.SelectDataset {
	return db.From(appuserTable).
		LeftJoin(addressTable, goqu.On(appuser_addressId.Eq(address_id))).
		LeftJoin(relationshipTable, goqu.On(rel_appuserId.Eq(appuser_id)))
}

func whereExpressions(ent *registry.Entity, q *plan.QueryPlan) ([]goqu.Expression, error) {
	out := make([]goqu.Expression, 0, len(q.Filters)+2)

	for _, f := range q.Filters {
		e, err := filterExpression(ent, f)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}

	if q.Search != nil {
		e, err := searchExpression(ent, q.Search)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}

	if q.Name != "" {
		out = append(out, goqu.Or(
			containsCI(appuser_firstName, q.Name),
			containsCI(appuser_lastName, q.Name),
		))
	}

	return out, nil
}

func filterExpression(ent *registry.Entity, f plan.FilterClause) (goqu.Expression, error) {
	column, err := ent.Column(f.Path)
	if err != nil {
		return nil, err
	}
	col := goqu.I(column)

	switch f.Op {
	case registry.OpEquals:
		if f.Value.Kind == registry.TypeString {
			return col.Eq(f.Value.Str), nil
		}
		return col.Eq(f.Value.Int), nil
	case registry.OpIContains:
		return containsCI(col, f.Value.Str), nil
	case registry.OpGTE:
		return col.Gte(f.Value.Int), nil
	case registry.OpLTE:
		return col.Lte(f.Value.Int), nil
	case registry.OpGT:
		return col.Gt(f.Value.Int), nil
	case registry.OpLT:
		return col.Lt(f.Value.Int), nil
	case registry.OpRange:
		return col.Between(goqu.Range(f.Value.Int, f.Value.Hi)), nil
	default:
		return nil, contactbench.ValidationError(f.Path, "unsupported operator "+string(f.Op))
	}
}

func searchExpression(ent *registry.Entity, s *plan.SearchSpec) (goqu.Expression, error) {
	parts := make([]goqu.Expression, 0, len(s.Fields))
	for _, path := range s.Fields {
		column, err := ent.Column(path)
		if err != nil {
			return nil, err
		}
		parts = append(parts, containsCI(goqu.I(column), s.Term))
	}
	return goqu.Or(parts...), nil
}

// likeEscaper guards LIKE metacharacters so terms match as literal
// substrings.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsCI is a case-insensitive literal substring match that renders the
// same on postgres and sqlite.
func containsCI(col exp.IdentifierExpression, term string) goqu.Expression {
	pattern := "%" + likeEscaper.Replace(strings.ToLower(term)) + "%"
	return goqu.L(`LOWER(?) LIKE ? ESCAPE '\'`, col, pattern)
}

func ordering(ent *registry.Entity, q *plan.QueryPlan) ([]exp.OrderedExpression, error) {
	out := make([]exp.OrderedExpression, 0, len(q.Order)+1)
	for _, o := range q.Order {
		column, err := ent.Column(o.Path)
		if err != nil {
			return nil, err
		}
		col := goqu.I(column)
		if o.Desc {
			out = append(out, col.Desc())
		} else {
			out = append(out, col.Asc())
		}
	}
	// Stable pagination needs a total order; id breaks whatever ties remain.
	out = append(out, appuser_id.Asc())
	return out, nil
}
