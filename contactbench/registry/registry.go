// Package registry declares the queryable surface of the contact schema:
// which field paths are filterable, orderable, and searchable, and the value
// type each one carries. It is built once at startup and read-only after.
package registry

import (
	"fmt"

	"github.com/contactbench/contactbench/contactbench"
)

// FieldType specifies the value type of a field
type FieldType string

const (
	TypeString FieldType = "string"
	TypeInt    FieldType = "int"
	TypeDate   FieldType = "date"
)

// FieldSpec describes one registered field path
type FieldSpec struct {
	Type   FieldType
	Column string // qualified SQL column, e.g. "customer_relationship.points"
}

// Entity holds the capability sets for one queryable entity
type Entity struct {
	Name     string
	Table    string
	fields   map[string]FieldSpec // every known path, for column resolution
	filter   map[string]FieldSpec
	order    map[string]FieldSpec
	search   []string             // field paths, fixed order
	defOrder string               // default ordering field path
	defDesc  bool
}

// Registry maps entity names to their capability sets
type Registry struct {
	entities map[string]*Entity
}

// Lookup returns the entity registration by name
func (r *Registry) Lookup(name string) (*Entity, error) {
	e, ok := r.entities[name]
	if !ok {
		return nil, contactbench.ValidationError("entity", fmt.Sprintf("unknown entity %q", name))
	}
	return e, nil
}

// FilterField resolves a filterable field path or fails with unknown_field
func (e *Entity) FilterField(path string) (FieldSpec, error) {
	spec, ok := e.filter[path]
	if !ok {
		return FieldSpec{}, contactbench.UnknownFieldError(path)
	}
	return spec, nil
}

// OrderField resolves an orderable field path or fails with unknown_field
func (e *Entity) OrderField(path string) (FieldSpec, error) {
	spec, ok := e.order[path]
	if !ok {
		return FieldSpec{}, contactbench.UnknownFieldError(path)
	}
	return spec, nil
}

// SearchFields returns the fixed set of searchable field paths
func (e *Entity) SearchFields() []string {
	out := make([]string, len(e.search))
	copy(out, e.search)
	return out
}

// Column resolves any registered field path to its qualified SQL column
func (e *Entity) Column(path string) (string, error) {
	spec, ok := e.fields[path]
	if !ok {
		return "", contactbench.UnknownFieldError(path)
	}
	return spec.Column, nil
}

// HasField reports whether the path is registered at all (any capability)
func (e *Entity) HasField(path string) bool {
	_, ok := e.fields[path]
	return ok
}

// DefaultOrdering returns the entity's default order field and direction
func (e *Entity) DefaultOrdering() (path string, desc bool) {
	return e.defOrder, e.defDesc
}

// Compatible reports whether an operator can be applied to a field type.
// Case-insensitive contains only makes sense for strings; inequalities and
// ranges only for ints and dates; equality for everything.
func Compatible(op Operator, t FieldType) bool {
	switch op {
	case OpEquals:
		return true
	case OpIContains:
		return t == TypeString
	case OpGT, OpLT, OpGTE, OpLTE, OpRange:
		return t == TypeInt || t == TypeDate
	default:
		return false
	}
}

// Operator is a filter comparison operator
type Operator string

const (
	OpEquals    Operator = "equals"
	OpIContains Operator = "icontains"
	OpGTE       Operator = "gte"
	OpLTE       Operator = "lte"
	OpGT        Operator = "gt"
	OpLT        Operator = "lt"
	OpRange     Operator = "range"
)

// OperatorFromSuffix maps a raw parameter suffix to an operator. The empty
// suffix means plain equality.
func OperatorFromSuffix(suffix string) (Operator, bool) {
	switch suffix {
	case "":
		return OpEquals, true
	case "icontains":
		return OpIContains, true
	case "gte":
		return OpGTE, true
	case "lte":
		return OpLTE, true
	case "gt":
		return OpGT, true
	case "lt":
		return OpLT, true
	case "range":
		return OpRange, true
	default:
		return "", false
	}
}

// EntityAppUser is the base entity name for contact queries
const EntityAppUser = "appuser"

// Contacts builds the process-wide registry for the three contact entities.
// The capability lists mirror the public API surface: filterable and
// orderable fields span all three tables via the appuser joins.
func Contacts() *Registry {
	fields := map[string]FieldSpec{
		"id":                         {TypeInt, "appuser.id"},
		"first_name":                 {TypeString, "appuser.first_name"},
		"last_name":                  {TypeString, "appuser.last_name"},
		"gender":                     {TypeString, "appuser.gender"},
		"customer_id":                {TypeString, "appuser.customer_id"},
		"phone_number":               {TypeString, "appuser.phone_number"},
		"created":                    {TypeDate, "appuser.created"},
		"birthday":                   {TypeDate, "appuser.birthday"},
		"last_updated":               {TypeDate, "appuser.last_updated"},
		"address.id":                 {TypeInt, "address.id"},
		"address.street":             {TypeString, "address.street"},
		"address.street_number":      {TypeString, "address.street_number"},
		"address.city":               {TypeString, "address.city"},
		"address.city_code":          {TypeString, "address.city_code"},
		"address.country":            {TypeString, "address.country"},
		"relationship.points":        {TypeInt, "customer_relationship.points"},
		"relationship.created":       {TypeDate, "customer_relationship.created"},
		"relationship.last_activity": {TypeDate, "customer_relationship.last_activity"},
	}

	filterable := []string{
		"id", "first_name", "last_name", "gender", "customer_id",
		"phone_number", "created", "birthday", "last_updated",
		"address.id", "address.street", "address.city", "address.city_code",
		"address.country",
		"relationship.points", "relationship.created", "relationship.last_activity",
	}
	orderable := []string{
		"id", "first_name", "last_name", "gender", "customer_id",
		"phone_number", "created", "birthday", "last_updated",
		"address.city", "address.country", "address.city_code",
		"relationship.points", "relationship.created", "relationship.last_activity",
	}
	searchable := []string{
		"first_name", "last_name", "customer_id", "phone_number",
		"address.street", "address.city", "address.country",
	}

	e := &Entity{
		Name:     EntityAppUser,
		Table:    "appuser",
		fields:   fields,
		filter:   make(map[string]FieldSpec, len(filterable)),
		order:    make(map[string]FieldSpec, len(orderable)),
		search:   searchable,
		defOrder: "created",
		defDesc:  true,
	}
	for _, p := range filterable {
		e.filter[p] = fields[p]
	}
	for _, p := range orderable {
		e.order[p] = fields[p]
	}

	return &Registry{entities: map[string]*Entity{e.Name: e}}
}
