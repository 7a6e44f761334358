// Package store defines the relational backend boundary. Backends accept a
// compiled QueryPlan plus a statement-timeout value and report rows, a total
// row count, and best-effort statement telemetry.
package store

import (
	"context"
	"time"

	"github.com/contactbench/contactbench/contactbench/plan"
)

// Request carries one plan to a backend. Timeout, when positive, is mapped
// to the backend's native statement-timeout mechanism where one exists.
type Request struct {
	Plan    *plan.QueryPlan
	Timeout time.Duration
}

// Contact is one joined result row across appuser, address, and
// customer_relationship. Address columns are nullable; timestamps are epoch
// milliseconds.
type Contact struct {
	ID          int64   `db:"id"`
	FirstName   string  `db:"first_name"`
	LastName    string  `db:"last_name"`
	Gender      *string `db:"gender"`
	CustomerID  string  `db:"customer_id"`
	PhoneNumber *string `db:"phone_number"`
	Created     int64   `db:"created"`
	Birthday    *int64  `db:"birthday"`
	LastUpdated int64   `db:"last_updated"`

	AddressID    *int64  `db:"address_id"`
	Street       *string `db:"street"`
	StreetNumber *string `db:"street_number"`
	CityCode     *string `db:"city_code"`
	City         *string `db:"city"`
	Country      *string `db:"country"`

	Points              int64 `db:"points"`
	RelationshipCreated int64 `db:"relationship_created"`
	LastActivity        int64 `db:"last_activity"`
}

// Result is one query response. Total is the unpaginated match count;
// Statements counts the SQL statements the backend issued to satisfy the
// request.
type Result struct {
	Rows       []Contact
	Total      int64
	Statements int
}

// Stats summarizes the contact tables, mirroring the stats endpoint.
type Stats struct {
	TotalContacts    int64
	WithAddress      int64
	WithRelationship int64
}

// Store is the backend boundary consumed by the executor. Implementations
// must be safe for concurrent callers; the shared connection pool underneath
// is the driver's responsibility.
type Store interface {
	// Query runs the plan's page query plus its total count.
	Query(ctx context.Context, req Request) (*Result, error)
	// Count runs only the total count for the plan.
	Count(ctx context.Context, req Request) (int64, error)
	// Stats reports table-level counts.
	Stats(ctx context.Context) (*Stats, error)
	Close() error
}
