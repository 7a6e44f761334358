// Package seed generates and loads contact fixtures. Row ids are assigned
// client-side so the loader behaves identically on sqlite and postgres.
package seed

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"

	"github.com/contactbench/contactbench/contactbench"
)

// Contact is one fixture record across the three tables. Address is
// optional, mirroring the nullable FK.
type Contact struct {
	User         User
	Address      *Address
	Relationship Relationship
}

type User struct {
	FirstName   string
	LastName    string
	Gender      *string
	CustomerID  string
	PhoneNumber *string
	Created     int64
	Birthday    *int64
	LastUpdated int64
}

type Address struct {
	Street       string
	StreetNumber string
	CityCode     string
	City         string
	Country      string
}

type Relationship struct {
	Points       int64
	Created      int64
	LastActivity int64
}

// NewCustomerID returns a unique customer identifier in the canonical
// CUST-<12-hex-uppercase> format.
func NewCustomerID() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "CUST-" + strings.ToUpper(hex[:12])
}

var (
	firstNames = []string{
		"John", "Jane", "Michael", "Maria", "David", "Anna", "Robert", "Laura",
		"James", "Emma", "Daniel", "Sophia", "Thomas", "Olivia", "Carlos", "Nina",
	}
	lastNames = []string{
		"Smith", "Johnson", "Brown", "Garcia", "Miller", "Davis", "Martinez",
		"Wilson", "Anderson", "Taylor", "Moore", "Jackson", "White", "Lopez",
	}
	cities = []string{
		"New York", "Berlin", "London", "Madrid", "Paris", "Vienna", "Lisbon",
		"Prague", "Dublin", "Rome",
	}
	countries = []string{
		"United States", "Germany", "United Kingdom", "Spain", "France",
		"Austria", "Portugal", "Czechia", "Ireland", "Italy",
	}
	genders = []string{"M", "F", "O"}
)

// Generate builds n pseudo-random contacts. Timestamps spread backwards from
// now; roughly one in ten users has no address, matching the nullable FK.
func Generate(n int, rng *rand.Rand, now time.Time) []Contact {
	nowMS := now.UnixMilli()
	out := make([]Contact, 0, n)

	for i := 0; i < n; i++ {
		created := nowMS - int64(rng.Intn(3*365*24))*int64(time.Hour/time.Millisecond)
		updated := created + int64(rng.Intn(30*24))*int64(time.Hour/time.Millisecond)

		c := Contact{
			User: User{
				FirstName:   firstNames[rng.Intn(len(firstNames))],
				LastName:    lastNames[rng.Intn(len(lastNames))],
				CustomerID:  NewCustomerID(),
				Created:     created,
				LastUpdated: updated,
			},
			Relationship: Relationship{
				Points:       int64(rng.Intn(10000)),
				Created:      created,
				LastActivity: updated,
			},
		}

		if rng.Intn(10) > 0 {
			g := genders[rng.Intn(len(genders))]
			c.User.Gender = &g
		}
		if rng.Intn(10) > 1 {
			phone := "+1-555-" + uuid.NewString()[:8]
			c.User.PhoneNumber = &phone
		}
		if rng.Intn(10) > 2 {
			bday := nowMS - int64(20+rng.Intn(50))*365*24*int64(time.Hour/time.Millisecond)
			c.User.Birthday = &bday
		}
		if rng.Intn(10) > 0 {
			ci := rng.Intn(len(cities))
			c.Address = &Address{
				Street:       lastNames[rng.Intn(len(lastNames))] + " Street",
				StreetNumber: uuid.NewString()[:4],
				CityCode:     uuid.NewString()[:5],
				City:         cities[ci],
				Country:      countries[ci],
			}
		}

		out = append(out, c)
	}
	return out
}

const insertChunk = 500

// Load bulk-inserts the contacts in one transaction. Ids start at 1 and
// follow slice order, so fixtures are addressable from tests.
func Load(ctx context.Context, gdb *goqu.Database, contacts []Contact) error {
	tx, err := gdb.BeginTx(ctx, nil)
	if err != nil {
		return contactbench.Wrap(contactbench.ErrSQL, "begin", err)
	}

	if err := load(ctx, tx, contacts); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return contactbench.Wrap(contactbench.ErrSQL, "commit", err)
	}
	return nil
}

func load(ctx context.Context, tx *goqu.TxDatabase, contacts []Contact) error {
	var addresses, users, relationships []interface{}

	addressID := int64(0)
	for i, c := range contacts {
		userID := int64(i + 1)

		var addrRef interface{}
		if c.Address != nil {
			addressID++
			addresses = append(addresses, goqu.Record{
				"id":            addressID,
				"street":        c.Address.Street,
				"street_number": c.Address.StreetNumber,
				"city_code":     c.Address.CityCode,
				"city":          c.Address.City,
				"country":       c.Address.Country,
			})
			addrRef = addressID
		}

		users = append(users, goqu.Record{
			"id":           userID,
			"first_name":   c.User.FirstName,
			"last_name":    c.User.LastName,
			"gender":       c.User.Gender,
			"customer_id":  c.User.CustomerID,
			"phone_number": c.User.PhoneNumber,
			"created":      c.User.Created,
			"birthday":     c.User.Birthday,
			"last_updated": c.User.LastUpdated,
			"address_id":   addrRef,
		})
		relationships = append(relationships, goqu.Record{
			"id":            userID,
			"appuser_id":    userID,
			"points":        c.Relationship.Points,
			"created":       c.Relationship.Created,
			"last_activity": c.Relationship.LastActivity,
		})
	}

	// appuser references address, relationship references appuser; insert in
	// dependency order.
	if err := insertChunked(ctx, tx, "address", addresses); err != nil {
		return err
	}
	if err := insertChunked(ctx, tx, "appuser", users); err != nil {
		return err
	}
	return insertChunked(ctx, tx, "customer_relationship", relationships)
}

func insertChunked(ctx context.Context, tx *goqu.TxDatabase, table string, rows []interface{}) error {
	for start := 0; start < len(rows); start += insertChunk {
		end := start + insertChunk
		if end > len(rows) {
			end = len(rows)
		}
		_, err := tx.Insert(table).Rows(rows[start:end]...).Prepared(true).Executor().ExecContext(ctx)
		if err != nil {
			return contactbench.Wrap(contactbench.ErrSQL, "insert "+table, err)
		}
	}
	return nil
}
