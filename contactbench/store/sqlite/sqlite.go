// Package sqlite backs the store interface with a SQLite database. SQLite
// has no server-side statement timeout, so the request timeout is enforced
// through the context deadline only.
package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"

	"github.com/contactbench/contactbench/contactbench"
	"github.com/contactbench/contactbench/contactbench/registry"
	"github.com/contactbench/contactbench/contactbench/store"
	"github.com/contactbench/contactbench/contactbench/store/translate"
)

const ddlBase = `
CREATE TABLE IF NOT EXISTS address (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  street TEXT NOT NULL,
  street_number TEXT NOT NULL,
  city_code TEXT NOT NULL,
  city TEXT NOT NULL,
  country TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS appuser (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  first_name TEXT NOT NULL,
  last_name TEXT NOT NULL,
  gender TEXT,
  customer_id TEXT NOT NULL UNIQUE,
  phone_number TEXT,
  created INTEGER NOT NULL,
  birthday INTEGER,
  last_updated INTEGER NOT NULL,
  address_id INTEGER REFERENCES address(id) ON DELETE SET NULL
);
CREATE INDEX IF NOT EXISTS idx_appuser_created ON appuser(created);
CREATE INDEX IF NOT EXISTS idx_appuser_last_updated ON appuser(last_updated);
CREATE INDEX IF NOT EXISTS idx_appuser_address ON appuser(address_id);

CREATE TABLE IF NOT EXISTS customer_relationship (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  appuser_id INTEGER NOT NULL UNIQUE REFERENCES appuser(id) ON DELETE CASCADE,
  points INTEGER NOT NULL DEFAULT 0,
  created INTEGER NOT NULL,
  last_activity INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_relationship_points ON customer_relationship(points);
CREATE INDEX IF NOT EXISTS idx_relationship_activity ON customer_relationship(last_activity);
`

type Store struct {
	db  *sql.DB
	gdb *goqu.Database
	reg *registry.Registry
}

// Open connects to the database at path and creates the contact tables if
// they do not exist. The driver defaults to the pure-Go "sqlite" driver; the
// caller is expected to import it.
func Open(ctx context.Context, path string, reg *registry.Registry) (*Store, error) {
	return OpenWithDriver(ctx, path, "sqlite", reg)
}

func OpenWithDriver(ctx context.Context, path, driver string, reg *registry.Registry) (*Store, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_busy_timeout=5000&_foreign_keys=on"
	} else {
		dsn += "&_busy_timeout=5000&_foreign_keys=on"
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, ddlBase); err != nil {
		_ = db.Close()
		return nil, err
	}
	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode=WAL;")
	_, _ = db.ExecContext(ctx, "PRAGMA synchronous=NORMAL;")

	return &Store{db: db, gdb: goqu.New("sqlite3", db), reg: reg}, nil
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Goqu() *goqu.Database { return s.gdb }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Query(ctx context.Context, req store.Request) (*store.Result, error) {
	ent, err := s.reg.Lookup(req.Plan.Entity)
	if err != nil {
		return nil, err
	}
	if req.Timeout > 0 {
		var cancelFn context.CancelFunc
		ctx, cancelFn = context.WithTimeout(ctx, req.Timeout)
		defer cancelFn()
	}

	res := &store.Result{}

	countDs, err := translate.Count(s.gdb, ent, req.Plan)
	if err != nil {
		return nil, err
	}
	res.Statements++
	if _, err := countDs.Prepared(true).ScanValContext(ctx, &res.Total); err != nil {
		return nil, contactbench.Wrap(contactbench.ErrSQL, "count query", err)
	}

	ds, err := translate.Contacts(s.gdb, ent, req.Plan)
	if err != nil {
		return nil, err
	}
	res.Statements++
	if err := ds.Prepared(true).ScanStructsContext(ctx, &res.Rows); err != nil {
		return nil, contactbench.Wrap(contactbench.ErrSQL, "page query", err)
	}

	return res, nil
}

func (s *Store) Count(ctx context.Context, req store.Request) (int64, error) {
	ent, err := s.reg.Lookup(req.Plan.Entity)
	if err != nil {
		return 0, err
	}
	if req.Timeout > 0 {
		var cancelFn context.CancelFunc
		ctx, cancelFn = context.WithTimeout(ctx, req.Timeout)
		defer cancelFn()
	}

	ds, err := translate.Count(s.gdb, ent, req.Plan)
	if err != nil {
		return 0, err
	}
	var total int64
	if _, err := ds.Prepared(true).ScanValContext(ctx, &total); err != nil {
		return 0, contactbench.Wrap(contactbench.ErrSQL, "count query", err)
	}
	return total, nil
}

func (s *Store) Stats(ctx context.Context) (*store.Stats, error) {
	out := &store.Stats{}

	if _, err := s.gdb.From("appuser").
		Select(goqu.COUNT(goqu.Star())).
		ScanValContext(ctx, &out.TotalContacts); err != nil {
		return nil, contactbench.Wrap(contactbench.ErrSQL, "total count", err)
	}

	if _, err := s.gdb.From("appuser").
		Select(goqu.COUNT(goqu.Star())).
		Where(goqu.I("appuser.address_id").IsNotNull()).
		ScanValContext(ctx, &out.WithAddress); err != nil {
		return nil, contactbench.Wrap(contactbench.ErrSQL, "address count", err)
	}

	if _, err := s.gdb.From("customer_relationship").
		Select(goqu.COUNT(goqu.DISTINCT("appuser_id"))).
		ScanValContext(ctx, &out.WithRelationship); err != nil {
		return nil, contactbench.Wrap(contactbench.ErrSQL, "relationship count", err)
	}

	return out, nil
}
