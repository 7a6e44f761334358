// Package postgres backs the store interface with PostgreSQL via pgx. Each
// query runs inside a transaction that sets a local statement_timeout, so
// overlong statements are aborted server-side rather than merely abandoned
// by the client.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/contactbench/contactbench/contactbench"
	"github.com/contactbench/contactbench/contactbench/registry"
	"github.com/contactbench/contactbench/contactbench/store"
	"github.com/contactbench/contactbench/contactbench/store/translate"
)

// SQLSTATE raised when statement_timeout aborts a query.
const queryCanceledCode = "57014"

const ddlBase = `
CREATE TABLE IF NOT EXISTS address (
  id BIGSERIAL PRIMARY KEY,
  street TEXT NOT NULL,
  street_number TEXT NOT NULL,
  city_code TEXT NOT NULL,
  city TEXT NOT NULL,
  country TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS appuser (
  id BIGSERIAL PRIMARY KEY,
  first_name TEXT NOT NULL,
  last_name TEXT NOT NULL,
  gender TEXT,
  customer_id TEXT NOT NULL UNIQUE,
  phone_number TEXT,
  created BIGINT NOT NULL,
  birthday BIGINT,
  last_updated BIGINT NOT NULL,
  address_id BIGINT REFERENCES address(id) ON DELETE SET NULL
);
CREATE INDEX IF NOT EXISTS idx_appuser_created ON appuser(created);
CREATE INDEX IF NOT EXISTS idx_appuser_last_updated ON appuser(last_updated);
CREATE INDEX IF NOT EXISTS idx_appuser_address ON appuser(address_id);

CREATE TABLE IF NOT EXISTS customer_relationship (
  id BIGSERIAL PRIMARY KEY,
  appuser_id BIGINT NOT NULL UNIQUE REFERENCES appuser(id) ON DELETE CASCADE,
  points BIGINT NOT NULL DEFAULT 0,
  created BIGINT NOT NULL,
  last_activity BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_relationship_points ON customer_relationship(points);
CREATE INDEX IF NOT EXISTS idx_relationship_activity ON customer_relationship(last_activity);
`

type Store struct {
	db  *sql.DB
	gdb *goqu.Database
	reg *registry.Registry
}

// Open connects with the given DSN and creates the contact tables if they do
// not exist.
func Open(ctx context.Context, dsn string, reg *registry.Registry) (*Store, error) {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	db := stdlib.OpenDB(*cfg)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, ddlBase); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, gdb: goqu.New("postgres", db), reg: reg}, nil
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Goqu() *goqu.Database { return s.gdb }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Query(ctx context.Context, req store.Request) (*store.Result, error) {
	ent, err := s.reg.Lookup(req.Plan.Entity)
	if err != nil {
		return nil, err
	}

	res := &store.Result{}
	err = s.withTimeout(ctx, req, &res.Statements, func(tx *goqu.TxDatabase) error {
		countDs, err := translate.Count(tx, ent, req.Plan)
		if err != nil {
			return err
		}
		res.Statements++
		if _, err := countDs.Prepared(true).ScanValContext(ctx, &res.Total); err != nil {
			return classify("count query", err)
		}

		ds, err := translate.Contacts(tx, ent, req.Plan)
		if err != nil {
			return err
		}
		res.Statements++
		if err := ds.Prepared(true).ScanStructsContext(ctx, &res.Rows); err != nil {
			return classify("page query", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Store) Count(ctx context.Context, req store.Request) (int64, error) {
	ent, err := s.reg.Lookup(req.Plan.Entity)
	if err != nil {
		return 0, err
	}

	var total int64
	var statements int
	err = s.withTimeout(ctx, req, &statements, func(tx *goqu.TxDatabase) error {
		ds, err := translate.Count(tx, ent, req.Plan)
		if err != nil {
			return err
		}
		if _, err := ds.Prepared(true).ScanValContext(ctx, &total); err != nil {
			return classify("count query", err)
		}
		return nil
	})
	return total, err
}

// withTimeout runs fn in a transaction whose statement_timeout is set to the
// request's timeout. statements is incremented for the SET when one is
// issued.
func (s *Store) withTimeout(ctx context.Context, req store.Request, statements *int, fn func(tx *goqu.TxDatabase) error) error {
	tx, err := s.gdb.BeginTx(ctx, nil)
	if err != nil {
		return contactbench.Wrap(contactbench.ErrSQL, "begin", err)
	}

	if req.Timeout > 0 {
		*statements++
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", req.Timeout.Milliseconds())); err != nil {
			_ = tx.Rollback()
			return contactbench.Wrap(contactbench.ErrSQL, "set statement_timeout", err)
		}
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return classify("commit", err)
	}
	return nil
}

func (s *Store) Stats(ctx context.Context) (*store.Stats, error) {
	out := &store.Stats{}

	if _, err := s.gdb.From("appuser").
		Select(goqu.COUNT(goqu.Star())).
		ScanValContext(ctx, &out.TotalContacts); err != nil {
		return nil, classify("total count", err)
	}

	if _, err := s.gdb.From("appuser").
		Select(goqu.COUNT(goqu.Star())).
		Where(goqu.I("appuser.address_id").IsNotNull()).
		ScanValContext(ctx, &out.WithAddress); err != nil {
		return nil, classify("address count", err)
	}

	if _, err := s.gdb.From("customer_relationship").
		Select(goqu.COUNT(goqu.DISTINCT("appuser_id"))).
		ScanValContext(ctx, &out.WithRelationship); err != nil {
		return nil, classify("relationship count", err)
	}

	return out, nil
}

// classify maps a server-side query_canceled abort to the timed_out error
// kind; everything else stays a plain SQL error.
func classify(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == queryCanceledCode {
		return contactbench.Wrap(contactbench.ErrTimedOut, op+": statement timeout", err)
	}
	return contactbench.Wrap(contactbench.ErrSQL, op, err)
}
