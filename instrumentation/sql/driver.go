// Package sql wraps a database/sql driver so that every executed statement
// is reported to a moniof Recorder with a normalized key, its duration and
// its outcome. The wrapper adds no behavior to the underlying driver: errors
// pass through unchanged, and recording happens inside the calling goroutine
// without blocking.
package sql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"sync"
	"time"

	"github.com/srotas-space/moniof/domain"
)

var (
	driversMu sync.Mutex
	drivers   = make(map[string]struct{})
)

// Register wraps d with moniof instrumentation and registers it in
// database/sql under name. Typical usage:
//
//	sqlite := &sqlite3.SQLiteDriver{}
//	moniofsql.Register("sqlite3-moniof", sqlite, probe.Recorder())
//	db, _ := sql.Open("sqlite3-moniof", dsn)
//
// Panics if d or rec is nil or the name is already taken, mirroring
// sql.Register.
func Register(name string, d driver.Driver, rec domain.Recorder) {
	driversMu.Lock()
	defer driversMu.Unlock()

	if d == nil {
		panic("moniof/sql: Register driver is nil")
	}
	if rec == nil {
		panic("moniof/sql: Register recorder is nil")
	}
	if _, dup := drivers[name]; dup {
		panic("moniof/sql: Register called twice for driver " + name)
	}

	drivers[name] = struct{}{}
	sql.Register(name, &mofDriver{real: d, rec: rec})
}

// Open opens a database using a driver previously wrapped via Register.
func Open(driverName, dataSourceName string) (*sql.DB, error) {
	return sql.Open(driverName, dataSourceName)
}

// record reports one completed statement. ErrSkip results are not recorded:
// database/sql retries those through the prepared-statement path, which
// reports the real execution.
func record(ctx context.Context, rec domain.Recorder, query string, start time.Time, err error) {
	if errors.Is(err, driver.ErrSkip) {
		return
	}
	ev := domain.DBEvent{
		Key:       Key(query),
		Kind:      domain.KindSQL,
		StartedAt: start,
		Duration:  time.Since(start),
	}
	if err != nil {
		ev.Failure = err.Error()
	}
	rec.OnDBEvent(ctx, ev)
}

type mofDriver struct {
	real driver.Driver
	rec  domain.Recorder
}

func (d *mofDriver) Open(name string) (driver.Conn, error) {
	conn, err := d.real.Open(name)
	if err != nil {
		return nil, err
	}
	return &mofConn{real: conn, rec: d.rec}, nil
}

type mofConn struct {
	real driver.Conn
	rec  domain.Recorder
}

func (c *mofConn) Prepare(query string) (driver.Stmt, error) {
	stmt, err := c.real.Prepare(query)
	if err != nil {
		return nil, err
	}
	return &mofStmt{real: stmt, rec: c.rec, query: query}, nil
}

func (c *mofConn) Close() error              { return c.real.Close() }
func (c *mofConn) Begin() (driver.Tx, error) { return c.real.Begin() }

func (c *mofConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if tx, ok := c.real.(driver.ConnBeginTx); ok {
		return tx.BeginTx(ctx, opts)
	}
	return c.real.Begin()
}

func (c *mofConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	qx, ok := c.real.(driver.QueryerContext)
	if !ok {
		return nil, driver.ErrSkip
	}
	start := time.Now()
	rows, err := qx.QueryContext(ctx, query, args)
	record(ctx, c.rec, query, start, err)
	return rows, err
}

func (c *mofConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	ex, ok := c.real.(driver.ExecerContext)
	if !ok {
		return nil, driver.ErrSkip
	}
	start := time.Now()
	res, err := ex.ExecContext(ctx, query, args)
	record(ctx, c.rec, query, start, err)
	return res, err
}

type mofStmt struct {
	real  driver.Stmt
	rec   domain.Recorder
	query string
}

func (s *mofStmt) Close() error  { return s.real.Close() }
func (s *mofStmt) NumInput() int { return s.real.NumInput() }

func (s *mofStmt) Exec(args []driver.Value) (driver.Result, error) {
	start := time.Now()
	res, err := s.real.Exec(args)
	record(context.Background(), s.rec, s.query, start, err)
	return res, err
}

func (s *mofStmt) Query(args []driver.Value) (driver.Rows, error) {
	start := time.Now()
	rows, err := s.real.Query(args)
	record(context.Background(), s.rec, s.query, start, err)
	return rows, err
}

func (s *mofStmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	start := time.Now()
	var (
		res driver.Result
		err error
	)
	if ex, ok := s.real.(driver.StmtExecContext); ok {
		res, err = ex.ExecContext(ctx, args)
	} else {
		res, err = s.real.Exec(namedValueToValue(args))
	}
	record(ctx, s.rec, s.query, start, err)
	return res, err
}

func (s *mofStmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	start := time.Now()
	var (
		rows driver.Rows
		err  error
	)
	if qx, ok := s.real.(driver.StmtQueryContext); ok {
		rows, err = qx.QueryContext(ctx, args)
	} else {
		rows, err = s.real.Query(namedValueToValue(args))
	}
	record(ctx, s.rec, s.query, start, err)
	return rows, err
}

func namedValueToValue(named []driver.NamedValue) []driver.Value {
	vs := make([]driver.Value, len(named))
	for i, nv := range named {
		vs[i] = nv.Value
	}
	return vs
}
