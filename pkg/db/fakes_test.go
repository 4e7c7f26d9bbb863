/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	errFakeBatchResultsQuery = errors.New("fakeBatchResults.Query not implemented")
	errFakeBatchRowScan      = errors.New("fakeBatchRow.Scan not implemented")
	errFakeScanType          = errors.New("fake rows: unsupported scan destination")
)

type execCall struct {
	sql  string
	args []any
}

// fakeDB records statements and answers them by matching a fragment of the
// SQL text.
type fakeDB struct {
	calls     []execCall
	tags      map[string]string
	errs      map[string]error
	beginErr  error
	begins    int
	commits   int
	rollbacks int
	rows      *fakeRows
	batch     *fakeBatchResults
	batchSQL  []string
	deadlines []bool
}

func (f *fakeDB) observe(ctx context.Context) {
	_, ok := ctx.Deadline()
	f.deadlines = append(f.deadlines, ok)
}

func newFakeDB() *fakeDB {
	return &fakeDB{tags: map[string]string{}, errs: map[string]error{}}
}

func (f *fakeDB) match(sql string) (pgconn.CommandTag, error) {
	for fragment, err := range f.errs {
		if strings.Contains(sql, fragment) {
			return pgconn.CommandTag{}, err
		}
	}

	for fragment, tag := range f.tags {
		if strings.Contains(sql, fragment) {
			return pgconn.NewCommandTag(tag), nil
		}
	}

	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeDB) Begin(ctx context.Context) (pgx.Tx, error) {
	f.observe(ctx)

	if f.beginErr != nil {
		return nil, f.beginErr
	}

	f.begins++

	return &fakeTx{db: f}, nil
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.observe(ctx)
	f.calls = append(f.calls, execCall{sql: sql, args: args})
	return f.match(sql)
}

func (f *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	f.observe(ctx)
	f.calls = append(f.calls, execCall{sql: sql, args: args})

	if _, err := f.match(sql); err != nil {
		return nil, err
	}

	return f.rows, nil
}

func (f *fakeDB) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	f.observe(ctx)

	for _, q := range b.QueuedQueries {
		f.batchSQL = append(f.batchSQL, q.SQL)
	}

	return f.batch
}

type fakeTx struct {
	pgx.Tx
	db   *fakeDB
	done bool
}

func (t *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return t.db.Exec(ctx, sql, args...)
}

func (t *fakeTx) Commit(context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}

	t.done = true
	t.db.commits++

	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}

	t.done = true
	t.db.rollbacks++

	return nil
}

type fakeRows struct {
	pgx.Rows
	values [][]any
	idx    int
	err    error
	closed bool
}

func (r *fakeRows) Next() bool {
	if r.idx >= len(r.values) {
		return false
	}

	r.idx++

	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.values[r.idx-1]

	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = row[i].(string)
		case *int64:
			*p = row[i].(int64)
		case *time.Time:
			*p = row[i].(time.Time)
		default:
			return fmt.Errorf("%w: %T", errFakeScanType, d)
		}
	}

	return nil
}

func (r *fakeRows) Err() error { return r.err }

func (r *fakeRows) Close() { r.closed = true }

type fakeBatchResults struct {
	tag       string
	execCalls int
	execErrAt int
	execErr   error

	closeCalls int
	closeErr   error
}

func (f *fakeBatchResults) Exec() (pgconn.CommandTag, error) {
	defer func() { f.execCalls++ }()

	if f.execErr != nil && f.execCalls == f.execErrAt {
		return pgconn.CommandTag{}, f.execErr
	}

	tag := f.tag
	if tag == "" {
		tag = "UPDATE 1"
	}

	return pgconn.NewCommandTag(tag), nil
}

func (f *fakeBatchResults) Query() (pgx.Rows, error) {
	return nil, errFakeBatchResultsQuery
}

type fakeBatchRow struct{}

func (fakeBatchRow) Scan(...any) error { return errFakeBatchRowScan }

func (f *fakeBatchResults) QueryRow() pgx.Row {
	return fakeBatchRow{}
}

func (f *fakeBatchResults) Close() error {
	f.closeCalls++
	return f.closeErr
}

// fakeLockConn answers the advisory lock queries of AcquireRunLock.
type fakeLockConn struct {
	locked   bool
	queryErr error
	queries  []string
	closed   int
}

func (c *fakeLockConn) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	c.queries = append(c.queries, sql)

	if c.queryErr != nil {
		return fakeRow{err: c.queryErr}
	}

	if strings.Contains(sql, "pg_try_advisory_lock") {
		return fakeRow{value: c.locked}
	}

	return fakeRow{value: true}
}

func (c *fakeLockConn) Close(context.Context) error {
	c.closed++
	return nil
}

type fakeRow struct {
	value bool
	err   error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}

	p, ok := dest[0].(*bool)
	if !ok {
		return fmt.Errorf("%w: %T", errFakeScanType, dest[0])
	}

	*p = r.value

	return nil
}
