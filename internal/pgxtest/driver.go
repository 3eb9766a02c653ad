package pgxtest

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Driver is an in-memory database session. It records every statement it
// receives, including the items of batches, in arrival order.
type Driver struct {
	Pid       uint32
	QueryFunc func(ctx context.Context, sql string, args []any) (pgx.Rows, error)
	ExecErr   error
	BatchErr  error
	CancelErr error
	OnCancel  func()

	mu      sync.Mutex
	calls   []Call
	cancels int
}

func (d *Driver) record(sql string, args []any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, Call{SQL: sql, Args: args})
}

func (d *Driver) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	d.record(sql, args)
	if d.QueryFunc != nil {
		return d.QueryFunc(ctx, sql, args)
	}
	return NewRows(nil, nil), nil
}

func (d *Driver) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	d.record(sql, args)
	return pgconn.NewCommandTag("SELECT 1"), d.ExecErr
}

func (d *Driver) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	for _, q := range b.QueuedQueries {
		d.record(q.SQL, q.Arguments)
	}
	return &batchResults{err: d.BatchErr}
}

func (d *Driver) PID() uint32 { return d.Pid }

func (d *Driver) CancelRequest(context.Context) error {
	d.mu.Lock()
	d.cancels++
	d.mu.Unlock()
	if d.OnCancel != nil {
		d.OnCancel()
	}
	return d.CancelErr
}

// Calls returns the statements seen so far.
func (d *Driver) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Call, len(d.calls))
	copy(out, d.calls)
	return out
}

// Statements returns the SQL of the statements seen so far.
func (d *Driver) Statements() []string {
	calls := d.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.SQL
	}
	return out
}

// Cancels returns the number of out of band cancel requests.
func (d *Driver) Cancels() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cancels
}

// batchResults fails the first Exec with err, if set.
type batchResults struct {
	err error
}

func (b *batchResults) Exec() (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag("SELECT 1"), b.err
}

func (b *batchResults) Query() (pgx.Rows, error) {
	return NewRows(nil, nil), b.err
}

func (b *batchResults) QueryRow() pgx.Row {
	return row{err: b.err}
}

func (b *batchResults) Close() error { return nil }

type row struct {
	err error
}

func (r row) Scan(...any) error { return r.err }
