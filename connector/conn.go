package connector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
)

var (
	// ErrCanceled is returned for jobs stopped through their context, whether
	// they were still queued or already running.
	ErrCanceled = errors.New("connector: job canceled")

	// ErrConnReleased is returned for work submitted after Release.
	ErrConnReleased = errors.New("connector: connection released")
)

const cancelTimeout = 10 * time.Second

// Driver is the database session behind a Conn.
type Driver interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	PID() uint32
	CancelRequest(ctx context.Context) error
}

// Canceler stops the statement running on the backend with the given
// process id.
type Canceler interface {
	CancelBackend(ctx context.Context, pid uint32) error
}

type job struct {
	id   uuid.UUID
	turn chan struct{}

	// Guarded by Conn.mu.
	inFlight int
	canceled bool
	done     bool
}

// Conn is one database session. Work submitted through Do runs strictly in
// submission order, one job at a time.
type Conn struct {
	ID ulid.ULID

	driver   Driver
	release  func(context.Context) error
	pooled   bool
	canceler Canceler
	logger   *slog.Logger

	mu       sync.Mutex
	active   *job
	pending  []*job
	released bool
}

type ConnOption func(*Conn)

// WithCanceler routes cancellation of running statements through c instead
// of the driver's own cancel request.
func WithCanceler(c Canceler) ConnOption {
	return func(conn *Conn) { conn.canceler = c }
}

func WithConnLogger(l *slog.Logger) ConnOption {
	return func(conn *Conn) { conn.logger = l }
}

// NewConn wraps d. release is called once by Release.
func NewConn(d Driver, release func(context.Context) error, pooled bool, opts ...ConnOption) *Conn {
	c := &Conn{
		ID:      newConnID(),
		driver:  d,
		release: release,
		pooled:  pooled,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetCanceler replaces the canceler of an acquired connection.
func (c *Conn) SetCanceler(cn Canceler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.canceler = cn
}

func (c *Conn) Pooled() bool { return c.pooled }

// PID is the server process id of the session.
func (c *Conn) PID() uint32 { return c.driver.PID() }

// Pending returns the number of jobs waiting behind the running one.
func (c *Conn) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Do queues fn and runs it once every earlier job has finished. fn gets a
// context that is not canceled with ctx: canceling ctx drops a queued job
// without touching the network and asks the server to stop a running
// statement. Statements fn starts after the cancellation fail without being
// sent. A job whose work completed before the cancellation took effect keeps
// its result; otherwise Do returns an error matching ErrCanceled.
func (c *Conn) Do(ctx context.Context, fn func(ctx context.Context, d Driver) error) error {
	j, err := c.enqueue(ctx)
	if err != nil {
		return err
	}
	defer c.finish(j)

	canceled := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(canceled)
		c.cancelRunning(ctx, j)
	})

	err = fn(context.WithoutCancel(ctx), &jobDriver{Driver: c.driver, conn: c, job: j, ctx: ctx})

	c.mu.Lock()
	j.done = true
	c.mu.Unlock()

	if !stop() {
		// A cancel request, if one was sent, must land before the next job
		// starts on this session.
		<-canceled
		if err == nil || errors.Is(err, ErrCanceled) {
			return err
		}
		return canceledErr(ctx, err)
	}
	return err
}

func canceledErr(ctx context.Context, cause error) error {
	if cause != nil {
		return fmt.Errorf("%w: %w", ErrCanceled, errors.Join(context.Cause(ctx), cause))
	}
	return fmt.Errorf("%w: %w", ErrCanceled, context.Cause(ctx))
}

func (c *Conn) enqueue(ctx context.Context) (*job, error) {
	j := &job{id: uuid.New(), turn: make(chan struct{})}

	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return nil, ErrConnReleased
	}
	c.pending = append(c.pending, j)
	if c.active == nil {
		c.promote()
	}
	c.mu.Unlock()

	select {
	case <-j.turn:
	case <-ctx.Done():
		c.mu.Lock()
		if c.active != j {
			c.pending = slices.DeleteFunc(c.pending, func(p *job) bool { return p == j })
			c.mu.Unlock()
			c.logger.DebugContext(ctx, "dropped queued job", "conn", c.ID.String(), "job", j.id.String())
			return nil, canceledErr(ctx, nil)
		}
		c.mu.Unlock()
	}
	if ctx.Err() != nil {
		c.finish(j)
		return nil, canceledErr(ctx, nil)
	}
	return j, nil
}

// promote hands the session to the oldest queued job. Callers hold mu.
func (c *Conn) promote() {
	if len(c.pending) == 0 {
		return
	}
	c.active = c.pending[0]
	c.pending = c.pending[1:]
	close(c.active.turn)
}

func (c *Conn) finish(j *job) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == j {
		c.active = nil
		c.promote()
	}
}

// cancelRunning marks j canceled and, when one of its statements is on the
// wire, asks the server to stop it.
func (c *Conn) cancelRunning(ctx context.Context, j *job) {
	c.mu.Lock()
	running := c.active == j && !j.done
	if running {
		j.canceled = true
	}
	busy := running && j.inFlight > 0
	canceler := c.canceler
	c.mu.Unlock()
	if !busy {
		return
	}

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelTimeout)
	defer cancel()

	pid := c.driver.PID()
	c.logger.DebugContext(ctx, "canceling running statement", "conn", c.ID.String(), "job", j.id.String(), "pid", pid)

	var err error
	if canceler != nil {
		err = canceler.CancelBackend(cctx, pid)
	} else {
		err = c.driver.CancelRequest(cctx)
	}
	if err != nil {
		c.logger.WarnContext(ctx, "cancel request failed", "conn", c.ID.String(), "pid", pid, "error", err)
	}
}

// Release returns the session to its pool or closes it. Jobs submitted
// afterwards fail with ErrConnReleased.
func (c *Conn) Release(ctx context.Context) error {
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return nil
	}
	c.released = true
	c.mu.Unlock()

	if c.release == nil {
		return nil
	}
	return c.release(ctx)
}

// Exec runs one statement through the queue.
func (c *Conn) Exec(ctx context.Context, sql string, args ...any) error {
	return c.Do(ctx, func(ctx context.Context, d Driver) error {
		_, err := d.Exec(ctx, sql, args...)
		return err
	})
}

// SendBatch runs every statement of b in one round trip and waits for all
// of them.
func (c *Conn) SendBatch(ctx context.Context, b *pgx.Batch) error {
	if b.Len() == 0 {
		return nil
	}
	return c.Do(ctx, func(ctx context.Context, d Driver) error {
		br := d.SendBatch(ctx, b)
		for i := 0; i < b.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return fmt.Errorf("batch statement %d: %w", i, err)
			}
		}
		return br.Close()
	})
}

// QueryRows runs sql through the queue and hands the rows to read before
// closing them.
func (c *Conn) QueryRows(ctx context.Context, sql string, args []any, read func(pgx.Rows) error) error {
	return c.Do(ctx, func(ctx context.Context, d Driver) error {
		rows, err := d.Query(ctx, sql, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		if err := read(rows); err != nil {
			return err
		}
		return rows.Err()
	})
}

// jobDriver tracks the statements a job has on the wire so that a cancel
// request is only sent while the backend is busy with one of them.
type jobDriver struct {
	Driver
	conn *Conn
	job  *job
	ctx  context.Context
}

func (d *jobDriver) begin() (func(), error) {
	d.conn.mu.Lock()
	defer d.conn.mu.Unlock()
	if d.job.canceled {
		return nil, canceledErr(d.ctx, nil)
	}
	d.job.inFlight++
	return sync.OnceFunc(func() {
		d.conn.mu.Lock()
		d.job.inFlight--
		d.conn.mu.Unlock()
	}), nil
}

func (d *jobDriver) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	end, err := d.begin()
	if err != nil {
		return nil, err
	}
	rows, err := d.Driver.Query(ctx, sql, args...)
	if err != nil {
		end()
		return nil, err
	}
	return &jobRows{Rows: rows, end: end}, nil
}

func (d *jobDriver) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	end, err := d.begin()
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	defer end()
	return d.Driver.Exec(ctx, sql, args...)
}

func (d *jobDriver) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	end, err := d.begin()
	if err != nil {
		return errBatch{err: err}
	}
	return &jobBatch{BatchResults: d.Driver.SendBatch(ctx, b), end: end}
}

// jobRows keeps the statement in flight until the rows are drained or closed.
type jobRows struct {
	pgx.Rows
	end func()
}

func (r *jobRows) Next() bool {
	if r.Rows.Next() {
		return true
	}
	r.end()
	return false
}

func (r *jobRows) Close() {
	r.Rows.Close()
	r.end()
}

type jobBatch struct {
	pgx.BatchResults
	end func()
}

func (b *jobBatch) Close() error {
	defer b.end()
	return b.BatchResults.Close()
}

type errBatch struct{ err error }

func (b errBatch) Exec() (pgconn.CommandTag, error) { return pgconn.CommandTag{}, b.err }
func (b errBatch) Query() (pgx.Rows, error)         { return nil, b.err }
func (b errBatch) QueryRow() pgx.Row                { return errRow(b) }
func (b errBatch) Close() error                     { return b.err }

type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }
