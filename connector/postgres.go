package connector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultMaxConns        = 10
	defaultMaxConnLifetime = time.Hour
	defaultMaxConnIdleTime = 30 * time.Minute
)

// pgxDriver adapts a pgx session to Driver.
type pgxDriver struct {
	conn *pgx.Conn
}

func (d pgxDriver) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return d.conn.Query(ctx, sql, args...)
}

func (d pgxDriver) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return d.conn.Exec(ctx, sql, args...)
}

func (d pgxDriver) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	return d.conn.SendBatch(ctx, b)
}

func (d pgxDriver) PID() uint32 {
	return d.conn.PgConn().PID()
}

func (d pgxDriver) CancelRequest(ctx context.Context) error {
	return d.conn.PgConn().CancelRequest(ctx)
}

// PgxDialer opens PostgreSQL sessions and pools with pgx.
type PgxDialer struct {
	Logger      *slog.Logger
	ConnOptions []ConnOption
}

func (d *PgxDialer) connOptions() []ConnOption {
	if d.Logger == nil {
		return d.ConnOptions
	}
	return append([]ConnOption{WithConnLogger(d.Logger)}, d.ConnOptions...)
}

func (d *PgxDialer) Dial(ctx context.Context, cc ConnectConfig) (*Conn, error) {
	dsn, err := cc.DSN()
	if err != nil {
		return nil, fmt.Errorf("connect config: %w", err)
	}
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse connect config: %w", err)
	}
	if cc.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cc.ConnectTimeout)
		defer cancel()
	}

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewConn(pgxDriver{conn: conn}, conn.Close, false, d.connOptions()...), nil
}

func (d *PgxDialer) NewPool(ctx context.Context, cc ConnectConfig, pc PoolConfig) (Pool, error) {
	dsn, err := cc.DSN()
	if err != nil {
		return nil, fmt.Errorf("pool config: %w", err)
	}
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	poolCfg.MaxConns = defaultMaxConns
	if pc.MaxConns > 0 {
		poolCfg.MaxConns = pc.MaxConns
	}
	poolCfg.MinConns = pc.MinConns
	poolCfg.MaxConnLifetime = defaultMaxConnLifetime
	if pc.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = pc.MaxConnLifetime
	}
	poolCfg.MaxConnIdleTime = defaultMaxConnIdleTime
	if pc.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = pc.MaxConnIdleTime
	}
	if pc.HealthCheckPeriod > 0 {
		poolCfg.HealthCheckPeriod = pc.HealthCheckPeriod
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}
	return &pgxPool{pool: pool, opts: d.connOptions()}, nil
}

// pgxPool adapts pgxpool to Pool.
type pgxPool struct {
	pool *pgxpool.Pool
	opts []ConnOption
}

func (p *pgxPool) Acquire(ctx context.Context) (*Conn, error) {
	pc, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	release := func(context.Context) error {
		pc.Release()
		return nil
	}
	return NewConn(pgxDriver{conn: pc.Conn()}, release, true, p.opts...), nil
}

// Stats returns connection pool statistics.
func (p *pgxPool) Stats() ConnectionStats {
	s := p.pool.Stat()
	return ConnectionStats{
		OpenConnections: int(s.TotalConns()),
		InUse:           int(s.AcquiredConns()),
		Idle:            int(s.IdleConns()),
	}
}

// Health checks the connection health.
func (p *pgxPool) Health(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *pgxPool) Close() {
	p.pool.Close()
}
