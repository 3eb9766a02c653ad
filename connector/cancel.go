package connector

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const cancelBackendSQL = "select pg_cancel_backend($1)"

// PoolCanceler cancels statements from a connection of a dedicated pool.
type PoolCanceler struct {
	Pool Pool
}

func (c PoolCanceler) CancelBackend(ctx context.Context, pid uint32) error {
	conn, err := c.Pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire support connection: %w", err)
	}
	defer conn.Release(ctx)

	if err := conn.Exec(ctx, cancelBackendSQL, int32(pid)); err != nil {
		return fmt.Errorf("cancel backend %d: %w", pid, err)
	}
	return nil
}

// PoolQuerier runs each query on a connection borrowed from Pool.
type PoolQuerier struct {
	Pool Pool
}

func (q PoolQuerier) QueryRows(ctx context.Context, sql string, args []any, read func(pgx.Rows) error) error {
	conn, err := q.Pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire support connection: %w", err)
	}
	defer conn.Release(ctx)
	return conn.QueryRows(ctx, sql, args, read)
}
