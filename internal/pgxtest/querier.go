package pgxtest

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5"
)

// Call is one statement seen by a Querier.
type Call struct {
	SQL  string
	Args []any
}

// Querier answers each statement with the next canned result and records
// what it was asked.
type Querier struct {
	mu      sync.Mutex
	Results []*Rows
	Errors  []error
	Calls   []Call
}

func (q *Querier) QueryRows(_ context.Context, sql string, args []any, read func(pgx.Rows) error) error {
	q.mu.Lock()
	n := len(q.Calls)
	q.Calls = append(q.Calls, Call{SQL: sql, Args: args})
	var rows *Rows
	switch {
	case n < len(q.Errors) && q.Errors[n] != nil:
		err := q.Errors[n]
		q.mu.Unlock()
		return err
	case n < len(q.Results):
		rows = q.Results[n]
	default:
		rows = NewRows(nil, nil)
	}
	q.mu.Unlock()

	defer rows.Close()
	return read(rows)
}

// Count returns the number of statements seen so far.
func (q *Querier) Count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.Calls)
}
