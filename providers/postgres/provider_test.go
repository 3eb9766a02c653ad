package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Konsultn-Engineering/pgprovider/connector"
	"github.com/Konsultn-Engineering/pgprovider/database"
	"github.com/Konsultn-Engineering/pgprovider/dberror"
	"github.com/Konsultn-Engineering/pgprovider/internal/pgxtest"
	"github.com/Konsultn-Engineering/pgprovider/metrics"
	"github.com/Konsultn-Engineering/pgprovider/query"
	"github.com/Konsultn-Engineering/pgprovider/schema"
)

const setConfig = "select pg_catalog.set_config($1,$2,false)"

type fakeDialer struct {
	mu       sync.Mutex
	query    func(ctx context.Context, sql string, args []any) (pgx.Rows, error)
	onCancel func()
	batchErr error
	dialErr  error

	dials   []connector.ConnectConfig
	pools   []*fakePool
	drivers []*pgxtest.Driver
}

func (d *fakeDialer) newConn(release func(context.Context) error, pooled bool) *connector.Conn {
	drv := &pgxtest.Driver{Pid: uint32(100 + len(d.drivers)), QueryFunc: d.query, OnCancel: d.onCancel, BatchErr: d.batchErr}
	d.drivers = append(d.drivers, drv)
	return connector.NewConn(drv, release, pooled)
}

func (d *fakeDialer) Dial(_ context.Context, cc connector.ConnectConfig) (*connector.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials = append(d.dials, cc)
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	return d.newConn(nil, false), nil
}

func (d *fakeDialer) NewPool(_ context.Context, cc connector.ConnectConfig, pc connector.PoolConfig) (connector.Pool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := &fakePool{dialer: d, cc: cc, pc: pc}
	d.pools = append(d.pools, p)
	return p, nil
}

// driver returns the session opened by the i-th dial or acquire.
func (d *fakeDialer) driver(i int) *pgxtest.Driver {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.drivers[i]
}

type fakePool struct {
	dialer   *fakeDialer
	cc       connector.ConnectConfig
	pc       connector.PoolConfig
	acquired int
	released int
	closed   bool
}

func (p *fakePool) Acquire(context.Context) (*connector.Conn, error) {
	p.dialer.mu.Lock()
	defer p.dialer.mu.Unlock()
	p.acquired++
	return p.dialer.newConn(func(context.Context) error {
		p.dialer.mu.Lock()
		defer p.dialer.mu.Unlock()
		p.released++
		return nil
	}, true), nil
}

func (p *fakePool) Stats() connector.ConnectionStats {
	p.dialer.mu.Lock()
	defer p.dialer.mu.Unlock()
	return connector.ConnectionStats{OpenConnections: p.acquired, InUse: p.acquired - p.released, Idle: p.released}
}

func (p *fakePool) Close() {
	p.dialer.mu.Lock()
	defer p.dialer.mu.Unlock()
	p.closed = true
}

func (p *fakePool) Health(context.Context) error {
	if p.cc.Host == "down" {
		return errors.New("connection refused")
	}
	return nil
}

type fakeSession struct {
	values    map[string]any
	destroyed bool
}

func (s *fakeSession) Assign(key string, value any) {
	if s.values == nil {
		s.values = make(map[string]any)
	}
	s.values[key] = value
}

func (s *fakeSession) Destroy() { s.destroyed = true }

type fakeMeta map[string]*schema.Table

func (m fakeMeta) Table(_ context.Context, schemaName, table string) (*schema.Table, error) {
	return m[schemaName+"."+table], nil
}

func baseConfig() connector.Config {
	return connector.Config{
		Connect: connector.ConnectConfig{Host: "db", Database: "main", User: "app", Password: "secret"},
	}
}

func newProvider(t *testing.T, cfg connector.Config, d *fakeDialer, opts ...Option) *Provider {
	t.Helper()
	p, err := New(context.Background(), "main", cfg, append([]Option{WithDialer(d)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p
}

func connect(t *testing.T, p *Provider) *connector.Conn {
	t.Helper()
	conn, err := p.Connect(context.Background(), connector.Credentials{}, ConnectOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Release(context.Background(), conn) })
	return conn
}

func rowsOf(names []string, data ...[]any) *pgxtest.Rows {
	oids := make([]uint32, len(names))
	for i := range oids {
		oids[i] = pgtype.Int8OID
	}
	return pgxtest.NewRows(names, oids, data...)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(context.Background(), "main", connector.Config{}, WithDialer(&fakeDialer{}))
	require.Error(t, err)
	assert.True(t, dberror.IsConfiguration(err))

	cfg := baseConfig()
	cfg.ConnectType = "cluster"
	_, err = New(context.Background(), "main", cfg, WithDialer(&fakeDialer{}))
	assert.True(t, dberror.IsConfiguration(err))
}

func TestNewOpensSupportPool(t *testing.T) {
	cfg := baseConfig()
	cfg.Support = &connector.SupportConfig{User: "support"}
	d := &fakeDialer{}
	newProvider(t, cfg, d)

	require.Len(t, d.pools, 1)
	assert.Equal(t, "support", d.pools[0].cc.User)
	assert.Equal(t, int32(1), d.pools[0].pc.MaxConns)
}

func TestConnectRunsSetup(t *testing.T) {
	cfg := baseConfig()
	cfg.OnConnect = []connector.Statement{{Statement: "set search_path to app"}}
	cfg.Settings = []connector.Setting{{Name: "app.user", Value: "u1"}}
	d := &fakeDialer{}
	sink := metrics.NewMemory()
	p := newProvider(t, cfg, d, WithMetrics(sink), WithApplication("crm", "node1"))

	conn, err := p.Connect(context.Background(), connector.Credentials{}, ConnectOptions{Place: "{applicationName}:{instanceName}"})
	require.NoError(t, err)

	calls := d.driver(0).Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, "set search_path to app", calls[0].SQL)
	assert.Equal(t, setConfig, calls[1].SQL)
	assert.Equal(t, []any{"app.user", "u1"}, calls[1].Args)
	assert.Equal(t, []any{"application_name", "crm:node1"}, calls[2].Args)
	assert.Equal(t, 1, sink.Count("provider_main_connect_count"))

	require.NoError(t, p.Release(context.Background(), conn))
	assert.Equal(t, 1, sink.Count("provider_main_release_count"))
}

func TestConnectSetupFailure(t *testing.T) {
	cfg := baseConfig()
	cfg.OnConnect = []connector.Statement{{Statement: "set role nobody"}}
	d := &fakeDialer{batchErr: &pgconn.PgError{Code: "42704", Message: `role "nobody" does not exist`}}
	sink := metrics.NewMemory()
	p := newProvider(t, cfg, d, WithMetrics(sink))

	_, err := p.Connect(context.Background(), connector.Credentials{}, ConnectOptions{})
	require.Error(t, err)
	assert.True(t, dberror.IsExecution(err))
	assert.Contains(t, err.Error(), `role "nobody" does not exist`)
	assert.Zero(t, sink.Count("provider_main_connect_count"))
}

func TestConnectCredentials(t *testing.T) {
	t.Run("Session", func(t *testing.T) {
		cfg := baseConfig()
		cfg.ConnectType = connector.ConnectPoolPerUser
		cfg.CredentialsSource = connector.CredentialsSession
		d := &fakeDialer{}
		p := newProvider(t, cfg, d)

		conn, err := p.Connect(context.Background(), connector.Credentials{User: "bob", Password: "pw"}, ConnectOptions{})
		require.NoError(t, err)
		assert.True(t, conn.Pooled())
		require.Len(t, d.pools, 1)
		assert.Equal(t, "bob", d.pools[0].cc.User)
		assert.Equal(t, "pw", d.pools[0].cc.Password)
	})

	t.Run("ConfigIgnoresCaller", func(t *testing.T) {
		cfg := baseConfig()
		cfg.ConnectType = connector.ConnectPool
		d := &fakeDialer{}
		p := newProvider(t, cfg, d)

		_, err := p.Connect(context.Background(), connector.Credentials{User: "bob"}, ConnectOptions{})
		require.NoError(t, err)
		assert.Equal(t, "app", d.pools[0].cc.User)
	})

	t.Run("Forced", func(t *testing.T) {
		cfg := baseConfig()
		cfg.ConnectType = connector.ConnectPool
		d := &fakeDialer{}
		p := newProvider(t, cfg, d)

		conn, err := p.Connect(context.Background(), connector.Credentials{User: "alice", Password: "pw"}, ConnectOptions{ForceCredentials: true})
		require.NoError(t, err)
		assert.False(t, conn.Pooled())
		assert.Empty(t, d.pools)
		require.Len(t, d.dials, 1)
		assert.Equal(t, "alice", d.dials[0].User)
	})
}

func TestQueryScenarioA(t *testing.T) {
	d := &fakeDialer{query: func(context.Context, string, []any) (pgx.Rows, error) {
		return rowsOf([]string{"id", "age"}, []any{int64(1), int64(30)}), nil
	}}
	p := newProvider(t, baseConfig(), d)
	conn := connect(t, p)

	res, err := p.Query(context.Background(), conn, "select * from t where org = :org", map[string]any{"org": 5},
		QueryOptions{}, &query.Control{Filters: []query.Filter{{Field: "age", Value: ">18"}}})
	require.NoError(t, err)

	calls := d.driver(0).Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "select flt.* from (select * from t where org = $1) as flt where flt.age > $2", calls[0].SQL)
	assert.Equal(t, []any{5, "18"}, calls[0].Args)

	assert.Equal(t, database.RowModeArray, res.RowMode)
	assert.Equal(t, [][]any{{int64(1), int64(30)}}, res.Arrays())
	require.Len(t, res.MetaData, 2)
	assert.Equal(t, database.PrimitiveNumb, res.MetaData[0].DataType)
	assert.Nil(t, res.Debug)
}

func TestQueryMissingParams(t *testing.T) {
	d := &fakeDialer{}
	p := newProvider(t, baseConfig(), d)
	conn := connect(t, p)

	_, err := p.Query(context.Background(), conn, "select * from t where id = :id and org = :org", map[string]any{"org": 1}, QueryOptions{}, nil)
	require.Error(t, err)
	assert.True(t, dberror.IsValidation(err))
	assert.Contains(t, err.Error(), "missing required parameter: id")
	assert.Empty(t, d.driver(0).Calls())
}

func TestQueryStrictRejectsControl(t *testing.T) {
	d := &fakeDialer{}
	p := newProvider(t, baseConfig(), d, WithStrict(true))
	conn := connect(t, p)

	_, err := p.Query(context.Background(), conn, "select * from t", nil, QueryOptions{},
		&query.Control{Filters: []query.Filter{{Field: "a b", Value: "1"}}})
	require.Error(t, err)
	assert.True(t, dberror.IsValidation(err))
	assert.ErrorIs(t, err, query.ErrInvalidIdentifier)
	assert.Empty(t, d.driver(0).Calls())
}

func TestQueryRowNumbers(t *testing.T) {
	d := &fakeDialer{query: func(context.Context, string, []any) (pgx.Rows, error) {
		return rowsOf([]string{"id"}, []any{int64(4)}, []any{int64(5)}), nil
	}}
	p := newProvider(t, baseConfig(), d)
	conn := connect(t, p)

	control := &query.Control{Range: &query.Range{ChunkStart: query.Int(5), Amount: query.Int(10)}}

	res, err := p.Query(context.Background(), conn, "select id from t", nil, QueryOptions{RowMode: database.RowModeObject, ReturnRN: true}, control)
	require.NoError(t, err)

	calls := d.driver(0).Calls()
	assert.Equal(t, "select id from t limit $1 offset $2", calls[0].SQL)
	assert.Equal(t, []any{12, 4}, calls[0].Args)

	require.NotNil(t, res.Chunk)
	assert.Equal(t, 5, res.Chunk.Start)
	assert.Equal(t, 14, res.Chunk.End)
	assert.Equal(t, []map[string]any{{"id": int64(4), "_rn": 4}, {"id": int64(5), "_rn": 5}}, res.Objects())
	assert.Equal(t, database.Column{Name: "_rn", DataType: database.PrimitiveNumb}, res.MetaData[len(res.MetaData)-1])

	data, err := json.Marshal(res)
	require.NoError(t, err)
	var wire map[string]any
	require.NoError(t, json.Unmarshal(data, &wire))
	assert.Equal(t, true, wire["chunk"])
	assert.Equal(t, float64(5), wire["chunk_start"])
	assert.Equal(t, float64(14), wire["chunk_end"])
	assert.Len(t, wire["data"], 2)

	res, err = p.Query(context.Background(), conn, "select id from t", nil, QueryOptions{ReturnRN: true}, control)
	require.NoError(t, err)
	assert.Equal(t, [][]any{{int64(4), 4}, {int64(5), 5}}, res.Arrays())
}

func TestQueryReturnFirst(t *testing.T) {
	var empty bool
	d := &fakeDialer{query: func(context.Context, string, []any) (pgx.Rows, error) {
		if empty {
			return rowsOf([]string{"id"}), nil
		}
		return rowsOf([]string{"id"}, []any{int64(1)}, []any{int64(2)}), nil
	}}
	p := newProvider(t, baseConfig(), d)
	conn := connect(t, p)
	ctx := context.Background()

	res, err := p.Query(ctx, conn, "select id from t", nil, QueryOptions{ReturnFirst: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, [][]any{{int64(1)}}, res.Data)

	res, err = p.Query(ctx, conn, "select id from t", nil, QueryOptions{RowMode: database.RowModeObject, ReturnFirst: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": int64(1)}, res.Data)

	empty = true
	res, err = p.Query(ctx, conn, "select id from t", nil, QueryOptions{RowMode: database.RowModeObject, ReturnFirst: true}, nil)
	require.NoError(t, err)
	assert.Nil(t, res.Data)

	res, err = p.Query(ctx, conn, "select id from t", nil, QueryOptions{ReturnFirst: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, [][]any{}, res.Data)
}

func TestQueryLocate(t *testing.T) {
	d := &fakeDialer{query: func(_ context.Context, sql string, _ []any) (pgx.Rows, error) {
		if strings.HasPrefix(sql, "select pos - 1") {
			return rowsOf([]string{"pos"}, []any{int64(20)}), nil
		}
		return rowsOf([]string{"id"}, []any{int64(42)}), nil
	}}
	p := newProvider(t, baseConfig(), d, WithDebug(true))
	conn := connect(t, p)

	res, err := p.Query(context.Background(), conn, "select id from t", nil, QueryOptions{}, &query.Control{
		Sorts:  []query.Sort{{Field: "id"}},
		Range:  &query.Range{ChunkStart: query.Int(0)},
		Locate: &query.Locate{Field: "id", Locating: true, Value: 42},
	})
	require.NoError(t, err)

	calls := d.driver(0).Calls()
	require.Len(t, calls, 2)
	assert.True(t, strings.HasPrefix(calls[0].SQL, "select pos - 1 as pos from (select row_number() over (order by id) pos, id"))
	assert.Equal(t, []any{42}, calls[0].Args)
	assert.Equal(t, []any{12, 19}, calls[1].Args)

	require.NotNil(t, res.Located)
	assert.Equal(t, 20, *res.Located)
	assert.Equal(t, 20, res.Chunk.Start)

	require.NotNil(t, res.Debug)
	assert.Equal(t, "select id from t", res.Debug.InitQuery)
	assert.Equal(t, calls[1].SQL, res.Debug.ExecQuery)
	assert.NotEmpty(t, res.Debug.LocateQuery)
	_, ok := res.Debug.Timing.Get("execute")
	assert.True(t, ok)
}

func TestQueryLocateNotFound(t *testing.T) {
	d := &fakeDialer{query: func(context.Context, string, []any) (pgx.Rows, error) {
		return rowsOf([]string{"pos"}), nil
	}}
	p := newProvider(t, baseConfig(), d)
	conn := connect(t, p)

	res, err := p.Query(context.Background(), conn, "select id from t", nil, QueryOptions{}, &query.Control{
		Range:  &query.Range{ChunkStart: query.Int(30), Amount: query.Int(5)},
		Locate: &query.Locate{Field: "id", Locating: true, Value: 1},
	})
	require.NoError(t, err)
	assert.Nil(t, res.Located)
	assert.Equal(t, 0, res.Chunk.Start)
	assert.Equal(t, 4, res.Chunk.End)
}

func TestQueryExecutionError(t *testing.T) {
	pgErr := &pgconn.PgError{
		Code:       "23505",
		Message:    `duplicate key value violates unique constraint "c"`,
		Detail:     "Key (email)=(a@b.c) already exists.",
		SchemaName: "public",
		TableName:  "users",
	}
	d := &fakeDialer{query: func(context.Context, string, []any) (pgx.Rows, error) {
		return nil, pgErr
	}}
	meta := fakeMeta{"public.users": {
		Schema:  "public",
		Name:    "users",
		Comment: "Users",
		Columns: []schema.ColumnComment{{Name: "email", Comment: "E-mail"}},
	}}
	p := newProvider(t, baseConfig(), d, WithMetadata(meta), WithDebug(true))
	conn := connect(t, p)

	_, err := p.Query(context.Background(), conn, "insert into users(email) values (:email) returning id",
		map[string]any{"email": "a@b.c"}, QueryOptions{}, nil)
	require.Error(t, err)
	assert.True(t, dberror.IsExecution(err))

	var e *dberror.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "23505", e.Code)
	assert.Equal(t, "Record in Users with E-mail = a@b.c already exists", e.Message)
	assert.ErrorIs(t, err, pgErr)
	require.NotNil(t, dberror.DebugOf(err))
	assert.Equal(t, []any{"a@b.c"}, dberror.DebugOf(err).ExecParams)
}

func TestQueryCancel(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	d := &fakeDialer{
		query: func(context.Context, string, []any) (pgx.Rows, error) {
			close(started)
			<-release
			return nil, &pgconn.PgError{Code: "57014", Message: "canceling statement due to user request"}
		},
		onCancel: func() { once.Do(func() { close(release) }) },
	}
	p := newProvider(t, baseConfig(), d)
	conn := connect(t, p)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()
	_, err := p.Query(ctx, conn, "select pg_sleep(60)", nil, QueryOptions{}, nil)
	require.Error(t, err)
	assert.True(t, dberror.IsCanceled(err))

	var e *dberror.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "57014", e.Code)
	assert.Equal(t, 1, d.driver(0).Cancels())
}

func TestQueryRawTypes(t *testing.T) {
	cfg := baseConfig()
	cfg.PreventParsingForTypes = []uint32{pgtype.NumericOID}
	d := &fakeDialer{}
	p := newProvider(t, cfg, d)
	conn := connect(t, p)

	_, err := p.Query(context.Background(), conn, "select amount from t where id = :id", map[string]any{"id": 1}, QueryOptions{}, nil)
	require.NoError(t, err)

	calls := d.driver(0).Calls()
	require.Len(t, calls[0].Args, 2)
	assert.IsType(t, pgx.QueryResultFormatsByOID{}, calls[0].Args[0])
	assert.Equal(t, 1, calls[0].Args[1])
}

func signatureRows() *pgxtest.Rows {
	oids := []uint32{pgtype.TextOID, pgtype.TextOID, pgtype.TextOID, pgtype.BoolOID}
	return pgxtest.NewRows([]string{"parameter_name", "udt_name", "parameter_mode", "required"}, oids,
		[]any{"p_id", "int8", "IN", true},
		[]any{"p_note", "text", "IN", false},
	)
}

func TestFunc(t *testing.T) {
	d := &fakeDialer{query: func(_ context.Context, sql string, _ []any) (pgx.Rows, error) {
		if strings.Contains(sql, "information_schema.parameters") {
			return signatureRows(), nil
		}
		return rowsOf([]string{"id"}, []any{int64(7)}), nil
	}}
	p := newProvider(t, baseConfig(), d)
	conn := connect(t, p)
	ctx := context.Background()

	res, err := p.Func(ctx, conn, "schema.fn", map[string]any{"id": 7})
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{{"id": int64(7)}}, res.Objects())

	calls := d.driver(0).Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, []any{"schema", "^fn_[0-9]+$"}, calls[0].Args)
	assert.Equal(t, "select * from schema.fn(p_id:=$1::int8) result", calls[1].SQL)
	assert.Equal(t, []any{7}, calls[1].Args)

	res, err = p.Func(ctx, conn, "schema.fn", map[string]any{"p_id": 8, "note": "x"})
	require.NoError(t, err)
	calls = d.driver(0).Calls()
	require.Len(t, calls, 3, "signature is read once")
	assert.Equal(t, "select * from schema.fn(p_id:=$1::int8,p_note:=$2::text) result", calls[2].SQL)
	assert.NotNil(t, res)
}

func TestFuncValidation(t *testing.T) {
	d := &fakeDialer{query: func(context.Context, string, []any) (pgx.Rows, error) {
		return signatureRows(), nil
	}}
	p := newProvider(t, baseConfig(), d)
	conn := connect(t, p)
	ctx := context.Background()

	_, err := p.Func(ctx, conn, "schema.fn", map[string]any{"note": "x"})
	require.Error(t, err)
	assert.True(t, dberror.IsValidation(err))
	assert.Contains(t, err.Error(), "p_id")
	assert.Len(t, d.driver(0).Calls(), 1)

	_, err = p.Func(ctx, conn, "fn; drop table t", nil)
	require.Error(t, err)
	assert.True(t, dberror.IsValidation(err))
	assert.Len(t, d.driver(0).Calls(), 1)
}

func TestFuncWithoutParams(t *testing.T) {
	d := &fakeDialer{query: func(_ context.Context, sql string, _ []any) (pgx.Rows, error) {
		if strings.Contains(sql, "information_schema.parameters") {
			return rowsOf([]string{"parameter_name", "udt_name", "parameter_mode", "required"}), nil
		}
		return rowsOf([]string{"n"}, []any{int64(1)}), nil
	}}
	p := newProvider(t, baseConfig(), d)
	conn := connect(t, p)

	_, err := p.Func(context.Background(), conn, "public.now_count", map[string]any{"ignored": 1})
	require.NoError(t, err)
	calls := d.driver(0).Calls()
	assert.Equal(t, "select * from public.now_count() result", calls[1].SQL)
	assert.Empty(t, calls[1].Args)
}

func TestComplete(t *testing.T) {
	d := &fakeDialer{query: func(context.Context, string, []any) (pgx.Rows, error) {
		return pgxtest.NewRows([]string{"name"}, []uint32{pgtype.TextOID}, []any{"public"}), nil
	}}
	p := newProvider(t, baseConfig(), d)
	conn := connect(t, p)

	res, err := p.Complete(context.Background(), conn, schema.ComponentDataset, "pub", "", 0)
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{{"name": "public"}}, res.Objects())

	calls := d.driver(0).Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].SQL, "information_schema.schemata")
	assert.Equal(t, []any{"pub", defaultCompletionLimit}, calls[0].Args)

	res, err = p.Complete(context.Background(), conn, "report", "public.x", "", 10)
	require.NoError(t, err)
	assert.Empty(t, res.Objects())
	assert.Len(t, d.driver(0).Calls(), 1)
}

func TestSetContext(t *testing.T) {
	cfg := baseConfig()
	cfg.ContextSource = connector.ContextFromConfig
	cfg.Context = []connector.Setting{{Name: "app.org", Value: "1"}}
	d := &fakeDialer{}
	p := newProvider(t, cfg, d)
	conn := connect(t, p)

	err := p.SetContext(context.Background(), conn, []connector.Setting{
		{Name: "app.org", Value: "9"},
		{Name: "app.lang", Value: "en"},
	})
	require.NoError(t, err)

	calls := d.driver(0).Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, setConfig, calls[0].SQL)
	assert.Equal(t, []any{"app.org", "1"}, calls[0].Args)
	assert.Equal(t, []any{"app.lang", "en"}, calls[1].Args)
}

func TestTransactions(t *testing.T) {
	d := &fakeDialer{}
	p := newProvider(t, baseConfig(), d)
	conn := connect(t, p)
	ctx := context.Background()

	require.NoError(t, p.Begin(ctx, conn))
	require.NoError(t, p.Commit(ctx, conn))
	require.NoError(t, p.Begin(ctx, conn))
	require.NoError(t, p.Rollback(ctx, conn))

	assert.Equal(t, []string{"begin", "commit", "begin", "rollback"}, d.driver(0).Statements())
}

func TestStatsAndClose(t *testing.T) {
	cfg := baseConfig()
	cfg.ConnectType = connector.ConnectPool
	cfg.Support = &connector.SupportConfig{}
	d := &fakeDialer{}
	p := newProvider(t, cfg, d)

	conn := connect(t, p)
	s := p.Stats()
	assert.Equal(t, 2, s.Pools)
	assert.Equal(t, 1, s.InUse)

	require.NoError(t, p.Release(context.Background(), conn))
	p.Close()
	for _, pool := range d.pools {
		assert.True(t, pool.closed)
	}
}

func TestHealth(t *testing.T) {
	cfg := baseConfig()
	cfg.ConnectType = connector.ConnectPool
	cfg.Support = &connector.SupportConfig{}
	d := &fakeDialer{}
	p := newProvider(t, cfg, d)
	connect(t, p)
	assert.NoError(t, p.Health(context.Background()))

	d.pools[1].cc.Host = "down"
	err := p.Health(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pool __main: connection refused")
}

func TestLogin(t *testing.T) {
	d := &fakeDialer{}
	p := newProvider(t, baseConfig(), d)
	auth := NewAuthenticator(p)
	s := &fakeSession{}

	res := auth.Login(context.Background(), "alice", "pw", s)
	assert.True(t, res.Result)
	assert.Equal(t, map[string]any{"user": "alice"}, s.values[SessionContextKey])
	assert.Equal(t, "alice", d.dials[0].User)

	d.dialErr = errors.New("password authentication failed")
	s = &fakeSession{}
	res = auth.Login(context.Background(), "alice", "bad", s)
	assert.False(t, res.Result)
	assert.Contains(t, res.Detail, "password authentication failed")
	assert.Nil(t, s.values)

	auth.Logout(s)
	assert.True(t, s.destroyed)
}
