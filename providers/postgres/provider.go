// Package postgres runs controlled queries and routine calls against a
// PostgreSQL data provider.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Konsultn-Engineering/pgprovider/cache"
	"github.com/Konsultn-Engineering/pgprovider/connector"
	"github.com/Konsultn-Engineering/pgprovider/database"
	"github.com/Konsultn-Engineering/pgprovider/dberror"
	"github.com/Konsultn-Engineering/pgprovider/dialect"
	"github.com/Konsultn-Engineering/pgprovider/metrics"
	"github.com/Konsultn-Engineering/pgprovider/query"
	"github.com/Konsultn-Engineering/pgprovider/schema"
)

const metadataCacheSize = 256

// Provider is one configured data provider. It owns its pools, its routine
// signature cache and its error normalizer.
type Provider struct {
	name string
	cfg  connector.Config

	dialer   connector.Dialer
	registry *connector.PoolRegistry
	strategy connector.Strategy
	direct   connector.Strategy
	support  connector.Pool

	dialect    dialect.Dialect
	builder    *query.Builder
	normalizer *dberror.Normalizer
	signatures cache.Store[string, []schema.Parameter]
	rawTypes   database.RawTypes

	metrics  metrics.Sink
	logger   *slog.Logger
	catalog  dberror.Catalog
	meta     dberror.Metadata
	debug    bool
	extended bool
	strict   bool

	applicationName string
	instanceName    string
}

type Option func(*Provider)

func WithDialer(d connector.Dialer) Option {
	return func(p *Provider) { p.dialer = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

func WithMetrics(m metrics.Sink) Option {
	return func(p *Provider) { p.metrics = m }
}

// WithDebug attaches the debug bundle to results and errors.
func WithDebug(on bool) Option {
	return func(p *Provider) { p.debug = on }
}

// WithExtendedInfo makes normalized messages carry technical names next to
// comments.
func WithExtendedInfo(on bool) Option {
	return func(p *Provider) { p.extended = on }
}

func WithMessages(c dberror.Catalog) Option {
	return func(p *Provider) { p.catalog = c }
}

// WithMetadata replaces the comment lookup used by the error normalizer. By
// default it reads the catalog through the support pool, when there is one.
func WithMetadata(m dberror.Metadata) Option {
	return func(p *Provider) { p.meta = m }
}

func WithStrict(on bool) Option {
	return func(p *Provider) { p.strict = on }
}

// WithApplication sets the values substituted into the application name tag.
func WithApplication(applicationName, instanceName string) Option {
	return func(p *Provider) {
		p.applicationName = applicationName
		p.instanceName = instanceName
	}
}

// New validates cfg and prepares the provider. The support pool, when
// configured, is opened right away.
func New(ctx context.Context, name string, cfg connector.Config, opts ...Option) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Provider{
		name:       name,
		cfg:        cfg,
		registry:   connector.NewPoolRegistry(),
		dialect:    dialect.NewPostgresDialect(),
		signatures: cache.NewMap[string, []schema.Parameter](),
		rawTypes:   database.NewRawTypes(cfg.PreventParsingForTypes),
		metrics:    metrics.Noop{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.dialer == nil {
		p.dialer = &connector.PgxDialer{Logger: p.logger}
	}

	var err error
	if p.strategy, err = connector.NewStrategy(cfg.ConnectType, p.dialer, p.registry, cfg.Pool, cfg.Retry); err != nil {
		return nil, dberror.Configuration("provider %s: %v", name, err)
	}
	if p.direct, err = connector.NewStrategy(connector.ConnectDirect, p.dialer, p.registry, cfg.Pool, cfg.Retry); err != nil {
		return nil, dberror.Configuration("provider %s: %v", name, err)
	}

	if cfg.Support != nil {
		cc, pc := cfg.SupportConnect()
		if p.support, err = p.dialer.NewPool(ctx, cc, pc); err != nil {
			return nil, fmt.Errorf("provider %s: open support pool: %w", name, err)
		}
		if p.meta == nil {
			p.meta = schema.NewCatalog(connector.PoolQuerier{Pool: p.support}, metadataCacheSize)
		}
	}

	nopts := []dberror.NormalizerOption{
		dberror.WithExtendedInfo(p.extended),
		dberror.WithNormalizerLogger(p.logger),
	}
	if p.meta != nil {
		nopts = append(nopts, dberror.WithMetadata(p.meta))
	}
	p.normalizer = dberror.NewNormalizer(p.catalog, nopts...)
	p.builder = query.NewBuilder(query.WithStrict(p.strict), query.WithDialect(p.dialect))
	return p, nil
}

func (p *Provider) Name() string { return p.name }

// ConnectOptions tune a single Connect.
type ConnectOptions struct {
	// ForceCredentials opens a direct session with the given credentials
	// whatever the connect type.
	ForceCredentials bool
	// Place is the application name template, see connector.ApplicationTag.
	Place string
}

// Connect hands out a ready session: on-connect statements, settings and
// the application name are applied in one batch first.
func (p *Provider) Connect(ctx context.Context, creds connector.Credentials, opts ConnectOptions) (*connector.Conn, error) {
	cc := p.cfg.Connect
	strategy := p.strategy
	if opts.ForceCredentials {
		strategy = p.direct
	}
	if opts.ForceCredentials || p.cfg.CredentialsSource == connector.CredentialsSession {
		cc = cc.WithCredentials(creds)
	}

	conn, err := strategy.Acquire(ctx, cc)
	if err != nil {
		return nil, p.execError(ctx, err, nil)
	}
	if p.support != nil {
		conn.SetCanceler(connector.PoolCanceler{Pool: p.support})
	}

	appName := cc.ApplicationName
	if appName == "" {
		appName = p.applicationName
	}
	setup := connector.Setup{
		Statements:      p.cfg.OnConnect,
		Settings:        p.cfg.Settings,
		ApplicationName: connector.ApplicationTag(opts.Place, appName, p.instanceName),
	}
	if err := conn.SendBatch(ctx, setup.Batch()); err != nil {
		_ = conn.Release(ctx)
		return nil, p.execError(ctx, err, nil)
	}

	p.metrics.Increment(metrics.ConnectCounter(p.name))
	p.logger.DebugContext(ctx, "connected",
		"provider", p.name, "conn", conn.ID.String(), "pooled", conn.Pooled(), "user", cc.User)
	return conn, nil
}

// Release gives the session back to its pool, or closes a direct one.
func (p *Provider) Release(ctx context.Context, conn *connector.Conn) error {
	if conn == nil {
		return nil
	}
	p.metrics.Increment(metrics.ReleaseCounter(p.name))
	p.logger.DebugContext(ctx, "release", "provider", p.name, "conn", conn.ID.String())
	return conn.Release(ctx)
}

// SetContext applies session settings. With the config context source the
// configured settings win over the caller's.
func (p *Provider) SetContext(ctx context.Context, conn *connector.Conn, settings []connector.Setting) error {
	merged := connector.MergeContext(p.cfg.ContextSource, p.cfg.Context, settings)
	if err := conn.SendBatch(ctx, connector.SettingsBatch(merged)); err != nil {
		return p.execError(ctx, err, nil)
	}
	return nil
}

func (p *Provider) Begin(ctx context.Context, conn *connector.Conn) error {
	return p.exec(ctx, conn, "begin")
}

func (p *Provider) Commit(ctx context.Context, conn *connector.Conn) error {
	return p.exec(ctx, conn, "commit")
}

func (p *Provider) Rollback(ctx context.Context, conn *connector.Conn) error {
	return p.exec(ctx, conn, "rollback")
}

func (p *Provider) exec(ctx context.Context, conn *connector.Conn, sql string) error {
	if err := conn.Exec(ctx, sql); err != nil {
		return p.execError(ctx, err, nil)
	}
	return nil
}

// Stats sums the statistics of every pool the provider holds.
func (p *Provider) Stats() connector.ConnectionStats {
	s := p.registry.Stats()
	if p.support != nil {
		s = s.Add(p.support.Stats())
		s.Pools++
	}
	return s
}

// Health pings the support pool and every pool opened so far.
func (p *Provider) Health(ctx context.Context) error {
	pools := make(map[string]connector.Pool)
	for _, key := range p.registry.Keys() {
		if e, ok := p.registry.Entry(key); ok {
			pools[key] = e.Pool
		}
	}
	if p.support != nil {
		pools["support"] = p.support
	}
	var errs []error
	for key, pool := range pools {
		hc, ok := pool.(connector.HealthChecker)
		if !ok {
			continue
		}
		if err := hc.Health(ctx); err != nil {
			errs = append(errs, fmt.Errorf("pool %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// ResetSignatures forgets every cached routine signature.
func (p *Provider) ResetSignatures() {
	p.signatures.Reset()
}

func (p *Provider) Close() {
	p.registry.Close()
	if p.support != nil {
		p.support.Close()
	}
}

// execError classifies a failure of the database or of the queue.
func (p *Provider) execError(ctx context.Context, err error, debug *dberror.Debug) error {
	var de *dberror.Error
	if errors.As(err, &de) {
		if de.Debug == nil {
			de.Debug = debug
		}
		return de
	}
	var pgErr *pgconn.PgError
	code := ""
	if errors.As(err, &pgErr) {
		code = pgErr.Code
	}
	if errors.Is(err, connector.ErrCanceled) || code == dberror.CodeQueryCanceled {
		return dberror.Canceled(err, debug)
	}
	return dberror.Execution(err, code, p.normalizer.Normalize(ctx, err), debug)
}
