package connector

import (
	"slices"
	"time"

	"github.com/Konsultn-Engineering/pgprovider/dberror"
)

// ConnectType selects how connections are obtained.
type ConnectType string

const (
	// ConnectDirect opens a dedicated connection per acquisition.
	ConnectDirect ConnectType = "direct"
	// ConnectPool shares one pool between all callers.
	ConnectPool ConnectType = "pool"
	// ConnectPoolPerUser keeps one pool per database user.
	ConnectPoolPerUser ConnectType = "poolPerUser"
)

// CredentialsSource tells where login credentials come from.
type CredentialsSource string

const (
	CredentialsConfig  CredentialsSource = "config"
	CredentialsSession CredentialsSource = "session"
)

// ContextFromConfig makes configured session settings win over the ones a
// caller passes to SetContext.
const ContextFromConfig = "config"

// Config describes one data provider.
type Config struct {
	Type                   string            `json:"type" mapstructure:"type"`
	ConnectType            ConnectType       `json:"connect_type" mapstructure:"connect_type"`
	CredentialsSource      CredentialsSource `json:"credentials_source" mapstructure:"credentials_source"`
	Connect                ConnectConfig     `json:"connect" mapstructure:"connect"`
	Pool                   PoolConfig        `json:"pool" mapstructure:"pool"`
	Support                *SupportConfig    `json:"support,omitempty" mapstructure:"support"`
	Retry                  *RetryConfig      `json:"retry,omitempty" mapstructure:"retry"`
	OnConnect              []Statement       `json:"on_connect,omitempty" mapstructure:"on_connect"`
	Settings               []Setting         `json:"settings,omitempty" mapstructure:"settings"`
	ContextSource          string            `json:"context_source,omitempty" mapstructure:"context_source"`
	Context                []Setting         `json:"context,omitempty" mapstructure:"context"`
	PreventParsingForTypes []uint32          `json:"prevent_parsing_for_types,omitempty" mapstructure:"prevent_parsing_for_types"`
}

// ConnectConfig holds the server address and default credentials.
type ConnectConfig struct {
	Host            string            `json:"host" mapstructure:"host"`
	Port            int               `json:"port" mapstructure:"port"`
	Database        string            `json:"database" mapstructure:"database"`
	User            string            `json:"user" mapstructure:"user"`
	Password        string            `json:"password" mapstructure:"password"`
	SSLMode         string            `json:"sslmode" mapstructure:"sslmode"`
	ApplicationName string            `json:"application_name" mapstructure:"application_name"`
	Params          map[string]string `json:"params" mapstructure:"params"`
	ConnectTimeout  time.Duration     `json:"connect_timeout" mapstructure:"connect_timeout"`
}

// PoolConfig defines connection pool settings.
type PoolConfig struct {
	MaxConns          int32         `json:"max_conns" mapstructure:"max_conns"`
	MinConns          int32         `json:"min_conns" mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `json:"max_conn_lifetime" mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `json:"max_conn_idle_time" mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `json:"health_check_period" mapstructure:"health_check_period"`
}

// SupportConfig configures the small pool used to cancel running
// statements. Empty fields inherit from Connect.
type SupportConfig struct {
	MaxConns int32  `json:"max_conns" mapstructure:"max_conns"`
	User     string `json:"user" mapstructure:"user"`
	Password string `json:"password" mapstructure:"password"`
}

// RetryConfig defines connection retry behavior.
type RetryConfig struct {
	MaxRetries int           `json:"max_retries" mapstructure:"max_retries"`
	BaseDelay  time.Duration `json:"base_delay" mapstructure:"base_delay"`
	MaxDelay   time.Duration `json:"max_delay" mapstructure:"max_delay"`
}

// Statement runs on every new connection.
type Statement struct {
	Statement string `json:"statement" mapstructure:"statement"`
	Params    []any  `json:"params" mapstructure:"params"`
}

// Setting is a session variable applied through set_config.
type Setting struct {
	Name  string `json:"name" mapstructure:"name"`
	Value string `json:"value" mapstructure:"value"`
}

// Credentials override the configured user and password.
type Credentials struct {
	User     string `json:"user" mapstructure:"user"`
	Password string `json:"password" mapstructure:"password"`
}

// WithCredentials returns a copy of c using creds where they are set.
func (c ConnectConfig) WithCredentials(creds Credentials) ConnectConfig {
	if creds.User != "" {
		c.User = creds.User
	}
	if creds.Password != "" {
		c.Password = creds.Password
	}
	return c
}

// SupportConnect returns the connection settings of the support pool.
func (c *Config) SupportConnect() (ConnectConfig, PoolConfig) {
	cc := c.Connect.WithCredentials(Credentials{User: c.Support.User, Password: c.Support.Password})
	pc := PoolConfig{MaxConns: 1}
	if c.Support.MaxConns > 0 {
		pc.MaxConns = c.Support.MaxConns
	}
	return cc, pc
}

var connectTypes = []ConnectType{ConnectDirect, ConnectPool, ConnectPoolPerUser}

// Validate fills defaults and reports settings the provider cannot work with.
func (c *Config) Validate() error {
	if c.ConnectType == "" {
		c.ConnectType = ConnectDirect
	}
	if !slices.Contains(connectTypes, c.ConnectType) {
		return dberror.Configuration("unknown connect type %q", c.ConnectType)
	}
	switch c.CredentialsSource {
	case "":
		c.CredentialsSource = CredentialsConfig
	case CredentialsConfig, CredentialsSession:
	default:
		return dberror.Configuration("unknown credentials source %q", c.CredentialsSource)
	}
	if c.Connect.Host == "" {
		return dberror.Configuration("connect.host is required")
	}
	if c.Connect.Port == 0 {
		c.Connect.Port = 5432
	}
	if c.Connect.Port < 0 || c.Connect.Port > 65535 {
		return dberror.Configuration("invalid port: %d", c.Connect.Port)
	}
	if c.Pool.MaxConns < 0 || c.Pool.MinConns < 0 || (c.Pool.MaxConns > 0 && c.Pool.MinConns > c.Pool.MaxConns) {
		return dberror.Configuration("invalid pool size: min %d, max %d", c.Pool.MinConns, c.Pool.MaxConns)
	}
	for i, s := range c.OnConnect {
		if s.Statement == "" {
			return dberror.Configuration("on_connect[%d]: empty statement", i)
		}
	}
	for i, s := range append(slices.Clone(c.Settings), c.Context...) {
		if s.Name == "" {
			return dberror.Configuration("setting %d: empty name", i)
		}
	}
	return nil
}
