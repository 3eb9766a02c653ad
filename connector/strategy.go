package connector

import (
	"context"
	"fmt"
)

// Dialer opens sessions and pools for a set of connection settings.
type Dialer interface {
	Dial(ctx context.Context, cc ConnectConfig) (*Conn, error)
	NewPool(ctx context.Context, cc ConnectConfig, pc PoolConfig) (Pool, error)
}

// Strategy is the connect policy of a provider, chosen once from its
// configuration.
type Strategy interface {
	Type() ConnectType
	Acquire(ctx context.Context, cc ConnectConfig) (*Conn, error)
}

// NewStrategy returns the strategy for t. Pool strategies keep their pools
// in reg.
func NewStrategy(t ConnectType, d Dialer, reg *PoolRegistry, pc PoolConfig, retry *RetryConfig) (Strategy, error) {
	switch t {
	case ConnectDirect:
		return &directStrategy{dialer: d, retry: retry}, nil
	case ConnectPool, ConnectPoolPerUser:
		return &poolStrategy{
			connectType: t,
			dialer:      d,
			registry:    reg,
			pool:        pc,
			retry:       retry,
		}, nil
	}
	return nil, fmt.Errorf("unknown connect type %q", t)
}

type directStrategy struct {
	dialer Dialer
	retry  *RetryConfig
}

func (s *directStrategy) Type() ConnectType { return ConnectDirect }

func (s *directStrategy) Acquire(ctx context.Context, cc ConnectConfig) (*Conn, error) {
	conn, err := withRetry(ctx, s.retry, func(ctx context.Context) (*Conn, error) {
		return s.dialer.Dial(ctx, cc)
	})
	if err != nil {
		return nil, fmt.Errorf("connect %s@%s: %w", cc.User, cc.Host, err)
	}
	return conn, nil
}

type poolStrategy struct {
	connectType ConnectType
	dialer      Dialer
	registry    *PoolRegistry
	pool        PoolConfig
	retry       *RetryConfig
}

func (s *poolStrategy) Type() ConnectType { return s.connectType }

// key is the registry key: one shared pool, or one per database user.
func (s *poolStrategy) key(cc ConnectConfig) string {
	if s.connectType == ConnectPoolPerUser {
		return cc.User
	}
	return MainPool
}

func (s *poolStrategy) Acquire(ctx context.Context, cc ConnectConfig) (*Conn, error) {
	key := s.key(cc)
	p, err := s.registry.Get(ctx, key, func(ctx context.Context) (Pool, error) {
		return s.dialer.NewPool(ctx, cc, s.pool)
	})
	if err != nil {
		return nil, fmt.Errorf("create pool %s: %w", key, err)
	}
	conn, err := withRetry(ctx, s.retry, p.Acquire)
	if err != nil {
		return nil, fmt.Errorf("acquire from pool %s: %w", key, err)
	}
	return conn, nil
}
