// Package metrics receives the provider's event counters.
package metrics

import (
	"errors"
	"regexp"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Sink counts named events.
type Sink interface {
	Increment(name string)
}

// ConnectCounter and ReleaseCounter name the counters of a provider.
func ConnectCounter(provider string) string {
	return "provider_" + provider + "_connect_count"
}

func ReleaseCounter(provider string) string {
	return "provider_" + provider + "_release_count"
}

// Noop drops every event.
type Noop struct{}

func (Noop) Increment(string) {}

// Memory keeps counters in memory.
type Memory struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewMemory() *Memory {
	return &Memory{counts: make(map[string]int)}
}

func (m *Memory) Increment(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[name]++
}

func (m *Memory) Count(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[name]
}

// Snapshot returns a copy of all counters.
func (m *Memory) Snapshot() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int, len(m.counts))
	for k, v := range m.counts {
		out[k] = v
	}
	return out
}

var invalidMetricChars = regexp.MustCompile(`[^a-zA-Z0-9_:]`)

// Prometheus registers one counter per event name on first use.
type Prometheus struct {
	reg      prometheus.Registerer
	mu       sync.Mutex
	counters map[string]prometheus.Counter
}

func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &Prometheus{reg: reg, counters: make(map[string]prometheus.Counter)}
}

func (p *Prometheus) Increment(name string) {
	p.counter(name).Inc()
}

func (p *Prometheus) counter(name string) prometheus.Counter {
	name = invalidMetricChars.ReplaceAllString(name, "_")

	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.counters[name]; ok {
		return c
	}

	c := prometheus.NewCounter(prometheus.CounterOpts{
		Name: name,
		Help: "Number of " + name + " events.",
	})
	if err := p.reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				c = existing
			}
		}
	}
	p.counters[name] = c
	return c
}
