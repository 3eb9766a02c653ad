package dberror

import (
	"sync"
	"time"

	"github.com/Konsultn-Engineering/pgprovider/query"
)

// Debug describes how a request was turned into the statement that ran.
type Debug struct {
	ExecQuery   string         `json:"execQuery"`
	ExecParams  []any          `json:"execParams"`
	LocateQuery string         `json:"ctrlLocateQuery,omitempty"`
	Query       string         `json:"ctrlQuery,omitempty"`
	Params      map[string]any `json:"ctrlParams,omitempty"`
	Control     *query.Control `json:"ctrlControl,omitempty"`
	InitQuery   string         `json:"initQuery"`
	InitParams  map[string]any `json:"initParams"`
	Timing      *Timing        `json:"timing,omitempty"`
}

// Timing collects named phase durations of one request.
type Timing struct {
	mu     sync.Mutex
	Phases map[string]time.Duration `json:"provider"`
}

func NewTiming() *Timing {
	return &Timing{Phases: make(map[string]time.Duration)}
}

// Track starts a phase and returns the function that ends it.
func (t *Timing) Track(phase string) func() {
	start := time.Now()
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.Phases[phase] += time.Since(start)
	}
}

// Get returns the recorded duration of phase.
func (t *Timing) Get(phase string) (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.Phases[phase]
	return d, ok
}
