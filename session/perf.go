package session

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/KipianiNikoloz/blazeorm/internal/redact"
)

// DefaultNPlusOneThreshold is the number of executions of one SQL text with
// different arguments after which a possible N+1 pattern is reported.
const DefaultNPlusOneThreshold = 10

// perfTracker counts executions per SQL text and warns once per text when
// it sees the same statement repeated with different arguments.
type perfTracker struct {
	mu        sync.Mutex
	threshold int
	logger    *slog.Logger
	counts    map[string]int
	args      map[string]map[string]struct{}
	warned    map[string]bool
}

func newPerfTracker(threshold int, logger *slog.Logger) *perfTracker {
	return &perfTracker{
		threshold: threshold,
		logger:    logger,
		counts:    make(map[string]int),
		args:      make(map[string]map[string]struct{}),
		warned:    make(map[string]bool),
	}
}

func (p *perfTracker) record(query string, args []any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counts[query]++
	if p.threshold <= 0 || p.warned[query] {
		return
	}
	fps, ok := p.args[query]
	if !ok {
		fps = make(map[string]struct{})
		p.args[query] = fps
	}
	fps[fmt.Sprint(redact.UnwrapAll(args))] = struct{}{}
	if n := p.counts[query]; n >= p.threshold && len(fps) >= 2 {
		p.warned[query] = true
		delete(p.args, query)
		p.logger.Warn("possible N+1 query detected; load the relation with Join or Prefetch",
			"sql", query, "executions", n, "distinct_args", len(fps))
	}
}

func (p *perfTracker) snapshot() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]int, len(p.counts))
	for k, v := range p.counts {
		out[k] = v
	}
	return out
}
