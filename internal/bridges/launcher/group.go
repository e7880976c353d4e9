package launcher

import (
	"context"
	"errors"
	"sync"

	"github.com/nerrad567/gray-logic-home/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-home/internal/infrastructure/metrics"
)

// Group supervises every configured bridge process.
type Group struct {
	procs []*Process
}

// NewGroup creates one Process per bridges.processes entry.
func NewGroup(cfgs []config.BridgeProcessConfig, logger Logger, rec *metrics.Recorder) *Group {
	g := &Group{procs: make([]*Process, 0, len(cfgs))}
	for _, c := range cfgs {
		p := New(FromConfig(c), logger)
		p.SetMetrics(rec)
		g.procs = append(g.procs, p)
	}
	return g
}

// Len returns the number of supervised processes.
func (g *Group) Len() int { return len(g.procs) }

// Start launches every process. A bridge that fails to launch does not
// prevent the others from starting; its error is joined into the result
// and its capability stays unavailable until it reports healthy.
func (g *Group) Start(ctx context.Context) error {
	var errs []error
	for _, p := range g.procs {
		if err := p.Start(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stop terminates every process concurrently.
func (g *Group) Stop() {
	var wg sync.WaitGroup
	for _, p := range g.procs {
		wg.Add(1)
		go func(p *Process) {
			defer wg.Done()
			p.Stop()
		}(p)
	}
	wg.Wait()
}

// Stats reports each process in configuration order.
func (g *Group) Stats() []Stats {
	out := make([]Stats, 0, len(g.procs))
	for _, p := range g.procs {
		out = append(out, p.Stats())
	}
	return out
}
