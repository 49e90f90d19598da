// Package plan models a release run as a dependency graph of steps, so
// multi-target builds can run concurrently without racing their
// prerequisites.
package plan

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/dominikbraun/graph"
	"github.com/dominikbraun/graph/draw"
	"golang.org/x/sync/errgroup"
)

// Step kinds, in the order they typically run for a target.
const (
	KindBuild   = "build"
	KindStage   = "stage"
	KindArchive = "archive"
	KindVerify  = "verify"
)

// Step is one unit of work in a plan.
type Step struct {
	// ID is unique within the plan, e.g. "build:x86_64-unknown-linux-gnu".
	ID string

	Kind   string
	Triple string

	// Summary is a one-line human description shown by slipway plan.
	Summary string

	// Run does the work. A nil Run makes the step a no-op, which display
	// plans use.
	Run func(ctx context.Context) error
}

func stepHash(s *Step) string {
	return s.ID
}

// Plan is a directed acyclic graph of steps.
type Plan struct {
	g graph.Graph[string, *Step]
}

func New() *Plan {
	return &Plan{
		g: graph.New(stepHash, graph.Directed(), graph.PreventCycles()),
	}
}

func (p *Plan) AddStep(s *Step) error {
	if err := p.g.AddVertex(s); err != nil {
		return fmt.Errorf("unable to add step %s: %w", s.ID, err)
	}
	return nil
}

// AddDependency records that step "from" must finish before step "to"
// starts.
func (p *Plan) AddDependency(from, to string) error {
	if err := p.g.AddEdge(from, to); err != nil {
		return fmt.Errorf("unable to add dependency %s -> %s: %w", from, to, err)
	}
	return nil
}

// Order returns the steps in a deterministic topological order.
func (p *Plan) Order() ([]*Step, error) {
	ids, err := graph.StableTopologicalSort(p.g, func(a, b string) bool {
		return a < b
	})
	if err != nil {
		return nil, fmt.Errorf("unable to order plan: %w", err)
	}
	steps := make([]*Step, 0, len(ids))
	for _, id := range ids {
		step, err := p.g.Vertex(id)
		if err != nil {
			return nil, fmt.Errorf("unable to look up step %s: %w", id, err)
		}
		steps = append(steps, step)
	}
	return steps, nil
}

// Run executes the plan with at most concurrency steps in flight. The
// first step failure cancels everything still pending.
func (p *Plan) Run(ctx context.Context, concurrency int) error {
	order, err := p.Order()
	if err != nil {
		return err
	}
	if len(order) == 0 {
		return nil
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	predecessors, err := p.g.PredecessorMap()
	if err != nil {
		return fmt.Errorf("unable to compute step dependencies: %w", err)
	}
	successors, err := p.g.AdjacencyMap()
	if err != nil {
		return fmt.Errorf("unable to compute step dependents: %w", err)
	}

	pending := make(map[string]int, len(order))
	for id, edges := range predecessors {
		pending[id] = len(edges)
	}

	// Buffers sized to the whole plan keep sends from ever blocking.
	ready := make(chan *Step, len(order))
	completed := make(chan string, len(order))
	for _, step := range order {
		if pending[step.ID] == 0 {
			ready <- step
		}
	}

	group, gctx := errgroup.WithContext(ctx)

	for i := 0; i < concurrency; i++ {
		group.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case step, ok := <-ready:
					if !ok {
						return nil
					}
					slog.Debug("running step", "id", step.ID)
					if step.Run != nil {
						if err := step.Run(gctx); err != nil {
							return fmt.Errorf("step %s: %w", step.ID, err)
						}
					}
					completed <- step.ID
				}
			}
		})
	}

	// The dispatcher releases steps as their prerequisites finish and
	// closes the ready channel once everything has run.
	group.Go(func() error {
		remaining := len(order)
		for remaining > 0 {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case id := <-completed:
				remaining--
				for succ := range successors[id] {
					pending[succ]--
					if pending[succ] == 0 {
						step, err := p.g.Vertex(succ)
						if err != nil {
							return fmt.Errorf("unable to look up step %s: %w", succ, err)
						}
						ready <- step
					}
				}
			}
		}
		close(ready)
		return nil
	})

	return group.Wait()
}

// DOT writes the plan in Graphviz format.
func (p *Plan) DOT(w io.Writer) error {
	if err := draw.DOT(p.g, w); err != nil {
		return fmt.Errorf("unable to render plan: %w", err)
	}
	return nil
}
