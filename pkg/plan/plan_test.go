package plan

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recorder builds steps that append their ID to a shared log.
type recorder struct {
	mu  sync.Mutex
	ran []string
}

func (r *recorder) step(id string) *Step {
	return &Step{
		ID: id,
		Run: func(context.Context) error {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.ran = append(r.ran, id)
			return nil
		},
	}
}

func (r *recorder) index(id string) int {
	for i, ran := range r.ran {
		if ran == id {
			return i
		}
	}
	return -1
}

func diamond(t *testing.T, rec *recorder) *Plan {
	t.Helper()
	p := New()
	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, p.AddStep(rec.step(id)))
	}
	require.NoError(t, p.AddDependency("a", "b"))
	require.NoError(t, p.AddDependency("a", "c"))
	require.NoError(t, p.AddDependency("b", "d"))
	require.NoError(t, p.AddDependency("c", "d"))
	return p
}

func TestRunRespectsDependencies(t *testing.T) {
	for _, concurrency := range []int{1, 2, 8} {
		rec := &recorder{}
		p := diamond(t, rec)

		err := p.Run(context.Background(), concurrency)
		require.NoError(t, err)
		require.Len(t, rec.ran, 4)

		assert.Less(t, rec.index("a"), rec.index("b"))
		assert.Less(t, rec.index("a"), rec.index("c"))
		assert.Less(t, rec.index("b"), rec.index("d"))
		assert.Less(t, rec.index("c"), rec.index("d"))
	}
}

func TestRunEmptyPlan(t *testing.T) {
	assert.NoError(t, New().Run(context.Background(), 4))
}

func TestRunStepFailure(t *testing.T) {
	rec := &recorder{}
	p := New()
	require.NoError(t, p.AddStep(rec.step("a")))
	require.NoError(t, p.AddStep(&Step{
		ID: "b",
		Run: func(context.Context) error {
			return errors.New("compile error")
		},
	}))
	require.NoError(t, p.AddStep(rec.step("c")))
	require.NoError(t, p.AddDependency("a", "b"))
	require.NoError(t, p.AddDependency("b", "c"))

	err := p.Run(context.Background(), 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step b")
	assert.Equal(t, -1, rec.index("c"), "steps after the failure do not run")
}

func TestRunNilStepFunc(t *testing.T) {
	p := New()
	require.NoError(t, p.AddStep(&Step{ID: "display-only"}))
	assert.NoError(t, p.Run(context.Background(), 1))
}

func TestAddStepDuplicate(t *testing.T) {
	p := New()
	require.NoError(t, p.AddStep(&Step{ID: "a"}))
	err := p.AddStep(&Step{ID: "a"})
	require.Error(t, err)
}

func TestAddDependencyCycle(t *testing.T) {
	p := New()
	require.NoError(t, p.AddStep(&Step{ID: "a"}))
	require.NoError(t, p.AddStep(&Step{ID: "b"}))
	require.NoError(t, p.AddDependency("a", "b"))

	err := p.AddDependency("b", "a")
	require.Error(t, err)
}

func TestOrderIsDeterministic(t *testing.T) {
	p := New()
	require.NoError(t, p.AddStep(&Step{ID: "b"}))
	require.NoError(t, p.AddStep(&Step{ID: "a"}))
	require.NoError(t, p.AddStep(&Step{ID: "c"}))

	steps, err := p.Order()
	require.NoError(t, err)

	ids := []string{}
	for _, step := range steps {
		ids = append(ids, step.ID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestDOT(t *testing.T) {
	rec := &recorder{}
	p := diamond(t, rec)

	sb := &strings.Builder{}
	require.NoError(t, p.DOT(sb))
	out := sb.String()
	assert.Contains(t, out, "strict digraph")
	assert.Contains(t, out, `"a" -> "b"`)
}
