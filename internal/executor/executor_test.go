package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rcerrors "runcommand/internal/errors"
	"runcommand/internal/target"
	"runcommand/internal/worker"
)

type runnerFunc func(ctx context.Context, id int, t target.Target) *worker.Result

func (f runnerFunc) Run(ctx context.Context, id int, t target.Target) *worker.Result {
	return f(ctx, id, t)
}

func makeTargets(t *testing.T, hosts ...string) []target.Target {
	t.Helper()
	var targets []target.Target
	for _, h := range hosts {
		tgt, err := target.New(h, 22)
		require.NoError(t, err)
		targets = append(targets, tgt)
	}
	return targets
}

func collect(ch <-chan *worker.Result) []*worker.Result {
	var out []*worker.Result
	for r := range ch {
		out = append(out, r)
	}
	return out
}

func TestExecute_ConcurrentStartsAllWorkers(t *testing.T) {
	targets := makeTargets(t, "10.0.0.1", "10.0.0.2", "10.0.0.3", "10.0.0.4", "10.0.0.5")

	var barrier sync.WaitGroup
	barrier.Add(len(targets))
	allStarted := make(chan struct{})
	go func() {
		barrier.Wait()
		close(allStarted)
	}()

	runner := runnerFunc(func(ctx context.Context, id int, tgt target.Target) *worker.Result {
		barrier.Done()
		// No worker finishes until every worker has started.
		select {
		case <-allStarted:
			return &worker.Result{ID: id, Target: tgt}
		case <-time.After(5 * time.Second):
			return &worker.Result{ID: id, Target: tgt, Error: errors.New("not all workers started")}
		}
	})

	results := collect(NewExecutor(runner, nil).Execute(context.Background(), targets))
	require.Len(t, results, len(targets))
	for _, r := range results {
		assert.NoError(t, r.Error)
	}
}

func TestExecute_SequentialRunsOneAtATime(t *testing.T) {
	targets := makeTargets(t, "10.0.0.1", "10.0.0.2", "10.0.0.3", "10.0.0.4")

	var active, maxActive atomic.Int32
	var mu sync.Mutex
	var order []int

	runner := runnerFunc(func(ctx context.Context, id int, tgt target.Target) *worker.Result {
		n := active.Add(1)
		if n > maxActive.Load() {
			maxActive.Store(n)
		}
		mu.Lock()
		order = append(order, id)
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		active.Add(-1)
		return &worker.Result{ID: id, Target: tgt}
	})

	exec := NewExecutor(runner, nil)
	exec.SetConfig(ExecutorConfig{Sequential: true})
	results := collect(exec.Execute(context.Background(), targets))

	require.Len(t, results, len(targets))
	assert.Equal(t, int32(1), maxActive.Load())
	assert.Equal(t, []int{1, 2, 3, 4}, order)
	for i, r := range results {
		assert.Equal(t, i+1, r.ID)
		assert.Equal(t, targets[i].Host, r.Target.Host)
	}
}

func TestExecute_FailuresAreIsolated(t *testing.T) {
	targets := makeTargets(t, "10.0.0.1", "10.0.0.2", "10.0.0.3")

	runner := runnerFunc(func(ctx context.Context, id int, tgt target.Target) *worker.Result {
		if tgt.Host == "10.0.0.1" {
			return &worker.Result{ID: id, Target: tgt, Error: rcerrors.NewAuthenticationError("login failed", nil)}
		}
		return &worker.Result{ID: id, Target: tgt}
	})

	exec := NewExecutor(runner, nil)
	exec.SetConfig(ExecutorConfig{Sequential: true})
	results := collect(exec.Execute(context.Background(), targets))

	require.Len(t, results, 3)
	assert.Error(t, results[0].Error)
	assert.NoError(t, results[1].Error)
	assert.NoError(t, results[2].Error)
}

func TestExecute_FailFastSequentialAbandonsRemaining(t *testing.T) {
	targets := makeTargets(t, "10.0.0.1", "10.0.0.2", "10.0.0.3")

	var calls atomic.Int32
	runner := runnerFunc(func(ctx context.Context, id int, tgt target.Target) *worker.Result {
		calls.Add(1)
		return &worker.Result{ID: id, Target: tgt, Error: rcerrors.NewAuthenticationError("login failed", nil)}
	})

	exec := NewExecutor(runner, nil)
	exec.SetConfig(ExecutorConfig{Sequential: true, FailFast: true})
	results := collect(exec.Execute(context.Background(), targets))

	require.Len(t, results, 3)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, rcerrors.AuthenticationErrorType, rcerrors.TypeOf(results[0].Error))
	for _, r := range results[1:] {
		assert.Equal(t, rcerrors.ExecutionErrorType, rcerrors.TypeOf(r.Error))
		assert.ErrorIs(t, r.Error, context.Canceled)
	}
}

func TestExecute_FailFastCancelsConcurrentWorkers(t *testing.T) {
	targets := makeTargets(t, "10.0.0.1", "10.0.0.2", "10.0.0.3")

	runner := runnerFunc(func(ctx context.Context, id int, tgt target.Target) *worker.Result {
		if tgt.Host == "10.0.0.1" {
			return &worker.Result{ID: id, Target: tgt, Error: rcerrors.NewTimeoutError("no prompt", context.DeadlineExceeded)}
		}
		select {
		case <-ctx.Done():
			return &worker.Result{ID: id, Target: tgt, Error: ctx.Err()}
		case <-time.After(5 * time.Second):
			return &worker.Result{ID: id, Target: tgt}
		}
	})

	exec := NewExecutor(runner, nil)
	exec.SetConfig(ExecutorConfig{FailFast: true})

	start := time.Now()
	results := collect(exec.Execute(context.Background(), targets))
	assert.Less(t, time.Since(start), 4*time.Second)

	require.Len(t, results, 3)
	for _, r := range results {
		assert.Error(t, r.Error)
	}
}

func TestExecute_FailFastIgnoresNonFatalErrors(t *testing.T) {
	targets := makeTargets(t, "10.0.0.1", "10.0.0.2")

	runner := runnerFunc(func(ctx context.Context, id int, tgt target.Target) *worker.Result {
		if id == 1 {
			return &worker.Result{ID: id, Target: tgt, Error: rcerrors.NewOutputError("disk full", nil)}
		}
		return &worker.Result{ID: id, Target: tgt}
	})

	exec := NewExecutor(runner, nil)
	exec.SetConfig(ExecutorConfig{Sequential: true, FailFast: true})
	results := collect(exec.Execute(context.Background(), targets))

	require.Len(t, results, 2)
	assert.NoError(t, results[1].Error)
}

func TestExecute_NoTargets(t *testing.T) {
	runner := runnerFunc(func(ctx context.Context, id int, tgt target.Target) *worker.Result {
		t.Error("runner should not be called")
		return nil
	})
	results := collect(NewExecutor(runner, nil).Execute(context.Background(), nil))
	assert.Empty(t, results)
}
