package executor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	rcerrors "runcommand/internal/errors"
	"runcommand/internal/logging"
	"runcommand/internal/target"
	"runcommand/internal/worker"
)

// ExecutorConfig holds configuration parameters for the executor
type ExecutorConfig struct {
	Sequential bool // run target k+1 only after target k finished
	FailFast   bool // cancel the run on the first authentication or timeout failure
}

// Runner processes a single target. *worker.Worker implements it.
type Runner interface {
	Run(ctx context.Context, id int, t target.Target) *worker.Result
}

// Executor defines the interface for dispatching workers over targets
type Executor interface {
	// Execute runs every target and streams results as workers finish.
	// The channel is closed once all targets are accounted for.
	Execute(ctx context.Context, targets []target.Target) <-chan *worker.Result

	// SetConfig updates the executor configuration
	SetConfig(config ExecutorConfig)
}

// Dispatcher starts one goroutine per target, without an upper bound, or
// runs them one at a time in sequential mode.
type Dispatcher struct {
	config ExecutorConfig
	runner Runner
	logger *logging.Logger
	mu     sync.RWMutex
}

// NewExecutor creates a concurrent, failure-isolating executor
func NewExecutor(runner Runner, logger *logging.Logger) Executor {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Dispatcher{runner: runner, logger: logger}
}

// SetConfig updates the executor configuration
func (d *Dispatcher) SetConfig(config ExecutorConfig) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.config = config
}

// Execute dispatches a worker per target. Worker ids are 1-based in target
// order.
func (d *Dispatcher) Execute(ctx context.Context, targets []target.Target) <-chan *worker.Result {
	d.mu.RLock()
	config := d.config
	d.mu.RUnlock()

	results := make(chan *worker.Result, len(targets))
	d.logger.LogExecutorStart(len(targets), config.Sequential, config.FailFast)

	go func() {
		defer close(results)
		startTime := time.Now()
		var succeeded, failed atomic.Int64

		g, gctx := errgroup.WithContext(ctx)
		if config.Sequential {
			g.SetLimit(1)
		}

		for i, t := range targets {
			t := t // per-iteration copy (go 1.21 loop semantics)
			id := i + 1
			g.Go(func() error {
				var result *worker.Result
				if err := gctx.Err(); err != nil {
					result = abandoned(id, t, err)
				} else {
					result = d.runner.Run(gctx, id, t)
				}

				if result.Success() {
					succeeded.Add(1)
				} else {
					failed.Add(1)
				}
				results <- result

				if config.FailFast && result.Error != nil && rcerrors.ClassifyError(result.Error).IsFatal() {
					d.logger.Error("aborting run", "worker", id, "host", t.Host, "error", result.Error.Error())
					return result.Error
				}
				return nil
			})
		}
		_ = g.Wait()

		d.logger.LogExecutorComplete(len(targets), int(succeeded.Load()), int(failed.Load()), time.Since(startTime))
	}()

	return results
}

// abandoned is the result for a target skipped after the run was cancelled.
func abandoned(id int, t target.Target, cause error) *worker.Result {
	return &worker.Result{
		ID:     id,
		Target: t,
		Error:  rcerrors.NewExecutionError("run cancelled before "+t.Host+" was contacted", cause),
	}
}
