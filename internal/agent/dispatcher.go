// Package agent drives one step of the tool loop: it gates the calls of an
// assistant turn through the context manager, runs the approved ones and
// records their results.
package agent

import (
	"context"
	"fmt"

	fctx "github.com/friday-ai/friday/internal/context"
	"github.com/friday-ai/friday/internal/logging"
	"github.com/friday-ai/friday/internal/tools"
)

// Dispatcher executes tool calls on behalf of a ContextManager.
type Dispatcher struct {
	manager  *fctx.ContextManager
	executor *parallelExecutor
	logger   *logging.Logger
}

type dispatcherOptions struct {
	maxConcurrency int
	workDir        string
	logger         *logging.Logger
}

// Option configures a Dispatcher.
type Option func(*dispatcherOptions)

// WithMaxConcurrency bounds how many tools run at once.
func WithMaxConcurrency(n int) Option {
	return func(o *dispatcherOptions) { o.maxConcurrency = n }
}

// WithWorkingDirectory sets the directory passed to every invocation.
func WithWorkingDirectory(dir string) Option {
	return func(o *dispatcherOptions) { o.workDir = dir }
}

// WithLogger attaches a logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *dispatcherOptions) { o.logger = l }
}

// NewDispatcher creates a dispatcher over manager and registry.
func NewDispatcher(manager *fctx.ContextManager, registry *tools.Registry, opts ...Option) *Dispatcher {
	var o dispatcherOptions
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger.WithPrefix("agent")
	return &Dispatcher{
		manager:  manager,
		executor: newParallelExecutor(registry, o.maxConcurrency, o.workDir, logger),
		logger:   logger,
	}
}

// Step is what happened to one assistant turn.
type Step struct {
	Gates      []fctx.GateResult
	Results    []fctx.Turn
	Guidance   *fctx.Turn
	Compaction *fctx.CompactResult
}

// Redirected returns how many calls the loop detector held back.
func (s *Step) Redirected() int {
	n := 0
	for _, g := range s.Gates {
		if g.Action != fctx.ActionProceed {
			n++
		}
	}
	return n
}

// Dispatch appends turn, gates each of its calls in order, runs the approved
// calls, appends one result per call in call order and then compacts if
// needed. A redirect replaces the call's result with a refusal and adds one
// guidance turn after the results. An abort runs no call of the turn and
// returns LoopAborted after answering every call.
func (d *Dispatcher) Dispatch(ctx context.Context, turn fctx.Turn) (*Step, error) {
	if err := d.manager.AppendTurn(turn); err != nil {
		return nil, err
	}
	step := &Step{}

	calls := turn.ToolCalls
	approved := make([]bool, len(calls))
	var aborted *fctx.GateResult
	var lastRedirect *fctx.Decision

	for i, call := range calls {
		gate := d.manager.BeforeToolCall(call)
		step.Gates = append(step.Gates, gate)
		switch gate.Action {
		case fctx.ActionProceed:
			approved[i] = true
		case fctx.ActionRedirect:
			dec := gate.Decision
			lastRedirect = &dec
		case fctx.ActionAbort:
			if aborted == nil {
				g := gate
				aborted = &g
			}
		}
	}

	var results []tools.Result
	if aborted != nil {
		results = make([]tools.Result, len(calls))
		for i := range calls {
			results[i] = tools.Failure("Not run: the session was stopped after repeated tool calls.")
		}
	} else {
		results = d.executor.executeParallel(ctx, calls, approved)
		for i, call := range calls {
			if !approved[i] {
				results[i] = tools.Failure(refusal(call, step.Gates[i].Decision))
			}
		}
	}

	for i, call := range calls {
		rt := fctx.ToolResultTurn(call.ID, results[i])
		if err := d.manager.AppendTurn(rt); err != nil {
			return step, err
		}
		step.Results = append(step.Results, rt)
	}

	if aborted != nil {
		return step, aborted.Err()
	}

	if lastRedirect != nil {
		guidance := fctx.GuidanceTurn(*lastRedirect)
		if err := d.manager.AppendTurn(guidance); err != nil {
			return step, err
		}
		step.Guidance = &guidance
	}

	res, err := d.manager.CompactIfNeeded(ctx)
	if err != nil {
		return step, err
	}
	step.Compaction = res
	return step, nil
}

func refusal(call fctx.ToolCall, dec fctx.Decision) string {
	return fmt.Sprintf("Not run: %s repeats a call that was already made %d times without progress.", call.Name, dec.Repeats)
}
