package agent

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	fctx "github.com/friday-ai/friday/internal/context"
	ferrors "github.com/friday-ai/friday/internal/errors"
	"github.com/friday-ai/friday/internal/logging"
	"github.com/friday-ai/friday/internal/tools"
)

const defaultMaxConcurrency = 4

type parallelExecutor struct {
	registry       *tools.Registry
	maxConcurrency int
	workDir        string
	logger         *logging.Logger
}

func newParallelExecutor(registry *tools.Registry, maxConcurrency int, workDir string, logger *logging.Logger) *parallelExecutor {
	if maxConcurrency <= 0 {
		maxConcurrency = defaultMaxConcurrency
	}
	return &parallelExecutor{
		registry:       registry,
		maxConcurrency: maxConcurrency,
		workDir:        workDir,
		logger:         logger,
	}
}

// executeParallel runs the approved calls concurrently. Results come back in
// the order of calls; unapproved slots are left zero for the caller to fill.
// Tool errors become failed results, so the group never fails.
func (pe *parallelExecutor) executeParallel(ctx context.Context, calls []fctx.ToolCall, approved []bool) []tools.Result {
	results := make([]tools.Result, len(calls))

	var g errgroup.Group
	g.SetLimit(pe.maxConcurrency)
	for i, call := range calls {
		if !approved[i] {
			continue
		}
		g.Go(func() error {
			results[i] = pe.execute(ctx, call)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (pe *parallelExecutor) execute(ctx context.Context, call fctx.ToolCall) tools.Result {
	start := time.Now()
	pe.logger.Event(logging.EventToolStart, logging.ToolName(call.Name), logging.CallID(call.ID))

	res, err := pe.registry.Execute(ctx, tools.Invocation{
		ToolName:         call.Name,
		Arguments:        call.Arguments,
		WorkingDirectory: pe.workDir,
	})
	if err != nil {
		res = failureFor(call.Name, err)
	}
	if !res.Success && ctx.Err() != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		res.TimedOut = true
	}

	if res.Success {
		pe.logger.Event(logging.EventToolComplete, logging.ToolName(call.Name), logging.CallID(call.ID), logging.DurationSince(start))
	} else {
		pe.logger.Debug("tool failed", logging.ToolName(call.Name), logging.F("error", res.Error))
		pe.logger.Event(logging.EventToolError, logging.ToolName(call.Name), logging.CallID(call.ID), logging.F("error", res.Error))
	}
	pe.logger.Metrics().RecordToolCall(call.Name, time.Since(start), res.Success)
	return res
}

func failureFor(name string, err error) tools.Result {
	if ferrors.GetCode(err) == "tool_not_found" {
		return tools.Failure("Unknown tool: " + name)
	}
	var fe *ferrors.FridayError
	if errors.As(err, &fe) && fe.Cause != nil {
		return tools.Failure(fe.Cause.Error())
	}
	return tools.Failure(err.Error())
}
