// Package agent implements the Loop Controller: it orchestrates the
// Planner, Tool Runner, and Responder through up to MaxLoops iterations,
// applies the termination rules, and synthesises a limit-reached reply.
// Grounded on the original agent_loop.py, restructured around spec.md
// §4.5's exact, ordered termination checks (which differ from the
// original's single combined _should_stop heuristic).
package agent

import (
	"context"
	"fmt"
	"time"

	"toolagent/audit"
	"toolagent/memory"
	"toolagent/planner"
	"toolagent/responder"
	"toolagent/state"
	"toolagent/toolrunner"
)

// Controller wires the Planner, Tool Runner, and Responder into one
// synchronous per-request loop. Run itself is single-threaded and
// synchronous for a given request (spec.md §5): within one Run call, the
// Planner, Tool Runner, and Responder are invoked strictly in sequence,
// never concurrently. A Controller holds no per-run mutable state, so
// distinct goroutines may call Run concurrently as long as each passes
// its own *state.State — State itself is thread-confined and must never
// be shared between concurrent Run calls.
type Controller struct {
	Planner   *planner.Planner
	Runner    *toolrunner.Runner
	Responder *responder.Responder
	Memory    *memory.Memory
	Audit     *audit.Log

	MaxLoops    int
	LoopWaitSec float64
}

// New builds a Controller. maxLoops and loopWaitSec fall back to
// spec.md's defaults (5 and 0.5s) when zero.
func New(p *planner.Planner, r *toolrunner.Runner, resp *responder.Responder, mem *memory.Memory, auditLog *audit.Log, maxLoops int, loopWaitSec float64) *Controller {
	if maxLoops <= 0 {
		maxLoops = 5
	}
	if loopWaitSec <= 0 {
		loopWaitSec = 0.5
	}
	return &Controller{
		Planner:     p,
		Runner:      r,
		Responder:   resp,
		Memory:      mem,
		Audit:       auditLog,
		MaxLoops:    maxLoops,
		LoopWaitSec: loopWaitSec,
	}
}

// Result is what Run returns to the caller: the final natural-language
// reply plus the terminal state, for diagnostics or a follow-up request.
type Result struct {
	Response string
	State    *state.State
	Stopped  string // "final_answer", "no_more_tools", "loop_detected", "limit_reached"
}

// Run resets st for userRequest and drives PLAN -> EXEC -> RESPOND loops
// until one of spec.md §4.5's termination signals fires, in order:
//  1. responder.is_final_answer
//  2. Planner need_tools=false AND the Responder produced output
//  3. Planner stop_condition == "loop_detected"
//  4. loop_count == MaxLoops, via one extra limit-reached Responder call
//
// shouldStop checks signal 3 before signal 2; see its comment.
//
// An LLM transport failure that survives the retry-once policy is fatal
// and aborts the run (llm.FatalError is wrapped with %w into err, so
// errors.As recovers it).
func (c *Controller) Run(ctx context.Context, userRequest string, st *state.State) (*Result, error) {
	st.Reset(userRequest)

	for loopID := 1; loopID <= c.MaxLoops; loopID++ {
		st.StartLoop(loopID)

		plan, err := c.Planner.Plan(ctx, userRequest, c.Memory, st, loopID)
		if err != nil {
			return nil, fmt.Errorf("loop %d: planner: %w", loopID, err)
		}

		var toolResults []state.ToolResult
		if plan.NeedTools {
			toolResults = c.Runner.ExecuteBatch(plan.ToolCalls, loopID)
		}

		resp, err := c.Responder.Respond(ctx, userRequest, toolResults, c.Memory, st, loopID)
		if err != nil {
			return nil, fmt.Errorf("loop %d: responder: %w", loopID, err)
		}

		st.ApplyDelta(plan)
		st.RecordLoop(state.LoopRecord{
			LoopID:          loopID,
			Timestamp:       time.Now(),
			PlannerOutput:   plan,
			ToolResults:     toolResults,
			ResponderOutput: resp,
		})

		if stopped, reason := c.shouldStop(plan, resp); stopped {
			return &Result{Response: resp.Response, State: st, Stopped: reason}, nil
		}

		if loopID < c.MaxLoops {
			sleep(c.LoopWaitSec)
		}
	}

	return c.finalizeOnLimit(ctx, userRequest, st)
}

// shouldStop implements spec.md §4.5's first three termination signals.
// Loop detection forces need_tools=false itself, so it always also
// satisfies signal 2 ("need_tools=false AND responder produced output") —
// checking stop_condition first is what makes the distinct "loop_detected"
// diagnostic reachable at all, rather than always being shadowed by the
// more generic no-more-tools signal. The fourth signal (loop-limit) is
// handled by Run's caller once the loop range is exhausted.
func (c *Controller) shouldStop(plan *state.PlannerOutput, resp *state.ResponderOutput) (bool, string) {
	if resp.IsFinalAnswer {
		return true, "final_answer"
	}
	if plan.StopCondition == "loop_detected" {
		return true, "loop_detected"
	}
	if !plan.NeedTools && resp.Response != "" {
		return true, "no_more_tools"
	}
	return false, ""
}

// finalizeOnLimit implements spec.md §4.5's fourth termination signal:
// loop_count == MaxLoops triggers one extra Responder call asking it to
// summarise progress, rather than a hand-built string (the original's
// _final_response_on_limit approach).
func (c *Controller) finalizeOnLimit(ctx context.Context, userRequest string, st *state.State) (*Result, error) {
	instruction := fmt.Sprintf(
		"The loop limit of %d iterations was reached before the request was fully resolved. "+
			"Summarise what was achieved, list any unresolved tasks, and mention that the full "+
			"audit trail is available in the audit log.",
		c.MaxLoops,
	)

	resp, err := c.Responder.Respond(ctx, instruction, nil, c.Memory, st, c.MaxLoops+1)
	if err != nil {
		return nil, fmt.Errorf("limit-reached synthesis: %w", err)
	}

	if c.Audit != nil {
		c.Audit.LogError(c.MaxLoops, "LoopLimitReached", fmt.Sprintf("stopped after %d loops", c.MaxLoops))
	}

	return &Result{Response: resp.Response, State: st, Stopped: "limit_reached"}, nil
}

// sleep is a var so tests can stub it out without sleeping for real.
var sleep = func(seconds float64) {
	time.Sleep(time.Duration(seconds * float64(time.Second)))
}
