// Package state implements the per-conversation scratchpad: loop counter,
// history of loop records, discovered facts, open tasks, and the most
// recent result per tool. It is thread-confined and discarded when a
// run(request) returns.
package state

import (
	"strconv"
	"strings"
	"time"
)

// ToolCall is a tool invocation emitted by the Planner.
type ToolCall struct {
	ToolName string         `json:"tool_name"`
	Args     map[string]any `json:"args"`
}

// ToolResult is the structured outcome of one executed ToolCall.
type ToolResult struct {
	ToolName     string         `json:"tool_name"`
	ArgsEcho     map[string]any `json:"args_echo"`
	Success      bool           `json:"success"`
	Output       string         `json:"output"`
	Error        string         `json:"error,omitempty"`
	ExitCode     *int           `json:"exit_code,omitempty"`
	DurationSec  float64        `json:"duration_sec"`
	OutputLength int            `json:"output_length"`
}

// PlannerOutput is the Planner's per-loop decision.
type PlannerOutput struct {
	NeedTools     bool       `json:"need_tools"`
	ToolCalls     []ToolCall `json:"tool_calls,omitempty"`
	ReasonBrief   string     `json:"reason_brief,omitempty"`
	StopCondition string     `json:"stop_condition,omitempty"`
	RawResponse   string     `json:"-"`

	// NewFacts, ResolvedTasks and AddedTasks are the optional deltas the
	// Planner may return (spec.md §4.5 PLAN step); the Planner is the sole
	// authoritative source of task deltas in this implementation (see
	// DESIGN.md, Open Question 1).
	NewFacts      []string `json:"new_facts,omitempty"`
	ResolvedTasks []string `json:"resolved_tasks,omitempty"`
	AddedTasks    []string `json:"added_tasks,omitempty"`
}

// ResponderOutput is the Responder's per-loop reply.
type ResponderOutput struct {
	Response      string `json:"response"`
	Summary       string `json:"summary,omitempty"`
	NextAction    string `json:"next_action,omitempty"`
	IsFinalAnswer bool   `json:"is_final_answer"`
}

// LoopRecord captures one iteration of Planner -> Tool Runner -> Responder.
type LoopRecord struct {
	LoopID          int              `json:"loop_id"`
	Timestamp       time.Time        `json:"timestamp"`
	PlannerOutput   *PlannerOutput   `json:"planner_output,omitempty"`
	ToolResults     []ToolResult     `json:"tool_results,omitempty"`
	ResponderOutput *ResponderOutput `json:"responder_output,omitempty"`
}

// State is the per-conversation scratchpad. Zero value is usable; call
// Reset before the first run(request).
type State struct {
	LoopCount        int
	MaxLoops         int
	UserRequest      string
	History          []LoopRecord
	Facts            []string
	RemainingTasks   []string
	LastToolResults  map[string]ToolResult
	CreatedAt        time.Time
}

// New returns a State ready for its first Reset.
func New(maxLoops int) *State {
	if maxLoops <= 0 {
		maxLoops = 5
	}
	s := &State{MaxLoops: maxLoops}
	s.Reset("")
	return s
}

// Reset clears all fields for a new top-level run(request). Called at the
// start of every invocation; State is never shared across requests.
func (s *State) Reset(userRequest string) {
	s.LoopCount = 0
	s.UserRequest = userRequest
	s.History = nil
	s.Facts = nil
	s.RemainingTasks = nil
	s.LastToolResults = make(map[string]ToolResult)
	s.CreatedAt = time.Now()
}

// StartLoop records the start of loop_id. Invariant maintained by callers:
// loop_count == len(history) at the boundary between loops.
func (s *State) StartLoop(loopID int) {
	s.LoopCount = loopID
}

// RecordLoop appends a completed LoopRecord and updates LastToolResults.
func (s *State) RecordLoop(rec LoopRecord) {
	s.History = append(s.History, rec)
	for _, r := range rec.ToolResults {
		s.LastToolResults[r.ToolName] = r
	}
}

// AddFact appends fact if not already present (dedup by exact string match,
// insertion-ordered).
func (s *State) AddFact(fact string) {
	for _, f := range s.Facts {
		if f == fact {
			return
		}
	}
	s.Facts = append(s.Facts, fact)
}

// AddTask appends task to RemainingTasks if not already present.
func (s *State) AddTask(task string) {
	for _, t := range s.RemainingTasks {
		if t == task {
			return
		}
	}
	s.RemainingTasks = append(s.RemainingTasks, task)
}

// CompleteTask removes task from RemainingTasks if present.
func (s *State) CompleteTask(task string) {
	for i, t := range s.RemainingTasks {
		if t == task {
			s.RemainingTasks = append(s.RemainingTasks[:i], s.RemainingTasks[i+1:]...)
			return
		}
	}
}

// ApplyDelta folds a PlannerOutput's new_facts/resolved_tasks/added_tasks
// into state, deduplicating against the existing sets.
func (s *State) ApplyDelta(out *PlannerOutput) {
	if out == nil {
		return
	}
	for _, f := range out.NewFacts {
		s.AddFact(f)
	}
	for _, t := range out.ResolvedTasks {
		s.CompleteTask(t)
	}
	for _, t := range out.AddedTasks {
		s.AddTask(t)
	}
}

// HistorySummary renders the most recent maxLoops loop records as a
// compact transcript for inclusion in the next Planner prompt. Tool
// outputs are truncated to 500 chars per the Design Notes' resolution of
// the "summaries vs full outputs" open question.
func (s *State) HistorySummary(maxLoops int) string {
	recent := s.History
	if len(recent) > maxLoops {
		recent = recent[len(recent)-maxLoops:]
	}
	if len(recent) == 0 {
		return "## Loop History (none yet)"
	}

	out := "## Loop History (recent " + strconv.Itoa(len(recent)) + " loops)"
	for _, rec := range recent {
		out += "\n\nLoop " + strconv.Itoa(rec.LoopID) + ":"
		if rec.PlannerOutput != nil {
			out += "\n  Planner: " + rec.PlannerOutput.ReasonBrief +
				" (tools: " + strconv.Itoa(len(rec.PlannerOutput.ToolCalls)) + ")"
		}
		for _, r := range rec.ToolResults {
			status := "ok"
			if !r.Success {
				status = "FAIL"
			}
			preview := r.Output
			if len(preview) > 500 {
				preview = preview[:500] + "..."
			}
			if r.Error != "" {
				out += "\n  [" + status + "] " + r.ToolName + ": " + truncate(r.Error, 120)
			} else {
				out += "\n  [" + status + "] " + r.ToolName + ": " + oneLine(preview)
			}
		}
		if rec.ResponderOutput != nil {
			out += "\n  Response: " + truncate(oneLine(rec.ResponderOutput.Response), 160)
		}
	}
	return out
}

// ToContext renders state for inclusion in an LLM prompt.
func (s *State) ToContext() string {
	out := "## Current State\nLoop: " + strconv.Itoa(s.LoopCount) + "/" + strconv.Itoa(s.MaxLoops) +
		"\nFacts gathered: " + strconv.Itoa(len(s.Facts)) +
		"\nTasks remaining: " + strconv.Itoa(len(s.RemainingTasks))

	if len(s.Facts) > 0 {
		out += "\n\n## Facts Gathered"
		start := 0
		if len(s.Facts) > 5 {
			start = len(s.Facts) - 5
		}
		for _, f := range s.Facts[start:] {
			out += "\n- " + f
		}
	}

	if len(s.RemainingTasks) > 0 {
		out += "\n\n## Remaining Tasks"
		for _, t := range s.RemainingTasks {
			out += "\n- " + t
		}
	}

	return out
}

func oneLine(s string) string {
	r := strings.NewReplacer("\n", " ", "\r", " ")
	return r.Replace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
