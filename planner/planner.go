// Package planner implements the first of the two per-loop LLM calls: given
// the user request, memory, and state, it decides whether tools are needed
// and, if so, which ones to call with what arguments. Grounded on the
// original planner.py, restructured around spec.md §4.3's dual-mode
// tool-call protocol and explicit brace-balanced (non-regex) text parsing.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"toolagent/audit"
	"toolagent/llm"
	"toolagent/memory"
	"toolagent/state"
	"toolagent/toolrunner"
)

// Planner drives the Plan LLM call and validates/repairs its output.
type Planner struct {
	client                llm.Client
	model                 string
	enableFunctionCalling bool
	audit                 *audit.Log
	maxHistoryLoops       int
}

// New builds a Planner. auditLog may be nil.
func New(client llm.Client, model string, enableFunctionCalling bool, auditLog *audit.Log) *Planner {
	return &Planner{
		client:                client,
		model:                 model,
		enableFunctionCalling: enableFunctionCalling,
		audit:                 auditLog,
		maxHistoryLoops:       3,
	}
}

// plannerJSON mirrors the JSON response schema the Planner's prompt
// demands. Decoded both from the model's raw text and, when the strict
// fields are absent (TOOL_CALL: fallback), synthesized by hand.
type plannerJSON struct {
	NeedTools     bool             `json:"need_tools"`
	ToolCalls     []plannerCallRaw `json:"tool_calls"`
	ReasonBrief   string           `json:"reason_brief"`
	StopCondition string           `json:"stop_condition"`
	NewFacts      []string         `json:"new_facts"`
	ResolvedTasks []string         `json:"resolved_tasks"`
	AddedTasks    []string         `json:"added_tasks"`
}

type plannerCallRaw struct {
	ToolName string         `json:"tool_name"`
	Args     map[string]any `json:"args"`
}

// Plan performs one Planner LLM call and returns a validated PlannerOutput.
func (p *Planner) Plan(ctx context.Context, userRequest string, mem *memory.Memory, st *state.State, loopID int) (*state.PlannerOutput, error) {
	goal := ""
	if len(st.RemainingTasks) > 0 {
		goal = st.RemainingTasks[0]
	}
	systemPrompt := BuildSystemPrompt(userRequest, mem.ToContext(4000), st.ToContext(), st.HistorySummary(p.maxHistoryLoops), goal)

	req := llm.Request{
		Model:        p.model,
		SystemPrompt: systemPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: "Generate a plan by responding with valid JSON."},
		},
	}
	if p.enableFunctionCalling {
		req.Tools = toolrunner.Catalogue()
	}

	resp, err := p.client.Call(ctx, req)
	if err != nil {
		if p.audit != nil {
			p.audit.LogError(loopID, "PlannerLLMError", err.Error())
		}
		return nil, fmt.Errorf("planner LLM call: %w", err)
	}

	var out *state.PlannerOutput
	if len(resp.ToolCalls) > 0 {
		out = p.fromStructuredToolCalls(resp)
	} else {
		out = p.fromText(resp.Content)
	}

	p.validateAndFilter(out, loopID)
	p.applyLoopDetection(out, st)

	if p.audit != nil {
		p.audit.LogPlannerDecision(loopID, out.NeedTools, out.ReasonBrief, out.StopCondition)
	}

	return out, nil
}

// fromStructuredToolCalls maps the provider's structured tool_calls channel
// directly, per spec.md §4.3 option (a).
func (p *Planner) fromStructuredToolCalls(resp *llm.Response) *state.PlannerOutput {
	calls := make([]state.ToolCall, 0, len(resp.ToolCalls))
	for _, tc := range resp.ToolCalls {
		calls = append(calls, state.ToolCall{ToolName: tc.Name, Args: tc.Args})
	}
	return &state.PlannerOutput{
		NeedTools:   true,
		ToolCalls:   calls,
		ReasonBrief: truncateReason(resp.Content),
		RawResponse: resp.Content,
	}
}

// fromText implements spec.md §4.3's text parsing chain: brace-balanced
// JSON scan, then TOOL_CALL: {...} fallback, then parse_failed.
func (p *Planner) fromText(text string) *state.PlannerOutput {
	if obj, ok := ExtractJSON(text); ok {
		// Strict parse: the object must carry need_tools to count as a plan;
		// anything else (e.g. a bare TOOL_CALL payload) falls through.
		var keys map[string]json.RawMessage
		if err := json.Unmarshal([]byte(obj), &keys); err == nil {
			if _, strict := keys["need_tools"]; strict {
				var parsed plannerJSON
				if err := json.Unmarshal([]byte(obj), &parsed); err == nil {
					return fromPlannerJSON(parsed, text)
				}
			}
		}
	}

	if blocks := ExtractToolCallBlocks(text); len(blocks) > 0 {
		var calls []state.ToolCall
		for _, b := range blocks {
			var raw plannerCallRaw
			if err := json.Unmarshal([]byte(b), &raw); err == nil && raw.ToolName != "" {
				calls = append(calls, state.ToolCall{ToolName: raw.ToolName, Args: raw.Args})
			}
		}
		if len(calls) > 0 {
			return &state.PlannerOutput{
				NeedTools:   true,
				ToolCalls:   calls,
				RawResponse: text,
			}
		}
	}

	return &state.PlannerOutput{
		NeedTools:     false,
		ReasonBrief:   truncateReason(text),
		StopCondition: "parse_failed",
		RawResponse:   text,
	}
}

func fromPlannerJSON(parsed plannerJSON, raw string) *state.PlannerOutput {
	var calls []state.ToolCall
	if parsed.NeedTools {
		for _, c := range parsed.ToolCalls {
			if c.ToolName == "" {
				continue
			}
			calls = append(calls, state.ToolCall{ToolName: c.ToolName, Args: c.Args})
		}
	}
	return &state.PlannerOutput{
		NeedTools:     parsed.NeedTools,
		ToolCalls:     calls,
		ReasonBrief:   truncateReason(parsed.ReasonBrief),
		StopCondition: parsed.StopCondition,
		NewFacts:      parsed.NewFacts,
		ResolvedTasks: parsed.ResolvedTasks,
		AddedTasks:    parsed.AddedTasks,
		RawResponse:   raw,
	}
}

func truncateReason(s string) string {
	if len(s) > 300 {
		return s[:300]
	}
	return s
}

// validateAndFilter drops unknown tool names and unknown argument keys in
// place, per spec.md §4.3's validation rule.
func (p *Planner) validateAndFilter(out *state.PlannerOutput, loopID int) {
	if !out.NeedTools {
		return
	}
	filtered := out.ToolCalls[:0]
	for _, call := range out.ToolCalls {
		if _, known := toolrunner.KnownTools[call.ToolName]; !known {
			if p.audit != nil {
				p.audit.LogError(loopID, "UnknownTool", fmt.Sprintf("dropped unknown tool %q", call.ToolName))
			}
			continue
		}
		call.Args = filterKnownArgs(call.ToolName, call.Args)
		filtered = append(filtered, call)
	}
	out.ToolCalls = filtered
	if len(out.ToolCalls) == 0 {
		out.NeedTools = false
	}
}

var allowedArgKeysByTool = buildAllowedArgKeys()

func buildAllowedArgKeys() map[string]map[string]struct{} {
	result := map[string]map[string]struct{}{}
	for _, t := range toolrunner.Catalogue() {
		keys := map[string]struct{}{}
		if props, ok := t.Parameters["properties"].(map[string]any); ok {
			for k := range props {
				keys[k] = struct{}{}
			}
		}
		result[t.Name] = keys
	}
	return result
}

func filterKnownArgs(toolName string, args map[string]any) map[string]any {
	allowed, ok := allowedArgKeysByTool[toolName]
	if !ok || args == nil {
		return args
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		if _, ok := allowed[k]; ok {
			out[k] = v
		}
	}
	return out
}

// applyLoopDetection implements spec.md §4.3: if any proposed call's
// (tool_name, args) pair already appears three times in history with an
// identical result, override to need_tools=false, stop_condition
// "loop_detected" — stricter than the original's single-prior-loop check.
func (p *Planner) applyLoopDetection(out *state.PlannerOutput, st *state.State) {
	if !out.NeedTools {
		return
	}
	for _, call := range out.ToolCalls {
		if countIdenticalCalls(st, call) >= 3 {
			out.NeedTools = false
			out.ToolCalls = nil
			out.StopCondition = "loop_detected"
			return
		}
	}
}

func countIdenticalCalls(st *state.State, call state.ToolCall) int {
	count := 0
	var lastOutput string
	haveLast := false
	for _, rec := range st.History {
		for _, r := range rec.ToolResults {
			if r.ToolName != call.ToolName {
				continue
			}
			if !reflect.DeepEqual(r.ArgsEcho, call.Args) {
				continue
			}
			if haveLast && r.Output != lastOutput {
				continue
			}
			count++
			lastOutput = r.Output
			haveLast = true
		}
	}
	return count
}
