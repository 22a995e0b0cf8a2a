// Package responder implements the second per-loop LLM call: given the
// current loop's tool results, it produces the natural-language reply the
// user sees and signals whether the run is complete. Grounded on the
// original responder.py.
package responder

import (
	"context"
	"fmt"
	"strings"

	"toolagent/audit"
	"toolagent/llm"
	"toolagent/memory"
	"toolagent/state"
)

// Responder drives the Respond LLM call.
type Responder struct {
	client llm.Client
	model  string
	audit  *audit.Log
}

// New builds a Responder. auditLog may be nil.
func New(client llm.Client, model string, auditLog *audit.Log) *Responder {
	return &Responder{client: client, model: model, audit: auditLog}
}

const systemInstruction = `You are the response stage of a local tool-using assistant.

Your role is to explain the results of executed tools to the user in clear, natural language.
Keep responses short and easy to read.

RULES:
1. Only state facts from the tool results below.
2. If a tool failed, explain why briefly.
3. Be concise; avoid unnecessary words.
4. Use bullet points or numbered lists where that helps.
5. Do not make assumptions beyond what the tools returned.
6. Do not speculate about system state.
7. Respond in the same language the user wrote in.

OUTPUT FORMAT (choose what fits):
- File/directory listing: bullet points, one entry per line.
- Command output: state the result directly, then one short explanation if needed.
- Tool failed: say what was attempted, why it failed, and 1-2 possible fixes.
- One paragraph at most unless the request genuinely needs more.

If the user's goal is fully satisfied by these results, include the literal JSON
block {"is_final_answer": true} anywhere in your reply. Otherwise state the next
action needed.`

// Respond performs one Responder LLM call and returns a ResponderOutput.
func (r *Responder) Respond(ctx context.Context, userRequest string, toolResults []state.ToolResult, mem *memory.Memory, st *state.State, loopID int) (*state.ResponderOutput, error) {
	systemPrompt := r.buildSystemPrompt(userRequest, toolResults, mem, st)

	req := llm.Request{
		Model:        r.model,
		SystemPrompt: systemPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: "Generate a natural language response based on the tool results above."},
		},
	}

	resp, err := r.client.Call(ctx, req)
	if err != nil {
		if r.audit != nil {
			r.audit.LogError(loopID, "ResponderLLMError", err.Error())
		}
		return nil, fmt.Errorf("responder LLM call: %w", err)
	}

	out := parseResponderOutput(resp.Content, toolResults)

	if r.audit != nil {
		r.audit.LogResponderResponse(loopID, out.Response, len(toolResults), out.IsFinalAnswer)
	}

	return out, nil
}

func (r *Responder) buildSystemPrompt(userRequest string, toolResults []state.ToolResult, mem *memory.Memory, st *state.State) string {
	memorySection := "Long-term Memory:\n" + mem.ToContext(2000)
	stateSection := "Current State:\n" + st.ToContext()
	resultsSection := "Tool Results (this loop):\n" + formatToolResults(toolResults)

	goal := "Complete the request"
	if len(st.RemainingTasks) > 0 {
		goal = st.RemainingTasks[0]
	}
	userSection := "User Request (original):\n" + userRequest + "\n\nUser's Goal: " + goal

	return systemInstruction + "\n\n" + memorySection + "\n\n" + stateSection + "\n\n" + resultsSection + "\n\n" + userSection
}

func formatToolResults(results []state.ToolResult) string {
	if len(results) == 0 {
		return "(no tools were executed this loop)"
	}
	var b strings.Builder
	for i, r := range results {
		status := "OK"
		if !r.Success {
			status = "FAILED"
		}
		fmt.Fprintf(&b, "%d. %s [%s]\n", i+1, r.ToolName, status)
		if r.Success {
			preview := r.Output
			suffix := ""
			if len(preview) > 200 {
				suffix = fmt.Sprintf(" (%d more chars)", len(preview)-200)
				preview = preview[:200]
			}
			fmt.Fprintf(&b, "   Output: %s%s\n", preview, suffix)
		} else {
			fmt.Fprintf(&b, "   Error: %s\n", r.Error)
		}
		if r.DurationSec > 0 {
			fmt.Fprintf(&b, "   Duration: %.2fs\n", r.DurationSec)
		}
	}
	return b.String()
}

// parseResponderOutput builds a ResponderOutput from the model's free text.
// Finality itself is decided later by the Loop Controller
// (agent.Controller.shouldStop); this only fills the per-loop fields the
// controller's first signal reads directly off the text.
func parseResponderOutput(text string, toolResults []state.ToolResult) *state.ResponderOutput {
	return &state.ResponderOutput{
		Response:      text,
		Summary:       summarize(toolResults, text),
		NextAction:    extractNextAction(text),
		IsFinalAnswer: containsFinalAnswerBlock(text),
	}
}

// containsFinalAnswerBlock implements spec.md §4.4 signal 1: an explicit
// structured {"is_final_answer": true} block anywhere in the reply.
func containsFinalAnswerBlock(text string) bool {
	return strings.Contains(text, `"is_final_answer": true`) || strings.Contains(text, `"is_final_answer":true`)
}

func summarize(toolResults []state.ToolResult, text string) string {
	if len(toolResults) == 0 {
		if len(text) > 100 {
			return text[:100]
		}
		return text
	}
	parts := make([]string, 0, len(toolResults))
	for _, r := range toolResults {
		if r.Success {
			parts = append(parts, fmt.Sprintf("✓ %s succeeded", r.ToolName))
		} else {
			errMsg := r.Error
			if len(errMsg) > 50 {
				errMsg = errMsg[:50]
			}
			parts = append(parts, fmt.Sprintf("✗ %s failed: %s", r.ToolName, errMsg))
		}
	}
	return strings.Join(parts, "; ")
}

var nextActionKeywords = []string{"next", "should", "then"}

func extractNextAction(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lower := strings.ToLower(line)
		for _, kw := range nextActionKeywords {
			if strings.Contains(lower, kw) {
				if i+1 < len(lines) {
					return strings.TrimSpace(line) + " " + strings.TrimSpace(lines[i+1])
				}
				return strings.TrimSpace(line)
			}
		}
	}
	return ""
}
