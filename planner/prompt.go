package planner

import (
	"encoding/json"
	"fmt"
	"strings"

	"toolagent/llm"
	"toolagent/toolrunner"
)

// renderCatalogue renders the tool catalogue as a numbered spec list for
// the textual portion of the system prompt, in the original planner.py's
// "N. name / Description / Args" shape, but generated from the same
// declarative Catalogue the Tool Runner and structured-tool channel use
// (spec.md §4.3 "single declarative specification shared with the Tool
// Runner").
func renderCatalogue(tools []llm.ToolSchema) string {
	var specs []string
	for i, t := range tools {
		argsJSON, _ := json.Marshal(argDescriptions(t))
		specs = append(specs, fmt.Sprintf("%d. %s\n   Description: %s\n   Args: %s", i+1, t.Name, t.Description, argsJSON))
	}
	return strings.Join(specs, "\n")
}

func argDescriptions(t llm.ToolSchema) map[string]string {
	out := map[string]string{}
	props, _ := t.Parameters["properties"].(map[string]any)
	for key, v := range props {
		if m, ok := v.(map[string]any); ok {
			if desc, ok := m["description"].(string); ok {
				out[key] = desc
			}
		}
	}
	return out
}

const systemInstruction = `You are the planning stage of a local tool-using assistant.

Your role is to decide what tools to call next based on:
1. The user's request
2. Long-term memory (preferences, environment, decisions)
3. The current state (facts gathered, tasks remaining, loop history)

Output MUST be valid JSON with this exact structure:
{
  "need_tools": boolean,
  "tool_calls": [
    {"tool_name": "...", "args": {...}},
    ...
  ],
  "reason_brief": "string (max 300 chars)",
  "stop_condition": "string - what signals completion?",
  "new_facts": ["..."],
  "resolved_tasks": ["..."],
  "added_tasks": ["..."]
}

RULES:
1. If no tools are needed (e.g. answerable from memory alone), set need_tools=false and leave tool_calls empty.
2. Only call tools from the list below.
3. Check the loop history before calling a tool; do not repeat an identical call.
4. Keep reason_brief concise.
5. Output valid JSON only, no explanation outside the JSON object.

FORBIDDEN:
- Assumptions beyond what tool results establish.
- Destructive operations without an explicit user request.
- Calling tools out of dependency order.`

// BuildSystemPrompt assembles the Planner's system prompt: instructions,
// tool catalogue, memory context, state context, recent loop history, and
// the user's goal.
func BuildSystemPrompt(userRequest string, memoryCtx string, stateCtx string, historySummary string, remainingTaskHint string) string {
	toolsSection := "Available Tools:\n" + renderCatalogue(toolrunner.Catalogue())

	memorySection := "Long-term Memory (preferences, environment, repeated decisions):\n" + memoryCtx

	stateSection := "Current State (loop progress, facts, remaining tasks):\n" + stateCtx +
		"\n\n" + historySummary

	goal := remainingTaskHint
	if goal == "" {
		goal = "Complete the request"
	}
	userSection := "User Request (original):\n" + userRequest + "\n\nCurrent Goal: " + goal

	return systemInstruction + "\n\n" + toolsSection + "\n\n" + memorySection + "\n\n" + stateSection + "\n\n" + userSection + "\n\nOutput your JSON response:"
}
