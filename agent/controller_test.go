package agent

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"toolagent/constraints"
	"toolagent/llm"
	"toolagent/memory"
	"toolagent/planner"
	"toolagent/responder"
	"toolagent/state"
	"toolagent/toolrunner"
)

// scriptedClient returns one canned llm.Response per Call, in order, so a
// test can hand-author exactly what the Planner and Responder see each
// loop without a real model.
type scriptedClient struct {
	responses []*llm.Response
	i         int
}

func (s *scriptedClient) Call(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if s.i >= len(s.responses) {
		return &llm.Response{Content: `{"need_tools": false, "reason_brief": "done", "stop_condition": ""}`}, nil
	}
	r := s.responses[s.i]
	s.i++
	return r, nil
}

func newController(t *testing.T, root string, allowlist []string, responses []*llm.Response) *Controller {
	t.Helper()
	c, err := constraints.New(root, allowlist, 5, 1000)
	if err != nil {
		t.Fatalf("constraints.New: %v", err)
	}
	client := &scriptedClient{responses: responses}
	p := planner.New(client, "test-model", false, nil)
	r := toolrunner.New(c, nil)
	resp := responder.New(client, "test-model", nil)
	mem, err := memory.Load(filepath.Join(t.TempDir(), "memory.json"))
	if err != nil {
		t.Fatalf("memory.Load: %v", err)
	}
	ctrl := New(p, r, resp, mem, nil, 5, 0)
	ctrl.LoopWaitSec = 0.001
	return ctrl
}

func jsonResp(s string) *llm.Response { return &llm.Response{Content: s} }

// TestSingleRead exercises spec.md §8's "single read" scenario: one
// Planner call proposing read_file, one Tool Runner execution, one
// Responder call that declares is_final_answer.
func TestSingleRead(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctrl := newController(t, root, nil, []*llm.Response{
		jsonResp(`{"need_tools": true, "tool_calls": [{"tool_name": "read_file", "args": {"path": "a.txt"}}], "reason_brief": "reading file", "stop_condition": ""}`),
		jsonResp(`The file contains: hello world. {"is_final_answer": true}`),
	})

	st := state.New(5)
	result, err := ctrl.Run(context.Background(), "read a.txt", st)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Stopped != "final_answer" {
		t.Fatalf("expected final_answer, got %q", result.Stopped)
	}
	if len(st.History) != 1 {
		t.Fatalf("expected exactly 1 loop, got %d", len(st.History))
	}
	if !strings.Contains(st.History[0].ToolResults[0].Output, "hello world") {
		t.Fatalf("unexpected tool output: %+v", st.History[0].ToolResults[0])
	}
}

// TestPathTraversalBlocked exercises spec.md §8's path traversal scenario:
// the tool call fails with a PathForbidden-style error but the loop
// continues and still produces a human-readable reply.
func TestPathTraversalBlocked(t *testing.T) {
	root := t.TempDir()

	ctrl := newController(t, root, nil, []*llm.Response{
		jsonResp(`{"need_tools": true, "tool_calls": [{"tool_name": "read_file", "args": {"path": "../../etc/passwd"}}], "reason_brief": "reading file", "stop_condition": ""}`),
		jsonResp(`That path is outside the allowed workspace, so I could not read it. {"is_final_answer": true}`),
	})

	st := state.New(5)
	result, err := ctrl.Run(context.Background(), "read ../../etc/passwd", st)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	tr := st.History[0].ToolResults[0]
	if tr.Success {
		t.Fatal("expected path traversal to fail")
	}
	if !strings.Contains(tr.Error, "outside allowed root") {
		t.Fatalf("unexpected error: %q", tr.Error)
	}
	if result.Response == "" {
		t.Fatal("expected a human-readable reply despite the failure")
	}
}

// TestCommandNotAllowed exercises spec.md §8's command-not-allowed
// scenario using a command allowlist that excludes the requested command.
func TestCommandNotAllowed(t *testing.T) {
	root := t.TempDir()

	ctrl := newController(t, root, []string{"ls"}, []*llm.Response{
		jsonResp(`{"need_tools": true, "tool_calls": [{"tool_name": "exec_cmd", "args": {"command": "rm -rf /"}}], "reason_brief": "running command", "stop_condition": ""}`),
		jsonResp(`That command is not on the allowlist. {"is_final_answer": true}`),
	})

	st := state.New(5)
	if _, err := ctrl.Run(context.Background(), "run rm -rf /", st); err != nil {
		t.Fatalf("Run: %v", err)
	}
	tr := st.History[0].ToolResults[0]
	if tr.Success {
		t.Fatal("expected command to be rejected")
	}
	if !strings.Contains(tr.Error, "not allowed") {
		t.Fatalf("unexpected error: %q", tr.Error)
	}
}

// TestOutputTruncation exercises spec.md §8's truncation scenario: a
// 10000-byte file read through a Constraints capped at max_output_size=1000
// produces the exact "(N chars hidden)" marker.
func TestOutputTruncation(t *testing.T) {
	root := t.TempDir()
	big := strings.Repeat("x", 10000)
	if err := os.WriteFile(filepath.Join(root, "big.txt"), []byte(big), 0o644); err != nil {
		t.Fatal(err)
	}

	ctrl := newController(t, root, nil, []*llm.Response{
		jsonResp(`{"need_tools": true, "tool_calls": [{"tool_name": "read_file", "args": {"path": "big.txt"}}], "reason_brief": "reading file", "stop_condition": ""}`),
		jsonResp(`Read the large file. {"is_final_answer": true}`),
	})

	st := state.New(5)
	if _, err := ctrl.Run(context.Background(), "read big.txt", st); err != nil {
		t.Fatalf("Run: %v", err)
	}
	out := st.History[0].ToolResults[0].Output
	if !strings.Contains(out, "... (9000 chars hidden) ...") {
		t.Fatalf("expected exact truncation marker, got: %q", out[:200])
	}
}

// TestLoopLimitReached exercises spec.md §8's loop-limit scenario: with
// max_loops=3 and a Planner that always wants more tools, the controller
// runs exactly 3 Planner/Runner/Responder iterations and then issues one
// extra limit-reached Responder call.
func TestLoopLimitReached(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}

	alwaysWantsTools := jsonResp(`{"need_tools": true, "tool_calls": [{"tool_name": "read_file", "args": {"path": "a.txt"}}], "reason_brief": "still working", "stop_condition": ""}`)
	neverFinal := jsonResp(`Still working on it.`)

	c, err := constraints.New(root, nil, 5, 1000)
	if err != nil {
		t.Fatalf("constraints.New: %v", err)
	}
	client := &scriptedClient{responses: []*llm.Response{
		alwaysWantsTools, neverFinal,
		alwaysWantsTools, neverFinal,
		alwaysWantsTools, neverFinal,
		jsonResp(`Here is a summary of what was achieved and what remains.`),
	}}
	p := planner.New(client, "test-model", false, nil)
	r := toolrunner.New(c, nil)
	resp := responder.New(client, "test-model", nil)
	mem, err := memory.Load(filepath.Join(t.TempDir(), "memory.json"))
	if err != nil {
		t.Fatalf("memory.Load: %v", err)
	}
	ctrl := New(p, r, resp, mem, nil, 3, 0.001)

	st := state.New(3)
	result, err := ctrl.Run(context.Background(), "keep reading a.txt", st)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Stopped != "limit_reached" {
		t.Fatalf("expected limit_reached, got %q", result.Stopped)
	}
	if len(st.History) != 3 {
		t.Fatalf("expected exactly 3 loops recorded, got %d", len(st.History))
	}
	if client.i != 7 {
		t.Fatalf("expected 3*(planner+responder)+1 extra = 7 LLM calls, got %d", client.i)
	}
	if !strings.Contains(result.Response, "summary") {
		t.Fatalf("expected the limit-reached synthesis response, got %q", result.Response)
	}
}

// TestLoopDetection exercises the Planner's 3x-identical-repeat check
// surfacing as an immediate controller stop, without waiting out max_loops.
func TestLoopDetection(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("same content"), 0o644); err != nil {
		t.Fatal(err)
	}

	repeat := jsonResp(`{"need_tools": true, "tool_calls": [{"tool_name": "read_file", "args": {"path": "a.txt"}}], "reason_brief": "reading again", "stop_condition": ""}`)
	ack := jsonResp(`Read it again.`)

	ctrl := newController(t, root, nil, []*llm.Response{
		repeat, ack,
		repeat, ack,
		repeat, ack,
		repeat, jsonResp(`Stopping, this looks like a loop.`),
	})

	st := state.New(5)
	result, err := ctrl.Run(context.Background(), "read a.txt repeatedly", st)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Stopped != "loop_detected" {
		t.Fatalf("expected loop_detected, got %q", result.Stopped)
	}
	if len(st.History) != 4 {
		t.Fatalf("expected 4 loops (3 identical reads + 1 detecting loop), got %d", len(st.History))
	}
}
