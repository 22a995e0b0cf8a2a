package audit

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestAppendAndReadAllRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runlog.jsonl")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Close()

	exitCode := 0
	if err := l.LogToolCall(1, "read_file", map[string]any{"path": "hello.txt"}, true, "", &exitCode, 0.01, 3); err != nil {
		t.Fatalf("LogToolCall: %v", err)
	}
	if err := l.LogToolCall(1, "exec_cmd", map[string]any{"command": "rm x"}, false, "command not allowed", nil, 0.0, 0); err != nil {
		t.Fatalf("LogToolCall: %v", err)
	}

	entries, err := ReadAll(path)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].ToolName != "read_file" || !entries[0].Success {
		t.Fatalf("entry 0 mismatch: %+v", entries[0])
	}
	if entries[1].ToolName != "exec_cmd" || entries[1].Success {
		t.Fatalf("entry 1 mismatch: %+v", entries[1])
	}
}

func TestSummarizeAndExportYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runlog.jsonl")
	l, _ := Open(path)
	defer l.Close()

	l.LogToolCall(1, "read_file", nil, true, "", nil, 0.1, 10)
	l.LogToolCall(1, "read_file", nil, false, "not found", nil, 0.05, 0)
	l.LogToolCall(2, "exec_cmd", nil, true, "", nil, 1.2, 50)

	entries, _ := ReadAll(path)
	summary := Summarize(entries)
	if summary.TotalCalls != 3 || summary.Successful != 2 || summary.Failed != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.ByTool["read_file"].Calls != 2 {
		t.Fatalf("expected 2 read_file calls, got %+v", summary.ByTool["read_file"])
	}

	out, err := ExportYAML(entries)
	if err != nil {
		t.Fatalf("ExportYAML: %v", err)
	}
	if !strings.Contains(out, "total_calls: 3") {
		t.Fatalf("yaml output missing total_calls: %s", out)
	}
}

func TestReadAllMissingFile(t *testing.T) {
	entries, err := ReadAll(filepath.Join(t.TempDir(), "nope.jsonl"))
	if err != nil {
		t.Fatalf("ReadAll on missing file should not error: %v", err)
	}
	if entries != nil {
		t.Fatalf("expected nil entries, got %v", entries)
	}
}
