package memory

import (
	"path/filepath"
	"strconv"
	"testing"
)

func TestLoadMissingFileYieldsEmptyMemory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.json")
	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ctx := m.ToContext(2000); ctx != "(No memory yet)" {
		t.Fatalf("expected empty memory, got %q", ctx)
	}
}

func TestAppendFactRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.json")
	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := m.AppendFact(CategoryUserPreferences, "language", "en"); err != nil {
		t.Fatalf("AppendFact: %v", err)
	}
	if err := m.AppendFact(CategoryFacts, "file_structure", "src/, tests/"); err != nil {
		t.Fatalf("AppendFact: %v", err)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}

	v, ok := reloaded.Get(CategoryUserPreferences, "language")
	if !ok || v != "en" {
		t.Fatalf("expected preference to round-trip, got %v (ok=%v)", v, ok)
	}
	v, ok = reloaded.Get(CategoryFacts, "file_structure")
	if !ok || v != "src/, tests/" {
		t.Fatalf("expected fact to round-trip, got %v (ok=%v)", v, ok)
	}
}

func TestToContextTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.json")
	m, _ := Load(path)
	for i := 0; i < 200; i++ {
		m.Data[CategoryFacts]["fact"+strconv.Itoa(i)] = "a moderately long fact string to pad things out"
	}
	ctx := m.ToContext(100)
	if len(ctx) > 100+len("\n... (truncated)") {
		t.Fatalf("context not truncated: len=%d", len(ctx))
	}
}
