package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOpenAIClientCallNoTools(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if _, present := body["tools"]; present {
			t.Fatalf("expected tools key to be omitted when no tools given, got %v", body["tools"])
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "hello there"}},
			},
		})
	}))
	defer srv.Close()

	c := NewOpenAIClient(srv.URL, "dummy", "test-model")
	resp, err := c.Call(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if resp.Content != "hello there" {
		t.Fatalf("unexpected content: %q", resp.Content)
	}
}

func TestOpenAIClientCallWithToolCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		tools, _ := body["tools"].([]any)
		if len(tools) != 1 {
			t.Fatalf("expected 1 tool in request, got %d", len(tools))
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{
					"role": "assistant",
					"tool_calls": []map[string]any{
						{
							"id":   "call_1",
							"type": "function",
							"function": map[string]any{
								"name":      "read_file",
								"arguments": `{"path":"a.txt"}`,
							},
						},
					},
				}},
			},
		})
	}))
	defer srv.Close()

	c := NewOpenAIClient(srv.URL, "dummy", "test-model")
	resp, err := c.Call(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "read a.txt"}},
		Tools: []ToolSchema{
			{Name: "read_file", Description: "reads a file", Parameters: map[string]any{"type": "object"}},
		},
	})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "read_file" {
		t.Fatalf("unexpected tool calls: %+v", resp.ToolCalls)
	}
	if resp.ToolCalls[0].Args["path"] != "a.txt" {
		t.Fatalf("unexpected args: %+v", resp.ToolCalls[0].Args)
	}
}

func TestOpenAIClientNoAuthHeaderForOllama(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Fatalf("expected no Authorization header for ollama key, got %q", r.Header.Get("Authorization"))
		}
		json.NewEncoder(w).Encode(map[string]any{"choices": []map[string]any{}})
	}))
	defer srv.Close()

	c := NewOpenAIClient(srv.URL, "ollama", "llama3")
	if _, err := c.Call(context.Background(), Request{Messages: []Message{{Role: "user", Content: "hi"}}}); err != nil {
		t.Fatalf("Call: %v", err)
	}
}

func TestOpenAIClientTransportErrorCarriesStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("upstream exploded"))
	}))
	defer srv.Close()

	c := NewOpenAIClient(srv.URL, "dummy", "test-model")
	_, err := c.Call(context.Background(), Request{Messages: []Message{{Role: "user", Content: "hi"}}})
	if err == nil {
		t.Fatal("expected error")
	}
	te, ok := err.(*TransportError)
	if !ok {
		t.Fatalf("expected *TransportError, got %T: %v", err, err)
	}
	if te.StatusCode != 500 || !strings.Contains(te.BodyPrefix, "upstream exploded") {
		t.Fatalf("unexpected transport error: %+v", te)
	}
}

func TestRetryingClientRetriesOnceThenFatal(t *testing.T) {
	calls := 0
	failing := clientFunc(func(ctx context.Context, req Request) (*Response, error) {
		calls++
		return nil, &TransportError{StatusCode: 503, BodyPrefix: "down"}
	})

	rc := WithRetry(failing)
	_, err := rc.Call(context.Background(), Request{})
	if calls != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", calls)
	}
	var fatal *FatalError
	if !asFatal(err, &fatal) {
		t.Fatalf("expected *FatalError, got %T: %v", err, err)
	}
	if fatal.Attempts != 2 {
		t.Fatalf("expected Attempts=2, got %d", fatal.Attempts)
	}
}

func TestRetryingClientSucceedsAfterOneFailure(t *testing.T) {
	calls := 0
	flaky := clientFunc(func(ctx context.Context, req Request) (*Response, error) {
		calls++
		if calls == 1 {
			return nil, &TransportError{StatusCode: 503, BodyPrefix: "down"}
		}
		return &Response{Content: "ok"}, nil
	})

	rc := WithRetry(flaky)
	resp, err := rc.Call(context.Background(), Request{})
	if err != nil {
		t.Fatalf("expected success on retry, got %v", err)
	}
	if resp.Content != "ok" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

type clientFunc func(ctx context.Context, req Request) (*Response, error)

func (f clientFunc) Call(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

func asFatal(err error, target **FatalError) bool {
	fe, ok := err.(*FatalError)
	if !ok {
		return false
	}
	*target = fe
	return true
}
