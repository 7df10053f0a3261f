package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai/jsonschema"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *OpenAIProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	p, err := NewOpenAI(Config{
		BaseURL:   srv.URL + "/v1",
		APIKey:    "sk-test",
		Model:     "gpt-4.1-mini",
		MaxTokens: 256,
		Timeout:   5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewOpenAI: %v", err)
	}
	return p
}

func TestNewOpenAI_Validation(t *testing.T) {
	if _, err := NewOpenAI(Config{Model: "m"}); err == nil {
		t.Error("expected error without API key")
	}
	if _, err := NewOpenAI(Config{APIKey: "k"}); err == nil {
		t.Error("expected error without model")
	}
}

func TestChat_ToolCallsRoundTrip(t *testing.T) {
	var captured map[string]any
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		json.NewDecoder(r.Body).Decode(&captured)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"choices": [{
				"index": 0,
				"finish_reason": "tool_calls",
				"message": {
					"role": "assistant",
					"content": "",
					"tool_calls": [{
						"id": "call_1",
						"type": "function",
						"function": {"name": "product_search", "arguments": "{\"search_term\":\"leche\"}"}
					}]
				}
			}]
		}`))
	})

	msg, err := p.Chat(context.Background(), ChatRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: "sys"},
			{Role: RoleUser, Content: "¿Tienen leche?"},
		},
		Tools: []ToolDefinition{{
			Name:        "product_search",
			Description: "search",
			Parameters: jsonschema.Definition{
				Type:       jsonschema.Object,
				Properties: map[string]jsonschema.Definition{"search_term": {Type: jsonschema.String}},
				Required:   []string{"search_term"},
			},
		}},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if len(msg.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(msg.ToolCalls))
	}
	tc := msg.ToolCalls[0]
	if tc.ID != "call_1" || tc.Name != "product_search" || !strings.Contains(tc.Arguments, "leche") {
		t.Errorf("unexpected tool call: %+v", tc)
	}

	if captured["model"] != "gpt-4.1-mini" {
		t.Errorf("model = %v", captured["model"])
	}
	tools, _ := captured["tools"].([]any)
	if len(tools) != 1 {
		t.Errorf("expected 1 tool in request, got %v", captured["tools"])
	}
	msgs, _ := captured["messages"].([]any)
	if len(msgs) != 2 {
		t.Errorf("expected 2 messages in request, got %d", len(msgs))
	}
}

func TestChat_SendsToolResults(t *testing.T) {
	var body []byte
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		buf := new(bytes.Buffer)
		buf.ReadFrom(r.Body)
		body = buf.Bytes()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"Sí, hay 12 unidades."}}]}`))
	})

	msg, err := p.Chat(context.Background(), ChatRequest{Messages: []Message{
		{Role: RoleUser, Content: "q"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "call_9", Name: "product_search", Arguments: `{}`}}},
		{Role: RoleTool, Content: "Found 1 products", ToolCallID: "call_9"},
	}})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if msg.Content != "Sí, hay 12 unidades." {
		t.Errorf("Content = %q", msg.Content)
	}
	if !bytes.Contains(body, []byte(`"tool_call_id":"call_9"`)) {
		t.Errorf("tool_call_id missing from request: %s", body)
	}
	if bytes.Contains(body, []byte(`"tools"`)) {
		t.Errorf("no tools expected in request: %s", body)
	}
}

func TestChat_EmptyChoices(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[]}`))
	})
	_, err := p.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: RoleUser, Content: "q"}}})
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestChat_UpstreamError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"invalid key","type":"invalid_request_error"}}`))
	})
	_, err := p.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: RoleUser, Content: "q"}}})
	if err == nil {
		t.Fatal("expected error for 401")
	}
}

func TestChat_ContextDeadline(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := p.Chat(ctx, ChatRequest{Messages: []Message{{Role: RoleUser, Content: "q"}}}); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestListModelsAndCheckReady(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"object":"list","data":[{"id":"gpt-4.1-mini","object":"model"},{"id":"gpt-4o","object":"model"}]}`))
	})

	names, err := p.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(names) != 2 || names[0] != "gpt-4.1-mini" {
		t.Errorf("ListModels = %v", names)
	}

	var out bytes.Buffer
	if err := CheckReady(context.Background(), p, "gpt-4.1-mini", &out); err != nil {
		t.Fatalf("CheckReady: %v", err)
	}
	if !strings.Contains(out.String(), "model gpt-4.1-mini: ready") {
		t.Errorf("output = %q", out.String())
	}

	out.Reset()
	if err := CheckReady(context.Background(), p, "llama3", &out); err != nil {
		t.Fatalf("CheckReady: %v", err)
	}
	if !strings.Contains(out.String(), "not listed") {
		t.Errorf("output = %q", out.String())
	}
}

type failingLister struct{}

func (failingLister) ListModels(context.Context) ([]string, error) {
	return nil, errors.New("connection refused")
}

func TestCheckReady_Unreachable(t *testing.T) {
	var out bytes.Buffer
	if err := CheckReady(context.Background(), failingLister{}, "m", &out); err == nil {
		t.Fatal("expected error for unreachable provider")
	}
}
