package llm

import (
	"context"
	"errors"

	"github.com/sashabaranov/go-openai/jsonschema"
)

// Conversation roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ErrEmptyResponse is returned when the provider answers with no choices.
var ErrEmptyResponse = errors.New("empty response from language model")

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // raw JSON
}

// Message is one conversation turn.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string // set on RoleTool messages
}

// ToolDefinition advertises a callable tool to the model.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  jsonschema.Definition
}

// ChatRequest is a single completion request.
type ChatRequest struct {
	Messages []Message
	Tools    []ToolDefinition
}

// Provider abstracts a chat completion backend with tool calling.
type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (Message, error)
}

// ModelLister is implemented by providers that can enumerate served models.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}
