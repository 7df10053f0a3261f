package tools

import (
	"context"
	"encoding/json"

	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/kalambet/stockwise/internal/storage"
)

// Result is the outcome of one tool invocation. Text is what the language
// model sees; Products carries the structured rows behind it, if any.
type Result struct {
	Text     string
	Products []storage.Product
}

// Tool is a capability the language model may call by name.
// Invoke reports domain failures through Result.Text; the error return is
// reserved for context cancellation.
type Tool interface {
	Name() string
	Description() string
	Parameters() jsonschema.Definition
	Invoke(ctx context.Context, args json.RawMessage) (Result, error)
}

// decodeArgs unmarshals raw JSON arguments into v. Empty input decodes as {}.
func decodeArgs(args json.RawMessage, v any) error {
	if len(args) == 0 {
		return nil
	}
	return json.Unmarshal(args, v)
}
