package llm

import (
	"context"
	"fmt"
	"io"
)

// CheckReady verifies the provider is reachable and reports whether model is
// among the served models. An unlisted model is reported, not an error.
func CheckReady(ctx context.Context, l ModelLister, model string, w io.Writer) error {
	models, err := l.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("language model provider is not reachable: %w", err)
	}
	for _, m := range models {
		if m == model {
			fmt.Fprintf(w, "model %s: ready\n", model)
			return nil
		}
	}
	fmt.Fprintf(w, "model %s: not listed by provider (%d models available)\n", model, len(models))
	return nil
}
