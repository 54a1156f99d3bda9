// Package llm wraps the external LLM boundary behind a small Generator
// interface. Model and temperature are configuration-level; callers pass
// only the prompt.
package llm

import "context"

// Generator produces text completions. Implementations must be safe for
// concurrent use.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
