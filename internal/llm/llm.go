// Package llm holds what the model-serving backends share: retry handling,
// latency stats and the Backend interface the command wires up.
package llm

import "context"

// Backend is a model server that can both embed text and complete prompts.
type Backend interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	Complete(ctx context.Context, prompt string) (string, error)
	Model() string
	Metrics() *Metrics
	Close()
}
