package analysis

import "context"

// Client is a single-shot text completion endpoint.
type Client interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
