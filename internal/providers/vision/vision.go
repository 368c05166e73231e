package vision

import "context"

// Request is one inference call against a vision-capable model. The provider
// is treated as untrusted: possibly slow, possibly failing, possibly
// answering nonsense — callers own timeouts and response validation.
type Request struct {
	Prompt      string
	Image       []byte
	MIMEType    string
	Model       string
	Temperature float64
	MaxTokens   int
}

type Provider interface {
	// Generate sends one prompt+image and returns the model's text answer.
	Generate(ctx context.Context, req Request) (string, error)
	Close() error
}
