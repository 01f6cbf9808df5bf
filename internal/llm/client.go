package llm

import "context"

type Message struct {
	Role string `json:"role"` // user, model
	Text string `json:"text"`
}

// Params are the generation knobs passed through to the provider.
type Params struct {
	Temperature     float64
	TopP            float64
	TopK            int
	MaxOutputTokens int
}

// DefaultParams mirrors the production values the bot has always run with.
func DefaultParams() Params {
	return Params{
		Temperature:     0.7,
		TopP:            0.95,
		TopK:            40,
		MaxOutputTokens: 2048,
	}
}

// Client is the single blocking call on the request path: history plus a
// system instruction in, free text out. Implementations must honor ctx.
type Client interface {
	Generate(ctx context.Context, systemInstruction string, history []Message, params Params) (string, error)
}

// TransportError marks network, timeout, and HTTP-level failures so callers
// can pick the "connection problem" apology over the generic one.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "llm transport: " + e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }
