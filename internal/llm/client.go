package llm

import (
	"context"
	"errors"
)

// ErrEmptyResponse is returned when the provider answered without any text.
var ErrEmptyResponse = errors.New("llm returned empty response")

type Message struct {
	Role    string
	Content string
}

type Response struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

type Client interface {
	Generate(ctx context.Context, messages []Message) (Response, error)
}
