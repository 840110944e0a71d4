package core

import (
	"context"
	"errors"
)

const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message is one role-tagged entry of a completion request.
type Message struct {
	Role    string
	Content string
}

// Completion failures. Implementations wrap the cause with one of these via %w.
var (
	ErrServiceUnavailable = errors.New("completion service not configured")
	ErrUpstream           = errors.New("completion upstream error")
	ErrTimeout            = errors.New("completion timed out")
)

// CompletionClient sends an ordered message list to a hosted chat-completion API.
// Implementations are stateless per call, never retry, and are safe for concurrent use.
type CompletionClient interface {
	Complete(ctx context.Context, model string, messages []Message) (string, error)
}
