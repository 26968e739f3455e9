// Package capability defines the external collaborators the workflow engine
// depends on. The engine holds references to these interfaces passed in at
// construction; there is no ambient registry.
package capability

import "context"

// ToolCaller executes a named tool on a registered server and returns the
// tool's result. A tool-level failure is returned as an error carrying the
// tool's reported message; the engine is agnostic to the transport behind
// the call.
type ToolCaller interface {
	Call(ctx context.Context, serverID, toolName string, params map[string]any) (any, error)
}

// Message is one turn of a text-generation conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionOptions tunes a single completion request. Zero values mean
// provider defaults.
type CompletionOptions struct {
	Model     string
	MaxTokens int
}

// TokenUsage reports token accounting for a completion, when the provider
// supplies it.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Completion is the result of a text-generation call. Content is opaque
// text; callers decide whether to parse it further.
type Completion struct {
	Content string
	Usage   *TokenUsage
}

// TextGenerator produces a completion for a conversation.
type TextGenerator interface {
	Complete(ctx context.Context, messages []Message, opts CompletionOptions) (Completion, error)
}
