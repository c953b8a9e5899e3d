package ai

import (
	"context"
	"time"
)

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains embeddings in the same order as the input texts.
	// Returns an error if any embedding generation fails.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Role identifies the author of a message in a conversation history.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of conversation history.
type Message struct {
	Role    Role
	Content string
}

// GenerateRequest is a single completion request.
type GenerateRequest struct {
	// System is an optional system prompt sent before the history.
	System string
	// History is prior conversation, oldest first.
	History []Message
	// Prompt is the user message to answer.
	Prompt string
	// Temperature overrides the configured sampling temperature when >= 0.
	Temperature float64
	// MaxTokens caps the completion length; 0 uses the provider default.
	MaxTokens int
	// JSON asks the model to answer with a single JSON object.
	JSON bool
}

// Generation is the result of a completion request.
type Generation struct {
	Content    string
	TokensUsed int
	Elapsed    time.Duration
}

// LanguageModel generates text completions.
// Implementations must be thread-safe for concurrent use.
type LanguageModel interface {
	// Generate answers req. Failures are returned as errors; callers decide
	// whether they are fatal.
	Generate(ctx context.Context, req GenerateRequest) (*Generation, error)
}

// AIProvider aggregates AI services for convenient initialization and lifecycle management.
type AIProvider interface {
	// Embedder returns the text embedding service.
	Embedder() Embedder

	// LanguageModel returns the text generation service.
	LanguageModel() LanguageModel

	// Close releases resources held by the provider and its services.
	// After Close is called, the provider and its services should not be used.
	Close() error
}
