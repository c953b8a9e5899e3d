// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package openai

import (
	"context"
	"log/slog"
	"time"

	"github.com/poiesic/newsdesk/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// ChatModel implements ai.LanguageModel using OpenAI-compatible chat APIs.
type ChatModel struct {
	client      llms.Model
	temperature float64
	maxTokens   int
	logger      *slog.Logger
}

var _ ai.LanguageModel = (*ChatModel)(nil)

// newChatModel is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newChatModel(config *ai.Config) (*ChatModel, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.ChatHost),
		openai.WithToken(config.Token),
		openai.WithModel(config.ChatModel),
	)
	if err != nil {
		return nil, err
	}

	return &ChatModel{
		client:      client,
		temperature: config.Temperature,
		maxTokens:   config.MaxTokens,
		logger:      slog.Default().With("component", "openai-chat"),
	}, nil
}

// NewChatModel creates a new language model using the provided configuration.
//
// Returns ai.LanguageModel interface to enforce abstraction.
func NewChatModel(config *ai.Config) (ai.LanguageModel, error) {
	return newChatModel(config)
}

// Generate sends the system prompt, history and prompt as one chat request.
func (m *ChatModel) Generate(ctx context.Context, req ai.GenerateRequest) (*ai.Generation, error) {
	content := make([]llms.MessageContent, 0, len(req.History)+2)
	if req.System != "" {
		content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}
	for _, msg := range req.History {
		content = append(content, llms.TextParts(messageType(msg.Role), msg.Content))
	}
	content = append(content, llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt))

	temperature := m.temperature
	if req.Temperature >= 0 {
		temperature = req.Temperature
	}
	maxTokens := m.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}

	opts := []llms.CallOption{llms.WithTemperature(temperature)}
	if maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(maxTokens))
	}
	if req.JSON {
		opts = append(opts, llms.WithJSONMode())
	}

	start := time.Now()
	response, err := m.client.GenerateContent(ctx, content, opts...)
	if err != nil {
		m.logger.Error("failed to generate content", "err", err)
		return nil, err
	}
	elapsed := time.Since(start)

	if len(response.Choices) < 1 {
		m.logger.Debug("no choices returned from model")
		return nil, ai.ErrEmptyResponse
	}

	choice := response.Choices[0]
	gen := &ai.Generation{
		Content:    choice.Content,
		TokensUsed: tokensUsed(choice.GenerationInfo),
		Elapsed:    elapsed,
	}
	m.logger.Debug("generated content",
		"history", len(req.History),
		"tokens", gen.TokensUsed,
		"elapsed", elapsed)
	return gen, nil
}

func messageType(role ai.Role) llms.ChatMessageType {
	switch role {
	case ai.RoleSystem:
		return llms.ChatMessageTypeSystem
	case ai.RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}

// tokensUsed reads the token count the OpenAI client reports in the
// generation info.
func tokensUsed(info map[string]any) int {
	for _, key := range []string{"TotalTokens", "CompletionTokens"} {
		if n, ok := info[key].(int); ok && n > 0 {
			return n
		}
	}
	return 0
}
