package adapter

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/zen-systems/geogate/pkg/schema"
)

// AnthropicToolWebSearch is the single web-search server-tool identifier
// Claude models expose.
const AnthropicToolWebSearch = "web_search_20250305"

// AnthropicAdapter implements a second chat-style backend for Claude
// models. Anchored citations come from text-block citation entries;
// server_tool_use blocks count as tool invocations.
type AnthropicAdapter struct {
	client anthropic.Client
}

// NewAnthropicAdapter creates an Anthropic adapter.
func NewAnthropicAdapter(apiKey string) (*AnthropicAdapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	return &AnthropicAdapter{client: anthropic.NewClient(option.WithAPIKey(apiKey))}, nil
}

// Name returns the adapter identifier.
func (a *AnthropicAdapter) Name() string {
	return "anthropic"
}

// ToolVariants returns the grounding tool identifiers.
func (a *AnthropicAdapter) ToolVariants() []string {
	return []string{AnthropicToolWebSearch}
}

// Complete sends one request and normalizes the response.
func (a *AnthropicAdapter) Complete(ctx context.Context, spec CallSpec) (*Result, error) {
	maxTokens := spec.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(spec.Model),
		MaxTokens: int64(maxTokens),
	}
	for _, m := range spec.Messages {
		switch m.Role {
		case schema.RoleSystem:
			params.System = append(params.System, anthropic.TextBlockParam{Text: m.Content})
		case schema.RoleAssistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	if spec.Mode != schema.GroundingNone {
		params.Tools = []anthropic.ToolUnionParam{{
			OfWebSearchTool20250305: &anthropic.WebSearchTool20250305Param{
				MaxUses: anthropic.Int(5),
			},
		}}
	}

	var opts []option.RequestOption
	if spec.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(spec.HTTPClient))
	}

	resp, err := a.client.Messages.New(ctx, params, opts...)
	if err != nil {
		return nil, wrapAnthropicError(err)
	}
	return anthropicResult(resp, spec), nil
}

// anthropicResult normalizes a Messages API response into the common
// result shape: text blocks concatenate into Content, server_tool_use
// blocks count as tool calls, and web-search result blocks become
// unanchored sources.
func anthropicResult(resp *anthropic.Message, spec CallSpec) *Result {
	result := &Result{
		Usage: Usage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
		},
		FinishReason: string(resp.StopReason),
	}

	var ev ChatEvidence
	for _, block := range resp.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			base := len(result.Content)
			result.Content += variant.Text
			for _, citation := range variant.Citations {
				if loc, ok := citation.AsAny().(anthropic.CitationsWebSearchResultLocation); ok {
					ev.Annotations = append(ev.Annotations, ChatAnnotation{
						URL:        loc.URL,
						Title:      loc.Title,
						StartIndex: base,
						EndIndex:   base + len(variant.Text),
					})
				}
			}
		case anthropic.ServerToolUseBlock:
			result.ToolCalls++
		case anthropic.WebSearchToolResultBlock:
			for _, item := range variant.Content.AsWebSearchResultBlockArray() {
				ev.Sources = append(ev.Sources, ChatSource{URL: item.URL, Title: item.Title})
			}
		}
	}
	if spec.Mode != schema.GroundingNone {
		result.Evidence = ev
	}
	return result
}

func wrapAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return &AdapterError{Err: fmt.Errorf("anthropic API error: %w", err)}
	}
	wrapped := &AdapterError{
		Status: apiErr.StatusCode,
		Err:    fmt.Errorf("anthropic API error: %w", err),
	}
	if looksLikeToolUnsupported(apiErr.StatusCode, apiErr.Error()) {
		wrapped.ToolUnsupported = true
	}
	return wrapped
}
