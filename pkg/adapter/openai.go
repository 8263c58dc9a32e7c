package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"

	"github.com/zen-systems/geogate/pkg/schema"
)

// OpenAI grounding tool variants, in preference order. The backend exposes
// both identifiers for the same capability; which one a model accepts
// depends on entitlement.
const (
	OpenAIToolWebSearch        = "web_search"
	OpenAIToolWebSearchPreview = "web_search_preview"
)

// OpenAIAdapter implements the chat-style backend over the Responses API.
type OpenAIAdapter struct {
	client openai.Client
}

// NewOpenAIAdapter creates an OpenAI adapter.
func NewOpenAIAdapter(apiKey string) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}
	return &OpenAIAdapter{client: openai.NewClient(option.WithAPIKey(apiKey))}, nil
}

// Name returns the adapter identifier.
func (a *OpenAIAdapter) Name() string {
	return "openai"
}

// ToolVariants returns the grounding tool identifiers in preference order.
func (a *OpenAIAdapter) ToolVariants() []string {
	return []string{OpenAIToolWebSearch, OpenAIToolWebSearchPreview}
}

// Complete sends one request and normalizes the response. Anchored
// citations come from url_citation annotations; web_search_call output
// items count as tool invocations.
func (a *OpenAIAdapter) Complete(ctx context.Context, spec CallSpec) (*Result, error) {
	items := make(responses.ResponseInputParam, 0, len(spec.Messages))
	for _, m := range spec.Messages {
		items = append(items, responses.ResponseInputItemUnionParam{
			OfMessage: &responses.EasyInputMessageParam{
				Role: responses.EasyInputMessageRole(m.Role),
				Content: responses.EasyInputMessageContentUnionParam{
					OfString: openai.String(m.Content),
				},
			},
		})
	}

	maxTokens := spec.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	params := responses.ResponseNewParams{
		Model:           shared.ResponsesModel(spec.Model),
		Input:           responses.ResponseNewParamsInputUnion{OfInputItemList: items},
		MaxOutputTokens: openai.Int(int64(maxTokens)),
	}
	if spec.Mode != schema.GroundingNone {
		variant := spec.ToolVariant
		if variant == "" {
			variant = OpenAIToolWebSearch
		}
		params.Tools = []responses.ToolUnionParam{{
			OfWebSearchPreview: &responses.WebSearchToolParam{
				Type: responses.WebSearchToolType(variant),
			},
		}}
	}
	if spec.StrictJSON {
		params.Text = responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
			},
		}
	}

	var opts []option.RequestOption
	if spec.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(spec.HTTPClient))
	}

	resp, err := a.client.Responses.New(ctx, params, opts...)
	if err != nil {
		return nil, wrapOpenAIError(err)
	}

	result := &Result{
		Usage: Usage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
		FinishReason: string(resp.Status),
	}

	var ev ChatEvidence
	for _, item := range resp.Output {
		switch item.Type {
		case "web_search_call":
			result.ToolCalls++
		case "message":
			for _, part := range item.Content {
				if part.Type != "output_text" {
					continue
				}
				base := len(result.Content)
				result.Content += part.Text
				for _, ann := range part.Annotations {
					if ann.Type != "url_citation" {
						continue
					}
					ev.Annotations = append(ev.Annotations, ChatAnnotation{
						URL:        ann.URL,
						Title:      ann.Title,
						StartIndex: base + int(ann.StartIndex),
						EndIndex:   base + int(ann.EndIndex),
					})
				}
			}
		}
	}
	if spec.Mode != schema.GroundingNone {
		result.Evidence = ev
	}
	return result, nil
}

func wrapOpenAIError(err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return &AdapterError{Err: fmt.Errorf("openai API error: %w", err)}
	}

	wrapped := &AdapterError{
		Status: apiErr.StatusCode,
		Err:    fmt.Errorf("openai API error: %w", err),
	}
	if looksLikeToolUnsupported(apiErr.StatusCode, apiErr.Error()) {
		wrapped.ToolUnsupported = true
	}
	if apiErr.StatusCode == 429 && apiErr.Response != nil {
		if hint := apiErr.Response.Header.Get("Retry-After"); hint != "" {
			if d, parseErr := time.ParseDuration(hint + "s"); parseErr == nil {
				wrapped.RetryAfter = d
			}
		}
	}
	return wrapped
}
