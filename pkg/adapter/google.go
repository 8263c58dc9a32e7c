package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"google.golang.org/genai"

	"github.com/zen-systems/geogate/pkg/schema"
)

// Google grounding tool variants. GoogleSearch is the current identifier;
// GoogleSearchRetrieval is the near-equivalent accepted by older model
// generations.
const (
	GoogleToolSearch          = "google_search"
	GoogleToolSearchRetrieval = "google_search_retrieval"
)

// GoogleAdapter implements the search-grounded backend over the Gemini API.
type GoogleAdapter struct {
	apiKey string

	mu      sync.Mutex
	direct  *genai.Client
	proxied map[*http.Client]*genai.Client
}

// NewGoogleAdapter creates a Google Gemini adapter.
func NewGoogleAdapter(apiKey string) (*GoogleAdapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("google API key is required")
	}
	return &GoogleAdapter{
		apiKey:  apiKey,
		proxied: make(map[*http.Client]*genai.Client),
	}, nil
}

// Name returns the adapter identifier.
func (a *GoogleAdapter) Name() string {
	return "google"
}

// ToolVariants returns the grounding tool identifiers in preference order.
func (a *GoogleAdapter) ToolVariants() []string {
	return []string{GoogleToolSearch, GoogleToolSearchRetrieval}
}

// Complete sends one request and normalizes the response. Evidence comes
// from grounding metadata: chunks are the retrieved sources, supports map
// response spans onto chunk indices. Executed search queries count as tool
// invocations.
func (a *GoogleAdapter) Complete(ctx context.Context, spec CallSpec) (*Result, error) {
	client, err := a.clientFor(ctx, spec.HTTPClient)
	if err != nil {
		return nil, &AdapterError{Err: fmt.Errorf("google client: %w", err)}
	}

	cfg := &genai.GenerateContentConfig{}
	if spec.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = int32(spec.MaxOutputTokens)
	}

	var contents []*genai.Content
	for _, m := range spec.Messages {
		switch m.Role {
		case schema.RoleSystem:
			cfg.SystemInstruction = genai.NewContentFromText(m.Content, genai.RoleUser)
		case schema.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	if spec.Mode != schema.GroundingNone {
		variant := spec.ToolVariant
		if variant == "" {
			variant = GoogleToolSearch
		}
		switch variant {
		case GoogleToolSearchRetrieval:
			cfg.Tools = []*genai.Tool{{GoogleSearchRetrieval: &genai.GoogleSearchRetrieval{}}}
		default:
			cfg.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
		}
	} else if spec.StrictJSON {
		// Grounding tools and schema-constrained output are mutually
		// exclusive within a single call; StrictJSON only reaches the
		// backend on tool-free (phase 2) calls.
		cfg.ResponseMIMEType = "application/json"
	}

	resp, err := client.Models.GenerateContent(ctx, spec.Model, contents, cfg)
	if err != nil {
		return nil, wrapGoogleError(err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, &AdapterError{Err: fmt.Errorf("google returned no candidates")}
	}

	cand := resp.Candidates[0]
	result := &Result{FinishReason: string(cand.FinishReason)}
	if resp.UsageMetadata != nil {
		result.Usage = Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	if cand.Content != nil {
		for _, part := range cand.Content.Parts {
			if part.Text != "" {
				result.Content += part.Text
			}
		}
	}

	if spec.Mode != schema.GroundingNone {
		var ev SearchEvidence
		if gm := cand.GroundingMetadata; gm != nil {
			ev.Queries = append(ev.Queries, gm.WebSearchQueries...)
			result.ToolCalls = len(gm.WebSearchQueries)
			for _, chunk := range gm.GroundingChunks {
				if chunk.Web == nil {
					continue
				}
				ev.Chunks = append(ev.Chunks, SearchChunk{
					URI:    chunk.Web.URI,
					Title:  chunk.Web.Title,
					Domain: chunk.Web.Domain,
				})
			}
			for _, support := range gm.GroundingSupports {
				s := SearchSupport{}
				for _, idx := range support.GroundingChunkIndices {
					s.ChunkIndices = append(s.ChunkIndices, int(idx))
				}
				if support.Segment != nil {
					s.Text = support.Segment.Text
					s.StartIndex = int(support.Segment.StartIndex)
					s.EndIndex = int(support.Segment.EndIndex)
				}
				ev.Supports = append(ev.Supports, s)
			}
		}
		result.Evidence = ev
	}
	return result, nil
}

// clientFor returns a genai client bound to the given egress. Clients are
// cached per transport; construction is local and performs no network I/O.
func (a *GoogleAdapter) clientFor(ctx context.Context, httpClient *http.Client) (*genai.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if httpClient == nil {
		if a.direct == nil {
			client, err := genai.NewClient(ctx, &genai.ClientConfig{
				APIKey:  a.apiKey,
				Backend: genai.BackendGeminiAPI,
			})
			if err != nil {
				return nil, err
			}
			a.direct = client
		}
		return a.direct, nil
	}

	if client, ok := a.proxied[httpClient]; ok {
		return client, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     a.apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, err
	}
	a.proxied[httpClient] = client
	return client, nil
}

func wrapGoogleError(err error) error {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return &AdapterError{Err: fmt.Errorf("google API error: %w", err)}
	}
	wrapped := &AdapterError{
		Status: apiErr.Code,
		Err:    fmt.Errorf("google API error: %w", err),
	}
	if looksLikeToolUnsupported(apiErr.Code, apiErr.Message) {
		wrapped.ToolUnsupported = true
	}
	return wrapped
}
