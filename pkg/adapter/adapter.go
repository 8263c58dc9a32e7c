package adapter

import (
	"context"
	"net/http"

	"github.com/zen-systems/geogate/pkg/schema"
)

// CallSpec is the uniform outbound request handed to a vendor adapter.
// Adapters must never rewrite the pinned model to a different concrete
// version; an unsupported model is a hard failure, not a substitution.
type CallSpec struct {
	Model    string
	Messages []schema.Message
	Mode     schema.GroundingMode
	// ToolVariant selects among near-equivalent tool identifiers the vendor
	// exposes for search grounding.
	ToolVariant     string
	MaxOutputTokens int
	// StrictJSON requests schema-constrained output. For the search-grounded
	// vendor it is mutually exclusive with tools within one call; the
	// orchestrator splits such requests into two phases.
	StrictJSON   bool
	OutputSchema map[string]any
	// HTTPClient overrides the adapter's egress for this call (proxied
	// vantage). Nil means the adapter's default transport.
	HTTPClient *http.Client
}

// Usage captures normalized token usage.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Total returns the total token count, deriving it when the vendor omits it.
func (u Usage) Total() int {
	if u.TotalTokens > 0 {
		return u.TotalTokens
	}
	return u.PromptTokens + u.CompletionTokens
}

// Evidence is the tagged union of per-vendor raw evidence shapes. Each tag
// has exactly one normalization path; consumers switch on the concrete type
// rather than probing fields.
type Evidence interface {
	Kind() string
}

// ChatAnnotation is an explicit text-span citation from a chat-style vendor.
type ChatAnnotation struct {
	URL        string
	Title      string
	StartIndex int
	EndIndex   int
}

// ChatSource is a search result surfaced by a chat-style vendor without a
// text-span anchor.
type ChatSource struct {
	URL   string
	Title string
}

// ChatEvidence is the chat-style vendor evidence shape: span-anchored
// annotations plus any unanchored tool-result sources.
type ChatEvidence struct {
	Annotations []ChatAnnotation
	Sources     []ChatSource
}

func (ChatEvidence) Kind() string { return "chat" }

// SearchChunk is one retrieved evidence chunk from the search-grounded
// vendor.
type SearchChunk struct {
	URI    string
	Title  string
	Domain string
}

// SearchSupport maps a response text span onto evidence chunks.
type SearchSupport struct {
	ChunkIndices []int
	Text         string
	StartIndex   int
	EndIndex     int
}

// SearchEvidence is the search-grounded vendor evidence shape: a flat chunk
// list with an optional supports cross-reference. Absent supports with
// present chunks means every extracted citation is unlinked.
type SearchEvidence struct {
	Chunks   []SearchChunk
	Supports []SearchSupport
	Queries  []string
}

func (SearchEvidence) Kind() string { return "search" }

// Result is the normalized adapter response.
type Result struct {
	Content      string
	Evidence     Evidence
	ToolCalls    int
	Usage        Usage
	FinishReason string
}

// Adapter is the uniform vendor surface the orchestrator dispatches to.
type Adapter interface {
	// Complete sends one request and returns the normalized result.
	Complete(ctx context.Context, spec CallSpec) (*Result, error)

	// Name returns the vendor identifier.
	Name() string

	// ToolVariants lists the vendor's grounding tool identifiers in
	// preference order.
	ToolVariants() []string
}
