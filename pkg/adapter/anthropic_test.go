package adapter

import (
	"encoding/json"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/zen-systems/geogate/pkg/schema"
)

const anthropicWebSearchResponse = `{
	"id": "msg_01",
	"type": "message",
	"role": "assistant",
	"model": "claude-sonnet-4-20250514",
	"stop_reason": "end_turn",
	"usage": {"input_tokens": 120, "output_tokens": 80},
	"content": [
		{
			"type": "server_tool_use",
			"id": "srvtoolu_01",
			"name": "web_search",
			"input": {"query": "vitamin d intake"}
		},
		{
			"type": "web_search_tool_result",
			"tool_use_id": "srvtoolu_01",
			"content": [
				{
					"type": "web_search_result",
					"url": "https://www.nih.gov/vitamin-d",
					"title": "Vitamin D Fact Sheet",
					"encrypted_content": "opaque",
					"page_age": null
				},
				{
					"type": "web_search_result",
					"url": "https://www.who.int/nutrition",
					"title": "Nutrition Guidance",
					"encrypted_content": "opaque",
					"page_age": null
				}
			]
		},
		{
			"type": "text",
			"text": "Adults need roughly 600 IU daily.",
			"citations": [
				{
					"type": "web_search_result_location",
					"url": "https://www.nih.gov/vitamin-d",
					"title": "Vitamin D Fact Sheet",
					"cited_text": "600 IU",
					"encrypted_index": "opaque"
				}
			]
		}
	]
}`

func TestAnthropicResultExtractsWebSearchEvidence(t *testing.T) {
	var msg anthropic.Message
	if err := json.Unmarshal([]byte(anthropicWebSearchResponse), &msg); err != nil {
		t.Fatalf("unmarshal message: %v", err)
	}

	res := anthropicResult(&msg, CallSpec{Mode: schema.GroundingRequired})
	if res.Content != "Adults need roughly 600 IU daily." {
		t.Fatalf("unexpected content: %q", res.Content)
	}
	if res.ToolCalls != 1 {
		t.Fatalf("ToolCalls = %d, want 1", res.ToolCalls)
	}
	if res.Usage.Total() != 200 {
		t.Fatalf("usage total = %d, want 200", res.Usage.Total())
	}

	ev, ok := res.Evidence.(ChatEvidence)
	if !ok {
		t.Fatalf("evidence type = %T, want ChatEvidence", res.Evidence)
	}
	if len(ev.Sources) != 2 {
		t.Fatalf("sources = %d, want 2", len(ev.Sources))
	}
	if ev.Sources[0].URL != "https://www.nih.gov/vitamin-d" || ev.Sources[0].Title != "Vitamin D Fact Sheet" {
		t.Fatalf("unexpected first source: %+v", ev.Sources[0])
	}
	if len(ev.Annotations) != 1 {
		t.Fatalf("annotations = %d, want 1", len(ev.Annotations))
	}
	if ev.Annotations[0].URL != "https://www.nih.gov/vitamin-d" {
		t.Fatalf("unexpected annotation URL: %q", ev.Annotations[0].URL)
	}
}

func TestAnthropicResultUngroundedDropsEvidence(t *testing.T) {
	var msg anthropic.Message
	if err := json.Unmarshal([]byte(anthropicWebSearchResponse), &msg); err != nil {
		t.Fatalf("unmarshal message: %v", err)
	}
	res := anthropicResult(&msg, CallSpec{Mode: schema.GroundingNone})
	if res.Evidence != nil {
		t.Fatalf("ungrounded calls must not carry evidence, got %+v", res.Evidence)
	}
}
