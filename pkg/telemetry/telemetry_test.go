package telemetry

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/zen-systems/geogate/pkg/als"
	"github.com/zen-systems/geogate/pkg/citations"
)

func TestWriterAppendsJSONL(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	defer w.Close()

	ts := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		rec := &Record{
			RunID:     "run-" + string(rune('a'+i)),
			Timestamp: ts,
			Vendor:    "openai",
			Model:     "gpt-5",
			Success:   true,
			LatencyMS: int64(100 + i),
		}
		if err := w.Emit(rec); err != nil {
			t.Fatalf("Emit %d: %v", i, err)
		}
	}

	path := filepath.Join(dir, "runs-2025-03-10.jsonl")
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	var lines int
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec Record
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("line %d not valid JSON: %v", lines, err)
		}
		if rec.Vendor != "openai" {
			t.Fatalf("vendor = %q, want openai", rec.Vendor)
		}
		lines++
	}
	if lines != 3 {
		t.Fatalf("got %d lines, want 3", lines)
	}
}

func TestWriterRollsFilePerDay(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	defer w.Close()

	day1 := time.Date(2025, 3, 10, 23, 59, 0, 0, time.UTC)
	day2 := day1.Add(2 * time.Minute)
	if err := w.Emit(&Record{RunID: "r1", Timestamp: day1}); err != nil {
		t.Fatalf("Emit day1: %v", err)
	}
	if err := w.Emit(&Record{RunID: "r2", Timestamp: day2}); err != nil {
		t.Fatalf("Emit day2: %v", err)
	}

	for _, name := range []string{"runs-2025-03-10.jsonl", "runs-2025-03-11.jsonl"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("expected %s: %v", name, err)
		}
	}
}

func TestRecordSetALSOmitsRawText(t *testing.T) {
	rec := &Record{RunID: "r1"}
	rec.SetALS(als.Provenance{
		Country:   "DE",
		VariantID: "als.v1/DE/1",
		SeedKeyID: "k1",
		SHA256:    "abc123",
		Chars:     210,
	})
	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["als_block_sha256"] != "abc123" {
		t.Fatalf("als_block_sha256 = %v", out["als_block_sha256"])
	}
	if _, ok := out["als_block_text"]; ok {
		t.Fatal("raw ALS text must never appear in a record")
	}
}

func TestRecordSetCitationsCounts(t *testing.T) {
	rec := &Record{}
	rec.SetCitations([]citations.Citation{
		{URL: "https://a.example", SourceType: citations.SourceAnchored},
		{URL: "https://b.example", SourceType: citations.SourceUnlinked},
		{URL: "https://c.example", SourceType: citations.SourceUnlinked},
		{RawURL: "https://redirect.example/x", SourceType: citations.SourceRedirectOnly},
	}, citations.Score{Value: 67, Tier1Share: 0.25})
	if rec.AnchoredCitationsCount != 1 || rec.UnlinkedSourcesCount != 2 || rec.RedirectOnlyCount != 1 {
		t.Fatalf("counts = %d/%d/%d", rec.AnchoredCitationsCount, rec.UnlinkedSourcesCount, rec.RedirectOnlyCount)
	}
	if rec.AuthorityScore != 67 {
		t.Fatalf("authority score = %d, want 67", rec.AuthorityScore)
	}
}

type failEmitter struct{ err error }

func (f failEmitter) Emit(*Record) error { return f.err }

type countEmitter struct{ n int }

func (c *countEmitter) Emit(*Record) error { c.n++; return nil }

func TestMultiEmitterReachesAll(t *testing.T) {
	boom := errors.New("boom")
	counter := &countEmitter{}
	m := MultiEmitter{failEmitter{err: boom}, counter, NopEmitter{}}
	if err := m.Emit(&Record{RunID: "r1"}); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if counter.n != 1 {
		t.Fatalf("later emitter skipped after error, n = %d", counter.n)
	}
}

func TestMetricsEmitCountsOutcomes(t *testing.T) {
	m := NewMetrics()
	records := []*Record{
		{Vendor: "openai", Model: "gpt-5", Success: true, LatencyMS: 120, GroundingModeRequested: "REQUIRED", GroundedEffective: true},
		{Vendor: "openai", Model: "gpt-5", Success: false, ErrorClass: "CIRCUIT_OPEN", GroundingModeRequested: "NONE"},
		{Vendor: "google", Model: "gemini-2.5-pro", Success: true, RetryCount: 2, ProxyDowngraded: true, GroundingModeRequested: "AUTO"},
	}
	for i, rec := range records {
		if err := m.Emit(rec); err != nil {
			t.Fatalf("Emit %d: %v", i, err)
		}
	}
	// The handler must serve without panicking on the populated registry.
	if m.Handler() == nil {
		t.Fatal("nil metrics handler")
	}
}
