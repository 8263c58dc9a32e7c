// Package als builds deterministic ambient-location blocks. A block biases
// locale-sensitive responses without explicit instruction; its construction
// must be reproducible from (country, seed key) alone so that audit records
// can omit the raw text.
package als

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/zen-systems/geogate/pkg/schema"
)

// MaxBlockChars is the hard NFC-character limit for a rendered block.
// Fixed by contract, not configurable: truncation would silently change the
// digest and defeat caching and audit.
const MaxBlockChars = 350

// templateID versions the template table; it participates in variant
// selection so table revisions reshuffle deterministically.
const templateID = "als.v1"

// referenceDate is a fixed, non-current instant used for rendering. Using
// wall-clock time would leak real-world recency into the block and break
// determinism.
var referenceDate = time.Date(2025, time.January, 15, 14, 5, 0, 0, time.UTC)

// Provenance records how a block was built. The raw text is deliberately
// absent: it is derivable from country+variant+seed, and retaining it is a
// location-signal leak.
type Provenance struct {
	Country   string `json:"als_country"`
	VariantID string `json:"als_variant_id"`
	SeedKeyID string `json:"seed_key_id"`
	SHA256    string `json:"als_block_sha256"`
	Chars     int    `json:"als_block_chars"`
}

// Block is a rendered ambient-context block plus its provenance.
type Block struct {
	Text       string
	Provenance Provenance
}

// Builder renders blocks from a template table.
type Builder struct {
	templates map[string][]Variant
}

// NewBuilder creates a builder over a custom template table (used in tests).
func NewBuilder(templates map[string][]Variant) *Builder {
	return &Builder{templates: templates}
}

// DefaultBuilder returns a builder over the built-in country templates.
func DefaultBuilder() *Builder {
	return &Builder{templates: defaultTemplates}
}

// Countries returns the country codes the builder can render.
func (b *Builder) Countries() []string {
	countries := make([]string, 0, len(b.templates))
	for c := range b.templates {
		countries = append(countries, c)
	}
	return countries
}

// Build renders the deterministic block for a country and seed key.
// Identical inputs always yield the identical variant, text, and digest.
func (b *Builder) Build(country, seedKeyID string) (*Block, error) {
	country = strings.ToUpper(strings.TrimSpace(country))
	variants, ok := b.templates[country]
	if !ok || len(variants) == 0 {
		return nil, &schema.GatewayError{
			Code: schema.ReasonInvalidRequest,
			Err:  fmt.Errorf("no ambient templates for country %q", country),
		}
	}

	variant := variants[selectVariant(seedKeyID, country, len(variants))]
	text := norm.NFC.String(render(variant, country))

	chars := len([]rune(text))
	if chars > MaxBlockChars {
		return nil, &schema.GatewayError{
			Code: schema.ReasonALSBlockTooLong,
			Err:  fmt.Errorf("rendered block is %d chars, limit %d (variant %s)", chars, MaxBlockChars, variant.ID),
		}
	}

	sum := sha256.Sum256([]byte(text))
	return &Block{
		Text: text,
		Provenance: Provenance{
			Country:   country,
			VariantID: variant.ID,
			SeedKeyID: seedKeyID,
			SHA256:    hex.EncodeToString(sum[:]),
			Chars:     chars,
		},
	}, nil
}

// selectVariant reduces a keyed hash of (seed key, template id, country) to
// a variant index. No wall clock, no RNG.
func selectVariant(seedKeyID, country string, count int) int {
	h := sha256.New()
	h.Write([]byte(seedKeyID))
	h.Write([]byte{0})
	h.Write([]byte(templateID))
	h.Write([]byte{0})
	h.Write([]byte(country))
	sum := h.Sum(nil)
	return int(binary.BigEndian.Uint64(sum[:8]) % uint64(count))
}

func render(v Variant, country string) string {
	date := referenceDate.Format(dateLayout(country))
	clock := referenceDate.Format("15:04")

	lines := make([]string, 0, len(v.Lines))
	for i, line := range v.Lines {
		switch i {
		case 0:
			lines = append(lines, fmt.Sprintf(line, date, clock, v.TZLabel, v.UTCShift))
		case 1:
			lines = append(lines, fmt.Sprintf(line, v.City))
		default:
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func dateLayout(country string) string {
	switch country {
	case "US":
		return "01/02/2006"
	case "DE", "CH":
		return "02.01.2006"
	default:
		return "02/01/2006"
	}
}
