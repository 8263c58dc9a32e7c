// Package attest records proof artifacts for the two-phase
// ground-then-reshape protocol: Phase 1 generates grounded prose with tools
// enabled, Phase 2 reshapes it into structured output with tools disabled.
// The attestation ties Phase 2 back to Phase 1 by content hash and asserts
// that Phase 2 invoked no tools.
package attest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// SchemaTwoPhaseV1 identifies the attestation record format.
const SchemaTwoPhaseV1 = "geogate.two_phase.v1"

// TwoPhase is the attestation emitted when the two-phase protocol runs.
type TwoPhase struct {
	Schema             string `json:"schema"`
	Phase1SHA256       string `json:"phase1_sha256"`
	Phase2SHA256       string `json:"phase2_sha256"`
	Phase2ToolsInvoked bool   `json:"phase2_tools_invoked"`
}

// BuildTwoPhase creates the attestation for a completed protocol run.
// A Phase 2 that invoked tools violates the protocol and is rejected here
// rather than recorded as valid.
func BuildTwoPhase(phase1Content, phase2Content string, phase2ToolCalls int) (*TwoPhase, error) {
	if phase1Content == "" {
		return nil, fmt.Errorf("phase 1 content is required")
	}
	if phase2ToolCalls > 0 {
		return nil, fmt.Errorf("phase 2 invoked %d tool(s); reshape must run with tools disabled", phase2ToolCalls)
	}
	return &TwoPhase{
		Schema:             SchemaTwoPhaseV1,
		Phase1SHA256:       hashString(phase1Content),
		Phase2SHA256:       hashString(phase2Content),
		Phase2ToolsInvoked: false,
	}, nil
}

// Verify checks an attestation against the Phase 1 content it claims to
// derive from.
func (a *TwoPhase) Verify(phase1Content string) error {
	if a == nil {
		return fmt.Errorf("attestation is nil")
	}
	if a.Schema != SchemaTwoPhaseV1 {
		return fmt.Errorf("attestation schema must be %q", SchemaTwoPhaseV1)
	}
	if a.Phase2ToolsInvoked {
		return fmt.Errorf("attestation records tool use in phase 2")
	}
	if a.Phase1SHA256 != hashString(phase1Content) {
		return fmt.Errorf("phase 1 content hash mismatch")
	}
	return nil
}

func hashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
