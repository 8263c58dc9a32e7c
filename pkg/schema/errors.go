package schema

import (
	"errors"
	"fmt"
	"strings"
)

// ReasonCode is a machine-readable gateway failure class.
type ReasonCode string

const (
	ReasonInvalidRequest           ReasonCode = "INVALID_REQUEST"
	ReasonModelNotAllowed          ReasonCode = "MODEL_NOT_ALLOWED"
	ReasonALSBlockTooLong          ReasonCode = "ALS_BLOCK_TOO_LONG"
	ReasonRequiredGroundingMissing ReasonCode = "REQUIRED_GROUNDING_MISSING"
	ReasonGroundingNotSupported    ReasonCode = "GROUNDING_NOT_SUPPORTED"
	ReasonCircuitOpen              ReasonCode = "CIRCUIT_OPEN"
	ReasonQuotaExhausted           ReasonCode = "QUOTA_EXHAUSTED"
	ReasonRetriesExhausted         ReasonCode = "RETRIES_EXHAUSTED"
	ReasonTimeout                  ReasonCode = "TIMEOUT"
	ReasonCanceled                 ReasonCode = "CANCELED"
	ReasonProxyUnavailable         ReasonCode = "PROXY_UNAVAILABLE"
	ReasonUpstreamError            ReasonCode = "UPSTREAM_ERROR"
)

// GatewayError is the structured terminal error surfaced by the gateway.
// It distinguishes "our policy rejected this" from "the upstream failed"
// from "the caller asked for something invalid".
type GatewayError struct {
	Code     ReasonCode
	Vendor   string
	Model    string
	Attempts int
	// Allowed carries the permitted model set for MODEL_NOT_ALLOWED.
	Allowed []string
	Err     error
}

func (e *GatewayError) Error() string {
	if e == nil {
		return "gateway error"
	}
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.Vendor != "" || e.Model != "" {
		fmt.Fprintf(&b, " (%s/%s)", e.Vendor, e.Model)
	}
	if e.Attempts > 0 {
		fmt.Fprintf(&b, " after %d attempt(s)", e.Attempts)
	}
	if len(e.Allowed) > 0 {
		fmt.Fprintf(&b, " allowed=[%s]", strings.Join(e.Allowed, ", "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *GatewayError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// CodeOf extracts the reason code from an error chain, or UPSTREAM_ERROR
// when the chain carries no gateway classification.
func CodeOf(err error) ReasonCode {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Code
	}
	return ReasonUpstreamError
}

// IsReason reports whether err carries the given reason code.
func IsReason(err error, code ReasonCode) bool {
	var ge *GatewayError
	return errors.As(err, &ge) && ge.Code == code
}
