// Package orchestrator sequences one gateway request through resolution,
// vantage planning, ambient-context insertion, the resilience stack, the
// vendor adapter, citation normalization, and the grounding gate, emitting
// exactly one telemetry record per request.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zen-systems/geogate/pkg/adapter"
	"github.com/zen-systems/geogate/pkg/als"
	"github.com/zen-systems/geogate/pkg/attest"
	"github.com/zen-systems/geogate/pkg/citations"
	"github.com/zen-systems/geogate/pkg/grounding"
	"github.com/zen-systems/geogate/pkg/resilience"
	"github.com/zen-systems/geogate/pkg/resolver"
	"github.com/zen-systems/geogate/pkg/schema"
	"github.com/zen-systems/geogate/pkg/telemetry"
	"github.com/zen-systems/geogate/pkg/vantage"
)

// Options configures an Orchestrator.
type Options struct {
	Resolver   *resolver.Resolver
	Adapters   map[string]adapter.Adapter
	ALS        *als.Builder
	Vantage    *vantage.Router
	Breaker    *resilience.CircuitBreaker
	Limiter    *resilience.RateLimiter
	Retry      resilience.RetryPolicy
	Negotiator *resilience.Negotiator
	Redirects  *citations.RedirectResolver
	Authority  citations.AuthorityConfig
	Grounding  grounding.Config
	Emitter    telemetry.Emitter

	// SeedKeyID selects the ambient-context variant rotation; rotating the
	// key rotates variants without a template change.
	SeedKeyID string

	// Per-attempt deadlines. Grounded calls run a web search upstream and
	// get the longer budget.
	GroundedTimeout   time.Duration
	UngroundedTimeout time.Duration

	Logger func(format string, args ...any)
}

// Response is the gateway's answer for one request.
type Response struct {
	Content     string
	Citations   []citations.Citation
	Authority   citations.Score
	Grounding   grounding.Assessment
	Attestation *attest.TwoPhase
	Telemetry   *telemetry.Record
}

// Orchestrator runs requests end to end.
type Orchestrator struct {
	opts Options
}

// New creates an orchestrator. Missing resilience components get defaults;
// Resolver and Adapters are required.
func New(opts Options) (*Orchestrator, error) {
	if opts.Resolver == nil {
		return nil, fmt.Errorf("resolver is required")
	}
	if len(opts.Adapters) == 0 {
		return nil, fmt.Errorf("at least one adapter is required")
	}
	if opts.Breaker == nil {
		opts.Breaker = resilience.NewCircuitBreaker(resilience.BreakerConfig{})
	}
	if opts.Limiter == nil {
		opts.Limiter = resilience.NewRateLimiter(resilience.RateLimitConfig{}, nil)
	}
	if opts.Negotiator == nil {
		opts.Negotiator = resilience.NewNegotiator(0)
	}
	if opts.ALS == nil {
		opts.ALS = als.DefaultBuilder()
	}
	if opts.Vantage == nil {
		opts.Vantage = vantage.NewRouter(vantage.Config{})
	}
	if opts.Authority.DefaultTier == 0 {
		opts.Authority = citations.DefaultAuthorityConfig()
	}
	if opts.Emitter == nil {
		opts.Emitter = telemetry.NopEmitter{}
	}
	if opts.SeedKeyID == "" {
		opts.SeedKeyID = "k0"
	}
	if opts.GroundedTimeout <= 0 {
		opts.GroundedTimeout = 120 * time.Second
	}
	if opts.UngroundedTimeout <= 0 {
		opts.UngroundedTimeout = 60 * time.Second
	}
	opts.Retry = resilience.NewRetryPolicy(opts.Retry.MaxAttempts, opts.Retry.BaseBackoff, opts.Retry.MaxBackoff, opts.Retry.MaxRateLimitAttempts)
	return &Orchestrator{opts: opts}, nil
}

func (o *Orchestrator) logf(format string, args ...any) {
	if o.opts.Logger != nil {
		o.opts.Logger(format, args...)
	}
}

// Complete runs one request through the full pipeline. The telemetry record
// is emitted exactly once, on success and on every failure path.
func (o *Orchestrator) Complete(ctx context.Context, req *schema.Request) (_ *Response, retErr error) {
	start := time.Now()
	rec := &telemetry.Record{
		RunID:     req.ID,
		Timestamp: start.UTC(),
	}
	if rec.RunID == "" {
		rec.RunID = uuid.NewString()
	}
	defer func() {
		rec.LatencyMS = time.Since(start).Milliseconds()
		rec.Success = retErr == nil
		if retErr != nil {
			rec.ErrorClass = string(schema.CodeOf(retErr))
		}
		if err := o.opts.Emitter.Emit(rec); err != nil {
			o.logf("[orchestrator] telemetry emit failed: %v", err)
		}
	}()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	mode := req.EffectiveMode()
	rec.GroundingModeRequested = string(mode)

	target, err := o.opts.Resolver.Resolve(req.Vendor, req.Model)
	if err != nil {
		rec.Vendor = req.Vendor
		rec.Model = req.Model
		return nil, err
	}
	rec.Vendor = target.Vendor
	rec.Model = target.Model

	ad, ok := o.opts.Adapters[target.Vendor]
	if !ok {
		return nil, &schema.GatewayError{
			Code:   schema.ReasonInvalidRequest,
			Vendor: target.Vendor,
			Err:    fmt.Errorf("no adapter configured for vendor %s", target.Vendor),
		}
	}

	plan, err := o.plan(req)
	if err != nil {
		return nil, err
	}
	rec.VantagePolicy = string(plan.Effective)
	rec.ProxyDowngraded = plan.Downgraded
	rec.DowngradeReason = plan.DowngradeReason

	messages := req.Messages
	if plan.UseALS {
		block, err := o.opts.ALS.Build(plan.Country, o.opts.SeedKeyID)
		if err != nil {
			return nil, err
		}
		messages = insertALS(messages, block.Text)
		rec.SetALS(block.Provenance)
	}

	// Grounding capability pre-check. A vendor with no usable tool variant
	// cannot honor REQUIRED; AUTO proceeds ungrounded instead.
	callMode := mode
	variant := ""
	whyOverride := ""
	if mode != schema.GroundingNone {
		variant, ok = o.pickVariant(target, ad.ToolVariants())
		if !ok {
			if mode == schema.GroundingRequired {
				return nil, &schema.GatewayError{
					Code:   schema.ReasonGroundingNotSupported,
					Vendor: target.Vendor,
					Model:  target.Model,
					Err:    fmt.Errorf("no grounding tool available for %s", target.Key()),
				}
			}
			callMode = schema.GroundingNone
			whyOverride = grounding.WhyNotSupported
		}
	}

	// Two-phase protocol: the search-grounded vendor cannot combine tools
	// with schema-constrained output in one call, so grounding runs as
	// phase one and reshaping as a tool-free phase two.
	twoPhase := target.Vendor == "google" && req.StrictJSON && callMode != schema.GroundingNone

	spec := adapter.CallSpec{
		Model:           target.Model,
		Messages:        messages,
		Mode:            callMode,
		ToolVariant:     variant,
		MaxOutputTokens: req.MaxOutputTokens,
		StrictJSON:      req.StrictJSON && !twoPhase,
		OutputSchema:    req.OutputSchema,
		HTTPClient:      plan.HTTPClient,
	}

	result, info, err := o.dispatch(ctx, ad, target, plan, spec)
	rec.RetryCount += info.attempts - 1
	if err != nil && schema.CodeOf(err) == schema.ReasonGroundingNotSupported && mode == schema.GroundingAuto {
		// All variants rejected mid-flight; rerun ungrounded.
		whyOverride = grounding.WhyNotSupported
		spec.Mode = schema.GroundingNone
		spec.ToolVariant = ""
		spec.StrictJSON = req.StrictJSON
		twoPhase = false
		result, info, err = o.dispatch(ctx, ad, target, plan, spec)
		rec.RetryCount += info.attempts - 1
	}
	rec.ToolVariant = info.variant
	rec.CircuitState = o.opts.Breaker.State(target.Key())
	if err != nil {
		return nil, err
	}
	rec.InputTokens = result.Usage.PromptTokens
	rec.OutputTokens = result.Usage.CompletionTokens
	rec.ToolCallCount = result.ToolCalls

	content := result.Content
	var attestation *attest.TwoPhase
	if twoPhase {
		phase2, p2info, err := o.reshape(ctx, ad, target, plan, req, result.Content)
		rec.RetryCount += p2info.attempts - 1
		if err != nil {
			return nil, err
		}
		attestation, err = attest.BuildTwoPhase(result.Content, phase2.Content, phase2.ToolCalls)
		if err != nil {
			return nil, &schema.GatewayError{
				Code:   schema.ReasonUpstreamError,
				Vendor: target.Vendor,
				Model:  target.Model,
				Err:    err,
			}
		}
		content = phase2.Content
		invoked := phase2.ToolCalls > 0
		rec.TwoPhaseRan = true
		rec.Phase1SHA256 = attestation.Phase1SHA256
		rec.Phase2ToolsInvoked = &invoked
		rec.OutputTokens += phase2.Usage.CompletionTokens
		rec.InputTokens += phase2.Usage.PromptTokens
	}

	var cits []citations.Citation
	if result.Evidence != nil {
		if o.opts.Redirects != nil {
			o.opts.Redirects.BeginPass()
		}
		norm := citations.NewNormalizer(o.opts.Redirects)
		cits = norm.Normalize(ctx, result.Evidence)
		citations.AssignTiers(cits, o.opts.Authority)
	}
	score := citations.ScoreCitations(cits)
	rec.SetCitations(cits, score)

	assess, err := grounding.Evaluate(mode, target.Vendor, result.ToolCalls, cits, o.opts.Grounding)
	if whyOverride != "" && assess.WhyNotGrounded != "" {
		assess.WhyNotGrounded = whyOverride
	}
	rec.GroundedEffective = assess.GroundedEffective
	rec.WhyNotGrounded = assess.WhyNotGrounded
	if err != nil {
		return nil, err
	}

	return &Response{
		Content:     content,
		Citations:   cits,
		Authority:   score,
		Grounding:   assess,
		Attestation: attestation,
		Telemetry:   rec,
	}, nil
}

// plan resolves the request's vantage policy, defaulting to direct egress.
func (o *Orchestrator) plan(req *schema.Request) (*vantage.Plan, error) {
	policy := req.Vantage
	if policy == "" {
		policy = schema.VantageNone
	}
	return o.opts.Vantage.Plan(policy, req.Country)
}

// pickVariant returns the first tool variant not cached as unsupported.
func (o *Orchestrator) pickVariant(target resolver.Target, variants []string) (string, bool) {
	for _, v := range variants {
		if !o.opts.Negotiator.Unsupported(variantKey(target, v)) {
			return v, true
		}
	}
	return "", false
}

func variantKey(target resolver.Target, variant string) string {
	return target.Key() + "#" + variant
}

type dispatchInfo struct {
	attempts int
	variant  string
}

// dispatch runs one adapter call through the breaker, the token budget, and
// the retry loop, negotiating tool variants on structured unsupported
// errors. Breaker rejections fail fast without a retry; variant swaps do
// not consume a retry attempt.
func (o *Orchestrator) dispatch(ctx context.Context, ad adapter.Adapter, target resolver.Target, plan *vantage.Plan, spec adapter.CallSpec) (*adapter.Result, dispatchInfo, error) {
	grounded := spec.Mode != schema.GroundingNone
	estimate := o.opts.Limiter.EstimateTokens(target.Vendor, spec.Messages, spec.MaxOutputTokens, grounded)
	timeout := o.opts.UngroundedTimeout
	if grounded {
		timeout = o.opts.GroundedTimeout
	}
	variants := ad.ToolVariants()
	proxied := plan != nil && plan.HTTPClient != nil

	info := dispatchInfo{attempts: 1, variant: spec.ToolVariant}
	rateLimited := 0
	var lastErr error

	for attempt := 1; attempt <= o.opts.Retry.MaxAttempts; attempt++ {
		info.attempts = attempt
		info.variant = spec.ToolVariant
		if err := o.opts.Breaker.Allow(target.Key()); err != nil {
			return nil, info, err
		}
		res, err := o.opts.Limiter.Reserve(ctx, target.Vendor, estimate)
		if err != nil {
			o.opts.Breaker.ReleaseProbe(target.Key())
			code := schema.ReasonTimeout
			if errors.Is(err, context.Canceled) {
				code = schema.ReasonCanceled
			}
			return nil, info, &schema.GatewayError{
				Code:   code,
				Vendor: target.Vendor,
				Model:  target.Model,
				Err:    err,
			}
		}

		actx, cancel := context.WithTimeout(ctx, timeout)
		result, callErr := ad.Complete(actx, spec)
		cancel()

		if callErr == nil {
			res.Reconcile(result.Usage.Total())
			o.opts.Breaker.RecordSuccess(target.Key())
			if proxied {
				o.opts.Vantage.RecordProxySuccess(plan.Country)
			}
			if spec.ToolVariant != "" {
				o.opts.Negotiator.ClearUnsupported(variantKey(target, spec.ToolVariant))
			}
			info.variant = spec.ToolVariant
			return result, info, nil
		}
		lastErr = callErr
		res.Release()

		if adapter.IsToolUnsupported(callErr) {
			// A 400-class capability rejection is not a probe outcome.
			o.opts.Breaker.ReleaseProbe(target.Key())
			o.opts.Negotiator.MarkUnsupported(variantKey(target, spec.ToolVariant))
			o.logf("[orchestrator] %s rejected tool variant %q", target.Key(), spec.ToolVariant)
			if alt, ok := resilience.Alternate(spec.ToolVariant, variants); ok && !o.opts.Negotiator.Unsupported(variantKey(target, alt)) {
				spec.ToolVariant = alt
				attempt-- // variant swap is not a retry
				continue
			}
			return nil, info, &schema.GatewayError{
				Code:     schema.ReasonGroundingNotSupported,
				Vendor:   target.Vendor,
				Model:    target.Model,
				Attempts: attempt,
				Err:      callErr,
			}
		}

		if adapter.IsServerClass(callErr) {
			o.opts.Breaker.RecordFailure(target.Key())
			if proxied {
				o.opts.Vantage.RecordProxyFailure(plan.Country)
			}
		} else {
			// Rate limits and caller input errors do not settle a probe;
			// return the slot so the next attempt can take it.
			o.opts.Breaker.ReleaseProbe(target.Key())
		}

		if adapter.IsRateLimited(callErr) {
			rateLimited++
			if rateLimited >= o.opts.Retry.MaxRateLimitAttempts {
				return nil, info, &schema.GatewayError{
					Code:     schema.ReasonQuotaExhausted,
					Vendor:   target.Vendor,
					Model:    target.Model,
					Attempts: attempt,
					Err:      callErr,
				}
			}
		} else if !adapter.IsTransient(callErr) {
			return nil, info, &schema.GatewayError{
				Code:     schema.ReasonUpstreamError,
				Vendor:   target.Vendor,
				Model:    target.Model,
				Attempts: attempt,
				Err:      callErr,
			}
		}

		if attempt == o.opts.Retry.MaxAttempts {
			break
		}
		backoff := o.opts.Retry.Backoff(attempt, adapter.RetryAfterHint(callErr))
		o.logf("[orchestrator] %s attempt %d failed, retrying in %s: %v", target.Key(), attempt, backoff, callErr)
		if err := resilience.SleepWithContext(ctx, backoff); err != nil {
			code := schema.ReasonTimeout
			if errors.Is(err, context.Canceled) {
				code = schema.ReasonCanceled
			}
			return nil, info, &schema.GatewayError{
				Code:     code,
				Vendor:   target.Vendor,
				Model:    target.Model,
				Attempts: attempt,
				Err:      err,
			}
		}
	}

	return nil, info, &schema.GatewayError{
		Code:     schema.ReasonRetriesExhausted,
		Vendor:   target.Vendor,
		Model:    target.Model,
		Attempts: o.opts.Retry.MaxAttempts,
		Err:      lastErr,
	}
}

// reshape runs phase two of the two-phase protocol: a tool-free call that
// reshapes the grounded prose into schema-constrained JSON.
func (o *Orchestrator) reshape(ctx context.Context, ad adapter.Adapter, target resolver.Target, plan *vantage.Plan, req *schema.Request, phase1Content string) (*adapter.Result, dispatchInfo, error) {
	prompt := "Reshape the answer below into a single JSON object. Output only the JSON, no prose."
	if len(req.OutputSchema) > 0 {
		schemaJSON, err := json.Marshal(req.OutputSchema)
		if err != nil {
			return nil, dispatchInfo{attempts: 1}, &schema.GatewayError{
				Code: schema.ReasonInvalidRequest,
				Err:  fmt.Errorf("output schema not serializable: %w", err),
			}
		}
		prompt += "\nThe object must conform to this JSON schema:\n" + string(schemaJSON)
	}
	spec := adapter.CallSpec{
		Model: target.Model,
		Messages: []schema.Message{
			{Role: schema.RoleSystem, Content: prompt},
			{Role: schema.RoleUser, Content: phase1Content},
		},
		Mode:            schema.GroundingNone,
		MaxOutputTokens: req.MaxOutputTokens,
		StrictJSON:      true,
		OutputSchema:    req.OutputSchema,
		HTTPClient:      plan.HTTPClient,
	}
	return o.dispatch(ctx, ad, target, plan, spec)
}

// insertALS returns a new message list with the ambient-context block
// inserted after any leading system messages and before the first user
// message. The caller's list is never mutated.
func insertALS(messages []schema.Message, text string) []schema.Message {
	idx := 0
	for idx < len(messages) && messages[idx].Role == schema.RoleSystem {
		idx++
	}
	out := make([]schema.Message, 0, len(messages)+1)
	out = append(out, messages[:idx]...)
	out = append(out, schema.Message{Role: schema.RoleSystem, Content: text, ALS: true})
	out = append(out, messages[idx:]...)
	return out
}
