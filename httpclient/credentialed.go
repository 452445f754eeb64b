package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"github.com/status-im/credential-host/authrule"
	"github.com/status-im/credential-host/descriptor"
	"github.com/status-im/credential-host/logging"
	"github.com/status-im/credential-host/metrics"
	"github.com/status-im/credential-host/ratelimit"
	"github.com/status-im/credential-host/registry"
	"github.com/status-im/credential-host/store"
)

// BaseURLField is the field relative request URLs are resolved against
const BaseURLField = "baseUrl"

// CredentialGetter loads stored credentials. Load must answer from the
// backing tier so a credential deleted or rotated on another host is not
// used from a stale local copy.
type CredentialGetter interface {
	Load(ctx context.Context, id string) (*store.Credential, error)
}

// CredentialedClient sends requests authenticated with a stored credential
type CredentialedClient struct {
	policy  RetryPolicy
	client  *Client
	rt      http.RoundTripper
	creds   CredentialGetter
	types   registry.Lookup
	limits  ratelimit.IRateLimiterManager
	logger  logging.Logger
	metrics metrics.MetricsRecorder
}

var _ Observer = (*CredentialedClient)(nil)

type CredentialedOption func(*CredentialedClient)

// WithRateLimits throttles each credential through m
func WithRateLimits(m ratelimit.IRateLimiterManager) CredentialedOption {
	return func(c *CredentialedClient) {
		c.limits = m
	}
}

func WithLogger(logger logging.Logger) CredentialedOption {
	return func(c *CredentialedClient) {
		c.logger = logger
	}
}

func WithMetrics(m metrics.MetricsRecorder) CredentialedOption {
	return func(c *CredentialedClient) {
		c.metrics = m
	}
}

// WithTransport replaces the underlying round tripper
func WithTransport(rt http.RoundTripper) CredentialedOption {
	return func(c *CredentialedClient) {
		c.rt = rt
	}
}

// NewCredentialedClient creates a client that reads credentials from creds and
// their types from types
func NewCredentialedClient(policy RetryPolicy, creds CredentialGetter, types registry.Lookup, options ...CredentialedOption) *CredentialedClient {
	c := &CredentialedClient{
		policy:  policy,
		creds:   creds,
		types:   types,
		logger:  logging.NoopLogger{},
		metrics: metrics.NewNoopMetrics(),
	}

	for _, opt := range options {
		opt(c)
	}

	clientOpts := []ClientOption{
		WithObserver(c),
		WithLimiter(c.limiterFor),
		WithClientLogger(c.logger),
	}
	if c.rt != nil {
		clientOpts = append(clientOpts, WithRoundTripper(c.rt))
	}
	c.client = NewClient(policy, clientOpts...)

	return c
}

type credentialRef struct {
	id  string
	typ string
}

type credentialKey struct{}

func credentialFrom(req *http.Request) (credentialRef, bool) {
	ref, ok := req.Context().Value(credentialKey{}).(credentialRef)
	return ref, ok
}

// OnAttempt records the outcome of one attempt against the credential's type
func (c *CredentialedClient) OnAttempt(req *http.Request, outcome Outcome) {
	if ref, ok := credentialFrom(req); ok {
		c.metrics.RecordOutboundRequest(ref.typ, string(outcome))
	}
}

func (c *CredentialedClient) OnRetry(req *http.Request, retry int, cause error) {
	ref, _ := credentialFrom(req)
	c.logger.Warn("Retrying credentialed request",
		"credential", ref.id,
		"host", req.URL.Host,
		"retry", retry,
		"error", cause)
}

func (c *CredentialedClient) limiterFor(req *http.Request) *rate.Limiter {
	if c.limits == nil {
		return nil
	}
	ref, ok := credentialFrom(req)
	if !ok {
		return nil
	}
	return c.limits.GetLimiter(ref.id, ref.typ)
}

// Authorize returns a copy of req bound to ctx with the credential's headers
// set. A relative URL is resolved against the credential's baseUrl field.
// req itself is not modified.
func (c *CredentialedClient) Authorize(ctx context.Context, req *http.Request, credentialID string) (*http.Request, error) {
	cred, err := c.creds.Load(ctx, credentialID)
	if err != nil {
		return nil, err
	}

	d, err := c.types.Get(cred.Type)
	if err != nil {
		return nil, fmt.Errorf("credential %q: %w", credentialID, err)
	}

	headers, err := authrule.ApplyDescriptor(d, cred.Values)
	if err != nil {
		c.metrics.RecordApply(d.Name, applyStatus(err))
		return nil, err
	}

	out := req.Clone(context.WithValue(ctx, credentialKey{}, credentialRef{id: cred.ID, typ: d.Name}))
	if err := resolveBaseURL(out, d, cred.Values); err != nil {
		c.metrics.RecordApply(d.Name, applyStatus(err))
		return nil, err
	}
	authrule.Inject(out, headers)

	c.metrics.RecordApply(d.Name, "success")
	c.logger.Debug("Applied credential",
		"credential", cred.ID,
		"type", d.Name,
		"headers", headerNames(headers))

	return out, nil
}

// Do authorizes req with the credential and sends it through the retrying client
func (c *CredentialedClient) Do(ctx context.Context, req *http.Request, credentialID string) (*http.Response, []byte, error) {
	out, err := c.Authorize(ctx, req, credentialID)
	if err != nil {
		return nil, nil, err
	}

	res, err := c.client.Send(out)
	if err != nil {
		c.logger.Warn("Credentialed request failed",
			"credential", credentialID,
			"host", out.URL.Host,
			"error", err)
		return nil, nil, err
	}

	c.logger.Debug("Credentialed request completed",
		"credential", credentialID,
		"host", out.URL.Host,
		"status", res.Response.StatusCode,
		"attempts", res.Attempts,
		"duration", res.Duration.Round(time.Millisecond))

	return res.Response, res.Body, nil
}

func resolveBaseURL(req *http.Request, d *descriptor.Descriptor, values descriptor.Values) error {
	if req.URL.IsAbs() && req.URL.Host != "" {
		return nil
	}
	if _, ok := d.Field(BaseURLField); !ok {
		return fmt.Errorf("request URL %q is relative and credential type %q has no %s field",
			req.URL.String(), d.Name, BaseURLField)
	}

	raw, _ := values[BaseURLField].(string)
	if raw == "" {
		return &descriptor.MissingFieldError{Descriptor: d.Name, Field: BaseURLField}
	}

	base, err := url.Parse(raw)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return fmt.Errorf("credential type %q: field %s is not an absolute URL", d.Name, BaseURLField)
	}

	resolved := base.JoinPath(req.URL.Path)
	resolved.RawQuery = req.URL.RawQuery
	resolved.Fragment = ""

	req.URL = resolved
	req.Host = resolved.Host
	return nil
}

func headerNames(headers map[string]string) []string {
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func applyStatus(err error) string {
	var missing *descriptor.MissingFieldError
	if errors.As(err, &missing) {
		return "missing_field"
	}
	return "error"
}
