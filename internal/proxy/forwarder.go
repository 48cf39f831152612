package proxy

import (
	"context"
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/vyrodovalexey/edgegw/internal/auth"
	"github.com/vyrodovalexey/edgegw/internal/auth/jwt"
	"github.com/vyrodovalexey/edgegw/internal/observability"
	"github.com/vyrodovalexey/edgegw/internal/registry"
	"github.com/vyrodovalexey/edgegw/internal/util"
)

// DefaultTimeout bounds a single upstream attempt.
const DefaultTimeout = 10 * time.Second

// HeaderRequestID carries the request id upstream.
const HeaderRequestID = "X-Request-ID"

// InstancePicker selects a healthy instance of a service.
type InstancePicker interface {
	PickInstance(service string, exclude ...string) (registry.ServiceInstance, error)
}

// Target describes where and how a request is forwarded.
type Target struct {
	Service string
	// Path is the upstream request path.
	Path      string
	Claims    *jwt.Claims
	RequestID string
}

// Outcome describes a completed or failed forward.
type Outcome struct {
	// Instance is the last instance tried. Zero if none was picked.
	Instance registry.ServiceInstance
	Attempts int
}

// Forwarder proxies requests to instances picked from the registry.
type Forwarder struct {
	picker    InstancePicker
	transport http.RoundTripper
	timeout   time.Duration
	retry     bool
	logger    observability.Logger
	metrics   *observability.Metrics
	tracer    *observability.Tracer
}

// Option configures a Forwarder.
type Option func(*Forwarder)

// WithTransport sets the upstream transport.
func WithTransport(transport http.RoundTripper) Option {
	return func(f *Forwarder) {
		f.transport = transport
	}
}

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(f *Forwarder) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithIdempotentRetry enables or disables the single GET/HEAD retry.
func WithIdempotentRetry(enabled bool) Option {
	return func(f *Forwarder) {
		f.retry = enabled
	}
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(f *Forwarder) {
		f.logger = logger
	}
}

// WithMetrics sets the metrics.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(f *Forwarder) {
		f.metrics = metrics
	}
}

// WithTracer opens a client span per upstream attempt.
func WithTracer(tracer *observability.Tracer) Option {
	return func(f *Forwarder) {
		f.tracer = tracer
	}
}

// NewForwarder creates a forwarder.
func NewForwarder(picker InstancePicker, opts ...Option) *Forwarder {
	f := &Forwarder{
		picker:  picker,
		timeout: DefaultTimeout,
		retry:   true,
		logger:  observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.transport == nil {
		f.transport = NewTransport()
	}
	return f
}

// Forward sends r to an instance of t.Service and streams the response
// to w. When it returns an error nothing has been written to w. Errors
// are *util.NoInstanceError, *util.UpstreamError or util.ErrClientGone.
// A backend 5xx is a successful forward.
func (f *Forwarder) Forward(w http.ResponseWriter, r *http.Request, t Target) (Outcome, error) {
	var out Outcome
	var tried []string
	var lastErr error

	maxAttempts := 1
	if f.retry && retryable(r) {
		maxAttempts = 2
	}

	for out.Attempts < maxAttempts {
		inst, err := f.picker.PickInstance(t.Service, tried...)
		if err != nil {
			if lastErr != nil {
				// No other instance to retry on; report the upstream failure.
				return out, lastErr
			}
			return out, err
		}

		if out.Attempts > 0 {
			f.metrics.RecordUpstreamRetry(t.Service)
			f.logger.Warn("upstream attempt failed, retrying on another instance",
				observability.String("service", t.Service),
				observability.String("failed_instance", out.Instance.ID),
				observability.String("instance", inst.ID),
				observability.String("request_id", t.RequestID),
				observability.Error(lastErr),
			)
		}

		out.Instance = inst
		out.Attempts++
		tried = append(tried, inst.ID)

		err = f.attempt(w, r, t, inst, out.Attempts)
		if err == nil {
			return out, nil
		}
		if errors.Is(err, util.ErrClientGone) || errors.Is(err, context.DeadlineExceeded) {
			return out, err
		}
		lastErr = err
	}
	return out, lastErr
}

// attempt performs one upstream call. On error nothing is written to w.
func (f *Forwarder) attempt(w http.ResponseWriter, r *http.Request, t Target, inst registry.ServiceInstance, n int) (err error) {
	spanCtx, span := f.tracer.StartUpstreamSpan(r.Context(), t.Service, inst.ID, inst.Address(), n)
	var status int
	defer func() {
		observability.EndSpan(span, status, err)
		span.End()
	}()

	ctx, cancel := context.WithTimeout(spanCtx, f.timeout)
	defer cancel()

	target := &url.URL{Scheme: "http", Host: inst.Address()}

	var proxyErr error
	rp := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.Out.URL.Path = t.Path
			pr.Out.URL.RawPath = ""
			pr.Out.Host = target.Host

			if prior, ok := pr.In.Header["X-Forwarded-For"]; ok {
				pr.Out.Header["X-Forwarded-For"] = prior
			}
			pr.SetXForwarded()

			auth.StripTrustedHeaders(pr.Out.Header)
			auth.SetTrustedHeaders(pr.Out.Header, t.Claims)
			if t.RequestID != "" {
				pr.Out.Header.Set(HeaderRequestID, t.RequestID)
			}
			observability.InjectTraceContext(pr.Out.Context(), pr.Out.Header)
		},
		ModifyResponse: func(resp *http.Response) error {
			status = resp.StatusCode
			return nil
		},
		Transport:     f.transport,
		FlushInterval: -1,
		ErrorHandler: func(_ http.ResponseWriter, _ *http.Request, e error) {
			proxyErr = e
		},
	}

	rp.ServeHTTP(w, r.WithContext(ctx))

	if proxyErr == nil {
		return nil
	}
	if r.Context().Err() != nil {
		return util.ErrClientGone
	}

	cause := proxyErr
	if ctx.Err() != nil {
		cause = ctx.Err()
	}
	return util.NewUpstreamError(t.Service, inst.ID, f.timeout, cause)
}

// retryable reports whether r may be sent a second time.
func retryable(r *http.Request) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return false
	}
	return r.Body == nil || r.Body == http.NoBody || r.ContentLength == 0
}
