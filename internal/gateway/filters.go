package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/vyrodovalexey/edgegw/internal/auth"
	"github.com/vyrodovalexey/edgegw/internal/filter"
	"github.com/vyrodovalexey/edgegw/internal/observability"
	"github.com/vyrodovalexey/edgegw/internal/ratelimit"
	"github.com/vyrodovalexey/edgegw/internal/router"
	"github.com/vyrodovalexey/edgegw/internal/util"
)

// Filter precedences. Route resolution runs before authentication so an
// unknown path is a 404 whatever the caller's credentials.
const (
	PrecedenceAccessLog = 0
	PrecedenceResponse  = 10
	PrecedenceRoute     = 100
	PrecedenceAuth      = 200
	PrecedenceRateLimit = 300
)

// statusClientClosed is logged for requests whose client went away.
const statusClientClosed = 499

// unmatchedRoute labels requests that matched no rule.
const unmatchedRoute = "unmatched"

type accessLogFilter struct {
	logger  observability.Logger
	metrics *observability.Metrics
	clock   func() time.Time
}

func (f *accessLogFilter) Name() string    { return "access-log" }
func (f *accessLogFilter) Precedence() int { return PrecedenceAccessLog }

func (f *accessLogFilter) Handle(c *filter.Context, next filter.Next) error {
	r := c.Request
	logger := f.logger.WithContext(r.Context())
	logger.Debug("request received",
		observability.String("method", r.Method),
		observability.String("path", c.Path),
	)

	err := next(c)

	status := c.Writer.Status()
	switch {
	case errors.Is(c.Err, util.ErrClientGone) && !c.Writer.Written():
		status = statusClientClosed
	case status == 0:
		status = http.StatusOK
	}

	route := c.Route()
	if route == "" {
		route = unmatchedRoute
	}
	duration := f.clock().Sub(c.StartTime)
	f.metrics.RecordRequest(route, outcomeOf(c.Err), status, duration)

	fields := []observability.Field{
		observability.String("method", r.Method),
		observability.String("path", c.Path),
		observability.Int("status", status),
		observability.Duration("latency", duration),
		observability.String("route", route),
		observability.String("client_ip", c.ClientIP),
	}
	if svc := c.Service(); svc != "" {
		fields = append(fields, observability.String("service", svc))
	}
	if c.Outcome.Instance.ID != "" {
		fields = append(fields,
			observability.String("instance", c.Outcome.Instance.ID),
			observability.Int("attempts", c.Outcome.Attempts),
		)
	}
	if sub := c.Subject(); sub != "" {
		fields = append(fields, observability.String("subject", sub))
	}
	if c.Err != nil {
		fields = append(fields, observability.Error(c.Err))
	}
	logger.Info("access", fields...)

	return err
}

// responseFilter turns the error a request ended with into a response.
type responseFilter struct {
	logger observability.Logger
}

func (f *responseFilter) Name() string    { return "response" }
func (f *responseFilter) Precedence() int { return PrecedenceResponse }

func (f *responseFilter) Handle(c *filter.Context, next filter.Next) error {
	err := next(c)
	if err == nil {
		return nil
	}
	c.Err = err

	if errors.Is(err, util.ErrClientGone) {
		return nil
	}
	if c.Writer.Written() {
		f.logger.Warn("error after response started",
			observability.String("request_id", c.RequestID),
			observability.Error(err),
		)
		return nil
	}
	writeError(c.Writer, err)
	return nil
}

type routeFilter struct {
	rules *router.RuleSet
}

func (f *routeFilter) Name() string    { return "route" }
func (f *routeFilter) Precedence() int { return PrecedenceRoute }

func (f *routeFilter) Handle(c *filter.Context, next filter.Next) error {
	rule, err := f.rules.ResolveRoute(c.Path)
	if err != nil {
		return err
	}
	c.Rule = rule
	c.UpstreamPath = rule.RewritePath(c.Path)
	observability.AnnotateRoute(c.Request.Context(), c.Request.Method, rule.PathPrefix, rule.ServiceName)
	return next(c)
}

type authFilter struct {
	auth    *auth.Authenticator
	logger  observability.Logger
	metrics *observability.Metrics
}

func (f *authFilter) Name() string    { return "auth" }
func (f *authFilter) Precedence() int { return PrecedenceAuth }

func (f *authFilter) Handle(c *filter.Context, next filter.Next) error {
	if f.auth.IsPublic(c.Request.Method, c.Path) {
		return next(c)
	}

	claims, err := f.auth.Authenticate(c.Request)
	if err != nil {
		reason := "unknown"
		var authErr *auth.AuthError
		if errors.As(err, &authErr) {
			reason = authErr.Kind.String()
		}
		f.metrics.RecordAuthFailure(reason)
		f.logger.Debug("authentication failed",
			observability.String("reason", reason),
			observability.String("request_id", c.RequestID),
			observability.Error(err),
		)
		return err
	}

	c.Claims = claims
	return next(c)
}

type rateLimitFilter struct {
	limiter   *ratelimit.Limiter
	policyFor func(*router.Rule) *ratelimit.Policy
	logger    observability.Logger
	metrics   *observability.Metrics
}

func (f *rateLimitFilter) Name() string    { return "rate-limit" }
func (f *rateLimitFilter) Precedence() int { return PrecedenceRateLimit }

func (f *rateLimitFilter) Handle(c *filter.Context, next filter.Next) error {
	policy := f.policyFor(c.Rule)

	decision, err := f.limiter.Allow(c.Request.Context(), policy, c.Caller())
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return util.ErrClientGone
		}
		f.logger.Error("rate limit check failed, admitting request",
			observability.String("policy", policy.Name),
			observability.String("request_id", c.RequestID),
			observability.Error(err),
		)
		return next(c)
	}

	c.Decision = decision
	f.metrics.RecordRateLimit(policy.Name, decision.Allowed)
	decision.SetHeaders(c.Writer.Header())

	if !decision.Allowed {
		return decision.Err()
	}
	return next(c)
}
