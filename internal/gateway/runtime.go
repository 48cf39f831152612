package gateway

import (
	"fmt"

	"github.com/vyrodovalexey/edgegw/internal/auth"
	"github.com/vyrodovalexey/edgegw/internal/auth/jwt"
	"github.com/vyrodovalexey/edgegw/internal/config"
	"github.com/vyrodovalexey/edgegw/internal/filter"
	"github.com/vyrodovalexey/edgegw/internal/middleware"
	"github.com/vyrodovalexey/edgegw/internal/proxy"
	"github.com/vyrodovalexey/edgegw/internal/ratelimit"
	"github.com/vyrodovalexey/edgegw/internal/router"
)

// Runtime is everything derived from one configuration revision. It is
// immutable; a reload builds a new Runtime and swaps it in whole, so a
// request always sees a single revision.
type Runtime struct {
	cfg       *config.Config
	rules     *router.RuleSet
	auth      *auth.Authenticator
	global    *ratelimit.Policy
	policies  map[*router.Rule]*ratelimit.Policy
	clientIP  *middleware.ClientIPExtractor
	forwarder *proxy.Forwarder
	chain     *filter.Chain
}

// buildRuntime compiles cfg against the long-lived gateway components.
func (g *Gateway) buildRuntime(cfg *config.Config) (*Runtime, error) {
	rules, err := router.NewRuleSet(cfg.Routes)
	if err != nil {
		return nil, fmt.Errorf("routes: %w", err)
	}

	verifier, err := jwt.NewVerifier(cfg.Auth.Algorithm, []byte(cfg.Auth.Secret),
		jwt.WithClock(g.clock),
		jwt.WithClockSkew(cfg.Auth.ClockSkew.Duration()),
	)
	if err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}

	public := make([]auth.PublicPath, 0, len(cfg.Auth.PublicPaths))
	for _, p := range cfg.Auth.PublicPaths {
		public = append(public, auth.PublicPath{Prefix: p.Prefix, Methods: p.Methods})
	}

	idleTTL := cfg.RateLimit.IdleTTL.Duration()
	global, err := ratelimit.NewPolicy(ratelimit.GlobalPolicyName, cfg.RateLimit.PolicyConfig, idleTTL)
	if err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	policies := make(map[*router.Rule]*ratelimit.Policy)
	for _, rule := range rules.Rules() {
		if rule.RateLimit == nil {
			continue
		}
		p, err := ratelimit.NewPolicy("route:"+rule.PathPrefix, *rule.RateLimit, 0)
		if err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
		policies[rule] = p
	}

	rt := &Runtime{
		cfg:      cfg,
		rules:    rules,
		auth:     auth.NewAuthenticator(verifier, auth.NewPublicPaths(public...)),
		global:   global,
		policies: policies,
		clientIP: middleware.NewClientIPExtractor(cfg.RateLimit.TrustedProxies),
		forwarder: proxy.NewForwarder(g.router,
			proxy.WithTransport(g.transport),
			proxy.WithTimeout(cfg.Upstream.Timeout.Duration()),
			proxy.WithIdempotentRetry(cfg.Upstream.RetryEnabled()),
			proxy.WithLogger(g.logger.Named("proxy")),
			proxy.WithMetrics(g.metrics),
			proxy.WithTracer(g.tracer),
		),
	}

	rt.chain, err = filter.NewChain(
		&accessLogFilter{logger: g.logger.Named("access"), metrics: g.metrics, clock: g.clock},
		&responseFilter{logger: g.logger},
		&routeFilter{rules: rules},
		&authFilter{auth: rt.auth, logger: g.logger, metrics: g.metrics},
		&rateLimitFilter{limiter: g.limiter, policyFor: rt.policyFor, logger: g.logger, metrics: g.metrics},
	)
	if err != nil {
		return nil, err
	}

	return rt, nil
}

// Config returns the configuration the runtime was built from.
func (rt *Runtime) Config() *config.Config {
	return rt.cfg
}

// policyFor returns the route policy of rule or the global policy.
func (rt *Runtime) policyFor(rule *router.Rule) *ratelimit.Policy {
	if p, ok := rt.policies[rule]; ok {
		return p
	}
	return rt.global
}

// forward is the terminal step of the chain.
func (rt *Runtime) forward(c *filter.Context) error {
	out, err := rt.forwarder.Forward(c.Writer, c.Request, proxy.Target{
		Service:   c.Service(),
		Path:      c.UpstreamPath,
		Claims:    c.Claims,
		RequestID: c.RequestID,
	})
	c.Outcome = out
	return err
}
