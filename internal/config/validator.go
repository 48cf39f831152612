package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/vyrodovalexey/edgegw/internal/util"
)

var validAlgorithms = map[string]bool{"HS256": true, "HS384": true, "HS512": true}

// minSecretBytes is the HMAC key length required for each algorithm.
var minSecretBytes = map[string]int{"HS256": 32, "HS384": 48, "HS512": 64}

// ValidationErrors is a collection of configuration errors.
type ValidationErrors []*util.ConfigError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// Unwrap exposes the individual errors to errors.Is and errors.As.
func (e ValidationErrors) Unwrap() []error {
	errs := make([]error, len(e))
	for i, err := range e {
		errs[i] = err
	}
	return errs
}

// Validator validates gateway configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateConfig validates a configuration with a fresh Validator.
func ValidateConfig(cfg *Config) error {
	return NewValidator().Validate(cfg)
}

// Validate checks the whole configuration and returns every problem found.
func (v *Validator) Validate(cfg *Config) error {
	v.errors = nil

	if cfg == nil {
		v.addError("", "configuration is nil")
		return v.errors
	}

	v.validateServer(cfg)
	v.validateAuth(&cfg.Auth)
	v.validateRateLimit(&cfg.RateLimit)
	v.validateRoutes(cfg.Routes)
	v.validateRegistry(&cfg.Registry)

	if cfg.Upstream.Timeout.Duration() <= 0 {
		v.addError("upstream.timeout", "must be positive")
	}

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

func (v *Validator) addError(field, message string) {
	v.errors = append(v.errors, util.NewConfigError(field, message))
}

func (v *Validator) validateServer(cfg *Config) {
	v.validateAddress("server.address", cfg.Server.Address)
	v.validateAddress("admin.address", cfg.Admin.Address)

	if cfg.Tracing.SamplingRate < 0 || cfg.Tracing.SamplingRate > 1 {
		v.addError("tracing.samplingRate", "must be between 0 and 1")
	}
	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		v.addError("tracing.endpoint", "is required when tracing is enabled")
	}
}

func (v *Validator) validateAddress(field, address string) {
	if _, _, err := net.SplitHostPort(address); err != nil {
		v.addError(field, fmt.Sprintf("invalid listen address %q", address))
	}
}

func (v *Validator) validateAuth(auth *AuthConfig) {
	if !validAlgorithms[auth.Algorithm] {
		v.addError("auth.algorithm", fmt.Sprintf("unsupported algorithm %q", auth.Algorithm))
	}

	if auth.Secret == "" {
		v.addError("auth.secret", "is required")
	} else if minLen := minSecretBytes[auth.Algorithm]; minLen > 0 && len(auth.Secret) < minLen {
		v.addError("auth.secret", fmt.Sprintf("must be at least %d bytes for %s", minLen, auth.Algorithm))
	}

	if auth.ClockSkew.Duration() < 0 {
		v.addError("auth.clockSkew", "must not be negative")
	}

	for i, p := range auth.PublicPaths {
		v.validatePrefix(fmt.Sprintf("auth.publicPaths[%d].prefix", i), p.Prefix)
	}
}

func (v *Validator) validatePolicy(path string, p *PolicyConfig) {
	if p.Capacity <= 0 {
		v.addError(path+".capacity", "must be positive")
	}
	if p.RefillRatePerSecond <= 0 {
		v.addError(path+".refillRatePerSecond", "must be positive")
	}
	switch p.KeyExtractor {
	case KeyExtractorClientIP, KeyExtractorAuthenticatedSubject:
	default:
		v.addError(path+".keyExtractor", fmt.Sprintf("unknown key extractor %q", p.KeyExtractor))
	}
}

func (v *Validator) validateRateLimit(rl *RateLimitConfig) {
	v.validatePolicy("rateLimit", &rl.PolicyConfig)

	if rl.IdleTTL.Duration() <= 0 {
		v.addError("rateLimit.idleTTL", "must be positive")
	}

	switch rl.Store {
	case StoreMemory:
	case StoreRedis:
		if rl.Redis.Address == "" {
			v.addError("rateLimit.redis.address", "is required for the redis store")
		}
	default:
		v.addError("rateLimit.store", fmt.Sprintf("unknown store %q", rl.Store))
	}

	for i, cidr := range rl.TrustedProxies {
		if _, _, err := net.ParseCIDR(cidr); err != nil && net.ParseIP(cidr) == nil {
			v.addError(fmt.Sprintf("rateLimit.trustedProxies[%d]", i), fmt.Sprintf("invalid CIDR %q", cidr))
		}
	}
}

func (v *Validator) validateRoutes(routes []RouteConfig) {
	seen := make(map[string]bool, len(routes))

	for i := range routes {
		route := &routes[i]
		path := fmt.Sprintf("routes[%d]", i)

		v.validatePrefix(path+".pathPrefix", route.PathPrefix)
		if route.ServiceName == "" {
			v.addError(path+".serviceName", "is required")
		}

		normalized := strings.TrimSuffix(route.PathPrefix, "/")
		if seen[normalized] {
			v.addError(path+".pathPrefix", fmt.Sprintf("duplicate prefix %q", route.PathPrefix))
		}
		seen[normalized] = true

		if route.RateLimit != nil {
			v.validatePolicy(path+".rateLimit", route.RateLimit)
		}
	}
}

func (v *Validator) validatePrefix(field, prefix string) {
	if !strings.HasPrefix(prefix, "/") {
		v.addError(field, "must start with /")
	}
}

func (v *Validator) validateRegistry(r *RegistryConfig) {
	if r.HeartbeatTTL.Duration() <= 0 {
		v.addError("registry.heartbeatTTL", "must be positive")
	}
	if r.EvictionGrace.Duration() < 0 {
		v.addError("registry.evictionGrace", "must not be negative")
	}
	if r.StalenessThreshold.Duration() <= 0 {
		v.addError("registry.stalenessThreshold", "must be positive")
	}
	if r.RefreshInterval.Duration() <= 0 {
		v.addError("registry.refreshInterval", "must be positive")
	}
	if r.SweepInterval.Duration() <= 0 {
		v.addError("registry.sweepInterval", "must be positive")
	}

	switch r.Source {
	case SourceStatic:
		v.validateStaticInstances(r.Static)
	case SourceHTTP:
		if u, err := url.Parse(r.HTTP.URL); err != nil || u.Scheme == "" || u.Host == "" {
			v.addError("registry.http.url", fmt.Sprintf("invalid URL %q", r.HTTP.URL))
		}
	case SourceConsul:
		if r.Consul.Address == "" {
			v.addError("registry.consul.address", "is required for the consul source")
		}
	default:
		v.addError("registry.source", fmt.Sprintf("unknown source %q", r.Source))
	}
}

func (v *Validator) validateStaticInstances(instances []InstanceConfig) {
	ids := make(map[string]bool, len(instances))

	for i := range instances {
		inst := &instances[i]
		path := fmt.Sprintf("registry.static[%d]", i)

		if inst.InstanceID == "" {
			v.addError(path+".instanceId", "is required")
		} else if ids[inst.InstanceID] {
			v.addError(path+".instanceId", fmt.Sprintf("duplicate instance %q", inst.InstanceID))
		}
		ids[inst.InstanceID] = true

		if inst.ServiceName == "" {
			v.addError(path+".serviceName", "is required")
		}
		if inst.Host == "" {
			v.addError(path+".host", "is required")
		}
		if inst.Port <= 0 || inst.Port > 65535 {
			v.addError(path+".port", "must be between 1 and 65535")
		}
		if inst.HeartbeatIntervalSeconds < 0 {
			v.addError(path+".heartbeatIntervalSeconds", "must not be negative")
		}
	}
}
