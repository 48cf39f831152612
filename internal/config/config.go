package config

import (
	"time"
)

// Key extractor names accepted in rate limit policies.
const (
	KeyExtractorClientIP             = "ClientIP"
	KeyExtractorAuthenticatedSubject = "AuthenticatedSubject"
)

// Rate limit store types.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Registry source types.
const (
	SourceStatic = "static"
	SourceHTTP   = "http"
	SourceConsul = "consul"
)

// Default configuration values.
const (
	DefaultServerAddress       = ":8080"
	DefaultAdminAddress        = ":9090"
	DefaultReadTimeout         = 30 * time.Second
	DefaultWriteTimeout        = 60 * time.Second
	DefaultShutdownTimeout     = 30 * time.Second
	DefaultAlgorithm           = "HS512"
	DefaultCapacity            = 10
	DefaultRefillRatePerSecond = 5.0
	DefaultMinIdleTTL          = time.Minute
	DefaultRedisPrefix         = "edgegw:ratelimit:"
	DefaultUpstreamTimeout     = 10 * time.Second
	DefaultRefreshInterval     = 10 * time.Second
	DefaultHeartbeatTTL        = 90 * time.Second
	DefaultEvictionGrace       = 60 * time.Second
	DefaultStalenessThreshold  = 2 * time.Minute
	DefaultSweepInterval       = 5 * time.Second
	DefaultConsulWaitTime      = 30 * time.Second
	DefaultServiceName         = "edgegw"
)

// Config is the root gateway configuration. A loaded Config is treated as
// immutable; reloads produce a new value.
type Config struct {
	Server    ServerConfig    `yaml:"server" json:"server"`
	Admin     AdminConfig     `yaml:"admin" json:"admin"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
	Tracing   TracingConfig   `yaml:"tracing" json:"tracing"`
	Auth      AuthConfig      `yaml:"auth" json:"auth"`
	RateLimit RateLimitConfig `yaml:"rateLimit" json:"rateLimit"`
	Routes    []RouteConfig   `yaml:"routes" json:"routes"`
	Upstream  UpstreamConfig  `yaml:"upstream" json:"upstream"`
	Registry  RegistryConfig  `yaml:"registry" json:"registry"`
}

// ServerConfig configures the public listener.
type ServerConfig struct {
	Address         string   `yaml:"address" json:"address"`
	ReadTimeout     Duration `yaml:"readTimeout" json:"readTimeout"`
	WriteTimeout    Duration `yaml:"writeTimeout" json:"writeTimeout"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout" json:"shutdownTimeout"`
}

// AdminConfig configures the metrics and health listener.
type AdminConfig struct {
	Address string `yaml:"address" json:"address"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	Endpoint     string  `yaml:"endpoint" json:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate" json:"samplingRate"`
	ServiceName  string  `yaml:"serviceName" json:"serviceName"`
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	Secret      string             `yaml:"secret" json:"-"`
	Algorithm   string             `yaml:"algorithm" json:"algorithm"`
	ClockSkew   Duration           `yaml:"clockSkew" json:"clockSkew"`
	PublicPaths []PublicPathConfig `yaml:"publicPaths" json:"publicPaths"`
}

// PublicPathConfig is an allow-listed path prefix. An empty Methods list
// exempts every method.
type PublicPathConfig struct {
	Prefix  string   `yaml:"prefix" json:"prefix"`
	Methods []string `yaml:"methods,omitempty" json:"methods,omitempty"`
}

// PolicyConfig is a token bucket policy.
type PolicyConfig struct {
	Capacity            int     `yaml:"capacity" json:"capacity"`
	RefillRatePerSecond float64 `yaml:"refillRatePerSecond" json:"refillRatePerSecond"`
	KeyExtractor        string  `yaml:"keyExtractor" json:"keyExtractor"`
}

// RateLimitConfig configures the global policy and the bucket store.
type RateLimitConfig struct {
	PolicyConfig   `yaml:",inline"`
	IdleTTL        Duration    `yaml:"idleTTL" json:"idleTTL"`
	Store          string      `yaml:"store" json:"store"`
	Redis          RedisConfig `yaml:"redis" json:"redis"`
	TrustedProxies []string    `yaml:"trustedProxies" json:"trustedProxies"`
}

// RedisConfig configures the shared bucket store.
type RedisConfig struct {
	Address  string `yaml:"address" json:"address"`
	Password string `yaml:"password" json:"-"`
	DB       int    `yaml:"db" json:"db"`
	Prefix   string `yaml:"prefix" json:"prefix"`
}

// RouteConfig maps a path prefix to a logical service.
type RouteConfig struct {
	PathPrefix  string        `yaml:"pathPrefix" json:"pathPrefix"`
	ServiceName string        `yaml:"serviceName" json:"serviceName"`
	StripPrefix bool          `yaml:"stripPrefix" json:"stripPrefix"`
	RateLimit   *PolicyConfig `yaml:"rateLimit,omitempty" json:"rateLimit,omitempty"`
}

// UpstreamConfig configures forwarding to backend instances.
type UpstreamConfig struct {
	Timeout         Duration `yaml:"timeout" json:"timeout"`
	RetryIdempotent *bool    `yaml:"retryIdempotent,omitempty" json:"retryIdempotent,omitempty"`
}

// RetryEnabled reports whether idempotent requests are retried once.
func (u UpstreamConfig) RetryEnabled() bool {
	return u.RetryIdempotent == nil || *u.RetryIdempotent
}

// RegistryConfig configures the service registry view and its source.
type RegistryConfig struct {
	Source             string           `yaml:"source" json:"source"`
	RefreshInterval    Duration         `yaml:"refreshInterval" json:"refreshInterval"`
	HeartbeatTTL       Duration         `yaml:"heartbeatTTL" json:"heartbeatTTL"`
	EvictionGrace      Duration         `yaml:"evictionGrace" json:"evictionGrace"`
	StalenessThreshold Duration         `yaml:"stalenessThreshold" json:"stalenessThreshold"`
	SweepInterval      Duration         `yaml:"sweepInterval" json:"sweepInterval"`
	Static             []InstanceConfig `yaml:"static" json:"static"`
	HTTP               HTTPSourceConfig `yaml:"http" json:"http"`
	Consul             ConsulConfig     `yaml:"consul" json:"consul"`
}

// InstanceConfig is a statically registered backend instance.
type InstanceConfig struct {
	InstanceID               string `yaml:"instanceId" json:"instanceId"`
	ServiceName              string `yaml:"serviceName" json:"serviceName"`
	Host                     string `yaml:"host" json:"host"`
	Port                     int    `yaml:"port" json:"port"`
	HeartbeatIntervalSeconds int    `yaml:"heartbeatIntervalSeconds" json:"heartbeatIntervalSeconds"`
}

// HTTPSourceConfig configures a polled JSON registry endpoint.
type HTTPSourceConfig struct {
	URL string `yaml:"url" json:"url"`
}

// ConsulConfig configures the Consul catalog source.
type ConsulConfig struct {
	Address    string   `yaml:"address" json:"address"`
	Datacenter string   `yaml:"datacenter" json:"datacenter"`
	Token      string   `yaml:"token" json:"-"`
	WaitTime   Duration `yaml:"waitTime" json:"waitTime"`
	Services   []string `yaml:"services" json:"services"`
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero values with defaults.
func (c *Config) ApplyDefaults() {
	c.applyServerDefaults()
	c.applyObservabilityDefaults()
	c.applyAuthDefaults()
	c.applyRateLimitDefaults()
	c.applyRegistryDefaults()

	if c.Upstream.Timeout == 0 {
		c.Upstream.Timeout = Duration(DefaultUpstreamTimeout)
	}
}

func (c *Config) applyServerDefaults() {
	s := &c.Server
	if s.Address == "" {
		s.Address = DefaultServerAddress
	}
	if s.ReadTimeout == 0 {
		s.ReadTimeout = Duration(DefaultReadTimeout)
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = Duration(DefaultWriteTimeout)
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = Duration(DefaultShutdownTimeout)
	}
	if c.Admin.Address == "" {
		c.Admin.Address = DefaultAdminAddress
	}
}

func (c *Config) applyObservabilityDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = DefaultServiceName
	}
}

func (c *Config) applyAuthDefaults() {
	if c.Auth.Algorithm == "" {
		c.Auth.Algorithm = DefaultAlgorithm
	}
}

func (c *Config) applyRateLimitDefaults() {
	rl := &c.RateLimit
	if rl.Capacity == 0 {
		rl.Capacity = DefaultCapacity
	}
	if rl.RefillRatePerSecond == 0 {
		rl.RefillRatePerSecond = DefaultRefillRatePerSecond
	}
	if rl.KeyExtractor == "" {
		rl.KeyExtractor = KeyExtractorClientIP
	}
	if rl.Store == "" {
		rl.Store = StoreMemory
	}
	if rl.Redis.Prefix == "" {
		rl.Redis.Prefix = DefaultRedisPrefix
	}
	if rl.IdleTTL == 0 {
		rl.IdleTTL = Duration(DefaultIdleTTL(rl.Capacity, rl.RefillRatePerSecond))
	}

	for i := range c.Routes {
		p := c.Routes[i].RateLimit
		if p == nil {
			continue
		}
		if p.KeyExtractor == "" {
			p.KeyExtractor = rl.KeyExtractor
		}
	}
}

func (c *Config) applyRegistryDefaults() {
	r := &c.Registry
	if r.Source == "" {
		r.Source = SourceStatic
	}
	if r.RefreshInterval == 0 {
		r.RefreshInterval = Duration(DefaultRefreshInterval)
	}
	if r.HeartbeatTTL == 0 {
		r.HeartbeatTTL = Duration(DefaultHeartbeatTTL)
	}
	if r.EvictionGrace == 0 {
		r.EvictionGrace = Duration(DefaultEvictionGrace)
	}
	if r.StalenessThreshold == 0 {
		r.StalenessThreshold = Duration(DefaultStalenessThreshold)
	}
	if r.SweepInterval == 0 {
		r.SweepInterval = Duration(DefaultSweepInterval)
	}
	if r.Consul.WaitTime == 0 {
		r.Consul.WaitTime = Duration(DefaultConsulWaitTime)
	}
}

// DefaultIdleTTL is the time a full bucket needs three times over to
// refill, floored at one minute.
func DefaultIdleTTL(capacity int, rate float64) time.Duration {
	if rate <= 0 {
		return DefaultMinIdleTTL
	}
	ttl := time.Duration(3 * float64(capacity) / rate * float64(time.Second))
	if ttl < DefaultMinIdleTTL {
		return DefaultMinIdleTTL
	}
	return ttl
}
