package ratelimit

import (
	"fmt"
	"time"

	"github.com/vyrodovalexey/edgegw/internal/config"
	"github.com/vyrodovalexey/edgegw/internal/ratelimit/store"
)

// UnknownClient is the key used when no client address is available.
const UnknownClient = "UNKNOWN"

// GlobalPolicyName names the policy that applies when a route has none.
const GlobalPolicyName = "global"

// KeyExtractor selects the caller identity a bucket is keyed by.
type KeyExtractor string

// Supported key extractors.
const (
	KeyByClientIP             KeyExtractor = config.KeyExtractorClientIP
	KeyByAuthenticatedSubject KeyExtractor = config.KeyExtractorAuthenticatedSubject
)

// Caller carries the identity attributes a key can be derived from.
type Caller struct {
	ClientIP string
	// Subject is empty for unauthenticated requests.
	Subject string
}

// Key returns the bucket key for c.
func (k KeyExtractor) Key(c Caller) string {
	if k == KeyByAuthenticatedSubject && c.Subject != "" {
		return "sub:" + c.Subject
	}
	if c.ClientIP == "" {
		return "ip:" + UnknownClient
	}
	return "ip:" + c.ClientIP
}

// Policy is a named token-bucket budget.
type Policy struct {
	Name                string
	Capacity            int
	RefillRatePerSecond float64
	KeyExtractor        KeyExtractor
	IdleTTL             time.Duration
}

// NewPolicy builds a policy from configuration. A zero idleTTL is derived
// from the bucket parameters.
func NewPolicy(name string, cfg config.PolicyConfig, idleTTL time.Duration) (*Policy, error) {
	if cfg.Capacity < 1 {
		return nil, fmt.Errorf("policy %q: capacity must be at least 1", name)
	}
	if cfg.RefillRatePerSecond <= 0 {
		return nil, fmt.Errorf("policy %q: refill rate must be positive", name)
	}

	extractor := KeyExtractor(cfg.KeyExtractor)
	switch extractor {
	case "":
		extractor = KeyByClientIP
	case KeyByClientIP, KeyByAuthenticatedSubject:
	default:
		return nil, fmt.Errorf("policy %q: unknown key extractor %q", name, cfg.KeyExtractor)
	}

	minTTL := config.DefaultIdleTTL(cfg.Capacity, cfg.RefillRatePerSecond)
	if idleTTL < minTTL {
		idleTTL = minTTL
	}

	return &Policy{
		Name:                name,
		Capacity:            cfg.Capacity,
		RefillRatePerSecond: cfg.RefillRatePerSecond,
		KeyExtractor:        extractor,
		IdleTTL:             idleTTL,
	}, nil
}

// Limit returns the store limit for the policy.
func (p *Policy) Limit() store.Limit {
	return store.Limit{
		Capacity:            p.Capacity,
		RefillRatePerSecond: p.RefillRatePerSecond,
		IdleTTL:             p.IdleTTL,
	}
}

// BucketKey returns the store key for caller c under this policy.
func (p *Policy) BucketKey(c Caller) string {
	return p.Name + ":" + p.KeyExtractor.Key(c)
}
