package router

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vyrodovalexey/edgegw/internal/config"
	"github.com/vyrodovalexey/edgegw/internal/util"
)

// Rule maps a path prefix to a logical service.
type Rule struct {
	PathPrefix  string
	ServiceName string
	StripPrefix bool
	// RateLimit overrides the global policy when set.
	RateLimit *config.PolicyConfig
}

// RewritePath returns the path to send upstream for a request path that
// matched r.
func (r *Rule) RewritePath(path string) string {
	if !r.StripPrefix || r.PathPrefix == "/" {
		return path
	}
	rest := strings.TrimPrefix(path, r.PathPrefix)
	if rest == "" || rest[0] != '/' {
		rest = "/" + rest
	}
	return rest
}

// RuleSet resolves request paths to rules by longest matching prefix.
// It is immutable once built.
type RuleSet struct {
	rules []*Rule
}

// NewRuleSet compiles route configuration into a RuleSet.
func NewRuleSet(routes []config.RouteConfig) (*RuleSet, error) {
	rules := make([]*Rule, 0, len(routes))
	seen := make(map[string]bool, len(routes))

	for i, rc := range routes {
		if rc.ServiceName == "" {
			return nil, fmt.Errorf("route %d: serviceName is required", i)
		}
		prefix := normalizePrefix(rc.PathPrefix)
		if seen[prefix] {
			return nil, fmt.Errorf("route %d: duplicate pathPrefix %q", i, prefix)
		}
		seen[prefix] = true

		rules = append(rules, &Rule{
			PathPrefix:  prefix,
			ServiceName: rc.ServiceName,
			StripPrefix: rc.StripPrefix,
			RateLimit:   rc.RateLimit,
		})
	}

	sort.SliceStable(rules, func(i, j int) bool {
		return len(rules[i].PathPrefix) > len(rules[j].PathPrefix)
	})

	return &RuleSet{rules: rules}, nil
}

// ResolveRoute returns the rule with the longest prefix matching path, or
// a *util.RouteNotFoundError.
func (s *RuleSet) ResolveRoute(path string) (*Rule, error) {
	if s != nil {
		for _, r := range s.rules {
			if util.HasPathPrefix(path, r.PathPrefix) {
				return r, nil
			}
		}
	}
	return nil, util.NewRouteNotFoundError(path)
}

// Rules returns the rules ordered by match precedence.
func (s *RuleSet) Rules() []*Rule {
	if s == nil {
		return nil
	}
	out := make([]*Rule, len(s.rules))
	copy(out, s.rules)
	return out
}

// Len returns the number of rules.
func (s *RuleSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rules)
}

func normalizePrefix(prefix string) string {
	p := util.CleanPath(prefix)
	if p != "/" {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}
