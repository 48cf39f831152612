package auth

import (
	"strings"

	"github.com/vyrodovalexey/edgegw/internal/util"
)

// PublicPath is an allow-listed path prefix that bypasses authentication.
// An empty method set exempts every method.
type PublicPath struct {
	Prefix  string
	Methods []string
}

// PublicPaths is an immutable allow-list of public path prefixes.
type PublicPaths struct {
	entries []publicEntry
}

type publicEntry struct {
	prefix  string
	methods map[string]struct{}
}

// NewPublicPaths builds an allow-list from the given paths.
func NewPublicPaths(paths ...PublicPath) *PublicPaths {
	entries := make([]publicEntry, 0, len(paths))
	for _, p := range paths {
		e := publicEntry{prefix: p.Prefix}
		if len(p.Methods) > 0 {
			e.methods = make(map[string]struct{}, len(p.Methods))
			for _, m := range p.Methods {
				e.methods[strings.ToUpper(m)] = struct{}{}
			}
		}
		entries = append(entries, e)
	}
	return &PublicPaths{entries: entries}
}

// Match reports whether a request with the given method and cleaned path
// is exempt from authentication.
func (p *PublicPaths) Match(method, path string) bool {
	if p == nil {
		return false
	}
	for _, e := range p.entries {
		if !util.HasPathPrefix(path, e.prefix) {
			continue
		}
		if e.methods == nil {
			return true
		}
		if _, ok := e.methods[method]; ok {
			return true
		}
	}
	return false
}

// Len returns the number of entries.
func (p *PublicPaths) Len() int {
	if p == nil {
		return 0
	}
	return len(p.entries)
}
