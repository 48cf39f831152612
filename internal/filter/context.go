package filter

import (
	"net/http"
	"time"

	"github.com/vyrodovalexey/edgegw/internal/auth/jwt"
	"github.com/vyrodovalexey/edgegw/internal/proxy"
	"github.com/vyrodovalexey/edgegw/internal/ratelimit"
	"github.com/vyrodovalexey/edgegw/internal/router"
)

// Context carries one request through the chain. It is owned by a single
// goroutine and never shared between requests.
type Context struct {
	Request   *http.Request
	Writer    *ResponseWriter
	StartTime time.Time
	RequestID string
	ClientIP  string

	// Path is the cleaned request path used for matching.
	Path string
	Rule *router.Rule
	// UpstreamPath is the path sent to the backend.
	UpstreamPath string

	Claims   *jwt.Claims
	Decision *ratelimit.Decision
	Outcome  proxy.Outcome

	// Err is the error the chain ended with, set by the response filter.
	Err error
}

// NewContext creates a context for r.
func NewContext(w http.ResponseWriter, r *http.Request, start time.Time) *Context {
	return &Context{
		Request:   r,
		Writer:    NewResponseWriter(w),
		StartTime: start,
		Path:      r.URL.Path,
	}
}

// Subject returns the authenticated subject or "".
func (c *Context) Subject() string {
	if c.Claims == nil {
		return ""
	}
	return c.Claims.Subject
}

// Caller returns the identity used for rate limit keys.
func (c *Context) Caller() ratelimit.Caller {
	return ratelimit.Caller{ClientIP: c.ClientIP, Subject: c.Subject()}
}

// Route returns the matched path prefix or "" before route resolution.
func (c *Context) Route() string {
	if c.Rule == nil {
		return ""
	}
	return c.Rule.PathPrefix
}

// Service returns the matched service name or "".
func (c *Context) Service() string {
	if c.Rule == nil {
		return ""
	}
	return c.Rule.ServiceName
}
