package util

import (
	"path"
	"strings"
)

// CleanPath returns the canonical form of a request path: rooted, with
// dot segments and duplicate slashes removed. A trailing slash is kept.
func CleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if p[0] != '/' {
		p = "/" + p
	}
	cleaned := path.Clean(p)
	if strings.HasSuffix(p, "/") && cleaned != "/" {
		cleaned += "/"
	}
	return cleaned
}

// HasPathPrefix reports whether p equals prefix or continues it at a
// segment boundary. "/users" matches "/users" and "/users/1" but not
// "/usersx". A prefix of "/" matches every path.
func HasPathPrefix(p, prefix string) bool {
	trimmed := strings.TrimSuffix(prefix, "/")
	if trimmed == "" {
		return strings.HasPrefix(p, "/")
	}
	if p == trimmed {
		return true
	}
	return strings.HasPrefix(p, trimmed+"/")
}
