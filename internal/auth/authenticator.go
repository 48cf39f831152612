package auth

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/vyrodovalexey/edgegw/internal/auth/jwt"
)

// Trusted identity headers set on forwarded requests.
const (
	HeaderSubject   = "X-Auth-Subject"
	HeaderIssuedAt  = "X-Auth-Issued-At"
	HeaderExpiresAt = "X-Auth-Expires-At"

	trustedHeaderPrefix = "X-Auth-"
	bearerPrefix        = "Bearer "
)

// TokenVerifier verifies a raw bearer token.
type TokenVerifier interface {
	Verify(token string) (*jwt.Claims, error)
}

// Authenticator decides whether a request may proceed and which identity
// it carries. It holds no mutable state.
type Authenticator struct {
	verifier TokenVerifier
	public   *PublicPaths
}

// NewAuthenticator creates an authenticator. A nil allow-list protects
// every path.
func NewAuthenticator(verifier TokenVerifier, public *PublicPaths) *Authenticator {
	if public == nil {
		public = NewPublicPaths()
	}
	return &Authenticator{verifier: verifier, public: public}
}

// IsPublic reports whether the request path is on the allow-list.
func (a *Authenticator) IsPublic(method, path string) bool {
	return a.public.Match(method, path)
}

// Authenticate verifies the bearer token of r. Every failure is an *AuthError.
func (a *Authenticator) Authenticate(r *http.Request) (*jwt.Claims, error) {
	token, err := ExtractBearer(r.Header)
	if err != nil {
		kind := FailureMalformed
		if errors.Is(err, ErrMissingHeader) {
			kind = FailureMissing
		}
		return nil, NewAuthError(kind, err)
	}

	claims, err := a.verifier.Verify(token)
	if err != nil {
		return nil, classify(err)
	}
	return claims, nil
}

// ExtractBearer returns the token of an "Authorization: Bearer <token>"
// header. The scheme is matched case-insensitively.
func ExtractBearer(h http.Header) (string, error) {
	value := h.Get("Authorization")
	if value == "" {
		return "", ErrMissingHeader
	}
	if len(value) < len(bearerPrefix) || !strings.EqualFold(value[:len(bearerPrefix)], bearerPrefix) {
		return "", ErrInvalidScheme
	}
	token := strings.TrimSpace(value[len(bearerPrefix):])
	if token == "" {
		return "", jwt.ErrEmptyToken
	}
	return token, nil
}

// StripTrustedHeaders removes client supplied identity headers.
func StripTrustedHeaders(h http.Header) {
	for name := range h {
		if strings.HasPrefix(http.CanonicalHeaderKey(name), trustedHeaderPrefix) {
			delete(h, name)
		}
	}
}

// SetTrustedHeaders writes the verified identity onto an outgoing request.
func SetTrustedHeaders(h http.Header, claims *jwt.Claims) {
	if claims == nil {
		return
	}
	h.Set(HeaderSubject, claims.Subject)
	if !claims.IssuedAt.IsZero() {
		h.Set(HeaderIssuedAt, strconv.FormatInt(claims.IssuedAt.Unix(), 10))
	}
	h.Set(HeaderExpiresAt, strconv.FormatInt(claims.ExpiresAt.Unix(), 10))
}
