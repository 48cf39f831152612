package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	jwxjwt "github.com/lestrrat-go/jwx/v2/jwt"
)

var algorithms = map[string]jwa.SignatureAlgorithm{
	AlgHS256: jwa.HS256,
	AlgHS384: jwa.HS384,
	AlgHS512: jwa.HS512,
}

// Verifier verifies compact JWS tokens signed with a shared HMAC secret.
// Verification is pure given the secret and the clock.
type Verifier struct {
	alg    jwa.SignatureAlgorithm
	secret []byte
	skew   time.Duration
	clock  func() time.Time
}

// Option is a functional option for the verifier.
type Option func(*Verifier)

// WithClock sets the time source used for expiry checks.
func WithClock(clock func() time.Time) Option {
	return func(v *Verifier) {
		v.clock = clock
	}
}

// WithClockSkew sets the tolerated clock skew for exp, iat and nbf.
func WithClockSkew(skew time.Duration) Option {
	return func(v *Verifier) {
		v.skew = skew
	}
}

// NewVerifier creates a verifier for the given algorithm and secret.
func NewVerifier(algorithm string, secret []byte, opts ...Option) (*Verifier, error) {
	alg, ok := algorithms[algorithm]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, algorithm)
	}
	if len(secret) == 0 {
		return nil, ErrInvalidKey
	}

	v := &Verifier{
		alg:    alg,
		secret: append([]byte(nil), secret...),
		clock:  time.Now,
	}

	for _, opt := range opts {
		opt(v)
	}

	return v, nil
}

// Verify checks the signature and the time claims of the token and returns
// its claims. Tokens without exp or sub are rejected as malformed.
func (v *Verifier) Verify(token string) (*Claims, error) {
	if token == "" {
		return nil, ErrEmptyToken
	}

	msg, err := jws.Parse([]byte(token))
	if err != nil {
		return nil, newVerificationError(ErrTokenMalformed, err)
	}
	sigs := msg.Signatures()
	if len(sigs) != 1 {
		return nil, newVerificationError(ErrTokenMalformed, fmt.Errorf("expected one signature, got %d", len(sigs)))
	}
	if alg := sigs[0].ProtectedHeaders().Algorithm(); alg != v.alg {
		return nil, newVerificationError(ErrTokenInvalidSignature, fmt.Errorf("unexpected algorithm %q", alg))
	}

	payload, err := jws.Verify([]byte(token), jws.WithKey(v.alg, v.secret))
	if err != nil {
		return nil, newVerificationError(ErrTokenInvalidSignature, err)
	}

	parsed, err := jwxjwt.Parse(payload, jwxjwt.WithVerify(false), jwxjwt.WithValidate(false))
	if err != nil {
		return nil, newVerificationError(ErrTokenMalformed, err)
	}

	err = jwxjwt.Validate(parsed,
		jwxjwt.WithClock(jwxjwt.ClockFunc(v.clock)),
		jwxjwt.WithAcceptableSkew(v.skew),
		jwxjwt.WithRequiredClaim(jwxjwt.ExpirationKey),
		jwxjwt.WithRequiredClaim(jwxjwt.SubjectKey),
	)
	switch {
	case err == nil:
	case errors.Is(err, jwxjwt.ErrTokenExpired()):
		return nil, newVerificationError(ErrTokenExpired, err)
	default:
		return nil, newVerificationError(ErrTokenMalformed, err)
	}

	return &Claims{
		Subject:   parsed.Subject(),
		IssuedAt:  parsed.IssuedAt(),
		ExpiresAt: parsed.Expiration(),
	}, nil
}
