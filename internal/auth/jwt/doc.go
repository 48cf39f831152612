// Package jwt verifies HMAC-signed JSON Web Tokens for the gateway.
//
// Tokens are compact JWS strings carrying sub, iat and exp claims. The
// gateway never issues tokens; it only checks the signature against the
// shared secret and the expiry against an injectable clock:
//
//	v, err := jwt.NewVerifier(jwt.AlgHS512, secret, jwt.WithClockSkew(5*time.Second))
//	if err != nil {
//	    return err
//	}
//	claims, err := v.Verify(token)
//
// Failures wrap one of ErrEmptyToken, ErrTokenMalformed,
// ErrTokenInvalidSignature or ErrTokenExpired.
package jwt
