// Package main signs development bearer tokens accepted by the gateway.
//
//	tokengen -subject alice -ttl 1h -config configs/gateway.yaml
//
// The secret comes from -secret, EDGEGW_AUTH_SECRET or the auth section of
// the configuration file, in that order.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vyrodovalexey/edgegw/internal/config"
)

var errNoSecret = errors.New("no signing secret: use -secret, EDGEGW_AUTH_SECRET or -config")

type options struct {
	subject    string
	secret     string
	algorithm  string
	configPath string
	ttl        time.Duration
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr, time.Now))
}

func run(args []string, stdout, stderr io.Writer, now func() time.Time) int {
	fs := flag.NewFlagSet("tokengen", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var opts options
	fs.StringVar(&opts.subject, "subject", "", "Token subject (required)")
	fs.StringVar(&opts.secret, "secret", os.Getenv("EDGEGW_AUTH_SECRET"), "HMAC signing secret")
	fs.StringVar(&opts.algorithm, "alg", "", "Signing algorithm (HS256, HS384, HS512)")
	fs.StringVar(&opts.configPath, "config", "", "Gateway configuration to read the secret from")
	fs.DurationVar(&opts.ttl, "ttl", time.Hour, "Token lifetime")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	token, err := sign(opts, now())
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "tokengen: %v\n", err)
		return 1
	}

	_, _ = fmt.Fprintln(stdout, token)
	return 0
}

func sign(opts options, now time.Time) (string, error) {
	if opts.subject == "" {
		return "", errors.New("-subject is required")
	}
	if opts.ttl <= 0 {
		return "", fmt.Errorf("-ttl must be positive, got %s", opts.ttl)
	}

	if opts.configPath != "" && (opts.secret == "" || opts.algorithm == "") {
		cfg, err := config.LoadConfig(opts.configPath)
		if err != nil {
			return "", err
		}
		if opts.secret == "" {
			opts.secret = cfg.Auth.Secret
		}
		if opts.algorithm == "" {
			opts.algorithm = cfg.Auth.Algorithm
		}
	}
	if opts.secret == "" {
		return "", errNoSecret
	}
	if opts.algorithm == "" {
		opts.algorithm = config.DefaultAlgorithm
	}

	method := jwt.GetSigningMethod(opts.algorithm)
	if _, ok := method.(*jwt.SigningMethodHMAC); !ok {
		return "", fmt.Errorf("unsupported algorithm %q", opts.algorithm)
	}

	claims := jwt.RegisteredClaims{
		Subject:   opts.subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(opts.ttl)),
	}
	return jwt.NewWithClaims(method, claims).SignedString([]byte(opts.secret))
}
