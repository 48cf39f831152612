// Package health provides the liveness and readiness endpoints of the
// admin server.
//
// The gateway is ready when its registry view is fresh. A bypassed shared
// rate limit store only degrades readiness:
//
//	checker := health.NewChecker(version)
//	checker.RegisterCheck("registry", health.RegistryCheck(view, nil))
//	mux.Handle("/ready", checker.ReadinessHandler())
package health
