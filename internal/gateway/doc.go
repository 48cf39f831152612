// Package gateway assembles the edge pipeline and runs it.
//
// Every request passes the same filter chain:
//
//	access log -> error response -> route resolution -> authentication
//	-> rate limiting -> forward
//
// Route resolution comes first so unknown paths are 404 regardless of
// credentials. Authentication precedes rate limiting so subject-keyed
// policies see the verified subject.
//
// The chain, route rules, verifier and policies form a Runtime that is
// rebuilt on configuration reload and swapped atomically:
//
//	gw, err := gateway.New(ctx, cfg, gateway.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	if err := gw.Start(ctx); err != nil {
//	    return err
//	}
//	defer gw.Stop(context.Background())
package gateway
