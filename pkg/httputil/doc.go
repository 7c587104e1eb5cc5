// Package httputil provides the JSON response helpers, request parsing and
// common middleware shared by the HTTP surfaces.
//
// Error responses always have the shape
//
//	{"error": "permissions not found: a, b", "missing": ["a", "b"]}
//
// where missing is present only for not-found errors.
//
// Middleware composes with Chain, outermost first:
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware,
//		httputil.MaxBytesMiddleware(1<<20),
//	)(router)
package httputil
