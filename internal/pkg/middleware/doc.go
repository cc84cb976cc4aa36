// Package middleware provides HTTP middleware for the evaluation server.
//
// Available middleware:
//   - RateLimiter: per-client token bucket limiting
//   - Logging: request logging with status and latency
//   - Recovery: converts handler panics into 500 replies
//
// Usage:
//
//	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
//	defer rl.Close()
//	handler = middleware.Logging(log)(rl.Middleware(handler))
package middleware
