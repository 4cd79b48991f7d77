// Package middleware provides the HTTP middleware stack: request ids,
// request-scoped logging, panic recovery, identity, metrics and limits.
package middleware

type contextKey string
