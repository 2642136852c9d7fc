// Package server hosts the vehicle registry API and media files from a
// single HTTP server.
//
// The server builds a consistent middleware chain of security headers, CORS,
// request IDs, rate limiting, audit, and logging so handlers all share common
// protections and instrumentation.
package server
