// Package middleware provides HTTP middleware for the catalog API.
//
// It includes:
//   - Request logging in W3C Extended Log Format
//   - Prometheus request metrics labelled by route template
//   - gzip response compression for JSON bodies
//
// Wrapped response writers pass Flush and Hijack through so the SSE and
// WebSocket event streams work behind every layer.
package middleware
