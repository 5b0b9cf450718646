// Package handlers provides the HTTP API over the clip catalog.
//
// It includes handlers for:
//   - Listing, starring, describing and deleting clips
//   - Tags, collections and smart folders, including bulk operations
//   - Manual scans, watch directory settings and thumbnail backfill
//   - Description search
//   - Live catalog events over Server-Sent Events and WebSocket
//   - Health checks, version and media tool status
//
// Handlers never touch the filesystem beyond serving generated thumbnails.
// Store errors map to 404 (not found), 409 (conflict) or 500.
package handlers
