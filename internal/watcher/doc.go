// Package watcher keeps the catalog in step with the watch directories by
// rescanning after filesystem changes.
//
// The watcher subscribes to each watch directory and its immediate
// subdirectories, the same depth the scanner walks. Events are collected
// until the debounce window passes without a new one; the batch then
// triggers a single scan if it contains a create or write of an .mp4 file.
// A clip renamed or moved into a directory arrives as a create; deletions
// and moves out are left to the next scan's orphan pass. Scans run on the watcher goroutine, so they never overlap, and the
// scanner announces the new clip count with a catalog.changed event.
//
// Run blocks until its context is cancelled.
package watcher
