// Package logging provides the leveled logger shared by the clip catalog
// commands and services.
//
// Levels, from most to least verbose:
//   - DEBUG: scanner and watcher internals
//   - INFO: general operational messages
//   - WARN: skipped files and recoverable faults
//   - ERROR: failed operations
//
// The starting level comes from DEBUG or LOG_LEVEL and can be changed with
// SetLevel. EnableFileOutput mirrors output into a rotating log file.
package logging
