// Package scanner reconciles the clip catalog with the watch directories.
//
// A pass walks each watch directory and its immediate subdirectories for
// recorder files named like 2024-03-15_14-30-00.mp4, inserts the ones the
// catalog does not know yet, and removes catalogued clips whose files no
// longer exist. Existing rows are never modified, so a clip keeps its id and
// user metadata across scans.
//
// Per-file problems (an impossible date, a failed lookup or insert) are
// reported as SkippedItem values and never abort the pass. Orphan removal is
// best-effort. Passes are serialized; each one publishes scan.progress events
// while it runs and a catalog.changed event when it finishes.
package scanner
