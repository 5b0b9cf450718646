/*
Package filesystem wraps the stat and directory reads the catalog depends on
with retries for stale NFS file handles.

Watch directories are often network mounts. When the server side changes a
directory, the client may briefly return ESTALE (errno 116 on Linux) for
paths that still exist. Treating that as "file missing" would make orphan
reconciliation delete live clips, so [Stat] and [ReadDir] retry ESTALE with
exponential backoff and return every other error immediately:

	info, err := filesystem.Stat(ctx, clip.Path, filesystem.DefaultRetryConfig())
	if errors.Is(err, fs.ErrNotExist) {
	    // really gone
	}

Retries are counted in the clip_catalog_filesystem_* metrics.
*/
package filesystem
