// Package watcher reports file changes under a project root in debounced
// batches of repo-relative paths.
//
// Events are filtered with the same rules the scanner applies, so ignored
// directories are never watched and files without a known language are
// dropped. A batch is flushed once no relevant event arrived for the debounce
// period. The paths are suitable for indexer.IndexManager.ApplyChangedPaths,
// which decides per path whether it was added, modified or deleted.
package watcher
