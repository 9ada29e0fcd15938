// Package scanner lists the indexable files of a project.
//
// WalkLister walks the root directory in lexical order and returns absolute
// paths. It never descends into DefaultExcludes, honours the root .gitignore
// (including negated and anchored patterns), applies doublestar include and
// exclude globs, and skips binary files, files over the size cap and files
// whose language is unknown. Filter exposes the same rules to callers that
// receive paths from elsewhere, such as the file watcher.
package scanner
