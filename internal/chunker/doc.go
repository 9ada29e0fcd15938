// Package chunker divides source files into chunks for embedding and search.
//
// Go files are chunked at declaration boundaries using the entities produced
// by package extract: one chunk per function, method, type and const/var
// spec, with the doc comment attached. Declarations above the token budget are
// split into overlapping line windows. Files in other languages, and Go files
// with no declarations, become a single chunk when small enough and line
// windows otherwise.
//
//	res, _ := extract.New().Extract(path, src, "go")
//	chunks, err := chunker.New(chunker.Options{}).ChunkFile(path, src, "go", res)
//
// Chunk IDs derive from the file path, line span and content hash, so
// re-chunking unchanged content yields the same IDs.
//
// Token counts use a chars/4 heuristic.
package chunker
