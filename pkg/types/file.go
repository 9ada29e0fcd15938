package types

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
	"time"
)

// FileMetadata describes one indexed file. Path is the identity key.
type FileMetadata struct {
	Path         string // Relative to project root, slash separated
	ContentHash  string // Hex SHA-256 of the file content
	LastModified time.Time
	Size         int64
	Language     string
}

// Validate checks that the metadata can be used as a store key
func (f *FileMetadata) Validate() error {
	if f.Path == "" {
		return ErrEmptyPath
	}
	if filepath.IsAbs(f.Path) || strings.HasPrefix(f.Path, "/") {
		return ErrAbsolutePath
	}
	if f.ContentHash == "" {
		return ErrMissingHash
	}
	return nil
}

// HashContent returns the hex SHA-256 digest used for FileMetadata.ContentHash
func HashContent(content []byte) string {
	h := sha256.Sum256(content)
	return hex.EncodeToString(h[:])
}

// NormalizePath converts an OS path into the slash separated form used as a key
func NormalizePath(p string) string {
	p = filepath.ToSlash(filepath.Clean(p))
	return strings.TrimPrefix(p, "./")
}
