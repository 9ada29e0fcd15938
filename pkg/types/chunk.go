package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// ChunkKind represents how a chunk was cut from its file
type ChunkKind string

const (
	ChunkFunction   ChunkKind = "function"
	ChunkMethod     ChunkKind = "method"
	ChunkTypeDecl   ChunkKind = "type"
	ChunkConstGroup ChunkKind = "const_group"
	ChunkVarGroup   ChunkKind = "var_group"
	ChunkPackage    ChunkKind = "package"
	ChunkWindow     ChunkKind = "window"
)

// Chunk represents a contiguous slice of a file treated as one embeddable unit
type Chunk struct {
	// Identification
	ID       string // Stable: derived from path, line span and content hash
	FilePath string

	// Content
	Content     string
	ContentHash string // Hex SHA-256 of Content, also the embedding cache key
	TokenCount  int

	// Location
	StartLine int
	EndLine   int

	// Metadata
	Language string
	Kind     ChunkKind
	Symbol   string // Name of the enclosing symbol, if any
}

// ValidateContent checks if the chunk content and span are valid
func (c *Chunk) ValidateContent() error {
	if strings.TrimSpace(c.Content) == "" {
		return ErrEmptyContent
	}

	if c.StartLine <= 0 || c.EndLine <= 0 || c.StartLine > c.EndLine {
		return ErrInvalidLineRange
	}

	return nil
}

// ValidateKind checks if the chunk kind is known
func (c *Chunk) ValidateKind() error {
	switch c.Kind {
	case ChunkFunction, ChunkMethod, ChunkTypeDecl, ChunkConstGroup, ChunkVarGroup, ChunkPackage, ChunkWindow:
		return nil
	default:
		return fmt.Errorf("%w: chunk kind %q", ErrInvalidKind, c.Kind)
	}
}

// Validate performs comprehensive validation of the chunk
func (c *Chunk) Validate() error {
	if c.ID == "" {
		return ErrMissingChunkID
	}
	if c.FilePath == "" {
		return ErrEmptyPath
	}
	if err := c.ValidateContent(); err != nil {
		return err
	}
	if err := c.ValidateKind(); err != nil {
		return err
	}
	if c.ContentHash == "" {
		return ErrMissingHash
	}
	return nil
}

// ComputeTokenCount estimates the number of tokens in the chunk.
// Uses a simple heuristic: characters / 4
func (c *Chunk) ComputeTokenCount() int {
	c.TokenCount = len(c.Content) / 4
	return c.TokenCount
}

// ComputeContentHash computes the SHA-256 hash of the chunk content
func (c *Chunk) ComputeContentHash() {
	h := sha256.Sum256([]byte(c.Content))
	c.ContentHash = hex.EncodeToString(h[:])
}

// ComputeID derives the stable chunk ID. ComputeContentHash must run first.
func (c *Chunk) ComputeID() {
	c.ID = ChunkID(c.FilePath, c.StartLine, c.EndLine, c.ContentHash)
}

// ChunkID derives a stable identifier from the owning path, its line span and content hash
func ChunkID(filePath string, startLine, endLine int, contentHash string) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%d:%s", filePath, startLine, endLine, contentHash)))
	return hex.EncodeToString(h[:16])
}

// ChunkIDs returns the IDs of the given chunks in order
func ChunkIDs(chunks []Chunk) []string {
	ids := make([]string, len(chunks))
	for i := range chunks {
		ids[i] = chunks[i].ID
	}
	return ids
}
