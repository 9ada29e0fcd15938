package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"go/token"
)

// SymbolKind represents the kind of a code entity
type SymbolKind string

const (
	KindFile      SymbolKind = "file"
	KindPackage   SymbolKind = "package"
	KindFunction  SymbolKind = "function"
	KindMethod    SymbolKind = "method"
	KindStruct    SymbolKind = "struct"
	KindInterface SymbolKind = "interface"
	KindType      SymbolKind = "type"
	KindConst     SymbolKind = "const"
	KindVar       SymbolKind = "var"
	KindClass     SymbolKind = "class"
)

// RelationKind names the edge between two entities
type RelationKind string

const (
	RelationContains RelationKind = "contains"
	RelationMethodOf RelationKind = "method_of"
	RelationImports  RelationKind = "imports"
)

// Entity is a node of the code graph
type Entity struct {
	ID        string
	Name      string
	Kind      SymbolKind
	FilePath  string
	ChunkID   string // Chunk covering the entity's first line, if any
	Language  string
	Signature string
	StartLine int
	EndLine   int
}

// Relation is a directed edge. TargetID is empty when the target lives outside
// the index (an imported package, for example); TargetName is always set.
type Relation struct {
	SourceID   string
	TargetID   string
	TargetName string
	Kind       RelationKind
	FilePath   string
}

// ValidateKind checks if the entity kind is valid
func (e *Entity) ValidateKind() error {
	switch e.Kind {
	case KindFile, KindPackage, KindFunction, KindMethod, KindStruct, KindInterface,
		KindType, KindConst, KindVar, KindClass:
		return nil
	default:
		return fmt.Errorf("%w: entity kind %q", ErrInvalidKind, e.Kind)
	}
}

// IsExported returns true if the entity name is exported in the Go sense
func (e *Entity) IsExported() bool {
	return token.IsExported(e.Name)
}

// EntityID derives a stable entity identifier
func EntityID(filePath string, kind SymbolKind, name string, line int) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%s:%d", filePath, kind, name, line)))
	return hex.EncodeToString(h[:16])
}

// RelationID derives a stable identifier for an edge
func RelationID(r Relation) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%s:%s", r.SourceID, r.Kind, r.TargetID, r.TargetName)))
	return hex.EncodeToString(h[:16])
}
