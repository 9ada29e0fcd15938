package chunker

import (
	"fmt"
	"strings"

	"github.com/dshills/codeindex/internal/extract"
	"github.com/dshills/codeindex/pkg/types"
)

const (
	// MaxTokensPerChunk is the target maximum token count per chunk
	MaxTokensPerChunk = 1000

	// DefaultChunkLines is the window height used for files without symbols
	DefaultChunkLines = 60

	// DefaultOverlap is the number of lines shared by consecutive windows
	DefaultOverlap = 10
)

// Options controls window sizing
type Options struct {
	ChunkLines int
	Overlap    int
	MaxTokens  int
}

// Chunker creates code chunks from file content
type Chunker struct {
	opts Options
}

// New creates a new Chunker. Zero option values take the defaults; an overlap
// that would stall the window is clamped.
func New(opts Options) *Chunker {
	if opts.ChunkLines <= 0 {
		opts.ChunkLines = DefaultChunkLines
	}
	if opts.Overlap < 0 {
		opts.Overlap = 0
	}
	if opts.Overlap >= opts.ChunkLines {
		opts.Overlap = opts.ChunkLines / 2
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = MaxTokensPerChunk
	}
	return &Chunker{opts: opts}
}

// ChunkFile splits content into chunks. When an extraction result with Go
// declarations is supplied, each declaration becomes one chunk; otherwise the
// file is cut into overlapping line windows. Every returned chunk has its
// hash, token count and ID computed.
func (c *Chunker) ChunkFile(filePath string, content []byte, language string, res *extract.Result) ([]types.Chunk, error) {
	if filePath == "" {
		return nil, types.ErrEmptyPath
	}

	text := string(content)
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")

	var chunks []types.Chunk
	if language == "go" && res != nil {
		chunks = c.symbolChunks(filePath, language, lines, res)
	}

	if len(chunks) == 0 {
		whole := c.newChunk(filePath, language, lines, 1, len(lines), types.ChunkPackage, "")
		if whole != nil && whole.TokenCount <= c.opts.MaxTokens {
			chunks = append(chunks, *whole)
		} else {
			chunks = c.windows(filePath, language, lines, 1, len(lines), types.ChunkWindow, "")
		}
	}

	return chunks, nil
}

func (c *Chunker) symbolChunks(filePath, language string, lines []string, res *extract.Result) []types.Chunk {
	type span struct{ start, end int }
	seen := make(map[span]bool)

	var chunks []types.Chunk
	for _, sym := range res.Symbols() {
		if sym.StartLine <= 0 || sym.EndLine < sym.StartLine || sym.StartLine > len(lines) {
			continue
		}
		// Names sharing one spec ("a, b = 1, 2") share one chunk.
		sp := span{sym.StartLine, min(sym.EndLine, len(lines))}
		if seen[sp] {
			continue
		}
		seen[sp] = true

		kind := kindFor(sym.Kind)
		ch := c.newChunk(filePath, language, lines, sp.start, sp.end, kind, sym.Name)
		if ch == nil {
			continue
		}
		if ch.TokenCount > c.opts.MaxTokens {
			chunks = append(chunks, c.windows(filePath, language, lines, sp.start, sp.end, kind, sym.Name)...)
			continue
		}
		chunks = append(chunks, *ch)
	}
	return chunks
}

// windows cuts lines[start-1:end] into overlapping windows of ChunkLines.
func (c *Chunker) windows(filePath, language string, lines []string, start, end int, kind types.ChunkKind, symbol string) []types.Chunk {
	step := c.opts.ChunkLines - c.opts.Overlap

	var chunks []types.Chunk
	for from := start; from <= end; from += step {
		to := min(from+c.opts.ChunkLines-1, end)
		if ch := c.newChunk(filePath, language, lines, from, to, kind, symbol); ch != nil {
			chunks = append(chunks, *ch)
		}
		if to == end {
			break
		}
	}
	return chunks
}

// newChunk builds the chunk for the 1-based inclusive line span, or nil when
// the span holds only whitespace.
func (c *Chunker) newChunk(filePath, language string, lines []string, start, end int, kind types.ChunkKind, symbol string) *types.Chunk {
	content := strings.Join(lines[start-1:end], "\n")
	if strings.TrimSpace(content) == "" {
		return nil
	}

	ch := &types.Chunk{
		FilePath:  filePath,
		Content:   content,
		StartLine: start,
		EndLine:   end,
		Language:  language,
		Kind:      kind,
		Symbol:    symbol,
	}
	ch.ComputeTokenCount()
	ch.ComputeContentHash()
	ch.ComputeID()
	return ch
}

// kindFor maps symbol kinds to chunk kinds
func kindFor(kind types.SymbolKind) types.ChunkKind {
	switch kind {
	case types.KindFunction:
		return types.ChunkFunction
	case types.KindMethod:
		return types.ChunkMethod
	case types.KindStruct, types.KindInterface, types.KindType, types.KindClass:
		return types.ChunkTypeDecl
	case types.KindConst:
		return types.ChunkConstGroup
	case types.KindVar:
		return types.ChunkVarGroup
	default:
		return types.ChunkPackage
	}
}

// LinkEntities sets each entity's ChunkID to the narrowest chunk covering the
// entity's first line. Entities outside every chunk keep an empty ChunkID.
func LinkEntities(entities []types.Entity, chunks []types.Chunk) {
	for i := range entities {
		best := -1
		for j := range chunks {
			ch := &chunks[j]
			if entities[i].StartLine < ch.StartLine || entities[i].StartLine > ch.EndLine {
				continue
			}
			if best < 0 || ch.EndLine-ch.StartLine < chunks[best].EndLine-chunks[best].StartLine {
				best = j
			}
		}
		if best >= 0 {
			entities[i].ChunkID = chunks[best].ID
		}
	}
}

// Describe renders a short human-readable label for logs
func Describe(ch *types.Chunk) string {
	if ch.Symbol != "" {
		return fmt.Sprintf("%s:%d-%d (%s %s)", ch.FilePath, ch.StartLine, ch.EndLine, ch.Kind, ch.Symbol)
	}
	return fmt.Sprintf("%s:%d-%d (%s)", ch.FilePath, ch.StartLine, ch.EndLine, ch.Kind)
}
