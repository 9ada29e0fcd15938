package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dshills/codeindex/pkg/types"
)

// DefaultMaxFileSize is the largest file indexed by default (1 MB)
const DefaultMaxFileSize int64 = 1 << 20

// ErrOutsideRoot is returned for paths that do not live under the project root
var ErrOutsideRoot = errors.New("path is outside the project root")

// FileLister lists indexable files under root as absolute paths
type FileLister interface {
	ListFiles(ctx context.Context, root string) ([]string, error)
}

// Options controls which files are listed
type Options struct {
	Include     []string // doublestar globs; empty means everything
	Exclude     []string // doublestar globs
	MaxFileSize int64    // 0 uses DefaultMaxFileSize
}

// WalkLister is the filesystem FileLister. It skips default-excluded
// directories, .gitignore matches, binary files and files over the size cap.
type WalkLister struct {
	opts Options
}

// NewWalkLister creates a lister with the given options
func NewWalkLister(opts Options) *WalkLister {
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	return &WalkLister{opts: opts}
}

// Filter returns the path filter this lister applies under root
func (w *WalkLister) Filter(root string) *Filter {
	return NewFilter(root, w.opts.Include, w.opts.Exclude)
}

// ListFiles walks root in lexical order
func (w *WalkLister) ListFiles(ctx context.Context, root string) ([]string, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", root)
	}

	filter := w.Filter(root)
	var files []string

	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			// Unreadable entries are skipped, not fatal.
			if d != nil && d.IsDir() && p != root {
				return filepath.SkipDir
			}
			return nil
		}
		if p == root {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return nil
		}

		if d.IsDir() {
			if filter.SkipDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !filter.Accept(rel) {
			return nil
		}

		fi, err := d.Info()
		if err != nil || fi.Size() > w.opts.MaxFileSize {
			return nil
		}
		if isBinary(p) {
			return nil
		}

		files = append(files, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	return files, nil
}

// isBinary checks the first 512 bytes for NUL
func isBinary(p string) bool {
	f, err := os.Open(p)
	if err != nil {
		return true
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return true
	}
	for _, b := range buf[:n] {
		if b == 0 {
			return true
		}
	}
	return false
}

// RelPath converts an absolute path under root into the slash separated key
// used by the stores.
func RelPath(root, abs string) (string, error) {
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, abs)
	}
	rel = types.NormalizePath(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, abs)
	}
	return rel, nil
}

// ReadFile loads a file under root and describes it. The returned metadata is
// keyed by the relative path.
func ReadFile(root, abs string) (types.FileMetadata, []byte, error) {
	rel, err := RelPath(root, abs)
	if err != nil {
		return types.FileMetadata{}, nil, err
	}

	fi, err := os.Stat(abs)
	if err != nil {
		return types.FileMetadata{}, nil, fmt.Errorf("stat %s: %w", rel, err)
	}
	content, err := os.ReadFile(abs)
	if err != nil {
		return types.FileMetadata{}, nil, fmt.Errorf("read %s: %w", rel, err)
	}

	meta := types.FileMetadata{
		Path:         rel,
		ContentHash:  types.HashContent(content),
		LastModified: fi.ModTime(),
		Size:         int64(len(content)),
		Language:     DetectLanguage(rel),
	}
	return meta, content, nil
}
