package vcs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dshills/codeindex/pkg/types"
)

// BranchChangeResult reports the outcome of one branch check. ChangedFiles is
// nil when the diff could not be computed; callers must then rescan
// everything. An empty, non-nil slice means no files differ.
type BranchChangeResult struct {
	Changed        bool
	PreviousBranch string
	CurrentBranch  string
	ChangedFiles   []string
}

// BranchChangeFunc is notified after a branch change is detected. A returned
// error is logged and does not stop other listeners.
type BranchChangeFunc func(ctx context.Context, res BranchChangeResult) error

// ListenerID identifies a registered BranchChangeFunc
type ListenerID uint64

type listener struct {
	id ListenerID
	fn BranchChangeFunc
}

// BranchHandler detects branch switches in the repository at root and turns
// them into file lists for incremental updates. Command failures degrade to
// "no change" and are only logged.
type BranchHandler struct {
	root   string
	exec   Executor
	logger *slog.Logger

	mu         sync.Mutex
	lastBranch string
	listeners  []listener
	nextID     ListenerID
}

// NewBranchHandler creates a handler. A nil exec uses git with DefaultTimeout.
func NewBranchHandler(root string, exec Executor, logger *slog.Logger) *BranchHandler {
	if exec == nil {
		exec = NewGitExecutor(DefaultTimeout)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BranchHandler{
		root:   root,
		exec:   exec,
		logger: logger.With(slog.String("component", "vcs")),
	}
}

// IsRepository reports whether root is inside a git work tree
func (h *BranchHandler) IsRepository(ctx context.Context) bool {
	out, err := h.exec.Run(ctx, h.root, "rev-parse", "--is-inside-work-tree")
	return err == nil && strings.TrimSpace(out) == "true"
}

// GetCurrentBranch returns the checked-out branch name. With a detached HEAD
// it returns the short commit hash instead.
func (h *BranchHandler) GetCurrentBranch(ctx context.Context) (string, error) {
	out, err := h.exec.Run(ctx, h.root, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	branch := strings.TrimSpace(out)
	if branch != "" && branch != "HEAD" {
		return branch, nil
	}

	out, err = h.exec.Run(ctx, h.root, "rev-parse", "--short", "HEAD")
	if err != nil {
		return "", err
	}
	hash := strings.TrimSpace(out)
	if hash == "" {
		return "", errors.New("resolve detached HEAD: empty output")
	}
	return hash, nil
}

// LastBranch returns the branch recorded by the last check
func (h *BranchHandler) LastBranch() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastBranch
}

// SetLastBranch seeds the branch the next check compares against, typically
// the branch recorded with the stored index
func (h *BranchHandler) SetLastBranch(branch string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastBranch = branch
}

// HasUncommittedChanges reports whether the work tree is dirty. Errors read
// as clean.
func (h *BranchHandler) HasUncommittedChanges(ctx context.Context) bool {
	out, err := h.exec.Run(ctx, h.root, "status", "--porcelain", "--untracked-files=normal")
	if err != nil {
		h.logger.Warn("status check failed", slog.String("error", err.Error()))
		return false
	}
	return strings.TrimSpace(out) != ""
}

// CheckBranchChange compares the current branch with the one seen last time.
// The first call only records the branch. On a change, the files differing
// between the two branch tips are listed and every listener is notified.
func (h *BranchHandler) CheckBranchChange(ctx context.Context) BranchChangeResult {
	current, err := h.GetCurrentBranch(ctx)
	if err != nil {
		h.logger.Warn("branch check failed", slog.String("error", err.Error()))
		last := h.LastBranch()
		return BranchChangeResult{PreviousBranch: last, CurrentBranch: last}
	}

	h.mu.Lock()
	previous := h.lastBranch
	h.lastBranch = current
	listeners := append([]listener(nil), h.listeners...)
	h.mu.Unlock()

	if previous == "" || previous == current {
		return BranchChangeResult{PreviousBranch: current, CurrentBranch: current}
	}

	res := BranchChangeResult{
		Changed:        true,
		PreviousBranch: previous,
		CurrentBranch:  current,
	}
	files, err := h.GetChangedFilesBetween(ctx, previous, current)
	if err != nil {
		h.logger.Warn("branch diff failed, full rescan required",
			slog.String("from", previous),
			slog.String("to", current),
			slog.String("error", err.Error()),
		)
	} else {
		res.ChangedFiles = files
	}

	h.logger.Info("branch changed",
		slog.String("from", previous),
		slog.String("to", current),
		slog.Int("files", len(res.ChangedFiles)),
		slog.Bool("diff_available", res.ChangedFiles != nil),
	)

	for _, l := range listeners {
		h.notify(ctx, l, res)
	}
	return res
}

func (h *BranchHandler) notify(ctx context.Context, l listener, res BranchChangeResult) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("branch change listener panicked",
				slog.Uint64("listener", uint64(l.id)),
				slog.Any("panic", r),
			)
		}
	}()
	if err := l.fn(ctx, res); err != nil {
		h.logger.Error("branch change listener failed",
			slog.Uint64("listener", uint64(l.id)),
			slog.String("error", err.Error()),
		)
	}
}

// OnBranchChange registers fn and returns its ID for OffBranchChange
func (h *BranchHandler) OnBranchChange(fn BranchChangeFunc) ListenerID {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	h.listeners = append(h.listeners, listener{id: h.nextID, fn: fn})
	return h.nextID
}

// OffBranchChange removes a listener. Unknown IDs are ignored.
func (h *BranchHandler) OffBranchChange(id ListenerID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, l := range h.listeners {
		if l.id == id {
			h.listeners = append(h.listeners[:i], h.listeners[i+1:]...)
			return
		}
	}
}

// GetChangedFilesBetween lists paths that differ between the merge base of
// from and to, and to. Renames are reported as both paths.
func (h *BranchHandler) GetChangedFilesBetween(ctx context.Context, from, to string) ([]string, error) {
	if err := checkRefs(from, to); err != nil {
		return nil, err
	}
	out, err := h.exec.Run(ctx, h.root, "diff", "--name-only", "--no-renames", "-z", from+"..."+to, "--")
	if err != nil {
		return nil, err
	}

	// -z output is taken as is; file names may start or end with spaces.
	files := []string{}
	for _, p := range strings.Split(out, "\x00") {
		if p != "" {
			files = append(files, filepath.ToSlash(p))
		}
	}
	return files, nil
}

// GetChangeSetBetween classifies the differences between from and to. A
// rename becomes a deletion of the old path and an addition of the new one.
func (h *BranchHandler) GetChangeSetBetween(ctx context.Context, from, to string) (types.ChangeSet, error) {
	if err := checkRefs(from, to); err != nil {
		return types.ChangeSet{}, err
	}
	out, err := h.exec.Run(ctx, h.root, "diff", "--name-status", "-M", "-z", from+"..."+to, "--")
	if err != nil {
		return types.ChangeSet{}, err
	}
	return parseNameStatus(out)
}

// parseNameStatus reads -z name-status output: a status field followed by one
// path, or two for renames and copies.
func parseNameStatus(out string) (types.ChangeSet, error) {
	var cs types.ChangeSet
	fields := strings.Split(strings.TrimSuffix(out, "\x00"), "\x00")

	for i := 0; i < len(fields); i++ {
		status := strings.TrimSpace(fields[i])
		if status == "" {
			continue
		}
		next := func() (string, error) {
			i++
			if i >= len(fields) || fields[i] == "" {
				return "", fmt.Errorf("parse name-status: missing path after %q", status)
			}
			return filepath.ToSlash(fields[i]), nil
		}

		switch status[0] {
		case 'A':
			p, err := next()
			if err != nil {
				return cs, err
			}
			cs.Added = append(cs.Added, p)
		case 'M', 'T':
			p, err := next()
			if err != nil {
				return cs, err
			}
			cs.Modified = append(cs.Modified, p)
		case 'D':
			p, err := next()
			if err != nil {
				return cs, err
			}
			cs.Deleted = append(cs.Deleted, p)
		case 'R', 'C':
			oldPath, err := next()
			if err != nil {
				return cs, err
			}
			newPath, err := next()
			if err != nil {
				return cs, err
			}
			if status[0] == 'R' {
				cs.Deleted = append(cs.Deleted, oldPath)
			}
			cs.Added = append(cs.Added, newPath)
		default:
			// Unmerged or unknown entries carry one path; treat it as modified.
			p, err := next()
			if err != nil {
				return cs, err
			}
			cs.Modified = append(cs.Modified, p)
		}
	}
	return cs.Normalize(), nil
}

func checkRefs(refs ...string) error {
	for _, ref := range refs {
		if ref == "" || strings.HasPrefix(ref, "-") || strings.ContainsAny(ref, " \t\n\x00") {
			return fmt.Errorf("%w: %q", ErrInvalidRef, ref)
		}
	}
	return nil
}
