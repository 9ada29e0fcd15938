package vcs

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExecutor answers commands by their joined arguments
type fakeExecutor struct {
	mu      sync.Mutex
	outputs map[string]string
	errs    map[string]error
	calls   []string
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{outputs: make(map[string]string), errs: make(map[string]error)}
}

func (f *fakeExecutor) Run(_ context.Context, _ string, args ...string) (string, error) {
	key := strings.Join(args, " ")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, key)
	if err, ok := f.errs[key]; ok {
		return "", err
	}
	return f.outputs[key], nil
}

func (f *fakeExecutor) set(key, out string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outputs[key] = out
}

func (f *fakeExecutor) fail(key string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[key] = err
}

const (
	cmdBranch = "rev-parse --abbrev-ref HEAD"
	cmdShort  = "rev-parse --short HEAD"
)

func diffKey(from, to string) string {
	return "diff --name-only --no-renames -z " + from + "..." + to + " --"
}

func TestGetCurrentBranch(t *testing.T) {
	tests := []struct {
		name    string
		branch  string
		short   string
		want    string
		wantErr bool
	}{
		{name: "named branch", branch: "main\n", want: "main"},
		{name: "detached head", branch: "HEAD\n", short: "a1b2c3d\n", want: "a1b2c3d"},
		{name: "detached without hash", branch: "HEAD\n", short: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := newFakeExecutor()
			ex.set(cmdBranch, tt.branch)
			ex.set(cmdShort, tt.short)

			got, err := NewBranchHandler("/repo", ex, nil).GetCurrentBranch(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCheckBranchChange_FirstCallRecords(t *testing.T) {
	ex := newFakeExecutor()
	ex.set(cmdBranch, "main\n")
	h := NewBranchHandler("/repo", ex, nil)

	called := false
	h.OnBranchChange(func(context.Context, BranchChangeResult) error {
		called = true
		return nil
	})

	res := h.CheckBranchChange(context.Background())
	assert.False(t, res.Changed)
	assert.Equal(t, "main", res.CurrentBranch)
	assert.Equal(t, "main", h.LastBranch())
	assert.False(t, called)

	res = h.CheckBranchChange(context.Background())
	assert.False(t, res.Changed)
}

func TestCheckBranchChange_DetectsSwitch(t *testing.T) {
	ex := newFakeExecutor()
	ex.set(cmdBranch, "main\n")
	ex.set(diffKey("main", "feature"), "a.go\x00pkg/b.go\x00")
	h := NewBranchHandler("/repo", ex, nil)
	h.CheckBranchChange(context.Background())

	var got []BranchChangeResult
	h.OnBranchChange(func(_ context.Context, res BranchChangeResult) error {
		got = append(got, res)
		return nil
	})

	ex.set(cmdBranch, "feature\n")
	res := h.CheckBranchChange(context.Background())

	assert.True(t, res.Changed)
	assert.Equal(t, "main", res.PreviousBranch)
	assert.Equal(t, "feature", res.CurrentBranch)
	assert.Equal(t, []string{"a.go", "pkg/b.go"}, res.ChangedFiles)
	require.Len(t, got, 1)
	assert.Equal(t, res, got[0])
}

func TestCheckBranchChange_SeededBranch(t *testing.T) {
	ex := newFakeExecutor()
	ex.set(cmdBranch, "feature\n")
	ex.set(diffKey("main", "feature"), "a.go\x00")
	h := NewBranchHandler("/repo", ex, nil)
	h.SetLastBranch("main")

	res := h.CheckBranchChange(context.Background())
	assert.True(t, res.Changed, "a seeded branch makes the first check compare")
	assert.Equal(t, []string{"a.go"}, res.ChangedFiles)
	assert.Equal(t, "feature", h.LastBranch())
}

func TestCheckBranchChange_DiffFailureMeansUnknown(t *testing.T) {
	ex := newFakeExecutor()
	ex.set(cmdBranch, "main\n")
	ex.fail(diffKey("main", "orphan"), &CommandError{Args: []string{"diff"}, Stderr: "fatal: main...orphan: no merge base", Err: errors.New("exit status 128")})
	h := NewBranchHandler("/repo", ex, nil)
	h.CheckBranchChange(context.Background())

	ex.set(cmdBranch, "orphan\n")
	res := h.CheckBranchChange(context.Background())
	assert.True(t, res.Changed)
	assert.Nil(t, res.ChangedFiles, "nil means rescan everything")
}

func TestCheckBranchChange_EmptyDiffIsNotNil(t *testing.T) {
	ex := newFakeExecutor()
	ex.set(cmdBranch, "main\n")
	ex.set(diffKey("main", "copy"), "")
	h := NewBranchHandler("/repo", ex, nil)
	h.CheckBranchChange(context.Background())

	ex.set(cmdBranch, "copy\n")
	res := h.CheckBranchChange(context.Background())
	require.NotNil(t, res.ChangedFiles)
	assert.Empty(t, res.ChangedFiles)
}

func TestCheckBranchChange_CommandFailureIsNoChange(t *testing.T) {
	ex := newFakeExecutor()
	ex.set(cmdBranch, "main\n")
	h := NewBranchHandler("/repo", ex, nil)
	h.CheckBranchChange(context.Background())

	ex.fail(cmdBranch, ErrTimeout)
	res := h.CheckBranchChange(context.Background())
	assert.False(t, res.Changed)
	assert.Equal(t, "main", res.CurrentBranch)
	assert.Equal(t, "main", h.LastBranch())
}

func TestCheckBranchChange_ListenerFailuresAreContained(t *testing.T) {
	ex := newFakeExecutor()
	ex.set(cmdBranch, "main\n")
	h := NewBranchHandler("/repo", ex, nil)
	h.CheckBranchChange(context.Background())

	var order []string
	h.OnBranchChange(func(context.Context, BranchChangeResult) error {
		order = append(order, "panics")
		panic("listener bug")
	})
	h.OnBranchChange(func(context.Context, BranchChangeResult) error {
		order = append(order, "errors")
		return errors.New("update failed")
	})
	removed := h.OnBranchChange(func(context.Context, BranchChangeResult) error {
		order = append(order, "removed")
		return nil
	})
	h.OnBranchChange(func(context.Context, BranchChangeResult) error {
		order = append(order, "last")
		return nil
	})
	h.OffBranchChange(removed)
	h.OffBranchChange(ListenerID(999))

	ex.set(cmdBranch, "dev\n")
	res := h.CheckBranchChange(context.Background())
	assert.True(t, res.Changed)
	assert.Equal(t, []string{"panics", "errors", "last"}, order)
}

func TestHasUncommittedChanges(t *testing.T) {
	ex := newFakeExecutor()
	h := NewBranchHandler("/repo", ex, nil)
	key := "status --porcelain --untracked-files=normal"

	ex.set(key, "")
	assert.False(t, h.HasUncommittedChanges(context.Background()))

	ex.set(key, " M main.go\n")
	assert.True(t, h.HasUncommittedChanges(context.Background()))

	ex.fail(key, ErrTimeout)
	assert.False(t, h.HasUncommittedChanges(context.Background()))
}

func TestGetChangedFilesBetween_RejectsOptionRefs(t *testing.T) {
	ex := newFakeExecutor()
	h := NewBranchHandler("/repo", ex, nil)

	for _, ref := range []string{"", "--output=/tmp/x", "a b"} {
		_, err := h.GetChangedFilesBetween(context.Background(), ref, "main")
		assert.ErrorIs(t, err, ErrInvalidRef, ref)
	}
	assert.Empty(t, ex.calls)
}

func TestGetChangedFilesBetween_KeepsSurroundingSpaces(t *testing.T) {
	ex := newFakeExecutor()
	ex.set(diffKey("main", "feature"), " lead.go\x00trail.go \x00docs/a b.md\x00")
	h := NewBranchHandler("/repo", ex, nil)

	files, err := h.GetChangedFilesBetween(context.Background(), "main", "feature")
	require.NoError(t, err)
	assert.Equal(t, []string{" lead.go", "trail.go ", "docs/a b.md"}, files)
}

func TestParseNameStatus(t *testing.T) {
	out := "M\x00main.go\x00A\x00new.go\x00D\x00old.go\x00R087\x00pkg/a.go\x00pkg/b.go\x00C100\x00src.go\x00copy.go\x00T\x00link.go\x00"

	cs, err := parseNameStatus(out)
	require.NoError(t, err)
	assert.Equal(t, []string{"copy.go", "new.go", "pkg/b.go"}, cs.Added)
	assert.Equal(t, []string{"link.go", "main.go"}, cs.Modified)
	assert.Equal(t, []string{"old.go", "pkg/a.go"}, cs.Deleted)

	_, err = parseNameStatus("R100\x00only-one.go\x00")
	assert.Error(t, err)

	cs, err = parseNameStatus("")
	require.NoError(t, err)
	assert.True(t, cs.IsEmpty())
}

func TestCommandError(t *testing.T) {
	err := &CommandError{Args: []string{"status"}, Stderr: "fatal: not a git repository (or any of the parent directories): .git\n", Err: errors.New("exit status 128")}
	assert.ErrorIs(t, err, ErrNotRepository)
	assert.Contains(t, err.Error(), "git status: fatal: not a git repository")

	other := &CommandError{Args: []string{"diff"}, Err: errors.New("exit status 1")}
	assert.NotErrorIs(t, other, ErrNotRepository)
	assert.Equal(t, "git diff: exit status 1", other.Error())
}

// gitRepo creates a repository with a committed main branch
func gitRepo(t *testing.T) (string, *GitExecutor) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	dir := t.TempDir()
	ex := NewGitExecutor(10 * time.Second)
	git := func(args ...string) {
		t.Helper()
		base := []string{"-c", "user.email=test@example.com", "-c", "user.name=Test", "-c", "commit.gpgsign=false"}
		_, err := ex.Run(context.Background(), dir, append(base, args...)...)
		require.NoError(t, err, strings.Join(args, " "))
	}
	write := func(name, content string) {
		t.Helper()
		p := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}

	git("init", "-q", "-b", "main")
	write("keep.go", "package p\n")
	write("change.go", "package p\n")
	write("remove.go", "package p\n")
	git("add", "-A")
	git("commit", "-q", "-m", "initial")

	git("checkout", "-q", "-b", "feature")
	write("change.go", "package p\n\nfunc F() {}\n")
	write("pkg/added.go", "package pkg\n")
	git("rm", "-q", "remove.go")
	git("add", "-A")
	git("commit", "-q", "-m", "feature work")

	git("checkout", "-q", "main")
	return dir, ex
}

func TestBranchHandler_RealGit(t *testing.T) {
	dir, ex := gitRepo(t)
	ctx := context.Background()
	h := NewBranchHandler(dir, ex, nil)

	assert.True(t, h.IsRepository(ctx))
	assert.False(t, h.HasUncommittedChanges(ctx))

	res := h.CheckBranchChange(ctx)
	require.False(t, res.Changed)
	assert.Equal(t, "main", res.CurrentBranch)

	_, err := ex.Run(ctx, dir, "checkout", "-q", "feature")
	require.NoError(t, err)

	res = h.CheckBranchChange(ctx)
	require.True(t, res.Changed)
	assert.Equal(t, "main", res.PreviousBranch)
	assert.Equal(t, "feature", res.CurrentBranch)
	assert.ElementsMatch(t, []string{"change.go", "pkg/added.go", "remove.go"}, res.ChangedFiles)

	cs, err := h.GetChangeSetBetween(ctx, "main", "feature")
	require.NoError(t, err)
	assert.Equal(t, []string{"pkg/added.go"}, cs.Added)
	assert.Equal(t, []string{"change.go"}, cs.Modified)
	assert.Equal(t, []string{"remove.go"}, cs.Deleted)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "keep.go"), []byte("package p // edited\n"), 0o644))
	assert.True(t, h.HasUncommittedChanges(ctx))
}

func TestBranchHandler_RealGitDetachedHead(t *testing.T) {
	dir, ex := gitRepo(t)
	ctx := context.Background()

	_, err := ex.Run(ctx, dir, "checkout", "-q", "--detach", "HEAD")
	require.NoError(t, err)

	branch, err := NewBranchHandler(dir, ex, nil).GetCurrentBranch(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, "HEAD", branch)
	assert.GreaterOrEqual(t, len(branch), 7)
}

func TestBranchHandler_NotRepository(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	h := NewBranchHandler(dir, NewGitExecutor(5*time.Second), nil)

	_, err := h.GetCurrentBranch(context.Background())
	assert.ErrorIs(t, err, ErrNotRepository)
	assert.False(t, h.IsRepository(context.Background()))

	res := h.CheckBranchChange(context.Background())
	assert.False(t, res.Changed)
}
