package vcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultTimeout bounds every git invocation
const DefaultTimeout = 10 * time.Second

var (
	// ErrNotRepository is returned when the root is not inside a git work tree
	ErrNotRepository = errors.New("not a git repository")

	// ErrTimeout is returned when a command exceeds its timeout
	ErrTimeout = errors.New("vcs command timed out")

	// ErrInvalidRef is returned for refs that could be read as options
	ErrInvalidRef = errors.New("invalid ref")
)

// Executor runs a VCS command given as an argument list in dir and returns
// its standard output. Arguments are never passed through a shell.
type Executor interface {
	Run(ctx context.Context, dir string, args ...string) (string, error)
}

// CommandError describes a command that exited unsuccessfully
type CommandError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("git %s: %s", strings.Join(e.Args, " "), msg)
}

func (e *CommandError) Unwrap() error {
	if strings.Contains(e.Stderr, "not a git repository") {
		return ErrNotRepository
	}
	return e.Err
}

// GitExecutor runs the git binary with a fixed timeout per call
type GitExecutor struct {
	Binary  string
	Timeout time.Duration
}

// NewGitExecutor creates an executor. A non-positive timeout uses DefaultTimeout.
func NewGitExecutor(timeout time.Duration) *GitExecutor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &GitExecutor{Binary: "git", Timeout: timeout}
}

// Run executes git with args in dir
func (g *GitExecutor) Run(ctx context.Context, dir string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, g.Binary, args...)
	cmd.Dir = dir
	// Never block on credential or editor prompts.
	cmd.Env = append(cmd.Environ(), "GIT_TERMINAL_PROMPT=0", "GIT_OPTIONAL_LOCKS=0")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("git %s: %w after %s", strings.Join(args, " "), ErrTimeout, g.Timeout)
		}
		return "", &CommandError{Args: args, Stderr: stderr.String(), Err: err}
	}
	return stdout.String(), nil
}
