package git

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/egoavara/modmgr/internal/errs"
)

// Client runs the git operations buckets need.
type Client interface {
	Clone(ctx context.Context, url, destPath string) error
	Pull(ctx context.Context, repoPath string) error
	GetCurrentCommit(ctx context.Context, repoPath string) (string, error)
	IsGitRepository(path string) bool
}

// DefaultClient shells out to the git binary.
type DefaultClient struct {
	Timeout time.Duration
	// Binary is the git executable, "git" when empty.
	Binary string
}

// NewClient returns a client with a five minute timeout per command.
func NewClient() *DefaultClient {
	return &DefaultClient{
		Timeout: 5 * time.Minute,
	}
}

func (c *DefaultClient) command(ctx context.Context, args ...string) (*exec.Cmd, context.CancelFunc) {
	bin := c.Binary
	if bin == "" {
		bin = "git"
	}
	cancel := func() {}
	if c.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	// never block on a credential prompt
	cmd.Env = append(cmd.Environ(), "GIT_TERMINAL_PROMPT=0")
	return cmd, cancel
}

// Clone makes a shallow clone of url at destPath.
func (c *DefaultClient) Clone(ctx context.Context, url, destPath string) error {
	_, err := c.run(ctx, url, ErrCloneFailed, "clone", "--depth", "1", url, destPath)
	return err
}

// Pull fast-forwards the repository at repoPath. An up-to-date repository
// is a successful no-op.
func (c *DefaultClient) Pull(ctx context.Context, repoPath string) error {
	_, err := c.run(ctx, repoPath, ErrPullFailed, "-C", repoPath, "pull", "--ff-only")
	return err
}

// run executes git and returns its trimmed stdout. A non-zero exit becomes an
// AuthError when stderr looks like a credential problem, else it wraps failed.
func (c *DefaultClient) run(ctx context.Context, target string, failed error, args ...string) (string, error) {
	cmd, cancel := c.command(ctx, args...)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if isAuthError(msg) {
			return "", &AuthError{URL: target, Message: msg}
		}
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("%w: %s", failed, msg)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// GetCurrentCommit returns the HEAD commit of repoPath.
func (c *DefaultClient) GetCurrentCommit(ctx context.Context, repoPath string) (string, error) {
	sha, err := c.run(ctx, repoPath, errs.ErrExternalTool, "-C", repoPath, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("read HEAD of %s: %w", repoPath, err)
	}
	return sha, nil
}

// IsGitRepository reports whether path is the top of a git work tree.
func (c *DefaultClient) IsGitRepository(path string) bool {
	top, err := c.run(context.Background(), path, errs.ErrExternalTool, "-C", path, "rev-parse", "--show-toplevel")
	return err == nil && sameDir(top, path)
}

var (
	// ErrCloneFailed is returned when git clone exits non-zero.
	ErrCloneFailed = fmt.Errorf("%w: clone failed", errs.ErrExternalTool)
	// ErrPullFailed is returned when git pull exits non-zero.
	ErrPullFailed = fmt.Errorf("%w: pull failed", errs.ErrExternalTool)
)

// AuthError represents a git authentication error
type AuthError struct {
	URL     string
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed for '%s': %s", e.URL, e.Message)
}

// Unwrap lets errors.Is match the external tool category.
func (e *AuthError) Unwrap() error {
	return errs.ErrExternalTool
}

var authMarkers = []string{
	"Authentication failed",
	"Permission denied",
	"could not read Username",
	"403",
	"401",
}

func isAuthError(msg string) bool {
	for _, m := range authMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
