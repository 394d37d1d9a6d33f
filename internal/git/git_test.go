package git

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/egoavara/modmgr/internal/errs"
)

func TestParseSourceURL(t *testing.T) {
	t.Parallel()

	valid := []string{
		"https://github.com/acme/tools",
		"https://github.com/acme/tools.git",
		"https://github.com/acme/tools/",
		"http://gitlab.example.com/acme/tools.git",
		"git@github.com:acme/tools.git",
		"git@github.com:acme/tools",
		"ssh://git@github.com/acme/tools.git",
		"github.com/acme/tools",
	}
	for _, url := range valid {
		t.Run(url, func(t *testing.T) {
			t.Parallel()
			owner, repo, err := ParseSourceURL(url)
			if err != nil {
				t.Fatalf("ParseSourceURL(%q) error = %v", url, err)
			}
			if owner != "acme" || repo != "tools" {
				t.Errorf("ParseSourceURL(%q) = (%q, %q), want (acme, tools)", url, owner, repo)
			}
		})
	}
}

func TestParseSourceURLInvalid(t *testing.T) {
	t.Parallel()

	invalid := []string{
		"",
		"tools",
		"https://github.com",
		"https://github.com/tools",
		"git@github.com:tools",
		"https://github.com/acme/to ols",
		"https://github.com/acme/..",
	}
	for _, url := range invalid {
		t.Run(url, func(t *testing.T) {
			t.Parallel()
			_, _, err := ParseSourceURL(url)
			if err == nil {
				t.Fatalf("ParseSourceURL(%q) returned nil error", url)
			}
			if !errors.Is(err, ErrInvalidSourceURL) || !errors.Is(err, errs.ErrInvalidInput) {
				t.Errorf("error should wrap ErrInvalidSourceURL and ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestBucketName(t *testing.T) {
	t.Parallel()
	got, err := BucketName("git@github.com:acme/tools.git")
	if err != nil {
		t.Fatal(err)
	}
	if got != "acme_tools" {
		t.Errorf("BucketName() = %q, want acme_tools", got)
	}
}

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
}

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
		"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v: %v\n%s", args, err, out)
	}
}

// newUpstream creates a non-bare repository with one commit and returns its path.
func newUpstream(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "acme", "tools")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	runGit(t, dir, "init", "-q")
	if err := os.WriteFile(filepath.Join(dir, "README"), []byte("v1"), 0644); err != nil {
		t.Fatal(err)
	}
	runGit(t, dir, "add", ".")
	runGit(t, dir, "commit", "-q", "-m", "init")
	return dir
}

func TestCloneAndPull(t *testing.T) {
	requireGit(t)
	t.Parallel()

	upstream := newUpstream(t)
	dest := filepath.Join(t.TempDir(), "acme_tools")
	c := NewClient()
	ctx := context.Background()

	if err := c.Clone(ctx, upstream, dest); err != nil {
		t.Fatalf("Clone() error = %v", err)
	}
	if !c.IsGitRepository(dest) {
		t.Error("IsGitRepository(clone) = false")
	}

	// nothing to pull is a success
	if err := c.Pull(ctx, dest); err != nil {
		t.Errorf("Pull() up-to-date error = %v", err)
	}

	if err := os.WriteFile(filepath.Join(upstream, "README"), []byte("v2"), 0644); err != nil {
		t.Fatal(err)
	}
	runGit(t, upstream, "commit", "-q", "-am", "bump")

	if err := c.Pull(ctx, dest); err != nil {
		t.Fatalf("Pull() error = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dest, "README"))
	if err != nil || string(data) != "v2" {
		t.Errorf("after Pull README = %q, %v; want v2", data, err)
	}

	origin, err := OriginURL(dest)
	if err != nil {
		t.Fatalf("OriginURL() error = %v", err)
	}
	if origin != upstream {
		t.Errorf("OriginURL() = %q, want %q", origin, upstream)
	}
}

func TestCloneFailure(t *testing.T) {
	requireGit(t)
	t.Parallel()

	dest := filepath.Join(t.TempDir(), "x")
	err := NewClient().Clone(context.Background(), filepath.Join(t.TempDir(), "missing", "repo"), dest)
	if err == nil {
		t.Fatal("Clone() of missing repo returned nil error")
	}
	if !errors.Is(err, errs.ErrExternalTool) {
		t.Errorf("Clone() error should wrap ErrExternalTool, got %v", err)
	}
}

func TestIsGitRepositoryPlainDir(t *testing.T) {
	requireGit(t)
	t.Parallel()

	if NewClient().IsGitRepository(t.TempDir()) {
		t.Error("IsGitRepository(plain dir) = true")
	}
}
