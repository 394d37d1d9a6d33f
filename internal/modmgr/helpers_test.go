package modmgr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/egoavara/modmgr/internal/git"
	"github.com/egoavara/modmgr/internal/logging"
	"github.com/egoavara/modmgr/internal/metrics"
	"github.com/egoavara/modmgr/internal/runner"
	"github.com/egoavara/modmgr/internal/store"
)

// fakeGit materializes fixtures instead of cloning.
type fakeGit struct {
	mu       sync.Mutex
	fixtures map[string]map[string]string
	clones   []string
	pulls    []string
}

var _ git.Client = (*fakeGit)(nil)

func (g *fakeGit) Clone(_ context.Context, url, dest string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.clones = append(g.clones, url)
	files, ok := g.fixtures[url]
	if !ok {
		return fmt.Errorf("%w: repository %s not found", git.ErrCloneFailed, url)
	}
	return writeTree(dest, files)
}

func (g *fakeGit) Pull(_ context.Context, repo string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pulls = append(g.pulls, repo)
	return nil
}

func (g *fakeGit) GetCurrentCommit(context.Context, string) (string, error) {
	return "0000000", nil
}

func (g *fakeGit) IsGitRepository(path string) bool {
	return dirExists(path)
}

// fakeType records hook calls.
type fakeType struct {
	name     string
	legacy   bool
	calls    *[]string
	onPre    func(runner.InstallContext)
	failPost error
	failPreU error
}

func (f *fakeType) Name() string { return f.name }

func (f *fakeType) IsType(path string) bool {
	if f.legacy {
		return runner.IsLegacyLayout(path)
	}
	return runner.HasManifest(path)
}

func (f *fakeType) Load(context.Context, runner.Spec) (runner.Instance, error) {
	return nil, errors.New("not loadable")
}

func (f *fakeType) record(hook string, ic runner.InstallContext) {
	*f.calls = append(*f.calls, hook+":"+ic.Name)
}

func (f *fakeType) PreInstall(_ context.Context, ic runner.InstallContext) error {
	f.record("preInstall", ic)
	if f.onPre != nil {
		f.onPre(ic)
	}
	return nil
}

func (f *fakeType) PostInstall(_ context.Context, ic runner.InstallContext) error {
	f.record("postInstall", ic)
	return f.failPost
}

func (f *fakeType) PreUninstall(_ context.Context, ic runner.InstallContext) error {
	f.record("preUninstall", ic)
	return f.failPreU
}

func (f *fakeType) PostUninstall(_ context.Context, ic runner.InstallContext) error {
	f.record("postUninstall", ic)
	return nil
}

type testEnv struct {
	*Env
	git      *fakeGit
	calls    []string
	standard *fakeType
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	layout := store.NewLayout(t.TempDir(), "third_party")
	if err := layout.Ensure(); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}

	te := &testEnv{git: &fakeGit{fixtures: map[string]map[string]string{}}}
	types := runner.NewRegistry()
	types.Register(&fakeType{name: runner.TypeLegacy, legacy: true, calls: &te.calls})
	te.standard = &fakeType{name: runner.TypeStandard, calls: &te.calls}
	types.Register(te.standard)

	te.Env = &Env{
		Layout:  layout,
		Git:     te.git,
		Types:   types,
		Links:   layout.File(LinksFile),
		Log:     logging.Discard(),
		Metrics: metrics.New(nil),
	}
	return te
}

// writeBucket lays out files under buckets/name.
func (te *testEnv) writeBucket(t *testing.T, name string, files map[string]string) {
	t.Helper()
	if err := writeTree(te.Layout.BucketPath(name), files); err != nil {
		t.Fatalf("writeTree() error = %v", err)
	}
}

func writeTree(root string, files map[string]string) error {
	if err := os.MkdirAll(root, 0755); err != nil {
		return err
	}
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return err
		}
	}
	return nil
}

func manifest(name, version string) string {
	return fmt.Sprintf(`{"name": %q, "type": "standard", "version": %q, "entryPoint": "main.lua", "description": "%s mod"}`, name, version, name)
}
