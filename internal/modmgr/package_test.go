package modmgr

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/egoavara/modmgr/internal/runner"
)

func toolsBucket(t *testing.T, te *testEnv) *Bucket {
	t.Helper()
	te.writeBucket(t, "acme_tools", map[string]string{
		"foo/mod.json":    manifest("Foo Tool", "1.2.0"),
		"foo/main.lua":    "return {}",
		"foo/style.css":   "body {}",
		"old/index.lua":   "return {}",
		"third_party/x":   "",
		"broken/mod.json": `{"name":`,
	})
	b, err := LoadExisting(te.Env, "acme_tools")
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestInstallUninstallRoundTrip(t *testing.T) {
	t.Parallel()

	te := newTestEnv(t)
	b := toolsBucket(t, te)
	ctx := context.Background()

	p, err := Install(ctx, te.Env, b, "foo")
	if err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	if p.Type != runner.TypeStandard || p.Version != "1.2.0" || p.EntryPoint != "main.lua" {
		t.Errorf("installed package = %+v", p)
	}
	if _, err := os.Stat(filepath.Join(te.Layout.PkgPath("foo"), "style.css")); err != nil {
		t.Errorf("style.css not copied: %v", err)
	}

	if err := p.Uninstall(ctx); err != nil {
		t.Fatalf("Uninstall() error = %v", err)
	}
	if _, err := os.Stat(te.Layout.PkgPath("foo")); !os.IsNotExist(err) {
		t.Errorf("package folder still present: %v", err)
	}

	want := []string{"preInstall:foo", "postInstall:foo", "preUninstall:foo", "postUninstall:foo"}
	if !reflect.DeepEqual(te.calls, want) {
		t.Errorf("hook calls = %v, want %v", te.calls, want)
	}

	if err := p.Uninstall(ctx); !errors.Is(err, ErrNotInstalled) {
		t.Errorf("second Uninstall() error = %v, want ErrNotInstalled", err)
	}
}

func TestInstallRejections(t *testing.T) {
	t.Parallel()

	te := newTestEnv(t)
	b := toolsBucket(t, te)
	ctx := context.Background()

	if _, err := Install(ctx, te.Env, b, "foo"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		pkg     string
		wantErr error
	}{
		{name: "already installed", pkg: "foo", wantErr: ErrAlreadyExists},
		{name: "absent", pkg: "nope", wantErr: ErrPackageNotFound},
		{name: "reserved", pkg: "third_party", wantErr: ErrReservedName},
		{name: "path escape", pkg: "../foo", wantErr: ErrReservedName},
		{name: "malformed manifest", pkg: "broken", wantErr: ErrInvalidManifest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Install(ctx, te.Env, b, tt.pkg)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Install(%q) error = %v, want %v", tt.pkg, err, tt.wantErr)
			}
		})
	}

	if dirExists(te.Layout.PkgPath("broken")) {
		t.Error("rejected install left a folder behind")
	}
}

func TestInstallHookFailureRemovesTarget(t *testing.T) {
	t.Parallel()

	te := newTestEnv(t)
	b := toolsBucket(t, te)
	te.standard.failPost = errors.New("pip exploded")

	_, err := Install(context.Background(), te.Env, b, "foo")
	if err == nil {
		t.Fatal("Install() should fail when postInstall fails")
	}
	if dirExists(te.Layout.PkgPath("foo")) {
		t.Error("failed install left the target folder")
	}
}

func TestUninstallHookFailureStillDeletes(t *testing.T) {
	t.Parallel()

	te := newTestEnv(t)
	b := toolsBucket(t, te)
	ctx := context.Background()

	p, err := Install(ctx, te.Env, b, "foo")
	if err != nil {
		t.Fatal(err)
	}
	te.standard.failPreU = errors.New("hook failed")

	if err := p.Uninstall(ctx); err != nil {
		t.Fatalf("Uninstall() error = %v", err)
	}
	if dirExists(te.Layout.PkgPath("foo")) {
		t.Error("package folder still present")
	}
}

func TestLegacyDetection(t *testing.T) {
	t.Parallel()

	te := newTestEnv(t)
	b := toolsBucket(t, te)

	p, err := Install(context.Background(), te.Env, b, "old")
	if err != nil {
		t.Fatalf("Install(old) error = %v", err)
	}
	if !p.IsLegacy() || p.Type != runner.TypeLegacy || p.Version != LegacyVersion {
		t.Errorf("legacy package = %+v", p)
	}

	q, err := Install(context.Background(), te.Env, b, "foo")
	if err != nil {
		t.Fatal(err)
	}
	if q.IsLegacy() {
		t.Error("a package with a manifest must not be legacy")
	}
}

func TestPackageUpdate(t *testing.T) {
	t.Parallel()

	te := newTestEnv(t)
	b := toolsBucket(t, te)
	ctx := context.Background()

	p, err := Install(ctx, te.Env, b, "foo")
	if err != nil {
		t.Fatal(err)
	}

	updated, err := p.Update(ctx, b, false)
	if err != nil || updated {
		t.Fatalf("Update() same version = %v, %v; want false, nil", updated, err)
	}

	te.writeBucket(t, "acme_tools", map[string]string{
		"foo/mod.json": manifest("Foo Tool", "1.3.0"),
		"foo/new.lua":  "return 1",
	})
	os.Remove(filepath.Join(b.Path, "foo", "style.css"))

	updated, err = p.Update(ctx, b, false)
	if err != nil || !updated {
		t.Fatalf("Update() newer version = %v, %v; want true, nil", updated, err)
	}
	if p.Version != "1.3.0" {
		t.Errorf("Version = %q after update", p.Version)
	}
	dir := te.Layout.PkgPath("foo")
	if _, err := os.Stat(filepath.Join(dir, "new.lua")); err != nil {
		t.Errorf("new file missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "style.css")); !os.IsNotExist(err) {
		t.Error("file removed upstream survived the update")
	}

	te.writeBucket(t, "acme_tools", map[string]string{"foo/mod.json": manifest("Foo Tool", "1.0.0")})
	if updated, err := p.Update(ctx, b, false); err != nil || updated {
		t.Errorf("Update() older upstream = %v, %v", updated, err)
	}
	if updated, err := p.Update(ctx, b, true); err != nil || !updated || p.Version != "1.0.0" {
		t.Errorf("forced Update() = %v, %v, version %q", updated, err, p.Version)
	}

	p.Uninstall(ctx)
	if _, err := p.Update(ctx, b, true); !errors.Is(err, ErrNotInstalled) {
		t.Errorf("Update() of uninstalled package error = %v", err)
	}
}

func TestPackageUpdateKeepsInstallOnBadCopy(t *testing.T) {
	t.Parallel()

	te := newTestEnv(t)
	b := toolsBucket(t, te)
	ctx := context.Background()

	p, err := Install(ctx, te.Env, b, "foo")
	if err != nil {
		t.Fatal(err)
	}
	te.writeBucket(t, "acme_tools", map[string]string{"foo/mod.json": manifest("Foo Tool", "2.0.0")})

	// corrupt the upstream manifest after the bucket lookup accepted it
	te.standard.onPre = func(ic runner.InstallContext) {
		os.WriteFile(filepath.Join(ic.SourcePath, runner.ManifestFile), []byte(`{"name":`), 0644)
	}

	if updated, err := p.Update(ctx, b, false); err == nil || updated {
		t.Fatalf("Update() with unreadable copy = %v, %v; want error", updated, err)
	}
	if p.Version != "1.2.0" {
		t.Errorf("Version = %q after failed update", p.Version)
	}
	installed, err := readPackage(te.Env, te.Layout.PkgPath("foo"), "foo")
	if err != nil {
		t.Fatalf("install unreadable after failed update: %v", err)
	}
	if installed.Version != "1.2.0" {
		t.Errorf("installed version = %q, want 1.2.0", installed.Version)
	}
	entries, _ := os.ReadDir(te.Layout.Pkgs)
	for _, e := range entries {
		if e.Name() != "foo" {
			t.Errorf("leftover %s in packages folder", e.Name())
		}
	}
}

func TestLinkUnlink(t *testing.T) {
	t.Parallel()

	te := newTestEnv(t)
	b := toolsBucket(t, te)

	p, err := Install(context.Background(), te.Env, b, "foo")
	if err != nil {
		t.Fatal(err)
	}

	if err := p.Link(filepath.Join(t.TempDir(), "missing")); !errors.Is(err, ErrLinkTarget) {
		t.Errorf("Link(missing) error = %v", err)
	}

	work := t.TempDir()
	if err := p.Link(work); err != nil {
		t.Fatalf("Link() error = %v", err)
	}
	if p.RootDir() != work || p.Spec().Dir != work {
		t.Errorf("RootDir() = %q, want %q", p.RootDir(), work)
	}
	if got := te.Links.GetString("foo"); got != work {
		t.Errorf("link table = %q", got)
	}

	if err := p.Unlink(); err != nil {
		t.Fatalf("Unlink() error = %v", err)
	}
	if p.RootDir() != te.Layout.PkgPath("foo") {
		t.Errorf("RootDir() after unlink = %q", p.RootDir())
	}
	if got := te.Links.GetString("foo"); got != "" {
		t.Errorf("link table after unlink = %q", got)
	}
}
