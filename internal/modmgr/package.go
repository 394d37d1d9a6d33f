package modmgr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/egoavara/modmgr/internal/runner"
)

// Package is a named, versioned mod. Packages read from a bucket describe the
// upstream copy; packages read from pkgs/ describe an install.
type Package struct {
	Name        string
	Type        string
	Version     string
	EntryPoint  string
	Description string
	Events      []string

	// Dir is the folder the descriptor was read from.
	Dir string
	// SourcePath is the linked working directory, if any.
	SourcePath string
	// Origin records which bucket an install came from.
	Origin Origin

	env *Env
}

// Origin is the persisted provenance of an install.
type Origin struct {
	Bucket string `json:"bucket"`
	// Package is the name inside Bucket when it differs from the install name.
	Package     string `json:"package,omitempty"`
	InstalledAt string `json:"installedAt,omitempty"`
}

// readPackage builds a descriptor for the folder at dir.
func readPackage(env *Env, dir, name string) (*Package, error) {
	if !dirExists(dir) {
		return nil, fmt.Errorf("%w: %s", ErrPackageMissing, dir)
	}

	p := &Package{Name: name, Dir: dir, env: env}
	detected, ok := env.types().Detect(dir)
	if (ok && detected.Name() == runner.TypeLegacy) || (!ok && runner.IsLegacyLayout(dir)) {
		p.Type = runner.TypeLegacy
		p.Version = LegacyVersion
		return p, nil
	}

	m, err := LoadManifest(dir)
	if err != nil {
		return nil, err
	}
	if ok && detected.Name() != m.Type {
		env.logger("package").Warn("declared type does not match layout", "package", name, "type", m.Type, "layout", detected.Name())
	}
	p.Type = m.Type
	p.Version = m.Version
	p.EntryPoint = m.EntryPoint
	p.Description = m.Description
	p.Events = m.Events
	return p, nil
}

// Install copies the package listed under name in bucket into pkgs/name.
func Install(ctx context.Context, env *Env, bucket *Bucket, name string) (*Package, error) {
	return installAs(ctx, env, bucket, name, name)
}

// installAs installs the bucket package srcName under the name dest. On any
// failure the target folder is removed.
func installAs(ctx context.Context, env *Env, bucket *Bucket, srcName, dest string) (*Package, error) {
	if env.reserved(dest) {
		return nil, fmt.Errorf("%w: %q", ErrReservedName, dest)
	}

	src, err := bucket.lookup(srcName)
	if err != nil {
		return nil, err
	}

	target := env.Layout.PkgPath(dest)
	if _, err := os.Stat(target); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, dest)
	}

	if err := copyWithHooks(ctx, env, src, dest, target); err != nil {
		os.RemoveAll(target)
		return nil, err
	}

	p, err := readPackage(env, target, dest)
	if err != nil {
		os.RemoveAll(target)
		return nil, err
	}
	return p, nil
}

// copyWithHooks runs preInstall, copies src.Dir to dir and runs postInstall.
// Hooks always see the final install path of dest.
func copyWithHooks(ctx context.Context, env *Env, src *Package, dest, dir string) error {
	t, err := env.types().Get(src.Type)
	if err != nil {
		return err
	}

	ic := runner.InstallContext{
		Name:          dest,
		SourcePath:    src.Dir,
		InstallPath:   env.Layout.PkgPath(dest),
		ThirdPartyDir: env.Layout.ThirdParty,
	}

	if err := t.PreInstall(ctx, ic); err != nil {
		return fmt.Errorf("pre-install %s: %w", dest, err)
	}
	if err := copyDir(src.Dir, dir); err != nil {
		return fmt.Errorf("copy %s: %w", dest, err)
	}
	if err := t.PostInstall(ctx, ic); err != nil {
		return fmt.Errorf("post-install %s: %w", dest, err)
	}
	return nil
}

// upstreamName is the name of this install inside its origin bucket.
func (p *Package) upstreamName() string {
	if p.Origin.Package != "" {
		return p.Origin.Package
	}
	return p.Name
}

// Update replaces the install with the bucket copy when the bucket version is
// newer, or unconditionally with force. It reports false with a nil error when
// there was nothing newer to install.
func (p *Package) Update(ctx context.Context, bucket *Bucket, force bool) (bool, error) {
	target := p.env.Layout.PkgPath(p.Name)
	if !dirExists(target) {
		return false, fmt.Errorf("%w: %s", ErrNotInstalled, p.Name)
	}

	upstream, err := bucket.lookup(p.upstreamName())
	if err != nil {
		return false, err
	}

	if VersionDiff(p.Version, upstream.Version) <= 0 && !force {
		return false, nil
	}

	staging, err := os.MkdirTemp(p.env.Layout.Pkgs, "."+p.Name+"-update-")
	if err != nil {
		return false, err
	}
	defer os.RemoveAll(staging)

	if err := copyWithHooks(ctx, p.env, upstream, p.Name, staging); err != nil {
		return false, err
	}
	// the staged copy must read back before the live install is touched
	fresh, err := readPackage(p.env, staging, p.Name)
	if err != nil {
		return false, fmt.Errorf("staged update of %s: %w", p.Name, err)
	}

	// swap: target -> backup, staging -> target
	backup := staging + ".old"
	if err := os.Rename(target, backup); err != nil {
		return false, err
	}
	if err := os.Rename(staging, target); err != nil {
		os.Rename(backup, target)
		return false, err
	}
	os.RemoveAll(backup)

	fresh.Dir = target
	fresh.SourcePath = p.SourcePath
	fresh.Origin = p.Origin
	*p = *fresh
	return true, nil
}

// Uninstall removes the install folder. Hook failures are logged and the
// folder is still removed.
func (p *Package) Uninstall(ctx context.Context) error {
	logger := p.env.logger("package")

	target := p.env.Layout.PkgPath(p.Name)
	if !dirExists(target) {
		return fmt.Errorf("%w: %s", ErrNotInstalled, p.Name)
	}

	ic := runner.InstallContext{
		Name:          p.Name,
		InstallPath:   target,
		ThirdPartyDir: p.env.Layout.ThirdParty,
	}

	t, err := p.env.types().Get(p.Type)
	if err != nil {
		logger.Warn("no hooks for package type", "package", p.Name, "type", p.Type, "err", err)
		t = nil
	}

	if t != nil {
		if err := t.PreUninstall(ctx, ic); err != nil {
			logger.Warn("pre-uninstall hook failed", "package", p.Name, "err", err)
		}
	}
	if err := os.RemoveAll(target); err != nil {
		return err
	}
	if t != nil {
		if err := t.PostUninstall(ctx, ic); err != nil {
			logger.Warn("post-uninstall hook failed", "package", p.Name, "err", err)
		}
	}
	return nil
}

// Link points the package at a local working directory.
func (p *Package) Link(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if !dirExists(abs) {
		return fmt.Errorf("%w: %s", ErrLinkTarget, abs)
	}
	if err := p.env.links().Set(p.Name, abs); err != nil {
		return err
	}
	p.SourcePath = abs
	return nil
}

// Unlink drops the local override.
func (p *Package) Unlink() error {
	if err := p.env.links().Delete(p.Name); err != nil {
		return err
	}
	p.SourcePath = ""
	return nil
}

// IsLegacy reports whether the package is a v1 package.
func (p *Package) IsLegacy() bool {
	return p.Type == runner.TypeLegacy
}

// RootDir is the folder the package runs from: the link target when linked.
func (p *Package) RootDir() string {
	if p.SourcePath != "" {
		return p.SourcePath
	}
	return p.Dir
}

// Spec describes the package for the runner.
func (p *Package) Spec() runner.Spec {
	return runner.Spec{
		Name:       p.Name,
		Type:       p.Type,
		Version:    p.Version,
		Dir:        p.RootDir(),
		EntryPoint: p.EntryPoint,
		Events:     p.Events,
	}
}
