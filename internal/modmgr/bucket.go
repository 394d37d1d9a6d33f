package modmgr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/egoavara/modmgr/internal/errs"
	"github.com/egoavara/modmgr/internal/git"
	"github.com/egoavara/modmgr/internal/runner"
)

// Kind tells how a bucket holds its packages.
type Kind string

const (
	// KindBucket holds several packages, listed by mods.json or by subdirectory.
	KindBucket Kind = "bucket"
	// KindPackage is itself a single package rooted at the bucket folder.
	KindPackage Kind = "package"
)

// Bucket is a cloned repository providing packages.
type Bucket struct {
	Name      string
	Kind      Kind
	Path      string
	SourceURL string

	entries []IndexEntry
	env     *Env
}

// AddFromSourceURL clones url into buckets/{owner}_{repo} and classifies it.
func AddFromSourceURL(ctx context.Context, env *Env, url string) (*Bucket, error) {
	name, err := git.BucketName(url)
	if err != nil {
		return nil, err
	}

	path := env.Layout.BucketPath(name)
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateBucket, name)
	}

	if err := env.Git.Clone(ctx, url, path); err != nil {
		os.RemoveAll(path)
		return nil, err
	}

	b, err := LoadExisting(env, name)
	if err != nil {
		return nil, err
	}
	b.SourceURL = url
	return b, nil
}

// LoadExisting reads a bucket folder that is already on disk. A malformed
// mods.json is logged and yields an empty package list.
func LoadExisting(env *Env, folder string) (*Bucket, error) {
	path := env.Layout.BucketPath(folder)
	if !dirExists(path) {
		return nil, fmt.Errorf("%w: %s", ErrBucketNotFound, folder)
	}

	b := &Bucket{Name: folder, Path: path, env: env}
	b.classify()

	if url, err := git.OriginURL(path); err == nil {
		b.SourceURL = url
	}
	return b, nil
}

// classify derives kind and package list from disk.
func (b *Bucket) classify() {
	logger := b.env.logger("bucket")
	b.entries = nil

	if runner.HasManifest(b.Path) || b.env.types().IsLegacy(b.Path) {
		b.Kind = KindPackage
		b.entries = []IndexEntry{{Name: b.Name}}
		return
	}

	b.Kind = KindBucket
	entries, err := LoadIndex(b.Path)
	switch {
	case err == nil:
		b.entries = entries
		return
	case errors.Is(err, errs.ErrNotFound):
		// no index; fall through to the subdirectory scan
	default:
		logger.Warn("ignoring malformed index", "bucket", b.Name, "err", err)
		return
	}

	dirents, err := os.ReadDir(b.Path)
	if err != nil {
		logger.Warn("cannot list bucket", "bucket", b.Name, "err", err)
		return
	}
	thirdParty := filepath.Base(b.env.Layout.ThirdParty)
	for _, d := range dirents {
		name := d.Name()
		if !d.IsDir() || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || name == thirdParty {
			continue
		}
		b.entries = append(b.entries, IndexEntry{Name: name})
	}
}

// PackageNames returns the listed package names, remote pointers included.
func (b *Bucket) PackageNames() []string {
	names := make([]string, 0, len(b.entries))
	for _, e := range b.entries {
		names = append(names, e.Name)
	}
	return names
}

// Entries returns a copy of the package list.
func (b *Bucket) Entries() []IndexEntry {
	return append([]IndexEntry(nil), b.entries...)
}

// Update pulls the latest commit and re-reads the package list. Nothing to
// pull is a success.
func (b *Bucket) Update(ctx context.Context) error {
	if !b.env.Git.IsGitRepository(b.Path) {
		return fmt.Errorf("%w: %s", ErrNotRepository, b.Path)
	}
	if err := b.env.Git.Pull(ctx, b.Path); err != nil {
		return err
	}
	b.classify()
	return nil
}

// Remove deletes the bucket folder.
func (b *Bucket) Remove() error {
	if !dirExists(b.Path) {
		return fmt.Errorf("%w: %s", ErrBucketNotFound, b.Name)
	}
	return os.RemoveAll(b.Path)
}

// RemoteLink returns the external URL of a listed remote pointer.
func (b *Bucket) RemoteLink(name string) (string, bool) {
	for _, e := range b.entries {
		if e.Name == name && e.IsRemote() {
			return e.Remote, true
		}
	}
	return "", false
}

// packageDir is where the content of a listed package lives in this bucket.
func (b *Bucket) packageDir(name string) string {
	if b.Kind == KindPackage {
		return b.Path
	}
	return filepath.Join(b.Path, name)
}

// lookup returns the local package listed under exactly name.
func (b *Bucket) lookup(name string) (*Package, error) {
	for _, e := range b.entries {
		if e.Name != name || e.IsRemote() {
			continue
		}
		return readPackage(b.env, b.packageDir(name), name)
	}
	return nil, fmt.Errorf("%w: %s in bucket %s", ErrPackageNotFound, name, b.Name)
}

// GetPackage resolves listed local packages matching name. An exact match wins;
// otherwise every entry containing name matches. With singleOnly the first match
// is returned alone. Entries missing on disk are logged and skipped.
func (b *Bucket) GetPackage(name string, singleOnly bool) ([]*Package, error) {
	logger := b.env.logger("bucket")

	if p, err := b.lookup(name); err == nil {
		return []*Package{p}, nil
	} else if !errors.Is(err, ErrPackageNotFound) {
		logger.Warn("skipping unreadable package", "bucket", b.Name, "package", name, "err", err)
	}

	needle := strings.ToLower(name)
	var found []*Package
	for _, e := range b.entries {
		if e.IsRemote() || e.Name == name || !strings.Contains(strings.ToLower(e.Name), needle) {
			continue
		}
		p, err := readPackage(b.env, b.packageDir(e.Name), e.Name)
		if err != nil {
			logger.Warn("skipping listed package", "bucket", b.Name, "package", e.Name, "err", err)
			continue
		}
		found = append(found, p)
		if singleOnly {
			break
		}
	}

	if len(found) == 0 {
		return nil, fmt.Errorf("%w: %s in bucket %s", ErrPackageNotFound, name, b.Name)
	}
	sort.Slice(found, func(i, j int) bool { return found[i].Name < found[j].Name })
	return found, nil
}
