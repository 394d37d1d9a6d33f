package modmgr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/egoavara/modmgr/internal/git"
	"github.com/egoavara/modmgr/internal/metrics"
	"github.com/egoavara/modmgr/internal/search"
	"github.com/egoavara/modmgr/internal/store"
)

// Registry is the catalog of loaded buckets and installed packages. Every
// mutation goes through its methods, and a catalog entry changes only after
// the matching disk operation succeeded.
type Registry struct {
	env *Env

	mu       sync.Mutex
	buckets  map[string]*Bucket
	packages map[string]*Package
	origins  *store.JSONFile
	order    *store.JSONFile
}

// UpdateResult is the outcome of updating one package in a batch.
type UpdateResult struct {
	Name    string
	Updated bool
	Err     error
}

// BucketResult is the outcome of updating one bucket in a batch.
type BucketResult struct {
	Name string
	Err  error
}

// OutdatedPackage is an install whose bucket copy is newer.
type OutdatedPackage struct {
	Name      string
	Bucket    string
	Installed string
	Available string
}

// NewRegistry creates the store directories and loads every bucket and
// installed package found on disk.
func NewRegistry(env *Env) (*Registry, error) {
	if err := env.Layout.Ensure(); err != nil {
		return nil, err
	}

	r := &Registry{
		env:      env,
		buckets:  make(map[string]*Bucket),
		packages: make(map[string]*Package),
		origins:  env.Layout.File(OriginsFile),
		order:    env.Layout.File(OrderFile),
	}
	r.scan()
	return r, nil
}

func (r *Registry) scan() {
	logger := r.env.logger("registry")

	if dirents, err := os.ReadDir(r.env.Layout.Buckets); err == nil {
		for _, d := range dirents {
			if !d.IsDir() || strings.HasPrefix(d.Name(), ".") {
				continue
			}
			b, err := LoadExisting(r.env, d.Name())
			if err != nil {
				logger.Warn("skipping bucket", "bucket", d.Name(), "err", err)
				continue
			}
			r.buckets[b.Name] = b
		}
	}

	links, err := r.env.links().Strings()
	if err != nil {
		logger.Warn("ignoring link table", "err", err)
	}

	dirents, err := os.ReadDir(r.env.Layout.Pkgs)
	if err != nil {
		return
	}
	for _, d := range dirents {
		if !d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			continue
		}
		p, err := readPackage(r.env, r.env.Layout.PkgPath(d.Name()), d.Name())
		if err != nil {
			logger.Warn("skipping installed package", "package", d.Name(), "err", err)
			continue
		}
		p.SourcePath = links[p.Name]
		if _, err := r.origins.Get(p.Name, &p.Origin); err != nil {
			logger.Warn("ignoring install record", "package", p.Name, "err", err)
		}
		r.packages[p.Name] = p
	}
}

// Buckets returns the loaded buckets in registration order.
func (r *Registry) Buckets() []*Bucket {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.orderedBuckets()
}

// orderedBuckets sorts by the sequence recorded when a bucket was added;
// buckets found on disk without a record come last, by name. Caller holds mu.
func (r *Registry) orderedBuckets() []*Bucket {
	seq := func(name string) int64 {
		var n int64
		if ok, err := r.order.Get(name, &n); err != nil || !ok {
			return 1<<62 - 1
		}
		return n
	}

	list := make([]*Bucket, 0, len(r.buckets))
	for _, b := range r.buckets {
		list = append(list, b)
	}
	sort.Slice(list, func(i, j int) bool {
		si, sj := seq(list[i].Name), seq(list[j].Name)
		if si != sj {
			return si < sj
		}
		return list[i].Name < list[j].Name
	})
	return list
}

// Packages returns the installed packages sorted by name.
func (r *Registry) Packages() []*Package {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := make([]*Package, 0, len(r.packages))
	for _, p := range r.packages {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

// Bucket returns a loaded bucket.
func (r *Registry) Bucket(name string) (*Bucket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.buckets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBucketNotFound, name)
	}
	return b, nil
}

// Package returns an installed package.
func (r *Registry) Package(name string) (*Package, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.packages[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotInstalled, name)
	}
	return p, nil
}

// AddBucket clones url and registers the bucket.
func (r *Registry) AddBucket(ctx context.Context, url string) (*Bucket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, err := r.addBucket(ctx, url)
	metrics.Observe(r.env.metrics().BucketOps, "add", err)
	return b, err
}

// addBucket clones and registers. Caller holds mu.
func (r *Registry) addBucket(ctx context.Context, url string) (*Bucket, error) {
	b, err := AddFromSourceURL(ctx, r.env, url)
	if err != nil {
		return nil, err
	}
	r.buckets[b.Name] = b
	if err := r.order.Set(b.Name, r.nextSeq()); err != nil {
		r.env.logger("registry").Warn("cannot record bucket order", "bucket", b.Name, "err", err)
	}
	return b, nil
}

func (r *Registry) nextSeq() int64 {
	var top int64
	keys, _ := r.order.Keys()
	for _, k := range keys {
		var n int64
		if ok, err := r.order.Get(k, &n); err == nil && ok && n > top {
			top = n
		}
	}
	return top + 1
}

// ensureBucket returns the bucket cloned from url, cloning it when needed.
// Caller holds mu.
func (r *Registry) ensureBucket(ctx context.Context, url string) (*Bucket, error) {
	name, err := git.BucketName(url)
	if err != nil {
		return nil, err
	}
	if b, ok := r.buckets[name]; ok {
		return b, nil
	}
	if dirExists(r.env.Layout.BucketPath(name)) {
		b, err := LoadExisting(r.env, name)
		if err != nil {
			return nil, err
		}
		r.buckets[name] = b
		return b, nil
	}
	return r.addBucket(ctx, url)
}

// RemoveBucket deletes a bucket. Installed packages stay installed.
func (r *Registry) RemoveBucket(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.removeBucket(name)
	metrics.Observe(r.env.metrics().BucketOps, "remove", err)
	return err
}

func (r *Registry) removeBucket(name string) error {
	b, ok := r.buckets[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrBucketNotFound, name)
	}
	if err := b.Remove(); err != nil {
		return err
	}
	delete(r.buckets, name)
	if err := r.order.Delete(name); err != nil {
		r.env.logger("registry").Warn("cannot drop bucket order", "bucket", name, "err", err)
	}
	return nil
}

// UpdateBucket pulls one bucket.
func (r *Registry) UpdateBucket(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.buckets[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrBucketNotFound, name)
	}
	err := b.Update(ctx)
	metrics.Observe(r.env.metrics().BucketOps, "update", err)
	return err
}

// UpdateAllBuckets pulls every bucket, continuing past failures.
func (r *Registry) UpdateAllBuckets(ctx context.Context) []BucketResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	var results []BucketResult
	for _, b := range r.orderedBuckets() {
		err := b.Update(ctx)
		metrics.Observe(r.env.metrics().BucketOps, "update", err)
		results = append(results, BucketResult{Name: b.Name, Err: err})
	}
	return results
}

// InstallPkg installs name. With a bucket, a remote pointer listed there is
// followed to its own bucket; otherwise the package is installed directly.
// Without a bucket, every bucket is tried in registration order.
func (r *Registry) InstallPkg(ctx context.Context, name, bucket string) (*Package, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.installPkg(ctx, name, bucket)
	metrics.Observe(r.env.metrics().PackageOps, "install", err)
	return p, err
}

func (r *Registry) installPkg(ctx context.Context, name, bucket string) (*Package, error) {
	if _, ok := r.packages[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, name)
	}

	if bucket != "" {
		b, ok := r.buckets[bucket]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrBucketNotFound, bucket)
		}
		return r.installFrom(ctx, b, name)
	}

	var lastErr error
	for _, b := range r.orderedBuckets() {
		p, err := r.installFrom(ctx, b, name)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, ErrPackageNotFound) {
			r.env.logger("registry").Warn("install attempt failed", "package", name, "bucket", b.Name, "err", err)
			lastErr = err
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, fmt.Errorf("%w: %s", ErrPackageNotFound, name)
}

// installFrom installs name from b, following a remote pointer. Caller holds mu.
func (r *Registry) installFrom(ctx context.Context, b *Bucket, name string) (*Package, error) {
	origin := Origin{Bucket: b.Name}
	src := b
	srcName := name

	if remote, ok := b.RemoteLink(name); ok {
		rb, err := r.ensureBucket(ctx, remote)
		if err != nil {
			return nil, err
		}
		src = rb
		if rb.Kind == KindPackage {
			srcName = rb.Name
		}
		origin = Origin{Bucket: rb.Name}
		if srcName != name {
			origin.Package = srcName
		}
	}

	p, err := installAs(ctx, r.env, src, srcName, name)
	if err != nil {
		return nil, err
	}

	origin.InstalledAt = time.Now().Format(time.RFC3339)
	p.Origin = origin
	if err := r.origins.Set(name, origin); err != nil {
		r.env.logger("registry").Warn("cannot record install origin", "package", name, "err", err)
	}
	r.packages[name] = p
	return p, nil
}

// UninstallPkg removes an installed package and its link.
func (r *Registry) UninstallPkg(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.uninstallPkg(ctx, name)
	if err == nil {
		if lerr := r.env.links().Delete(name); lerr != nil {
			r.env.logger("registry").Warn("cannot drop link", "package", name, "err", lerr)
		}
	}
	metrics.Observe(r.env.metrics().PackageOps, "uninstall", err)
	return err
}

func (r *Registry) uninstallPkg(ctx context.Context, name string) error {
	p, ok := r.packages[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotInstalled, name)
	}
	if err := p.Uninstall(ctx); err != nil {
		return err
	}
	delete(r.packages, name)
	if err := r.origins.Delete(name); err != nil {
		r.env.logger("registry").Warn("cannot drop install origin", "package", name, "err", err)
	}
	return nil
}

// ResetPkg uninstalls and reinstalls a package from the bucket it came from.
// A link survives the reset.
func (r *Registry) ResetPkg(ctx context.Context, name string) (*Package, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.resetPkg(ctx, name)
	metrics.Observe(r.env.metrics().PackageOps, "reset", err)
	return p, err
}

func (r *Registry) resetPkg(ctx context.Context, name string) (*Package, error) {
	p, ok := r.packages[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotInstalled, name)
	}
	origin := p.Origin
	link := p.SourcePath

	if err := r.uninstallPkg(ctx, name); err != nil {
		return nil, err
	}

	var np *Package
	var err error
	if b, ok := r.buckets[origin.Bucket]; ok {
		srcName := name
		if origin.Package != "" {
			srcName = origin.Package
		}
		np, err = installAs(ctx, r.env, b, srcName, name)
		if err == nil {
			origin.InstalledAt = time.Now().Format(time.RFC3339)
			np.Origin = origin
			if serr := r.origins.Set(name, origin); serr != nil {
				r.env.logger("registry").Warn("cannot record install origin", "package", name, "err", serr)
			}
			r.packages[name] = np
		}
	} else {
		np, err = r.installPkg(ctx, name, "")
	}
	if err != nil {
		return nil, err
	}
	np.SourcePath = link
	return np, nil
}

// UpdatePkg updates an installed package from its origin bucket. It reports
// false with a nil error when the bucket copy is not newer and force is unset.
func (r *Registry) UpdatePkg(ctx context.Context, name string, force bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	updated, err := r.updatePkg(ctx, name, force)
	metrics.Observe(r.env.metrics().PackageOps, "update", err)
	return updated, err
}

func (r *Registry) updatePkg(ctx context.Context, name string, force bool) (bool, error) {
	p, ok := r.packages[name]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrNotInstalled, name)
	}
	b, err := r.originBucket(p)
	if err != nil {
		return false, err
	}

	// update mutates a copy so a failure leaves the catalog entry untouched
	cp := *p
	updated, err := cp.Update(ctx, b, force)
	if err != nil || !updated {
		return false, err
	}
	r.packages[name] = &cp
	return true, nil
}

// originBucket resolves the bucket an install came from, falling back to the
// first bucket listing a package of the same name. Caller holds mu.
func (r *Registry) originBucket(p *Package) (*Bucket, error) {
	if b, ok := r.buckets[p.Origin.Bucket]; ok {
		return b, nil
	}
	for _, b := range r.orderedBuckets() {
		if _, err := b.lookup(p.upstreamName()); err == nil {
			return b, nil
		}
	}
	return nil, fmt.Errorf("%w: no bucket provides %s", ErrPackageNotFound, p.Name)
}

// UpdateAll updates every installed package, continuing past failures.
func (r *Registry) UpdateAll(ctx context.Context, force bool) []UpdateResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.packages))
	for name := range r.packages {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make([]UpdateResult, 0, len(names))
	for _, name := range names {
		updated, err := r.updatePkg(ctx, name, force)
		metrics.Observe(r.env.metrics().PackageOps, "update", err)
		if err != nil {
			r.env.logger("registry").Warn("update failed", "package", name, "err", err)
		}
		results = append(results, UpdateResult{Name: name, Updated: updated, Err: err})
	}
	return results
}

// Outdated lists installs whose origin bucket carries a newer version.
func (r *Registry) Outdated() []OutdatedPackage {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []OutdatedPackage
	for _, p := range r.packages {
		b, err := r.originBucket(p)
		if err != nil {
			continue
		}
		up, err := b.lookup(p.upstreamName())
		if err != nil {
			continue
		}
		if VersionDiff(p.Version, up.Version) > 0 {
			out = append(out, OutdatedPackage{
				Name:      p.Name,
				Bucket:    b.Name,
				Installed: p.Version,
				Available: up.Version,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Reset uninstalls every package and removes every bucket. Entries whose disk
// removal failed stay in the catalog and are reported together.
func (r *Registry) Reset(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errList []error
	for name := range r.packages {
		if err := r.uninstallPkg(ctx, name); err != nil {
			errList = append(errList, fmt.Errorf("uninstall %s: %w", name, err))
		}
	}
	for name := range r.buckets {
		if err := r.removeBucket(name); err != nil {
			errList = append(errList, fmt.Errorf("remove bucket %s: %w", name, err))
		}
	}
	if len(errList) == 0 {
		for _, f := range []*store.JSONFile{r.origins, r.order, r.env.links()} {
			if err := f.Clear(); err != nil {
				errList = append(errList, err)
			}
		}
	}
	return errors.Join(errList...)
}

// GetModName returns the display name declared by an installed package's
// manifest, or name itself.
func (r *Registry) GetModName(name string) string {
	r.mu.Lock()
	p, ok := r.packages[name]
	r.mu.Unlock()

	if !ok {
		return name
	}
	return ModName(p.RootDir(), name)
}

// Link points an installed package at a local working directory.
func (r *Registry) Link(name, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.packages[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotInstalled, name)
	}
	return p.Link(path)
}

// Unlink drops the local override of a package.
func (r *Registry) Unlink(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.packages[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotInstalled, name)
	}
	return p.Unlink()
}

// SearchEntries lists every bucket's packages, keyed by bucket.
func (r *Registry) SearchEntries() map[string][]search.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string][]search.Entry, len(r.buckets))
	for _, b := range r.buckets {
		for _, e := range b.entries {
			entry := search.Entry{Name: e.Name, Bucket: b.Name, Remote: e.Remote}
			if !e.IsRemote() {
				if p, err := readPackage(r.env, b.packageDir(e.Name), e.Name); err == nil {
					entry.Type = p.Type
					entry.Version = p.Version
					entry.Description = p.Description
				}
			}
			out[b.Name] = append(out[b.Name], entry)
		}
	}
	return out
}

// Search fuzzy-matches query against every bucket's packages.
func (r *Registry) Search(query string) []search.Result {
	return search.FuzzySearch(r.SearchEntries(), query)
}
