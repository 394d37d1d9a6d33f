// Package store owns the on-disk repository root and small persistent JSON files.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Layout is the on-disk root with its well-known subdirectories.
type Layout struct {
	Base       string
	Buckets    string
	Pkgs       string
	ThirdParty string
	Downloads  string
	Plugins    string

	ensureOnce sync.Once
	ensureErr  error
}

// NewLayout describes the standard layout under base. thirdParty is the name of
// the shared dependency folder.
func NewLayout(base, thirdParty string) *Layout {
	return &Layout{
		Base:       base,
		Buckets:    filepath.Join(base, "buckets"),
		Pkgs:       filepath.Join(base, "pkgs"),
		ThirdParty: filepath.Join(base, thirdParty),
		Downloads:  filepath.Join(base, "downloads"),
		Plugins:    filepath.Join(base, "plugins"),
	}
}

// Ensure creates every directory of the layout. It runs once per Layout; later
// calls return the first result.
func (l *Layout) Ensure() error {
	l.ensureOnce.Do(func() {
		for _, dir := range []string{l.Base, l.Buckets, l.Pkgs, l.ThirdParty, l.Downloads, l.Plugins} {
			if err := os.MkdirAll(dir, 0755); err != nil {
				l.ensureErr = fmt.Errorf("create %s: %w", dir, err)
				return
			}
		}
	})
	return l.ensureErr
}

// BucketPath returns the folder of a bucket.
func (l *Layout) BucketPath(name string) string {
	return filepath.Join(l.Buckets, name)
}

// PkgPath returns the install folder of a package.
func (l *Layout) PkgPath(name string) string {
	return filepath.Join(l.Pkgs, name)
}

// File returns a JSON file stored directly under the base directory.
func (l *Layout) File(name string) *JSONFile {
	return NewJSONFile(filepath.Join(l.Base, name))
}
