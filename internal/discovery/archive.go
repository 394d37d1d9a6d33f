package discovery

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/egoavara/modmgr/internal/errs"
)

// ErrInvalidArchive is returned for archives without a manifest and entry file.
var ErrInvalidArchive = fmt.Errorf("%w: plugin archive", errs.ErrInvalidInput)

// ErrUnsafeArchive is returned for entries that would escape the target folder.
var ErrUnsafeArchive = fmt.Errorf("%w: archive entry escapes target", errs.ErrSecurityViolation)

// ArchiveLayout is what validation found in an archive.
type ArchiveLayout struct {
	// Prefix is "" for a flat archive or "<dir>/" when everything sits in one
	// top-level folder.
	Prefix   string
	Manifest *Manifest
	Entry    string
}

// ValidateArchive lists the archive and checks for plugin.json plus an entry
// file at the root or inside a single top-level folder. Nothing is extracted.
func ValidateArchive(zipPath string) (*ArchiveLayout, error) {
	r, err := zip.OpenReader(zipPath)
	if errors.Is(err, zip.ErrInsecurePath) {
		if r != nil {
			r.Close()
		}
		return nil, fmt.Errorf("%w: %v", ErrUnsafeArchive, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}
	defer r.Close()

	files := make(map[string]*zip.File)
	tops := make(map[string]bool)
	for _, f := range r.File {
		name := strings.TrimPrefix(f.Name, "./")
		if name == "" {
			continue
		}
		if !filepath.IsLocal(filepath.FromSlash(strings.TrimSuffix(name, "/"))) {
			return nil, fmt.Errorf("%w: %s", ErrUnsafeArchive, f.Name)
		}
		files[name] = f
		top, _, _ := strings.Cut(name, "/")
		tops[top] = true
	}

	prefixes := []string{""}
	if len(tops) == 1 {
		for top := range tops {
			prefixes = append(prefixes, top+"/")
		}
	}

	for _, prefix := range prefixes {
		mf, ok := files[prefix+ManifestFile]
		if !ok {
			continue
		}
		m, err := readManifest(mf)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
		}
		entry, ok := entryFor(m.Type, func(name string) bool {
			f, ok := files[prefix+name]
			return ok && !f.FileInfo().IsDir()
		})
		if !ok {
			return nil, fmt.Errorf("%w: no entry file", ErrInvalidArchive)
		}
		return &ArchiveLayout{Prefix: prefix, Manifest: m, Entry: entry}, nil
	}
	return nil, fmt.Errorf("%w: no %s", ErrInvalidArchive, ManifestFile)
}

func readManifest(f *zip.File) (*Manifest, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, 1<<20))
	if err != nil {
		return nil, err
	}
	return ParseManifest(data)
}

// InstallArchive validates zipPath and extracts it to <plugins>/<id>,
// replacing an earlier copy. Invalid archives are deleted.
func (c *Catalog) InstallArchive(zipPath string) (Info, error) {
	layout, err := ValidateArchive(zipPath)
	if err != nil {
		c.log.Warn("deleting invalid plugin archive", "path", zipPath, "err", err)
		if rmErr := os.Remove(zipPath); rmErr != nil && !os.IsNotExist(rmErr) {
			c.log.Error("removing archive", "path", zipPath, "err", rmErr)
		}
		return Info{}, err
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return Info{}, err
	}
	staging, err := os.MkdirTemp(c.dir, "."+layout.Manifest.ID+"-")
	if err != nil {
		return Info{}, err
	}
	defer os.RemoveAll(staging)

	if err := extract(zipPath, layout.Prefix, staging); err != nil {
		return Info{}, err
	}

	target := filepath.Join(c.dir, layout.Manifest.ID)
	if err := os.RemoveAll(target); err != nil {
		return Info{}, err
	}
	if err := os.Rename(staging, target); err != nil {
		return Info{}, err
	}
	c.log.Info("plugin installed", "id", layout.Manifest.ID, "path", target)
	return Read(target)
}

// extract writes the entries under prefix into dst.
func extract(zipPath, prefix, dst string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return err
	}
	defer r.Close()

	root := filepath.Clean(dst) + string(filepath.Separator)
	for _, f := range r.File {
		name := strings.TrimPrefix(f.Name, "./")
		rel, ok := strings.CutPrefix(name, prefix)
		if !ok || rel == "" {
			continue
		}
		target := filepath.Join(dst, filepath.FromSlash(path.Clean(rel)))
		if !strings.HasPrefix(target+string(filepath.Separator), root) {
			return fmt.Errorf("%w: %s", ErrUnsafeArchive, f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if !f.Mode().IsRegular() {
			continue
		}
		if err := writeFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, f.Mode().Perm()|0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
