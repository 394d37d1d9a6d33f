// Package discovery finds downloaded and built-in plugins and installs
// plugins distributed as zip archives.
package discovery

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/egoavara/modmgr/internal/errs"
	"github.com/egoavara/modmgr/internal/executor"
	"github.com/egoavara/modmgr/internal/logging"
	"github.com/egoavara/modmgr/internal/store"
)

// ErrPluginNotFound is returned for an unknown plugin id.
var ErrPluginNotFound = fmt.Errorf("%w: plugin", errs.ErrNotFound)

// Info describes one discovered plugin.
type Info struct {
	ID          string
	Name        string
	Description string
	Type        string
	Path        string
	Entry       string // absolute path of the entry file
	Manifest    *Manifest
	Builtin     bool
}

// Plugin returns the executor descriptor of an in-process plugin.
func (i Info) Plugin() executor.Plugin {
	p := executor.Plugin{ID: i.ID, Name: i.Name, Dir: i.Path, Entry: i.Entry}
	if i.Manifest != nil {
		p.Events = append([]string(nil), i.Manifest.On...)
	}
	return p
}

// Catalog scans the plugin folders.
type Catalog struct {
	dir        string
	builtinDir string
	hidden     *store.JSONFile
	log        *log.Logger
}

// New returns a catalog of the plugins under dir and builtinDir. Hidden
// built-in ids are kept in hidden. builtinDir may be empty.
func New(dir, builtinDir string, hidden *store.JSONFile, logger *log.Logger) *Catalog {
	return &Catalog{
		dir:        dir,
		builtinDir: builtinDir,
		hidden:     hidden,
		log:        logging.Or(logger).WithPrefix("discovery"),
	}
}

// Dir returns the folder downloaded plugins live in.
func (c *Catalog) Dir() string { return c.dir }

// Discover lists visible plugins sorted by name. Built-in plugins win over
// downloaded ones with the same id. Folders with a broken manifest or no
// entry file are logged and skipped.
func (c *Catalog) Discover() ([]Info, error) {
	seen := make(map[string]bool)
	var out []Info

	for _, src := range []struct {
		dir     string
		builtin bool
	}{{c.builtinDir, true}, {c.dir, false}} {
		if src.dir == "" {
			continue
		}
		found, err := c.scan(src.dir, src.builtin)
		if err != nil {
			return nil, err
		}
		for _, info := range found {
			if seen[info.ID] {
				c.log.Warn("duplicate plugin id ignored", "id", info.ID, "path", info.Path)
				continue
			}
			seen[info.ID] = true
			if info.Builtin && c.isHidden(info.ID) {
				continue
			}
			out = append(out, info)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (c *Catalog) scan(dir string, builtin bool) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []Info
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		info, err := Read(path)
		if err != nil {
			c.log.Warn("skipping plugin folder", "path", path, "err", err)
			continue
		}
		info.Builtin = builtin
		out = append(out, info)
	}
	return out, nil
}

// Read describes the plugin in dir.
func Read(dir string) (Info, error) {
	m, err := LoadManifest(dir)
	if err != nil {
		return Info{}, err
	}
	entry, ok := entryFor(m.Type, func(name string) bool {
		st, err := os.Stat(filepath.Join(dir, name))
		return err == nil && !st.IsDir()
	})
	if !ok {
		return Info{}, fmt.Errorf("%w: no entry file for %s plugin in %s", ErrInvalidManifest, m.Type, dir)
	}
	return Info{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		Type:        m.Type,
		Path:        dir,
		Entry:       filepath.Join(dir, entry),
		Manifest:    m,
	}, nil
}

// Find returns the visible plugin with id.
func (c *Catalog) Find(id string) (Info, error) {
	all, err := c.Discover()
	if err != nil {
		return Info{}, err
	}
	for _, info := range all {
		if info.ID == id {
			return info, nil
		}
	}
	return Info{}, fmt.Errorf("%w: %s", ErrPluginNotFound, id)
}

// Remove hides a built-in plugin and deletes a downloaded one.
func (c *Catalog) Remove(id string) error {
	info, err := c.Find(id)
	if err != nil {
		return err
	}
	if info.Builtin {
		c.log.Info("hiding built-in plugin", "id", id)
		return c.hidden.Set(id, true)
	}
	c.log.Info("deleting plugin", "id", id, "path", info.Path)
	return os.RemoveAll(info.Path)
}

// Unhide makes a hidden built-in plugin visible again.
func (c *Catalog) Unhide(id string) error {
	return c.hidden.Delete(id)
}

// Hidden returns the hidden built-in ids, sorted.
func (c *Catalog) Hidden() ([]string, error) {
	if c.hidden == nil {
		return nil, nil
	}
	return c.hidden.Keys()
}

func (c *Catalog) isHidden(id string) bool {
	if c.hidden == nil {
		return false
	}
	var hidden bool
	ok, err := c.hidden.Get(id, &hidden)
	return err == nil && ok && hidden
}
