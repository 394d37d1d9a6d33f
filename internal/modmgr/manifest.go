package modmgr

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/egoavara/modmgr/internal/errs"
	"github.com/egoavara/modmgr/internal/runner"
)

// IndexFile lists the packages of a bucket-kind bucket.
const IndexFile = "mods.json"

// LegacyVersion is reported for packages without a manifest.
const LegacyVersion = "0.0.0"

var (
	// ErrManifestNotFound is returned when a folder has no mod.json.
	ErrManifestNotFound = fmt.Errorf("%w: %s", errs.ErrNotFound, runner.ManifestFile)
	// ErrInvalidManifest is returned for malformed JSON or missing required fields.
	ErrInvalidManifest = fmt.Errorf("%w: manifest", errs.ErrInvalidInput)
	// ErrInvalidIndex is returned for a malformed mods.json.
	ErrInvalidIndex = fmt.Errorf("%w: %s", errs.ErrInvalidInput, IndexFile)
)

// Manifest is the content of mod.json.
type Manifest struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Version     string `json:"version"`
	EntryPoint  string `json:"entryPoint,omitempty"`
	Description string `json:"description,omitempty"`
	// Events lists the host events the mod wants, by event name.
	Events []string `json:"on,omitempty"`
}

// LoadManifest reads and validates dir/mod.json.
func LoadManifest(dir string) (*Manifest, error) {
	path := filepath.Join(dir, runner.ManifestFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrManifestNotFound, dir)
		}
		return nil, err
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidManifest, path, err)
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidManifest, path, err)
	}
	return &m, nil
}

func (m *Manifest) validate() error {
	var missing []string
	if m.Type == "" {
		missing = append(missing, "type")
	}
	if m.Version == "" {
		missing = append(missing, "version")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}
	if m.Type == runner.TypeLegacy {
		return fmt.Errorf("type %q cannot declare a manifest", runner.TypeLegacy)
	}
	return nil
}

// IndexEntry is one element of mods.json: a bare name, or a remote pointer.
type IndexEntry struct {
	Name   string `json:"name"`
	Remote string `json:"remote,omitempty"`
}

// IsRemote reports whether the entry points at another repository.
func (e IndexEntry) IsRemote() bool {
	return e.Remote != ""
}

// UnmarshalJSON accepts either "name" or {"name": ..., "remote": ...}.
func (e *IndexEntry) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*e = IndexEntry{Name: name}
		return e.check()
	}

	type plain IndexEntry
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*e = IndexEntry(p)
	return e.check()
}

// MarshalJSON writes local entries back as bare names.
func (e IndexEntry) MarshalJSON() ([]byte, error) {
	if !e.IsRemote() {
		return json.Marshal(e.Name)
	}
	type plain IndexEntry
	return json.Marshal(plain(e))
}

func (e *IndexEntry) check() error {
	if strings.TrimSpace(e.Name) == "" {
		return fmt.Errorf("index entry without a name")
	}
	return nil
}

// LoadIndex reads dir/mods.json. A missing file yields ErrNotFound.
func LoadIndex(dir string) ([]IndexEntry, error) {
	path := filepath.Join(dir, IndexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", errs.ErrNotFound, path)
		}
		return nil, err
	}

	var entries []IndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidIndex, path, err)
	}
	return entries, nil
}

// ModName returns the display name declared in dir/mod.json, or fallback when
// the manifest is absent, unreadable or has no name.
func ModName(dir, fallback string) string {
	data, err := os.ReadFile(filepath.Join(dir, runner.ManifestFile))
	if err != nil {
		return fallback
	}
	var m struct {
		Name string `json:"name"`
	}
	if json.Unmarshal(data, &m) != nil || strings.TrimSpace(m.Name) == "" {
		return fallback
	}
	return m.Name
}
