package discovery

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/egoavara/modmgr/internal/errs"
)

// ManifestFile describes a downloaded plugin.
const ManifestFile = "plugin.json"

// Plugin types.
const (
	TypeStandard       = "standard"
	TypeExternalScript = "external-script"
)

var (
	// ErrManifestNotFound is returned when a folder has no plugin.json.
	ErrManifestNotFound = fmt.Errorf("%w: %s", errs.ErrNotFound, ManifestFile)
	// ErrInvalidManifest is returned for malformed or incomplete manifests.
	ErrInvalidManifest = fmt.Errorf("%w: %s", errs.ErrInvalidInput, ManifestFile)
)

// Manifest is the content of plugin.json.
type Manifest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	// Type defaults to standard.
	Type string `json:"type,omitempty"`
	// PythonEnv names the interpreter environment of external-script plugins.
	PythonEnv string `json:"pythonEnv,omitempty"`
	// On lists host event types the plugin listens to.
	On []string `json:"on,omitempty"`
}

// ParseManifest decodes and validates manifest data.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	if m.Type == "" {
		m.Type = TypeStandard
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	return &m, nil
}

func (m *Manifest) validate() error {
	switch {
	case m.ID == "":
		return fmt.Errorf("missing id")
	case strings.ContainsAny(m.ID, `/\`) || m.ID == "." || m.ID == "..":
		return fmt.Errorf("invalid id %q", m.ID)
	case m.Name == "":
		return fmt.Errorf("missing name")
	case m.Type != TypeStandard && m.Type != TypeExternalScript:
		return fmt.Errorf("unknown type %q", m.Type)
	}
	return nil
}

// LoadManifest reads dir/plugin.json.
func LoadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrManifestNotFound, dir)
		}
		return nil, err
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", dir, err)
	}
	return m, nil
}

// EntryFiles are the accepted entry names, in lookup order.
var EntryFiles = []string{"main.lua", "index.lua", "main.py"}

// entryFor returns the entry file name of a plugin type among names.
func entryFor(typ string, has func(name string) bool) (string, bool) {
	for _, name := range EntryFiles {
		isScript := strings.HasSuffix(name, ".py")
		if isScript != (typ == TypeExternalScript) {
			continue
		}
		if has(name) {
			return name, true
		}
	}
	return "", false
}
