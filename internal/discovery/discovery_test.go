package discovery

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/egoavara/modmgr/internal/errs"
	"github.com/egoavara/modmgr/internal/logging"
	"github.com/egoavara/modmgr/internal/store"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func writeZip(t *testing.T, files map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plugin.zip")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func newCatalog(t *testing.T) (*Catalog, string, string) {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "plugins")
	builtin := filepath.Join(root, "builtin")
	hidden := store.NewJSONFile(filepath.Join(root, "hidden.json"))
	return New(dir, builtin, hidden, logging.Discard()), dir, builtin
}

func TestParseManifest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		data     string
		wantType string
		wantErr  bool
	}{
		{"defaults to standard", `{"id":"a","name":"A"}`, TypeStandard, false},
		{"script", `{"id":"a","name":"A","type":"external-script","pythonEnv":"py311","on":["libraryChanged"]}`, TypeExternalScript, false},
		{"missing id", `{"name":"A"}`, "", true},
		{"missing name", `{"id":"a"}`, "", true},
		{"path in id", `{"id":"../a","name":"A"}`, "", true},
		{"unknown type", `{"id":"a","name":"A","type":"v1"}`, "", true},
		{"not json", `{`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m, err := ParseManifest([]byte(tt.data))
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidManifest) || !errors.Is(err, errs.ErrInvalidInput) {
					t.Errorf("ParseManifest() error = %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if m.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", m.Type, tt.wantType)
			}
		})
	}
}

func TestDiscover(t *testing.T) {
	t.Parallel()

	c, dir, builtin := newCatalog(t)
	writeFiles(t, builtin, map[string]string{
		"clock/plugin.json": `{"id":"clock","name":"Clock"}`,
		"clock/main.lua":    "",
		"notes/plugin.json": `{"id":"notes","name":"Notes"}`,
		"notes/index.lua":   "",
	})
	writeFiles(t, dir, map[string]string{
		"resize/plugin.json":   `{"id":"resize","name":"Batch Resize","type":"external-script"}`,
		"resize/main.py":       "",
		"dup/plugin.json":      `{"id":"clock","name":"Fake Clock"}`,
		"dup/main.lua":         "",
		"broken/plugin.json":   `{`,
		"noentry/plugin.json":  `{"id":"noentry","name":"No Entry","type":"external-script"}`,
		"noentry/main.lua":     "",
		".staging/plugin.json": `{"id":"tmp","name":"Tmp"}`,
	})

	got, err := c.Discover()
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, info := range got {
		ids = append(ids, info.ID)
	}
	want := []string{"resize", "clock", "notes"}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids = %v, want %v", ids, want)
		}
	}
	if !got[1].Builtin || got[1].Name != "Clock" {
		t.Errorf("clock = %+v", got[1])
	}
	if got[0].Entry != filepath.Join(dir, "resize", "main.py") {
		t.Errorf("resize entry = %q", got[0].Entry)
	}
	if p := got[2].Plugin(); p.Entry != filepath.Join(builtin, "notes", "index.lua") || p.ID != "notes" {
		t.Errorf("notes plugin = %+v", p)
	}
}

func TestRemoveHidesBuiltinDeletesDownloaded(t *testing.T) {
	t.Parallel()

	c, dir, builtin := newCatalog(t)
	writeFiles(t, builtin, map[string]string{
		"clock/plugin.json": `{"id":"clock","name":"Clock"}`,
		"clock/main.lua":    "",
	})
	writeFiles(t, dir, map[string]string{
		"resize/plugin.json": `{"id":"resize","name":"Resize"}`,
		"resize/main.lua":    "",
	})

	if err := c.Remove("clock"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(builtin, "clock")); err != nil {
		t.Error("built-in plugin deleted")
	}
	if _, err := c.Find("clock"); !errors.Is(err, ErrPluginNotFound) {
		t.Errorf("hidden plugin still visible: %v", err)
	}
	if hidden, _ := c.Hidden(); len(hidden) != 1 || hidden[0] != "clock" {
		t.Errorf("Hidden() = %v", hidden)
	}

	if err := c.Remove("resize"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "resize")); !os.IsNotExist(err) {
		t.Error("downloaded plugin not deleted")
	}

	if err := c.Unhide("clock"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Find("clock"); err != nil {
		t.Errorf("unhidden plugin: %v", err)
	}
	if err := c.Remove("nope"); !errors.Is(err, ErrPluginNotFound) {
		t.Errorf("Remove(nope) = %v", err)
	}
}

func TestValidateArchive(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		files      map[string]string
		wantPrefix string
		wantEntry  string
		wantErr    bool
	}{
		{
			name:      "flat",
			files:     map[string]string{"plugin.json": `{"id":"a","name":"A"}`, "main.lua": ""},
			wantEntry: "main.lua",
		},
		{
			name:       "single folder",
			files:      map[string]string{"a/plugin.json": `{"id":"a","name":"A","type":"external-script"}`, "a/main.py": "", "a/lib/x.py": ""},
			wantPrefix: "a/",
			wantEntry:  "main.py",
		},
		{
			name:    "two folders",
			files:   map[string]string{"a/plugin.json": `{"id":"a","name":"A"}`, "a/main.lua": "", "b/x": ""},
			wantErr: true,
		},
		{
			name:    "no entry",
			files:   map[string]string{"plugin.json": `{"id":"a","name":"A"}`, "readme.md": ""},
			wantErr: true,
		},
		{
			name:    "no manifest",
			files:   map[string]string{"main.lua": ""},
			wantErr: true,
		},
		{
			name:    "bad manifest",
			files:   map[string]string{"plugin.json": `{"name":"A"}`, "main.lua": ""},
			wantErr: true,
		},
		{
			name:    "nested too deep",
			files:   map[string]string{"a/b/plugin.json": `{"id":"a","name":"A"}`, "a/b/main.lua": ""},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			layout, err := ValidateArchive(writeZip(t, tt.files))
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidArchive) {
					t.Errorf("ValidateArchive() error = %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if layout.Prefix != tt.wantPrefix || layout.Entry != tt.wantEntry {
				t.Errorf("layout = %+v", layout)
			}
		})
	}
}

func TestInstallArchive(t *testing.T) {
	t.Parallel()

	c, dir, _ := newCatalog(t)
	zipPath := writeZip(t, map[string]string{
		"pkg/plugin.json":  `{"id":"resize","name":"Resize"}`,
		"pkg/main.lua":     "return function() end",
		"pkg/assets/a.txt": "asset",
	})

	info, err := c.InstallArchive(zipPath)
	if err != nil {
		t.Fatalf("InstallArchive() error = %v", err)
	}
	if info.Path != filepath.Join(dir, "resize") {
		t.Errorf("Path = %q", info.Path)
	}
	data, err := os.ReadFile(filepath.Join(dir, "resize", "assets", "a.txt"))
	if err != nil || string(data) != "asset" {
		t.Errorf("asset = %q, %v", data, err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("plugins dir has %d entries, want 1 (staging left behind?)", len(entries))
	}
}

func TestInstallArchiveDeletesInvalid(t *testing.T) {
	t.Parallel()

	c, _, _ := newCatalog(t)
	zipPath := writeZip(t, map[string]string{"readme.md": "nothing"})

	if _, err := c.InstallArchive(zipPath); !errors.Is(err, ErrInvalidArchive) {
		t.Fatalf("InstallArchive() error = %v", err)
	}
	if _, err := os.Stat(zipPath); !os.IsNotExist(err) {
		t.Error("invalid archive kept")
	}
}

func TestInstallArchiveRejectsTraversal(t *testing.T) {
	t.Parallel()

	c, dir, _ := newCatalog(t)
	zipPath := writeZip(t, map[string]string{
		"plugin.json":   `{"id":"evil","name":"Evil"}`,
		"main.lua":      "",
		"../escape.txt": "x",
	})

	if _, err := c.InstallArchive(zipPath); !errors.Is(err, ErrUnsafeArchive) {
		t.Fatalf("InstallArchive() error = %v, want ErrUnsafeArchive", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "evil")); !os.IsNotExist(err) {
		t.Error("unsafe archive installed")
	}
	if _, err := os.Stat(filepath.Join(dir, "escape.txt")); !os.IsNotExist(err) {
		t.Error("file written outside target")
	}
}

func TestInfoPluginCarriesEvents(t *testing.T) {
	t.Parallel()

	info := Info{ID: "p", Name: "P", Path: "/plugins/p", Entry: "/plugins/p/main.lua",
		Manifest: &Manifest{ID: "p", Name: "P", On: []string{"libraryChanged"}}}
	p := info.Plugin()
	if len(p.Events) != 1 || p.Events[0] != "libraryChanged" {
		t.Errorf("Events = %v", p.Events)
	}
	if got := (Info{ID: "q"}).Plugin().Events; len(got) != 0 {
		t.Errorf("no manifest Events = %v", got)
	}
}
