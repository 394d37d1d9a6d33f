package modmgr

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/egoavara/modmgr/internal/errs"
)

func TestLoadManifest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{name: "valid", content: manifest("foo", "1.0.0")},
		{name: "malformed", content: `{"name":`, wantErr: errs.ErrInvalidInput},
		{name: "missing version", content: `{"name":"foo","type":"standard"}`, wantErr: ErrInvalidManifest},
		{name: "legacy type declared", content: `{"name":"foo","type":"v1","version":"1.0.0"}`, wantErr: ErrInvalidManifest},
		{name: "absent", wantErr: errs.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			if tt.content != "" {
				if err := os.WriteFile(filepath.Join(dir, "mod.json"), []byte(tt.content), 0644); err != nil {
					t.Fatal(err)
				}
			}

			m, err := LoadManifest(dir)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("LoadManifest() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadManifest() error = %v", err)
			}
			if m.Name != "foo" || m.Version != "1.0.0" || m.EntryPoint != "main.lua" {
				t.Errorf("LoadManifest() = %+v", m)
			}
		})
	}
}

func TestIndexEntryJSON(t *testing.T) {
	t.Parallel()

	var entries []IndexEntry
	data := `["foo", {"name":"bar","remote":"https://github.com/x/bar.git"}]`
	if err := json.Unmarshal([]byte(data), &entries); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Name != "foo" || entries[0].IsRemote() {
		t.Errorf("entries[0] = %+v", entries[0])
	}
	if entries[1].Name != "bar" || entries[1].Remote != "https://github.com/x/bar.git" {
		t.Errorf("entries[1] = %+v", entries[1])
	}

	out, err := json.Marshal(entries)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(out) != `["foo",{"name":"bar","remote":"https://github.com/x/bar.git"}]` {
		t.Errorf("Marshal() = %s", out)
	}

	if err := json.Unmarshal([]byte(`[{"remote":"x"}]`), &entries); err == nil {
		t.Error("entry without a name should fail")
	}
}

func TestModName(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if got := ModName(dir, "fallback"); got != "fallback" {
		t.Errorf("absent manifest: got %q", got)
	}

	os.WriteFile(filepath.Join(dir, "mod.json"), []byte(`{"name":"Pretty Name"}`), 0644)
	if got := ModName(dir, "fallback"); got != "Pretty Name" {
		t.Errorf("got %q, want Pretty Name", got)
	}

	os.WriteFile(filepath.Join(dir, "mod.json"), []byte(`not json`), 0644)
	if got := ModName(dir, "fallback"); got != "fallback" {
		t.Errorf("unreadable manifest: got %q", got)
	}
}
