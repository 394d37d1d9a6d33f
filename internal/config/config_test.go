package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func withAppDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	SetAppDir(dir)
	t.Cleanup(func() { SetAppDir("") })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	withAppDir(t)

	c, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.Locale != "auto" {
		t.Errorf("Locale = %q, want auto", c.Locale)
	}
	if c.Script.Interpreter != "python3" {
		t.Errorf("Script.Interpreter = %q, want python3", c.Script.Interpreter)
	}
	if !c.Script.FilterCallbacks {
		t.Error("Script.FilterCallbacks = false, want true")
	}
	if c.Poll.Interval != time.Second {
		t.Errorf("Poll.Interval = %v, want 1s", c.Poll.Interval)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := withAppDir(t)

	data := `{"locale":"ko-KR","script":{"interpreter":"python3.12","timeout":"30s","filterCallbacks":false},"poll":{"interval":"250ms"}}`
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MODMGR_SCRIPT_INTERPRETER", "/opt/py/bin/python")

	c, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.Locale != "ko-KR" {
		t.Errorf("Locale = %q, want ko-KR", c.Locale)
	}
	if c.Script.Interpreter != "/opt/py/bin/python" {
		t.Errorf("Script.Interpreter = %q, env override not applied", c.Script.Interpreter)
	}
	if c.Script.Timeout != 30*time.Second {
		t.Errorf("Script.Timeout = %v, want 30s", c.Script.Timeout)
	}
	if c.Script.FilterCallbacks {
		t.Error("Script.FilterCallbacks = true, want false from file")
	}
	if c.Poll.Interval != 250*time.Millisecond {
		t.Errorf("Poll.Interval = %v, want 250ms", c.Poll.Interval)
	}
}

func TestLoadMalformed(t *testing.T) {
	dir := withAppDir(t)
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte("{nope"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(); err == nil {
		t.Fatal("Load() on malformed file returned nil error")
	}
}

func TestSetRoundTrip(t *testing.T) {
	withAppDir(t)

	if err := Set("script.timeout", "5s"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if got := Get().Script.Timeout; got != 5*time.Second {
		t.Errorf("after Set, Script.Timeout = %v, want 5s", got)
	}
	if err := Set("script.filter_callbacks", "maybe"); err == nil {
		t.Error("Set() with invalid bool returned nil error")
	}
	if err := Set("nope", "x"); err == nil {
		t.Error("Set() with unknown key returned nil error")
	}
}

func TestPathsFollowBaseDir(t *testing.T) {
	dir := withAppDir(t)
	if err := Reload(); err != nil {
		t.Fatal(err)
	}

	if got := BaseDir(); got != dir {
		t.Errorf("BaseDir() = %q, want %q", got, dir)
	}

	other := filepath.Join(dir, "repo")
	if err := Set("base_dir", other); err != nil {
		t.Fatal(err)
	}
	if got := BaseDir(); got != other {
		t.Errorf("after Set, BaseDir() = %q, want %q", got, other)
	}
}
