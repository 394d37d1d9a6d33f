package runner

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	lua "github.com/yuin/gopher-lua"

	"github.com/egoavara/modmgr/internal/bridge"
	"github.com/egoavara/modmgr/internal/dom"
	"github.com/egoavara/modmgr/internal/events"
	"github.com/egoavara/modmgr/internal/executor"
	"github.com/egoavara/modmgr/internal/hostapi"
	"github.com/egoavara/modmgr/internal/logging"
	"github.com/egoavara/modmgr/internal/metrics"
	"github.com/egoavara/modmgr/internal/store"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func newExecEnv(t *testing.T) *executor.Env {
	t.Helper()
	return &executor.Env{
		Doc:     dom.NewDocument(),
		Storage: store.NewJSONFile(filepath.Join(t.TempDir(), "storage.json")),
		Log:     logging.Discard(),
		Metrics: metrics.New(nil),
	}
}

func TestResolveEntry(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"both/index.lua": "",
		"both/main.lua":  "",
		"main/main.lua":  "",
		"app.lua":        "",
		"empty/x.txt":    "",
	})

	tests := []struct {
		path    string
		want    string
		wantErr bool
	}{
		{path: "both", want: "both/index.lua"},
		{path: "main", want: "main/main.lua"},
		{path: "app.lua", want: "app.lua"},
		{path: "app", want: "app.lua"},
		{path: "empty", wantErr: true},
		{path: "missing", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			got, err := ResolveEntry(filepath.Join(dir, tt.path), LuaExt)
			if tt.wantErr {
				if !errors.Is(err, ErrEntryNotFound) {
					t.Errorf("ResolveEntry() error = %v, want ErrEntryNotFound", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveEntry() error = %v", err)
			}
			if want := filepath.Join(dir, tt.want); got != want {
				t.Errorf("ResolveEntry() = %q, want %q", got, want)
			}
		})
	}
}

func TestDetect(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"legacy/index.lua":     "",
		"std/mod.json":         `{"name":"std","type":"standard","version":"1.0.0"}`,
		"std/index.lua":        "",
		"script/mod.json":      `{"name":"script","type":"external-script","version":"1.0.0"}`,
		"script/main.py":       "",
		"docs/readme.md":       "",
		"broken/mod.json":      `{`,
		"broken/index.lua":     "",
		"manifestless/main.py": "",
	})

	r := NewDefaultRegistry(newExecEnv(t), bridge.New(bridge.Options{}, bridge.WithLogger(logging.Discard())))
	tests := []struct {
		dir  string
		want string
	}{
		{"legacy", TypeLegacy},
		{"std", TypeStandard},
		{"script", TypeExternalScript},
		{"docs", ""},
		{"broken", ""},
		{"manifestless", ""},
	}
	for _, tt := range tests {
		t.Run(tt.dir, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(dir, tt.dir)
			got := ""
			if typ, ok := r.Detect(path); ok {
				got = typ.Name()
			}
			if got != tt.want {
				t.Errorf("Detect() = %q, want %q", got, tt.want)
			}
			if isLegacy := r.IsLegacy(path); isLegacy != (tt.want == TypeLegacy) {
				t.Errorf("IsLegacy() = %v", isLegacy)
			}
		})
	}
}

func TestRegistryUnknownType(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register(NewLegacy(&executor.Env{}))
	_, err := r.Get("nope")
	if !errors.Is(err, ErrUnknownType) {
		t.Errorf("Get() error = %v", err)
	}
	if err != nil && !strings.Contains(err.Error(), "known: "+TypeLegacy) {
		t.Errorf("Get() error %q does not list registered types", err)
	}
	if _, err := r.Load(context.Background(), Spec{Type: "nope"}); !errors.Is(err, ErrUnknownType) {
		t.Errorf("Load() error = %v", err)
	}
}

func TestResolveExport(t *testing.T) {
	t.Parallel()

	L := lua.NewState()
	defer L.Close()

	tests := []struct {
		name    string
		ret     []lua.LValue
		want    ExportKind
		wantErr bool
	}{
		{"function", []lua.LValue{L.NewFunction(func(*lua.LState) int { return 0 })}, FactoryExport, false},
		{"table", []lua.LValue{L.NewTable()}, DirectExport, false},
		{"number", []lua.LValue{lua.LNumber(1)}, 0, true},
		{"nothing", nil, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveExport(tt.ret)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidStructure) {
					t.Errorf("ResolveExport() error = %v", err)
				}
				return
			}
			if err != nil || got.Kind != tt.want {
				t.Errorf("ResolveExport() = %v, %v; want %v", got.Kind, err, tt.want)
			}
		})
	}
}

func TestLegacyMountUnmount(t *testing.T) {
	t.Parallel()

	env := newExecEnv(t)
	dir := filepath.Join(t.TempDir(), "clock")
	writeFiles(t, dir, map[string]string{
		"index.lua": `
return function(ctx)
  return {
    html = function() return "<span>" .. ctx.name .. "</span>" end,
    mount = function(c) c.storage.set("mounted", "yes") end,
    unmount = function(c) c.storage.set("unmounted", "yes") end,
  }
end
`,
		"style.css": ".clock{color:red}",
	})

	inst, err := NewLegacy(env).Load(context.Background(), Spec{Name: "clock", Type: TypeLegacy, Dir: dir})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := inst.(*luaInstance).Export(); got != FactoryExport {
		t.Errorf("Export() = %v", got)
	}

	tab := env.Doc.Body.AppendChild(dom.NewElement("section"))
	if err := inst.Mount(context.Background(), tab); err != nil {
		t.Fatalf("Mount() error = %v", err)
	}
	if !strings.Contains(tab.InnerHTML(), "<span>clock</span>") {
		t.Errorf("container = %q", tab.InnerHTML())
	}
	style := env.Doc.GetElementByID("mod-style-clock")
	if style == nil || style.InnerHTML() != ".clock{color:red}" {
		t.Fatal("stylesheet not installed")
	}
	if got := env.Storage.GetString("clock_mounted"); got != "yes" {
		t.Errorf("mount callback: %q", got)
	}
	if got := testutil.ToFloat64(env.Metrics.MountedMods); got != 1 {
		t.Errorf("mounted gauge = %v", got)
	}
	if err := inst.Mount(context.Background(), tab); !errors.Is(err, ErrAlreadyMounted) {
		t.Errorf("second Mount() error = %v", err)
	}

	if err := inst.Unmount(context.Background()); err != nil {
		t.Fatalf("Unmount() error = %v", err)
	}
	if len(tab.Children) != 0 {
		t.Errorf("container not cleared: %q", tab.InnerHTML())
	}
	if env.Doc.GetElementByID("mod-style-clock") != nil {
		t.Error("stylesheet left behind")
	}
	if got := env.Storage.GetString("clock_unmounted"); got != "yes" {
		t.Errorf("unmount callback: %q", got)
	}
	if got := testutil.ToFloat64(env.Metrics.MountedMods); got != 0 {
		t.Errorf("mounted gauge = %v", got)
	}
	if err := inst.Mount(context.Background(), tab); !errors.Is(err, ErrInstanceClosed) {
		t.Errorf("Mount() after unmount error = %v", err)
	}
}

func TestLegacyRejectsManifest(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"mod.json":  `{"name":"x","type":"standard","version":"1.0.0"}`,
		"index.lua": "return {}",
	})
	_, err := NewLegacy(newExecEnv(t)).Load(context.Background(), Spec{Name: "x", Dir: dir})
	if !errors.Is(err, ErrInvalidStructure) {
		t.Errorf("Load() error = %v, want ErrInvalidStructure", err)
	}
}

func TestLoadFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		entry string
	}{
		{"raises", `error("boom")`},
		{"returns number", `return 1`},
		{"factory returns string", `return function() return "x" end`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			writeFiles(t, dir, map[string]string{"main.lua": tt.entry})
			if _, err := NewLegacy(newExecEnv(t)).Load(context.Background(), Spec{Name: "bad", Dir: dir}); err == nil {
				t.Error("Load() succeeded")
			}
		})
	}
}

type fakeSource struct {
	mu      sync.Mutex
	library string
}

func (s *fakeSource) SelectedItems(context.Context) ([]hostapi.Item, error)     { return nil, nil }
func (s *fakeSource) SelectedFolders(context.Context) ([]hostapi.Folder, error) { return nil, nil }
func (s *fakeSource) LibraryPath(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.library, nil
}

func (s *fakeSource) switchLibrary(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.library = path
}

func TestStandardSubscribesDeclaredEvents(t *testing.T) {
	t.Parallel()

	src := &fakeSource{library: "/lib/a"}
	env := newExecEnv(t)
	env.Events = events.New(src, 0, logging.Discard())

	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"mod.json": `{"name":"watch","type":"standard","version":"1.0.0","entryPoint":"app.lua","on":["libraryChanged"]}`,
		"app.lua": `
local M = { html = "<b>watch</b>" }
M.on = {
  libraryChanged = function(path) M.last = path end,
  itemSelectionChanged = function() end,
}
M.unmount = function(ctx) ctx.storage.set("last", M.last) end
return M
`,
	})

	inst, err := NewStandard(env).Load(context.Background(), Spec{
		Name: "watch", Type: TypeStandard, Dir: dir, EntryPoint: "app.lua", Events: []string{"libraryChanged"},
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := inst.(*luaInstance).Export(); got != DirectExport {
		t.Errorf("Export() = %v", got)
	}
	tab := dom.NewElement("section")
	if err := inst.Mount(context.Background(), tab); err != nil {
		t.Fatalf("Mount() error = %v", err)
	}
	if n := env.Events.Subscribers(events.LibraryChanged); n != 1 {
		t.Errorf("libraryChanged subscribers = %d", n)
	}
	if n := env.Events.Subscribers(events.ItemSelectionChanged); n != 0 {
		t.Errorf("undeclared event subscribed: %d", n)
	}

	ctx := context.Background()
	env.Events.Poll(ctx)
	src.switchLibrary("/lib/b")
	env.Events.Poll(ctx)

	if err := inst.Unmount(ctx); err != nil {
		t.Fatal(err)
	}
	if got := env.Storage.GetString("watch_last"); got != "/lib/b" {
		t.Errorf("handler saw %q, want /lib/b", got)
	}
	if n := env.Events.Subscribers(events.LibraryChanged); n != 0 {
		t.Errorf("subscribers after unmount = %d", n)
	}
}

type recordedCommand struct {
	name string
	args []string
}

func TestScriptPostInstall(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var got []recordedCommand
	run := func(_ context.Context, name string, args ...string) ([]byte, error) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, recordedCommand{name, args})
		return nil, nil
	}
	b := bridge.New(bridge.Options{Interpreter: "python3.12"}, bridge.WithLogger(logging.Discard()))
	typ := NewScript(b, WithCommandRunner(run), WithScriptLogger(logging.Discard()))

	src := t.TempDir()
	writeFiles(t, src, map[string]string{RequirementsFile: "requests\n"})
	thirdParty := filepath.Join(t.TempDir(), "third_party")

	ic := InstallContext{Name: "tool", SourcePath: src, InstallPath: t.TempDir(), ThirdPartyDir: thirdParty}
	if err := typ.PostInstall(context.Background(), ic); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("commands = %v", got)
	}
	want := []string{"-m", "pip", "install", "-r", filepath.Join(src, RequirementsFile), "--target", thirdParty}
	if got[0].name != "python3.12" || strings.Join(got[0].args, " ") != strings.Join(want, " ") {
		t.Errorf("command = %v", got[0])
	}

	ic.SourcePath = t.TempDir()
	if err := typ.PostInstall(context.Background(), ic); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Errorf("pip ran without requirements: %v", got)
	}
}

func TestScriptPostInstallFailure(t *testing.T) {
	t.Parallel()

	run := func(context.Context, string, ...string) ([]byte, error) {
		return []byte("no matching distribution"), errors.New("exit status 1")
	}
	typ := NewScript(bridge.New(bridge.Options{}, bridge.WithLogger(logging.Discard())), WithCommandRunner(run), WithScriptLogger(logging.Discard()))
	src := t.TempDir()
	writeFiles(t, src, map[string]string{RequirementsFile: "nope\n"})

	err := typ.PostInstall(context.Background(), InstallContext{Name: "x", SourcePath: src, ThirdPartyDir: t.TempDir()})
	if !errors.Is(err, ErrDependencyInstall) || !strings.Contains(err.Error(), "no matching distribution") {
		t.Errorf("PostInstall() error = %v", err)
	}
}

func TestScriptMount(t *testing.T) {
	t.Parallel()
	if _, err := exec.LookPath("/bin/sh"); err != nil {
		t.Skip("no /bin/sh")
	}

	b := bridge.New(bridge.Options{Interpreter: "/bin/sh", FilterCallbacks: true},
		bridge.WithLogger(logging.Discard()), bridge.WithMetrics(metrics.New(nil)))
	typ := NewScript(b, WithScriptLogger(logging.Discard()))

	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"mod.json": `{"name":"hello","type":"external-script","version":"1.0.0","entryPoint":"run.sh"}`,
		"run.sh":   "echo '<hi>'\n",
		"fail.sh":  "echo bad >&2; exit 2\n",
	})

	inst, err := typ.Load(context.Background(), Spec{Name: "hello", Dir: dir, EntryPoint: "run.sh"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	tab := dom.NewElement("section")
	if err := inst.Mount(context.Background(), tab); err != nil {
		t.Fatalf("Mount() error = %v", err)
	}
	if got := tab.InnerHTML(); got != `<pre class="script-output">&lt;hi&gt;`+"\n</pre>" {
		t.Errorf("output = %q", got)
	}
	if err := inst.Unmount(context.Background()); err != nil || len(tab.Children) != 0 {
		t.Errorf("Unmount() = %v, children %d", err, len(tab.Children))
	}

	failing, err := typ.Load(context.Background(), Spec{Name: "hello", Dir: dir, EntryPoint: "fail.sh"})
	if err != nil {
		t.Fatal(err)
	}
	if err := failing.Mount(context.Background(), tab); !errors.Is(err, ErrScriptExit) {
		t.Errorf("Mount() error = %v, want ErrScriptExit", err)
	}
	if !strings.Contains(tab.InnerHTML(), "script-error") {
		t.Errorf("stderr not shown: %q", tab.InnerHTML())
	}
}
