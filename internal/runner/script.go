package runner

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/egoavara/modmgr/internal/bridge"
	"github.com/egoavara/modmgr/internal/dom"
	"github.com/egoavara/modmgr/internal/errs"
	"github.com/egoavara/modmgr/internal/logging"
)

// ScriptExt is the extension of external-script entry files.
const ScriptExt = ".py"

// RequirementsFile lists the Python dependencies of an external-script mod.
const RequirementsFile = "requirements.txt"

var (
	// ErrDependencyInstall is returned when installing requirements fails.
	ErrDependencyInstall = fmt.Errorf("%w: installing requirements", errs.ErrExternalTool)
	// ErrScriptExit is returned when a mounted script exits non-zero.
	ErrScriptExit = fmt.Errorf("%w: script exited with an error", errs.ErrExternalTool)
)

// CommandRunner runs an external command and returns its combined output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// ScriptType runs mods whose entry is an external script, through the bridge.
type ScriptType struct {
	NoHooks

	bridge *bridge.Bridge
	run    CommandRunner
	log    *log.Logger
}

// ScriptOption customizes a ScriptType.
type ScriptOption func(*ScriptType)

// WithCommandRunner replaces how dependency installs are executed.
func WithCommandRunner(r CommandRunner) ScriptOption {
	return func(t *ScriptType) { t.run = r }
}

// WithScriptLogger sets the logger.
func WithScriptLogger(l *log.Logger) ScriptOption {
	return func(t *ScriptType) { t.log = l }
}

// NewScript returns the external-script type backed by b.
func NewScript(b *bridge.Bridge, opts ...ScriptOption) *ScriptType {
	t := &ScriptType{bridge: b, run: execCommand}
	for _, o := range opts {
		o(t)
	}
	t.log = logging.Or(t.log).WithPrefix(TypeExternalScript)
	return t
}

func (t *ScriptType) Name() string { return TypeExternalScript }

func (t *ScriptType) IsType(path string) bool {
	return ManifestType(path) == TypeExternalScript
}

// PostInstall installs requirements.txt into the shared third-party folder.
// The bucket-side copy is preferred since the install may still be staging.
func (t *ScriptType) PostInstall(ctx context.Context, ic InstallContext) error {
	req := ""
	for _, dir := range []string{ic.SourcePath, ic.InstallPath} {
		if dir != "" && fileExists(filepath.Join(dir, RequirementsFile)) {
			req = filepath.Join(dir, RequirementsFile)
			break
		}
	}
	if req == "" {
		return nil
	}
	if err := os.MkdirAll(ic.ThirdPartyDir, 0o755); err != nil {
		return err
	}

	interp := t.bridge.Options().Interpreter
	t.log.Info("installing requirements", "package", ic.Name, "target", ic.ThirdPartyDir)
	out, err := t.run(ctx, interp, "-m", "pip", "install", "-r", req, "--target", ic.ThirdPartyDir)
	if err != nil {
		return fmt.Errorf("%w: %s: %v: %s", ErrDependencyInstall, ic.Name, err, bytes.TrimSpace(out))
	}
	return nil
}

func (t *ScriptType) Load(_ context.Context, spec Spec) (Instance, error) {
	if !t.IsType(spec.Dir) {
		return nil, fmt.Errorf("%w: %s is not an %s package", ErrInvalidStructure, spec.Dir, TypeExternalScript)
	}
	entry, err := ResolveEntry(filepath.Join(spec.Dir, spec.EntryPoint), ScriptExt)
	if err != nil {
		return nil, err
	}
	return &scriptInstance{spec: spec, entry: entry, bridge: t.bridge, log: t.log.With("mod", spec.Name)}, nil
}

// scriptInstance runs its script on mount and shows the output.
type scriptInstance struct {
	spec   Spec
	entry  string
	bridge *bridge.Bridge
	log    *log.Logger

	mu        sync.Mutex
	container *dom.Node
}

func (i *scriptInstance) Mount(ctx context.Context, container *dom.Node) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.container != nil {
		return ErrAlreadyMounted
	}
	i.container = container

	res, err := i.bridge.Run(ctx, bridge.Script{PluginID: i.spec.Name, Path: i.entry})
	if res != nil {
		appendOutput(container, "script-output", res.Stdout)
		if res.ExitCode != 0 {
			appendOutput(container, "script-error", res.Stderr)
		}
	}
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		i.log.Warn("script failed", "exit", res.ExitCode)
		return fmt.Errorf("%w: %s: exit %d", ErrScriptExit, i.spec.Name, res.ExitCode)
	}
	return nil
}

func appendOutput(container *dom.Node, class, text string) {
	if text == "" {
		return
	}
	pre := container.AppendChild(dom.NewElement("pre"))
	pre.SetAttr("class", class)
	pre.AppendChild(dom.NewText(text))
}

func (i *scriptInstance) Unmount(context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.container != nil {
		i.container.Clear()
		i.container = nil
	}
	return nil
}
