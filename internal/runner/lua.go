package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/egoavara/modmgr/internal/dom"
	"github.com/egoavara/modmgr/internal/events"
	"github.com/egoavara/modmgr/internal/executor"
	"github.com/egoavara/modmgr/internal/logging"
	"github.com/egoavara/modmgr/internal/metrics"
)

var (
	// ErrAlreadyMounted is returned when Mount is called twice.
	ErrAlreadyMounted = errors.New("mod already mounted")
	// ErrInstanceClosed is returned when mounting an unmounted instance.
	ErrInstanceClosed = errors.New("mod instance closed")
)

// luaType runs Lua mods in process. The legacy and standard types differ only
// in how they recognize their folder.
type luaType struct {
	NoHooks

	name     string
	env      *executor.Env
	validate func(dir string) bool
}

// NewLegacy returns the v1 type: no manifest, index.lua or main.lua.
func NewLegacy(env *executor.Env) Type {
	return &luaType{name: TypeLegacy, env: env, validate: IsLegacyLayout}
}

// NewStandard returns the manifest-based Lua type.
func NewStandard(env *executor.Env) Type {
	return &luaType{
		name: TypeStandard,
		env:  env,
		validate: func(dir string) bool {
			return ManifestType(dir) == TypeStandard
		},
	}
}

func (t *luaType) Name() string { return t.name }

func (t *luaType) IsType(path string) bool { return t.validate(path) }

func (t *luaType) logger() *log.Logger {
	return logging.Or(t.env.Log).WithPrefix(t.name)
}

func (t *luaType) Load(ctx context.Context, spec Spec) (Instance, error) {
	if !t.validate(spec.Dir) {
		return nil, fmt.Errorf("%w: %s is not a %s package", ErrInvalidStructure, spec.Dir, t.name)
	}
	entry, err := ResolveEntry(filepath.Join(spec.Dir, spec.EntryPoint), LuaExt)
	if err != nil {
		return nil, err
	}
	if filepath.Ext(entry) != LuaExt {
		return nil, fmt.Errorf("%w: entry %s is not a %s file", ErrInvalidStructure, entry, LuaExt)
	}

	root := t.env.Doc.CreateElement("div", "mod-"+spec.Name)
	root.SetAttr("class", "mod-root")
	pc := executor.NewContext(ctx, t.env, executor.Plugin{
		ID:    spec.Name,
		Name:  spec.Name,
		Dir:   spec.Dir,
		Entry: entry,
	}, root)

	module, export, err := loadModule(pc, entry)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("loading %s: %w", spec.Name, err)
	}

	inst := &luaInstance{
		spec:   spec,
		ctx:    pc,
		module: module,
		export: export,
		root:   root,
		env:    t.env,
		log:    t.logger().With("mod", spec.Name),
	}
	if css, err := os.ReadFile(filepath.Join(filepath.Dir(entry), StylesheetFile)); err == nil {
		inst.css = string(css)
	}
	return inst, nil
}

func loadModule(pc *executor.Context, entry string) (*lua.LTable, ExportKind, error) {
	state := pc.State()
	fn, err := state.LoadFile(entry)
	if err != nil {
		return nil, 0, err
	}
	ret, err := state.Call(fn)
	if err != nil {
		return nil, 0, err
	}
	export, err := ResolveExport(ret)
	if err != nil {
		return nil, 0, err
	}
	if export.Kind == DirectExport {
		return export.Value.(*lua.LTable), export.Kind, nil
	}

	out, err := state.Call(export.Value, pc.Table())
	if err != nil {
		return nil, 0, err
	}
	if len(out) == 0 {
		return nil, 0, fmt.Errorf("%w: factory returned nothing", ErrInvalidStructure)
	}
	module, ok := out[0].(*lua.LTable)
	if !ok {
		return nil, 0, fmt.Errorf("%w: factory returned %s, want table", ErrInvalidStructure, out[0].Type())
	}
	return module, export.Kind, nil
}

type luaInstance struct {
	spec   Spec
	ctx    *executor.Context
	module *lua.LTable
	export ExportKind
	root   *dom.Node
	css    string
	env    *executor.Env
	log    *log.Logger

	mu        sync.Mutex
	container *dom.Node
	mounted   bool
	closed    bool
}

// Export returns how the module was exposed.
func (i *luaInstance) Export() ExportKind { return i.export }

func (i *luaInstance) styleID() string { return "mod-style-" + i.spec.Name }

func (i *luaInstance) Mount(ctx context.Context, container *dom.Node) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	switch {
	case i.closed:
		return ErrInstanceClosed
	case i.mounted:
		return ErrAlreadyMounted
	}

	if i.css != "" {
		i.env.Doc.AddStyle(i.styleID(), i.css)
	}
	markup, err := i.markup()
	if err != nil {
		i.env.Doc.RemoveStyle(i.styleID())
		return fmt.Errorf("rendering %s: %w", i.spec.Name, err)
	}
	i.root.SetHTML(markup)
	container.AppendChild(i.root)
	i.container = container
	i.subscribe()

	if fn := i.module.RawGetString("mount"); fn.Type() == lua.LTFunction {
		if _, err := i.ctx.State().Spawn(fn, i.ctx.Table()); err != nil {
			i.release()
			return fmt.Errorf("mounting %s: %w", i.spec.Name, err)
		}
	}

	i.mounted = true
	metrics.Or(i.env.Metrics).MountedMods.Inc()
	i.log.Debug("mounted")
	return nil
}

// markup reads the html field, a string or a function of the context.
func (i *luaInstance) markup() (string, error) {
	switch v := i.module.RawGetString("html"); v.Type() {
	case lua.LTNil:
		return "", nil
	case lua.LTString:
		return v.String(), nil
	case lua.LTFunction:
		out, err := i.ctx.State().Call(v, i.ctx.Table())
		if err != nil {
			return "", err
		}
		if len(out) == 0 || out[0] == lua.LNil {
			return "", nil
		}
		return out[0].String(), nil
	default:
		return "", fmt.Errorf("%w: html is %s", ErrInvalidStructure, v.Type())
	}
}

// subscribe wires the handlers of the module's on table. Declared events
// restrict the set; a declared event without a handler is logged.
func (i *luaInstance) subscribe() {
	handlers, _ := i.module.RawGetString("on").(*lua.LTable)
	for _, typ := range events.Types {
		if len(i.spec.Events) > 0 && !slices.Contains(i.spec.Events, string(typ)) {
			continue
		}
		var fn lua.LValue = lua.LNil
		if handlers != nil {
			fn = handlers.RawGetString(string(typ))
		}
		if fn.Type() != lua.LTFunction {
			if slices.Contains(i.spec.Events, string(typ)) {
				i.log.Warn("declared event has no handler", "event", typ)
			}
			continue
		}
		i.ctx.SubscribeLua(typ, fn)
	}
	for _, declared := range i.spec.Events {
		if !slices.Contains(events.Types, events.Type(declared)) {
			i.log.Warn("unknown event declared", "event", declared, "known", strings.Join(eventNames(), ","))
		}
	}
}

func eventNames() []string {
	names := make([]string, len(events.Types))
	for n, t := range events.Types {
		names[n] = string(t)
	}
	return names
}

func (i *luaInstance) Unmount(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.mounted {
		return nil
	}

	var err error
	if fn := i.module.RawGetString("unmount"); fn.Type() == lua.LTFunction {
		if _, err = i.ctx.State().Call(fn, i.ctx.Table()); err != nil {
			i.log.Warn("unmount callback failed", "err", err)
		}
	}
	i.release()
	i.mounted = false
	metrics.Or(i.env.Metrics).MountedMods.Dec()
	i.log.Debug("unmounted")
	return err
}

// release clears the container, ends subscriptions and closes the state.
func (i *luaInstance) release() {
	i.root.Teardown()
	i.root.Clear()
	i.root.Remove()
	if i.container != nil {
		i.container.Clear()
	}
	i.env.Doc.RemoveStyle(i.styleID())
	i.ctx.Close()
	i.closed = true
}
