package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/egoavara/modmgr/internal/dom"
	"github.com/egoavara/modmgr/internal/errs"
	"github.com/egoavara/modmgr/internal/events"
	"github.com/egoavara/modmgr/internal/sandbox"
)

// ErrOutsideRoot is returned when a filesystem helper is asked for a path
// outside the plugin folder.
var ErrOutsideRoot = fmt.Errorf("%w: path outside plugin folder", errs.ErrSecurityViolation)

// SDKModule is the require name under which plugin code can also reach its
// context table.
const SDKModule = "modmgr"

// Plugin identifies the code a Context runs.
type Plugin struct {
	ID    string
	Name  string
	Dir   string
	Entry string // absolute path of the entry file
	// Events lists the host events the plugin declared. Empty allows every
	// known event.
	Events []string
}

// Context is the isolated environment of one plugin: scoped storage, a
// container node, a Lua state and the SDK table handed to plugin code.
type Context struct {
	Plugin Plugin

	env       *Env
	state     *sandbox.State
	table     *lua.LTable
	container *dom.Node
	storage   *Storage
	log       *log.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	unsubs []func()
	closed bool
}

// NewContext builds the environment of p bound to container.
func NewContext(ctx context.Context, env *Env, p Plugin, container *dom.Node) *Context {
	cctx, cancel := context.WithCancel(ctx)
	c := &Context{
		Plugin:    p,
		env:       env,
		state:     sandbox.NewState(sandbox.WithRoot(p.Dir)),
		container: container,
		storage:   NewStorage(env.storage(), p.ID),
		log:       env.logger().With("plugin", p.ID),
		ctx:       cctx,
		cancel:    cancel,
	}
	c.table = c.buildSDK()
	c.state.Preload(SDKModule, func(L *lua.LState) int {
		L.Push(c.table)
		return 1
	})
	return c
}

// State returns the Lua state.
func (c *Context) State() *sandbox.State { return c.state }

// Table returns the context table passed to plugin code.
func (c *Context) Table() *lua.LTable { return c.table }

// Container returns the plugin's container node.
func (c *Context) Container() *dom.Node { return c.container }

// Subscribe routes a host change event to fn on the event loop. The
// subscription ends when the context is closed.
func (c *Context) Subscribe(typ events.Type, fn func(events.Event)) {
	if c.env.Events == nil {
		c.log.Debug("no event dispatcher; subscription ignored", "event", typ)
		return
	}
	off := c.env.Events.Subscribe(typ, func(ev events.Event) {
		c.schedule(func() { fn(ev) })
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		off()
		return
	}
	c.unsubs = append(c.unsubs, off)
}

// SubscribeLua is Subscribe for a Lua callback receiving the new value.
func (c *Context) SubscribeLua(typ events.Type, fn lua.LValue) {
	c.Subscribe(typ, func(ev events.Event) {
		c.CallLua(fn, sandbox.ToLua(c.state.L, ev.Value))
	})
}

// Subscriptions returns the number of live event subscriptions.
func (c *Context) Subscriptions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.unsubs)
}

// schedule runs fn on the event loop, or inline without one.
func (c *Context) schedule(fn func()) {
	if c.env.Loop == nil {
		fn()
		return
	}
	err := c.env.Loop.Post(func() error {
		fn()
		return nil
	}, nil)
	if err != nil {
		c.log.Warn("event dropped", "err", err)
	}
}

// CallLua calls fn, logging failures instead of returning them.
func (c *Context) CallLua(fn lua.LValue, args ...lua.LValue) {
	if c.isClosed() || fn.Type() != lua.LTFunction {
		return
	}
	if _, err := c.state.Call(fn, args...); err != nil {
		c.log.Error("plugin callback failed", "err", err)
	}
}

func (c *Context) isClosed() bool {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	return closed || c.state.IsClosed()
}

// Close ends event subscriptions and releases the Lua state. Cleanup
// callbacks registered on the container must have run before.
func (c *Context) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	unsubs := c.unsubs
	c.unsubs = nil
	c.mu.Unlock()

	for _, off := range unsubs {
		off()
	}
	c.cancel()
	c.state.Close()
}

// resolve maps rel to a path inside the plugin folder.
func (c *Context) resolve(rel string) (string, error) {
	root := filepath.Clean(c.Plugin.Dir)
	path := filepath.Clean(filepath.Join(root, rel))
	if path != root && !strings.HasPrefix(path, root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, rel)
	}
	return path, nil
}

// buildSDK assembles the context table. Functions accept both ctx.x.f(...)
// and ctx.x:f(...) call styles.
func (c *Context) buildSDK() *lua.LTable {
	L := c.state.L
	t := L.NewTable()
	t.RawSetString("id", lua.LString(c.Plugin.ID))
	t.RawSetString("name", lua.LString(c.Plugin.Name))
	t.RawSetString("dir", lua.LString(c.Plugin.Dir))

	t.RawSetString("container", c.containerAPI(L))
	t.RawSetString("storage", c.storageAPI(L))
	t.RawSetString("ui", c.uiAPI(L))
	t.RawSetString("api", c.hostAPI(L))
	t.RawSetString("fs", c.fsAPI(L))
	t.RawSetString("path", pathAPI(L))
	t.RawSetString("events", c.eventsAPI(L))

	t.RawSetString("onCleanup", L.NewFunction(func(L *lua.LState) int {
		fn := L.CheckFunction(base(L, t))
		c.container.OnCleanup(func() { c.CallLua(fn) })
		return 0
	}))
	t.RawSetString("log", L.NewFunction(func(L *lua.LState) int {
		var parts []string
		for i := base(L, t); i <= L.GetTop(); i++ {
			parts = append(parts, L.Get(i).String())
		}
		c.log.Info(strings.Join(parts, " "))
		return 0
	}))
	return t
}

// base returns the index of the first real argument, skipping self.
func base(L *lua.LState, self *lua.LTable) int {
	if L.GetTop() > 0 && L.Get(1) == self {
		return 2
	}
	return 1
}

func module(L *lua.LState, build func(self *lua.LTable) map[string]lua.LGFunction) *lua.LTable {
	self := L.NewTable()
	for name, fn := range build(self) {
		self.RawSetString(name, L.NewFunction(fn))
	}
	return self
}

func (c *Context) containerAPI(L *lua.LState) *lua.LTable {
	tbl := module(L, func(self *lua.LTable) map[string]lua.LGFunction {
		return map[string]lua.LGFunction{
			"html": func(L *lua.LState) int {
				if L.GetTop() < base(L, self) {
					L.Push(lua.LString(c.container.InnerHTML()))
					return 1
				}
				c.container.SetHTML(L.CheckString(base(L, self)))
				return 0
			},
			"text": func(L *lua.LState) int {
				c.container.SetText(L.CheckString(base(L, self)))
				return 0
			},
			"append": func(L *lua.LState) int {
				c.container.AppendChild(dom.NewRaw(L.CheckString(base(L, self))))
				return 0
			},
			"clear": func(L *lua.LState) int {
				c.container.Clear()
				return 0
			},
			"on": func(L *lua.LState) int {
				b := base(L, self)
				typ := L.CheckString(b)
				fn := L.CheckFunction(b + 1)
				off := c.container.AddEventListener(typ, func(ev *dom.Event) {
					c.CallLua(fn, sandbox.ToLua(c.state.L, eventData(ev)))
				})
				L.Push(L.NewFunction(func(L *lua.LState) int {
					off()
					return 0
				}))
				return 1
			},
		}
	})
	tbl.RawSetString("id", lua.LString(c.container.ID))
	return tbl
}

func eventData(ev *dom.Event) map[string]any {
	data := map[string]any{"type": ev.Type}
	if ev.Target != nil {
		data["target"] = ev.Target.ID
	}
	for k, v := range ev.Data {
		data[k] = v
	}
	return data
}

func (c *Context) storageAPI(L *lua.LState) *lua.LTable {
	return module(L, func(self *lua.LTable) map[string]lua.LGFunction {
		return map[string]lua.LGFunction{
			"get": func(L *lua.LState) int {
				var v any
				ok, err := c.storage.Get(L.CheckString(base(L, self)), &v)
				if err != nil || !ok {
					L.Push(lua.LNil)
					return 1
				}
				L.Push(sandbox.ToLua(L, v))
				return 1
			},
			"set": func(L *lua.LState) int {
				b := base(L, self)
				if err := c.storage.Set(L.CheckString(b), sandbox.ToGo(L.Get(b+1))); err != nil {
					L.RaiseError("storage: %v", err)
				}
				return 0
			},
			"remove": func(L *lua.LState) int {
				if err := c.storage.Remove(L.CheckString(base(L, self))); err != nil {
					L.RaiseError("storage: %v", err)
				}
				return 0
			},
			"keys": func(L *lua.LState) int {
				keys, err := c.storage.Keys()
				if err != nil {
					L.RaiseError("storage: %v", err)
				}
				L.Push(sandbox.ToLua(L, keys))
				return 1
			},
		}
	})
}

func (c *Context) uiAPI(L *lua.LState) *lua.LTable {
	return module(L, func(self *lua.LTable) map[string]lua.LGFunction {
		return map[string]lua.LGFunction{
			"card": func(L *lua.LState) int {
				opts := sandbox.StringMap(L.OptTable(base(L, self), L.NewTable()))
				card := dom.NewElement("div")
				card.SetAttr("class", "card")
				if title, ok := opts["title"].(string); ok {
					h := card.AppendChild(dom.NewElement("h3"))
					h.AppendChild(dom.NewText(title))
				}
				body := card.AppendChild(dom.NewElement("div"))
				body.SetAttr("class", "card-body")
				if content, ok := opts["body"].(string); ok {
					body.AppendChild(dom.NewRaw(content))
				}
				L.Push(lua.LString(card.HTML()))
				return 1
			},
			"button": func(L *lua.LState) int {
				opts := sandbox.StringMap(L.OptTable(base(L, self), L.NewTable()))
				btn := dom.NewElement("button")
				class := "btn"
				if extra, ok := opts["class"].(string); ok {
					class += " " + extra
				}
				btn.SetAttr("class", class)
				if id, ok := opts["id"].(string); ok {
					btn.SetAttr("id", id)
				}
				label, _ := opts["label"].(string)
				btn.AppendChild(dom.NewText(label))
				L.Push(lua.LString(btn.HTML()))
				return 1
			},
		}
	})
}

func (c *Context) hostAPI(L *lua.LState) *lua.LTable {
	return module(L, func(self *lua.LTable) map[string]lua.LGFunction {
		return map[string]lua.LGFunction{
			// call("folder.create", {name = "x"}) or call("folder", "create", {...})
			"call": func(L *lua.LState) int {
				b := base(L, self)
				ns, name := L.CheckString(b), ""
				argIdx := b + 1
				if L.Get(b+1).Type() == lua.LTString {
					name = L.CheckString(b + 1)
					argIdx = b + 2
				} else if n, m, ok := strings.Cut(ns, "."); ok {
					ns, name = n, m
				}
				args := sandbox.StringMap(L.OptTable(argIdx, nil))

				if c.env.Host == nil {
					L.Push(lua.LNil)
					L.Push(lua.LString("host api unavailable"))
					return 2
				}
				data, err := c.env.Host.Call(c.ctx, ns, name, args)
				if err != nil {
					c.log.Warn("host api call failed", "method", ns+"."+name, "err", err)
					L.Push(lua.LNil)
					L.Push(lua.LString(err.Error()))
					return 2
				}
				var v any
				if len(data) > 0 {
					if err := json.Unmarshal(data, &v); err != nil {
						L.Push(lua.LNil)
						L.Push(lua.LString(err.Error()))
						return 2
					}
				}
				L.Push(sandbox.ToLua(L, v))
				return 1
			},
		}
	})
}

func (c *Context) fsAPI(L *lua.LState) *lua.LTable {
	return module(L, func(self *lua.LTable) map[string]lua.LGFunction {
		return map[string]lua.LGFunction{
			"read": func(L *lua.LState) int {
				path, err := c.resolve(L.CheckString(base(L, self)))
				if err == nil {
					var data []byte
					if data, err = os.ReadFile(path); err == nil {
						L.Push(lua.LString(data))
						return 1
					}
				}
				L.Push(lua.LNil)
				L.Push(lua.LString(err.Error()))
				return 2
			},
			"exists": func(L *lua.LState) int {
				path, err := c.resolve(L.CheckString(base(L, self)))
				if err != nil {
					L.Push(lua.LFalse)
					return 1
				}
				_, err = os.Stat(path)
				L.Push(lua.LBool(err == nil))
				return 1
			},
			"list": func(L *lua.LState) int {
				path, err := c.resolve(L.OptString(base(L, self), "."))
				if err == nil {
					var entries []os.DirEntry
					if entries, err = os.ReadDir(path); err == nil {
						names := make([]string, 0, len(entries))
						for _, e := range entries {
							names = append(names, e.Name())
						}
						sort.Strings(names)
						L.Push(sandbox.ToLua(L, names))
						return 1
					}
				}
				L.Push(lua.LNil)
				L.Push(lua.LString(err.Error()))
				return 2
			},
		}
	})
}

func pathAPI(L *lua.LState) *lua.LTable {
	return module(L, func(self *lua.LTable) map[string]lua.LGFunction {
		return map[string]lua.LGFunction{
			"join": func(L *lua.LState) int {
				var parts []string
				for i := base(L, self); i <= L.GetTop(); i++ {
					parts = append(parts, L.CheckString(i))
				}
				L.Push(lua.LString(filepath.Join(parts...)))
				return 1
			},
			"basename": func(L *lua.LState) int {
				L.Push(lua.LString(filepath.Base(L.CheckString(base(L, self)))))
				return 1
			},
			"dirname": func(L *lua.LState) int {
				L.Push(lua.LString(filepath.Dir(L.CheckString(base(L, self)))))
				return 1
			},
			"ext": func(L *lua.LState) int {
				L.Push(lua.LString(filepath.Ext(L.CheckString(base(L, self)))))
				return 1
			},
		}
	})
}

func (c *Context) eventsAPI(L *lua.LState) *lua.LTable {
	return module(L, func(self *lua.LTable) map[string]lua.LGFunction {
		return map[string]lua.LGFunction{
			"on": func(L *lua.LState) int {
				b := base(L, self)
				typ := events.Type(L.CheckString(b))
				fn := L.CheckFunction(b + 1)
				if !knownEvent(typ) {
					L.ArgError(b, "unknown event "+string(typ))
					return 0
				}
				if !c.declares(typ) {
					c.log.Warn("subscription to undeclared event refused", "event", typ, "declared", strings.Join(c.Plugin.Events, ","))
					L.Push(lua.LFalse)
					return 1
				}
				c.SubscribeLua(typ, fn)
				L.Push(lua.LTrue)
				return 1
			},
		}
	})
}

// declares reports whether the plugin may listen to typ.
func (c *Context) declares(typ events.Type) bool {
	return len(c.Plugin.Events) == 0 || slices.Contains(c.Plugin.Events, string(typ))
}

func knownEvent(typ events.Type) bool {
	for _, t := range events.Types {
		if t == typ {
			return true
		}
	}
	return false
}
