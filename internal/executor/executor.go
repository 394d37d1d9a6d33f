// Package executor runs plugin code inside the document: each plugin gets a
// container node, scoped storage and a sandboxed Lua state.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/charmbracelet/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/egoavara/modmgr/internal/dom"
	"github.com/egoavara/modmgr/internal/errs"
	"github.com/egoavara/modmgr/internal/events"
	"github.com/egoavara/modmgr/internal/logging"
	"github.com/egoavara/modmgr/internal/metrics"
	"github.com/egoavara/modmgr/internal/sandbox"
	"github.com/egoavara/modmgr/internal/store"
)

// ContainerPrefix prefixes the id of every plugin container.
const ContainerPrefix = "plugin-container-"

// ContainerClass is set on every plugin container.
const ContainerClass = "plugin-container"

// ErrPluginFailed wraps errors raised while running plugin code.
var ErrPluginFailed = fmt.Errorf("%w: plugin failed", errs.ErrExternalTool)

// Caller performs host API calls. *hostapi.Client implements it.
type Caller interface {
	Call(ctx context.Context, namespace, name string, args map[string]any) (json.RawMessage, error)
}

// Env holds what every plugin context shares.
type Env struct {
	Doc     *dom.Document
	Storage *store.JSONFile
	Host    Caller
	Events  *events.Dispatcher
	Loop    *sandbox.Loop
	Log     *log.Logger
	Metrics *metrics.Metrics
}

func (e *Env) logger() *log.Logger { return logging.Or(e.Log).WithPrefix("executor") }

func (e *Env) storage() *store.JSONFile { return e.Storage }

func (e *Env) metrics() *metrics.Metrics { return metrics.Or(e.Metrics) }

// ContainerID returns the container id of a plugin.
func ContainerID(pluginID string) string {
	return ContainerPrefix + pluginID
}

// Executor tracks the plugins currently shown on the home view.
type Executor struct {
	env *Env

	mu   sync.Mutex
	live map[string]*Context
}

// New returns an executor for env.
func New(env *Env) *Executor {
	return &Executor{env: env, live: make(map[string]*Context)}
}

// Run creates a container for p, loads its entry and calls the returned
// function with the plugin context. A returned coroutine is awaited. On
// failure the container is removed and the error returned.
func (x *Executor) Run(ctx context.Context, p Plugin) (*Context, error) {
	logger := x.env.logger()
	x.stop(p.ID)

	container := x.env.Doc.CreateElement("div", ContainerID(p.ID))
	container.SetAttr("class", ContainerClass)
	x.env.Doc.Body.AppendChild(container)

	pc := NewContext(ctx, x.env, p, container)
	if err := x.start(pc); err != nil {
		logger.Error("plugin failed", "plugin", p.ID, "err", err)
		x.discard(pc)
		x.env.metrics().PluginRuns.WithLabelValues(metrics.ResultError).Inc()
		return nil, fmt.Errorf("%w: %s: %w", ErrPluginFailed, p.ID, err)
	}
	x.env.metrics().PluginRuns.WithLabelValues(metrics.ResultOK).Inc()

	x.mu.Lock()
	x.live[p.ID] = pc
	x.mu.Unlock()
	logger.Debug("plugin started", "plugin", p.ID)
	return pc, nil
}

func (x *Executor) start(pc *Context) error {
	fn, err := pc.state.LoadFile(pc.Plugin.Entry)
	if err != nil {
		return err
	}
	ret, err := pc.state.Call(fn)
	if err != nil {
		return err
	}
	if len(ret) == 0 || ret[0].Type() != lua.LTFunction {
		return fmt.Errorf("%s must return a function", pc.Plugin.Entry)
	}
	out, err := pc.state.Call(ret[0], pc.table)
	if err != nil {
		return err
	}
	if len(out) > 0 && sandbox.IsAwaitable(out[0]) {
		_, err = pc.state.Await(out[0])
	}
	return err
}

// discard tears down pc and removes its container.
func (x *Executor) discard(pc *Context) {
	pc.container.Teardown()
	pc.container.Remove()
	pc.Close()
}

// stop discards the live context of id, if any.
func (x *Executor) stop(id string) {
	x.mu.Lock()
	pc, ok := x.live[id]
	delete(x.live, id)
	x.mu.Unlock()
	if ok {
		x.discard(pc)
	}
}

// Stop discards the plugin with id and reports whether it was running.
func (x *Executor) Stop(id string) bool {
	x.mu.Lock()
	_, ok := x.live[id]
	x.mu.Unlock()
	x.stop(id)
	return ok
}

// Live returns the ids of running plugins, sorted.
func (x *Executor) Live() []string {
	x.mu.Lock()
	defer x.mu.Unlock()
	ids := make([]string, 0, len(x.live))
	for id := range x.live {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ClearHomeContent removes every plugin container. Cleanup callbacks run,
// each container is swapped for a listener-free clone before removal so no
// handler outlives it, and the home shell is hidden.
func (x *Executor) ClearHomeContent() {
	x.mu.Lock()
	live := x.live
	x.live = make(map[string]*Context)
	x.mu.Unlock()

	for _, id := range sortedIDs(live) {
		pc := live[id]
		pc.container.Teardown()
		if pc.container.Parent() != nil {
			clone := pc.container.CloneWithoutListeners()
			pc.container.ReplaceWith(clone)
			clone.Remove()
		}
		pc.Close()
	}
	x.env.Doc.HideShell()
}

func sortedIDs(m map[string]*Context) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
