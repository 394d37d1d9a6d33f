// Package sandbox runs mod code in a restricted gopher-lua state.
//
// The state opens only the base, table, string, math and coroutine libraries,
// removes the file loaders and replaces require with a whitelist. Host
// functionality reaches mod code through an explicit context table, never
// through globals. This is a trust boundary for well-behaved mods, not an
// OS-level isolation.
package sandbox

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/egoavara/modmgr/internal/errs"
)

var (
	// ErrStateClosed is returned when operating on a closed state.
	ErrStateClosed = errors.New("lua state is closed")
	// ErrModuleDenied is returned by require for modules outside the whitelist.
	ErrModuleDenied = fmt.Errorf("%w: module not available", errs.ErrSecurityViolation)
)

// safeModules are the built-in modules require may return.
var safeModules = map[string]bool{
	"string":    true,
	"table":     true,
	"math":      true,
	"coroutine": true,
}

// State wraps an LState. It is not goroutine-safe: run it on a Loop.
type State struct {
	L *lua.LState

	mu     sync.Mutex
	root   string
	closed bool
	await  lua.LValue
}

// StateOption configures a State.
type StateOption func(*State)

// WithRoot lets require load sibling .lua files below dir.
func WithRoot(dir string) StateOption {
	return func(s *State) {
		s.root = dir
	}
}

// NewState creates a restricted Lua state.
func NewState(opts ...StateOption) *State {
	s := &State{}
	for _, opt := range opts {
		opt(s)
	}

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	s.L = L

	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.LoadLibName, lua.OpenPackage},
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
		{lua.CoroutineLibName, lua.OpenCoroutine},
	} {
		L.Push(L.NewFunction(lib.open))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}

	for _, name := range []string{"dofile", "loadfile", "load", "loadstring"} {
		L.SetGlobal(name, lua.LNil)
	}
	s.installRequire()
	return s
}

// Preload makes name available to require.
func (s *State) Preload(name string, loader lua.LGFunction) {
	s.L.PreloadModule(name, loader)
}

// installRequire replaces require with a version that returns preloaded and
// whitelisted modules and, with a root, .lua files inside it.
func (s *State) installRequire() {
	L := s.L
	original := L.GetGlobal("require")

	if pkg, ok := L.GetGlobal("package").(*lua.LTable); ok {
		L.SetField(pkg, "path", lua.LString(""))
		L.SetField(pkg, "cpath", lua.LString(""))
	}

	L.SetGlobal("require", L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)

		if safeModules[name] || s.preloaded(name) {
			L.Push(original)
			L.Push(lua.LString(name))
			L.Call(1, 1)
			return 1
		}

		if path, ok := s.resolveLocal(name); ok {
			loaded := L.GetField(L.GetField(L.GetGlobal("package"), "loaded"), path)
			if loaded != lua.LNil {
				L.Push(loaded)
				return 1
			}
			fn, err := L.LoadFile(path)
			if err != nil {
				L.RaiseError("require %q: %v", name, err)
				return 0
			}
			L.Push(fn)
			L.Call(0, 1)
			mod := L.Get(-1)
			if mod == lua.LNil {
				mod = lua.LTrue
				L.Pop(1)
				L.Push(mod)
			}
			L.SetField(L.GetField(L.GetGlobal("package"), "loaded"), path, mod)
			return 1
		}

		L.RaiseError("%v: %q", ErrModuleDenied, name)
		return 0
	}))
}

func (s *State) preloaded(name string) bool {
	pkg, ok := s.L.GetGlobal("package").(*lua.LTable)
	if !ok {
		return false
	}
	preload, ok := s.L.GetField(pkg, "preload").(*lua.LTable)
	if !ok {
		return false
	}
	return preload.RawGetString(name) != lua.LNil
}

// resolveLocal maps "a.b" to root/a/b.lua when that file exists inside root.
func (s *State) resolveLocal(name string) (string, bool) {
	if s.root == "" || strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return "", false
	}
	rel := strings.ReplaceAll(name, ".", string(filepath.Separator)) + ".lua"
	path := filepath.Join(s.root, rel)
	if !strings.HasPrefix(path, filepath.Clean(s.root)+string(filepath.Separator)) {
		return "", false
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", false
	}
	return path, true
}

// LoadFile compiles a file into a function without running it.
func (s *State) LoadFile(path string) (*lua.LFunction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStateClosed
	}
	return s.L.LoadFile(path)
}

// LoadString compiles source into a function without running it.
func (s *State) LoadString(source string) (*lua.LFunction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStateClosed
	}
	return s.L.LoadString(source)
}

// DoString runs source.
func (s *State) DoString(source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStateClosed
	}
	return recoverLua(func() error {
		return s.L.DoString(source)
	})
}

// Call invokes fn with args in protected mode and returns its results.
func (s *State) Call(fn lua.LValue, args ...lua.LValue) ([]lua.LValue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStateClosed
	}
	if fn.Type() != lua.LTFunction {
		return nil, fmt.Errorf("not a function (got %s)", fn.Type())
	}

	top := s.L.GetTop()
	s.L.Push(fn)
	for _, a := range args {
		s.L.Push(a)
	}

	if err := recoverLua(func() error {
		return s.L.PCall(len(args), lua.MultRet, nil)
	}); err != nil {
		s.L.SetTop(top)
		return nil, err
	}

	n := s.L.GetTop() - top
	results := make([]lua.LValue, n)
	for i := 0; i < n; i++ {
		results[i] = s.L.Get(top + i + 1)
	}
	s.L.SetTop(top)
	return results, nil
}

// Close releases the state. Later calls return ErrStateClosed.
func (s *State) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.L.Close()
	s.closed = true
}

// IsClosed reports whether Close was called.
func (s *State) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func recoverLua(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn()
}
