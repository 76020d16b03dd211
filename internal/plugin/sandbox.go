package plugin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
)

var errStateClosed = errors.New("plugin state is closed")

// builtinModules may be loaded with require besides the editor module.
var builtinModules = []string{lua.TabLibName, lua.StringLibName, lua.MathLibName}

// state is one plugin's Lua interpreter. LState is not goroutine-safe, so
// every entry into Lua goes through run.
type state struct {
	mu     sync.Mutex
	L      *lua.LState
	closed bool
}

// newState creates an interpreter with only base, table, string and math
// opened. The load family is removed and require resolves the editor module
// built by module and the opened libraries only.
func newState(module func(L *lua.LState) *lua.LTable) *state {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.fn))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}

	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require", "module"} {
		L.SetGlobal(name, lua.LNil)
	}

	editor := module(L)
	L.SetGlobal("editor", editor)
	L.SetGlobal("require", L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		if name == "editor" {
			L.Push(editor)
			return 1
		}
		for _, lib := range builtinModules {
			if name == lib {
				L.Push(L.GetGlobal(name))
				return 1
			}
		}
		L.RaiseError("module %q is not available to plugins", name)
		return 0
	}))

	return &state{L: L}
}

// run executes fn with ctx installed on the interpreter, bounded by timeout.
// gopher-lua checks the context between instructions, so a runaway loop is
// interrupted.
func (s *state) run(ctx context.Context, timeout time.Duration, fn func(L *lua.LState) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStateClosed
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	s.L.SetContext(ctx)
	defer s.L.RemoveContext()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	err = fn(s.L)
	if err != nil && timeout > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("timed out after %s", timeout)
	}
	return err
}

func (s *state) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.L.Close()
}
