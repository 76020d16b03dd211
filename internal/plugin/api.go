package plugin

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/sirupsen/logrus"
	lua "github.com/yuin/gopher-lua"

	"github.com/hpungsan/quill/internal/db"
)

// runtime is a loaded plugin: its record and interpreter.
type runtime struct {
	m    *Manager
	id   string
	name string
	st   *state
	log  logrus.FieldLogger
}

func newRuntime(m *Manager, rec db.PluginRecord) *runtime {
	rt := &runtime{
		m:    m,
		id:   rec.ID,
		name: rec.Name,
		log:  m.log.WithField("plugin", rec.Name),
	}
	rt.st = newState(rt.module)
	return rt
}

// module builds the editor table, the plugin's only way to reach the host.
// print is routed to the log so plugins never write to stdout.
func (rt *runtime) module(L *lua.LState) *lua.LTable {
	L.SetGlobal("print", L.NewFunction(rt.logMessage))
	return L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"active_text":       rt.activeText,
		"set_active_text":   rt.setActiveText,
		"language":          rt.language,
		"compare_text":      rt.compareText,
		"is_diff_mode":      rt.isDiffMode,
		"set_compare":       rt.setCompare,
		"clear_compare":     rt.clearCompare,
		"set_mode":          rt.setMode,
		"selection":         rt.selection,
		"replace_selection": rt.replaceSelection,
		"storage_get":       rt.storageGet,
		"storage_set":       rt.storageSet,
		"register_action":   rt.registerAction,
		"log":               rt.logMessage,
	})
}

func (rt *runtime) host(L *lua.LState) Host {
	if rt.m.host == nil {
		L.RaiseError("no editor is attached")
	}
	return rt.m.host
}

// active_text() -> string
func (rt *runtime) activeText(L *lua.LState) int {
	text, err := rt.host(L).ActiveText()
	if err != nil {
		L.RaiseError("active_text: %s", err.Error())
		return 0
	}
	L.Push(lua.LString(text))
	return 1
}

// set_active_text(text)
func (rt *runtime) setActiveText(L *lua.LState) int {
	text := L.CheckString(1)
	if err := rt.host(L).SetActiveText(text); err != nil {
		L.RaiseError("set_active_text: %s", err.Error())
	}
	return 0
}

func (rt *runtime) language(L *lua.LState) int {
	L.Push(lua.LString(rt.host(L).Language()))
	return 1
}

func (rt *runtime) compareText(L *lua.LState) int {
	L.Push(lua.LString(rt.host(L).CompareText()))
	return 1
}

func (rt *runtime) isDiffMode(L *lua.LState) int {
	L.Push(lua.LBool(rt.host(L).IsDiffMode()))
	return 1
}

// set_compare(text [, name])
func (rt *runtime) setCompare(L *lua.LState) int {
	text := L.CheckString(1)
	name := L.OptString(2, "")
	rt.host(L).SetCompare(text, name)
	return 0
}

func (rt *runtime) clearCompare(L *lua.LState) int {
	rt.host(L).ClearCompare()
	return 0
}

// set_mode("single" | "split" | "diff")
func (rt *runtime) setMode(L *lua.LState) int {
	mode := L.CheckString(1)
	if err := rt.host(L).SetMode(mode); err != nil {
		L.RaiseError("set_mode: %s", err.Error())
	}
	return 0
}

// selection() -> string
func (rt *runtime) selection(L *lua.LState) int {
	L.Push(lua.LString(rt.host(L).Selection()))
	return 1
}

// replace_selection(text)
func (rt *runtime) replaceSelection(L *lua.LState) int {
	text := L.CheckString(1)
	if err := rt.host(L).ReplaceSelection(text); err != nil {
		L.RaiseError("replace_selection: %s", err.Error())
	}
	return 0
}

func (rt *runtime) storageKey(L *lua.LState) string {
	key := strings.TrimSpace(L.CheckString(1))
	if key == "" {
		L.ArgError(1, "key must not be empty")
	}
	return db.PluginStoragePrefix(rt.id) + key
}

// storage_get(key) -> value or nil
func (rt *runtime) storageGet(L *lua.LState) int {
	key := rt.storageKey(L)
	raw, ok, err := rt.m.store.GetSetting(luaContext(L), key)
	if err != nil {
		L.RaiseError("storage_get: %s", err.Error())
		return 0
	}
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		rt.log.WithError(err).WithField("key", key).Warn("ignoring unreadable plugin storage value")
		L.Push(lua.LNil)
		return 1
	}
	L.Push(toLua(L, v))
	return 1
}

// storage_set(key, value). A nil value deletes the key.
func (rt *runtime) storageSet(L *lua.LState) int {
	key := rt.storageKey(L)
	value := L.Get(2)
	ctx := luaContext(L)

	if value == lua.LNil {
		if err := rt.m.store.DeleteSetting(ctx, key); err != nil {
			L.RaiseError("storage_set: %s", err.Error())
		}
		return 0
	}

	v, err := toGo(value, 0)
	if err != nil {
		L.ArgError(2, err.Error())
		return 0
	}
	b, err := json.Marshal(v)
	if err != nil {
		L.ArgError(2, err.Error())
		return 0
	}
	if err := rt.m.store.SetSetting(ctx, key, string(b)); err != nil {
		L.RaiseError("storage_set: %s", err.Error())
	}
	return 0
}

// register_action(id, label, description, fn). Registering an existing id
// replaces it.
func (rt *runtime) registerAction(L *lua.LState) int {
	id := strings.TrimSpace(L.CheckString(1))
	label := L.CheckString(2)
	desc := L.OptString(3, "")
	fn := L.CheckFunction(4)
	if id == "" {
		L.ArgError(1, "action id must not be empty")
		return 0
	}

	rt.m.registerAction(&action{
		Action: Action{
			ID:          id,
			Label:       label,
			Description: desc,
			PluginID:    rt.id,
			PluginName:  rt.name,
		},
		rt: rt,
		fn: fn,
	})
	return 0
}

// log(msg)
func (rt *runtime) logMessage(L *lua.LState) int {
	parts := make([]string, 0, L.GetTop())
	for i := 1; i <= L.GetTop(); i++ {
		parts = append(parts, L.ToStringMeta(L.Get(i)).String())
	}
	rt.log.Info(strings.Join(parts, " "))
	return 0
}

func luaContext(L *lua.LState) context.Context {
	if ctx := L.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
