package script

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/ledlink/internal/color"
)

// logLoader provides log.debug/info/warn/error(msg, fields?) to scripts.
func logLoader(L *lua.LState) int {
	mod := L.NewTable()
	L.SetField(mod, "debug", L.NewFunction(logAt(log.Debug)))
	L.SetField(mod, "info", L.NewFunction(logAt(log.Info)))
	L.SetField(mod, "warn", L.NewFunction(logAt(log.Warn)))
	L.SetField(mod, "error", L.NewFunction(logAt(log.Error)))
	L.Push(mod)
	return 1
}

func logAt(level func() *zerolog.Event) lua.LGFunction {
	return func(L *lua.LState) int {
		msg := L.CheckString(1)
		event := level().Str("source", "lua")
		if tbl, ok := L.Get(2).(*lua.LTable); ok {
			tbl.ForEach(func(k, v lua.LValue) {
				event = event.Interface(lua.LVAsString(k), luaToGo(v))
			})
		}
		event.Msg(msg)
		return 0
	}
}

// colorLoader provides color helpers:
//
//	color.hsl(h, s, l) -> r, g, b
//	color.hex(str) -> r, g, b | nil, err
//	color.to_hex(r, g, b) -> str
func colorLoader(L *lua.LState) int {
	mod := L.NewTable()
	L.SetField(mod, "hsl", L.NewFunction(func(L *lua.LState) int {
		r, g, b := color.FromHSL(float64(L.CheckNumber(1)), float64(L.OptNumber(2, 1)), float64(L.OptNumber(3, 0.5)))
		L.Push(lua.LNumber(r))
		L.Push(lua.LNumber(g))
		L.Push(lua.LNumber(b))
		return 3
	}))
	L.SetField(mod, "hex", L.NewFunction(func(L *lua.LState) int {
		r, g, b, err := color.ParseHex(L.CheckString(1))
		if err != nil {
			L.Push(lua.LNil)
			L.Push(lua.LString(err.Error()))
			return 2
		}
		L.Push(lua.LNumber(r))
		L.Push(lua.LNumber(g))
		L.Push(lua.LNumber(b))
		return 3
	}))
	L.SetField(mod, "to_hex", L.NewFunction(func(L *lua.LState) int {
		s := color.New(L.CheckInt(1), L.CheckInt(2), L.CheckInt(3), 0, false)
		L.Push(lua.LString(s.Hex()))
		return 1
	}))
	L.Push(mod)
	return 1
}
