package script

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/ledlink/internal/color"
)

// luaToGo converts a Lua value to a Go value
func luaToGo(v lua.LValue) any {
	switch val := v.(type) {
	case lua.LString:
		return string(val)
	case lua.LNumber:
		return float64(val)
	case lua.LBool:
		return bool(val)
	case *lua.LTable:
		isArray := true
		maxIdx := 0
		val.ForEach(func(k, _ lua.LValue) {
			if num, ok := k.(lua.LNumber); ok {
				if idx := int(num); idx > maxIdx {
					maxIdx = idx
				}
			} else {
				isArray = false
			}
		})

		if isArray && maxIdx > 0 {
			arr := make([]any, maxIdx)
			val.ForEach(func(k, v lua.LValue) {
				if num, ok := k.(lua.LNumber); ok {
					arr[int(num)-1] = luaToGo(v)
				}
			})
			return arr
		}

		obj := make(map[string]any)
		val.ForEach(func(k, v lua.LValue) {
			obj[lua.LVAsString(k)] = luaToGo(v)
		})
		return obj
	case *lua.LNilType:
		return nil
	default:
		return v.String()
	}
}

// goToLua converts a Go value to a Lua value
func goToLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case string:
		return lua.LString(val)
	case []any:
		tbl := L.NewTable()
		for i, item := range val {
			tbl.RawSetInt(i+1, goToLua(L, item))
		}
		return tbl
	case map[string]any:
		tbl := L.NewTable()
		for k, v := range val {
			tbl.RawSetString(k, goToLua(L, v))
		}
		return tbl
	default:
		return lua.LString(fmt.Sprintf("%v", v))
	}
}

// stateTable exposes a color state to Lua.
func stateTable(L *lua.LState, s color.State) *lua.LTable {
	tbl := L.NewTable()
	L.SetField(tbl, "red", lua.LNumber(s.Red))
	L.SetField(tbl, "green", lua.LNumber(s.Green))
	L.SetField(tbl, "blue", lua.LNumber(s.Blue))
	L.SetField(tbl, "brightness", lua.LNumber(s.Brightness))
	L.SetField(tbl, "power", lua.LBool(s.Power))
	L.SetField(tbl, "hex", lua.LString(s.Hex()))
	return tbl
}

// partialFromTable reads a frame returned by a script.
// Accepted keys: red/r, green/g, blue/b, brightness, power, hex.
func partialFromTable(tbl *lua.LTable) (color.Partial, error) {
	var p color.Partial

	if hex := tbl.RawGetString("hex"); hex != lua.LNil {
		r, g, b, err := color.ParseHex(lua.LVAsString(hex))
		if err != nil {
			return p, err
		}
		p = color.RGB(r, g, b)
	}

	for _, f := range []struct {
		dst   **int
		names []string
	}{
		{&p.Red, []string{"red", "r"}},
		{&p.Green, []string{"green", "g"}},
		{&p.Blue, []string{"blue", "b"}},
		{&p.Brightness, []string{"brightness"}},
	} {
		for _, name := range f.names {
			v := tbl.RawGetString(name)
			if v == lua.LNil {
				continue
			}
			n, ok := v.(lua.LNumber)
			if !ok {
				return p, fmt.Errorf("frame field %q must be a number, got %s", name, v.Type())
			}
			*f.dst = color.Int(int(n))
			break
		}
	}

	if v := tbl.RawGetString("power"); v != lua.LNil {
		p.Power = color.Bool(lua.LVAsBool(v))
	}
	return p, nil
}
