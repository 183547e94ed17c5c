// Package script runs user-defined effects written in Lua.
//
// A Runtime owns one Lua VM and is not safe for concurrent use: every call,
// including the frame calls made by running effects, must come from the same
// goroutine (the session timeline).
package script

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/ledlink/internal/color"
	"github.com/dokzlo13/ledlink/internal/kv"
)

const (
	// MinInterval is the shortest accepted effect cadence.
	MinInterval = 20 * time.Millisecond
	// FrameBudget bounds a single frame call; a script exceeding it is aborted.
	FrameBudget = 250 * time.Millisecond
)

// ErrInvalidDefinition is returned for a malformed effect.define call.
var ErrInvalidDefinition = errors.New("invalid effect definition")

// Definition is an effect registered by a script.
type Definition struct {
	Name     string
	Interval time.Duration

	fn *lua.LFunction
	rt *Runtime
}

// Frame calls the script for frame number tick. ok is false when the script
// returned nil, meaning "no change this tick".
func (d *Definition) Frame(ctx context.Context, tick int, start color.State) (p color.Partial, ok bool, err error) {
	L := d.rt.L

	ctx, cancel := context.WithTimeout(ctx, FrameBudget)
	defer cancel()
	L.SetContext(ctx)
	defer L.RemoveContext()

	err = L.CallByParam(lua.P{
		Fn:      d.fn,
		NRet:    1,
		Protect: true,
	}, lua.LNumber(tick), stateTable(L, start))
	if err != nil {
		return p, false, fmt.Errorf("effect %s: %w", d.Name, err)
	}

	ret := L.Get(-1)
	L.Pop(1)

	switch v := ret.(type) {
	case *lua.LNilType:
		return p, false, nil
	case *lua.LTable:
		p, err = partialFromTable(v)
		if err != nil {
			return p, false, fmt.Errorf("effect %s: %w", d.Name, err)
		}
		return p, !p.IsZero(), nil
	default:
		return p, false, fmt.Errorf("effect %s: frame must be a table or nil, got %s", d.Name, ret.Type())
	}
}

// Runtime manages the Lua VM and the effects defined by scripts.
type Runtime struct {
	L       *lua.LState
	effects map[string]*Definition
	// reserved names cannot be defined by scripts
	reserved map[string]bool
}

// NewRuntime creates a runtime. manager backs the kv module and may be nil.
func NewRuntime(manager *kv.Manager, reserved ...string) *Runtime {
	r := &Runtime{
		L:        lua.NewState(),
		effects:  make(map[string]*Definition),
		reserved: make(map[string]bool, len(reserved)),
	}
	for _, name := range reserved {
		r.reserved[name] = true
	}
	if manager == nil {
		manager = kv.NewManager(nil)
	}

	r.L.PreloadModule("log", logLoader)
	r.L.PreloadModule("color", colorLoader)
	r.L.PreloadModule("kv", (&kvModule{manager: manager}).Loader)
	r.L.PreloadModule("effect", r.effectLoader)
	return r
}

// Close releases the VM.
func (r *Runtime) Close() {
	r.L.Close()
}

// LoadFile executes a script file.
func (r *Runtime) LoadFile(path string) error {
	log.Info().Str("path", path).Msg("Loading effect script")

	if err := r.L.DoFile(path); err != nil {
		return fmt.Errorf("failed to execute Lua script: %w", err)
	}

	log.Info().Strs("effects", r.Names()).Msg("Effect script loaded")
	return nil
}

// LoadString executes script source.
func (r *Runtime) LoadString(source string) error {
	if err := r.L.DoString(source); err != nil {
		return fmt.Errorf("failed to execute Lua script: %w", err)
	}
	return nil
}

// Lookup returns a defined effect.
func (r *Runtime) Lookup(name string) (*Definition, bool) {
	d, ok := r.effects[name]
	return d, ok
}

// Names lists the defined effects, sorted.
func (r *Runtime) Names() []string {
	names := make([]string, 0, len(r.effects))
	for name := range r.effects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// effectLoader provides effect.define(name, interval_ms, fn) and effect.list().
func (r *Runtime) effectLoader(L *lua.LState) int {
	mod := L.NewTable()
	L.SetField(mod, "define", L.NewFunction(r.define))
	L.SetField(mod, "list", L.NewFunction(func(L *lua.LState) int {
		tbl := L.NewTable()
		for i, name := range r.Names() {
			tbl.RawSetInt(i+1, lua.LString(name))
		}
		L.Push(tbl)
		return 1
	}))
	L.Push(mod)
	return 1
}

func (r *Runtime) define(L *lua.LState) int {
	name := L.CheckString(1)
	ms := L.CheckNumber(2)
	fn := L.CheckFunction(3)

	if name == "" || r.reserved[name] {
		L.RaiseError("%v: name %q is not available", ErrInvalidDefinition, name)
		return 0
	}

	interval := time.Duration(float64(ms) * float64(time.Millisecond))
	if interval < MinInterval {
		log.Warn().
			Str("effect", name).
			Dur("interval", interval).
			Dur("min", MinInterval).
			Msg("Effect interval raised to minimum")
		interval = MinInterval
	}

	if _, exists := r.effects[name]; exists {
		log.Warn().Str("effect", name).Msg("Effect redefined")
	}
	r.effects[name] = &Definition{Name: name, Interval: interval, fn: fn, rt: r}
	log.Debug().Str("effect", name).Dur("interval", interval).Msg("Effect defined")
	return 0
}
