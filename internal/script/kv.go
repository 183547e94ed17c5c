package script

import (
	"time"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/ledlink/internal/kv"
)

const bucketTypeName = "kv_bucket"

// kvModule exposes kv buckets to scripts:
//
//	local b = kv:bucket("script", { persistent = false })
//	b:store("hue", 120, { ttl = 60 })
//	b:get("hue")
type kvModule struct {
	manager *kv.Manager
}

func (m *kvModule) Loader(L *lua.LState) int {
	mt := L.NewTypeMetatable(bucketTypeName)
	L.SetField(mt, "__index", L.SetFuncs(L.NewTable(), bucketMethods))

	mod := L.NewTable()
	L.SetField(mod, "bucket", L.NewFunction(m.bucket))
	L.SetField(mod, "list", L.NewFunction(m.list))

	L.Push(mod)
	return 1
}

// bucket(name, opts) -> Bucket
// Scripts get memory buckets unless opts.persistent is true.
func (m *kvModule) bucket(L *lua.LState) int {
	L.CheckTable(1) // self
	name := L.OptString(2, kv.BucketScript)

	persistent := false
	if opts := L.OptTable(3, nil); opts != nil {
		if p := L.GetField(opts, "persistent"); p != lua.LNil {
			persistent = lua.LVAsBool(p)
		}
	}
	if name == kv.BucketSettings {
		L.ArgError(2, "bucket is reserved")
		return 0
	}

	ud := L.NewUserData()
	ud.Value = m.manager.Bucket(name, persistent)
	L.SetMetatable(ud, L.GetTypeMetatable(bucketTypeName))

	L.Push(ud)
	return 1
}

// list() -> table
func (m *kvModule) list(L *lua.LState) int {
	L.CheckTable(1) // self

	tbl := L.NewTable()
	names, err := m.manager.List()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to list buckets")
	}
	for i, name := range names {
		tbl.RawSetInt(i+1, lua.LString(name))
	}

	L.Push(tbl)
	return 1
}

var bucketMethods = map[string]lua.LGFunction{
	"store":  bucketStore,
	"get":    bucketGet,
	"delete": bucketDelete,
	"keys":   bucketKeys,
}

func checkBucket(L *lua.LState, pos int) kv.Bucket {
	ud := L.CheckUserData(pos)
	if bucket, ok := ud.Value.(kv.Bucket); ok {
		return bucket
	}
	L.ArgError(pos, "bucket expected")
	return nil
}

// store(key, value, opts) -> nil
// opts: { ttl = seconds }
func bucketStore(L *lua.LState) int {
	bucket := checkBucket(L, 1)
	key := L.CheckString(2)
	value := luaToGo(L.Get(3))

	var opts *kv.StoreOptions
	if optsTable := L.OptTable(4, nil); optsTable != nil {
		if ttl, ok := L.GetField(optsTable, "ttl").(lua.LNumber); ok {
			opts = &kv.StoreOptions{TTL: time.Duration(float64(ttl) * float64(time.Second))}
		}
	}

	if err := bucket.Store(key, value, opts); err != nil {
		log.Warn().Err(err).
			Str("bucket", bucket.Name()).
			Str("key", key).
			Msg("Failed to store value")
	}
	return 0
}

// get(key) -> value | nil
func bucketGet(L *lua.LState) int {
	bucket := checkBucket(L, 1)
	key := L.CheckString(2)

	value, err := bucket.Get(key)
	if err != nil {
		log.Warn().Err(err).
			Str("bucket", bucket.Name()).
			Str("key", key).
			Msg("Failed to get value")
	}
	L.Push(goToLua(L, value))
	return 1
}

// delete(key) -> bool
func bucketDelete(L *lua.LState) int {
	bucket := checkBucket(L, 1)
	deleted, err := bucket.Delete(L.CheckString(2))
	if err != nil {
		log.Warn().Err(err).Str("bucket", bucket.Name()).Msg("Failed to delete key")
	}
	L.Push(lua.LBool(deleted))
	return 1
}

// keys() -> table
func bucketKeys(L *lua.LState) int {
	bucket := checkBucket(L, 1)

	tbl := L.NewTable()
	keys, err := bucket.Keys()
	if err != nil {
		log.Warn().Err(err).Str("bucket", bucket.Name()).Msg("Failed to list keys")
	}
	for i, key := range keys {
		tbl.RawSetInt(i+1, lua.LString(key))
	}

	L.Push(tbl)
	return 1
}
