package provider

import "time"

// Tx is the view of the keyspace handed to a script's Local function.
// In-process drivers hold their write lock for the whole call.
type Tx interface {
	Get(key string) ([]byte, bool)
	Exists(key string) bool
	Set(key string, value []byte, ttl time.Duration)
	Del(key string) bool
	PExpire(key string, ttl time.Duration) bool
}

// LocalFunc is the in-process equivalent of a script's Lua body.
type LocalFunc func(tx Tx, keys []string, args []string) (int64, error)

// Script is an immutable server-side script. Remote drivers execute Lua
// (EVALSHA with EVAL fallback); in-process drivers execute Local.
type Script struct {
	lua   string
	local LocalFunc
}

// NewScript builds a script from its Lua source and an equivalent local function.
// local may be nil, in which case in-process drivers report ErrUnsupported.
func NewScript(lua string, local LocalFunc) *Script {
	return &Script{lua: lua, local: local}
}

// Lua returns the script source.
func (s *Script) Lua() string { return s.lua }

// Local returns the in-process implementation, if any.
func (s *Script) Local() LocalFunc { return s.local }

// MSetNXWithTTL writes every KEYS[i] = ARGV[i+1] with a PX of ARGV[1] only if
// none of the keys exist. Remote drivers use it because MSETNX cannot carry a TTL.
var MSetNXWithTTL = NewScript(`
for i = 1, #KEYS do
  if redis.call('exists', KEYS[i]) == 1 then
    return 0
  end
end
for i = 1, #KEYS do
  redis.call('set', KEYS[i], ARGV[i + 1], 'px', ARGV[1])
end
return 1`, nil)
