package simplecache

import (
	"strconv"
	"time"

	pr "github.com/unkn0wn-root/simplecache/provider"
)

// releaseScript deletes KEYS[1] only while it still holds the token ARGV[1].
var releaseScript = pr.NewScript(`
if redis.call('get', KEYS[1]) == ARGV[1] then
  return redis.call('del', KEYS[1])
else
  return 0
end`, func(tx pr.Tx, keys, args []string) (int64, error) {
	if v, ok := tx.Get(keys[0]); !ok || string(v) != args[0] {
		return 0, nil
	}
	if tx.Del(keys[0]) {
		return 1, nil
	}
	return 0, nil
})

// extendScript resets the lease of KEYS[1] to ARGV[2] ms while it still holds ARGV[1].
var extendScript = pr.NewScript(`
if redis.call('get', KEYS[1]) == ARGV[1] then
  return redis.call('pexpire', KEYS[1], ARGV[2])
else
  return 0
end`, func(tx pr.Tx, keys, args []string) (int64, error) {
	if v, ok := tx.Get(keys[0]); !ok || string(v) != args[0] {
		return 0, nil
	}
	ms, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return 0, err
	}
	if tx.PExpire(keys[0], time.Duration(ms)*time.Millisecond) {
		return 1, nil
	}
	return 0, nil
})
