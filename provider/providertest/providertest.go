// Package providertest holds a conformance suite for full-capability providers.
package providertest

import (
	"bytes"
	"context"
	"slices"
	"testing"
	"time"

	pr "github.com/unkn0wn-root/simplecache/provider"
)

// Factory returns a fresh, empty provider. The suite closes it.
type Factory func(t *testing.T) pr.Provider

// compareAndDelete is a small script every driver must run the same way.
var compareAndDelete = pr.NewScript(`
if redis.call('get', KEYS[1]) == ARGV[1] then
  return redis.call('del', KEYS[1])
end
return 0`, func(tx pr.Tx, keys, args []string) (int64, error) {
	v, ok := tx.Get(keys[0])
	if !ok || string(v) != args[0] {
		return 0, nil
	}
	if tx.Del(keys[0]) {
		return 1, nil
	}
	return 0, nil
})

// Run exercises the provider contract against stores produced by newP.
func Run(t *testing.T, newP Factory) {
	t.Helper()
	ctx := context.Background()

	open := func(t *testing.T) pr.Provider {
		p := newP(t)
		t.Cleanup(func() { _ = p.Close(ctx) })
		return p
	}

	t.Run("GetMiss", func(t *testing.T) {
		p := open(t)
		v, ok, err := p.Get(ctx, "nope")
		if err != nil || ok || v != nil {
			t.Fatalf("Get miss expected, got v=%v ok=%v err=%v", v, ok, err)
		}
	})

	t.Run("SetGetBinary", func(t *testing.T) {
		p := open(t)
		val := []byte{0, 1, 2, 0xff, 0, 'x'}
		if err := p.Set(ctx, "b", val, 0); err != nil {
			t.Fatalf("Set: %v", err)
		}
		got, ok, err := p.Get(ctx, "b")
		if err != nil || !ok || !bytes.Equal(got, val) {
			t.Fatalf("Get = %v ok=%v err=%v, want %v", got, ok, err, val)
		}
	})

	t.Run("SetNX", func(t *testing.T) {
		p := open(t)
		ok, err := p.SetNX(ctx, "k", []byte("1"), time.Minute)
		if err != nil || !ok {
			t.Fatalf("first SetNX: ok=%v err=%v", ok, err)
		}
		ok, err = p.SetNX(ctx, "k", []byte("2"), time.Minute)
		if err != nil || ok {
			t.Fatalf("second SetNX must lose: ok=%v err=%v", ok, err)
		}
		got, _, _ := p.Get(ctx, "k")
		if string(got) != "1" {
			t.Fatalf("value changed by losing SetNX: %q", got)
		}
	})

	t.Run("MGetOrder", func(t *testing.T) {
		p := open(t)
		if err := p.MSet(ctx, []pr.Item{{Key: "a", Value: []byte("A")}, {Key: "c", Value: []byte("C")}}); err != nil {
			t.Fatalf("MSet: %v", err)
		}
		res, err := p.MGet(ctx, []string{"c", "b", "a"})
		if err != nil {
			t.Fatalf("MGet: %v", err)
		}
		if len(res) != 3 {
			t.Fatalf("MGet len = %d", len(res))
		}
		if !res[0].Found || string(res[0].Value) != "C" || res[1].Found || !res[2].Found || string(res[2].Value) != "A" {
			t.Fatalf("MGet misordered: %+v", res)
		}
	})

	t.Run("MSetNXAllOrNothing", func(t *testing.T) {
		p := open(t)
		if err := p.Set(ctx, "y", []byte("old"), 0); err != nil {
			t.Fatal(err)
		}
		for _, ttl := range []time.Duration{0, time.Minute} {
			ok, err := p.MSetNX(ctx, []pr.Item{{Key: "x", Value: []byte("1")}, {Key: "y", Value: []byte("2")}}, ttl)
			if err != nil || ok {
				t.Fatalf("ttl=%v: MSetNX with existing key: ok=%v err=%v", ttl, ok, err)
			}
			if n, _ := p.Exists(ctx, "x"); n != 0 {
				t.Fatalf("ttl=%v: x written by failed MSetNX", ttl)
			}
		}
		ok, err := p.MSetNX(ctx, []pr.Item{{Key: "x", Value: []byte("1")}, {Key: "z", Value: []byte("3")}}, time.Minute)
		if err != nil || !ok {
			t.Fatalf("MSetNX fresh keys: ok=%v err=%v", ok, err)
		}
		if n, _ := p.Exists(ctx, "x", "z"); n != 2 {
			t.Fatalf("Exists after MSetNX = %d, want 2", n)
		}
	})

	t.Run("PExpire", func(t *testing.T) {
		p := open(t)
		ok, err := p.PExpire(ctx, "missing", time.Second)
		if err != nil || ok {
			t.Fatalf("PExpire missing: ok=%v err=%v", ok, err)
		}
		_ = p.Set(ctx, "e", []byte("v"), 0)
		ok, err = p.PExpire(ctx, "e", time.Minute)
		if err != nil || !ok {
			t.Fatalf("PExpire present: ok=%v err=%v", ok, err)
		}
	})

	t.Run("DelExists", func(t *testing.T) {
		p := open(t)
		_ = p.Set(ctx, "d1", []byte("1"), 0)
		_ = p.Set(ctx, "d2", []byte("2"), 0)
		if n, err := p.Exists(ctx, "d1", "d1", "nope"); err != nil || n != 2 {
			t.Fatalf("Exists dup = %d err=%v, want 2", n, err)
		}
		if n, err := p.Del(ctx, "d1", "d2", "nope"); err != nil || n != 2 {
			t.Fatalf("Del = %d err=%v, want 2", n, err)
		}
		if n, _ := p.Exists(ctx, "d1", "d2"); n != 0 {
			t.Fatalf("keys survived Del")
		}
	})

	t.Run("KeysPattern", func(t *testing.T) {
		p := open(t)
		for _, k := range []string{"app:User:1", "app:User:2", "app:Order:1", "app:Users:1"} {
			_ = p.Set(ctx, k, []byte("v"), 0)
		}
		got, err := p.Keys(ctx, "app:User:*")
		if err != nil {
			t.Fatalf("Keys: %v", err)
		}
		slices.Sort(got)
		want := []string{"app:User:1", "app:User:2"}
		if !slices.Equal(got, want) {
			t.Fatalf("Keys = %v, want %v", got, want)
		}
	})

	t.Run("FlushDB", func(t *testing.T) {
		p := open(t)
		_ = p.Set(ctx, "f1", []byte("v"), 0)
		if err := p.FlushDB(ctx); err != nil {
			t.Fatalf("FlushDB: %v", err)
		}
		if n, _ := p.Exists(ctx, "f1"); n != 0 {
			t.Fatalf("key survived FlushDB")
		}
	})

	t.Run("Eval", func(t *testing.T) {
		p := open(t)
		_ = p.Set(ctx, "lk", []byte("tok-a"), time.Minute)
		n, err := p.Eval(ctx, compareAndDelete, []string{"lk"}, []string{"tok-b"})
		if err != nil || n != 0 {
			t.Fatalf("Eval with foreign token = %d err=%v", n, err)
		}
		n, err = p.Eval(ctx, compareAndDelete, []string{"lk"}, []string{"tok-a"})
		if err != nil || n != 1 {
			t.Fatalf("Eval with owner token = %d err=%v", n, err)
		}
		if _, ok, _ := p.Get(ctx, "lk"); ok {
			t.Fatalf("key survived compare-and-delete")
		}
	})
}
