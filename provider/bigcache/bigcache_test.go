package bigcache

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	pr "github.com/unkn0wn-root/simplecache/provider"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTest(t *testing.T) (*Provider, *clock) {
	t.Helper()
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	p, err := New(Config{LifeWindow: time.Hour, Now: clk.Now})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = p.Close(context.Background()) })
	return p, clk
}

func TestInvalidConfig(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("zero LifeWindow must be rejected")
	}
}

func TestPerEntryTTL(t *testing.T) {
	ctx := context.Background()
	p, clk := newTest(t)

	_ = p.Set(ctx, "short", []byte("s"), time.Second)
	_ = p.Set(ctx, "forever", []byte{0, 1, 0}, 0)
	clk.Advance(time.Second)

	if _, ok, _ := p.Get(ctx, "short"); ok {
		t.Fatal("entry outlived its ttl")
	}
	got, ok, err := p.Get(ctx, "forever")
	if err != nil || !ok || !slices.Equal(got, []byte{0, 1, 0}) {
		t.Fatalf("Get forever = %v ok=%v err=%v", got, ok, err)
	}
}

func TestSetNXAndPExpire(t *testing.T) {
	ctx := context.Background()
	p, clk := newTest(t)

	if ok, _ := p.SetNX(ctx, "k", []byte("1"), time.Second); !ok {
		t.Fatal("first SetNX must win")
	}
	if ok, _ := p.SetNX(ctx, "k", []byte("2"), time.Second); ok {
		t.Fatal("second SetNX must lose")
	}
	if ok, _ := p.PExpire(ctx, "k", time.Minute); !ok {
		t.Fatal("PExpire on present key")
	}
	clk.Advance(2 * time.Second)
	if v, ok, _ := p.Get(ctx, "k"); !ok || string(v) != "1" {
		t.Fatalf("PExpire did not extend: v=%q ok=%v", v, ok)
	}
	clk.Advance(time.Minute)
	if ok, _ := p.SetNX(ctx, "k", []byte("3"), 0); !ok {
		t.Fatal("SetNX after expiry must win")
	}
}

func TestKeysAndDel(t *testing.T) {
	ctx := context.Background()
	p, clk := newTest(t)
	_ = p.MSet(ctx, []pr.Item{{Key: "app:User:1", Value: []byte("a")}, {Key: "app:Users:1", Value: []byte("b")}})
	_ = p.Set(ctx, "app:User:2", []byte("c"), time.Second)
	_ = p.Set(ctx, "app:User:3", []byte("d"), 0)
	clk.Advance(time.Second)

	got, err := p.Keys(ctx, "app:User:*")
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	slices.Sort(got)
	if want := []string{"app:User:1", "app:User:3"}; !slices.Equal(got, want) {
		t.Fatalf("Keys = %v, want %v", got, want)
	}
	if n, _ := p.Del(ctx, "app:User:1", "app:User:2", "nope"); n != 1 {
		t.Fatalf("Del = %d, want 1", n)
	}
	if n, _ := p.Exists(ctx, "app:User:1", "app:User:3", "app:User:3"); n != 2 {
		t.Fatalf("Exists = %d, want 2", n)
	}
	if err := p.FlushDB(ctx); err != nil {
		t.Fatalf("FlushDB: %v", err)
	}
	if n, _ := p.Exists(ctx, "app:User:3"); n != 0 {
		t.Fatal("key survived FlushDB")
	}
}

func TestUnsupported(t *testing.T) {
	ctx := context.Background()
	p, _ := newTest(t)
	if _, err := p.MSetNX(ctx, []pr.Item{{Key: "a", Value: []byte("1")}}, time.Second); !errors.Is(err, pr.ErrUnsupported) {
		t.Fatalf("MSetNX: err=%v", err)
	}
	if _, err := p.Eval(ctx, pr.MSetNXWithTTL, nil, nil); !errors.Is(err, pr.ErrUnsupported) {
		t.Fatalf("Eval: err=%v", err)
	}
}

func TestWritesSerialized(t *testing.T) {
	ctx := context.Background()
	p, _ := newTest(t)
	if p.CanEval() || pr.CanEval(p) {
		t.Fatal("bigcache must report no script engine")
	}

	const n = 16
	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if ok, err := p.SetNX(ctx, "nx", []byte("x"), time.Minute); err == nil && ok {
				wins.Add(1)
			}
		}()
		go func() {
			defer wg.Done()
			_ = p.Set(ctx, "plain", []byte("y"), 0)
			_, _ = p.Del(ctx, "plain")
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("SetNX won %d times, want 1", wins.Load())
	}
}
