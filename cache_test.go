package simplecache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	c "github.com/unkn0wn-root/simplecache/codec"
	pr "github.com/unkn0wn-root/simplecache/provider"
	"github.com/unkn0wn-root/simplecache/provider/memory"
)

type user struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock { return &clock{t: time.Unix(1_700_000_000, 0)} }

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

// faulty wraps a provider and injects errors per operation.
type faulty struct {
	pr.Provider
	getErr    error
	setNXErr  error
	expireErr error
	evalErr   error
	noScan    bool
	noMSetNX  bool

	evals atomic.Int32
}

func (f *faulty) Name() string { return "faulty" }

func (f *faulty) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if f.getErr != nil {
		return nil, false, f.getErr
	}
	return f.Provider.Get(ctx, key)
}

func (f *faulty) MGet(ctx context.Context, keys []string) ([]pr.Result, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.Provider.MGet(ctx, keys)
}

func (f *faulty) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if f.setNXErr != nil {
		return false, f.setNXErr
	}
	return f.Provider.SetNX(ctx, key, value, ttl)
}

func (f *faulty) MSetNX(ctx context.Context, items []pr.Item, ttl time.Duration) (bool, error) {
	if f.noMSetNX {
		return false, pr.ErrUnsupported
	}
	return f.Provider.MSetNX(ctx, items, ttl)
}

func (f *faulty) PExpire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if f.expireErr != nil {
		return false, f.expireErr
	}
	return f.Provider.PExpire(ctx, key, ttl)
}

func (f *faulty) Keys(ctx context.Context, pattern string) ([]string, error) {
	if f.noScan {
		return nil, pr.ErrUnsupported
	}
	return f.Provider.Keys(ctx, pattern)
}

func (f *faulty) Eval(ctx context.Context, s *pr.Script, keys, args []string) (int64, error) {
	f.evals.Add(1)
	if f.evalErr != nil {
		return 0, f.evalErr
	}
	return f.Provider.Eval(ctx, s, keys, args)
}

// recorder counts hook events.
type recorder struct {
	NopHooks
	mu        sync.Mutex
	decode    []bool // healed flags
	degraded  int
	writeBack int
	negative  []time.Duration
	expire    int
	contended int
	lost      int
	relFailed int
}

func (r *recorder) DecodeFailed(_ string, healed bool, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decode = append(r.decode, healed)
}

func (r *recorder) NegativeCached(_ string, ttl time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.negative = append(r.negative, ttl)
}

func (r *recorder) bump(n *int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	*n++
}

func (r *recorder) ReadDegraded(string, error)               { r.bump(&r.degraded) }
func (r *recorder) WriteBackFailed(string, error)            { r.bump(&r.writeBack) }
func (r *recorder) ExpirePassFailed(string, int)             { r.bump(&r.expire) }
func (r *recorder) LockContended(string, int, time.Duration) { r.bump(&r.contended) }
func (r *recorder) LockLost(string)                          { r.bump(&r.lost) }
func (r *recorder) LockReleaseFailed(string, error)          { r.bump(&r.relFailed) }

func newTestCache(t *testing.T, p pr.Provider, optsOpt func(*Options[user])) Cache[string, user] {
	t.Helper()
	opts := Options[user]{
		Provider:  p,
		Codec:     c.JSON[user]{},
		Prefix:    "app",
		LockDelay: time.Millisecond,
	}
	if optsOpt != nil {
		optsOpt(&opts)
	}
	cc, err := New[string, user](opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = cc.Close(context.Background()) })
	return cc
}

func mustImpl[K comparable, V any](t *testing.T, cc Cache[K, V]) *cache[K, V] {
	t.Helper()
	impl, ok := cc.(*cache[K, V])
	if !ok {
		t.Fatalf("unexpected concrete type for Cache")
	}
	return impl
}

func TestNewValidates(t *testing.T) {
	if _, err := New[string, user](Options[user]{Codec: c.JSON[user]{}}); !errors.Is(err, ErrNilProvider) {
		t.Fatalf("nil provider: err=%v", err)
	}
	if _, err := New[string, user](Options[user]{Provider: memory.New()}); !errors.Is(err, ErrNilCodec) {
		t.Fatalf("nil codec: err=%v", err)
	}
}

// TestSingleFlow covers put, get, remove and exists on one key.
func TestSingleFlow(t *testing.T) {
	ctx := context.Background()
	mp := memory.New()
	cc := newTestCache(t, mp, nil)
	v := user{ID: "u1", Name: "Ada"}

	if _, ok, err := cc.Get(ctx, "User", "u1"); err != nil || ok {
		t.Fatalf("Get miss expected, got ok=%v err=%v", ok, err)
	}
	if err := cc.Put(ctx, "User", "u1", v, 0); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, ok := mp.TTL("app:User:u1"); !ok {
		t.Fatalf("store key app:User:u1 not written")
	}
	if got, ok, err := cc.Get(ctx, "User", "u1"); err != nil || !ok || got != v {
		t.Fatalf("Get after put: ok=%v err=%v got=%v", ok, err, got)
	}
	if ok, err := cc.Exists(ctx, "User", "u1"); err != nil || !ok {
		t.Fatalf("Exists: ok=%v err=%v", ok, err)
	}
	if ok, err := cc.Remove(ctx, "User", "u1"); err != nil || !ok {
		t.Fatalf("Remove: ok=%v err=%v", ok, err)
	}
	if ok, err := cc.Remove(ctx, "User", "u1"); err != nil || ok {
		t.Fatalf("second Remove must report false: ok=%v err=%v", ok, err)
	}
	if _, ok, _ := cc.Get(ctx, "User", "u1"); ok {
		t.Fatalf("value survived Remove")
	}
}

func TestPutTTLAndExpire(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	mp := memory.New(memory.WithClock(clk.Now))
	cc := newTestCache(t, mp, nil)

	if err := cc.Put(ctx, "User", "u1", user{ID: "u1"}, time.Second); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if ok, err := cc.Expire(ctx, "User", "u1", time.Minute); err != nil || !ok {
		t.Fatalf("Expire: ok=%v err=%v", ok, err)
	}
	if ttl, _ := mp.TTL("app:User:u1"); ttl != time.Minute {
		t.Fatalf("ttl after Expire = %v, want 1m", ttl)
	}
	if _, err := cc.Expire(ctx, "User", "u1", 0); !errors.Is(err, ErrInvalidTTL) {
		t.Fatalf("Expire(0): err=%v, want ErrInvalidTTL", err)
	}
	if ok, err := cc.Expire(ctx, "User", "nope", time.Minute); err != nil || ok {
		t.Fatalf("Expire missing: ok=%v err=%v", ok, err)
	}
	clk.Advance(time.Minute)
	if _, ok, _ := cc.Get(ctx, "User", "u1"); ok {
		t.Fatalf("value outlived its ttl")
	}
}

// TestPutIfAbsentRace: of many concurrent writers exactly one wins.
func TestPutIfAbsentRace(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, memory.New(), nil)

	const n = 32
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := cc.PutIfAbsent(ctx, "User", "racy", user{ID: "racy", Name: string(rune('a' + i%26))}, time.Minute)
			if err != nil {
				t.Errorf("PutIfAbsent: %v", err)
			}
			if ok {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()
	if got := wins.Load(); got != 1 {
		t.Fatalf("PutIfAbsent winners = %d, want 1", got)
	}
}

// TestPutIfAbsentTTLAtomic: the winning write carries its TTL immediately.
func TestPutIfAbsentTTLAtomic(t *testing.T) {
	ctx := context.Background()
	mp := memory.New(memory.WithClock(newClock().Now))
	cc := newTestCache(t, mp, nil)

	ok, err := cc.PutIfAbsent(ctx, "User", "u1", user{ID: "u1"}, 5*time.Second)
	if err != nil || !ok {
		t.Fatalf("PutIfAbsent: ok=%v err=%v", ok, err)
	}
	if ttl, present := mp.TTL("app:User:u1"); !present || ttl != 5*time.Second {
		t.Fatalf("ttl = %v present=%v, want 5s", ttl, present)
	}
	ok, err = cc.PutIfAbsent(ctx, "User", "u1", user{ID: "other"}, time.Second)
	if err != nil || ok {
		t.Fatalf("second PutIfAbsent must lose: ok=%v err=%v", ok, err)
	}
	if ttl, _ := mp.TTL("app:User:u1"); ttl != 5*time.Second {
		t.Fatalf("losing PutIfAbsent changed ttl to %v", ttl)
	}
}

func TestStoreErrorsClassified(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("connection reset")
	cc := newTestCache(t, &faulty{Provider: memory.New(), getErr: boom}, nil)

	_, _, err := cc.Get(ctx, "User", "u1")
	var se *StoreError
	if !errors.As(err, &se) || !errors.Is(err, boom) || se.Key != "app:User:u1" {
		t.Fatalf("Get store failure: err=%v", err)
	}
	var ce *CapabilityError
	if errors.As(err, &ce) {
		t.Fatalf("store failure classified as capability error")
	}
}

func TestGetCorruptIsDecodeError(t *testing.T) {
	ctx := context.Background()
	mp := memory.New()
	rec := &recorder{}
	cc := newTestCache(t, mp, func(o *Options[user]) { o.Hooks = rec })

	_ = mp.Set(ctx, "app:User:u1", []byte("not an envelope"), 0)
	_, ok, err := cc.Get(ctx, "User", "u1")
	var de *DecodeError
	if ok || !errors.As(err, &de) || de.Key != "app:User:u1" {
		t.Fatalf("Get corrupt: ok=%v err=%v", ok, err)
	}
	if len(rec.decode) != 1 || rec.decode[0] {
		t.Fatalf("DecodeFailed hook = %v, want one unhealed event", rec.decode)
	}
	if n, _ := mp.Exists(ctx, "app:User:u1"); n != 1 {
		t.Fatalf("plain Get must not delete corrupt entries")
	}
}

func TestPutAllGetAll(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, memory.New(), nil)
	items := map[string]user{
		"u1": {ID: "u1", Name: "Ada"},
		"u2": {ID: "u2", Name: "Grace"},
	}
	if err := cc.PutAll(ctx, "User", items, time.Minute); err != nil {
		t.Fatalf("PutAll: %v", err)
	}
	got, err := cc.GetAll(ctx, "User", []string{"u1", "u2", "u3", "u1"})
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(got) != 2 || got["u1"] != items["u1"] || got["u2"] != items["u2"] {
		t.Fatalf("GetAll = %v", got)
	}
	if _, ok := got["u3"]; ok {
		t.Fatalf("absent key u3 present in result")
	}

	if ok, _ := cc.ExistsAll(ctx, "User", []string{"u1", "u2", "u1"}); !ok {
		t.Fatalf("ExistsAll with duplicates must be true")
	}
	if ok, _ := cc.ExistsAll(ctx, "User", []string{"u1", "u3"}); ok {
		t.Fatalf("ExistsAll with a missing key must be false")
	}
	if ok, _ := cc.ExistsAll(ctx, "User", nil); ok {
		t.Fatalf("ExistsAll on no keys must be false")
	}
	if n, _ := cc.CountExisting(ctx, "User", []string{"u1", "u1", "u3"}); n != 2 {
		t.Fatalf("CountExisting = %d, want 2", n)
	}
	if ok, err := cc.RemoveAll(ctx, "User", []string{"u1", "u3"}); err != nil || !ok {
		t.Fatalf("RemoveAll: ok=%v err=%v", ok, err)
	}
	if ok, _ := cc.RemoveAll(ctx, "User", []string{"u3"}); ok {
		t.Fatalf("RemoveAll of absent keys must be false")
	}
}

func TestGetAllPartialOnDecodeError(t *testing.T) {
	ctx := context.Background()
	mp := memory.New()
	cc := newTestCache(t, mp, nil)
	_ = cc.Put(ctx, "User", "u1", user{ID: "u1"}, 0)
	_ = mp.Set(ctx, "app:User:u2", []byte{0xde, 0xad}, 0)

	got, err := cc.GetAll(ctx, "User", []string{"u1", "u2"})
	var de *DecodeError
	if !errors.As(err, &de) || de.Key != "app:User:u2" {
		t.Fatalf("GetAll err = %v, want DecodeError for u2", err)
	}
	if len(got) != 1 || got["u1"].ID != "u1" {
		t.Fatalf("GetAll partial = %v", got)
	}
}

// TestPutAllExpirePassFailure: values land, the TTL pass fails, the caller is told.
func TestPutAllExpirePassFailure(t *testing.T) {
	ctx := context.Background()
	mp := memory.New()
	rec := &recorder{}
	cc := newTestCache(t, &faulty{Provider: mp, expireErr: errors.New("timeout")}, func(o *Options[user]) { o.Hooks = rec })

	err := cc.PutAll(ctx, "User", map[string]user{"u1": {ID: "u1"}, "u2": {ID: "u2"}}, time.Minute)
	var xe *ExpireError
	if !errors.As(err, &xe) || len(xe.Keys) != 2 {
		t.Fatalf("PutAll err = %v, want ExpireError for 2 keys", err)
	}
	var se *StoreError
	if !errors.As(err, &se) {
		t.Fatalf("ExpireError must wrap the store errors: %v", err)
	}
	if rec.expire != 1 {
		t.Fatalf("ExpirePassFailed hook fired %d times", rec.expire)
	}
	if ttl, ok := mp.TTL("app:User:u1"); !ok || ttl != 0 {
		t.Fatalf("u1 ttl=%v present=%v, want persisted without expiry", ttl, ok)
	}
	// without ttl no expire pass runs
	if err := cc.PutAll(ctx, "User", map[string]user{"u3": {ID: "u3"}}, 0); err != nil {
		t.Fatalf("PutAll without ttl: %v", err)
	}
}

func TestPutAllIfAbsent(t *testing.T) {
	ctx := context.Background()
	mp := memory.New(memory.WithClock(newClock().Now))
	cc := newTestCache(t, mp, nil)

	ok, err := cc.PutAllIfAbsent(ctx, "User", map[string]user{"u1": {ID: "u1"}, "u2": {ID: "u2"}}, 3*time.Second)
	if err != nil || !ok {
		t.Fatalf("PutAllIfAbsent fresh: ok=%v err=%v", ok, err)
	}
	for _, k := range []string{"app:User:u1", "app:User:u2"} {
		if ttl, _ := mp.TTL(k); ttl != 3*time.Second {
			t.Fatalf("%s ttl = %v, want 3s", k, ttl)
		}
	}
	ok, err = cc.PutAllIfAbsent(ctx, "User", map[string]user{"u2": {ID: "x"}, "u9": {ID: "u9"}}, 0)
	if err != nil || ok {
		t.Fatalf("PutAllIfAbsent overlapping: ok=%v err=%v", ok, err)
	}
	if ok, _ := cc.Exists(ctx, "User", "u9"); ok {
		t.Fatalf("u9 written by a failed PutAllIfAbsent")
	}
	if ok, _ := cc.PutAllIfAbsent(ctx, "User", nil, 0); ok {
		t.Fatalf("empty PutAllIfAbsent must report false")
	}
}

func TestCapabilityErrors(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, &faulty{Provider: memory.New(), noScan: true, noMSetNX: true}, nil)

	_, err := cc.PutAllIfAbsent(ctx, "User", map[string]user{"u1": {ID: "u1"}}, time.Second)
	var ce *CapabilityError
	if !errors.As(err, &ce) || ce.Op != "put_all_if_absent" || ce.Backend != "faulty" || !errors.Is(err, ErrUnsupported) {
		t.Fatalf("PutAllIfAbsent err = %v, want CapabilityError", err)
	}
	if ok, _ := cc.Exists(ctx, "User", "u1"); ok {
		t.Fatalf("unsupported PutAllIfAbsent must not fall back to a weaker write")
	}
	if _, err := cc.Clear(ctx, "User"); !errors.As(err, &ce) || ce.Op != "clear" {
		t.Fatalf("Clear err = %v, want CapabilityError", err)
	}
}

func TestClearNamespaceOnly(t *testing.T) {
	ctx := context.Background()
	mp := memory.New()
	cc := newTestCache(t, mp, nil)
	_ = cc.Put(ctx, "User", "u1", user{ID: "u1"}, 0)
	_ = cc.Put(ctx, "User", "u2", user{ID: "u2"}, 0)
	_ = cc.Put(ctx, "Users", "u1", user{ID: "u1"}, 0)
	_ = mp.Set(ctx, "other:User:u1", []byte("x"), 0)

	ok, err := cc.Clear(ctx, "User")
	if err != nil || !ok {
		t.Fatalf("Clear: ok=%v err=%v", ok, err)
	}
	if n, _ := cc.CountExisting(ctx, "User", []string{"u1", "u2"}); n != 0 {
		t.Fatalf("User keys survived Clear")
	}
	if ok, _ := cc.Exists(ctx, "Users", "u1"); !ok {
		t.Fatalf("Clear(User) removed a Users key")
	}
	if n, _ := mp.Exists(ctx, "other:User:u1"); n != 1 {
		t.Fatalf("Clear removed a key of another prefix")
	}
	if ok, _ := cc.Clear(ctx, "User"); ok {
		t.Fatalf("Clear of an empty namespace must report false")
	}
}

func TestClearKeepsLeases(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, memory.New(), nil)
	l, err := cc.Lock("job", time.Minute)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if ok, err := l.TryAcquire(ctx); err != nil || !ok {
		t.Fatalf("TryAcquire: ok=%v err=%v", ok, err)
	}
	if _, err := cc.Clear(ctx, LockNamespace); !errors.Is(err, ErrReservedNamespace) {
		t.Fatalf("Clear(lock) err = %v, want ErrReservedNamespace", err)
	}
	if ok, err := l.Release(ctx); err != nil || !ok {
		t.Fatalf("lease lost after refused Clear: ok=%v err=%v", ok, err)
	}
}

func TestClearAllRequiresIntent(t *testing.T) {
	ctx := context.Background()
	mp := memory.New()
	cc := newTestCache(t, mp, nil)
	_ = cc.Put(ctx, "User", "u1", user{ID: "u1"}, 0)

	if ok, err := cc.ClearAll(ctx, 0); ok || !errors.Is(err, ErrNotConfirmed) {
		t.Fatalf("ClearAll without intent: ok=%v err=%v", ok, err)
	}
	if mp.Len() != 1 {
		t.Fatalf("ClearAll without intent touched the store")
	}
	if ok, err := cc.ClearAll(ctx, FlushDatabase); err != nil || !ok {
		t.Fatalf("ClearAll: ok=%v err=%v", ok, err)
	}
	if mp.Len() != 0 {
		t.Fatalf("ClearAll left %d keys", mp.Len())
	}
}

func TestClosed(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, memory.New(), nil)
	if err := cc.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := cc.Close(ctx); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, _, err := cc.Get(ctx, "User", "u1"); !errors.Is(err, ErrClosed) {
		t.Fatalf("Get after Close: err=%v", err)
	}
	if _, err := cc.GetAllOrCompute(ctx, "User", []string{"u1"}, nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("GetAllOrCompute after Close: err=%v", err)
	}
	if _, err := cc.Lock("job", time.Second); !errors.Is(err, ErrClosed) {
		t.Fatalf("Lock after Close: err=%v", err)
	}
}
