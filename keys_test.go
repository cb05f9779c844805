package simplecache

import (
	"testing"

	pr "github.com/unkn0wn-root/simplecache/provider"
)

type orderID int

func (o orderID) String() string { return "order-" + string(rune('0'+int(o))) }

func TestBuildKey(t *testing.T) {
	kc := KeyCodec{Prefix: "app"}
	cases := []struct {
		name string
		kc   KeyCodec
		ns   string
		key  any
		want string
	}{
		{"full", kc, "User", "u1", "app:User:u1"},
		{"no prefix", KeyCodec{}, "User", "u1", "User:u1"},
		{"blank prefix", KeyCodec{Prefix: "  "}, "User", "u1", "User:u1"},
		{"blank namespace", kc, "", "u1", "app:u1"},
		{"int key", kc, "Order", 42, "app:Order:42"},
		{"uint64 key", kc, "Order", uint64(7), "app:Order:7"},
		{"stringer key", kc, "Order", orderID(3), "app:Order:order-3"},
		{"bytes key", kc, "Blob", []byte("b1"), "app:Blob:b1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.kc.BuildKey(tc.ns, tc.key); got != tc.want {
				t.Fatalf("BuildKey = %q, want %q", got, tc.want)
			}
			if again := tc.kc.BuildKey(tc.ns, tc.key); again != tc.want {
				t.Fatalf("BuildKey not deterministic: %q", again)
			}
		})
	}
}

func TestBuildKeysKeepsOrderAndDuplicates(t *testing.T) {
	got := BuildKeys(KeyCodec{Prefix: "app"}, "User", []string{"u2", "u1", "u2"})
	want := []string{"app:User:u2", "app:User:u1", "app:User:u2"}
	if len(got) != len(want) {
		t.Fatalf("BuildKeys = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("BuildKeys[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestBuildNamespacePattern(t *testing.T) {
	kc := KeyCodec{Prefix: "app"}
	if got := kc.BuildNamespacePattern("User"); got != "app:User:*" {
		t.Fatalf("pattern = %q", got)
	}
	if got := kc.BuildNamespacePattern("a*b?"); got != `app:a\*b\?:*` {
		t.Fatalf("escaped pattern = %q", got)
	}

	p := kc.BuildNamespacePattern("User")
	for key, want := range map[string]bool{
		"app:User:u1":   true,
		"app:User:":     true,
		"app:Users:u1":  false,
		"other:User:u1": false,
	} {
		if got := pr.Match(p, key); got != want {
			t.Errorf("Match(%q, %q) = %v, want %v", p, key, got, want)
		}
	}
	if pr.Match(kc.BuildNamespacePattern("U*"), "app:User:u1") {
		t.Errorf("namespace U* must match only itself")
	}
	if !pr.Match(kc.BuildNamespacePattern("U*"), "app:U*:u1") {
		t.Errorf("namespace U* must match its own keys")
	}
}

func TestTypeNamespace(t *testing.T) {
	const want = "github.com/unkn0wn-root/simplecache.user"
	if got := TypeNamespace[user](); got != want {
		t.Fatalf("TypeNamespace[user] = %q, want %q", got, want)
	}
	if got := TypeNamespace[*user](); got != want {
		t.Fatalf("TypeNamespace[*user] = %q, want %q", got, want)
	}
	if got := TypeNamespace[int](); got != "int" {
		t.Fatalf("TypeNamespace[int] = %q", got)
	}
}
