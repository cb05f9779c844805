package simplecache

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Connector joins key segments.
const Connector = ":"

// KeyCodec builds store keys as prefix:namespace:key, skipping blank segments.
// It is pure; equal inputs always produce equal keys.
type KeyCodec struct {
	Prefix string
}

// BuildKey returns the store key for key under namespace.
func (kc KeyCodec) BuildKey(namespace string, key any) string {
	return join(kc.Prefix, namespace, stringify(key))
}

// BuildNamespacePattern returns a KEYS glob matching every key of namespace.
// Glob metacharacters in prefix and namespace are escaped, so "User" never
// matches keys of "Users" or of a namespace literally named "User*".
//
// Clearing by pattern enumerates the whole keyspace on the server: it is
// O(n) and not atomic with concurrent writers.
func (kc KeyCodec) BuildNamespacePattern(namespace string) string {
	return join(escapeGlob(kc.Prefix), escapeGlob(namespace), "*")
}

// BuildKeys maps keys to store keys in order. Duplicate keys map to the
// same store key and are kept, so out[i] always belongs to keys[i].
func BuildKeys[K comparable](kc KeyCodec, namespace string, keys []K) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = kc.BuildKey(namespace, k)
	}
	return out
}

// TypeNamespace names a namespace after T's package-qualified type name,
// e.g. "github.com/acme/app/model.User".
func TypeNamespace[T any]() string {
	t := reflect.TypeOf((*T)(nil)).Elem()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.PkgPath() == "" || t.Name() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}

func join(segments ...string) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if strings.TrimSpace(s) != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, Connector)
}

func stringify(key any) string {
	switch k := key.(type) {
	case string:
		return k
	case fmt.Stringer:
		return k.String()
	case int:
		return strconv.Itoa(k)
	case int64:
		return strconv.FormatInt(k, 10)
	case int32:
		return strconv.FormatInt(int64(k), 10)
	case uint:
		return strconv.FormatUint(uint64(k), 10)
	case uint64:
		return strconv.FormatUint(k, 10)
	case uint32:
		return strconv.FormatUint(uint64(k), 10)
	case []byte:
		return string(k)
	}
	return fmt.Sprint(key)
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func escapeGlob(s string) string { return globEscaper.Replace(s) }
