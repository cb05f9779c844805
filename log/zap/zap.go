// Package zap adapts a *zap.Logger to simplecache.Logger.
package zap

import (
	"slices"

	"go.uber.org/zap"

	"github.com/unkn0wn-root/simplecache"
)

var _ simplecache.Logger = Logger{}

type Logger struct{ L *zap.Logger }

func (z Logger) Debug(msg string, f simplecache.Fields) { z.L.Debug(msg, fields(f)...) }
func (z Logger) Info(msg string, f simplecache.Fields)  { z.L.Info(msg, fields(f)...) }
func (z Logger) Warn(msg string, f simplecache.Fields)  { z.L.Warn(msg, fields(f)...) }
func (z Logger) Error(msg string, f simplecache.Fields) { z.L.Error(msg, fields(f)...) }

// fields emits keys in sorted order; an error value keeps its key but is
// encoded by zap's error encoder.
func fields(f simplecache.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make([]zap.Field, 0, len(f))
	for _, k := range keys {
		switch v := f[k].(type) {
		case error:
			out = append(out, zap.NamedError(k, v))
		default:
			out = append(out, zap.Any(k, v))
		}
	}
	return out
}
