// Package logrus adapts a *logrus.Entry to simplecache.Logger.
package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/simplecache"
)

var _ simplecache.Logger = Logger{}

type Logger struct{ E *logrus.Entry }

func (l Logger) Debug(msg string, f simplecache.Fields) { l.with(f).Debug(msg) }
func (l Logger) Info(msg string, f simplecache.Fields)  { l.with(f).Info(msg) }
func (l Logger) Warn(msg string, f simplecache.Fields)  { l.with(f).Warn(msg) }
func (l Logger) Error(msg string, f simplecache.Fields) { l.with(f).Error(msg) }

// with moves an "err" field to logrus.ErrorKey so formatters and hooks see it.
func (l Logger) with(f simplecache.Fields) *logrus.Entry {
	if len(f) == 0 {
		return l.E
	}
	out := make(logrus.Fields, len(f))
	for k, v := range f {
		if err, ok := v.(error); ok && k == "err" {
			out[logrus.ErrorKey] = err
			continue
		}
		out[k] = v
	}
	return l.E.WithFields(out)
}
