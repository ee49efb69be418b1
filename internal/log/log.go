// Package log provides context-scoped structured logging on top of logrus,
// following the same ctx-first, key/value calling convention as the
// teacher's own log package.
package log

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"
)

type ctxKey struct{}

var base = logrus.New()

func init() {
	base.SetOutput(os.Stderr)
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// SetLevel adjusts the minimum level that is actually emitted.
func SetLevel(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	base.SetLevel(lvl)
}

// NewContext returns a child context carrying an entry with the given
// key/value pairs merged into any entry already present on ctx.
func NewContext(ctx context.Context, keyvals ...interface{}) context.Context {
	return context.WithValue(ctx, ctxKey{}, entryFromContext(ctx).WithFields(fields(keyvals)))
}

func entryFromContext(ctx context.Context) *logrus.Entry {
	if ctx == nil {
		return logrus.NewEntry(base)
	}
	if e, ok := ctx.Value(ctxKey{}).(*logrus.Entry); ok {
		return e
	}
	return logrus.NewEntry(base)
}

func fields(keyvals []interface{}) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i+1 < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		f[key] = keyvals[i+1]
	}
	return f
}

func Debug(ctx context.Context, msg string, keyvals ...interface{}) {
	entryFromContext(ctx).WithFields(fields(keyvals)).Debug(msg)
}

func Info(ctx context.Context, msg string, keyvals ...interface{}) {
	entryFromContext(ctx).WithFields(fields(keyvals)).Info(msg)
}

func Warn(ctx context.Context, msg string, keyvals ...interface{}) {
	entryFromContext(ctx).WithFields(fields(keyvals)).Warn(msg)
}

// Error logs at error level. err may be nil; when present it is attached
// under the "error" field, matching the teacher's Error(ctx, msg, err, kv...).
func Error(ctx context.Context, msg string, err error, keyvals ...interface{}) {
	e := entryFromContext(ctx).WithFields(fields(keyvals))
	if err != nil {
		e = e.WithError(err)
	}
	e.Error(msg)
}

// Fatal logs at error level and terminates the process with a non-zero
// exit code. Reserved for startup configuration/schema failures (spec §7).
func Fatal(ctx context.Context, msg string, err error, keyvals ...interface{}) {
	e := entryFromContext(ctx).WithFields(fields(keyvals))
	if err != nil {
		e = e.WithError(err)
	}
	e.Fatal(msg)
}
