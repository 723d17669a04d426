package logger

import "context"

type ctxKey struct{}

// LogContext is the set of fields every log line about one connection, or
// one request on it, should carry.
type LogContext struct {
	ConnectionID uint64
	ClientIP     string
	Command      string // empty between requests
	Filename     string // empty for LIST
	TraceID      string
	SpanID       string
}

// NewLogContext describes a freshly accepted connection.
func NewLogContext(connID uint64, clientIP string) *LogContext {
	return &LogContext{ConnectionID: connID, ClientIP: clientIP}
}

// ForRequest derives the fields for one request on the connection. lc is
// left untouched so the next request starts clean.
func (lc *LogContext) ForRequest(command, filename, traceID, spanID string) *LogContext {
	if lc == nil {
		return nil
	}
	r := *lc
	r.Command, r.Filename = command, filename
	r.TraceID, r.SpanID = traceID, spanID
	return &r
}

// WithContext attaches lc to ctx.
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, lc)
}

// FromContext returns the LogContext attached to ctx, or nil.
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(ctxKey{}).(*LogContext)
	return lc
}

// prepend puts the non-empty fields of lc in front of args.
func (lc *LogContext) prepend(args []any) []any {
	if lc == nil {
		return args
	}
	out := make([]any, 0, 12+len(args))
	add := func(key string, v any, set bool) {
		if set {
			out = append(out, key, v)
		}
	}
	add(KeyTraceID, lc.TraceID, lc.TraceID != "")
	add(KeySpanID, lc.SpanID, lc.SpanID != "")
	add(KeyConnectionID, lc.ConnectionID, lc.ConnectionID != 0)
	add(KeyCommand, lc.Command, lc.Command != "")
	add(KeyFilename, lc.Filename, lc.Filename != "")
	add(KeyClientIP, lc.ClientIP, lc.ClientIP != "")
	return append(out, args...)
}
