package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys. Request-level keys use the "fs." prefix.
const (
	AttrClientIP     = "client.ip"
	AttrConnectionID = "stowd.connection_id"

	AttrCommand    = "fs.operation"
	AttrFilename   = "fs.filename"
	AttrSize       = "fs.size"
	AttrStatus     = "fs.status"
	AttrStatusMsg  = "fs.status_msg"
	AttrBytesRead  = "fs.bytes_read"
	AttrBytesWrite = "fs.bytes_written"

	AttrStoreType = "store.type"
	AttrBucket    = "storage.bucket"
	AttrKey       = "storage.key"
)

// SpanRequestPrefix prefixes request span names: stowd.LIST, stowd.PUT, ...
const SpanRequestPrefix = "stowd."

// StartRequestSpan starts the span covering one request on a connection.
func StartRequestSpan(ctx context.Context, command string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, SpanRequestPrefix+command,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(append([]attribute.KeyValue{Command(command)}, attrs...)...),
	)
}

// ClientIP returns the client IP attribute.
func ClientIP(ip string) attribute.KeyValue {
	return attribute.String(AttrClientIP, ip)
}

// ConnectionID returns the connection number attribute.
func ConnectionID(id uint64) attribute.KeyValue {
	return attribute.Int64(AttrConnectionID, int64(id))
}

// Command returns the request command attribute.
func Command(name string) attribute.KeyValue {
	return attribute.String(AttrCommand, name)
}

// Filename returns the target filename attribute.
func Filename(name string) attribute.KeyValue {
	return attribute.String(AttrFilename, name)
}

// Size returns the declared or stored size attribute.
func Size(size uint64) attribute.KeyValue {
	return attribute.Int64(AttrSize, int64(size))
}

// Status returns the outcome attribute (ok, error, aborted).
func Status(status string) attribute.KeyValue {
	return attribute.String(AttrStatus, status)
}

// StatusMsg returns the wire error message attribute.
func StatusMsg(msg string) attribute.KeyValue {
	return attribute.String(AttrStatusMsg, msg)
}

// BytesRead returns the received payload bytes attribute.
func BytesRead(n uint64) attribute.KeyValue {
	return attribute.Int64(AttrBytesRead, int64(n))
}

// BytesWritten returns the sent payload bytes attribute.
func BytesWritten(n uint64) attribute.KeyValue {
	return attribute.Int64(AttrBytesWrite, int64(n))
}

// StoreType returns the store backend attribute.
func StoreType(t string) attribute.KeyValue {
	return attribute.String(AttrStoreType, t)
}
