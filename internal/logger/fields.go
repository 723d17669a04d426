package logger

import "log/slog"

// Standard field keys for structured logging.
// Use these keys consistently so log lines can be aggregated and queried.
const (
	// Distributed Tracing
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// Request
	KeyCommand   = "command"    // LIST, GET, PUT, DELETE
	KeyFilename  = "filename"   // Target filename
	KeySize      = "size"       // Declared or stored file size in bytes
	KeyState     = "state"      // Session state name
	KeyStatus    = "status"     // ok, error, aborted
	KeyStatusMsg = "status_msg" // Wire error message sent to the client

	// I/O
	KeyBytesRead    = "bytes_read"    // Bytes received from the peer
	KeyBytesWritten = "bytes_written" // Bytes sent to the peer

	// Connection
	KeyClientIP     = "client_ip"     // Client IP address
	KeyConnectionID = "connection_id" // Server-assigned connection number
	KeyFD           = "fd"            // Socket descriptor
	KeyActive       = "active"        // Live connection count

	// Operation Metadata
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message

	// Storage Backend
	KeyStoreType = "store_type" // fs, memory, badger, s3
	KeyBucket    = "bucket"     // S3 bucket name
	KeyKey       = "key"        // Object key in the backend
	KeyPath      = "path"       // Filesystem path
)

// Filename returns a slog.Attr for the target filename
func Filename(name string) slog.Attr {
	return slog.String(KeyFilename, name)
}

// Size returns a slog.Attr for file size
func Size(s uint64) slog.Attr {
	return slog.Uint64(KeySize, s)
}

// State returns a slog.Attr for a session state name
func State(name string) slog.Attr {
	return slog.String(KeyState, name)
}

// BytesRead returns a slog.Attr for bytes received
func BytesRead(n uint64) slog.Attr {
	return slog.Uint64(KeyBytesRead, n)
}

// BytesWritten returns a slog.Attr for bytes sent
func BytesWritten(n uint64) slog.Attr {
	return slog.Uint64(KeyBytesWritten, n)
}

// ClientIP returns a slog.Attr for client IP address
func ClientIP(addr string) slog.Attr {
	return slog.String(KeyClientIP, addr)
}

// ConnectionID returns a slog.Attr for the connection number
func ConnectionID(id uint64) slog.Attr {
	return slog.Uint64(KeyConnectionID, id)
}

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// StoreType returns a slog.Attr for the store backend type
func StoreType(t string) slog.Attr {
	return slog.String(KeyStoreType, t)
}
