// Package session implements the per-connection protocol state machine.
//
// A Session is driven by the event loop: the loop refills the Session's
// inbound stream.Buffer with one chunk per read and calls ProcessNext, which
// runs state transitions until the chunk is consumed or the socket would
// block on write. Responses are queued in an output buffer and flushed
// through the connection; a flush that would block leaves the Session
// waiting until the next writable event, at which point ProcessNext resumes
// it. Nothing in this package blocks on the network.
//
// Sessions, the directory index and the store handles are owned by the loop
// goroutine and are not synchronized.
package session

import (
	"context"
	"errors"
	"io"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/marmos91/stowd/internal/logger"
	"github.com/marmos91/stowd/internal/protocol"
	"github.com/marmos91/stowd/internal/stream"
	"github.com/marmos91/stowd/internal/telemetry"
	"github.com/marmos91/stowd/pkg/bufpool"
	"github.com/marmos91/stowd/pkg/index"
	"github.com/marmos91/stowd/pkg/journal"
	"github.com/marmos91/stowd/pkg/metrics"
	"github.com/marmos91/stowd/pkg/store"
)

// ErrWouldBlock is what a non-blocking connection returns when its send
// buffer is full.
var ErrWouldBlock = stream.ErrWouldBlock

// DefaultChunkSize is the GET streaming piece size when Env.ChunkSize is unset.
const DefaultChunkSize = 64 << 10

// Status is the session lifetime status seen by the event loop.
type Status uint8

const (
	// StatusWaiting means the session needs more input or a writable socket.
	StatusWaiting Status = iota
	// StatusEnded means the request completed and the response is flushed.
	StatusEnded
	// StatusErrored means the session failed and the connection must close.
	StatusErrored
)

func (s Status) String() string {
	switch s {
	case StatusWaiting:
		return "waiting"
	case StatusEnded:
		return "ended"
	case StatusErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Env is the server context shared by every session.
type Env struct {
	Index   *index.Index
	Store   store.Store
	Metrics *metrics.ServerMetrics // nil disables metrics
	Journal *journal.Journal       // nil disables the journal
	Pool    *bufpool.Pool          // nil uses the default pool

	ByteOrder protocol.ByteOrder

	// ChunkSize is the size of each piece a GET reads from the store.
	ChunkSize int

	// MaxUploadSize rejects larger PUTs with "File too large". Zero means
	// unlimited.
	MaxUploadSize uint64

	// InboundSize is the capacity of each session's stream buffer.
	InboundSize int
}

func (e *Env) pool() *bufpool.Pool {
	if e.Pool == nil {
		return bufpool.Default()
	}
	return e.Pool
}

func (e *Env) chunkSize() int {
	if e.ChunkSize <= 0 {
		return DefaultChunkSize
	}
	return e.ChunkSize
}

// Info identifies the connection behind a session.
type Info struct {
	ID       uint64 // server-assigned connection number
	ClientIP string
}

// request is the bookkeeping for the request currently being served.
type request struct {
	active  bool
	command string
	name    string
	size    uint64
	started time.Time
	ctx     context.Context
	span    trace.Span
}

// Session is one connection's protocol state.
type Session struct {
	env    *Env
	conn   io.Writer
	handle int
	info   Info
	lc     *logger.LogContext

	in     *stream.Buffer
	parser *protocol.Parser
	state  state

	writer      store.Writer
	reader      store.Reader
	expected    uint64
	transferred uint64
	chunk       []byte

	hdr    []byte
	out    []byte
	outPos int

	req     request
	failure error

	lastActive time.Time
	drained    bool
	closed     bool
}

// New returns a session for the connection handle that writes responses to
// conn. conn.Write must return ErrWouldBlock, possibly with a partial count,
// when the socket cannot take more bytes.
func New(env *Env, handle int, conn io.Writer, info Info) *Session {
	inbound := env.InboundSize
	if inbound <= 0 {
		inbound = stream.DefaultSize
	}

	s := &Session{
		env:        env,
		conn:       conn,
		handle:     handle,
		info:       info,
		lc:         logger.NewLogContext(info.ID, info.ClientIP),
		in:         stream.NewFrom(env.pool().Get(inbound)),
		parser:     protocol.NewParser(env.ByteOrder),
		state:      readingHeader{},
		hdr:        make([]byte, 0, 64),
		lastActive: time.Now(),
	}
	s.in.Reset(handle)
	return s
}

// Handle returns the socket handle.
func (s *Session) Handle() int { return s.handle }

// Info returns the connection identity.
func (s *Session) Info() Info { return s.info }

// In returns the inbound buffer the event loop fills.
func (s *Session) In() *stream.Buffer { return s.in }

// LastActive returns the time of the last ProcessNext call.
func (s *Session) LastActive() time.Time { return s.lastActive }

// StateName returns the current state for logs and the admin API.
func (s *Session) StateName() string { return s.state.name() }

// Err returns the failure that ended the session, if any.
func (s *Session) Err() error { return s.failure }

// Status reports whether the session is still waiting, or has ended or
// errored with its response fully flushed.
func (s *Session) Status() Status {
	if s.pending() > 0 {
		return StatusWaiting
	}
	switch s.state.(type) {
	case done:
		return StatusEnded
	case internalError:
		return StatusErrored
	default:
		return StatusWaiting
	}
}

// ProcessNext consumes the current inbound chunk and flushes pending output,
// running transitions until no state can make progress.
func (s *Session) ProcessNext(ctx context.Context) Status {
	s.lastActive = time.Now()
	for {
		next, again := s.state.advance(ctx, s)
		s.state = next
		if !again {
			break
		}
	}
	return s.Status()
}

// Drained tells the session the socket has no more inbound bytes for now.
// A PUT that has received exactly its declared size commits here; bytes
// arriving in a later chunk would otherwise be an overrun.
func (s *Session) Drained(ctx context.Context) Status {
	s.drained = true
	defer func() { s.drained = false }()
	return s.ProcessNext(ctx)
}

// Abort force-fails the session after a transport error. No response is
// sent, the staged upload is discarded and the request is recorded as
// aborted.
func (s *Session) Abort(err error) {
	s.state = s.abort(err)
}

// Close releases everything the session holds. A request still in flight is
// recorded as aborted. Close is idempotent.
func (s *Session) Close() {
	if s.closed {
		return
	}
	if s.req.active {
		s.abort(errors.New("connection closed"))
	} else {
		s.release()
	}
	s.closed = true
	s.env.pool().Put(s.in.Chunk())
}

func (s *Session) pending() int {
	return len(s.out) - s.outPos
}

// queue replaces the output buffer. The previous output must be flushed.
func (s *Session) queue(p []byte) {
	s.out = p
	s.outPos = 0
}

// flush writes pending output. It reports whether everything was written;
// false with a nil error means the socket would block.
func (s *Session) flush() (bool, error) {
	for s.outPos < len(s.out) {
		n, err := s.conn.Write(s.out[s.outPos:])
		s.outPos += n
		if err != nil {
			if errors.Is(err, ErrWouldBlock) {
				return false, nil
			}
			return false, err
		}
		if n == 0 {
			return false, io.ErrShortWrite
		}
	}
	s.out = nil
	s.outPos = 0
	return true, nil
}

// release discards the staged upload, closes the reader and returns the
// GET chunk to the pool.
func (s *Session) release() {
	if s.writer != nil {
		if err := s.writer.Abort(); err != nil {
			logger.WarnCtx(s.reqCtx(), "Failed to discard upload", logger.KeyError, err)
		}
		s.writer = nil
	}
	if s.reader != nil {
		_ = s.reader.Close()
		s.reader = nil
	}
	if s.chunk != nil {
		s.env.pool().Put(s.chunk)
		s.chunk = nil
	}
}

// begin starts bookkeeping for a request: span, log context and timer.
func (s *Session) begin(ctx context.Context, command, name string, size uint64) {
	attrs := []attribute.KeyValue{
		telemetry.ConnectionID(s.info.ID),
		telemetry.ClientIP(s.info.ClientIP),
	}
	if name != "" {
		attrs = append(attrs, telemetry.Filename(name))
	}
	if command == protocol.CommandPut.String() {
		attrs = append(attrs, telemetry.Size(size))
	}

	ctx, span := telemetry.StartRequestSpan(ctx, command, attrs...)
	lc := s.lc.ForRequest(command, name, telemetry.TraceID(ctx), telemetry.SpanID(ctx))

	s.req = request{
		active:  true,
		command: command,
		name:    name,
		size:    size,
		started: time.Now(),
		ctx:     logger.WithContext(ctx, lc),
		span:    span,
	}
	logger.DebugCtx(s.req.ctx, "Request started", logger.Size(size))
}

func (s *Session) reqCtx() context.Context {
	if s.req.ctx != nil {
		return s.req.ctx
	}
	return logger.WithContext(context.Background(), s.lc)
}

// finish records the outcome of the current request exactly once.
func (s *Session) finish(outcome string, cause error) {
	if !s.req.active {
		return
	}
	s.req.active = false

	elapsed := time.Since(s.req.started)
	m := s.env.Metrics
	m.RecordRequest(s.req.command, outcome, elapsed)
	if s.req.command == protocol.CommandPut.String() {
		m.AddBytesReceived(int(s.transferred))
	} else {
		m.AddBytesSent(int(s.transferred))
	}

	entry := journal.Entry{
		ConnectionID:     s.info.ID,
		ClientAddr:       s.info.ClientIP,
		Command:          s.req.command,
		Filename:         s.req.name,
		Size:             s.req.size,
		BytesTransferred: s.transferred,
		Outcome:          outcome,
		DurationMs:       float64(elapsed.Microseconds()) / 1000.0,
	}

	ctx := s.req.ctx
	telemetry.SetAttributes(ctx,
		telemetry.Status(outcome),
		telemetry.BytesRead(s.received()),
		telemetry.BytesWritten(s.sent()),
	)
	if cause != nil {
		entry.Error = protocol.WireMessage(cause)
		telemetry.SetAttributes(ctx, telemetry.StatusMsg(entry.Error))
		telemetry.RecordError(ctx, cause)
	}
	s.req.span.End()
	s.env.Journal.Record(entry)

	args := []any{
		logger.KeyStatus, outcome,
		logger.DurationMs(entry.DurationMs),
		logger.BytesRead(s.received()),
		logger.BytesWritten(s.sent()),
	}
	if cause != nil {
		args = append(args, logger.Err(cause))
	}
	logger.DebugCtx(ctx, "Request finished", args...)
}

func (s *Session) received() uint64 {
	if s.req.command == protocol.CommandPut.String() {
		return s.transferred
	}
	return 0
}

func (s *Session) sent() uint64 {
	if s.req.command == protocol.CommandPut.String() {
		return 0
	}
	return s.transferred
}

// succeed queues a bare OK and moves to done.
func (s *Session) succeed() state {
	s.queue(protocol.AppendOK(s.hdr[:0]))
	return done{}
}

// fail releases resources, queues an ERROR response for err and moves to
// internalError.
func (s *Session) fail(err error) state {
	s.release()
	s.failure = err
	s.queue(protocol.AppendError(s.hdr[:0], protocol.WireMessage(err)))
	return internalError{}
}

// abort fails without a response.
func (s *Session) abort(err error) state {
	s.release()
	s.failure = err
	s.queue(nil)
	if s.req.active {
		logger.DebugCtx(s.req.ctx, "Session aborted", logger.State(s.state.name()), logger.Err(err))
	}
	s.finish(journal.OutcomeAborted, err)
	return internalError{}
}
