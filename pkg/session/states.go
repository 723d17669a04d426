package session

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/marmos91/stowd/internal/protocol"
	"github.com/marmos91/stowd/pkg/journal"
)

var (
	errTruncatedHeader = errors.New("connection closed inside request header")
	errShortTransfer   = errors.New("connection closed before declared size was received")
	errOverrun         = errors.New("received more bytes than declared")
	errShortRead       = errors.New("stored file shorter than its size")
)

// state is one node of the session state machine.
//
// advance performs as much work as the current input and socket allow. It
// returns the next state and whether advance should be called again right
// away: true after a transition or progress, false when the state is
// blocked on input, on a writable socket, or is terminal.
type state interface {
	name() string
	advance(ctx context.Context, s *Session) (state, bool)
}

// readingHeader feeds inbound bytes to the parser until a request is complete.
type readingHeader struct{}

func (readingHeader) name() string { return "reading_header" }

func (st readingHeader) advance(ctx context.Context, s *Session) (state, bool) {
	for {
		b, ok := s.in.NextByte()
		if !ok {
			if !s.in.EOF() {
				return st, false
			}
			if s.parser.Buffered() == 0 {
				// Peer connected and closed without sending anything.
				return done{}, true
			}
			s.begin(ctx, "INVALID", "", 0)
			return s.fail(fmt.Errorf("%w: %w", protocol.ErrBadRequest, errTruncatedHeader)), true
		}

		complete, err := s.parser.Feed(b)
		if err != nil {
			s.begin(ctx, "INVALID", "", 0)
			return s.fail(err), true
		}
		if complete {
			req := s.parser.Request()
			s.begin(ctx, req.Command.String(), req.Name, req.Size)
			return s.dispatch(req), true
		}
	}
}

// readingPut streams the PUT payload from the inbound chunk into the staged
// upload.
type readingPut struct{}

func (readingPut) name() string { return "reading_put" }

func (st readingPut) advance(_ context.Context, s *Session) (state, bool) {
	if s.transferred == s.expected {
		if s.in.Remaining() > 0 {
			return s.fail(protocol.NewError(protocol.MsgBadFileSize,
				fmt.Errorf("%w: %d extra bytes", errOverrun, s.in.Remaining()))), true
		}
		// A chunk ending on the last declared byte proves nothing: the next
		// read may still carry extra bytes. Commit only once the socket is
		// drained or closed.
		if !s.in.EOF() && !s.drained {
			return st, false
		}
		return s.commitPut(), true
	}

	p := s.in.Take(outstanding(s.expected, s.transferred))
	if len(p) == 0 {
		if s.in.EOF() {
			return s.fail(protocol.NewError(protocol.MsgBadFileSize,
				fmt.Errorf("%w: got %d of %d", errShortTransfer, s.transferred, s.expected))), true
		}
		return st, false
	}

	if _, err := s.writer.Write(p); err != nil {
		return s.fail(fmt.Errorf("write upload: %w", err)), true
	}
	s.transferred += uint64(len(p))
	return st, true
}

// outstanding returns the bytes still expected, clamped to an int.
func outstanding(expected, transferred uint64) int {
	left := expected - transferred
	if left > uint64(maxInt) {
		return maxInt
	}
	return int(left)
}

const maxInt = int(^uint(0) >> 1)

// sendingGet alternates between flushing output and refilling it from the
// store reader until the whole file is sent.
type sendingGet struct{}

func (sendingGet) name() string { return "sending_get" }

func (st sendingGet) advance(_ context.Context, s *Session) (state, bool) {
	for {
		flushed, err := s.flush()
		if err != nil {
			return s.abort(fmt.Errorf("send: %w", err)), true
		}
		if !flushed {
			return st, false
		}

		if s.transferred == s.expected {
			s.release()
			return done{}, true
		}

		want := len(s.chunk)
		if left := s.expected - s.transferred; left < uint64(want) {
			want = int(left)
		}
		n, err := s.reader.Read(s.chunk[:want])
		if n > 0 {
			s.transferred += uint64(n)
			s.queue(s.chunk[:n])
			continue
		}
		if err == nil {
			err = io.ErrNoProgress
		}
		// The status line is already out, so the only way to signal a
		// failure now is to drop the connection.
		if errors.Is(err, io.EOF) {
			err = errShortRead
		}
		return s.abort(fmt.Errorf("read stored file: %w", err)), true
	}
}

// writingList flushes the queued LIST response.
type writingList struct{}

func (writingList) name() string { return "writing_list" }

func (st writingList) advance(_ context.Context, s *Session) (state, bool) {
	flushed, err := s.flush()
	if err != nil {
		return s.abort(fmt.Errorf("send: %w", err)), true
	}
	if !flushed {
		return st, false
	}
	return done{}, true
}

// done is the terminal success state. Its queued response, if any, is
// flushed before the request is recorded.
type done struct{}

func (done) name() string { return "done" }

func (st done) advance(_ context.Context, s *Session) (state, bool) {
	flushed, err := s.flush()
	if err != nil {
		return s.abort(fmt.Errorf("send: %w", err)), true
	}
	if flushed {
		s.in.Discard()
		s.finish(journal.OutcomeOK, nil)
	}
	return st, false
}

// internalError is the terminal failure state. Its ERROR response, if any,
// is flushed before the request is recorded.
type internalError struct{}

func (internalError) name() string { return "internal_error" }

func (st internalError) advance(_ context.Context, s *Session) (state, bool) {
	flushed, err := s.flush()
	if err != nil {
		s.queue(nil)
		s.finish(journal.OutcomeAborted, err)
		return st, false
	}
	if flushed {
		s.in.Discard()
		s.finish(journal.OutcomeError, s.failure)
	}
	return st, false
}
