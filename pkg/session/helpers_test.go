package session

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/stowd/internal/protocol"
	"github.com/marmos91/stowd/pkg/index"
	"github.com/marmos91/stowd/pkg/store"
	fsstore "github.com/marmos91/stowd/pkg/store/fs"
)

// fakeConn records writes. With a non-negative budget it accepts that many
// bytes and then reports ErrWouldBlock until the budget is raised.
type fakeConn struct {
	buf    bytes.Buffer
	budget int
	err    error
}

func newConn() *fakeConn {
	return &fakeConn{budget: -1}
}

func (c *fakeConn) Write(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	if c.budget < 0 {
		return c.buf.Write(p)
	}
	n := min(len(p), c.budget)
	c.buf.Write(p[:n])
	c.budget -= n
	if n < len(p) {
		return n, ErrWouldBlock
	}
	return n, nil
}

// countingStore counts Remove calls on top of a real store.
type countingStore struct {
	store.Store
	removes int
}

func (c *countingStore) Remove(ctx context.Context, name string) error {
	c.removes++
	return c.Store.Remove(ctx, name)
}

func newEnv(t *testing.T) *Env {
	t.Helper()
	s := fsstore.NewMemory()
	t.Cleanup(func() { _ = s.Close() })
	return &Env{
		Index:     index.New(),
		Store:     s,
		ByteOrder: protocol.LittleEndian,
		ChunkSize: 4 << 10,
	}
}

func newSession(env *Env, conn *fakeConn) *Session {
	return New(env, 10, conn, Info{ID: 1, ClientIP: "127.0.0.1"})
}

// pump runs the event loop's read cycle against r: fill, process, repeat
// until would-block, EOF or a terminal status.
func pump(s *Session, r io.Reader) Status {
	ctx := context.Background()
	for {
		n, err := s.In().Fill(r)
		if n > 0 || errors.Is(err, io.EOF) {
			s.ProcessNext(ctx)
		}
		if errors.Is(err, ErrWouldBlock) {
			s.Drained(ctx)
		}
		if err != nil || s.Status() != StatusWaiting {
			return s.Status()
		}
	}
}

// feed delivers data, which must fit the inbound buffer, as a single chunk.
// It is followed by end of stream if eof is set, or else by the socket
// running dry.
func feed(s *Session, data []byte, eof bool) Status {
	ctx := context.Background()
	s.In().Load(data)
	s.ProcessNext(ctx)
	if s.Status() != StatusWaiting {
		return s.Status()
	}
	if eof {
		_, _ = s.In().Fill(bytes.NewReader(nil))
		s.ProcessNext(ctx)
	} else {
		s.Drained(ctx)
	}
	return s.Status()
}

// load delivers one chunk with more data possibly still on the socket.
func load(s *Session, data []byte) Status {
	s.In().Load(data)
	return s.ProcessNext(context.Background())
}

func putRequest(name string, size uint64, payload []byte) []byte {
	req := protocol.AppendRequest(nil, protocol.CommandPut, name)
	req = protocol.AppendUint64(protocol.LittleEndian, req, size)
	return append(req, payload...)
}

func requestLine(cmd protocol.Command, name string) []byte {
	return protocol.AppendRequest(nil, cmd, name)
}

func okWithPayload(payload []byte) []byte {
	out := protocol.AppendOKSize(nil, protocol.LittleEndian, uint64(len(payload)))
	return append(out, payload...)
}

func errorResponse(msg string) []byte {
	return protocol.AppendError(nil, msg)
}

// put runs a complete PUT on a fresh session and requires OK.
func put(t *testing.T, env *Env, name string, payload []byte) {
	t.Helper()
	conn := newConn()
	s := newSession(env, conn)
	defer s.Close()
	require.Equal(t, StatusEnded, pump(s, bytes.NewReader(putRequest(name, uint64(len(payload)), payload))))
	require.Equal(t, "OK\n", conn.buf.String())
}

// stored reads name straight from the store.
func stored(t *testing.T, env *Env, name string) ([]byte, error) {
	t.Helper()
	r, err := env.Store.Open(context.Background(), name)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
