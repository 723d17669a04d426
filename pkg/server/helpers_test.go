//go:build linux || darwin

package server

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/stowd/internal/protocol"
	"github.com/marmos91/stowd/pkg/client"
	"github.com/marmos91/stowd/pkg/store"
	fsstore "github.com/marmos91/stowd/pkg/store/fs"
)

type testServer struct {
	*Server
	store  store.Store
	client *client.Client
	errc   chan error
}

// startServer runs a loopback server on a free port until the test ends.
func startServer(t *testing.T, cfg Config, opts ...Option) *testServer {
	t.Helper()
	cfg.BindAddress = "127.0.0.1"
	cfg.Port = 0

	st := fsstore.NewMemory()
	srv, err := New(cfg, st, opts...)
	require.NoError(t, err)

	ts := &testServer{
		Server: srv,
		store:  st,
		client: client.New(srv.Addr().String(), client.WithByteOrder(cfg.ByteOrder), client.WithDialTimeout(5*time.Second)),
		errc:   make(chan error, 1),
	}
	go func() { ts.errc <- srv.Serve(context.Background()) }()

	select {
	case <-srv.ListenerReady():
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
		_ = st.Close()
	})
	return ts
}

// raw sends req on a fresh connection, optionally half-closes, and returns
// everything the server sends before closing.
func (ts *testServer) raw(t *testing.T, req []byte, halfClose bool) []byte {
	t.Helper()
	conn := ts.dial(t)
	defer conn.Close()

	_, err := conn.Write(req)
	require.NoError(t, err)
	if halfClose {
		require.NoError(t, conn.(*net.TCPConn).CloseWrite())
	}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))
	resp, err := io.ReadAll(conn)
	require.NoError(t, err)
	return resp
}

func (ts *testServer) dial(t *testing.T) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", ts.Addr().String(), 5*time.Second)
	require.NoError(t, err)
	return conn
}

func putRequest(name string, size uint64, payload []byte) []byte {
	req := protocol.AppendRequest(nil, protocol.CommandPut, name)
	req = protocol.AppendUint64(protocol.LittleEndian, req, size)
	return append(req, payload...)
}

func metricValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	total := 0.0
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				total += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				total += m.GetGauge().GetValue()
			}
		}
	}
	return total
}

// eventuallyStats polls Stats until cond holds.
func (ts *testServer) eventuallyStats(t *testing.T, cond func(Stats) bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		st, err := ts.Stats(context.Background())
		return err == nil && cond(st)
	}, 5*time.Second, 10*time.Millisecond)
}
