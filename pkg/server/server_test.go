//go:build linux || darwin

package server

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/stowd/internal/protocol"
	"github.com/marmos91/stowd/pkg/client"
	"github.com/marmos91/stowd/pkg/metrics"
	"github.com/marmos91/stowd/pkg/store"
	fsstore "github.com/marmos91/stowd/pkg/store/fs"
)

func TestPutThenGet(t *testing.T) {
	ts := startServer(t, Config{})
	ctx := context.Background()

	require.NoError(t, ts.client.Put(ctx, "a.txt", strings.NewReader("hello"), 5))

	var buf bytes.Buffer
	n, err := ts.client.Get(ctx, "a.txt", &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.Equal(t, "hello", buf.String())

	names, err := ts.client.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, names)
}

func TestPut_RawWireExchange(t *testing.T) {
	ts := startServer(t, Config{})

	assert.Equal(t, []byte("OK\n"), ts.raw(t, putRequest("a.txt", 5, []byte("hello")), true))

	resp := ts.raw(t, []byte("GET a.txt\n"), true)
	assert.Equal(t, []byte("OK\n\x05\x00\x00\x00\x00\x00\x00\x00hello"), resp)
}

func TestList(t *testing.T) {
	ts := startServer(t, Config{})
	ctx := context.Background()

	require.NoError(t, ts.client.Put(ctx, "a.txt", strings.NewReader("A"), 1))
	require.NoError(t, ts.client.Put(ctx, "b.txt", strings.NewReader("B"), 1))
	require.NoError(t, ts.client.Put(ctx, "a.txt", strings.NewReader("AA"), 2))

	resp := ts.raw(t, []byte("LIST\n"), true)
	want := protocol.AppendOKSize(nil, protocol.LittleEndian, 12)
	want = append(want, "a.txt\nb.txt\n"...)
	assert.Equal(t, want, resp)
}

func TestGet_Missing(t *testing.T) {
	ts := startServer(t, Config{})

	// No half-close: the server answers and closes on its own.
	resp := ts.raw(t, []byte("GET missing.txt\n"), false)
	assert.Equal(t, "ERROR\nUnknown file\n", string(resp))
}

func TestDelete(t *testing.T) {
	ts := startServer(t, Config{})
	ctx := context.Background()

	require.NoError(t, ts.client.Put(ctx, "a.txt", strings.NewReader("hello"), 5))
	require.NoError(t, ts.client.Delete(ctx, "a.txt"))

	names, err := ts.client.List(ctx)
	require.NoError(t, err)
	assert.NotContains(t, names, "a.txt")

	_, err = ts.client.Get(ctx, "a.txt", io.Discard)
	assert.True(t, client.IsUnknownFile(err), "got %v", err)

	_, err = ts.store.Open(ctx, "a.txt")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDelete_Absent(t *testing.T) {
	ts := startServer(t, Config{})
	assert.Equal(t, "OK\n", string(ts.raw(t, []byte("DELETE nothing\n"), true)))
}

func TestPut_ChunkingInvariance(t *testing.T) {
	ts := startServer(t, Config{})
	ctx := context.Background()

	payload := make([]byte, 2_000)
	_, err := rand.Read(payload)
	require.NoError(t, err)

	require.NoError(t, ts.client.Put(ctx, "whole", bytes.NewReader(payload), uint64(len(payload))))

	conn := ts.dial(t)
	defer conn.Close()
	for _, b := range putRequest("bytewise", uint64(len(payload)), payload) {
		_, err := conn.Write([]byte{b})
		require.NoError(t, err)
	}
	resp, err := io.ReadAll(conn)
	require.NoError(t, err)
	require.Equal(t, "OK\n", string(resp))

	var whole, bytewise bytes.Buffer
	_, err = ts.client.Get(ctx, "whole", &whole)
	require.NoError(t, err)
	_, err = ts.client.Get(ctx, "bytewise", &bytewise)
	require.NoError(t, err)
	assert.Equal(t, payload, bytewise.Bytes())
	assert.Equal(t, whole.Bytes(), bytewise.Bytes())
}

func TestPut_ZeroSize(t *testing.T) {
	ts := startServer(t, Config{})
	ctx := context.Background()

	assert.Equal(t, "OK\n", string(ts.raw(t, putRequest("empty", 0, nil), false)))

	var buf bytes.Buffer
	n, err := ts.client.Get(ctx, "empty", &buf)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPut_Overrun(t *testing.T) {
	ts := startServer(t, Config{})
	ctx := context.Background()

	// One write so the extra byte lands in the same chunk as the payload.
	resp := ts.raw(t, putRequest("a.txt", 5, []byte("hello!")), true)
	assert.Equal(t, "ERROR\nBad file size\n", string(resp))

	_, err := ts.client.Get(ctx, "a.txt", io.Discard)
	assert.True(t, client.IsUnknownFile(err), "got %v", err)
	_, err = ts.store.Open(ctx, "a.txt")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPut_OverrunAcrossChunks(t *testing.T) {
	req := putRequest("a.txt", 5, []byte("hello!"))
	// The first read ends exactly on the last declared byte.
	ts := startServer(t, Config{InboundSize: len(req) - 1})
	ctx := context.Background()

	resp := ts.raw(t, req, false)
	assert.Equal(t, "ERROR\nBad file size\n", string(resp))

	names, err := ts.client.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)
	_, err = ts.store.Open(ctx, "a.txt")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPut_ExactChunkBoundaryCommits(t *testing.T) {
	req := putRequest("a.txt", 5, []byte("hello"))
	ts := startServer(t, Config{InboundSize: len(req)})

	assert.Equal(t, "OK\n", string(ts.raw(t, req, false)))

	var got bytes.Buffer
	_, err := ts.client.Get(context.Background(), "a.txt", &got)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.String())
}

func TestPut_ShortTransfer(t *testing.T) {
	ts := startServer(t, Config{})

	resp := ts.raw(t, putRequest("a.txt", 5, []byte("hel")), true)
	assert.Equal(t, "ERROR\nBad file size\n", string(resp))

	names, err := ts.client.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestPut_TooLarge(t *testing.T) {
	ts := startServer(t, Config{MaxUploadSize: 4})

	err := ts.client.Put(context.Background(), "big", strings.NewReader("hello"), 5)
	var se *client.ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, protocol.MsgFileTooLarge, se.Message)
}

func TestBadRequests(t *testing.T) {
	ts := startServer(t, Config{})

	for _, req := range []string{"FOO\n", "LIST extra\n", "GET\n", "PUT a/b\n", "get a.txt\n"} {
		t.Run(strings.TrimSpace(req), func(t *testing.T) {
			assert.Equal(t, "ERROR\nBad request\n", string(ts.raw(t, []byte(req), false)))
		})
	}

	t.Run("HeaderTooLong", func(t *testing.T) {
		req := "GET " + strings.Repeat("x", protocol.MaxHeaderSize+10) + "\n"
		assert.Equal(t, "ERROR\nBad request\n", string(ts.raw(t, []byte(req), true)))
	})

	t.Run("TruncatedHeader", func(t *testing.T) {
		assert.Equal(t, "ERROR\nBad request\n", string(ts.raw(t, []byte("DEL"), true)))
	})

	t.Run("EmptyConnection", func(t *testing.T) {
		assert.Empty(t, ts.raw(t, nil, true))
	})
}

func TestLargeFileWithSmallChunks(t *testing.T) {
	ts := startServer(t, Config{ChunkSize: 4 << 10, InboundSize: 8 << 10})
	ctx := context.Background()

	payload := make([]byte, 8<<20)
	_, err := rand.Read(payload)
	require.NoError(t, err)

	require.NoError(t, ts.client.Put(ctx, "big.bin", bytes.NewReader(payload), uint64(len(payload))))

	var buf bytes.Buffer
	n, err := ts.client.Get(ctx, "big.bin", &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), n)
	assert.True(t, bytes.Equal(payload, buf.Bytes()))
}

func TestSlowReaderResumesOnWritable(t *testing.T) {
	ts := startServer(t, Config{ChunkSize: 16 << 10})
	ctx := context.Background()

	payload := bytes.Repeat([]byte("stowd"), 1<<20)
	require.NoError(t, ts.client.Put(ctx, "slow.bin", bytes.NewReader(payload), uint64(len(payload))))

	conn := ts.dial(t)
	defer conn.Close()
	_, err := conn.Write([]byte("GET slow.bin\n"))
	require.NoError(t, err)

	// Let the server fill the socket buffers and block.
	time.Sleep(200 * time.Millisecond)

	// Another client is served while the GET waits for writability.
	require.NoError(t, ts.client.Delete(ctx, "unrelated"))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))
	resp, err := io.ReadAll(conn)
	require.NoError(t, err)
	want := protocol.AppendOKSize(nil, protocol.LittleEndian, uint64(len(payload)))
	assert.True(t, bytes.Equal(append(want, payload...), resp))
}

func TestConcurrentClients(t *testing.T) {
	ts := startServer(t, Config{})
	ctx := context.Background()

	const clients = 16
	var wg sync.WaitGroup
	errs := make(chan error, clients)
	for i := range clients {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("file-%02d", i)
			data := bytes.Repeat([]byte{byte(i)}, 64<<10+i)
			if err := ts.client.Put(ctx, name, bytes.NewReader(data), uint64(len(data))); err != nil {
				errs <- err
				return
			}
			var buf bytes.Buffer
			if _, err := ts.client.Get(ctx, name, &buf); err != nil {
				errs <- err
				return
			}
			if !bytes.Equal(data, buf.Bytes()) {
				errs <- fmt.Errorf("%s: content mismatch", name)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	names, err := ts.client.List(ctx)
	require.NoError(t, err)
	assert.Len(t, names, clients)
}

func TestBigEndian(t *testing.T) {
	ts := startServer(t, Config{ByteOrder: protocol.BigEndian})
	ctx := context.Background()

	require.NoError(t, ts.client.Put(ctx, "be", strings.NewReader("hi"), 2))
	resp := ts.raw(t, []byte("GET be\n"), true)
	assert.Equal(t, []byte("OK\n\x00\x00\x00\x00\x00\x00\x00\x02hi"), resp)
}

func TestMaxConnections(t *testing.T) {
	reg := prometheus.NewRegistry()
	ts := startServer(t, Config{MaxConnections: 1}, WithMetrics(metrics.NewServerMetrics(reg)))

	held := ts.dial(t)
	defer held.Close()
	ts.eventuallyStats(t, func(st Stats) bool { return st.ActiveConnections == 1 })

	rejected := ts.dial(t)
	defer rejected.Close()
	require.NoError(t, rejected.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err := rejected.Read(make([]byte, 1))
	assert.Error(t, err, "the connection over the limit is closed without a response")

	require.Eventually(t, func() bool {
		return metricValue(t, reg, "stowd_connections_rejected_total") == 1
	}, 5*time.Second, 10*time.Millisecond)

	// Freeing the slot lets new clients in.
	require.NoError(t, held.Close())
	ts.eventuallyStats(t, func(st Stats) bool { return st.ActiveConnections == 0 })
	require.NoError(t, ts.client.Delete(context.Background(), "x"))
}

func TestIdleTimeout(t *testing.T) {
	reg := prometheus.NewRegistry()
	ts := startServer(t, Config{IdleTimeout: 100 * time.Millisecond}, WithMetrics(metrics.NewServerMetrics(reg)))

	conn := ts.dial(t)
	defer conn.Close()
	_, err := conn.Write(putRequest("stalled", 100, []byte("abc")))
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	resp, _ := io.ReadAll(conn)
	assert.Empty(t, resp, "idle sessions are dropped without a response")

	names, err := ts.client.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, names)
	assert.Equal(t, 1.0, closedWithReason(t, reg, metrics.CloseIdle))
}

func closedWithReason(t *testing.T, reg *prometheus.Registry, reason string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != "stowd_connections_closed_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "reason" && l.GetValue() == reason {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestStatsAndFiles(t *testing.T) {
	ts := startServer(t, Config{})
	ctx := context.Background()

	require.NoError(t, ts.client.Put(ctx, "one", strings.NewReader("1"), 1))
	require.NoError(t, ts.client.Put(ctx, "two", strings.NewReader("2"), 1))

	files, err := ts.Files(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, files)

	held := ts.dial(t)
	defer held.Close()
	ts.eventuallyStats(t, func(st Stats) bool { return st.ActiveConnections == 1 })

	st, err := ts.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.FilesIndexed)
	assert.Equal(t, ts.Addr().String(), st.Address)
	assert.Equal(t, "memory", st.StoreType)
	assert.Positive(t, st.Uptime)
}

func TestStop(t *testing.T) {
	tests := []struct {
		name    string
		cleanup bool
	}{
		{"KeepsFiles", false},
		{"CleanupOnExit", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := startServer(t, Config{CleanupOnExit: tt.cleanup})
			ctx := context.Background()

			require.NoError(t, ts.client.Put(ctx, "keep.txt", strings.NewReader("data"), 4))

			// A PUT in flight is aborted by the shutdown.
			inflight := ts.dial(t)
			defer inflight.Close()
			_, err := inflight.Write(putRequest("partial", 10, []byte("abc")))
			require.NoError(t, err)
			ts.eventuallyStats(t, func(st Stats) bool {
				return len(st.Sessions) == 1 && st.Sessions[0].State == "reading_put"
			})

			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			require.NoError(t, ts.Stop(stopCtx))
			require.NoError(t, <-ts.errc)

			_, err = ts.store.Open(ctx, "partial")
			assert.ErrorIs(t, err, store.ErrNotFound)

			_, err = ts.store.Open(ctx, "keep.txt")
			if tt.cleanup {
				assert.ErrorIs(t, err, store.ErrNotFound)
			} else {
				assert.NoError(t, err)
			}
			assert.Zero(t, ts.Index().Len())

			assert.ErrorIs(t, ts.Submit(func() {}), ErrServerClosed)
			_, err = ts.client.List(ctx)
			assert.Error(t, err, "the listener is closed")
		})
	}
}

func TestServe_ContextCancel(t *testing.T) {
	st := fsstore.NewMemory()
	defer st.Close()
	srv, err := New(Config{BindAddress: "127.0.0.1"}, st)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ctx) }()
	<-srv.ListenerReady()

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	assert.ErrorIs(t, srv.Serve(context.Background()), ErrServerClosed)
}

func TestStop_BeforeServe(t *testing.T) {
	st := fsstore.NewMemory()
	defer st.Close()
	srv, err := New(Config{BindAddress: "127.0.0.1"}, st)
	require.NoError(t, err)

	require.NoError(t, srv.Stop(context.Background()))
	require.NoError(t, srv.Stop(context.Background()))
	assert.ErrorIs(t, srv.Serve(context.Background()), ErrServerClosed)
}

func TestNew_Errors(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.Error(t, err)

	st := fsstore.NewMemory()
	defer st.Close()
	first, err := New(Config{BindAddress: "127.0.0.1"}, st)
	require.NoError(t, err)
	defer first.Stop(context.Background())

	port := first.Addr().(*net.TCPAddr).Port
	_, err = New(Config{BindAddress: "127.0.0.1", Port: port}, st)
	assert.Error(t, err, "the port is taken")
}

func TestSubmitRunsOnLoop(t *testing.T) {
	ts := startServer(t, Config{})

	var order []int
	for i := range 5 {
		require.NoError(t, ts.Submit(func() { order = append(order, i) }))
	}
	require.NoError(t, ts.Call(context.Background(), func() {}))
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestMetricsRecorded(t *testing.T) {
	reg := prometheus.NewRegistry()
	ts := startServer(t, Config{}, WithMetrics(metrics.NewServerMetrics(reg)))
	ctx := context.Background()

	require.NoError(t, ts.client.Put(ctx, "m", strings.NewReader("12345"), 5))
	_, err := ts.client.Get(ctx, "m", io.Discard)
	require.NoError(t, err)
	_, err = ts.client.Get(ctx, "nope", io.Discard)
	require.Error(t, err)

	require.Eventually(t, func() bool {
		return metricValue(t, reg, "stowd_connections_closed_total") == 3
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 3.0, metricValue(t, reg, "stowd_connections_accepted_total"))
	assert.Equal(t, 3.0, metricValue(t, reg, "stowd_requests_total"))
	assert.Equal(t, 5.0, metricValue(t, reg, "stowd_bytes_received_total"))
	assert.Equal(t, 5.0, metricValue(t, reg, "stowd_bytes_sent_total"))
	assert.Equal(t, 1.0, metricValue(t, reg, "stowd_files_indexed"))
	assert.Equal(t, 0.0, metricValue(t, reg, "stowd_connections_active"))
}
