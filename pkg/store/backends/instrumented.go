package backends

import (
	"context"
	"time"

	"github.com/marmos91/stowd/pkg/metrics"
	"github.com/marmos91/stowd/pkg/store"
)

// Instrument wraps s so every operation is recorded in m under the given
// backend label. A nil m returns s unchanged.
func Instrument(s store.Store, backend string, m *metrics.StoreMetrics) store.Store {
	if m == nil {
		return s
	}
	return &instrumented{Store: s, backend: backend, m: m}
}

type instrumented struct {
	store.Store
	backend string
	m       *metrics.StoreMetrics
}

func (s *instrumented) Create(ctx context.Context, name string) (store.Writer, error) {
	start := time.Now()
	w, err := s.Store.Create(ctx, name)
	s.m.ObserveOperation(s.backend, metrics.OpCreate, time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return &instrumentedWriter{Writer: w, s: s}, nil
}

func (s *instrumented) Open(ctx context.Context, name string) (store.Reader, error) {
	start := time.Now()
	r, err := s.Store.Open(ctx, name)
	s.m.ObserveOperation(s.backend, metrics.OpOpen, time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return &instrumentedReader{Reader: r, s: s}, nil
}

func (s *instrumented) Remove(ctx context.Context, name string) error {
	start := time.Now()
	err := s.Store.Remove(ctx, name)
	s.m.ObserveOperation(s.backend, metrics.OpRemove, time.Since(start), err)
	return err
}

func (s *instrumented) HealthCheck(ctx context.Context) error {
	start := time.Now()
	err := s.Store.HealthCheck(ctx)
	s.m.ObserveOperation(s.backend, metrics.OpHealth, time.Since(start), err)
	return err
}

type instrumentedWriter struct {
	store.Writer
	s *instrumented
}

func (w *instrumentedWriter) Write(p []byte) (int, error) {
	n, err := w.Writer.Write(p)
	w.s.m.AddBytesWritten(w.s.backend, n)
	return n, err
}

func (w *instrumentedWriter) Commit() error {
	start := time.Now()
	err := w.Writer.Commit()
	w.s.m.ObserveOperation(w.s.backend, metrics.OpCommit, time.Since(start), err)
	return err
}

func (w *instrumentedWriter) Abort() error {
	start := time.Now()
	err := w.Writer.Abort()
	w.s.m.ObserveOperation(w.s.backend, metrics.OpAbort, time.Since(start), err)
	return err
}

type instrumentedReader struct {
	store.Reader
	s *instrumented
}

func (r *instrumentedReader) Read(p []byte) (int, error) {
	n, err := r.Reader.Read(p)
	r.s.m.AddBytesRead(r.s.backend, n)
	return n, err
}
