package session

import (
	"errors"
	"fmt"

	"github.com/marmos91/stowd/internal/logger"
	"github.com/marmos91/stowd/internal/protocol"
	"github.com/marmos91/stowd/pkg/store"
)

// dispatch runs the handler for a decoded request and returns the state it
// leads to.
func (s *Session) dispatch(req protocol.Request) state {
	switch req.Command {
	case protocol.CommandList:
		return s.handleList()
	case protocol.CommandGet:
		return s.handleGet(req.Name)
	case protocol.CommandPut:
		return s.handlePut(req.Name, req.Size)
	case protocol.CommandDelete:
		return s.handleDelete(req.Name)
	default:
		return s.fail(fmt.Errorf("%w: %s", protocol.ErrBadRequest, req.Command))
	}
}

// handleList answers with the index payload. The store is never consulted.
func (s *Session) handleList() state {
	payload := s.env.Index.Payload()
	out := protocol.AppendOKSize(s.hdr[:0], s.env.ByteOrder, uint64(len(payload)))
	s.queue(append(out, payload...))
	s.expected = uint64(len(payload))
	s.transferred = s.expected
	return writingList{}
}

// handleGet opens a snapshot of name and starts streaming it.
func (s *Session) handleGet(name string) state {
	if !s.env.Index.Contains(name) {
		return s.fail(protocol.NewError(protocol.MsgUnknownFile, nil))
	}

	r, err := s.env.Store.Open(s.req.ctx, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return s.fail(protocol.NewError(protocol.MsgUnknownFile, err))
		}
		return s.fail(fmt.Errorf("open %s: %w", name, err))
	}

	s.reader = r
	s.expected = r.Size()
	s.transferred = 0
	s.chunk = s.env.pool().Get(s.env.chunkSize())
	s.queue(protocol.AppendOKSize(s.hdr[:0], s.env.ByteOrder, s.expected))
	return sendingGet{}
}

// handlePut opens a staged upload for name.
func (s *Session) handlePut(name string, size uint64) state {
	if limit := s.env.MaxUploadSize; limit > 0 && size > limit {
		return s.fail(protocol.NewError(protocol.MsgFileTooLarge,
			fmt.Errorf("declared %d bytes, limit is %d", size, limit)))
	}

	w, err := s.env.Store.Create(s.req.ctx, name)
	if err != nil {
		return s.fail(fmt.Errorf("create %s: %w", name, err))
	}

	s.writer = w
	s.expected = size
	s.transferred = 0
	return readingPut{}
}

// commitPut publishes a complete upload and indexes it.
func (s *Session) commitPut() state {
	w := s.writer
	s.writer = nil
	if err := w.Commit(); err != nil {
		_ = w.Abort()
		return s.fail(fmt.Errorf("commit %s: %w", s.req.name, err))
	}

	if s.env.Index.Add(s.req.name) {
		s.env.Metrics.SetFilesIndexed(s.env.Index.Len())
	}
	logger.DebugCtx(s.req.ctx, "Upload committed", logger.Size(s.transferred))
	return s.succeed()
}

// handleDelete removes name from the index, then from the store. A name the
// index does not know is answered with OK and the store is left alone.
func (s *Session) handleDelete(name string) state {
	if !s.env.Index.Remove(name) {
		logger.DebugCtx(s.req.ctx, "Delete of unindexed name is a no-op")
		return s.succeed()
	}
	s.env.Metrics.SetFilesIndexed(s.env.Index.Len())

	if err := s.env.Store.Remove(s.req.ctx, name); err != nil && !errors.Is(err, store.ErrNotFound) {
		return s.fail(fmt.Errorf("remove %s: %w", name, err))
	}
	return s.succeed()
}
