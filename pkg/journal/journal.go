// Package journal records one row per finished request.
//
// Record is called from the event loop and never blocks: entries go through
// a bounded channel to a writer goroutine that inserts them with GORM. When
// the queue is full the entry is dropped and counted.
package journal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/marmos91/stowd/internal/logger"
)

// Outcome values.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeAborted = "aborted"
)

const maxBatch = 128

// ErrClosed is returned by Flush after Close.
var ErrClosed = errors.New("journal is closed")

// Entry is one finished request.
type Entry struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	ConnectionID     uint64    `gorm:"index" json:"connection_id"`
	ClientAddr       string    `gorm:"size:64" json:"client_addr"`
	Command          string    `gorm:"size:16;index" json:"command"`
	Filename         string    `gorm:"size:255;index" json:"filename,omitempty"`
	Size             uint64    `json:"size"`
	BytesTransferred uint64    `json:"bytes_transferred"`
	Outcome          string    `gorm:"size:16" json:"outcome"`
	Error            string    `gorm:"size:512" json:"error,omitempty"`
	DurationMs       float64   `json:"duration_ms"`
	CreatedAt        time.Time `gorm:"index" json:"created_at"`
}

// TableName pins the table name.
func (Entry) TableName() string {
	return "transfers"
}

// Filter narrows List results.
type Filter struct {
	Filename string
	Command  string
	Limit    int // default 100
}

type item struct {
	entry   Entry
	flushed chan struct{} // set for flush markers only
}

// Journal is the asynchronous request log. A nil *Journal discards entries.
type Journal struct {
	db    *gorm.DB
	queue chan item
	done  chan struct{}

	mu     sync.RWMutex
	closed bool

	dropped atomic.Uint64
}

// New opens the database, migrates the schema and starts the writer.
func New(cfg Config) (*Journal, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid journal configuration: %w", err)
	}

	var dialector gorm.Dialector
	switch cfg.Type {
	case DatabaseTypeSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.SQLite.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
		dsn := cfg.SQLite.Path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		dialector = sqlite.Open(dsn)
	case DatabaseTypePostgres:
		dialector = postgres.Open(cfg.Postgres.DSN())
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to journal database: %w", err)
	}

	if cfg.Type == DatabaseTypePostgres {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get underlying database: %w", err)
		}
		sqlDB.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
	}

	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate journal schema: %w", err)
	}

	j := &Journal{
		db:    db,
		queue: make(chan item, cfg.QueueSize),
		done:  make(chan struct{}),
	}
	go j.run()

	logger.Info("Journal ready", "type", string(cfg.Type))
	return j, nil
}

// Record enqueues e without blocking.
func (j *Journal) Record(e Entry) {
	if j == nil {
		return
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return
	}

	select {
	case j.queue <- item{entry: e}:
	default:
		if n := j.dropped.Add(1); n == 1 || n%1000 == 0 {
			logger.Warn("Journal queue full, dropping entries", "dropped", n)
		}
	}
}

// Dropped returns how many entries were discarded because the queue was full.
func (j *Journal) Dropped() uint64 {
	if j == nil {
		return 0
	}
	return j.dropped.Load()
}

// Flush waits until every entry recorded before the call is written.
func (j *Journal) Flush(ctx context.Context) error {
	if j == nil {
		return nil
	}
	marker := item{flushed: make(chan struct{})}

	j.mu.RLock()
	if j.closed {
		j.mu.RUnlock()
		return ErrClosed
	}
	select {
	case j.queue <- marker:
		j.mu.RUnlock()
	case <-ctx.Done():
		j.mu.RUnlock()
		return ctx.Err()
	}

	select {
	case <-marker.flushed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// List returns entries newest first.
func (j *Journal) List(ctx context.Context, f Filter) ([]Entry, error) {
	if j == nil {
		return nil, nil
	}
	if f.Limit <= 0 {
		f.Limit = 100
	}

	q := j.db.WithContext(ctx).Order("id DESC").Limit(f.Limit)
	if f.Filename != "" {
		q = q.Where("filename = ?", f.Filename)
	}
	if f.Command != "" {
		q = q.Where("command = ?", f.Command)
	}

	var entries []Entry
	if err := q.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("list journal: %w", err)
	}
	return entries, nil
}

// Close drains the queue and closes the database.
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}

	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	close(j.queue)
	j.mu.Unlock()

	<-j.done

	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (j *Journal) run() {
	defer close(j.done)

	batch := make([]Entry, 0, maxBatch)
	var markers []chan struct{}

	for it := range j.queue {
		batch, markers = appendItem(batch[:0], markers[:0], it)

	drain:
		for len(batch) < maxBatch {
			select {
			case next, ok := <-j.queue:
				if !ok {
					break drain
				}
				batch, markers = appendItem(batch, markers, next)
			default:
				break drain
			}
		}

		j.write(batch)
		for _, m := range markers {
			close(m)
		}
	}
}

func appendItem(batch []Entry, markers []chan struct{}, it item) ([]Entry, []chan struct{}) {
	if it.flushed != nil {
		return batch, append(markers, it.flushed)
	}
	return append(batch, it.entry), markers
}

func (j *Journal) write(batch []Entry) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := j.db.WithContext(ctx).CreateInBatches(batch, maxBatch).Error; err != nil {
		logger.Warn("Journal write failed", "entries", len(batch), logger.KeyError, err)
	}
}
