package persistence

import (
	"context"
	"database/sql"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ShreymShah/breakout-trading-bot/pkg/logger"
)

// WriteOp represents a database write operation.
type WriteOp struct {
	Query string
	Args  []any
}

// BatchWriter buffers journal writes and commits them in one transaction
// per flush. Writes after Close run immediately.
type BatchWriter struct {
	db       *sql.DB
	mu       sync.Mutex
	buffer   []WriteOp
	maxSize  int
	interval time.Duration
	closed   bool

	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
	metrics batchCounters
}

type batchCounters struct {
	writes  atomic.Uint64
	batches atomic.Uint64
	errors  atomic.Uint64

	mu        sync.Mutex
	lastSize  int
	lastFlush time.Time
}

// BatchWriterMetrics provides statistics about batch operations.
type BatchWriterMetrics struct {
	TotalWrites   uint64    `json:"total_writes"`
	TotalBatches  uint64    `json:"total_batches"`
	TotalErrors   uint64    `json:"total_errors"`
	LastBatchSize int       `json:"last_batch_size"`
	LastFlushTime time.Time `json:"last_flush_time"`
}

// NewBatchWriter flushes after maxSize writes or every interval.
func NewBatchWriter(db *sql.DB, maxSize int, interval time.Duration) *BatchWriter {
	if maxSize <= 0 {
		maxSize = 50
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	bw := &BatchWriter{
		db:       db,
		buffer:   make([]WriteOp, 0, maxSize),
		maxSize:  maxSize,
		interval: interval,
		done:     make(chan struct{}),
	}

	bw.wg.Add(1)
	go bw.backgroundFlush()

	return bw
}

func (bw *BatchWriter) Write(op WriteOp) {
	bw.mu.Lock()
	if bw.closed {
		bw.mu.Unlock()
		_ = bw.executeBatch([]WriteOp{op})
		return
	}
	bw.buffer = append(bw.buffer, op)
	shouldFlush := len(bw.buffer) >= bw.maxSize
	bw.mu.Unlock()

	if shouldFlush {
		_ = bw.Flush()
	}
}

func (bw *BatchWriter) WriteQuery(query string, args ...any) {
	bw.Write(WriteOp{Query: query, Args: args})
}

// Flush immediately writes all buffered operations to the database.
func (bw *BatchWriter) Flush() error {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return nil
	}
	ops := bw.buffer
	bw.buffer = make([]WriteOp, 0, bw.maxSize)
	bw.mu.Unlock()

	return bw.executeBatch(ops)
}

func (bw *BatchWriter) executeBatch(ops []WriteOp) error {
	if len(ops) == 0 {
		return nil
	}

	bw.metrics.writes.Add(uint64(len(ops)))
	bw.metrics.batches.Add(1)
	bw.metrics.mu.Lock()
	bw.metrics.lastSize = len(ops)
	bw.metrics.lastFlush = time.Now()
	bw.metrics.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tx, err := bw.db.BeginTx(ctx, nil)
	if err != nil {
		bw.metrics.errors.Add(1)
		logger.Errorf("journal batch: begin transaction: %v", err)
		return err
	}
	for _, op := range ops {
		if _, err := tx.ExecContext(ctx, op.Query, op.Args...); err != nil {
			_ = tx.Rollback()
			bw.metrics.errors.Add(1)
			logger.Errorf("journal batch: query failed, rolled back %d ops: %v", len(ops), err)
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		bw.metrics.errors.Add(1)
		logger.Errorf("journal batch: commit failed: %v", err)
		return err
	}

	logger.Debugf("journal batch: flushed %d operations", len(ops))
	return nil
}

func (bw *BatchWriter) backgroundFlush() {
	defer bw.wg.Done()
	ticker := time.NewTicker(bw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = bw.Flush()
		case <-bw.done:
			_ = bw.Flush()
			return
		}
	}
}

// Pending returns the number of buffered operations.
func (bw *BatchWriter) Pending() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}

func (bw *BatchWriter) GetMetrics() BatchWriterMetrics {
	bw.metrics.mu.Lock()
	defer bw.metrics.mu.Unlock()
	return BatchWriterMetrics{
		TotalWrites:   bw.metrics.writes.Load(),
		TotalBatches:  bw.metrics.batches.Load(),
		TotalErrors:   bw.metrics.errors.Load(),
		LastBatchSize: bw.metrics.lastSize,
		LastFlushTime: bw.metrics.lastFlush,
	}
}

// Close flushes what is buffered and stops the background loop.
func (bw *BatchWriter) Close() error {
	bw.once.Do(func() {
		close(bw.done)
		bw.wg.Wait()
		bw.mu.Lock()
		bw.closed = true
		bw.mu.Unlock()
		_ = bw.Flush()
	})
	return nil
}
