package audit

import (
	"log"
	"sync"
	"sync/atomic"

	"FlowSentry/internal/metrics"
	"FlowSentry/internal/model"
)

// AsyncWriter decouples the detection path from audit I/O. Writes go through
// a buffered channel serviced by a single goroutine; when the buffer is full
// the record is dropped and counted rather than stalling classification.
type AsyncWriter struct {
	inner   model.Writer
	ch      chan *model.Detection
	dropped atomic.Uint64
	wg      sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

// NewAsyncWriter wraps inner with a buffer of the given size and starts the
// drain goroutine.
func NewAsyncWriter(inner model.Writer, bufferSize int) *AsyncWriter {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	w := &AsyncWriter{
		inner: inner,
		ch:    make(chan *model.Detection, bufferSize),
	}
	w.wg.Add(1)
	go w.loop()
	return w
}

func (w *AsyncWriter) loop() {
	defer w.wg.Done()
	for det := range w.ch {
		if err := w.inner.Write(det); err != nil {
			log.Printf("ERROR: audit write failed: %v", err)
		}
	}
}

// Write enqueues a record without blocking. Returns nil even when the record
// is dropped; audit loss is observable through Dropped, not fatal.
func (w *AsyncWriter) Write(det *model.Detection) error {
	select {
	case w.ch <- det:
	default:
		metrics.AuditDropped.Inc()
		if n := w.dropped.Add(1); n == 1 || n%1000 == 0 {
			log.Printf("WARNING: audit buffer full, %d records dropped so far", n)
		}
	}
	return nil
}

// Dropped reports how many records were discarded due to a full buffer.
func (w *AsyncWriter) Dropped() uint64 {
	return w.dropped.Load()
}

// Close drains buffered records into the inner writer, then closes it.
func (w *AsyncWriter) Close() error {
	w.closeOnce.Do(func() {
		close(w.ch)
		w.wg.Wait()
		w.closeErr = w.inner.Close()
	})
	return w.closeErr
}

var _ model.Writer = (*AsyncWriter)(nil)

// MultiWriter fans a record out to several writers. Used when both the CSV
// log and ClickHouse are enabled.
type MultiWriter struct {
	writers []model.Writer
}

func NewMultiWriter(writers ...model.Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write forwards to every writer; the first error is returned after all
// writers have been attempted.
func (m *MultiWriter) Write(det *model.Detection) error {
	var first error
	for _, w := range m.writers {
		if err := w.Write(det); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m *MultiWriter) Close() error {
	var first error
	for _, w := range m.writers {
		if err := w.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

var _ model.Writer = (*MultiWriter)(nil)
