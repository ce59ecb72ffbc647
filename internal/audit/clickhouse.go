package audit

import (
	"context"
	"fmt"
	"log"
	"sync"

	"FlowSentry/internal/config"
	"FlowSentry/internal/model"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const createTableStatement = `
CREATE TABLE IF NOT EXISTS flow_verdicts (
    Timestamp  DateTime64(3),
    SrcIP      String,
    DstIP      String,
    SrcPort    UInt16,
    DstPort    UInt16,
    Protocol   UInt8,
    Features   Array(Float64),
    Label      String,
    Confidence Float64,
    Outcome    String
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(Timestamp)
ORDER BY (Label, Timestamp);
`

const chBatchSize = 128

// ClickHouseWriter persists detection records to a flow_verdicts table in
// batches. It implements model.Writer.
type ClickHouseWriter struct {
	conn    driver.Conn
	mu      sync.Mutex
	pending []*model.Detection
}

// NewClickHouseWriter connects to ClickHouse and ensures the table exists.
// An unreachable server is a startup error for the caller to treat as fatal.
func NewClickHouseWriter(cfg config.ClickHouseConfig) (*ClickHouseWriter, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	if err := conn.Exec(context.Background(), createTableStatement); err != nil {
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	log.Println("Successfully connected to ClickHouse and ensured flow_verdicts exists.")

	return &ClickHouseWriter{conn: conn}, nil
}

func connect(cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Debug: false,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	return conn, nil
}

// Write buffers a record, flushing a batch once enough have accumulated.
func (w *ClickHouseWriter) Write(det *model.Detection) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = append(w.pending, det)
	if len(w.pending) < chBatchSize {
		return nil
	}
	return w.flushLocked()
}

// Close flushes any buffered records and closes the connection.
func (w *ClickHouseWriter) Close() error {
	w.mu.Lock()
	err := w.flushLocked()
	w.mu.Unlock()
	if cerr := w.conn.Close(); err == nil {
		err = cerr
	}
	return err
}

func (w *ClickHouseWriter) flushLocked() error {
	if len(w.pending) == 0 {
		return nil
	}

	batch, err := w.conn.PrepareBatch(context.Background(), "INSERT INTO flow_verdicts")
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, det := range w.pending {
		err = batch.Append(
			det.Timestamp,
			det.FiveTuple.SrcIP.String(),
			det.FiveTuple.DstIP.String(),
			det.FiveTuple.SrcPort,
			det.FiveTuple.DstPort,
			det.FiveTuple.Protocol,
			[]float64(det.Features),
			string(det.Verdict.Label),
			det.Verdict.Confidence,
			det.Outcome.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to append verdict to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	log.Printf("Wrote %d verdicts to ClickHouse", len(w.pending))
	w.pending = w.pending[:0]
	return nil
}

var _ model.Writer = (*ClickHouseWriter)(nil)
