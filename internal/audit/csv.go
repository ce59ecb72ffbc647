package audit

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"FlowSentry/internal/engine/features"
	"FlowSentry/internal/model"
)

// CSVWriter appends one row per classification decision to an audit file:
// the five-tuple, the full feature vector, and the verdict. The layout keeps
// one column per schema feature so the log can be replayed against a
// retrained model.
type CSVWriter struct {
	file   *os.File
	writer *csv.Writer
}

// NewCSVWriter opens (or creates) the audit file in append mode, writing the
// header only when the file is new or empty.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create audit directory: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit file: %w", err)
	}

	w := &CSVWriter{file: file, writer: csv.NewWriter(file)}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat audit file: %w", err)
	}
	if info.Size() == 0 {
		if err := w.writer.Write(header()); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write audit header: %w", err)
		}
		w.writer.Flush()
	}

	return w, nil
}

func header() []string {
	h := []string{"timestamp", "src_ip", "dst_ip", "src_port", "dst_port", "proto"}
	h = append(h, features.Names[:]...)
	return append(h, "label", "confidence", "outcome")
}

// Write appends a single detection record and flushes it to disk.
func (w *CSVWriter) Write(det *model.Detection) error {
	row := []string{
		det.Timestamp.Format("2006-01-02 15:04:05"),
		det.FiveTuple.SrcIP.String(),
		det.FiveTuple.DstIP.String(),
		strconv.Itoa(int(det.FiveTuple.SrcPort)),
		strconv.Itoa(int(det.FiveTuple.DstPort)),
		strconv.Itoa(int(det.FiveTuple.Protocol)),
	}
	for _, v := range det.Features {
		row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
	}
	row = append(row,
		string(det.Verdict.Label),
		strconv.FormatFloat(det.Verdict.Confidence, 'f', 4, 64),
		det.Outcome.String(),
	)

	if err := w.writer.Write(row); err != nil {
		return fmt.Errorf("failed to write audit row: %w", err)
	}
	w.writer.Flush()
	return w.writer.Error()
}

// Close flushes and closes the underlying file.
func (w *CSVWriter) Close() error {
	w.writer.Flush()
	if err := w.writer.Error(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

var _ model.Writer = (*CSVWriter)(nil)
