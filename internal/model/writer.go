package model

// Writer defines a generic interface for persisting classification records.
type Writer interface {
	// Write persists a single detection record.
	Write(det *Detection) error

	// Close flushes any buffered records and releases resources.
	Close() error
}
