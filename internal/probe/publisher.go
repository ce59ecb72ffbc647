package probe

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"log"

	"FlowSentry/internal/config"
	"FlowSentry/internal/model"

	"github.com/nats-io/nats.go"
)

// Publisher ships parsed packets to a NATS subject so a remote sensor can
// aggregate flows away from the capture host.
type Publisher struct {
	nc      *nats.Conn
	subject string
}

// NewPublisher connects to the configured NATS server.
func NewPublisher(cfg config.ProbeConfig) (*Publisher, error) {
	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATSURL, err)
	}
	log.Printf("Connected to NATS server at %s", cfg.NATSURL)
	return &Publisher{nc: nc, subject: cfg.Subject}, nil
}

// Publish gob-encodes a PacketInfo and publishes it to the configured subject.
func (p *Publisher) Publish(info *model.PacketInfo) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(info); err != nil {
		return fmt.Errorf("failed to encode packet: %w", err)
	}
	return p.nc.Publish(p.subject, buf.Bytes())
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		log.Println("NATS connection drained and closed.")
	}
}
