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

// PacketHandler is a function that processes a received PacketInfo.
type PacketHandler func(info *model.PacketInfo)

// Subscriber receives packets published by a remote probe.
type Subscriber struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
}

// NewSubscriber connects to the configured NATS server.
func NewSubscriber(cfg config.ProbeConfig) (*Subscriber, error) {
	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATSURL, err)
	}
	log.Printf("Connected to NATS server at %s", cfg.NATSURL)
	return &Subscriber{nc: nc, subject: cfg.Subject}, nil
}

// Start subscribes to the configured subject and decodes each message into
// the handler. Undecodable messages are logged and skipped.
func (s *Subscriber) Start(handler PacketHandler) error {
	sub, err := s.nc.Subscribe(s.subject, func(msg *nats.Msg) {
		var info model.PacketInfo
		if err := gob.NewDecoder(bytes.NewReader(msg.Data)).Decode(&info); err != nil {
			log.Printf("Error decoding packet message: %v", err)
			return
		}
		handler(&info)
	})
	if err != nil {
		return err
	}
	s.sub = sub
	log.Printf("Subscribed to '%s'. Waiting for packets...", s.subject)
	return nil
}

// Source bridges the subscription into a packet channel for the pipeline.
// The returned stop function unsubscribes and releases any blocked handler;
// the channel itself stays open, so callers stop reading via their own
// context rather than waiting for a close.
func (s *Subscriber) Source(bufferSize int) (<-chan *model.PacketInfo, func(), error) {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	ch := make(chan *model.PacketInfo, bufferSize)
	done := make(chan struct{})
	err := s.Start(func(info *model.PacketInfo) {
		select {
		case ch <- info:
		case <-done:
		}
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to subscribe: %w", err)
	}
	stop := func() {
		close(done)
		s.Close()
	}
	return ch, stop, nil
}

// Close unsubscribes and closes the NATS connection.
func (s *Subscriber) Close() {
	if s.sub != nil {
		s.sub.Unsubscribe()
		s.sub = nil
	}
	if s.nc != nil {
		s.nc.Close()
		s.nc = nil
		log.Println("NATS connection closed.")
	}
}
