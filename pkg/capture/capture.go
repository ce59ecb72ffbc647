package capture

import (
	"fmt"
	"log"

	"FlowSentry/internal/engine/protocol"
	"FlowSentry/internal/metrics"
	"FlowSentry/internal/model"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
)

// Source delivers parsed packets to the pipeline. The channel is closed when
// the underlying capture ends or the source is closed.
type Source interface {
	Packets() <-chan *model.PacketInfo
	Close()
}

const defaultSnapshotLen = 1600

// LiveSource captures from a network interface.
type LiveSource struct {
	handle *pcap.Handle
	out    chan *model.PacketInfo
}

// NewLiveSource opens the interface and starts decoding packets. An invalid
// interface or BPF filter is a startup error.
func NewLiveSource(iface, bpfFilter string, snapshotLen int32, promiscuous bool) (*LiveSource, error) {
	if snapshotLen <= 0 {
		snapshotLen = defaultSnapshotLen
	}
	handle, err := pcap.OpenLive(iface, snapshotLen, promiscuous, pcap.BlockForever)
	if err != nil {
		return nil, fmt.Errorf("failed to open interface %s: %w", iface, err)
	}
	if bpfFilter != "" {
		if err := handle.SetBPFFilter(bpfFilter); err != nil {
			handle.Close()
			return nil, fmt.Errorf("failed to set BPF filter %q: %w", bpfFilter, err)
		}
	}

	s := &LiveSource{handle: handle, out: make(chan *model.PacketInfo, 1024)}
	go s.readLoop()
	log.Printf("Capturing on %s (snaplen=%d, promiscuous=%v, filter=%q)", iface, snapshotLen, promiscuous, bpfFilter)
	return s, nil
}

func (s *LiveSource) Packets() <-chan *model.PacketInfo {
	return s.out
}

// Close stops the capture; the packet channel closes once the read loop
// drains.
func (s *LiveSource) Close() {
	s.handle.Close()
}

func (s *LiveSource) readLoop() {
	defer close(s.out)
	packetSource := gopacket.NewPacketSource(s.handle, s.handle.LinkType())
	for packet := range packetSource.Packets() {
		info, err := protocol.ParsePacket(packet)
		if err != nil {
			// Unsupported packet types or corrupt data; skip and keep capturing.
			metrics.ParseErrors.Inc()
			continue
		}
		s.out <- info
	}
}

// FileSource replays packets from a pcap file with their recorded
// timestamps. The channel closes at end of file.
type FileSource struct {
	handle *pcap.Handle
	out    chan *model.PacketInfo
}

// NewFileSource opens a pcap file for offline replay.
func NewFileSource(path string) (*FileSource, error) {
	handle, err := pcap.OpenOffline(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pcap file %s: %w", path, err)
	}
	s := &FileSource{handle: handle, out: make(chan *model.PacketInfo, 1024)}
	go s.readLoop()
	return s, nil
}

func (s *FileSource) Packets() <-chan *model.PacketInfo {
	return s.out
}

func (s *FileSource) Close() {
	s.handle.Close()
}

func (s *FileSource) readLoop() {
	defer close(s.out)
	packetSource := gopacket.NewPacketSource(s.handle, s.handle.LinkType())
	for packet := range packetSource.Packets() {
		info, err := protocol.ParsePacket(packet)
		if err != nil {
			metrics.ParseErrors.Inc()
			continue
		}
		s.out <- info
	}
}

// ChanSource adapts an existing channel to the Source interface. Used by the
// NATS subscriber and by tests that feed synthetic packets.
type ChanSource struct {
	ch    <-chan *model.PacketInfo
	close func()
}

// NewChanSource wraps ch; onClose may be nil.
func NewChanSource(ch <-chan *model.PacketInfo, onClose func()) *ChanSource {
	return &ChanSource{ch: ch, close: onClose}
}

func (s *ChanSource) Packets() <-chan *model.PacketInfo {
	return s.ch
}

func (s *ChanSource) Close() {
	if s.close != nil {
		s.close()
	}
}
