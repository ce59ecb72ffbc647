package protocol

import (
	"net"
	"testing"

	"FlowSentry/internal/model"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// buildPacket serializes the given layers and decodes them back into a
// gopacket.Packet, the same shape a live capture would produce.
func buildPacket(t *testing.T, l ...gopacket.SerializableLayer) gopacket.Packet {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, l...); err != nil {
		t.Fatalf("Failed to serialize layers: %v", err)
	}
	return gopacket.NewPacket(buf.Bytes(), layers.LayerTypeEthernet, gopacket.Default)
}

func ethernetLayer(proto layers.EthernetType) *layers.Ethernet {
	return &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		DstMAC:       net.HardwareAddr{0x66, 0x77, 0x88, 0x99, 0xaa, 0xbb},
		EthernetType: proto,
	}
}

func TestParsePacket_TCP(t *testing.T) {
	packet := buildPacket(t,
		ethernetLayer(layers.EthernetTypeIPv4),
		&layers.IPv4{
			Version:  4,
			IHL:      5,
			TTL:      64,
			SrcIP:    net.ParseIP("10.0.0.5").To4(),
			DstIP:    net.ParseIP("192.168.1.10").To4(),
			Protocol: layers.IPProtocolTCP,
		},
		&layers.TCP{
			SrcPort: 80,
			DstPort: 4455,
			SYN:     true,
			ACK:     true,
			DataOffset: 5,
		},
	)

	info, err := ParsePacket(packet)
	if err != nil {
		t.Fatalf("ParsePacket failed: %v", err)
	}
	if got := info.FiveTuple.SrcIP.String(); got != "10.0.0.5" {
		t.Errorf("SrcIP = %s, want 10.0.0.5", got)
	}
	if info.FiveTuple.SrcPort != 80 || info.FiveTuple.DstPort != 4455 {
		t.Errorf("ports = %d->%d, want 80->4455", info.FiveTuple.SrcPort, info.FiveTuple.DstPort)
	}
	if info.FiveTuple.Protocol != 6 {
		t.Errorf("Protocol = %d, want 6", info.FiveTuple.Protocol)
	}
	if info.TCPFlags != model.FlagSYN|model.FlagACK {
		t.Errorf("TCPFlags = %#x, want SYN|ACK", info.TCPFlags)
	}
	if info.Length == 0 {
		t.Error("Length should not be 0")
	}
}

func TestParsePacket_UDP(t *testing.T) {
	packet := buildPacket(t,
		ethernetLayer(layers.EthernetTypeIPv4),
		&layers.IPv4{
			Version:  4,
			IHL:      5,
			TTL:      64,
			SrcIP:    net.ParseIP("192.168.0.1").To4(),
			DstIP:    net.ParseIP("8.8.8.8").To4(),
			Protocol: layers.IPProtocolUDP,
		},
		&layers.UDP{SrcPort: 12345, DstPort: 53},
	)

	info, err := ParsePacket(packet)
	if err != nil {
		t.Fatalf("ParsePacket failed: %v", err)
	}
	if info.FiveTuple.Protocol != 17 {
		t.Errorf("Protocol = %d, want 17", info.FiveTuple.Protocol)
	}
	if info.TCPFlags != 0 {
		t.Errorf("TCPFlags = %#x, want 0 for UDP", info.TCPFlags)
	}
}

func TestParsePacket_NonIP(t *testing.T) {
	packet := buildPacket(t,
		ethernetLayer(layers.EthernetTypeARP),
		&layers.ARP{
			AddrType:          layers.LinkTypeEthernet,
			Protocol:          layers.EthernetTypeIPv4,
			HwAddressSize:     6,
			ProtAddressSize:   4,
			Operation:         layers.ARPRequest,
			SourceHwAddress:   []byte{0, 1, 2, 3, 4, 5},
			SourceProtAddress: []byte{10, 0, 0, 1},
			DstHwAddress:      []byte{0, 0, 0, 0, 0, 0},
			DstProtAddress:    []byte{10, 0, 0, 2},
		},
	)

	if _, err := ParsePacket(packet); err == nil {
		t.Fatal("Expected an error for a non-IP packet, got nil")
	}
}
