package protocol

import (
	"FlowSentry/internal/model"
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// ParsePacket uses gopacket to decode a captured packet and extract the
// metadata the flow table needs: timestamp, five-tuple, length and TCP flags.
func ParsePacket(packet gopacket.Packet) (*model.PacketInfo, error) {
	info := &model.PacketInfo{
		Timestamp: time.Now(), // Overwritten by capture metadata when available
		Length:    len(packet.Data()),
	}

	if meta := packet.Metadata(); meta != nil && !meta.Timestamp.IsZero() {
		info.Timestamp = meta.Timestamp
		if meta.Length > 0 {
			info.Length = meta.Length
		}
	}

	var fiveTuple model.FiveTuple

	if l := packet.Layer(layers.LayerTypeIPv4); l != nil {
		ip := l.(*layers.IPv4)
		fiveTuple.SrcIP = ip.SrcIP
		fiveTuple.DstIP = ip.DstIP
		fiveTuple.Protocol = uint8(ip.Protocol)
	} else {
		// IPv6 could be handled here; for now we skip non-IPv4 traffic.
		return nil, fmt.Errorf("not an IPv4 packet")
	}

	if l := packet.Layer(layers.LayerTypeTCP); l != nil {
		tcp := l.(*layers.TCP)
		fiveTuple.SrcPort = uint16(tcp.SrcPort)
		fiveTuple.DstPort = uint16(tcp.DstPort)
		info.TCPFlags = flagBits(tcp)
	} else if l := packet.Layer(layers.LayerTypeUDP); l != nil {
		udp := l.(*layers.UDP)
		fiveTuple.SrcPort = uint16(udp.SrcPort)
		fiveTuple.DstPort = uint16(udp.DstPort)
	} else {
		return nil, fmt.Errorf("not a TCP or UDP packet")
	}

	info.FiveTuple = fiveTuple

	return info, nil
}

// flagBits packs gopacket's decoded TCP flags back into wire-order bits.
func flagBits(tcp *layers.TCP) uint8 {
	var bits uint8
	if tcp.FIN {
		bits |= model.FlagFIN
	}
	if tcp.SYN {
		bits |= model.FlagSYN
	}
	if tcp.RST {
		bits |= model.FlagRST
	}
	if tcp.PSH {
		bits |= model.FlagPSH
	}
	if tcp.ACK {
		bits |= model.FlagACK
	}
	if tcp.URG {
		bits |= model.FlagURG
	}
	return bits
}
