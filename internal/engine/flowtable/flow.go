package flowtable

import (
	"container/list"
	"time"

	"FlowSentry/internal/model"
)

// State is the lifecycle tag of a flow.
type State int

const (
	StateActive State = iota
	StateExpired
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateExpired:
		return "expired"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// FlagCounts accumulates per-flow TCP flag totals across both directions.
type FlagCounts struct {
	FIN uint64
	SYN uint64
	RST uint64
	PSH uint64
	ACK uint64
	URG uint64
}

func (fc *FlagCounts) add(bits uint8) {
	if bits&model.FlagFIN != 0 {
		fc.FIN++
	}
	if bits&model.FlagSYN != 0 {
		fc.SYN++
	}
	if bits&model.FlagRST != 0 {
		fc.RST++
	}
	if bits&model.FlagPSH != 0 {
		fc.PSH++
	}
	if bits&model.FlagACK != 0 {
		fc.ACK++
	}
	if bits&model.FlagURG != 0 {
		fc.URG++
	}
}

// Flow is the mutable aggregate of all packets sharing one canonical
// five-tuple. The forward direction is the orientation of the first packet
// observed; Tuple keeps that orientation. A Flow is owned by its table shard
// while Active; ownership transfers to the caller when it is removed, after
// which no locking is needed.
type Flow struct {
	Tuple model.FiveTuple
	Key   string
	State State

	FirstSeen time.Time
	LastSeen  time.Time

	FwdPackets uint64
	BwdPackets uint64
	FwdBytes   uint64
	BwdBytes   uint64

	// Packet length statistics, per direction and combined.
	FwdLen RunningStat
	BwdLen RunningStat
	Len    RunningStat

	// Inter-arrival time statistics in seconds.
	FwdIAT RunningStat
	BwdIAT RunningStat
	IAT    RunningStat

	Flags FlagCounts

	fwdLast time.Time
	bwdLast time.Time
	finFwd  bool
	finBwd  bool

	lruEle *list.Element
}

func newFlow(pkt *model.PacketInfo) *Flow {
	f := &Flow{
		Tuple:      pkt.FiveTuple,
		Key:        pkt.FiveTuple.Key(),
		State:      StateActive,
		FirstSeen:  pkt.Timestamp,
		LastSeen:   pkt.Timestamp,
		FwdPackets: 1,
		FwdBytes:   uint64(pkt.Length),
		fwdLast:    pkt.Timestamp,
	}
	f.FwdLen.Push(float64(pkt.Length))
	f.Len.Push(float64(pkt.Length))
	f.Flags.add(pkt.TCPFlags)
	if pkt.TCPFlags&model.FlagFIN != 0 {
		f.finFwd = true
	}
	return f
}

// forward reports whether the packet travels in the flow's initial direction.
func (f *Flow) forward(pkt *model.PacketInfo) bool {
	return pkt.FiveTuple.SrcPort == f.Tuple.SrcPort && pkt.FiveTuple.SrcIP.Equal(f.Tuple.SrcIP)
}

// addPacket folds a packet into the aggregate and reports whether a TCP
// teardown completed the flow. LastSeen never moves backwards; reordered
// packets are counted but contribute no inter-arrival sample.
func (f *Flow) addPacket(pkt *model.PacketInfo) (closed bool) {
	length := float64(pkt.Length)
	f.Len.Push(length)

	if iat := pkt.Timestamp.Sub(f.LastSeen); iat >= 0 {
		f.IAT.Push(iat.Seconds())
		f.LastSeen = pkt.Timestamp
	}

	if f.forward(pkt) {
		f.FwdPackets++
		f.FwdBytes += uint64(pkt.Length)
		f.FwdLen.Push(length)
		if iat := pkt.Timestamp.Sub(f.fwdLast); iat >= 0 {
			f.FwdIAT.Push(iat.Seconds())
			f.fwdLast = pkt.Timestamp
		}
		if pkt.TCPFlags&model.FlagFIN != 0 {
			f.finFwd = true
		}
	} else {
		f.BwdPackets++
		f.BwdBytes += uint64(pkt.Length)
		f.BwdLen.Push(length)
		if f.bwdLast.IsZero() {
			// First packet in the backward direction starts its IAT series.
			f.bwdLast = pkt.Timestamp
		} else if iat := pkt.Timestamp.Sub(f.bwdLast); iat >= 0 {
			f.BwdIAT.Push(iat.Seconds())
			f.bwdLast = pkt.Timestamp
		}
		if pkt.TCPFlags&model.FlagFIN != 0 {
			f.finBwd = true
		}
	}

	f.Flags.add(pkt.TCPFlags)

	if pkt.TCPFlags&model.FlagRST != 0 {
		return true
	}
	return f.finFwd && f.finBwd
}

// PacketCount returns the total packets seen in both directions.
func (f *Flow) PacketCount() uint64 {
	return f.FwdPackets + f.BwdPackets
}

// ByteCount returns the total bytes seen in both directions.
func (f *Flow) ByteCount() uint64 {
	return f.FwdBytes + f.BwdBytes
}

// Duration is the time between the first and last packet of the flow.
func (f *Flow) Duration() time.Duration {
	return f.LastSeen.Sub(f.FirstSeen)
}

// PacketsPerSecond is the duration-normalized packet rate, 0 for
// zero-duration flows.
func (f *Flow) PacketsPerSecond() float64 {
	d := f.Duration().Seconds()
	if d <= 0 {
		return 0
	}
	return float64(f.PacketCount()) / d
}

// BytesPerSecond is the duration-normalized byte rate, 0 for zero-duration
// flows.
func (f *Flow) BytesPerSecond() float64 {
	d := f.Duration().Seconds()
	if d <= 0 {
		return 0
	}
	return float64(f.ByteCount()) / d
}
