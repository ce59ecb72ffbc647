package model

import (
	"bytes"
	"fmt"
	"net"
	"time"
)

// TCP flag bits as they appear on the wire.
const (
	FlagFIN uint8 = 0x01
	FlagSYN uint8 = 0x02
	FlagRST uint8 = 0x04
	FlagPSH uint8 = 0x08
	FlagACK uint8 = 0x10
	FlagURG uint8 = 0x20
)

// FiveTuple represents the 5-tuple of a network packet.
type FiveTuple struct {
	SrcIP    net.IP
	DstIP    net.IP
	SrcPort  uint16
	DstPort  uint16
	Protocol uint8
}

// Reverse returns the tuple with source and destination swapped.
func (ft FiveTuple) Reverse() FiveTuple {
	return FiveTuple{
		SrcIP:    ft.DstIP,
		DstIP:    ft.SrcIP,
		SrcPort:  ft.DstPort,
		DstPort:  ft.SrcPort,
		Protocol: ft.Protocol,
	}
}

// Canonical returns the direction-independent form of the tuple, with the
// lexicographically smaller (IP, port) endpoint first. A flow and its reverse
// map to the same canonical tuple.
func (ft FiveTuple) Canonical() FiveTuple {
	cmp := bytes.Compare(ft.SrcIP.To16(), ft.DstIP.To16())
	if cmp < 0 || (cmp == 0 && ft.SrcPort <= ft.DstPort) {
		return ft
	}
	return ft.Reverse()
}

// Key renders the canonical tuple as a map key string.
func (ft FiveTuple) Key() string {
	c := ft.Canonical()
	return fmt.Sprintf("%s:%d-%s:%d-%d", c.SrcIP, c.SrcPort, c.DstIP, c.DstPort, c.Protocol)
}

func (ft FiveTuple) String() string {
	return fmt.Sprintf("%s:%d->%s:%d/%d", ft.SrcIP, ft.SrcPort, ft.DstIP, ft.DstPort, ft.Protocol)
}

// PacketInfo holds the metadata extracted from a single packet.
type PacketInfo struct {
	Timestamp time.Time
	FiveTuple FiveTuple
	Length    int
	TCPFlags  uint8 // zero for non-TCP packets
}

// FeatureVector is the fixed-length numeric summary of a flow handed to the
// classifier. Length and ordering are a training-time contract.
type FeatureVector []float64

// Label is the classifier's verdict for a flow.
type Label string

const (
	LabelBenign Label = "benign"
	LabelAttack Label = "attack"
)

// Verdict is the result of classifying a single feature vector.
type Verdict struct {
	Label      Label
	Confidence float64
}

// Detection ties a classified flow to everything the audit log needs.
type Detection struct {
	Timestamp time.Time
	FiveTuple FiveTuple
	Features  FeatureVector
	Verdict   Verdict
	Outcome   MitigationOutcome
}

// MitigationOutcome describes what the dispatcher did with a verdict.
type MitigationOutcome int

const (
	OutcomeSkippedBenign MitigationOutcome = iota
	OutcomeBlockedNew
	OutcomeAlreadyBlocked
	OutcomeBlockFailed
)

func (o MitigationOutcome) String() string {
	switch o {
	case OutcomeSkippedBenign:
		return "skipped-benign"
	case OutcomeBlockedNew:
		return "blocked-new"
	case OutcomeAlreadyBlocked:
		return "already-blocked"
	case OutcomeBlockFailed:
		return "block-failed"
	default:
		return "unknown"
	}
}
