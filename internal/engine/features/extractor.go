package features

import (
	"FlowSentry/internal/engine/flowtable"
	"FlowSentry/internal/model"
)

// Extract computes the feature vector for a completed flow, in the order
// given by Names. It is pure and deterministic given the flow's final
// aggregate state, and is always finite: single-packet and zero-duration
// flows yield zero-valued variance and rate features, never NaN or Inf.
//
// Destination Port is the responder port as seen by the flow's initiator,
// not the canonical ordering's second endpoint.
func Extract(f *flowtable.Flow) model.FeatureVector {
	return model.FeatureVector{
		float64(f.Tuple.DstPort), // Destination Port
		f.FwdLen.Max(),           // Fwd Packet Length Max
		f.FwdLen.Mean(),          // Fwd Packet Length Mean
		f.BwdLen.Max(),           // Bwd Packet Length Max
		f.BwdLen.Min(),           // Bwd Packet Length Min
		f.BwdLen.Mean(),          // Bwd Packet Length Mean
		f.BwdLen.Std(),           // Bwd Packet Length Std
		f.FwdIAT.Std(),           // Fwd IAT Std
		f.BwdIAT.Sum(),           // Bwd IAT Total
		f.BwdIAT.Max(),           // Bwd IAT Max
		f.Len.Min(),              // Min Packet Length
		f.Len.Max(),              // Max Packet Length
		f.Len.Mean(),             // Packet Length Mean
		f.Len.Std(),              // Packet Length Std
		f.Len.Variance(),         // Packet Length Variance
		float64(f.Flags.PSH),     // PSH Flag Count
		float64(f.Flags.URG),     // URG Flag Count
		averagePacketSize(f),     // Average Packet Size
		f.FwdLen.Mean(),          // Avg Fwd Segment Size
		f.BwdLen.Mean(),          // Avg Bwd Segment Size
	}
}

func averagePacketSize(f *flowtable.Flow) float64 {
	packets := f.PacketCount()
	if packets == 0 {
		return 0
	}
	return float64(f.ByteCount()) / float64(packets)
}
