package pipeline

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"FlowSentry/internal/engine/features"
	"FlowSentry/internal/engine/flowtable"
	"FlowSentry/internal/mitigation"
	"FlowSentry/internal/model"
	"FlowSentry/pkg/capture"
)

// auditRecorder collects detection records in memory.
type auditRecorder struct {
	mu   sync.Mutex
	recs []*model.Detection
}

func (a *auditRecorder) Write(det *model.Detection) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recs = append(a.recs, det)
	return nil
}

func (a *auditRecorder) Close() error { return nil }

func (a *auditRecorder) records() []*model.Detection {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*model.Detection, len(a.recs))
	copy(out, a.recs)
	return out
}

func pkt(at time.Time, src string, sport uint16, dst string, dport uint16, proto uint8, length int, flags uint8) *model.PacketInfo {
	return &model.PacketInfo{
		Timestamp: at,
		FiveTuple: model.FiveTuple{
			SrcIP:    net.ParseIP(src),
			DstIP:    net.ParseIP(dst),
			SrcPort:  sport,
			DstPort:  dport,
			Protocol: proto,
		},
		Length:   length,
		TCPFlags: flags,
	}
}

// tcpConversation emits a short TCP exchange ending in a bidirectional FIN,
// so the flow completes by teardown as soon as the last packet arrives.
func tcpConversation(start time.Time, src string, sport uint16) []*model.PacketInfo {
	return []*model.PacketInfo{
		pkt(start, src, sport, "192.168.1.10", 4455, 6, 60, model.FlagSYN),
		pkt(start.Add(10*time.Millisecond), "192.168.1.10", 4455, src, sport, 6, 60, model.FlagSYN|model.FlagACK),
		pkt(start.Add(20*time.Millisecond), src, sport, "192.168.1.10", 4455, 6, 1500, model.FlagACK|model.FlagPSH),
		pkt(start.Add(30*time.Millisecond), src, sport, "192.168.1.10", 4455, 6, 60, model.FlagFIN|model.FlagACK),
		pkt(start.Add(40*time.Millisecond), "192.168.1.10", 4455, src, sport, 6, 60, model.FlagFIN|model.FlagACK),
	}
}

func newTestPipeline(classifier model.Classifier, audit model.Writer, queueSize int) (*Pipeline, *mitigation.Dispatcher) {
	table := flowtable.NewTable(10000, 16, time.Minute)
	dispatcher := mitigation.NewDispatcher(mitigation.NewBlockedSet(), mitigation.NopBlocker{}, nil)
	p := New(table, classifier, dispatcher, audit, 2, queueSize, time.Hour)
	return p, dispatcher
}

func TestRun_TeardownFlowIsClassifiedAndBlocked(t *testing.T) {
	classifier := model.ClassifierFunc(func(_ context.Context, _ model.FeatureVector) (model.Verdict, error) {
		return model.Verdict{Label: model.LabelAttack, Confidence: 0.93}, nil
	})
	audit := &auditRecorder{}
	p, dispatcher := newTestPipeline(classifier, audit, 64)

	ch := make(chan *model.PacketInfo, 16)
	for _, pk := range tcpConversation(time.Now(), "10.0.0.5", 50000) {
		ch <- pk
	}
	close(ch)

	done := make(chan struct{})
	go func() {
		p.Run(context.Background(), capture.NewChanSource(ch, nil))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not drain after source closed")
	}

	if !dispatcher.Blocked().Contains("10.0.0.5") {
		t.Error("attack source 10.0.0.5 was not blocked")
	}
	recs := audit.records()
	if len(recs) != 1 {
		t.Fatalf("audit records = %d, want 1", len(recs))
	}
	rec := recs[0]
	if len(rec.Features) != features.NumFeatures {
		t.Errorf("audited feature vector has %d entries, want %d", len(rec.Features), features.NumFeatures)
	}
	if rec.Outcome != model.OutcomeBlockedNew {
		t.Errorf("outcome = %v, want blocked-new", rec.Outcome)
	}
	if got := p.Stats().PacketsProcessed; got != 5 {
		t.Errorf("packets processed = %d, want 5", got)
	}
}

func TestRun_ShutdownDrainsActiveFlows(t *testing.T) {
	classifier := model.ClassifierFunc(func(_ context.Context, _ model.FeatureVector) (model.Verdict, error) {
		return model.Verdict{Label: model.LabelBenign, Confidence: 0.88}, nil
	})
	audit := &auditRecorder{}
	p, dispatcher := newTestPipeline(classifier, audit, 64)

	// UDP flows never tear down; only the shutdown flush can complete them.
	ch := make(chan *model.PacketInfo, 16)
	now := time.Now()
	for i := 0; i < 5; i++ {
		ch <- pkt(now, "10.0.0.5", uint16(50000+i), "192.168.1.10", 53, 17, 80, 0)
	}
	close(ch)

	done := make(chan struct{})
	go func() {
		p.Run(context.Background(), capture.NewChanSource(ch, nil))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not drain")
	}

	if got := len(audit.records()); got != 5 {
		t.Errorf("audited detections = %d, want all 5 flushed flows classified", got)
	}
	if dispatcher.Blocked().Len() != 0 {
		t.Error("benign flows must not produce blocks")
	}
}

func TestRun_SlowClassifierNeverStallsIngest(t *testing.T) {
	release := make(chan struct{})
	classifier := model.ClassifierFunc(func(_ context.Context, _ model.FeatureVector) (model.Verdict, error) {
		<-release
		return model.Verdict{Label: model.LabelBenign, Confidence: 0.5}, nil
	})
	p, _ := newTestPipeline(classifier, nil, 1)

	// Every conversation completes by teardown, so each one needs a worker.
	// With both workers stalled and a queue of one, ingest must keep going
	// and drop the overflow instead of blocking.
	ch := make(chan *model.PacketInfo, 256)
	now := time.Now()
	for i := 0; i < 20; i++ {
		for _, pk := range tcpConversation(now.Add(time.Duration(i)*time.Second), "10.0.0.5", uint16(51000+i)) {
			ch <- pk
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx, capture.NewChanSource(ch, nil))
		close(done)
	}()

	deadline := time.After(5 * time.Second)
	for p.Stats().PacketsProcessed < 100 {
		select {
		case <-deadline:
			t.Fatal("ingest stalled behind the slow classifier")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if p.Stats().QueueDrops == 0 {
		t.Error("expected queue drops with both workers stalled")
	}

	close(release)
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not shut down after cancel")
	}
}

func TestRun_ClassifierErrorSkipsFlow(t *testing.T) {
	classifier := model.ClassifierFunc(func(_ context.Context, _ model.FeatureVector) (model.Verdict, error) {
		return model.Verdict{}, errors.New("model server unavailable")
	})
	audit := &auditRecorder{}
	p, dispatcher := newTestPipeline(classifier, audit, 64)

	ch := make(chan *model.PacketInfo, 16)
	for _, pk := range tcpConversation(time.Now(), "10.0.0.5", 50000) {
		ch <- pk
	}
	close(ch)

	done := make(chan struct{})
	go func() {
		p.Run(context.Background(), capture.NewChanSource(ch, nil))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not drain")
	}

	if dispatcher.Blocked().Len() != 0 {
		t.Error("failed classification must not trigger a block")
	}
	if len(audit.records()) != 0 {
		t.Error("failed classification must not be audited")
	}
	if p.Stats().ClassifyErrors != 1 {
		t.Errorf("classify errors = %d, want 1", p.Stats().ClassifyErrors)
	}
}
