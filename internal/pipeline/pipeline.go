package pipeline

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"FlowSentry/internal/engine/features"
	"FlowSentry/internal/engine/flowtable"
	"FlowSentry/internal/metrics"
	"FlowSentry/internal/mitigation"
	"FlowSentry/internal/model"
	"FlowSentry/pkg/capture"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// completion is a finished flow together with why it finished.
type completion struct {
	flow   *flowtable.Flow
	reason string // teardown, timeout, evicted, flush
}

// Pipeline wires capture, flow aggregation, classification, mitigation and
// audit together. Ingest runs on a single goroutine so the flow table sees
// packets in arrival order; completed flows fan out to a bounded worker pool
// that performs the blocking classify/mitigate/audit work.
type Pipeline struct {
	table      *flowtable.Table
	classifier model.Classifier
	dispatcher *mitigation.Dispatcher
	audit      model.Writer // may be nil

	numWorkers    int
	queueSize     int
	sweepInterval time.Duration

	packetsProcessed atomic.Uint64
	flowsCompleted   atomic.Uint64
	classified       atomic.Uint64
	classifyErrors   atomic.Uint64
	queueDrops       atomic.Uint64
	start            time.Time
}

// New assembles a pipeline. audit may be nil to disable the audit trail.
func New(table *flowtable.Table, classifier model.Classifier, dispatcher *mitigation.Dispatcher, audit model.Writer, numWorkers, queueSize int, sweepInterval time.Duration) *Pipeline {
	if numWorkers <= 0 {
		numWorkers = 4
	}
	if queueSize <= 0 {
		queueSize = 1024
	}
	if sweepInterval <= 0 {
		sweepInterval = 10 * time.Second
	}
	return &Pipeline{
		table:         table,
		classifier:    classifier,
		dispatcher:    dispatcher,
		audit:         audit,
		numWorkers:    numWorkers,
		queueSize:     queueSize,
		sweepInterval: sweepInterval,
	}
}

// Run consumes the source until ctx is cancelled or the source is exhausted,
// then drains: remaining flows are flushed through classification before Run
// returns. Detection work is deliberately not bound to ctx, so flows that
// complete at shutdown still get classified.
func (p *Pipeline) Run(ctx context.Context, src capture.Source) {
	p.start = time.Now()
	completions := make(chan completion, p.queueSize)

	var workers sync.WaitGroup
	for i := 0; i < p.numWorkers; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for c := range completions {
				p.detect(c)
			}
		}()
	}

	ticker := time.NewTicker(p.sweepInterval)
	defer ticker.Stop()

	var lastEvictions uint64

ingest:
	for {
		select {
		case <-ctx.Done():
			break ingest
		case now := <-ticker.C:
			for _, f := range p.table.Expire(now) {
				p.enqueue(completions, completion{flow: f, reason: "timeout"})
			}
			metrics.ActiveFlows.Set(float64(p.table.Len()))
			if ev := p.table.Evictions(); ev > lastEvictions {
				metrics.FlowEvictions.Add(float64(ev - lastEvictions))
				lastEvictions = ev
			}
		case pkt, ok := <-src.Packets():
			if !ok {
				break ingest
			}
			p.packetsProcessed.Add(1)
			metrics.PacketsProcessed.Inc()
			for _, f := range p.table.Update(pkt) {
				reason := "teardown"
				if f.State == flowtable.StateExpired {
					reason = "evicted"
				}
				p.enqueue(completions, completion{flow: f, reason: reason})
			}
		}
	}

	// Drain: blocking sends are safe here because ingest has stopped and the
	// workers are still consuming, so every remaining flow gets classified.
	log.Printf("Ingest stopped, flushing %d active flows through detection...", p.table.Len())
	for _, f := range p.table.FlushAll() {
		p.flowsCompleted.Add(1)
		metrics.FlowsCompleted.WithLabelValues("flush").Inc()
		completions <- completion{flow: f, reason: "flush"}
	}
	close(completions)
	workers.Wait()
	metrics.ActiveFlows.Set(0)
	log.Printf("Pipeline drained: %d packets, %d flows classified, %d classification errors",
		p.packetsProcessed.Load(), p.classified.Load(), p.classifyErrors.Load())
}

// enqueue hands a flow to the workers without ever blocking ingest. During
// the final drain the queue is unbounded in practice because workers are
// still consuming; a drop here is a missed detection, counted and logged.
func (p *Pipeline) enqueue(completions chan completion, c completion) {
	p.flowsCompleted.Add(1)
	metrics.FlowsCompleted.WithLabelValues(c.reason).Inc()
	select {
	case completions <- c:
	default:
		if n := p.queueDrops.Add(1); n == 1 || n%100 == 0 {
			log.Printf("WARNING: detection queue full, dropped flow %s (%d drops so far)", c.flow.Tuple, n)
		}
	}
}

// detect runs one completed flow through extract, classify, mitigate, audit.
// The classifier applies its own per-call deadline; a failure here skips the
// flow without affecting ingest.
func (p *Pipeline) detect(c completion) {
	vec := features.Extract(c.flow)

	started := time.Now()
	verdict, err := p.classifier.Classify(context.Background(), vec)
	metrics.ClassifyDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		p.classifyErrors.Add(1)
		if status.Code(err) == codes.DeadlineExceeded {
			metrics.ClassifyTimeouts.Inc()
		} else {
			metrics.ClassifyErrors.Inc()
		}
		log.Printf("ERROR: classification failed for %s: %v", c.flow.Tuple, err)
		return
	}
	p.classified.Add(1)
	metrics.Classifications.WithLabelValues(string(verdict.Label)).Inc()

	outcome := p.dispatcher.Consider(c.flow.Tuple, verdict)
	switch outcome {
	case model.OutcomeBlockedNew:
		metrics.BlockedSources.Set(float64(p.dispatcher.Blocked().Len()))
	case model.OutcomeBlockFailed:
		metrics.BlockFailures.Inc()
	}

	if p.audit != nil {
		det := &model.Detection{
			Timestamp: time.Now(),
			FiveTuple: c.flow.Tuple,
			Features:  vec,
			Verdict:   verdict,
			Outcome:   outcome,
		}
		if err := p.audit.Write(det); err != nil {
			log.Printf("ERROR: audit write failed for %s: %v", c.flow.Tuple, err)
		}
	}
}

// Stats is a point-in-time summary for the status API.
type Stats struct {
	Uptime           string `json:"uptime"`
	PacketsProcessed uint64 `json:"packets_processed"`
	ActiveFlows      int    `json:"active_flows"`
	FlowsCompleted   uint64 `json:"flows_completed"`
	FlowEvictions    uint64 `json:"flow_evictions"`
	Classified       uint64 `json:"classified"`
	ClassifyErrors   uint64 `json:"classify_errors"`
	QueueDrops       uint64 `json:"queue_drops"`
	BlockedSources   int    `json:"blocked_sources"`
}

// Stats returns current pipeline counters.
func (p *Pipeline) Stats() Stats {
	uptime := time.Duration(0)
	if !p.start.IsZero() {
		uptime = time.Since(p.start).Round(time.Second)
	}
	return Stats{
		Uptime:           uptime.String(),
		PacketsProcessed: p.packetsProcessed.Load(),
		ActiveFlows:      p.table.Len(),
		FlowsCompleted:   p.flowsCompleted.Load(),
		FlowEvictions:    p.table.Evictions(),
		Classified:       p.classified.Load(),
		ClassifyErrors:   p.classifyErrors.Load(),
		QueueDrops:       p.queueDrops.Load(),
		BlockedSources:   p.dispatcher.Blocked().Len(),
	}
}
