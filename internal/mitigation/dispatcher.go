package mitigation

import (
	"fmt"
	"log"
	"time"

	"FlowSentry/internal/model"
)

// Dispatcher turns classification verdicts into at-most-one block command
// per source IP. Benign verdicts are ignored; attack verdicts are
// deduplicated against the BlockedSet before the external filter is invoked.
type Dispatcher struct {
	blocked  *BlockedSet
	blocker  model.Blocker
	notifier model.Notifier // optional
}

// NewDispatcher creates a dispatcher around the given blocked set and
// external blocker. notifier may be nil.
func NewDispatcher(blocked *BlockedSet, blocker model.Blocker, notifier model.Notifier) *Dispatcher {
	return &Dispatcher{blocked: blocked, blocker: blocker, notifier: notifier}
}

// Consider decides what to do with a classified flow. For attack verdicts
// the flow's source IP is blocked exactly once; if the external block
// command fails, the set entry is reverted so a later detection can retry,
// and the failure is non-fatal.
func (d *Dispatcher) Consider(tuple model.FiveTuple, verdict model.Verdict) model.MitigationOutcome {
	if verdict.Label != model.LabelAttack {
		return model.OutcomeSkippedBenign
	}

	srcIP := tuple.SrcIP.String()
	if !d.blocked.Add(srcIP) {
		return model.OutcomeAlreadyBlocked
	}

	if err := d.blocker.Block(srcIP); err != nil {
		d.blocked.Remove(srcIP)
		log.Printf("ERROR: block command for %s failed, will retry on next detection: %v", srcIP, err)
		return model.OutcomeBlockFailed
	}

	log.Printf("Blocked %s (flow %s, confidence %.2f)", srcIP, tuple, verdict.Confidence)
	d.notify(srcIP, tuple, verdict)
	return model.OutcomeBlockedNew
}

// Unblock removes a source IP from both the external filter and the set.
// Exposed for the status API's manual unblock.
func (d *Dispatcher) Unblock(ip string) error {
	if !d.blocked.Contains(ip) {
		return fmt.Errorf("%s is not blocked", ip)
	}
	if err := d.blocker.Unblock(ip); err != nil {
		return err
	}
	d.blocked.Remove(ip)
	return nil
}

// Blocked returns the dispatcher's blocked set.
func (d *Dispatcher) Blocked() *BlockedSet {
	return d.blocked
}

func (d *Dispatcher) notify(srcIP string, tuple model.FiveTuple, verdict model.Verdict) {
	if d.notifier == nil {
		return
	}
	subject := fmt.Sprintf("Blocked attacking source %s", srcIP)
	body := fmt.Sprintf("<h3>Source blocked</h3>"+
		"<ul>"+
		"<li><b>Source IP:</b> <code>%s</code></li>"+
		"<li><b>Flow:</b> <code>%s</code></li>"+
		"<li><b>Confidence:</b> <code>%.2f</code></li>"+
		"<li><b>Time:</b> <code>%s</code></li>"+
		"</ul>",
		srcIP, tuple, verdict.Confidence, time.Now().Format(time.RFC3339))
	if err := d.notifier.Send(subject, body); err != nil {
		log.Printf("ERROR: failed to send block notification for %s: %v", srcIP, err)
	}
}
