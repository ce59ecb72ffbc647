package mitigation

import (
	"errors"
	"net"
	"sync"
	"testing"

	"FlowSentry/internal/model"
)

// fakeBlocker records block calls and can be told to fail.
type fakeBlocker struct {
	mu       sync.Mutex
	blocks   []string
	unblocks []string
	fail     bool
}

func (b *fakeBlocker) Block(ip string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail {
		return errors.New("filter unreachable")
	}
	b.blocks = append(b.blocks, ip)
	return nil
}

func (b *fakeBlocker) Unblock(ip string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unblocks = append(b.unblocks, ip)
	return nil
}

func (b *fakeBlocker) Unload() error { return nil }

func (b *fakeBlocker) blockCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.blocks)
}

func attackTuple() model.FiveTuple {
	return model.FiveTuple{
		SrcIP:    net.ParseIP("10.0.0.5"),
		DstIP:    net.ParseIP("192.168.1.10"),
		SrcPort:  80,
		DstPort:  4455,
		Protocol: 6,
	}
}

func TestConsider_BenignSkipped(t *testing.T) {
	blocker := &fakeBlocker{}
	d := NewDispatcher(NewBlockedSet(), blocker, nil)

	outcome := d.Consider(attackTuple(), model.Verdict{Label: model.LabelBenign, Confidence: 0.97})
	if outcome != model.OutcomeSkippedBenign {
		t.Errorf("outcome = %v, want skipped-benign", outcome)
	}
	if blocker.blockCount() != 0 {
		t.Errorf("benign verdict produced %d block calls", blocker.blockCount())
	}
}

func TestConsider_Idempotent(t *testing.T) {
	blocker := &fakeBlocker{}
	d := NewDispatcher(NewBlockedSet(), blocker, nil)
	verdict := model.Verdict{Label: model.LabelAttack, Confidence: 0.91}

	if outcome := d.Consider(attackTuple(), verdict); outcome != model.OutcomeBlockedNew {
		t.Fatalf("first outcome = %v, want blocked-new", outcome)
	}
	if outcome := d.Consider(attackTuple(), verdict); outcome != model.OutcomeAlreadyBlocked {
		t.Fatalf("second outcome = %v, want already-blocked", outcome)
	}
	if blocker.blockCount() != 1 {
		t.Errorf("external block called %d times, want exactly 1", blocker.blockCount())
	}
	if len(blocker.blocks) > 0 && blocker.blocks[0] != "10.0.0.5" {
		t.Errorf("blocked %s, want 10.0.0.5", blocker.blocks[0])
	}
}

func TestConsider_ConcurrentSingleBlock(t *testing.T) {
	blocker := &fakeBlocker{}
	d := NewDispatcher(NewBlockedSet(), blocker, nil)
	verdict := model.Verdict{Label: model.LabelAttack, Confidence: 0.91}

	var wg sync.WaitGroup
	outcomes := make(chan model.MitigationOutcome, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes <- d.Consider(attackTuple(), verdict)
		}()
	}
	wg.Wait()
	close(outcomes)

	newBlocks := 0
	for o := range outcomes {
		if o == model.OutcomeBlockedNew {
			newBlocks++
		}
	}
	if newBlocks != 1 {
		t.Errorf("blocked-new outcomes = %d, want 1", newBlocks)
	}
	if blocker.blockCount() != 1 {
		t.Errorf("external block called %d times, want 1", blocker.blockCount())
	}
}

func TestConsider_FailureRevertsSet(t *testing.T) {
	blocker := &fakeBlocker{fail: true}
	set := NewBlockedSet()
	d := NewDispatcher(set, blocker, nil)
	verdict := model.Verdict{Label: model.LabelAttack, Confidence: 0.91}

	if outcome := d.Consider(attackTuple(), verdict); outcome != model.OutcomeBlockFailed {
		t.Fatalf("outcome = %v, want block-failed", outcome)
	}
	if set.Contains("10.0.0.5") {
		t.Error("failed block left 10.0.0.5 in the blocked set")
	}

	// Filter recovers: the next detection retries and succeeds.
	blocker.fail = false
	if outcome := d.Consider(attackTuple(), verdict); outcome != model.OutcomeBlockedNew {
		t.Errorf("retry outcome = %v, want blocked-new", outcome)
	}
}

func TestUnblock(t *testing.T) {
	blocker := &fakeBlocker{}
	d := NewDispatcher(NewBlockedSet(), blocker, nil)
	d.Consider(attackTuple(), model.Verdict{Label: model.LabelAttack, Confidence: 0.91})

	if err := d.Unblock("10.0.0.5"); err != nil {
		t.Fatalf("Unblock failed: %v", err)
	}
	if d.Blocked().Contains("10.0.0.5") {
		t.Error("IP still in set after Unblock")
	}
	if err := d.Unblock("10.0.0.5"); err == nil {
		t.Error("unblocking an unblocked IP should fail")
	}
}

func TestBlockedSet_AtomicAdd(t *testing.T) {
	set := NewBlockedSet()
	var wg sync.WaitGroup
	added := make(chan bool, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			added <- set.Add("192.0.2.1")
		}()
	}
	wg.Wait()
	close(added)

	wins := 0
	for ok := range added {
		if ok {
			wins++
		}
	}
	if wins != 1 {
		t.Errorf("Add succeeded %d times, want exactly 1", wins)
	}
	if set.Len() != 1 {
		t.Errorf("set len = %d, want 1", set.Len())
	}
}
