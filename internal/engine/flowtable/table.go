package flowtable

import (
	"container/list"
	"hash/fnv"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"FlowSentry/internal/model"
)

const defaultShardCount = 256

// shard is one partition of the table: a keyed map plus an LRU list ordered
// by update recency (front = most recently updated).
type shard struct {
	mu    sync.Mutex
	flows map[string]*Flow
	lru   *list.List
}

// Table is a sharded, capacity-bounded store of in-progress flows. Packets
// are routed to shards by an fnv hash of the canonical flow key; each shard
// serializes updates with its own mutex so a single flow's packets are always
// applied in arrival order.
type Table struct {
	shards      []*shard
	shardCount  uint32
	maxPerShard int
	timeout     time.Duration
	evictions   atomic.Uint64
}

// NewTable creates a flow table holding at most maxFlows flows with the given
// inactivity timeout. The capacity is split evenly across shards; when a
// shard fills up its least-recently-updated flow is force-expired.
func NewTable(maxFlows int, numShards uint32, timeout time.Duration) *Table {
	if numShards == 0 || numShards >= 32768 {
		numShards = defaultShardCount
	}
	maxPerShard := maxFlows / int(numShards)
	if maxPerShard < 1 {
		maxPerShard = 1
	}
	t := &Table{
		shards:      make([]*shard, numShards),
		shardCount:  numShards,
		maxPerShard: maxPerShard,
		timeout:     timeout,
	}
	for i := range t.shards {
		t.shards[i] = &shard{
			flows: make(map[string]*Flow),
			lru:   list.New(),
		}
	}
	return t
}

func (t *Table) getShard(key string) *shard {
	hasher := fnv.New32a()
	hasher.Write([]byte(key))
	return t.shards[hasher.Sum32()%t.shardCount]
}

// Update folds a packet into its flow, creating the flow if needed. It
// returns any flows that left the table as a result: a flow completed by a
// TCP teardown, or a flow force-expired to make room under the capacity cap.
// Returned flows are no longer reachable from the table and may be used
// without locking.
func (t *Table) Update(pkt *model.PacketInfo) []*Flow {
	key := pkt.FiveTuple.Key()
	sh := t.getShard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	var done []*Flow

	f, ok := sh.flows[key]
	if !ok {
		if len(sh.flows) >= t.maxPerShard {
			if victim := sh.evictOldest(); victim != nil {
				t.evictions.Add(1)
				log.Printf("WARNING: flow table shard full, force-expiring %s", victim.Tuple)
				done = append(done, victim)
			}
		}
		f = newFlow(pkt)
		sh.flows[key] = f
		f.lruEle = sh.lru.PushFront(f)
		return done
	}

	closed := f.addPacket(pkt)
	sh.lru.MoveToFront(f.lruEle)
	if closed {
		f.State = StateClosed
		sh.remove(f)
		done = append(done, f)
	}
	return done
}

// Expire removes and returns all flows whose last packet is older than the
// inactivity timeout relative to now.
func (t *Table) Expire(now time.Time) []*Flow {
	var expired []*Flow
	for _, sh := range t.shards {
		sh.mu.Lock()
		for _, f := range sh.flows {
			if now.Sub(f.LastSeen) > t.timeout {
				f.State = StateExpired
				sh.remove(f)
				expired = append(expired, f)
			}
		}
		sh.mu.Unlock()
	}
	return expired
}

// FlushAll drains every remaining flow, marking it expired. Used at shutdown
// so active flows still pass through extraction and classification.
func (t *Table) FlushAll() []*Flow {
	var flushed []*Flow
	for _, sh := range t.shards {
		sh.mu.Lock()
		for _, f := range sh.flows {
			f.State = StateExpired
			flushed = append(flushed, f)
		}
		sh.flows = make(map[string]*Flow)
		sh.lru.Init()
		sh.mu.Unlock()
	}
	return flushed
}

// Len returns the total number of tracked flows.
func (t *Table) Len() int {
	count := 0
	for _, sh := range t.shards {
		sh.mu.Lock()
		count += len(sh.flows)
		sh.mu.Unlock()
	}
	return count
}

// Evictions returns the number of flows force-expired under the capacity cap.
func (t *Table) Evictions() uint64 {
	return t.evictions.Load()
}

// FlowView is a read-only summary of an active flow for the status API.
type FlowView struct {
	Tuple    string    `json:"tuple"`
	Packets  uint64    `json:"packets"`
	Bytes    uint64    `json:"bytes"`
	LastSeen time.Time `json:"last_seen"`
}

// Snapshot returns a point-in-time view of all active flows.
func (t *Table) Snapshot() []FlowView {
	var views []FlowView
	for _, sh := range t.shards {
		sh.mu.Lock()
		for _, f := range sh.flows {
			views = append(views, FlowView{
				Tuple:    f.Tuple.String(),
				Packets:  f.PacketCount(),
				Bytes:    f.ByteCount(),
				LastSeen: f.LastSeen,
			})
		}
		sh.mu.Unlock()
	}
	return views
}

// evictOldest removes the least-recently-updated flow from the shard. Caller
// holds the shard lock.
func (sh *shard) evictOldest() *Flow {
	back := sh.lru.Back()
	if back == nil {
		return nil
	}
	victim := back.Value.(*Flow)
	victim.State = StateExpired
	sh.remove(victim)
	return victim
}

// remove unlinks a flow from both the map and the LRU list. Caller holds the
// shard lock.
func (sh *shard) remove(f *Flow) {
	delete(sh.flows, f.Key)
	if f.lruEle != nil {
		sh.lru.Remove(f.lruEle)
		f.lruEle = nil
	}
}
