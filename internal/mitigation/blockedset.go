package mitigation

import "sync"

// BlockedSet is the set of source IPs currently instructed to be blocked.
// Add is an atomic check-then-insert so concurrent classification completions
// for the same source cannot trigger duplicate block commands.
type BlockedSet struct {
	mu  sync.Mutex
	ips map[string]struct{}
}

// NewBlockedSet creates an empty blocked set.
func NewBlockedSet() *BlockedSet {
	return &BlockedSet{ips: make(map[string]struct{})}
}

// Add inserts ip and reports whether it was newly added.
func (s *BlockedSet) Add(ip string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ips[ip]; ok {
		return false
	}
	s.ips[ip] = struct{}{}
	return true
}

// Remove deletes ip from the set, allowing a later detection to retry the
// block after an external failure.
func (s *BlockedSet) Remove(ip string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ips, ip)
}

// Contains reports whether ip is currently blocked.
func (s *BlockedSet) Contains(ip string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ips[ip]
	return ok
}

// List returns all blocked IPs.
func (s *BlockedSet) List() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ips := make([]string, 0, len(s.ips))
	for ip := range s.ips {
		ips = append(ips, ip)
	}
	return ips
}

// Len returns the number of blocked IPs.
func (s *BlockedSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ips)
}
