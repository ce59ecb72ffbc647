package model

// Blocker is the administrative interface of the external packet-filtering
// utility. Block and Unblock act on source IPs; Unload detaches the filter
// from the interface entirely.
type Blocker interface {
	Block(ip string) error
	Unblock(ip string) error
	Unload() error
}
