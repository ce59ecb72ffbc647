package mitigation

import (
	"fmt"
	"log"
	"os/exec"
	"strings"

	"FlowSentry/internal/model"
)

// XDPFilter drives the external xdp-filter utility, which drops packets at
// the network-driver level before they reach the stack. It implements
// model.Blocker. All operations shell out synchronously; the dispatcher
// decides when that is acceptable.
type XDPFilter struct {
	iface   string
	command string
	loaded  bool
}

// NewXDPFilter prepares a driver for the given interface. command is the
// xdp-filter binary name or path.
func NewXDPFilter(iface, command string) *XDPFilter {
	if command == "" {
		command = "xdp-filter"
	}
	return &XDPFilter{iface: iface, command: command}
}

// Load attaches the filter program to the interface. skb mode keeps it
// working on virtualized NICs without native XDP support. A filter left
// attached by a previous run counts as success, which makes startup after an
// unclean shutdown safe.
func (x *XDPFilter) Load() error {
	out, err := x.run("load", x.iface, "-m", "skb")
	if err != nil {
		if strings.Contains(out, "is already loaded on") {
			log.Printf("xdp-filter already loaded on %s, reusing it", x.iface)
			x.loaded = true
			return nil
		}
		return fmt.Errorf("failed to load xdp-filter on %s: %w", x.iface, err)
	}
	x.loaded = true
	return nil
}

// Block adds a source IP to the filter's drop list.
func (x *XDPFilter) Block(ip string) error {
	if !x.loaded {
		return fmt.Errorf("xdp-filter not loaded on %s", x.iface)
	}
	if _, err := x.run("ip", "--mode", "src", ip); err != nil {
		return fmt.Errorf("failed to block %s: %w", ip, err)
	}
	return nil
}

// Unblock removes a source IP from the drop list.
func (x *XDPFilter) Unblock(ip string) error {
	if !x.loaded {
		return fmt.Errorf("xdp-filter not loaded on %s", x.iface)
	}
	if _, err := x.run("ip", "--mode", "src", "--remove", ip); err != nil {
		return fmt.Errorf("failed to unblock %s: %w", ip, err)
	}
	return nil
}

// Unload detaches the filter program from the interface. It is idempotent:
// unloading an already-detached filter is not an error, so cleanup is safe
// to re-run after a crash.
func (x *XDPFilter) Unload() error {
	if !x.loaded {
		return nil
	}
	if _, err := x.run("unload", x.iface); err != nil {
		return fmt.Errorf("failed to unload xdp-filter from %s: %w", x.iface, err)
	}
	x.loaded = false
	return nil
}

func (x *XDPFilter) run(args ...string) (string, error) {
	cmd := exec.Command(x.command, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("%s %s: %w: %s", x.command, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

var _ model.Blocker = (*XDPFilter)(nil)

// NopBlocker ignores all block requests. Used for offline replay, where the
// pipeline runs end to end but must not touch the kernel.
type NopBlocker struct{}

func (NopBlocker) Block(string) error   { return nil }
func (NopBlocker) Unblock(string) error { return nil }
func (NopBlocker) Unload() error        { return nil }
