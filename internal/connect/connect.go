// Package connect implements the self-connect policy matrix and port
// matching/link management (spec.md §4.8).
//
// Grounded verbatim on original_source/pipewire-jack/src/pipewire-jack.c's
// check_connect (lines 5570-5595): the exact same self/dst/sum case split,
// reproduced rather than simplified, since this is policy a real JACK
// application depends on byte-for-byte.
package connect

import (
	"regexp"
	"sort"

	"jackshim/internal/jackerr"
	"jackshim/internal/shimconfig"
)

// Verdict is the outcome check_connect reaches for one candidate link.
type Verdict int

const (
	VerdictAllow Verdict = 1
	VerdictIgnore Verdict = 0
	VerdictFail  Verdict = -1
)

// CheckConnect reproduces check_connect: mode ALLOW always passes; a
// connection between two ports that do not both belong to nodeID always
// passes; an internal (both-ends-self) connection passes under the two
// EXT modes; everything else fails under the two FAIL modes and is
// silently ignored (not an error) under the two IGNORE modes.
func CheckConnect(mode shimconfig.SelfConnectMode, nodeID uint32, srcNodeID, dstNodeID uint32) Verdict {
	if mode == shimconfig.SelfConnectAllow {
		return VerdictAllow
	}

	srcSelf := srcNodeID == nodeID
	dstSelf := dstNodeID == nodeID
	sum := 0
	if srcSelf {
		sum++
	}
	if dstSelf {
		sum++
	}

	if sum == 0 {
		return VerdictAllow
	}
	if sum == 2 && (mode == shimconfig.SelfConnectFailExternal || mode == shimconfig.SelfConnectIgnoreExternal) {
		return VerdictAllow
	}
	if mode == shimconfig.SelfConnectFailAll || mode == shimconfig.SelfConnectFailExternal {
		return VerdictFail
	}
	return VerdictIgnore
}

// Link is one established connection between two ports.
type Link struct {
	ID       uint32
	SrcPort  uint32
	DstPort  uint32
	Passive  bool // jack.link-passive: excluded from graph latency propagation
	Linger   bool // jack.linger: kept alive after either endpoint closes
}

// PortInfo is the subset of port state port matching needs.
type PortInfo struct {
	ID     uint32
	NodeID uint32
	Name   string
	Flags  uint32 // spec.md §3 port flags
	Type   string
}

// Manager tracks established links and provides jack_get_ports-style
// regex matching (spec.md §4.8).
type Manager struct {
	mode     shimconfig.SelfConnectMode
	nextID   uint32
	links    map[uint32]*Link
}

// New creates a link Manager enforcing mode.
func New(mode shimconfig.SelfConnectMode) *Manager {
	return &Manager{mode: mode, links: make(map[uint32]*Link)}
}

// SetMode updates the self-connect policy (spec.md §6: settable via
// PIPEWIRE_PROPS at runtime reconfiguration).
func (m *Manager) SetMode(mode shimconfig.SelfConnectMode) { m.mode = mode }

// Connect evaluates the self-connect policy and, if allowed, creates a
// Link. A VerdictIgnore is reported back as success with linked=false
// (the upstream semantics: no error, no connection).
func (m *Manager) Connect(nodeID uint32, src, dst PortInfo, passive bool) (link *Link, linked bool, err error) {
	switch CheckConnect(m.mode, nodeID, src.NodeID, dst.NodeID) {
	case VerdictFail:
		return nil, false, jackerr.ErrSelfConnect
	case VerdictIgnore:
		return nil, false, nil
	}

	m.nextID++
	l := &Link{ID: m.nextID, SrcPort: src.ID, DstPort: dst.ID, Passive: passive}
	m.links[l.ID] = l
	return l, true, nil
}

// Disconnect removes a link by its endpoints.
func (m *Manager) Disconnect(srcPort, dstPort uint32) error {
	for id, l := range m.links {
		if l.SrcPort == srcPort && l.DstPort == dstPort {
			if l.Linger {
				return nil
			}
			delete(m.links, id)
			return nil
		}
	}
	return jackerr.ErrArgument
}

// Links returns every currently established link.
func (m *Manager) Links() []*Link {
	out := make([]*Link, 0, len(m.links))
	for _, l := range m.links {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ConnectedTo returns the ports linked to portID, either as sources (when
// portID is a destination) or destinations (when portID is a source).
func (m *Manager) ConnectedTo(portID uint32) []uint32 {
	var out []uint32
	for _, l := range m.Links() {
		if l.SrcPort == portID {
			out = append(out, l.DstPort)
		} else if l.DstPort == portID {
			out = append(out, l.SrcPort)
		}
	}
	return out
}

// MatchPorts implements jack_get_ports: a POSIX extended regex match on
// name (if namePattern != "") and on the type string (if typePattern !=
// ""), returning names sorted for stable output.
func MatchPorts(ports []PortInfo, namePattern, typePattern string, flagsMask uint32) ([]string, error) {
	var nameRe *regexp.Regexp
	if namePattern != "" {
		re, err := regexp.CompilePOSIX(namePattern)
		if err != nil {
			return nil, jackerr.ErrArgument
		}
		nameRe = re
	}
	var typeRe *regexp.Regexp
	if typePattern != "" {
		re, err := regexp.CompilePOSIX(typePattern)
		if err != nil {
			return nil, jackerr.ErrArgument
		}
		typeRe = re
	}

	var out []string
	for _, p := range ports {
		if flagsMask != 0 && p.Flags&flagsMask != flagsMask {
			continue
		}
		if nameRe != nil && !nameRe.MatchString(p.Name) {
			continue
		}
		if typeRe != nil && !typeRe.MatchString(p.Type) {
			continue
		}
		out = append(out, p.Name)
	}
	sort.Strings(out)
	return out, nil
}
