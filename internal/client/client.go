// Package client implements the root client aggregate (spec.md §4.7):
// open/close/activate/deactivate, port registration against the name
// filtering rules, and wiring every other internal package into one
// per-client object graph.
//
// Grounded on server/server.go's top-level server struct composing a
// ChannelState, a Store, and an http.Server into one lifecycle object,
// and on client/app.go's Open/Close/activation sequencing for one
// logical session.
package client

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"

	"jackshim/internal/connect"
	"jackshim/internal/dispatch"
	"jackshim/internal/jackerr"
	"jackshim/internal/notifyring"
	"jackshim/internal/portmix"
	"jackshim/internal/registry"
	"jackshim/internal/shimconfig"
	"jackshim/internal/transport"
)

// uuidKindClient and uuidKindPort are the high bits of a JACK uuid
// (spec.md §3: bits 63..32 = kind, bits 31..0 = serial+1, bit 30 = monitor).
const (
	uuidKindClient uint64 = 2
	uuidKindPort   uint64 = 3
)

// nameFilterPattern restricts node/port names to characters JACK's own
// name parser accepts once the configured filter character is applied
// (spec.md §6: jack.filter-char defaults to '_').
var nameFilterPattern = regexp.MustCompile(`[^A-Za-z0-9 ._-]`)

// Client is one JACK client session: its ports, its connection policy,
// its transport handle, and its notification/callback pipeline.
type Client struct {
	mu sync.RWMutex

	cfg    shimconfig.Config
	log    *slog.Logger
	name   string
	nodeID uint32
	serial atomic.Uint64

	activated atomic.Bool
	closed    atomic.Bool

	ports    *portmix.Manager
	reg      *registry.Registry
	links    *connect.Manager
	transp   *transport.Transport
	ring     *notifyring.Ring
	dispatch *dispatch.Dispatcher

	objects map[*portmix.Port]*registry.Object
}

// Open creates a new Client with name, applying the configured filter
// character to any disallowed characters (spec.md §4.7).
func Open(name string, cfg shimconfig.Config, nodeID uint32, freePool *registry.FreePool, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	name = filterName(name, cfg.FilterChar)
	if name == "" {
		return nil, jackerr.ErrArgument
	}

	c := &Client{
		cfg:      cfg,
		log:      logger,
		name:     name,
		nodeID:   nodeID,
		ports:    portmix.NewManager(cfg.MaxClientPorts),
		reg:      registry.New(freePool, logger),
		links:    connect.New(cfg.SelfConnectMode),
		transp:   transport.New(),
		ring:     notifyring.New(),
		dispatch: dispatch.New(logger),
		objects:  make(map[*portmix.Port]*registry.Object),
	}
	logger.Info("client opened", "name", name, "node_id", nodeID)
	return c, nil
}

// filterName rewrites every character not in the permitted name alphabet
// to filterChar, collapsing to "" only when the input itself is empty.
func filterName(name string, filterChar byte) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	return nameFilterPattern.ReplaceAllString(name, string(filterChar))
}

// Name returns the client's (possibly filtered) registered name.
func (c *Client) Name() string { return c.name }

// UUID encodes this client's JACK uuid (spec.md §3).
func (c *Client) UUID() uint64 {
	return uuidKindClient<<32 | uint64(c.nodeID+1)
}

// Activate transitions the client into the processing graph (spec.md §4.7).
func (c *Client) Activate() error {
	if c.closed.Load() {
		return jackerr.ErrState
	}
	if !c.activated.CompareAndSwap(false, true) {
		return nil // already active, idempotent
	}
	c.log.Info("client activated", "name", c.name)
	return nil
}

// Deactivate removes the client from the processing graph, disconnecting
// every link it owns (spec.md §4.7).
func (c *Client) Deactivate() error {
	if !c.activated.CompareAndSwap(true, false) {
		return jackerr.ErrState
	}
	for _, l := range c.links.Links() {
		_ = c.links.Disconnect(l.SrcPort, l.DstPort)
	}
	c.log.Info("client deactivated", "name", c.name)
	return nil
}

// Activated reports whether the client is currently in the graph.
func (c *Client) Activated() bool { return c.activated.Load() }

// Close releases every port and link the client owns. It is not safe to
// use the Client after Close returns.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return jackerr.ErrState
	}
	c.activated.Store(false)
	c.mu.RLock()
	owned := make([]*portmix.Port, 0, len(c.objects))
	for p := range c.objects {
		owned = append(owned, p)
	}
	c.mu.RUnlock()
	for _, p := range owned {
		c.UnregisterPort(p)
	}
	for _, l := range c.links.Links() {
		_ = c.links.Disconnect(l.SrcPort, l.DstPort)
	}
	c.log.Info("client closed", "name", c.name)
	return nil
}

// RegisterPort creates a port owned by this client, naming it
// "<client>:<port>" after applying the same filter-character rule
// (spec.md §4.7, §8: a 769th port on a max_ports=768 client is rejected
// with ErrResource).
func (c *Client) RegisterPort(shortName string, direction portmix.Direction, typ portmix.Type, flags portmix.Flags) (*portmix.Port, error) {
	if c.closed.Load() {
		return nil, jackerr.ErrState
	}
	shortName = filterName(shortName, c.cfg.FilterChar)
	if shortName == "" {
		return nil, jackerr.ErrArgument
	}
	full := fmt.Sprintf("%s:%s", c.name, shortName)

	p, err := c.ports.AllocPort(full, direction, typ, flags)
	if err != nil {
		return nil, err
	}
	c.serial.Add(1)
	p.NodeID = c.nodeID

	obj := c.reg.Alloc(registry.KindPort)
	obj.ID = p.ID
	obj.Name = full
	obj.Payload = p
	c.mu.Lock()
	c.objects[p] = obj
	c.mu.Unlock()

	c.ring.Push(notifyring.Record{Kind: notifyring.KindPortRegistered, A: p.ID})
	return p, nil
}

// UnregisterPort removes a previously registered port: it is marked
// PhaseRemoving in the object registry (spec.md §3's "last callback
// still pending" state) before the port buffers are actually released,
// and then Free'd into the recycler's removed-object watermark (spec.md
// §4.1) — so jack_port_name() on a jack_port_t* still reads back the
// name after unregistration, until the next recycle pass.
func (c *Client) UnregisterPort(p *portmix.Port) {
	c.mu.Lock()
	obj := c.objects[p]
	delete(c.objects, p)
	c.mu.Unlock()

	if obj != nil {
		c.reg.MarkRemoving(obj)
	}

	c.ports.RemovePort(p)

	if obj != nil {
		c.reg.Free(obj)
	}

	c.ring.Push(notifyring.Record{Kind: notifyring.KindPortUnregistered, A: p.NodeID})
}

// PortCount returns the number of ports registered in direction, for
// diagnostics.
func (c *Client) PortCount(direction portmix.Direction) int {
	return c.ports.PortCount(direction)
}

// Connect wires two ports together, enforcing the self-connect policy
// configured for this client (spec.md §4.8).
func (c *Client) Connect(src, dst connect.PortInfo, passive bool) (*connect.Link, bool, error) {
	return c.links.Connect(c.nodeID, src, dst, passive)
}

// Disconnect removes an established link between two ports.
func (c *Client) Disconnect(srcPort, dstPort uint32) error {
	return c.links.Disconnect(srcPort, dstPort)
}

// Ring exposes the client's notification ring for the driver/callback
// dispatcher integration.
func (c *Client) Ring() *notifyring.Ring { return c.ring }

// Dispatcher exposes the client's callback dispatcher.
func (c *Client) Dispatcher() *dispatch.Dispatcher { return c.dispatch }

// Transport exposes the client's transport handle.
func (c *Client) Transport() *transport.Transport { return c.transp }

// Registry exposes the client's object registry, for diagnostics and the
// recycler-bound tests (spec.md §8 scenario #6).
func (c *Client) Registry() *registry.Registry { return c.reg }

// Links exposes the client's connection manager.
func (c *Client) Links() *connect.Manager { return c.links }

// DrainNotifications pumps every pending ring record through the
// dispatcher — the control-thread servicing step spec.md §4.4 describes.
func (c *Client) DrainNotifications() {
	for _, rec := range c.ring.DrainAll() {
		c.dispatch.Dispatch(rec)
	}
}
