// Package threadutil is the thread-creation shim (spec.md §4's thread
// utils, §5 concurrency model): it wraps goroutine creation with the
// real-time priority and naming upstream jack_client_create_thread
// requests, on platforms where the runtime exposes that control.
//
// Grounded on client/internal/jitter's single dedicated timing goroutine
// pattern — one goroutine per real-time responsibility, parked on a
// channel rather than a busy loop.
package threadutil

import (
	"runtime"
	"sync"
)

// Priority is a coarse real-time priority request (spec.md §6:
// rt.prio, default 88 matching JACK's historical default).
type Priority int

// Spec describes a requested real-time thread.
type Spec struct {
	Name       string
	Priority   Priority
	RealTime   bool
	LockMemory bool // mlockall-equivalent; a no-op placeholder outside cgo
}

// Handle lets the caller wait for a thread function to finish.
type Handle struct {
	done chan struct{}
	err  error
}

// Wait blocks until the thread function returns, and reports its error.
func (h *Handle) Wait() error {
	<-h.done
	return h.err
}

// Create starts fn on a dedicated OS thread (runtime.LockOSThread),
// which is as close as pure Go gets to JACK's real-time-thread creation
// without a cgo pthread_setschedparam call; Spec's priority/real-time
// fields are recorded for the caller's platform-specific setup hook but
// are not enforced by this package on their own (spec.md §9 Open
// Questions: actual RT scheduling is a cmd/libjack cgo concern, not this
// package's).
func Create(spec Spec, fn func() error) *Handle {
	h := &Handle{done: make(chan struct{})}
	go func() {
		defer close(h.done)
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		h.err = fn()
	}()
	return h
}

// Pool runs a fixed number of worker goroutines, each calling one shared
// function once with its worker index (spec.md §5).
type Pool struct {
	wg sync.WaitGroup
}

// Run starts n workers, each invoking fn once; Run blocks until every
// worker returns.
func (p *Pool) Run(n int, fn func(worker int)) {
	p.wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer p.wg.Done()
			fn(i)
		}(i)
	}
	p.wg.Wait()
}
