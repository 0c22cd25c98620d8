package threadutil

import (
	"errors"
	"sync/atomic"
	"testing"
)

func TestCreateRunsFnAndReturnsError(t *testing.T) {
	wantErr := errors.New("boom")
	h := Create(Spec{Name: "rt-test", RealTime: true}, func() error { return wantErr })
	if err := h.Wait(); err != wantErr {
		t.Fatalf("Wait() = %v, want %v", err, wantErr)
	}
}

func TestPoolRunsAllWorkers(t *testing.T) {
	var count atomic.Int32
	var p Pool
	p.Run(8, func(worker int) { count.Add(1) })
	if count.Load() != 8 {
		t.Fatalf("count = %d, want 8", count.Load())
	}
}
