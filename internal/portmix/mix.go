package portmix

// Mix is one mixing slot on a Port: the pairing of that port with either
// a specific peer port (PeerID != InvalidPeerID) or the distinguished
// global mix that sums every peer together (spec.md §4.2).
type Mix struct {
	ID      uint32
	PeerID  uint32
	Port    *Port
	Peer    *Port
	IO      IOStatus
	Buffers [MaxBuffers]bufferSlot
	nbufs   int
	queue   []int  // indices into Buffers currently queued for the consumer
	current []byte // this cycle's producer output, set by SetCurrent
}

// SetCurrent records this mix's output buffer for the current cycle; the
// peer input port reads it back via activeAudioProducers/mixedMIDI.
func (m *Mix) SetCurrent(buf []byte) { m.current = buf }

// ClearCurrent drops the recorded output, signalling "no data this cycle"
// (spec.md §4.2: a producer that did not run contributes nothing, not
// silence it wrote itself).
func (m *Mix) ClearCurrent() { m.current = nil }

type bufferSlot struct {
	id   uint32
	data []byte
}

// CreateMix attaches a new per-peer Mix to p. For peerID == InvalidPeerID
// it returns p.GlobalMix, creating it on first use; for a peerID that
// already has a mix on p it returns that existing mix. Exceeding
// MaxMix silently stops admitting new peers (spec.md §9 Open Questions:
// preserved as the upstream policy, not surfaced as an error).
func (p *Port) CreateMix(peer *Port, peerID uint32) *Mix {
	p.mu.Lock()
	defer p.mu.Unlock()

	if peerID == InvalidPeerID {
		if p.GlobalMix == nil {
			p.GlobalMix = &Mix{PeerID: InvalidPeerID, Port: p}
		}
		return p.GlobalMix
	}
	for _, m := range p.Mixes {
		if m.PeerID == peerID {
			return m
		}
	}
	if len(p.Mixes) >= MaxMix {
		return p.Mixes[len(p.Mixes)-1]
	}
	m := &Mix{PeerID: peerID, Port: p, Peer: peer}
	p.Mixes = append(p.Mixes, m)
	return m
}

// RemoveMix detaches the mix associated with peerID from p.
func (p *Port) RemoveMix(peerID uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, m := range p.Mixes {
		if m.PeerID == peerID {
			p.Mixes = append(p.Mixes[:i], p.Mixes[i+1:]...)
			return
		}
	}
}

// UseBuffers installs up to MaxBuffers raw buffer descriptors on a mix
// (spec.md §4.2 use_buffers), replacing any previous set.
func (m *Mix) UseBuffers(bufs [][]byte) {
	n := len(bufs)
	if n > MaxBuffers {
		n = MaxBuffers
	}
	for i := 0; i < n; i++ {
		m.Buffers[i] = bufferSlot{id: uint32(i), data: bufs[i]}
	}
	m.nbufs = n
	m.queue = m.queue[:0]
	for i := 0; i < n; i++ {
		m.queue = append(m.queue, i)
	}
}

// DequeueBuffer pops the next buffer a producer should fill, or nil if
// none are queued (spec.md §4.2 dequeue_buffer).
func (m *Mix) DequeueBuffer() []byte {
	if len(m.queue) == 0 {
		return nil
	}
	idx := m.queue[0]
	m.queue = m.queue[1:]
	return m.Buffers[idx].data
}

// ReuseBuffer returns a previously dequeued buffer to the back of the
// queue for reuse on the next cycle (spec.md §4.2 reuse_buffer).
func (m *Mix) ReuseBuffer(buf []byte) {
	for i := 0; i < m.nbufs; i++ {
		if &m.Buffers[i].data[0] == &buf[0] {
			m.queue = append(m.queue, i)
			return
		}
	}
}
