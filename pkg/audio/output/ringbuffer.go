// ABOUTME: Bounded byte ring between the network reader and the device callback
// ABOUTME: Drops the oldest whole frames on overflow and zero-fills underruns
package output

import "sync"

// RingStats is a snapshot of ring buffer counters
type RingStats struct {
	Capacity  int
	Buffered  int
	Written   uint64 // bytes accepted by Write
	Played    uint64 // bytes handed to the device
	Dropped   uint64 // bytes discarded on overflow
	Underruns uint64 // pulls that had to be padded with silence
}

// RingBuffer provides a thread-safe circular buffer of PCM bytes.
//
// The read position only ever moves in whole frames, so a partially
// received frame at the tail never shifts the sample alignment of what the
// device plays.
type RingBuffer struct {
	buffer    []byte
	frameSize int
	readPos   int
	count     int

	written   uint64
	played    uint64
	dropped   uint64
	underruns uint64

	mu sync.Mutex
}

// NewRingBuffer creates a ring buffer with the given capacity in bytes.
// Capacity is rounded down to a whole number of frames.
func NewRingBuffer(capacity, frameSize int) *RingBuffer {
	if frameSize <= 0 {
		frameSize = 1
	}
	capacity -= capacity % frameSize
	if capacity < frameSize {
		capacity = frameSize
	}
	return &RingBuffer{
		buffer:    make([]byte, capacity),
		frameSize: frameSize,
	}
}

// Write appends p. It never blocks: when p does not fit, the oldest
// buffered bytes are discarded, rounded up to whole frames, and if p alone
// is larger than the buffer only its newest bytes are kept.
func (rb *RingBuffer) Write(p []byte) (int, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	n := len(p)
	size := len(rb.buffer)
	rb.written += uint64(n)

	if excess := rb.count + n - size; excess > 0 {
		drop := roundUp(excess, rb.frameSize)
		if drop <= rb.count {
			rb.discard(drop)
		} else {
			skip := drop - rb.count
			rb.discard(rb.count)
			if skip > n {
				skip = n
			}
			rb.dropped += uint64(skip)
			p = p[skip:]
		}
	}

	writePos := (rb.readPos + rb.count) % size
	for len(p) > 0 {
		c := copy(rb.buffer[writePos:], p)
		p = p[c:]
		rb.count += c
		writePos = (writePos + c) % size
	}

	return n, nil
}

// Pull copies up to len(p) bytes of whole frames into p and fills the rest
// with silence. It returns the number of real audio bytes copied.
func (rb *RingBuffer) Pull(p []byte) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	n := rb.count - rb.count%rb.frameSize
	if n > len(p) {
		n = len(p) - len(p)%rb.frameSize
	}

	size := len(rb.buffer)
	copied := 0
	for copied < n {
		c := copy(p[copied:n], rb.buffer[rb.readPos:])
		copied += c
		rb.readPos = (rb.readPos + c) % size
	}
	rb.count -= n
	rb.played += uint64(n)

	// Zero-fill remaining if underrun
	for i := n; i < len(p); i++ {
		p[i] = 0
	}
	if n < len(p) {
		rb.underruns++
	}

	return n
}

// Available returns the number of bytes waiting to be played
func (rb *RingBuffer) Available() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.count
}

// Free returns the number of bytes that can be written without dropping
func (rb *RingBuffer) Free() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return len(rb.buffer) - rb.count
}

// Capacity returns the size of the buffer in bytes
func (rb *RingBuffer) Capacity() int {
	return len(rb.buffer)
}

// Reset discards everything buffered without counting it as dropped
func (rb *RingBuffer) Reset() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.readPos = 0
	rb.count = 0
}

// Stats returns a snapshot of the buffer counters
func (rb *RingBuffer) Stats() RingStats {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return RingStats{
		Capacity:  len(rb.buffer),
		Buffered:  rb.count,
		Written:   rb.written,
		Played:    rb.played,
		Dropped:   rb.dropped,
		Underruns: rb.underruns,
	}
}

// discard drops n bytes from the head (must hold rb.mu)
func (rb *RingBuffer) discard(n int) {
	rb.readPos = (rb.readPos + n) % len(rb.buffer)
	rb.count -= n
	rb.dropped += uint64(n)
}

func roundUp(n, multiple int) int {
	if r := n % multiple; r != 0 {
		return n + multiple - r
	}
	return n
}
