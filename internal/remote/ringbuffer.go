package remote

import "sync"

// DefaultOutputLimit caps each captured stream.
const DefaultOutputLimit = 1 << 20

const minRingAlloc = 512

// RingBuffer is a bounded io.Writer that keeps the newest bytes written to
// it. Storage grows with the output until it reaches the capacity, so
// commands such as `journalctl` or `cat` on a large log cannot grow it
// further while short answers stay small.
type RingBuffer struct {
	mu   sync.Mutex
	size int
	// buf is filled linearly until len(buf) == size; from then on it is a
	// ring starting at start.
	buf     []byte
	start   int
	n       int
	dropped int64
}

// NewRingBuffer returns a buffer holding at most size bytes.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = DefaultOutputLimit
	}
	return &RingBuffer{size: size}
}

// reserve makes room for need bytes without exceeding the capacity.
func (rb *RingBuffer) reserve(need int) {
	if need <= cap(rb.buf) {
		return
	}
	c := min(max(2*cap(rb.buf), need, minRingAlloc), rb.size)
	nb := make([]byte, len(rb.buf), c)
	copy(nb, rb.buf)
	rb.buf = nb
}

// Write implements io.Writer. It never fails; overflow discards the oldest
// bytes.
func (rb *RingBuffer) Write(p []byte) (int, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	size := rb.size
	if len(rb.buf) < size {
		if need := rb.n + len(p); need <= size {
			rb.reserve(need)
			rb.buf = append(rb.buf, p...)
			rb.n = need
			return len(p), nil
		}
		rb.reserve(size)
		rb.buf = rb.buf[:size]
	}

	if len(p) >= size {
		rb.dropped += int64(rb.n + len(p) - size)
		copy(rb.buf, p[len(p)-size:])
		rb.start = 0
		rb.n = size
		return len(p), nil
	}

	if over := rb.n + len(p) - size; over > 0 {
		rb.start = (rb.start + over) % size
		rb.n -= over
		rb.dropped += int64(over)
	}
	end := (rb.start + rb.n) % size
	k := copy(rb.buf[end:], p)
	copy(rb.buf, p[k:])
	rb.n += len(p)
	return len(p), nil
}

// Bytes returns a copy of the buffered bytes, oldest first.
func (rb *RingBuffer) Bytes() []byte {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	out := make([]byte, rb.n)
	k := copy(out, rb.buf[rb.start:min(rb.start+rb.n, len(rb.buf))])
	copy(out[k:], rb.buf[:rb.n-k])
	return out
}

// Len returns the number of buffered bytes.
func (rb *RingBuffer) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.n
}

// Dropped returns how many bytes were discarded by overflow.
func (rb *RingBuffer) Dropped() int64 {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.dropped
}

// Reset empties the buffer.
func (rb *RingBuffer) Reset() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.buf = rb.buf[:0]
	rb.start, rb.n, rb.dropped = 0, 0, 0
}

// Capacity returns the maximum number of bytes kept.
func (rb *RingBuffer) Capacity() int {
	return rb.size
}
