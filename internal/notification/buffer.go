package notification

import "sync"

// RingBuffer is a bounded, thread-safe FIFO. When full, the oldest entries
// are dropped to make room for new ones.
type RingBuffer struct {
	mu       sync.Mutex
	items    []Notification
	head     int
	tail     int
	count    int
	capacity int
	dropped  int64
}

func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 1024
	}
	return &RingBuffer{
		items:    make([]Notification, capacity),
		capacity: capacity,
	}
}

// Enqueue adds n, dropping the oldest entry if necessary. It reports whether
// something was dropped.
func (b *RingBuffer) Enqueue(n Notification) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	dropped := false
	if b.count >= b.capacity {
		b.tail = (b.tail + 1) % b.capacity
		b.count--
		b.dropped++
		dropped = true
	}
	b.items[b.head] = n
	b.head = (b.head + 1) % b.capacity
	b.count++
	return dropped
}

// DequeueBatch removes up to n entries, oldest first.
func (b *RingBuffer) DequeueBatch(n int) []Notification {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}
	if n > b.count {
		n = b.count
	}
	out := make([]Notification, n)
	for i := 0; i < n; i++ {
		out[i] = b.items[b.tail]
		b.items[b.tail] = Notification{}
		b.tail = (b.tail + 1) % b.capacity
	}
	b.count -= n
	return out
}

func (b *RingBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Dropped returns the total number of entries dropped for lack of room.
func (b *RingBuffer) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
