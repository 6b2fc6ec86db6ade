package chat

import (
	"context"
	"sync"
	"time"
)

// DefaultMemoryCapacity is the number of messages retained by a MemoryStore
// created with a non-positive capacity.
const DefaultMemoryCapacity = 1000

// MemoryStore keeps the newest messages in a fixed-size ring buffer. It is
// goroutine-safe but not durable and is meant for development and tests.
type MemoryStore struct {
	mu     sync.Mutex
	items  []Message
	pos    int
	count  int
	nextID int64
	now    func() time.Time
}

// NewMemoryStore creates an empty MemoryStore retaining up to capacity
// messages.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryStore{
		items: make([]Message, capacity),
		now:   time.Now,
	}
}

// Append stores a message, overwriting the oldest one once the buffer is full.
// Ids keep increasing across overwrites.
func (s *MemoryStore) Append(ctx context.Context, username, text string) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}
	if err := ValidateMessage(username, text); err != nil {
		return Message{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	msg := Message{
		ID:        s.nextID,
		Username:  username,
		Text:      text,
		CreatedAt: s.now().UTC(),
	}

	capacity := len(s.items)
	s.items[s.pos] = msg
	s.pos = (s.pos + 1) % capacity
	if s.count < capacity {
		s.count++
	}
	return msg, nil
}

// Recent returns up to limit of the newest messages in chronological order
// (oldest first). It returns an empty, non-nil slice when nothing is stored.
func (s *MemoryStore) Recent(ctx context.Context, limit int) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.count
	if limit < n {
		n = limit
	}
	if n <= 0 {
		return []Message{}, nil
	}

	capacity := len(s.items)
	result := make([]Message, n)
	// The oldest selected message sits n slots behind the write position.
	start := (s.pos - n + capacity) % capacity
	for i := 0; i < n; i++ {
		result[i] = s.items[(start+i)%capacity]
	}
	return result, nil
}
