package handoff

import (
	"context"
	"sync"
)

// Mailbox is a set of single-value slots. Put overwrites; Take returns the
// value and clears the slot in one atomic step, so a value is handed out at
// most once.
type Mailbox interface {
	Put(ctx context.Context, key string, payload []byte) error
	Take(ctx context.Context, key string) ([]byte, bool, error)
}

type MemoryMailbox struct {
	mu    sync.Mutex
	slots map[string][]byte
}

func NewMemoryMailbox() *MemoryMailbox {
	return &MemoryMailbox{slots: make(map[string][]byte)}
}

func (m *MemoryMailbox) Put(_ context.Context, key string, payload []byte) error {
	cp := make([]byte, len(payload))
	copy(cp, payload)

	m.mu.Lock()
	m.slots[key] = cp
	m.mu.Unlock()
	return nil
}

func (m *MemoryMailbox) Take(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.slots[key]
	if ok {
		delete(m.slots, key)
	}
	return v, ok, nil
}
