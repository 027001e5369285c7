package usecase

import (
	"sync"
	"time"

	"github.com/kirillkom/agri-assistant/internal/core/domain"
)

const DefaultMemoryWindow = 10

// ConversationMemory is a bounded FIFO log of the most recent turns.
type ConversationMemory struct {
	mu       sync.RWMutex
	capacity int
	turns    []domain.ConversationTurn
	now      func() time.Time
}

func NewConversationMemory(capacity int) *ConversationMemory {
	if capacity <= 0 {
		capacity = DefaultMemoryWindow
	}
	return &ConversationMemory{
		capacity: capacity,
		turns:    make([]domain.ConversationTurn, 0, capacity),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (m *ConversationMemory) Record(input, output string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	turn := domain.ConversationTurn{Input: input, Output: output, RecordedAt: m.now()}
	if len(m.turns) == m.capacity {
		copy(m.turns, m.turns[1:])
		m.turns[len(m.turns)-1] = turn
		return
	}
	m.turns = append(m.turns, turn)
}

// restore replaces the log with turns (oldest first), keeping the newest
// capacity entries.
func (m *ConversationMemory) restore(turns []domain.ConversationTurn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(turns) > m.capacity {
		turns = turns[len(turns)-m.capacity:]
	}
	m.turns = append(m.turns[:0], turns...)
}

// History returns a copy, oldest first.
func (m *ConversationMemory) History() []domain.ConversationTurn {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.ConversationTurn, len(m.turns))
	copy(out, m.turns)
	return out
}

func (m *ConversationMemory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.turns)
}

func (m *ConversationMemory) Capacity() int {
	return m.capacity
}
