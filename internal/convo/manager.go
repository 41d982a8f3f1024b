package convo

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrConversationClosed is returned when a turn is attempted on a closed
// conversation.
var ErrConversationClosed = errors.New("conversation closed")

// ErrConversationNotFound is returned for unknown conversation IDs.
var ErrConversationNotFound = errors.New("conversation not found")

type entry struct {
	mu sync.Mutex // serializes turns for this conversation
	c  *Conversation
}

// Manager owns all live conversations. Each conversation's turns are
// serialized by a per-conversation mutex; the manager map itself is the
// only cross-conversation state and is guarded separately.
type Manager struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewManager creates an empty conversation manager.
func NewManager() *Manager {
	return &Manager{entries: make(map[string]*entry)}
}

// Create opens a new conversation and returns its ID.
func (m *Manager) Create(vip bool) string {
	id := uuid.NewString()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[id] = &entry{c: &Conversation{
		ID:        id,
		Open:      true,
		VIP:       vip,
		CreatedAt: time.Now(),
	}}
	return id
}

func (m *Manager) lookup(id string) (*entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	return e, ok
}

// Turn runs fn with exclusive ownership of the conversation. The lock is
// held across the whole turn, including capability calls, so no other
// turn can observe or mutate the conversation mid-pipeline.
func (m *Manager) Turn(id string, fn func(*Conversation) error) error {
	e, ok := m.lookup(id)
	if !ok {
		return ErrConversationNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.c.Open {
		return ErrConversationClosed
	}
	return fn(e.c)
}

// Close marks the conversation resolved and returns the agent that was
// assigned, if any. Closing an already-closed conversation is a no-op.
func (m *Manager) Close(id string) (assignedAgent string, err error) {
	e, ok := m.lookup(id)
	if !ok {
		return "", ErrConversationNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.c.Open {
		return "", nil
	}
	e.c.Open = false
	agent := e.c.AssignedAgent
	e.c.AssignedAgent = ""
	e.c.HumanState = nil
	return agent, nil
}

// IsOpen reports whether the conversation exists and is still open.
func (m *Manager) IsOpen(id string) bool {
	e, ok := m.lookup(id)
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.c.Open
}

// Snapshot returns a deep copy of the conversation for read-only use
// (dashboards, event feeds).
func (m *Manager) Snapshot(id string) (Conversation, error) {
	e, ok := m.lookup(id)
	if !ok {
		return Conversation{}, ErrConversationNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return copyConversation(e.c), nil
}

// List returns snapshots of all conversations, open first.
func (m *Manager) List() []Conversation {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	out := make([]Conversation, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, copyConversation(e.c))
		e.mu.Unlock()
	}
	return out
}

func copyConversation(c *Conversation) Conversation {
	cp := *c
	cp.Messages = append([]Message(nil), c.Messages...)
	cp.Events = append([]AgentEvent(nil), c.Events...)
	cp.FrustrationHistory = append([]float64(nil), c.FrustrationHistory...)
	if c.HumanState != nil {
		hs := *c.HumanState
		cp.HumanState = &hs
	}
	return cp
}
