// Package convo holds the conversation data model and its stores: the
// in-memory manager that owns live conversations and the sqlite history
// store that persists messages and audit events.
package convo

import "time"

// Message roles.
const (
	RoleUser   = "user"
	RoleBot    = "bot"
	RoleAgent  = "agent"
	RoleSystem = "system"
)

// AgentEvent kinds.
const (
	EventFrustration = "frustration"
	EventQuality     = "quality"
	EventRouting     = "routing"
)

// Message is one turn in a conversation. Immutable once appended.
type Message struct {
	Role      string         `json:"role"`
	Text      string         `json:"text"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// AgentEvent is an audit-trail entry produced by the pipeline. Events are
// append-only and are never read back into later decisions.
type AgentEvent struct {
	Kind        string    `json:"kind"`
	Description string    `json:"description"`
	Score       *float64  `json:"score,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// HumanFlowState tracks a committed human handoff. Present iff a human
// agent is assigned; owned exclusively by the orchestrator and mutated
// only while the conversation is being processed for a turn.
type HumanFlowState struct {
	Flow string `json:"flow"`
	Step int    `json:"step"`
}

// Conversation is the per-customer conversation record. One conversation
// is owned by exactly one turn at a time (see Manager.Turn).
type Conversation struct {
	ID            string          `json:"id"`
	Messages      []Message       `json:"messages"`           // chronological
	Events        []AgentEvent    `json:"events"`             // most recent first
	AssignedAgent string          `json:"assigned_agent"`     // empty when unassigned
	Open          bool            `json:"open"`
	HumanState    *HumanFlowState `json:"human_state,omitempty"`
	VIP           bool            `json:"vip"`
	CreatedAt     time.Time       `json:"created_at"`

	// Pipeline state carried across turns for this conversation.
	FrustrationHistory  []float64 `json:"frustration_history"`
	HallucinationStreak int       `json:"hallucination_streak"`
	EscalationCount     int       `json:"escalation_count"`
}

// AppendMessage appends a message with the current timestamp.
// Callers must own the conversation's turn.
func (c *Conversation) AppendMessage(role, text string, meta map[string]any) Message {
	msg := Message{Role: role, Text: text, Timestamp: time.Now(), Metadata: meta}
	c.Messages = append(c.Messages, msg)
	return msg
}

// AppendEvent prepends an audit event (most recent first).
// Callers must own the conversation's turn.
func (c *Conversation) AppendEvent(kind, description string, score *float64) AgentEvent {
	ev := AgentEvent{Kind: kind, Description: description, Score: score, Timestamp: time.Now()}
	c.Events = append([]AgentEvent{ev}, c.Events...)
	return ev
}

// RecentMessages returns up to max trailing messages, most recent last.
func (c *Conversation) RecentMessages(max int) []Message {
	if max <= 0 || len(c.Messages) <= max {
		out := make([]Message, len(c.Messages))
		copy(out, c.Messages)
		return out
	}
	out := make([]Message, max)
	copy(out, c.Messages[len(c.Messages)-max:])
	return out
}

// LastUserMessage returns the most recent user message, if any.
func (c *Conversation) LastUserMessage() (Message, bool) {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == RoleUser {
			return c.Messages[i], true
		}
	}
	return Message{}, false
}
