// Package orchestrator sequences the per-conversation escalation
// pipeline: frustration scoring, quality gating, the escalation decision,
// priority computation, agent routing and queue admission.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/bridgedesk/bridgedesk/internal/bus"
	"github.com/bridgedesk/bridgedesk/internal/config"
	"github.com/bridgedesk/bridgedesk/internal/convo"
	"github.com/bridgedesk/bridgedesk/internal/frustration"
	"github.com/bridgedesk/bridgedesk/internal/priority"
	"github.com/bridgedesk/bridgedesk/internal/provider"
	"github.com/bridgedesk/bridgedesk/internal/quality"
	"github.com/bridgedesk/bridgedesk/internal/queue"
	"github.com/bridgedesk/bridgedesk/internal/registry"
	"github.com/bridgedesk/bridgedesk/internal/routing"
)

// Turn states. A turn walks Drafting → Scoring → Gating, then either
// Continue or Escalating → (Routing → Admitted | Queued), and ends in
// Responding before the conversation returns to Idle.
const (
	StateDrafting   = "drafting"
	StateScoring    = "scoring"
	StateGating     = "gating"
	StateContinue   = "continue"
	StateEscalating = "escalating"
	StateRouting    = "routing"
	StateAdmitted   = "admitted"
	StateQueued     = "queued"
	StateResponding = "responding"
	StateHumanFlow  = "human_flow"
)

const fallbackReply = "I'm having trouble generating an answer right now. " +
	"Let me bring in a colleague who can help you directly."

// Options wires the orchestrator's collaborators.
type Options struct {
	Config        *config.Config
	Conversations *convo.Manager
	Store         *convo.Store // optional
	Generator     provider.Generator
	Scorer        *frustration.Scorer
	Gate          *quality.Gate
	Priorities    *priority.Calculator
	Registry      *registry.Registry
	Router        *routing.Engine
	Queue         *queue.Queue
	Bus           *bus.EventBus // optional
}

// Orchestrator runs the escalation pipeline. Each conversation's turns
// are serialized by the conversation manager; the agent registry is the
// only state shared across turns.
type Orchestrator struct {
	cfg        *config.Config
	convos     *convo.Manager
	store      *convo.Store
	generator  provider.Generator
	scorer     *frustration.Scorer
	gate       *quality.Gate
	priorities *priority.Calculator
	registry   *registry.Registry
	router     *routing.Engine
	queue      *queue.Queue
	bus        *bus.EventBus
	intents    *DomainClassifier
}

// New creates an orchestrator.
func New(opts Options) *Orchestrator {
	return &Orchestrator{
		cfg:        opts.Config,
		convos:     opts.Conversations,
		store:      opts.Store,
		generator:  opts.Generator,
		scorer:     opts.Scorer,
		gate:       opts.Gate,
		priorities: opts.Priorities,
		registry:   opts.Registry,
		router:     opts.Router,
		queue:      opts.Queue,
		bus:        opts.Bus,
		intents:    NewDomainClassifier(opts.Config.Routing.Domains),
	}
}

// TurnResult summarizes one processed user turn.
type TurnResult struct {
	ConversationID string              `json:"conversation_id"`
	TraceID        string              `json:"trace_id"`
	State          string              `json:"state"`
	Reply          convo.Message       `json:"reply"`
	Escalated      bool                `json:"escalated"`
	Queued         bool                `json:"queued"`
	AgentID        string              `json:"agent_id,omitempty"`
	AgentName      string              `json:"agent_name,omitempty"`
	Strategy       string              `json:"strategy,omitempty"`
	Frustration    *frustration.Result `json:"frustration,omitempty"`
	Quality        *quality.Result     `json:"quality,omitempty"`
	Priority       *priority.Score     `json:"priority,omitempty"`
	Admission      *queue.Admission    `json:"admission,omitempty"`
}

// OpenConversation starts a new conversation.
func (o *Orchestrator) OpenConversation(vip bool) string {
	id := o.convos.Create(vip)
	if o.store != nil {
		if snap, err := o.convos.Snapshot(id); err == nil {
			if err := o.store.CreateConversation(id, vip, snap.CreatedAt); err != nil {
				slog.Warn("store: create conversation", "id", id, "error", err)
			}
		}
	}
	return id
}

// HandleTurn processes one user message through the pipeline. Recoverable
// capability failures degrade or escalate; the only errors surfaced are
// unknown/closed conversations and queue capacity exhaustion.
func (o *Orchestrator) HandleTurn(ctx context.Context, conversationID, text string) (*TurnResult, error) {
	res := &TurnResult{
		ConversationID: conversationID,
		TraceID:        uuid.NewString(),
	}

	var turnErr error
	err := o.convos.Turn(conversationID, func(c *convo.Conversation) error {
		if c.AssignedAgent != "" {
			o.continueHumanFlow(c, text, res)
			return nil
		}
		turnErr = o.runPipeline(ctx, c, text, res)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, turnErr
}

// continueHumanFlow handles turns after a committed handoff: no automated
// triage, just flow-step bookkeeping and routing to the human agent.
func (o *Orchestrator) continueHumanFlow(c *convo.Conversation, text string, res *TurnResult) {
	o.recordMessage(c, convo.RoleUser, text, nil, res.TraceID)
	c.HumanState.Step++

	agentName := c.AssignedAgent
	if a, err := o.registry.Get(c.AssignedAgent); err == nil {
		agentName = a.Name
	}
	reply := o.recordMessage(c, convo.RoleSystem,
		fmt.Sprintf("Forwarded to %s.", agentName),
		map[string]any{"flow": c.HumanState.Flow, "step": c.HumanState.Step},
		res.TraceID)

	res.State = StateHumanFlow
	res.Reply = reply
	res.AgentID = c.AssignedAgent
	res.AgentName = agentName
}

// runPipeline executes the full triage state machine for one turn.
func (o *Orchestrator) runPipeline(ctx context.Context, c *convo.Conversation, text string, res *TurnResult) error {
	o.recordMessage(c, convo.RoleUser, text, nil, res.TraceID)
	history := providerHistory(c, o.cfg.Frustration.HistoryLimit)

	// Drafting. A generation outage still produces a reply: the fallback
	// text goes through the gate and forces the escalation path.
	res.State = StateDrafting
	draft := fallbackReply
	generationFailed := true
	if o.generator != nil {
		if gen, err := o.generator.Generate(ctx, text, history); err == nil {
			draft = gen.Text
			generationFailed = false
		} else {
			slog.Warn("generation unavailable", "conversation", c.ID, "error", err)
		}
	}

	// Scoring.
	res.State = StateScoring
	fr := o.scorer.ScoreMessage(ctx, text, history, c.FrustrationHistory)
	c.FrustrationHistory = append(c.FrustrationHistory, fr.Score)
	res.Frustration = fr
	o.recordEvent(c, convo.EventFrustration,
		fmt.Sprintf("frustration %.1f (%s, trend %s)", fr.Score, fr.Level, fr.Trend),
		&fr.Score, res.TraceID)

	// Gating.
	res.State = StateGating
	gateRes := o.gate.Evaluate(ctx, text, draft, history, c.HallucinationStreak)
	if gateRes.Unsupported {
		c.HallucinationStreak++
	} else if !gateRes.Degraded {
		// A degraded review carries no verdict, so the streak survives the
		// outage instead of being forgiven.
		c.HallucinationStreak = 0
	}
	res.Quality = gateRes
	o.recordEvent(c, convo.EventQuality,
		fmt.Sprintf("quality %.1f → %s: %s", gateRes.Score, gateRes.Decision, gateRes.Reasoning),
		&gateRes.Score, res.TraceID)

	// Escalation decision. Each trigger is independently sufficient.
	escalate := generationFailed ||
		fr.Score >= o.cfg.Orchestrator.EscalateThreshold ||
		gateRes.Decision == quality.DecisionHumanIntervention

	if !escalate {
		res.State = StateContinue
		reply := draft
		if gateRes.AdjustedResponse != "" {
			reply = gateRes.AdjustedResponse
		}
		res.Reply = o.recordMessage(c, convo.RoleBot, reply,
			map[string]any{"confidence": gateRes.Confidence}, res.TraceID)
		res.State = StateResponding
		return nil
	}

	return o.escalate(c, text, fr, res)
}

// escalate computes priority, routes to an agent, and falls back to the
// queue when nobody can take the case.
func (o *Orchestrator) escalate(c *convo.Conversation, text string, fr *frustration.Result, res *TurnResult) error {
	res.State = StateEscalating
	res.Escalated = true

	in := o.intents.Classify(text)
	repeatIssue := hasRepeatFactor(fr.ContributingFactors)

	score := o.priorities.Calculate(priority.Input{
		FrustrationLevel: fr.Level,
		ComplexityLevel:  in.Complexity,
		EscalationCount:  c.EscalationCount,
		RepeatIssue:      repeatIssue,
		VIP:              c.VIP,
	})
	c.EscalationCount++
	res.Priority = &score

	req := routing.Requirement{
		PrimaryDomain:    in.PrimaryDomain,
		SecondaryDomain:  in.SecondaryDomain,
		Complexity:       in.Complexity,
		Urgency:          urgencyFor(fr.ContributingFactors),
		FrustrationLevel: fr.Level,
	}

	res.State = StateRouting
	if cand := o.routeAndAdmit(req); cand != nil {
		o.assign(c, cand, in, fr, score.Value, res)
		return nil
	}

	// Queued.
	adm, err := o.queue.Push(queue.Item{
		ConversationID: c.ID,
		Priority:       score.Value,
		Requirement:    req,
	})
	if err != nil {
		o.recordMessage(c, convo.RoleSystem,
			"All agents are busy and the waiting line is full. Please try again shortly.",
			nil, res.TraceID)
		return fmt.Errorf("escalate conversation %s: %w", c.ID, err)
	}

	res.State = StateQueued
	res.Queued = true
	res.Admission = &adm
	res.Reply = o.recordMessage(c, convo.RoleBot,
		fmt.Sprintf("I'm connecting you with a specialist. You are number %d in line; estimated wait %s.",
			adm.Position, adm.EstimatedWait),
		map[string]any{"queue_position": adm.Position}, res.TraceID)
	o.recordEvent(c, convo.EventRouting,
		fmt.Sprintf("queued at position %d (priority %.1f)", adm.Position, score.Value),
		&score.Value, res.TraceID)
	o.publish(&bus.Event{
		Type:           bus.TypeQueued,
		ConversationID: c.ID,
		TraceID:        res.TraceID,
		Detail: map[string]any{
			"priority":       score.Value,
			"queue_position": adm.Position,
		},
	})
	return nil
}

// routeAndAdmit walks the ranked candidates until an admit succeeds.
// An agent going offline or filling up between ranking and admit is
// expected; the next candidate absorbs it.
func (o *Orchestrator) routeAndAdmit(req routing.Requirement) *routing.Candidate {
	for _, cand := range o.router.Rank(req) {
		err := o.registry.Admit(cand.Agent.ID, req.Difficult())
		if err == nil {
			c := cand
			return &c
		}
		if !errors.Is(err, registry.ErrAgentUnavailable) {
			slog.Warn("admit failed", "agent", cand.Agent.ID, "error", err)
		}
	}
	return nil
}

// assign completes a successful handoff.
func (o *Orchestrator) assign(c *convo.Conversation, cand *routing.Candidate, in Intent, fr *frustration.Result, priorityValue float64, res *TurnResult) {
	c.AssignedAgent = cand.Agent.ID
	c.HumanState = &convo.HumanFlowState{Flow: in.Flow, Step: 0}
	if o.store != nil {
		if err := o.store.SetAssignedAgent(c.ID, cand.Agent.ID); err != nil {
			slog.Warn("store: set assigned agent", "conversation", c.ID, "error", err)
		}
	}

	res.State = StateAdmitted
	res.AgentID = cand.Agent.ID
	res.AgentName = cand.Agent.Name
	res.Strategy = cand.Strategy
	res.Reply = o.recordMessage(c, convo.RoleBot,
		fmt.Sprintf("I'm handing you over to %s, who specializes in this area. They have the full context of our conversation.",
			cand.Agent.Name),
		map[string]any{"agent": cand.Agent.ID}, res.TraceID)
	o.recordEvent(c, convo.EventRouting,
		fmt.Sprintf("routed to %s via %s (score %.1f)", cand.Agent.Name, cand.Strategy, cand.Overall),
		&cand.Overall, res.TraceID)
	o.publish(&bus.Event{
		Type:           bus.TypeHandoff,
		ConversationID: c.ID,
		TraceID:        res.TraceID,
		Detail: map[string]any{
			"agent_id":            cand.Agent.ID,
			"agent_name":          cand.Agent.Name,
			"agent_slack_channel": cand.Agent.SlackChannel,
			"strategy":            cand.Strategy,
			"frustration_level":   fr.Level,
			"priority":            priorityValue,
		},
	})
	res.State = StateResponding
}

// CloseConversation resolves a conversation, releasing the assigned
// agent's load and removing any queue entry. Freed capacity immediately
// pulls the next queued escalation.
func (o *Orchestrator) CloseConversation(id string) error {
	agentID, err := o.convos.Close(id)
	if err != nil {
		return err
	}
	o.queue.Remove(id)
	if agentID != "" {
		if err := o.registry.Release(agentID); err != nil {
			slog.Warn("release failed", "agent", agentID, "error", err)
		}
	}
	if o.store != nil {
		if err := o.store.CloseConversation(id); err != nil {
			slog.Warn("store: close conversation", "id", id, "error", err)
		}
	}
	o.publish(&bus.Event{Type: bus.TypeResolved, ConversationID: id})

	if agentID != "" {
		o.DrainQueue()
	}
	return nil
}

// DrainQueue assigns queued escalations to freed agents, highest priority
// first. Returns the number of conversations assigned.
func (o *Orchestrator) DrainQueue() int {
	assigned := 0
	for {
		item, ok := o.queue.Pop()
		if !ok {
			return assigned
		}
		if !o.convos.IsOpen(item.ConversationID) {
			continue
		}

		cand := o.routeAndAdmit(item.Requirement)
		if cand == nil {
			// Nobody can take the head of the queue; put it back and stop.
			if _, err := o.queue.Push(item); err != nil {
				slog.Warn("requeue failed", "conversation", item.ConversationID, "error", err)
			}
			return assigned
		}

		err := o.convos.Turn(item.ConversationID, func(c *convo.Conversation) error {
			traceID := uuid.NewString()
			c.AssignedAgent = cand.Agent.ID
			c.HumanState = &convo.HumanFlowState{Flow: flowFor(item.Requirement.PrimaryDomain), Step: 0}
			o.recordMessage(c, convo.RoleBot,
				fmt.Sprintf("%s is now available and will take over from here.", cand.Agent.Name),
				map[string]any{"agent": cand.Agent.ID}, traceID)
			o.recordEvent(c, convo.EventRouting,
				fmt.Sprintf("dequeued and routed to %s", cand.Agent.Name), nil, traceID)
			if o.store != nil {
				if err := o.store.SetAssignedAgent(c.ID, cand.Agent.ID); err != nil {
					slog.Warn("store: set assigned agent", "conversation", c.ID, "error", err)
				}
			}
			o.publish(&bus.Event{
				Type:           bus.TypeHandoff,
				ConversationID: c.ID,
				TraceID:        traceID,
				Detail: map[string]any{
					"agent_id":            cand.Agent.ID,
					"agent_name":          cand.Agent.Name,
					"agent_slack_channel": cand.Agent.SlackChannel,
					"strategy":            cand.Strategy,
					"frustration_level":   item.Requirement.FrustrationLevel,
					"priority":            item.Priority,
				},
			})
			return nil
		})
		if err != nil {
			// Closed while the admit was in flight: complete the mutation,
			// then release immediately rather than leaving the registry
			// inconsistent.
			if releaseErr := o.registry.Release(cand.Agent.ID); releaseErr != nil {
				slog.Warn("release after cancelled assignment", "agent", cand.Agent.ID, "error", releaseErr)
			}
			continue
		}
		assigned++
	}
}

// recordMessage appends a message, persists it and publishes it.
func (o *Orchestrator) recordMessage(c *convo.Conversation, role, text string, meta map[string]any, traceID string) convo.Message {
	msg := c.AppendMessage(role, text, meta)
	if o.store != nil {
		if err := o.store.AppendMessage(c.ID, msg); err != nil {
			slog.Warn("store: append message", "conversation", c.ID, "error", err)
		}
	}
	o.publish(&bus.Event{
		Type:           bus.TypeMessage,
		ConversationID: c.ID,
		TraceID:        traceID,
		Message:        &msg,
	})
	return msg
}

// recordEvent appends an audit event, persists it and publishes it.
func (o *Orchestrator) recordEvent(c *convo.Conversation, kind, description string, score *float64, traceID string) {
	ev := c.AppendEvent(kind, description, score)
	if o.store != nil {
		if err := o.store.AppendEvent(c.ID, ev); err != nil {
			slog.Warn("store: append event", "conversation", c.ID, "error", err)
		}
	}
	o.publish(&bus.Event{
		Type:           bus.TypeAgentEvent,
		ConversationID: c.ID,
		TraceID:        traceID,
		AgentEvent:     &ev,
	})
}

func (o *Orchestrator) publish(ev *bus.Event) {
	if o.bus != nil {
		o.bus.Publish(ev)
	}
}

// providerHistory converts the bounded recent history (excluding the
// just-appended current message) into capability context.
func providerHistory(c *convo.Conversation, limit int) []provider.ContextMessage {
	recent := c.RecentMessages(limit + 1)
	if len(recent) > 0 {
		recent = recent[:len(recent)-1]
	}
	out := make([]provider.ContextMessage, 0, len(recent))
	for _, m := range recent {
		role := m.Role
		switch m.Role {
		case convo.RoleBot:
			role = "assistant"
		case convo.RoleAgent, convo.RoleSystem:
			role = "system"
		}
		out = append(out, provider.ContextMessage{Role: role, Content: m.Text})
	}
	return out
}

func hasRepeatFactor(factors []frustration.Factor) bool {
	for _, f := range factors {
		if f.Category == frustration.CategoryRepeat {
			return true
		}
	}
	return false
}

func urgencyFor(factors []frustration.Factor) string {
	for _, f := range factors {
		if f.Category == frustration.CategoryUrgency {
			return "high"
		}
	}
	return "low"
}
