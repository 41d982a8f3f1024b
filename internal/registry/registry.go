// Package registry tracks human agents: online status, skills, workload
// and recent difficult-case history. It is the single piece of state
// shared between concurrently processed conversations; every mutation
// goes through one mutex so capacity checks are linearizable.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bridgedesk/bridgedesk/internal/config"
)

// ErrAgentUnavailable is returned when an admit targets an agent that is
// offline or at capacity. Recoverable: callers fall back to the next
// candidate or the queue.
var ErrAgentUnavailable = errors.New("agent unavailable")

// ErrAgentNotFound is returned for unknown agent IDs.
var ErrAgentNotFound = errors.New("agent not found")

// Agent is the registry's view of one human agent. Values returned by
// the registry are copies; mutations happen only through Admit/Release.
type Agent struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Skills       []string `json:"skills"`
	Online       bool     `json:"online"`
	QueueSize    int      `json:"queue_size"`
	Satisfaction float64  `json:"satisfaction"` // [0,5]
	SlackChannel string   `json:"slack_channel,omitempty"`

	// RecentDifficultCases counts consecutively admitted high/critical
	// frustration cases, subject to the configured decay policy.
	RecentDifficultCases int       `json:"recent_difficult_cases"`
	LastDifficultAt      time.Time `json:"last_difficult_at"`
	LastBreakAt          time.Time `json:"last_break_at"`
}

// HasSkill reports whether the agent carries the given skill tag.
func (a Agent) HasSkill(tag string) bool {
	for _, s := range a.Skills {
		if s == tag {
			return true
		}
	}
	return false
}

// Registry is the shared workload tracker.
type Registry struct {
	mu     sync.Mutex
	agents map[string]*Agent
	cfg    config.RoutingConfig
	now    func() time.Time
}

// New creates a registry provisioned from the seed roster.
func New(cfg config.RoutingConfig, seeds []config.AgentSeed) *Registry {
	r := &Registry{
		agents: make(map[string]*Agent),
		cfg:    cfg,
		now:    time.Now,
	}
	for _, s := range seeds {
		r.agents[s.ID] = &Agent{
			ID:           s.ID,
			Name:         s.Name,
			Skills:       append([]string(nil), s.Skills...),
			Online:       s.Online,
			Satisfaction: s.Satisfaction,
			SlackChannel: s.SlackChannel,
		}
	}
	return r
}

// SetClock overrides the time source. Test hook.
func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// ListAvailable returns copies of all online agents, optionally filtered
// to those carrying the given skill tag. Pass "" for no filter.
func (r *Registry) ListAvailable(skillFilter string) []Agent {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Agent
	for _, a := range r.agents {
		if !a.Online {
			continue
		}
		r.maybeDecay(a)
		if skillFilter != "" && !a.HasSkill(skillFilter) {
			continue
		}
		out = append(out, copyAgent(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Snapshot returns copies of all agents, sorted by ID, for dashboards.
func (r *Registry) Snapshot() []Agent {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, copyAgent(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns a copy of one agent.
func (r *Registry) Get(id string) (Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok {
		return Agent{}, fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}
	r.maybeDecay(a)
	return copyAgent(a), nil
}

// Admit assigns one more case to the agent. difficult marks a
// high/critical frustration case for the wellbeing counter. The capacity
// check and the increment happen atomically: two racing admits can never
// both pass a full agent.
func (r *Registry) Admit(id string, difficult bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}
	if !a.Online {
		return fmt.Errorf("%w: %s is offline", ErrAgentUnavailable, id)
	}
	if a.QueueSize >= r.cfg.MaxConcurrentPerAgent {
		return fmt.Errorf("%w: %s at capacity (%d)", ErrAgentUnavailable, id, a.QueueSize)
	}

	r.maybeDecay(a)
	a.QueueSize++
	if difficult {
		a.RecentDifficultCases++
		a.LastDifficultAt = r.now()
	} else if r.cfg.DecayPolicy == config.DecayPolicyEasyCase {
		a.RecentDifficultCases = 0
		a.LastBreakAt = r.now()
	}
	return nil
}

// Release completes one of the agent's cases. The queue size is floored
// at zero; releasing an unknown agent is an error.
func (r *Registry) Release(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}
	if a.QueueSize > 0 {
		a.QueueSize--
	}
	return nil
}

// SetOnline flips an agent's online flag.
func (r *Registry) SetOnline(id string, online bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}
	a.Online = online
	return nil
}

// InCooldown reports whether the agent is currently shielded from further
// difficult cases.
func (r *Registry) InCooldown(a Agent) bool {
	if a.RecentDifficultCases < r.cfg.MaxConsecutiveDifficult {
		return false
	}
	if r.cfg.DecayPolicy == config.DecayPolicyEasyCase {
		// The counter only resets when an easy case is handled.
		return true
	}
	return r.currentTime().Before(a.LastDifficultAt.Add(r.cfg.CooldownPeriod))
}

func (r *Registry) currentTime() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.now()
}

// maybeDecay applies wall-clock decay to the difficult-case counter.
// Caller must hold r.mu.
func (r *Registry) maybeDecay(a *Agent) {
	if r.cfg.DecayPolicy != config.DecayPolicyCooldown {
		return
	}
	if a.RecentDifficultCases == 0 || a.LastDifficultAt.IsZero() {
		return
	}
	if r.now().Sub(a.LastDifficultAt) >= r.cfg.CooldownPeriod {
		a.RecentDifficultCases = 0
		a.LastBreakAt = r.now()
	}
}

func copyAgent(a *Agent) Agent {
	cp := *a
	cp.Skills = append([]string(nil), a.Skills...)
	return cp
}
