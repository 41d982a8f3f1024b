package registry

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bridgedesk/bridgedesk/internal/config"
)

func testRouting() config.RoutingConfig {
	return config.DefaultConfig().Routing
}

func seeds() []config.AgentSeed {
	return []config.AgentSeed{
		{ID: "a1", Name: "Ada", Skills: []string{"billing"}, Satisfaction: 4.5, Online: true},
		{ID: "a2", Name: "Ben", Skills: []string{"technical", "claims"}, Satisfaction: 4.0, Online: true},
		{ID: "a3", Name: "Cam", Skills: []string{"billing"}, Satisfaction: 3.5, Online: false},
	}
}

func TestAdmitRelease(t *testing.T) {
	r := New(testRouting(), seeds())

	if err := r.Admit("a1", false); err != nil {
		t.Fatalf("admit: %v", err)
	}
	a, err := r.Get("a1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if a.QueueSize != 1 {
		t.Fatalf("want queue size 1, got %d", a.QueueSize)
	}

	if err := r.Release("a1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	a, _ = r.Get("a1")
	if a.QueueSize != 0 {
		t.Fatalf("want queue size 0, got %d", a.QueueSize)
	}

	// Release never goes negative.
	if err := r.Release("a1"); err != nil {
		t.Fatalf("release at zero: %v", err)
	}
	a, _ = r.Get("a1")
	if a.QueueSize != 0 {
		t.Fatalf("queue size went negative: %d", a.QueueSize)
	}
}

func TestAdmitErrors(t *testing.T) {
	cfg := testRouting()
	cfg.MaxConcurrentPerAgent = 1
	r := New(cfg, seeds())

	if err := r.Admit("missing", false); !errors.Is(err, ErrAgentNotFound) {
		t.Fatalf("want ErrAgentNotFound, got %v", err)
	}
	if err := r.Admit("a3", false); !errors.Is(err, ErrAgentUnavailable) {
		t.Fatalf("want ErrAgentUnavailable for offline agent, got %v", err)
	}

	if err := r.Admit("a1", false); err != nil {
		t.Fatalf("first admit: %v", err)
	}
	if err := r.Admit("a1", false); !errors.Is(err, ErrAgentUnavailable) {
		t.Fatalf("want ErrAgentUnavailable at capacity, got %v", err)
	}
}

func TestConcurrentAdmitsNeverExceedCapacity(t *testing.T) {
	cfg := testRouting()
	cfg.MaxConcurrentPerAgent = 5
	r := New(cfg, seeds())

	const attempts = 50
	var wg sync.WaitGroup
	admitted := make(chan struct{}, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.Admit("a1", false); err == nil {
				admitted <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(admitted)

	var n int
	for range admitted {
		n++
	}
	if n != cfg.MaxConcurrentPerAgent {
		t.Fatalf("want exactly %d admits to succeed, got %d", cfg.MaxConcurrentPerAgent, n)
	}
	a, _ := r.Get("a1")
	if a.QueueSize != cfg.MaxConcurrentPerAgent {
		t.Fatalf("queue size %d exceeds capacity %d", a.QueueSize, cfg.MaxConcurrentPerAgent)
	}
}

func TestDifficultCounterAndCooldown(t *testing.T) {
	cfg := testRouting()
	cfg.MaxConsecutiveDifficult = 3
	cfg.CooldownPeriod = 2 * time.Hour
	r := New(cfg, seeds())

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	r.SetClock(func() time.Time { return now })

	for i := 0; i < 3; i++ {
		if err := r.Admit("a1", true); err != nil {
			t.Fatalf("admit %d: %v", i, err)
		}
	}
	a, _ := r.Get("a1")
	if a.RecentDifficultCases != 3 {
		t.Fatalf("want 3 difficult cases, got %d", a.RecentDifficultCases)
	}
	if !r.InCooldown(a) {
		t.Fatal("agent should be in cooldown at the limit")
	}

	// Cooldown expires on the wall clock.
	now = now.Add(2*time.Hour + time.Minute)
	a, _ = r.Get("a1")
	if a.RecentDifficultCases != 0 {
		t.Fatalf("counter should decay after cooldown, got %d", a.RecentDifficultCases)
	}
	if r.InCooldown(a) {
		t.Fatal("cooldown should have expired")
	}
}

func TestEasyCaseDecayPolicy(t *testing.T) {
	cfg := testRouting()
	cfg.DecayPolicy = config.DecayPolicyEasyCase
	cfg.MaxConsecutiveDifficult = 2
	r := New(cfg, seeds())

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	r.SetClock(func() time.Time { return now })

	r.Admit("a1", true)
	r.Admit("a1", true)

	a, _ := r.Get("a1")
	if !r.InCooldown(a) {
		t.Fatal("agent should be shielded at the limit")
	}

	// Time alone never decays the counter under easy_case.
	now = now.Add(48 * time.Hour)
	a, _ = r.Get("a1")
	if a.RecentDifficultCases != 2 {
		t.Fatalf("easy_case policy must not decay on the clock, got %d", a.RecentDifficultCases)
	}
	if !r.InCooldown(a) {
		t.Fatal("still shielded until an easy case is handled")
	}

	// One easy case resets it.
	if err := r.Admit("a1", false); err != nil {
		t.Fatalf("easy admit: %v", err)
	}
	a, _ = r.Get("a1")
	if a.RecentDifficultCases != 0 {
		t.Fatalf("easy case should reset the counter, got %d", a.RecentDifficultCases)
	}
	if r.InCooldown(a) {
		t.Fatal("reset counter should clear the shield")
	}
}

func TestListAvailable(t *testing.T) {
	r := New(testRouting(), seeds())

	all := r.ListAvailable("")
	if len(all) != 2 {
		t.Fatalf("want 2 online agents, got %d", len(all))
	}
	for _, a := range all {
		if !a.Online {
			t.Fatalf("offline agent %s in available list", a.ID)
		}
	}

	billing := r.ListAvailable("billing")
	if len(billing) != 1 || billing[0].ID != "a1" {
		t.Fatalf("want only a1 for billing, got %v", billing)
	}
}

func TestSnapshotReturnsCopies(t *testing.T) {
	r := New(testRouting(), seeds())

	snap := r.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("want 3 agents, got %d", len(snap))
	}
	snap[0].QueueSize = 99
	snap[0].Skills[0] = "tampered"

	a, _ := r.Get(snap[0].ID)
	if a.QueueSize == 99 || a.Skills[0] == "tampered" {
		t.Fatal("snapshot mutation leaked into the registry")
	}
}

func TestSetOnline(t *testing.T) {
	r := New(testRouting(), seeds())

	if err := r.SetOnline("a3", true); err != nil {
		t.Fatalf("set online: %v", err)
	}
	if got := r.ListAvailable(""); len(got) != 3 {
		t.Fatalf("want 3 online after flip, got %d", len(got))
	}
	if err := r.SetOnline("missing", true); !errors.Is(err, ErrAgentNotFound) {
		t.Fatalf("want ErrAgentNotFound, got %v", err)
	}
}
