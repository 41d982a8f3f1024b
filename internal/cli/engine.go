package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bridgedesk/bridgedesk/internal/bus"
	"github.com/bridgedesk/bridgedesk/internal/config"
	"github.com/bridgedesk/bridgedesk/internal/convo"
	"github.com/bridgedesk/bridgedesk/internal/frustration"
	"github.com/bridgedesk/bridgedesk/internal/notify"
	"github.com/bridgedesk/bridgedesk/internal/orchestrator"
	"github.com/bridgedesk/bridgedesk/internal/priority"
	"github.com/bridgedesk/bridgedesk/internal/provider"
	"github.com/bridgedesk/bridgedesk/internal/quality"
	"github.com/bridgedesk/bridgedesk/internal/queue"
	"github.com/bridgedesk/bridgedesk/internal/registry"
	"github.com/bridgedesk/bridgedesk/internal/routing"
	"github.com/bridgedesk/bridgedesk/internal/stream"
)

// engine bundles the wired pipeline for the serve and chat commands.
type engine struct {
	cfg      *config.Config
	store    *convo.Store
	convos   *convo.Manager
	registry *registry.Registry
	queue    *queue.Queue
	bus      *bus.EventBus
	orch     *orchestrator.Orchestrator
	stream   *stream.Publisher
}

// buildEngine wires the pipeline from config. withStore controls whether
// conversation history is persisted.
func buildEngine(cfg *config.Config, withStore bool) (*engine, error) {
	var store *convo.Store
	if withStore {
		if err := os.MkdirAll(cfg.Paths.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		var err error
		store, err = convo.NewStore(filepath.Join(cfg.Paths.DataDir, "history.db"))
		if err != nil {
			return nil, err
		}
	}

	prov := provider.NewOpenAIProvider(
		cfg.Provider.APIKey,
		cfg.Provider.APIBase,
		cfg.Provider.Model,
		cfg.Provider.MaxTokens,
		cfg.Provider.Temperature,
		cfg.Provider.RequestTimeout,
	)

	convos := convo.NewManager()
	reg := registry.New(cfg.Routing, cfg.Agents)
	q := queue.New(cfg.Queue)
	eventBus := bus.New()

	orch := orchestrator.New(orchestrator.Options{
		Config:        cfg,
		Conversations: convos,
		Store:         store,
		Generator:     prov,
		Scorer:        frustration.NewScorer(cfg.Frustration, prov),
		Gate:          quality.NewGate(cfg.Quality, prov, prov),
		Priorities:    priority.NewCalculator(cfg.Priority),
		Registry:      reg,
		Router:        routing.NewEngine(cfg.Routing, reg),
		Queue:         q,
		Bus:           eventBus,
	})

	e := &engine{
		cfg:      cfg,
		store:    store,
		convos:   convos,
		registry: reg,
		queue:    q,
		bus:      eventBus,
		orch:     orch,
	}

	if cfg.Stream.Enabled {
		e.stream = stream.NewPublisher(cfg.Stream)
		e.stream.Attach(eventBus)
	}
	if cfg.Notify.Enabled {
		notify.NewSlackNotifier(cfg.Notify).Attach(eventBus)
	}
	return e, nil
}

func (e *engine) shutdown() {
	if e.stream != nil {
		_ = e.stream.Close()
	}
	if e.store != nil {
		_ = e.store.Close()
	}
}
