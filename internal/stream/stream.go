// Package stream exports the conversation event feed to Kafka for
// reporting and dashboard consumers.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/bridgedesk/bridgedesk/internal/bus"
	"github.com/bridgedesk/bridgedesk/internal/config"
)

// Topics holds the topic names for one desk.
type Topics struct {
	Events   string // every message and audit event
	Handoffs string // handoff and queue admissions only
}

// TopicsFor returns the topic names for the given desk.
func TopicsFor(deskName string) Topics {
	return Topics{
		Events:   fmt.Sprintf("desk.%s.events", deskName),
		Handoffs: fmt.Sprintf("desk.%s.handoffs", deskName),
	}
}

// Publisher writes conversation events to Kafka. Publishing is
// best-effort: a broker outage never stalls the pipeline.
type Publisher struct {
	events   *kafka.Writer
	handoffs *kafka.Writer
	topics   Topics
}

// NewPublisher creates a publisher for the configured brokers.
func NewPublisher(cfg config.StreamConfig) *Publisher {
	brokers := strings.Split(cfg.Brokers, ",")
	topics := TopicsFor(cfg.DeskName)

	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
			Async:        false,
		}
	}
	return &Publisher{
		events:   newWriter(topics.Events),
		handoffs: newWriter(topics.Handoffs),
		topics:   topics,
	}
}

// Attach subscribes the publisher to the event bus.
func (p *Publisher) Attach(b *bus.EventBus) {
	b.Subscribe("", func(ev *bus.Event) {
		p.publish(ev)
	})
}

func (p *Publisher) publish(ev *bus.Event) {
	value, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("stream: marshal event", "error", err)
		return
	}
	msg := kafka.Message{
		Key:   []byte(ev.ConversationID),
		Value: value,
		Time:  ev.Timestamp,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := p.events.WriteMessages(ctx, msg); err != nil {
		slog.Warn("stream: publish event", "topic", p.topics.Events, "error", err)
	}
	if ev.Type == bus.TypeHandoff || ev.Type == bus.TypeQueued {
		if err := p.handoffs.WriteMessages(ctx, msg); err != nil {
			slog.Warn("stream: publish handoff", "topic", p.topics.Handoffs, "error", err)
		}
	}
}

// Close flushes and closes the writers.
func (p *Publisher) Close() error {
	errEvents := p.events.Close()
	errHandoffs := p.handoffs.Close()
	if errEvents != nil {
		return errEvents
	}
	return errHandoffs
}
