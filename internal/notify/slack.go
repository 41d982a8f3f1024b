// Package notify delivers handoff notifications to human agents over
// Slack.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/slack-go/slack"

	"github.com/bridgedesk/bridgedesk/internal/bus"
	"github.com/bridgedesk/bridgedesk/internal/config"
)

// SlackNotifier posts a message to the assigned agent's channel (or the
// desk default channel) when a conversation is handed off.
type SlackNotifier struct {
	client         *slack.Client
	defaultChannel string
}

// NewSlackNotifier creates a notifier from config.
func NewSlackNotifier(cfg config.NotifyConfig) *SlackNotifier {
	return &SlackNotifier{
		client:         slack.New(cfg.SlackToken),
		defaultChannel: cfg.SlackChannel,
	}
}

// Attach subscribes the notifier to handoff events on the bus.
func (n *SlackNotifier) Attach(b *bus.EventBus) {
	b.Subscribe(bus.TypeHandoff, func(ev *bus.Event) {
		n.notifyHandoff(ev)
	})
}

func (n *SlackNotifier) notifyHandoff(ev *bus.Event) {
	channel := n.defaultChannel
	if ch, ok := ev.Detail["agent_slack_channel"].(string); ok && ch != "" {
		channel = ch
	}
	if channel == "" {
		return
	}

	agentName, _ := ev.Detail["agent_name"].(string)
	level, _ := ev.Detail["frustration_level"].(string)
	priorityVal, _ := ev.Detail["priority"].(float64)

	text := fmt.Sprintf(
		":rotating_light: Handoff for %s: conversation %s (frustration %s, priority %.1f)",
		agentName, ev.ConversationID, level, priorityVal)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, _, err := n.client.PostMessageContext(ctx, channel,
		slack.MsgOptionText(text, false))
	if err != nil {
		slog.Warn("notify: slack post failed", "channel", channel, "error", err)
	}
}
