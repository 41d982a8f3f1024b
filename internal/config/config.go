// Package config provides configuration types and loading for bridgedesk.
package config

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidConfiguration is returned when the loaded configuration fails
// validation. It is fatal at startup.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// WeightTolerance is the allowed deviation of a weight group from 1.0.
const WeightTolerance = 0.001

// Config is the root configuration struct.
// Top-level groups: Paths, Provider, Frustration, Quality, Priority,
// Routing, Queue, Orchestrator, Stream, Notify, Gateway, Agents.
type Config struct {
	Paths        PathsConfig        `json:"paths"`
	Provider     ProviderConfig     `json:"provider"`
	Frustration  FrustrationConfig  `json:"frustration"`
	Quality      QualityConfig      `json:"quality"`
	Priority     PriorityConfig     `json:"priority"`
	Routing      RoutingConfig      `json:"routing"`
	Queue        QueueConfig        `json:"queue"`
	Orchestrator OrchestratorConfig `json:"orchestrator"`
	Stream       StreamConfig       `json:"stream"`
	Notify       NotifyConfig       `json:"notify"`
	Gateway      GatewayConfig      `json:"gateway"`
	Agents       []AgentSeed        `json:"agents"`
}

// ---------------------------------------------------------------------------
// Paths – filesystem locations
// ---------------------------------------------------------------------------

// PathsConfig groups filesystem path settings.
type PathsConfig struct {
	DataDir string `json:"dataDir" envconfig:"DATA_DIR"`
}

// ---------------------------------------------------------------------------
// Provider – external LLM capability
// ---------------------------------------------------------------------------

// ProviderConfig contains settings for the OpenAI-compatible provider that
// backs response generation, semantic scoring and response review.
type ProviderConfig struct {
	APIKey         string        `json:"apiKey" envconfig:"API_KEY"`
	APIBase        string        `json:"apiBase,omitempty" envconfig:"API_BASE"`
	Model          string        `json:"model" envconfig:"MODEL"`
	MaxTokens      int           `json:"maxTokens" envconfig:"MAX_TOKENS"`
	Temperature    float64       `json:"temperature" envconfig:"TEMPERATURE"`
	RequestTimeout time.Duration `json:"requestTimeout" envconfig:"REQUEST_TIMEOUT"`
}

// ---------------------------------------------------------------------------
// Frustration – emotional-state scoring
// ---------------------------------------------------------------------------

// FrustrationConfig contains thresholds, blend weights and keyword
// categories for the frustration scorer.
type FrustrationConfig struct {
	CriticalThreshold float64 `json:"criticalThreshold" envconfig:"CRITICAL_THRESHOLD"`
	HighThreshold     float64 `json:"highThreshold" envconfig:"HIGH_THRESHOLD"`
	ModerateThreshold float64 `json:"moderateThreshold" envconfig:"MODERATE_THRESHOLD"`

	// RecentWeight and CurrentWeight blend the historical average with the
	// current turn's score. They must sum to 1.0.
	RecentWeight  float64 `json:"recentWeight" envconfig:"RECENT_WEIGHT"`
	CurrentWeight float64 `json:"currentWeight" envconfig:"CURRENT_WEIGHT"`

	// TrendWindow is the number of prior scores consulted for trend
	// detection. Fewer scores than this yields "insufficient_data".
	TrendWindow int `json:"trendWindow" envconfig:"TREND_WINDOW"`

	// HistoryLimit bounds the recent-interaction history passed to the
	// semantic scorer.
	HistoryLimit int `json:"historyLimit" envconfig:"HISTORY_LIMIT"`

	// DegradedConfidenceCeiling caps the reported confidence when the
	// semantic scorer is unavailable and only indicators contributed.
	DegradedConfidenceCeiling float64 `json:"degradedConfidenceCeiling" envconfig:"DEGRADED_CONFIDENCE_CEILING"`

	Indicators IndicatorConfig `json:"indicators"`
}

// IndicatorConfig holds the keyword categories for the deterministic
// indicator-matching pass. Each category contributes independently.
type IndicatorConfig struct {
	HighFrustration     []string `json:"highFrustration"`
	ModerateFrustration []string `json:"moderateFrustration"`
	EscalationPhrases   []string `json:"escalationPhrases"`
	Urgency             []string `json:"urgency"`
	RepeatComplaint     []string `json:"repeatComplaint"`
}

// ---------------------------------------------------------------------------
// Quality – response gating
// ---------------------------------------------------------------------------

// QualityConfig contains decision cutoffs and the review rubric for the
// quality gate.
type QualityConfig struct {
	AdequateScore        float64 `json:"adequateScore" envconfig:"ADEQUATE_SCORE"`
	AdjustmentScore      float64 `json:"adjustmentScore" envconfig:"ADJUSTMENT_SCORE"`
	AutoEscalateBelow    float64 `json:"autoEscalateBelow" envconfig:"AUTO_ESCALATE_BELOW"`
	MaxAdjustAttempts    int     `json:"maxAdjustAttempts" envconfig:"MAX_ADJUST_ATTEMPTS"`
	ImprovementThreshold float64 `json:"improvementThreshold" envconfig:"IMPROVEMENT_THRESHOLD"`

	// HallucinationStreak is the number of consecutive turns flagged as
	// unsupported after which escalation is forced regardless of score.
	HallucinationStreak int `json:"hallucinationStreak" envconfig:"HALLUCINATION_STREAK"`

	Rubric RubricWeights `json:"rubric"`
}

// RubricWeights weight the review dimensions. They must sum to 1.0.
type RubricWeights struct {
	Accuracy     float64 `json:"accuracy"`
	Completeness float64 `json:"completeness"`
	Clarity      float64 `json:"clarity"`
	Satisfaction float64 `json:"satisfaction"`
}

// Sum returns the total of all rubric weights.
func (w RubricWeights) Sum() float64 {
	return w.Accuracy + w.Completeness + w.Clarity + w.Satisfaction
}

// ---------------------------------------------------------------------------
// Priority – escalation ordering
// ---------------------------------------------------------------------------

// PriorityConfig contains the multipliers and bonuses for the priority
// calculator. Keys of the multiplier maps are frustration/complexity levels.
type PriorityConfig struct {
	FrustrationMultipliers map[string]float64 `json:"frustrationMultipliers"`
	ComplexityMultipliers  map[string]float64 `json:"complexityMultipliers"`
	EscalationBonus        float64            `json:"escalationBonus" envconfig:"ESCALATION_BONUS"`
	RepeatBonus            float64            `json:"repeatBonus" envconfig:"REPEAT_BONUS"`
	VIPBonus               float64            `json:"vipBonus" envconfig:"VIP_BONUS"`
}

// ---------------------------------------------------------------------------
// Routing – agent selection
// ---------------------------------------------------------------------------

// RoutingConfig contains capacity limits, wellbeing settings and scoring
// weights for the routing engine.
type RoutingConfig struct {
	MaxConcurrentPerAgent   int           `json:"maxConcurrentPerAgent" envconfig:"MAX_CONCURRENT_PER_AGENT"`
	OverloadThreshold       float64       `json:"overloadThreshold" envconfig:"OVERLOAD_THRESHOLD"`
	MaxConsecutiveDifficult int           `json:"maxConsecutiveDifficult" envconfig:"MAX_CONSECUTIVE_DIFFICULT"`
	CooldownPeriod          time.Duration `json:"cooldownPeriod" envconfig:"COOLDOWN_PERIOD"`

	// DecayPolicy selects how the difficult-case counter decays:
	// "cooldown" (wall clock, default) or "easy_case" (reset after the
	// agent handles a non-difficult case).
	DecayPolicy string `json:"decayPolicy" envconfig:"DECAY_POLICY"`

	// BaseWeights are the strategy-neutral scoring weights. They must sum
	// to 1.0 before strategy adjustment.
	BaseWeights RoutingWeights `json:"baseWeights"`

	// Domains maps skill domains to the keywords that indicate them.
	Domains map[string][]string `json:"domains"`
}

// RoutingWeights weight the four agent-scoring dimensions.
type RoutingWeights struct {
	Skill        float64 `json:"skill"`
	Availability float64 `json:"availability"`
	Performance  float64 `json:"performance"`
	Wellbeing    float64 `json:"wellbeing"`
}

// Sum returns the total of all routing weights.
func (w RoutingWeights) Sum() float64 {
	return w.Skill + w.Availability + w.Performance + w.Wellbeing
}

// ---------------------------------------------------------------------------
// Queue – escalation waiting line
// ---------------------------------------------------------------------------

// QueueConfig contains limits for the escalation queue.
type QueueConfig struct {
	MaxSize       int           `json:"maxSize" envconfig:"MAX_SIZE"`
	AvgHandleTime time.Duration `json:"avgHandleTime" envconfig:"AVG_HANDLE_TIME"`
}

// ---------------------------------------------------------------------------
// Orchestrator – per-turn pipeline
// ---------------------------------------------------------------------------

// OrchestratorConfig contains the escalation trigger threshold and history
// bounds for the per-conversation pipeline.
type OrchestratorConfig struct {
	// EscalateThreshold is the frustration score at or above which a turn
	// escalates regardless of response quality.
	EscalateThreshold float64 `json:"escalateThreshold" envconfig:"ESCALATE_THRESHOLD"`
}

// ---------------------------------------------------------------------------
// Stream – Kafka event export
// ---------------------------------------------------------------------------

// StreamConfig contains settings for the Kafka event stream.
type StreamConfig struct {
	Enabled  bool   `json:"enabled" envconfig:"ENABLED"`
	Brokers  string `json:"brokers" envconfig:"KAFKA_BROKERS"`
	DeskName string `json:"deskName" envconfig:"DESK_NAME"`
}

// ---------------------------------------------------------------------------
// Notify – Slack handoff notifications
// ---------------------------------------------------------------------------

// NotifyConfig contains settings for handoff notifications.
type NotifyConfig struct {
	Enabled      bool   `json:"enabled" envconfig:"ENABLED"`
	SlackToken   string `json:"slackToken" envconfig:"SLACK_TOKEN"`
	SlackChannel string `json:"slackChannel" envconfig:"SLACK_CHANNEL"`
}

// ---------------------------------------------------------------------------
// Gateway – read-only dashboard API
// ---------------------------------------------------------------------------

// GatewayConfig contains gateway server settings.
type GatewayConfig struct {
	Host string `json:"host" envconfig:"HOST"`
	Port int    `json:"port" envconfig:"PORT"`
}

// ---------------------------------------------------------------------------
// Agents – seed roster
// ---------------------------------------------------------------------------

// AgentSeed provisions one human agent at startup.
type AgentSeed struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Skills       []string `json:"skills"`
	Satisfaction float64  `json:"satisfaction"`
	Online       bool     `json:"online"`
	SlackChannel string   `json:"slackChannel,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			DataDir: "~/.bridgedesk",
		},
		Provider: ProviderConfig{
			APIBase:        "https://api.openai.com/v1",
			Model:          "gpt-4o-mini",
			MaxTokens:      1024,
			Temperature:    0.3,
			RequestTimeout: 30 * time.Second,
		},
		Frustration: FrustrationConfig{
			CriticalThreshold:         8.0,
			HighThreshold:             6.0,
			ModerateThreshold:         3.0,
			RecentWeight:              0.7,
			CurrentWeight:             0.3,
			TrendWindow:               3,
			HistoryLimit:              10,
			DegradedConfidenceCeiling: 0.5,
			Indicators: IndicatorConfig{
				HighFrustration: []string{
					"furious", "unacceptable", "ridiculous", "terrible",
					"worst", "angry", "outraged", "fed up", "disgusted",
					"useless",
				},
				ModerateFrustration: []string{
					"frustrated", "annoyed", "disappointed", "unhappy",
					"upset", "confusing", "not working",
				},
				EscalationPhrases: []string{
					"speak to a manager", "get me a manager", "supervisor",
					"talk to a human", "real person", "escalate",
					"cancel my account", "file a complaint",
				},
				Urgency: []string{
					"now", "immediately", "urgent", "asap", "right away",
					"today",
				},
				RepeatComplaint: []string{
					"again", "second time", "third time", "already called",
					"already contacted", "still not", "keep happening",
				},
			},
		},
		Quality: QualityConfig{
			AdequateScore:        7.0,
			AdjustmentScore:      5.0,
			AutoEscalateBelow:    3.0,
			MaxAdjustAttempts:    2,
			ImprovementThreshold: 0.5,
			HallucinationStreak:  3,
			Rubric: RubricWeights{
				Accuracy:     0.30,
				Completeness: 0.25,
				Clarity:      0.25,
				Satisfaction: 0.20,
			},
		},
		Priority: PriorityConfig{
			FrustrationMultipliers: map[string]float64{
				"critical": 4,
				"high":     3,
				"moderate": 2,
				"low":      1,
			},
			ComplexityMultipliers: map[string]float64{
				"high":   2.0,
				"medium": 1.5,
				"low":    1.0,
			},
			EscalationBonus: 1.0,
			RepeatBonus:     1.5,
			VIPBonus:        2.0,
		},
		Routing: RoutingConfig{
			MaxConcurrentPerAgent:   5,
			OverloadThreshold:       0.8,
			MaxConsecutiveDifficult: 3,
			CooldownPeriod:          2 * time.Hour,
			DecayPolicy:             DecayPolicyCooldown,
			BaseWeights: RoutingWeights{
				Skill:        0.4,
				Availability: 0.3,
				Performance:  0.2,
				Wellbeing:    0.1,
			},
			Domains: map[string][]string{
				"billing": {
					"invoice", "charge", "refund", "payment", "bill",
					"subscription", "overcharged",
				},
				"technical": {
					"error", "bug", "crash", "login", "password",
					"install", "connect", "outage",
				},
				"claims": {
					"claim", "damaged", "warranty", "return", "broken",
					"replacement", "lost package",
				},
			},
		},
		Queue: QueueConfig{
			MaxSize:       100,
			AvgHandleTime: 8 * time.Minute,
		},
		Orchestrator: OrchestratorConfig{
			EscalateThreshold: 7.0,
		},
		Stream: StreamConfig{
			Enabled:  false,
			Brokers:  "localhost:9092",
			DeskName: "support",
		},
		Notify: NotifyConfig{
			Enabled: false,
		},
		Gateway: GatewayConfig{
			Host: "127.0.0.1",
			Port: 18890,
		},
	}
}

// Decay policy names for RoutingConfig.DecayPolicy.
const (
	DecayPolicyCooldown = "cooldown"
	DecayPolicyEasyCase = "easy_case"
)

// Validate checks weight groups and required limits. Any failure wraps
// ErrInvalidConfiguration and must abort startup.
func (c *Config) Validate() error {
	if err := checkWeightSum("frustration recent/current weights",
		c.Frustration.RecentWeight+c.Frustration.CurrentWeight); err != nil {
		return err
	}
	if err := checkWeightSum("quality rubric weights", c.Quality.Rubric.Sum()); err != nil {
		return err
	}
	if err := checkWeightSum("routing base weights", c.Routing.BaseWeights.Sum()); err != nil {
		return err
	}
	if c.Frustration.ModerateThreshold > c.Frustration.HighThreshold ||
		c.Frustration.HighThreshold > c.Frustration.CriticalThreshold {
		return fmt.Errorf("%w: frustration thresholds must be ordered moderate <= high <= critical",
			ErrInvalidConfiguration)
	}
	if c.Quality.AdjustmentScore > c.Quality.AdequateScore {
		return fmt.Errorf("%w: quality adjustment score %.2f exceeds adequate score %.2f",
			ErrInvalidConfiguration, c.Quality.AdjustmentScore, c.Quality.AdequateScore)
	}
	if c.Routing.MaxConcurrentPerAgent <= 0 {
		return fmt.Errorf("%w: maxConcurrentPerAgent must be positive", ErrInvalidConfiguration)
	}
	if c.Routing.DecayPolicy != DecayPolicyCooldown && c.Routing.DecayPolicy != DecayPolicyEasyCase {
		return fmt.Errorf("%w: unknown decay policy %q", ErrInvalidConfiguration, c.Routing.DecayPolicy)
	}
	if c.Queue.MaxSize <= 0 {
		return fmt.Errorf("%w: queue maxSize must be positive", ErrInvalidConfiguration)
	}
	for _, a := range c.Agents {
		if a.ID == "" {
			return fmt.Errorf("%w: agent seed with empty id", ErrInvalidConfiguration)
		}
	}
	return nil
}

func checkWeightSum(name string, sum float64) error {
	if math.Abs(sum-1.0) > WeightTolerance {
		return fmt.Errorf("%w: %s sum to %.3f, want 1.0", ErrInvalidConfiguration, name, sum)
	}
	return nil
}
