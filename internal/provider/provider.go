// Package provider implements the external language capabilities consumed
// by the escalation pipeline: response generation, semantic scoring and
// response review.
package provider

import (
	"context"
	"errors"
	"time"
)

// ErrGenerationUnavailable indicates the response generator could not
// produce a candidate response. Recoverable: the caller runs the quality
// gate on a fallback message instead.
var ErrGenerationUnavailable = errors.New("response generation unavailable")

// ErrScorerUnavailable indicates the semantic scorer failed or timed out.
// Recoverable: callers fall back to indicator-only scoring with reduced
// confidence.
var ErrScorerUnavailable = errors.New("semantic scorer unavailable")

// ContextMessage is one turn of bounded conversation context passed to a
// capability call.
type ContextMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationResult is the outcome of a response-generation call.
type GenerationResult struct {
	Text       string
	Latency    time.Duration
	TokenCount int
}

// ScoreResult is the outcome of a semantic scoring call.
type ScoreResult struct {
	NumericScore float64
	Confidence   float64
	Rationale    string
}

// ReviewResult is the outcome of a response review. Dimension scores are
// on a 0-10 scale; the caller applies its own rubric weights.
type ReviewResult struct {
	Accuracy     float64
	Completeness float64
	Clarity      float64
	Satisfaction float64
	Confidence   float64
	Rationale    string
	// Unsupported is set when the response makes claims the review model
	// considers fabricated or unsupported by the query context.
	Unsupported bool
}

// Generator produces candidate responses for user queries.
type Generator interface {
	Generate(ctx context.Context, query string, history []ContextMessage) (*GenerationResult, error)
}

// Adjuster rewrites a candidate response to address a critique.
type Adjuster interface {
	Adjust(ctx context.Context, query, response, critique string) (*GenerationResult, error)
}

// SemanticScorer scores free text against a rubric prompt.
type SemanticScorer interface {
	Score(ctx context.Context, text, rubricPrompt string, history []ContextMessage) (*ScoreResult, error)
}

// Reviewer grades a candidate response against the originating query.
type Reviewer interface {
	Review(ctx context.Context, query, response string, history []ContextMessage) (*ReviewResult, error)
}
