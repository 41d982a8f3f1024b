package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// OpenAIProvider implements Generator, Adjuster, SemanticScorer and
// Reviewer using an OpenAI-compatible chat completion API. It works with
// OpenAI, OpenRouter, Anthropic and other compatible endpoints.
type OpenAIProvider struct {
	apiKey      string
	apiBase     string
	model       string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
}

// NewOpenAIProvider creates a new OpenAI-compatible provider.
func NewOpenAIProvider(apiKey, apiBase, model string, maxTokens int, temperature float64, timeout time.Duration) *OpenAIProvider {
	if apiBase == "" {
		apiBase = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OpenAIProvider{
		apiKey:      apiKey,
		apiBase:     strings.TrimSuffix(apiBase, "/"),
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

const generateSystemPrompt = "You are a customer support assistant. " +
	"Answer the customer's question helpfully and concisely. " +
	"Only state facts you can support from the conversation; say so when you are unsure."

// Generate produces a candidate response for a user query.
func (p *OpenAIProvider) Generate(ctx context.Context, query string, history []ContextMessage) (*GenerationResult, error) {
	msgs := []ContextMessage{{Role: "system", Content: generateSystemPrompt}}
	msgs = append(msgs, history...)
	msgs = append(msgs, ContextMessage{Role: "user", Content: query})

	start := time.Now()
	content, tokens, err := p.chat(ctx, msgs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationUnavailable, err)
	}
	return &GenerationResult{
		Text:       content,
		Latency:    time.Since(start),
		TokenCount: tokens,
	}, nil
}

// Adjust rewrites a candidate response to address a critique.
func (p *OpenAIProvider) Adjust(ctx context.Context, query, response, critique string) (*GenerationResult, error) {
	prompt := fmt.Sprintf(
		"Customer question:\n%s\n\nDraft answer:\n%s\n\nReview feedback:\n%s\n\n"+
			"Rewrite the draft answer so it addresses the feedback. Return only the rewritten answer.",
		query, response, critique)

	start := time.Now()
	content, tokens, err := p.chat(ctx, []ContextMessage{
		{Role: "system", Content: generateSystemPrompt},
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationUnavailable, err)
	}
	return &GenerationResult{
		Text:       content,
		Latency:    time.Since(start),
		TokenCount: tokens,
	}, nil
}

// Score rates free text against a rubric prompt on a 0-10 scale.
func (p *OpenAIProvider) Score(ctx context.Context, text, rubricPrompt string, history []ContextMessage) (*ScoreResult, error) {
	var sb strings.Builder
	if len(history) > 0 {
		sb.WriteString("Recent conversation:\n")
		for _, m := range history {
			fmt.Fprintf(&sb, "%s: %s\n", m.Role, m.Content)
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "Text to score:\n%s\n\n", text)
	sb.WriteString(`Respond with JSON only: {"score": <0-10>, "confidence": <0-1>, "rationale": "<one sentence>"}`)

	content, _, err := p.chat(ctx, []ContextMessage{
		{Role: "system", Content: rubricPrompt},
		{Role: "user", Content: sb.String()},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrScorerUnavailable, err)
	}

	var parsed struct {
		Score      float64 `json:"score"`
		Confidence float64 `json:"confidence"`
		Rationale  string  `json:"rationale"`
	}
	if err := json.Unmarshal([]byte(extractJSON(content)), &parsed); err != nil {
		// Models occasionally answer with prose; salvage the first number.
		score, ok := firstNumber(content)
		if !ok {
			return nil, fmt.Errorf("%w: unparseable score response", ErrScorerUnavailable)
		}
		return &ScoreResult{NumericScore: clamp(score, 0, 10), Confidence: 0.3, Rationale: content}, nil
	}
	return &ScoreResult{
		NumericScore: clamp(parsed.Score, 0, 10),
		Confidence:   clamp(parsed.Confidence, 0, 1),
		Rationale:    parsed.Rationale,
	}, nil
}

const reviewSystemPrompt = "You are a strict reviewer of customer support answers. " +
	"Grade the draft answer against the customer's question on accuracy, completeness, " +
	"clarity and likely customer satisfaction, each 0-10. " +
	"Set \"unsupported\" to true if the answer asserts facts not supported by the question or context."

// Review grades a candidate response against the originating query.
func (p *OpenAIProvider) Review(ctx context.Context, query, response string, history []ContextMessage) (*ReviewResult, error) {
	var sb strings.Builder
	if len(history) > 0 {
		sb.WriteString("Recent conversation:\n")
		for _, m := range history {
			fmt.Fprintf(&sb, "%s: %s\n", m.Role, m.Content)
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "Customer question:\n%s\n\nDraft answer:\n%s\n\n", query, response)
	sb.WriteString(`Respond with JSON only: {"accuracy": <0-10>, "completeness": <0-10>, "clarity": <0-10>, "satisfaction": <0-10>, "confidence": <0-1>, "unsupported": <bool>, "rationale": "<one sentence>"}`)

	content, _, err := p.chat(ctx, []ContextMessage{
		{Role: "system", Content: reviewSystemPrompt},
		{Role: "user", Content: sb.String()},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrScorerUnavailable, err)
	}

	var parsed struct {
		Accuracy     float64 `json:"accuracy"`
		Completeness float64 `json:"completeness"`
		Clarity      float64 `json:"clarity"`
		Satisfaction float64 `json:"satisfaction"`
		Confidence   float64 `json:"confidence"`
		Unsupported  bool    `json:"unsupported"`
		Rationale    string  `json:"rationale"`
	}
	if err := json.Unmarshal([]byte(extractJSON(content)), &parsed); err != nil {
		return nil, fmt.Errorf("%w: unparseable review response", ErrScorerUnavailable)
	}
	return &ReviewResult{
		Accuracy:     clamp(parsed.Accuracy, 0, 10),
		Completeness: clamp(parsed.Completeness, 0, 10),
		Clarity:      clamp(parsed.Clarity, 0, 10),
		Satisfaction: clamp(parsed.Satisfaction, 0, 10),
		Confidence:   clamp(parsed.Confidence, 0, 1),
		Unsupported:  parsed.Unsupported,
		Rationale:    parsed.Rationale,
	}, nil
}

// chat sends a completion request and returns the content plus total tokens.
func (p *OpenAIProvider) chat(ctx context.Context, messages []ContextMessage) (string, int, error) {
	body := map[string]any{
		"model":       p.model,
		"messages":    messages,
		"temperature": p.temperature,
	}
	if p.maxTokens > 0 {
		body["max_tokens"] = p.maxTokens
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return "", 0, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.apiBase+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return "", 0, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", 0, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var apiResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			TotalTokens int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", 0, fmt.Errorf("parse response: %w", err)
	}
	if len(apiResp.Choices) == 0 {
		return "", 0, fmt.Errorf("empty choices in response")
	}
	return apiResp.Choices[0].Message.Content, apiResp.Usage.TotalTokens, nil
}

// extractJSON strips markdown fences and surrounding prose from a model
// reply that should contain a single JSON object.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "{"); i >= 0 {
		if j := strings.LastIndex(s, "}"); j > i {
			return s[i : j+1]
		}
	}
	return s
}

var numberRe = regexp.MustCompile(`\d+(?:\.\d+)?`)

func firstNumber(s string) (float64, bool) {
	m := numberRe.FindString(s)
	if m == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
