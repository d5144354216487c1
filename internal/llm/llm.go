package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pavelanni/leadsim/internal/llm/prompts"
	"github.com/pavelanni/leadsim/internal/metrics"
	"github.com/pavelanni/leadsim/internal/model"
	"github.com/pavelanni/leadsim/internal/scoring"
)

// recentForAdaptive is how many earlier entries feed an adaptive scenario.
const recentForAdaptive = 5

// Config controls how the Client evaluates responses.
type Config struct {
	PromptVariant prompts.PromptVariant
	// Scoring enables numeric scores and their reconciliation.
	Scoring bool
	Retry   RetryPolicy
	Metrics *metrics.Recorder
	// Now is used for timestamps; time.Now when nil.
	Now func() time.Time
}

// Client evaluates responses through a text-generation service.
type Client struct {
	completer Completer
	prompts   *prompts.Builder
	variant   prompts.PromptVariant
	scoring   bool
	retry     RetryPolicy
	metrics   *metrics.Recorder
	now       func() time.Time
}

// New creates a new evaluation client.
func New(completer Completer, cfg Config) (*Client, error) {
	if completer == nil {
		return nil, errors.New("completer is required")
	}
	builder, err := prompts.Default()
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}

	variant := cfg.PromptVariant
	if variant == "" {
		variant = prompts.PromptStandard
	}
	if !prompts.IsValidVariant(string(variant)) {
		return nil, fmt.Errorf("invalid prompt variant %q", variant)
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Client{
		completer: completer,
		prompts:   builder,
		variant:   variant,
		scoring:   cfg.Scoring,
		retry:     cfg.Retry.withDefaults(),
		metrics:   cfg.Metrics,
		now:       now,
	}, nil
}

// Evaluate sends the response and its scenario to the generation service and
// returns the structured evaluation. When every attempt fails it returns an
// error matching ErrServiceFailure; the caller is expected to fall back to a
// local evaluation.
func (c *Client) Evaluate(ctx context.Context, sc model.Scenario, responseText, userName string) (model.Evaluation, error) {
	prompt, err := c.prompts.BuildEvalPrompt(c.variant, sc, responseText, userName, c.scoring)
	if err != nil {
		return model.Evaluation{}, fmt.Errorf("build prompt: %w", err)
	}

	slog.Debug("evaluating response", "scenario_id", sc.ID, "words", len(strings.Fields(responseText)))

	raw, err := c.complete(ctx, prompt)
	if err != nil {
		return model.Evaluation{}, err
	}

	parsed := ParseReply(raw)
	if parsed.Malformed {
		slog.Warn("LLM reply missing expected sections, used fallback extraction", "scenario_id", sc.ID)
	}

	ev := model.Evaluation{
		Strengths:   parsed.Strengths,
		Suggestions: parsed.Suggestions,
		Raw:         raw,
		EvaluatedAt: c.now(),
	}

	if c.scoring {
		modelScore := parsed.Score
		if modelScore == nil {
			modelScore = model.Float(scoring.EstimateScoreFromLanguage(parsed.Strengths, parsed.Suggestions))
			ev.ScoreEstimated = true
		}
		ev.ModelScore = modelScore
		ev = scoring.ReconcileEvaluation(ev, responseText)
		c.metrics.Adjustment(*ev.ModelScore, *ev.Score)
		slog.Debug("score reconciled", "scenario_id", sc.ID, "model", *ev.ModelScore, "final", *ev.Score, "estimated", ev.ScoreEstimated)
	}

	c.metrics.Evaluation(metrics.SourceService, ev.Score)
	return ev, nil
}

// GenerateAdaptiveScenario asks the service for a personalised scenario body
// built around the weaknesses in the most recent entries.
func (c *Client) GenerateAdaptiveScenario(ctx context.Context, sc model.Scenario, history []model.Entry, userName string) (string, error) {
	if len(history) > recentForAdaptive {
		history = history[len(history)-recentForAdaptive:]
	}
	prompt, err := c.prompts.BuildAdaptivePrompt(sc, history, userName)
	if err != nil {
		return "", fmt.Errorf("build adaptive prompt: %w", err)
	}
	text, err := c.complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// Ping checks the service with a single attempt and no retries.
func (c *Client) Ping(ctx context.Context) error {
	if p, ok := c.completer.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	_, err := c.completer.Complete(ctx, "Hello")
	return err
}

// complete calls the service under the retry policy.
func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		attempts = attempt
		slog.Debug("LLM attempt", "attempt", attempt, "max_attempts", c.retry.MaxAttempts)

		text, err := c.completer.Complete(ctx, prompt)
		if err == nil && strings.TrimSpace(text) == "" {
			err = ErrInvalidReply
		}
		if err == nil {
			c.metrics.Attempt(metrics.OutcomeSuccess)
			return text, nil
		}

		if errors.Is(err, ErrInvalidReply) {
			c.metrics.Attempt(metrics.OutcomeInvalidReply)
		} else {
			c.metrics.Attempt(metrics.OutcomeError)
		}
		lastErr = err
		slog.Warn("LLM attempt failed", "attempt", attempt, "max_attempts", c.retry.MaxAttempts, "error", err)

		if ctx.Err() != nil {
			break
		}
		if attempt < c.retry.MaxAttempts {
			delay := c.retry.Backoff(attempt)
			slog.Info("waiting before retry", "delay", delay)
			if err := c.retry.Sleep(ctx, delay); err != nil {
				lastErr = err
				break
			}
		}
	}
	return "", &ServiceFailureError{Attempts: attempts, Last: lastErr}
}
