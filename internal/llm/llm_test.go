package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/pavelanni/leadsim/internal/metrics"
	"github.com/pavelanni/leadsim/internal/model"
)

// scriptedCompleter returns its replies in order; a non-nil error at the
// same index wins over the reply.
type scriptedCompleter struct {
	replies []string
	errs    []error
	prompts []string
}

func (s *scriptedCompleter) Complete(_ context.Context, prompt string) (string, error) {
	i := len(s.prompts)
	s.prompts = append(s.prompts, prompt)
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i < len(s.replies) {
		return s.replies[i], nil
	}
	return "", errors.New("no scripted reply")
}

type sleepRecorder struct {
	delays []time.Duration
}

func (r *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

var fixedNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newTestClient(t *testing.T, c Completer, scoring bool, rec *sleepRecorder, m *metrics.Recorder) *Client {
	t.Helper()
	client, err := New(c, Config{
		Scoring: scoring,
		Retry:   RetryPolicy{MaxAttempts: 3, Backoff: ExponentialBackoff, Sleep: rec.sleep},
		Metrics: m,
		Now:     func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client
}

func testScenario() model.Scenario {
	return model.Scenario{
		ID:                 1,
		Title:              "Supplier Delay Announcement",
		Type:               model.ScenarioMajor,
		Text:               "Your key supplier just announced a three-week delay.",
		LearningObjectives: []string{"Crisis communication"},
	}
}

func TestEvaluateRetriesThenFails(t *testing.T) {
	boom := errors.New("connection refused")
	c := &scriptedCompleter{errs: []error{boom, boom, boom}}
	rec := &sleepRecorder{}
	m := metrics.New()
	client := newTestClient(t, c, true, rec, m)

	_, err := client.Evaluate(context.Background(), testScenario(), "Team, the launch moves by three weeks.", "")
	if !errors.Is(err, ErrServiceFailure) {
		t.Fatalf("err = %v, want ErrServiceFailure", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("err should wrap the last attempt's error, got %v", err)
	}
	var sf *ServiceFailureError
	if !errors.As(err, &sf) || sf.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %+v", sf)
	}
	if len(c.prompts) != 3 {
		t.Errorf("completer called %d times, want 3", len(c.prompts))
	}

	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(rec.delays) != len(want) {
		t.Fatalf("delays = %v, want %v", rec.delays, want)
	}
	for i := range want {
		if rec.delays[i] != want[i] {
			t.Errorf("delay %d = %v, want %v", i, rec.delays[i], want[i])
		}
	}

	expected := `
# HELP leadsim_llm_attempts_total Total number of calls to the text-generation service
# TYPE leadsim_llm_attempts_total counter
leadsim_llm_attempts_total{outcome="error"} 3
`
	if err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "leadsim_llm_attempts_total"); err != nil {
		t.Errorf("attempt metrics: %v", err)
	}
}

func TestExponentialBackoff(t *testing.T) {
	for attempt, want := range map[int]time.Duration{1: 2 * time.Second, 2: 4 * time.Second, 3: 8 * time.Second} {
		if got := ExponentialBackoff(attempt); got != want {
			t.Errorf("ExponentialBackoff(%d) = %v, want %v", attempt, got, want)
		}
	}
}

func TestEvaluateSucceedsAfterRetry(t *testing.T) {
	c := &scriptedCompleter{
		errs:    []error{errors.New("timeout")},
		replies: []string{"", "STRENGTHS:\nGood tone.\nSUGGESTIONS:\nBe more specific.\nSCORE: 5/5"},
	}
	rec := &sleepRecorder{}
	client := newTestClient(t, c, true, rec, nil)

	ev, err := client.Evaluate(context.Background(), testScenario(), "t", "Dana")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(rec.delays) != 1 || rec.delays[0] != 2*time.Second {
		t.Errorf("delays = %v, want [2s]", rec.delays)
	}
	if ev.Fallback {
		t.Error("service evaluation must not be marked as fallback")
	}
	if ev.Strengths != "Good tone." || ev.Suggestions != "Be more specific." {
		t.Errorf("got %q / %q", ev.Strengths, ev.Suggestions)
	}
	if ev.ModelScore == nil || *ev.ModelScore != 5 {
		t.Errorf("ModelScore = %v, want 5", ev.ModelScore)
	}
	// A one-letter response is capped regardless of the model's score.
	if ev.Score == nil || *ev.Score != 2 {
		t.Errorf("Score = %v, want 2", ev.Score)
	}
	if !ev.EvaluatedAt.Equal(fixedNow) {
		t.Errorf("EvaluatedAt = %v", ev.EvaluatedAt)
	}
	if !strings.Contains(c.prompts[0], "Dana") {
		t.Error("prompt should carry the participant's name")
	}
}

func TestEvaluateRetriesEmptyReply(t *testing.T) {
	c := &scriptedCompleter{replies: []string{"   ", "STRENGTHS:\nClear.\nSUGGESTIONS:\nAdd dates."}}
	rec := &sleepRecorder{}
	m := metrics.New()
	client := newTestClient(t, c, false, rec, m)

	ev, err := client.Evaluate(context.Background(), testScenario(), "Team, we slip three weeks.", "")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(c.prompts) != 2 {
		t.Errorf("completer called %d times, want 2", len(c.prompts))
	}
	if ev.Strengths != "Clear." {
		t.Errorf("Strengths = %q", ev.Strengths)
	}

	expected := `
# HELP leadsim_llm_attempts_total Total number of calls to the text-generation service
# TYPE leadsim_llm_attempts_total counter
leadsim_llm_attempts_total{outcome="invalid_reply"} 1
leadsim_llm_attempts_total{outcome="success"} 1
`
	if err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "leadsim_llm_attempts_total"); err != nil {
		t.Errorf("attempt metrics: %v", err)
	}
}

func TestEvaluateScoringDisabled(t *testing.T) {
	c := &scriptedCompleter{replies: []string{"STRENGTHS:\nGood tone.\nSUGGESTIONS:\nBe specific.\nSCORE: 4"}}
	client := newTestClient(t, c, false, &sleepRecorder{}, nil)

	ev, err := client.Evaluate(context.Background(), testScenario(), "Team, we slip three weeks.", "")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if ev.Score != nil || ev.ModelScore != nil {
		t.Errorf("scores should be absent when scoring is off, got %v / %v", ev.Score, ev.ModelScore)
	}
	if strings.Contains(c.prompts[0], "SCORE:") {
		t.Error("prompt should not request a score when scoring is off")
	}
}

func TestEvaluateEstimatesMissingScore(t *testing.T) {
	reply := "STRENGTHS:\nExcellent framing, outstanding empathy and exceptional clarity.\nSUGGESTIONS:\nKeep it up."
	c := &scriptedCompleter{replies: []string{reply}}
	client := newTestClient(t, c, true, &sleepRecorder{}, nil)

	ev, err := client.Evaluate(context.Background(), testScenario(), "ok", "")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !ev.ScoreEstimated {
		t.Error("score should be marked as estimated")
	}
	if ev.ModelScore == nil || *ev.ModelScore != 5 {
		t.Errorf("ModelScore = %v, want 5", ev.ModelScore)
	}
	if ev.Score == nil || *ev.Score > 2 {
		t.Errorf("Score = %v, want at most 2 for a two-letter response", ev.Score)
	}
}

func TestEvaluateStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &scriptedCompleter{errs: []error{errors.New("down"), errors.New("down"), errors.New("down")}}
	client, err := New(c, Config{
		Retry: RetryPolicy{
			MaxAttempts: 3,
			Sleep: func(ctx context.Context, _ time.Duration) error {
				cancel()
				return ctx.Err()
			},
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = client.Evaluate(ctx, testScenario(), "text", "")
	if !errors.Is(err, ErrServiceFailure) || !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want service failure wrapping context.Canceled", err)
	}
	if len(c.prompts) != 1 {
		t.Errorf("completer called %d times after cancellation, want 1", len(c.prompts))
	}
}

func TestGenerateAdaptiveScenario(t *testing.T) {
	c := &scriptedCompleter{replies: []string{"  **Scenario: Vendor Renegotiation**\nYour vendor wants a price increase.  "}}
	client := newTestClient(t, c, true, &sleepRecorder{}, nil)

	history := make([]model.Entry, 7)
	for i := range history {
		history[i] = model.Entry{Response: model.Response{ScenarioID: i + 1, ScenarioTitle: "Title " + string(rune('A'+i)), Text: "answer"}}
	}

	text, err := client.GenerateAdaptiveScenario(context.Background(), testScenario(), history, "Dana")
	if err != nil {
		t.Fatalf("GenerateAdaptiveScenario: %v", err)
	}
	if !strings.HasPrefix(text, "**Scenario:") || strings.HasSuffix(text, " ") {
		t.Errorf("text = %q", text)
	}
	if strings.Contains(c.prompts[0], "Title A") || strings.Contains(c.prompts[0], "Title B") {
		t.Error("only the most recent entries should feed the prompt")
	}
	if !strings.Contains(c.prompts[0], "Title G") {
		t.Error("the latest entry should feed the prompt")
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	if _, err := New(nil, Config{}); err == nil {
		t.Error("expected error without completer")
	}
	if _, err := New(&scriptedCompleter{}, Config{PromptVariant: "harsh"}); err == nil {
		t.Error("expected error for unknown prompt variant")
	}
}
