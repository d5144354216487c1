// Package simulation drives one participant through the scenario catalog:
// it evaluates each response, falls back to offline feedback when the
// generation service fails, and keeps progress saved.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pavelanni/leadsim/internal/catalog"
	"github.com/pavelanni/leadsim/internal/fallback"
	"github.com/pavelanni/leadsim/internal/i18n"
	"github.com/pavelanni/leadsim/internal/metrics"
	"github.com/pavelanni/leadsim/internal/model"
	"github.com/pavelanni/leadsim/internal/session"
	"github.com/pavelanni/leadsim/internal/store"
)

// DefaultUserName is used when the participant gives no name.
const DefaultUserName = "Team Leader"

var (
	// ErrEvaluationInProgress is returned to a Submit that overlaps another.
	ErrEvaluationInProgress = errors.New("an evaluation is already in progress")
	// ErrEmptyResponse is returned for blank submissions.
	ErrEmptyResponse = errors.New("response is empty")
	// ErrSessionComplete is returned once every scenario has been answered.
	ErrSessionComplete = errors.New("all scenarios completed")
)

// Evaluator is the generation-service client the engine depends on.
type Evaluator interface {
	Evaluate(ctx context.Context, sc model.Scenario, responseText, userName string) (model.Evaluation, error)
	GenerateAdaptiveScenario(ctx context.Context, sc model.Scenario, history []model.Entry, userName string) (string, error)
}

// Config wires an Engine. Evaluator may be nil, in which case every response
// gets offline feedback.
type Config struct {
	Catalog   *catalog.Catalog
	Evaluator Evaluator
	Fallback  fallback.Evaluator
	Persister *session.Persister
	Metrics   *metrics.Recorder
	Now       func() time.Time
}

// Result is the outcome of one submission.
type Result struct {
	Evaluation model.Evaluation
	Cursor     int
	// SaveErr is set when the session could not be persisted. It is not
	// fatal: the session continues in memory.
	SaveErr error
}

// Engine runs a simulation session.
type Engine struct {
	catalog   *catalog.Catalog
	evaluator Evaluator
	fallback  fallback.Evaluator
	agg       *session.Aggregator
	persister *session.Persister
	metrics   *metrics.Recorder
	now       func() time.Time

	processing atomic.Bool

	mu       sync.Mutex
	adaptive map[int]string // generated text by scenario id
}

// New creates an engine with an empty session.
func New(cfg Config) (*Engine, error) {
	if cfg.Catalog == nil || cfg.Catalog.Len() == 0 {
		return nil, errors.New("scenario catalog is required")
	}
	if cfg.Persister == nil {
		return nil, errors.New("persister is required")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	if cfg.Fallback.Now == nil {
		cfg.Fallback.Now = now
	}
	return &Engine{
		catalog:   cfg.Catalog,
		evaluator: cfg.Evaluator,
		fallback:  cfg.Fallback,
		agg:       session.NewAggregator(now),
		persister: cfg.Persister,
		metrics:   cfg.Metrics,
		now:       now,
		adaptive:  make(map[int]string),
	}, nil
}

// Start begins a new session for name and clears any saved progress.
func (e *Engine) Start(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultUserName
	}
	e.agg.Start(name)
	e.resetAdaptive()
	slog.Info("session started", "session_id", e.agg.State().ID, "user", name)
	return e.persister.Clear(ctx)
}

// Resume restores saved progress. It reports false when there was none. An
// invalid snapshot is discarded and reported as session.ErrInvalidSnapshot.
func (e *Engine) Resume(ctx context.Context) (bool, error) {
	ok, err := e.persister.Load(ctx, e.agg)
	if err != nil {
		return false, err
	}
	if ok {
		e.resetAdaptive()
		slog.Info("session resumed", "session_id", e.agg.State().ID, "cursor", e.agg.Cursor())
	}
	return ok, nil
}

// Restart discards the session and its saved progress.
func (e *Engine) Restart(ctx context.Context) error {
	e.agg.Reset()
	e.resetAdaptive()
	return e.persister.Clear(ctx)
}

func (e *Engine) resetAdaptive() {
	e.mu.Lock()
	defer e.mu.Unlock()
	clear(e.adaptive)
}

// Current returns the scenario at the cursor, or false when all are done.
func (e *Engine) Current() (model.Scenario, bool) {
	return e.catalog.At(e.agg.Cursor())
}

// Position returns the 1-based number of the current scenario and the total.
func (e *Engine) Position() (int, int) {
	return e.agg.Cursor() + 1, e.catalog.Len()
}

// Done reports whether every scenario has been answered.
func (e *Engine) Done() bool {
	return e.agg.Cursor() >= e.catalog.Len()
}

// UserName returns the participant's display name.
func (e *Engine) UserName() string {
	return e.agg.State().UserName
}

// ScenarioText returns the text to show for the current scenario. Adaptive
// scenarios are written by the generation service from earlier answers, with
// the catalog text as fallback. The first scenario opens with a greeting.
func (e *Engine) ScenarioText(ctx context.Context) (string, error) {
	sc, ok := e.Current()
	if !ok {
		return "", ErrSessionComplete
	}
	text := e.scenarioBody(ctx, sc)
	if e.agg.Cursor() == 0 {
		greeting := i18n.Td(ctx, "Greeting", map[string]any{"Name": e.UserName()})
		text = greeting + "\n\n" + text
	}
	return text, nil
}

func (e *Engine) scenarioBody(ctx context.Context, sc model.Scenario) string {
	if sc.Type != model.ScenarioAdaptive || e.evaluator == nil {
		return sc.Text
	}

	e.mu.Lock()
	cached, ok := e.adaptive[sc.ID]
	e.mu.Unlock()
	if ok {
		return cached
	}

	text, err := e.evaluator.GenerateAdaptiveScenario(ctx, sc, e.agg.Entries(), e.UserName())
	if err != nil || text == "" {
		slog.Warn("adaptive scenario generation failed, using catalog text", "scenario_id", sc.ID, "error", err)
		text = sc.Text
	}

	e.mu.Lock()
	e.adaptive[sc.ID] = text
	e.mu.Unlock()
	return text
}

// Submit evaluates text as the answer to the current scenario, records it and
// saves progress. Only one submission may be in flight at a time. A failing
// generation service never surfaces here: the response gets offline feedback.
func (e *Engine) Submit(ctx context.Context, text string) (Result, error) {
	if !e.processing.CompareAndSwap(false, true) {
		return Result{}, ErrEvaluationInProgress
	}
	defer e.processing.Store(false)

	if strings.TrimSpace(text) == "" {
		return Result{}, ErrEmptyResponse
	}
	sc, ok := e.Current()
	if !ok {
		return Result{}, ErrSessionComplete
	}
	// Evaluate against the text the participant actually saw.
	sc.Text = e.scenarioBody(ctx, sc)

	submittedAt := e.now()
	ev, err := e.evaluate(ctx, sc, text)
	if err != nil {
		return Result{}, err
	}

	resp := model.Response{
		ScenarioID:    sc.ID,
		ScenarioTitle: sc.Title,
		Text:          text,
		SubmittedAt:   submittedAt,
	}
	res := Result{Evaluation: ev, Cursor: e.agg.Append(resp, ev)}

	if err := e.persister.Save(ctx, e.agg); err != nil {
		if errors.Is(err, store.ErrQuotaExceeded) {
			slog.Warn("progress not saved, storage quota exceeded", "error", err)
		} else {
			slog.Warn("progress not saved", "error", err)
		}
		res.SaveErr = err
	}
	return res, nil
}

func (e *Engine) evaluate(ctx context.Context, sc model.Scenario, text string) (model.Evaluation, error) {
	if e.evaluator != nil {
		ev, err := e.evaluator.Evaluate(ctx, sc, text, e.UserName())
		if err == nil {
			return ev, nil
		}
		if ctx.Err() != nil {
			return model.Evaluation{}, fmt.Errorf("evaluate response: %w", ctx.Err())
		}
		slog.Warn("evaluation service failed, using offline feedback", "scenario_id", sc.ID, "error", err)
	}
	ev := e.fallback.Evaluate(ctx, sc, text)
	e.metrics.Evaluation(metrics.SourceFallback, ev.Score)
	return ev, nil
}

// Entries returns the answered scenarios in order.
func (e *Engine) Entries() []model.Entry {
	return e.agg.Entries()
}

// Report summarises the session so far.
func (e *Engine) Report() model.Report {
	state := e.agg.State()
	r := model.Report{
		UserName:       state.UserName,
		TotalScenarios: e.catalog.Len(),
		Completed:      len(state.Entries),
		Duration:       e.now().Sub(state.StartedAt),
		AverageScore:   e.agg.AverageScore(),
	}
	for _, en := range state.Entries {
		if en.Evaluation.Fallback {
			r.FallbackCount++
		}
		r.Lines = append(r.Lines, model.ReportLine{
			ScenarioID:    en.Response.ScenarioID,
			ScenarioTitle: en.Response.ScenarioTitle,
			Score:         en.Evaluation.Score,
			Fallback:      en.Evaluation.Fallback,
		})
	}
	return r
}

// Export writes the session in the portable export format.
func (e *Engine) Export(w io.Writer) error {
	return e.persister.WriteExport(w, e.agg)
}

// Import replaces the session with an export read from r and saves it.
func (e *Engine) Import(ctx context.Context, r io.Reader) error {
	if err := e.persister.Import(ctx, r, e.agg); err != nil {
		return err
	}
	e.resetAdaptive()
	return nil
}
