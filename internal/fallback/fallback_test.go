package fallback

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pavelanni/leadsim/internal/i18n"
	"github.com/pavelanni/leadsim/internal/model"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	if err := i18n.Init("en"); err != nil {
		t.Fatalf("i18n.Init: %v", err)
	}
	return i18n.WithLanguage(context.Background(), "en")
}

func words(n int) string {
	return strings.TrimSpace(strings.Repeat("update ", n))
}

func TestEvaluateScore(t *testing.T) {
	ctx := testContext(t)
	e := Evaluator{Scoring: true}
	sc := model.Scenario{ID: 1, Type: model.ScenarioMajor}

	tests := []struct {
		name string
		text string
		want float64
	}{
		{"empty", "", 2},
		{"short", "ok will do", 2},
		{"short and slang", "lol ok will do", 1},
		{"mid length", words(60), 3},
		{"mid length with greeting and closing", "Hello team, " + words(60) + " Best regards", 4},
		{"long", words(250), 3},
		{"greeting only", "Dear team, " + words(60), 3},
		{"short with structure", "Hi all, thank you", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := e.Evaluate(ctx, sc, tt.text)
			if ev.Score == nil || *ev.Score != tt.want {
				t.Errorf("Score = %v, want %v", ev.Score, tt.want)
			}
			if !ev.Fallback {
				t.Error("Fallback flag must be set")
			}
			if ev.Strengths == "" || ev.Suggestions == "" {
				t.Error("strengths and suggestions must not be empty")
			}
		})
	}
}

func TestEvaluateNotes(t *testing.T) {
	ctx := testContext(t)
	sc := model.Scenario{ID: 1, Type: model.ScenarioMajor}
	ev := Evaluator{Scoring: true}.Evaluate(ctx, sc, "Hello team, "+words(60)+" Sincerely")

	for _, want := range []string{"Good level of detail.", "Professional tone maintained.", "Proper structure with greeting and closing."} {
		if !strings.Contains(ev.Strengths, want) {
			t.Errorf("Strengths %q should contain %q", ev.Strengths, want)
		}
	}

	ev = Evaluator{Scoring: true}.Evaluate(ctx, sc, "omg")
	for _, want := range []string{"Consider providing more detail", "Use more professional language.", "Include appropriate greeting and closing."} {
		if !strings.Contains(ev.Suggestions, want) {
			t.Errorf("Suggestions %q should contain %q", ev.Suggestions, want)
		}
	}
}

func TestEvaluateCategory(t *testing.T) {
	ctx := testContext(t)
	e := Evaluator{}
	micro := e.Evaluate(ctx, model.Scenario{Type: model.ScenarioMicro}, "x")
	major := e.Evaluate(ctx, model.Scenario{Type: model.ScenarioMajor}, "x")
	adaptive := e.Evaluate(ctx, model.Scenario{Type: model.ScenarioAdaptive}, "x")

	if micro.Strengths == major.Strengths || adaptive.Strengths == major.Strengths {
		t.Error("canned text should differ by scenario type")
	}
	if !strings.HasPrefix(micro.Strengths, i18n.T(ctx, "FallbackStrengthsMicro")) {
		t.Errorf("micro strengths = %q", micro.Strengths)
	}
}

func TestEvaluateWithoutScoring(t *testing.T) {
	ctx := testContext(t)
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	ev := Evaluator{Now: func() time.Time { return at }}.Evaluate(ctx, model.Scenario{Type: model.ScenarioMajor}, "Hello")
	if ev.Score != nil {
		t.Errorf("Score = %v, want none when scoring is off", *ev.Score)
	}
	if !ev.EvaluatedAt.Equal(at) {
		t.Errorf("EvaluatedAt = %v", ev.EvaluatedAt)
	}
}

func TestGreetingNeedsWholeWord(t *testing.T) {
	ctx := testContext(t)
	// "this" and "bestow" must not count as a greeting or closing.
	ev := Evaluator{Scoring: true}.Evaluate(ctx, model.Scenario{Type: model.ScenarioMajor}, "this will bestow "+words(40))
	if *ev.Score != 3 {
		t.Errorf("Score = %v, want 3", *ev.Score)
	}
}
