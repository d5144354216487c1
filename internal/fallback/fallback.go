// Package fallback produces a deterministic evaluation when the generation
// service cannot be reached.
package fallback

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/pavelanni/leadsim/internal/i18n"
	"github.com/pavelanni/leadsim/internal/model"
)

const (
	shortResponseWords = 30
	longResponseWords  = 200
)

var (
	greetingRegex = regexp.MustCompile(`(?i)\b(dear|hello|hi|greetings)\b`)
	closingRegex  = regexp.MustCompile(`(?i)\b(sincerely|regards|best|thank you)\b`)
	slangRegex    = regexp.MustCompile(`(?i)\b(lol|omg|wtf|lmao)\b`)
)

// Evaluator builds offline evaluations from canned, category-keyed text and
// simple observations about the response.
type Evaluator struct {
	// Scoring controls whether a score is attached.
	Scoring bool
	Now     func() time.Time
}

// Evaluate returns an evaluation with Fallback set. Text is localised through
// the localizer carried by ctx.
func (e Evaluator) Evaluate(ctx context.Context, sc model.Scenario, responseText string) model.Evaluation {
	var strengths, suggestions []string
	strengths = append(strengths, i18n.T(ctx, "FallbackStrengths"+category(sc.Type)))
	suggestions = append(suggestions, i18n.T(ctx, "FallbackSuggestions"+category(sc.Type)))

	score := model.MidpointScore
	words := len(strings.Fields(responseText))
	switch {
	case words < shortResponseWords:
		score--
		suggestions = append(suggestions, i18n.T(ctx, "NoteMoreDetail"))
	case words > longResponseWords:
		suggestions = append(suggestions, i18n.T(ctx, "NoteMoreConcise"))
	default:
		strengths = append(strengths, i18n.T(ctx, "NoteGoodDetail"))
	}

	if slangRegex.MatchString(responseText) {
		score--
		suggestions = append(suggestions, i18n.T(ctx, "NoteUnprofessional"))
	} else {
		strengths = append(strengths, i18n.T(ctx, "NoteProfessionalTone"))
	}

	if greetingRegex.MatchString(responseText) && closingRegex.MatchString(responseText) {
		score++
		strengths = append(strengths, i18n.T(ctx, "NoteStructure"))
	} else {
		suggestions = append(suggestions, i18n.T(ctx, "NoteNoStructure"))
	}

	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	ev := model.Evaluation{
		Strengths:   strings.Join(strengths, " "),
		Suggestions: strings.Join(suggestions, " "),
		Fallback:    true,
		EvaluatedAt: now(),
	}
	if e.Scoring {
		ev.Score = model.Float(model.ClampScore(score))
	}
	return ev
}

// category maps a scenario type to the suffix of its canned message IDs.
func category(t model.ScenarioType) string {
	switch t {
	case model.ScenarioMicro:
		return "Micro"
	case model.ScenarioAdaptive:
		return "Adaptive"
	default:
		return "Major"
	}
}
