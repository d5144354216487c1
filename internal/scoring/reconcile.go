package scoring

import (
	"math"

	"github.com/pavelanni/leadsim/internal/model"
)

// Reconcile bounds a model-reported score with the objective quality of the
// response and the severity of the model's own suggestions. The model tends
// to be generous with low-effort text, so weak responses are capped while
// strong ones keep most of the model's judgement. The result is in [1, 5].
func Reconcile(modelScore float64, responseText, suggestions string) float64 {
	quality := QualityOf(responseText)

	var final float64
	switch {
	case quality <= 1.5:
		final = math.Min(modelScore, 2.0)
	case quality <= 2.5:
		final = math.Min(modelScore, 3.0)
	default:
		severity := ClassifySeverity(suggestions)
		switch {
		case severity == SeveritySevere && modelScore > 3.0:
			final = math.Max(quality, modelScore-1.0)
		case severity == SeverityModerate && modelScore > 4.0:
			final = math.Min(modelScore, 4.0)
		default:
			final = math.Max(quality, math.Min(modelScore, quality+1.5))
		}
	}
	return model.ClampScore(final)
}

// ReconcileEvaluation sets ev.Score from ev.ModelScore. Reconciliation always
// starts from the pre-reconciliation score, so applying it again to the same
// response yields the same result. An evaluation without a model score is
// returned unchanged.
func ReconcileEvaluation(ev model.Evaluation, responseText string) model.Evaluation {
	if ev.ModelScore == nil {
		return ev
	}
	ev.Score = model.Float(Reconcile(*ev.ModelScore, responseText, ev.Suggestions))
	return ev
}
