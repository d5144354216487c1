package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCounts(t *testing.T) {
	r := New()
	r.Attempt(OutcomeError)
	r.Attempt(OutcomeError)
	r.Attempt(OutcomeSuccess)

	score := 4.0
	r.Evaluation(SourceService, &score)
	r.Evaluation(SourceFallback, nil)

	r.Adjustment(5, 4)
	r.Adjustment(2, 3)
	r.Adjustment(3, 3)

	if got := testutil.ToFloat64(r.attempts.WithLabelValues(OutcomeError)); got != 2 {
		t.Errorf("error attempts = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.evaluations.WithLabelValues(SourceFallback)); got != 1 {
		t.Errorf("fallback evaluations = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.adjustments.WithLabelValues("down")); got != 1 {
		t.Errorf("down adjustments = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(r.adjustments); got != 2 {
		t.Errorf("adjustment series = %d, want 2", got)
	}
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	r.Attempt(OutcomeSuccess)
	r.Evaluation(SourceService, nil)
	r.Adjustment(1, 2)
	if err := r.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")); err != nil {
		t.Errorf("WriteTextfile on nil recorder: %v", err)
	}
}

func TestWriteTextfile(t *testing.T) {
	r := New()
	r.Attempt(OutcomeSuccess)

	path := filepath.Join(t.TempDir(), "leadsim.prom")
	if err := r.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	if !strings.Contains(string(data), `leadsim_llm_attempts_total{outcome="success"} 1`) {
		t.Errorf("textfile missing attempt counter:\n%s", data)
	}
}
