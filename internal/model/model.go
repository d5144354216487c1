package model

import (
	"math"
	"time"
)

// ScenarioType tags how a scenario is presented and which canned fallback
// feedback applies to it.
type ScenarioType string

const (
	ScenarioMajor    ScenarioType = "major"
	ScenarioMicro    ScenarioType = "micro"
	ScenarioAdaptive ScenarioType = "adaptive"
)

// Valid reports whether t is one of the known scenario types.
func (t ScenarioType) Valid() bool {
	switch t {
	case ScenarioMajor, ScenarioMicro, ScenarioAdaptive:
		return true
	}
	return false
}

// Score bounds and the value used in place of a missing score when averaging.
const (
	MinScore      = 1.0
	MaxScore      = 5.0
	MidpointScore = 3.0
)

// ClampScore bounds s to [MinScore, MaxScore].
func ClampScore(s float64) float64 {
	return math.Max(MinScore, math.Min(MaxScore, s))
}

// Character is display-only metadata about the person a scenario revolves around.
type Character struct {
	Name  string `json:"name" yaml:"name"`
	Role  string `json:"role" yaml:"role"`
	Image string `json:"image,omitempty" yaml:"image,omitempty"`
}

// Scenario is a static leadership-communication prompt.
type Scenario struct {
	ID                 int          `json:"id" yaml:"id"`
	Title              string       `json:"title" yaml:"title"`
	Type               ScenarioType `json:"type" yaml:"type"`
	Text               string       `json:"text" yaml:"text"`
	LearningObjectives []string     `json:"learning_objectives" yaml:"learning_objectives"`
	Character          *Character   `json:"character,omitempty" yaml:"character,omitempty"`
}

// Response is one user submission for a scenario.
type Response struct {
	ScenarioID    int       `json:"scenario_id"`
	ScenarioTitle string    `json:"scenario_title"`
	Text          string    `json:"text"`
	SubmittedAt   time.Time `json:"submitted_at"`
}

// Evaluation is the structured feedback produced for one response.
// Score is nil when no numeric score was produced; a non-nil Score is always
// within [MinScore, MaxScore].
type Evaluation struct {
	Strengths   string   `json:"strengths"`
	Suggestions string   `json:"suggestions"`
	Score       *float64 `json:"score,omitempty"`

	// ModelScore is the score before reconciliation: either reported by the
	// model or estimated from the feedback language.
	ModelScore     *float64  `json:"model_score,omitempty"`
	ScoreEstimated bool      `json:"score_estimated,omitempty"`
	Fallback       bool      `json:"fallback"`
	Raw            string    `json:"raw,omitempty"`
	EvaluatedAt    time.Time `json:"evaluated_at"`
}

// HasScore reports whether the evaluation carries a numeric score.
func (e Evaluation) HasScore() bool {
	return e.Score != nil
}

// ScoreOr returns the score, or def when there is none.
func (e Evaluation) ScoreOr(def float64) float64 {
	if e.Score == nil {
		return def
	}
	return *e.Score
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

// Entry pairs a response with its evaluation.
type Entry struct {
	Response   Response   `json:"response"`
	Evaluation Evaluation `json:"evaluation"`
}

// Clone returns a copy of the entry that shares no pointers with e.
func (e Entry) Clone() Entry {
	c := e
	if e.Evaluation.Score != nil {
		c.Evaluation.Score = Float(*e.Evaluation.Score)
	}
	if e.Evaluation.ModelScore != nil {
		c.Evaluation.ModelScore = Float(*e.Evaluation.ModelScore)
	}
	return c
}

// SessionState is the whole of one simulation run.
type SessionState struct {
	ID        string     `json:"id"`
	UserName  string     `json:"user_name,omitempty"`
	StartedAt time.Time  `json:"started_at"`
	LastSaved *time.Time `json:"last_saved,omitempty"`
	Cursor    int        `json:"cursor"`
	Entries   []Entry    `json:"responses"`
}

// SnapshotVersion is the current persisted snapshot format.
const SnapshotVersion = "1.0"

// Snapshot is the versioned envelope a session is persisted in.
type Snapshot struct {
	Version string       `json:"version"`
	SavedAt time.Time    `json:"saved_at"`
	Data    SessionState `json:"data"`
}

// Report summarises a completed (or partially completed) run.
type Report struct {
	UserName       string        `json:"user_name"`
	TotalScenarios int           `json:"total_scenarios"`
	Completed      int           `json:"completed"`
	Duration       time.Duration `json:"duration"`
	AverageScore   float64       `json:"average_score"`
	FallbackCount  int           `json:"fallback_count"`
	Lines          []ReportLine  `json:"lines"`
}

// ReportLine is one scenario's row in a Report.
type ReportLine struct {
	ScenarioID    int      `json:"scenario_id"`
	ScenarioTitle string   `json:"scenario_title"`
	Score         *float64 `json:"score,omitempty"`
	Fallback      bool     `json:"fallback"`
}
