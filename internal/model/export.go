package model

import "time"

// SessionExport is the portable JSON structure for downloading and re-importing progress.
type SessionExport struct {
	ExportedAt time.Time          `json:"exported_at"`
	UserName   string             `json:"user_name"`
	StartedAt  time.Time          `json:"started_at"`
	Scenarios  []ExportedScenario `json:"scenarios"`
}

// ExportedScenario holds per-scenario data for export.
type ExportedScenario struct {
	ScenarioID    int       `json:"scenario_id"`
	ScenarioTitle string    `json:"scenario_title"`
	Response      string    `json:"response"`
	Strengths     string    `json:"strengths"`
	Suggestions   string    `json:"suggestions"`
	Score         *float64  `json:"score,omitempty"`
	Fallback      bool      `json:"fallback"`
	Timestamp     time.Time `json:"timestamp"`
}
