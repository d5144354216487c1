// Package session accumulates the evaluated responses of one simulation run
// and persists them as a versioned snapshot.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/leadsim/internal/model"
)

// ErrInvalidSnapshot is returned when a snapshot fails shape validation.
var ErrInvalidSnapshot = errors.New("invalid session snapshot")

// Aggregator owns the SessionState of a run. It is safe for concurrent use,
// although the simulation only ever has one writer.
type Aggregator struct {
	mu    sync.Mutex
	state model.SessionState
	now   func() time.Time
}

// NewAggregator returns an empty aggregator. now defaults to time.Now.
func NewAggregator(now func() time.Time) *Aggregator {
	if now == nil {
		now = time.Now
	}
	a := &Aggregator{now: now}
	a.state = a.fresh("")
	return a
}

func (a *Aggregator) fresh(userName string) model.SessionState {
	return model.SessionState{
		ID:        uuid.NewString(),
		UserName:  userName,
		StartedAt: a.now(),
		Entries:   []model.Entry{},
	}
}

// Start discards any state and begins a new run for userName.
func (a *Aggregator) Start(userName string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = a.fresh(userName)
}

// Reset clears the aggregator to its initial empty state.
func (a *Aggregator) Reset() {
	a.Start("")
}

// Append records an evaluated response and returns the new cursor, which is
// always the number of entries.
func (a *Aggregator) Append(resp model.Response, ev model.Evaluation) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state.Entries = append(a.state.Entries, model.Entry{Response: resp, Evaluation: ev}.Clone())
	a.state.Cursor = len(a.state.Entries)
	return a.state.Cursor
}

// Cursor returns the index of the next scenario.
func (a *Aggregator) Cursor() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.Cursor
}

// Entries returns a copy of the recorded entries in order.
func (a *Aggregator) Entries() []model.Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return cloneEntries(a.state.Entries)
}

// State returns a copy of the full session state.
func (a *Aggregator) State() model.SessionState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.copyState()
}

func (a *Aggregator) copyState() model.SessionState {
	s := a.state
	s.Entries = cloneEntries(a.state.Entries)
	if a.state.LastSaved != nil {
		t := *a.state.LastSaved
		s.LastSaved = &t
	}
	return s
}

// MarkSaved records when the state was last persisted.
func (a *Aggregator) MarkSaved(t time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state.LastSaved = &t
}

// AverageScore is the mean score over all entries, counting entries without
// a score as model.MidpointScore. An empty session averages 0.
func (a *Aggregator) AverageScore() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return averageScore(a.state.Entries)
}

func averageScore(entries []model.Entry) float64 {
	if len(entries) == 0 {
		return 0
	}
	var sum float64
	for _, e := range entries {
		sum += e.Evaluation.ScoreOr(model.MidpointScore)
	}
	return sum / float64(len(entries))
}

// Snapshot returns a versioned deep copy of the session.
func (a *Aggregator) Snapshot() model.Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return model.Snapshot{
		Version: model.SnapshotVersion,
		SavedAt: a.now(),
		Data:    a.copyState(),
	}
}

// Restore replaces the session with snap. An invalid snapshot is rejected
// with ErrInvalidSnapshot and the current state is left as it was.
func (a *Aggregator) Restore(snap model.Snapshot) error {
	if err := Validate(snap); err != nil {
		return err
	}
	state := snap.Data
	state.Entries = cloneEntries(snap.Data.Entries)
	if state.ID == "" {
		state.ID = uuid.NewString()
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = state
	return nil
}

// Validate checks the shape of a snapshot.
func Validate(snap model.Snapshot) error {
	if snap.Version != model.SnapshotVersion {
		return fmt.Errorf("%w: unsupported version %q", ErrInvalidSnapshot, snap.Version)
	}
	if snap.Data.Entries == nil {
		return fmt.Errorf("%w: missing response list", ErrInvalidSnapshot)
	}
	if snap.Data.Cursor != len(snap.Data.Entries) {
		return fmt.Errorf("%w: cursor %d with %d responses", ErrInvalidSnapshot, snap.Data.Cursor, len(snap.Data.Entries))
	}
	for i, e := range snap.Data.Entries {
		if err := validateEntry(e); err != nil {
			return fmt.Errorf("%w: response %d: %v", ErrInvalidSnapshot, i, err)
		}
	}
	return nil
}

func validateEntry(e model.Entry) error {
	if e.Response.ScenarioID <= 0 {
		return errors.New("missing scenario id")
	}
	for _, s := range []*float64{e.Evaluation.Score, e.Evaluation.ModelScore} {
		if s != nil && (*s < model.MinScore || *s > model.MaxScore) {
			return fmt.Errorf("score %v out of range", *s)
		}
	}
	return nil
}

func cloneEntries(entries []model.Entry) []model.Entry {
	if entries == nil {
		return nil
	}
	out := make([]model.Entry, len(entries))
	for i, e := range entries {
		out[i] = e.Clone()
	}
	return out
}
