package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/leadsim/internal/model"
	"github.com/pavelanni/leadsim/internal/store"
)

// DefaultKey is the storage key the progress snapshot is saved under.
const DefaultKey = "leadershipSimulation"

// KeyValueStore is the persistence contract. Load returns store.ErrNotFound
// for a missing key and Save may return store.ErrQuotaExceeded.
type KeyValueStore interface {
	Save(ctx context.Context, key string, value []byte) error
	Load(ctx context.Context, key string) ([]byte, error)
	Clear(ctx context.Context, key string) error
}

// Persister saves and restores an Aggregator through a KeyValueStore.
type Persister struct {
	kv  KeyValueStore
	key string
	now func() time.Time
}

// NewPersister returns a Persister writing under key (DefaultKey when empty).
func NewPersister(kv KeyValueStore, key string) *Persister {
	if key == "" {
		key = DefaultKey
	}
	return &Persister{kv: kv, key: key, now: time.Now}
}

// Save writes the aggregator's snapshot. A store.ErrQuotaExceeded error is
// returned wrapped; the in-memory session is unaffected either way.
func (p *Persister) Save(ctx context.Context, agg *Aggregator) error {
	snap := agg.Snapshot()
	savedAt := p.now()
	snap.SavedAt = savedAt
	snap.Data.LastSaved = &savedAt

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := p.kv.Save(ctx, p.key, data); err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	agg.MarkSaved(savedAt)
	slog.Debug("progress saved", "session_id", snap.Data.ID, "responses", len(snap.Data.Entries), "bytes", len(data))
	return nil
}

// Load restores saved progress into agg. It reports false when nothing was
// saved. A snapshot that cannot be decoded or fails validation is cleared
// from the store and ErrInvalidSnapshot is returned; agg is left untouched.
func (p *Persister) Load(ctx context.Context, agg *Aggregator) (bool, error) {
	data, err := p.kv.Load(ctx, p.key)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load progress: %w", err)
	}

	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		err = fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
		return false, p.discard(ctx, err)
	}
	if err := agg.Restore(snap); err != nil {
		return false, p.discard(ctx, err)
	}
	return true, nil
}

func (p *Persister) discard(ctx context.Context, cause error) error {
	slog.Warn("discarding saved progress", "error", cause)
	if err := p.kv.Clear(ctx, p.key); err != nil {
		return errors.Join(cause, fmt.Errorf("clear progress: %w", err))
	}
	return cause
}

// Clear removes saved progress.
func (p *Persister) Clear(ctx context.Context) error {
	if err := p.kv.Clear(ctx, p.key); err != nil {
		return fmt.Errorf("clear progress: %w", err)
	}
	return nil
}

// Export converts the session into the portable export format.
func (p *Persister) Export(agg *Aggregator) model.SessionExport {
	state := agg.State()
	exp := model.SessionExport{
		ExportedAt: p.now(),
		UserName:   state.UserName,
		StartedAt:  state.StartedAt,
		Scenarios:  make([]model.ExportedScenario, 0, len(state.Entries)),
	}
	for _, e := range state.Entries {
		exp.Scenarios = append(exp.Scenarios, model.ExportedScenario{
			ScenarioID:    e.Response.ScenarioID,
			ScenarioTitle: e.Response.ScenarioTitle,
			Response:      e.Response.Text,
			Strengths:     e.Evaluation.Strengths,
			Suggestions:   e.Evaluation.Suggestions,
			Score:         e.Evaluation.Score,
			Fallback:      e.Evaluation.Fallback,
			Timestamp:     e.Response.SubmittedAt,
		})
	}
	return exp
}

// WriteExport writes the export as indented JSON.
func (p *Persister) WriteExport(w io.Writer, agg *Aggregator) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(p.Export(agg)); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	return nil
}

// Import replaces the session with the contents of an export read from r
// and saves it. Invalid exports are rejected with ErrInvalidSnapshot and
// leave agg untouched.
func (p *Persister) Import(ctx context.Context, r io.Reader, agg *Aggregator) error {
	var exp model.SessionExport
	if err := json.NewDecoder(r).Decode(&exp); err != nil {
		return fmt.Errorf("%w: decode export: %v", ErrInvalidSnapshot, err)
	}
	if exp.Scenarios == nil {
		return fmt.Errorf("%w: missing scenario list", ErrInvalidSnapshot)
	}

	entries := make([]model.Entry, 0, len(exp.Scenarios))
	for _, s := range exp.Scenarios {
		entries = append(entries, model.Entry{
			Response: model.Response{
				ScenarioID:    s.ScenarioID,
				ScenarioTitle: s.ScenarioTitle,
				Text:          s.Response,
				SubmittedAt:   s.Timestamp,
			},
			Evaluation: model.Evaluation{
				Strengths:   s.Strengths,
				Suggestions: s.Suggestions,
				Score:       s.Score,
				ModelScore:  s.Score,
				Fallback:    s.Fallback,
				EvaluatedAt: s.Timestamp,
			},
		})
	}

	snap := model.Snapshot{
		Version: model.SnapshotVersion,
		SavedAt: p.now(),
		Data: model.SessionState{
			ID:        uuid.NewString(),
			UserName:  exp.UserName,
			StartedAt: exp.StartedAt,
			Cursor:    len(entries),
			Entries:   entries,
		},
	}
	if err := agg.Restore(snap); err != nil {
		return err
	}
	return p.Save(ctx, agg)
}
