package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/okian/storyline/internal/domain/model"
)

// Events caches extracted events per article URL for one model.
type Events struct {
	store *Store
	model string
}

// NewEvents returns an event cache keyed by the given model name.
func NewEvents(store *Store, model string) *Events {
	return &Events{store: store, model: model}
}

// LoadEvents returns the cached events for url. ok is false on a miss.
func (e *Events) LoadEvents(ctx context.Context, url string) ([]model.Event, bool, error) {
	var payload string
	err := e.store.db.QueryRowContext(ctx,
		`SELECT payload FROM extracted_events WHERE url = ? AND model = ?`, url, e.model,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load events: %w", err)
	}

	var events []model.Event
	if err := json.Unmarshal([]byte(payload), &events); err != nil {
		return nil, false, fmt.Errorf("decode cached events: %w", err)
	}
	return events, true, nil
}

// StoreEvents saves events for url, replacing any previous entry.
func (e *Events) StoreEvents(ctx context.Context, url string, events []model.Event) error {
	if events == nil {
		events = []model.Event{}
	}
	payload, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("encode events: %w", err)
	}
	_, err = e.store.db.ExecContext(ctx, `
	INSERT INTO extracted_events (url, model, payload, created_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(url, model) DO UPDATE SET
		payload = excluded.payload,
		created_at = excluded.created_at
	`, url, e.model, string(payload), e.store.now().Unix())
	if err != nil {
		return fmt.Errorf("store events: %w", err)
	}
	return nil
}
