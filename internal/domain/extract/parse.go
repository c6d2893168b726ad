package extract

import (
	"encoding/json"
	"strings"

	"github.com/araddon/dateparse"
	"github.com/okian/storyline/internal/domain/model"
)

type rawEvent struct {
	Event string `json:"event"`
	Date  string `json:"date"`
}

// cleanOutput strips code fences and a leading "json" tag from a model reply.
func cleanOutput(raw string) string {
	s := strings.Trim(raw, "` \n")
	return strings.TrimPrefix(s, "json")
}

// ParseEvents decodes a model reply into events attributed to sourceURL.
// ok is false when the reply is not a JSON array of objects. Entries with
// empty text or a date that cannot be read are dropped.
func ParseEvents(raw, sourceURL string) (events []model.Event, dropped int, ok bool) {
	var items []rawEvent
	if err := json.Unmarshal([]byte(cleanOutput(raw)), &items); err != nil {
		return nil, 0, false
	}

	events = make([]model.Event, 0, len(items))
	for _, it := range items {
		text := strings.TrimSpace(it.Event)
		if text == "" {
			dropped++
			continue
		}
		date, err := parseDate(it.Date)
		if err != nil {
			dropped++
			continue
		}
		events = append(events, model.Event{Text: text, Date: date, SourceURL: sourceURL})
	}
	return events, dropped, true
}

// parseDate accepts YYYY/MM/DD and falls back to a lenient parser for the
// other shapes models tend to produce.
func parseDate(s string) (model.Date, error) {
	if d, err := model.ParseDate(s); err == nil {
		return d, nil
	}
	t, err := dateparse.ParseAny(strings.TrimSpace(s))
	if err != nil {
		return model.Date{}, err
	}
	return model.DateOf(t), nil
}
