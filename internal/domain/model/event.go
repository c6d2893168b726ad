// Package model contains domain models passed between layers.
package model

import "sort"

// Article is a candidate news article returned by an article source.
type Article struct {
	Title       string `json:"title" yaml:"title"`
	URL         string `json:"url" yaml:"url"`
	Text        string `json:"text" yaml:"text"`
	PublishedAt string `json:"published_at" yaml:"published_at"` // YYYY-MM-DD
}

// Event is a dated happening extracted from one article.
// Identical events from different sources are kept as separate values.
type Event struct {
	Text      string `json:"event" yaml:"event"`
	Date      Date   `json:"date" yaml:"date"`
	SourceURL string `json:"source_url" yaml:"source_url"`
}

// SortByDate orders events by date, keeping the input order of same-day events.
func SortByDate(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Date.Before(events[j].Date)
	})
}

// DateRange returns the earliest and latest dates in events.
// ok is false for an empty slice.
func DateRange(events []Event) (first, last Date, ok bool) {
	if len(events) == 0 {
		return Date{}, Date{}, false
	}
	first, last = events[0].Date, events[0].Date
	for _, e := range events[1:] {
		if e.Date.Before(first) {
			first = e.Date
		}
		if e.Date.After(last) {
			last = e.Date
		}
	}
	return first, last, true
}
