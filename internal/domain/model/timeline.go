package model

// TimeWindowSeparator joins the first and last date of a segment label.
const TimeWindowSeparator = " – "

// Summary is the generated headline and paragraph for one cluster.
type Summary struct {
	Title   string `json:"title" yaml:"title"`
	Summary string `json:"summary" yaml:"summary"`
}

// Substory is one summarised cluster with its events ordered by date.
type Substory struct {
	Title   string  `json:"title" yaml:"title"`
	Summary string  `json:"summary" yaml:"summary"`
	Events  []Event `json:"events" yaml:"events"`
}

// TimelineSegment groups the substories of one time bucket.
type TimelineSegment struct {
	TimeWindow string     `json:"time_window" yaml:"time_window"`
	Substories []Substory `json:"substories" yaml:"substories"`
}

// Timeline is the ordered list of segments for a query.
type Timeline []TimelineSegment

// TimeWindow labels events as "first – last", or a single date when both ends match.
func TimeWindow(events []Event) string {
	first, last, ok := DateRange(events)
	if !ok {
		return ""
	}
	if first.Equal(last) {
		return first.String()
	}
	return first.String() + TimeWindowSeparator + last.String()
}

// Events flattens the timeline back into its events, in timeline order.
func (t Timeline) Events() []Event {
	var out []Event
	for _, seg := range t {
		for _, sub := range seg.Substories {
			out = append(out, sub.Events...)
		}
	}
	return out
}
