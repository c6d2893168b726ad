package client

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/okian/storyline/internal/domain/types"
	"gopkg.in/yaml.v3"
)

// Output formats accepted by Render.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Render writes resp to w in the given format.
func Render(w io.Writer, format string, resp types.TimelineResponse) error { //nolint:gocritic // hugeParam: rendered read-only
	switch strings.ToLower(format) {
	case FormatText, "":
		return renderText(w, resp)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("%w: %q", ErrFormat, format)
	}
}

func renderText(w io.Writer, resp types.TimelineResponse) error { //nolint:gocritic // hugeParam: rendered read-only
	var b strings.Builder
	fmt.Fprintf(&b, "Timeline for %q\n", resp.Query)
	if len(resp.Timeline) == 0 {
		b.WriteString("\nNo dated events were found.\n")
	}
	for _, seg := range resp.Timeline {
		fmt.Fprintf(&b, "\n== %s ==\n", seg.TimeWindow)
		for _, sub := range seg.Substories {
			title := sub.Title
			if title == "" {
				title = "(untitled)"
			}
			fmt.Fprintf(&b, "\n  * %s\n", title)
			if sub.Summary != "" {
				fmt.Fprintf(&b, "    %s\n", sub.Summary)
			}
			for _, ev := range sub.Events {
				fmt.Fprintf(&b, "    - %s  %s", ev.Date, ev.Text)
				if ev.SourceURL != "" {
					fmt.Fprintf(&b, " <%s>", ev.SourceURL)
				}
				b.WriteByte('\n')
			}
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}
