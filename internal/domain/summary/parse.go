package summary

import (
	"strings"

	"github.com/okian/storyline/internal/domain/model"
)

const (
	titleLabel   = "Title:"
	summaryLabel = "Summary:"
)

// ParseSummary reads the first "Title:" and "Summary:" lines of a model response.
// Leading list markers and markdown emphasis are ignored. A missing label
// yields an empty field.
func ParseSummary(text string) model.Summary {
	var out model.Summary
	var haveTitle, haveSummary bool
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimLeft(strings.TrimSpace(line), "*#- ")
		switch {
		case !haveTitle && strings.HasPrefix(line, titleLabel):
			out.Title = cleanValue(line[len(titleLabel):])
			haveTitle = true
		case !haveSummary && strings.HasPrefix(line, summaryLabel):
			out.Summary = cleanValue(line[len(summaryLabel):])
			haveSummary = true
		}
	}
	return out
}

func cleanValue(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), "*"))
}
