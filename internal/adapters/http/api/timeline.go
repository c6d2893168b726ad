package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/okian/storyline/internal/domain/model"
	"github.com/okian/storyline/internal/domain/timeline"
	"github.com/okian/storyline/internal/domain/types"
	"github.com/okian/storyline/pkg/logger"
)

// TimelineHandler serves synchronous timeline generation.
type TimelineHandler struct {
	deps   Dependencies
	logger logger.Logger
}

// NewTimelineHandler creates a new timeline handler.
func NewTimelineHandler(deps Dependencies, l logger.Logger) *TimelineHandler {
	return &TimelineHandler{deps: deps, logger: l}
}

// HandlePostTimeline handles POST /timeline requests. Pipeline failures are
// reported as 500 with a message only.
func (h *TimelineHandler) HandlePostTimeline(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_timeline"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req types.TimelineRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errors.New("missing query")))
		return
	}

	tl, err := h.deps.Generate(r.Context(), req.Query)
	if err != nil {
		if errors.Is(err, timeline.ErrEmptyQuery) {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		h.logger.Error(r.Context(), "timeline generation failed",
			logger.String("query", req.Query),
			logger.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, types.Message{Message: "Error generating timeline: " + err.Error()})
		return
	}
	if tl == nil {
		tl = model.Timeline{}
	}
	writeJSON(w, http.StatusOK, types.TimelineResponse{Query: req.Query, Timeline: tl})
}
