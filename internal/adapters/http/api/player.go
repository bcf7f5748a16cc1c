package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/okian/ladder/internal/domain/types"
)

// PlayerDependencies defines the interface for player lookups.
type PlayerDependencies interface {
	Player(ctx context.Context, name string) (Entry, error)
	PlayerHistory(ctx context.Context, name string) (types.PlayerHistory, error)
}

// suggester is implemented by not-found errors that carry close matches.
type suggester interface {
	error
	Alternatives() []string
}

// PlayerHandler handles player requests.
type PlayerHandler struct {
	deps PlayerDependencies
}

// NewPlayerHandler creates a new player handler.
func NewPlayerHandler(deps PlayerDependencies) *PlayerHandler {
	return &PlayerHandler{deps: deps}
}

// HandleGetPlayer handles GET /players/{name} requests.
func (h *PlayerHandler) HandleGetPlayer(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_player"
	name, ok := h.name(w, r)
	if !ok {
		return
	}
	entry, err := h.deps.Player(r.Context(), name)
	if err != nil {
		writeLookupError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// HandleGetHistory handles GET /players/{name}/history requests.
func (h *PlayerHandler) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_player_history"
	name, ok := h.name(w, r)
	if !ok {
		return
	}
	hist, err := h.deps.PlayerHistory(r.Context(), name)
	if err != nil {
		writeLookupError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, hist)
}

func (h *PlayerHandler) name(w http.ResponseWriter, r *http.Request) (string, bool) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return "", false
	}
	name := strings.TrimSpace(r.PathValue("name"))
	if name == "" {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return "", false
	}
	return name, true
}

func writeLookupError(w http.ResponseWriter, op string, err error) {
	var s suggester
	if errors.As(err, &s) {
		writeJSON(w, http.StatusNotFound, errorResponse{
			Code:        "not_found",
			Message:     err.Error(),
			Suggestions: s.Alternatives(),
		})
		return
	}
	writeError(w, http.StatusInternalServerError, "internal_error", wrap(op, err))
}
