package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/blockvoltcr7/mem0-ai-api/core"
	"github.com/blockvoltcr7/mem0-ai-api/engine"
)

// MemoryHandler serves administrative memory operations.
type MemoryHandler struct {
	engine *engine.Engine
}

func NewMemoryHandler(eng *engine.Engine) *MemoryHandler {
	return &MemoryHandler{engine: eng}
}

// Purge handles DELETE /api/v1/memories/{ownerID}. It removes every
// record the owner has; other owners are untouched.
func (h *MemoryHandler) Purge(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerID")
	if err := core.ValidateOwnerID(ownerID); err != nil {
		writeError(w, http.StatusBadRequest, errCodeInvalidUserID, err.Error(),
			"Provide a valid user_id in the request path")
		return
	}

	deleted, err := h.engine.PurgeOwner(r.Context(), ownerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errCodeInternal,
			"An unexpected error occurred while processing your request",
			internalSuggestions...)
		return
	}

	writeJSON(w, http.StatusOK, PurgeResponse{UserID: ownerID, Deleted: deleted})
}
