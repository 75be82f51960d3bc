package api

import (
	"errors"
	"net/http"
	"sort"

	"github.com/blockvoltcr7/mem0-ai-api/core"
	"github.com/blockvoltcr7/mem0-ai-api/engine"
	"github.com/blockvoltcr7/mem0-ai-api/memory"
)

// ChatHandler serves the conversation endpoint.
type ChatHandler struct {
	engine *engine.Engine
}

func NewChatHandler(eng *engine.Engine) *ChatHandler {
	return &ChatHandler{engine: eng}
}

// Chat handles POST /api/v1/chat. Validation failures are reported with
// field-specific error codes before the engine runs, so a rejected
// request never touches the store.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, errCodeInvalidRequest,
			"invalid request body: "+err.Error(),
			"Send a JSON object with user_id and message fields")
		return
	}

	if err := core.ValidateOwnerID(req.UserID); err != nil {
		writeError(w, http.StatusBadRequest, errCodeInvalidUserID, err.Error(),
			"Provide a valid user_id in the request")
		return
	}
	if err := core.ValidateMessage(req.Message); err != nil {
		writeError(w, http.StatusBadRequest, errCodeInvalidMessage, err.Error(),
			"Provide a valid message in the request")
		return
	}
	if err := core.ValidateSessionID(req.SessionID); err != nil {
		writeError(w, http.StatusBadRequest, errCodeInvalidSessionID, err.Error(),
			"Use only letters, digits, underscore, and hyphen in session_id")
		return
	}

	res, err := h.engine.HandleTurn(r.Context(), req.UserID, req.Message, req.SessionID, turnOptions(req.Metadata)...)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrGenerationUnavailable):
			writeError(w, http.StatusServiceUnavailable, errCodeGenerationUnavailable,
				"the language model is currently unavailable",
				"Try again in a few moments")
		case errors.Is(err, core.ErrInvalidOwnerScope):
			writeError(w, http.StatusBadRequest, errCodeInvalidUserID, err.Error(),
				"Provide a valid user_id in the request")
		case errors.Is(err, core.ErrInvalidMessage):
			writeError(w, http.StatusBadRequest, errCodeInvalidMessage, err.Error(),
				"Provide a valid message in the request")
		default:
			writeError(w, http.StatusInternalServerError, errCodeInternal,
				"An unexpected error occurred while processing your request",
				internalSuggestions...)
		}
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{
		Response:        res.Reply,
		UserID:          req.UserID,
		SessionID:       req.SessionID,
		MemoriesFound:   res.Stats.MemoriesFound,
		MemoriesCreated: res.Stats.MemoriesCreated,
		Metadata: ResponseMetadata{
			ModelUsed:             res.Stats.ModelUsed,
			ResponseTimeMs:        res.Stats.TotalLatency.Milliseconds(),
			MemoryRetrievalTimeMs: res.Stats.RetrievalLatency.Milliseconds(),
			Plans:                 res.Stats.PlanHits,
			DegradedPlans:         res.Stats.DegradedPlans,
			WriteFailed:           res.Stats.WriteFailed,
		},
	})
}

// turnOptions translates caller metadata into engine options. A
// "category" or "domain" value naming a known category scopes
// retrieval; all other pairs become record tags. Keys are walked in
// sorted order so repeated requests produce identical records.
func turnOptions(meta map[string]string) []engine.TurnOption {
	if len(meta) == 0 {
		return nil
	}
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var opts []engine.TurnOption
	for _, k := range keys {
		v := meta[k]
		if (k == "category" || k == "domain") && memory.ValidCategory(v) {
			opts = append(opts, engine.WithActiveCategory(v))
			continue
		}
		opts = append(opts, engine.WithExtraTags(k+"="+v))
	}
	return opts
}
