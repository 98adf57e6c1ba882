package handler

import (
	"fmt"
	"net/http"

	"netfabric/internal/identity"
)

// GetOperation returns every event recorded under one correlation id,
// across aggregates, ordered by stream then sequence
func (h *Handler) GetOperation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, "Correlation ID required", "", http.StatusBadRequest)
		return
	}

	events, err := h.svc.Operation(r.Context(), identity.CorrelationID(id))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if len(events) == 0 {
		h.writeError(w, "Not found", fmt.Sprintf("no events for operation %s", id), http.StatusNotFound)
		return
	}

	h.writeJSON(w, map[string]any{
		"correlation_id": id,
		"events":         viewEvents(events),
	}, http.StatusOK)
}
