package handler

import (
	"encoding/json"
	"net/http"

	"netfabric/internal/domain"
	"netfabric/internal/identity"
)

// AllocateSubnet carves a block out of a parent on direct operator
// request
func (h *Handler) AllocateSubnet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		envelopeFields
		Parent    string `json:"parent"`
		PrefixLen int    `json:"prefix_len"`
		Purpose   string `json:"purpose,omitempty"`
		Owner     string `json:"owner,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}
	if _, err := identity.ParseSubnet(req.Parent); err != nil {
		h.writeError(w, "Invalid parent block", err.Error(), http.StatusBadRequest)
		return
	}
	if req.PrefixLen <= 0 {
		h.writeError(w, "Prefix length required", "", http.StatusBadRequest)
		return
	}

	block, err := h.svc.AllocateSubnet(r.Context(), domain.AllocateSubnet{
		Meta:      req.meta(),
		Parent:    req.Parent,
		PrefixLen: req.PrefixLen,
		Purpose:   req.Purpose,
		Owner:     identity.AggregateID(req.Owner),
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, map[string]string{
		"parent": req.Parent,
		"block":  block,
	}, http.StatusCreated)
}

// ReleaseSubnet returns a block to its parent
func (h *Handler) ReleaseSubnet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		envelopeFields
		Parent string `json:"parent"`
		Block  string `json:"block"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}
	if _, err := identity.ParseSubnet(req.Parent); err != nil {
		h.writeError(w, "Invalid parent block", err.Error(), http.StatusBadRequest)
		return
	}
	if _, err := identity.ParseSubnet(req.Block); err != nil {
		h.writeError(w, "Invalid block", err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.svc.ReleaseSubnet(r.Context(), domain.ReleaseSubnet{
		Meta:   req.meta(),
		Parent: req.Parent,
		Block:  req.Block,
	}); err != nil {
		h.writeDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListAllocations returns the current allocation set of a parent block.
// The parent CIDR arrives as a query parameter because slashes do not
// survive path segments.
func (h *Handler) ListAllocations(w http.ResponseWriter, r *http.Request) {
	parent, err := identity.ParseSubnet(r.URL.Query().Get("parent"))
	if err != nil {
		h.writeError(w, "Invalid parent block", err.Error(), http.StatusBadRequest)
		return
	}

	blocks, err := h.svc.Allocator().Allocated(r.Context(), parent)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	out := make([]string, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, b.String())
	}
	h.writeJSON(w, map[string]any{
		"parent": parent.String(),
		"blocks": out,
	}, http.StatusOK)
}
