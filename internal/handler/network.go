package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"netfabric/internal/domain"
	"netfabric/internal/identity"
)

// networkObjectView is the JSON projection of a network object.
type networkObjectView struct {
	ID      string   `json:"id"`
	Kind    string   `json:"kind"`
	Name    string   `json:"name"`
	VlanID  uint16   `json:"vlan_id,omitempty"`
	Driver  string   `json:"driver,omitempty"`
	Subnet  string   `json:"subnet,omitempty"`
	Members []string `json:"members"`
	Version uint64   `json:"version"`
}

func viewNetworkObject(n *domain.NetworkObject) networkObjectView {
	return networkObjectView{
		ID:      string(n.ID),
		Kind:    string(n.Kind),
		Name:    n.Name,
		VlanID:  n.VlanID.Value(),
		Driver:  n.Driver,
		Subnet:  n.Subnet,
		Members: n.Members(),
		Version: n.Version,
	}
}

// CreateVlan creates a VLAN, optionally carving a subnet out of a
// parent block and binding it in the same operation
func (h *Handler) CreateVlan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		envelopeFields
		Name      string `json:"name"`
		VlanID    uint16 `json:"vlan_id"`
		Parent    string `json:"parent,omitempty"`
		PrefixLen int    `json:"prefix_len,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		h.writeError(w, "VLAN name required", "", http.StatusBadRequest)
		return
	}
	vid, err := identity.NewVlanID(req.VlanID)
	if err != nil {
		h.writeError(w, "Invalid VLAN ID", err.Error(), http.StatusBadRequest)
		return
	}
	if req.Parent != "" {
		if _, err := identity.ParseSubnet(req.Parent); err != nil {
			h.writeError(w, "Invalid parent block", err.Error(), http.StatusBadRequest)
			return
		}
	}

	n, err := h.svc.CreateVlan(r.Context(), domain.CreateVlan{
		Meta:            req.meta(),
		NetworkObjectID: identity.NewNetworkObjectID(),
		Name:            req.Name,
		VlanID:          vid,
		Parent:          req.Parent,
		PrefixLen:       req.PrefixLen,
	})
	if err != nil {
		if n != nil {
			// The VLAN exists but allocation failed; report the partial
			// result alongside the conflict.
			h.writeError(w, "VLAN created but subnet allocation failed", err.Error(), statusFor(err))
			return
		}
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, viewNetworkObject(n), http.StatusCreated)
}

// CreateContainerNetwork creates a container network object
func (h *Handler) CreateContainerNetwork(w http.ResponseWriter, r *http.Request) {
	var req struct {
		envelopeFields
		Name   string `json:"name"`
		Driver string `json:"driver"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		h.writeError(w, "Network name required", "", http.StatusBadRequest)
		return
	}
	if req.Driver == "" {
		req.Driver = "bridge"
	}

	n, err := h.svc.CreateContainerNetwork(r.Context(), domain.CreateContainerNetwork{
		Meta:            req.meta(),
		NetworkObjectID: identity.NewNetworkObjectID(),
		Name:            req.Name,
		Driver:          req.Driver,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, viewNetworkObject(n), http.StatusCreated)
}

// GetNetworkObject returns the current state of one network object
func (h *Handler) GetNetworkObject(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, "Network object ID required", "", http.StatusBadRequest)
		return
	}

	n, err := h.svc.GetNetworkObject(r.Context(), identity.NetworkObjectID(id))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, viewNetworkObject(n), http.StatusOK)
}

// GetNetworkObjectEvents returns the object's full event stream
func (h *Handler) GetNetworkObjectEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, "Network object ID required", "", http.StatusBadRequest)
		return
	}

	events, err := h.svc.History(r.Context(), identity.AggregateID(id))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if len(events) == 0 {
		h.writeError(w, "Not found", fmt.Sprintf("no events for network object %s", id), http.StatusNotFound)
		return
	}

	h.writeJSON(w, viewEvents(events), http.StatusOK)
}

// AddMember joins a port or container to a network object
func (h *Handler) AddMember(w http.ResponseWriter, r *http.Request) {
	id := identity.NetworkObjectID(r.PathValue("id"))
	if id == "" {
		h.writeError(w, "Network object ID required", "", http.StatusBadRequest)
		return
	}

	var req struct {
		envelopeFields
		Member string `json:"member"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}
	if req.Member == "" {
		h.writeError(w, "Member name required", "", http.StatusBadRequest)
		return
	}

	n, err := h.svc.AddMember(r.Context(), domain.AddMember{Meta: req.meta(), NetworkObjectID: id, Member: req.Member})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, viewNetworkObject(n), http.StatusOK)
}

// RemoveMember removes a port or container from a network object
func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	id := identity.NetworkObjectID(r.PathValue("id"))
	member := r.PathValue("member")
	if id == "" || member == "" {
		h.writeError(w, "Network object ID and member required", "", http.StatusBadRequest)
		return
	}

	var fields envelopeFields
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
			h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
			return
		}
	}

	n, err := h.svc.RemoveMember(r.Context(), domain.RemoveMember{Meta: fields.meta(), NetworkObjectID: id, Member: member})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, viewNetworkObject(n), http.StatusOK)
}
