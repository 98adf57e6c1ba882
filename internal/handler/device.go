package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"netfabric/internal/domain"
	"netfabric/internal/identity"
)

// deviceView is the JSON projection of a device aggregate.
type deviceView struct {
	ID            string             `json:"id"`
	Name          string             `json:"name"`
	Vendor        string             `json:"vendor"`
	Model         string             `json:"model"`
	State         string             `json:"state"`
	FailureReason string             `json:"failure_reason,omitempty"`
	Window        *maintenanceWindow `json:"maintenance_window,omitempty"`
	Interfaces    []interfaceView    `json:"interfaces"`
	Version       uint64             `json:"version"`
}

type maintenanceWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type interfaceView struct {
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
	Enabled bool   `json:"enabled"`
}

func viewDevice(d *domain.Device) deviceView {
	v := deviceView{
		ID:            string(d.ID),
		Name:          d.Name,
		Vendor:        d.Vendor,
		Model:         d.Model,
		State:         string(d.State),
		FailureReason: d.FailureReason,
		Interfaces:    make([]interfaceView, 0, len(d.Interfaces)),
		Version:       d.Version,
	}
	if d.State == domain.StateMaintenance {
		v.Window = &maintenanceWindow{Start: d.Window.Start, End: d.Window.End}
	}
	for _, iface := range d.Interfaces {
		v.Interfaces = append(v.Interfaces, interfaceView(iface))
	}
	return v
}

// RegisterDevice creates a new device aggregate
func (h *Handler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		envelopeFields
		Name   string `json:"name"`
		Vendor string `json:"vendor"`
		Model  string `json:"model"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		h.writeError(w, "Device name required", "", http.StatusBadRequest)
		return
	}

	cmd := domain.RegisterDevice{
		Meta:     req.meta(),
		DeviceID: identity.NewDeviceID(),
		Name:     req.Name,
		Vendor:   req.Vendor,
		Model:    req.Model,
	}
	d, err := h.svc.RegisterDevice(r.Context(), cmd)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, viewDevice(d), http.StatusCreated)
}

// GetDevice returns the current state of one device
func (h *Handler) GetDevice(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, "Device ID required", "", http.StatusBadRequest)
		return
	}

	d, err := h.svc.GetDevice(r.Context(), identity.DeviceID(id))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, viewDevice(d), http.StatusOK)
}

// GetDeviceEvents returns the device's full event stream
func (h *Handler) GetDeviceEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, "Device ID required", "", http.StatusBadRequest)
		return
	}

	events, err := h.svc.History(r.Context(), identity.AggregateID(id))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if len(events) == 0 {
		h.writeError(w, "Not found", fmt.Sprintf("no events for device %s", id), http.StatusNotFound)
		return
	}

	h.writeJSON(w, viewEvents(events), http.StatusOK)
}

// deviceCommandRequest is the body of a lifecycle command
type deviceCommandRequest struct {
	envelopeFields
	Command string `json:"command"`

	// FailConfiguration
	Reason string `json:"reason,omitempty"`

	// EnterMaintenance
	WindowStart time.Time `json:"window_start,omitempty"`
	WindowEnd   time.Time `json:"window_end,omitempty"`

	// RenameDevice
	Name string `json:"name,omitempty"`

	// ConfigureInterface
	Interface string `json:"interface,omitempty"`
	Address   string `json:"address,omitempty"`
	Enabled   bool   `json:"enabled,omitempty"`
}

// DeviceCommand executes one lifecycle command against a device
func (h *Handler) DeviceCommand(w http.ResponseWriter, r *http.Request) {
	id := identity.DeviceID(r.PathValue("id"))
	if id == "" {
		h.writeError(w, "Device ID required", "", http.StatusBadRequest)
		return
	}

	var req deviceCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}

	meta := req.meta()
	var (
		d   *domain.Device
		err error
	)
	switch req.Command {
	case "StartProvisioning":
		d, err = h.svc.StartProvisioning(r.Context(), domain.StartProvisioning{Meta: meta, DeviceID: id})
	case "CompleteProvisioning":
		d, err = h.svc.CompleteProvisioning(r.Context(), domain.CompleteProvisioning{Meta: meta, DeviceID: id})
	case "ConfigureInterface":
		if req.Interface == "" {
			h.writeError(w, "Interface name required", "", http.StatusBadRequest)
			return
		}
		d, err = h.svc.ConfigureInterface(r.Context(), domain.ConfigureInterface{
			Meta: meta, DeviceID: id, Interface: req.Interface, Address: req.Address, Enabled: req.Enabled,
		})
	case "CompleteConfiguration":
		d, err = h.svc.CompleteConfiguration(r.Context(), domain.CompleteConfiguration{Meta: meta, DeviceID: id})
	case "FailConfiguration":
		d, err = h.svc.FailConfiguration(r.Context(), domain.FailConfiguration{Meta: meta, DeviceID: id, Reason: req.Reason})
	case "RetryConfiguration":
		d, err = h.svc.RetryConfiguration(r.Context(), domain.RetryConfiguration{Meta: meta, DeviceID: id})
	case "EnterMaintenance":
		d, err = h.svc.EnterMaintenance(r.Context(), domain.EnterMaintenance{
			Meta: meta, DeviceID: id, WindowStart: req.WindowStart, WindowEnd: req.WindowEnd,
		})
	case "ExitMaintenance":
		d, err = h.svc.ExitMaintenance(r.Context(), domain.ExitMaintenance{Meta: meta, DeviceID: id})
	case "StartDecommissioning":
		d, err = h.svc.StartDecommissioning(r.Context(), domain.StartDecommissioning{Meta: meta, DeviceID: id})
	case "CompleteDecommissioning":
		d, err = h.svc.CompleteDecommissioning(r.Context(), domain.CompleteDecommissioning{Meta: meta, DeviceID: id})
	case "RenameDevice":
		if req.Name == "" {
			h.writeError(w, "Device name required", "", http.StatusBadRequest)
			return
		}
		d, err = h.svc.RenameDevice(r.Context(), domain.RenameDevice{Meta: meta, DeviceID: id, Name: req.Name})
	default:
		h.writeError(w, "Unknown command", fmt.Sprintf("command %q is not recognized", req.Command), http.StatusBadRequest)
		return
	}

	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, viewDevice(d), http.StatusOK)
}
