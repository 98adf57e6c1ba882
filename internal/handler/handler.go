package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"netfabric/internal/domain"
	"netfabric/internal/eventlog"
	"netfabric/internal/identity"
	"netfabric/internal/ipam"
	"netfabric/internal/repository"
	"netfabric/internal/service"
)

// Handler handles API requests
type Handler struct {
	svc *service.NetworkService
}

// New creates a new API handler
func New(svc *service.NetworkService) *Handler {
	return &Handler{svc: svc}
}

// Error response structure
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// statusFor maps the domain error taxonomy onto HTTP status codes.
// Recoverable rejections are client-visible conflicts; integrity
// violations are server-side failures that must surface loudly.
func statusFor(err error) int {
	var (
		invalid    *domain.InvalidTransitionError
		conflict   *eventlog.ConcurrencyConflictError
		notFound   *repository.AggregateNotFoundError
		exhausted  *ipam.NoAvailableSubnetError
		notAllowed *service.ParentNotAllowedError
	)
	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &invalid), errors.As(err, &conflict),
		errors.As(err, &exhausted), errors.As(err, &notAllowed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("Internal error: %v", err)
	}
	if eventlog.IsIntegrityViolation(err) {
		log.Printf("Integrity violation surfaced to client: %v", err)
	}
	h.writeError(w, http.StatusText(status), err.Error(), status)
}

func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Failed to encode JSON: %v", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, error, details string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Details: details,
	}); err != nil {
		log.Printf("Failed to encode error response: %v", err)
	}
}

// envelope resolves the command's message identity from optional
// request fields: a request carrying correlation and causation ids
// joins an existing operation, anything else starts a new one.
type envelopeFields struct {
	CorrelationID string `json:"correlation_id,omitempty"`
	CausationID   string `json:"causation_id,omitempty"`
}

func (f envelopeFields) meta() domain.Meta {
	if f.CorrelationID != "" && f.CausationID != "" {
		return domain.Meta{Envelope: identity.Envelope{
			ID:            identity.NewMessageID(),
			CorrelationID: identity.CorrelationID(f.CorrelationID),
			CausationID:   identity.CausationID(f.CausationID),
		}}
	}
	return domain.NewMeta()
}

// eventView is the JSON projection of one stored event.
type eventView struct {
	ID            string         `json:"id"`
	AggregateID   string         `json:"aggregate_id"`
	Sequence      uint64         `json:"sequence"`
	Kind          string         `json:"kind"`
	Payload       map[string]any `json:"payload,omitempty"`
	ContentID     string         `json:"content_id"`
	PrevContentID string         `json:"prev_content_id"`
	CorrelationID string         `json:"correlation_id"`
	CausationID   string         `json:"causation_id"`
	RecordedAt    string         `json:"recorded_at"`
}

func viewEvents(events []eventlog.Event) []eventView {
	out := make([]eventView, 0, len(events))
	for _, ev := range events {
		v := eventView{
			ID:            string(ev.ID),
			AggregateID:   string(ev.AggregateID),
			Sequence:      ev.Sequence,
			Kind:          ev.Kind,
			ContentID:     ev.ContentID.String(),
			PrevContentID: ev.PrevContentID.String(),
			CorrelationID: string(ev.CorrelationID),
			CausationID:   string(ev.CausationID),
			RecordedAt:    ev.RecordedAt.Format(time.RFC3339Nano),
		}
		var payload map[string]any
		if err := ev.DecodePayload(&payload); err == nil {
			v.Payload = payload
		}
		out = append(out, v)
	}
	return out
}
