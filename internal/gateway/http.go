package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/KofiRusu/neonhub-go/internal/channel"
	"github.com/KofiRusu/neonhub-go/internal/compose"
	"github.com/KofiRusu/neonhub-go/internal/identity"
	"github.com/KofiRusu/neonhub-go/internal/intake"
	"github.com/KofiRusu/neonhub-go/internal/store"
)

const maxBodyBytes = 1 << 20

func (g *Gateway) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", g.handleHealth)
	mux.HandleFunc("POST /api/resolve", g.handleResolve)
	mux.HandleFunc("POST /api/ingest", g.handleIngest)
	mux.HandleFunc("POST /api/compose", g.handleCompose)
	mux.HandleFunc("POST /api/guardrail", g.handleGuardrail)
	mux.HandleFunc("POST /api/send", g.handleSend)
	mux.HandleFunc("GET /api/persons/{id}", g.handlePerson)
	mux.HandleFunc("POST /api/persons/{id}/notes", g.handleNote)
	mux.HandleFunc("GET /api/persons/{id}/topics", g.handleTopics)
	mux.HandleFunc("GET /api/persons/{id}/events", g.handleEvents)
	return mux
}

func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (g *Gateway) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		identity.Descriptor
		CreateIfMissing *bool `json:"createIfMissing"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.OrgID == "" {
		req.OrgID = g.cfg.Organization
	}
	if req.CreateIfMissing != nil && !*req.CreateIfMissing {
		req.SkipCreate = true
	}

	personID, err := g.resolver.Resolve(r.Context(), req.Descriptor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"personId": personID})
}

func (g *Gateway) handleIngest(w http.ResponseWriter, r *http.Request) {
	var raw intake.RawEvent
	if !decodeBody(w, r, &raw) {
		return
	}
	if raw.OrgID == "" {
		raw.OrgID = g.cfg.Organization
	}

	if err := g.pipeline.Ingest(r.Context(), raw); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true})
}

func (g *Gateway) handleCompose(w http.ResponseWriter, r *http.Request) {
	var args compose.Args
	if !decodeBody(w, r, &args) {
		return
	}

	result, err := g.composer.Compose(r.Context(), args)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (g *Gateway) handleGuardrail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text    string `json:"text"`
		Channel string `json:"channel"`
		BrandID string `json:"brandId,omitempty"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Text == "" || req.Channel == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "text and channel are required"})
		return
	}

	verdict := g.enforcer.Check(r.Context(), req.Text, req.Channel, req.BrandID)
	writeJSON(w, http.StatusOK, verdict)
}

func (g *Gateway) handleSend(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Channel string `json:"channel"`
		channel.SendRequest
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.OrgID == "" {
		req.OrgID = g.cfg.Organization
	}

	sender := g.channels.Sender(req.Channel)
	if sender == nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": fmt.Sprintf("channel %q is not enabled", req.Channel)})
		return
	}

	if err := sender.Send(r.Context(), req.SendRequest); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sent": true})
}

func (g *Gateway) handlePerson(w http.ResponseWriter, r *http.Request) {
	person, err := g.engine.GetPerson(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, person)
}

func (g *Gateway) handleNote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Note string `json:"note"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Note == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "note is required"})
		return
	}

	id, err := g.pipeline.AddNote(r.Context(), r.PathValue("id"), req.Note)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"memoryId": id})
}

func (g *Gateway) handleTopics(w http.ResponseWriter, r *http.Request) {
	topics, err := g.engine.TopTopics(r.PathValue("id"), 20)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, topics)
}

func (g *Gateway) handleEvents(w http.ResponseWriter, r *http.Request) {
	events, err := g.engine.ListEvents(r.PathValue("id"), 50)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json body"})
		return false
	}
	return true
}

// writeError maps domain errors onto status codes: validation to 400,
// unknown records to 404, policy refusals to 403.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, identity.ErrInvalidIdentifier), errors.Is(err, intake.ErrMissingOrg):
		status = http.StatusBadRequest
	case errors.Is(err, identity.ErrPersonNotFound), errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, channel.ErrConsentNotGranted), errors.Is(err, channel.ErrGuardrailViolation):
		status = http.StatusForbidden
	case errors.Is(err, channel.ErrMissingEndpoint):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		log.Printf("[gateway] request failed: %v", err)
	}
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[gateway] write response: %v", err)
	}
}
