package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tmarren/shadow-core/internal/shadow"
	"github.com/tmarren/shadow-core/internal/thing"
)

// thingRequest is the request body for creating or patching a thing.
type thingRequest struct {
	ID      string  `json:"id"`
	Name    *string `json:"name"`
	Address *string `json:"address"`
}

// handleListThings returns all registered things.
func (s *Server) handleListThings(w http.ResponseWriter, r *http.Request) {
	things, err := s.things.List(r.Context())
	if err != nil {
		s.logger.Error("listing things", "error", err)
		writeInternalError(w, "failed to list things")
		return
	}
	if things == nil {
		things = []thing.Thing{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"things": things})
}

// handleCreateThing registers a new thing.
//
// Creation only touches the registry; the caller attaches a shadow device
// by adding the thing to configuration and restarting, or via a future
// hot-attach endpoint.
func (s *Server) handleCreateThing(w http.ResponseWriter, r *http.Request) {
	var req thingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	t := thing.Thing{ID: req.ID}
	if req.Name != nil {
		t.Name = *req.Name
	}
	if req.Address != nil {
		t.Address = *req.Address
	}

	err := s.things.Create(r.Context(), &t)
	switch {
	case errors.Is(err, thing.ErrInvalidID):
		writeBadRequest(w, err.Error())
	case errors.Is(err, thing.ErrExists):
		writeError(w, http.StatusConflict, ErrCodeConflict, "thing already exists")
	case err != nil:
		s.logger.Error("creating thing", "thing_id", req.ID, "error", err)
		writeInternalError(w, "failed to create thing")
	default:
		writeJSON(w, http.StatusCreated, t)
	}
}

// handleGetThing returns a single thing by ID.
func (s *Server) handleGetThing(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	t, err := s.things.GetByID(r.Context(), id)
	switch {
	case errors.Is(err, thing.ErrNotFound), errors.Is(err, thing.ErrInvalidID):
		writeNotFound(w, "thing not found")
	case err != nil:
		s.logger.Error("getting thing", "thing_id", id, "error", err)
		writeInternalError(w, "failed to get thing")
	default:
		writeJSON(w, http.StatusOK, t)
	}
}

// handleUpdateThing patches a thing's name and address.
func (s *Server) handleUpdateThing(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req thingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	t, err := s.things.GetByID(r.Context(), id)
	if errors.Is(err, thing.ErrNotFound) || errors.Is(err, thing.ErrInvalidID) {
		writeNotFound(w, "thing not found")
		return
	}
	if err != nil {
		s.logger.Error("getting thing for update", "thing_id", id, "error", err)
		writeInternalError(w, "failed to update thing")
		return
	}

	if req.Name != nil {
		t.Name = *req.Name
	}
	if req.Address != nil {
		t.Address = *req.Address
	}

	if err := s.things.Update(r.Context(), t); err != nil {
		s.logger.Error("updating thing", "thing_id", id, "error", err)
		writeInternalError(w, "failed to update thing")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// handleDeleteThing removes a thing from the registry. The live shadow
// device, if any, keeps running until restart.
func (s *Server) handleDeleteThing(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	err := s.things.Delete(r.Context(), id)
	switch {
	case errors.Is(err, thing.ErrNotFound), errors.Is(err, thing.ErrInvalidID):
		writeNotFound(w, "thing not found")
	case err != nil:
		s.logger.Error("deleting thing", "thing_id", id, "error", err)
		writeInternalError(w, "failed to delete thing")
	default:
		writeJSON(w, http.StatusNoContent, nil)
	}
}

// handleGetState returns the thing's current merged shadow document,
// suspending until the initial snapshot has resolved or the deadline
// passes.
func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dev, ok := s.fleet.Device(id)
	if !ok {
		writeNotFound(w, "no shadow device for thing")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), stateRequestTimeout)
	defer cancel()

	doc, err := dev.CurrentState(ctx)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnsynced,
			"shadow not yet synchronized")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"thing_id": id,
		"state":    doc.Any(),
	})
}

// handleSetState submits a desired-state update and reports its outcome.
//
// The request body is the desired sub-document. The response maps the
// update result onto HTTP status codes: acknowledged updates return 200
// with the acknowledged state, remote rejections return 409, and deadline
// expiry returns 504.
func (s *Server) handleSetState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dev, ok := s.fleet.Device(id)
	if !ok {
		writeNotFound(w, "no shadow device for thing")
		return
	}

	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	desired, err := shadow.FromAny(raw)
	if err != nil {
		writeBadRequest(w, "malformed desired state: "+err.Error())
		return
	}

	select {
	case res := <-dev.Update(desired):
		s.writeUpdateResult(w, id, res)
	case <-r.Context().Done():
		// Client went away; the update continues in the background.
	}
}

// writeUpdateResult maps an update outcome onto an HTTP response.
func (s *Server) writeUpdateResult(w http.ResponseWriter, thingID string, res shadow.Result) {
	switch res.Status {
	case shadow.StatusAcknowledged:
		writeJSON(w, http.StatusOK, map[string]any{
			"thing_id": thingID,
			"status":   res.Status.String(),
			"state": map[string]any{
				"reported": res.State.Reported.Any(),
				"desired":  res.State.Desired.Any(),
			},
		})
	case shadow.StatusTimedOut:
		writeError(w, http.StatusGatewayTimeout, ErrCodeTimeout,
			"update was not acknowledged in time")
	default:
		if errors.Is(res.Err, shadow.ErrUpdateRejected) {
			writeError(w, http.StatusConflict, ErrCodeRejected, res.Err.Error())
			return
		}
		if errors.Is(res.Err, shadow.ErrNoConnection) {
			writeError(w, http.StatusServiceUnavailable, ErrCodeUnsynced,
				"transport not connected")
			return
		}
		s.logger.Error("shadow update failed", "thing_id", thingID, "error", res.Err)
		writeInternalError(w, "update failed")
	}
}
