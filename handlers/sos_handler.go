package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"saveher-server/middleware"
	"saveher-server/models"
	"saveher-server/services"
	"saveher-server/utils/errors"
)

type SOSHandler struct {
	sosService  *services.SOSService
	userService *services.UserService
}

func NewSOSHandler(sosService *services.SOSService, userService *services.UserService) *SOSHandler {
	return &SOSHandler{sosService: sosService, userService: userService}
}

// TriggerSOS opens a new alert for the caller.
func (h *SOSHandler) TriggerSOS(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Category    string              `json:"category"`
		Description string              `json:"description"`
		Coordinates *models.Coordinates `json:"coordinates"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		middleware.WriteError(w, errors.ErrInvalidInput)
		return
	}

	alert, err := h.sosService.Trigger(r.Context(), middleware.UserID(r.Context()), input.Category, input.Description, input.Coordinates)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, alert)
}

// CancelSOS closes the caller's active alert.
func (h *SOSHandler) CancelSOS(w http.ResponseWriter, r *http.Request) {
	alert, err := h.sosService.Cancel(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, alert)
}

// IsSOS reports whether the user currently has an active alert; the app
// restores its SOS screen state from this on reconnect.
func (h *SOSHandler) IsSOS(w http.ResponseWriter, r *http.Request) {
	active, err := h.sosService.IsSOS(r.Context(), mux.Vars(r)["user_id"])
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, active)
}

// AcceptedCount is the owner's polling endpoint for "how many are coming".
func (h *SOSHandler) AcceptedCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.sosService.AcceptedCount(r.Context(), mux.Vars(r)["user_id"])
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, count)
}

// AlertDetails lists the alerts visible to a user, newest first.
func (h *SOSHandler) AlertDetails(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.sosService.AlertsVisibleTo(r.Context(), mux.Vars(r)["user_id"])
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, alerts)
}

type responseInput struct {
	SOSID string `json:"sos_id"`
}

func (h *SOSHandler) AcceptAlert(w http.ResponseWriter, r *http.Request) {
	h.recordResponse(w, r, models.DecisionAccept)
}

func (h *SOSHandler) RejectAlert(w http.ResponseWriter, r *http.Request) {
	h.recordResponse(w, r, models.DecisionReject)
}

func (h *SOSHandler) recordResponse(w http.ResponseWriter, r *http.Request, decision models.ResponseDecision) {
	var input responseInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil || input.SOSID == "" {
		middleware.WriteError(w, errors.ErrInvalidInput)
		return
	}

	// The responder identity comes from the token, never the request body.
	count, err := h.sosService.RecordResponse(r.Context(), input.SOSID, middleware.UserID(r.Context()), decision)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]int{"accepted_count": count})
}

// AcceptedResponders lists who accepted an alert, with phone numbers so the
// owner can call them.
func (h *SOSHandler) AcceptedResponders(w http.ResponseWriter, r *http.Request) {
	responders, err := h.sosService.AcceptedResponders(r.Context(), mux.Vars(r)["sos_id"])
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, responders)
}

// OwnerLocation returns the live coordinates of an alert owner so a
// responder can navigate to them.
func (h *SOSHandler) OwnerLocation(w http.ResponseWriter, r *http.Request) {
	ownerID := mux.Vars(r)["user_id"]

	active, err := h.sosService.IsSOS(r.Context(), ownerID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if !active {
		middleware.WriteError(w, errors.ErrNotFound)
		return
	}

	owner, err := h.userService.GetUser(r.Context(), ownerID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if owner.LastLocation == nil {
		middleware.WriteError(w, errors.ErrNotFound)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, models.Coordinates{
		Latitude:  owner.LastLocation.Latitude(),
		Longitude: owner.LastLocation.Longitude(),
	})
}

// ActiveNearby lists active alerts around the caller for the map overlay.
func (h *SOSHandler) ActiveNearby(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.sosService.ActiveNearby(r.Context(), mux.Vars(r)["user_id"])
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, alerts)
}
