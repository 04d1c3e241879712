package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"saveher-server/middleware"
	"saveher-server/services"
	"saveher-server/utils/errors"
)

type UserHandler struct {
	userService *services.UserService
}

func NewUserHandler(userService *services.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// GetUser returns the caller's own profile. The path id must match the
// token identity.
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	callerID := middleware.UserID(r.Context())
	targetID := mux.Vars(r)["user_id"]
	if targetID != callerID {
		middleware.WriteError(w, errors.ErrNotOwner)
		return
	}

	user, err := h.userService.GetUser(r.Context(), targetID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, user)
}

func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	callerID := middleware.UserID(r.Context())
	targetID := mux.Vars(r)["user_id"]
	if targetID != callerID {
		middleware.WriteError(w, errors.ErrNotOwner)
		return
	}

	var input services.ProfileUpdate
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		middleware.WriteError(w, errors.ErrInvalidInput)
		return
	}

	user, err := h.userService.UpdateProfile(r.Context(), targetID, input)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, user)
}
