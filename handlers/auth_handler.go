package handlers

import (
	"encoding/json"
	"net/http"

	"saveher-server/middleware"
	"saveher-server/models"
	"saveher-server/services"
	"saveher-server/utils/errors"
)

type AuthHandler struct {
	userService *services.UserService
	jwtSecret   string
}

func NewAuthHandler(userService *services.UserService, jwtSecret string) *AuthHandler {
	return &AuthHandler{userService: userService, jwtSecret: jwtSecret}
}

type authResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

func (h *AuthHandler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var input services.RegisterInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		middleware.WriteError(w, errors.ErrInvalidInput)
		return
	}

	token, user, err := h.userService.Register(r.Context(), h.jwtSecret, input)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, authResponse{Token: token, User: user})
}

func (h *AuthHandler) LoginUser(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Email    string `json:"email_address"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		middleware.WriteError(w, errors.ErrInvalidInput)
		return
	}
	if input.Email == "" || input.Password == "" {
		middleware.WriteError(w, errors.NewAPIError("VALIDATION_ERROR", "Email and password are required", http.StatusBadRequest))
		return
	}

	token, user, err := h.userService.Login(r.Context(), h.jwtSecret, input.Email, input.Password)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, authResponse{Token: token, User: user})
}
