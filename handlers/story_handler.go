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

type StoryHandler struct {
	storyService *services.StoryService
}

func NewStoryHandler(storyService *services.StoryService) *StoryHandler {
	return &StoryHandler{storyService: storyService}
}

func (h *StoryHandler) CreateStory(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		middleware.WriteError(w, errors.ErrInvalidInput)
		return
	}

	story, err := h.storyService.CreateStory(r.Context(), middleware.UserID(r.Context()), input.Title, input.Description)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, story)
}

func (h *StoryHandler) AllStories(w http.ResponseWriter, r *http.Request) {
	stories, err := h.storyService.AllStories(r.Context())
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, stories)
}

func (h *StoryHandler) StoriesByUser(w http.ResponseWriter, r *http.Request) {
	stories, err := h.storyService.StoriesByUser(r.Context(), mux.Vars(r)["user_id"])
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, stories)
}

func (h *StoryHandler) DeleteStory(w http.ResponseWriter, r *http.Request) {
	err := h.storyService.DeleteStory(r.Context(), mux.Vars(r)["story_id"], middleware.UserID(r.Context()))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"message": "Story deleted"})
}

// ReportZone accepts anonymous danger-zone reports; no auth on purpose.
func (h *StoryHandler) ReportZone(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Description string              `json:"description"`
		Coordinates *models.Coordinates `json:"coordinates"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		middleware.WriteError(w, errors.ErrInvalidInput)
		return
	}

	zone, err := h.storyService.ReportZone(r.Context(), input.Description, input.Coordinates)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, zone)
}

func (h *StoryHandler) ZoneAlerts(w http.ResponseWriter, r *http.Request) {
	zones, err := h.storyService.ZoneAlerts(r.Context())
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, zones)
}
