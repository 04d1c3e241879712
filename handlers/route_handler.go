package handlers

import (
	"encoding/json"
	"net/http"

	"saveher-server/middleware"
	"saveher-server/models"
	"saveher-server/services"
	"saveher-server/utils/errors"
)

type RouteHandler struct {
	routeService *services.RouteService
}

func NewRouteHandler(routeService *services.RouteService) *RouteHandler {
	return &RouteHandler{routeService: routeService}
}

// SafeRoute proxies the external safe-route planner. Upstream failures come
// back as 502 so the app can show a non-fatal warning.
func (h *RouteHandler) SafeRoute(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Source      *models.Coordinates `json:"source"`
		Destination *models.Coordinates `json:"destination"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil || input.Source == nil || input.Destination == nil {
		middleware.WriteError(w, errors.ErrInvalidInput)
		return
	}

	route, err := h.routeService.SafeRoute(r.Context(), *input.Source, *input.Destination)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, route)
}
