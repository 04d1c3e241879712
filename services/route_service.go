package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"saveher-server/models"
	"saveher-server/utils/errors"
)

// RouteService proxies the externally hosted safe-route planner. The
// upstream is treated as opaque and unreliable: every call is bounded by a
// timeout and failures surface as a non-fatal upstream error.
type RouteService struct {
	baseURL string
	client  *http.Client
	log     *zap.SugaredLogger
}

func NewRouteService(baseURL string, timeout time.Duration, log *zap.SugaredLogger) *RouteService {
	return &RouteService{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		log:     log,
	}
}

type SafeRoute struct {
	Polyline       string  `json:"safest_polyline"`
	DistanceMeters float64 `json:"distance"`
	DurationSecs   float64 `json:"duration"`
}

type safeRouteRequest struct {
	Source      models.Coordinates `json:"source"`
	Destination models.Coordinates `json:"destination"`
}

// SafeRoute asks the planner for the safest path between two points.
func (s *RouteService) SafeRoute(ctx context.Context, source, destination models.Coordinates) (*SafeRoute, error) {
	if !source.Valid() || !destination.Valid() {
		return nil, errors.NewAPIError("VALIDATION_ERROR", "Source and destination coordinates are required", errors.ErrInvalidInput.Status)
	}
	if s.baseURL == "" {
		return nil, errors.NewAPIError("UPSTREAM_ERROR", "Safe route service is not configured", errors.ErrUpstream.Status)
	}

	body, err := json.Marshal(safeRouteRequest{Source: source, Destination: destination})
	if err != nil {
		return nil, errors.Wrap(err, "UPSTREAM_ERROR", "Failed to build route request", errors.ErrUpstream.Status)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/get_safe_route", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "UPSTREAM_ERROR", "Failed to build route request", errors.ErrUpstream.Status)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.log.Warnw("safe route request failed", "error", err)
		return nil, errors.Wrap(err, "UPSTREAM_ERROR", "Safe route service is unavailable", errors.ErrUpstream.Status)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.log.Warnw("safe route service returned error", "status", resp.StatusCode)
		return nil, errors.NewAPIError("UPSTREAM_ERROR", "Safe route service is unavailable", errors.ErrUpstream.Status,
			fmt.Sprintf("upstream status %d", resp.StatusCode))
	}

	var route SafeRoute
	if err := json.NewDecoder(resp.Body).Decode(&route); err != nil {
		return nil, errors.Wrap(err, "UPSTREAM_ERROR", "Safe route service returned a bad response", errors.ErrUpstream.Status)
	}
	if route.Polyline == "" {
		return nil, errors.NewAPIError("UPSTREAM_ERROR", "Safe route service returned no route", errors.ErrUpstream.Status)
	}
	return &route, nil
}
