package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"saveher-server/models"
	"saveher-server/utils/errors"
)

func TestSafeRoute(t *testing.T) {
	src := models.Coordinates{Latitude: 12.90, Longitude: 77.59}
	dst := models.Coordinates{Latitude: 12.95, Longitude: 77.60}

	t.Run("success", func(t *testing.T) {
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, "/get_safe_route", r.URL.Path)

			var req safeRouteRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, src, req.Source)
			assert.Equal(t, dst, req.Destination)

			json.NewEncoder(w).Encode(SafeRoute{Polyline: "abc123", DistanceMeters: 5400, DurationSecs: 3900})
		}))
		defer upstream.Close()

		svc := NewRouteService(upstream.URL, time.Second, zap.NewNop().Sugar())
		route, err := svc.SafeRoute(context.Background(), src, dst)
		require.NoError(t, err)
		assert.Equal(t, "abc123", route.Polyline)
		assert.Equal(t, 5400.0, route.DistanceMeters)
	})

	t.Run("upstream error status", func(t *testing.T) {
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not loaded", http.StatusInternalServerError)
		}))
		defer upstream.Close()

		svc := NewRouteService(upstream.URL, time.Second, zap.NewNop().Sugar())
		_, err := svc.SafeRoute(context.Background(), src, dst)
		require.Error(t, err)
		apiErr := err.(*errors.APIError)
		assert.Equal(t, "UPSTREAM_ERROR", apiErr.Code)
		assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	})

	t.Run("upstream unreachable", func(t *testing.T) {
		svc := NewRouteService("http://127.0.0.1:1", 200*time.Millisecond, zap.NewNop().Sugar())
		_, err := svc.SafeRoute(context.Background(), src, dst)
		require.Error(t, err)
		apiErr := err.(*errors.APIError)
		assert.Equal(t, "UPSTREAM_ERROR", apiErr.Code)
	})

	t.Run("empty route payload", func(t *testing.T) {
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{}`))
		}))
		defer upstream.Close()

		svc := NewRouteService(upstream.URL, time.Second, zap.NewNop().Sugar())
		_, err := svc.SafeRoute(context.Background(), src, dst)
		require.Error(t, err)
	})

	t.Run("invalid coordinates rejected locally", func(t *testing.T) {
		svc := NewRouteService("http://example.invalid", time.Second, zap.NewNop().Sugar())
		_, err := svc.SafeRoute(context.Background(), models.Coordinates{Latitude: 999}, dst)
		require.Error(t, err)
		apiErr := err.(*errors.APIError)
		assert.Equal(t, "VALIDATION_ERROR", apiErr.Code)
	})
}
