package services

import (
	"context"
	"math"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"saveher-server/models"
	"saveher-server/utils/errors"
)

const (
	geoKey    = "users:geo"
	onlineKey = "presence:online"
)

// PresenceService tracks each user's last known coordinates and whether any
// of their sessions is currently connected. Location writes are
// last-writer-wins; no history is retained.
type PresenceService struct {
	redisClient *redis.Client
	log         *zap.SugaredLogger
}

type NearbyUser struct {
	UserID    string  `json:"user_id"`
	Distance  float64 `json:"distance"` // meters
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func NewPresenceService(redisClient *redis.Client, log *zap.SugaredLogger) *PresenceService {
	return &PresenceService{redisClient: redisClient, log: log}
}

func (s *PresenceService) UpdateLocation(ctx context.Context, userID string, c models.Coordinates) error {
	if !c.Valid() {
		return errors.ErrInvalidInput
	}
	err := s.redisClient.GeoAdd(ctx, geoKey, &redis.GeoLocation{
		Name:      userID,
		Longitude: c.Longitude,
		Latitude:  c.Latitude,
	}).Err()
	if err != nil {
		s.log.Errorw("failed to update geo index", "user_id", userID, "error", err)
		return errors.Wrap(err, "PRESENCE_ERROR", "Failed to update location", errors.ErrInternal.Status)
	}
	return nil
}

func (s *PresenceService) MarkConnected(ctx context.Context, userID string) error {
	return s.redisClient.SAdd(ctx, onlineKey, userID).Err()
}

// MarkDisconnected clears the online flag only; the last known coordinates
// stay in the geo index so the user remains addressable as "last seen here".
func (s *PresenceService) MarkDisconnected(ctx context.Context, userID string) error {
	return s.redisClient.SRem(ctx, onlineKey, userID).Err()
}

func (s *PresenceService) IsOnline(ctx context.Context, userID string) (bool, error) {
	return s.redisClient.SIsMember(ctx, onlineKey, userID).Result()
}

// Nearby returns every tracked user within radiusMeters of center, boundary
// inclusive, closest first. exclude filters out the querying user.
func (s *PresenceService) Nearby(ctx context.Context, center models.Coordinates, radiusMeters float64, exclude string) ([]NearbyUser, error) {
	if !center.Valid() || radiusMeters <= 0 {
		return nil, errors.ErrInvalidInput
	}
	geoResults, err := s.redisClient.GeoRadius(ctx, geoKey, center.Longitude, center.Latitude, &redis.GeoRadiusQuery{
		Radius:    radiusMeters,
		Unit:      "m",
		WithCoord: true,
		WithDist:  true,
		Sort:      "ASC",
	}).Result()
	if err != nil {
		s.log.Errorw("geo radius query failed", "error", err)
		return nil, errors.Wrap(err, "PRESENCE_ERROR", "Failed to query nearby users", errors.ErrInternal.Status)
	}

	var users []NearbyUser
	for _, res := range geoResults {
		if res.Name == exclude {
			continue
		}
		users = append(users, NearbyUser{
			UserID:    res.Name,
			Distance:  res.Dist,
			Latitude:  res.Latitude,
			Longitude: res.Longitude,
		})
	}
	return users, nil
}

// NearbyIDs is the delivery-set form of Nearby used by notification fan-out.
func (s *PresenceService) NearbyIDs(ctx context.Context, center models.Coordinates, radiusMeters float64, exclude string) ([]string, error) {
	users, err := s.Nearby(ctx, center, radiusMeters, exclude)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.UserID)
	}
	return ids, nil
}

const earthRadiusMeters = 6371000

// Haversine returns the great-circle distance in meters between two points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
