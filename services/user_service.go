package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"saveher-server/models"
	"saveher-server/utils/errors"
)

const userCacheTTL = 24 * time.Hour

// LocationIndex is what the user service needs from the presence tracker:
// a location ping is persisted to the user record and mirrored into the
// live geo index in one call.
type LocationIndex interface {
	UpdateLocation(ctx context.Context, userID string, c models.Coordinates) error
}

type UserService struct {
	collection  *mongo.Collection
	redisClient *redis.Client
	presence    LocationIndex
	log         *zap.SugaredLogger
}

func NewUserService(collection *mongo.Collection, redisClient *redis.Client, presence LocationIndex, log *zap.SugaredLogger) *UserService {
	return &UserService{
		collection:  collection,
		redisClient: redisClient,
		presence:    presence,
		log:         log,
	}
}

// EnsureIndexes creates the unique email index. Called once at startup.
func (s *UserService) EnsureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email_address", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

// GetUser retrieves a user from Redis or MongoDB
func (s *UserService) GetUser(ctx context.Context, userID string) (models.User, error) {
	var user models.User

	userJSON, err := s.redisClient.Get(ctx, "user:"+userID).Result()
	if err == nil {
		if err := json.Unmarshal([]byte(userJSON), &user); err == nil {
			return user, nil
		}
		s.log.Warnw("corrupt user cache entry", "user_id", userID)
	}

	err = s.collection.FindOne(ctx, bson.M{"public_id": userID}).Decode(&user)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return models.User{}, errors.ErrNotFound
		}
		return models.User{}, errors.Wrap(err, "DB_ERROR", "Failed to look up user", errors.ErrInternal.Status)
	}

	s.cacheUser(ctx, user)
	return user, nil
}

// Summaries resolves a list of user ids to name+phone views, in the order
// given. Unknown ids are skipped rather than failing the whole list.
func (s *UserService) Summaries(ctx context.Context, userIDs []string) ([]models.UserSummary, error) {
	summaries := make([]models.UserSummary, 0, len(userIDs))
	for _, id := range userIDs {
		user, err := s.GetUser(ctx, id)
		if err != nil {
			s.log.Warnw("skipping unknown user in summary list", "user_id", id)
			continue
		}
		summaries = append(summaries, user.Summary())
	}
	return summaries, nil
}

type ProfileUpdate struct {
	Name              string   `json:"name"`
	EmergencyContacts []string `json:"emergency_contact"`
}

func (s *UserService) UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (models.User, error) {
	if upd.Name == "" {
		return models.User{}, errors.NewAPIError("VALIDATION_ERROR", "Name is required", errors.ErrInvalidInput.Status)
	}
	if len(upd.EmergencyContacts) > 2 {
		return models.User{}, errors.NewAPIError("VALIDATION_ERROR", "At most two emergency contacts are allowed", errors.ErrInvalidInput.Status)
	}

	res, err := s.collection.UpdateOne(ctx, bson.M{"public_id": userID}, bson.M{
		"$set": bson.M{
			"name":              upd.Name,
			"emergency_contact": upd.EmergencyContacts,
		},
	})
	if err != nil {
		return models.User{}, errors.Wrap(err, "DB_ERROR", "Failed to update profile", errors.ErrInternal.Status)
	}
	if res.MatchedCount == 0 {
		return models.User{}, errors.ErrNotFound
	}

	// Drop the stale cache entry before re-reading.
	s.redisClient.Del(ctx, "user:"+userID)
	return s.GetUser(ctx, userID)
}

// LocationPing persists the user's coordinates and mirrors them into the
// presence geo index.
func (s *UserService) LocationPing(ctx context.Context, userID string, c models.Coordinates) error {
	if !c.Valid() {
		return errors.ErrInvalidInput
	}

	res, err := s.collection.UpdateOne(ctx, bson.M{"public_id": userID}, bson.M{
		"$set": bson.M{"last_location": models.NewGeoPoint(c.Latitude, c.Longitude)},
	})
	if err != nil {
		s.log.Errorw("failed to persist location", "user_id", userID, "error", err)
		return errors.Wrap(err, "DB_ERROR", "Failed to update location", errors.ErrInternal.Status)
	}
	if res.MatchedCount == 0 {
		return errors.ErrNotFound
	}

	s.redisClient.Del(ctx, "user:"+userID)
	return s.presence.UpdateLocation(ctx, userID, c)
}

func (s *UserService) cacheUser(ctx context.Context, user models.User) {
	userJSON, err := json.Marshal(user)
	if err != nil {
		return
	}
	if err := s.redisClient.Set(ctx, "user:"+user.PublicID, userJSON, userCacheTTL).Err(); err != nil {
		s.log.Warnw("failed to cache user", "user_id", user.PublicID, "error", err)
	}
}
