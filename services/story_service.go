package services

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"saveher-server/models"
	"saveher-server/utils/errors"
)

// StoryService backs the community Stories tab and the map's danger-zone
// overlay (anonymous reports plus administrator-seeded zones).
type StoryService struct {
	stories *mongo.Collection
	zones   *mongo.Collection
	log     *zap.SugaredLogger
}

func NewStoryService(stories, zones *mongo.Collection, log *zap.SugaredLogger) *StoryService {
	return &StoryService{stories: stories, zones: zones, log: log}
}

type storyDoc struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	OwnerID     string             `bson:"owner_id"`
	Title       string             `bson:"title"`
	Description string             `bson:"description"`
	CreatedAt   time.Time          `bson:"created_at"`
}

func (d storyDoc) toModel() models.Story {
	return models.Story{
		ID:          d.ID.Hex(),
		OwnerID:     d.OwnerID,
		Title:       d.Title,
		Description: d.Description,
		CreatedAt:   d.CreatedAt,
	}
}

func (s *StoryService) CreateStory(ctx context.Context, ownerID, title, description string) (models.Story, error) {
	if title == "" || description == "" {
		return models.Story{}, errors.NewAPIError("VALIDATION_ERROR", "Title and description are required", errors.ErrInvalidInput.Status)
	}
	doc := storyDoc{
		ID:          primitive.NewObjectID(),
		OwnerID:     ownerID,
		Title:       title,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
	if _, err := s.stories.InsertOne(ctx, doc); err != nil {
		return models.Story{}, errors.Wrap(err, "DB_ERROR", "Failed to save story", errors.ErrInternal.Status)
	}
	return doc.toModel(), nil
}

func (s *StoryService) AllStories(ctx context.Context) ([]models.Story, error) {
	return s.findStories(ctx, bson.M{})
}

func (s *StoryService) StoriesByUser(ctx context.Context, ownerID string) ([]models.Story, error) {
	return s.findStories(ctx, bson.M{"owner_id": ownerID})
}

// DeleteStory removes one story; only its author may do so.
func (s *StoryService) DeleteStory(ctx context.Context, storyID, callerID string) error {
	oid, err := primitive.ObjectIDFromHex(storyID)
	if err != nil {
		return errors.ErrNotFound
	}
	res, err := s.stories.DeleteOne(ctx, bson.M{"_id": oid, "owner_id": callerID})
	if err != nil {
		return errors.Wrap(err, "DB_ERROR", "Failed to delete story", errors.ErrInternal.Status)
	}
	if res.DeletedCount == 0 {
		// Distinguish missing from not-owned for a useful error.
		count, err := s.stories.CountDocuments(ctx, bson.M{"_id": oid})
		if err == nil && count > 0 {
			return errors.ErrNotOwner
		}
		return errors.ErrNotFound
	}
	return nil
}

func (s *StoryService) findStories(ctx context.Context, filter bson.M) ([]models.Story, error) {
	cursor, err := s.stories.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, errors.Wrap(err, "DB_ERROR", "Failed to list stories", errors.ErrInternal.Status)
	}
	defer cursor.Close(ctx)

	var docs []storyDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "DB_ERROR", "Failed to decode stories", errors.ErrInternal.Status)
	}
	stories := make([]models.Story, 0, len(docs))
	for _, doc := range docs {
		stories = append(stories, doc.toModel())
	}
	return stories, nil
}

type zoneDoc struct {
	ID          primitive.ObjectID     `bson:"_id,omitempty"`
	Description string                 `bson:"description"`
	Location    *models.GeoPoint       `bson:"location"`
	Source      models.ZoneAlertSource `bson:"source"`
	CreatedAt   time.Time              `bson:"created_at"`
}

// ReportZone records an anonymous danger-zone report. No authentication:
// reporting an unsafe area should not require an account.
func (s *StoryService) ReportZone(ctx context.Context, description string, c *models.Coordinates) (models.ZoneAlert, error) {
	if description == "" || c == nil || !c.Valid() {
		return models.ZoneAlert{}, errors.NewAPIError("VALIDATION_ERROR", "Description and coordinates are required", errors.ErrInvalidInput.Status)
	}
	doc := zoneDoc{
		ID:          primitive.NewObjectID(),
		Description: description,
		Location:    models.NewGeoPoint(c.Latitude, c.Longitude),
		Source:      models.ZoneAlertAnonymous,
		CreatedAt:   time.Now().UTC(),
	}
	if _, err := s.zones.InsertOne(ctx, doc); err != nil {
		return models.ZoneAlert{}, errors.Wrap(err, "DB_ERROR", "Failed to save report", errors.ErrInternal.Status)
	}
	return models.ZoneAlert{
		ID:          doc.ID.Hex(),
		Description: doc.Description,
		Location:    doc.Location,
		Source:      doc.Source,
		CreatedAt:   doc.CreatedAt,
	}, nil
}

// ZoneAlerts returns every zone entry, newest first, for the map overlay.
func (s *StoryService) ZoneAlerts(ctx context.Context) ([]models.ZoneAlert, error) {
	cursor, err := s.zones.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, errors.Wrap(err, "DB_ERROR", "Failed to list zone alerts", errors.ErrInternal.Status)
	}
	defer cursor.Close(ctx)

	var docs []zoneDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "DB_ERROR", "Failed to decode zone alerts", errors.ErrInternal.Status)
	}
	zones := make([]models.ZoneAlert, 0, len(docs))
	for _, doc := range docs {
		zones = append(zones, models.ZoneAlert{
			ID:          doc.ID.Hex(),
			Description: doc.Description,
			Location:    doc.Location,
			Source:      doc.Source,
			CreatedAt:   doc.CreatedAt,
		})
	}
	return zones, nil
}
