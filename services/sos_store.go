package services

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"saveher-server/models"
	"saveher-server/utils/errors"
)

// AlertStore is the persistence boundary for SOS alerts. AppendResponse and
// Close are single conditional updates: the membership and status checks
// happen inside the same atomic operation as the write, never as a separate
// read.
type AlertStore interface {
	Insert(ctx context.Context, alert *models.SOSAlert) (string, error)
	ByID(ctx context.Context, alertID string) (*models.SOSAlert, error)
	// ActiveByOwner returns nil without error when the owner has no active alert.
	ActiveByOwner(ctx context.Context, ownerID string) (*models.SOSAlert, error)
	// Close transitions an active alert owned by ownerID to closed. Returns
	// false when nothing matched (missing, already closed, or wrong owner).
	Close(ctx context.Context, alertID, ownerID string, at time.Time) (bool, error)
	// AppendResponse atomically appends responderID to the accepted or
	// rejected set, but only if the alert is active, responderID is not the
	// owner, and responderID appears in neither set. Returns false when the
	// guard rejected the write.
	AppendResponse(ctx context.Context, alertID, responderID string, accept bool) (bool, error)
	ByOwner(ctx context.Context, ownerID string) ([]models.SOSAlert, error)
	ActiveWithin(ctx context.Context, center models.Coordinates, radiusMeters float64) ([]models.SOSAlert, error)
}

type mongoAlertStore struct {
	collection *mongo.Collection
}

func NewMongoAlertStore(collection *mongo.Collection) AlertStore {
	return &mongoAlertStore{collection: collection}
}

// sosDoc is the stored shape; the _id lives as an ObjectID in Mongo and as
// its hex string everywhere else.
type sosDoc struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	OwnerID     string             `bson:"owner_id"`
	OwnerName   string             `bson:"owner_name"`
	Category    string             `bson:"category"`
	Description string             `bson:"description"`
	Location    *models.GeoPoint   `bson:"location"`
	Status      models.SOSStatus   `bson:"status"`
	Accepted    []string           `bson:"accepted_users"`
	Rejected    []string           `bson:"rejected_users"`
	CreatedAt   time.Time          `bson:"created_at"`
	ClosedAt    *time.Time         `bson:"closed_at,omitempty"`
}

func (d sosDoc) toModel() models.SOSAlert {
	accepted := d.Accepted
	if accepted == nil {
		accepted = []string{}
	}
	rejected := d.Rejected
	if rejected == nil {
		rejected = []string{}
	}
	return models.SOSAlert{
		ID:          d.ID.Hex(),
		OwnerID:     d.OwnerID,
		OwnerName:   d.OwnerName,
		Category:    d.Category,
		Description: d.Description,
		Location:    d.Location,
		Status:      d.Status,
		Accepted:    accepted,
		Rejected:    rejected,
		CreatedAt:   d.CreatedAt,
		ClosedAt:    d.ClosedAt,
	}
}

func EnsureAlertIndexes(ctx context.Context, collection *mongo.Collection) error {
	_, err := collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "location", Value: "2dsphere"}}},
		{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "status", Value: 1}}},
	})
	return err
}

func (s *mongoAlertStore) Insert(ctx context.Context, alert *models.SOSAlert) (string, error) {
	doc := sosDoc{
		ID:          primitive.NewObjectID(),
		OwnerID:     alert.OwnerID,
		OwnerName:   alert.OwnerName,
		Category:    alert.Category,
		Description: alert.Description,
		Location:    alert.Location,
		Status:      models.SOSStatusActive,
		Accepted:    []string{},
		Rejected:    []string{},
		CreatedAt:   alert.CreatedAt,
	}
	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		return "", err
	}
	return doc.ID.Hex(), nil
}

func (s *mongoAlertStore) ByID(ctx context.Context, alertID string) (*models.SOSAlert, error) {
	oid, err := primitive.ObjectIDFromHex(alertID)
	if err != nil {
		return nil, errors.ErrNotFound
	}
	var doc sosDoc
	if err := s.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, errors.ErrNotFound
		}
		return nil, err
	}
	alert := doc.toModel()
	return &alert, nil
}

func (s *mongoAlertStore) ActiveByOwner(ctx context.Context, ownerID string) (*models.SOSAlert, error) {
	var doc sosDoc
	err := s.collection.FindOne(ctx,
		bson.M{"owner_id": ownerID, "status": models.SOSStatusActive},
		options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}}),
	).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	alert := doc.toModel()
	return &alert, nil
}

func (s *mongoAlertStore) Close(ctx context.Context, alertID, ownerID string, at time.Time) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(alertID)
	if err != nil {
		return false, nil
	}
	res, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": oid, "owner_id": ownerID, "status": models.SOSStatusActive},
		bson.M{"$set": bson.M{"status": models.SOSStatusClosed, "closed_at": at}},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

func (s *mongoAlertStore) AppendResponse(ctx context.Context, alertID, responderID string, accept bool) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(alertID)
	if err != nil {
		return false, nil
	}
	field := "rejected_users"
	if accept {
		field = "accepted_users"
	}
	res, err := s.collection.UpdateOne(ctx,
		bson.M{
			"_id":            oid,
			"status":         models.SOSStatusActive,
			"owner_id":       bson.M{"$ne": responderID},
			"accepted_users": bson.M{"$ne": responderID},
			"rejected_users": bson.M{"$ne": responderID},
		},
		bson.M{"$addToSet": bson.M{field: responderID}},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

func (s *mongoAlertStore) ByOwner(ctx context.Context, ownerID string) ([]models.SOSAlert, error) {
	return s.find(ctx, bson.M{"owner_id": ownerID})
}

func (s *mongoAlertStore) ActiveWithin(ctx context.Context, center models.Coordinates, radiusMeters float64) ([]models.SOSAlert, error) {
	return s.find(ctx, bson.M{
		"status": models.SOSStatusActive,
		"location": bson.M{
			"$geoWithin": bson.M{
				"$centerSphere": []any{
					[]float64{center.Longitude, center.Latitude},
					radiusMeters / earthRadiusMeters,
				},
			},
		},
	})
}

func (s *mongoAlertStore) find(ctx context.Context, filter bson.M) ([]models.SOSAlert, error) {
	cursor, err := s.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []sosDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	alerts := make([]models.SOSAlert, 0, len(docs))
	for _, doc := range docs {
		alerts = append(alerts, doc.toModel())
	}
	return alerts, nil
}
