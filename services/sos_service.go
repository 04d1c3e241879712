package services

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"saveher-server/models"
	"saveher-server/utils/errors"
)

// UserDirectory is what the SOS service needs from the user service.
type UserDirectory interface {
	GetUser(ctx context.Context, userID string) (models.User, error)
	Summaries(ctx context.Context, userIDs []string) ([]models.UserSummary, error)
}

// ProximityIndex answers "who is near these coordinates".
type ProximityIndex interface {
	NearbyIDs(ctx context.Context, center models.Coordinates, radiusMeters float64, exclude string) ([]string, error)
}

// Notifier delivers realtime events to the fan-out recipients. Delivery is
// best-effort: failures are logged by the implementation and never surface
// back into the alert state transition.
type Notifier interface {
	BroadcastNewAlert(alert *models.SOSAlert, recipients []string)
	BroadcastCancellation(alert *models.SOSAlert, recipients []string)
}

type SOSService struct {
	store    AlertStore
	users    UserDirectory
	presence ProximityIndex
	notifier Notifier
	log      *zap.SugaredLogger

	radiusMeters  float64
	allowMultiple bool
	// fanoutTimeout bounds the proximity query behind each broadcast.
	fanoutTimeout time.Duration
}

func NewSOSService(store AlertStore, users UserDirectory, presence ProximityIndex, notifier Notifier,
	radiusMeters float64, allowMultiple bool, log *zap.SugaredLogger) *SOSService {
	return &SOSService{
		store:         store,
		users:         users,
		presence:      presence,
		notifier:      notifier,
		log:           log,
		radiusMeters:  radiusMeters,
		allowMultiple: allowMultiple,
		fanoutTimeout: 5 * time.Second,
	}
}

// Trigger opens a new alert for ownerID and fans the notification out to
// nearby users. Unless configured otherwise, a second trigger while one
// alert is active is a conflict rather than a duplicate.
func (s *SOSService) Trigger(ctx context.Context, ownerID, category, description string, c *models.Coordinates) (*models.SOSAlert, error) {
	if c == nil || !c.Valid() {
		return nil, errors.NewAPIError("VALIDATION_ERROR", "Coordinates are required", errors.ErrInvalidInput.Status)
	}
	owner, err := s.users.GetUser(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	if !s.allowMultiple {
		existing, err := s.store.ActiveByOwner(ctx, ownerID)
		if err != nil {
			return nil, errors.Wrap(err, "DB_ERROR", "Failed to check active alerts", errors.ErrInternal.Status)
		}
		if existing != nil {
			return nil, errors.ErrActiveAlertExists
		}
	}

	if category == "" {
		category = "general"
	}
	alert := &models.SOSAlert{
		OwnerID:     ownerID,
		OwnerName:   owner.Name,
		Category:    category,
		Description: description,
		Location:    models.NewGeoPoint(c.Latitude, c.Longitude),
		Status:      models.SOSStatusActive,
		Accepted:    []string{},
		Rejected:    []string{},
		CreatedAt:   time.Now().UTC(),
	}
	id, err := s.store.Insert(ctx, alert)
	if err != nil {
		return nil, errors.Wrap(err, "DB_ERROR", "Failed to create alert", errors.ErrInternal.Status)
	}
	alert.ID = id

	s.log.Infow("sos triggered", "alert_id", alert.ID, "owner_id", ownerID, "category", category)
	go s.fanout(alert, true)
	return alert, nil
}

// Cancel closes the caller's active alert, whichever it is.
func (s *SOSService) Cancel(ctx context.Context, ownerID string) (*models.SOSAlert, error) {
	alert, err := s.store.ActiveByOwner(ctx, ownerID)
	if err != nil {
		return nil, errors.Wrap(err, "DB_ERROR", "Failed to look up active alert", errors.ErrInternal.Status)
	}
	if alert == nil {
		return nil, errors.ErrNotFound
	}
	return s.CancelAlert(ctx, alert.ID, ownerID)
}

// CancelAlert closes one alert. Only the owner may do this; the responder
// sets are kept for audit.
func (s *SOSService) CancelAlert(ctx context.Context, alertID, ownerID string) (*models.SOSAlert, error) {
	closed, err := s.store.Close(ctx, alertID, ownerID, time.Now().UTC())
	if err != nil {
		return nil, errors.Wrap(err, "DB_ERROR", "Failed to cancel alert", errors.ErrInternal.Status)
	}
	if !closed {
		alert, err := s.store.ByID(ctx, alertID)
		if err != nil {
			return nil, errors.ErrNotFound
		}
		if alert.OwnerID != ownerID {
			return nil, errors.ErrNotOwner
		}
		// Owned but already closed counts as "no active alert".
		return nil, errors.ErrNotFound
	}

	alert, err := s.store.ByID(ctx, alertID)
	if err != nil {
		return nil, err
	}
	s.log.Infow("sos cancelled", "alert_id", alertID, "owner_id", ownerID)
	go s.fanout(alert, false)
	return alert, nil
}

// ActiveAlert returns the user's current active alert, nil when none.
func (s *SOSService) ActiveAlert(ctx context.Context, userID string) (*models.SOSAlert, error) {
	alert, err := s.store.ActiveByOwner(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "DB_ERROR", "Failed to look up active alert", errors.ErrInternal.Status)
	}
	return alert, nil
}

func (s *SOSService) IsSOS(ctx context.Context, userID string) (bool, error) {
	alert, err := s.ActiveAlert(ctx, userID)
	if err != nil {
		return false, err
	}
	return alert != nil, nil
}

// RecordResponse records a responder's accept/reject decision. The write is
// one atomic conditional append; when the guard refuses, the alert is
// re-read once purely to classify the failure for the caller.
func (s *SOSService) RecordResponse(ctx context.Context, alertID, responderID string, decision models.ResponseDecision) (int, error) {
	if decision != models.DecisionAccept && decision != models.DecisionReject {
		return 0, errors.NewAPIError("VALIDATION_ERROR", "Decision must be accept or reject", errors.ErrInvalidInput.Status)
	}

	matched, err := s.store.AppendResponse(ctx, alertID, responderID, decision == models.DecisionAccept)
	if err != nil {
		return 0, errors.Wrap(err, "DB_ERROR", "Failed to record response", errors.ErrInternal.Status)
	}
	if !matched {
		alert, err := s.store.ByID(ctx, alertID)
		if err != nil {
			return 0, errors.ErrNotFound
		}
		switch {
		case alert.OwnerID == responderID:
			return 0, errors.ErrSelfResponse
		case !alert.IsActive():
			return 0, errors.ErrAlertClosed
		case alert.HasResponded(responderID):
			return 0, errors.ErrAlreadyResponded
		default:
			return 0, errors.ErrInternal
		}
	}

	alert, err := s.store.ByID(ctx, alertID)
	if err != nil {
		return 0, err
	}
	s.log.Infow("sos response recorded",
		"alert_id", alertID, "responder_id", responderID, "decision", decision, "accepted_count", len(alert.Accepted))
	return len(alert.Accepted), nil
}

// AcceptedResponders lists who is coming to help: name and phone of each
// accepted responder, rejected and silent users excluded.
func (s *SOSService) AcceptedResponders(ctx context.Context, alertID string) ([]models.UserSummary, error) {
	alert, err := s.store.ByID(ctx, alertID)
	if err != nil {
		return nil, err
	}
	return s.users.Summaries(ctx, alert.Accepted)
}

// AcceptedCount is the owner's lightweight polling query: how many people
// accepted the caller's active alert. Zero when there is no active alert.
func (s *SOSService) AcceptedCount(ctx context.Context, ownerID string) (int, error) {
	alert, err := s.ActiveAlert(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	if alert == nil {
		return 0, nil
	}
	return len(alert.Accepted), nil
}

// AlertsVisibleTo returns the alerts the user's Alerts tab shows: their own
// alerts plus active alerts near their last known location, newest first.
func (s *SOSService) AlertsVisibleTo(ctx context.Context, userID string) ([]models.SOSAlert, error) {
	own, err := s.store.ByOwner(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "DB_ERROR", "Failed to list alerts", errors.ErrInternal.Status)
	}

	seen := make(map[string]bool, len(own))
	alerts := make([]models.SOSAlert, 0, len(own))
	for _, a := range own {
		seen[a.ID] = true
		alerts = append(alerts, a)
	}

	user, err := s.users.GetUser(ctx, userID)
	if err == nil && user.LastLocation != nil {
		center := models.Coordinates{Latitude: user.LastLocation.Latitude(), Longitude: user.LastLocation.Longitude()}
		nearby, err := s.store.ActiveWithin(ctx, center, s.radiusMeters)
		if err != nil {
			s.log.Warnw("nearby alert query failed", "user_id", userID, "error", err)
		} else {
			for _, a := range nearby {
				if !seen[a.ID] && a.OwnerID != userID {
					alerts = append(alerts, a)
				}
			}
		}
	}

	sort.Slice(alerts, func(i, j int) bool { return alerts[i].CreatedAt.After(alerts[j].CreatedAt) })
	return alerts, nil
}

// NearbyAlert is an active alert annotated with the distance from the
// querying user.
type NearbyAlert struct {
	models.SOSAlert
	DistanceMeters float64 `json:"distance"`
}

// ActiveNearby lists active alerts around the user's last location with the
// distance to each, for the map overlay.
func (s *SOSService) ActiveNearby(ctx context.Context, userID string) ([]NearbyAlert, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.LastLocation == nil {
		return []NearbyAlert{}, nil
	}
	center := models.Coordinates{Latitude: user.LastLocation.Latitude(), Longitude: user.LastLocation.Longitude()}
	active, err := s.store.ActiveWithin(ctx, center, s.radiusMeters)
	if err != nil {
		return nil, errors.Wrap(err, "DB_ERROR", "Failed to list nearby alerts", errors.ErrInternal.Status)
	}

	nearby := make([]NearbyAlert, 0, len(active))
	for _, a := range active {
		if a.OwnerID == userID {
			continue
		}
		nearby = append(nearby, NearbyAlert{
			SOSAlert:       a,
			DistanceMeters: Haversine(center.Latitude, center.Longitude, a.Location.Latitude(), a.Location.Longitude()),
		})
	}
	return nearby, nil
}

// fanout computes the delivery set and hands it to the notifier. Runs off
// the request path; the alert state transition has already committed and
// does not depend on anything here succeeding.
func (s *SOSService) fanout(alert *models.SOSAlert, created bool) {
	if s.notifier == nil || s.presence == nil || alert.Location == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.fanoutTimeout)
	defer cancel()

	center := models.Coordinates{Latitude: alert.Location.Latitude(), Longitude: alert.Location.Longitude()}
	recipients, err := s.presence.NearbyIDs(ctx, center, s.radiusMeters, alert.OwnerID)
	if err != nil {
		s.log.Warnw("fanout proximity query failed", "alert_id", alert.ID, "error", err)
		return
	}
	if created {
		s.notifier.BroadcastNewAlert(alert, recipients)
	} else {
		s.notifier.BroadcastCancellation(alert, recipients)
	}
}
