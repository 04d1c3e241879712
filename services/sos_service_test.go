package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"saveher-server/models"
	"saveher-server/utils/errors"
)

// memAlertStore mirrors the Mongo store's contract in memory. The mutex
// around each conditional write gives the same atomicity as the single
// UpdateOne the real store issues.
type memAlertStore struct {
	mu     sync.Mutex
	alerts map[string]*models.SOSAlert
	seq    int
}

func newMemAlertStore() *memAlertStore {
	return &memAlertStore{alerts: make(map[string]*models.SOSAlert)}
}

func copyAlert(a *models.SOSAlert) *models.SOSAlert {
	cp := *a
	cp.Accepted = append([]string{}, a.Accepted...)
	cp.Rejected = append([]string{}, a.Rejected...)
	return &cp
}

func (s *memAlertStore) Insert(_ context.Context, alert *models.SOSAlert) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	id := fmt.Sprintf("alert-%d", s.seq)
	cp := copyAlert(alert)
	cp.ID = id
	s.alerts[id] = cp
	return id, nil
}

func (s *memAlertStore) ByID(_ context.Context, alertID string) (*models.SOSAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[alertID]
	if !ok {
		return nil, errors.ErrNotFound
	}
	return copyAlert(a), nil
}

func (s *memAlertStore) ActiveByOwner(_ context.Context, ownerID string) (*models.SOSAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *models.SOSAlert
	for _, a := range s.alerts {
		if a.OwnerID == ownerID && a.Status == models.SOSStatusActive {
			if latest == nil || a.CreatedAt.After(latest.CreatedAt) {
				latest = a
			}
		}
	}
	if latest == nil {
		return nil, nil
	}
	return copyAlert(latest), nil
}

func (s *memAlertStore) Close(_ context.Context, alertID, ownerID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[alertID]
	if !ok || a.OwnerID != ownerID || a.Status != models.SOSStatusActive {
		return false, nil
	}
	a.Status = models.SOSStatusClosed
	a.ClosedAt = &at
	return true, nil
}

func (s *memAlertStore) AppendResponse(_ context.Context, alertID, responderID string, accept bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[alertID]
	if !ok || a.Status != models.SOSStatusActive || a.OwnerID == responderID || a.HasResponded(responderID) {
		return false, nil
	}
	if accept {
		a.Accepted = append(a.Accepted, responderID)
	} else {
		a.Rejected = append(a.Rejected, responderID)
	}
	return true, nil
}

func (s *memAlertStore) ByOwner(_ context.Context, ownerID string) ([]models.SOSAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.SOSAlert
	for _, a := range s.alerts {
		if a.OwnerID == ownerID {
			out = append(out, *copyAlert(a))
		}
	}
	return out, nil
}

func (s *memAlertStore) ActiveWithin(_ context.Context, center models.Coordinates, radiusMeters float64) ([]models.SOSAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.SOSAlert
	for _, a := range s.alerts {
		if a.Status != models.SOSStatusActive || a.Location == nil {
			continue
		}
		d := Haversine(center.Latitude, center.Longitude, a.Location.Latitude(), a.Location.Longitude())
		if d <= radiusMeters {
			out = append(out, *copyAlert(a))
		}
	}
	return out, nil
}

type fakeDirectory struct {
	users map[string]models.User
}

func (d *fakeDirectory) GetUser(_ context.Context, userID string) (models.User, error) {
	u, ok := d.users[userID]
	if !ok {
		return models.User{}, errors.ErrNotFound
	}
	return u, nil
}

func (d *fakeDirectory) Summaries(_ context.Context, userIDs []string) ([]models.UserSummary, error) {
	out := make([]models.UserSummary, 0, len(userIDs))
	for _, id := range userIDs {
		if u, ok := d.users[id]; ok {
			out = append(out, u.Summary())
		}
	}
	return out, nil
}

type fakePresence struct {
	coords map[string]models.Coordinates
}

func (p *fakePresence) NearbyIDs(_ context.Context, center models.Coordinates, radiusMeters float64, exclude string) ([]string, error) {
	var out []string
	for id, c := range p.coords {
		if id == exclude {
			continue
		}
		if Haversine(center.Latitude, center.Longitude, c.Latitude, c.Longitude) <= radiusMeters {
			out = append(out, id)
		}
	}
	return out, nil
}

type recordingNotifier struct {
	mu        sync.Mutex
	newAlerts [][]string
	cancelled [][]string
}

func (n *recordingNotifier) BroadcastNewAlert(_ *models.SOSAlert, recipients []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.newAlerts = append(n.newAlerts, recipients)
}

func (n *recordingNotifier) BroadcastCancellation(_ *models.SOSAlert, recipients []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancelled = append(n.cancelled, recipients)
}

func (n *recordingNotifier) newAlertCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.newAlerts)
}

func (n *recordingNotifier) lastNewAlertRecipients() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.newAlerts) == 0 {
		return nil
	}
	return n.newAlerts[len(n.newAlerts)-1]
}

func newTestSOSService(t *testing.T, allowMultiple bool) (*SOSService, *memAlertStore, *recordingNotifier) {
	t.Helper()
	store := newMemAlertStore()
	dir := &fakeDirectory{users: map[string]models.User{
		"user-a": {PublicID: "user-a", Name: "Asha", PhoneNumber: "111", LastLocation: models.NewGeoPoint(12.90, 77.59)},
		"user-b": {PublicID: "user-b", Name: "Bina", PhoneNumber: "222", LastLocation: models.NewGeoPoint(12.91, 77.59)},
		"user-c": {PublicID: "user-c", Name: "Chitra", PhoneNumber: "333", LastLocation: models.NewGeoPoint(12.905, 77.59)},
	}}
	presence := &fakePresence{coords: map[string]models.Coordinates{
		"user-a": {Latitude: 12.90, Longitude: 77.59},
		"user-b": {Latitude: 12.91, Longitude: 77.59}, // ~1.1km away
		"user-c": {Latitude: 12.905, Longitude: 77.59},
	}}
	notifier := &recordingNotifier{}
	svc := NewSOSService(store, dir, presence, notifier, 3000, allowMultiple, zap.NewNop().Sugar())
	return svc, store, notifier
}

func coords(lat, lon float64) *models.Coordinates {
	return &models.Coordinates{Latitude: lat, Longitude: lon}
}

func TestTriggerAndAcceptScenario(t *testing.T) {
	svc, _, notifier := newTestSOSService(t, false)
	ctx := context.Background()

	alert, err := svc.Trigger(ctx, "user-a", "general", "test", coords(12.90, 77.59))
	require.NoError(t, err)
	require.NotEmpty(t, alert.ID)
	assert.Equal(t, models.SOSStatusActive, alert.Status)
	assert.Equal(t, "Asha", alert.OwnerName)

	active, err := svc.IsSOS(ctx, "user-a")
	require.NoError(t, err)
	assert.True(t, active)

	count, err := svc.RecordResponse(ctx, alert.ID, "user-b", models.DecisionAccept)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	responders, err := svc.AcceptedResponders(ctx, alert.ID)
	require.NoError(t, err)
	require.Len(t, responders, 1)
	assert.Equal(t, "Bina", responders[0].Name)
	assert.Equal(t, "222", responders[0].PhoneNumber)

	ownerCount, err := svc.AcceptedCount(ctx, "user-a")
	require.NoError(t, err)
	assert.Equal(t, 1, ownerCount)

	// Fan-out is async; the delivery set excludes the owner.
	require.Eventually(t, func() bool { return notifier.newAlertCount() == 1 }, time.Second, 10*time.Millisecond)
	assert.NotContains(t, notifier.lastNewAlertRecipients(), "user-a")
	assert.Contains(t, notifier.lastNewAlertRecipients(), "user-b")
}

func TestTriggerRequiresCoordinates(t *testing.T) {
	svc, _, _ := newTestSOSService(t, false)

	_, err := svc.Trigger(context.Background(), "user-a", "general", "no coords", nil)
	require.Error(t, err)
	apiErr := err.(*errors.APIError)
	assert.Equal(t, "VALIDATION_ERROR", apiErr.Code)

	_, err = svc.Trigger(context.Background(), "user-a", "general", "bad coords", coords(120, 77.59))
	require.Error(t, err)
}

func TestSecondTriggerConflicts(t *testing.T) {
	svc, _, _ := newTestSOSService(t, false)
	ctx := context.Background()

	_, err := svc.Trigger(ctx, "user-a", "general", "first", coords(12.90, 77.59))
	require.NoError(t, err)

	_, err = svc.Trigger(ctx, "user-a", "general", "second", coords(12.90, 77.59))
	assert.ErrorIs(t, err, errors.ErrActiveAlertExists)
}

func TestMultipleActiveAllowedWhenConfigured(t *testing.T) {
	svc, _, _ := newTestSOSService(t, true)
	ctx := context.Background()

	first, err := svc.Trigger(ctx, "user-a", "general", "first", coords(12.90, 77.59))
	require.NoError(t, err)
	second, err := svc.Trigger(ctx, "user-a", "general", "second", coords(12.90, 77.59))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestResponseExclusivity(t *testing.T) {
	svc, store, _ := newTestSOSService(t, false)
	ctx := context.Background()

	alert, err := svc.Trigger(ctx, "user-a", "general", "help", coords(12.90, 77.59))
	require.NoError(t, err)

	_, err = svc.RecordResponse(ctx, alert.ID, "user-b", models.DecisionAccept)
	require.NoError(t, err)

	// Same decision again, and the opposite decision, both conflict.
	_, err = svc.RecordResponse(ctx, alert.ID, "user-b", models.DecisionAccept)
	assert.ErrorIs(t, err, errors.ErrAlreadyResponded)
	_, err = svc.RecordResponse(ctx, alert.ID, "user-b", models.DecisionReject)
	assert.ErrorIs(t, err, errors.ErrAlreadyResponded)

	// The sets stay disjoint.
	stored, err := store.ByID(ctx, alert.ID)
	require.NoError(t, err)
	for _, accepted := range stored.Accepted {
		assert.NotContains(t, stored.Rejected, accepted)
	}
	assert.Equal(t, []string{"user-b"}, stored.Accepted)
	assert.Empty(t, stored.Rejected)
}

func TestOwnerCannotRespond(t *testing.T) {
	svc, _, _ := newTestSOSService(t, false)
	ctx := context.Background()

	alert, err := svc.Trigger(ctx, "user-a", "general", "help", coords(12.90, 77.59))
	require.NoError(t, err)

	_, err = svc.RecordResponse(ctx, alert.ID, "user-a", models.DecisionAccept)
	assert.ErrorIs(t, err, errors.ErrSelfResponse)
	_, err = svc.RecordResponse(ctx, alert.ID, "user-a", models.DecisionReject)
	assert.ErrorIs(t, err, errors.ErrSelfResponse)
}

func TestRespondAfterCancelFailsClosed(t *testing.T) {
	svc, _, _ := newTestSOSService(t, false)
	ctx := context.Background()

	alert, err := svc.Trigger(ctx, "user-a", "general", "help", coords(12.90, 77.59))
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, "user-a")
	require.NoError(t, err)

	_, err = svc.RecordResponse(ctx, alert.ID, "user-b", models.DecisionAccept)
	assert.ErrorIs(t, err, errors.ErrAlertClosed)

	active, err := svc.ActiveAlert(ctx, "user-a")
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestCancelRetainsResponderSets(t *testing.T) {
	svc, store, _ := newTestSOSService(t, false)
	ctx := context.Background()

	alert, err := svc.Trigger(ctx, "user-a", "general", "help", coords(12.90, 77.59))
	require.NoError(t, err)
	_, err = svc.RecordResponse(ctx, alert.ID, "user-b", models.DecisionAccept)
	require.NoError(t, err)
	_, err = svc.RecordResponse(ctx, alert.ID, "user-c", models.DecisionReject)
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, "user-a")
	require.NoError(t, err)

	stored, err := store.ByID(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SOSStatusClosed, stored.Status)
	assert.Equal(t, []string{"user-b"}, stored.Accepted)
	assert.Equal(t, []string{"user-c"}, stored.Rejected)
	assert.NotNil(t, stored.ClosedAt)
}

func TestCancelErrors(t *testing.T) {
	svc, _, _ := newTestSOSService(t, false)
	ctx := context.Background()

	_, err := svc.Cancel(ctx, "user-a")
	assert.ErrorIs(t, err, errors.ErrNotFound)

	alert, err := svc.Trigger(ctx, "user-a", "general", "help", coords(12.90, 77.59))
	require.NoError(t, err)

	_, err = svc.CancelAlert(ctx, alert.ID, "user-b")
	assert.ErrorIs(t, err, errors.ErrNotOwner)

	_, err = svc.CancelAlert(ctx, alert.ID, "user-a")
	require.NoError(t, err)

	// Cancelling again finds no active alert.
	_, err = svc.CancelAlert(ctx, alert.ID, "user-a")
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestConcurrentResponsesOneWins(t *testing.T) {
	svc, store, _ := newTestSOSService(t, false)
	ctx := context.Background()

	alert, err := svc.Trigger(ctx, "user-a", "general", "help", coords(12.90, 77.59))
	require.NoError(t, err)

	const attempts = 16
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		decision := models.DecisionAccept
		if i%2 == 1 {
			decision = models.DecisionReject
		}
		go func(d models.ResponseDecision) {
			defer wg.Done()
			_, err := svc.RecordResponse(ctx, alert.ID, "user-b", d)
			results <- err
		}(decision)
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, errors.ErrAlreadyResponded)
		}
	}
	assert.Equal(t, 1, succeeded)

	stored, err := store.ByID(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, len(stored.Accepted)+len(stored.Rejected))
}

func TestAlertsVisibleToOrdering(t *testing.T) {
	svc, store, _ := newTestSOSService(t, false)
	ctx := context.Background()

	older, err := svc.Trigger(ctx, "user-b", "general", "older", coords(12.91, 77.59))
	require.NoError(t, err)
	// Force distinct creation times regardless of clock resolution.
	store.mu.Lock()
	store.alerts[older.ID].CreatedAt = store.alerts[older.ID].CreatedAt.Add(-time.Minute)
	store.mu.Unlock()

	newer, err := svc.Trigger(ctx, "user-c", "general", "newer", coords(12.905, 77.59))
	require.NoError(t, err)

	// user-a's last location is within 3km of both alerts.
	visible, err := svc.AlertsVisibleTo(ctx, "user-a")
	require.NoError(t, err)
	require.Len(t, visible, 2)
	assert.Equal(t, newer.ID, visible[0].ID)
	assert.Equal(t, older.ID, visible[1].ID)
}

func TestCancellationFanout(t *testing.T) {
	svc, _, notifier := newTestSOSService(t, false)
	ctx := context.Background()

	_, err := svc.Trigger(ctx, "user-a", "general", "help", coords(12.90, 77.59))
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, "user-a")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		notifier.mu.Lock()
		defer notifier.mu.Unlock()
		return len(notifier.cancelled) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestActiveNearbyExcludesSelfAndComputesDistance(t *testing.T) {
	svc, _, _ := newTestSOSService(t, false)
	ctx := context.Background()

	_, err := svc.Trigger(ctx, "user-a", "general", "mine", coords(12.90, 77.59))
	require.NoError(t, err)
	_, err = svc.Trigger(ctx, "user-b", "general", "theirs", coords(12.91, 77.59))
	require.NoError(t, err)

	nearby, err := svc.ActiveNearby(ctx, "user-a")
	require.NoError(t, err)
	require.Len(t, nearby, 1)
	assert.Equal(t, "user-b", nearby[0].OwnerID)
	// ~0.01 degrees of latitude is roughly 1.1km.
	assert.InDelta(t, 1112, nearby[0].DistanceMeters, 30)
}
