package services

import (
	"go.uber.org/zap"

	"saveher-server/models"
	"saveher-server/realtime"
)

// NotifyService pushes SOS lifecycle events to recipients over the realtime
// hub. Everything here is fire-and-forget: an offline recipient is skipped
// and never retried; the alert state is authoritative regardless.
type NotifyService struct {
	hub *realtime.Hub
	log *zap.SugaredLogger
}

func NewNotifyService(hub *realtime.Hub, log *zap.SugaredLogger) *NotifyService {
	return &NotifyService{hub: hub, log: log}
}

type alertNotification struct {
	Name  string `json:"name"`
	SOSID string `json:"sos_id"`
}

// BroadcastNewAlert pushes the emergency notification plus a refresh cue to
// each recipient, once per user id no matter how many sessions they hold.
func (n *NotifyService) BroadcastNewAlert(alert *models.SOSAlert, recipients []string) {
	payload := alertNotification{Name: alert.OwnerName, SOSID: alert.ID}
	delivered := 0
	for _, userID := range recipients {
		if n.hub.SendToUser(userID, realtime.Event{Type: realtime.EventSendNotification, Data: payload}) {
			delivered++
		}
		n.hub.SendToUser(userID, realtime.Event{Type: realtime.EventRefetchSOSDetails})
	}
	n.log.Infow("alert broadcast", "alert_id", alert.ID, "recipients", len(recipients), "delivered", delivered)
}

// BroadcastCancellation tells the same neighborhood the emergency ended.
func (n *NotifyService) BroadcastCancellation(alert *models.SOSAlert, recipients []string) {
	for _, userID := range recipients {
		n.hub.SendToUser(userID, realtime.Event{Type: realtime.EventRefetchSOSDetails})
	}
	n.log.Infow("cancellation broadcast", "alert_id", alert.ID, "recipients", len(recipients))
}
