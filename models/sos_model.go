package models

import "time"

type SOSStatus string

const (
	SOSStatusActive SOSStatus = "active"
	SOSStatusClosed SOSStatus = "closed"
)

// SOSAlert is the authoritative record of one emergency. Responder sets only
// ever grow while the alert is active; cancellation closes the alert but
// keeps both sets for audit.
type SOSAlert struct {
	ID          string     `json:"_id" bson:"_id,omitempty"`
	OwnerID     string     `json:"owner_id" bson:"owner_id"`
	OwnerName   string     `json:"name" bson:"owner_name"`
	Category    string     `json:"category" bson:"category"`
	Description string     `json:"description" bson:"description"`
	Location    *GeoPoint  `json:"location" bson:"location"`
	Status      SOSStatus  `json:"status" bson:"status"`
	Accepted    []string   `json:"accepted_users" bson:"accepted_users"`
	Rejected    []string   `json:"rejected_users" bson:"rejected_users"`
	CreatedAt   time.Time  `json:"time" bson:"created_at"`
	ClosedAt    *time.Time `json:"closed_at,omitempty" bson:"closed_at,omitempty"`
}

func (a *SOSAlert) IsActive() bool {
	return a != nil && a.Status == SOSStatusActive
}

// HasResponded reports whether the user already appears in either set.
func (a *SOSAlert) HasResponded(userID string) bool {
	for _, id := range a.Accepted {
		if id == userID {
			return true
		}
	}
	for _, id := range a.Rejected {
		if id == userID {
			return true
		}
	}
	return false
}

type ResponseDecision string

const (
	DecisionAccept ResponseDecision = "accept"
	DecisionReject ResponseDecision = "reject"
)
