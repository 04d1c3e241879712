package models

import "time"

// Story is a community post shared from the app's Stories tab.
type Story struct {
	ID          string    `json:"_id" bson:"_id,omitempty"`
	OwnerID     string    `json:"user_id" bson:"owner_id"`
	Title       string    `json:"title" bson:"title"`
	Description string    `json:"description" bson:"description"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
}

type ZoneAlertSource string

const (
	ZoneAlertAnonymous     ZoneAlertSource = "anonymous"
	ZoneAlertAdministrator ZoneAlertSource = "administrator"
)

// ZoneAlert marks a danger area on the map. Anonymous reports come from the
// public report form; administrator entries are seeded out of band.
type ZoneAlert struct {
	ID          string          `json:"_id" bson:"_id,omitempty"`
	Description string          `json:"description" bson:"description"`
	Location    *GeoPoint       `json:"location" bson:"location"`
	Source      ZoneAlertSource `json:"source" bson:"source"`
	CreatedAt   time.Time       `json:"created_at" bson:"created_at"`
}
