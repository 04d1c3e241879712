package models

import "go.mongodb.org/mongo-driver/bson/primitive"

type User struct {
	ID                primitive.ObjectID `json:"-" bson:"_id,omitempty"`
	PublicID          string             `json:"user_id" bson:"public_id"`
	Name              string             `json:"name" bson:"name"`
	Email             string             `json:"email_address" bson:"email_address"`
	PhoneNumber       string             `json:"phone_number" bson:"phone_number"`
	Age               int                `json:"age" bson:"age"`
	Income            int                `json:"income" bson:"income"`
	EmergencyContacts []string           `json:"emergency_contact" bson:"emergency_contact"`
	PasswordHash      string             `json:"-" bson:"password_hash"`
	LastLocation      *GeoPoint          `json:"last_location,omitempty" bson:"last_location,omitempty"`
}

// UserSummary is the view responders and owners get of each other:
// enough to make a phone call, nothing more.
type UserSummary struct {
	UserID      string `json:"user_id" bson:"public_id"`
	Name        string `json:"name" bson:"name"`
	PhoneNumber string `json:"phone_number" bson:"phone_number"`
}

func (u User) Summary() UserSummary {
	return UserSummary{UserID: u.PublicID, Name: u.Name, PhoneNumber: u.PhoneNumber}
}

// GeoPoint is a GeoJSON point, coordinates ordered [lon, lat].
type GeoPoint struct {
	Type        string    `json:"type" bson:"type"`
	Coordinates []float64 `json:"coordinates" bson:"coordinates"`
}

func NewGeoPoint(lat, lon float64) *GeoPoint {
	return &GeoPoint{Type: "Point", Coordinates: []float64{lon, lat}}
}

func (p *GeoPoint) Latitude() float64 {
	if p == nil || len(p.Coordinates) < 2 {
		return 0
	}
	return p.Coordinates[1]
}

func (p *GeoPoint) Longitude() float64 {
	if p == nil || len(p.Coordinates) < 2 {
		return 0
	}
	return p.Coordinates[0]
}

// Coordinates is the latitude/longitude pair as the mobile client sends it.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (c Coordinates) Valid() bool {
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}
