package types

import (
	"time"
)

type User struct {
	Id           int       `json:"id"`
	Username     string    `json:"username"`
	EmailAddress string    `json:"email_address,omitempty"`
	Password     string    `json:"-"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

// Position is a single observed device position in decimal degrees.
type Position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type Room struct {
	Id          int       `json:"id"`
	ExternalId  string    `json:"external_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	RadiusKm    float64   `json:"radius_km"`
	IsActive    bool      `json:"is_active"`
	OwnerId     int       `json:"owner_id,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

// Message is a single chat message as delivered to clients. Sender
// identity is the denormalized anonymous (name, icon) pair, not a
// reference to any account.
type Message struct {
	Id            string    `json:"id"`
	RoomId        string    `json:"room_id"`
	AnonymousName string    `json:"anonymous_name"`
	AnonymousIcon string    `json:"anonymous_icon"`
	Content       string    `json:"content"`
	Timestamp     time.Time `json:"timestamp"`
}
