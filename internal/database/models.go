package database

import "time"

type Room struct {
	Id          int
	ExternalId  string
	Name        string
	Description string
	Latitude    float64
	Longitude   float64
	RadiusKm    float64
	IsActive    bool
	OwnerId     int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type User struct {
	Id           int
	Username     string
	EmailAddress string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Message struct {
	Id            int
	ExternalId    string
	RoomId        int
	AnonymousName string
	AnonymousIcon string
	Content       string
	CreatedAt     time.Time
}

type CreateAccountParams struct {
	Username     string
	EmailAddress string
	PasswordHash string
}

type CreateRoomParams struct {
	Name        string
	Description string
	Latitude    float64
	Longitude   float64
	RadiusKm    float64
	OwnerId     int
	ExternalId  string
}

type CreateMessageParams struct {
	ExternalId    string
	RoomId        int
	AnonymousName string
	AnonymousIcon string
	Content       string
	CreatedAt     time.Time
}
