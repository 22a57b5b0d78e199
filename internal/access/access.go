// Package access decides whether a client may enter a room's message
// stream based on the room's state and the client's observed position.
package access

import (
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/nearchat/nearchat/internal/database"
	"github.com/nearchat/nearchat/internal/geo"
	"github.com/nearchat/nearchat/internal/types"
)

// Decision is the outcome of one room-entry attempt.
type Decision string

const (
	// Pending means no decision has been reached, e.g. the store could
	// not be read. It is never a terminal outcome.
	Pending Decision = "pending"

	Granted            Decision = "granted"
	DeniedRoomMissing  Decision = "denied-room-missing"
	DeniedRoomInactive Decision = "denied-room-inactive"
	DeniedNoLocation   Decision = "denied-no-location"
	DeniedTooFar       Decision = "denied-too-far"
)

// Reason returns the user-facing explanation for a decision. Every
// denial kind has its own message, never a generic failure.
func (d Decision) Reason() string {
	switch d {
	case Granted:
		return "access granted"
	case DeniedRoomMissing:
		return "this room doesn't exist or has been deleted"
	case DeniedRoomInactive:
		return "this room is no longer active"
	case DeniedNoLocation:
		return "location access is required to join this room"
	case DeniedTooFar:
		return "you must be within the room's radius to join"
	default:
		return "checking access"
	}
}

// Controller evaluates room access against the room store. It holds no
// per-attempt state: every evaluation reads the room fresh, so a
// deactivation is seen on the next attempt.
type Controller struct {
	db  database.Repository
	log *log.Logger
}

func NewController(logger *log.Logger, db database.Repository) *Controller {
	return &Controller{
		db:  db,
		log: logger,
	}
}

// Evaluate classifies one entry attempt for the room with the given
// external id. A nil position means geolocation was unavailable or
// refused. On a Granted or denied decision the error is nil; a non-nil
// error is a store read failure and the decision is Pending.
func (c *Controller) Evaluate(roomId string, position *types.Position) (Decision, database.Room, error) {
	room, err := c.db.GetRoomByExternalId(roomId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return DeniedRoomMissing, database.Room{}, nil
		}
		return Pending, database.Room{}, fmt.Errorf("fetch room %q: %w", roomId, err)
	}

	if !room.IsActive {
		return DeniedRoomInactive, room, nil
	}

	if position == nil {
		return DeniedNoLocation, room, nil
	}

	if !geo.IsWithinRadius(room.Latitude, room.Longitude, room.RadiusKm, position.Latitude, position.Longitude) {
		return DeniedTooFar, room, nil
	}

	return Granted, room, nil
}
