package database

import (
	"time"
)

func (db *PgRepository) CreateAccount(params CreateAccountParams) (User, error) {
	res := db.conn.QueryRow(
		"INSERT INTO accounts (username, email, password_hash, created_at) "+
			"VALUES ($1, $2, $3, $4) RETURNING id, username, email",
		params.Username,
		params.EmailAddress,
		params.PasswordHash,
		time.Now().UTC(),
	)

	var u User
	err := res.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
	)

	return u, err
}

func (db *PgRepository) GetAccountById(accountId int) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, created_at FROM accounts "+
			"WHERE id = $1 LIMIT 1",
		accountId,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.Username,
		&user.EmailAddress,
		&user.CreatedAt,
	)

	return user, err
}

func (db *PgRepository) GetAccountByEmail(email string) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, password_hash, created_at FROM accounts "+
			"WHERE email = $1 LIMIT 1",
		email,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.Username,
		&user.EmailAddress,
		&user.PasswordHash,
		&user.CreatedAt,
	)

	return user, err
}

func (db *PgRepository) CreateRoom(params CreateRoomParams) (Room, error) {
	res := db.conn.QueryRow(
		"INSERT INTO rooms (external_id, name, description, latitude, longitude, radius_km, is_active, owner_id, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7, $8) "+
			"RETURNING id, external_id, name, description, latitude, longitude, radius_km, is_active, owner_id, created_at",
		params.ExternalId,
		params.Name,
		params.Description,
		params.Latitude,
		params.Longitude,
		params.RadiusKm,
		params.OwnerId,
		time.Now().UTC(),
	)

	var r Room
	err := res.Scan(
		&r.Id,
		&r.ExternalId,
		&r.Name,
		&r.Description,
		&r.Latitude,
		&r.Longitude,
		&r.RadiusKm,
		&r.IsActive,
		&r.OwnerId,
		&r.CreatedAt,
	)

	return r, err
}

func (db *PgRepository) GetRoomByExternalId(externalId string) (Room, error) {
	row := db.conn.QueryRow(
		"SELECT id, external_id, name, description, latitude, longitude, radius_km, is_active, owner_id, created_at FROM rooms "+
			"WHERE external_id = $1 LIMIT 1",
		externalId,
	)

	var r Room
	err := row.Scan(
		&r.Id,
		&r.ExternalId,
		&r.Name,
		&r.Description,
		&r.Latitude,
		&r.Longitude,
		&r.RadiusKm,
		&r.IsActive,
		&r.OwnerId,
		&r.CreatedAt,
	)

	return r, err
}

func (db *PgRepository) ListRoomsByOwner(ownerId int) ([]Room, error) {
	rows, err := db.conn.Query(
		"SELECT id, external_id, name, description, latitude, longitude, radius_km, is_active, owner_id, created_at FROM rooms "+
			"WHERE owner_id = $1 ORDER BY created_at DESC",
		ownerId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		var r Room
		if err := rows.Scan(
			&r.Id,
			&r.ExternalId,
			&r.Name,
			&r.Description,
			&r.Latitude,
			&r.Longitude,
			&r.RadiusKm,
			&r.IsActive,
			&r.OwnerId,
			&r.CreatedAt,
		); err != nil {
			return nil, err
		}
		rooms = append(rooms, r)
	}

	return rooms, rows.Err()
}

// DeactivateRoom permanently closes a room to new joins and sends.
// There is no corresponding reactivate.
func (db *PgRepository) DeactivateRoom(id int) error {
	_, err := db.conn.Exec(
		"UPDATE rooms SET is_active = FALSE, updated_at = $2 WHERE id = $1",
		id,
		time.Now().UTC(),
	)
	return err
}

func (db *PgRepository) DeleteRoom(id int) error {
	_, err := db.conn.Exec("DELETE FROM rooms WHERE id = $1", id)
	return err
}

func (db *PgRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	res := db.conn.QueryRow(
		"INSERT INTO messages (external_id, room_id, anonymous_name, anonymous_icon, content, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6) "+
			"RETURNING id, external_id, room_id, anonymous_name, anonymous_icon, content, created_at",
		params.ExternalId,
		params.RoomId,
		params.AnonymousName,
		params.AnonymousIcon,
		params.Content,
		params.CreatedAt,
	)

	var m Message
	err := res.Scan(
		&m.Id,
		&m.ExternalId,
		&m.RoomId,
		&m.AnonymousName,
		&m.AnonymousIcon,
		&m.Content,
		&m.CreatedAt,
	)

	return m, err
}

// ListMessages returns the full message history for a room ascending by
// creation time.
func (db *PgRepository) ListMessages(roomId int) ([]Message, error) {
	rows, err := db.conn.Query(
		"SELECT id, external_id, room_id, anonymous_name, anonymous_icon, content, created_at FROM messages "+
			"WHERE room_id = $1 ORDER BY created_at ASC, id ASC",
		roomId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(
			&m.Id,
			&m.ExternalId,
			&m.RoomId,
			&m.AnonymousName,
			&m.AnonymousIcon,
			&m.Content,
			&m.CreatedAt,
		); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}
