package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nearchat/nearchat/internal/access"
	"github.com/nearchat/nearchat/internal/config"
	"github.com/nearchat/nearchat/internal/database"
	"github.com/nearchat/nearchat/internal/server"
	"github.com/nearchat/nearchat/internal/stats"
	"github.com/nearchat/nearchat/internal/testutil"
	"github.com/nearchat/nearchat/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func newTestApp(t *testing.T, db database.Repository, cs *server.ChatServer) *NearChatApp {
	t.Helper()

	cfg := &config.Config{
		ServerAddr:      "localhost:8000",
		AllowedOrigins:  []string{"http://localhost:3000"},
		DefaultRadiusKm: 5,
		SigningKey:      []byte("test-signing-key"),
	}

	logger := testutil.TestLogger(t)
	return NewNearChatApp(http.NewServeMux(), logger, cs, access.NewController(logger, db), db, cfg)
}

// newRunningChatServer starts a chat server loop for handlers that
// unload rooms, and stops it when the test finishes.
func newRunningChatServer(t *testing.T, db database.Repository) *server.ChatServer {
	t.Helper()

	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Return().Times(5)

	logger := testutil.TestLogger(t)
	cs, err := server.NewChatServer(logger, db, access.NewController(logger, db), su)
	if err != nil {
		t.Fatalf("failed to create chat server: %v", err)
	}

	go cs.Run()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := cs.Shutdown(ctx); err != nil {
			t.Errorf("chat server shutdown: %v", err)
		}
	})

	return cs
}

func jsonBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()

	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		t.Fatalf("failed to encode request body: %v", err)
	}
	return buf
}

func findCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range rr.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

func testRoom() database.Room {
	return database.Room{
		Id:         1,
		ExternalId: "EoGKUXPHgz",
		Name:       "washington-square",
		Latitude:   40.0,
		Longitude:  -74.0,
		RadiusKm:   5,
		IsActive:   true,
		OwnerId:    1,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
}

func Test_healthCheck(t *testing.T) {
	tcases := []struct {
		name    string
		mockErr error
	}{
		{name: "successful health check", mockErr: nil},
		{name: "failed health check", mockErr: errors.New("db error")},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockRepository{}
			defer mockRepo.AssertExpectations(t)
			mockRepo.On("Ping").Return(tc.mockErr).Once()

			app := newTestApp(t, mockRepo, nil)
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			app.healthCheck(rr, req)

			if tc.mockErr != nil {
				assert.Equal(t, http.StatusInternalServerError, rr.Code, "expected status code to be 500")
			} else {
				assert.Equal(t, http.StatusOK, rr.Code, "expected status code to be 200")
				assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String(), "expected an ok body")
			}
		})
	}
}

func TestCreateAccountHandler(t *testing.T) {
	expectedUser := database.User{
		Id:           1,
		Username:     "newuser",
		EmailAddress: "newuser@example.com",
		PasswordHash: "hashedpassword",
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}

	tcases := []struct {
		name        string
		body        any
		mockUser    database.User
		mockErr     error
		expectedErr *ApiError
	}{
		{
			name: "successfully creates a new account",
			body: RegisterRequest{
				Username: expectedUser.Username,
				Email:    expectedUser.EmailAddress,
				Password: "password123",
			},
			mockUser: expectedUser,
		},
		{
			name:        "failed with invalid json body",
			body:        "invalid json",
			expectedErr: NewBadRequestError(),
		},
		{
			name: "fails with missing username",
			body: RegisterRequest{
				Email:    expectedUser.EmailAddress,
				Password: "password123",
			},
			expectedErr: NewBadRequestError(),
		},
		{
			name: "fails with malformed email",
			body: RegisterRequest{
				Username: expectedUser.Username,
				Email:    "not-an-email",
				Password: "password123",
			},
			expectedErr: NewBadRequestError(),
		},
		{
			name: "fails with short password",
			body: RegisterRequest{
				Username: expectedUser.Username,
				Email:    expectedUser.EmailAddress,
				Password: "short",
			},
			expectedErr: NewBadRequestError(),
		},
		{
			name: "fails with db error",
			body: RegisterRequest{
				Username: expectedUser.Username,
				Email:    expectedUser.EmailAddress,
				Password: "password123",
			},
			mockErr:     errors.New("db error"),
			expectedErr: NewInternalServerError(nil),
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockRepository{}
			defer mockRepo.AssertExpectations(t)

			if tc.mockUser != (database.User{}) || tc.mockErr != nil {
				regReq := tc.body.(RegisterRequest)
				mockRepo.On("CreateAccount", mock.MatchedBy(func(req database.CreateAccountParams) bool {
					return req.Username == regReq.Username &&
						req.EmailAddress == regReq.Email &&
						verifyPassword(req.PasswordHash, regReq.Password)
				})).Return(tc.mockUser, tc.mockErr).Once()
			}

			app := newTestApp(t, mockRepo, nil)
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/auth/register", jsonBody(t, tc.body))
			app.createAccount(rr, req)

			if tc.expectedErr != nil {
				assert.Equal(t, tc.expectedErr.StatusCode, rr.Code, "expected error status code")
				return
			}

			assert.Equal(t, http.StatusCreated, rr.Code, "expected status code to be 201")

			var u types.User
			assert.NoError(t, json.NewDecoder(rr.Body).Decode(&u), "expected a user in the response")
			assert.Equal(t, expectedUser.Username, u.Username, "expected the created username")
			assert.Equal(t, expectedUser.EmailAddress, u.EmailAddress, "expected the created email")
		})
	}
}

func TestLoginHandler(t *testing.T) {
	pwdHash, err := hashPassword("password123")
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	dbUser := database.User{
		Id:           1,
		Username:     "user",
		EmailAddress: "user@example.com",
		PasswordHash: pwdHash,
	}

	tcases := []struct {
		name         string
		body         LoginRequest
		mockUser     database.User
		mockErr      error
		expectedCode int
		expectCookie bool
	}{
		{
			name:         "successful login sets a session cookie",
			body:         LoginRequest{Email: dbUser.EmailAddress, Password: "password123"},
			mockUser:     dbUser,
			expectedCode: http.StatusOK,
			expectCookie: true,
		},
		{
			name:         "wrong password",
			body:         LoginRequest{Email: dbUser.EmailAddress, Password: "wrong-password"},
			mockUser:     dbUser,
			expectedCode: http.StatusUnauthorized,
		},
		{
			name:         "unknown email",
			body:         LoginRequest{Email: "nobody@example.com", Password: "password123"},
			mockErr:      sql.ErrNoRows,
			expectedCode: http.StatusNotFound,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockRepository{}
			defer mockRepo.AssertExpectations(t)
			mockRepo.On("GetAccountByEmail", tc.body.Email).Return(tc.mockUser, tc.mockErr).Once()

			app := newTestApp(t, mockRepo, nil)
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/auth/login", jsonBody(t, tc.body))
			app.login(rr, req)

			assert.Equal(t, tc.expectedCode, rr.Code, "expected status code to match")

			cookie := findCookie(rr, tokenCookieKey)
			if tc.expectCookie {
				assert.NotNil(t, cookie, "expected a session cookie to be set")
				userId, err := app.extractUserIdFromToken(cookie.Value)
				assert.NoError(t, err, "expected the cookie to hold a valid token")
				assert.Equal(t, dbUser.Id, userId, "expected the token to carry the user id")
			} else {
				assert.Nil(t, cookie, "expected no session cookie on failure")
			}
		})
	}
}

func TestCreateRoomHandler(t *testing.T) {
	tcases := []struct {
		name         string
		body         any
		userId       int
		radiusKm     float64
		expectedCode int
	}{
		{
			name: "successfully creates a room",
			body: CreateRoomRequest{
				Name:      "washington-square",
				Latitude:  40.0,
				Longitude: -74.0,
				RadiusKm:  2.5,
			},
			userId:       1,
			radiusKm:     2.5,
			expectedCode: http.StatusCreated,
		},
		{
			name: "applies the default radius when omitted",
			body: CreateRoomRequest{
				Name:      "washington-square",
				Latitude:  40.0,
				Longitude: -74.0,
			},
			userId:       1,
			radiusKm:     5,
			expectedCode: http.StatusCreated,
		},
		{
			name: "rejects an out-of-range latitude",
			body: CreateRoomRequest{
				Name:      "washington-square",
				Latitude:  91.0,
				Longitude: -74.0,
			},
			userId:       1,
			expectedCode: http.StatusBadRequest,
		},
		{
			name: "rejects a negative radius",
			body: CreateRoomRequest{
				Name:      "washington-square",
				Latitude:  40.0,
				Longitude: -74.0,
				RadiusKm:  -1,
			},
			userId:       1,
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "rejects a missing name",
			body:         CreateRoomRequest{Latitude: 40.0, Longitude: -74.0},
			userId:       1,
			expectedCode: http.StatusBadRequest,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockRepository{}
			defer mockRepo.AssertExpectations(t)

			app := newTestApp(t, mockRepo, nil)
			app.generateShortId = func() (string, error) { return "EoGKUXPHgz", nil }

			if tc.expectedCode == http.StatusCreated {
				roomReq := tc.body.(CreateRoomRequest)
				mockRepo.On("CreateRoom", mock.MatchedBy(func(p database.CreateRoomParams) bool {
					return p.Name == roomReq.Name &&
						p.Latitude == roomReq.Latitude &&
						p.Longitude == roomReq.Longitude &&
						p.RadiusKm == tc.radiusKm &&
						p.OwnerId == tc.userId &&
						p.ExternalId == "EoGKUXPHgz"
				})).Return(database.Room{
					Id:         1,
					ExternalId: "EoGKUXPHgz",
					Name:       roomReq.Name,
					Latitude:   roomReq.Latitude,
					Longitude:  roomReq.Longitude,
					RadiusKm:   tc.radiusKm,
					IsActive:   true,
					OwnerId:    tc.userId,
				}, nil).Once()
			}

			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/rooms", jsonBody(t, tc.body))
			req = req.WithContext(WithUserId(req.Context(), tc.userId))
			app.createRoom(rr, req)

			assert.Equal(t, tc.expectedCode, rr.Code, "expected status code to match")

			if tc.expectedCode == http.StatusCreated {
				var room types.Room
				assert.NoError(t, json.NewDecoder(rr.Body).Decode(&room), "expected a room in the response")
				assert.Equal(t, "EoGKUXPHgz", room.ExternalId, "expected the generated external id")
				assert.Equal(t, tc.radiusKm, room.RadiusKm, "expected the effective radius")
				assert.True(t, room.IsActive, "expected a new room to be active")
			}
		})
	}
}

func TestGetRoomHandler(t *testing.T) {
	tcases := []struct {
		name         string
		externalId   string
		mockRoom     database.Room
		mockErr      error
		expectedCode int
	}{
		{
			name:         "returns room metadata",
			externalId:   "EoGKUXPHgz",
			mockRoom:     testRoom(),
			expectedCode: http.StatusOK,
		},
		{
			name:         "missing id parameter",
			externalId:   "",
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "unknown room",
			externalId:   "nonexistent",
			mockErr:      sql.ErrNoRows,
			expectedCode: http.StatusNotFound,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockRepository{}
			defer mockRepo.AssertExpectations(t)

			if tc.externalId != "" {
				mockRepo.On("GetRoomByExternalId", tc.externalId).Return(tc.mockRoom, tc.mockErr).Once()
			}

			app := newTestApp(t, mockRepo, nil)
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/rooms?id="+tc.externalId, nil)
			app.getRoom(rr, req)

			assert.Equal(t, tc.expectedCode, rr.Code, "expected status code to match")

			if tc.expectedCode == http.StatusOK {
				var room types.Room
				assert.NoError(t, json.NewDecoder(rr.Body).Decode(&room), "expected a room in the response")
				assert.Equal(t, tc.mockRoom.ExternalId, room.ExternalId, "expected the room's external id")
				assert.Equal(t, tc.mockRoom.RadiusKm, room.RadiusKm, "expected the room's radius")
			}
		})
	}
}

func TestListOwnedRoomsHandler(t *testing.T) {
	mockRepo := &database.MockRepository{}
	defer mockRepo.AssertExpectations(t)
	mockRepo.On("ListRoomsByOwner", 1).Return([]database.Room{testRoom()}, nil).Once()

	app := newTestApp(t, mockRepo, nil)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/rooms/owned", nil)
	req = req.WithContext(WithUserId(req.Context(), 1))
	app.listOwnedRooms(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code, "expected status code to be 200")

	var rooms []types.Room
	assert.NoError(t, json.NewDecoder(rr.Body).Decode(&rooms), "expected a room list in the response")
	assert.Len(t, rooms, 1, "expected a single owned room")
	assert.Equal(t, "EoGKUXPHgz", rooms[0].ExternalId, "expected the owned room")
}

func TestDeleteRoomHandler(t *testing.T) {
	t.Run("owner deletes a room", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("GetRoomByExternalId", "EoGKUXPHgz").Return(testRoom(), nil).Once()
		mockRepo.On("DeleteRoom", 1).Return(nil).Once()

		cs := newRunningChatServer(t, mockRepo)
		app := newTestApp(t, mockRepo, cs)

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodDelete, "/api/rooms?id=EoGKUXPHgz", nil)
		req = req.WithContext(WithUserId(req.Context(), 1))
		app.deleteRoom(rr, req)

		assert.Equal(t, http.StatusNoContent, rr.Code, "expected status code to be 204")
	})

	t.Run("non-owner is refused", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("GetRoomByExternalId", "EoGKUXPHgz").Return(testRoom(), nil).Once()

		app := newTestApp(t, mockRepo, nil)

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodDelete, "/api/rooms?id=EoGKUXPHgz", nil)
		req = req.WithContext(WithUserId(req.Context(), 2))
		app.deleteRoom(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code, "expected status code to be 403")
	})
}

func TestDeactivateRoomHandler(t *testing.T) {
	mockRepo := &database.MockRepository{}
	defer mockRepo.AssertExpectations(t)
	mockRepo.On("GetRoomByExternalId", "EoGKUXPHgz").Return(testRoom(), nil).Once()
	mockRepo.On("DeactivateRoom", 1).Return(nil).Once()

	cs := newRunningChatServer(t, mockRepo)
	app := newTestApp(t, mockRepo, cs)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/rooms/deactivate?id=EoGKUXPHgz", nil)
	req = req.WithContext(WithUserId(req.Context(), 1))
	app.deactivateRoom(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code, "expected status code to be 200")

	var room types.Room
	assert.NoError(t, json.NewDecoder(rr.Body).Decode(&room), "expected a room in the response")
	assert.False(t, room.IsActive, "expected the room to be inactive")
}

func TestCheckAccessHandler(t *testing.T) {
	tcases := []struct {
		name     string
		body     AccessCheckRequest
		mockRoom database.Room
		mockErr  error
		decision access.Decision
	}{
		{
			name: "granted inside the radius",
			body: AccessCheckRequest{
				RoomId:   "EoGKUXPHgz",
				Position: &types.Position{Latitude: 40.03, Longitude: -74.0},
			},
			mockRoom: testRoom(),
			decision: access.Granted,
		},
		{
			name: "denied outside the radius",
			body: AccessCheckRequest{
				RoomId:   "EoGKUXPHgz",
				Position: &types.Position{Latitude: 40.1, Longitude: -74.0},
			},
			mockRoom: testRoom(),
			decision: access.DeniedTooFar,
		},
		{
			name:     "denied without a position",
			body:     AccessCheckRequest{RoomId: "EoGKUXPHgz"},
			mockRoom: testRoom(),
			decision: access.DeniedNoLocation,
		},
		{
			name: "denied for an unknown room",
			body: AccessCheckRequest{
				RoomId:   "nonexistent",
				Position: &types.Position{Latitude: 40.0, Longitude: -74.0},
			},
			mockErr:  sql.ErrNoRows,
			decision: access.DeniedRoomMissing,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockRepository{}
			defer mockRepo.AssertExpectations(t)
			mockRepo.On("GetRoomByExternalId", tc.body.RoomId).Return(tc.mockRoom, tc.mockErr).Once()

			app := newTestApp(t, mockRepo, nil)
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/access", jsonBody(t, tc.body))
			app.checkAccess(rr, req)

			assert.Equal(t, http.StatusOK, rr.Code, "expected the check itself to succeed")

			var status AccessStatus
			assert.NoError(t, json.NewDecoder(rr.Body).Decode(&status), "expected an access status")
			assert.Equal(t, tc.decision, status.Decision, "expected the decision to match")
			assert.Equal(t, tc.decision.Reason(), status.Reason, "expected the decision's reason")

			if tc.decision == access.DeniedRoomMissing {
				assert.Nil(t, status.Room, "expected no room for a missing room")
			} else {
				assert.NotNil(t, status.Room, "expected the room to be included")
			}
		})
	}
}

func TestGetMessagesHandler(t *testing.T) {
	t.Run("returns history inside the radius", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("GetRoomByExternalId", "EoGKUXPHgz").Return(testRoom(), nil).Once()
		mockRepo.On("ListMessages", 1).Return([]database.Message{
			{
				Id:            1,
				ExternalId:    "11111111-1111-1111-1111-111111111111",
				RoomId:        1,
				AnonymousName: "Mysterious Owl",
				AnonymousIcon: "🦉",
				Content:       "hello",
				CreatedAt:     time.Now().UTC(),
			},
		}, nil).Once()

		app := newTestApp(t, mockRepo, nil)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/messages?room_id=EoGKUXPHgz&latitude=40.03&longitude=-74.0", nil)
		app.getMessages(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code, "expected status code to be 200")

		var messages []types.Message
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&messages), "expected a message list")
		assert.Len(t, messages, 1, "expected a single message")
		assert.Equal(t, "EoGKUXPHgz", messages[0].RoomId, "expected the room's external id")
		assert.Equal(t, "Mysterious Owl", messages[0].AnonymousName, "expected the anonymous sender")
	})

	t.Run("refuses history outside the radius", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("GetRoomByExternalId", "EoGKUXPHgz").Return(testRoom(), nil).Once()

		app := newTestApp(t, mockRepo, nil)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/messages?room_id=EoGKUXPHgz&latitude=40.1&longitude=-74.0", nil)
		app.getMessages(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code, "expected status code to be 403")

		var status AccessStatus
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&status), "expected an access status")
		assert.Equal(t, access.DeniedTooFar, status.Decision, "expected a too-far denial")
	})

	t.Run("refuses history without coordinates", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("GetRoomByExternalId", "EoGKUXPHgz").Return(testRoom(), nil).Once()

		app := newTestApp(t, mockRepo, nil)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/messages?room_id=EoGKUXPHgz", nil)
		app.getMessages(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code, "expected status code to be 400")
	})

	t.Run("rejects unparseable coordinates", func(t *testing.T) {
		app := newTestApp(t, &database.MockRepository{}, nil)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/messages?room_id=EoGKUXPHgz&latitude=abc&longitude=-74.0", nil)
		app.getMessages(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code, "expected status code to be 400")
	})

	t.Run("rejects a missing room id", func(t *testing.T) {
		app := newTestApp(t, &database.MockRepository{}, nil)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/messages", nil)
		app.getMessages(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code, "expected status code to be 400")
	})
}
