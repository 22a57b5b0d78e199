package server

import (
	"net/http"
	"time"

	"github.com/nearchat/nearchat/internal/access"
	"github.com/nearchat/nearchat/internal/identity"
	"github.com/nearchat/nearchat/internal/types"
)

// maxContentLength is the longest message body accepted, in runes,
// after trimming.
const maxContentLength = 500

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type ClientMessage struct {
	BaseMessage
	Join    *Join    `json:"join,omitempty"`
	Leave   *Leave   `json:"leave,omitempty"`
	Publish *Publish `json:"publish,omitempty"`
	client  *Client
}

// Join is a request to enter a room's message stream. Position is the
// client's observed device position; nil means geolocation was
// unavailable or refused, which always denies entry.
type Join struct {
	RoomId   string          `json:"room_id"`
	Position *types.Position `json:"position,omitempty"`
}

type Leave struct {
	RoomId string `json:"room_id"`
}

type Publish struct {
	RoomId  string `json:"room_id"`
	Content string `json:"content"`
}

type ServerMessage struct {
	BaseMessage
	Response     *Response      `json:"response,omitempty"`
	Session      *SessionInfo   `json:"session,omitempty"`
	History      *History       `json:"history,omitempty"`
	Message      *types.Message `json:"message,omitempty"`
	Notification *Notification  `json:"notification,omitempty"`
	SkipClient   *Client        `json:"-"`
}

// SessionInfo announces the anonymous identity assigned to a session.
// It is the first message on every connection.
type SessionInfo struct {
	Identity identity.Identity `json:"identity"`
}

// History is the full message snapshot delivered on a granted join,
// ascending by creation time. It always precedes any live message for
// the room on that connection.
type History struct {
	RoomId   string          `json:"room_id"`
	Messages []types.Message `json:"messages"`
}

type Response struct {
	ResponseCode int             `json:"response_code"`
	Error        string          `json:"error,omitempty"`
	Decision     access.Decision `json:"decision,omitempty"`
	Data         any             `json:"data,omitempty"`
}

type Notification struct {
	RoomClosed *RoomClosed `json:"room_closed,omitempty"`
}

type RoomClosed struct {
	RoomId  string `json:"room_id"`
	Deleted bool   `json:"deleted"`
}

func NoErrOK(id int, data any) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusOK,
			Data:         data,
		},
	}
}

func NoErrAccepted(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusAccepted,
		},
	}
}

// DecisionStatusCode maps a denied access decision to an HTTP-style
// response code.
func DecisionStatusCode(d access.Decision) int {
	switch d {
	case access.Granted:
		return http.StatusOK
	case access.DeniedRoomMissing:
		return http.StatusNotFound
	case access.DeniedRoomInactive:
		return http.StatusGone
	case access.DeniedNoLocation:
		return http.StatusBadRequest
	case access.DeniedTooFar:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func ErrAccessDenied(id int, d access.Decision) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: DecisionStatusCode(d),
			Error:        d.Reason(),
			Decision:     d,
		},
	}
}

func ErrNotJoined(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusForbidden,
			Error:        "join the room before sending",
		},
	}
}

func ErrInternalError(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusInternalServerError,
			Error:        "internal server error",
		},
	}
}

func ErrServiceUnavailable(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusServiceUnavailable,
			Error:        "service unavailable",
		},
	}
}

func ErrInvalidMessage(id int) *ServerMessage {
	msg := &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusBadRequest,
			Error:        "invalid message format",
		},
	}

	if id > 0 {
		msg.Id = id
	}
	return msg
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
