// Package chatclient implements the client side of a chat session: it
// dials the server, surrenders a single position fix for the access
// check, and maintains the room's message feed.
package chatclient

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/nearchat/nearchat/internal/identity"
	"github.com/nearchat/nearchat/internal/server"
	"github.com/nearchat/nearchat/internal/types"
)

// maxContentLength mirrors the server's message length limit so an
// oversized message is refused before it is put on the wire.
const maxContentLength = 500

type State string

const (
	StateInitializing     State = "initializing"
	StateAwaitingLocation State = "awaiting-location"
	StateActive           State = "active"
	StateDenied           State = "denied"
	StateStopped          State = "stopped"
)

// LocationProvider supplies the device's current position. A nil
// provider or a provider error is treated as location unavailable, the
// join is still attempted and the server decides.
type LocationProvider interface {
	CurrentPosition(ctx context.Context) (*types.Position, error)
}

type Options struct {
	// OnMessage is invoked for every message appended to the feed,
	// history and live alike.
	OnMessage func(types.Message)
	OnError   func(error)
}

type Session struct {
	url      string
	roomId   string
	location LocationProvider
	log      *log.Logger

	onMessage func(types.Message)
	onError   func(error)

	mu       sync.Mutex
	state    State
	reason   string
	identity identity.Identity
	messages []types.Message
	conn     *websocket.Conn
	nextId   int

	stop     chan struct{}
	stopOnce sync.Once
}

func NewSession(url, roomId string, lp LocationProvider, logger *log.Logger, opts *Options) *Session {
	s := &Session{
		url:      url,
		roomId:   roomId,
		location: lp,
		log:      logger,
		state:    StateInitializing,
		stop:     make(chan struct{}),
	}

	if opts != nil {
		s.onMessage = opts.OnMessage
		s.onError = opts.OnError
	}

	return s
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Reason returns the user-facing explanation for a denied or closed
// session, empty otherwise.
func (s *Session) Reason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Identity returns the anonymous identity the server assigned for this
// session. It is only meaningful once Start has read the hello frame.
func (s *Session) Identity() identity.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// Messages returns a copy of the feed in delivery order: the history
// snapshot first, then live messages as they arrived.
func (s *Session) Messages() []types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := make([]types.Message, len(s.messages))
	copy(msgs, s.messages)
	return msgs
}

// IsMine reports whether a message was sent by this session, by
// comparing its anonymous identity against the session's own.
func (s *Session) IsMine(m types.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return m.AnonymousName == s.identity.Name && m.AnonymousIcon == s.identity.Icon
}

// Start dials the server and joins the room. It returns once the join
// is resolved: on a grant the history snapshot has been loaded and a
// reader goroutine follows the live feed, on a denial the session is in
// StateDenied with the server's reason. A non-nil error means the
// session could not be established at all.
func (s *Session) Start(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		s.setState(StateStopped, "")
		return fmt.Errorf("dial %s: %w", s.url, err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	// the first frame is the session hello carrying our identity
	var hello server.ServerMessage
	if err := conn.ReadJSON(&hello); err != nil {
		s.teardown("")
		return fmt.Errorf("read session hello: %w", err)
	}
	if hello.Session == nil {
		s.teardown("")
		return fmt.Errorf("expected a session hello, got another frame")
	}

	s.mu.Lock()
	s.identity = hello.Session.Identity
	s.state = StateAwaitingLocation
	s.mu.Unlock()

	position := s.currentPosition(ctx)
	select {
	case <-ctx.Done():
		s.teardown("")
		return ctx.Err()
	case <-s.stop:
		return fmt.Errorf("session stopped")
	default:
	}

	if err := s.send(&server.ClientMessage{
		BaseMessage: server.BaseMessage{Id: s.messageId(), Timestamp: server.Now()},
		Join:        &server.Join{RoomId: s.roomId, Position: position},
	}); err != nil {
		s.teardown("")
		return fmt.Errorf("send join: %w", err)
	}

	var resp server.ServerMessage
	if err := conn.ReadJSON(&resp); err != nil {
		s.teardown("")
		return fmt.Errorf("read join response: %w", err)
	}
	if resp.Response == nil {
		s.teardown("")
		return fmt.Errorf("expected a join response, got another frame")
	}

	if resp.Response.ResponseCode != 200 {
		s.setState(StateDenied, resp.Response.Error)
		s.teardownConn()
		return nil
	}

	var history server.ServerMessage
	if err := conn.ReadJSON(&history); err != nil {
		s.teardown("")
		return fmt.Errorf("read history: %w", err)
	}
	if history.History == nil {
		s.teardown("")
		return fmt.Errorf("expected a history snapshot, got another frame")
	}

	s.mu.Lock()
	s.messages = append(s.messages, history.History.Messages...)
	s.state = StateActive
	s.mu.Unlock()

	if s.onMessage != nil {
		for _, m := range history.History.Messages {
			s.onMessage(m)
		}
	}

	go s.readLoop()

	return nil
}

// currentPosition asks the provider for a single fix. Any failure
// degrades to a nil position, the server turns that into a denial with
// its own reason.
func (s *Session) currentPosition(ctx context.Context) *types.Position {
	if s.location == nil {
		return nil
	}

	pos, err := s.location.CurrentPosition(ctx)
	if err != nil {
		if s.log != nil {
			s.log.Printf("current position: %v", err)
		}
		return nil
	}

	return pos
}

// Send publishes a message to the joined room. Empty (after trimming)
// or oversized content is refused locally without touching the wire.
// The message appears in the feed only when the server echoes it back.
func (s *Session) Send(content string) error {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	if state != StateActive {
		return fmt.Errorf("session is not active")
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return fmt.Errorf("message is empty")
	}
	if len([]rune(content)) > maxContentLength {
		return fmt.Errorf("message exceeds %d characters", maxContentLength)
	}

	return s.send(&server.ClientMessage{
		BaseMessage: server.BaseMessage{Id: s.messageId(), Timestamp: server.Now()},
		Publish:     &server.Publish{RoomId: s.roomId, Content: content},
	})
}

// Stop tears the session down. It is safe to call from any state and
// more than once.
func (s *Session) Stop() {
	s.teardown("")
}

func (s *Session) send(msg *server.ClientMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("no connection")
	}

	return s.conn.WriteJSON(msg)
}

func (s *Session) messageId() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextId++
	return s.nextId
}

func (s *Session) setState(state State, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	if reason != "" {
		s.reason = reason
	}
}

func (s *Session) readLoop() {
	for {
		var msg server.ServerMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			select {
			case <-s.stop:
				// deliberate shutdown
			default:
				if s.onError != nil {
					s.onError(err)
				}
				s.teardown("")
			}
			return
		}

		switch {
		case msg.Message != nil:
			s.mu.Lock()
			s.messages = append(s.messages, *msg.Message)
			s.mu.Unlock()
			if s.onMessage != nil {
				s.onMessage(*msg.Message)
			}
		case msg.Notification != nil && msg.Notification.RoomClosed != nil:
			reason := "this room is no longer active"
			if msg.Notification.RoomClosed.Deleted {
				reason = "this room doesn't exist or has been deleted"
			}
			s.teardown(reason)
			return
		case msg.Response != nil:
			if msg.Response.Error != "" && s.onError != nil {
				s.onError(fmt.Errorf("%s", msg.Response.Error))
			}
		}
	}
}

func (s *Session) teardown(reason string) {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	s.setState(StateStopped, reason)
	s.teardownConn()
}

func (s *Session) teardownConn() {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}
