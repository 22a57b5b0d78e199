package server

import (
	"context"
	"log"
	"sync"

	"github.com/nearchat/nearchat/internal/access"
	"github.com/nearchat/nearchat/internal/database"
	"github.com/nearchat/nearchat/internal/stats"
)

const (
	statActiveConnections = "ActiveConnections"
	statActiveRooms       = "ActiveRooms"
	statMessagesSent      = "MessagesSent"
	statJoinsGranted      = "JoinsGranted"
	statJoinsDenied       = "JoinsDenied"
)

type unloadRoomRequest struct {
	roomId  string
	deleted bool
	notify  bool
	done    chan struct{}
}

// ChatServer owns the set of live rooms and connected sessions. Every
// join is gated through the access controller with the position the
// client observed; the decision is evaluated fresh on each attempt so a
// deactivated room denies the next join even while still loaded.
type ChatServer struct {
	log            *log.Logger
	db             database.Repository
	access         *access.Controller
	stats          stats.StatsProvider
	clients        map[*Client]struct{}
	clientsLock    sync.Mutex
	joinChan       chan *ClientMessage
	registerChan   chan *Client
	deregisterChan chan *Client
	unloadRoomChan chan unloadRoomRequest
	rooms          map[string]*Room
	stop           chan struct{}
	done           chan struct{}
}

func NewChatServer(logger *log.Logger, db database.Repository, ac *access.Controller, su stats.StatsProvider) (*ChatServer, error) {
	for _, metric := range []string{
		statActiveConnections,
		statActiveRooms,
		statMessagesSent,
		statJoinsGranted,
		statJoinsDenied,
	} {
		su.RegisterMetric(metric)
	}

	return &ChatServer{
		log:            logger,
		db:             db,
		access:         ac,
		stats:          su,
		clients:        make(map[*Client]struct{}),
		joinChan:       make(chan *ClientMessage, 256),
		registerChan:   make(chan *Client),
		deregisterChan: make(chan *Client),
		unloadRoomChan: make(chan unloadRoomRequest, 16),
		rooms:          make(map[string]*Room),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}, nil
}

func (cs *ChatServer) Run() {
	for {
		select {
		case joinMsg := <-cs.joinChan:
			cs.handleJoin(joinMsg)
		case client := <-cs.registerChan:
			cs.addClient(client)
			cs.stats.Incr(statActiveConnections)
		case client := <-cs.deregisterChan:
			cs.removeClient(client)
			cs.stats.Decr(statActiveConnections)
		case req := <-cs.unloadRoomChan:
			cs.handleUnload(req)
		case <-cs.stop:
			cs.log.Println("shutting down rooms")
			for _, r := range cs.rooms {
				done := make(chan struct{})
				r.exit <- exitReq{notify: true, done: done}
				<-done
			}

			close(cs.done)
			return
		}
	}
}

// handleJoin evaluates access for the attempt and, when granted, hands
// the client over to the room goroutine. The room is loaded on demand.
func (cs *ChatServer) handleJoin(join *ClientMessage) {
	decision, dbRoom, err := cs.access.Evaluate(join.Join.RoomId, join.Join.Position)
	if err != nil {
		cs.log.Println("evaluate access:", err)
		join.client.queueMessage(ErrInternalError(join.Id))
		return
	}

	if decision != access.Granted {
		cs.stats.Incr(statJoinsDenied)
		join.client.queueMessage(ErrAccessDenied(join.Id, decision))
		return
	}
	cs.stats.Incr(statJoinsGranted)

	room, ok := cs.rooms[join.Join.RoomId]
	if !ok {
		room = &Room{
			id:          dbRoom.Id,
			externalId:  dbRoom.ExternalId,
			cs:          cs,
			joinChan:    make(chan *ClientMessage, 256),
			leaveChan:   make(chan *ClientMessage, 256),
			publishChan: make(chan *ClientMessage, 256),
			clients:     make(map[*Client]struct{}),
			log:         cs.log,
			exit:        make(chan exitReq),
		}

		cs.rooms[room.externalId] = room
		cs.stats.Incr(statActiveRooms)
		go room.start()
	}

	select {
	case room.joinChan <- join:
	default:
		cs.log.Printf("join channel full on room %q", room.externalId)
		join.client.queueMessage(ErrServiceUnavailable(join.Id))
	}
}

func (cs *ChatServer) handleUnload(req unloadRoomRequest) {
	r, ok := cs.rooms[req.roomId]
	if !ok {
		if req.done != nil {
			close(req.done)
		}
		return
	}

	cs.log.Printf("unloading room %q", r.externalId)
	delete(cs.rooms, req.roomId)
	cs.stats.Decr(statActiveRooms)

	r.exit <- exitReq{
		notify:  req.notify,
		deleted: req.deleted,
		done:    req.done,
	}
}

// requestUnload is used by idle rooms; it must not block the room
// goroutine.
func (cs *ChatServer) requestUnload(req unloadRoomRequest) bool {
	select {
	case cs.unloadRoomChan <- req:
		return true
	default:
		return false
	}
}

// UnloadRoom evicts a live room, notifying its clients. It is called
// after the room has been deactivated or deleted in the store and waits
// for the room goroutine to finish cleaning up.
func (cs *ChatServer) UnloadRoom(ctx context.Context, roomId string, deleted bool) error {
	done := make(chan struct{})
	req := unloadRoomRequest{
		roomId:  roomId,
		deleted: deleted,
		notify:  true,
		done:    done,
	}

	select {
	case cs.unloadRoomChan <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (cs *ChatServer) RegisterClient(c *Client) {
	select {
	case cs.registerChan <- c:
	case <-cs.done:
	}
}

func (cs *ChatServer) DeregisterClient(c *Client) {
	select {
	case cs.deregisterChan <- c:
	case <-cs.done:
	}
}

func (cs *ChatServer) addClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()
	cs.clients[c] = struct{}{}
}

func (cs *ChatServer) removeClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()
	delete(cs.clients, c)
}

func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.clientsLock.Lock()
	for c := range cs.clients {
		c.stopClient()
	}
	cs.clientsLock.Unlock()

	close(cs.stop)

	select {
	case <-cs.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
