package server

import (
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/nearchat/nearchat/internal/database"
	"github.com/nearchat/nearchat/internal/types"
)

const idleRoomTimeout = time.Second * 5

type exitReq struct {
	// notify broadcasts a room-closed notification before detaching clients
	notify  bool
	deleted bool
	done    chan struct{}
}

// Room is the live fan-out loop for one chat room. All joins, leaves and
// publishes for the room are serialized through its goroutine, which is
// what makes the history snapshot atomic with subscription: no insert
// can land between loading history for a joining client and adding that
// client to the broadcast set.
type Room struct {
	id         int
	externalId string
	cs         *ChatServer

	joinChan    chan *ClientMessage
	leaveChan   chan *ClientMessage
	publishChan chan *ClientMessage

	clients    map[*Client]struct{}
	clientLock sync.RWMutex
	log        *log.Logger
	// killTimer is used to automatically unload the room when it is no longer active
	killTimer *time.Timer
	// exit is used to signal the room to exit
	exit chan exitReq
}

func (r *Room) start() {
	r.log.Printf("starting room %q", r.externalId)
	r.killTimer = time.NewTimer(idleRoomTimeout)
	r.killTimer.Stop()

	for {
		select {
		case join := <-r.joinChan:
			r.handleJoin(join)
		case leaveMsg := <-r.leaveChan:
			r.handleLeave(leaveMsg)
		case msg := <-r.publishChan:
			r.saveAndBroadcast(msg)
		case <-r.killTimer.C:
			r.handleRoomTimeout()
		case e := <-r.exit:
			r.handleRoomExit(e)
			return
		}
	}
}

// handleJoin delivers the history snapshot and subscribes the client.
// Access has already been granted by the chat server; this only handles
// the ordered handover into the live stream.
func (r *Room) handleJoin(join *ClientMessage) {
	// stop the kill timer since we have a new client
	r.killTimer.Stop()

	c := join.client

	dbMessages, err := r.cs.db.ListMessages(r.id)
	if err != nil {
		r.log.Println("ListMessages:", err)
		c.queueMessage(ErrInternalError(join.Id))
		if len(r.clients) == 0 {
			r.killTimer.Reset(idleRoomTimeout)
		}
		return
	}

	history := make([]types.Message, len(dbMessages))
	for i, m := range dbMessages {
		history[i] = r.apiMessage(m)
	}

	c.queueMessage(NoErrOK(join.Id, nil))
	c.queueMessage(&ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		History: &History{
			RoomId:   r.externalId,
			Messages: history,
		},
	})

	// subscribe only after the snapshot is queued; any message published
	// from here on is broadcast to this client
	r.addClient(c)
}

func (r *Room) handleLeave(leaveMsg *ClientMessage) {
	client := leaveMsg.client
	r.removeClient(client)

	if leaveMsg.Leave != nil && leaveMsg.Id != 0 {
		client.queueMessage(NoErrOK(leaveMsg.Id, nil))
	}
}

func (r *Room) handleRoomTimeout() {
	r.log.Printf("room %q timed out", r.externalId)
	if !r.cs.requestUnload(unloadRoomRequest{roomId: r.externalId}) {
		// unload request did not go through, try again later
		r.killTimer.Reset(idleRoomTimeout)
	}
}

func (r *Room) handleRoomExit(e exitReq) {
	r.log.Printf("room %q is exiting", r.externalId)
	if e.notify {
		// let connected clients know the room is closed to further sends
		r.broadcast(&ServerMessage{
			BaseMessage: BaseMessage{
				Timestamp: Now(),
			},
			Notification: &Notification{
				RoomClosed: &RoomClosed{
					RoomId:  r.externalId,
					Deleted: e.deleted,
				},
			},
		})
	}

	// remove the room for all clients
	r.clientLock.Lock()
	for c := range r.clients {
		c.delRoom(r.externalId)
	}
	r.clientLock.Unlock()

	// notify the chat server the room is done cleaning up
	if e.done != nil {
		close(e.done)
	}
}

// saveAndBroadcast validates and persists a published message, then
// fans it out to every subscribed client, the sender included. Senders
// render their own message only from this echo.
func (r *Room) saveAndBroadcast(msg *ClientMessage) {
	content := strings.TrimSpace(msg.Publish.Content)
	if content == "" || utf8.RuneCountInString(content) > maxContentLength {
		msg.client.queueMessage(ErrInvalidMessage(msg.Id))
		return
	}

	dbMsg, err := r.cs.db.CreateMessage(database.CreateMessageParams{
		ExternalId:    uuid.NewString(),
		RoomId:        r.id,
		AnonymousName: msg.client.identity.Name,
		AnonymousIcon: msg.client.identity.Icon,
		Content:       content,
		CreatedAt:     msg.Timestamp,
	})
	if err != nil {
		r.log.Println("error saving message:", err)
		msg.client.queueMessage(ErrInternalError(msg.Id))
		return
	}

	r.cs.stats.Incr(statMessagesSent)
	msg.client.queueMessage(NoErrAccepted(msg.Id))

	apiMsg := r.apiMessage(dbMsg)
	r.broadcast(&ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: dbMsg.CreatedAt,
		},
		Message: &apiMsg,
	})
}

func (r *Room) broadcast(msg *ServerMessage) {
	r.clientLock.RLock()
	defer r.clientLock.RUnlock()

	for client := range r.clients {
		if client == msg.SkipClient {
			continue
		}

		client.queueMessage(msg)
	}
}

func (r *Room) addClient(c *Client) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	r.clients[c] = struct{}{}
	c.addRoom(r)
}

func (r *Room) removeClient(c *Client) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	// check if the client is in the room
	if _, ok := r.clients[c]; !ok {
		return
	}

	delete(r.clients, c)
	c.delRoom(r.externalId)

	// if the client is the last one in the room, start the kill timer
	if len(r.clients) == 0 {
		r.log.Printf("no clients in %q, starting kill timer", r.externalId)
		r.killTimer.Reset(idleRoomTimeout)
	}
}

func (r *Room) apiMessage(m database.Message) types.Message {
	return types.Message{
		Id:            m.ExternalId,
		RoomId:        r.externalId,
		AnonymousName: m.AnonymousName,
		AnonymousIcon: m.AnonymousIcon,
		Content:       m.Content,
		Timestamp:     m.CreatedAt,
	}
}
