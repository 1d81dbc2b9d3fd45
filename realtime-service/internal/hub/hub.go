package hub

import (
	"context"

	"github.com/samber/lo"

	pkglog "github.com/weiawesome/wes-board/pkg/log"
)

// Hub owns the room membership table. Every mutation and every fan-out runs
// on the goroutine executing Run, in the order the operations were
// submitted, so the table is never locked. One connection submits from one
// reader goroutine, which keeps its events in order.
type Hub struct {
	clients map[string]*Client            // clientID -> client
	rooms   map[string]map[string]*Client // projectID -> clientID -> client
	ops     chan op
	done    chan struct{}
}

// RoomMessage is a frame addressed to a project room.
type RoomMessage struct {
	RoomID  string
	Message []byte
	// Exclude is the id of a client that must not receive the frame.
	Exclude string
	// RequireMember, when set, drops the frame unless that client is a
	// member of the room.
	RequireMember string
}

type opKind int

const (
	opRegister opKind = iota
	opUnregister
	opJoin
	opLeave
	opBroadcast
	opDirect
	opInspect
)

type op struct {
	kind    opKind
	client  *Client
	roomID  string
	data    []byte
	msg     *RoomMessage
	inspect func()
}

// NewHub creates a hub. Call Run before submitting operations.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]*Client),
		ops:     make(chan op, 256),
		done:    make(chan struct{}),
	}
}

// Run processes operations until ctx is cancelled. On exit every client's
// send channel is closed so its write pump can say goodbye.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		for _, c := range h.clients {
			h.removeClient(c)
		}
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case o := <-h.ops:
			h.apply(o)
		}
	}
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

func (h *Hub) apply(o op) {
	l := pkglog.L()

	switch o.kind {
	case opRegister:
		h.clients[o.client.ID] = o.client
		l.Debug().Str(pkglog.FieldConnectionID, o.client.ID).Msg("client registered")

	case opUnregister:
		if _, ok := h.clients[o.client.ID]; ok {
			h.removeClient(o.client)
			l.Debug().Str(pkglog.FieldConnectionID, o.client.ID).Msg("client unregistered")
		}

	case opJoin:
		// A join that races a disconnect must not resurrect membership.
		if _, ok := h.clients[o.client.ID]; !ok {
			return
		}
		room, ok := h.rooms[o.roomID]
		if !ok {
			room = make(map[string]*Client)
			h.rooms[o.roomID] = room
		}
		room[o.client.ID] = o.client
		o.client.rooms[o.roomID] = struct{}{}
		l.Debug().Str(pkglog.FieldConnectionID, o.client.ID).Str(pkglog.FieldProjectID, o.roomID).Msg("client joined room")

	case opLeave:
		h.leave(o.client, o.roomID)
		l.Debug().Str(pkglog.FieldConnectionID, o.client.ID).Str(pkglog.FieldProjectID, o.roomID).Msg("client left room")

	case opBroadcast:
		h.broadcast(o.msg)

	case opDirect:
		if _, ok := h.clients[o.client.ID]; ok {
			h.deliver(o.client, o.data)
		}

	case opInspect:
		o.inspect()
	}
}

func (h *Hub) broadcast(msg *RoomMessage) {
	room, ok := h.rooms[msg.RoomID]
	if !ok {
		return
	}
	if msg.RequireMember != "" {
		if _, member := room[msg.RequireMember]; !member {
			return
		}
	}
	for clientID, client := range room {
		if clientID == msg.Exclude {
			continue
		}
		h.deliver(client, msg.Message)
	}
}

// deliver never blocks the loop: a client whose buffer is full is dropped.
func (h *Hub) deliver(client *Client, data []byte) {
	select {
	case client.Send <- data:
	default:
		l := pkglog.L()
		l.Warn().Str(pkglog.FieldConnectionID, client.ID).Msg("send buffer full, dropping client")
		h.removeClient(client)
	}
}

func (h *Hub) leave(client *Client, roomID string) {
	if room, ok := h.rooms[roomID]; ok {
		delete(room, client.ID)
		if len(room) == 0 {
			delete(h.rooms, roomID)
		}
	}
	delete(client.rooms, roomID)
}

func (h *Hub) removeClient(client *Client) {
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	for roomID := range client.rooms {
		h.leave(client, roomID)
	}
	delete(h.clients, client.ID)
	close(client.Send)
}

// submit hands an operation to the loop. It reports false once the hub
// has stopped.
func (h *Hub) submit(o op) bool {
	select {
	case h.ops <- o:
		return true
	case <-h.done:
		return false
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.submit(op{kind: opRegister, client: client})
}

// Unregister removes a client from the hub and from every room it joined.
// Unregistering twice is harmless.
func (h *Hub) Unregister(client *Client) {
	h.submit(op{kind: opUnregister, client: client})
}

// Join adds client to the room for projectID. Joining twice is a no-op.
func (h *Hub) Join(client *Client, projectID string) {
	h.submit(op{kind: opJoin, client: client, roomID: projectID})
}

// Leave removes client from the room for projectID. Leaving a room the
// client is not in is a no-op.
func (h *Hub) Leave(client *Client, projectID string) {
	h.submit(op{kind: opLeave, client: client, roomID: projectID})
}

// Broadcast fans msg out to the room's members.
func (h *Hub) Broadcast(msg *RoomMessage) {
	h.submit(op{kind: opBroadcast, msg: msg})
}

// SendTo queues data for a single client.
func (h *Hub) SendTo(client *Client, data []byte) {
	h.submit(op{kind: opDirect, client: client, data: data})
}

// inspect runs fn on the loop and waits for it. It reports false when the
// hub has stopped.
func (h *Hub) inspect(fn func()) bool {
	ran := make(chan struct{})
	if !h.submit(op{kind: opInspect, inspect: func() { fn(); close(ran) }}) {
		return false
	}
	select {
	case <-ran:
		return true
	case <-h.done:
		return false
	}
}

// RoomSize returns the number of clients in the room for projectID.
func (h *Hub) RoomSize(projectID string) int {
	var n int
	h.inspect(func() { n = len(h.rooms[projectID]) })
	return n
}

// IsMember reports whether client is in the room for projectID.
func (h *Hub) IsMember(client *Client, projectID string) bool {
	var ok bool
	h.inspect(func() { _, ok = h.rooms[projectID][client.ID] })
	return ok
}

// RoomsOf returns the projects client has joined.
func (h *Hub) RoomsOf(client *Client) []string {
	var rooms []string
	h.inspect(func() { rooms = lo.Keys(client.rooms) })
	return rooms
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	var n int
	h.inspect(func() { n = len(h.clients) })
	return n
}

// RoomCount returns the number of non-empty rooms.
func (h *Hub) RoomCount() int {
	var n int
	h.inspect(func() { n = len(h.rooms) })
	return n
}

// Sync waits until every operation submitted before it has been applied.
func (h *Hub) Sync() {
	h.inspect(func() {})
}
