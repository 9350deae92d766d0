package ws

import (
	"sync"
)

// WSRoom holds the live connections associated with one room code.
type WSRoom struct {
	Code    string             `json:"code"`
	Clients map[string]*Client `json:"clients"` // connection id -> client
}

// RoomManager maintains the connectionID -> roomCode association used to pick
// broadcast targets.
type RoomManager struct {
	rooms map[string]*WSRoom // roomCode -> WSRoom
	mu    sync.RWMutex
}

func NewRoomManager() *RoomManager {
	return &RoomManager{
		rooms: make(map[string]*WSRoom),
	}
}

func (rm *RoomManager) AddClient(cl *Client) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	room, ok := rm.rooms[cl.RoomCode]
	if !ok {
		room = &WSRoom{
			Code:    cl.RoomCode,
			Clients: make(map[string]*Client),
		}
		rm.rooms[cl.RoomCode] = room
	}

	room.Clients[cl.ID] = cl
}

// RemoveClient reports whether the connection was still registered.
func (rm *RoomManager) RemoveClient(cl *Client) bool {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	room, ok := rm.rooms[cl.RoomCode]
	if !ok {
		return false
	}
	if _, ok := room.Clients[cl.ID]; !ok {
		return false
	}

	delete(room.Clients, cl.ID)
	if len(room.Clients) == 0 {
		delete(rm.rooms, cl.RoomCode)
	}
	return true
}

// RemoveMember drops every connection of userID in roomCode and returns them.
func (rm *RoomManager) RemoveMember(roomCode, userID string) []*Client {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	room, ok := rm.rooms[roomCode]
	if !ok {
		return nil
	}

	var removed []*Client
	for id, cl := range room.Clients {
		if cl.UserID == userID {
			removed = append(removed, cl)
			delete(room.Clients, id)
		}
	}
	if len(room.Clients) == 0 {
		delete(rm.rooms, roomCode)
	}
	return removed
}

// Clients returns a copy of the connections in roomCode.
func (rm *RoomManager) Clients(roomCode string) []*Client {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	room, ok := rm.rooms[roomCode]
	if !ok {
		return nil
	}

	clients := make([]*Client, 0, len(room.Clients))
	for _, cl := range room.Clients {
		clients = append(clients, cl)
	}
	return clients
}

// HasMember reports whether any live connection in roomCode belongs to userID.
func (rm *RoomManager) HasMember(roomCode, userID string) bool {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	room, ok := rm.rooms[roomCode]
	if !ok {
		return false
	}
	for _, cl := range room.Clients {
		if cl.UserID == userID {
			return true
		}
	}
	return false
}

func (rm *RoomManager) ConnectionCount() int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	n := 0
	for _, room := range rm.rooms {
		n += len(room.Clients)
	}
	return n
}

// BroadcastToRoom pushes msg to every connection of its room and returns how
// many slow clients had the frame dropped.
func (rm *RoomManager) BroadcastToRoom(msg *WSMessage) (dropped int) {
	for _, cl := range rm.Clients(msg.RoomCode) {
		if !cl.Enqueue(msg) {
			dropped++
		}
	}
	return dropped
}

func (rm *RoomManager) closeAll() {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	for code, room := range rm.rooms {
		for _, cl := range room.Clients {
			cl.Close()
		}
		delete(rm.rooms, code)
	}
}
