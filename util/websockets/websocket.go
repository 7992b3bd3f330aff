package websockets

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/MaikZ91/liebefeld/internal/model"
	"github.com/gorilla/websocket"
)

var ErrHubStopped = errors.New("realtime hub stopped")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewWebSocketManager initializes a WebSocketManager
func NewWebSocketManager() *WebSocketManager {
	return &WebSocketManager{
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan roomMessage, 64),
		track:      make(chan trackRequest),
		done:       make(chan struct{}),
		logger:     log.New(os.Stdout, "[WEBSOCKET] ", log.LstdFlags|log.Lshortfile),
		now:        time.Now,
	}
}

// Run owns all room state until ctx is cancelled.
func (manager *WebSocketManager) Run(ctx context.Context) {
	manager.logger.Println("realtime hub started")
	defer close(manager.done)
	for {
		select {
		case <-ctx.Done():
			manager.closeAll()
			return

		case client := <-manager.register:
			manager.mu.Lock()
			room, ok := manager.rooms[client.GroupID]
			if !ok {
				room = make(map[*Client]bool)
				manager.rooms[client.GroupID] = room
			}
			room[client] = true
			presences := roomPresences(room)
			subscribers := len(room)
			manager.mu.Unlock()

			manager.deliver(client, Envelope{Type: MsgTypeSubscribed, GroupID: client.GroupID})
			manager.deliver(client, Envelope{Type: MsgTypePresenceSync, GroupID: client.GroupID, Presences: presences})
			manager.logger.Printf("client %s joined group %s, %d subscribers", client.Username, client.GroupID, subscribers)

		case client := <-manager.unregister:
			manager.mu.Lock()
			room := manager.rooms[client.GroupID]
			if _, ok := room[client]; !ok {
				manager.mu.Unlock()
				continue
			}
			manager.remove(client)
			manager.mu.Unlock()

			manager.announceLeaves([]*Client{client})
			manager.logger.Printf("client %s left group %s", client.Username, client.GroupID)

		case req := <-manager.track:
			manager.mu.Lock()
			if _, ok := manager.rooms[req.client.GroupID][req.client]; !ok {
				manager.mu.Unlock()
				continue
			}
			req.client.presence = model.Presence{
				Username:     req.client.Username,
				LastActivity: manager.now().UTC(),
				Typing:       req.presence.Typing,
			}
			req.client.tracked = true
			p := req.client.presence
			manager.mu.Unlock()

			manager.fanOut(req.client.GroupID, Envelope{Type: MsgTypePresenceJoin, GroupID: req.client.GroupID, Presence: &p})

		case msg := <-manager.broadcast:
			manager.send(msg.groupID, msg.data)
		}
	}
}

// HandleConnections upgrades the request and subscribes it to groupID.
func (manager *WebSocketManager) HandleConnections(w http.ResponseWriter, r *http.Request, groupID, username string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		manager.logger.Println("websocket upgrade error:", err)
		return
	}

	client := &Client{
		Conn:     conn,
		GroupID:  groupID,
		Username: username,
		send:     make(chan []byte, sendBufferSize),
	}
	select {
	case manager.register <- client:
	case <-manager.done:
		conn.Close()
		return
	}

	go client.writePump()
	manager.readPump(client)
}

func (manager *WebSocketManager) readPump(client *Client) {
	defer func() {
		select {
		case manager.unregister <- client:
		case <-manager.done:
		}
	}()

	client.Conn.SetReadLimit(maxMessageSize)
	client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	client.Conn.SetPongHandler(func(string) error {
		return client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				manager.logger.Printf("read error for %s: %v", client.Username, err)
			}
			return
		}

		var envelope Envelope
		if err := json.Unmarshal(msg, &envelope); err != nil {
			manager.logger.Println("invalid JSON:", err)
			continue
		}

		switch envelope.Type {
		case MsgTypeTrack:
			var p model.Presence
			if envelope.Presence != nil {
				p = *envelope.Presence
			}
			select {
			case manager.track <- trackRequest{client: client, presence: p}:
			case <-manager.done:
				return
			}
		default:
			manager.logger.Printf("ignoring %q frame from %s", envelope.Type, client.Username)
		}
	}
}

func (client *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// PublishInsert fans a newly stored chat message out to its group.
func (manager *WebSocketManager) PublishInsert(msg model.ChatMessage) error {
	data, err := json.Marshal(Envelope{Type: MsgTypeInsert, GroupID: msg.GroupID, Message: &msg})
	if err != nil {
		return err
	}
	select {
	case manager.broadcast <- roomMessage{groupID: msg.GroupID, data: data}:
		return nil
	case <-manager.done:
		return ErrHubStopped
	}
}

// SetMessageLoader installs the reader HandleChangeFeed uses to fetch the
// inserted row.
func (manager *WebSocketManager) SetMessageLoader(load MessageLoader) {
	manager.mu.Lock()
	manager.loadMessage = load
	manager.mu.Unlock()
}

// HandleChangeFeed resolves the chat_messages key published by the insert
// trigger and forwards the stored row to its group.
func (manager *WebSocketManager) HandleChangeFeed(ctx context.Context, payload string) {
	var key changeFeedKey
	if err := json.Unmarshal([]byte(payload), &key); err != nil {
		manager.logger.Printf("dropping unreadable change feed payload: %v", err)
		return
	}
	if key.ID == "" || key.GroupID == "" {
		manager.logger.Printf("dropping change feed row without id or group")
		return
	}

	manager.mu.RLock()
	load := manager.loadMessage
	manager.mu.RUnlock()
	if load == nil {
		manager.logger.Printf("no message loader, dropping message %s", key.ID)
		return
	}

	msg, err := load(ctx, key.GroupID, key.ID)
	if err != nil {
		manager.logger.Printf("failed to load message %s: %v", key.ID, err)
		return
	}
	if err := manager.PublishInsert(msg); err != nil {
		manager.logger.Printf("failed to publish message %s: %v", msg.ID, err)
	}
}

// Presence returns the tracked participants of a group sorted by username.
func (manager *WebSocketManager) Presence(groupID string) []model.Presence {
	manager.mu.RLock()
	defer manager.mu.RUnlock()
	return roomPresences(manager.rooms[groupID])
}

// Subscribers returns the number of open connections on a group.
func (manager *WebSocketManager) Subscribers(groupID string) int {
	manager.mu.RLock()
	defer manager.mu.RUnlock()
	return len(manager.rooms[groupID])
}

func (manager *WebSocketManager) fanOut(groupID string, envelope Envelope) {
	data, err := json.Marshal(envelope)
	if err != nil {
		manager.logger.Printf("failed to marshal %s envelope: %v", envelope.Type, err)
		return
	}
	manager.send(groupID, data)
}

func (manager *WebSocketManager) send(groupID string, data []byte) {
	manager.mu.Lock()
	var dropped []*Client
	for client := range manager.rooms[groupID] {
		select {
		case client.send <- data:
		default:
			manager.logger.Printf("send buffer full for %s, dropping client", client.Username)
			manager.remove(client)
			dropped = append(dropped, client)
		}
	}
	manager.mu.Unlock()

	manager.announceLeaves(dropped)
}

// announceLeaves sends presence_leave for every removed client whose user
// has no other tracked connection left in the group.
func (manager *WebSocketManager) announceLeaves(removed []*Client) {
	for _, client := range removed {
		manager.mu.RLock()
		leave := client.tracked && !usernameTracked(manager.rooms[client.GroupID], client.Username)
		p := client.presence
		manager.mu.RUnlock()

		if leave {
			manager.fanOut(client.GroupID, Envelope{Type: MsgTypePresenceLeave, GroupID: client.GroupID, Presence: &p})
		}
	}
}

func (manager *WebSocketManager) deliver(client *Client, envelope Envelope) {
	data, err := json.Marshal(envelope)
	if err != nil {
		manager.logger.Printf("failed to marshal %s envelope: %v", envelope.Type, err)
		return
	}
	manager.mu.Lock()
	if _, ok := manager.rooms[client.GroupID][client]; !ok {
		manager.mu.Unlock()
		return
	}
	select {
	case client.send <- data:
		manager.mu.Unlock()
	default:
		manager.logger.Printf("send buffer full for %s, dropping client", client.Username)
		manager.remove(client)
		manager.mu.Unlock()
		manager.announceLeaves([]*Client{client})
	}
}

// remove must be called with mu held.
func (manager *WebSocketManager) remove(client *Client) {
	room := manager.rooms[client.GroupID]
	if _, ok := room[client]; !ok {
		return
	}
	delete(room, client)
	close(client.send)
	if len(room) == 0 {
		delete(manager.rooms, client.GroupID)
	}
}

func (manager *WebSocketManager) closeAll() {
	manager.mu.Lock()
	defer manager.mu.Unlock()
	for _, room := range manager.rooms {
		for client := range room {
			manager.remove(client)
		}
	}
	manager.logger.Println("realtime hub stopped")
}

func roomPresences(room map[*Client]bool) []model.Presence {
	byUser := make(map[string]model.Presence)
	for client := range room {
		if !client.tracked {
			continue
		}
		if prev, ok := byUser[client.Username]; !ok || client.presence.LastActivity.After(prev.LastActivity) {
			byUser[client.Username] = client.presence
		}
	}
	out := make([]model.Presence, 0, len(byUser))
	for _, p := range byUser {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

func usernameTracked(room map[*Client]bool, username string) bool {
	for client := range room {
		if client.tracked && client.Username == username {
			return true
		}
	}
	return false
}
