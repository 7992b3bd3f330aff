package websockets

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/MaikZ91/liebefeld/internal/model"
	"github.com/gorilla/websocket"
)

// Message types
const (
	MsgTypeSubscribed    = "subscribed"
	MsgTypeInsert        = "insert"
	MsgTypePresenceSync  = "presence_sync"
	MsgTypePresenceJoin  = "presence_join"
	MsgTypePresenceLeave = "presence_leave"
	MsgTypeTrack         = "track"
	MsgTypeError         = "error"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
	sendBufferSize = 256
)

// Client represents one websocket subscription to a group channel
type Client struct {
	Conn     *websocket.Conn
	GroupID  string
	Username string
	send     chan []byte
	presence model.Presence
	tracked  bool
}

type WebSocketManager struct {
	rooms      map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan roomMessage
	track      chan trackRequest
	done       chan struct{}
	mu         sync.RWMutex
	logger     *log.Logger
	now        func() time.Time

	loadMessage MessageLoader
}

// MessageLoader reads one stored chat message.
type MessageLoader func(ctx context.Context, groupID, messageID string) (model.ChatMessage, error)

// changeFeedKey is the NOTIFY payload of the chat_messages insert trigger.
type changeFeedKey struct {
	ID      string `json:"id"`
	GroupID string `json:"group_id"`
}

type roomMessage struct {
	groupID string
	data    []byte
}

type trackRequest struct {
	client   *Client
	presence model.Presence
}

// Envelope is the JSON frame exchanged on a group channel in both directions.
type Envelope struct {
	Type      string             `json:"type"`
	GroupID   string             `json:"group_id,omitempty"`
	Message   *model.ChatMessage `json:"message,omitempty"`
	Presence  *model.Presence    `json:"presence,omitempty"`
	Presences []model.Presence   `json:"presences,omitempty"`
	Error     string             `json:"error,omitempty"`
}
