package websockets

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MaikZ91/liebefeld/internal/model"
	"github.com/gorilla/websocket"
)

func newTestHub(t *testing.T) (*WebSocketManager, *httptest.Server) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	manager := NewWebSocketManager()
	go manager.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		manager.HandleConnections(w, r, r.URL.Query().Get("group"), r.URL.Query().Get("username"))
	}))
	t.Cleanup(func() {
		cancel()
		server.Close()
	})
	return manager, server
}

func dial(t *testing.T, server *httptest.Server, group, username string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/?group=" + group + "&username=" + username
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var envelope Envelope
	if err := conn.ReadJSON(&envelope); err != nil {
		t.Fatalf("read: %v", err)
	}
	return envelope
}

func expectType(t *testing.T, conn *websocket.Conn, want string) Envelope {
	t.Helper()

	envelope := read(t, conn)
	if envelope.Type != want {
		t.Fatalf("got %q frame; want %q", envelope.Type, want)
	}
	return envelope
}

func TestSubscribeAckAndPresence(t *testing.T) {
	manager, server := newTestHub(t)

	anna := dial(t, server, "sport", "anna")
	expectType(t, anna, MsgTypeSubscribed)
	if sync := expectType(t, anna, MsgTypePresenceSync); len(sync.Presences) != 0 {
		t.Fatalf("initial presences = %v; want none", sync.Presences)
	}

	if err := anna.WriteJSON(Envelope{Type: MsgTypeTrack, Presence: &model.Presence{Username: "spoofed"}}); err != nil {
		t.Fatal(err)
	}
	join := expectType(t, anna, MsgTypePresenceJoin)
	if join.Presence == nil || join.Presence.Username != "anna" {
		t.Fatalf("join presence = %+v; want username anna", join.Presence)
	}

	ben := dial(t, server, "sport", "ben")
	expectType(t, ben, MsgTypeSubscribed)
	sync := expectType(t, ben, MsgTypePresenceSync)
	if len(sync.Presences) != 1 || sync.Presences[0].Username != "anna" {
		t.Fatalf("ben's sync = %v; want [anna]", sync.Presences)
	}

	if got := manager.Presence("sport"); len(got) != 1 {
		t.Fatalf("Presence(sport) = %v", got)
	}

	anna.Close()
	leave := expectType(t, ben, MsgTypePresenceLeave)
	if leave.Presence == nil || leave.Presence.Username != "anna" {
		t.Fatalf("leave presence = %+v", leave.Presence)
	}
}

// Two clients in one group: a message inserted by the first is delivered
// exactly once to the second, and not at all to other groups.
func TestInsertFanOutIsScopedToGroup(t *testing.T) {
	manager, server := newTestHub(t)

	client1 := dial(t, server, "ausgehen", "anna")
	client2 := dial(t, server, "ausgehen", "ben")
	other := dial(t, server, "sport", "carl")
	for _, c := range []*websocket.Conn{client1, client2, other} {
		expectType(t, c, MsgTypeSubscribed)
		expectType(t, c, MsgTypePresenceSync)
	}

	manager.SetMessageLoader(func(ctx context.Context, groupID, id string) (model.ChatMessage, error) {
		return model.ChatMessage{ID: id, GroupID: groupID, Sender: "anna", Text: "hi"}, nil
	})
	manager.HandleChangeFeed(context.Background(), `{"id":"m1","group_id":"ausgehen"}`)

	insert := expectType(t, client2, MsgTypeInsert)
	if insert.Message == nil || insert.Message.ID != "m1" || insert.Message.Text != "hi" || insert.Message.Sender != "anna" {
		t.Fatalf("insert = %+v", insert.Message)
	}

	client2.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := client2.ReadMessage(); err == nil {
		t.Fatal("client2 received a second frame")
	}

	other.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := other.ReadMessage(); err == nil {
		t.Fatal("client in another group received the insert")
	}
}

func TestHandleChangeFeedDropsGarbage(t *testing.T) {
	manager, server := newTestHub(t)

	conn := dial(t, server, "sport", "anna")
	expectType(t, conn, MsgTypeSubscribed)
	expectType(t, conn, MsgTypePresenceSync)

	manager.HandleChangeFeed(context.Background(), `{"id":"m1","group_id":"sport"}`)

	manager.SetMessageLoader(func(ctx context.Context, groupID, id string) (model.ChatMessage, error) {
		return model.ChatMessage{}, errors.New("no rows")
	})
	manager.HandleChangeFeed(context.Background(), "not json")
	manager.HandleChangeFeed(context.Background(), `{"text":"no id"}`)
	manager.HandleChangeFeed(context.Background(), `{"id":"gone","group_id":"sport"}`)

	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("garbage payload was forwarded")
	}
}

func startHub(t *testing.T) *WebSocketManager {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	manager := NewWebSocketManager()
	go manager.Run(ctx)
	t.Cleanup(cancel)
	return manager
}

func nextFrame(t *testing.T, client *Client) Envelope {
	t.Helper()

	select {
	case data, ok := <-client.send:
		if !ok {
			t.Fatalf("%s was dropped", client.Username)
		}
		var envelope Envelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		return envelope
	case <-time.After(2 * time.Second):
		t.Fatalf("no frame for %s", client.Username)
	}
	return Envelope{}
}

func TestDroppedClientLeavesPresence(t *testing.T) {
	manager := startHub(t)

	watcher := &Client{GroupID: "g", Username: "watcher", send: make(chan []byte, sendBufferSize)}
	slow := &Client{GroupID: "g", Username: "slow", send: make(chan []byte, 3)}
	manager.register <- watcher
	manager.register <- slow
	manager.track <- trackRequest{client: slow}

	// subscribed, presence_sync and presence_join fill the slow buffer.
	if err := manager.PublishInsert(model.ChatMessage{ID: "m1", GroupID: "g", Text: "hi"}); err != nil {
		t.Fatal(err)
	}

	var got []string
	for _, want := range []string{MsgTypeSubscribed, MsgTypePresenceSync, MsgTypePresenceJoin, MsgTypeInsert, MsgTypePresenceLeave} {
		envelope := nextFrame(t, watcher)
		got = append(got, envelope.Type)
		if envelope.Type != want {
			t.Fatalf("watcher frames = %v; want %s next", got, want)
		}
		if want == MsgTypePresenceLeave && (envelope.Presence == nil || envelope.Presence.Username != "slow") {
			t.Fatalf("leave presence = %+v", envelope.Presence)
		}
	}

	if p := manager.Presence("g"); len(p) != 0 {
		t.Fatalf("Presence(g) = %v; want empty", p)
	}
}

func TestChangeFeedLoadsLongMultibyteMessage(t *testing.T) {
	manager := startHub(t)

	text := strings.Repeat("ü", 4000)
	manager.SetMessageLoader(func(ctx context.Context, groupID, id string) (model.ChatMessage, error) {
		if groupID != "ausgehen" || id != "m1" {
			t.Errorf("load(%q, %q)", groupID, id)
		}
		return model.ChatMessage{ID: id, GroupID: groupID, Sender: "anna", Text: text}, nil
	})

	reader := &Client{GroupID: "ausgehen", Username: "ben", send: make(chan []byte, sendBufferSize)}
	manager.register <- reader
	nextFrame(t, reader)
	nextFrame(t, reader)

	manager.HandleChangeFeed(context.Background(), `{"id":"m1","group_id":"ausgehen"}`)

	insert := nextFrame(t, reader)
	if insert.Type != MsgTypeInsert || insert.Message == nil {
		t.Fatalf("got %q frame; want insert with a message", insert.Type)
	}
	if insert.Message.Text != text {
		t.Fatalf("text has %d bytes; want %d", len(insert.Message.Text), len(text))
	}
}
