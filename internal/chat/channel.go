package chat

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/MaikZ91/liebefeld/internal/model"
	"github.com/MaikZ91/liebefeld/util/values"
	"github.com/MaikZ91/liebefeld/util/websockets"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// ErrChannelClosed is returned by Receive once the remote side closed the
// channel normally.
var ErrChannelClosed = errors.New("channel closed")

// Channel is one subscription to a group's realtime feed.
type Channel interface {
	Receive(ctx context.Context) (websockets.Envelope, error)
	Track(ctx context.Context, presence model.Presence) error
	Close() error
}

// Dialer opens group channels.
type Dialer interface {
	Dial(ctx context.Context, groupID, username string) (Channel, error)
}

// WebsocketDialer connects to the realtime endpoint of the server.
type WebsocketDialer struct {
	// BaseURL is the realtime root, e.g. ws://localhost:8080/realtime.
	BaseURL string
	Source  string
	Dialer  *websocket.Dialer
}

func (d WebsocketDialer) Dial(ctx context.Context, groupID, username string) (Channel, error) {
	u, err := url.Parse(d.BaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid realtime url")
	}
	u.Path = u.Path + "/groups/" + url.PathEscape(groupID)
	q := u.Query()
	q.Set("username", username)
	u.RawQuery = q.Encode()

	header := http.Header{}
	if d.Source != "" {
		header.Set(values.HeaderRequestSource, d.Source)
	}

	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, errors.Wrapf(err, "dial %s: status %d", u.Redacted(), resp.StatusCode)
		}
		return nil, errors.Wrapf(err, "dial %s", u.Redacted())
	}
	return &wsChannel{conn: conn, groupID: groupID}, nil
}

type wsChannel struct {
	conn    *websocket.Conn
	groupID string
	writeMu sync.Mutex
}

func (c *wsChannel) Receive(ctx context.Context) (websockets.Envelope, error) {
	var envelope websockets.Envelope
	if err := c.conn.ReadJSON(&envelope); err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return envelope, ErrChannelClosed
		}
		return envelope, err
	}
	return envelope, nil
}

func (c *wsChannel) Track(ctx context.Context, presence model.Presence) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(10 * time.Second)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.conn.SetWriteDeadline(deadline)
	return c.conn.WriteJSON(websockets.Envelope{
		Type:     websockets.MsgTypeTrack,
		GroupID:  c.groupID,
		Presence: &presence,
	})
}

func (c *wsChannel) Close() error {
	c.writeMu.Lock()
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.conn.Close()
}
