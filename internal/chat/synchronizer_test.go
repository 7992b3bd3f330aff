package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MaikZ91/liebefeld/internal/model"
	"github.com/MaikZ91/liebefeld/internal/session"
	"github.com/MaikZ91/liebefeld/util/websockets"
	"github.com/pkg/errors"
)

type fakeChannel struct {
	in      chan websockets.Envelope
	errc    chan error
	tracked chan model.Presence
	closed  chan struct{}
	once    sync.Once
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		in:      make(chan websockets.Envelope, 16),
		errc:    make(chan error, 1),
		tracked: make(chan model.Presence, 16),
		closed:  make(chan struct{}),
	}
}

func (c *fakeChannel) Receive(ctx context.Context) (websockets.Envelope, error) {
	select {
	case e := <-c.in:
		return e, nil
	case err := <-c.errc:
		return websockets.Envelope{}, err
	case <-c.closed:
		return websockets.Envelope{}, ErrChannelClosed
	case <-ctx.Done():
		return websockets.Envelope{}, ctx.Err()
	}
}

func (c *fakeChannel) Track(ctx context.Context, p model.Presence) error {
	c.tracked <- p
	return nil
}

func (c *fakeChannel) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

type fakeDialer struct {
	dials chan *fakeChannel
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{dials: make(chan *fakeChannel, 16)}
}

func (d *fakeDialer) Dial(ctx context.Context, groupID, username string) (Channel, error) {
	ch := newFakeChannel()
	d.dials <- ch
	return ch, nil
}

func (d *fakeDialer) next(t *testing.T) *fakeChannel {
	t.Helper()
	select {
	case ch := <-d.dials:
		return ch
	case <-time.After(2 * time.Second):
		t.Fatal("no dial")
		return nil
	}
}

type fakeStore struct {
	mu       sync.Mutex
	history  []model.ChatMessage
	sendErr  error
	reactErr error
	seq      int
	base     time.Time
}

func (f *fakeStore) ListMessages(ctx context.Context, groupID string) ([]model.ChatMessage, error) {
	return f.history, nil
}

func (f *fakeStore) SendMessage(ctx context.Context, msg model.ChatMessage) (model.ChatMessage, error) {
	if f.sendErr != nil {
		return model.ChatMessage{}, f.sendErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	msg.ID = "sent-" + string(rune('0'+f.seq))
	msg.CreatedAt = f.base.Add(time.Duration(f.seq) * time.Hour)
	return msg, nil
}

func (f *fakeStore) UpdateReactions(ctx context.Context, groupID, messageID string, reactions []model.Reaction) error {
	return f.reactErr
}

func at(minute int) time.Time {
	return time.Date(2026, 5, 1, 12, minute, 0, 0, time.UTC)
}

func namedSession(t *testing.T, name string) *session.Session {
	t.Helper()
	s := session.New(session.NewMemoryStore())
	if err := s.SetUsername(name); err != nil {
		t.Fatal(err)
	}
	return s
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func startSubscribed(t *testing.T, store MessageStore, opts ...Option) (*Synchronizer, *fakeDialer, *fakeChannel) {
	t.Helper()
	dialer := newFakeDialer()
	s := New("ausgehen", store, dialer, namedSession(t, "anna"), opts...)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(s.Stop)

	ch := dialer.next(t)
	ch.in <- websockets.Envelope{Type: websockets.MsgTypeSubscribed, GroupID: "ausgehen"}
	eventually(t, "subscribed", func() bool { return s.Status() == StatusSubscribed })
	return s, dialer, ch
}

func TestStartLoadsHistoryAndTracksPresence(t *testing.T) {
	store := &fakeStore{history: []model.ChatMessage{
		{ID: "m2", GroupID: "ausgehen", CreatedAt: at(2)},
		{ID: "m1", GroupID: "ausgehen", CreatedAt: at(1)},
	}}
	s, _, ch := startSubscribed(t, store)

	got := s.Messages()
	if len(got) != 2 || got[0].ID != "m1" || got[1].ID != "m2" {
		t.Fatalf("messages = %+v", got)
	}

	select {
	case p := <-ch.tracked:
		if p.Username != "anna" || p.Typing {
			t.Fatalf("tracked %+v", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("presence not tracked after subscribe")
	}
}

func TestSendThenEchoKeepsOneCopy(t *testing.T) {
	store := &fakeStore{base: at(0)}
	s, _, ch := startSubscribed(t, store)

	sent, err := s.Send(context.Background(), "  hi ", nil)
	if err != nil {
		t.Fatal(err)
	}
	if sent.Text != "hi" || sent.Sender != "anna" {
		t.Fatalf("sent = %+v", sent)
	}

	echo := sent
	ch.in <- websockets.Envelope{Type: websockets.MsgTypeInsert, Message: &echo}
	other := model.ChatMessage{ID: "x", GroupID: "ausgehen", Sender: "ben", Text: "yo", CreatedAt: sent.CreatedAt.Add(time.Minute)}
	ch.in <- websockets.Envelope{Type: websockets.MsgTypeInsert, Message: &other}

	eventually(t, "second message", func() bool { return len(s.Messages()) == 2 })
	count := 0
	for _, m := range s.Messages() {
		if m.ID == sent.ID {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("message %s rendered %d times", sent.ID, count)
	}
}

func TestInsertsStayOrderedByCreation(t *testing.T) {
	s, _, ch := startSubscribed(t, &fakeStore{})

	for _, m := range []model.ChatMessage{
		{ID: "c", GroupID: "ausgehen", CreatedAt: at(3)},
		{ID: "a", GroupID: "ausgehen", CreatedAt: at(1)},
		{ID: "b", GroupID: "ausgehen", CreatedAt: at(2)},
		{ID: "other", GroupID: "sport", CreatedAt: at(0)},
	} {
		m := m
		ch.in <- websockets.Envelope{Type: websockets.MsgTypeInsert, Message: &m}
	}

	eventually(t, "three messages", func() bool { return len(s.Messages()) == 3 })
	got := s.Messages()
	for i := 1; i < len(got); i++ {
		if got[i-1].CreatedAt.After(got[i].CreatedAt) {
			t.Fatalf("messages out of order: %+v", got)
		}
	}
	for _, m := range got {
		if m.GroupID != "ausgehen" {
			t.Fatalf("foreign message %s accepted", m.ID)
		}
	}
}

func TestPresenceSyncJoinLeave(t *testing.T) {
	s, _, ch := startSubscribed(t, &fakeStore{})

	ch.in <- websockets.Envelope{Type: websockets.MsgTypePresenceSync, Presences: []model.Presence{
		{Username: "ben"}, {Username: "cem"},
	}}
	ch.in <- websockets.Envelope{Type: websockets.MsgTypePresenceJoin, Presence: &model.Presence{Username: "dana"}}
	ch.in <- websockets.Envelope{Type: websockets.MsgTypePresenceJoin, Presence: &model.Presence{Username: "ben", Typing: true}}
	ch.in <- websockets.Envelope{Type: websockets.MsgTypePresenceLeave, Presence: &model.Presence{Username: "cem"}}

	eventually(t, "presence settled", func() bool {
		p := s.Presence()
		return len(p) == 2 && p[0].Username == "ben" && p[0].Typing && p[1].Username == "dana"
	})

	ch.in <- websockets.Envelope{Type: websockets.MsgTypePresenceSync}
	eventually(t, "presence replaced", func() bool { return len(s.Presence()) == 0 })
}

func TestReconnectsAfterChannelFailure(t *testing.T) {
	var mu sync.Mutex
	var statuses []Status

	dialer := newFakeDialer()
	s := New("ausgehen", &fakeStore{}, dialer, namedSession(t, "anna"), WithBackoff(FixedBackoff{Delay: 10 * time.Millisecond}))
	s.OnChange(func() {
		mu.Lock()
		statuses = append(statuses, s.Status())
		mu.Unlock()
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	first := dialer.next(t)
	first.in <- websockets.Envelope{Type: websockets.MsgTypeSubscribed}
	eventually(t, "subscribed", func() bool { return s.Status() == StatusSubscribed })

	first.errc <- errors.New("connection reset")
	second := dialer.next(t)
	if s.Attempts() != 1 {
		t.Fatalf("attempts = %d, want 1", s.Attempts())
	}
	second.in <- websockets.Envelope{Type: websockets.MsgTypeSubscribed}
	eventually(t, "resubscribed", func() bool { return s.Status() == StatusSubscribed })
	if s.Attempts() != 0 {
		t.Fatalf("attempts not reset: %d", s.Attempts())
	}

	mu.Lock()
	defer mu.Unlock()
	want := []Status{StatusErrored, StatusReconnecting, StatusSubscribing, StatusSubscribed}
	idx := 0
	for _, st := range statuses {
		if idx < len(want) && st == want[idx] {
			idx++
		}
	}
	if idx != len(want) {
		t.Fatalf("status sequence %v does not contain %v", statuses, want)
	}
}

func TestRemoteCloseEntersClosed(t *testing.T) {
	var mu sync.Mutex
	sawClosed := false

	dialer := newFakeDialer()
	s := New("ausgehen", &fakeStore{}, dialer, namedSession(t, "anna"), WithBackoff(FixedBackoff{Delay: time.Hour}))
	s.OnChange(func() {
		if s.Status() == StatusClosed {
			mu.Lock()
			sawClosed = true
			mu.Unlock()
		}
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	dialer.next(t).Close()
	eventually(t, "reconnecting", func() bool { return s.Status() == StatusReconnecting })
	mu.Lock()
	defer mu.Unlock()
	if !sawClosed {
		t.Fatal("CLOSED state not observed")
	}
}

func TestManualReconnectUsesShortDelay(t *testing.T) {
	s, dialer, first := startSubscribed(t, &fakeStore{},
		WithBackoff(FixedBackoff{Delay: time.Hour}),
		WithManualDelay(10*time.Millisecond),
	)

	s.Reconnect()
	select {
	case <-first.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("channel not torn down")
	}
	second := dialer.next(t)
	second.in <- websockets.Envelope{Type: websockets.MsgTypeSubscribed}
	eventually(t, "resubscribed", func() bool { return s.Status() == StatusSubscribed })
	if s.Attempts() != 0 {
		t.Fatalf("attempts = %d", s.Attempts())
	}
}

func TestManualReconnectCutsBackoffWait(t *testing.T) {
	s, dialer, first := startSubscribed(t, &fakeStore{},
		WithBackoff(FixedBackoff{Delay: time.Hour}),
		WithManualDelay(10*time.Millisecond),
	)

	first.errc <- errors.New("gone")
	eventually(t, "reconnecting", func() bool { return s.Status() == StatusReconnecting })
	s.Reconnect()
	dialer.next(t)
}

func TestSendFailureIsNotShown(t *testing.T) {
	s, _, _ := startSubscribed(t, &fakeStore{sendErr: errors.New("insert failed")})

	if _, err := s.Send(context.Background(), "hello", nil); err == nil {
		t.Fatal("expected error")
	}
	if len(s.Messages()) != 0 {
		t.Fatalf("failed message shown: %+v", s.Messages())
	}
	if _, err := s.Send(context.Background(), "   ", nil); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("err = %v, want ErrEmptyMessage", err)
	}
}

func TestSendReply(t *testing.T) {
	store := &fakeStore{history: []model.ChatMessage{{ID: "p", GroupID: "ausgehen", Sender: "ben", Text: "Wer kommt mit?", CreatedAt: at(0)}}, base: at(0)}
	s, _, _ := startSubscribed(t, store)

	parent := s.Messages()[0]
	sent, err := s.Send(context.Background(), "ich", &parent)
	if err != nil {
		t.Fatal(err)
	}
	if sent.ReplyToID == nil || *sent.ReplyToID != "p" || *sent.ReplyToSender != "ben" {
		t.Fatalf("reply fields = %+v", sent)
	}
}

func TestReactRollsBackOnFailure(t *testing.T) {
	store := &fakeStore{history: []model.ChatMessage{{ID: "m1", GroupID: "ausgehen", CreatedAt: at(0)}}}
	s, _, _ := startSubscribed(t, store)

	if err := s.React(context.Background(), "m1", "🎉"); err != nil {
		t.Fatal(err)
	}
	r := s.Messages()[0].Reactions
	if len(r) != 1 || r[0].Users[0] != "anna" {
		t.Fatalf("reactions = %+v", r)
	}

	store.reactErr = errors.New("denied")
	if err := s.React(context.Background(), "m1", "🎉"); err == nil {
		t.Fatal("expected error")
	}
	r = s.Messages()[0].Reactions
	if len(r) != 1 || r[0].Users[0] != "anna" {
		t.Fatalf("reactions after rollback = %+v", r)
	}

	if err := s.React(context.Background(), "missing", "🎉"); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestSetTypingSendsOnlyOnChange(t *testing.T) {
	s, _, ch := startSubscribed(t, &fakeStore{})
	<-ch.tracked

	ctx := context.Background()
	for _, input := range []string{"h", "ha", "hal", ""} {
		if err := s.InputChanged(ctx, input); err != nil {
			t.Fatal(err)
		}
	}

	if n := len(ch.tracked); n != 2 {
		t.Fatalf("tracked %d updates, want 2", n)
	}
	if p := <-ch.tracked; !p.Typing {
		t.Fatal("first update should be typing")
	}
	if p := <-ch.tracked; p.Typing {
		t.Fatal("second update should clear typing")
	}
}

func TestStartTwice(t *testing.T) {
	s, _, _ := startSubscribed(t, &fakeStore{})
	if err := s.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("err = %v", err)
	}
	s.Stop()
	if s.Status() != StatusDisconnected {
		t.Fatalf("status after stop = %s", s.Status())
	}
}

func TestExponentialBackoff(t *testing.T) {
	b := ExponentialBackoff{Initial: 5 * time.Second, Max: time.Minute}
	want := []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second, 40 * time.Second, time.Minute, time.Minute}
	for i, w := range want {
		if got := b.Next(i + 1); got != w {
			t.Errorf("Next(%d) = %s, want %s", i+1, got, w)
		}
	}
	if got := (FixedBackoff{Delay: 5 * time.Second}).Next(7); got != 5*time.Second {
		t.Errorf("fixed = %s", got)
	}
}

func TestExponentialBackoffStaysCapped(t *testing.T) {
	testCases := []struct {
		name   string
		policy ExponentialBackoff
		want   time.Duration
	}{
		{"no max uses default cap", ExponentialBackoff{Initial: 5 * time.Second}, DefaultBackoffCap},
		{"explicit max", ExponentialBackoff{Initial: 5 * time.Second, Max: 30 * time.Second}, 30 * time.Second},
		{"initial above max", ExponentialBackoff{Initial: time.Hour, Max: time.Minute}, time.Minute},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			for _, attempt := range []int{30, 40, 64, 1000} {
				got := tc.policy.Next(attempt)
				if got != tc.want {
					t.Errorf("Next(%d) = %s, want %s", attempt, got, tc.want)
				}
			}
		})
	}
}
