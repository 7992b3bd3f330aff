// Package chat keeps one group's message list and presence set in sync with
// the realtime channel and the remote message table.
package chat

import (
	"context"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MaikZ91/liebefeld/internal/model"
	"github.com/MaikZ91/liebefeld/internal/session"
	"github.com/MaikZ91/liebefeld/util"
	"github.com/MaikZ91/liebefeld/util/websockets"
	"github.com/pkg/errors"
)

type Status string

const (
	StatusDisconnected Status = "DISCONNECTED"
	StatusSubscribing  Status = "SUBSCRIBING"
	StatusSubscribed   Status = "SUBSCRIBED"
	StatusClosed       Status = "CLOSED"
	StatusErrored      Status = "ERRORED"
	StatusReconnecting Status = "RECONNECTING"
)

const DefaultManualReconnectDelay = 3 * time.Second

// DefaultBackoff is used when no policy is configured.
var DefaultBackoff BackoffPolicy = ExponentialBackoff{Initial: 5 * time.Second, Max: time.Minute}

var (
	ErrAlreadyStarted    = errors.New("synchronizer already started")
	ErrEmptyMessage      = errors.New("message text is empty")
	ErrEmptyEmoji        = errors.New("emoji is empty")
	ErrMessageNotFound   = errors.New("message not found")
	ErrOperationInFlight = errors.New("a change to this message is already in flight")

	errReconnectRequested = errors.New("reconnect requested")
)

// MessageStore is the remote chat message table.
type MessageStore interface {
	ListMessages(ctx context.Context, groupID string) ([]model.ChatMessage, error)
	SendMessage(ctx context.Context, msg model.ChatMessage) (model.ChatMessage, error)
	UpdateReactions(ctx context.Context, groupID, messageID string, reactions []model.Reaction) error
}

type Synchronizer struct {
	groupID     string
	store       MessageStore
	dialer      Dialer
	session     *session.Session
	backoff     BackoffPolicy
	manualDelay time.Duration
	now         func() time.Time

	manual chan struct{}

	mu       sync.Mutex
	status   Status
	messages []model.ChatMessage
	presence map[string]model.Presence
	typing   bool
	channel  Channel
	attempt  int
	reacting map[string]struct{}
	onChange func()
	cancel   context.CancelFunc
	done     chan struct{}
}

type Option func(*Synchronizer)

func WithBackoff(policy BackoffPolicy) Option {
	return func(s *Synchronizer) { s.backoff = policy }
}

// WithManualDelay sets the wait after a user triggered Reconnect.
func WithManualDelay(d time.Duration) Option {
	return func(s *Synchronizer) { s.manualDelay = d }
}

func WithClock(now func() time.Time) Option {
	return func(s *Synchronizer) { s.now = now }
}

func New(groupID string, store MessageStore, dialer Dialer, sess *session.Session, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		groupID:     groupID,
		store:       store,
		dialer:      dialer,
		session:     sess,
		backoff:     DefaultBackoff,
		manualDelay: DefaultManualReconnectDelay,
		now:         time.Now,
		manual:      make(chan struct{}, 1),
		status:      StatusDisconnected,
		presence:    make(map[string]model.Presence),
		reacting:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnChange registers fn to be called after messages, presence or status
// change. fn runs on the goroutine that made the change.
func (s *Synchronizer) OnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *Synchronizer) notify() {
	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (s *Synchronizer) GroupID() string {
	return s.groupID
}

func (s *Synchronizer) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Synchronizer) setStatus(status Status) {
	s.mu.Lock()
	changed := s.status != status
	s.status = status
	s.mu.Unlock()
	if changed {
		s.notify()
	}
}

// Messages returns the message list ordered by created_at.
func (s *Synchronizer) Messages() []model.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.ChatMessage(nil), s.messages...)
}

// Presence returns who is present in the group, sorted by username.
func (s *Synchronizer) Presence() []model.Presence {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Presence, 0, len(s.presence))
	for _, p := range s.presence {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

// Start opens the realtime channel and loads the message history. The
// channel loop keeps running even when the history read fails; its error is
// returned so the caller can tell the user.
func (s *Synchronizer) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	go s.run(loopCtx, done)

	history, err := s.store.ListMessages(ctx, s.groupID)
	if err != nil {
		log.Printf("[Chat]: unable to load history for group %s: %v", s.groupID, err)
		return errors.Wrapf(err, "load messages for group %s", s.groupID)
	}

	s.mu.Lock()
	for _, m := range history {
		s.messages, _ = model.InsertMessage(s.messages, m)
	}
	s.mu.Unlock()
	s.notify()
	return nil
}

// Stop closes the channel and waits for the loop to exit.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	cancel, done, ch := s.cancel, s.done, s.channel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}

	cancel()
	if ch != nil {
		ch.Close()
	}
	<-done

	s.mu.Lock()
	s.done = nil
	s.presence = make(map[string]model.Presence)
	s.mu.Unlock()
	s.setStatus(StatusDisconnected)
}

// Reconnect tears the channel down and resubscribes after the manual delay
// with the attempt counter reset.
func (s *Synchronizer) Reconnect() {
	s.mu.Lock()
	ch, running := s.channel, s.done != nil
	s.mu.Unlock()
	if !running {
		return
	}

	select {
	case s.manual <- struct{}{}:
	default:
	}
	if ch != nil {
		ch.Close()
	}
}

func (s *Synchronizer) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		err := s.subscribe(ctx)
		if ctx.Err() != nil {
			return
		}

		var delay time.Duration
		if s.takeManual() {
			log.Printf("[Chat]: manual reconnect of group %s", s.groupID)
			s.resetAttempts()
			delay = s.manualDelay
		} else {
			failed := StatusErrored
			if errors.Is(err, ErrChannelClosed) {
				failed = StatusClosed
			}
			log.Printf("[Chat]: channel for group %s ended (%s): %v", s.groupID, failed, err)
			s.setStatus(failed)

			s.mu.Lock()
			s.attempt++
			attempt := s.attempt
			s.mu.Unlock()
			delay = s.backoff.Next(attempt)
		}

		s.setStatus(StatusReconnecting)
		if !s.wait(ctx, delay) {
			return
		}
	}
}

// wait sleeps for delay. A manual reconnect during the wait restarts it
// with the manual delay.
func (s *Synchronizer) wait(ctx context.Context, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer func() { timer.Stop() }()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-s.manual:
			s.resetAttempts()
			timer.Stop()
			timer = time.NewTimer(s.manualDelay)
		case <-timer.C:
			return true
		}
	}
}

func (s *Synchronizer) takeManual() bool {
	select {
	case <-s.manual:
		return true
	default:
		return false
	}
}

func (s *Synchronizer) resetAttempts() {
	s.mu.Lock()
	s.attempt = 0
	s.mu.Unlock()
}

// Attempts is the number of consecutive failed subscriptions.
func (s *Synchronizer) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt
}

func (s *Synchronizer) subscribe(ctx context.Context) error {
	s.setStatus(StatusSubscribing)

	username := s.session.Username()
	ch, err := s.dialer.Dial(ctx, s.groupID, username)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if ctx.Err() != nil {
		s.mu.Unlock()
		ch.Close()
		return ctx.Err()
	}
	if len(s.manual) > 0 {
		s.mu.Unlock()
		ch.Close()
		return errReconnectRequested
	}
	s.channel = ch
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.channel == ch {
			s.channel = nil
		}
		s.mu.Unlock()
		ch.Close()
	}()

	for {
		envelope, err := ch.Receive(ctx)
		if err != nil {
			return err
		}
		s.handle(ctx, ch, username, envelope)
	}
}

func (s *Synchronizer) handle(ctx context.Context, ch Channel, username string, envelope websockets.Envelope) {
	switch envelope.Type {
	case websockets.MsgTypeSubscribed:
		s.mu.Lock()
		s.status = StatusSubscribed
		s.attempt = 0
		typing := s.typing
		s.mu.Unlock()

		presence := model.Presence{Username: username, LastActivity: s.now().UTC(), Typing: typing}
		if err := ch.Track(ctx, presence); err != nil {
			log.Printf("[Chat]: unable to track presence in group %s: %v", s.groupID, err)
		}

	case websockets.MsgTypeInsert:
		msg := envelope.Message
		if msg == nil || (msg.GroupID != "" && msg.GroupID != s.groupID) {
			return
		}
		s.mu.Lock()
		var added bool
		s.messages, added = model.InsertMessage(s.messages, *msg)
		s.mu.Unlock()
		if !added {
			return
		}

	case websockets.MsgTypePresenceSync:
		set := make(map[string]model.Presence, len(envelope.Presences))
		for _, p := range envelope.Presences {
			set[p.Username] = p
		}
		s.mu.Lock()
		s.presence = set
		s.mu.Unlock()

	case websockets.MsgTypePresenceJoin:
		if envelope.Presence == nil {
			return
		}
		s.mu.Lock()
		s.presence[envelope.Presence.Username] = *envelope.Presence
		s.mu.Unlock()

	case websockets.MsgTypePresenceLeave:
		if envelope.Presence == nil {
			return
		}
		s.mu.Lock()
		delete(s.presence, envelope.Presence.Username)
		s.mu.Unlock()

	case websockets.MsgTypeError:
		log.Printf("[Chat]: channel error in group %s: %s", s.groupID, envelope.Error)
		return

	default:
		return
	}
	s.notify()
}

// Send stores the message remotely and adds the stored copy. The realtime
// echo of the same message is ignored.
func (s *Synchronizer) Send(ctx context.Context, text string, replyTo *model.ChatMessage) (model.ChatMessage, error) {
	if !util.NotBlank(text) {
		return model.ChatMessage{}, ErrEmptyMessage
	}

	msg := model.ChatMessage{
		GroupID: s.groupID,
		Sender:  s.session.Username(),
		Text:    strings.TrimSpace(text),
		Avatar:  util.StringPtr(s.session.Avatar()),
	}
	if replyTo != nil {
		msg.ReplyTo(*replyTo)
	}

	saved, err := s.store.SendMessage(ctx, msg)
	if err != nil {
		log.Printf("[Chat]: unable to send message to group %s: %v", s.groupID, err)
		return model.ChatMessage{}, errors.Wrap(err, "send message")
	}

	s.mu.Lock()
	var added bool
	s.messages, added = model.InsertMessage(s.messages, saved)
	s.mu.Unlock()
	if added {
		s.notify()
	}
	return saved, nil
}

// React toggles the session user's emoji reaction on a message. The change
// is shown at once and undone if the store rejects it.
func (s *Synchronizer) React(ctx context.Context, messageID, emoji string) error {
	if !util.NotBlank(emoji) {
		return ErrEmptyEmoji
	}
	username := s.session.Username()

	s.mu.Lock()
	i := s.indexOf(messageID)
	if i < 0 {
		s.mu.Unlock()
		return ErrMessageNotFound
	}
	if _, busy := s.reacting[messageID]; busy {
		s.mu.Unlock()
		return ErrOperationInFlight
	}
	prev := s.messages[i].Reactions
	next := model.ToggleReaction(prev, emoji, username)
	s.messages[i].Reactions = next
	s.reacting[messageID] = struct{}{}
	s.mu.Unlock()
	s.notify()

	err := s.store.UpdateReactions(ctx, s.groupID, messageID, next)

	s.mu.Lock()
	delete(s.reacting, messageID)
	if err != nil {
		if i := s.indexOf(messageID); i >= 0 && sameReactions(s.messages[i].Reactions, next) {
			s.messages[i].Reactions = prev
		}
	}
	s.mu.Unlock()

	if err != nil {
		log.Printf("[Chat]: reaction on %s failed, rolling back: %v", messageID, err)
		s.notify()
		return errors.Wrapf(err, "react to message %s", messageID)
	}
	return nil
}

// SetTyping reflects the local typing state into presence. Nothing is sent
// unless the state changed.
func (s *Synchronizer) SetTyping(ctx context.Context, typing bool) error {
	s.mu.Lock()
	if s.typing == typing {
		s.mu.Unlock()
		return nil
	}
	s.typing = typing
	ch, subscribed := s.channel, s.status == StatusSubscribed
	s.mu.Unlock()

	if ch == nil || !subscribed {
		return nil
	}
	return ch.Track(ctx, model.Presence{
		Username:     s.session.Username(),
		LastActivity: s.now().UTC(),
		Typing:       typing,
	})
}

// InputChanged derives the typing state from the current input text.
func (s *Synchronizer) InputChanged(ctx context.Context, input string) error {
	return s.SetTyping(ctx, input != "")
}

func (s *Synchronizer) indexOf(id string) int {
	for i := range s.messages {
		if s.messages[i].ID == id {
			return i
		}
	}
	return -1
}

func sameReactions(a, b []model.Reaction) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Emoji != b[i].Emoji || len(a[i].Users) != len(b[i].Users) {
			return false
		}
		for j := range a[i].Users {
			if a[i].Users[j] != b[i].Users[j] {
				return false
			}
		}
	}
	return true
}
