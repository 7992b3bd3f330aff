// Package events holds the in-memory event collection for one view and runs
// optimistic like/RSVP mutations against the remote store, rolling back when
// the store rejects them.
package events

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/MaikZ91/liebefeld/internal/model"
	"github.com/MaikZ91/liebefeld/internal/session"
	"github.com/MaikZ91/liebefeld/util"
	"github.com/lucsky/cuid"
	pkgerrors "github.com/pkg/errors"
)

// LocalIDPrefix marks events that only exist on this client.
const LocalIDPrefix = "local-"

var (
	ErrEmptyID           = errors.New("event id is empty")
	ErrEventNotFound     = errors.New("event not found")
	ErrOperationInFlight = errors.New("a change to this event is already in flight")
)

// Store is the remote event table.
type Store interface {
	ListEvents(ctx context.Context, city string) ([]model.Event, error)
	CreateEvent(ctx context.Context, draft model.Event) (model.Event, error)
	UpdateLikes(ctx context.Context, id string, likes int, likedBy []model.LikedBy) error
	UpdateRSVP(ctx context.Context, id string, rsvp model.RSVP, likes int) error
}

// FeedSource supplies read-only events from an external feed.
type FeedSource interface {
	FetchEvents(ctx context.Context) ([]model.Event, error)
}

type Coordinator struct {
	store    Store
	session  *session.Session
	feed     FeedSource
	fallback []model.Event
	city     string
	now      func() time.Time

	mu       sync.RWMutex
	events   []model.Event
	inFlight map[string]struct{}
}

type Option func(*Coordinator)

// WithCity scopes RefreshEvents to one city.
func WithCity(city string) Option {
	return func(c *Coordinator) { c.city = city }
}

// WithFeed merges external feed events into every refresh.
func WithFeed(feed FeedSource) Option {
	return func(c *Coordinator) { c.feed = feed }
}

// WithFallback sets the bundled events shown when the remote read fails on
// an empty collection.
func WithFallback(events []model.Event) Option {
	return func(c *Coordinator) { c.fallback = events }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithEvents seeds the in-memory collection.
func WithEvents(events []model.Event) Option {
	return func(c *Coordinator) {
		c.events = cloneAll(events)
	}
}

func New(store Store, sess *session.Session, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:    store,
		session:  sess,
		now:      time.Now,
		inFlight: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Events returns a copy of the current collection.
func (c *Coordinator) Events() []model.Event {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneAll(c.events)
}

// Event returns a copy of one event.
func (c *Coordinator) Event(id string) (model.Event, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i := c.indexOf(id)
	if i < 0 {
		return model.Event{}, false
	}
	return c.events[i].Clone(), true
}

// InFlight reports whether a mutation on id is awaiting the remote store.
func (c *Coordinator) InFlight(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.inFlight[id]
	return ok
}

// LikeEvent applies a like immediately and then persists it. With a known
// session identity the like toggles the user's entry in liked_by_users,
// otherwise it is a plain increment. A failed write restores the previous
// value and the error is returned.
func (c *Coordinator) LikeEvent(ctx context.Context, id string) error {
	username := c.session.Username()
	identified := c.session.HasIdentity()

	prev, next, err := c.begin(id, func(e model.Event) model.Event {
		if !identified {
			e.Likes++
			return e
		}
		var added bool
		e.LikedByUsers, added = model.ToggleLikedBy(e.LikedByUsers, model.LikedBy{
			Username:  username,
			Avatar:    c.session.Avatar(),
			Timestamp: c.now().UTC(),
		})
		if added {
			e.Likes++
		} else if e.Likes > 0 {
			e.Likes--
		}
		return e
	})
	if err != nil {
		return err
	}
	defer c.finish(id)

	if isLocal(next) {
		// Never reached the store; the like lives in the session cache only.
		if err := c.session.CacheLikes(id, next.Likes); err != nil {
			log.Printf("unable to cache likes for %s: %v", id, err)
		}
		return nil
	}

	if err := c.store.UpdateLikes(ctx, id, next.Likes, next.LikedByUsers); err != nil {
		log.Printf("like on event %s failed, rolling back: %v", id, err)
		c.rollback(prev, next)
		return pkgerrors.Wrapf(err, "like event %s", id)
	}

	if err := c.session.CacheLikes(id, next.Likes); err != nil {
		log.Printf("unable to cache likes for %s: %v", id, err)
	}
	return nil
}

// RSVPEvent counts one response and lifts likes to at least yes+maybe.
// It follows the same optimistic path and rollback as LikeEvent.
func (c *Coordinator) RSVPEvent(ctx context.Context, id string, option model.RSVPOption) error {
	if !option.Valid() {
		return pkgerrors.Errorf("invalid rsvp option %q", option)
	}

	prev, next, err := c.begin(id, func(e model.Event) model.Event {
		e.RSVP = e.RSVP.Add(option)
		if floor := e.RSVP.PopularityFloor(); floor > e.Likes {
			e.Likes = floor
		}
		return e
	})
	if err != nil {
		return err
	}
	defer c.finish(id)

	if isLocal(next) {
		return nil
	}

	if err := c.store.UpdateRSVP(ctx, id, next.RSVP, next.Likes); err != nil {
		log.Printf("rsvp %s on event %s failed, rolling back: %v", option, id, err)
		c.rollback(prev, next)
		return pkgerrors.Wrapf(err, "rsvp event %s", id)
	}
	return nil
}

// isLocal reports whether e exists only on this device: saved after the
// store rejected it, or shipped with the client.
func isLocal(e model.Event) bool {
	switch e.Source {
	case model.SourceLocal, model.SourceBundled:
		return true
	}
	return strings.HasPrefix(e.ID, LocalIDPrefix)
}

// begin checks preconditions, marks id in flight and applies mutate. It
// returns copies of the event before and after the change.
func (c *Coordinator) begin(id string, mutate func(model.Event) model.Event) (model.Event, model.Event, error) {
	if id == "" {
		return model.Event{}, model.Event{}, ErrEmptyID
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexOf(id)
	if i < 0 {
		return model.Event{}, model.Event{}, ErrEventNotFound
	}
	if _, busy := c.inFlight[id]; busy {
		return model.Event{}, model.Event{}, ErrOperationInFlight
	}

	prev := c.events[i].Clone()
	next := mutate(c.events[i].Clone())
	if next.Likes < 0 {
		next.Likes = 0
	}
	c.events[i] = next
	c.inFlight[id] = struct{}{}
	return prev, next.Clone(), nil
}

func (c *Coordinator) finish(id string) {
	c.mu.Lock()
	delete(c.inFlight, id)
	c.mu.Unlock()
}

// rollback restores prev unless the entry no longer holds the optimistic
// value, which means a refresh replaced it in the meantime.
func (c *Coordinator) rollback(prev, optimistic model.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexOf(prev.ID)
	if i < 0 {
		return
	}
	cur := c.events[i]
	if cur.Likes != optimistic.Likes || cur.RSVP != optimistic.RSVP || len(cur.LikedByUsers) != len(optimistic.LikedByUsers) {
		return
	}
	c.events[i] = prev
}

// AddUserEvent stores a new event remotely. When the store fails the event
// is kept locally under a local- id so the user's input is not lost.
func (c *Coordinator) AddUserEvent(ctx context.Context, draft model.Event) (model.Event, error) {
	if draft.Organizer == "" {
		draft.Organizer = c.session.Username()
	}
	if draft.City == nil && c.city != "" {
		city := c.city
		draft.City = &city
	}
	if err := util.ValidateStruct(draft); err != nil {
		return model.Event{}, pkgerrors.Wrap(err, "invalid event")
	}

	created, err := c.store.CreateEvent(ctx, draft)
	if err != nil {
		log.Printf("unable to store event %q remotely, keeping it locally: %v", draft.Title, err)
		created = draft.Clone()
		created.ID = LocalIDPrefix + cuid.New()
		created.Source = model.SourceLocal
		now := c.now().UTC()
		created.CreatedAt = &now
	}

	c.mu.Lock()
	c.events = append(c.events, created.Clone())
	model.SortByDateDesc(c.events)
	c.mu.Unlock()

	return created, nil
}

// RefreshEvents replaces the collection with the remote events plus the
// external feed. If the remote read fails while nothing is loaded, the
// fallback events are installed with cached like counts and the read error
// is returned.
func (c *Coordinator) RefreshEvents(ctx context.Context) error {
	remote, err := c.store.ListEvents(ctx, c.city)
	if err != nil {
		log.Printf("unable to load events for %q: %v", c.city, err)
		c.mu.Lock()
		if len(c.events) == 0 && len(c.fallback) > 0 {
			c.events = c.withCachedLikes(cloneAll(c.fallback))
			model.SortByDateDesc(c.events)
		}
		c.mu.Unlock()
		return pkgerrors.Wrap(err, "refresh events")
	}

	merged := cloneAll(remote)
	if c.feed != nil {
		external, err := c.feed.FetchEvents(ctx)
		if err != nil {
			log.Printf("unable to load external event feed: %v", err)
		}
		merged = mergeByID(merged, external)
	}
	model.SortByDateDesc(merged)

	c.mu.Lock()
	c.events = merged
	c.mu.Unlock()
	return nil
}

// withCachedLikes lifts like counts to the locally cached values.
func (c *Coordinator) withCachedLikes(events []model.Event) []model.Event {
	cached := c.session.LikeCache()
	for i := range events {
		if n, ok := cached[events[i].ID]; ok && n > events[i].Likes {
			events[i].Likes = n
		}
	}
	return events
}

func (c *Coordinator) indexOf(id string) int {
	for i := range c.events {
		if c.events[i].ID == id {
			return i
		}
	}
	return -1
}

func mergeByID(base, extra []model.Event) []model.Event {
	seen := make(map[string]struct{}, len(base))
	for _, e := range base {
		seen[e.ID] = struct{}{}
	}
	for _, e := range extra {
		if _, dup := seen[e.ID]; dup {
			continue
		}
		seen[e.ID] = struct{}{}
		base = append(base, e.Clone())
	}
	return base
}

func cloneAll(events []model.Event) []model.Event {
	if events == nil {
		return nil
	}
	out := make([]model.Event, len(events))
	for i, e := range events {
		out[i] = e.Clone()
	}
	return out
}
