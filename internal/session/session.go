// Package session is the injected stand-in for the browser's local storage.
// Key names are shared with other clients and must not change.
package session

import (
	"encoding/json"
	"log"
	"strconv"
	"strings"
	"sync"

	"github.com/MaikZ91/liebefeld/util/values"
	"github.com/pkg/errors"
)

const (
	KeyUsername          = "community_chat_username"
	KeyAvatar            = "community_chat_avatar"
	KeyEventLikes        = "eventLikes"
	KeyInterests         = "user_interests"
	KeyFavoriteLocations = "user_favorite_locations"
	KeyOnboarding        = "onboarding_completed"
	KeyChatCategory      = "chat_category_preference"
)

// GuestUsername is the sentinel stored before onboarding picks a name.
const GuestUsername = values.GuestUsername

// Store is a string key/value store.
type Store interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
}

// Session exposes typed accessors over a Store.
type Session struct {
	store Store
	mu    sync.Mutex
}

func New(store Store) *Session {
	return &Session{store: store}
}

func (s *Session) get(key string) string {
	v, ok, err := s.store.Get(key)
	if err != nil {
		log.Printf("[Session]: reading %s: %v", key, err)
		return ""
	}
	if !ok {
		return ""
	}
	return v
}

// Username returns the stored username, or the guest sentinel when none is set.
func (s *Session) Username() string {
	if u := strings.TrimSpace(s.get(KeyUsername)); u != "" {
		return u
	}
	return GuestUsername
}

// HasIdentity reports whether a non-guest username has been chosen.
func (s *Session) HasIdentity() bool {
	return s.Username() != GuestUsername
}

func (s *Session) SetUsername(username string) error {
	return s.store.Set(KeyUsername, strings.TrimSpace(username))
}

func (s *Session) Avatar() string {
	return s.get(KeyAvatar)
}

func (s *Session) SetAvatar(avatar string) error {
	if avatar == "" {
		return s.store.Delete(KeyAvatar)
	}
	return s.store.Set(KeyAvatar, avatar)
}

// LikeCache returns the locally cached like counts keyed by event id.
func (s *Session) LikeCache() map[string]int {
	counts := map[string]int{}
	raw := s.get(KeyEventLikes)
	if raw == "" {
		return counts
	}
	if err := json.Unmarshal([]byte(raw), &counts); err != nil {
		log.Printf("[Session]: dropping unreadable %s: %v", KeyEventLikes, err)
		return map[string]int{}
	}
	return counts
}

// CacheLikes records the like count for one event.
func (s *Session) CacheLikes(eventID string, likes int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := s.LikeCache()
	counts[eventID] = likes
	raw, err := json.Marshal(counts)
	if err != nil {
		return errors.Wrap(err, "encode like cache")
	}
	return s.store.Set(KeyEventLikes, string(raw))
}

func (s *Session) stringList(key string) []string {
	raw := s.get(key)
	if raw == "" {
		return nil
	}
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		log.Printf("[Session]: dropping unreadable %s: %v", key, err)
		return nil
	}
	return list
}

func (s *Session) setStringList(key string, list []string) error {
	if list == nil {
		list = []string{}
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return errors.Wrapf(err, "encode %s", key)
	}
	return s.store.Set(key, string(raw))
}

func (s *Session) Interests() []string {
	return s.stringList(KeyInterests)
}

func (s *Session) SetInterests(interests []string) error {
	return s.setStringList(KeyInterests, interests)
}

func (s *Session) FavoriteLocations() []string {
	return s.stringList(KeyFavoriteLocations)
}

func (s *Session) SetFavoriteLocations(locations []string) error {
	return s.setStringList(KeyFavoriteLocations, locations)
}

func (s *Session) OnboardingCompleted() bool {
	done, _ := strconv.ParseBool(s.get(KeyOnboarding))
	return done
}

func (s *Session) SetOnboardingCompleted(done bool) error {
	return s.store.Set(KeyOnboarding, strconv.FormatBool(done))
}

func (s *Session) ChatCategory() string {
	return s.get(KeyChatCategory)
}

func (s *Session) SetChatCategory(category string) error {
	return s.store.Set(KeyChatCategory, category)
}

// MemoryStore keeps values in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (m *MemoryStore) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}
