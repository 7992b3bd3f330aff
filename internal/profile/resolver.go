// Package profile resolves the session user's remote profile and mirrors the
// personalization lists into the session.
package profile

import (
	"context"
	"log"
	"strings"
	"sync"

	"github.com/MaikZ91/liebefeld/internal/model"
	"github.com/MaikZ91/liebefeld/internal/session"
	"github.com/MaikZ91/liebefeld/util"
	"github.com/pkg/errors"
)

// Store reads and writes user profiles. GetProfile returns nil, nil when the
// user has no profile yet.
type Store interface {
	GetProfile(ctx context.Context, username string) (*model.UserProfile, error)
	UpsertProfile(ctx context.Context, profile model.UserProfile) (model.UserProfile, error)
}

type Resolver struct {
	store   Store
	session *session.Session

	mu      sync.RWMutex
	current *model.UserProfile
}

func NewResolver(store Store, sess *session.Session) *Resolver {
	return &Resolver{store: store, session: sess}
}

// Username is the session username, the guest sentinel when none is set.
func (r *Resolver) Username() string {
	return r.session.Username()
}

// Profile returns the last successfully fetched profile, or nil.
func (r *Resolver) Profile() *model.UserProfile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.current == nil {
		return nil
	}
	p := r.current.Clone()
	return &p
}

// Refetch loads the profile for the session username. Guests and users
// without a remote profile resolve to nil. On error the previous profile is
// kept.
func (r *Resolver) Refetch(ctx context.Context) (*model.UserProfile, error) {
	if !r.session.HasIdentity() {
		r.set(nil)
		return nil, nil
	}
	username := r.session.Username()

	p, err := r.store.GetProfile(ctx, username)
	if err != nil {
		log.Printf("[Profile]: unable to fetch profile of %s: %v", username, err)
		return r.Profile(), errors.Wrapf(err, "fetch profile %s", username)
	}

	r.set(p)
	if p == nil {
		return nil, nil
	}
	r.mirror(*p)
	return r.Profile(), nil
}

// Save upserts the profile and binds its username and avatar to the session.
func (r *Resolver) Save(ctx context.Context, p model.UserProfile) (*model.UserProfile, error) {
	p.Username = strings.TrimSpace(p.Username)
	if util.IsGuest(p.Username) {
		return nil, errors.Errorf("%q is reserved for guests", p.Username)
	}
	if err := util.ValidateStruct(p); err != nil {
		return nil, errors.Wrap(err, "invalid profile")
	}

	saved, err := r.store.UpsertProfile(ctx, p)
	if err != nil {
		return nil, errors.Wrapf(err, "save profile %s", p.Username)
	}

	if err := r.session.SetUsername(saved.Username); err != nil {
		return nil, errors.Wrap(err, "store username")
	}
	avatar := ""
	if saved.Avatar != nil {
		avatar = *saved.Avatar
	}
	if err := r.session.SetAvatar(avatar); err != nil {
		return nil, errors.Wrap(err, "store avatar")
	}
	r.mirror(saved)
	r.set(&saved)
	return r.Profile(), nil
}

func (r *Resolver) set(p *model.UserProfile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p == nil {
		r.current = nil
		return
	}
	c := p.Clone()
	r.current = &c
}

func (r *Resolver) mirror(p model.UserProfile) {
	if err := r.session.SetInterests(p.Interests); err != nil {
		log.Printf("[Profile]: unable to cache interests: %v", err)
	}
	if err := r.session.SetFavoriteLocations(p.FavoriteLocations); err != nil {
		log.Printf("[Profile]: unable to cache favorite locations: %v", err)
	}
}
