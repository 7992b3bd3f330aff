package model

import "time"

type UserProfile struct {
	Username          string     `json:"username" validate:"required,min=1,max=64"`
	Avatar            *string    `json:"avatar,omitempty"`
	Interests         []string   `json:"interests"`
	FavoriteLocations []string   `json:"favorite_locations"`
	LastOnline        *time.Time `json:"last_online,omitempty"`
}

// Clone returns a copy that shares no slices or pointers with p.
func (p UserProfile) Clone() UserProfile {
	c := p
	if p.Avatar != nil {
		avatar := *p.Avatar
		c.Avatar = &avatar
	}
	if p.LastOnline != nil {
		t := *p.LastOnline
		c.LastOnline = &t
	}
	c.Interests = append([]string(nil), p.Interests...)
	c.FavoriteLocations = append([]string(nil), p.FavoriteLocations...)
	return c
}

// Presence is an ephemeral realtime participant of a chat group.
type Presence struct {
	Username     string    `json:"username"`
	LastActivity time.Time `json:"last_activity"`
	Typing       bool      `json:"typing"`
}
