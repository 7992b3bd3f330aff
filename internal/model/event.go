package model

import (
	"sort"
	"time"
)

// Event sources.
const (
	SourceCommunity = "community"
	SourceFeed      = "feed"
	SourceLocal     = "local"
	SourceBundled   = "bundled"
)

// NewEventWindow is how long after creation an event is flagged as new.
const NewEventWindow = 24 * time.Hour

type Event struct {
	ID           string     `json:"id"`
	Title        string     `json:"title" validate:"required,max=200"`
	Description  string     `json:"description"`
	Date         string     `json:"date" validate:"required,calendarday"`
	Time         string     `json:"time" validate:"omitempty,clocktime"`
	Location     string     `json:"location"`
	Organizer    string     `json:"organizer"`
	Category     string     `json:"category"`
	City         *string    `json:"city,omitempty"`
	Link         *string    `json:"link,omitempty" validate:"omitempty,url"`
	ImageURLs    []string   `json:"image_urls,omitempty"`
	Likes        int        `json:"likes" validate:"min=0"`
	RSVP         RSVP       `json:"rsvp"`
	LikedByUsers []LikedBy  `json:"liked_by_users,omitempty"`
	Source       string     `json:"source,omitempty"`
	CreatedAt    *time.Time `json:"created_at,omitempty"`
}

// LikedBy records one user's like on an event.
type LikedBy struct {
	Username  string    `json:"username"`
	Avatar    string    `json:"avatar,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// IsNew reports whether the event was created less than NewEventWindow ago.
func (e Event) IsNew(now time.Time) bool {
	if e.CreatedAt == nil {
		return false
	}
	return now.Sub(*e.CreatedAt) < NewEventWindow
}

// HasLikeFrom reports whether username is in the liked-by list.
func (e Event) HasLikeFrom(username string) bool {
	for _, l := range e.LikedByUsers {
		if l.Username == username {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can mutate slices freely.
func (e Event) Clone() Event {
	c := e
	if e.ImageURLs != nil {
		c.ImageURLs = append([]string(nil), e.ImageURLs...)
	}
	if e.LikedByUsers != nil {
		c.LikedByUsers = append([]LikedBy(nil), e.LikedByUsers...)
	}
	return c
}

// ToggleLikedBy adds the user when absent and removes them when present.
// It returns the new list and whether the user is now included.
func ToggleLikedBy(list []LikedBy, user LikedBy) ([]LikedBy, bool) {
	out := make([]LikedBy, 0, len(list)+1)
	removed := false
	for _, l := range list {
		if l.Username == user.Username {
			removed = true
			continue
		}
		out = append(out, l)
	}
	if removed {
		return out, false
	}
	return append(out, user), true
}

// SortByDateDesc orders events newest date first. Events on the same day keep
// their time order.
func SortByDateDesc(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Date != events[j].Date {
			return events[i].Date > events[j].Date
		}
		return events[i].Time < events[j].Time
	})
}
