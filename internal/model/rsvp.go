package model

import "fmt"

type RSVPOption string

const (
	RSVPYes   RSVPOption = "yes"
	RSVPNo    RSVPOption = "no"
	RSVPMaybe RSVPOption = "maybe"
)

func (o RSVPOption) Valid() bool {
	switch o {
	case RSVPYes, RSVPNo, RSVPMaybe:
		return true
	}
	return false
}

func ParseRSVPOption(s string) (RSVPOption, error) {
	o := RSVPOption(s)
	if !o.Valid() {
		return "", fmt.Errorf("invalid rsvp option %q", s)
	}
	return o, nil
}

// RSVP is the per-event yes/no/maybe tally.
type RSVP struct {
	Yes   int `json:"yes" validate:"min=0"`
	No    int `json:"no" validate:"min=0"`
	Maybe int `json:"maybe" validate:"min=0"`
}

func (r RSVP) Total() int {
	return r.Yes + r.No + r.Maybe
}

// Add returns a copy with the selected option incremented by one.
func (r RSVP) Add(o RSVPOption) RSVP {
	switch o {
	case RSVPYes:
		r.Yes++
	case RSVPNo:
		r.No++
	case RSVPMaybe:
		r.Maybe++
	}
	return r
}

// PopularityFloor is the like count implied by yes and maybe responses.
func (r RSVP) PopularityFloor() int {
	return r.Yes + r.Maybe
}
