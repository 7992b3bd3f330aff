package events

import (
	_ "embed"
	"encoding/json"
	"time"

	"github.com/MaikZ91/liebefeld/internal/model"
	"github.com/MaikZ91/liebefeld/util"
	pkgerrors "github.com/pkg/errors"
)

//go:embed fallback.json
var fallbackJSON []byte

type bundledEvent struct {
	model.Event
	DayOffset int `json:"day_offset"`
}

// BundledEvents returns the sample events shipped with the client, dated
// relative to now so they always lie ahead.
func BundledEvents(now time.Time) ([]model.Event, error) {
	var bundled []bundledEvent
	if err := json.Unmarshal(fallbackJSON, &bundled); err != nil {
		return nil, pkgerrors.Wrap(err, "decode bundled events")
	}

	events := make([]model.Event, 0, len(bundled))
	for _, b := range bundled {
		e := b.Event
		e.Date = util.CalendarDay(now.AddDate(0, 0, b.DayOffset))
		e.Source = model.SourceBundled
		events = append(events, e)
	}
	model.SortByDateDesc(events)
	return events, nil
}
