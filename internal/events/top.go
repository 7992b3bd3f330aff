package events

import "github.com/MaikZ91/liebefeld/internal/model"

// TopEventForDate returns the most liked event on date. Ties go to the
// lexicographically smallest id so the result does not depend on order.
func TopEventForDate(events []model.Event, date string) (model.Event, bool) {
	var top model.Event
	found := false
	for _, e := range events {
		if e.Date != date {
			continue
		}
		if !found || beats(e, top) {
			top = e
			found = true
		}
	}
	return top, found
}

// TopEventForEachDay maps every date present to the id of its top event.
func TopEventForEachDay(events []model.Event) map[string]string {
	best := make(map[string]model.Event)
	for _, e := range events {
		cur, ok := best[e.Date]
		if !ok || beats(e, cur) {
			best[e.Date] = e
		}
	}
	out := make(map[string]string, len(best))
	for date, e := range best {
		out[date] = e.ID
	}
	return out
}

// TopEventForEachDay computes the top event ids over the current collection.
func (c *Coordinator) TopEventForEachDay() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return TopEventForEachDay(c.events)
}

func beats(a, b model.Event) bool {
	if a.Likes != b.Likes {
		return a.Likes > b.Likes
	}
	return a.ID < b.ID
}
