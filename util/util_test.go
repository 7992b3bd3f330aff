package util

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/MaikZ91/liebefeld/internal/model"
	"github.com/MaikZ91/liebefeld/util/values"
)

func TestFormatTime(t *testing.T) {
	testTime := time.Date(2025, 4, 5, 14, 30, 45, 0, time.UTC)

	testCases := []struct {
		name           string
		format         string
		expectedResult string
	}{
		{"RFC3339", time.RFC3339, "2025-04-05T14:30:45Z"},
		{"Calendar Day", CalendarDayLayout, "2025-04-05"},
		{"Clock Time", ClockTimeLayout, "14:30"},
		{"Short Date", "Jan 2", "Apr 5"},
		{"Day of Week", "Monday", "Saturday"},
		{"Empty Format", "", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := formatTime(tc.format, testTime)

			if result != tc.expectedResult {
				t.Errorf("formatTime(%q, %v) = %q; want %q",
					tc.format, testTime, result, tc.expectedResult)
			}
		})
	}
}

func TestSlugify(t *testing.T) {
	testCases := map[string]string{
		"Bielefeld":         "bielefeld",
		"Münster":           "muenster",
		"Bad Oeynhausen":    "bad-oeynhausen",
		"Kreativ & Kultur!": "kreativ--kultur",
	}
	for in, want := range testCases {
		if got := Slugify(in); got != want {
			t.Errorf("Slugify(%q) = %q; want %q", in, got, want)
		}
	}
}

func TestStatusCode(t *testing.T) {
	testCases := map[string]int{
		values.Success:        http.StatusOK,
		values.Created:        http.StatusCreated,
		values.BadRequestBody: http.StatusBadRequest,
		values.NotFound:       http.StatusNotFound,
		values.Conflict:       http.StatusConflict,
		values.Error:          http.StatusInternalServerError,
		values.Failed:         http.StatusInternalServerError,
		"unknown":             http.StatusOK,
	}
	for status, want := range testCases {
		if got := StatusCode(status); got != want {
			t.Errorf("StatusCode(%q) = %d; want %d", status, got, want)
		}
	}
}

func TestGetUsernameFromContext(t *testing.T) {
	if got := GetUsernameFromContext(context.Background()); got != values.GuestUsername {
		t.Errorf("empty context username = %q; want %q", got, values.GuestUsername)
	}
	ctx := context.WithValue(context.Background(), values.ContextUsernameKey, "anna")
	if got := GetUsernameFromContext(ctx); got != "anna" {
		t.Errorf("username = %q; want anna", got)
	}
	if !IsGuest(values.GuestUsername) || !IsGuest(" ") || IsGuest("anna") {
		t.Error("IsGuest misclassified a username")
	}
}

func TestValidateEvent(t *testing.T) {
	valid := model.Event{Title: "Jazz im Park", Date: "2025-06-01", Time: "19:30"}
	if err := ValidateStruct(valid); err != nil {
		t.Fatalf("valid event rejected: %v", err)
	}

	testCases := []struct {
		name  string
		event model.Event
	}{
		{"missing title", model.Event{Date: "2025-06-01"}},
		{"bad date", model.Event{Title: "x", Date: "01.06.2025"}},
		{"bad time", model.Event{Title: "x", Date: "2025-06-01", Time: "7pm"}},
		{"negative likes", model.Event{Title: "x", Date: "2025-06-01", Likes: -1}},
		{"negative rsvp", model.Event{Title: "x", Date: "2025-06-01", RSVP: model.RSVP{No: -1}}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if err := ValidateStruct(tc.event); err == nil {
				t.Errorf("ValidateStruct(%+v) = nil; want error", tc.event)
			}
		})
	}
}
