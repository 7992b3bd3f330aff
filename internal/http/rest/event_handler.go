package rest

import (
	"net/http"

	"github.com/MaikZ91/liebefeld/internal/model"
	"github.com/MaikZ91/liebefeld/util"
	"github.com/MaikZ91/liebefeld/util/tracing"
	"github.com/MaikZ91/liebefeld/util/values"
	"github.com/go-chi/chi/v5"
)

func (api *API) EventRoutes() chi.Router {
	mux := chi.NewRouter()

	mux.Group(func(r chi.Router) {
		r.Method(http.MethodGet, "/", Handler(api.ListEventsHandler))
		r.Method(http.MethodPost, "/", Handler(api.CreateEventHandler))
		r.Method(http.MethodGet, "/feed", Handler(api.EventFeedHandler))
		r.Method(http.MethodGet, "/{eventID}", Handler(api.GetEventHandler))
		r.Method(http.MethodPut, "/{eventID}/likes", Handler(api.UpdateEventLikesHandler))
		r.Method(http.MethodPut, "/{eventID}/rsvp", Handler(api.UpdateEventRSVPHandler))
	})

	return mux
}

// UpdateLikesRequest replaces the like state of an event.
type UpdateLikesRequest struct {
	Likes        int             `json:"likes" validate:"min=0"`
	LikedByUsers []model.LikedBy `json:"liked_by_users"`
}

// UpdateRSVPRequest replaces the RSVP tally and the derived like count.
type UpdateRSVPRequest struct {
	RSVP  model.RSVP `json:"rsvp"`
	Likes int        `json:"likes" validate:"min=0"`
}

func (api *API) ListEventsHandler(_ http.ResponseWriter, r *http.Request) *ServerResponse {
	tc := r.Context().Value(values.ContextTracingKey).(tracing.Context)

	events, status, message, err := api.ListEventsHelper(r.Context(), r.URL.Query().Get("city"))
	if err != nil {
		return respondWithError(err, message, status, &tc)
	}
	return &ServerResponse{
		Message:    message,
		Status:     status,
		StatusCode: util.StatusCode(status),
		Data:       events,
	}
}

func (api *API) CreateEventHandler(_ http.ResponseWriter, r *http.Request) *ServerResponse {
	tc := r.Context().Value(values.ContextTracingKey).(tracing.Context)

	var req model.Event
	if decodeErr := util.DecodeJSONBody(&tc, r.Body, &req); decodeErr != nil {
		return respondWithError(decodeErr, "unable to decode request", values.BadRequestBody, &tc)
	}
	if req.Organizer == "" {
		req.Organizer = util.GetUsernameFromContext(r.Context())
	}

	event, status, message, err := api.CreateEventHelper(r.Context(), req)
	if err != nil {
		return respondWithError(err, message, status, &tc)
	}
	return &ServerResponse{
		Message:    message,
		Status:     status,
		StatusCode: util.StatusCode(status),
		Data:       event,
	}
}

func (api *API) GetEventHandler(_ http.ResponseWriter, r *http.Request) *ServerResponse {
	tc := r.Context().Value(values.ContextTracingKey).(tracing.Context)

	event, err := api.GetEventByID(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		return respondWithError(err, "unable to get event", repoStatus(err), &tc)
	}
	return &ServerResponse{
		Message:    "Event returned successfully",
		Status:     values.Success,
		StatusCode: util.StatusCode(values.Success),
		Data:       event,
	}
}

func (api *API) UpdateEventLikesHandler(_ http.ResponseWriter, r *http.Request) *ServerResponse {
	tc := r.Context().Value(values.ContextTracingKey).(tracing.Context)

	var req UpdateLikesRequest
	if decodeErr := util.DecodeJSONBody(&tc, r.Body, &req); decodeErr != nil {
		return respondWithError(decodeErr, "unable to decode request", values.BadRequestBody, &tc)
	}

	event, status, message, err := api.UpdateEventLikesHelper(r.Context(), chi.URLParam(r, "eventID"), req)
	if err != nil {
		return respondWithError(err, message, status, &tc)
	}
	return &ServerResponse{
		Message:    message,
		Status:     status,
		StatusCode: util.StatusCode(status),
		Data:       event,
	}
}

func (api *API) UpdateEventRSVPHandler(_ http.ResponseWriter, r *http.Request) *ServerResponse {
	tc := r.Context().Value(values.ContextTracingKey).(tracing.Context)

	var req UpdateRSVPRequest
	if decodeErr := util.DecodeJSONBody(&tc, r.Body, &req); decodeErr != nil {
		return respondWithError(decodeErr, "unable to decode request", values.BadRequestBody, &tc)
	}

	event, status, message, err := api.UpdateEventRSVPHelper(r.Context(), chi.URLParam(r, "eventID"), req)
	if err != nil {
		return respondWithError(err, message, status, &tc)
	}
	return &ServerResponse{
		Message:    message,
		Status:     status,
		StatusCode: util.StatusCode(status),
		Data:       event,
	}
}

// EventFeedHandler serves the external feed already transformed into events.
func (api *API) EventFeedHandler(_ http.ResponseWriter, r *http.Request) *ServerResponse {
	tc := r.Context().Value(values.ContextTracingKey).(tracing.Context)

	events, err := api.Deps.Feed.FetchEvents(r.Context())
	if err != nil {
		return respondWithError(err, "unable to load event feed", values.Failed, &tc)
	}
	model.SortByDateDesc(events)
	return &ServerResponse{
		Message:    "Feed events returned successfully",
		Status:     values.Success,
		StatusCode: util.StatusCode(values.Success),
		Data:       events,
	}
}
