package rest

import (
	"context"
	"strings"

	"github.com/MaikZ91/liebefeld/internal/model"
	"github.com/MaikZ91/liebefeld/util"
	"github.com/MaikZ91/liebefeld/util/values"
)

func (api *API) ListEventsHelper(ctx context.Context, city string) ([]model.Event, string, string, error) {
	events, err := api.ListEvents(ctx, strings.ToLower(strings.TrimSpace(city)))
	if err != nil {
		return []model.Event{}, values.Error, "Failed to get events", err
	}
	return events, values.Success, "Events returned successfully", nil
}

func (api *API) CreateEventHelper(ctx context.Context, draft model.Event) (model.Event, string, string, error) {
	if err := util.ValidateStruct(draft); err != nil {
		return model.Event{}, values.BadRequestBody, "Invalid event", err
	}
	if draft.ID == "" {
		draft.ID = util.GenerateUUID().String()
	}
	if draft.Source == "" || draft.Source == model.SourceLocal {
		draft.Source = model.SourceCommunity
	}
	if draft.City != nil {
		city := strings.ToLower(strings.TrimSpace(*draft.City))
		draft.City = util.StringPtr(city)
	}
	if floor := draft.RSVP.PopularityFloor(); floor > draft.Likes {
		draft.Likes = floor
	}

	event, err := api.CreateEvent(ctx, draft)
	if err != nil {
		return model.Event{}, repoStatus(err), "Failed to create event", err
	}
	return event, values.Created, "Event created successfully", nil
}

func (api *API) UpdateEventLikesHelper(ctx context.Context, id string, req UpdateLikesRequest) (model.Event, string, string, error) {
	if err := util.ValidateStruct(req); err != nil {
		return model.Event{}, values.BadRequestBody, "Invalid likes", err
	}
	if req.LikedByUsers == nil {
		req.LikedByUsers = []model.LikedBy{}
	}

	event, err := api.UpdateEventLikes(ctx, id, req.Likes, req.LikedByUsers)
	if err != nil {
		return model.Event{}, repoStatus(err), "Failed to update likes", err
	}
	return event, values.Success, "Likes updated successfully", nil
}

func (api *API) UpdateEventRSVPHelper(ctx context.Context, id string, req UpdateRSVPRequest) (model.Event, string, string, error) {
	if err := util.ValidateStruct(req); err != nil {
		return model.Event{}, values.BadRequestBody, "Invalid rsvp", err
	}
	if floor := req.RSVP.PopularityFloor(); floor > req.Likes {
		req.Likes = floor
	}

	event, err := api.UpdateEventRSVP(ctx, id, req.RSVP, req.Likes)
	if err != nil {
		return model.Event{}, repoStatus(err), "Failed to update rsvp", err
	}
	return event, values.Success, "RSVP updated successfully", nil
}
