package rest

import (
	"errors"
	"net/http"
	"strings"

	"github.com/MaikZ91/liebefeld/internal/model"
	"github.com/MaikZ91/liebefeld/util"
	"github.com/MaikZ91/liebefeld/util/tracing"
	"github.com/MaikZ91/liebefeld/util/values"
	"github.com/go-chi/chi/v5"
)

func (api *API) ProfileRoutes() chi.Router {
	mux := chi.NewRouter()

	mux.Route("/", func(r chi.Router) {
		r.Method(http.MethodGet, "/", Handler(api.ListProfiles))
		r.Method(http.MethodGet, "/{username}", Handler(api.GetProfile))
		r.Method(http.MethodPut, "/{username}", Handler(api.UpsertProfile))
	})

	return mux
}

func (api *API) ListProfiles(_ http.ResponseWriter, r *http.Request) *ServerResponse {
	tc := r.Context().Value(values.ContextTracingKey).(tracing.Context)

	profiles, err := api.ListUserProfiles(r.Context())
	if err != nil {
		return respondWithError(err, "failed to list profiles", values.Error, &tc)
	}

	return &ServerResponse{
		Message:    "User profiles retrieved successfully",
		Status:     values.Success,
		StatusCode: util.StatusCode(values.Success),
		Data:       profiles,
	}
}

func (api *API) GetProfile(_ http.ResponseWriter, r *http.Request) *ServerResponse {
	tc := r.Context().Value(values.ContextTracingKey).(tracing.Context)

	profile, err := api.GetUserProfile(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		return respondWithError(err, "failed to get user profile", repoStatus(err), &tc)
	}

	return &ServerResponse{
		Message:    "User profile retrieved successfully",
		Status:     values.Success,
		StatusCode: util.StatusCode(values.Success),
		Data:       profile,
	}
}

// UpsertProfile creates or replaces the profile and stamps last_online.
func (api *API) UpsertProfile(_ http.ResponseWriter, r *http.Request) *ServerResponse {
	tc := r.Context().Value(values.ContextTracingKey).(tracing.Context)

	var req model.UserProfile
	if decodeErr := util.DecodeJSONBody(&tc, r.Body, &req); decodeErr != nil {
		return respondWithError(decodeErr, "unable to decode request", values.BadRequestBody, &tc)
	}

	req.Username = strings.TrimSpace(chi.URLParam(r, "username"))
	if util.IsGuest(req.Username) {
		return respondWithError(errors.New("guest profile"), "the guest name cannot own a profile", values.NotAllowed, &tc)
	}
	if err := util.ValidateStruct(req); err != nil {
		return respondWithError(err, "invalid profile", values.BadRequestBody, &tc)
	}

	profile, err := api.UpsertUserProfile(r.Context(), req)
	if err != nil {
		return respondWithError(err, "failed to save user profile", repoStatus(err), &tc)
	}

	return &ServerResponse{
		Message:    "User profile saved successfully",
		Status:     values.Success,
		StatusCode: util.StatusCode(values.Success),
		Data:       profile,
	}
}
