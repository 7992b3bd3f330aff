package rest

import (
	"net/http"

	"github.com/MaikZ91/liebefeld/internal/model"
	"github.com/MaikZ91/liebefeld/util"
	"github.com/MaikZ91/liebefeld/util/tracing"
	"github.com/MaikZ91/liebefeld/util/values"
	"github.com/go-chi/chi/v5"
)

func (api *API) GroupRoutes() chi.Router {
	mux := chi.NewRouter()

	mux.Group(func(r chi.Router) {
		r.Method(http.MethodGet, "/", Handler(api.ListGroupsHandler))
		r.Method(http.MethodPost, "/", Handler(api.CreateGroupHandler))
		r.Method(http.MethodGet, "/{groupID}", Handler(api.GetGroupByIDHandler))
		// Full history, oldest first.
		r.Method(http.MethodGet, "/{groupID}/messages", Handler(api.ListMessagesHandler))
		// Stored messages reach subscribers through the database change feed.
		r.Method(http.MethodPost, "/{groupID}/messages", Handler(api.SendMessageHandler))
		r.Method(http.MethodPut, "/{groupID}/messages/{messageID}/reactions", Handler(api.UpdateReactionsHandler))
	})

	return mux
}

type CreateGroupRequest struct {
	Name     string `json:"name" validate:"required,max=80"`
	Category string `json:"category" validate:"max=40"`
}

type SendMessageRequest struct {
	Sender    string  `json:"sender" validate:"max=64"`
	Text      string  `json:"text" validate:"required,max=4000"`
	Avatar    *string `json:"avatar,omitempty"`
	ReplyToID *string `json:"reply_to_id,omitempty"`
}

type UpdateReactionsRequest struct {
	Reactions []model.Reaction `json:"reactions"`
}

func (api *API) ListGroupsHandler(_ http.ResponseWriter, r *http.Request) *ServerResponse {
	tc := r.Context().Value(values.ContextTracingKey).(tracing.Context)

	groups, status, message, err := api.ListGroupsHelper(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		return respondWithError(err, message, status, &tc)
	}
	return &ServerResponse{
		Message:    message,
		Status:     status,
		StatusCode: util.StatusCode(status),
		Data:       groups,
	}
}

func (api *API) CreateGroupHandler(_ http.ResponseWriter, r *http.Request) *ServerResponse {
	tc := r.Context().Value(values.ContextTracingKey).(tracing.Context)

	var req CreateGroupRequest
	if decodeErr := util.DecodeJSONBody(&tc, r.Body, &req); decodeErr != nil {
		return respondWithError(decodeErr, "unable to decode request", values.BadRequestBody, &tc)
	}

	group, status, message, err := api.CreateGroupHelper(r.Context(), req)
	if err != nil {
		return respondWithError(err, message, status, &tc)
	}
	return &ServerResponse{
		Message:    message,
		Status:     status,
		StatusCode: util.StatusCode(status),
		Data:       group,
	}
}

func (api *API) GetGroupByIDHandler(_ http.ResponseWriter, r *http.Request) *ServerResponse {
	tc := r.Context().Value(values.ContextTracingKey).(tracing.Context)

	group, err := api.GetGroupByID(r.Context(), chi.URLParam(r, "groupID"))
	if err != nil {
		return respondWithError(err, "unable to get group", repoStatus(err), &tc)
	}
	return &ServerResponse{
		Message:    "Group returned successfully",
		Status:     values.Success,
		StatusCode: util.StatusCode(values.Success),
		Data:       group,
	}
}

func (api *API) ListMessagesHandler(_ http.ResponseWriter, r *http.Request) *ServerResponse {
	tc := r.Context().Value(values.ContextTracingKey).(tracing.Context)

	messages, status, message, err := api.ListMessagesHelper(r.Context(), chi.URLParam(r, "groupID"))
	if err != nil {
		return respondWithError(err, message, status, &tc)
	}
	return &ServerResponse{
		Message:    message,
		Status:     status,
		StatusCode: util.StatusCode(status),
		Data:       messages,
	}
}

func (api *API) SendMessageHandler(_ http.ResponseWriter, r *http.Request) *ServerResponse {
	tc := r.Context().Value(values.ContextTracingKey).(tracing.Context)

	var req SendMessageRequest
	if decodeErr := util.DecodeJSONBody(&tc, r.Body, &req); decodeErr != nil {
		return respondWithError(decodeErr, "unable to decode request", values.BadRequestBody, &tc)
	}
	if req.Sender == "" {
		req.Sender = util.GetUsernameFromContext(r.Context())
	}

	msg, status, message, err := api.SendMessageHelper(r.Context(), chi.URLParam(r, "groupID"), req)
	if err != nil {
		return respondWithError(err, message, status, &tc)
	}
	return &ServerResponse{
		Message:    message,
		Status:     status,
		StatusCode: util.StatusCode(status),
		Data:       msg,
	}
}

func (api *API) UpdateReactionsHandler(_ http.ResponseWriter, r *http.Request) *ServerResponse {
	tc := r.Context().Value(values.ContextTracingKey).(tracing.Context)

	var req UpdateReactionsRequest
	if decodeErr := util.DecodeJSONBody(&tc, r.Body, &req); decodeErr != nil {
		return respondWithError(decodeErr, "unable to decode request", values.BadRequestBody, &tc)
	}

	msg, status, message, err := api.UpdateReactionsHelper(r.Context(), chi.URLParam(r, "groupID"), chi.URLParam(r, "messageID"), req.Reactions)
	if err != nil {
		return respondWithError(err, message, status, &tc)
	}
	return &ServerResponse{
		Message:    message,
		Status:     status,
		StatusCode: util.StatusCode(status),
		Data:       msg,
	}
}
