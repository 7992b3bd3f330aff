package rest

import (
	"net/http"
	"strings"

	"github.com/MaikZ91/liebefeld/util/values"
	"github.com/go-chi/chi/v5"
)

func (api *API) RealtimeRoutes() chi.Router {
	mux := chi.NewRouter()
	mux.Get("/groups/{groupID}", api.GroupChannelHandler)
	return mux
}

// GroupChannelHandler upgrades to the group's websocket channel.
func (api *API) GroupChannelHandler(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	if groupID == "" {
		http.Error(w, "missing group", http.StatusBadRequest)
		return
	}

	username := strings.TrimSpace(r.URL.Query().Get("username"))
	if username == "" {
		username = values.GuestUsername
	}

	api.Deps.WebSocket.HandleConnections(w, r, groupID, username)
}
