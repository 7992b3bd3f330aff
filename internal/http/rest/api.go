package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/MaikZ91/liebefeld/config"
	deps "github.com/MaikZ91/liebefeld/internal/debs"
	"github.com/MaikZ91/liebefeld/util/values"
	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
)

const (
	defaultIdleTimeout    = time.Minute
	defaultReadTimeout    = 5 * time.Second
	defaultWriteTimeout   = 10 * time.Second
	defaultShutdownPeriod = 30 * time.Second
)

type Handler func(w http.ResponseWriter, r *http.Request) *ServerResponse

func (h Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := h(w, r)
	respByte, err := json.Marshal(resp)
	if err != nil {
		writeErrorResponse(w, err, values.Error, "unable to marshal server response")
		return
	}
	writeJSONResponse(w, respByte, resp.StatusCode)
}

type API struct {
	Server *http.Server
	Config *config.Config
	Deps   *deps.Dependencies
}

func (api *API) Serve() error {
	api.Server = &http.Server{
		Addr:         fmt.Sprintf(":%d", api.Config.Port),
		IdleTimeout:  defaultIdleTimeout,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
		Handler:      api.setUpServerHandler(),
	}
	return api.Server.ListenAndServe()
}

func (api *API) setUpServerHandler() http.Handler {
	mux := chi.NewRouter()

	mux.Get("/",
		func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("Liebefeld community API"))
		},
	)

	// Browsers cannot set headers on websocket upgrades, so the realtime
	// channel sits outside the tracing group.
	mux.Mount("/realtime", api.RealtimeRoutes())

	mux.Group(func(r chi.Router) {
		r.Use(RequestTracing)
		r.Use(GuestIdentity)

		r.Mount("/events", api.EventRoutes())
		r.Mount("/groups", api.GroupRoutes())
		r.Mount("/profiles", api.ProfileRoutes())
		r.Mount("/uploads", api.UploadRoutes())
	})

	return cors.New(cors.Options{
		AllowedOrigins: api.Config.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{
			"Content-Type",
			values.HeaderRequestSource,
			values.HeaderRequestID,
			values.HeaderGuestUsername,
		},
	}).Handler(mux)
}

func (api *API) Shutdown() error {
	if api.Server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownPeriod)
	defer cancel()

	return api.Server.Shutdown(ctx)
}
