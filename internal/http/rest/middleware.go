package rest

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/MaikZ91/liebefeld/util/tracing"
	"github.com/MaikZ91/liebefeld/util/values"
	"github.com/lucsky/cuid"
)

// RequestTracing handles the request tracing context
func RequestTracing(next http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		requestSource := r.Header.Get(values.HeaderRequestSource)
		if requestSource == "" {
			errM := errors.New("X-Request-Source is empty")

			writeErrorResponse(w, errM, values.BadRequestBody, errM.Error())
			return
		}

		requestID := r.Header.Get(values.HeaderRequestID)
		if requestID == "" {
			requestID = cuid.New()
		}
		w.Header().Set(values.HeaderRequestID, requestID)

		tracingContext := tracing.Context{
			RequestID:     requestID,
			RequestSource: requestSource,
		}

		ctx = context.WithValue(ctx, values.ContextTracingKey, tracingContext)
		next.ServeHTTP(w, r.WithContext(ctx))
	}

	return http.HandlerFunc(fn)
}

// GuestIdentity stores the caller's self-chosen display name in the
// request context. There are no accounts; a missing header means guest.
func GuestIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username := strings.TrimSpace(r.Header.Get(values.HeaderGuestUsername))
		if username == "" {
			username = values.GuestUsername
		}
		ctx := context.WithValue(r.Context(), values.ContextUsernameKey, username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
