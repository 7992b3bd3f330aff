package rest

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/MaikZ91/liebefeld/util"
	"github.com/MaikZ91/liebefeld/util/tracing"
	"github.com/MaikZ91/liebefeld/util/values"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ServerResponse is the JSON envelope of every REST response.
type ServerResponse struct {
	Status     string      `json:"status"`
	Message    string      `json:"message"`
	Data       interface{} `json:"data,omitempty"`
	StatusCode int         `json:"-"`
}

func respondWithError(err error, message, status string, tc *tracing.Context) *ServerResponse {
	log.Printf("[%v] %s: %v", tc, message, err)
	return &ServerResponse{
		Message:    message,
		Status:     status,
		StatusCode: util.StatusCode(status),
	}
}

func writeErrorResponse(w http.ResponseWriter, err error, status, message string) {
	log.Printf("%s: %v", message, err)
	resp := ServerResponse{
		Message: message,
		Status:  status,
	}
	respByte, _ := json.Marshal(resp)
	writeJSONResponse(w, respByte, util.StatusCode(status))
}

func writeJSONResponse(w http.ResponseWriter, body []byte, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(body)
}

// repoStatus maps a repository error to a response status.
func repoStatus(err error) string {
	if errors.Is(err, pgx.ErrNoRows) {
		return values.NotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UniqueViolation:
			return values.Conflict
		case pgerrcode.ForeignKeyViolation, pgerrcode.CheckViolation:
			return values.Unprocessable
		}
	}
	return values.Error
}
