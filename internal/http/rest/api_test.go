package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MaikZ91/liebefeld/config"
	deps "github.com/MaikZ91/liebefeld/internal/debs"
	"github.com/MaikZ91/liebefeld/internal/http/feed"
	"github.com/MaikZ91/liebefeld/internal/model"
	"github.com/MaikZ91/liebefeld/util"
	"github.com/MaikZ91/liebefeld/util/storage"
	"github.com/MaikZ91/liebefeld/util/tracing"
	"github.com/MaikZ91/liebefeld/util/values"
	"github.com/MaikZ91/liebefeld/util/websockets"
	"github.com/gorilla/websocket"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func newTestAPI(t *testing.T, feedURL string) *API {
	t.Helper()

	feedClient, err := feed.NewClient(feedURL, "")
	if err != nil {
		t.Fatal(err)
	}
	return &API{
		Config: &config.Config{AllowedOrigins: []string{"https://liebefeld.example"}},
		Deps: &deps.Dependencies{
			Cloudinary: &storage.Cloudinary{},
			WebSocket:  websockets.NewWebSocketManager(),
			Feed:       feedClient,
		},
	}
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) ServerResponse {
	t.Helper()
	var resp ServerResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func TestRequestTracingRequiresSource(t *testing.T) {
	handler := RequestTracing(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without X-Request-Source")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if resp := decodeResponse(t, rec); resp.Status != values.BadRequestBody {
		t.Fatalf("envelope status = %q", resp.Status)
	}
}

func TestRequestTracingAndGuestIdentity(t *testing.T) {
	var gotID, gotUser string
	handler := RequestTracing(GuestIdentity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = r.Context().Value(values.ContextTracingKey).(tracing.Context).RequestID
		gotUser = util.GetUsernameFromContext(r.Context())
	})))

	tests := []struct {
		name     string
		username string
		want     string
	}{
		{"named", "anna", "anna"},
		{"guest", "", values.GuestUsername},
		{"blank", "   ", values.GuestUsername},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set(values.HeaderRequestSource, "test")
			req.Header.Set(values.HeaderRequestID, "req-1")
			req.Header.Set(values.HeaderGuestUsername, tt.username)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if gotUser != tt.want {
				t.Errorf("username = %q, want %q", gotUser, tt.want)
			}
			if gotID != "req-1" {
				t.Errorf("tracing = %q", gotID)
			}
			if rec.Header().Get(values.HeaderRequestID) != "req-1" {
				t.Errorf("request id not echoed")
			}
		})
	}
}

func TestEventFeedEndpoint(t *testing.T) {
	feedServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"date":"Mon, 01.01","event":"New Year Run (@Jahnplatz)"},{"date":"kaputt","event":"x"}]`)
	}))
	defer feedServer.Close()

	server := httptest.NewServer(newTestAPI(t, feedServer.URL).setUpServerHandler())
	defer server.Close()

	req, _ := http.NewRequest(http.MethodGet, server.URL+"/events/feed", nil)
	req.Header.Set(values.HeaderRequestSource, "test")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body struct {
		Status string        `json:"status"`
		Data   []model.Event `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK || body.Status != values.Success {
		t.Fatalf("status %d %q", resp.StatusCode, body.Status)
	}
	if len(body.Data) != 1 || body.Data[0].Title != "New Year Run" || body.Data[0].Location != "Jahnplatz" {
		t.Fatalf("data = %+v", body.Data)
	}
}

func TestEventFeedEndpointWithoutFeed(t *testing.T) {
	server := httptest.NewServer(newTestAPI(t, "").setUpServerHandler())
	defer server.Close()

	req, _ := http.NewRequest(http.MethodGet, server.URL+"/events/feed", nil)
	req.Header.Set(values.HeaderRequestSource, "test")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestUploadWithoutStorage(t *testing.T) {
	handler := newTestAPI(t, "").setUpServerHandler()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("file", "flyer.png")
	part.Write(pngHeader)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/uploads?folder=avatars", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(values.HeaderRequestSource, "test")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}

	buf.Reset()
	mw = multipart.NewWriter(&buf)
	part, _ = mw.CreateFormFile("file", "notes.png")
	part.Write([]byte("just some text"))
	mw.Close()

	req = httptest.NewRequest(http.MethodPost, "/uploads", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(values.HeaderRequestSource, "test")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("text upload status = %d, want 400", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/uploads?folder=secrets", nil)
	req.Header.Set(values.HeaderRequestSource, "test")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	handler := newTestAPI(t, "").setUpServerHandler()

	req := httptest.NewRequest(http.MethodOptions, "/events", nil)
	req.Header.Set("Origin", "https://liebefeld.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	req.Header.Set("Access-Control-Request-Headers", values.HeaderGuestUsername)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://liebefeld.example" {
		t.Fatalf("allow origin = %q", got)
	}
}

func TestRealtimeRouteSkipsTracing(t *testing.T) {
	a := newTestAPI(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	go a.Deps.WebSocket.Run(ctx)

	server := httptest.NewServer(a.setUpServerHandler())
	defer func() {
		cancel()
		server.Close()
	}()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/realtime/groups/sport?username=anna"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var envelope websockets.Envelope
	if err := conn.ReadJSON(&envelope); err != nil {
		t.Fatal(err)
	}
	if envelope.Type != websockets.MsgTypeSubscribed || envelope.GroupID != "sport" {
		t.Fatalf("first frame = %+v", envelope)
	}
}

func TestRepoStatus(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{pgx.ErrNoRows, values.NotFound},
		{fmt.Errorf("wrapped: %w", pgx.ErrNoRows), values.NotFound},
		{&pgconn.PgError{Code: pgerrcode.UniqueViolation}, values.Conflict},
		{&pgconn.PgError{Code: pgerrcode.CheckViolation}, values.Unprocessable},
		{errors.New("boom"), values.Error},
	}
	for _, tt := range tests {
		if got := repoStatus(tt.err); got != tt.want {
			t.Errorf("repoStatus(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestNormalizeReactions(t *testing.T) {
	got := normalizeReactions([]model.Reaction{
		{Emoji: "👍", Users: []string{"anna", "anna", " ben "}},
		{Emoji: " ", Users: []string{"cem"}},
		{Emoji: "🎉", Users: []string{}},
		{Emoji: "👍", Users: []string{"dana", "ben"}},
	})
	if len(got) != 1 {
		t.Fatalf("got %+v", got)
	}
	want := []string{"anna", "ben", "dana"}
	if len(got[0].Users) != len(want) {
		t.Fatalf("users = %v", got[0].Users)
	}
	for i := range want {
		if got[0].Users[i] != want[i] {
			t.Fatalf("users = %v, want %v", got[0].Users, want)
		}
	}
}
