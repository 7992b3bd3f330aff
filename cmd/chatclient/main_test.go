package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runClient(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func setupEnv(t *testing.T, apiURL string) string {
	t.Helper()

	sessionPath := filepath.Join(t.TempDir(), "session.db")
	t.Setenv("API_BASE_URL", apiURL)
	t.Setenv("SESSION_PATH", sessionPath)
	return sessionPath
}

func TestUnreachableStoreShowsBundledEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"status":"error","message":"down"}`))
	}))
	defer srv.Close()
	setupEnv(t, srv.URL)

	out, err := runClient(t, "events")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if !strings.Contains(out, "Kneipenquiz") {
		t.Fatalf("bundled events missing from output:\n%s", out)
	}

	out, err = runClient(t, "like", "bundled-kneipenquiz")
	if err != nil {
		t.Fatalf("like: %v", err)
	}
	if !strings.Contains(out, "Kneipenquiz now has 5 likes") {
		t.Fatalf("like output = %q", out)
	}

	// The like survives in the session cache across runs.
	out, err = runClient(t, "events")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "[5 likes") {
		t.Fatalf("cached like not shown:\n%s", out)
	}
}

func TestArgumentsValidatedBeforeOpening(t *testing.T) {
	sessionPath := setupEnv(t, "http://127.0.0.1:1")

	testCases := [][]string{
		{"rsvp", "e1"},
		{"like"},
		{"chat"},
		{"add", "2026-05-01", "18:00"},
		{"groups", "extra"},
	}
	for _, args := range testCases {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			if _, err := runClient(t, args...); err == nil {
				t.Fatal("expected an argument error")
			}
		})
	}

	if _, err := os.Stat(sessionPath); !os.IsNotExist(err) {
		t.Fatalf("session opened despite invalid arguments: %v", err)
	}
}
