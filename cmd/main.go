package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MaikZ91/liebefeld/config"
	"github.com/MaikZ91/liebefeld/internal/db"
	deps "github.com/MaikZ91/liebefeld/internal/debs"
	api "github.com/MaikZ91/liebefeld/internal/http/rest"
)

const (
	allowConnectionsAfterShutdown = 1 * time.Second
)

func main() {
	cfg := config.New()
	deps := deps.New(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := &api.API{
		Config: cfg,
		Deps:   deps,
	}

	deps.WebSocket.SetMessageLoader(a.GetMessage)
	go deps.WebSocket.Run(ctx)
	go deps.DB.Listen(ctx, db.ChatMessageChannel, deps.WebSocket.HandleChangeFeed)
	go func() {
		log.Printf("Server running on port %v ...", cfg.Port)
		if err := a.Serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	<-stopChan

	log.Println("Request to shutdown server. Doing nothing for ", allowConnectionsAfterShutdown)
	waitTimer := time.NewTimer(allowConnectionsAfterShutdown)
	<-waitTimer.C

	log.Println("Shutting down server...")
	if err := a.Shutdown(); err != nil {
		log.Println("server shutdown:", err)
	}

	cancel()
	deps.Close()
	log.Println("Database connections closed.")
}
