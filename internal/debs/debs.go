package deps

import (
	"log"

	"github.com/MaikZ91/liebefeld/config"
	"github.com/MaikZ91/liebefeld/internal/db"
	"github.com/MaikZ91/liebefeld/internal/http/feed"
	"github.com/MaikZ91/liebefeld/util/storage"
	"github.com/MaikZ91/liebefeld/util/websockets"
)

type Dependencies struct {
	DB         *db.DB
	Cloudinary *storage.Cloudinary
	WebSocket  *websockets.WebSocketManager
	Feed       *feed.Client
}

func New(cfg *config.Config) *Dependencies {
	if cfg.RunMigrations {
		if err := db.Migrate(cfg.Dsn); err != nil {
			log.Panicln("failed to run migrations", "error", err)
		}
	}

	database, err := db.New(cfg.Dsn)
	if err != nil {
		log.Panicln("failed to connect to database", "error", err)
	}

	feedClient, err := feed.NewClient(cfg.EventFeedURL, "")
	if err != nil {
		log.Panicln("invalid event feed url", "error", err)
	}

	cloudinary := storage.NewCloudinary(cfg)
	websocket := websockets.NewWebSocketManager()

	deps := Dependencies{
		DB:         database,
		Cloudinary: cloudinary,
		WebSocket:  websocket,
		Feed:       feedClient,
	}
	return &deps
}

// Close releases the database pool.
func (d *Dependencies) Close() {
	d.DB.Close()
}
