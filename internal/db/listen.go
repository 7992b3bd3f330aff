package db

import (
	"context"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
)

// ChatMessageChannel is the NOTIFY channel written by the chat_messages
// insert trigger.
const ChatMessageChannel = "chat_message_inserts"

const listenRetryDelay = 5 * time.Second

// Listen forwards every notification on channel to handle until ctx is
// cancelled. A lost connection is re-acquired after listenRetryDelay.
func (db *DB) Listen(ctx context.Context, channel string, handle func(ctx context.Context, payload string)) {
	for {
		err := db.listenOnce(ctx, channel, handle)
		if ctx.Err() != nil {
			return
		}
		log.Printf("[ChangeFeed]: listener on %s stopped: %v; retrying in %v", channel, err, listenRetryDelay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(listenRetryDelay):
		}
	}
}

func (db *DB) listenOnce(ctx context.Context, channel string, handle func(ctx context.Context, payload string)) error {
	conn, err := db.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		// Do not hand a listening connection back to the pool.
		unlistenCtx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
		defer cancel()
		if _, err := conn.Exec(unlistenCtx, "UNLISTEN *"); err != nil {
			conn.Conn().Close(unlistenCtx)
		}
		conn.Release()
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		return err
	}
	log.Printf("[ChangeFeed]: listening on %s", channel)

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		handle(ctx, n.Payload)
	}
}
