package rest

import (
	"context"
	"log"

	"github.com/MaikZ91/liebefeld/internal/model"
	"github.com/jackc/pgx/v5"
)

const messageColumns = `id, group_id, sender, text, avatar, created_at, reactions,
       reply_to_id, reply_to_sender, reply_to_text`

func scanMessage(row pgx.Row) (model.ChatMessage, error) {
	var msg model.ChatMessage
	err := row.Scan(
		&msg.ID, &msg.GroupID, &msg.Sender, &msg.Text, &msg.Avatar, &msg.CreatedAt, &msg.Reactions,
		&msg.ReplyToID, &msg.ReplyToSender, &msg.ReplyToText,
	)
	return msg, err
}

func (api *API) ListGroups(ctx context.Context, category string) ([]model.ChatGroup, error) {
	query := `
        SELECT id, name, category, created_at
        FROM chat_groups
        WHERE $1 = '' OR category = $1
        ORDER BY created_at, name`

	rows, err := api.Deps.DB.Pool().Query(ctx, query, category)
	if err != nil {
		log.Println("error listing groups", err)
		return nil, err
	}
	defer rows.Close()

	groups := []model.ChatGroup{}
	for rows.Next() {
		var g model.ChatGroup
		if err := rows.Scan(&g.ID, &g.Name, &g.Category, &g.CreatedAt); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (api *API) GetGroupByID(ctx context.Context, groupID string) (model.ChatGroup, error) {
	var g model.ChatGroup
	err := api.Deps.DB.Pool().QueryRow(ctx,
		`SELECT id, name, category, created_at FROM chat_groups WHERE id = $1`, groupID,
	).Scan(&g.ID, &g.Name, &g.Category, &g.CreatedAt)
	return g, err
}

func (api *API) CreateGroup(ctx context.Context, group model.ChatGroup) (model.ChatGroup, error) {
	var created model.ChatGroup
	err := api.Deps.DB.Pool().QueryRow(ctx, `
        INSERT INTO chat_groups (id, name, category)
        VALUES ($1, $2, $3)
        RETURNING id, name, category, created_at`,
		group.ID, group.Name, group.Category,
	).Scan(&created.ID, &created.Name, &created.Category, &created.CreatedAt)
	if err != nil {
		log.Println("error creating chat group", err)
		return model.ChatGroup{}, err
	}
	return created, nil
}

func (api *API) ListMessages(ctx context.Context, groupID string) ([]model.ChatMessage, error) {
	query := `SELECT ` + messageColumns + `
        FROM chat_messages
        WHERE group_id = $1
        ORDER BY created_at ASC, id ASC`

	rows, err := api.Deps.DB.Pool().Query(ctx, query, groupID)
	if err != nil {
		log.Println("error listing messages", err)
		return nil, err
	}
	defer rows.Close()

	messages := []model.ChatMessage{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// GetMessage reads one message of a group. The realtime hub uses it to
// resolve change-feed keys.
func (api *API) GetMessage(ctx context.Context, groupID, messageID string) (model.ChatMessage, error) {
	query := `SELECT ` + messageColumns + ` FROM chat_messages WHERE group_id = $1 AND id = $2`
	return scanMessage(api.Deps.DB.Pool().QueryRow(ctx, query, groupID, messageID))
}

// CreateMessage inserts the message. A reply snapshots its parent inside the
// same transaction. The insert trigger publishes the row on the change feed
// once the transaction commits.
func (api *API) CreateMessage(ctx context.Context, msg model.ChatMessage) (model.ChatMessage, error) {
	query := `
        INSERT INTO chat_messages (id, group_id, sender, text, avatar, reply_to_id, reply_to_sender, reply_to_text)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING ` + messageColumns

	var created model.ChatMessage
	err := api.Deps.DB.RunInTx(ctx, func(tx pgx.Tx) error {
		if msg.ReplyToID != nil {
			parent, err := scanMessage(tx.QueryRow(ctx,
				`SELECT `+messageColumns+` FROM chat_messages WHERE group_id = $1 AND id = $2 FOR SHARE`,
				msg.GroupID, *msg.ReplyToID))
			if err != nil {
				return err
			}
			msg.ReplyTo(parent)
		}

		var err error
		created, err = scanMessage(tx.QueryRow(ctx, query,
			msg.ID, msg.GroupID, msg.Sender, msg.Text, msg.Avatar, msg.ReplyToID, msg.ReplyToSender, msg.ReplyToText,
		))
		return err
	})
	if err != nil {
		log.Println("error creating chat message", err)
		return model.ChatMessage{}, err
	}
	return created, nil
}

func (api *API) UpdateReactions(ctx context.Context, groupID, messageID string, reactions []model.Reaction) (model.ChatMessage, error) {
	query := `
        UPDATE chat_messages
        SET reactions = $3
        WHERE group_id = $1 AND id = $2
        RETURNING ` + messageColumns

	return scanMessage(api.Deps.DB.Pool().QueryRow(ctx, query, groupID, messageID, reactions))
}
