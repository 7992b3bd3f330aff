package rest

import (
	"context"
	"errors"
	"strings"

	"github.com/MaikZ91/liebefeld/internal/model"
	"github.com/MaikZ91/liebefeld/util"
	"github.com/MaikZ91/liebefeld/util/values"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lucsky/cuid"
)

func (api *API) ListGroupsHelper(ctx context.Context, category string) ([]model.ChatGroup, string, string, error) {
	groups, err := api.ListGroups(ctx, strings.TrimSpace(category))
	if err != nil {
		return []model.ChatGroup{}, values.Error, "Failed to get groups", err
	}
	return groups, values.Success, "Groups returned successfully", nil
}

func (api *API) CreateGroupHelper(ctx context.Context, req CreateGroupRequest) (model.ChatGroup, string, string, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := util.ValidateStruct(req); err != nil {
		return model.ChatGroup{}, values.BadRequestBody, "Invalid group", err
	}

	base := util.Slugify(req.Name)
	if base == "" {
		base = "gruppe"
	}
	group := model.ChatGroup{ID: base, Name: req.Name, Category: strings.ToLower(strings.TrimSpace(req.Category))}

	maxAttempts := 3
	for range maxAttempts {
		created, err := api.CreateGroup(ctx, group)
		if err == nil {
			return created, values.Created, "Group created successfully", nil
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation && pgErr.ConstraintName == "chat_groups_pkey" {
			// Slug taken by a group with a different name.
			group.ID = base + "-" + cuid.Slug()
			continue
		}
		return model.ChatGroup{}, repoStatus(err), "Failed to create group", err
	}
	return model.ChatGroup{}, values.Conflict, "Could not generate unique group id", errors.New("group id collision: " + base)
}

func (api *API) ListMessagesHelper(ctx context.Context, groupID string) ([]model.ChatMessage, string, string, error) {
	if _, err := api.GetGroupByID(ctx, groupID); err != nil {
		return []model.ChatMessage{}, repoStatus(err), "Unknown group", err
	}
	messages, err := api.ListMessages(ctx, groupID)
	if err != nil {
		return []model.ChatMessage{}, values.Error, "Failed to get messages", err
	}
	return messages, values.Success, "Messages returned successfully", nil
}

func (api *API) SendMessageHelper(ctx context.Context, groupID string, req SendMessageRequest) (model.ChatMessage, string, string, error) {
	req.Text = strings.TrimSpace(req.Text)
	if err := util.ValidateStruct(req); err != nil {
		return model.ChatMessage{}, values.BadRequestBody, "Invalid message", err
	}

	msg := model.ChatMessage{
		ID:      util.GenerateUUID().String(),
		GroupID: groupID,
		Sender:  strings.TrimSpace(req.Sender),
		Text:    req.Text,
		Avatar:  req.Avatar,
	}
	if req.ReplyToID != nil && *req.ReplyToID != "" {
		msg.ReplyToID = req.ReplyToID
	}

	created, err := api.CreateMessage(ctx, msg)
	if err != nil {
		return model.ChatMessage{}, repoStatus(err), "Failed to send message", err
	}
	return created, values.Created, "Message sent successfully", nil
}

func (api *API) UpdateReactionsHelper(ctx context.Context, groupID, messageID string, reactions []model.Reaction) (model.ChatMessage, string, string, error) {
	msg, err := api.UpdateReactions(ctx, groupID, messageID, normalizeReactions(reactions))
	if err != nil {
		return model.ChatMessage{}, repoStatus(err), "Failed to update reactions", err
	}
	return msg, values.Success, "Reactions updated successfully", nil
}

// normalizeReactions drops blank emojis and users, merges entries of the
// same emoji and removes duplicate users.
func normalizeReactions(reactions []model.Reaction) []model.Reaction {
	out := []model.Reaction{}
	index := map[string]int{}
	for _, r := range reactions {
		emoji := strings.TrimSpace(r.Emoji)
		if emoji == "" {
			continue
		}
		i, ok := index[emoji]
		if !ok {
			i = len(out)
			index[emoji] = i
			out = append(out, model.Reaction{Emoji: emoji, Users: []string{}})
		}
		for _, u := range r.Users {
			u = strings.TrimSpace(u)
			if u == "" || contains(out[i].Users, u) {
				continue
			}
			out[i].Users = append(out[i].Users, u)
		}
	}

	kept := out[:0]
	for _, r := range out {
		if len(r.Users) > 0 {
			kept = append(kept, r)
		}
	}
	return kept
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
