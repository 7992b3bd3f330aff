package model

import (
	"sort"
	"time"
)

type ChatMessage struct {
	ID            string     `json:"id"`
	GroupID       string     `json:"group_id" validate:"required"`
	Sender        string     `json:"sender" validate:"required,max=64"`
	Text          string     `json:"text" validate:"required,max=4000"`
	Avatar        *string    `json:"avatar,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	Reactions     []Reaction `json:"reactions,omitempty"`
	ReplyToID     *string    `json:"reply_to_id,omitempty"`
	ReplyToSender *string    `json:"reply_to_sender,omitempty"`
	ReplyToText   *string    `json:"reply_to_text,omitempty"`
}

// Reaction groups every user that reacted with the same emoji.
type Reaction struct {
	Emoji string   `json:"emoji"`
	Users []string `json:"users"`
}

// ReplySnippetLength caps the cached text of a replied-to message.
const ReplySnippetLength = 120

// ReplyTo fills the reply fields from the referenced message.
func (m *ChatMessage) ReplyTo(parent ChatMessage) {
	text := parent.Text
	if r := []rune(text); len(r) > ReplySnippetLength {
		text = string(r[:ReplySnippetLength])
	}
	id, sender := parent.ID, parent.Sender
	m.ReplyToID = &id
	m.ReplyToSender = &sender
	m.ReplyToText = &text
}

// ToggleReaction adds username to the emoji's entry, or removes it when
// already present. Entries left without users are dropped. The input slice
// is not modified.
func ToggleReaction(reactions []Reaction, emoji, username string) []Reaction {
	out := make([]Reaction, 0, len(reactions)+1)
	found := false
	for _, r := range reactions {
		if r.Emoji != emoji {
			out = append(out, Reaction{Emoji: r.Emoji, Users: append([]string(nil), r.Users...)})
			continue
		}
		found = true
		users := make([]string, 0, len(r.Users)+1)
		had := false
		for _, u := range r.Users {
			if u == username {
				had = true
				continue
			}
			users = appendUnique(users, u)
		}
		if !had {
			users = append(users, username)
		}
		if len(users) > 0 {
			out = append(out, Reaction{Emoji: emoji, Users: users})
		}
	}
	if !found {
		out = append(out, Reaction{Emoji: emoji, Users: []string{username}})
	}
	return out
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}

// InsertMessage places msg so that created_at stays non-decreasing. Messages
// with equal timestamps keep arrival order. It reports false when a message
// with the same id is already present.
func InsertMessage(list []ChatMessage, msg ChatMessage) ([]ChatMessage, bool) {
	for _, m := range list {
		if m.ID == msg.ID {
			return list, false
		}
	}
	i := sort.Search(len(list), func(i int) bool {
		return list[i].CreatedAt.After(msg.CreatedAt)
	})
	list = append(list, ChatMessage{})
	copy(list[i+1:], list[i:])
	list[i] = msg
	return list, true
}
