package models

import (
	"sort"
	"strings"
	"time"
)

type Conversation struct {
	ID             string    `json:"id"`
	ParticipantIDs []string  `json:"participant_ids"`
	LastMessage    *Message  `json:"last_message,omitempty"`
	UnreadCount    int       `json:"unread_count"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ParticipantKey returns the canonical key for this conversation's participant
// set: ids sorted and joined. Empty when the record carries no participants.
func (c *Conversation) ParticipantKey() string {
	if len(c.ParticipantIDs) == 0 {
		return ""
	}
	ids := make([]string, len(c.ParticipantIDs))
	copy(ids, c.ParticipantIDs)
	sort.Strings(ids)
	return strings.Join(ids, "|")
}
