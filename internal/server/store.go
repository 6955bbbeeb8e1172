package server

import (
	"sort"
	"sync"
	"time"

	"tradewind/internal/models"
)

// Store is the in-memory state behind the reference collaborator server.
// Deliberately allowed to hold duplicate conversation records for the same
// participant set, mirroring the upstream defect the client deduplicates.
type Store struct {
	mu            sync.RWMutex
	conversations map[string][]models.Conversation // by user id
	participants  map[string][]string              // conversation id -> user ids
	messages      map[string][]models.Message      // by conversation id, ascending
	unread        map[string]map[string]int        // user id -> conversation id -> count
}

func NewStore() *Store {
	return &Store{
		conversations: make(map[string][]models.Conversation),
		participants:  make(map[string][]string),
		messages:      make(map[string][]models.Message),
		unread:        make(map[string]map[string]int),
	}
}

// SeedConversation registers a conversation record for each participant.
// Seeding two records with the same participant set reproduces the duplicate
// defect on purpose.
func (s *Store) SeedConversation(conv models.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.participants[conv.ID] = append([]string(nil), conv.ParticipantIDs...)
	for _, uid := range conv.ParticipantIDs {
		s.conversations[uid] = append(s.conversations[uid], conv)
	}
}

// Conversations returns the user's records, most recent activity first.
func (s *Store) Conversations(userID string) []models.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Conversation, len(s.conversations[userID]))
	copy(out, s.conversations[userID])
	for i := range out {
		out[i].UnreadCount = s.unread[userID][out[i].ID]
		if msgs := s.messages[out[i].ID]; len(msgs) > 0 {
			last := msgs[len(msgs)-1]
			out[i].LastMessage = &last
			out[i].UpdatedAt = last.CreatedAt
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// AddMessage appends the message and bumps unread for every participant
// except the sender. Returns the recipients to notify.
func (s *Store) AddMessage(msg models.Message) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], msg)
	var recipients []string
	for _, uid := range s.participants[msg.ConversationID] {
		if uid == msg.SenderID {
			continue
		}
		if s.unread[uid] == nil {
			s.unread[uid] = make(map[string]int)
		}
		s.unread[uid][msg.ConversationID]++
		recipients = append(recipients, uid)
	}
	return recipients
}

// MessagesPage returns one ascending page, paginating backwards from the
// message id in before when set.
func (s *Store) MessagesPage(conversationID, before string, limit int) []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[conversationID]
	end := len(msgs)
	if before != "" {
		for i, m := range msgs {
			if m.ID == before {
				end = i
				break
			}
		}
	}
	start := end - limit
	if start < 0 {
		start = 0
	}
	out := make([]models.Message, end-start)
	copy(out, msgs[start:end])
	return out
}

func (s *Store) MarkConversationRead(userID, conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unread[userID] != nil {
		delete(s.unread[userID], conversationID)
	}
}

// UnreadCount is the user's total unread messages across conversations.
func (s *Store) UnreadCount(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, n := range s.unread[userID] {
		total += n
	}
	return total
}

// IsParticipant reports whether the user belongs to the conversation.
func (s *Store) IsParticipant(userID, conversationID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, uid := range s.participants[conversationID] {
		if uid == userID {
			return true
		}
	}
	return false
}

// NewMessage builds a server-assigned message record.
func NewMessage(id, conversationID, senderID, text string) models.Message {
	return models.Message{
		ID:             id,
		ConversationID: conversationID,
		SenderID:       senderID,
		Text:           text,
		CreatedAt:      time.Now(),
	}
}
