package sync

import (
	"context"
	gosync "sync"
	"time"

	"tradewind/internal/models"

	"go.uber.org/zap"
)

// MessageFetcher is the slice of the collaborator API the stream cache needs.
type MessageFetcher interface {
	FetchMessages(ctx context.Context, conversationID, before string, limit int) ([]models.Message, error)
}

// DateGroup is one rendered bucket of messages sharing a calendar-day label.
type DateGroup struct {
	Label    string
	Messages []models.Message
}

// MessageStream holds the ordered message history for the active conversation
// and supports backward pagination. Messages are kept in ascending createdAt
// order; pagination prepends strictly older pages.
type MessageStream struct {
	api      MessageFetcher
	log      *zap.Logger
	pageSize int
	now      func() time.Time

	mu             gosync.Mutex
	conversationID string
	messages       []models.Message
	exhausted      bool
}

func NewMessageStream(api MessageFetcher, pageSize int, logger *zap.Logger) *MessageStream {
	return &MessageStream{
		api:      api,
		log:      logger.Named("stream"),
		pageSize: pageSize,
		now:      time.Now,
	}
}

// Load fetches one page. Without a cursor the cache is replaced and the stream
// switches to the given conversation; with a cursor the (older) page is
// prepended. A short page marks the stream exhausted.
func (s *MessageStream) Load(ctx context.Context, conversationID, before string) ([]models.Message, error) {
	page, err := s.api.FetchMessages(ctx, conversationID, before, s.pageSize)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if before == "" || conversationID != s.conversationID {
		s.conversationID = conversationID
		s.messages = append([]models.Message(nil), page...)
	} else {
		s.messages = append(append([]models.Message(nil), page...), s.messages...)
	}
	s.exhausted = len(page) < s.pageSize
	return page, nil
}

// Append inserts a live-delivered message if it belongs to the active
// conversation. Reports whether it was taken; the caller owns the mark-read
// round-trip that a taken message triggers.
func (s *MessageStream) Append(msg models.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conversationID == "" || msg.ConversationID != s.conversationID {
		return false
	}
	s.messages = append(s.messages, msg)
	return true
}

// ConversationID returns the active conversation, empty when none is loaded.
func (s *MessageStream) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// OldestID returns the backward-pagination cursor, empty when the cache is empty.
func (s *MessageStream) OldestID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		return ""
	}
	return s.messages[0].ID
}

func (s *MessageStream) Exhausted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exhausted
}

func (s *MessageStream) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Reset clears the cache, e.g. when the conversation surface unmounts.
func (s *MessageStream) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversationID = ""
	s.messages = nil
	s.exhausted = false
}

// GroupByDate buckets the cached messages by calendar day. Labels are computed
// against the clock at call time, not at message creation, so a message's
// label moves from "Today" to "Yesterday" as days roll over; callers should
// regroup on every render.
func (s *MessageStream) GroupByDate() []DateGroup {
	s.mu.Lock()
	msgs := make([]models.Message, len(s.messages))
	copy(msgs, s.messages)
	now := s.now()
	s.mu.Unlock()

	var groups []DateGroup
	for _, m := range msgs {
		label := dateLabel(m.CreatedAt, now)
		if n := len(groups); n > 0 && groups[n-1].Label == label {
			groups[n-1].Messages = append(groups[n-1].Messages, m)
			continue
		}
		groups = append(groups, DateGroup{Label: label, Messages: []models.Message{m}})
	}
	return groups
}

func dateLabel(createdAt, now time.Time) string {
	y1, m1, d1 := createdAt.Local().Date()
	y2, m2, d2 := now.Local().Date()
	if y1 == y2 && m1 == m2 && d1 == d2 {
		return "Today"
	}
	y3, m3, d3 := now.AddDate(0, 0, -1).Local().Date()
	if y1 == y3 && m1 == m3 && d1 == d3 {
		return "Yesterday"
	}
	return createdAt.Local().Format("January 2, 2006")
}
