package sync

import (
	"encoding/json"
	gosync "sync"
	"time"

	"tradewind/internal/models"

	"github.com/google/uuid"
)

// NotificationLog is the append-only in-memory record of inbound push events.
// An incremental per-category unread counter is maintained alongside the
// entries so CountUnread never scans the log.
type NotificationLog struct {
	mu      gosync.Mutex
	entries []models.Notification
	unread  map[string]int
	now     func() time.Time
}

func NewNotificationLog() *NotificationLog {
	return &NotificationLog{
		unread: make(map[string]int),
		now:    time.Now,
	}
}

// Record appends an unread notification and returns the created record.
func (l *NotificationLog) Record(category string, payload json.RawMessage) models.Notification {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := models.Notification{
		ID:         uuid.NewString(),
		Category:   category,
		Payload:    payload,
		Read:       false,
		ReceivedAt: l.now(),
	}
	l.entries = append(l.entries, n)
	l.unread[category]++
	return n
}

// MarkCategoryRead flips every current entry of the category to read and
// returns how many were flipped.
func (l *NotificationLog) MarkCategoryRead(category string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	flipped := 0
	for i := range l.entries {
		if l.entries[i].Category == category && !l.entries[i].Read {
			l.entries[i].Read = true
			flipped++
		}
	}
	l.unread[category] = 0
	return flipped
}

func (l *NotificationLog) CountUnread(category string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.unread[category]
}

// Entries returns a copy of the log, oldest first.
func (l *NotificationLog) Entries() []models.Notification {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.Notification, len(l.entries))
	copy(out, l.entries)
	return out
}
