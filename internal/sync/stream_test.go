package sync

import (
	"context"
	"fmt"
	"testing"
	"time"

	"tradewind/internal/models"

	"go.uber.org/zap"
)

// pagedFetcher serves a fixed ascending history in backward pages, the way
// the collaborator API does.
type pagedFetcher struct {
	history map[string][]models.Message
	calls   int
}

func (f *pagedFetcher) FetchMessages(_ context.Context, conversationID, before string, limit int) ([]models.Message, error) {
	f.calls++
	msgs := f.history[conversationID]
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
	return msgs[start:end], nil
}

func history(conversationID string, n int, base time.Time) []models.Message {
	msgs := make([]models.Message, n)
	for i := range msgs {
		msgs[i] = models.Message{
			ID:             fmt.Sprintf("m%03d", i),
			ConversationID: conversationID,
			SenderID:       "peer",
			Text:           "hello",
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		}
	}
	return msgs
}

func TestLoadReplacesThenPrependsOlderPages(t *testing.T) {
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	f := &pagedFetcher{history: map[string][]models.Message{"conv-1": history("conv-1", 12, base)}}
	s := NewMessageStream(f, 5, zap.NewNop())

	page, err := s.Load(context.Background(), "conv-1", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 5 || page[0].ID != "m007" {
		t.Fatalf("first page = %d msgs starting %q, want 5 starting m007", len(page), page[0].ID)
	}
	if s.Exhausted() {
		t.Fatal("exhausted after a full page")
	}

	if _, err := s.Load(context.Background(), "conv-1", s.OldestID()); err != nil {
		t.Fatal(err)
	}
	msgs := s.Messages()
	if len(msgs) != 10 || msgs[0].ID != "m002" {
		t.Fatalf("after one back page: %d msgs starting %q, want 10 starting m002", len(msgs), msgs[0].ID)
	}

	// Last page is short: only m000 and m001 remain.
	if _, err := s.Load(context.Background(), "conv-1", s.OldestID()); err != nil {
		t.Fatal(err)
	}
	if !s.Exhausted() {
		t.Fatal("not exhausted after short page")
	}
	msgs = s.Messages()
	if len(msgs) != 12 || msgs[0].ID != "m000" {
		t.Fatalf("full history: %d msgs starting %q", len(msgs), msgs[0].ID)
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt) {
			t.Fatalf("ordering violated at %d", i)
		}
	}
}

func TestLoadSwitchingConversationReplaces(t *testing.T) {
	base := time.Now().Add(-time.Hour)
	f := &pagedFetcher{history: map[string][]models.Message{
		"conv-1": history("conv-1", 3, base),
		"conv-2": history("conv-2", 2, base),
	}}
	s := NewMessageStream(f, 5, zap.NewNop())
	s.Load(context.Background(), "conv-1", "")
	s.Load(context.Background(), "conv-2", "")
	if got := len(s.Messages()); got != 2 {
		t.Fatalf("after switch: %d msgs, want 2", got)
	}
	if s.ConversationID() != "conv-2" {
		t.Fatalf("active conversation = %q, want conv-2", s.ConversationID())
	}
}

func TestAppendOnlyForActiveConversation(t *testing.T) {
	f := &pagedFetcher{history: map[string][]models.Message{"conv-1": nil}}
	s := NewMessageStream(f, 5, zap.NewNop())
	s.Load(context.Background(), "conv-1", "")

	if !s.Append(models.Message{ID: "live-1", ConversationID: "conv-1", CreatedAt: time.Now()}) {
		t.Fatal("live message for active conversation rejected")
	}
	if s.Append(models.Message{ID: "live-2", ConversationID: "conv-other", CreatedAt: time.Now()}) {
		t.Fatal("live message for a different conversation accepted")
	}
	if got := len(s.Messages()); got != 1 {
		t.Fatalf("cache size = %d, want 1", got)
	}
}

func TestGroupByDateLabelsFollowTheClock(t *testing.T) {
	now := time.Date(2026, 8, 31, 10, 0, 0, 0, time.Local)
	f := &pagedFetcher{}
	s := NewMessageStream(f, 50, zap.NewNop())
	s.now = func() time.Time { return now }
	s.conversationID = "conv-1"
	s.messages = []models.Message{
		{ID: "a", ConversationID: "conv-1", CreatedAt: now.AddDate(0, 0, -7)},
		{ID: "b", ConversationID: "conv-1", CreatedAt: now.AddDate(0, 0, -1)},
		{ID: "c", ConversationID: "conv-1", CreatedAt: now.AddDate(0, 0, -1).Add(time.Hour)},
		{ID: "d", ConversationID: "conv-1", CreatedAt: now.Add(-time.Hour)},
	}

	groups := s.GroupByDate()
	if len(groups) != 3 {
		t.Fatalf("groups = %d, want 3", len(groups))
	}
	if groups[0].Label != "August 24, 2026" {
		t.Fatalf("old label = %q", groups[0].Label)
	}
	if groups[1].Label != "Yesterday" || len(groups[1].Messages) != 2 {
		t.Fatalf("yesterday group = %q with %d msgs", groups[1].Label, len(groups[1].Messages))
	}
	if groups[2].Label != "Today" {
		t.Fatalf("today label = %q", groups[2].Label)
	}

	// The same message's label moves as the clock rolls past midnight.
	s.now = func() time.Time { return now.AddDate(0, 0, 1) }
	groups = s.GroupByDate()
	if groups[2].Label != "Yesterday" {
		t.Fatalf("label after rollover = %q, want Yesterday", groups[2].Label)
	}
}

func TestResetClearsState(t *testing.T) {
	f := &pagedFetcher{history: map[string][]models.Message{"conv-1": history("conv-1", 2, time.Now())}}
	s := NewMessageStream(f, 50, zap.NewNop())
	s.Load(context.Background(), "conv-1", "")
	s.Reset()
	if s.ConversationID() != "" || len(s.Messages()) != 0 || s.OldestID() != "" {
		t.Fatal("reset left residual state")
	}
}
