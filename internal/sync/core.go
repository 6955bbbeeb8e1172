// Package sync converges push events, polling, visibility triggers and
// optimistic local updates into one consistent view of unread counts and
// conversation state.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	gosync "sync"
	"time"

	"tradewind/config"
	"tradewind/internal/domain"
	"tradewind/internal/models"
	"tradewind/internal/push"

	"go.uber.org/zap"
)

// API is the request/response collaborator contract the core consumes.
type API interface {
	FetchUnreadMessageCount(ctx context.Context) (int, error)
	FetchConversations(ctx context.Context) ([]models.Conversation, error)
	FetchMessages(ctx context.Context, conversationID, before string, limit int) ([]models.Message, error)
	MarkConversationRead(ctx context.Context, conversationID string) error
	SendMessage(ctx context.Context, conversationID, text string) (*models.Message, error)
}

// PushChannel is the bidirectional event channel contract.
type PushChannel interface {
	Connect(ctx context.Context, identityToken string) error
	Close() error
	On(event string, h push.Handler)
	OnOpened(h func())
	OnClosed(h func())
}

var ErrAlreadyStarted = errors.New("sync: core already started")

// Core is the coordination point. It owns every trigger that can mutate
// unread state (push events, the poll timer, visibility regains, settle
// timers after local events) and funnels them all through the Reconciler.
type Core struct {
	cfg  config.SyncConfig
	api  API
	push PushChannel
	log  *zap.Logger

	notifications *NotificationLog
	recon         *Reconciler
	stream        *MessageStream

	mu            gosync.Mutex
	conversations []models.Conversation
	convSubs      map[int]func([]models.Conversation)
	nextSub       int
	activeSurface string
	visible       bool
	settleTimer   *time.Timer
	navTimer      *time.Timer
	started       bool
	done          chan struct{}
}

func New(cfg config.SyncConfig, apiClient API, pushChan PushChannel, logger *zap.Logger) *Core {
	return &Core{
		cfg:           cfg,
		api:           apiClient,
		push:          pushChan,
		log:           logger.Named("sync"),
		notifications: NewNotificationLog(),
		recon:         NewReconciler(logger),
		stream:        NewMessageStream(apiClient, cfg.PageSize, logger),
		convSubs:      make(map[int]func([]models.Conversation)),
		visible:       true,
		done:          make(chan struct{}),
	}
}

// Start wires the push handlers, connects the channel and begins the poll
// loop. A failed initial connect is not fatal: the channel re-arms its own
// reconnect and the poll keeps the counters converging meanwhile.
func (c *Core) Start(ctx context.Context, identityToken string) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	c.mu.Unlock()

	c.push.OnOpened(func() {
		// Heal drift accumulated while disconnected.
		c.RefreshCounts()
	})
	c.push.OnClosed(func() {
		c.log.Info("push channel lost; awaiting reconnect")
	})
	c.push.On(domain.EventNewMessage, c.handleNewMessage)
	c.push.On(domain.EventNewTradeOffer, c.handleNewTradeOffer)
	c.push.On(domain.EventMessageCountUpdate, func(json.RawMessage) { c.RefreshCounts() })
	c.push.On(domain.EventRefreshUnreadCount, func(json.RawMessage) { c.RefreshCounts() })

	if err := c.push.Connect(ctx, identityToken); err != nil {
		c.log.Warn("initial connect failed; reconnect armed", zap.Error(err))
	}

	go c.pollLoop()
	return nil
}

// Close releases every timer and subscription and tears the channel down.
func (c *Core) Close() {
	c.mu.Lock()
	if c.settleTimer != nil {
		c.settleTimer.Stop()
		c.settleTimer = nil
	}
	if c.navTimer != nil {
		c.navTimer.Stop()
		c.navTimer = nil
	}
	select {
	case <-c.done:
	default:
		close(c.done)
	}
	c.mu.Unlock()
	c.push.Close()
}

func (c *Core) pollLoop() {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.RefreshCounts()
		}
	}
}

// RefreshCounts dispatches one sequence-tagged authoritative refresh. The
// response is applied only if no later refresh has been dispatched by the
// time it resolves; on failure the previous value is retained.
func (c *Core) RefreshCounts() {
	seq := c.recon.NextSequence()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		count, err := c.api.FetchUnreadMessageCount(ctx)
		if err != nil {
			c.log.Warn("count refresh failed; keeping last value",
				zap.Uint64("seq", seq), zap.Error(err))
			return
		}
		c.recon.ApplyRefresh(seq, count)
	}()
}

func (c *Core) handleNewMessage(data json.RawMessage) {
	c.notifications.Record(domain.CategoryMessage, data)

	var msg models.Message
	taken := false
	if json.Unmarshal(data, &msg) == nil && msg.ID != "" {
		if c.stream.Append(msg) {
			taken = true
			go c.markReadWithRetry(msg.ConversationID)
		}
		c.bumpConversation(msg, !taken)
	}

	c.mu.Lock()
	surface := c.activeSurface
	c.mu.Unlock()
	if surface != domain.SurfaceMessages {
		c.recon.ApplyOptimisticDelta(1)
	}
	c.scheduleSettleRefresh()
}

func (c *Core) handleNewTradeOffer(data json.RawMessage) {
	c.notifications.Record(domain.CategoryTradeOffer, data)
	c.recon.SetTradeOfferCount(c.notifications.CountUnread(domain.CategoryTradeOffer))
	c.scheduleSettleRefresh()
}

// scheduleSettleRefresh arms the post-event refresh, giving server-side
// processing time to catch up. A new event pushes the deadline out.
func (c *Core) scheduleSettleRefresh() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.settleTimer != nil {
		c.settleTimer.Stop()
	}
	c.settleTimer = time.AfterFunc(c.cfg.SettleDelay, c.RefreshCounts)
}

// SetActiveSurface records which surface is in the foreground. Optimistic
// message increments are suppressed while the messages surface is active.
func (c *Core) SetActiveSurface(surface string) {
	c.mu.Lock()
	c.activeSurface = surface
	c.mu.Unlock()
}

// SetVisible reports tab/app visibility. Regaining visibility triggers an
// authoritative refresh.
func (c *Core) SetVisible(visible bool) {
	c.mu.Lock()
	was := c.visible
	c.visible = visible
	c.mu.Unlock()
	if visible && !was {
		c.RefreshCounts()
	}
}

// RefreshConversations fetches the conversation list, collapses duplicates
// and publishes the canonical list.
func (c *Core) RefreshConversations(ctx context.Context) ([]models.Conversation, error) {
	raw, err := c.api.FetchConversations(ctx)
	if err != nil {
		c.log.Warn("conversation refresh failed; keeping last list", zap.Error(err))
		return nil, err
	}
	merged := MergeConversations(raw)
	c.mu.Lock()
	c.conversations = merged
	snapshot, subs := c.conversationSnapshotLocked()
	c.mu.Unlock()
	notifyConversations(subs, snapshot)
	return snapshot, nil
}

// SelectConversation makes a conversation active: loads its first page, marks
// it read, zeroes its local unread count and arms the post-navigation refresh.
func (c *Core) SelectConversation(ctx context.Context, conversationID string) error {
	if _, err := c.stream.Load(ctx, conversationID, ""); err != nil {
		return err
	}
	go c.markReadWithRetry(conversationID)

	c.mu.Lock()
	for i := range c.conversations {
		if c.conversations[i].ID == conversationID {
			c.conversations[i].UnreadCount = 0
		}
	}
	snapshot, subs := c.conversationSnapshotLocked()
	if c.navTimer != nil {
		c.navTimer.Stop()
	}
	c.navTimer = time.AfterFunc(c.cfg.NavSettleDelay, c.RefreshCounts)
	c.mu.Unlock()
	notifyConversations(subs, snapshot)
	return nil
}

// LoadOlderMessages pages backwards from the oldest cached message.
func (c *Core) LoadOlderMessages(ctx context.Context) ([]models.Message, error) {
	id := c.stream.ConversationID()
	if id == "" {
		return nil, nil
	}
	if c.stream.Exhausted() {
		return nil, nil
	}
	return c.stream.Load(ctx, id, c.stream.OldestID())
}

// SendMessage posts through the collaborator API and applies the result
// optimistically to the active stream and the conversation preview.
func (c *Core) SendMessage(ctx context.Context, conversationID, text string) (*models.Message, error) {
	msg, err := c.api.SendMessage(ctx, conversationID, text)
	if err != nil {
		return nil, err
	}
	c.stream.Append(*msg)
	c.bumpConversation(*msg, false)
	return msg, nil
}

// MarkAllRead resets a category to zero. For messages it also issues a
// mark-read call for every conversation currently showing unread messages;
// individual failures are retried once and never block the local reset.
func (c *Core) MarkAllRead(ctx context.Context, category string) {
	c.notifications.MarkCategoryRead(category)
	switch category {
	case domain.CategoryTradeOffer:
		c.recon.SetTradeOfferCount(0)
	case domain.CategoryMessage:
		c.recon.Reset(domain.CategoryMessage)
		c.mu.Lock()
		var unread []string
		for i := range c.conversations {
			if c.conversations[i].UnreadCount > 0 {
				unread = append(unread, c.conversations[i].ID)
				c.conversations[i].UnreadCount = 0
			}
		}
		snapshot, subs := c.conversationSnapshotLocked()
		c.mu.Unlock()
		notifyConversations(subs, snapshot)
		for _, id := range unread {
			go c.markReadWithRetry(id)
		}
	}
}

// SubscribeToCounters registers a counter callback; the returned func releases it.
func (c *Core) SubscribeToCounters(fn func(models.UnreadCounters)) func() {
	return c.recon.Subscribe(fn)
}

// SubscribeToConversationList registers a canonical-list callback.
func (c *Core) SubscribeToConversationList(fn func([]models.Conversation)) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.convSubs[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.convSubs, id)
		c.mu.Unlock()
	}
}

func (c *Core) Counters() models.UnreadCounters { return c.recon.Counters() }

func (c *Core) CountUnread(category string) int { return c.notifications.CountUnread(category) }

func (c *Core) GetActiveConversationMessages() []models.Message { return c.stream.Messages() }

// Stream exposes the active message cache (pagination state, date grouping).
func (c *Core) Stream() *MessageStream { return c.stream }

// markReadWithRetry is best-effort: one retry, then a warning. The local
// optimistic read state is never rolled back on failure.
func (c *Core) markReadWithRetry(conversationID string) {
	attempts := 1 + c.cfg.MarkReadRetries
	for i := 0; i < attempts; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := c.api.MarkConversationRead(ctx, conversationID)
		cancel()
		if err == nil {
			return
		}
		c.log.Warn("mark read failed",
			zap.String("conversation_id", conversationID),
			zap.Int("attempt", i+1), zap.Error(err))
	}
}

// bumpConversation updates the local list preview for a new message.
func (c *Core) bumpConversation(msg models.Message, countUnread bool) {
	c.mu.Lock()
	found := false
	for i := range c.conversations {
		if c.conversations[i].ID == msg.ConversationID {
			m := msg
			c.conversations[i].LastMessage = &m
			c.conversations[i].UpdatedAt = msg.CreatedAt
			if countUnread {
				c.conversations[i].UnreadCount++
			}
			found = true
			break
		}
	}
	var snapshot []models.Conversation
	var subs []func([]models.Conversation)
	if found {
		snapshot, subs = c.conversationSnapshotLocked()
	}
	c.mu.Unlock()
	if found {
		notifyConversations(subs, snapshot)
	}
}

func (c *Core) conversationSnapshotLocked() ([]models.Conversation, []func([]models.Conversation)) {
	snapshot := make([]models.Conversation, len(c.conversations))
	copy(snapshot, c.conversations)
	subs := make([]func([]models.Conversation), 0, len(c.convSubs))
	for _, fn := range c.convSubs {
		subs = append(subs, fn)
	}
	return snapshot, subs
}

func notifyConversations(subs []func([]models.Conversation), snapshot []models.Conversation) {
	for _, fn := range subs {
		fn(snapshot)
	}
}
