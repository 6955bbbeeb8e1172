package sync

import (
	gosync "sync"

	"tradewind/internal/domain"
	"tradewind/internal/models"

	"go.uber.org/zap"
)

// Reconciler merges the independent writers of unread state (optimistic local
// deltas, sequence-tagged authoritative refreshes and explicit resets) into one
// consistent counter snapshot. All mutation goes through the methods here;
// callers never touch counter state directly.
//
// Every authoritative refresh is tagged with the sequence handed out by
// NextSequence at dispatch time. A response is applied only if it carries the
// highest sequence dispatched so far, so a slow stale refresh can never
// overwrite a newer one.
type Reconciler struct {
	log *zap.Logger

	mu              gosync.Mutex
	messageCount    int
	tradeOfferCount int
	dispatched      uint64
	applied         uint64
	subs            map[int]func(models.UnreadCounters)
	nextSub         int
}

func NewReconciler(logger *zap.Logger) *Reconciler {
	return &Reconciler{
		log:  logger.Named("reconciler"),
		subs: make(map[int]func(models.UnreadCounters)),
	}
}

// NextSequence tags a new authoritative refresh dispatch.
func (r *Reconciler) NextSequence() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dispatched++
	return r.dispatched
}

// ApplyRefresh resolves an authoritative message-count response. Returns false
// when the response is stale (superseded by a later dispatch) and discarded.
func (r *Reconciler) ApplyRefresh(seq uint64, count int) bool {
	r.mu.Lock()
	if seq != r.dispatched || seq <= r.applied {
		r.mu.Unlock()
		r.log.Debug("discarding stale refresh", zap.Uint64("seq", seq))
		return false
	}
	r.applied = seq
	if count < 0 {
		count = 0
	}
	r.messageCount = count
	snapshot, subs := r.snapshotLocked()
	r.mu.Unlock()
	notify(subs, snapshot)
	return true
}

// ApplyOptimisticDelta bumps the message counter ahead of server confirmation.
// The counter never goes below zero.
func (r *Reconciler) ApplyOptimisticDelta(delta int) {
	r.mu.Lock()
	r.messageCount += delta
	if r.messageCount < 0 {
		r.messageCount = 0
	}
	snapshot, subs := r.snapshotLocked()
	r.mu.Unlock()
	notify(subs, snapshot)
}

// SetTradeOfferCount overwrites the derived trade-offer counter. The value is
// always recomputed from the notification log, never incremented here.
func (r *Reconciler) SetTradeOfferCount(n int) {
	r.mu.Lock()
	if n < 0 {
		n = 0
	}
	r.tradeOfferCount = n
	snapshot, subs := r.snapshotLocked()
	r.mu.Unlock()
	notify(subs, snapshot)
}

// Reset zeroes a category's counter after a successful mark-all-read.
func (r *Reconciler) Reset(category string) {
	r.mu.Lock()
	switch category {
	case domain.CategoryMessage:
		r.messageCount = 0
	case domain.CategoryTradeOffer:
		r.tradeOfferCount = 0
	}
	snapshot, subs := r.snapshotLocked()
	r.mu.Unlock()
	notify(subs, snapshot)
}

func (r *Reconciler) Counters() models.UnreadCounters {
	r.mu.Lock()
	defer r.mu.Unlock()
	return models.UnreadCounters{
		MessageCount:    r.messageCount,
		TradeOfferCount: r.tradeOfferCount,
		Sequence:        r.applied,
	}
}

// Subscribe registers a counter-snapshot callback and returns its release func.
func (r *Reconciler) Subscribe(fn func(models.UnreadCounters)) func() {
	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
	}
}

func (r *Reconciler) snapshotLocked() (models.UnreadCounters, []func(models.UnreadCounters)) {
	snapshot := models.UnreadCounters{
		MessageCount:    r.messageCount,
		TradeOfferCount: r.tradeOfferCount,
		Sequence:        r.applied,
	}
	subs := make([]func(models.UnreadCounters), 0, len(r.subs))
	for _, fn := range r.subs {
		subs = append(subs, fn)
	}
	return snapshot, subs
}

func notify(subs []func(models.UnreadCounters), snapshot models.UnreadCounters) {
	for _, fn := range subs {
		fn(snapshot)
	}
}
