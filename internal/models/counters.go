package models

// UnreadCounters is a snapshot of the reconciled unread state. Sequence is the
// tag of the last authoritative refresh that was applied.
type UnreadCounters struct {
	MessageCount    int    `json:"message_count"`
	TradeOfferCount int    `json:"trade_offer_count"`
	Sequence        uint64 `json:"sequence"`
}
