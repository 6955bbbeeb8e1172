package domain

const (
	CategoryMessage    = "MESSAGE"
	CategoryTradeOffer = "TRADE_OFFER"
)

// Push channel event names.
const (
	EventAuthenticate       = "authenticate"
	EventAuthenticated      = "authenticated"
	EventNewMessage         = "new_message"
	EventNewTradeOffer      = "new_trade_offer"
	EventMessageCountUpdate = "message_count_updated"
	EventRefreshUnreadCount = "refresh_unread_count"
)

// Surfaces the user can have in the foreground. Optimistic message-count
// increments are suppressed while the messages surface is active.
const (
	SurfaceNone     = ""
	SurfaceMessages = "MESSAGES"
	SurfaceOffers   = "OFFERS"
)
