package server

import (
	"net/http"
	"strconv"
	"time"

	"tradewind/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Count response shapes the upstream has shipped at one time or another. The
// reference server can serve any of them so clients are exercised against all.
const (
	CountShapeNested = "nested" // {"data":{"count":n}}
	CountShapeFlat   = "flat"   // {"count":n}
	CountShapeBare   = "bare"   // n
)

type Handler struct {
	store      *Store
	hub        *Hub
	countShape string
}

func NewHandler(store *Store, hub *Hub) *Handler {
	return &Handler{store: store, hub: hub, countShape: CountShapeNested}
}

// SetCountShape switches the unread-count response shape.
func (h *Handler) SetCountShape(shape string) { h.countShape = shape }

func (h *Handler) Store() *Store { return h.store }

func (h *Handler) Hub() *Hub { return h.hub }

func (h *Handler) GetUnreadCount(c *gin.Context) {
	userID := c.GetString("user_id")
	n := h.store.UnreadCount(userID)
	switch h.countShape {
	case CountShapeFlat:
		c.JSON(http.StatusOK, gin.H{"count": n})
	case CountShapeBare:
		c.JSON(http.StatusOK, n)
	default:
		c.JSON(http.StatusOK, gin.H{"data": gin.H{"count": n}})
	}
}

func (h *Handler) ListConversations(c *gin.Context) {
	userID := c.GetString("user_id")
	c.JSON(http.StatusOK, gin.H{"conversations": h.store.Conversations(userID)})
}

func (h *Handler) GetMessages(c *gin.Context) {
	userID := c.GetString("user_id")
	conversationID := c.Param("conversation_id")
	if !h.store.IsParticipant(userID, conversationID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not part of this conversation"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	before := c.Query("before")
	c.JSON(http.StatusOK, gin.H{"messages": h.store.MessagesPage(conversationID, before, limit)})
}

func (h *Handler) MarkRead(c *gin.Context) {
	userID := c.GetString("user_id")
	conversationID := c.Param("conversation_id")
	if !h.store.IsParticipant(userID, conversationID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not part of this conversation"})
		return
	}
	h.store.MarkConversationRead(userID, conversationID)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) PostMessage(c *gin.Context) {
	userID := c.GetString("user_id")
	conversationID := c.Param("conversation_id")
	if !h.store.IsParticipant(userID, conversationID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not part of this conversation"})
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if c.ShouldBindJSON(&req) != nil || req.Text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text required"})
		return
	}
	msg := NewMessage(uuid.NewString(), conversationID, userID, req.Text)
	recipients := h.store.AddMessage(msg)
	for _, uid := range recipients {
		h.hub.EmitToUser(uid, domain.EventNewMessage, msg)
		h.hub.EmitToUser(uid, domain.EventMessageCountUpdate, gin.H{"count": h.store.UnreadCount(uid)})
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// PostTradeOffer is a dev/test stimulus: it pushes a new_trade_offer event at
// the target user without any offer bookkeeping behind it.
func (h *Handler) PostTradeOffer(c *gin.Context) {
	userID := c.GetString("user_id")
	var req struct {
		ToUserID string `json:"to_user_id"`
		ItemName string `json:"item_name"`
	}
	if c.ShouldBindJSON(&req) != nil || req.ToUserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to_user_id required"})
		return
	}
	offer := gin.H{
		"id":         uuid.NewString(),
		"from":       userID,
		"item_name":  req.ItemName,
		"created_at": time.Now(),
	}
	h.hub.EmitToUser(req.ToUserID, domain.EventNewTradeOffer, offer)
	c.JSON(http.StatusCreated, gin.H{"offer": offer})
}
