package handlers

import (
	"net/http"

	"dating_platform/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) ListGiftItems(c *gin.Context) {
	items, err := h.Gifts.ListItems(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) GetGiftItem(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	it, err := h.Gifts.GetItem(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": it})
}

func (h *Handler) SendGift(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var in service.SendGiftInput
	if err := c.ShouldBindJSON(&in); err != nil {
		invalidRequest(c, err)
		return
	}

	res, err := h.Gifts.Send(c.Request.Context(), userID, in)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := gin.H{"gift": res.Gift, "transaction": res.Transaction}
	if res.NewBalance != nil {
		resp["new_balance"] = money(*res.NewBalance)
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) ReceivedGifts(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	gifts, err := h.Gifts.ListReceived(c.Request.Context(), userID, queryInt(c, "limit", 20), queryInt(c, "offset", 0))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"gifts": gifts})
}

func (h *Handler) SentGifts(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	gifts, err := h.Gifts.ListSent(c.Request.Context(), userID, queryInt(c, "limit", 20), queryInt(c, "offset", 0))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"gifts": gifts})
}

func (h *Handler) UnreadGiftCount(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	n, err := h.Gifts.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": n})
}

func (h *Handler) MarkGiftRead(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.Gifts.MarkRead(c.Request.Context(), userID, id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) RedeemGift(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	res, err := h.Gifts.Redeem(c.Request.Context(), userID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"gift":           res.Gift,
		"redeemed_value": money(res.RedeemedValue),
		"new_balance":    money(res.NewBalance),
	})
}
