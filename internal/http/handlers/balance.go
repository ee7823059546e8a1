package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

func (h *Handler) GetBalance(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	acct, err := h.Balance.GetBalance(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"balance":    money(acct.Balance),
		"updated_at": acct.UpdatedAt,
	})
}

type withdrawalRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	PaymentDetails string          `json:"payment_details"`
}

func (h *Handler) RequestWithdrawal(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req withdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c, err)
		return
	}

	wr, newBalance, err := h.Withdrawals.CreateRequest(c.Request.Context(), userID, req.Amount, req.PaymentDetails)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"request":     wr,
		"new_balance": money(newBalance),
	})
}

func (h *Handler) MyWithdrawals(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	list, err := h.Withdrawals.ListForUser(c.Request.Context(), userID, queryInt(c, "limit", 50))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"withdrawals": list})
}
