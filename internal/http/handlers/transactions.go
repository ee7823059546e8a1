package handlers

import (
	"net/http"

	"dating_platform/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) InitiateTransaction(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var in service.InitiateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		invalidRequest(c, err)
		return
	}

	res, err := h.Transactions.Initiate(c.Request.Context(), userID, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

type submitReferenceRequest struct {
	PaymentReference string `json:"payment_reference"`
}

func (h *Handler) SubmitReference(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	txID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req submitReferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c, err)
		return
	}

	tx, err := h.Transactions.SubmitReference(c.Request.Context(), userID, txID, req.PaymentReference)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": tx})
}

func (h *Handler) GetTransaction(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	txID, ok := pathID(c, "id")
	if !ok {
		return
	}

	tx, err := h.Transactions.Get(c.Request.Context(), userID, txID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": tx})
}

func (h *Handler) MyTransactions(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	page, err := h.Transactions.ListForUser(c.Request.Context(), userID, queryInt(c, "limit", 20), queryInt(c, "offset", 0))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}
