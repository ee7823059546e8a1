package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"dating_platform/internal/domain"
	"dating_platform/internal/service"

	"github.com/gin-gonic/gin"
)

type statusRequest struct {
	Status     string `json:"status"`
	AdminNotes string `json:"admin_notes"`
}

func (h *Handler) PendingTransactions(c *gin.Context) {
	page, err := h.Transactions.ListPendingVerification(c.Request.Context(), queryInt(c, "limit", 20), queryInt(c, "offset", 0))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) VerifyTransaction(c *gin.Context) {
	adminID, ok := requireUser(c)
	if !ok {
		return
	}
	txID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c, err)
		return
	}

	status := domain.TransactionStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	res, err := h.Transactions.Verify(c.Request.Context(), adminID, txID, status, req.AdminNotes)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ListWithdrawals(c *gin.Context) {
	status := domain.WithdrawalStatus(strings.ToLower(c.Query("status")))
	list, err := h.Withdrawals.List(c.Request.Context(), status, queryInt(c, "limit", 50), queryInt(c, "offset", 0))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"withdrawals": list})
}

func (h *Handler) UpdateWithdrawalStatus(c *gin.Context) {
	adminID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c, err)
		return
	}

	status := domain.WithdrawalStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	wr, err := h.Withdrawals.UpdateStatus(c.Request.Context(), id, status, adminID, req.AdminNotes)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"request": wr})
}

func (h *Handler) AllPackages(c *gin.Context) {
	pkgs, err := h.Subscriptions.ListAllPackages(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"packages": pkgs})
}

func (h *Handler) CreatePackage(c *gin.Context) {
	adminID, ok := requireUser(c)
	if !ok {
		return
	}
	var in service.PackageInput
	if err := c.ShouldBindJSON(&in); err != nil {
		invalidRequest(c, err)
		return
	}
	pkg, err := h.Subscriptions.CreatePackage(c.Request.Context(), adminID, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"package": pkg})
}

func (h *Handler) UpdatePackage(c *gin.Context) {
	adminID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var in service.PackageInput
	if err := c.ShouldBindJSON(&in); err != nil {
		invalidRequest(c, err)
		return
	}
	pkg, err := h.Subscriptions.UpdatePackage(c.Request.Context(), adminID, id, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"package": pkg})
}

func (h *Handler) AllGiftItems(c *gin.Context) {
	items, err := h.Gifts.ListAllItems(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) CreateGiftItem(c *gin.Context) {
	adminID, ok := requireUser(c)
	if !ok {
		return
	}
	var in service.GiftItemInput
	if err := c.ShouldBindJSON(&in); err != nil {
		invalidRequest(c, err)
		return
	}
	it, err := h.Gifts.CreateItem(c.Request.Context(), adminID, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"item": it})
}

func (h *Handler) UpdateGiftItem(c *gin.Context) {
	adminID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var in service.GiftItemInput
	if err := c.ShouldBindJSON(&in); err != nil {
		invalidRequest(c, err)
		return
	}
	it, err := h.Gifts.UpdateItem(c.Request.Context(), adminID, id, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": it})
}

func (h *Handler) ListReconciliation(c *gin.Context) {
	includeResolved := c.Query("include_resolved") == "true"
	items, err := h.Transactions.ListReconciliation(c.Request.Context(), includeResolved, queryInt(c, "limit", 50), queryInt(c, "offset", 0))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

type resolveRequest struct {
	Notes string `json:"notes"`
}

func (h *Handler) ResolveReconciliation(c *gin.Context) {
	adminID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	// notes are optional, so is the body
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		invalidRequest(c, err)
		return
	}
	item, err := h.Transactions.ResolveReconciliation(c.Request.Context(), adminID, id, req.Notes)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": item})
}

func (h *Handler) ListAuditLogs(c *gin.Context) {
	var userID int64
	if v := c.Query("user_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id", "code": "invalid_request"})
			return
		}
		userID = id
	}
	logs, err := h.Audit.ListLogs(c.Request.Context(), userID, c.Query("category"), queryInt(c, "limit", 50))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}
