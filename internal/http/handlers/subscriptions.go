package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handler) ListPackages(c *gin.Context) {
	pkgs, err := h.Subscriptions.ListPackages(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"packages": pkgs})
}

func (h *Handler) GetPackage(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	pkg, err := h.Subscriptions.GetPackage(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"package": pkg})
}

// MySubscription returns the active subscription, or null when there is none.
func (h *Handler) MySubscription(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	sub, err := h.Subscriptions.GetActive(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscription": sub})
}

type purchaseRequest struct {
	PackageID int64 `json:"package_id"`
}

func (h *Handler) PurchaseWithBalance(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c, err)
		return
	}
	if req.PackageID <= 0 {
		invalidRequest(c, nil)
		return
	}

	res, err := h.Subscriptions.PurchaseWithBalance(c.Request.Context(), userID, req.PackageID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"subscription": res.Subscription,
		"transaction":  res.Transaction,
		"new_balance":  money(res.NewBalance),
	})
}

func (h *Handler) CancelSubscription(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	sub, err := h.Subscriptions.Cancel(c.Request.Context(), id, userID, isAdmin(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscription": sub})
}

func (h *Handler) FeatureAccess(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	name := c.Param("name")

	has, err := h.Subscriptions.HasFeature(c.Request.Context(), userID, name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"feature": name, "has_access": has})
}
