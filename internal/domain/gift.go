package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type GiftItem struct {
	ID          int64           `db:"id" json:"id"`
	Name        string          `db:"name" json:"name"`
	Description string          `db:"description" json:"description,omitempty"`
	Price       decimal.Decimal `db:"price" json:"price"`
	ImageURL    string          `db:"image_url" json:"image_url,omitempty"`
	Category    string          `db:"category" json:"category,omitempty"`
	// nil means any sender may buy it
	RequiredTier *Tier     `db:"required_tier_level" json:"required_tier_level,omitempty"`
	IsAvailable  bool      `db:"is_available" json:"is_available"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Requirement is the tier a sender needs, TierNone when ungated.
func (g *GiftItem) Requirement() Tier {
	if g.RequiredTier == nil {
		return TierNone
	}
	return *g.RequiredTier
}

type UserGift struct {
	ID          int64  `db:"id" json:"id"`
	SenderID    int64  `db:"sender_id" json:"sender_id"`
	RecipientID int64  `db:"recipient_id" json:"recipient_id"`
	GiftItemID  int64  `db:"gift_item_id" json:"gift_item_id"`
	Message     string `db:"message" json:"message,omitempty"`
	IsAnonymous bool   `db:"is_anonymous" json:"is_anonymous"`
	IsRead      bool   `db:"is_read" json:"is_read"`
	// price snapshot taken at send time, required for redemption
	OriginalPurchasePrice decimal.NullDecimal `db:"original_purchase_price" json:"original_purchase_price"`
	IsRedeemed            bool                `db:"is_redeemed" json:"is_redeemed"`
	RedeemedValue         decimal.NullDecimal `db:"redeemed_value" json:"redeemed_value"`
	RedeemedAt            *time.Time          `db:"redeemed_at" json:"redeemed_at,omitempty"`
	CreatedAt             time.Time           `db:"created_at" json:"created_at"`

	// joined for listings
	GiftName     string `json:"gift_name,omitempty"`
	GiftImageURL string `json:"gift_image_url,omitempty"`
}

// Anonymized hides the sender from the recipient's view.
func (g UserGift) Anonymized() UserGift {
	if g.IsAnonymous {
		g.SenderID = 0
	}
	return g
}
