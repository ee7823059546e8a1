package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"dating_platform/internal/db"
	"dating_platform/internal/domain"
	"dating_platform/internal/repository"

	"github.com/shopspring/decimal"
)

var (
	ErrGiftItemNotFound     = domain.NewNotFoundError("gift_item_not_found", "gift item not found or unavailable")
	ErrGiftNotFound         = domain.NewNotFoundError("gift_not_found", "gift not found")
	ErrRecipientNotFound    = domain.NewNotFoundError("recipient_not_found", "recipient not found")
	ErrGiftFieldsRequired   = domain.NewValidationError("gift_fields_required", "recipient and gift item are required")
	ErrCannotGiftSelf       = domain.NewValidationError("cannot_gift_self", "you cannot send a gift to yourself")
	ErrGiftMessageTooLong   = domain.NewValidationError("gift_message_too_long", "gift message is too long")
	ErrInvalidGiftItem      = domain.NewValidationError("invalid_gift_item", "invalid gift item")
	ErrGiftAlreadyRedeemed  = domain.NewBusinessError("gift_already_redeemed", "gift has already been redeemed")
	ErrGiftPriceNotRecorded = domain.NewBusinessError("gift_price_not_recorded", "gift has no recorded purchase price and cannot be redeemed")
)

const maxGiftMessageLength = 500

type GiftStore interface {
	GetItem(ctx context.Context, q db.Querier, id int64) (*domain.GiftItem, error)
	ListItems(ctx context.Context, q db.Querier, includeUnavailable bool) ([]domain.GiftItem, error)
	CreateItem(ctx context.Context, q db.Querier, it *domain.GiftItem) error
	UpdateItem(ctx context.Context, q db.Querier, it *domain.GiftItem) (bool, error)

	CreateUserGift(ctx context.Context, q db.Querier, g *domain.UserGift) error
	GetUserGiftForUpdate(ctx context.Context, q db.Querier, id, recipientID int64) (*domain.UserGift, error)
	MarkRedeemed(ctx context.Context, q db.Querier, id int64, value decimal.Decimal, at time.Time) error
	ListReceived(ctx context.Context, q db.Querier, recipientID int64, limit, offset int) ([]domain.UserGift, error)
	ListSent(ctx context.Context, q db.Querier, senderID int64, limit, offset int) ([]domain.UserGift, error)
	MarkRead(ctx context.Context, q db.Querier, id, recipientID int64) (bool, error)
	CountUnread(ctx context.Context, q db.Querier, recipientID int64) (int, error)
}

// TierResolver yields the tier a user is gated by.
type TierResolver interface {
	ResolveTier(ctx context.Context, q db.Querier, userID int64) (domain.Tier, error)
}

type GiftService struct {
	conn     db.Conn
	gifts    GiftStore
	users    UserStore
	tiers    TierResolver
	balance  *BalanceService
	txs      TransactionStore
	audit    *AuditService
	notifier Notifier
	currency string
	now      clock
}

func NewGiftService(conn db.Conn, gifts GiftStore, users UserStore, tiers TierResolver, balance *BalanceService,
	txs TransactionStore, audit *AuditService, notifier Notifier, currency string) *GiftService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &GiftService{
		conn:     conn,
		gifts:    gifts,
		users:    users,
		tiers:    tiers,
		balance:  balance,
		txs:      txs,
		audit:    audit,
		notifier: notifier,
		currency: currency,
		now:      systemClock,
	}
}

// GiftItemInput is the admin-editable part of a catalog item.
type GiftItemInput struct {
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	Price        decimal.Decimal `json:"price"`
	ImageURL     string          `json:"image_url"`
	Category     string          `json:"category"`
	RequiredTier string          `json:"required_tier_level"`
	IsAvailable  *bool           `json:"is_available"`
}

func itemFromInput(in GiftItemInput) (*domain.GiftItem, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, ErrInvalidGiftItem.WithMessage("gift item name is required")
	}
	price := domain.RoundMoney(in.Price)
	if price.IsNegative() {
		return nil, ErrInvalidGiftItem.WithMessage("price cannot be negative")
	}
	it := &domain.GiftItem{
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Price:       price,
		ImageURL:    strings.TrimSpace(in.ImageURL),
		Category:    strings.TrimSpace(in.Category),
		IsAvailable: true,
	}
	if strings.TrimSpace(in.RequiredTier) != "" {
		tier, err := domain.ParseTier(in.RequiredTier)
		if err != nil {
			return nil, ErrInvalidGiftItem.WithMessage("required_tier_level must be Basic, Premium or Elite")
		}
		it.RequiredTier = &tier
	}
	if in.IsAvailable != nil {
		it.IsAvailable = *in.IsAvailable
	}
	return it, nil
}

func (s *GiftService) ListItems(ctx context.Context) ([]domain.GiftItem, error) {
	return s.gifts.ListItems(ctx, s.conn, false)
}

func (s *GiftService) ListAllItems(ctx context.Context) ([]domain.GiftItem, error) {
	return s.gifts.ListItems(ctx, s.conn, true)
}

// GetItem returns an item on sale. Unavailable items look missing.
func (s *GiftService) GetItem(ctx context.Context, id int64) (*domain.GiftItem, error) {
	return s.availableItem(ctx, s.conn, id)
}

func (s *GiftService) availableItem(ctx context.Context, q db.Querier, id int64) (*domain.GiftItem, error) {
	it, err := s.gifts.GetItem(ctx, q, id)
	if err != nil {
		return nil, err
	}
	if it == nil || !it.IsAvailable {
		return nil, ErrGiftItemNotFound
	}
	return it, nil
}

func (s *GiftService) CreateItem(ctx context.Context, adminID int64, in GiftItemInput) (*domain.GiftItem, error) {
	it, err := itemFromInput(in)
	if err != nil {
		return nil, err
	}
	if err := s.gifts.CreateItem(ctx, s.conn, it); err != nil {
		return nil, fmt.Errorf("create gift item: %w", err)
	}
	s.audit.LogAdminAction(ctx, adminID, "gift_item_create", adminID, map[string]interface{}{"gift_item_id": it.ID})
	return it, nil
}

func (s *GiftService) UpdateItem(ctx context.Context, adminID, id int64, in GiftItemInput) (*domain.GiftItem, error) {
	it, err := itemFromInput(in)
	if err != nil {
		return nil, err
	}
	it.ID = id
	ok, err := s.gifts.UpdateItem(ctx, s.conn, it)
	if err != nil {
		return nil, fmt.Errorf("update gift item: %w", err)
	}
	if !ok {
		return nil, ErrGiftItemNotFound
	}
	s.audit.LogAdminAction(ctx, adminID, "gift_item_update", adminID, map[string]interface{}{"gift_item_id": id})
	return s.gifts.GetItem(ctx, s.conn, id)
}

// PrepareGiftPurchase runs the checks every gift purchase shares: the
// sender's tier against the item requirement and the recipient's existence.
// It returns the item being bought.
func (s *GiftService) PrepareGiftPurchase(ctx context.Context, q db.Querier, senderID, recipientID, itemID int64) (*domain.GiftItem, error) {
	if recipientID <= 0 || itemID <= 0 {
		return nil, ErrGiftFieldsRequired
	}
	if senderID == recipientID {
		return nil, ErrCannotGiftSelf
	}

	tier, err := s.tiers.ResolveTier(ctx, q, senderID)
	if err != nil {
		return nil, fmt.Errorf("resolve sender tier: %w", err)
	}

	item, err := s.availableItem(ctx, q, itemID)
	if err != nil {
		return nil, err
	}

	if !tier.Satisfies(item.Requirement()) {
		return nil, &domain.InsufficientTierError{Required: item.Requirement(), Actual: tier}
	}

	recipient, err := s.users.LockForShare(ctx, q, recipientID)
	if err != nil {
		return nil, err
	}
	if recipient == nil {
		return nil, ErrRecipientNotFound
	}
	return item, nil
}

type SendGiftInput struct {
	RecipientID    int64  `json:"recipient_id"`
	GiftItemID     int64  `json:"gift_item_id"`
	Message        string `json:"message"`
	IsAnonymous    bool   `json:"is_anonymous"`
	UseSiteBalance bool   `json:"use_site_balance"`
}

type SendGiftResult struct {
	Gift        *domain.UserGift    `json:"gift"`
	Transaction *domain.Transaction `json:"transaction"`
	NewBalance  *decimal.Decimal    `json:"new_balance,omitempty"`
}

// Send delivers a gift and records its payment in one unit of work. Without
// UseSiteBalance the payment is taken as authorized upstream.
func (s *GiftService) Send(ctx context.Context, senderID int64, in SendGiftInput) (*SendGiftResult, error) {
	msg := strings.TrimSpace(in.Message)
	if utf8.RuneCountInString(msg) > maxGiftMessageLength {
		return nil, ErrGiftMessageTooLong.WithMessage("gift message must be at most %d characters", maxGiftMessageLength)
	}

	res := &SendGiftResult{}
	var item *domain.GiftItem
	err := s.conn.WithTx(ctx, func(q db.Querier) error {
		var err error
		item, err = s.PrepareGiftPurchase(ctx, q, senderID, in.RecipientID, in.GiftItemID)
		if err != nil {
			return err
		}

		if res.Gift, err = s.deliver(ctx, q, senderID, in.RecipientID, item, item.Price, msg, in.IsAnonymous); err != nil {
			return err
		}

		itemID := item.ID
		tx := &domain.Transaction{
			UserID:        senderID,
			Type:          domain.TransactionTypeGift,
			Amount:        item.Price,
			Currency:      s.currency,
			ItemCategory:  domain.ItemCategoryGift,
			PayableItemID: &itemID,
			Status:        domain.TransactionStatusCompleted,
			Meta: domain.TransactionMeta{
				GiftRecipientID: in.RecipientID,
				GiftMessage:     msg,
				GiftAnonymous:   in.IsAnonymous,
			},
		}
		if in.UseSiteBalance {
			tx.Type = domain.TransactionTypeGiftSiteBalance
			tx.PaymentMethodDetails = siteBalanceLabel
			tx.AdminNotes = "Paid with site balance"
			if item.Price.IsPositive() {
				nb, err := s.balance.Debit(ctx, q, senderID, item.Price)
				if err != nil {
					return err
				}
				res.NewBalance = &nb
			}
		}
		if err := s.txs.Create(ctx, q, tx); err != nil {
			return fmt.Errorf("record gift payment: %w", err)
		}
		res.Transaction = tx
		return nil
	})
	if err != nil {
		return nil, err
	}

	source := "external"
	if in.UseSiteBalance {
		source = "site_balance"
	}
	GiftsSent.WithLabelValues(source).Inc()
	s.audit.Log(ctx, senderID, domain.AuditActionGiftSend, domain.AuditCategoryGift, map[string]interface{}{
		"gift_id":        res.Gift.ID,
		"recipient_id":   in.RecipientID,
		"transaction_id": res.Transaction.ID,
		"amount":         item.Price.StringFixed(2),
		"source":         source,
	})
	s.notifyReceived(res.Gift)
	return res, nil
}

// DeliverPurchased inserts the gift paid by a verified transaction. The
// transaction amount is the price snapshot. The recipient row is share-locked
// so the insert cannot hit a foreign key violation, which would abort the
// surrounding transaction before a reconciliation item could be written.
func (s *GiftService) DeliverPurchased(ctx context.Context, q db.Querier, tx *domain.Transaction) (*domain.UserGift, error) {
	if tx.PayableItemID == nil {
		return nil, ErrGiftItemNotFound
	}
	item, err := s.gifts.GetItem(ctx, q, *tx.PayableItemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, ErrGiftItemNotFound
	}
	recipient, err := s.users.LockForShare(ctx, q, tx.Meta.GiftRecipientID)
	if err != nil {
		return nil, err
	}
	if recipient == nil {
		return nil, ErrRecipientNotFound
	}
	return s.deliver(ctx, q, tx.UserID, recipient.ID, item, tx.Amount, tx.Meta.GiftMessage, tx.Meta.GiftAnonymous)
}

func (s *GiftService) deliver(ctx context.Context, q db.Querier, senderID, recipientID int64, item *domain.GiftItem,
	price decimal.Decimal, msg string, anonymous bool) (*domain.UserGift, error) {
	g := &domain.UserGift{
		SenderID:              senderID,
		RecipientID:           recipientID,
		GiftItemID:            item.ID,
		Message:               msg,
		IsAnonymous:           anonymous,
		OriginalPurchasePrice: decimal.NewNullDecimal(price),
		GiftName:              item.Name,
		GiftImageURL:          item.ImageURL,
	}
	if err := s.gifts.CreateUserGift(ctx, q, g); err != nil {
		if errors.Is(err, repository.ErrGiftRecipientMissing) {
			return nil, ErrRecipientNotFound
		}
		return nil, fmt.Errorf("create user gift: %w", err)
	}
	return g, nil
}

func (s *GiftService) notifyReceived(g *domain.UserGift) {
	view := g.Anonymized()
	s.notifier.Notify(g.RecipientID, MsgGiftReceived, map[string]interface{}{
		"gift_id":      view.ID,
		"gift_name":    view.GiftName,
		"sender_id":    view.SenderID,
		"is_anonymous": view.IsAnonymous,
		"message":      view.Message,
	})
}

type RedeemResult struct {
	Gift          *domain.UserGift `json:"gift"`
	RedeemedValue decimal.Decimal  `json:"redeemed_value"`
	NewBalance    decimal.Decimal  `json:"new_balance"`
}

// Redeem converts a received gift into balance at the fixed redemption rate.
// The gift row lock makes concurrent attempts serialize so only one credits.
func (s *GiftService) Redeem(ctx context.Context, recipientID, giftID int64) (*RedeemResult, error) {
	res := &RedeemResult{}
	err := s.conn.WithTx(ctx, func(q db.Querier) error {
		g, err := s.gifts.GetUserGiftForUpdate(ctx, q, giftID, recipientID)
		if err != nil {
			return err
		}
		if g == nil {
			return ErrGiftNotFound
		}
		if g.IsRedeemed {
			return ErrGiftAlreadyRedeemed
		}
		if !g.OriginalPurchasePrice.Valid {
			return ErrGiftPriceNotRecorded
		}

		value := domain.RedemptionValue(g.OriginalPurchasePrice.Decimal)
		now := s.now()
		if err := s.gifts.MarkRedeemed(ctx, q, g.ID, value, now); err != nil {
			return fmt.Errorf("mark gift redeemed: %w", err)
		}

		if value.IsPositive() {
			if res.NewBalance, err = s.balance.Credit(ctx, q, recipientID, value); err != nil {
				return err
			}
		} else {
			acc, err := s.balance.account(ctx, q, recipientID)
			if err != nil {
				return err
			}
			res.NewBalance = acc.Balance
		}

		g.IsRedeemed = true
		g.RedeemedValue = decimal.NewNullDecimal(value)
		g.RedeemedAt = &now
		res.Gift = g
		res.RedeemedValue = value
		return nil
	})
	if err != nil {
		return nil, err
	}

	GiftsRedeemed.Inc()
	s.audit.Log(ctx, recipientID, domain.AuditActionGiftRedeem, domain.AuditCategoryGift, map[string]interface{}{
		"gift_id":        giftID,
		"redeemed_value": res.RedeemedValue.StringFixed(2),
	})
	return res, nil
}

// ListReceived returns the inbox with anonymous senders masked.
func (s *GiftService) ListReceived(ctx context.Context, userID int64, limit, offset int) ([]domain.UserGift, error) {
	limit, offset = normalizePage(limit, offset, 50)
	gifts, err := s.gifts.ListReceived(ctx, s.conn, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	for i := range gifts {
		gifts[i] = gifts[i].Anonymized()
	}
	return gifts, nil
}

func (s *GiftService) ListSent(ctx context.Context, userID int64, limit, offset int) ([]domain.UserGift, error) {
	limit, offset = normalizePage(limit, offset, 50)
	return s.gifts.ListSent(ctx, s.conn, userID, limit, offset)
}

func (s *GiftService) MarkRead(ctx context.Context, userID, giftID int64) error {
	ok, err := s.gifts.MarkRead(ctx, s.conn, giftID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrGiftNotFound
	}
	return nil
}

func (s *GiftService) UnreadCount(ctx context.Context, userID int64) (int, error) {
	return s.gifts.CountUnread(ctx, s.conn, userID)
}
