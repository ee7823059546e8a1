package repository

import (
	"context"
	"errors"
	"time"

	"dating_platform/internal/db"
	"dating_platform/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// ErrGiftRecipientMissing is returned when a gift names a recipient that does
// not exist.
var ErrGiftRecipientMissing = errors.New("gift recipient does not exist")

type GiftRepository struct{}

func NewGiftRepository() *GiftRepository {
	return &GiftRepository{}
}

const giftItemColumns = `id, name, description, price, image_url, category, required_tier_level, is_available, created_at`

func (r *GiftRepository) GetItem(ctx context.Context, q db.Querier, id int64) (*domain.GiftItem, error) {
	row := q.QueryRow(ctx, `SELECT `+giftItemColumns+` FROM gift_items WHERE id = $1`, id)
	return scanGiftItem(row)
}

// ListItems returns the catalog ordered by price. Unavailable items are only
// included when includeUnavailable is set.
func (r *GiftRepository) ListItems(ctx context.Context, q db.Querier, includeUnavailable bool) ([]domain.GiftItem, error) {
	rows, err := q.Query(ctx, `
		SELECT `+giftItemColumns+`
		FROM gift_items
		WHERE is_available OR $1
		ORDER BY price ASC, id ASC
	`, includeUnavailable)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []domain.GiftItem{}
	for rows.Next() {
		it, err := scanGiftItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

func (r *GiftRepository) CreateItem(ctx context.Context, q db.Querier, it *domain.GiftItem) error {
	return q.QueryRow(ctx, `
		INSERT INTO gift_items (name, description, price, image_url, category, required_tier_level, is_available)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`, it.Name, it.Description, it.Price, it.ImageURL, it.Category, tierParam(it.RequiredTier), it.IsAvailable,
	).Scan(&it.ID, &it.CreatedAt)
}

// UpdateItem overwrites the mutable fields. It returns false if no row matched.
func (r *GiftRepository) UpdateItem(ctx context.Context, q db.Querier, it *domain.GiftItem) (bool, error) {
	tag, err := q.Exec(ctx, `
		UPDATE gift_items
		SET name = $2, description = $3, price = $4, image_url = $5, category = $6,
		    required_tier_level = $7, is_available = $8
		WHERE id = $1
	`, it.ID, it.Name, it.Description, it.Price, it.ImageURL, it.Category, tierParam(it.RequiredTier), it.IsAvailable)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

const userGiftColumns = `g.id, g.sender_id, g.recipient_id, g.gift_item_id, g.message, g.is_anonymous, g.is_read,
	g.original_purchase_price, g.is_redeemed, g.redeemed_value, g.redeemed_at, g.created_at`

// CreateUserGift inserts a delivered gift.
func (r *GiftRepository) CreateUserGift(ctx context.Context, q db.Querier, g *domain.UserGift) error {
	err := q.QueryRow(ctx, `
		INSERT INTO user_gifts (sender_id, recipient_id, gift_item_id, message, is_anonymous, original_purchase_price)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, g.SenderID, g.RecipientID, g.GiftItemID, g.Message, g.IsAnonymous, g.OriginalPurchasePrice,
	).Scan(&g.ID, &g.CreatedAt)
	if db.IsForeignKeyViolation(err, "user_gifts_recipient_id_fkey") {
		return ErrGiftRecipientMissing
	}
	return err
}

// GetUserGiftForUpdate locks a gift owned by recipientID.
func (r *GiftRepository) GetUserGiftForUpdate(ctx context.Context, q db.Querier, id, recipientID int64) (*domain.UserGift, error) {
	row := q.QueryRow(ctx, `
		SELECT `+userGiftColumns+`
		FROM user_gifts g
		WHERE g.id = $1 AND g.recipient_id = $2
		FOR UPDATE
	`, id, recipientID)
	g, err := scanUserGift(row, false)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return g, nil
}

func (r *GiftRepository) MarkRedeemed(ctx context.Context, q db.Querier, id int64, value decimal.Decimal, at time.Time) error {
	_, err := q.Exec(ctx, `
		UPDATE user_gifts SET is_redeemed = TRUE, redeemed_value = $2, redeemed_at = $3
		WHERE id = $1 AND NOT is_redeemed
	`, id, value, at)
	return err
}

func (r *GiftRepository) ListReceived(ctx context.Context, q db.Querier, recipientID int64, limit, offset int) ([]domain.UserGift, error) {
	return r.list(ctx, q, `g.recipient_id = $1`, recipientID, limit, offset)
}

func (r *GiftRepository) ListSent(ctx context.Context, q db.Querier, senderID int64, limit, offset int) ([]domain.UserGift, error) {
	return r.list(ctx, q, `g.sender_id = $1`, senderID, limit, offset)
}

func (r *GiftRepository) list(ctx context.Context, q db.Querier, where string, userID int64, limit, offset int) ([]domain.UserGift, error) {
	rows, err := q.Query(ctx, `
		SELECT `+userGiftColumns+`, i.name, i.image_url
		FROM user_gifts g
		JOIN gift_items i ON i.id = g.gift_item_id
		WHERE `+where+`
		ORDER BY g.created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	gifts := []domain.UserGift{}
	for rows.Next() {
		g, err := scanUserGift(rows, true)
		if err != nil {
			return nil, err
		}
		gifts = append(gifts, *g)
	}
	return gifts, rows.Err()
}

// MarkRead flags a received gift as read. It returns false if the gift does
// not belong to recipientID.
func (r *GiftRepository) MarkRead(ctx context.Context, q db.Querier, id, recipientID int64) (bool, error) {
	tag, err := q.Exec(ctx, `UPDATE user_gifts SET is_read = TRUE WHERE id = $1 AND recipient_id = $2`, id, recipientID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *GiftRepository) CountUnread(ctx context.Context, q db.Querier, recipientID int64) (int, error) {
	var n int
	err := q.QueryRow(ctx, `SELECT COUNT(*) FROM user_gifts WHERE recipient_id = $1 AND NOT is_read`, recipientID).Scan(&n)
	return n, err
}

func scanGiftItem(row pgx.Row) (*domain.GiftItem, error) {
	var it domain.GiftItem
	var tier *string
	if err := row.Scan(&it.ID, &it.Name, &it.Description, &it.Price, &it.ImageURL, &it.Category, &tier, &it.IsAvailable, &it.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if tier != nil {
		t, err := domain.ParseTier(*tier)
		if err != nil {
			return nil, err
		}
		it.RequiredTier = &t
	}
	return &it, nil
}

func scanUserGift(row pgx.Row, joined bool) (*domain.UserGift, error) {
	var g domain.UserGift
	dest := []any{
		&g.ID, &g.SenderID, &g.RecipientID, &g.GiftItemID, &g.Message, &g.IsAnonymous, &g.IsRead,
		&g.OriginalPurchasePrice, &g.IsRedeemed, &g.RedeemedValue, &g.RedeemedAt, &g.CreatedAt,
	}
	if joined {
		dest = append(dest, &g.GiftName, &g.GiftImageURL)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &g, nil
}

// tierParam maps an optional tier to its stored name.
func tierParam(t *domain.Tier) *string {
	if t == nil || !t.Valid() {
		return nil
	}
	s := t.String()
	return &s
}
