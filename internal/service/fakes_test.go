package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"dating_platform/internal/db"
	"dating_platform/internal/domain"
	"dating_platform/internal/repository"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// memState is the in-memory database behind the fake stores. WithTx
// snapshots it and restores the snapshot when the unit of work fails.
type memState struct {
	mu     sync.Mutex
	nextID int64

	users       map[int64]domain.User
	balances    map[int64]domain.BalanceAccount
	withdrawals map[int64]domain.WithdrawalRequest
	packages    map[int64]domain.SubscriptionPackage
	features    map[domain.Tier][]domain.SubscriptionFeature
	subs        map[int64]domain.UserSubscription
	subPayments map[int64]domain.SubscriptionTransaction
	giftItems   map[int64]domain.GiftItem
	gifts       map[int64]domain.UserGift
	txs         map[int64]domain.Transaction
	methods     map[[2]int64]domain.PaymentMethodDetail
	recon       map[int64]domain.ReconciliationItem
	audit       []domain.AuditLog

	// locks records row-lock acquisitions in order, e.g. "users:update:3".
	locks []string
}

func newMemState() *memState {
	return &memState{
		users:       map[int64]domain.User{},
		balances:    map[int64]domain.BalanceAccount{},
		withdrawals: map[int64]domain.WithdrawalRequest{},
		packages:    map[int64]domain.SubscriptionPackage{},
		features:    map[domain.Tier][]domain.SubscriptionFeature{},
		subs:        map[int64]domain.UserSubscription{},
		subPayments: map[int64]domain.SubscriptionTransaction{},
		giftItems:   map[int64]domain.GiftItem{},
		gifts:       map[int64]domain.UserGift{},
		txs:         map[int64]domain.Transaction{},
		methods:     map[[2]int64]domain.PaymentMethodDetail{},
		recon:       map[int64]domain.ReconciliationItem{},
	}
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *memState) snapshot() *memState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &memState{
		nextID:      s.nextID,
		users:       copyMap(s.users),
		balances:    copyMap(s.balances),
		withdrawals: copyMap(s.withdrawals),
		packages:    copyMap(s.packages),
		features:    copyMap(s.features),
		subs:        copyMap(s.subs),
		subPayments: copyMap(s.subPayments),
		giftItems:   copyMap(s.giftItems),
		gifts:       copyMap(s.gifts),
		txs:         copyMap(s.txs),
		methods:     copyMap(s.methods),
		recon:       copyMap(s.recon),
	}
}

// restore rolls business tables back. The audit trail is written outside
// units of work and is left alone.
func (s *memState) restore(snap *memState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID = snap.nextID
	s.users = snap.users
	s.balances = snap.balances
	s.withdrawals = snap.withdrawals
	s.packages = snap.packages
	s.features = snap.features
	s.subs = snap.subs
	s.subPayments = snap.subPayments
	s.giftItems = snap.giftItems
	s.gifts = snap.gifts
	s.txs = snap.txs
	s.methods = snap.methods
	s.recon = snap.recon
}

func (s *memState) recordLock(table, mode string, id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locks = append(s.locks, fmt.Sprintf("%s:%s:%d", table, mode, id))
}

func (s *memState) lockLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.locks...)
}

func (s *memState) id() int64 {
	s.nextID++
	return s.nextID
}

var errRawSQL = errors.New("fakeConn: raw SQL is not supported")

// fakeConn serializes units of work, which stands in for row locks.
type fakeConn struct {
	st        *memState
	txMu      sync.Mutex
	commits   int
	rollbacks int
}

func (c *fakeConn) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errRawSQL
}

func (c *fakeConn) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errRawSQL
}

func (c *fakeConn) QueryRow(context.Context, string, ...any) pgx.Row {
	return nil
}

func (c *fakeConn) WithTx(ctx context.Context, fn func(q db.Querier) error) error {
	c.txMu.Lock()
	defer c.txMu.Unlock()

	snap := c.st.snapshot()
	if err := fn(c); err != nil {
		c.st.restore(snap)
		c.rollbacks++
		return err
	}
	c.commits++
	return nil
}

// users

type memUsers struct{ *memState }

func (m memUsers) GetByID(_ context.Context, _ db.Querier, id int64) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (m memUsers) LockForUpdate(ctx context.Context, q db.Querier, id int64) (*domain.User, error) {
	m.recordLock("users", "update", id)
	return m.GetByID(ctx, q, id)
}

func (m memUsers) LockForShare(ctx context.Context, q db.Querier, id int64) (*domain.User, error) {
	m.recordLock("users", "share", id)
	return m.GetByID(ctx, q, id)
}

func (m memUsers) UpdateRole(_ context.Context, _ db.Querier, id int64, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.users[id]
	u.Role = role
	m.users[id] = u
	return nil
}

// balances

type memBalances struct{ *memState }

func (m memBalances) GetOrCreate(_ context.Context, _ db.Querier, userID int64) (*domain.BalanceAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[userID]; !ok {
		return nil, nil
	}
	acc, ok := m.balances[userID]
	if !ok {
		acc = domain.BalanceAccount{UserID: userID, Balance: decimal.Zero, UpdatedAt: time.Now()}
		m.balances[userID] = acc
	}
	return &acc, nil
}

func (m memBalances) LockForUpdate(ctx context.Context, q db.Querier, userID int64) (*domain.BalanceAccount, error) {
	return m.GetOrCreate(ctx, q, userID)
}

func (m memBalances) SetBalance(_ context.Context, _ db.Querier, userID int64, balance decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if balance.IsNegative() {
		return errors.New("user_balances_balance_check")
	}
	m.balances[userID] = domain.BalanceAccount{UserID: userID, Balance: balance, UpdatedAt: time.Now()}
	return nil
}

// withdrawals

type memWithdrawals struct{ *memState }

func (m memWithdrawals) Create(_ context.Context, _ db.Querier, w *domain.WithdrawalRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w.ID = m.id()
	w.RequestedAt = time.Now()
	m.withdrawals[w.ID] = *w
	return nil
}

func (m memWithdrawals) GetByIDForUpdate(_ context.Context, _ db.Querier, id int64) (*domain.WithdrawalRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.withdrawals[id]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

func (m memWithdrawals) UpdateStatus(_ context.Context, _ db.Querier, id int64, status domain.WithdrawalStatus, adminID int64, notes string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w := m.withdrawals[id]
	w.Status = status
	w.AdminNotes = notes
	w.ProcessedBy = &adminID
	w.ProcessedAt = &at
	m.withdrawals[id] = w
	return nil
}

func (m memWithdrawals) ListByUser(_ context.Context, _ db.Querier, userID int64, limit int) ([]domain.WithdrawalRequest, error) {
	return m.list(func(w domain.WithdrawalRequest) bool { return w.UserID == userID }, limit, 0), nil
}

func (m memWithdrawals) List(_ context.Context, _ db.Querier, status domain.WithdrawalStatus, limit, offset int) ([]domain.WithdrawalRequest, error) {
	return m.list(func(w domain.WithdrawalRequest) bool { return status == "" || w.Status == status }, limit, offset), nil
}

func (m memWithdrawals) list(keep func(domain.WithdrawalRequest) bool, limit, offset int) []domain.WithdrawalRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.WithdrawalRequest{}
	for _, w := range m.withdrawals {
		if keep(w) {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return pageOf(out, limit, offset)
}

func pageOf[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit < len(items) {
		items = items[:limit]
	}
	return items
}

// subscriptions

type memSubs struct{ *memState }

func (m memSubs) withFeatures(p domain.SubscriptionPackage) domain.SubscriptionPackage {
	p.Features = append([]domain.SubscriptionFeature{}, m.features[p.TierLevel]...)
	return p
}

func (m memSubs) ListPackages(_ context.Context, _ db.Querier, activeOnly bool) ([]domain.SubscriptionPackage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.SubscriptionPackage{}
	for _, p := range m.packages {
		if activeOnly && !p.IsActive {
			continue
		}
		out = append(out, m.withFeatures(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Price.LessThan(out[j].Price) })
	return out, nil
}

func (m memSubs) GetPackage(_ context.Context, _ db.Querier, id int64) (*domain.SubscriptionPackage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.packages[id]
	if !ok {
		return nil, nil
	}
	p = m.withFeatures(p)
	return &p, nil
}

func (m memSubs) CreatePackage(_ context.Context, _ db.Querier, p *domain.SubscriptionPackage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = m.id()
	p.CreatedAt = time.Now()
	m.packages[p.ID] = *p
	return nil
}

func (m memSubs) UpdatePackage(_ context.Context, _ db.Querier, p *domain.SubscriptionPackage) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.packages[p.ID]
	if !ok {
		return false, nil
	}
	p.CreatedAt = old.CreatedAt
	m.packages[p.ID] = *p
	return true, nil
}

func (m memSubs) FeaturesForTier(_ context.Context, _ db.Querier, tier domain.Tier) ([]domain.SubscriptionFeature, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.SubscriptionFeature{}, m.features[tier]...), nil
}

func (m memSubs) GetSubscription(_ context.Context, _ db.Querier, id int64) (*domain.UserSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m memSubs) GetSubscriptionForUpdate(ctx context.Context, q db.Querier, id int64) (*domain.UserSubscription, error) {
	return m.GetSubscription(ctx, q, id)
}

// bestActive mirrors the ORDER BY price DESC, created_at DESC lookup.
func (m memSubs) bestActive(userID int64) (domain.UserSubscription, bool) {
	var best domain.UserSubscription
	found := false
	for _, s := range m.subs {
		if s.UserID != userID || s.Status != domain.SubscriptionStatusActive {
			continue
		}
		if !found {
			best, found = s, true
			continue
		}
		bp, sp := m.packages[best.PackageID].Price, m.packages[s.PackageID].Price
		if sp.GreaterThan(bp) || (sp.Equal(bp) && s.ID > best.ID) {
			best = s
		}
	}
	return best, found
}

func (m memSubs) GetActiveForUser(_ context.Context, _ db.Querier, userID int64) (*domain.UserSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.bestActive(userID)
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m memSubs) HighestActiveTier(_ context.Context, _ db.Querier, userID int64) (domain.Tier, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.bestActive(userID)
	if !ok {
		return domain.TierNone, false, nil
	}
	return m.packages[s.PackageID].TierLevel, true, nil
}

func (m memSubs) CreateSubscription(_ context.Context, _ db.Querier, s *domain.UserSubscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.Status == domain.SubscriptionStatusActive {
		if _, dup := m.bestActive(s.UserID); dup {
			return errors.New("uq_user_subscriptions_one_active")
		}
	}
	s.ID = m.id()
	s.CreatedAt = time.Now()
	s.UpdatedAt = s.CreatedAt
	stored := *s
	stored.Package = nil
	m.subs[s.ID] = stored
	return nil
}

func (m memSubs) LatestPendingForUpdate(_ context.Context, _ db.Querier, userID, packageID int64) (*domain.UserSubscription, error) {
	m.recordLock("user_subscriptions", "update", userID)
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *domain.UserSubscription
	for _, s := range m.subs {
		if s.UserID != userID || s.PackageID != packageID || s.Status != domain.SubscriptionStatusPending {
			continue
		}
		if latest == nil || s.ID > latest.ID {
			s := s
			latest = &s
		}
	}
	return latest, nil
}

func (m memSubs) Activate(_ context.Context, _ db.Querier, id int64, start, end time.Time, paymentRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.subs[id]
	if _, dup := m.bestActive(s.UserID); dup {
		return errors.New("uq_user_subscriptions_one_active")
	}
	s.Status = domain.SubscriptionStatusActive
	s.StartDate = &start
	s.EndDate = &end
	s.PaymentMethodID = paymentRef
	m.subs[id] = s
	return nil
}

func (m memSubs) CancelOtherActive(_ context.Context, _ db.Querier, userID, exceptID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.subs {
		if s.UserID == userID && s.Status == domain.SubscriptionStatusActive && id != exceptID {
			s.Status = domain.SubscriptionStatusCancelled
			s.AutoRenew = false
			m.subs[id] = s
			n++
		}
	}
	return n, nil
}

func (m memSubs) Cancel(_ context.Context, _ db.Querier, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.subs[id]
	s.Status = domain.SubscriptionStatusCancelled
	s.AutoRenew = false
	m.subs[id] = s
	return nil
}

func (m memSubs) ListExpired(_ context.Context, _ db.Querier, now time.Time, limit int) ([]domain.UserSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.UserSubscription{}
	for _, s := range m.subs {
		if s.Status == domain.SubscriptionStatusActive && s.EndDate != nil && s.EndDate.Before(now) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndDate.Before(*out[j].EndDate) })
	return pageOf(out, limit, 0), nil
}

func (m memSubs) CreatePayment(_ context.Context, _ db.Querier, p *domain.SubscriptionTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = m.id()
	p.CreatedAt = time.Now()
	m.subPayments[p.ID] = *p
	return nil
}

func (m memSubs) SetPaymentStatus(_ context.Context, _ db.Querier, subscriptionID int64, status, label string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, p := range m.subPayments {
		if p.SubscriptionID != subscriptionID || p.Status != domain.SubscriptionPaymentPending {
			continue
		}
		p.Status = status
		if label != "" {
			p.PaymentMethod = label
		}
		m.subPayments[id] = p
		n++
	}
	return n, nil
}

// gifts

type memGifts struct{ *memState }

func (m memGifts) GetItem(_ context.Context, _ db.Querier, id int64) (*domain.GiftItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.giftItems[id]
	if !ok {
		return nil, nil
	}
	return &it, nil
}

func (m memGifts) ListItems(_ context.Context, _ db.Querier, includeUnavailable bool) ([]domain.GiftItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.GiftItem{}
	for _, it := range m.giftItems {
		if includeUnavailable || it.IsAvailable {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m memGifts) CreateItem(_ context.Context, _ db.Querier, it *domain.GiftItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it.ID = m.id()
	it.CreatedAt = time.Now()
	m.giftItems[it.ID] = *it
	return nil
}

func (m memGifts) UpdateItem(_ context.Context, _ db.Querier, it *domain.GiftItem) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.giftItems[it.ID]; !ok {
		return false, nil
	}
	m.giftItems[it.ID] = *it
	return true, nil
}

func (m memGifts) CreateUserGift(_ context.Context, _ db.Querier, g *domain.UserGift) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[g.RecipientID]; !ok {
		return repository.ErrGiftRecipientMissing
	}
	g.ID = m.id()
	g.CreatedAt = time.Now()
	m.gifts[g.ID] = *g
	return nil
}

func (m memGifts) GetUserGiftForUpdate(_ context.Context, _ db.Querier, id, recipientID int64) (*domain.UserGift, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.gifts[id]
	if !ok || g.RecipientID != recipientID {
		return nil, nil
	}
	return &g, nil
}

func (m memGifts) MarkRedeemed(_ context.Context, _ db.Querier, id int64, value decimal.Decimal, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g := m.gifts[id]
	if g.IsRedeemed {
		return nil
	}
	g.IsRedeemed = true
	g.RedeemedValue = decimal.NewNullDecimal(value)
	g.RedeemedAt = &at
	m.gifts[id] = g
	return nil
}

func (m memGifts) listGifts(keep func(domain.UserGift) bool, limit, offset int) []domain.UserGift {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.UserGift{}
	for _, g := range m.gifts {
		if keep(g) {
			it := m.giftItems[g.GiftItemID]
			g.GiftName, g.GiftImageURL = it.Name, it.ImageURL
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return pageOf(out, limit, offset)
}

func (m memGifts) ListReceived(_ context.Context, _ db.Querier, recipientID int64, limit, offset int) ([]domain.UserGift, error) {
	return m.listGifts(func(g domain.UserGift) bool { return g.RecipientID == recipientID }, limit, offset), nil
}

func (m memGifts) ListSent(_ context.Context, _ db.Querier, senderID int64, limit, offset int) ([]domain.UserGift, error) {
	return m.listGifts(func(g domain.UserGift) bool { return g.SenderID == senderID }, limit, offset), nil
}

func (m memGifts) MarkRead(_ context.Context, _ db.Querier, id, recipientID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.gifts[id]
	if !ok || g.RecipientID != recipientID {
		return false, nil
	}
	g.IsRead = true
	m.gifts[id] = g
	return true, nil
}

func (m memGifts) CountUnread(_ context.Context, _ db.Querier, recipientID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, g := range m.gifts {
		if g.RecipientID == recipientID && !g.IsRead {
			n++
		}
	}
	return n, nil
}

// transactions

type memTxs struct{ *memState }

func (m memTxs) Create(_ context.Context, _ db.Querier, tx *domain.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx.ID = m.id()
	tx.CreatedAt = time.Now()
	tx.UpdatedAt = tx.CreatedAt
	m.txs[tx.ID] = *tx
	return nil
}

func (m memTxs) get(id int64) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.txs[id]
	if !ok {
		return nil, nil
	}
	return &tx, nil
}

func (m memTxs) GetForUser(_ context.Context, _ db.Querier, id, userID int64) (*domain.Transaction, error) {
	tx, err := m.get(id)
	if tx == nil || tx.UserID != userID {
		return nil, err
	}
	return tx, nil
}

func (m memTxs) GetForUserForUpdate(ctx context.Context, q db.Querier, id, userID int64) (*domain.Transaction, error) {
	return m.GetForUser(ctx, q, id, userID)
}

func (m memTxs) GetForUpdate(_ context.Context, _ db.Querier, id int64) (*domain.Transaction, error) {
	return m.get(id)
}

func (m memTxs) SubmitReference(_ context.Context, _ db.Querier, id int64, reference string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := m.txs[id]
	tx.UserProvidedRef = reference
	tx.Status = domain.TransactionStatusPendingVerification
	m.txs[id] = tx
	return nil
}

func (m memTxs) UpdateStatus(_ context.Context, _ db.Querier, id int64, status domain.TransactionStatus, notes string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := m.txs[id]
	tx.Status = status
	tx.AdminNotes = notes
	m.txs[id] = tx
	return nil
}

func (m memTxs) list(keep func(domain.Transaction) bool, newestFirst bool, limit, offset int) ([]domain.Transaction, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Transaction{}
	for _, tx := range m.txs {
		if keep(tx) {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if newestFirst {
			return out[i].ID > out[j].ID
		}
		return out[i].ID < out[j].ID
	})
	return pageOf(out, limit, offset), len(out), nil
}

func (m memTxs) ListByUser(_ context.Context, _ db.Querier, userID int64, limit, offset int) ([]domain.Transaction, int, error) {
	return m.list(func(tx domain.Transaction) bool { return tx.UserID == userID }, true, limit, offset)
}

func (m memTxs) ListByStatus(_ context.Context, _ db.Querier, status domain.TransactionStatus, limit, offset int) ([]domain.Transaction, int, error) {
	return m.list(func(tx domain.Transaction) bool { return tx.Status == status }, false, limit, offset)
}

// payment methods

type memMethods struct{ *memState }

func (m memMethods) GetCountryPaymentMethodDetail(_ context.Context, _ db.Querier, countryID, paymentMethodID int64) (*domain.PaymentMethodDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.methods[[2]int64{countryID, paymentMethodID}]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

// reconciliation

type memRecon struct{ *memState }

func (m memRecon) Create(_ context.Context, _ db.Querier, item *domain.ReconciliationItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item.ID = m.id()
	item.CreatedAt = time.Now()
	m.recon[item.ID] = *item
	return nil
}

func (m memRecon) GetForUpdate(_ context.Context, _ db.Querier, id int64) (*domain.ReconciliationItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.recon[id]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (m memRecon) Resolve(_ context.Context, _ db.Querier, id, adminID int64, notes string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item := m.recon[id]
	item.ResolvedAt = &at
	item.ResolvedBy = &adminID
	item.ResolutionNotes = notes
	m.recon[id] = item
	return nil
}

func (m memRecon) List(_ context.Context, _ db.Querier, includeResolved bool, limit, offset int) ([]domain.ReconciliationItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.ReconciliationItem{}
	for _, item := range m.recon {
		if includeResolved || item.ResolvedAt == nil {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return pageOf(out, limit, offset), nil
}

// audit

type memAudit struct{ *memState }

func (m memAudit) Create(_ context.Context, _ db.Querier, log *domain.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	log.ID = int64(len(m.audit) + 1)
	log.CreatedAt = time.Now()
	m.audit = append(m.audit, *log)
	return nil
}

func (m memAudit) List(_ context.Context, _ db.Querier, userID int64, category string, limit int) ([]*domain.AuditLog, error) {
	return m.filter(func(l domain.AuditLog) bool {
		return (userID == 0 || l.UserID == userID) && (category == "" || l.Category == category)
	}, limit), nil
}

func (m memAudit) filter(keep func(domain.AuditLog) bool, limit int) []*domain.AuditLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*domain.AuditLog{}
	for i := len(m.audit) - 1; i >= 0 && len(out) < limit; i-- {
		if keep(m.audit[i]) {
			l := m.audit[i]
			out = append(out, &l)
		}
	}
	return out
}

// push and events

type notification struct {
	UserID int64
	Type   string
	Data   any
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (n *recordingNotifier) Notify(userID int64, msgType string, data any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{UserID: userID, Type: msgType, Data: data})
}

func (n *recordingNotifier) count(userID int64, msgType string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, s := range n.sent {
		if s.UserID == userID && s.Type == msgType {
			c++
		}
	}
	return c
}

type publishedEvent struct {
	RoutingKey string
	Body       any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, routingKey string, body any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{RoutingKey: routingKey, Body: body})
	return p.err
}

// testEnv wires every service over one memState with a fixed clock.
type testEnv struct {
	t    *testing.T
	st   *memState
	conn *fakeConn
	now  time.Time

	notifier *recordingNotifier
	events   *recordingPublisher

	balance      *BalanceService
	audit        *AuditService
	users        *UserService
	withdrawals  *WithdrawalService
	subs         *SubscriptionService
	gifts        *GiftService
	transactions *TransactionService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := newMemState()
	conn := &fakeConn{st: st}
	e := &testEnv{
		t:        t,
		st:       st,
		conn:     conn,
		now:      time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC),
		notifier: &recordingNotifier{},
		events:   &recordingPublisher{},
	}
	clk := func() time.Time { return e.now }

	e.balance = NewBalanceService(conn, memBalances{st})
	e.audit = NewAuditService(conn, memAudit{st})
	e.users = NewUserService(conn, memUsers{st})

	e.withdrawals = NewWithdrawalService(conn, memWithdrawals{st}, e.balance, e.audit, e.notifier, decimal.RequireFromString("1.00"))
	e.withdrawals.now = clk

	e.subs = NewSubscriptionService(conn, memSubs{st}, memUsers{st}, memTxs{st}, e.balance, e.audit, e.notifier, "USD")
	e.subs.now = clk

	e.gifts = NewGiftService(conn, memGifts{st}, memUsers{st}, e.subs, e.balance, memTxs{st}, e.audit, e.notifier, "USD")
	e.gifts.now = clk

	e.transactions = NewTransactionService(conn, memTxs{st}, memMethods{st}, memRecon{st},
		e.subs, e.gifts, e.balance, e.audit, e.notifier, e.events, "USD")
	e.transactions.now = clk
	return e
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (e *testEnv) addUser(role string) int64 {
	e.st.mu.Lock()
	defer e.st.mu.Unlock()
	id := e.st.id()
	e.st.users[id] = domain.User{
		ID:       id,
		Email:    fmt.Sprintf("user%d@example.com", id),
		Role:     role,
		IsActive: true,
	}
	return id
}

func (e *testEnv) setBalance(userID int64, amount string) {
	e.st.mu.Lock()
	defer e.st.mu.Unlock()
	e.st.balances[userID] = domain.BalanceAccount{UserID: userID, Balance: money(amount)}
}

func (e *testEnv) balanceOf(userID int64) string {
	e.st.mu.Lock()
	defer e.st.mu.Unlock()
	return e.st.balances[userID].Balance.StringFixed(2)
}

func (e *testEnv) roleOf(userID int64) string {
	e.st.mu.Lock()
	defer e.st.mu.Unlock()
	return e.st.users[userID].Role
}

func (e *testEnv) addPackage(price string, tier domain.Tier, months int) int64 {
	e.st.mu.Lock()
	defer e.st.mu.Unlock()
	id := e.st.id()
	p := domain.SubscriptionPackage{
		ID:              id,
		Name:            tier.String() + " plan",
		Price:           money(price),
		Currency:        "USD",
		BillingInterval: "monthly",
		TierLevel:       tier,
		IsActive:        true,
	}
	if months > 0 {
		p.DurationMonths = &months
	}
	e.st.packages[id] = p
	return id
}

func (e *testEnv) addFeature(tier domain.Tier, name string) {
	e.st.mu.Lock()
	defer e.st.mu.Unlock()
	e.st.features[tier] = append(e.st.features[tier], domain.SubscriptionFeature{Name: name})
}

func (e *testEnv) addGiftItem(price string, required *domain.Tier) int64 {
	e.st.mu.Lock()
	defer e.st.mu.Unlock()
	id := e.st.id()
	e.st.giftItems[id] = domain.GiftItem{
		ID:           id,
		Name:         "Rose",
		Price:        money(price),
		RequiredTier: required,
		IsAvailable:  true,
	}
	return id
}

func (e *testEnv) addPaymentMethod(countryID, methodID int64, active bool) {
	e.st.mu.Lock()
	defer e.st.mu.Unlock()
	e.st.methods[[2]int64{countryID, methodID}] = domain.PaymentMethodDetail{
		CountryID:            countryID,
		PaymentMethodID:      methodID,
		PaymentMethodName:    "Bank Transfer",
		IsActive:             active,
		UserInstructions:     "Transfer to the account below",
		ConfigurationDetails: []byte(`{"account_number":"123456"}`),
	}
}

// activeSubscription gives userID a running subscription to packageID.
func (e *testEnv) activeSubscription(userID, packageID int64, end time.Time) int64 {
	e.st.mu.Lock()
	defer e.st.mu.Unlock()
	id := e.st.id()
	start := e.now.AddDate(0, -1, 0)
	e.st.subs[id] = domain.UserSubscription{
		ID:        id,
		UserID:    userID,
		PackageID: packageID,
		Status:    domain.SubscriptionStatusActive,
		StartDate: &start,
		EndDate:   &end,
		AutoRenew: true,
	}
	return id
}

func tierPtr(t domain.Tier) *domain.Tier {
	return &t
}

func wantErr(t *testing.T, err, want error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("err = %v; want %v", err, want)
	}
}
