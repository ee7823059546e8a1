package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"dating_platform/internal/domain"
	"dating_platform/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// Stubs embed the interface so only the methods a test needs are written.

type stubBalance struct {
	acct *domain.BalanceAccount
	err  error
}

func (s stubBalance) GetBalance(context.Context, int64) (*domain.BalanceAccount, error) {
	return s.acct, s.err
}

type stubWithdrawals struct {
	WithdrawalAPI
	create func(userID int64, amount decimal.Decimal, details string) (*domain.WithdrawalRequest, decimal.Decimal, error)
}

func (s stubWithdrawals) CreateRequest(_ context.Context, userID int64, amount decimal.Decimal, details string) (*domain.WithdrawalRequest, decimal.Decimal, error) {
	return s.create(userID, amount, details)
}

type stubTransactions struct {
	TransactionAPI
	verify  func(adminID, txID int64, status domain.TransactionStatus, notes string) (*service.VerifyResult, error)
	resolve func(adminID, id int64, notes string) (*domain.ReconciliationItem, error)
}

func (s stubTransactions) Verify(_ context.Context, adminID, txID int64, status domain.TransactionStatus, notes string) (*service.VerifyResult, error) {
	return s.verify(adminID, txID, status, notes)
}

func (s stubTransactions) ResolveReconciliation(_ context.Context, adminID, id int64, notes string) (*domain.ReconciliationItem, error) {
	return s.resolve(adminID, id, notes)
}

type stubGifts struct {
	GiftAPI
	redeem func(userID, giftID int64) (*service.RedeemResult, error)
}

func (s stubGifts) Redeem(_ context.Context, userID, giftID int64) (*service.RedeemResult, error) {
	return s.redeem(userID, giftID)
}

type stubSubs struct {
	SubscriptionAPI
	cancel func(subID, actorID int64, admin bool) (*domain.UserSubscription, error)
}

func (s stubSubs) Cancel(_ context.Context, subID, actorID int64, admin bool) (*domain.UserSubscription, error) {
	return s.cancel(subID, actorID, admin)
}

type stubAudit struct {
	list func(userID int64, category string, limit int) ([]*domain.AuditLog, error)
}

func (s stubAudit) ListLogs(_ context.Context, userID int64, category string, limit int) ([]*domain.AuditLog, error) {
	return s.list(userID, category, limit)
}

// fakeAuth stands in for the auth middleware: X-User and X-Role headers.
func fakeAuth(c *gin.Context) {
	if v := c.GetHeader("X-User"); v != "" {
		id, _ := strconv.ParseInt(v, 10, 64)
		c.Set("user_id", id)
		c.Set("role", c.GetHeader("X-Role"))
	}
	c.Next()
}

func newRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(fakeAuth)
	r.GET("/balance", h.GetBalance)
	r.POST("/balance/withdrawals", h.RequestWithdrawal)
	r.POST("/subscriptions/:id/cancel", h.CancelSubscription)
	r.POST("/gifts/:id/redeem", h.RedeemGift)
	r.POST("/admin/transactions/:id/verify", h.VerifyTransaction)
	r.POST("/admin/reconciliation/:id/resolve", h.ResolveReconciliation)
	r.GET("/admin/audit-logs", h.ListAuditLogs)
	return r
}

func do(r http.Handler, method, path, user, role, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-User", user)
		req.Header.Set("X-Role", role)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func TestRespondError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{"validation", domain.NewValidationError("invalid_amount", "bad amount"), 400, "invalid_amount", "bad amount"},
		{"business", fmt.Errorf("debit: %w", service.ErrInsufficientBalance), 400, "insufficient_balance", "insufficient balance"},
		{"not found", service.ErrGiftNotFound, 404, "gift_not_found", ""},
		{"forbidden", service.ErrNotSubscriptionOwner, 403, "", ""},
		{"tier", &domain.InsufficientTierError{Required: domain.TierElite, Actual: domain.TierBasic}, 403, "insufficient_tier", ""},
		{"conflict", domain.ErrConcurrencyConflict, 409, "concurrency_conflict", ""},
		{"internal", errors.New("pq: connection reset"), 500, "internal_error", "internal error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			respondError(c, tc.err)

			if w.Code != tc.status {
				t.Fatalf("status = %d; want %d", w.Code, tc.status)
			}
			body := decode(t, w)
			if tc.code != "" && body["code"] != tc.code {
				t.Fatalf("code = %v; want %s", body["code"], tc.code)
			}
			if tc.message != "" && body["error"] != tc.message {
				t.Fatalf("error = %v; want %s", body["error"], tc.message)
			}
		})
	}
}

func TestGetBalance(t *testing.T) {
	h := &Handler{Balance: stubBalance{acct: &domain.BalanceAccount{UserID: 7, Balance: decimal.RequireFromString("12.5")}}}
	r := newRouter(h)

	if w := do(r, http.MethodGet, "/balance", "", "", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous status = %d", w.Code)
	}

	w := do(r, http.MethodGet, "/balance", "7", "user", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", w.Code, w.Body)
	}
	if got := decode(t, w)["balance"]; got != "12.50" {
		t.Fatalf("balance = %v", got)
	}
}

func TestRequestWithdrawal(t *testing.T) {
	var gotAmount decimal.Decimal
	h := &Handler{Withdrawals: stubWithdrawals{create: func(userID int64, amount decimal.Decimal, details string) (*domain.WithdrawalRequest, decimal.Decimal, error) {
		gotAmount = amount
		if amount.GreaterThan(decimal.NewFromInt(100)) {
			return nil, decimal.Zero, service.ErrInsufficientBalance
		}
		return &domain.WithdrawalRequest{ID: 1, UserID: userID, Amount: amount, UserPaymentDetails: details}, decimal.RequireFromString("80"), nil
	}}}
	r := newRouter(h)

	if w := do(r, http.MethodPost, "/balance/withdrawals", "3", "user", `{"amount":`); w.Code != http.StatusBadRequest {
		t.Fatalf("malformed body status = %d", w.Code)
	}

	w := do(r, http.MethodPost, "/balance/withdrawals", "3", "user", `{"amount":500,"payment_details":"IBAN"}`)
	if w.Code != http.StatusBadRequest || decode(t, w)["code"] != "insufficient_balance" {
		t.Fatalf("insufficient: %d %s", w.Code, w.Body)
	}

	w = do(r, http.MethodPost, "/balance/withdrawals", "3", "user", `{"amount":"20.00","payment_details":"IBAN"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d body %s", w.Code, w.Body)
	}
	if !gotAmount.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("amount passed = %s", gotAmount)
	}
	if decode(t, w)["new_balance"] != "80.00" {
		t.Fatalf("body %s", w.Body)
	}
}

func TestVerifyTransactionNormalizesStatus(t *testing.T) {
	var got domain.TransactionStatus
	h := &Handler{Transactions: stubTransactions{verify: func(adminID, txID int64, status domain.TransactionStatus, notes string) (*service.VerifyResult, error) {
		got = status
		return &service.VerifyResult{Transaction: &domain.Transaction{ID: txID, Status: status}}, nil
	}}}
	r := newRouter(h)

	if w := do(r, http.MethodPost, "/admin/transactions/abc/verify", "1", "admin", `{}`); w.Code != http.StatusBadRequest {
		t.Fatalf("bad id status = %d", w.Code)
	}

	w := do(r, http.MethodPost, "/admin/transactions/5/verify", "1", "admin", `{"status":" Completed ","admin_notes":"ok"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", w.Code, w.Body)
	}
	if got != domain.TransactionStatusCompleted {
		t.Fatalf("status passed = %q", got)
	}
}

func TestCancelSubscriptionPassesAdminFlag(t *testing.T) {
	var admin bool
	h := &Handler{Subscriptions: stubSubs{cancel: func(subID, actorID int64, isAdmin bool) (*domain.UserSubscription, error) {
		admin = isAdmin
		return &domain.UserSubscription{ID: subID, UserID: 9}, nil
	}}}
	r := newRouter(h)

	if w := do(r, http.MethodPost, "/subscriptions/4/cancel", "1", "admin", ""); w.Code != http.StatusOK || !admin {
		t.Fatalf("admin cancel: %d admin=%v", w.Code, admin)
	}
	if w := do(r, http.MethodPost, "/subscriptions/4/cancel", "9", "premium", ""); w.Code != http.StatusOK || admin {
		t.Fatalf("owner cancel: %d admin=%v", w.Code, admin)
	}
}

func TestRedeemGift(t *testing.T) {
	h := &Handler{Gifts: stubGifts{redeem: func(userID, giftID int64) (*service.RedeemResult, error) {
		if giftID == 2 {
			return nil, service.ErrGiftAlreadyRedeemed
		}
		return &service.RedeemResult{
			Gift:          &domain.UserGift{ID: giftID, RecipientID: userID},
			RedeemedValue: decimal.RequireFromString("7.3"),
			NewBalance:    decimal.RequireFromString("7.3"),
		}, nil
	}}}
	r := newRouter(h)

	w := do(r, http.MethodPost, "/gifts/1/redeem", "5", "user", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", w.Code, w.Body)
	}
	if decode(t, w)["redeemed_value"] != "7.30" {
		t.Fatalf("body %s", w.Body)
	}

	w = do(r, http.MethodPost, "/gifts/2/redeem", "5", "user", "")
	if w.Code != http.StatusBadRequest || decode(t, w)["code"] != "gift_already_redeemed" {
		t.Fatalf("redeem twice: %d %s", w.Code, w.Body)
	}
}

func TestResolveReconciliationWithoutBody(t *testing.T) {
	h := &Handler{Transactions: stubTransactions{resolve: func(adminID, id int64, notes string) (*domain.ReconciliationItem, error) {
		return &domain.ReconciliationItem{ID: id}, nil
	}}}
	r := newRouter(h)

	if w := do(r, http.MethodPost, "/admin/reconciliation/3/resolve", "1", "admin", ""); w.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", w.Code, w.Body)
	}
}

func TestGetUserID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		name  string
		value any
		want  int64
		ok    bool
	}{
		{"int64", int64(7), 7, true},
		{"float64", float64(9), 9, true},
		{"string", "7", 0, false},
		{"missing", nil, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			if tc.value != nil {
				c.Set("user_id", tc.value)
			}
			got, ok := getUserID(c)
			if got != tc.want || ok != tc.ok {
				t.Fatalf("getUserID = %d, %v; want %d, %v", got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestListAuditLogs(t *testing.T) {
	var gotUser int64
	var gotCategory string
	var gotLimit int
	h := &Handler{Audit: stubAudit{list: func(userID int64, category string, limit int) ([]*domain.AuditLog, error) {
		gotUser, gotCategory, gotLimit = userID, category, limit
		if category == "bogus" {
			return nil, service.ErrInvalidAuditCategory
		}
		return []*domain.AuditLog{{ID: 1, UserID: userID, Category: category, Action: domain.AuditActionWithdrawStatus}}, nil
	}}}
	r := newRouter(h)

	w := do(r, http.MethodGet, "/admin/audit-logs?user_id=12&category=admin&limit=5", "1", "admin", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", w.Code, w.Body)
	}
	if gotUser != 12 || gotCategory != "admin" || gotLimit != 5 {
		t.Fatalf("filters = %d %q %d", gotUser, gotCategory, gotLimit)
	}
	logs, _ := decode(t, w)["logs"].([]any)
	if len(logs) != 1 {
		t.Fatalf("body %s", w.Body)
	}

	w = do(r, http.MethodGet, "/admin/audit-logs", "1", "admin", "")
	if w.Code != http.StatusOK || gotUser != 0 || gotCategory != "" || gotLimit != 50 {
		t.Fatalf("defaults: %d user=%d category=%q limit=%d", w.Code, gotUser, gotCategory, gotLimit)
	}

	w = do(r, http.MethodGet, "/admin/audit-logs?user_id=abc", "1", "admin", "")
	if w.Code != http.StatusBadRequest || decode(t, w)["code"] != "invalid_request" {
		t.Fatalf("bad user_id: %d %s", w.Code, w.Body)
	}

	w = do(r, http.MethodGet, "/admin/audit-logs?category=bogus", "1", "admin", "")
	if w.Code != http.StatusBadRequest || decode(t, w)["code"] != "invalid_category" {
		t.Fatalf("bad category: %d %s", w.Code, w.Body)
	}
}
