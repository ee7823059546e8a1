package service

import (
	"context"
	"strings"

	"dating_platform/internal/db"
	"dating_platform/internal/domain"
	"dating_platform/internal/logger"
)

type AuditStore interface {
	Create(ctx context.Context, q db.Querier, log *domain.AuditLog) error
	List(ctx context.Context, q db.Querier, userID int64, category string, limit int) ([]*domain.AuditLog, error)
}

// AuditService handles audit logging. Entries are written after the business
// change commits; a failed write is logged and never fails the caller.
type AuditService struct {
	conn db.Querier
	repo AuditStore
}

// NewAuditService creates a new audit service
func NewAuditService(conn db.Querier, repo AuditStore) *AuditService {
	return &AuditService{conn: conn, repo: repo}
}

// Log records an action a user took on their own account
func (s *AuditService) Log(ctx context.Context, userID int64, action, category string, details map[string]interface{}) {
	s.write(ctx, &domain.AuditLog{
		UserID:   userID,
		ActorID:  userID,
		Action:   action,
		Category: category,
		Details:  details,
	})
}

// LogAdminAction records an admin acting on another user's records
func (s *AuditService) LogAdminAction(ctx context.Context, adminID int64, action string, targetUserID int64, details map[string]interface{}) {
	if details == nil {
		details = make(map[string]interface{})
	}
	details["admin_id"] = adminID

	s.write(ctx, &domain.AuditLog{
		UserID:   targetUserID,
		ActorID:  adminID,
		Action:   action,
		Category: domain.AuditCategoryAdmin,
		Details:  details,
	})
}

func (s *AuditService) write(ctx context.Context, log *domain.AuditLog) {
	if s == nil {
		return
	}
	if err := s.repo.Create(ctx, s.conn, log); err != nil {
		logger.WithContext(ctx).Error("failed to create audit log", "error", err, "action", log.Action, "user_id", log.UserID)
	}
}

var ErrInvalidAuditCategory = domain.NewValidationError("invalid_category", "unknown audit category")

// ListLogs pages the audit trail for admins, newest first. userID 0 and an
// empty category match everything.
func (s *AuditService) ListLogs(ctx context.Context, userID int64, category string, limit int) ([]*domain.AuditLog, error) {
	category = strings.ToLower(strings.TrimSpace(category))
	if category != "" && !domain.IsAuditCategory(category) {
		return nil, ErrInvalidAuditCategory
	}
	if userID < 0 {
		userID = 0
	}
	limit, _ = normalizePage(limit, 0, 50)
	return s.repo.List(ctx, s.conn, userID, category, limit)
}
