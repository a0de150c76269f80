package repository

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tokengate/tokengate/verification/domain"
)

// --- Persistence Model ---

type userRoleModel struct {
	ID          string `gorm:"primaryKey"`
	UserID      string `gorm:"index:idx_user_roles_user;not null"`
	ServerID    string `gorm:"index:idx_user_roles_server;not null"`
	RoleID      string `gorm:"not null"`
	RuleID      string
	Address     string
	Status      string     `gorm:"index:idx_user_roles_status;default:'active'"`
	VerifiedAt  time.Time  `gorm:"not null"`
	LastChecked time.Time  `gorm:"index:idx_user_roles_checked;not null"`
	ExpiresAt   *time.Time `gorm:"column:expires_at"`
}

func (userRoleModel) TableName() string {
	return "user_roles"
}

func toUserRoleModel(a *domain.RoleAssignment) userRoleModel {
	return userRoleModel{
		ID:          a.ID,
		UserID:      a.UserID,
		ServerID:    a.ServerID,
		RoleID:      a.RoleID,
		RuleID:      a.RuleID,
		Address:     a.Address,
		Status:      string(a.Status),
		VerifiedAt:  a.VerifiedAt,
		LastChecked: a.LastCheckedAt,
		ExpiresAt:   a.ExpiresAt,
	}
}

func fromUserRoleModel(m userRoleModel) *domain.RoleAssignment {
	return &domain.RoleAssignment{
		ID:            m.ID,
		UserID:        m.UserID,
		ServerID:      m.ServerID,
		RoleID:        m.RoleID,
		RuleID:        m.RuleID,
		Address:       m.Address,
		Status:        domain.AssignmentStatus(m.Status),
		VerifiedAt:    m.VerifiedAt,
		LastCheckedAt: m.LastChecked,
		ExpiresAt:     m.ExpiresAt,
	}
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key value")
}

// --- Repository Implementation ---

// AssignmentGormRepository is the durable ledger of granted roles.
// A partial unique index keeps at most one ACTIVE row per (user_id, role_id)
// while still allowing any number of expired/revoked rows for history.
type AssignmentGormRepository struct {
	db *gorm.DB
}

func NewAssignmentGormRepository(db *gorm.DB) *AssignmentGormRepository {
	return &AssignmentGormRepository{db: db}
}

func (r *AssignmentGormRepository) InitSchema(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&userRoleModel{}); err != nil {
		return err
	}
	// Partial unique indexes are supported by both SQLite and Postgres but
	// not expressible through gorm struct tags.
	return r.db.WithContext(ctx).Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_user_roles_active ON user_roles(user_id, role_id) WHERE status = 'active'`,
	).Error
}

// UpsertActive inserts an active row, treating a unique collision on the
// active (user_id, role_id) pair as "already held". On collision the
// existing row's address, rule and last_checked are refreshed instead
// (last writer wins), and created=false is returned.
func (r *AssignmentGormRepository) UpsertActive(ctx context.Context, a *domain.RoleAssignment) (bool, error) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if a.VerifiedAt.IsZero() {
		a.VerifiedAt = now
	}
	if a.LastCheckedAt.IsZero() {
		a.LastCheckedAt = now
	}
	a.Status = domain.StatusActive

	model := toUserRoleModel(a)
	err := r.db.WithContext(ctx).Create(&model).Error
	if err == nil {
		return true, nil
	}
	if !isUniqueViolation(err) {
		return false, err
	}

	// Row already exists for this (user, role); refresh it and report
	// "already held". Losing this update to a concurrent writer is fine.
	refresh := r.db.WithContext(ctx).Model(&userRoleModel{}).
		Where("user_id = ? AND role_id = ? AND status = ?", a.UserID, a.RoleID, string(domain.StatusActive)).
		Updates(map[string]any{
			"address":      a.Address,
			"rule_id":      a.RuleID,
			"last_checked": now,
		})
	if refresh.Error != nil {
		return false, refresh.Error
	}
	return false, nil
}

func (r *AssignmentGormRepository) MarkExpired(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, domain.StatusExpired)
}

func (r *AssignmentGormRepository) MarkRevoked(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, domain.StatusRevoked)
}

func (r *AssignmentGormRepository) setStatus(ctx context.Context, id string, status domain.AssignmentStatus) error {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).Model(&userRoleModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":       string(status),
			"last_checked": now,
			"expires_at":   &now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrAssignmentNotFound
	}
	return nil
}

func (r *AssignmentGormRepository) Touch(ctx context.Context, id string, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&userRoleModel{}).
		Where("id = ?", id).
		Update("last_checked", at.UTC())
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrAssignmentNotFound
	}
	return nil
}

func (r *AssignmentGormRepository) ListActiveCheckedBefore(ctx context.Context, cutoff time.Time, limit, offset int) ([]*domain.RoleAssignment, error) {
	var models []userRoleModel
	q := r.db.WithContext(ctx).
		Where("status = ? AND last_checked < ?", string(domain.StatusActive), cutoff.UTC()).
		Order("last_checked asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	rows := make([]*domain.RoleAssignment, 0, len(models))
	for _, m := range models {
		rows = append(rows, fromUserRoleModel(m))
	}
	return rows, nil
}

func (r *AssignmentGormRepository) ListActiveByUser(ctx context.Context, userID, serverID string) ([]*domain.RoleAssignment, error) {
	var models []userRoleModel
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND server_id = ? AND status = ?", userID, serverID, string(domain.StatusActive)).
		Order("last_checked asc").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	rows := make([]*domain.RoleAssignment, 0, len(models))
	for _, m := range models {
		rows = append(rows, fromUserRoleModel(m))
	}
	return rows, nil
}
