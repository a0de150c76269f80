package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tokengate/tokengate/verification/domain"
)

// --- Persistence Model ---

type ruleModel struct {
	ID             string `gorm:"primaryKey"`
	ServerID       string `gorm:"index:idx_rules_server;not null"`
	ChannelID      string // empty = any channel
	Slug           string `gorm:"default:'ALL'"`
	AttributeKey   string `gorm:"default:'ALL'"`
	AttributeValue string `gorm:"default:'ALL'"`
	MinItems       int    `gorm:"default:1"`
	RoleID         string `gorm:"not null"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (ruleModel) TableName() string {
	return "rules"
}

func toRuleModel(r *domain.Rule) ruleModel {
	channel := ""
	if !r.ChannelID.IsWildcard() {
		channel = r.ChannelID.Value()
	}
	return ruleModel{
		ID:             r.ID,
		ServerID:       r.ServerID,
		ChannelID:      channel,
		Slug:           r.CollectionSlug.Sentinel(),
		AttributeKey:   r.AttributeKey.Sentinel(),
		AttributeValue: r.AttributeValue.Sentinel(),
		MinItems:       r.MinItems,
		RoleID:         r.RoleID,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func fromRuleModel(m ruleModel) *domain.Rule {
	return &domain.Rule{
		ID:             m.ID,
		ServerID:       m.ServerID,
		ChannelID:      domain.CriterionFrom(m.ChannelID),
		CollectionSlug: domain.CriterionFrom(m.Slug),
		AttributeKey:   domain.CriterionFrom(m.AttributeKey),
		AttributeValue: domain.CriterionFrom(m.AttributeValue),
		MinItems:       m.MinItems,
		RoleID:         m.RoleID,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

// --- Repository Implementation ---

// RuleGormRepository persists rules in the unified schema: wildcards are
// stored as the ALL sentinel (empty for channel), normalized back into
// Criterion values on read. Legacy empty-string rows read identically, so no
// runtime shape detection is needed.
type RuleGormRepository struct {
	db *gorm.DB
}

func NewRuleGormRepository(db *gorm.DB) *RuleGormRepository {
	return &RuleGormRepository{db: db}
}

func (r *RuleGormRepository) InitSchema(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&ruleModel{})
}

func (r *RuleGormRepository) Create(ctx context.Context, rule *domain.Rule) error {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	model := toRuleModel(rule)
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *RuleGormRepository) GetByID(ctx context.Context, id string) (*domain.Rule, error) {
	var m ruleModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, domain.ErrRuleNotFound
		}
		return nil, err
	}
	return fromRuleModel(m), nil
}

func (r *RuleGormRepository) GetByIDs(ctx context.Context, ids []string) ([]*domain.Rule, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var models []ruleModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&models).Error; err != nil {
		return nil, err
	}
	rules := make([]*domain.Rule, 0, len(models))
	for _, m := range models {
		rules = append(rules, fromRuleModel(m))
	}
	return rules, nil
}

func (r *RuleGormRepository) ListByServer(ctx context.Context, serverID string) ([]*domain.Rule, error) {
	var models []ruleModel
	if err := r.db.WithContext(ctx).Where("server_id = ?", serverID).Order("created_at asc").Find(&models).Error; err != nil {
		return nil, err
	}
	rules := make([]*domain.Rule, 0, len(models))
	for _, m := range models {
		rules = append(rules, fromRuleModel(m))
	}
	return rules, nil
}

func (r *RuleGormRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&ruleModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrRuleNotFound
	}
	return nil
}
