package propsync

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/renovalabs/renovations_backend/models"
	"gorm.io/gorm"
)

// Store is the local persistence surface of the engine. The GORM
// implementation below is the production one; tests substitute a fake.
type Store interface {
	ListProperties(ctx context.Context) ([]models.Property, error)
	CreateProperty(ctx context.Context, p *models.Property) error
	UpdateProperty(ctx context.Context, id uint, updates map[string]interface{}) error
	MarkOrphaned(ctx context.Context, ids []uint) (int64, error)

	ListProjectGroups(ctx context.Context) ([]models.ProjectGroup, error)
	AssignProjectGroup(ctx context.Context, groupID uint, remoteIDs []string, byParentId bool) (int64, error)

	HasBudgetRequest(ctx context.Context, propertyID uint) (bool, error)
	CreateBudgetRequest(ctx context.Context, req *models.BudgetRequest) error
}

type gormStore struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) ListProperties(ctx context.Context) ([]models.Property, error) {
	var props []models.Property
	if err := s.db.WithContext(ctx).Find(&props).Error; err != nil {
		return nil, err
	}
	return props, nil
}

func (s *gormStore) CreateProperty(ctx context.Context, p *models.Property) error {
	return s.db.WithContext(ctx).Create(p).Error
}

func (s *gormStore) UpdateProperty(ctx context.Context, id uint, updates map[string]interface{}) error {
	return s.db.WithContext(ctx).
		Model(&models.Property{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// MarkOrphaned moves rows to the quarantine phase in one batch update.
// Rows are never deleted by this engine.
func (s *gormStore) MarkOrphaned(ctx context.Context, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Model(&models.Property{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"phase":      models.PhaseOrphaned,
			"updated_at": time.Now(),
		})
	return res.RowsAffected, res.Error
}

func (s *gormStore) ListProjectGroups(ctx context.Context) ([]models.ProjectGroup, error) {
	var groups []models.ProjectGroup
	if err := s.db.WithContext(ctx).Find(&groups).Error; err != nil {
		return nil, err
	}
	return groups, nil
}

// AssignProjectGroup links properties to a group by remote id. byParentId
// matches the intermediate-table id, otherwise the property's own record
// id. Callers bound len(remoteIDs) per batch.
func (s *gormStore) AssignProjectGroup(ctx context.Context, groupID uint, remoteIDs []string, byParentId bool) (int64, error) {
	if len(remoteIDs) == 0 {
		return 0, nil
	}
	column := "remote_record_id"
	if byParentId {
		column = "remote_parent_record_id"
	}
	res := s.db.WithContext(ctx).
		Model(&models.Property{}).
		Where(column+" IN ?", remoteIDs).
		Update("project_group_id", groupID)
	return res.RowsAffected, res.Error
}

func (s *gormStore) HasBudgetRequest(ctx context.Context, propertyID uint) (bool, error) {
	var req models.BudgetRequest
	err := s.db.WithContext(ctx).
		Where("property_id = ?", propertyID).
		Take(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *gormStore) CreateBudgetRequest(ctx context.Context, req *models.BudgetRequest) error {
	return s.db.WithContext(ctx).Create(req).Error
}
