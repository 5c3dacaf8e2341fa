package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"revbridge/internal/domain/bridge"
	"revbridge/internal/errs"
	"revbridge/internal/infrastructure/persistence/sqlite/model"
)

type IdentityRepository struct {
	db *gorm.DB
}

func NewIdentityRepository(db *gorm.DB) *IdentityRepository {
	return &IdentityRepository{db: db}
}

func (r *IdentityRepository) UpsertIdentity(ctx context.Context, identity bridge.VirtualIdentity) error {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return err
	}

	row := model.VirtualIdentity{
		IdentityKey:  identity.Key,
		DisplayName:  identity.DisplayName,
		AvatarRef:    identity.AvatarRef,
		Virtual:      identity.Virtual,
		CreatedAt:    identity.CreatedAt,
		LastActiveAt: identity.LastActiveAt,
	}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "identity_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "avatar_ref", "last_active_at"}),
	}).Create(&row).Error; err != nil {
		return errs.Wrap(err, "upsert virtual identity")
	}
	return nil
}

func (r *IdentityRepository) GetIdentity(ctx context.Context, identityKey string) (bridge.VirtualIdentity, bool, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return bridge.VirtualIdentity{}, false, err
	}

	var row model.VirtualIdentity
	if err := db.Where("identity_key = ?", strings.TrimSpace(identityKey)).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return bridge.VirtualIdentity{}, false, nil
		}
		return bridge.VirtualIdentity{}, false, errs.Wrap(err, "query virtual identity")
	}
	return mapIdentity(row), true, nil
}

func (r *IdentityRepository) ListIdentities(ctx context.Context) ([]bridge.VirtualIdentity, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	var rows []model.VirtualIdentity
	if err := db.Order("identity_key asc").Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query virtual identities")
	}

	items := make([]bridge.VirtualIdentity, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapIdentity(row))
	}
	return items, nil
}

func (r *IdentityRepository) DeleteIdentitiesInactiveSince(ctx context.Context, cutoff time.Time) (int64, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return 0, err
	}

	result := db.Where("last_active_at < ?", cutoff).Delete(&model.VirtualIdentity{})
	if result.Error != nil {
		return 0, errs.Wrap(result.Error, "delete inactive identities")
	}
	return result.RowsAffected, nil
}

func (r *IdentityRepository) UpsertIdentityMapping(ctx context.Context, mapping bridge.IdentityMapping) error {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return err
	}

	row := model.IdentityMapping{
		ReviewID:    mapping.ReviewID,
		IdentityKey: mapping.IdentityKey,
		AccountName: mapping.AccountName,
		AppID:       mapping.AppID,
		CreatedAt:   mapping.CreatedAt,
		UpdatedAt:   mapping.UpdatedAt,
	}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "review_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"account_name", "app_id", "updated_at"}),
	}).Create(&row).Error; err != nil {
		return errs.Wrap(err, "upsert identity mapping")
	}
	return nil
}

func (r *IdentityRepository) GetMappingByReview(ctx context.Context, reviewID string) (bridge.IdentityMapping, bool, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return bridge.IdentityMapping{}, false, err
	}

	var row model.IdentityMapping
	if err := db.Where("review_id = ?", strings.TrimSpace(reviewID)).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return bridge.IdentityMapping{}, false, nil
		}
		return bridge.IdentityMapping{}, false, errs.Wrap(err, "query identity mapping by review")
	}
	return mapIdentityMapping(row), true, nil
}

func (r *IdentityRepository) GetMappingByIdentity(ctx context.Context, identityKey string) (bridge.IdentityMapping, bool, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return bridge.IdentityMapping{}, false, err
	}

	var row model.IdentityMapping
	if err := db.
		Where("identity_key = ?", strings.TrimSpace(identityKey)).
		Order("mapping_id asc").
		Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return bridge.IdentityMapping{}, false, nil
		}
		return bridge.IdentityMapping{}, false, errs.Wrap(err, "query identity mapping by identity")
	}
	return mapIdentityMapping(row), true, nil
}

func (r *IdentityRepository) CountIdentities(ctx context.Context) (int64, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return 0, err
	}

	var count int64
	if err := db.Model(&model.VirtualIdentity{}).Count(&count).Error; err != nil {
		return 0, errs.Wrap(err, "count virtual identities")
	}
	return count, nil
}

func (r *IdentityRepository) CountIdentityMappings(ctx context.Context) (int64, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return 0, err
	}

	var count int64
	if err := db.Model(&model.IdentityMapping{}).Count(&count).Error; err != nil {
		return 0, errs.Wrap(err, "count identity mappings")
	}
	return count, nil
}

func mapIdentity(row model.VirtualIdentity) bridge.VirtualIdentity {
	return bridge.VirtualIdentity{
		Key:          row.IdentityKey,
		DisplayName:  row.DisplayName,
		AvatarRef:    row.AvatarRef,
		Virtual:      row.Virtual,
		CreatedAt:    row.CreatedAt,
		LastActiveAt: row.LastActiveAt,
	}
}

func mapIdentityMapping(row model.IdentityMapping) bridge.IdentityMapping {
	return bridge.IdentityMapping{
		ReviewID:    row.ReviewID,
		IdentityKey: row.IdentityKey,
		AccountName: row.AccountName,
		AppID:       row.AppID,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
}
