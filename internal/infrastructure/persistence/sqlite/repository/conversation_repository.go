package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"revbridge/internal/domain/bridge"
	"revbridge/internal/errs"
	"revbridge/internal/infrastructure/persistence/sqlite/model"
)

type ConversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

func (r *ConversationRepository) CreateMessageMapping(ctx context.Context, mapping bridge.MessageMapping) (bool, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return false, err
	}

	row := model.MessageMapping{
		ReviewID:  mapping.ReviewID,
		EventID:   mapping.EventID,
		RoomID:    mapping.RoomID,
		Kind:      mapping.Kind,
		AppID:     mapping.AppID,
		CreatedAt: mapping.CreatedAt,
		UpdatedAt: mapping.UpdatedAt,
	}
	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(&row)
	if result.Error != nil {
		return false, errs.Wrap(result.Error, "insert message mapping")
	}
	return result.RowsAffected > 0, nil
}

func (r *ConversationRepository) GetMappingByEvent(ctx context.Context, eventID string) (bridge.MessageMapping, bool, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return bridge.MessageMapping{}, false, err
	}

	var row model.MessageMapping
	if err := db.Where("event_id = ?", strings.TrimSpace(eventID)).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return bridge.MessageMapping{}, false, nil
		}
		return bridge.MessageMapping{}, false, errs.Wrap(err, "query message mapping by event")
	}
	return mapMessageMapping(row), true, nil
}

func (r *ConversationRepository) GetLatestMappingForReview(ctx context.Context, reviewID string) (bridge.MessageMapping, bool, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return bridge.MessageMapping{}, false, err
	}

	var row model.MessageMapping
	if err := db.
		Where("review_id = ?", strings.TrimSpace(reviewID)).
		Order("mapping_id desc").
		Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return bridge.MessageMapping{}, false, nil
		}
		return bridge.MessageMapping{}, false, errs.Wrap(err, "query message mapping by review")
	}
	return mapMessageMapping(row), true, nil
}

func (r *ConversationRepository) ListMappingsForReview(ctx context.Context, reviewID string) ([]bridge.MessageMapping, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	var rows []model.MessageMapping
	if err := db.
		Where("review_id = ?", strings.TrimSpace(reviewID)).
		Order("mapping_id asc").
		Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query message mappings for review")
	}

	items := make([]bridge.MessageMapping, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapMessageMapping(row))
	}
	return items, nil
}

func (r *ConversationRepository) CountMessageMappings(ctx context.Context) (int64, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return 0, err
	}

	var count int64
	if err := db.Model(&model.MessageMapping{}).Count(&count).Error; err != nil {
		return 0, errs.Wrap(err, "count message mappings")
	}
	return count, nil
}

func (r *ConversationRepository) CountMessageMappingsByKind(ctx context.Context) (map[string]int64, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	var rows []struct {
		Kind  string
		Count int64
	}
	if err := db.Model(&model.MessageMapping{}).
		Select("kind, count(*) as count").
		Group("kind").
		Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "count message mappings by kind")
	}

	byKind := make(map[string]int64, len(rows))
	for _, row := range rows {
		byKind[row.Kind] = row.Count
	}
	return byKind, nil
}

func mapMessageMapping(row model.MessageMapping) bridge.MessageMapping {
	return bridge.MessageMapping{
		ReviewID:  row.ReviewID,
		EventID:   row.EventID,
		RoomID:    row.RoomID,
		Kind:      row.Kind,
		AppID:     row.AppID,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}
