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

type RoomRepository struct {
	db *gorm.DB
}

func NewRoomRepository(db *gorm.DB) *RoomRepository {
	return &RoomRepository{db: db}
}

func (r *RoomRepository) UpsertRoom(ctx context.Context, room bridge.ChatRoom) error {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return err
	}

	row := model.ChatRoom{
		RoomID:       room.RoomID,
		Name:         room.Name,
		Topic:        room.Topic,
		Joined:       room.Joined,
		CreatedAt:    room.CreatedAt,
		LastActiveAt: room.LastActiveAt,
	}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "room_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "topic", "joined", "last_active_at"}),
	}).Create(&row).Error; err != nil {
		return errs.Wrap(err, "upsert chat room")
	}
	return nil
}

func (r *RoomRepository) GetRoom(ctx context.Context, roomID string) (bridge.ChatRoom, bool, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return bridge.ChatRoom{}, false, err
	}

	var row model.ChatRoom
	if err := db.Where("room_id = ?", strings.TrimSpace(roomID)).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return bridge.ChatRoom{}, false, nil
		}
		return bridge.ChatRoom{}, false, errs.Wrap(err, "query chat room")
	}
	return mapRoom(row), true, nil
}

func (r *RoomRepository) ListRooms(ctx context.Context) ([]bridge.ChatRoom, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	var rows []model.ChatRoom
	if err := db.Order("room_id asc").Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query chat rooms")
	}

	items := make([]bridge.ChatRoom, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapRoom(row))
	}
	return items, nil
}

func (r *RoomRepository) UpsertRoomMapping(ctx context.Context, mapping bridge.RoomMapping) error {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return err
	}

	row := model.RoomMapping{
		AppID:              mapping.AppID,
		RoomID:             mapping.RoomID,
		RoomType:           mapping.RoomType,
		AppName:            mapping.AppName,
		ForwardReviews:     mapping.Policy.ForwardReviews,
		AllowReplies:       mapping.Policy.AllowReplies,
		MinRatingToForward: mapping.Policy.MinRatingToForward,
		UpdatesOnly:        mapping.Policy.UpdatesOnly,
		CreatedAt:          mapping.CreatedAt,
		UpdatedAt:          mapping.UpdatedAt,
	}
	if err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "app_id"}, {Name: "room_id"}, {Name: "room_type"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"app_name", "forward_reviews", "allow_replies", "min_rating_to_forward", "updates_only", "updated_at",
		}),
	}).Create(&row).Error; err != nil {
		return errs.Wrap(err, "upsert room mapping")
	}
	return nil
}

func (r *RoomRepository) GetMappingForRoom(ctx context.Context, roomID string) (bridge.RoomMapping, bool, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return bridge.RoomMapping{}, false, err
	}

	var row model.RoomMapping
	if err := db.
		Where("room_id = ?", strings.TrimSpace(roomID)).
		Order("mapping_id asc").
		Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return bridge.RoomMapping{}, false, nil
		}
		return bridge.RoomMapping{}, false, errs.Wrap(err, "query room mapping")
	}
	return mapRoomMapping(row), true, nil
}

func (r *RoomRepository) ListMappingsForApp(ctx context.Context, appID string) ([]bridge.RoomMapping, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	var rows []model.RoomMapping
	if err := db.
		Where("app_id = ?", strings.TrimSpace(appID)).
		Order("mapping_id asc").
		Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query room mappings by app")
	}

	items := make([]bridge.RoomMapping, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapRoomMapping(row))
	}
	return items, nil
}

func (r *RoomRepository) ListRoomMappings(ctx context.Context) ([]bridge.RoomMapping, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	var rows []model.RoomMapping
	if err := db.Order("mapping_id asc").Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query room mappings")
	}

	items := make([]bridge.RoomMapping, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapRoomMapping(row))
	}
	return items, nil
}

func (r *RoomRepository) DeleteMappingsForRoom(ctx context.Context, roomID string) (int64, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return 0, err
	}

	result := db.Where("room_id = ?", strings.TrimSpace(roomID)).Delete(&model.RoomMapping{})
	if result.Error != nil {
		return 0, errs.Wrap(result.Error, "delete room mappings")
	}
	return result.RowsAffected, nil
}

func mapRoom(row model.ChatRoom) bridge.ChatRoom {
	return bridge.ChatRoom{
		RoomID:       row.RoomID,
		Name:         row.Name,
		Topic:        row.Topic,
		Joined:       row.Joined,
		CreatedAt:    row.CreatedAt,
		LastActiveAt: row.LastActiveAt,
	}
}

func mapRoomMapping(row model.RoomMapping) bridge.RoomMapping {
	return bridge.RoomMapping{
		AppID:    row.AppID,
		RoomID:   row.RoomID,
		AppName:  row.AppName,
		RoomType: row.RoomType,
		Policy: bridge.ForwardPolicy{
			ForwardReviews:     row.ForwardReviews,
			AllowReplies:       row.AllowReplies,
			MinRatingToForward: row.MinRatingToForward,
			UpdatesOnly:        row.UpdatesOnly,
		},
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}
