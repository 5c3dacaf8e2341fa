package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"revbridge/internal/domain/bridge"
	"revbridge/internal/errs"
	"revbridge/internal/infrastructure/persistence/sqlite/model"
)

type ThreadRepository struct {
	db *gorm.DB
}

func NewThreadRepository(db *gorm.DB) *ThreadRepository {
	return &ThreadRepository{db: db}
}

func (r *ThreadRepository) CreateThread(ctx context.Context, thread bridge.Thread) (bridge.Thread, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return bridge.Thread{}, err
	}

	tagsJSON, err := marshalTags(thread.Tags)
	if err != nil {
		return bridge.Thread{}, err
	}

	row := model.Thread{
		ReviewID:     thread.ReviewID,
		AppID:        thread.AppID,
		RoomID:       thread.RoomID,
		RootEventID:  thread.RootEventID,
		Status:       string(thread.Status),
		Generation:   thread.Generation,
		MessageCount: thread.MessageCount,
		TagsJSON:     tagsJSON,
		CreatedAt:    thread.CreatedAt,
		LastActivity: thread.LastActivity,
		ResolvedBy:   thread.ResolvedBy,
		ResolveNote:  thread.ResolveNote,
	}
	if err := db.Create(&row).Error; err != nil {
		return bridge.Thread{}, errs.Wrap(err, "insert thread")
	}

	thread.ThreadID = row.ThreadID
	return thread, nil
}

func (r *ThreadRepository) GetThread(ctx context.Context, threadID uint64) (bridge.Thread, bool, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return bridge.Thread{}, false, err
	}

	var row model.Thread
	if err := db.Where("thread_id = ?", threadID).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return bridge.Thread{}, false, nil
		}
		return bridge.Thread{}, false, errs.Wrap(err, "query thread")
	}
	return r.hydrateThread(db, row)
}

func (r *ThreadRepository) GetThreadByReview(ctx context.Context, reviewID string) (bridge.Thread, bool, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return bridge.Thread{}, false, err
	}

	var row model.Thread
	if err := db.Where("review_id = ?", strings.TrimSpace(reviewID)).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return bridge.Thread{}, false, nil
		}
		return bridge.Thread{}, false, errs.Wrap(err, "query thread by review")
	}
	return r.hydrateThread(db, row)
}

func (r *ThreadRepository) GetThreadByEvent(ctx context.Context, eventID string) (bridge.Thread, bool, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return bridge.Thread{}, false, err
	}

	var message model.ThreadMessage
	if err := db.Where("event_id = ?", strings.TrimSpace(eventID)).Take(&message).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return bridge.Thread{}, false, nil
		}
		return bridge.Thread{}, false, errs.Wrap(err, "query thread message by event")
	}

	return r.GetThread(ctx, message.ThreadID)
}

func (r *ThreadRepository) ListThreadsByRoom(ctx context.Context, roomID string) ([]bridge.Thread, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	var rows []model.Thread
	if err := db.
		Where("room_id = ?", strings.TrimSpace(roomID)).
		Order("last_activity desc").
		Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query threads by room")
	}
	return r.hydrateThreads(db, rows)
}

func (r *ThreadRepository) ListThreadsByParticipant(ctx context.Context, userID string) ([]bridge.Thread, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	sub := db.Model(&model.ThreadParticipant{}).
		Select("thread_id").
		Where("user_id = ?", strings.TrimSpace(userID))

	var rows []model.Thread
	if err := db.
		Where("thread_id IN (?)", sub).
		Order("last_activity desc").
		Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query threads by participant")
	}
	return r.hydrateThreads(db, rows)
}

func (r *ThreadRepository) ListThreads(ctx context.Context) ([]bridge.Thread, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	var rows []model.Thread
	if err := db.Order("last_activity desc").Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query threads")
	}
	return r.hydrateThreads(db, rows)
}

func (r *ThreadRepository) UpdateThread(ctx context.Context, thread bridge.Thread) error {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return err
	}

	tagsJSON, err := marshalTags(thread.Tags)
	if err != nil {
		return err
	}

	result := db.Model(&model.Thread{}).
		Where("thread_id = ?", thread.ThreadID).
		Updates(map[string]any{
			"status":        string(thread.Status),
			"generation":    thread.Generation,
			"message_count": thread.MessageCount,
			"tags_json":     tagsJSON,
			"last_activity": thread.LastActivity,
			"resolved_by":   thread.ResolvedBy,
			"resolve_note":  thread.ResolveNote,
		})
	if result.Error != nil {
		return errs.Wrap(result.Error, "update thread")
	}
	if result.RowsAffected == 0 {
		return errs.Wrapf(gorm.ErrRecordNotFound, "update thread %d", thread.ThreadID)
	}
	return nil
}

func (r *ThreadRepository) AppendThreadMessage(ctx context.Context, message bridge.ThreadMessage) error {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return err
	}

	row := model.ThreadMessage{
		EventID:          message.EventID,
		ThreadID:         message.ThreadID,
		UserID:           message.UserID,
		Content:          message.Content,
		Kind:             message.Kind,
		BridgeOriginated: message.BridgeOriginated,
		CreatedAt:        message.CreatedAt,
	}
	if err := db.Create(&row).Error; err != nil {
		return errs.Wrap(err, "insert thread message")
	}
	return nil
}

func (r *ThreadRepository) ListThreadMessages(ctx context.Context, threadID uint64) ([]bridge.ThreadMessage, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	var rows []model.ThreadMessage
	if err := db.
		Where("thread_id = ?", threadID).
		Order("created_at asc").
		Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query thread messages")
	}

	items := make([]bridge.ThreadMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, bridge.ThreadMessage{
			EventID:          row.EventID,
			ThreadID:         row.ThreadID,
			UserID:           row.UserID,
			Content:          row.Content,
			Kind:             row.Kind,
			BridgeOriginated: row.BridgeOriginated,
			CreatedAt:        row.CreatedAt,
		})
	}
	return items, nil
}

func (r *ThreadRepository) AddParticipant(ctx context.Context, threadID uint64, userID string) error {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return err
	}

	row := model.ThreadParticipant{
		ThreadID: threadID,
		UserID:   strings.TrimSpace(userID),
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return errs.Wrap(err, "insert thread participant")
	}
	return nil
}

func (r *ThreadRepository) ListExpiredThreads(ctx context.Context, cutoff time.Time) ([]bridge.Thread, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	// Active threads are never swept, however old.
	var rows []model.Thread
	if err := db.
		Where("last_activity < ? AND status <> ?", cutoff, string(bridge.ThreadActive)).
		Order("thread_id asc").
		Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query expired threads")
	}
	return r.hydrateThreads(db, rows)
}

func (r *ThreadRepository) DeleteThread(ctx context.Context, threadID uint64) error {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return err
	}

	if err := db.Where("thread_id = ?", threadID).Delete(&model.ThreadMessage{}).Error; err != nil {
		return errs.Wrap(err, "delete thread messages")
	}
	if err := db.Where("thread_id = ?", threadID).Delete(&model.ThreadParticipant{}).Error; err != nil {
		return errs.Wrap(err, "delete thread participants")
	}
	if err := db.Where("thread_id = ?", threadID).Delete(&model.Thread{}).Error; err != nil {
		return errs.Wrap(err, "delete thread")
	}
	return nil
}

func (r *ThreadRepository) CountThreadsByStatus(ctx context.Context) (map[string]int64, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	var rows []struct {
		Status string
		Count  int64
	}
	if err := db.Model(&model.Thread{}).
		Select("status, count(*) as count").
		Group("status").
		Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "count threads by status")
	}

	byStatus := make(map[string]int64, len(rows))
	for _, row := range rows {
		byStatus[row.Status] = row.Count
	}
	return byStatus, nil
}

func (r *ThreadRepository) hydrateThread(db *gorm.DB, row model.Thread) (bridge.Thread, bool, error) {
	var participants []model.ThreadParticipant
	if err := db.
		Where("thread_id = ?", row.ThreadID).
		Order("user_id asc").
		Find(&participants).Error; err != nil {
		return bridge.Thread{}, false, errs.Wrap(err, "query thread participants")
	}

	thread, err := mapThread(row, participants)
	if err != nil {
		return bridge.Thread{}, false, err
	}
	return thread, true, nil
}

func (r *ThreadRepository) hydrateThreads(db *gorm.DB, rows []model.Thread) ([]bridge.Thread, error) {
	items := make([]bridge.Thread, 0, len(rows))
	for _, row := range rows {
		thread, _, err := r.hydrateThread(db, row)
		if err != nil {
			return nil, err
		}
		items = append(items, thread)
	}
	return items, nil
}

func mapThread(row model.Thread, participants []model.ThreadParticipant) (bridge.Thread, error) {
	var tags []string
	if row.TagsJSON != "" {
		if err := json.Unmarshal([]byte(row.TagsJSON), &tags); err != nil {
			return bridge.Thread{}, errs.Wrapf(err, "decode tags for thread %d", row.ThreadID)
		}
	}

	users := make([]string, 0, len(participants))
	for _, p := range participants {
		users = append(users, p.UserID)
	}

	return bridge.Thread{
		ThreadID:     row.ThreadID,
		ReviewID:     row.ReviewID,
		AppID:        row.AppID,
		RoomID:       row.RoomID,
		RootEventID:  row.RootEventID,
		Status:       bridge.ThreadStatus(row.Status),
		Generation:   row.Generation,
		MessageCount: row.MessageCount,
		Participants: users,
		Tags:         tags,
		CreatedAt:    row.CreatedAt,
		LastActivity: row.LastActivity,
		ResolvedBy:   row.ResolvedBy,
		ResolveNote:  row.ResolveNote,
	}, nil
}

func marshalTags(tags []string) (string, error) {
	if len(tags) == 0 {
		return "[]", nil
	}
	raw, err := json.Marshal(tags)
	if err != nil {
		return "", errs.Wrap(err, "encode thread tags")
	}
	return string(raw), nil
}
