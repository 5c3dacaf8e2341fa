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

type ReviewRepository struct {
	db *gorm.DB
}

func NewReviewRepository(db *gorm.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

func (r *ReviewRepository) UpsertReview(ctx context.Context, review bridge.Review) error {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return err
	}

	row := model.Review{
		ReviewID:     review.ID,
		AppID:        review.AppID,
		Author:       review.Author,
		Body:         review.Body,
		Rating:       review.Rating,
		Locale:       review.Locale,
		Device:       review.Device,
		OSVersion:    review.OSVersion,
		AppVersion:   review.AppVersion,
		CreatedAt:    review.CreatedAt,
		ModifiedAt:   review.ModifiedAt,
		HasReply:     review.HasReply,
		ReplyBody:    review.Reply.Body,
		ReplyModTime: review.Reply.ModifiedAt,
	}
	if err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "review_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"author", "body", "rating", "locale", "device", "os_version",
			"app_version", "modified_at", "has_reply", "reply_body", "reply_modified_at",
		}),
	}).Create(&row).Error; err != nil {
		return errs.Wrap(err, "upsert review")
	}
	return nil
}

func (r *ReviewRepository) GetReview(ctx context.Context, reviewID string) (bridge.Review, bool, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return bridge.Review{}, false, err
	}

	var row model.Review
	if err := db.Where("review_id = ?", strings.TrimSpace(reviewID)).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return bridge.Review{}, false, nil
		}
		return bridge.Review{}, false, errs.Wrap(err, "query review")
	}

	return bridge.Review{
		ID:         row.ReviewID,
		AppID:      row.AppID,
		Author:     row.Author,
		Body:       row.Body,
		Rating:     row.Rating,
		Locale:     row.Locale,
		Device:     row.Device,
		OSVersion:  row.OSVersion,
		AppVersion: row.AppVersion,
		CreatedAt:  row.CreatedAt,
		ModifiedAt: row.ModifiedAt,
		HasReply:   row.HasReply,
		Reply: bridge.ReviewReply{
			Body:       row.ReplyBody,
			ModifiedAt: row.ReplyModTime,
		},
	}, true, nil
}

func (r *ReviewRepository) CountReviews(ctx context.Context) (int64, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return 0, err
	}

	var count int64
	if err := db.Model(&model.Review{}).Count(&count).Error; err != nil {
		return 0, errs.Wrap(err, "count reviews")
	}
	return count, nil
}
