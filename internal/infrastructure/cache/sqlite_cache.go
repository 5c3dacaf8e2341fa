package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"revbridge/internal/errs"
	"revbridge/internal/infrastructure/persistence/sqlite/model"
	"revbridge/internal/ports"
)

// SQLiteCache backs ports.Cache with the bridge_kv table, so single-node
// deployments need no extra process. Expiry is lazy: Get treats a stale row
// as missing and removes it in passing.
type SQLiteCache struct {
	db  *gorm.DB
	now func() time.Time
}

var _ ports.Cache = (*SQLiteCache)(nil)

func NewSQLiteCache(db *gorm.DB) *SQLiteCache {
	return &SQLiteCache{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (c *SQLiteCache) Get(ctx context.Context, key string) (string, bool, error) {
	k, err := c.checkArgs(ctx, key)
	if err != nil {
		return "", false, err
	}

	var row model.BridgeKV
	if err := c.db.WithContext(ctx).Where("key = ?", k).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, errs.Wrap(err, "query cache by key")
	}

	if !row.ExpiresAt.IsZero() && !row.ExpiresAt.After(c.now()) {
		// Best effort; an expired row left behind is re-judged next Get.
		_ = c.db.WithContext(ctx).Where("key = ?", k).Delete(&model.BridgeKV{}).Error
		return "", false, nil
	}

	return row.Value, true, nil
}

func (c *SQLiteCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	k, err := c.checkArgs(ctx, key)
	if err != nil {
		return err
	}

	row := model.BridgeKV{
		Key:       k,
		Value:     value,
		UpdatedAt: c.now(),
	}
	if ttl > 0 {
		row.ExpiresAt = row.UpdatedAt.Add(ttl)
	}

	if err := c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.Assignments(map[string]any{
			"value":      row.Value,
			"updated_at": row.UpdatedAt,
			"expires_at": row.ExpiresAt,
		}),
	}).Create(&row).Error; err != nil {
		return errs.Wrap(err, "upsert cache key")
	}
	return nil
}

func (c *SQLiteCache) Delete(ctx context.Context, key string) error {
	k, err := c.checkArgs(ctx, key)
	if err != nil {
		return err
	}

	if err := c.db.WithContext(ctx).Where("key = ?", k).Delete(&model.BridgeKV{}).Error; err != nil {
		return errs.Wrap(err, "delete cache key")
	}
	return nil
}

func (c *SQLiteCache) checkArgs(ctx context.Context, key string) (string, error) {
	if ctx == nil {
		return "", errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return "", errs.Wrap(err, "check context")
	}
	k := strings.TrimSpace(key)
	if k == "" {
		return "", errors.New("key is required")
	}
	return k, nil
}
