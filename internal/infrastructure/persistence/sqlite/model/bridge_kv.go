package model

import "time"

type BridgeKV struct {
	Key       string    `gorm:"column:key;type:text;primaryKey"`
	Value     string    `gorm:"column:value;type:text;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
	// ExpiresAt zero means the entry never expires.
	ExpiresAt time.Time `gorm:"column:expires_at"`
}

func (BridgeKV) TableName() string {
	return "bridge_kv"
}
