package model

import "time"

type MessageMapping struct {
	MappingID uint64    `gorm:"column:mapping_id;primaryKey;autoIncrement"`
	ReviewID  string    `gorm:"column:review_id;type:text;not null;index"`
	EventID   string    `gorm:"column:event_id;type:text;not null;uniqueIndex"`
	RoomID    string    `gorm:"column:room_id;type:text;not null;index"`
	Kind      string    `gorm:"column:kind;type:text;not null"`
	AppID     string    `gorm:"column:app_id;type:text;not null;index"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

func (MessageMapping) TableName() string {
	return "message_mappings"
}
