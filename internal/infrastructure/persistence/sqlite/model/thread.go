package model

import "time"

type Thread struct {
	ThreadID     uint64    `gorm:"column:thread_id;primaryKey;autoIncrement"`
	ReviewID     string    `gorm:"column:review_id;type:text;not null;uniqueIndex"`
	AppID        string    `gorm:"column:app_id;type:text;not null;index"`
	RoomID       string    `gorm:"column:room_id;type:text;not null;index"`
	RootEventID  string    `gorm:"column:root_event_id;type:text;not null"`
	Status       string    `gorm:"column:status;type:text;not null;index"`
	Generation   uint64    `gorm:"column:generation;not null;default:0"`
	MessageCount int       `gorm:"column:message_count;not null;default:0"`
	TagsJSON     string    `gorm:"column:tags_json;type:text;not null;default:'[]'"`
	CreatedAt    time.Time `gorm:"column:created_at;not null"`
	LastActivity time.Time `gorm:"column:last_activity;not null;index"`
	ResolvedBy   string    `gorm:"column:resolved_by;type:text;not null;default:''"`
	ResolveNote  string    `gorm:"column:resolve_note;type:text;not null;default:''"`
}

func (Thread) TableName() string {
	return "threads"
}

type ThreadMessage struct {
	EventID          string    `gorm:"column:event_id;type:text;primaryKey"`
	ThreadID         uint64    `gorm:"column:thread_id;not null;index"`
	UserID           string    `gorm:"column:user_id;type:text;not null;index"`
	Content          string    `gorm:"column:content;type:text;not null"`
	Kind             string    `gorm:"column:kind;type:text;not null"`
	BridgeOriginated bool      `gorm:"column:bridge_originated;not null;default:0"`
	CreatedAt        time.Time `gorm:"column:created_at;not null"`
}

func (ThreadMessage) TableName() string {
	return "thread_messages"
}

type ThreadParticipant struct {
	ThreadID uint64 `gorm:"column:thread_id;primaryKey;autoIncrement:false"`
	UserID   string `gorm:"column:user_id;type:text;primaryKey"`
}

func (ThreadParticipant) TableName() string {
	return "thread_participants"
}
