package model

import "time"

type ChatRoom struct {
	RoomID       string    `gorm:"column:room_id;type:text;primaryKey"`
	Name         string    `gorm:"column:name;type:text;not null;default:''"`
	Topic        string    `gorm:"column:topic;type:text;not null;default:''"`
	Joined       bool      `gorm:"column:joined;not null;default:0"`
	CreatedAt    time.Time `gorm:"column:created_at;not null"`
	LastActiveAt time.Time `gorm:"column:last_active_at;not null"`
}

func (ChatRoom) TableName() string {
	return "chat_rooms"
}

type RoomMapping struct {
	MappingID          uint64    `gorm:"column:mapping_id;primaryKey;autoIncrement"`
	AppID              string    `gorm:"column:app_id;type:text;not null;uniqueIndex:idx_room_mappings_key,priority:1;index"`
	RoomID             string    `gorm:"column:room_id;type:text;not null;uniqueIndex:idx_room_mappings_key,priority:2;index"`
	RoomType           string    `gorm:"column:room_type;type:text;not null;uniqueIndex:idx_room_mappings_key,priority:3"`
	AppName            string    `gorm:"column:app_name;type:text;not null;default:''"`
	ForwardReviews     bool      `gorm:"column:forward_reviews;not null;default:1"`
	AllowReplies       bool      `gorm:"column:allow_replies;not null;default:1"`
	MinRatingToForward int       `gorm:"column:min_rating_to_forward;not null;default:0"`
	UpdatesOnly        bool      `gorm:"column:updates_only;not null;default:0"`
	CreatedAt          time.Time `gorm:"column:created_at;not null"`
	UpdatedAt          time.Time `gorm:"column:updated_at;not null"`
}

func (RoomMapping) TableName() string {
	return "room_mappings"
}
