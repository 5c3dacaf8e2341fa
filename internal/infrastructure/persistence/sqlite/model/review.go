package model

import "time"

type Review struct {
	ReviewID     string    `gorm:"column:review_id;type:text;primaryKey"`
	AppID        string    `gorm:"column:app_id;type:text;not null;index"`
	Author       string    `gorm:"column:author;type:text;not null;default:''"`
	Body         string    `gorm:"column:body;type:text;not null;default:''"`
	Rating       int       `gorm:"column:rating;not null;default:0"`
	Locale       string    `gorm:"column:locale;type:text;not null;default:''"`
	Device       string    `gorm:"column:device;type:text;not null;default:''"`
	OSVersion    string    `gorm:"column:os_version;type:text;not null;default:''"`
	AppVersion   string    `gorm:"column:app_version;type:text;not null;default:''"`
	CreatedAt    time.Time `gorm:"column:created_at;not null"`
	ModifiedAt   time.Time `gorm:"column:modified_at;not null"`
	HasReply     bool      `gorm:"column:has_reply;not null;default:0"`
	ReplyBody    string    `gorm:"column:reply_body;type:text;not null;default:''"`
	ReplyModTime time.Time `gorm:"column:reply_modified_at"`
}

func (Review) TableName() string {
	return "reviews"
}
