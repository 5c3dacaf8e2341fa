package model

import "time"

type VirtualIdentity struct {
	IdentityKey  string    `gorm:"column:identity_key;type:text;primaryKey"`
	DisplayName  string    `gorm:"column:display_name;type:text;not null"`
	AvatarRef    string    `gorm:"column:avatar_ref;type:text;not null;default:''"`
	Virtual      bool      `gorm:"column:virtual;not null;default:1"`
	CreatedAt    time.Time `gorm:"column:created_at;not null"`
	LastActiveAt time.Time `gorm:"column:last_active_at;not null;index"`
}

func (VirtualIdentity) TableName() string {
	return "virtual_identities"
}

type IdentityMapping struct {
	MappingID   uint64    `gorm:"column:mapping_id;primaryKey;autoIncrement"`
	ReviewID    string    `gorm:"column:review_id;type:text;not null;uniqueIndex"`
	IdentityKey string    `gorm:"column:identity_key;type:text;not null;index"`
	AccountName string    `gorm:"column:account_name;type:text;not null"`
	AppID       string    `gorm:"column:app_id;type:text;not null;index"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
	UpdatedAt   time.Time `gorm:"column:updated_at;not null"`
}

func (IdentityMapping) TableName() string {
	return "identity_mappings"
}
