package database

import (
	"time"

	"gorm.io/datatypes"
)

// User 表示系统中的账号，以邮箱为主键。
type User struct {
	Email        string `gorm:"primaryKey;size:255"`
	Name         string `gorm:"size:255"`
	PasswordHash string `gorm:"size:255"`
	CreatedAt    time.Time
}

// Character 表示用户创建的角色及其参考图片。
type Character struct {
	ID          string `gorm:"primaryKey;size:36"`
	OwnerEmail  string `gorm:"index;size:255"`
	Name        string `gorm:"size:255"`
	Description string `gorm:"type:text"`
	ImageKeys   datatypes.JSONSlice[string]
	CreatedAt   time.Time
}

// Dream 表示一次视频生成任务及其状态。
// IdempotencyKey 为空时存 NULL，唯一索引不会相互冲突。
type Dream struct {
	ID             string  `gorm:"primaryKey;size:36"`
	OwnerEmail     string  `gorm:"size:255;index;uniqueIndex:ux_dreams_owner_idempotency,priority:1"`
	IdempotencyKey *string `gorm:"size:128;uniqueIndex:ux_dreams_owner_idempotency,priority:2"`
	CharacterID    string  `gorm:"size:36;index"`
	CharacterName  string  `gorm:"size:255"`
	Prompt         string  `gorm:"type:text"`
	JobHandle      string  `gorm:"size:512"`
	Status         string  `gorm:"size:32;index"`
	VideoRef       string  `gorm:"size:1024"`
	ErrorDetail    string  `gorm:"type:text"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
