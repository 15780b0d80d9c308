package models

import "time"

// Setting is a process-wide configuration entry, loaded once at startup and
// saved on explicit request.
type Setting struct {
	Key   string `gorm:"column:key;type:varchar(255);primaryKey"`
	Value string `gorm:"column:value;type:text"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp"`
}

func (Setting) TableName() string {
	return "settings"
}
