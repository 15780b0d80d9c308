package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/mailkeep/mailkeep/internal/utils"
)

// Directory is a remote mail folder under a profile together with its cached
// sync state. (ProfileID, Name) is the natural key. A UIDVALIDITY change on
// the server invalidates every cached UID in the folder.
type Directory struct {
	ID        string `gorm:"column:id;type:varchar(50);primaryKey"`
	ProfileID string `gorm:"column:profile_id;type:varchar(50);uniqueIndex:idx_directory_profile_name;not null"`
	Name      string `gorm:"column:name;type:varchar(100);uniqueIndex:idx_directory_profile_name;not null"`

	UIDValidity uint32 `gorm:"column:uid_validity"`
	LastUID     uint32 `gorm:"column:last_uid"`
	TotalCount  int    `gorm:"column:total_count"`
	UnreadCount int    `gorm:"column:unread_count"`

	LastRefresh *time.Time `gorm:"column:last_refresh;type:timestamp"`
	Stale       bool       `gorm:"column:stale;default:true"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp"`
}

func (Directory) TableName() string {
	return "directories"
}

func (d *Directory) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = utils.GenerateNanoIDWithPrefix("dir", 16)
	}
	return nil
}

// IsStale reports whether the cached view needs a remote refresh: never
// refreshed, explicitly flagged, or older than the given bound.
func (d *Directory) IsStale(bound time.Duration) bool {
	if d.Stale || d.LastRefresh == nil {
		return true
	}
	return time.Since(*d.LastRefresh) > bound
}
