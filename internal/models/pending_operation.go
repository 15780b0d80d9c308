package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/mailkeep/mailkeep/internal/enum"
	"github.com/mailkeep/mailkeep/internal/utils"
)

// PendingOperation records a mutation applied to the cache but not yet
// confirmed by the remote session. Cleared on confirmation, retried on the
// next successful connection.
type PendingOperation struct {
	ID        string                    `gorm:"column:id;type:varchar(50);primaryKey"`
	ProfileID string                    `gorm:"column:profile_id;type:varchar(50);index;not null"`
	Directory string                    `gorm:"column:directory;type:varchar(100);index;not null"`
	ImapUID   uint32                    `gorm:"column:imap_uid;not null"`
	Kind      enum.PendingOperationKind `gorm:"column:kind;type:varchar(50);not null"`
	Flag      string                    `gorm:"column:flag;type:varchar(50)"`
	Attempts  int                       `gorm:"column:attempts;default:0"`
	LastError string                    `gorm:"column:last_error;type:text"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp"`
}

func (PendingOperation) TableName() string {
	return "pending_operations"
}

func (p *PendingOperation) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = utils.GenerateNanoIDWithPrefix("pend", 16)
	}
	return nil
}
