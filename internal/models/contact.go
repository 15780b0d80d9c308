package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/mailkeep/mailkeep/internal/utils"
)

// Contact is an address-book entry, cached locally with no remote sync.
type Contact struct {
	ID           string `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	DisplayName  string `gorm:"column:display_name;type:varchar(255)" json:"displayName"`
	EmailAddress string `gorm:"column:email_address;type:varchar(255);uniqueIndex;not null" json:"emailAddress"`
	Phone        string `gorm:"column:phone;type:varchar(50)" json:"phone"`
	Notes        string `gorm:"column:notes;type:text" json:"notes"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
}

func (Contact) TableName() string {
	return "contacts"
}

func (c *Contact) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = utils.GenerateNanoIDWithPrefix("cont", 16)
	}
	return nil
}
