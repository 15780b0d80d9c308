package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/mailkeep/mailkeep/internal/enum"
	"github.com/mailkeep/mailkeep/internal/utils"
)

// Profile is a configured mail account: identity plus the IMAP and SMTP
// server settings needed to reach it. The email address is the natural key.
type Profile struct {
	ID           string `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	DisplayName  string `gorm:"column:display_name;type:varchar(255)" json:"displayName"`
	EmailAddress string `gorm:"column:email_address;type:varchar(255);uniqueIndex;not null" json:"emailAddress"`
	// IMAP Configuration
	ImapServer   string             `gorm:"column:imap_server;type:varchar(255);not null" json:"imapServer"`
	ImapPort     int                `gorm:"column:imap_port;not null" json:"imapPort"`
	ImapUsername string             `gorm:"column:imap_username;type:varchar(255);not null" json:"imapUsername"`
	ImapPassword string             `gorm:"column:imap_password;type:varchar(255);not null" json:"imapPassword"`
	ImapSecurity enum.EmailSecurity `gorm:"column:imap_security;type:varchar(50);default:tls" json:"imapSecurity"`
	// SMTP Configuration
	SmtpServer   string             `gorm:"column:smtp_server;type:varchar(255);not null" json:"smtpServer"`
	SmtpPort     int                `gorm:"column:smtp_port;not null" json:"smtpPort"`
	SmtpUsername string             `gorm:"column:smtp_username;type:varchar(255);not null" json:"smtpUsername"`
	SmtpPassword string             `gorm:"column:smtp_password;type:varchar(255);not null" json:"smtpPassword"`
	SmtpSecurity enum.EmailSecurity `gorm:"column:smtp_security;type:varchar(50);default:startTLS" json:"smtpSecurity"`
	// Other Configuration
	SentFolder string `gorm:"column:sent_folder;type:varchar(100);default:Sent" json:"sentFolder"`
	// Status Information
	LastSynced       *time.Time            `gorm:"column:last_synced;type:timestamp" json:"lastSynced"`
	ConnectionStatus enum.ConnectionStatus `gorm:"column:connection_status;type:varchar(50)" json:"connectionStatus"`
	ErrorMessage     string                `gorm:"column:error_message;type:text" json:"errorMessage"`
	// Standard timestamps
	CreatedAt time.Time      `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time      `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

func (Profile) TableName() string {
	return "profiles"
}

func (p *Profile) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = utils.GenerateNanoIDWithPrefix("prof", 16)
	}
	return nil
}
