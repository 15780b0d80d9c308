package models

import (
	"fmt"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/mailkeep/mailkeep/internal/enum"
	"github.com/mailkeep/mailkeep/internal/utils"
)

// Email represents a cached email message: the header columns are always
// populated once the message is known; the body columns are filled in lazily
// on the first body fetch.
type Email struct {
	ID        string `gorm:"column:id;type:varchar(50);primaryKey"`
	ProfileID string `gorm:"column:profile_id;type:varchar(50);index;not null"`
	Directory string `gorm:"column:directory;type:varchar(100);index;not null"`
	ImapUID   uint32 `gorm:"column:imap_uid;index"`
	MessageID string `gorm:"column:message_id;type:varchar(255);index;not null"`
	InReplyTo string `gorm:"column:in_reply_to;type:varchar(255);index"`

	// Core email metadata
	Subject      string         `gorm:"column:subject;type:varchar(1000)"`
	FromAddress  string         `gorm:"column:from_address;type:varchar(255);index"`
	FromName     string         `gorm:"column:from_name;type:varchar(255)"`
	ReplyTo      string         `gorm:"column:reply_to;type:varchar(255)"`
	ToAddresses  pq.StringArray `gorm:"column:to_addresses;type:text[]"`
	CcAddresses  pq.StringArray `gorm:"column:cc_addresses;type:text[]"`
	BccAddresses pq.StringArray `gorm:"column:bcc_addresses;type:text[]"`

	// Time information
	SentAt        *time.Time `gorm:"column:sent_at;type:timestamp;index"`
	ReceivedAt    *time.Time `gorm:"column:received_at;type:timestamp;index"`
	LastAttemptAt *time.Time `gorm:"column:last_attempt_at;type:timestamp"`

	// Content
	BodyText   string `gorm:"column:body_text;type:text"`
	BodyHTML   string `gorm:"column:body_html;type:text"`
	BodyCached bool   `gorm:"column:body_cached;default:false"`

	// Flags
	Flags pq.StringArray `gorm:"column:flags;type:text[]"`

	// Residual headers not covered by named columns
	RawHeaders JSONMap `gorm:"column:raw_headers;type:jsonb"`

	Direction    enum.EmailDirection `gorm:"column:direction;type:varchar(50);index"`
	Status       enum.EmailStatus    `gorm:"column:status;type:varchar(50);index"`
	StatusDetail string              `gorm:"column:status_detail;type:text"`

	// Standard timestamps
	CreatedAt time.Time      `gorm:"column:created_at;type:timestamp;default:current_timestamp"`
	UpdatedAt time.Time      `gorm:"column:updated_at;type:timestamp;default:current_timestamp"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index"`
}

func (Email) TableName() string {
	return "emails"
}

func (e *Email) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = utils.GenerateNanoIDWithPrefix("email", 24)
	}
	return nil
}

// HasFlag reports whether the cached flag set contains the given flag.
func (e *Email) HasFlag(flag enum.EmailFlag) bool {
	return utils.ContainsString(flag.String(), e.Flags)
}

// SetFlag adds or removes a flag from the cached flag set. Returns false if
// the set already had the requested state, so callers can skip no-op writes.
func (e *Email) SetFlag(flag enum.EmailFlag, value bool) bool {
	has := e.HasFlag(flag)
	if has == value {
		return false
	}
	if value {
		e.Flags = append(e.Flags, flag.String())
		return true
	}
	kept := make(pq.StringArray, 0, len(e.Flags))
	for _, f := range e.Flags {
		if f != flag.String() {
			kept = append(kept, f)
		}
	}
	e.Flags = kept
	return true
}

// AllRecipients returns To, Cc and Bcc addresses as one list.
func (e *Email) AllRecipients() []string {
	recipients := make([]string, 0, len(e.ToAddresses)+len(e.CcAddresses)+len(e.BccAddresses))
	recipients = append(recipients, e.ToAddresses...)
	recipients = append(recipients, e.CcAddresses...)
	recipients = append(recipients, e.BccAddresses...)
	return recipients
}

// HasRichContent reports whether the message needs a multipart MIME build.
func (e *Email) HasRichContent() bool {
	return e.BodyHTML != ""
}

// BuildHeaders produces the outbound header map for SMTP submission.
func (e *Email) BuildHeaders() map[string]string {
	headers := map[string]string{
		"From":         e.FromHeader(),
		"To":           utils.JoinAddresses(e.ToAddresses),
		"Subject":      e.Subject,
		"Message-ID":   e.MessageID,
		"Date":         time.Now().UTC().Format(time.RFC1123Z),
		"MIME-Version": "1.0",
	}
	if len(e.CcAddresses) > 0 {
		headers["Cc"] = utils.JoinAddresses(e.CcAddresses)
	}
	if e.ReplyTo != "" {
		headers["Reply-To"] = e.ReplyTo
	}
	if e.InReplyTo != "" {
		headers["In-Reply-To"] = fmt.Sprintf("<%s>", e.InReplyTo)
	}
	return headers
}

// FromHeader renders the From header with an optional display name.
func (e *Email) FromHeader() string {
	if e.FromName == "" {
		return e.FromAddress
	}
	return fmt.Sprintf("%q <%s>", e.FromName, e.FromAddress)
}
