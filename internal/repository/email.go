package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	mailkeep_errors "github.com/mailkeep/mailkeep/errors"
	"github.com/mailkeep/mailkeep/interfaces"
	"github.com/mailkeep/mailkeep/internal/models"
	"github.com/mailkeep/mailkeep/internal/tracing"
	"github.com/mailkeep/mailkeep/internal/utils"
)

type emailRepository struct {
	db *gorm.DB
}

func NewEmailRepository(db *gorm.DB) interfaces.EmailRepository {
	return &emailRepository{db: db}
}

func (r *emailRepository) UpsertHeader(ctx context.Context, email *models.Email) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailRepository.UpsertHeader")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// A known message-id in another directory means the message moved;
		// re-point the existing row instead of duplicating it.
		if email.MessageID != "" {
			var byMessageID models.Email
			err := tx.Where("profile_id = ? AND message_id = ?", email.ProfileID, email.MessageID).
				First(&byMessageID).Error
			if err == nil {
				if byMessageID.Directory != email.Directory || byMessageID.ImapUID != email.ImapUID {
					span.SetTag("moved", true)
				}
				return tx.Model(&models.Email{}).Where("id = ?", byMessageID.ID).
					Updates(headerColumns(email)).Error
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}

		var byUID models.Email
		err := tx.Where("profile_id = ? AND directory = ? AND imap_uid = ?",
			email.ProfileID, email.Directory, email.ImapUID).
			First(&byUID).Error
		if err == nil {
			return tx.Model(&models.Email{}).Where("id = ?", byUID.ID).
				Updates(headerColumns(email)).Error
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		return tx.Create(email).Error
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return mailkeep_errors.Storage(err)
	}
	return nil
}

func headerColumns(email *models.Email) map[string]interface{} {
	return map[string]interface{}{
		"directory":    email.Directory,
		"imap_uid":     email.ImapUID,
		"message_id":   email.MessageID,
		"in_reply_to":  email.InReplyTo,
		"subject":      email.Subject,
		"from_address": email.FromAddress,
		"from_name":    email.FromName,
		"reply_to":     email.ReplyTo,
		"to_addresses": email.ToAddresses,
		"cc_addresses": email.CcAddresses,
		"sent_at":      email.SentAt,
		"received_at":  email.ReceivedAt,
		"flags":        email.Flags,
		"raw_headers":  email.RawHeaders,
		"direction":    email.Direction,
		"status":       email.Status,
		"updated_at":   utils.Now(),
	}
}

func (r *emailRepository) Update(ctx context.Context, email *models.Email) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailRepository.Update")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	result := r.db.WithContext(ctx).Save(email)
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return mailkeep_errors.Storage(result.Error)
	}
	return nil
}

func (r *emailRepository) GetByUID(ctx context.Context, profileID, directory string, uid uint32) (*models.Email, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailRepository.GetByUID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var email models.Email
	if err := r.db.WithContext(ctx).
		Where("profile_id = ? AND directory = ? AND imap_uid = ?", profileID, directory, uid).
		First(&email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &email, nil
}

func (r *emailRepository) GetByMessageID(ctx context.Context, profileID, messageID string) (*models.Email, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailRepository.GetByMessageID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var email models.Email
	if err := r.db.WithContext(ctx).
		Where("profile_id = ? AND message_id = ?", profileID, utils.NormalizeMessageID(messageID)).
		First(&email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &email, nil
}

func (r *emailRepository) ListByDirectory(ctx context.Context, profileID, directory string) ([]*models.Email, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailRepository.ListByDirectory")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var emails []*models.Email
	if err := r.db.WithContext(ctx).
		Where("profile_id = ? AND directory = ?", profileID, directory).
		Order("COALESCE(received_at, sent_at, created_at) DESC").
		Find(&emails).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return emails, nil
}

func (r *emailRepository) SearchLocal(ctx context.Context, profileID, directory, term string) ([]*models.Email, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailRepository.SearchLocal")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	pattern := "%" + escapeLike(term) + "%"
	query := r.db.WithContext(ctx).
		Where("profile_id = ?", profileID).
		Where("subject ILIKE ? OR from_address ILIKE ? OR from_name ILIKE ? OR body_text ILIKE ?",
			pattern, pattern, pattern, pattern)
	if directory != "" {
		query = query.Where("directory = ?", directory)
	}

	var emails []*models.Email
	if err := query.
		Order("COALESCE(received_at, sent_at, created_at) DESC").
		Find(&emails).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return emails, nil
}

func escapeLike(term string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(term)
}

func (r *emailRepository) Delete(ctx context.Context, profileID, directory string, uid uint32) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailRepository.Delete")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	result := r.db.WithContext(ctx).
		Where("profile_id = ? AND directory = ? AND imap_uid = ?", profileID, directory, uid).
		Delete(&models.Email{})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return mailkeep_errors.Storage(result.Error)
	}
	return nil
}

func (r *emailRepository) DeleteByDirectory(ctx context.Context, profileID, directory string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailRepository.DeleteByDirectory")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	result := r.db.WithContext(ctx).
		Where("profile_id = ? AND directory = ?", profileID, directory).
		Delete(&models.Email{})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return mailkeep_errors.Storage(result.Error)
	}
	return nil
}

func (r *emailRepository) DeleteByProfile(ctx context.Context, profileID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailRepository.DeleteByProfile")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	result := r.db.WithContext(ctx).
		Where("profile_id = ?", profileID).
		Delete(&models.Email{})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return mailkeep_errors.Storage(result.Error)
	}
	return nil
}
