package repository

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	mailkeep_errors "github.com/mailkeep/mailkeep/errors"
	"github.com/mailkeep/mailkeep/interfaces"
	"github.com/mailkeep/mailkeep/internal/models"
	"github.com/mailkeep/mailkeep/internal/tracing"
	"github.com/mailkeep/mailkeep/internal/utils"
)

type pendingOperationRepository struct {
	db *gorm.DB
}

func NewPendingOperationRepository(db *gorm.DB) interfaces.PendingOperationRepository {
	return &pendingOperationRepository{db: db}
}

func (r *pendingOperationRepository) Save(ctx context.Context, op *models.PendingOperation) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "pendingOperationRepository.Save")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	// One marker per (profile, directory, uid, kind, flag); repeating the same
	// local mutation must not queue a second replay.
	result := r.db.WithContext(ctx).
		Model(&models.PendingOperation{}).
		Where("profile_id = ? AND directory = ? AND imap_uid = ? AND kind = ? AND flag = ?",
			op.ProfileID, op.Directory, op.ImapUID, op.Kind, op.Flag).
		Updates(map[string]interface{}{
			"updated_at": utils.Now(),
		})

	if result.Error == nil && result.RowsAffected == 0 {
		result = r.db.WithContext(ctx).Create(op)
	}

	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return mailkeep_errors.Storage(result.Error)
	}
	return nil
}

func (r *pendingOperationRepository) ListByProfile(ctx context.Context, profileID string) ([]*models.PendingOperation, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "pendingOperationRepository.ListByProfile")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var ops []*models.PendingOperation
	if err := r.db.WithContext(ctx).
		Where("profile_id = ?", profileID).
		Order("created_at asc").
		Find(&ops).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return ops, nil
}

func (r *pendingOperationRepository) ListByDirectory(ctx context.Context, profileID, directory string) ([]*models.PendingOperation, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "pendingOperationRepository.ListByDirectory")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var ops []*models.PendingOperation
	if err := r.db.WithContext(ctx).
		Where("profile_id = ? AND directory = ?", profileID, directory).
		Order("created_at asc").
		Find(&ops).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return ops, nil
}

func (r *pendingOperationRepository) Delete(ctx context.Context, id string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "pendingOperationRepository.Delete")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	result := r.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&models.PendingOperation{})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return mailkeep_errors.Storage(result.Error)
	}
	return nil
}

func (r *pendingOperationRepository) RecordAttempt(ctx context.Context, id string, attemptErr string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "pendingOperationRepository.RecordAttempt")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	result := r.db.WithContext(ctx).
		Model(&models.PendingOperation{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": attemptErr,
			"updated_at": utils.Now(),
		})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return mailkeep_errors.Storage(result.Error)
	}
	return nil
}

func (r *pendingOperationRepository) DeleteByProfile(ctx context.Context, profileID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "pendingOperationRepository.DeleteByProfile")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	result := r.db.WithContext(ctx).
		Where("profile_id = ?", profileID).
		Delete(&models.PendingOperation{})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return mailkeep_errors.Storage(result.Error)
	}
	return nil
}
