package repository

import (
	"context"
	"errors"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	mailkeep_errors "github.com/mailkeep/mailkeep/errors"
	"github.com/mailkeep/mailkeep/interfaces"
	"github.com/mailkeep/mailkeep/internal/enum"
	"github.com/mailkeep/mailkeep/internal/models"
	"github.com/mailkeep/mailkeep/internal/tracing"
	"github.com/mailkeep/mailkeep/internal/utils"
)

type profileRepository struct {
	db *gorm.DB
}

func NewProfileRepository(db *gorm.DB) interfaces.ProfileRepository {
	return &profileRepository{db: db}
}

func (r *profileRepository) Create(ctx context.Context, profile *models.Profile) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "profileRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	// The email address is the natural key; refuse duplicates explicitly so
	// the caller gets a typed error instead of a constraint violation.
	existing := &models.Profile{}
	err := r.db.WithContext(ctx).
		Where("email_address = ?", profile.EmailAddress).
		First(existing).Error

	if err == nil {
		span.SetTag("duplicate", true)
		return mailkeep_errors.ErrProfileAlreadyExists
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		tracing.TraceErr(span, err)
		return mailkeep_errors.Storage(err)
	}

	if result := r.db.WithContext(ctx).Create(profile); result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return mailkeep_errors.Storage(result.Error)
	}
	return nil
}

func (r *profileRepository) Update(ctx context.Context, profile *models.Profile) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "profileRepository.Update")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	result := r.db.WithContext(ctx).
		Model(&models.Profile{}).
		Where("id = ?", profile.ID).
		Updates(profile)

	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return mailkeep_errors.Storage(result.Error)
	}
	if result.RowsAffected == 0 {
		return mailkeep_errors.ErrProfileNotFound
	}
	return nil
}

func (r *profileRepository) Delete(ctx context.Context, id string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "profileRepository.Delete")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	result := r.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&models.Profile{})

	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return mailkeep_errors.Storage(result.Error)
	}
	if result.RowsAffected == 0 {
		return mailkeep_errors.ErrProfileNotFound
	}
	return nil
}

func (r *profileRepository) GetByID(ctx context.Context, id string) (*models.Profile, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "profileRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var profile models.Profile
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &profile, nil
}

func (r *profileRepository) GetByEmailAddress(ctx context.Context, emailAddress string) (*models.Profile, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "profileRepository.GetByEmailAddress")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var profile models.Profile
	if err := r.db.WithContext(ctx).Where("email_address = ?", emailAddress).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &profile, nil
}

func (r *profileRepository) List(ctx context.Context) ([]*models.Profile, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "profileRepository.List")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var profiles []*models.Profile
	if err := r.db.WithContext(ctx).Order("created_at asc").Find(&profiles).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return profiles, nil
}

func (r *profileRepository) UpdateConnectionStatus(ctx context.Context, id string, status enum.ConnectionStatus, errorMessage string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "profileRepository.UpdateConnectionStatus")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	updates := map[string]interface{}{
		"connection_status": status,
		"error_message":     errorMessage,
		"updated_at":        utils.Now(),
	}
	if status == enum.ConnectionActive {
		updates["last_synced"] = utils.Now()
	}

	result := r.db.WithContext(ctx).
		Model(&models.Profile{}).
		Where("id = ?", id).
		Updates(updates)

	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return mailkeep_errors.Storage(result.Error)
	}
	return nil
}
