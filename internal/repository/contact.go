package repository

import (
	"context"
	"errors"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	mailkeep_errors "github.com/mailkeep/mailkeep/errors"
	"github.com/mailkeep/mailkeep/interfaces"
	"github.com/mailkeep/mailkeep/internal/models"
	"github.com/mailkeep/mailkeep/internal/tracing"
)

type contactRepository struct {
	db *gorm.DB
}

func NewContactRepository(db *gorm.DB) interfaces.ContactRepository {
	return &contactRepository{db: db}
}

func (r *contactRepository) Create(ctx context.Context, contact *models.Contact) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "contactRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	existing := &models.Contact{}
	err := r.db.WithContext(ctx).
		Where("email_address = ?", contact.EmailAddress).
		First(existing).Error

	if err == nil {
		span.SetTag("duplicate", true)
		return mailkeep_errors.ErrContactAlreadyExists
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		tracing.TraceErr(span, err)
		return mailkeep_errors.Storage(err)
	}

	if result := r.db.WithContext(ctx).Create(contact); result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return mailkeep_errors.Storage(result.Error)
	}
	return nil
}

func (r *contactRepository) Update(ctx context.Context, contact *models.Contact) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "contactRepository.Update")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	result := r.db.WithContext(ctx).
		Model(&models.Contact{}).
		Where("id = ?", contact.ID).
		Updates(contact)
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return mailkeep_errors.Storage(result.Error)
	}
	if result.RowsAffected == 0 {
		return mailkeep_errors.ErrContactNotFound
	}
	return nil
}

func (r *contactRepository) Delete(ctx context.Context, id string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "contactRepository.Delete")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	result := r.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&models.Contact{})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return mailkeep_errors.Storage(result.Error)
	}
	if result.RowsAffected == 0 {
		return mailkeep_errors.ErrContactNotFound
	}
	return nil
}

func (r *contactRepository) GetByID(ctx context.Context, id string) (*models.Contact, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "contactRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var contact models.Contact
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&contact).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &contact, nil
}

func (r *contactRepository) List(ctx context.Context) ([]*models.Contact, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "contactRepository.List")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var contacts []*models.Contact
	if err := r.db.WithContext(ctx).Order("display_name asc").Find(&contacts).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return contacts, nil
}

func (r *contactRepository) Search(ctx context.Context, term string) ([]*models.Contact, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "contactRepository.Search")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	pattern := "%" + escapeLike(term) + "%"
	var contacts []*models.Contact
	if err := r.db.WithContext(ctx).
		Where("display_name ILIKE ? OR email_address ILIKE ?", pattern, pattern).
		Order("display_name asc").
		Find(&contacts).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return contacts, nil
}
