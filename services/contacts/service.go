package contacts

import (
	"context"
	"strings"

	"github.com/customeros/mailsherpa/mailvalidate"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	mailkeep_errors "github.com/mailkeep/mailkeep/errors"
	"github.com/mailkeep/mailkeep/interfaces"
	"github.com/mailkeep/mailkeep/internal/logger"
	"github.com/mailkeep/mailkeep/internal/models"
	"github.com/mailkeep/mailkeep/internal/tracing"
)

// ContactService is the local address book. Purely cache-resident, no
// remote counterpart.
type ContactService struct {
	log      logger.Logger
	contacts interfaces.ContactRepository
}

func NewContactService(log logger.Logger, contacts interfaces.ContactRepository) interfaces.ContactOperations {
	return &ContactService{log: log, contacts: contacts}
}

func (s *ContactService) ListContacts(ctx context.Context) ([]*models.Contact, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ContactService.ListContacts")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	return s.contacts.List(ctx)
}

func (s *ContactService) GetContact(ctx context.Context, id string) (*models.Contact, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ContactService.GetContact")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, id)

	contact, err := s.contacts.GetByID(ctx, id)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if contact == nil {
		err = mailkeep_errors.NotFound(errors.Wrapf(mailkeep_errors.ErrContactNotFound, "contact %s", id))
		tracing.TraceErr(span, err)
		return nil, err
	}
	return contact, nil
}

func (s *ContactService) SearchContacts(ctx context.Context, term string) ([]*models.Contact, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ContactService.SearchContacts")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	term = strings.TrimSpace(term)
	if term == "" {
		return s.contacts.List(ctx)
	}
	return s.contacts.Search(ctx, term)
}

func (s *ContactService) AddContact(ctx context.Context, contact *models.Contact) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ContactService.AddContact")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if err := s.validate(contact); err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	err := s.contacts.Create(ctx, contact)
	if err != nil {
		if errors.Is(err, mailkeep_errors.ErrContactAlreadyExists) {
			err = mailkeep_errors.Conflict(err)
		}
		tracing.TraceErr(span, err)
		return err
	}
	tracing.TagEntity(span, contact.ID)
	return nil
}

func (s *ContactService) UpdateContact(ctx context.Context, contact *models.Contact) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ContactService.UpdateContact")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if contact == nil || contact.ID == "" {
		err := errors.Wrap(mailkeep_errors.ErrInvalidInput, "contact id is required")
		tracing.TraceErr(span, err)
		return err
	}
	tracing.TagEntity(span, contact.ID)

	if err := s.validate(contact); err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	err := s.contacts.Update(ctx, contact)
	if err != nil {
		if errors.Is(err, mailkeep_errors.ErrContactNotFound) {
			err = mailkeep_errors.NotFound(err)
		}
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (s *ContactService) RemoveContact(ctx context.Context, id string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ContactService.RemoveContact")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, id)

	err := s.contacts.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, mailkeep_errors.ErrContactNotFound) {
			err = mailkeep_errors.NotFound(err)
		}
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (s *ContactService) validate(contact *models.Contact) error {
	if contact == nil {
		return errors.Wrap(mailkeep_errors.ErrInvalidInput, "contact cannot be nil")
	}
	if strings.TrimSpace(contact.DisplayName) == "" {
		return errors.Wrap(mailkeep_errors.ErrInvalidInput, "display name is required")
	}
	validation := mailvalidate.ValidateEmailSyntax(contact.EmailAddress)
	if !validation.IsValid {
		return errors.Wrapf(mailkeep_errors.ErrInvalidInput, "email address %s is not valid", contact.EmailAddress)
	}
	contact.EmailAddress = validation.CleanEmail
	return nil
}
