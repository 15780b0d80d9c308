package profiles

import (
	"context"

	"github.com/customeros/mailsherpa/mailvalidate"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	mailkeep_errors "github.com/mailkeep/mailkeep/errors"
	"github.com/mailkeep/mailkeep/interfaces"
	"github.com/mailkeep/mailkeep/internal/enum"
	"github.com/mailkeep/mailkeep/internal/logger"
	"github.com/mailkeep/mailkeep/internal/models"
	"github.com/mailkeep/mailkeep/internal/tracing"
)

// ProfileService owns account records. Removing a profile also removes
// everything cached under it; the cache never holds rows for an account
// that no longer exists.
type ProfileService struct {
	log         logger.Logger
	profiles    interfaces.ProfileRepository
	directories interfaces.DirectoryRepository
	emails      interfaces.EmailRepository
	pendingOps  interfaces.PendingOperationRepository
}

func NewProfileService(
	log logger.Logger,
	profiles interfaces.ProfileRepository,
	directories interfaces.DirectoryRepository,
	emails interfaces.EmailRepository,
	pendingOps interfaces.PendingOperationRepository,
) *ProfileService {
	return &ProfileService{
		log:         log,
		profiles:    profiles,
		directories: directories,
		emails:      emails,
		pendingOps:  pendingOps,
	}
}

func (s *ProfileService) List(ctx context.Context) ([]*models.Profile, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ProfileService.List")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	profiles, err := s.profiles.List(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return profiles, nil
}

func (s *ProfileService) Get(ctx context.Context, profileID string) (*models.Profile, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ProfileService.Get")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagProfile(span, profileID)

	profile, err := s.profiles.GetByID(ctx, profileID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if profile == nil {
		err = mailkeep_errors.NotFound(errors.Wrapf(mailkeep_errors.ErrProfileNotFound, "profile %s", profileID))
		tracing.TraceErr(span, err)
		return nil, err
	}
	return profile, nil
}

func (s *ProfileService) Add(ctx context.Context, profile *models.Profile) (*models.Profile, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ProfileService.Add")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if err := s.validate(profile); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	profile.ConnectionStatus = enum.ConnectionNotActive
	profile.ErrorMessage = ""

	err := s.profiles.Create(ctx, profile)
	if err != nil {
		if errors.Is(err, mailkeep_errors.ErrProfileAlreadyExists) {
			err = mailkeep_errors.Conflict(err)
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	tracing.TagProfile(span, profile.ID)
	s.log.Infof("added profile %s for %s", profile.ID, profile.EmailAddress)
	return profile, nil
}

func (s *ProfileService) Update(ctx context.Context, profile *models.Profile) (*models.Profile, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ProfileService.Update")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagProfile(span, profile.ID)

	if profile.ID == "" {
		err := errors.Wrap(mailkeep_errors.ErrInvalidInput, "profile id is required")
		tracing.TraceErr(span, err)
		return nil, err
	}
	if err := s.validate(profile); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	existing, err := s.profiles.GetByID(ctx, profile.ID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if existing == nil {
		err = mailkeep_errors.NotFound(errors.Wrapf(mailkeep_errors.ErrProfileNotFound, "profile %s", profile.ID))
		tracing.TraceErr(span, err)
		return nil, err
	}

	// Server settings may have changed; the next session decides whether
	// they work.
	profile.ConnectionStatus = enum.ConnectionNotActive
	profile.ErrorMessage = ""
	profile.CreatedAt = existing.CreatedAt

	err = s.profiles.Update(ctx, profile)
	if err != nil {
		if errors.Is(err, mailkeep_errors.ErrProfileNotFound) {
			err = mailkeep_errors.NotFound(err)
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return profile, nil
}

// Remove deletes the profile and cascades over its cached directories,
// emails, and pending markers.
func (s *ProfileService) Remove(ctx context.Context, profileID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ProfileService.Remove")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagProfile(span, profileID)

	profile, err := s.profiles.GetByID(ctx, profileID)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if profile == nil {
		err = mailkeep_errors.NotFound(errors.Wrapf(mailkeep_errors.ErrProfileNotFound, "profile %s", profileID))
		tracing.TraceErr(span, err)
		return err
	}

	if err = s.pendingOps.DeleteByProfile(ctx, profileID); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if err = s.emails.DeleteByProfile(ctx, profileID); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if err = s.directories.DeleteByProfile(ctx, profileID); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if err = s.profiles.Delete(ctx, profileID); err != nil {
		if errors.Is(err, mailkeep_errors.ErrProfileNotFound) {
			err = mailkeep_errors.NotFound(err)
		}
		tracing.TraceErr(span, err)
		return err
	}

	s.log.Infof("removed profile %s and its cached data", profileID)
	return nil
}

// MarkConnection records the outcome of the latest session attempt.
func (s *ProfileService) MarkConnection(ctx context.Context, profileID string, status enum.ConnectionStatus, detail string) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ProfileService.MarkConnection")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagProfile(span, profileID)

	err := s.profiles.UpdateConnectionStatus(ctx, profileID, status, detail)
	if err != nil {
		tracing.TraceErr(span, err)
		s.log.Errorf("failed to record connection status for %s: %v", profileID, err)
	}
}

func (s *ProfileService) validate(profile *models.Profile) error {
	if profile == nil {
		return errors.Wrap(mailkeep_errors.ErrInvalidInput, "profile cannot be nil")
	}
	validation := mailvalidate.ValidateEmailSyntax(profile.EmailAddress)
	if !validation.IsValid {
		return errors.Wrapf(mailkeep_errors.ErrInvalidInput, "email address %s is not valid", profile.EmailAddress)
	}
	profile.EmailAddress = validation.CleanEmail
	if profile.ImapServer == "" || profile.ImapPort == 0 {
		return errors.Wrap(mailkeep_errors.ErrInvalidInput, "imap server and port are required")
	}
	if profile.SmtpServer == "" || profile.SmtpPort == 0 {
		return errors.Wrap(mailkeep_errors.ErrInvalidInput, "smtp server and port are required")
	}
	if profile.SentFolder == "" {
		profile.SentFolder = "Sent"
	}
	return nil
}
