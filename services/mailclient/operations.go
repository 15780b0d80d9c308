package mailclient

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	mailkeep_errors "github.com/mailkeep/mailkeep/errors"
	"github.com/mailkeep/mailkeep/interfaces"
	"github.com/mailkeep/mailkeep/internal/enum"
	"github.com/mailkeep/mailkeep/internal/models"
	"github.com/mailkeep/mailkeep/internal/tracing"
	"github.com/mailkeep/mailkeep/internal/utils"
)

// ListDirectories serves the cached folder tree. The first call for a
// profile that has never synced blocks on a live refresh; after that the
// background sweep keeps the tree current.
func (s *MailClientService) ListDirectories(ctx context.Context, profileID string) ([]*models.Directory, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MailClientService.ListDirectories")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagProfile(span, profileID)

	if _, err := s.profileService.Get(ctx, profileID); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	cached, err := s.directoryService.ListCached(ctx, profileID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if len(cached) > 0 {
		return cached, nil
	}

	sess, err := s.session(profileID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	var refreshed []*models.Directory
	err = sess.run(ctx, func(ctx context.Context, client interfaces.IMAPClient) error {
		dirs, err := s.directoryService.RefreshList(ctx, client, sess.profile)
		refreshed = dirs
		return err
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return refreshed, nil
}

// GetEmails answers from the cache and, when the folder's snapshot has gone
// stale, kicks off a background refresh. Callers see new messages through a
// directory_updated event rather than a blocked read.
func (s *MailClientService) GetEmails(ctx context.Context, profileID, directory string) ([]*models.Email, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MailClientService.GetEmails")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagProfile(span, profileID)
	tracing.TagDirectory(span, directory)

	dir, err := s.directory(ctx, profileID, directory)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	emails, err := s.emails.ListByDirectory(ctx, profileID, directory)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	if dir.IsStale(s.cfg.StaleAfter) {
		s.background(profileID, func(ctx context.Context, client interfaces.IMAPClient, profile *models.Profile) error {
			return s.directoryService.SyncDirectory(ctx, client, profile, directory)
		})
	}

	return emails, nil
}

// SearchEmails merges cached and server-side matches. With no usable
// session the cached matches stand alone.
func (s *MailClientService) SearchEmails(ctx context.Context, profileID, directory, term string) ([]*models.Email, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MailClientService.SearchEmails")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagProfile(span, profileID)
	tracing.TagDirectory(span, directory)

	if _, err := s.profileService.Get(ctx, profileID); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	sess, err := s.session(profileID)
	if err != nil {
		return s.directoryService.Search(ctx, nil, profileID, directory, term)
	}

	var results []*models.Email
	err = sess.run(ctx, func(ctx context.Context, client interfaces.IMAPClient) error {
		found, err := s.directoryService.Search(ctx, client, profileID, directory, term)
		results = found
		return err
	})
	if err != nil {
		if mailkeep_errors.IsKind(err, mailkeep_errors.KindConnection) {
			return s.directoryService.Search(ctx, nil, profileID, directory, term)
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return results, nil
}

// GetEmailBody returns the full message, fetching it from the server the
// first time and caching it for every read after.
func (s *MailClientService) GetEmailBody(ctx context.Context, profileID, directory string, uid uint32) (*models.Email, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MailClientService.GetEmailBody")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagProfile(span, profileID)
	tracing.TagDirectory(span, directory)

	cached, err := s.emails.GetByUID(ctx, profileID, directory, uid)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if cached == nil {
		err = mailkeep_errors.NotFound(errors.Wrapf(mailkeep_errors.ErrEmailNotFound, "uid %d in %s", uid, directory))
		tracing.TraceErr(span, err)
		return nil, err
	}
	if cached.BodyCached {
		return cached, nil
	}

	sess, err := s.session(profileID)
	if err != nil {
		err = errors.WithMessage(mailkeep_errors.Connection(mailkeep_errors.ErrCacheMiss), "body not cached and profile is offline")
		tracing.TraceErr(span, err)
		return nil, err
	}

	err = sess.run(ctx, func(ctx context.Context, client interfaces.IMAPClient) error {
		fetched, err := client.FetchBody(ctx, directory, uid)
		if err != nil {
			return err
		}
		cached.BodyText = fetched.BodyText
		cached.BodyHTML = fetched.BodyHTML
		cached.RawHeaders = fetched.RawHeaders
		cached.BodyCached = true
		return s.emails.Update(ctx, cached)
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return cached, nil
}

// RemoveEmail marks the message deleted in the cache and leaves a pending
// marker; the row disappears once the server confirms the expunge. A
// message id that no longer matches the UID means the folder changed under
// the caller, which is a conflict, not a delete.
func (s *MailClientService) RemoveEmail(ctx context.Context, profileID, directory string, uid uint32, messageID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MailClientService.RemoveEmail")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagProfile(span, profileID)
	tracing.TagDirectory(span, directory)

	// The message id is what proves the caller still means this message and
	// not a recycled UID, so it is never optional.
	if messageID == "" {
		err := errors.Wrap(mailkeep_errors.ErrInvalidInput, "message id is required")
		tracing.TraceErr(span, err)
		return err
	}

	cached, err := s.emails.GetByUID(ctx, profileID, directory, uid)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if cached == nil {
		err = mailkeep_errors.NotFound(errors.Wrapf(mailkeep_errors.ErrEmailNotFound, "uid %d in %s", uid, directory))
		tracing.TraceErr(span, err)
		return err
	}
	if cached.MessageID != utils.NormalizeMessageID(messageID) {
		err = mailkeep_errors.Conflict(errors.Errorf("uid %d in %s no longer matches message id %s", uid, directory, messageID))
		tracing.TraceErr(span, err)
		return err
	}

	if cached.SetFlag(enum.FlagDeleted, true) {
		if err = s.emails.Update(ctx, cached); err != nil {
			tracing.TraceErr(span, err)
			return err
		}
	}

	err = s.pendingOps.Save(ctx, &models.PendingOperation{
		ProfileID: profileID,
		Directory: directory,
		ImapUID:   uid,
		Kind:      enum.PendingDelete,
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	s.background(profileID, func(ctx context.Context, client interfaces.IMAPClient, profile *models.Profile) error {
		return s.directoryService.Expunge(ctx, client, profileID, directory)
	})
	return nil
}

// FlagEmail toggles the flagged marker on the message. The cache reflects
// the change immediately; the server catches up through the pending marker.
func (s *MailClientService) FlagEmail(ctx context.Context, profileID, directory string, uid uint32, flag enum.EmailFlag) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MailClientService.FlagEmail")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagProfile(span, profileID)
	tracing.TagDirectory(span, directory)

	cached, err := s.emails.GetByUID(ctx, profileID, directory, uid)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if cached == nil {
		err = mailkeep_errors.NotFound(errors.Wrapf(mailkeep_errors.ErrEmailNotFound, "uid %d in %s", uid, directory))
		tracing.TraceErr(span, err)
		return err
	}

	value := !cached.HasFlag(flag)
	return s.applyFlag(ctx, cached, flag, value)
}

// MarkSeen is idempotent: a message already read stays read and no marker
// is written.
func (s *MailClientService) MarkSeen(ctx context.Context, profileID, directory string, uid uint32) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MailClientService.MarkSeen")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagProfile(span, profileID)
	tracing.TagDirectory(span, directory)

	cached, err := s.emails.GetByUID(ctx, profileID, directory, uid)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if cached == nil {
		err = mailkeep_errors.NotFound(errors.Wrapf(mailkeep_errors.ErrEmailNotFound, "uid %d in %s", uid, directory))
		tracing.TraceErr(span, err)
		return err
	}
	if cached.HasFlag(enum.FlagSeen) {
		return nil
	}
	return s.applyFlag(ctx, cached, enum.FlagSeen, true)
}

func (s *MailClientService) applyFlag(ctx context.Context, email *models.Email, flag enum.EmailFlag, value bool) error {
	if email.SetFlag(flag, value) {
		if err := s.emails.Update(ctx, email); err != nil {
			return err
		}
	}

	kind := enum.PendingSetFlag
	if !value {
		kind = enum.PendingClearFlag
	}
	op := &models.PendingOperation{
		ProfileID: email.ProfileID,
		Directory: email.Directory,
		ImapUID:   email.ImapUID,
		Kind:      kind,
		Flag:      flag.String(),
	}
	if err := s.pendingOps.Save(ctx, op); err != nil {
		return err
	}

	s.background(email.ProfileID, func(ctx context.Context, client interfaces.IMAPClient, profile *models.Profile) error {
		s.replayFlag(ctx, client, op)
		return nil
	})
	return nil
}

// PurgeDeleted expunges the folder's pending deletes against the server and
// drops only the rows it confirmed gone.
func (s *MailClientService) PurgeDeleted(ctx context.Context, profileID, directory string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MailClientService.PurgeDeleted")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagProfile(span, profileID)
	tracing.TagDirectory(span, directory)

	if _, err := s.directory(ctx, profileID, directory); err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	sess, err := s.session(profileID)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	err = sess.run(ctx, func(ctx context.Context, client interfaces.IMAPClient) error {
		return s.directoryService.Expunge(ctx, client, profileID, directory)
	})
	if err != nil {
		tracing.TraceErr(span, err)
	}
	return err
}

// SendEmail submits the message over SMTP and records the outcome. The sent
// copy lands in the cache under the profile's sent folder right away; the
// next sync reconciles it with the server's copy by message id.
func (s *MailClientService) SendEmail(ctx context.Context, email *models.Email) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MailClientService.SendEmail")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if email == nil || email.ProfileID == "" {
		err := errors.Wrap(mailkeep_errors.ErrInvalidInput, "email with profile id is required")
		tracing.TraceErr(span, err)
		return err
	}
	tracing.TagProfile(span, email.ProfileID)

	profile, err := s.profileService.Get(ctx, email.ProfileID)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	email.Direction = enum.EmailOutbound
	email.Status = enum.EmailStatusQueued
	email.Directory = profile.SentFolder
	if err = s.emails.UpsertHeader(ctx, email); err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	sendErr := s.smtpClient.Send(ctx, profile, email)

	email.LastAttemptAt = utils.NowPtr()
	if sendErr != nil {
		email.Status = enum.EmailStatusFailed
		email.StatusDetail = sendErr.Error()
	} else {
		email.Status = enum.EmailStatusSent
		email.SentAt = email.LastAttemptAt
		email.StatusDetail = ""
		email.BodyCached = true
	}
	if err = s.emails.Update(ctx, email); err != nil {
		tracing.TraceErr(span, err)
		s.log.Errorf("failed to record send outcome for %s: %v", email.ID, err)
	}

	event := interfaces.Event{
		Type:      interfaces.EventSendCompleted,
		ProfileID: email.ProfileID,
		Directory: email.Directory,
		EmailID:   email.ID,
		Success:   sendErr == nil,
	}
	if sendErr != nil {
		event.Detail = sendErr.Error()
	}
	s.dispatcher.Publish(ctx, event)

	if sendErr != nil {
		tracing.TraceErr(span, sendErr)
		return sendErr
	}
	return nil
}

// ---- helpers ----

func (s *MailClientService) directory(ctx context.Context, profileID, name string) (*models.Directory, error) {
	if _, err := s.profileService.Get(ctx, profileID); err != nil {
		return nil, err
	}
	dir, err := s.directoryService.ListCached(ctx, profileID)
	if err != nil {
		return nil, err
	}
	for _, d := range dir {
		if d.Name == name {
			return d, nil
		}
	}
	return nil, mailkeep_errors.NotFound(errors.Wrapf(mailkeep_errors.ErrDirectoryNotFound, "directory %s", name))
}

// background hands work to the profile's session without blocking the
// caller. Dropped silently when the engine is stopped.
func (s *MailClientService) background(profileID string, fn func(ctx context.Context, client interfaces.IMAPClient, profile *models.Profile) error) {
	s.mu.Lock()
	sess, ok := s.sessions[profileID]
	ctx := s.runCtx
	started := s.started
	s.mu.Unlock()
	if !ok || !started {
		return
	}
	go func() {
		err := sess.run(ctx, func(ctx context.Context, client interfaces.IMAPClient) error {
			return fn(ctx, client, sess.profile)
		})
		if err != nil {
			s.log.Debugf("background task for %s: %v", profileID, err)
		}
	}()
}
