package mailclient

import (
	"context"
	"time"

	"github.com/pkg/errors"

	mailkeep_errors "github.com/mailkeep/mailkeep/errors"
	"github.com/mailkeep/mailkeep/interfaces"
	"github.com/mailkeep/mailkeep/internal/enum"
	"github.com/mailkeep/mailkeep/internal/models"
)

// sessionRequest is one unit of remote work handed to the session goroutine.
type sessionRequest struct {
	fn   func(ctx context.Context, client interfaces.IMAPClient) error
	done chan error
}

// session serializes all IMAP traffic for one profile. The runner goroutine
// is the only holder of the connection; everyone else submits closures.
type session struct {
	profile  *models.Profile
	requests chan *sessionRequest
	stopCh   chan struct{}
	done     chan struct{}
}

func newSession(profile *models.Profile) *session {
	return &session{
		profile:  profile,
		requests: make(chan *sessionRequest, 32),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (sess *session) stop() {
	select {
	case <-sess.stopCh:
	default:
		close(sess.stopCh)
	}
}

// run submits work to the session goroutine and waits for the result.
func (sess *session) run(ctx context.Context, fn func(ctx context.Context, client interfaces.IMAPClient) error) error {
	req := &sessionRequest{fn: fn, done: make(chan error, 1)}
	select {
	case sess.requests <- req:
	case <-sess.done:
		return mailkeep_errors.Connection(mailkeep_errors.ErrSessionClosed)
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runSession is the session lifecycle: connect, serve until the connection
// drops, back off, reconnect. Authentication failures park the session until
// the profile is updated; retrying bad credentials only locks accounts.
func (s *MailClientService) runSession(ctx context.Context, sess *session) {
	defer close(sess.done)

	backoff := s.cfg.RetryBackoff

	for {
		select {
		case <-ctx.Done():
			return
		case <-sess.stopCh:
			return
		default:
		}

		client := s.imapFactory()
		err := client.Connect(ctx, sess.profile)
		if err != nil {
			if mailkeep_errors.IsKind(err, mailkeep_errors.KindAuthentication) {
				s.profileService.MarkConnection(ctx, sess.profile.ID, enum.ConnectionAuthError, err.Error())
				s.park(ctx, sess, err)
				return
			}
			s.profileService.MarkConnection(ctx, sess.profile.ID, enum.ConnectionNotActive, err.Error())
			s.log.Warnf("connect failed for %s, retrying in %s: %v", sess.profile.EmailAddress, backoff, err)
			if !s.waitBackoff(ctx, sess, backoff, err) {
				return
			}
			backoff = s.nextBackoff(backoff)
			continue
		}

		backoff = s.cfg.RetryBackoff
		s.profileService.MarkConnection(ctx, sess.profile.ID, enum.ConnectionActive, "")

		err = s.serve(ctx, sess, client)
		_ = client.Close()
		if err == nil {
			return
		}
		s.profileService.MarkConnection(ctx, sess.profile.ID, enum.ConnectionNotActive, err.Error())
		s.log.Warnf("session for %s lost: %v", sess.profile.EmailAddress, err)
	}
}

// serve owns a live connection. It returns nil on shutdown and the
// connection error when the link drops, which sends the runner back to the
// reconnect loop.
func (s *MailClientService) serve(ctx context.Context, sess *session, client interfaces.IMAPClient) error {
	if err := s.initialSync(ctx, sess.profile, client); err != nil {
		if mailkeep_errors.IsKind(err, mailkeep_errors.KindConnection) {
			return err
		}
		s.log.Warnf("initial sync incomplete for %s: %v", sess.profile.EmailAddress, err)
	}

	s.replayPending(ctx, sess.profile, client)

	ticker := time.NewTicker(s.cfg.PollPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sess.stopCh:
			return nil
		case req := <-sess.requests:
			err := req.fn(ctx, client)
			req.done <- err
			if mailkeep_errors.IsKind(err, mailkeep_errors.KindConnection) {
				return err
			}
		case <-ticker.C:
			if err := s.pollOnce(ctx, sess.profile, client); err != nil {
				if mailkeep_errors.IsKind(err, mailkeep_errors.KindConnection) {
					return err
				}
				s.log.Warnf("poll failed for %s: %v", sess.profile.EmailAddress, err)
			}
		}
	}
}

// initialSync populates the cache for a fresh connection: the folder tree
// first, then each folder's headers.
func (s *MailClientService) initialSync(ctx context.Context, profile *models.Profile, client interfaces.IMAPClient) error {
	dirs, err := s.directoryService.RefreshList(ctx, client, profile)
	if err != nil {
		return err
	}
	for _, dir := range dirs {
		if err := s.directoryService.SyncDirectory(ctx, client, profile, dir.Name); err != nil {
			if mailkeep_errors.IsKind(err, mailkeep_errors.KindConnection) {
				return err
			}
			s.log.Warnf("sync of %s/%s failed: %v", profile.EmailAddress, dir.Name, err)
		}
	}
	return nil
}

// pollOnce refreshes folders whose cache has gone stale and retries any
// pending markers left from offline mutations.
func (s *MailClientService) pollOnce(ctx context.Context, profile *models.Profile, client interfaces.IMAPClient) error {
	s.replayPending(ctx, profile, client)

	dirs, err := s.directoryService.ListCached(ctx, profile.ID)
	if err != nil {
		return err
	}
	for _, dir := range dirs {
		if !dir.IsStale(s.cfg.StaleAfter) {
			continue
		}
		if err := s.directoryService.SyncDirectory(ctx, client, profile, dir.Name); err != nil {
			if mailkeep_errors.IsKind(err, mailkeep_errors.KindConnection) {
				return err
			}
			s.log.Warnf("refresh of %s/%s failed: %v", profile.EmailAddress, dir.Name, err)
		}
	}
	return nil
}

// replayPending pushes offline mutations to the server. A marker is removed
// on success or when the message it points at no longer exists; transient
// failures leave it for the next pass.
func (s *MailClientService) replayPending(ctx context.Context, profile *models.Profile, client interfaces.IMAPClient) {
	pending, err := s.pendingOps.ListByProfile(ctx, profile.ID)
	if err != nil {
		s.log.Errorf("failed to list pending operations for %s: %v", profile.ID, err)
		return
	}

	deleteDirs := make(map[string]bool)
	for _, op := range pending {
		switch op.Kind {
		case enum.PendingSetFlag, enum.PendingClearFlag:
			s.replayFlag(ctx, client, op)
		case enum.PendingDelete:
			// Deletes replay as a batch per folder through Expunge so the
			// confirmed-subset reconciliation applies.
			deleteDirs[op.Directory] = true
		}
	}

	for dir := range deleteDirs {
		if err := s.directoryService.Expunge(ctx, client, profile.ID, dir); err != nil {
			s.log.Warnf("pending expunge of %s/%s failed: %v", profile.EmailAddress, dir, err)
		}
	}
}

func (s *MailClientService) replayFlag(ctx context.Context, client interfaces.IMAPClient, op *models.PendingOperation) {
	value := op.Kind == enum.PendingSetFlag
	err := client.SetFlag(ctx, op.Directory, op.ImapUID, enum.EmailFlag(op.Flag), value)
	if err == nil {
		if delErr := s.pendingOps.Delete(ctx, op.ID); delErr != nil {
			s.log.Errorf("failed to clear pending marker %s: %v", op.ID, delErr)
		}
		return
	}

	if mailkeep_errors.IsKind(err, mailkeep_errors.KindNotFound) {
		// The message is gone; the marker has nothing left to apply to.
		s.log.Infof("dropping pending %s for vanished uid %d in %s", op.Kind, op.ImapUID, op.Directory)
		if delErr := s.pendingOps.Delete(ctx, op.ID); delErr != nil {
			s.log.Errorf("failed to clear pending marker %s: %v", op.ID, delErr)
		}
		return
	}

	if recErr := s.pendingOps.RecordAttempt(ctx, op.ID, err.Error()); recErr != nil {
		s.log.Errorf("failed to record pending attempt %s: %v", op.ID, recErr)
	}
	if op.Attempts+1 >= s.cfg.MaxRetryAttempts && !mailkeep_errors.IsRetryable(err) {
		s.log.Warnf("giving up on pending %s for uid %d in %s after %d attempts: %v",
			op.Kind, op.ImapUID, op.Directory, op.Attempts+1, err)
		if delErr := s.pendingOps.Delete(ctx, op.ID); delErr != nil {
			s.log.Errorf("failed to clear pending marker %s: %v", op.ID, delErr)
		}
	}
}

// park keeps answering queued requests with the terminal error so callers
// fail fast instead of hanging.
func (s *MailClientService) park(ctx context.Context, sess *session, terminal error) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sess.stopCh:
			return
		case req := <-sess.requests:
			req.done <- terminal
		}
	}
}

// waitBackoff sleeps before a reconnect attempt while keeping queued
// requests from blocking forever. Returns false when the session should
// exit.
func (s *MailClientService) waitBackoff(ctx context.Context, sess *session, backoff time.Duration, connectErr error) bool {
	timer := time.NewTimer(backoff)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-sess.stopCh:
			return false
		case req := <-sess.requests:
			req.done <- errors.WithMessage(connectErr, "profile is offline")
		case <-timer.C:
			return true
		}
	}
}

func (s *MailClientService) nextBackoff(current time.Duration) time.Duration {
	next := time.Duration(float64(current) * 1.5)
	if next > s.cfg.MaxRetryBackoff {
		next = s.cfg.MaxRetryBackoff
	}
	return next
}
