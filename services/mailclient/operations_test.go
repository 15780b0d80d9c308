package mailclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mailkeep_errors "github.com/mailkeep/mailkeep/errors"
	"github.com/mailkeep/mailkeep/interfaces"
	"github.com/mailkeep/mailkeep/internal/enum"
	"github.com/mailkeep/mailkeep/internal/mocks"
	"github.com/mailkeep/mailkeep/internal/models"
)

func TestListDirectoriesFromCache(t *testing.T) {
	// Arrange
	ctx := context.Background()
	svc, f := newTestEngine(t)
	seedInbox(f)
	f.server.AddFolder("Archive", 200)
	profile := startWithProfile(t, svc, f)

	// Act
	dirs, err := svc.ListDirectories(ctx, profile.ID)

	// Assert
	require.NoError(t, err)
	names := make([]string, 0, len(dirs))
	for _, d := range dirs {
		names = append(names, d.Name)
	}
	assert.ElementsMatch(t, []string{"INBOX", "Archive"}, names)
}

func TestGetEmailsNewestFirst(t *testing.T) {
	// Arrange
	ctx := context.Background()
	svc, f := newTestEngine(t)
	seedInbox(f)
	profile := startWithProfile(t, svc, f)

	older := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	emails, err := f.emails.ListByDirectory(ctx, profile.ID, "INBOX")
	require.NoError(t, err)
	require.Len(t, emails, 2)
	emails[0].ReceivedAt = &older
	require.NoError(t, f.emails.Update(ctx, emails[0]))
	emails[1].ReceivedAt = &newer
	require.NoError(t, f.emails.Update(ctx, emails[1]))

	// Act
	listed, err := svc.GetEmails(ctx, profile.ID, "INBOX")

	// Assert
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, newer, *listed[0].ReceivedAt)
	assert.Equal(t, older, *listed[1].ReceivedAt)
}

func TestGetEmailsUnknownDirectory(t *testing.T) {
	ctx := context.Background()
	svc, f := newTestEngine(t)
	seedInbox(f)
	profile := startWithProfile(t, svc, f)

	_, err := svc.GetEmails(ctx, profile.ID, "NoSuchFolder")

	assert.True(t, mailkeep_errors.IsKind(err, mailkeep_errors.KindNotFound), "expected not found, got %v", err)
}

func TestGetEmailBodyFetchesOnceThenServesCache(t *testing.T) {
	// Arrange
	ctx := context.Background()
	svc, f := newTestEngine(t)
	seedInbox(f)
	profile := startWithProfile(t, svc, f)

	emails, err := f.emails.ListByDirectory(ctx, profile.ID, "INBOX")
	require.NoError(t, err)
	target := emails[0]
	require.False(t, target.BodyCached)

	// Act: first read fetches from the server.
	withBody, err := svc.GetEmailBody(ctx, profile.ID, "INBOX", target.ImapUID)
	require.NoError(t, err)
	assert.True(t, withBody.BodyCached)
	assert.NotEmpty(t, withBody.BodyText)

	// The message vanishes remotely; the cached body must still serve.
	f.server.RemoveMessage("INBOX", target.ImapUID)

	// Assert
	again, err := svc.GetEmailBody(ctx, profile.ID, "INBOX", target.ImapUID)
	require.NoError(t, err)
	assert.Equal(t, withBody.BodyText, again.BodyText)
}

func TestGetEmailBodyUnknownUID(t *testing.T) {
	ctx := context.Background()
	svc, f := newTestEngine(t)
	seedInbox(f)
	profile := startWithProfile(t, svc, f)

	_, err := svc.GetEmailBody(ctx, profile.ID, "INBOX", 999)

	assert.True(t, mailkeep_errors.IsKind(err, mailkeep_errors.KindNotFound), "expected not found, got %v", err)
	assert.ErrorIs(t, err, mailkeep_errors.ErrEmailNotFound)
}

func TestMarkSeenAppliesAndIsIdempotent(t *testing.T) {
	// Arrange
	ctx := context.Background()
	svc, f := newTestEngine(t)
	seedInbox(f)
	profile := startWithProfile(t, svc, f)

	emails, err := f.emails.ListByDirectory(ctx, profile.ID, "INBOX")
	require.NoError(t, err)
	target := emails[0]

	// Act
	require.NoError(t, svc.MarkSeen(ctx, profile.ID, "INBOX", target.ImapUID))

	// Cache reflects the change immediately.
	cached, err := f.emails.GetByUID(ctx, profile.ID, "INBOX", target.ImapUID)
	require.NoError(t, err)
	assert.True(t, cached.HasFlag(enum.FlagSeen))

	// The server catches up and the marker clears.
	require.Eventually(t, func() bool {
		return f.server.HasFlag("INBOX", target.ImapUID, enum.FlagSeen) && f.pending.Count() == 0
	}, 2*time.Second, 10*time.Millisecond)

	// Act again: already-seen is a no-op, no new marker.
	require.NoError(t, svc.MarkSeen(ctx, profile.ID, "INBOX", target.ImapUID))

	// Assert
	assert.Equal(t, 0, f.pending.Count())
}

func TestFlagEmailOfflineReplaysOnReconnect(t *testing.T) {
	// Arrange
	ctx := context.Background()
	svc, f := newTestEngine(t)
	seedInbox(f)
	profile := startWithProfile(t, svc, f)

	emails, err := f.emails.ListByDirectory(ctx, profile.ID, "INBOX")
	require.NoError(t, err)
	target := emails[1]

	// The first replay attempt hits a dead connection.
	f.server.FailOnce("SetFlag", mailkeep_errors.Connection(assert.AnError))

	// Act
	require.NoError(t, svc.FlagEmail(ctx, profile.ID, "INBOX", target.ImapUID, enum.FlagFlagged))

	// The cache is updated optimistically even though the wire failed.
	cached, err := f.emails.GetByUID(ctx, profile.ID, "INBOX", target.ImapUID)
	require.NoError(t, err)
	assert.True(t, cached.HasFlag(enum.FlagFlagged))

	// Assert: the pending marker replays once the server answers again.
	require.Eventually(t, func() bool {
		return f.server.HasFlag("INBOX", target.ImapUID, enum.FlagFlagged) && f.pending.Count() == 0
	}, 3*time.Second, 10*time.Millisecond)
}

func TestFlagEmailTogglesOff(t *testing.T) {
	// Arrange
	ctx := context.Background()
	svc, f := newTestEngine(t)
	seedInbox(f)
	profile := startWithProfile(t, svc, f)

	emails, err := f.emails.ListByDirectory(ctx, profile.ID, "INBOX")
	require.NoError(t, err)
	target := emails[0]

	// Act: flag, wait for confirmation, flag again to clear.
	require.NoError(t, svc.FlagEmail(ctx, profile.ID, "INBOX", target.ImapUID, enum.FlagFlagged))
	require.Eventually(t, func() bool {
		return f.server.HasFlag("INBOX", target.ImapUID, enum.FlagFlagged)
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, svc.FlagEmail(ctx, profile.ID, "INBOX", target.ImapUID, enum.FlagFlagged))

	// Assert
	cached, err := f.emails.GetByUID(ctx, profile.ID, "INBOX", target.ImapUID)
	require.NoError(t, err)
	assert.False(t, cached.HasFlag(enum.FlagFlagged))
	require.Eventually(t, func() bool {
		return !f.server.HasFlag("INBOX", target.ImapUID, enum.FlagFlagged)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRemoveEmailConflictOnMessageIDMismatch(t *testing.T) {
	// Arrange
	ctx := context.Background()
	svc, f := newTestEngine(t)
	seedInbox(f)
	profile := startWithProfile(t, svc, f)

	emails, err := f.emails.ListByDirectory(ctx, profile.ID, "INBOX")
	require.NoError(t, err)
	target := emails[0]

	// Act: the caller's snapshot points at a different message.
	err = svc.RemoveEmail(ctx, profile.ID, "INBOX", target.ImapUID, "<someone-elses-message@example.org>")

	// Assert
	assert.True(t, mailkeep_errors.IsKind(err, mailkeep_errors.KindConflict), "expected conflict, got %v", err)

	// Nothing was touched.
	cached, getErr := f.emails.GetByUID(ctx, profile.ID, "INBOX", target.ImapUID)
	require.NoError(t, getErr)
	assert.False(t, cached.HasFlag(enum.FlagDeleted))
	assert.Equal(t, 0, f.pending.Count())
}

func TestRemoveEmailRequiresMessageID(t *testing.T) {
	// Arrange
	ctx := context.Background()
	svc, f := newTestEngine(t)
	seedInbox(f)
	profile := startWithProfile(t, svc, f)

	emails, err := f.emails.ListByDirectory(ctx, profile.ID, "INBOX")
	require.NoError(t, err)
	target := emails[0]

	// Act: no message id means the caller cannot prove which message it means.
	err = svc.RemoveEmail(ctx, profile.ID, "INBOX", target.ImapUID, "")

	// Assert
	assert.ErrorIs(t, err, mailkeep_errors.ErrInvalidInput)
	cached, getErr := f.emails.GetByUID(ctx, profile.ID, "INBOX", target.ImapUID)
	require.NoError(t, getErr)
	assert.False(t, cached.HasFlag(enum.FlagDeleted))
	assert.Equal(t, 0, f.pending.Count())
}

func TestRemoveAndPurgeConfirmedSubset(t *testing.T) {
	// Arrange
	ctx := context.Background()
	svc, f := newTestEngine(t)
	seedInbox(f)
	profile := startWithProfile(t, svc, f)

	emails, err := f.emails.ListByDirectory(ctx, profile.ID, "INBOX")
	require.NoError(t, err)
	require.Len(t, emails, 2)
	var victim, survivor *models.Email
	for _, e := range emails {
		if e.MessageID == "msg-1" {
			victim = e
		} else {
			survivor = e
		}
	}

	// The server refuses to expunge the survivor.
	f.server.RefuseExpunge[survivor.ImapUID] = true

	// Act
	require.NoError(t, svc.RemoveEmail(ctx, profile.ID, "INBOX", victim.ImapUID, victim.MessageID))
	require.NoError(t, svc.RemoveEmail(ctx, profile.ID, "INBOX", survivor.ImapUID, survivor.MessageID))
	require.NoError(t, svc.PurgeDeleted(ctx, profile.ID, "INBOX"))

	// Assert: only the confirmed removal left the cache.
	gone, err := f.emails.GetByUID(ctx, profile.ID, "INBOX", victim.ImapUID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	kept, err := f.emails.GetByUID(ctx, profile.ID, "INBOX", survivor.ImapUID)
	require.NoError(t, err)
	require.NotNil(t, kept)
	assert.True(t, kept.HasFlag(enum.FlagDeleted))

	// The refused delete keeps its marker for a later retry.
	pending, err := f.pending.ListByDirectory(ctx, profile.ID, "INBOX")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, survivor.ImapUID, pending[0].ImapUID)
	assert.Equal(t, enum.PendingDelete, pending[0].Kind)
}

func TestSearchEmailsMergesRemoteMatches(t *testing.T) {
	// Arrange
	ctx := context.Background()
	svc, f := newTestEngine(t)
	seedInbox(f)
	profile := startWithProfile(t, svc, f)

	// A message that exists remotely but is missing from the cache, with the
	// folder view gone stale so the search consults the server.
	f.server.AddMessage("INBOX", &mocks.FakeMessage{
		MessageID: "msg-3",
		Subject:   "Report addendum",
		From:      "carol@example.org",
		Body:      "One more thing about the report.",
	})
	require.NoError(t, f.dirs.MarkStale(ctx, profile.ID, "INBOX", true))

	// Act
	results, err := svc.SearchEmails(ctx, profile.ID, "INBOX", "report")

	// Assert: the cached hit and the remote-only hit, no duplicates.
	require.NoError(t, err)
	ids := make(map[string]int)
	for _, e := range results {
		ids[e.MessageID]++
	}
	assert.Equal(t, 1, ids["msg-1"])
	assert.Equal(t, 1, ids["msg-3"])
	for id, n := range ids {
		assert.Equal(t, 1, n, "message %s appeared %d times", id, n)
	}
}

func TestSendEmailSuccess(t *testing.T) {
	// Arrange
	ctx := context.Background()
	svc, f := newTestEngine(t)
	seedInbox(f)
	profile := startWithProfile(t, svc, f)

	eventCh, cancel := svc.Subscribe(8)
	defer cancel()

	email := &models.Email{
		ProfileID:   profile.ID,
		Subject:     "Hello",
		BodyText:    "A quick note.",
		ToAddresses: []string{"dave@example.org"},
	}

	// Act
	err := svc.SendEmail(ctx, email)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, enum.EmailStatusSent, email.Status)
	assert.Equal(t, 1, f.smtp.SentCount())
	assert.Equal(t, profile.SentFolder, email.Directory)

	cached, err := f.emails.GetByMessageID(ctx, profile.ID, email.MessageID)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, enum.EmailStatusSent, cached.Status)

	select {
	case event := <-eventCh:
		assert.Equal(t, interfaces.EventSendCompleted, event.Type)
		assert.True(t, event.Success)
		assert.Equal(t, profile.ID, event.ProfileID)
	case <-time.After(time.Second):
		t.Fatal("expected a send_completed event")
	}
}

func TestSendEmailRejectedRecipients(t *testing.T) {
	// Arrange
	ctx := context.Background()
	svc, f := newTestEngine(t)
	seedInbox(f)
	profile := startWithProfile(t, svc, f)
	f.smtp.RejectAddresses = []string{"blocked@example.org"}

	eventCh, cancel := svc.Subscribe(8)
	defer cancel()

	email := &models.Email{
		ProfileID:   profile.ID,
		Subject:     "Hello",
		BodyText:    "A quick note.",
		ToAddresses: []string{"blocked@example.org"},
	}

	// Act
	err := svc.SendEmail(ctx, email)

	// Assert
	require.Error(t, err)
	assert.True(t, mailkeep_errors.IsKind(err, mailkeep_errors.KindRejected), "expected rejected, got %v", err)

	var typed *mailkeep_errors.Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, []string{"blocked@example.org"}, typed.RejectedRecipients)

	assert.Equal(t, enum.EmailStatusFailed, email.Status)
	assert.NotEmpty(t, email.StatusDetail)

	select {
	case event := <-eventCh:
		assert.Equal(t, interfaces.EventSendCompleted, event.Type)
		assert.False(t, event.Success)
		assert.NotEmpty(t, event.Detail)
	case <-time.After(time.Second):
		t.Fatal("expected a send_completed event")
	}
}

func TestDirectoryUpdatedEventOnNewMail(t *testing.T) {
	// Arrange
	ctx := context.Background()
	svc, f := newTestEngine(t)
	seedInbox(f)
	profile := startWithProfile(t, svc, f)

	eventCh, cancel := svc.Subscribe(8)
	defer cancel()

	// Mark the cached folder stale so the next poll refetches it.
	require.NoError(t, f.dirs.MarkStale(ctx, profile.ID, "INBOX", true))

	// Act: new mail arrives on the server.
	f.server.AddMessage("INBOX", &mocks.FakeMessage{
		MessageID: "msg-new",
		Subject:   "Breaking news",
		From:      "eve@example.org",
		Body:      "Read all about it.",
	})

	// Assert
	deadline := time.After(3 * time.Second)
	for {
		select {
		case event := <-eventCh:
			if event.Type == interfaces.EventDirectoryUpdated && event.Directory == "INBOX" {
				emails, err := f.emails.ListByDirectory(ctx, profile.ID, "INBOX")
				require.NoError(t, err)
				assert.Len(t, emails, 3)
				return
			}
		case <-deadline:
			t.Fatal("expected a directory_updated event")
		}
	}
}
