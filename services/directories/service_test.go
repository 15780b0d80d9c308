package directories

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mailkeep_errors "github.com/mailkeep/mailkeep/errors"
	"github.com/mailkeep/mailkeep/internal/enum"
	"github.com/mailkeep/mailkeep/internal/logger"
	"github.com/mailkeep/mailkeep/internal/mocks"
	"github.com/mailkeep/mailkeep/internal/models"
	"github.com/mailkeep/mailkeep/services/events"
)

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode: true,
	})
	appLogger.InitLogger()
	return appLogger
}

type fixture struct {
	service *DirectoryService
	server  *mocks.FakeIMAPServer
	emails  *mocks.InMemoryEmailRepository
	dirs    *mocks.InMemoryDirectoryRepository
	pending *mocks.InMemoryPendingOperationRepository
	profile *models.Profile
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := getLogger()
	emails := mocks.NewInMemoryEmailRepository()
	dirs := mocks.NewInMemoryDirectoryRepository(emails)
	pending := mocks.NewInMemoryPendingOperationRepository()
	dispatcher := events.NewDispatcher(log)

	return &fixture{
		service: NewDirectoryService(log, dirs, emails, pending, dispatcher, time.Hour),
		server:  mocks.NewFakeIMAPServer(),
		emails:  emails,
		dirs:    dirs,
		pending: pending,
		profile: &models.Profile{ID: "prof_test", EmailAddress: "user@example.com"},
	}
}

func TestRefreshListReplacesFolderSet(t *testing.T) {
	// Arrange
	ctx := context.Background()
	f := newFixture(t)
	f.server.AddFolder("INBOX", 100)
	f.server.AddFolder("Archive", 200)
	client := mocks.NewFakeIMAPClient(f.server)
	require.NoError(t, client.Connect(ctx, f.profile))

	// Act
	dirs, err := f.service.RefreshList(ctx, client, f.profile)

	// Assert
	require.NoError(t, err)
	require.Len(t, dirs, 2)
	assert.Equal(t, "Archive", dirs[0].Name)
	assert.Equal(t, "INBOX", dirs[1].Name)
	assert.Equal(t, uint32(100), dirs[1].UIDValidity)
}

func TestRefreshListDropsVanishedFolderAndItsMail(t *testing.T) {
	// Arrange
	ctx := context.Background()
	f := newFixture(t)
	f.server.AddFolder("INBOX", 100)
	f.server.AddFolder("Junk", 300)
	f.server.AddMessage("Junk", &mocks.FakeMessage{MessageID: "spam-1", Subject: "offer", Body: "buy"})
	client := mocks.NewFakeIMAPClient(f.server)
	require.NoError(t, client.Connect(ctx, f.profile))

	_, err := f.service.RefreshList(ctx, client, f.profile)
	require.NoError(t, err)
	require.NoError(t, f.service.SyncDirectory(ctx, client, f.profile, "Junk"))
	junkMail, err := f.emails.ListByDirectory(ctx, f.profile.ID, "Junk")
	require.NoError(t, err)
	require.Len(t, junkMail, 1)

	// Act: the folder disappears server-side.
	delete(f.server.Folders, "Junk")
	dirs, err := f.service.RefreshList(ctx, client, f.profile)

	// Assert
	require.NoError(t, err)
	require.Len(t, dirs, 1)
	assert.Equal(t, "INBOX", dirs[0].Name)
	junkMail, err = f.emails.ListByDirectory(ctx, f.profile.ID, "Junk")
	require.NoError(t, err)
	assert.Empty(t, junkMail)
}

func TestSyncDirectoryIncremental(t *testing.T) {
	// Arrange
	ctx := context.Background()
	f := newFixture(t)
	f.server.AddFolder("INBOX", 100)
	f.server.AddMessage("INBOX", &mocks.FakeMessage{MessageID: "m1", Subject: "first", Body: "a"})
	client := mocks.NewFakeIMAPClient(f.server)
	require.NoError(t, client.Connect(ctx, f.profile))
	_, err := f.service.RefreshList(ctx, client, f.profile)
	require.NoError(t, err)

	// Act: first sync pulls the backlog, second only the new arrival.
	require.NoError(t, f.service.SyncDirectory(ctx, client, f.profile, "INBOX"))
	f.server.AddMessage("INBOX", &mocks.FakeMessage{MessageID: "m2", Subject: "second", Body: "b"})
	require.NoError(t, f.service.SyncDirectory(ctx, client, f.profile, "INBOX"))

	// Assert
	cached, err := f.emails.ListByDirectory(ctx, f.profile.ID, "INBOX")
	require.NoError(t, err)
	assert.Len(t, cached, 2)

	dir, err := f.dirs.GetByName(ctx, f.profile.ID, "INBOX")
	require.NoError(t, err)
	assert.Equal(t, uint32(2), dir.LastUID)
	assert.False(t, dir.Stale)
	assert.Equal(t, 2, dir.TotalCount)
}

func TestSyncDirectoryUIDValidityChangeResyncs(t *testing.T) {
	// Arrange
	ctx := context.Background()
	f := newFixture(t)
	f.server.AddFolder("INBOX", 100)
	f.server.AddMessage("INBOX", &mocks.FakeMessage{MessageID: "m1", Subject: "first", Body: "a"})
	client := mocks.NewFakeIMAPClient(f.server)
	require.NoError(t, client.Connect(ctx, f.profile))
	_, err := f.service.RefreshList(ctx, client, f.profile)
	require.NoError(t, err)
	require.NoError(t, f.service.SyncDirectory(ctx, client, f.profile, "INBOX"))

	// Act: the server rebuilds the folder with new UIDs.
	f.server.AddFolder("INBOX", 999)
	f.server.AddMessage("INBOX", &mocks.FakeMessage{UID: 7, MessageID: "m1", Subject: "first", Body: "a"})
	require.NoError(t, f.service.SyncDirectory(ctx, client, f.profile, "INBOX"))

	// Assert: the old row under the dead UID is gone, the new one is cached.
	cached, err := f.emails.ListByDirectory(ctx, f.profile.ID, "INBOX")
	require.NoError(t, err)
	require.Len(t, cached, 1)
	assert.Equal(t, uint32(7), cached[0].ImapUID)

	dir, err := f.dirs.GetByName(ctx, f.profile.ID, "INBOX")
	require.NoError(t, err)
	assert.Equal(t, uint32(999), dir.UIDValidity)
}

func TestSyncDirectoryMarksStaleOnFailure(t *testing.T) {
	// Arrange
	ctx := context.Background()
	f := newFixture(t)
	f.server.AddFolder("INBOX", 100)
	client := mocks.NewFakeIMAPClient(f.server)
	require.NoError(t, client.Connect(ctx, f.profile))
	_, err := f.service.RefreshList(ctx, client, f.profile)
	require.NoError(t, err)
	require.NoError(t, f.service.SyncDirectory(ctx, client, f.profile, "INBOX"))

	f.server.FailOnce("FetchHeaders", mailkeep_errors.Connection(assert.AnError))

	// Act
	err = f.service.SyncDirectory(ctx, client, f.profile, "INBOX")

	// Assert
	require.Error(t, err)
	dir, getErr := f.dirs.GetByName(ctx, f.profile.ID, "INBOX")
	require.NoError(t, getErr)
	assert.True(t, dir.Stale)
}

func TestSyncDirectoryUnknown(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	client := mocks.NewFakeIMAPClient(f.server)
	require.NoError(t, client.Connect(ctx, f.profile))

	err := f.service.SyncDirectory(ctx, client, f.profile, "Nowhere")

	assert.ErrorIs(t, err, mailkeep_errors.ErrDirectoryNotFound)
}

func TestSearchFallsBackToCacheOffline(t *testing.T) {
	// Arrange
	ctx := context.Background()
	f := newFixture(t)
	f.server.AddFolder("INBOX", 100)
	f.server.AddMessage("INBOX", &mocks.FakeMessage{MessageID: "m1", Subject: "project update", Body: "x"})
	client := mocks.NewFakeIMAPClient(f.server)
	require.NoError(t, client.Connect(ctx, f.profile))
	_, err := f.service.RefreshList(ctx, client, f.profile)
	require.NoError(t, err)
	require.NoError(t, f.service.SyncDirectory(ctx, client, f.profile, "INBOX"))

	// Act: no client at all, cache answers alone.
	results, err := f.service.Search(ctx, nil, f.profile.ID, "INBOX", "project")

	// Assert
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "m1", results[0].MessageID)
}

func TestSearchFreshCacheSkipsRemote(t *testing.T) {
	// Arrange
	ctx := context.Background()
	f := newFixture(t)
	f.server.AddFolder("INBOX", 100)
	f.server.AddMessage("INBOX", &mocks.FakeMessage{MessageID: "m1", Subject: "project update", Body: "x"})
	client := mocks.NewFakeIMAPClient(f.server)
	require.NoError(t, client.Connect(ctx, f.profile))
	_, err := f.service.RefreshList(ctx, client, f.profile)
	require.NoError(t, err)
	require.NoError(t, f.service.SyncDirectory(ctx, client, f.profile, "INBOX"))

	// A message the sweep has not seen yet.
	f.server.AddMessage("INBOX", &mocks.FakeMessage{MessageID: "m2", Subject: "project budget", Body: "y"})

	// Act: the folder was just synced, so the cache answers alone.
	results, err := f.service.Search(ctx, client, f.profile.ID, "INBOX", "project")

	// Assert
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "m1", results[0].MessageID)
}

func TestSearchStaleCacheMergesRemote(t *testing.T) {
	// Arrange
	ctx := context.Background()
	f := newFixture(t)
	f.server.AddFolder("INBOX", 100)
	f.server.AddMessage("INBOX", &mocks.FakeMessage{MessageID: "m1", Subject: "project update", Body: "x"})
	client := mocks.NewFakeIMAPClient(f.server)
	require.NoError(t, client.Connect(ctx, f.profile))
	_, err := f.service.RefreshList(ctx, client, f.profile)
	require.NoError(t, err)
	require.NoError(t, f.service.SyncDirectory(ctx, client, f.profile, "INBOX"))

	f.server.AddMessage("INBOX", &mocks.FakeMessage{MessageID: "m2", Subject: "project budget", Body: "y"})
	require.NoError(t, f.dirs.MarkStale(ctx, f.profile.ID, "INBOX", true))

	// Act
	results, err := f.service.Search(ctx, client, f.profile.ID, "INBOX", "project")

	// Assert: cached hit plus the remote-only hit, each exactly once.
	require.NoError(t, err)
	require.Len(t, results, 2)
	ids := map[string]bool{}
	for _, e := range results {
		ids[e.MessageID] = true
	}
	assert.True(t, ids["m1"])
	assert.True(t, ids["m2"])
}

func TestSearchRejectsEmptyTerm(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Search(context.Background(), nil, f.profile.ID, "INBOX", "   ")

	assert.ErrorIs(t, err, mailkeep_errors.ErrInvalidInput)
}

func TestExpungeNoPendingIsNoop(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.server.AddFolder("INBOX", 100)
	client := mocks.NewFakeIMAPClient(f.server)
	require.NoError(t, client.Connect(ctx, f.profile))

	err := f.service.Expunge(ctx, client, f.profile.ID, "INBOX")

	assert.NoError(t, err)
}

func TestExpungeRecordsAttemptOnFailure(t *testing.T) {
	// Arrange
	ctx := context.Background()
	f := newFixture(t)
	f.server.AddFolder("INBOX", 100)
	msg := f.server.AddMessage("INBOX", &mocks.FakeMessage{MessageID: "m1", Subject: "s", Body: "b"})
	client := mocks.NewFakeIMAPClient(f.server)
	require.NoError(t, client.Connect(ctx, f.profile))

	op := &models.PendingOperation{
		ProfileID: f.profile.ID,
		Directory: "INBOX",
		ImapUID:   msg.UID,
		Kind:      enum.PendingDelete,
	}
	require.NoError(t, f.pending.Save(ctx, op))
	f.server.FailOnce("DeleteMarked", mailkeep_errors.Connection(assert.AnError))

	// Act
	err := f.service.Expunge(ctx, client, f.profile.ID, "INBOX")

	// Assert
	require.Error(t, err)
	pending, listErr := f.pending.ListByDirectory(ctx, f.profile.ID, "INBOX")
	require.NoError(t, listErr)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].Attempts)
	assert.NotEmpty(t, pending[0].LastError)
}
