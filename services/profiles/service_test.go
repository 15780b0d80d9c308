package profiles

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mailkeep_errors "github.com/mailkeep/mailkeep/errors"
	"github.com/mailkeep/mailkeep/internal/enum"
	"github.com/mailkeep/mailkeep/internal/logger"
	"github.com/mailkeep/mailkeep/internal/mocks"
	"github.com/mailkeep/mailkeep/internal/models"
)

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode: true,
	})
	appLogger.InitLogger()
	return appLogger
}

func newService() (*ProfileService, *mocks.InMemoryProfileRepository, *mocks.InMemoryEmailRepository, *mocks.InMemoryPendingOperationRepository) {
	profiles := mocks.NewInMemoryProfileRepository()
	emails := mocks.NewInMemoryEmailRepository()
	dirs := mocks.NewInMemoryDirectoryRepository(emails)
	pending := mocks.NewInMemoryPendingOperationRepository()
	return NewProfileService(getLogger(), profiles, dirs, emails, pending), profiles, emails, pending
}

func validProfile() *models.Profile {
	return &models.Profile{
		EmailAddress: "user@example.com",
		ImapServer:   "imap.example.com",
		ImapPort:     993,
		SmtpServer:   "smtp.example.com",
		SmtpPort:     587,
	}
}

func TestAddNormalizesAndDefaults(t *testing.T) {
	// Arrange
	ctx := context.Background()
	service, _, _, _ := newService()
	profile := validProfile()
	profile.EmailAddress = "User@Example.COM"

	// Act
	added, err := service.Add(ctx, profile)

	// Assert
	require.NoError(t, err)
	assert.NotEmpty(t, added.ID)
	assert.Equal(t, "user@example.com", added.EmailAddress)
	assert.Equal(t, "Sent", added.SentFolder)
	assert.Equal(t, enum.ConnectionNotActive, added.ConnectionStatus)
}

func TestAddRejectsBadAddress(t *testing.T) {
	ctx := context.Background()
	service, _, _, _ := newService()
	profile := validProfile()
	profile.EmailAddress = "not an address"

	_, err := service.Add(ctx, profile)

	assert.ErrorIs(t, err, mailkeep_errors.ErrInvalidInput)
}

func TestAddRejectsMissingServers(t *testing.T) {
	ctx := context.Background()
	service, _, _, _ := newService()
	profile := validProfile()
	profile.SmtpServer = ""

	_, err := service.Add(ctx, profile)

	assert.ErrorIs(t, err, mailkeep_errors.ErrInvalidInput)
}

func TestAddDuplicateAddressConflicts(t *testing.T) {
	// Arrange
	ctx := context.Background()
	service, _, _, _ := newService()
	_, err := service.Add(ctx, validProfile())
	require.NoError(t, err)

	// Act
	_, err = service.Add(ctx, validProfile())

	// Assert
	require.Error(t, err)
	assert.Equal(t, mailkeep_errors.KindConflict, mailkeep_errors.KindOf(err))
	assert.ErrorIs(t, err, mailkeep_errors.ErrProfileAlreadyExists)
}

func TestGetUnknown(t *testing.T) {
	service, _, _, _ := newService()

	_, err := service.Get(context.Background(), "prof_missing")

	require.Error(t, err)
	assert.Equal(t, mailkeep_errors.KindNotFound, mailkeep_errors.KindOf(err))
	assert.ErrorIs(t, err, mailkeep_errors.ErrProfileNotFound)
}

func TestUpdateResetsConnectionStatus(t *testing.T) {
	// Arrange
	ctx := context.Background()
	service, profiles, _, _ := newService()
	added, err := service.Add(ctx, validProfile())
	require.NoError(t, err)
	service.MarkConnection(ctx, added.ID, enum.ConnectionActive, "")

	// Act
	added.ImapServer = "imap2.example.com"
	updated, err := service.Update(ctx, added)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, enum.ConnectionNotActive, updated.ConnectionStatus)
	stored, err := profiles.GetByID(ctx, added.ID)
	require.NoError(t, err)
	assert.Equal(t, "imap2.example.com", stored.ImapServer)
	assert.Equal(t, added.CreatedAt, stored.CreatedAt)
}

func TestUpdateRequiresID(t *testing.T) {
	service, _, _, _ := newService()

	_, err := service.Update(context.Background(), validProfile())

	assert.ErrorIs(t, err, mailkeep_errors.ErrInvalidInput)
}

func TestRemoveCascades(t *testing.T) {
	// Arrange
	ctx := context.Background()
	service, profiles, emails, pending := newService()
	added, err := service.Add(ctx, validProfile())
	require.NoError(t, err)
	require.NoError(t, emails.UpsertHeader(ctx, &models.Email{
		ProfileID: added.ID,
		Directory: "INBOX",
		ImapUID:   1,
		MessageID: "m1",
	}))
	require.NoError(t, pending.Save(ctx, &models.PendingOperation{
		ProfileID: added.ID,
		Directory: "INBOX",
		ImapUID:   1,
		Kind:      enum.PendingDelete,
	}))

	// Act
	err = service.Remove(ctx, added.ID)

	// Assert
	require.NoError(t, err)
	stored, err := profiles.GetByID(ctx, added.ID)
	require.NoError(t, err)
	assert.Nil(t, stored)
	assert.Zero(t, emails.Count())
	assert.Zero(t, pending.Count())
}

func TestRemoveUnknown(t *testing.T) {
	service, _, _, _ := newService()

	err := service.Remove(context.Background(), "prof_missing")

	assert.Equal(t, mailkeep_errors.KindNotFound, mailkeep_errors.KindOf(err))
}

func TestMarkConnectionRecordsDetail(t *testing.T) {
	// Arrange
	ctx := context.Background()
	service, profiles, _, _ := newService()
	added, err := service.Add(ctx, validProfile())
	require.NoError(t, err)

	// Act
	service.MarkConnection(ctx, added.ID, enum.ConnectionAuthError, "LOGIN failed")

	// Assert
	stored, err := profiles.GetByID(ctx, added.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.ConnectionAuthError, stored.ConnectionStatus)
	assert.Equal(t, "LOGIN failed", stored.ErrorMessage)
}
