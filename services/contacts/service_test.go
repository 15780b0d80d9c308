package contacts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mailkeep_errors "github.com/mailkeep/mailkeep/errors"
	"github.com/mailkeep/mailkeep/interfaces"
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

func newService() interfaces.ContactOperations {
	return NewContactService(getLogger(), mocks.NewInMemoryContactRepository())
}

func TestAddAndGetContact(t *testing.T) {
	// Arrange
	ctx := context.Background()
	service := newService()
	contact := &models.Contact{DisplayName: "Alice Smith", EmailAddress: "Alice@Example.com"}

	// Act
	err := service.AddContact(ctx, contact)

	// Assert
	require.NoError(t, err)
	require.NotEmpty(t, contact.ID)
	stored, err := service.GetContact(ctx, contact.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice Smith", stored.DisplayName)
	assert.Equal(t, "alice@example.com", stored.EmailAddress)
}

func TestAddContactRequiresDisplayName(t *testing.T) {
	service := newService()

	err := service.AddContact(context.Background(), &models.Contact{EmailAddress: "x@example.com"})

	assert.ErrorIs(t, err, mailkeep_errors.ErrInvalidInput)
}

func TestAddContactRejectsBadAddress(t *testing.T) {
	service := newService()

	err := service.AddContact(context.Background(), &models.Contact{DisplayName: "Bob", EmailAddress: "nope"})

	assert.ErrorIs(t, err, mailkeep_errors.ErrInvalidInput)
}

func TestAddContactDuplicateAddress(t *testing.T) {
	// Arrange
	ctx := context.Background()
	service := newService()
	require.NoError(t, service.AddContact(ctx, &models.Contact{DisplayName: "Bob", EmailAddress: "bob@example.com"}))

	// Act
	err := service.AddContact(ctx, &models.Contact{DisplayName: "Robert", EmailAddress: "bob@example.com"})

	// Assert
	require.Error(t, err)
	assert.Equal(t, mailkeep_errors.KindConflict, mailkeep_errors.KindOf(err))
	assert.ErrorIs(t, err, mailkeep_errors.ErrContactAlreadyExists)
}

func TestGetContactUnknown(t *testing.T) {
	service := newService()

	_, err := service.GetContact(context.Background(), "cont_missing")

	assert.Equal(t, mailkeep_errors.KindNotFound, mailkeep_errors.KindOf(err))
	assert.ErrorIs(t, err, mailkeep_errors.ErrContactNotFound)
}

func TestSearchContactsMatchesNameAndAddress(t *testing.T) {
	// Arrange
	ctx := context.Background()
	service := newService()
	require.NoError(t, service.AddContact(ctx, &models.Contact{DisplayName: "Alice Smith", EmailAddress: "alice@example.com"}))
	require.NoError(t, service.AddContact(ctx, &models.Contact{DisplayName: "Bob Jones", EmailAddress: "bob@smithfield.org"}))
	require.NoError(t, service.AddContact(ctx, &models.Contact{DisplayName: "Carol", EmailAddress: "carol@example.com"}))

	// Act
	results, err := service.SearchContacts(ctx, "smith")

	// Assert
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "Alice Smith", results[0].DisplayName)
	assert.Equal(t, "Bob Jones", results[1].DisplayName)
}

func TestSearchContactsEmptyTermListsAll(t *testing.T) {
	ctx := context.Background()
	service := newService()
	require.NoError(t, service.AddContact(ctx, &models.Contact{DisplayName: "Alice", EmailAddress: "alice@example.com"}))

	results, err := service.SearchContacts(ctx, "  ")

	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestUpdateContact(t *testing.T) {
	// Arrange
	ctx := context.Background()
	service := newService()
	contact := &models.Contact{DisplayName: "Alice", EmailAddress: "alice@example.com"}
	require.NoError(t, service.AddContact(ctx, contact))

	// Act
	contact.Phone = "+1 555 0100"
	err := service.UpdateContact(ctx, contact)

	// Assert
	require.NoError(t, err)
	stored, err := service.GetContact(ctx, contact.ID)
	require.NoError(t, err)
	assert.Equal(t, "+1 555 0100", stored.Phone)
}

func TestUpdateContactUnknown(t *testing.T) {
	service := newService()

	err := service.UpdateContact(context.Background(), &models.Contact{
		ID:           "cont_missing",
		DisplayName:  "Ghost",
		EmailAddress: "ghost@example.com",
	})

	assert.Equal(t, mailkeep_errors.KindNotFound, mailkeep_errors.KindOf(err))
}

func TestRemoveContact(t *testing.T) {
	// Arrange
	ctx := context.Background()
	service := newService()
	contact := &models.Contact{DisplayName: "Alice", EmailAddress: "alice@example.com"}
	require.NoError(t, service.AddContact(ctx, contact))

	// Act
	err := service.RemoveContact(ctx, contact.ID)

	// Assert
	require.NoError(t, err)
	_, err = service.GetContact(ctx, contact.ID)
	assert.Equal(t, mailkeep_errors.KindNotFound, mailkeep_errors.KindOf(err))
}

func TestRemoveContactUnknown(t *testing.T) {
	service := newService()

	err := service.RemoveContact(context.Background(), "cont_missing")

	assert.Equal(t, mailkeep_errors.KindNotFound, mailkeep_errors.KindOf(err))
}
