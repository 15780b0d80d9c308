package interfaces

import (
	"context"

	"github.com/mailkeep/mailkeep/internal/enum"
	"github.com/mailkeep/mailkeep/internal/models"
)

// MailClientOperations is the single entry point the presentation layer
// consumes. Reads are answered from the local cache whenever possible;
// mutations update the cache optimistically and reconcile against the remote
// session in the background.
type MailClientOperations interface {
	// Lifecycle. Start brings up per-profile sync sessions and the periodic
	// refresh sweep; Stop cancels in-flight work and closes sessions.
	Start(ctx context.Context) error
	Stop() error

	// Profile management.
	ListProfiles(ctx context.Context) ([]*models.Profile, error)
	GetProfile(ctx context.Context, id string) (*models.Profile, error)
	AddProfile(ctx context.Context, profile *models.Profile) error
	UpdateProfile(ctx context.Context, profile *models.Profile) error
	RemoveProfile(ctx context.Context, id string) error

	// Directory and message access.
	ListDirectories(ctx context.Context, profileID string) ([]*models.Directory, error)
	GetEmails(ctx context.Context, profileID, directory string) ([]*models.Email, error)
	SearchEmails(ctx context.Context, profileID, directory, term string) ([]*models.Email, error)
	GetEmailBody(ctx context.Context, profileID, directory string, uid uint32) (*models.Email, error)

	// Mutations.
	RemoveEmail(ctx context.Context, profileID, directory string, uid uint32, messageID string) error
	FlagEmail(ctx context.Context, profileID, directory string, uid uint32, flag enum.EmailFlag) error
	MarkSeen(ctx context.Context, profileID, directory string, uid uint32) error
	PurgeDeleted(ctx context.Context, profileID, directory string) error
	SendEmail(ctx context.Context, email *models.Email) error

	// Configuration.
	LoadConfiguration(ctx context.Context) (map[string]string, error)
	SaveConfiguration(ctx context.Context, settings map[string]string) error

	// Notification channel back to the presentation layer.
	Subscribe(buffer int) (<-chan Event, func())
}

// ContactOperations is the address-book surface; local CRUD plus search, no
// remote sync.
type ContactOperations interface {
	ListContacts(ctx context.Context) ([]*models.Contact, error)
	GetContact(ctx context.Context, id string) (*models.Contact, error)
	SearchContacts(ctx context.Context, term string) ([]*models.Contact, error)
	AddContact(ctx context.Context, contact *models.Contact) error
	UpdateContact(ctx context.Context, contact *models.Contact) error
	RemoveContact(ctx context.Context, id string) error
}
