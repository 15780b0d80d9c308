package interfaces

import (
	"context"

	"github.com/mailkeep/mailkeep/internal/enum"
	"github.com/mailkeep/mailkeep/internal/models"
)

type ProfileRepository interface {
	Create(ctx context.Context, profile *models.Profile) error
	Update(ctx context.Context, profile *models.Profile) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*models.Profile, error)
	GetByEmailAddress(ctx context.Context, emailAddress string) (*models.Profile, error)
	List(ctx context.Context) ([]*models.Profile, error)
	UpdateConnectionStatus(ctx context.Context, id string, status enum.ConnectionStatus, errorMessage string) error
}

type DirectoryRepository interface {
	Save(ctx context.Context, directory *models.Directory) error
	GetByName(ctx context.Context, profileID, name string) (*models.Directory, error)
	ListByProfile(ctx context.Context, profileID string) ([]*models.Directory, error)
	// ReplaceForProfile swaps the cached directory set for the profile with
	// the given one, preserving sync state of directories that persist.
	ReplaceForProfile(ctx context.Context, profileID string, directories []*models.Directory) error
	MarkStale(ctx context.Context, profileID, name string, stale bool) error
	DeleteByProfile(ctx context.Context, profileID string) error
}

type EmailRepository interface {
	// UpsertHeader inserts or replaces the row keyed by (profile, directory,
	// uid). A message-id collision in another directory of the same profile
	// is treated as a move: the existing row is re-pointed, not duplicated.
	UpsertHeader(ctx context.Context, email *models.Email) error
	Update(ctx context.Context, email *models.Email) error
	GetByUID(ctx context.Context, profileID, directory string, uid uint32) (*models.Email, error)
	GetByMessageID(ctx context.Context, profileID, messageID string) (*models.Email, error)
	// ListByDirectory returns headers ordered by timestamp descending. The
	// ordering is a user-facing contract.
	ListByDirectory(ctx context.Context, profileID, directory string) ([]*models.Email, error)
	// SearchLocal does a case-insensitive substring match over subject,
	// sender and body text.
	SearchLocal(ctx context.Context, profileID, directory, term string) ([]*models.Email, error)
	// Delete removes a cached row; only called after remote confirmation.
	Delete(ctx context.Context, profileID, directory string, uid uint32) error
	DeleteByDirectory(ctx context.Context, profileID, directory string) error
	DeleteByProfile(ctx context.Context, profileID string) error
}

type PendingOperationRepository interface {
	Save(ctx context.Context, op *models.PendingOperation) error
	ListByProfile(ctx context.Context, profileID string) ([]*models.PendingOperation, error)
	ListByDirectory(ctx context.Context, profileID, directory string) ([]*models.PendingOperation, error)
	Delete(ctx context.Context, id string) error
	RecordAttempt(ctx context.Context, id string, attemptErr string) error
	DeleteByProfile(ctx context.Context, profileID string) error
}

type ContactRepository interface {
	Create(ctx context.Context, contact *models.Contact) error
	Update(ctx context.Context, contact *models.Contact) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*models.Contact, error)
	List(ctx context.Context) ([]*models.Contact, error)
	Search(ctx context.Context, term string) ([]*models.Contact, error)
}

type SettingRepository interface {
	GetAll(ctx context.Context) (map[string]string, error)
	SaveAll(ctx context.Context, settings map[string]string) error
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}
