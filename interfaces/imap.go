package interfaces

import (
	"context"

	"github.com/mailkeep/mailkeep/internal/enum"
	"github.com/mailkeep/mailkeep/internal/models"
)

// DirectoryStatus is the server-side state of a selected folder.
type DirectoryStatus struct {
	Name        string
	UIDValidity uint32
	UIDNext     uint32
	Messages    uint32
	Unseen      uint32
}

// IMAPClient is one logical IMAP session for a single profile. Implementations
// own only live connection state; everything they learn flows into the cache
// through the caller. All mutating calls are idempotent: repeating SetFlag
// with the same value is a no-op server-side and does not error locally.
type IMAPClient interface {
	// Connect dials and authenticates. Returns a connection-classified error
	// on network failure and an authentication-classified error on refused
	// credentials.
	Connect(ctx context.Context, profile *models.Profile) error
	Close() error

	ListDirectories(ctx context.Context) ([]string, error)

	// SelectDirectory selects the folder and returns its status. Re-selecting
	// a different folder always issues a SELECT round trip, since UID validity
	// may have changed.
	SelectDirectory(ctx context.Context, directory string) (*DirectoryStatus, error)

	// FetchHeaders fetches headers for all UIDs strictly greater than
	// uidAfter. The server may return fewer messages than the UID range
	// suggests; UIDs are not contiguous.
	FetchHeaders(ctx context.Context, directory string, uidAfter uint32) ([]*models.Email, error)

	// FetchBody fetches and parses the full message. A vanished UID yields a
	// not-found-classified error, to be treated as "moved or deleted since
	// last refresh", not as fatal.
	FetchBody(ctx context.Context, directory string, uid uint32) (*models.Email, error)

	// Search runs a UID SEARCH for the term over subject/from/body.
	Search(ctx context.Context, directory string, term string) ([]uint32, error)

	SetFlag(ctx context.Context, directory string, uid uint32, flag enum.EmailFlag, value bool) error

	// DeleteMarked expunges the given UIDs and returns the set the server
	// actually removed, which may be a subset. The caller reconciles; it must
	// not assume success for UIDs absent from the returned set.
	DeleteMarked(ctx context.Context, directory string, uids []uint32) ([]uint32, error)
}

// IMAPClientFactory builds a session; injected so tests can supply fakes.
type IMAPClientFactory func() IMAPClient
