package directories

import (
	"context"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"

	mailkeep_errors "github.com/mailkeep/mailkeep/errors"
	"github.com/mailkeep/mailkeep/interfaces"
	"github.com/mailkeep/mailkeep/internal/enum"
	"github.com/mailkeep/mailkeep/internal/logger"
	"github.com/mailkeep/mailkeep/internal/models"
	"github.com/mailkeep/mailkeep/internal/tracing"
	"github.com/mailkeep/mailkeep/internal/utils"
)

// DirectoryService keeps the cached folder tree and its messages in step
// with the server. All remote work goes through the session's IMAP client,
// which the caller passes in; this service never opens connections itself.
type DirectoryService struct {
	log         logger.Logger
	directories interfaces.DirectoryRepository
	emails      interfaces.EmailRepository
	pendingOps  interfaces.PendingOperationRepository
	dispatcher  interfaces.EventDispatcher
	staleAfter  time.Duration
}

func NewDirectoryService(
	log logger.Logger,
	directories interfaces.DirectoryRepository,
	emails interfaces.EmailRepository,
	pendingOps interfaces.PendingOperationRepository,
	dispatcher interfaces.EventDispatcher,
	staleAfter time.Duration,
) *DirectoryService {
	return &DirectoryService{
		log:         log,
		directories: directories,
		emails:      emails,
		pendingOps:  pendingOps,
		dispatcher:  dispatcher,
		staleAfter:  staleAfter,
	}
}

func (s *DirectoryService) ListCached(ctx context.Context, profileID string) ([]*models.Directory, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DirectoryService.ListCached")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagProfile(span, profileID)

	return s.directories.ListByProfile(ctx, profileID)
}

// RefreshList replaces the cached folder set with what the server reports.
// Folders that disappeared take their cached messages with them; folders
// whose UIDVALIDITY changed are wiped and resynced from scratch.
func (s *DirectoryService) RefreshList(ctx context.Context, client interfaces.IMAPClient, profile *models.Profile) ([]*models.Directory, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DirectoryService.RefreshList")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagProfile(span, profile.ID)

	names, err := client.ListDirectories(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		s.markAllStale(ctx, profile.ID)
		return nil, err
	}

	remote := make([]*models.Directory, 0, len(names))
	for _, name := range names {
		status, err := client.SelectDirectory(ctx, name)
		if err != nil {
			// Some servers list folders that cannot be examined. Skip them
			// rather than failing the whole refresh.
			s.log.Warnf("skipping folder %s for %s: %v", name, profile.EmailAddress, err)
			continue
		}
		remote = append(remote, &models.Directory{
			ProfileID:   profile.ID,
			Name:        name,
			UIDValidity: status.UIDValidity,
			TotalCount:  int(status.Messages),
			UnreadCount: int(status.Unseen),
			LastRefresh: utils.NowPtr(),
		})
	}

	if err := s.directories.ReplaceForProfile(ctx, profile.ID, remote); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	span.LogFields(tracingLog.Int("directories", len(remote)))
	return s.directories.ListByProfile(ctx, profile.ID)
}

// SyncDirectory brings one folder's cached headers up to date. New messages
// arrive incrementally past the last seen UID; a UIDVALIDITY change discards
// the folder's cache first because every stored UID is void.
func (s *DirectoryService) SyncDirectory(ctx context.Context, client interfaces.IMAPClient, profile *models.Profile, name string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DirectoryService.SyncDirectory")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagProfile(span, profile.ID)
	tracing.TagDirectory(span, name)

	directory, err := s.directories.GetByName(ctx, profile.ID, name)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if directory == nil {
		err = mailkeep_errors.NotFound(errors.Wrapf(mailkeep_errors.ErrDirectoryNotFound, "directory %s", name))
		tracing.TraceErr(span, err)
		return err
	}

	status, err := client.SelectDirectory(ctx, name)
	if err != nil {
		tracing.TraceErr(span, err)
		if markErr := s.directories.MarkStale(ctx, profile.ID, name, true); markErr != nil {
			s.log.Errorf("failed to mark %s stale: %v", name, markErr)
		}
		return err
	}

	if directory.UIDValidity != 0 && directory.UIDValidity != status.UIDValidity {
		s.log.Warnf("uidvalidity changed for %s/%s (%d -> %d), resyncing folder",
			profile.EmailAddress, name, directory.UIDValidity, status.UIDValidity)
		if err = s.emails.DeleteByDirectory(ctx, profile.ID, name); err != nil {
			tracing.TraceErr(span, err)
			return err
		}
		directory.LastUID = 0
	}
	directory.UIDValidity = status.UIDValidity

	headers, err := client.FetchHeaders(ctx, name, directory.LastUID)
	if err != nil {
		tracing.TraceErr(span, err)
		if markErr := s.directories.MarkStale(ctx, profile.ID, name, true); markErr != nil {
			s.log.Errorf("failed to mark %s stale: %v", name, markErr)
		}
		return err
	}

	for _, header := range headers {
		header.ProfileID = profile.ID
		if err = s.emails.UpsertHeader(ctx, header); err != nil {
			tracing.TraceErr(span, err)
			return err
		}
		if header.ImapUID > directory.LastUID {
			directory.LastUID = header.ImapUID
		}
	}

	directory.TotalCount = int(status.Messages)
	directory.UnreadCount = int(status.Unseen)
	directory.LastRefresh = utils.NowPtr()
	directory.Stale = false
	if err = s.directories.Save(ctx, directory); err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	if len(headers) > 0 {
		s.dispatcher.Publish(ctx, interfaces.Event{
			Type:      interfaces.EventDirectoryUpdated,
			ProfileID: profile.ID,
			Directory: name,
		})
	}
	span.LogFields(tracingLog.Int("new_headers", len(headers)))
	return nil
}

// Search runs the query against the local cache and, when the cached folder
// view is stale, also against the server, merging by message id so a hit
// never appears twice.
func (s *DirectoryService) Search(ctx context.Context, client interfaces.IMAPClient, profileID, directory, term string) ([]*models.Email, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DirectoryService.Search")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagProfile(span, profileID)
	tracing.TagDirectory(span, directory)

	term = strings.TrimSpace(term)
	if term == "" {
		return nil, errors.Wrap(mailkeep_errors.ErrInvalidInput, "search term is required")
	}

	local, err := s.emails.SearchLocal(ctx, profileID, directory, term)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	if client == nil || directory == "" {
		return local, nil
	}

	// A fresh cache already holds every header the server would report, so
	// the remote leg only runs when the folder view has gone stale.
	cached, err := s.directories.GetByName(ctx, profileID, directory)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if cached == nil || !cached.IsStale(s.staleAfter) {
		return local, nil
	}

	remoteUIDs, err := client.Search(ctx, directory, term)
	if err != nil {
		// Offline search degrades to cached results.
		s.log.Warnf("remote search failed for %s, returning cached matches: %v", directory, err)
		span.LogFields(tracingLog.String("remote_search", err.Error()))
		return local, nil
	}

	seen := make(map[string]bool, len(local))
	byUID := make(map[uint32]bool, len(local))
	for _, email := range local {
		if email.MessageID != "" {
			seen[email.MessageID] = true
		}
		byUID[email.ImapUID] = true
	}

	merged := local
	for _, uid := range remoteUIDs {
		if byUID[uid] {
			continue
		}
		email, err := s.emails.GetByUID(ctx, profileID, directory, uid)
		if err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}
		if email == nil {
			// Not cached yet. Pull just this message's header.
			fetched, err := client.FetchBody(ctx, directory, uid)
			if err != nil {
				s.log.Warnf("could not fetch search hit uid %d in %s: %v", uid, directory, err)
				continue
			}
			fetched.ProfileID = profileID
			if err = s.emails.UpsertHeader(ctx, fetched); err != nil {
				tracing.TraceErr(span, err)
				return nil, err
			}
			email = fetched
		}
		if email.MessageID != "" && seen[email.MessageID] {
			continue
		}
		merged = append(merged, email)
	}

	return merged, nil
}

// Expunge replays pending delete markers for the folder and removes from the
// cache only the rows the server confirmed gone.
func (s *DirectoryService) Expunge(ctx context.Context, client interfaces.IMAPClient, profileID, directory string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DirectoryService.Expunge")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagProfile(span, profileID)
	tracing.TagDirectory(span, directory)

	pending, err := s.pendingOps.ListByDirectory(ctx, profileID, directory)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	var uids []uint32
	opByUID := make(map[uint32]*models.PendingOperation)
	for _, op := range pending {
		if op.Kind != enum.PendingDelete {
			continue
		}
		uids = append(uids, op.ImapUID)
		opByUID[op.ImapUID] = op
	}
	if len(uids) == 0 {
		return nil
	}

	removed, err := client.DeleteMarked(ctx, directory, uids)
	if err != nil {
		tracing.TraceErr(span, err)
		for _, op := range opByUID {
			if recErr := s.pendingOps.RecordAttempt(ctx, op.ID, err.Error()); recErr != nil {
				s.log.Errorf("failed to record expunge attempt: %v", recErr)
			}
		}
		return err
	}

	for _, uid := range removed {
		if err = s.emails.Delete(ctx, profileID, directory, uid); err != nil {
			tracing.TraceErr(span, err)
			return err
		}
		if op := opByUID[uid]; op != nil {
			if err = s.pendingOps.Delete(ctx, op.ID); err != nil {
				tracing.TraceErr(span, err)
				return err
			}
		}
		s.dispatcher.Publish(ctx, interfaces.Event{
			Type:      interfaces.EventEmailDeleted,
			ProfileID: profileID,
			Directory: directory,
			UID:       uid,
		})
	}

	span.LogFields(tracingLog.Int("requested", len(uids)), tracingLog.Int("removed", len(removed)))
	return nil
}

func (s *DirectoryService) markAllStale(ctx context.Context, profileID string) {
	cached, err := s.directories.ListByProfile(ctx, profileID)
	if err != nil {
		s.log.Errorf("failed to list directories for %s: %v", profileID, err)
		return
	}
	for _, directory := range cached {
		if err := s.directories.MarkStale(ctx, profileID, directory.Name, true); err != nil {
			s.log.Errorf("failed to mark %s stale: %v", directory.Name, err)
		}
	}
}
