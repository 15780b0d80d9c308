package mailclient

import (
	"context"
	"sync"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/mailkeep/mailkeep/config"
	mailkeep_errors "github.com/mailkeep/mailkeep/errors"
	"github.com/mailkeep/mailkeep/interfaces"
	"github.com/mailkeep/mailkeep/internal/logger"
	"github.com/mailkeep/mailkeep/internal/models"
	"github.com/mailkeep/mailkeep/internal/tracing"
	"github.com/mailkeep/mailkeep/services/directories"
	"github.com/mailkeep/mailkeep/services/profiles"
)

// MailClientService is the engine facade. Reads answer from the cache;
// anything that needs the wire is funneled through the profile's single
// session goroutine, so no profile ever holds two IMAP connections.
type MailClientService struct {
	cfg        *config.SyncConfig
	log        logger.Logger
	emails     interfaces.EmailRepository
	pendingOps interfaces.PendingOperationRepository
	settings   interfaces.SettingRepository

	profileService   *profiles.ProfileService
	directoryService *directories.DirectoryService

	imapFactory interfaces.IMAPClientFactory
	smtpClient  interfaces.SMTPClient
	dispatcher  interfaces.EventDispatcher

	mu       sync.Mutex
	sessions map[string]*session
	cron     *cron.Cron
	runCtx   context.Context
	cancel   context.CancelFunc
	started  bool
}

func NewMailClientService(
	cfg *config.SyncConfig,
	log logger.Logger,
	emails interfaces.EmailRepository,
	pendingOps interfaces.PendingOperationRepository,
	settings interfaces.SettingRepository,
	profileService *profiles.ProfileService,
	directoryService *directories.DirectoryService,
	imapFactory interfaces.IMAPClientFactory,
	smtpClient interfaces.SMTPClient,
	dispatcher interfaces.EventDispatcher,
) *MailClientService {
	return &MailClientService{
		cfg:              cfg,
		log:              log,
		emails:           emails,
		pendingOps:       pendingOps,
		settings:         settings,
		profileService:   profileService,
		directoryService: directoryService,
		imapFactory:      imapFactory,
		smtpClient:       smtpClient,
		dispatcher:       dispatcher,
		sessions:         make(map[string]*session),
	}
}

// Start brings up one sync session per stored profile and schedules the
// periodic folder-list sweep.
func (s *MailClientService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	profileList, err := s.profileService.List(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to list profiles")
	}

	s.runCtx, s.cancel = context.WithCancel(context.Background())
	s.started = true

	for _, profile := range profileList {
		s.startSessionLocked(profile)
	}

	s.cron = cron.New()
	_, err = s.cron.AddFunc(s.cfg.RefreshSchedule, s.sweepDirectoryLists)
	if err != nil {
		s.log.Errorf("invalid refresh schedule %q: %v", s.cfg.RefreshSchedule, err)
	} else {
		s.cron.Start()
	}

	s.log.Infof("mail client started with %d profiles", len(profileList))
	return nil
}

// Stop cancels in-flight work and waits for every session to close its
// connection.
func (s *MailClientService) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	if s.cron != nil {
		s.cron.Stop()
	}
	s.cancel()
	sessions := make([]*session, 0, len(s.sessions))
	for id, sess := range s.sessions {
		sessions = append(sessions, sess)
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		<-sess.done
	}
	s.dispatcher.Close()
	s.log.Info("mail client stopped")
	return nil
}

func (s *MailClientService) Subscribe(buffer int) (<-chan interfaces.Event, func()) {
	return s.dispatcher.Subscribe(buffer)
}

// sweepDirectoryLists refreshes every profile's folder list in the
// background. Failures mark the cached tree stale and wait for the next
// sweep.
func (s *MailClientService) sweepDirectoryLists() {
	s.mu.Lock()
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	ctx := s.runCtx
	s.mu.Unlock()

	for _, sess := range sessions {
		sess := sess
		go func() {
			err := sess.run(ctx, func(ctx context.Context, client interfaces.IMAPClient) error {
				_, err := s.directoryService.RefreshList(ctx, client, sess.profile)
				return err
			})
			if err != nil {
				s.log.Warnf("directory sweep failed for %s: %v", sess.profile.EmailAddress, err)
			}
		}()
	}
}

// ---- profile management ----

func (s *MailClientService) ListProfiles(ctx context.Context) ([]*models.Profile, error) {
	return s.profileService.List(ctx)
}

func (s *MailClientService) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	return s.profileService.Get(ctx, id)
}

func (s *MailClientService) AddProfile(ctx context.Context, profile *models.Profile) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MailClientService.AddProfile")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	created, err := s.profileService.Add(ctx, profile)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	s.mu.Lock()
	if s.started {
		s.startSessionLocked(created)
	}
	s.mu.Unlock()
	return nil
}

// UpdateProfile persists the new settings and restarts the profile's session
// so the next connection uses them.
func (s *MailClientService) UpdateProfile(ctx context.Context, profile *models.Profile) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MailClientService.UpdateProfile")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagProfile(span, profile.ID)

	updated, err := s.profileService.Update(ctx, profile)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	s.stopSession(profile.ID)
	s.mu.Lock()
	if s.started {
		s.startSessionLocked(updated)
	}
	s.mu.Unlock()
	return nil
}

// RemoveProfile tears down the session first so nothing races the cascade
// delete of the profile's cached data.
func (s *MailClientService) RemoveProfile(ctx context.Context, id string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MailClientService.RemoveProfile")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagProfile(span, id)

	s.stopSession(id)

	err := s.profileService.Remove(ctx, id)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

// ---- configuration ----

func (s *MailClientService) LoadConfiguration(ctx context.Context) (map[string]string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MailClientService.LoadConfiguration")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	return s.settings.GetAll(ctx)
}

func (s *MailClientService) SaveConfiguration(ctx context.Context, settings map[string]string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MailClientService.SaveConfiguration")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if settings == nil {
		return errors.Wrap(mailkeep_errors.ErrInvalidInput, "settings cannot be nil")
	}
	return s.settings.SaveAll(ctx, settings)
}

// ---- session bookkeeping ----

func (s *MailClientService) startSessionLocked(profile *models.Profile) {
	if _, exists := s.sessions[profile.ID]; exists {
		return
	}
	sess := newSession(profile)
	s.sessions[profile.ID] = sess
	go s.runSession(s.runCtx, sess)
}

func (s *MailClientService) stopSession(profileID string) {
	s.mu.Lock()
	sess, ok := s.sessions[profileID]
	if ok {
		delete(s.sessions, profileID)
	}
	s.mu.Unlock()
	if ok {
		sess.stop()
		<-sess.done
	}
}

func (s *MailClientService) session(profileID string) (*session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[profileID]
	if !ok {
		return nil, mailkeep_errors.Connection(errors.Wrapf(mailkeep_errors.ErrSessionClosed, "no session for profile %s", profileID))
	}
	return sess, nil
}
