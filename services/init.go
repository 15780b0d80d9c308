package services

import (
	"github.com/mailkeep/mailkeep/config"
	"github.com/mailkeep/mailkeep/interfaces"
	"github.com/mailkeep/mailkeep/internal/logger"
	"github.com/mailkeep/mailkeep/internal/repository"
	"github.com/mailkeep/mailkeep/services/contacts"
	"github.com/mailkeep/mailkeep/services/directories"
	"github.com/mailkeep/mailkeep/services/events"
	"github.com/mailkeep/mailkeep/services/imap"
	"github.com/mailkeep/mailkeep/services/mailclient"
	"github.com/mailkeep/mailkeep/services/profiles"
	"github.com/mailkeep/mailkeep/services/smtp"
)

type Services struct {
	EventDispatcher  interfaces.EventDispatcher
	ProfileService   *profiles.ProfileService
	DirectoryService *directories.DirectoryService
	MailClient       interfaces.MailClientOperations
	Contacts         interfaces.ContactOperations
}

func InitServices(cfg *config.Config, log logger.Logger, repos *repository.Repositories) *Services {
	dispatcher := events.NewDispatcher(log)

	profileService := profiles.NewProfileService(
		log,
		repos.ProfileRepository,
		repos.DirectoryRepository,
		repos.EmailRepository,
		repos.PendingOperationRepository,
	)

	directoryService := directories.NewDirectoryService(
		log,
		repos.DirectoryRepository,
		repos.EmailRepository,
		repos.PendingOperationRepository,
		dispatcher,
		cfg.SyncConfig.StaleAfter,
	)

	imapFactory := func() interfaces.IMAPClient {
		return imap.NewIMAPClient(imap.Options{
			ConnectTimeout: cfg.SyncConfig.ConnectTimeout,
			CommandTimeout: cfg.SyncConfig.CommandTimeout,
			FetchBatchSize: cfg.SyncConfig.FetchBatchSize,
		}, log)
	}

	mailClient := mailclient.NewMailClientService(
		cfg.SyncConfig,
		log,
		repos.EmailRepository,
		repos.PendingOperationRepository,
		repos.SettingRepository,
		profileService,
		directoryService,
		imapFactory,
		smtp.NewSMTPClient(log),
		dispatcher,
	)

	return &Services{
		EventDispatcher:  dispatcher,
		ProfileService:   profileService,
		DirectoryService: directoryService,
		MailClient:       mailClient,
		Contacts:         contacts.NewContactService(log, repos.ContactRepository),
	}
}
