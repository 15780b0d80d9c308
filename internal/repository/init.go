package repository

import (
	"gorm.io/gorm"

	"github.com/mailkeep/mailkeep/interfaces"
	"github.com/mailkeep/mailkeep/internal/models"
)

type Repositories struct {
	ProfileRepository          interfaces.ProfileRepository
	DirectoryRepository        interfaces.DirectoryRepository
	EmailRepository            interfaces.EmailRepository
	PendingOperationRepository interfaces.PendingOperationRepository
	ContactRepository          interfaces.ContactRepository
	SettingRepository          interfaces.SettingRepository
}

func InitRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		ProfileRepository:          NewProfileRepository(db),
		DirectoryRepository:        NewDirectoryRepository(db),
		EmailRepository:            NewEmailRepository(db),
		PendingOperationRepository: NewPendingOperationRepository(db),
		ContactRepository:          NewContactRepository(db),
		SettingRepository:          NewSettingRepository(db),
	}
}

func MigrateDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Profile{},
		&models.Directory{},
		&models.Email{},
		&models.PendingOperation{},
		&models.Contact{},
		&models.Setting{},
	)
}
