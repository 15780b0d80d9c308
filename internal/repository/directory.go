package repository

import (
	"context"
	"errors"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	mailkeep_errors "github.com/mailkeep/mailkeep/errors"
	"github.com/mailkeep/mailkeep/interfaces"
	"github.com/mailkeep/mailkeep/internal/models"
	"github.com/mailkeep/mailkeep/internal/tracing"
	"github.com/mailkeep/mailkeep/internal/utils"
)

type directoryRepository struct {
	db *gorm.DB
}

func NewDirectoryRepository(db *gorm.DB) interfaces.DirectoryRepository {
	return &directoryRepository{db: db}
}

func (r *directoryRepository) Save(ctx context.Context, directory *models.Directory) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "directoryRepository.Save")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	// Try to update first
	result := r.db.WithContext(ctx).
		Model(&models.Directory{}).
		Where("profile_id = ? AND name = ?", directory.ProfileID, directory.Name).
		Updates(map[string]interface{}{
			"uid_validity": directory.UIDValidity,
			"last_uid":     directory.LastUID,
			"total_count":  directory.TotalCount,
			"unread_count": directory.UnreadCount,
			"last_refresh": directory.LastRefresh,
			"stale":        directory.Stale,
			"updated_at":   utils.Now(),
		})

	// If no record was updated, create a new one
	if result.Error == nil && result.RowsAffected == 0 {
		result = r.db.WithContext(ctx).Create(directory)
	}

	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return mailkeep_errors.Storage(result.Error)
	}
	return nil
}

func (r *directoryRepository) GetByName(ctx context.Context, profileID, name string) (*models.Directory, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "directoryRepository.GetByName")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var directory models.Directory
	if err := r.db.WithContext(ctx).
		Where("profile_id = ? AND name = ?", profileID, name).
		First(&directory).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &directory, nil
}

func (r *directoryRepository) ListByProfile(ctx context.Context, profileID string) ([]*models.Directory, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "directoryRepository.ListByProfile")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var directories []*models.Directory
	if err := r.db.WithContext(ctx).
		Where("profile_id = ?", profileID).
		Order("name asc").
		Find(&directories).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return directories, nil
}

// ReplaceForProfile swaps the cached directory set. Sync state of folders
// that still exist on the server is preserved unless their UIDVALIDITY
// changed, in which case the cached UID set is no longer meaningful.
func (r *directoryRepository) ReplaceForProfile(ctx context.Context, profileID string, directories []*models.Directory) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "directoryRepository.ReplaceForProfile")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagProfile(span, profileID)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []*models.Directory
		if err := tx.Where("profile_id = ?", profileID).Find(&existing).Error; err != nil {
			return err
		}
		existingByName := make(map[string]*models.Directory, len(existing))
		for _, d := range existing {
			existingByName[d.Name] = d
		}

		keep := make(map[string]bool, len(directories))
		for _, d := range directories {
			keep[d.Name] = true
			prev, known := existingByName[d.Name]
			if known && (d.UIDValidity == 0 || prev.UIDValidity == d.UIDValidity) {
				d.ID = prev.ID
				d.LastUID = prev.LastUID
				d.LastRefresh = prev.LastRefresh
				d.Stale = prev.Stale
				if d.UIDValidity == 0 {
					d.UIDValidity = prev.UIDValidity
				}
				if err := tx.Model(&models.Directory{}).Where("id = ?", prev.ID).Updates(map[string]interface{}{
					"uid_validity": d.UIDValidity,
					"last_uid":     d.LastUID,
					"total_count":  d.TotalCount,
					"unread_count": d.UnreadCount,
					"updated_at":   utils.Now(),
				}).Error; err != nil {
					return err
				}
				continue
			}
			if known {
				// UIDVALIDITY changed: drop the stale row and its mail
				if err := tx.Where("id = ?", prev.ID).Delete(&models.Directory{}).Error; err != nil {
					return err
				}
				if err := tx.Where("profile_id = ? AND directory = ?", profileID, d.Name).
					Delete(&models.Email{}).Error; err != nil {
					return err
				}
			}
			d.ID = ""
			d.Stale = true
			if err := tx.Create(d).Error; err != nil {
				return err
			}
		}

		for name, d := range existingByName {
			if keep[name] {
				continue
			}
			if err := tx.Where("id = ?", d.ID).Delete(&models.Directory{}).Error; err != nil {
				return err
			}
			if err := tx.Where("profile_id = ? AND directory = ?", profileID, name).
				Delete(&models.Email{}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return mailkeep_errors.Storage(err)
	}
	return nil
}

func (r *directoryRepository) MarkStale(ctx context.Context, profileID, name string, stale bool) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "directoryRepository.MarkStale")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	result := r.db.WithContext(ctx).
		Model(&models.Directory{}).
		Where("profile_id = ? AND name = ?", profileID, name).
		Updates(map[string]interface{}{
			"stale":      stale,
			"updated_at": utils.Now(),
		})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return mailkeep_errors.Storage(result.Error)
	}
	return nil
}

func (r *directoryRepository) DeleteByProfile(ctx context.Context, profileID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "directoryRepository.DeleteByProfile")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	result := r.db.WithContext(ctx).
		Where("profile_id = ?", profileID).
		Delete(&models.Directory{})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return mailkeep_errors.Storage(result.Error)
	}
	return nil
}
