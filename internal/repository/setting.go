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

type settingRepository struct {
	db *gorm.DB
}

func NewSettingRepository(db *gorm.DB) interfaces.SettingRepository {
	return &settingRepository{db: db}
}

func (r *settingRepository) GetAll(ctx context.Context) (map[string]string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "settingRepository.GetAll")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var settings []models.Setting
	if err := r.db.WithContext(ctx).Find(&settings).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	result := make(map[string]string, len(settings))
	for _, s := range settings {
		result[s.Key] = s.Value
	}
	return result, nil
}

func (r *settingRepository) SaveAll(ctx context.Context, settings map[string]string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "settingRepository.SaveAll")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for key, value := range settings {
			result := tx.Model(&models.Setting{}).
				Where("key = ?", key).
				Updates(map[string]interface{}{
					"value":      value,
					"updated_at": utils.Now(),
				})
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				if err := tx.Create(&models.Setting{Key: key, Value: value}).Error; err != nil {
					return err
				}
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

func (r *settingRepository) Get(ctx context.Context, key string) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "settingRepository.Get")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var setting models.Setting
	if err := r.db.WithContext(ctx).Where("key = ?", key).First(&setting).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		tracing.TraceErr(span, err)
		return "", err
	}
	return setting.Value, nil
}

func (r *settingRepository) Set(ctx context.Context, key, value string) error {
	return r.SaveAll(ctx, map[string]string{key: value})
}
