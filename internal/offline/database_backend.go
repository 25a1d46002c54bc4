package offline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hearthly/hearth/internal/database"
	"github.com/hearthly/hearth/internal/models"
	apperrors "github.com/hearthly/hearth/pkg/errors"
)

const insertBatchSize = 200

// DatabaseBackend stores collections and metadata in the offline tables of a gorm database.
type DatabaseBackend struct {
	db    *gorm.DB
	quota int64
	owned bool
}

// NewDatabaseBackend wraps an already migrated handle. A zero quota disables usage reporting.
func NewDatabaseBackend(db *gorm.DB, quotaBytes int64) *DatabaseBackend {
	if db == nil {
		return nil
	}
	return &DatabaseBackend{db: db, quota: quotaBytes}
}

// DatabaseOpener returns an Opener serving a shared handle. A nil handle means
// no persistent storage could be opened.
func DatabaseOpener(db *gorm.DB, quotaBytes int64) Opener {
	return func(ctx context.Context) (Backend, error) {
		if db == nil {
			return nil, apperrors.ErrStorageUnavailable
		}
		if err := database.MigrateOffline(db.WithContext(ctx)); err != nil {
			return nil, fmt.Errorf("offline: migrate: %w", err)
		}
		return NewDatabaseBackend(db, quotaBytes), nil
	}
}

// FileOpener opens a dedicated sqlite file. Failure to open the file is reported as
// ErrStorageUnavailable.
func FileOpener(path string, quotaBytes int64) Opener {
	return func(ctx context.Context) (Backend, error) {
		db, err := database.Open(database.Config{Driver: "sqlite", Path: path})
		if err != nil {
			return nil, apperrors.ErrStorageUnavailable.WithInternal(err)
		}
		if err := database.MigrateOffline(db.WithContext(ctx)); err != nil {
			_ = database.Close(db)
			return nil, fmt.Errorf("offline: migrate: %w", err)
		}
		backend := NewDatabaseBackend(db, quotaBytes)
		backend.owned = true
		return backend, nil
	}
}

func (b *DatabaseBackend) ReplaceCollection(ctx context.Context, entity string, records []Record, cachedAt time.Time) error {
	rows := make([]models.CachedRecord, 0, len(records))
	for i, r := range records {
		data := r.Data
		if len(data) == 0 {
			data = []byte("null")
		}
		rows = append(rows, models.CachedRecord{
			Entity:   entity,
			RecordID: r.ID,
			Position: i,
			Data:     datatypes.JSON(data),
			Size:     int64(len(data)),
			CachedAt: cachedAt,
		})
	}

	return b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("entity = ?", entity).Delete(&models.CachedRecord{}).Error; err != nil {
			return err
		}
		if len(rows) > 0 {
			if err := tx.CreateInBatches(&rows, insertBatchSize).Error; err != nil {
				return err
			}
		}
		if err := putMeta(tx, CachedAtKey(entity), strconv.FormatInt(cachedAt.UnixMilli(), 10)); err != nil {
			return err
		}
		if b.quota <= 0 {
			return nil
		}
		used, err := usedBytes(tx)
		if err != nil {
			return err
		}
		if used > b.quota {
			return apperrors.ErrQuotaExceeded
		}
		return nil
	})
}

func (b *DatabaseBackend) Collection(ctx context.Context, entity string) ([]Record, error) {
	var rows []models.CachedRecord
	if err := b.db.WithContext(ctx).
		Where("entity = ?", entity).
		Order("position ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, Record{ID: row.RecordID, Data: []byte(row.Data)})
	}
	return records, nil
}

func (b *DatabaseBackend) DeleteCollection(ctx context.Context, entity string) (int64, error) {
	var freed int64
	err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var size int64
		if err := tx.Model(&models.CachedRecord{}).
			Where("entity = ?", entity).
			Select("COALESCE(SUM(size), 0)").
			Scan(&size).Error; err != nil {
			return err
		}

		var stamp models.Metadata
		err := tx.Take(&stamp, "key = ?", CachedAtKey(entity)).Error
		switch {
		case err == nil:
			size += metaSize(stamp.Key, stamp.Value)
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		if err := tx.Where("entity = ?", entity).Delete(&models.CachedRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("key = ?", CachedAtKey(entity)).Delete(&models.Metadata{}).Error; err != nil {
			return err
		}
		freed = size
		return nil
	})
	return freed, err
}

func (b *DatabaseBackend) Collections(ctx context.Context) ([]CollectionInfo, error) {
	var stamps []models.Metadata
	if err := b.db.WithContext(ctx).
		Where("key LIKE ?", "%"+cachedAtSuffix).
		Find(&stamps).Error; err != nil {
		return nil, err
	}

	var sizes []struct {
		Entity  string
		Bytes   int64
		Records int
	}
	if err := b.db.WithContext(ctx).Model(&models.CachedRecord{}).
		Select("entity, COALESCE(SUM(size), 0) AS bytes, COUNT(*) AS records").
		Group("entity").
		Scan(&sizes).Error; err != nil {
		return nil, err
	}

	byEntity := make(map[string]int, len(sizes))
	for i, s := range sizes {
		byEntity[s.Entity] = i
	}

	infos := make([]CollectionInfo, 0, len(stamps))
	for _, stamp := range stamps {
		entity, ok := strings.CutSuffix(stamp.Key, cachedAtSuffix)
		if !ok {
			continue
		}
		info := CollectionInfo{Entity: entity, CachedAt: parseMillis(stamp.Value)}
		if i, ok := byEntity[entity]; ok {
			info.Bytes = sizes[i].Bytes
			info.Records = sizes[i].Records
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (b *DatabaseBackend) GetMeta(ctx context.Context, key string) (string, bool, error) {
	var row models.Metadata
	err := b.db.WithContext(ctx).Take(&row, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return row.Value, true, nil
}

func (b *DatabaseBackend) PutMeta(ctx context.Context, key, value string) error {
	return putMeta(b.db.WithContext(ctx), key, value)
}

func (b *DatabaseBackend) Usage(ctx context.Context) (Usage, error) {
	if b.quota <= 0 {
		return Usage{}, nil
	}
	used, err := usedBytes(b.db.WithContext(ctx))
	if err != nil {
		return Usage{}, err
	}
	return Usage{Used: used, Quota: b.quota, Supported: true}, nil
}

// RequestPersistence switches sqlite to full fsync and reports whether the
// database lives in a file.
func (b *DatabaseBackend) RequestPersistence(ctx context.Context) (bool, error) {
	var attached []struct {
		Seq  int
		Name string
		File string
	}
	if err := b.db.WithContext(ctx).Raw("PRAGMA database_list").Scan(&attached).Error; err != nil {
		return false, err
	}

	durable := false
	for _, db := range attached {
		if db.Name == "main" && db.File != "" {
			durable = true
		}
	}
	if !durable {
		return false, nil
	}

	if err := b.db.WithContext(ctx).Exec("PRAGMA synchronous = FULL").Error; err != nil {
		return false, err
	}
	return true, nil
}

func (b *DatabaseBackend) Clear(ctx context.Context) error {
	return b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&models.CachedRecord{}).Error; err != nil {
			return err
		}
		return tx.Where("1 = 1").Delete(&models.Metadata{}).Error
	})
}

// Close releases the handle when the backend opened it itself.
func (b *DatabaseBackend) Close() error {
	if !b.owned {
		return nil
	}
	return database.Close(b.db)
}

func putMeta(tx *gorm.DB, key, value string) error {
	row := models.Metadata{Key: key, Value: value}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
}

func usedBytes(tx *gorm.DB) (int64, error) {
	var records int64
	if err := tx.Model(&models.CachedRecord{}).Select("COALESCE(SUM(size), 0)").Scan(&records).Error; err != nil {
		return 0, err
	}

	var meta []models.Metadata
	if err := tx.Find(&meta).Error; err != nil {
		return 0, err
	}
	for _, m := range meta {
		records += metaSize(m.Key, m.Value)
	}
	return records, nil
}
