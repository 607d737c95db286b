package webhost

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// storageItem is one localStorage entry.
type storageItem struct {
	Key   string `gorm:"primaryKey"`
	Value string
}

func (storageItem) TableName() string { return "local_storage" }

// LocalStorage is a synchronous, quota-limited key/value store persisted in
// SQLite, shaped like window.localStorage.
type LocalStorage struct {
	mu    sync.Mutex
	db    *gorm.DB
	quota int
	used  int
}

// OpenLocalStorage opens (or creates) {dataDir}/localstorage.sqlite3. An
// empty dataDir keeps the store in memory.
func OpenLocalStorage(dataDir string, quota int) (*LocalStorage, error) {
	dsn := ":memory:"
	if dataDir != "" {
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating storage directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "localstorage.sqlite3")
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening local storage: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		// A single connection keeps ":memory:" databases shared.
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(&storageItem{}); err != nil {
		return nil, fmt.Errorf("migrating local storage: %w", err)
	}

	var used int64
	if err := db.Model(&storageItem{}).
		Select("COALESCE(SUM(LENGTH(key) + LENGTH(value)), 0)").
		Scan(&used).Error; err != nil {
		return nil, fmt.Errorf("measuring local storage: %w", err)
	}
	return &LocalStorage{db: db, quota: quota, used: int(used)}, nil
}

// GetItem returns the stored value; ok is false for a missing key (null in
// the DOM).
func (s *LocalStorage) GetItem(key string) (value string, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var item storageItem
	err = s.db.Where("key = ?", key).Take(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, domError("UnknownError", err.Error())
	}
	return item.Value, true, nil
}

// SetItem stores value under key, failing with QuotaExceededError when the
// store would grow past its quota.
func (s *LocalStorage) SetItem(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var prev storageItem
	prevSize := 0
	err := s.db.Where("key = ?", key).Take(&prev).Error
	switch {
	case err == nil:
		prevSize = len(prev.Key) + len(prev.Value)
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return domError("UnknownError", err.Error())
	}

	next := s.used - prevSize + len(key) + len(value)
	if s.quota > 0 && next > s.quota {
		return domError("QuotaExceededError", fmt.Sprintf("Setting the value of '%s' exceeded the quota.", key))
	}
	if err := s.db.Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&storageItem{Key: key, Value: value}).Error; err != nil {
		return domError("UnknownError", err.Error())
	}
	s.used = next
	return nil
}

// RemoveItem deletes key. Missing keys are ignored.
func (s *LocalStorage) RemoveItem(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var prev storageItem
	if err := s.db.Where("key = ?", key).Take(&prev).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return domError("UnknownError", err.Error())
	}
	if err := s.db.Delete(&storageItem{}, "key = ?", key).Error; err != nil {
		return domError("UnknownError", err.Error())
	}
	s.used -= len(prev.Key) + len(prev.Value)
	return nil
}

// Clear deletes every entry.
func (s *LocalStorage) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Where("1 = 1").Delete(&storageItem{}).Error; err != nil {
		return domError("UnknownError", err.Error())
	}
	s.used = 0
	return nil
}

// Length returns the number of stored keys.
func (s *LocalStorage) Length() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	if err := s.db.Model(&storageItem{}).Count(&n).Error; err != nil {
		return 0, domError("UnknownError", err.Error())
	}
	return int(n), nil
}

// Keys returns all stored keys in key order.
func (s *LocalStorage) Keys() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	if err := s.db.Model(&storageItem{}).Order("key").Pluck("key", &keys).Error; err != nil {
		return nil, domError("UnknownError", err.Error())
	}
	return keys, nil
}

// Close releases the database handle.
func (s *LocalStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
