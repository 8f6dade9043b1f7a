// Package tmcache remembers model translations in a local SQLite database
// so repeated runs and recurring source strings skip the network. An LRU
// front keeps the hot entries out of the database entirely.
//
// A nil *Cache is a valid disabled cache: every method is a no-op on it.
package tmcache

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	lru "github.com/hashicorp/golang-lru/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// DefaultFrontSize is the LRU front capacity when the caller passes none.
const DefaultFrontSize = 1024

// dsnParams keeps concurrent lookups from tripping over the single writer.
const dsnParams = "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

// Entry is one remembered translation, unique per (source_text, model).
type Entry struct {
	ID             uint      `gorm:"primaryKey;autoIncrement"`
	SourceText     string    `gorm:"type:text;not null;uniqueIndex:idx_translations_source_model"`
	Model          string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_translations_source_model"`
	TranslatedText string    `gorm:"type:text;not null"`
	ContextName    string    `gorm:"type:varchar(255)"`
	CreatedAt      time.Time
}

// TableName implements the gorm table naming interface.
func (Entry) TableName() string {
	return "translations"
}

// Cache is a translation memory backed by SQLite with an LRU front.
type Cache struct {
	db    *gorm.DB
	front *lru.Cache[string, string]
}

// Open opens or creates the translation memory at path, creating parent
// directories as needed. frontSize caps the in-memory front; non-positive
// values fall back to DefaultFrontSize.
func Open(path string, frontSize int) (*Cache, error) {
	err := os.MkdirAll(filepath.Dir(path), 0o755)
	if err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(path+dsnParams), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open translation memory: %w", err)
	}

	err = db.AutoMigrate(&Entry{})
	if err != nil {
		return nil, fmt.Errorf("migrate translation memory: %w", err)
	}

	if frontSize <= 0 {
		frontSize = DefaultFrontSize
	}

	front, err := lru.New[string, string](frontSize)
	if err != nil {
		return nil, fmt.Errorf("create cache front: %w", err)
	}

	return &Cache{db: db, front: front}, nil
}

// Lookup returns the remembered translation for (source, model). Database
// faults degrade to misses so a damaged cache file cannot fail a run.
func (c *Cache) Lookup(source, model string) (string, bool) {
	if c == nil {
		return "", false
	}

	key := frontKey(source, model)

	if hit, ok := c.front.Get(key); ok {
		return hit, true
	}

	var entry Entry

	err := c.db.Where("source_text = ? AND model = ?", source, model).Take(&entry).Error
	if err != nil {
		return "", false
	}

	c.front.Add(key, entry.TranslatedText)

	return entry.TranslatedText, true
}

// Store remembers a translation, replacing any previous entry for the same
// (source, model) pair.
func (c *Cache) Store(source, model, translation, contextName string) error {
	if c == nil {
		return nil
	}

	entry := Entry{
		SourceText:     source,
		Model:          model,
		TranslatedText: translation,
		ContextName:    contextName,
	}

	err := c.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "source_text"}, {Name: "model"}},
		DoUpdates: clause.Assignments(map[string]any{
			"translated_text": translation,
			"context_name":    contextName,
		}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("store translation: %w", err)
	}

	c.front.Add(frontKey(source, model), translation)

	return nil
}

// Count returns the number of remembered translations.
func (c *Cache) Count() (int64, error) {
	if c == nil {
		return 0, nil
	}

	var n int64

	err := c.db.Model(&Entry{}).Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count translations: %w", err)
	}

	return n, nil
}

// Close releases the underlying database handle.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}

	sqlDB, err := c.db.DB()
	if err != nil {
		return fmt.Errorf("close translation memory: %w", err)
	}

	closeErr := sqlDB.Close()
	if closeErr != nil {
		return fmt.Errorf("close translation memory: %w", closeErr)
	}

	return nil
}

// frontKey builds the LRU key for a (source, model) pair. The NUL separator
// cannot occur in either part.
func frontKey(source, model string) string {
	return model + "\x00" + source
}
