package mark

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Record is one delivered chapter in the PostgreSQL backend.
type Record struct {
	Source    string `gorm:"primaryKey"`
	ComicID   string `gorm:"primaryKey"`
	ChapterID string `gorm:"primaryKey"`
	MarkedAt  time.Time
}

// TableName specifies the table name for Record
func (Record) TableName() string {
	return "marks"
}

// GormStore keeps marks in PostgreSQL through gorm.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore connects to dsn and migrates the marks table.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return NewGormStoreWithDB(db)
}

// NewGormStoreWithDB wraps an existing connection.
func NewGormStoreWithDB(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("failed to migrate marks table: %w", err)
	}
	return &GormStore{db: db}, nil
}

// IsMarked reports whether key has a row.
func (s *GormStore) IsMarked(ctx context.Context, key Key) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&Record{}).
		Where("source = ? AND comic_id = ? AND chapter_id = ?", key.Source, key.ComicID, key.ChapterID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("query mark %s: %w", key, err)
	}
	return count > 0, nil
}

// Mark inserts key; an existing row is left untouched.
func (s *GormStore) Mark(ctx context.Context, key Key) error {
	record := Record{
		Source:    key.Source,
		ComicID:   key.ComicID,
		ChapterID: key.ChapterID,
		MarkedAt:  time.Now().UTC(),
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&record).Error
	if err != nil {
		return fmt.Errorf("insert mark %s: %w", key, err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
