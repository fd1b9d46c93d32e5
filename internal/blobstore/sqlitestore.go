package blobstore

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func onConflictUpdate() clause.OnConflict {
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: "sha256_hex"}},
		DoUpdates: clause.AssignmentColumns([]string{"compressed_bytes", "created_at"}),
	}
}

// blobRow is the single table a SQLiteStore keeps, named the way the
// teacher's D1Bridge names its per-binding database: one isolated database
// per concern, here one table per concern within it.
type blobRow struct {
	Sha256Hex            string `gorm:"primaryKey;column:sha256_hex"`
	CompressedBytes      []byte `gorm:"column:compressed_bytes"`
	CreatedAtUnixSeconds int64  `gorm:"column:created_at"`
}

func (blobRow) TableName() string { return "blobs" }

// SQLiteStore is a gorm-backed loader.CacheStore, the same "isolated SQLite
// database per concern" shape as the teacher's D1Bridge, repurposed here to
// hold brotli-compressed module bytes instead of application data.
type SQLiteStore struct {
	db *gorm.DB
}

// OpenSQLiteStore opens (or creates) a SQLite-backed store at path, enabling
// WAL mode exactly as the teacher's OpenD1Database does.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("blobstore: opening %s: %w", path, err)
	}
	if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
		return nil, fmt.Errorf("blobstore: enabling WAL on %s: %w", path, err)
	}
	if err := db.AutoMigrate(&blobRow{}); err != nil {
		return nil, fmt.Errorf("blobstore: migrating %s: %w", path, err)
	}
	return &SQLiteStore{db: db}, nil
}

// OpenSQLiteStoreMemory opens an in-memory store, for tests.
func OpenSQLiteStoreMemory() (*SQLiteStore, error) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("blobstore: opening in-memory store: %w", err)
	}
	if err := db.AutoMigrate(&blobRow{}); err != nil {
		return nil, fmt.Errorf("blobstore: migrating in-memory store: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, sha256Hex string) ([]byte, bool, error) {
	var row blobRow
	err := s.db.WithContext(ctx).First(&row, "sha256_hex = ?", sha256Hex).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("blobstore: querying %s: %w", sha256Hex, err)
	}
	b, err := decompress(row.CompressedBytes)
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (s *SQLiteStore) Put(ctx context.Context, sha256Hex string, data []byte) error {
	compressed, err := compress(data)
	if err != nil {
		return err
	}
	row := blobRow{
		Sha256Hex:            sha256Hex,
		CompressedBytes:      compressed,
		CreatedAtUnixSeconds: time.Now().Unix(),
	}
	err = s.db.WithContext(ctx).Clauses(onConflictUpdate()).Create(&row).Error
	if err != nil {
		return fmt.Errorf("blobstore: storing %s: %w", sha256Hex, err)
	}
	return nil
}
