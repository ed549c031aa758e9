package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	platformerrors "voicetask-server-go/internal/platform/errors"
)

// TaskRecord is the persisted form of a parsed task.
type TaskRecord struct {
	ID            string         `gorm:"type:varchar(36);primaryKey"          json:"id"`
	Title         string         `gorm:"not null"                             json:"title"`
	Due           *time.Time     `                                            json:"due,omitempty"`
	Done          bool           `gorm:"not null;default:false"               json:"done"`
	Source        string         `gorm:"type:varchar(16);not null;index"      json:"source"`
	RawTranscript string         `                                            json:"raw_transcript,omitempty"`
	Metadata      datatypes.JSON `                                            json:"metadata,omitempty"`
	CreatedAt     time.Time      `                                            json:"created_at"`
	UpdatedAt     time.Time      `                                            json:"updated_at"`
	CompletedAt   *time.Time     `                                            json:"completed_at,omitempty"`
}

// Open initializes the SQLite database and runs migrations. The returned
// handle is injected into the repositories; there is no package-level
// database singleton.
func Open(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, platformerrors.Wrap(platformerrors.KindStorage, "storage.open",
				fmt.Sprintf("failed to create data directory %s", dir), err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindStorage, "storage.open",
			"failed to open database", err)
	}

	manager := NewMigrationManager(db)
	manager.AddMigration(&migrationInitial{})
	if err := manager.RunMigrations(); err != nil {
		return nil, err
	}

	return db, nil
}
