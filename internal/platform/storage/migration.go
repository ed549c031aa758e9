package storage

import (
	"time"

	"gorm.io/gorm"

	platformerrors "voicetask-server-go/internal/platform/errors"
)

// Migration describes one versioned schema change.
type Migration interface {
	Version() string
	Description() string
	Up(db *gorm.DB) error
	Down(db *gorm.DB) error
}

// MigrationRecord tracks which migrations have been applied.
type MigrationRecord struct {
	ID        uint      `gorm:"primaryKey"`
	Version   string    `gorm:"uniqueIndex;not null"`
	Name      string    `gorm:"not null"`
	AppliedAt time.Time `gorm:"not null"`
}

// MigrationManager applies pending migrations in registration order.
type MigrationManager struct {
	db         *gorm.DB
	migrations []Migration
}

func NewMigrationManager(db *gorm.DB) *MigrationManager {
	return &MigrationManager{
		db:         db,
		migrations: []Migration{},
	}
}

func (m *MigrationManager) AddMigration(migration Migration) {
	m.migrations = append(m.migrations, migration)
}

// RunMigrations executes every migration that has not been applied yet.
func (m *MigrationManager) RunMigrations() error {
	if err := m.db.AutoMigrate(&MigrationRecord{}); err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, "migration.create_table",
			"failed to create migration table", err)
	}

	var appliedVersions []string
	if err := m.db.Model(&MigrationRecord{}).Pluck("version", &appliedVersions).Error; err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, "migration.get_applied",
			"failed to get applied migrations", err)
	}

	applied := make(map[string]bool, len(appliedVersions))
	for _, version := range appliedVersions {
		applied[version] = true
	}

	for _, migration := range m.migrations {
		if applied[migration.Version()] {
			continue
		}
		if err := migration.Up(m.db); err != nil {
			return platformerrors.Wrap(platformerrors.KindStorage, "migration.up",
				"migration "+migration.Version()+" failed", err)
		}
		record := MigrationRecord{
			Version:   migration.Version(),
			Name:      migration.Description(),
			AppliedAt: time.Now(),
		}
		if err := m.db.Create(&record).Error; err != nil {
			return platformerrors.Wrap(platformerrors.KindStorage, "migration.record",
				"failed to record migration "+migration.Version(), err)
		}
	}
	return nil
}

type migrationInitial struct{}

func (m *migrationInitial) Version() string     { return "001" }
func (m *migrationInitial) Description() string { return "create task tables" }

func (m *migrationInitial) Up(db *gorm.DB) error {
	return db.AutoMigrate(&TaskRecord{})
}

func (m *migrationInitial) Down(db *gorm.DB) error {
	return db.Migrator().DropTable(&TaskRecord{})
}
