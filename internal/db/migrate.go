package db

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/banshee-data/deltacchalf/internal/monitoring"
)

// MigrateUp applies every pending migration. Being at the latest version
// already is not an error.
func (db *DB) MigrateUp(migrationsFS fs.FS) error {
	return db.withMigrate(migrationsFS, "up", func(m *migrate.Migrate) error {
		return ignoreNoChange(m.Up())
	})
}

// MigrateDown rolls back one migration.
func (db *DB) MigrateDown(migrationsFS fs.FS) error {
	return db.withMigrate(migrationsFS, "down", func(m *migrate.Migrate) error {
		return ignoreNoChange(m.Steps(-1))
	})
}

// MigrateForce sets the recorded schema version without running anything.
// Use it to clear a dirty state after fixing a failed migration by hand.
func (db *DB) MigrateForce(migrationsFS fs.FS, version int) error {
	return db.withMigrate(migrationsFS, fmt.Sprintf("force %d", version), func(m *migrate.Migrate) error {
		return m.Force(version)
	})
}

// MigrateVersion reports the applied schema version. A fresh database
// reports version 0.
func (db *DB) MigrateVersion(migrationsFS fs.FS) (version uint, dirty bool, err error) {
	err = db.withMigrate(migrationsFS, "version", func(m *migrate.Migrate) error {
		var verr error
		version, dirty, verr = m.Version()
		if errors.Is(verr, migrate.ErrNilVersion) {
			return nil
		}
		return verr
	})
	return version, dirty, err
}

// LatestMigrationVersion returns the highest version among the *.up.sql
// files in migrationsFS.
func LatestMigrationVersion(migrationsFS fs.FS) (uint, error) {
	entries, err := fs.Glob(migrationsFS, "*.up.sql")
	if err != nil {
		return 0, fmt.Errorf("failed to read migrations: %w", err)
	}

	var latest uint
	for _, name := range entries {
		var v uint
		// 000001_name.up.sql
		if _, err := fmt.Sscanf(name, "%d_", &v); err == nil && v > latest {
			latest = v
		}
	}
	if latest == 0 {
		return 0, errors.New("no migration files found")
	}
	return latest, nil
}

// withMigrate builds a migrate instance over db and runs fn with it. The
// instance is not closed since that would close db itself.
func (db *DB) withMigrate(migrationsFS fs.FS, op string, fn func(*migrate.Migrate) error) error {
	if migrationsFS == nil {
		return errors.New("migrations filesystem is nil")
	}
	source, err := iofs.New(migrationsFS, ".")
	if err != nil {
		return fmt.Errorf("open migrations source: %w", err)
	}
	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("sqlite migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("migrate instance: %w", err)
	}
	m.Log = migrateLog{}

	if err := fn(m); err != nil {
		return fmt.Errorf("migrate %s: %w", op, err)
	}
	return nil
}

func ignoreNoChange(err error) error {
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}

// migrateLog routes migrate output through monitoring.Logf.
type migrateLog struct{}

func (migrateLog) Printf(format string, v ...any) { monitoring.Logf("[migrate] "+format, v...) }
func (migrateLog) Verbose() bool                  { return false }
