package database

import (
	"database/sql"
	"fmt"
	"io/fs"
	"time"

	"brkdash/pkg/logger"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
)

const (
	pingAttempts = 5
	pingDelay    = 2 * time.Second
)

// Connect opens the audit database and waits for it to answer a ping.
func Connect(url string) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := waitForPing(db, pingAttempts, pingDelay); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func waitForPing(db *sql.DB, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = db.Ping(); err == nil {
			logger.Sugar.Info("Successfully connected to the database")
			return nil
		}
		logger.Sugar.Infof("Database connection failed, retrying in %s... (%v)", delay, err)
		time.Sleep(delay)
	}
	return fmt.Errorf("could not connect to database after %d attempts: %w", attempts, err)
}

// Migrate applies every pending migration found under dir in migrations.
func Migrate(db *sql.DB, migrations fs.FS, dir string) error {
	sourceDriver, err := iofs.New(migrations, dir)
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
