package registry

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// EmbeddedDefaults for the development database started when no DSN is
// configured.
const (
	embeddedPort     = 5433
	embeddedUser     = "oneedge"
	embeddedPassword = "oneedge"
	embeddedDatabase = "oneedge"
)

// Database wraps the GORM handle together with an embedded PostgreSQL
// process when one was started, so shutdown can stop it.
type Database struct {
	*gorm.DB
	embedded *embeddedpostgres.EmbeddedPostgres
}

// Connect opens a PostgreSQL database for the device registry. An empty DSN
// starts an embedded server under dataDir, which suits development and
// single-node deployments; production points dsn at an external cluster.
func Connect(dsn, dataDir string, log *slog.Logger) (*Database, error) {
	var embedded *embeddedpostgres.EmbeddedPostgres

	if dsn == "" {
		embedded = embeddedpostgres.NewDatabase(embeddedpostgres.DefaultConfig().
			Username(embeddedUser).
			Password(embeddedPassword).
			Database(embeddedDatabase).
			Port(embeddedPort).
			DataPath(filepath.Join(dataDir, "pg")).
			StartTimeout(45 * time.Second))
		if err := embedded.Start(); err != nil {
			return nil, fmt.Errorf("failed to start embedded postgres: %w", err)
		}
		dsn = fmt.Sprintf("host=localhost port=%d user=%s password=%s dbname=%s sslmode=disable",
			embeddedPort, embeddedUser, embeddedPassword, embeddedDatabase)
		log.Info("Started embedded PostgreSQL", "port", embeddedPort, "dataDir", dataDir)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		if embedded != nil {
			_ = embedded.Stop()
		}
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	return &Database{DB: db, embedded: embedded}, nil
}

// Close releases the connection pool and stops the embedded server when one
// is running.
func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err == nil {
		_ = sqlDB.Close()
	}
	if d.embedded != nil {
		if err := d.embedded.Stop(); err != nil {
			return fmt.Errorf("failed to stop embedded postgres: %w", err)
		}
	}
	return nil
}
