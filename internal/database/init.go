package database

import (
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/customeros/mercure/config"
)

const connectAttempts = 5

// InitMercureDatabase connects and pings postgres, retrying while it is
// still starting. Configuration errors are returned immediately.
func InitMercureDatabase(dbConfig *config.DatabaseConfig) (*gorm.DB, error) {
	if err := validateConfig(dbConfig); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		db, err := NewConnection(dbConfig)
		if err == nil {
			err = ping(db)
			if err == nil {
				return db, nil
			}
		}
		lastErr = err
		if attempt < connectAttempts {
			time.Sleep(time.Duration(attempt) * time.Second)
		}
	}
	return nil, errors.Wrapf(lastErr, "failed to connect to the database after %d attempts", connectAttempts)
}

func ping(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
