package config

import (
	"fmt"
	"log"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"grant-review-api/models"
)

// autoMigrateModels lists every table owned by this service.
var autoMigrateModels = []any{
	&models.User{},
	&models.Grant{},
	&models.Proposal{},
	&models.ProposalStatusHistory{},
	&models.Review{},
	&models.Notification{},
	&models.NotificationTemplate{},
}

// GormConfig builds the gorm settings shared by the server and the tools.
func GormConfig(cfg *Config) *gorm.Config {
	// In production, suppress SQL logs unless explicitly re-enabled via DEBUG_SQL=true.
	logLevel := logger.Info
	if cfg.IsProduction() && !cfg.DB.DebugSQL {
		logLevel = logger.Warn
	}

	return &gorm.Config{
		Logger: logger.New(
			log.New(LogWriter, "\r\n", log.LstdFlags),
			logger.Config{LogLevel: logLevel},
		),
	}
}

func InitDB(cfg *Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.DB.Username,
		cfg.DB.Password,
		cfg.DB.Host,
		cfg.DB.Port,
		cfg.DB.Database,
	)

	db, err := gorm.Open(mysql.Open(dsn), GormConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.DB.AutoMigrate {
		if err := AutoMigrate(db); err != nil {
			return nil, err
		}
	}

	log.Println("Database connected successfully")
	return db, nil
}

func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(autoMigrateModels...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
