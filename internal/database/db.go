package database

import (
	"fmt"
	"log"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB is the global database instance
var DB *gorm.DB

// DefaultSyncJobName is the job every deployment starts with.
const DefaultSyncJobName = "alert-sync"

// Connect establishes a connection to the PostgreSQL database
func Connect(dsn string, logLevel logger.LogLevel) error {
	var err error

	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Println("Database connection established")
	return nil
}

// AutoMigrate runs database migrations
func AutoMigrate() error {
	log.Println("Running database migrations...")

	err := DB.AutoMigrate(
		&AlertRecord{},
		&SyncJob{},
		&NotifySettings{},
	)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Println("Database migrations completed successfully")
	return nil
}

// InitializeDefaults creates default records if they don't exist
func InitializeDefaults() error {
	log.Println("Initializing default database records...")

	// Seed the default sync job so a fresh deployment reconciles out of
	// the box.
	var count int64
	DB.Model(&SyncJob{}).Count(&count)
	if count == 0 {
		job := &SyncJob{
			Name:           DefaultSyncJobName,
			CronExpression: "*/5 * * * *",
			Enabled:        true,
		}
		if err := DB.Create(job).Error; err != nil {
			return fmt.Errorf("failed to create default sync job: %w", err)
		}
		log.Printf("Created default %s job (%s)", job.Name, job.CronExpression)
	} else {
		log.Printf("Found %d existing sync jobs", count)
	}

	// Seed the notifier settings row (disabled until configured)
	DB.Model(&NotifySettings{}).Count(&count)
	if count == 0 {
		if err := DB.Create(&NotifySettings{Enabled: false}).Error; err != nil {
			return fmt.Errorf("failed to create default notify settings: %w", err)
		}
		log.Println("Created default notify settings (disabled)")
	}

	return nil
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}

// Close closes the database connection
func Close() error {
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetNotifySettings retrieves notifier settings.
// Accepts a db parameter for dependency injection and testing.
func GetNotifySettings(db *gorm.DB) (*NotifySettings, error) {
	var settings NotifySettings
	if err := db.First(&settings).Error; err != nil {
		return nil, err
	}
	return &settings, nil
}

// UpdateNotifySettings updates notifier settings
func UpdateNotifySettings(db *gorm.DB, settings *NotifySettings) error {
	return db.Model(&NotifySettings{}).Where("id = ?", settings.ID).Updates(map[string]interface{}{
		"bot_token": settings.BotToken,
		"channel":   settings.Channel,
		"enabled":   settings.Enabled,
	}).Error
}
