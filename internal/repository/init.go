package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/customeros/mercure/config"
	"github.com/customeros/mercure/interfaces"
	"github.com/customeros/mercure/internal/models"
)

type Repositories struct {
	AttachmentRepository    interfaces.AttachmentRepository
	CampaignRepository      interfaces.CampaignRepository
	EmailTemplateRepository interfaces.EmailTemplateRepository
	LandingPageRepository   interfaces.LandingPageRepository
	TargetGroupRepository   interfaces.TargetGroupRepository
	TrackerRepository       interfaces.TrackerRepository
	TrackerInfosRepository  interfaces.TrackerInfosRepository
}

func InitRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		AttachmentRepository:    NewAttachmentRepository(db),
		CampaignRepository:      NewCampaignRepository(db),
		EmailTemplateRepository: NewEmailTemplateRepository(db),
		LandingPageRepository:   NewLandingPageRepository(db),
		TargetGroupRepository:   NewTargetGroupRepository(db),
		TrackerRepository:       NewTrackerRepository(db),
		TrackerInfosRepository:  NewTrackerInfosRepository(db),
	}
}

func MigrateDB(dbConfig *config.DatabaseConfig, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	sqlDB.SetMaxOpenConns(5)

	err = db.AutoMigrate(
		&models.LandingPage{},
		&models.Attachment{},
		&models.EmailTemplate{},
		&models.TargetGroup{},
		&models.Target{},
		&models.Campaign{},
		&models.CampaignTargetGroup{},
		&models.Tracker{},
		&models.TrackerInfos{},
	)

	if dbConfig.MaxIdleConn > 0 {
		sqlDB.SetMaxIdleConns(dbConfig.MaxIdleConn)
	}
	if dbConfig.MaxConn > 0 {
		sqlDB.SetMaxOpenConns(dbConfig.MaxConn)
	}
	if dbConfig.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(dbConfig.ConnMaxLifetime) * time.Minute)
	}

	return err
}
