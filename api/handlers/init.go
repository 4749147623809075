package handlers

import (
	"github.com/customeros/mercure/config"
	"github.com/customeros/mercure/internal/logger"
	"github.com/customeros/mercure/internal/repository"
	"github.com/customeros/mercure/services"
)

type APIHandlers struct {
	Tracking     *TrackingHandler
	LandingPages *LandingPagesHandler
	Campaigns    *CampaignsHandler
	Content      *ContentHandler
}

func InitHandlers(cfg *config.AppConfig, log logger.Logger, s *services.Services, r *repository.Repositories) *APIHandlers {
	return &APIHandlers{
		Tracking:     NewTrackingHandler(cfg, log, s.TrackerService, s.LandingPageService, s.AttachmentService),
		LandingPages: NewLandingPagesHandler(s.LandingPageService, r),
		Campaigns:    NewCampaignsHandler(log, r, s.DeliveryService, s.ReportService),
		Content:      NewContentHandler(r, s.AttachmentService),
	}
}
