package services

import (
	"github.com/customeros/mercure/config"
	"github.com/customeros/mercure/interfaces"
	"github.com/customeros/mercure/internal/listeners"
	"github.com/customeros/mercure/internal/logger"
	"github.com/customeros/mercure/internal/repository"
	"github.com/customeros/mercure/services/attachment"
	"github.com/customeros/mercure/services/cloner"
	"github.com/customeros/mercure/services/delivery"
	"github.com/customeros/mercure/services/events"
	"github.com/customeros/mercure/services/hooks"
	"github.com/customeros/mercure/services/interceptor"
	"github.com/customeros/mercure/services/landing"
	"github.com/customeros/mercure/services/report"
	"github.com/customeros/mercure/services/shortener"
	"github.com/customeros/mercure/services/smtp"
	"github.com/customeros/mercure/services/storage"
	"github.com/customeros/mercure/services/templatevars"
	"github.com/customeros/mercure/services/tracker"
)

type Services struct {
	Hooks               *hooks.Bus
	EventsService       *events.EventsService
	StorageService      interfaces.ObjectStorage
	TrackerService      interfaces.TrackerService
	TemplateVarsService interfaces.TemplateVarsService
	ClonerService       interfaces.PageCloner
	AttachmentService   interfaces.AttachmentService
	DeliveryService     interfaces.DeliveryService
	LandingPageService  interfaces.LandingPageService
	ReportService       interfaces.ReportService
}

// InitServices wires the services together. Without RABBITMQ_URL campaigns
// are only picked up by the cron sweep.
func InitServices(cfg *config.Config, log logger.Logger, repos *repository.Repositories, listeners ...hooks.Listener) (*Services, error) {
	bus := hooks.NewBus(listeners...)

	var storageService interfaces.ObjectStorage
	if cfg.StorageConfig.UseR2() || cfg.StorageConfig.S3AccessKeyID != "" {
		storageService = storage.NewFromConfig(cfg.StorageConfig)
	} else {
		log.Warn("No object storage configured, attachments are kept in memory")
		storageService = storage.NewMemoryStorage()
	}

	transport, err := smtp.NewTransport(cfg.SMTPConfig, log)
	if err != nil {
		return nil, err
	}

	trackerService := tracker.NewService(log, repos)
	templateVarsService := templatevars.NewService(cfg.AppConfig, log, repos, shortener.NewTinyURL(cfg.AppConfig.TinyURLEndpoint), bus)
	clonerService := cloner.NewService(cfg.CloneConfig)
	formInterceptor := interceptor.NewInterceptor(cfg.AppConfig)
	attachmentService := attachment.NewService(cfg.AppConfig, cfg.AttachmentConfig, log, repos, storageService, trackerService)

	deliveryService := delivery.NewService(cfg.AppConfig, log, repos, delivery.Options{
		Trackers:     trackerService,
		TemplateVars: templateVarsService,
		Attachments:  attachmentService,
		Transport:    transport,
		Connection:   transport.DefaultConnection(),
		Hooks:        bus,
	})

	services := Services{
		Hooks:               bus,
		StorageService:      storageService,
		TrackerService:      trackerService,
		TemplateVarsService: templateVarsService,
		ClonerService:       clonerService,
		AttachmentService:   attachmentService,
		DeliveryService:     deliveryService,
		LandingPageService:  landing.NewService(cfg.AppConfig, log, repos, trackerService, templateVarsService, clonerService, formInterceptor, bus),
		ReportService:       report.NewService(log, repos, bus),
	}

	if cfg.AppConfig.RabbitMQURL == "" {
		deliveryService.SetScheduler(events.NewSweepScheduler(log))
		return &services, nil
	}

	eventsService, err := events.NewEventsService(cfg.AppConfig.RabbitMQURL, log, events.DefaultConfig())
	if err != nil {
		return nil, err
	}
	deliveryService.SetScheduler(events.NewRabbitMQScheduler(eventsService.Publisher))
	services.EventsService = eventsService

	return &services, nil
}

// StartListeners consumes scheduled campaign launches.
func (s *Services) StartListeners(log logger.Logger) error {
	if s.EventsService == nil {
		return nil
	}
	s.EventsService.Subscriber.RegisterListener(listeners.NewLaunchCampaignListener(log, s.DeliveryService))
	return s.EventsService.Subscriber.ListenQueue(events.QueueLaunchCampaign)
}

func (s *Services) Close() error {
	if s.EventsService == nil {
		return nil
	}
	return s.EventsService.Close()
}
