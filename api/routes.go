package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mercure/api/handlers"
	"github.com/customeros/mercure/api/middleware"
	"github.com/customeros/mercure/config"
	"github.com/customeros/mercure/internal/logger"
	"github.com/customeros/mercure/internal/metrics"
	"github.com/customeros/mercure/internal/repository"
	"github.com/customeros/mercure/internal/routes"
	"github.com/customeros/mercure/internal/tracing"
	"github.com/customeros/mercure/services"
	"github.com/customeros/mercure/services/events"
)

const APIKeyHeader = "X-MERCURE-API-KEY"

// RegisterRoutes sets up all API endpoints. Public tracking paths are part
// of mails already delivered and must not change.
func RegisterRoutes(ctx context.Context, r *gin.Engine, cfg *config.AppConfig, log logger.Logger, s *services.Services, repos *repository.Repositories) {
	if s == nil {
		panic("Services cannot be nil")
	}
	if repos == nil {
		panic("Repositories cannot be nil")
	}

	r.Use(gin.Recovery())
	r.Use(tracing.RecoveryWithJaeger(opentracing.GlobalTracer()))
	r.Use(metrics.Middleware())

	// setup handlers
	apiHandlers := handlers.InitHandlers(cfg, log, s, repos)

	r.GET("/health", handlers.HealthCheck(s))
	r.GET("/metrics", metrics.Handler())

	public := r.Group("")
	public.Use(middleware.RequestContext(events.AppSource))
	{
		public.GET(routes.TrackerPrefix+":id", apiHandlers.Tracking.Pixel())
		public.POST(routes.TrackerPrefix+":id", apiHandlers.Tracking.BrowserInfos())
		public.GET(routes.LandingPageViewPrefix+":id", apiHandlers.Tracking.LandingPageView())
		public.POST(routes.LandingPagePostPrefix+":id", apiHandlers.Tracking.LandingPagePost())
		public.GET(routes.AttachmentPrefix+":attachment_id/:tracker_id", apiHandlers.Tracking.Attachment())
	}

	api := r.Group("/v1")
	api.Use(middleware.APIKey(APIKeyHeader, cfg.APIKey))
	api.Use(middleware.RequestContext(events.AppSource))
	{
		landingPages := api.Group("/landing-pages")
		{
			landingPages.POST("/clone", apiHandlers.LandingPages.Clone())
			landingPages.POST("", apiHandlers.LandingPages.Create())
			landingPages.PUT("/:id", apiHandlers.LandingPages.Update())
		}

		api.POST("/email-templates", apiHandlers.Content.CreateEmailTemplate())
		api.POST("/target-groups", apiHandlers.Content.CreateTargetGroup())
		api.POST("/attachments", apiHandlers.Content.UploadAttachment())

		campaigns := api.Group("/campaigns")
		{
			campaigns.POST("", apiHandlers.Campaigns.Create())
			campaigns.POST("/:id/target-groups", apiHandlers.Campaigns.AddTargetGroup())
			campaigns.POST("/:id/send", apiHandlers.Campaigns.Send())
			campaigns.GET("/:id/report", apiHandlers.Campaigns.Report())
		}
	}
}
