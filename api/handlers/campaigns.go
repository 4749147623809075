package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	api_errors "github.com/customeros/mercure/api/errors"
	"github.com/customeros/mercure/interfaces"
	"github.com/customeros/mercure/internal/enum"
	"github.com/customeros/mercure/internal/logger"
	"github.com/customeros/mercure/internal/models"
	"github.com/customeros/mercure/internal/repository"
	"github.com/customeros/mercure/internal/tracing"
	"github.com/customeros/mercure/internal/utils"
)

type CampaignRequest struct {
	Name            string     `json:"name"`
	EmailTemplateID string     `json:"emailTemplateId"`
	SendAt          *time.Time `json:"sendAt"`
	MinimizeURL     bool       `json:"minimizeUrl"`
	SmtpHost        string     `json:"smtpHost"`
	SmtpPort        int        `json:"smtpPort"`
	SmtpUsername    string     `json:"smtpUsername"`
	SmtpPassword    string     `json:"smtpPassword"`
	SmtpSecurity    string     `json:"smtpSecurity"`
}

type AddTargetGroupRequest struct {
	TargetGroupID string `json:"targetGroupId" binding:"required"`
}

type CampaignsHandler struct {
	log          logger.Logger
	repositories *repository.Repositories
	delivery     interfaces.DeliveryService
	reports      interfaces.ReportService
}

func NewCampaignsHandler(log logger.Logger, repos *repository.Repositories, delivery interfaces.DeliveryService, reports interfaces.ReportService) *CampaignsHandler {
	return &CampaignsHandler{
		log:          log,
		repositories: repos,
		delivery:     delivery,
		reports:      reports,
	}
}

func (h *CampaignsHandler) Create() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "CampaignsHandler.Create")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		var req CampaignRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		validation := api_errors.NewMultiErrors()
		if strings.TrimSpace(req.Name) == "" {
			validation.Add("name", "is required", nil)
		}
		if req.EmailTemplateID == "" {
			validation.Add("emailTemplateId", "is required", nil)
		} else if _, err := h.repositories.EmailTemplateRepository.GetByID(ctx, req.EmailTemplateID); err != nil {
			validation.Add("emailTemplateId", "unknown email template", err)
		}
		security := enum.GetEmailSecurity(req.SmtpSecurity)
		if req.SmtpSecurity != "" && security.String() != req.SmtpSecurity {
			validation.Add("smtpSecurity", "must be one of none, ssl, tls, startTLS", nil)
		}
		if validation.HasErrors() {
			tracing.TraceErr(span, validation)
			api_errors.Respond(c, validation)
			return
		}

		campaign := &models.Campaign{
			Name:            req.Name,
			EmailTemplateID: req.EmailTemplateID,
			SendAt:          utils.Now(),
			MinimizeURL:     req.MinimizeURL,
			SmtpHost:        req.SmtpHost,
			SmtpPort:        req.SmtpPort,
			SmtpUsername:    req.SmtpUsername,
			SmtpPassword:    req.SmtpPassword,
			SmtpSecurity:    security,
		}
		if req.SendAt != nil {
			campaign.SendAt = req.SendAt.UTC()
		}
		if err := h.repositories.CampaignRepository.Create(ctx, campaign); err != nil {
			tracing.TraceErr(span, err)
			api_errors.Respond(c, err)
			return
		}
		tracing.TagEntity(span, campaign.ID)
		c.JSON(http.StatusCreated, campaign)
	}
}

// AddTargetGroup links a group and schedules the campaign launch. A failed
// schedule is left to the cron sweep.
func (h *CampaignsHandler) AddTargetGroup() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "CampaignsHandler.AddTargetGroup")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)
		campaignID := c.Param("id")

		var req AddTargetGroupRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if _, err := h.repositories.CampaignRepository.GetByID(ctx, campaignID); err != nil {
			tracing.TraceErr(span, err)
			api_errors.Respond(c, err)
			return
		}
		if _, err := h.repositories.TargetGroupRepository.GetByID(ctx, req.TargetGroupID); err != nil {
			tracing.TraceErr(span, err)
			api_errors.Respond(c, err)
			return
		}

		link, err := h.repositories.CampaignRepository.AddTargetGroup(ctx, campaignID, req.TargetGroupID)
		if err != nil {
			tracing.TraceErr(span, err)
			api_errors.Respond(c, err)
			return
		}

		if err := h.delivery.ScheduleCampaign(ctx, campaignID); err != nil {
			tracing.TraceErr(span, err)
			h.log.Warnf("campaign %s not scheduled, waiting for sweep: %v", campaignID, err)
		}
		c.JSON(http.StatusCreated, link)
	}
}

// Send walks the campaign now, ignoring the queue.
func (h *CampaignsHandler) Send() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "CampaignsHandler.Send")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		sent, err := h.delivery.SendCampaign(ctx, c.Param("id"))
		if err != nil {
			tracing.TraceErr(span, err)
			api_errors.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"sent": sent})
	}
}

func (h *CampaignsHandler) Report() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "CampaignsHandler.Report")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		report, err := h.reports.Build(ctx, c.Param("id"))
		if err != nil {
			tracing.TraceErr(span, err)
			api_errors.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, report)
	}
}
