package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	api_errors "github.com/customeros/mercure/api/errors"
	"github.com/customeros/mercure/interfaces"
	"github.com/customeros/mercure/internal/models"
	"github.com/customeros/mercure/internal/repository"
	"github.com/customeros/mercure/internal/tracing"
)

type CloneRequest struct {
	URL string `json:"url" binding:"required,url"`
}

type LandingPageRequest struct {
	Name          string   `json:"name" binding:"required"`
	Domain        string   `json:"domain"`
	HTML          string   `json:"html"`
	AttachmentIDs []string `json:"attachmentIds"`
}

type LandingPagesHandler struct {
	landing      interfaces.LandingPageService
	repositories *repository.Repositories
}

func NewLandingPagesHandler(landing interfaces.LandingPageService, repos *repository.Repositories) *LandingPagesHandler {
	return &LandingPagesHandler{
		landing:      landing,
		repositories: repos,
	}
}

// Clone returns the intercepted html of a live page without storing it.
func (h *LandingPagesHandler) Clone() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "LandingPagesHandler.Clone")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		var req CloneRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		page, err := h.landing.Clone(ctx, req.URL)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"html": page})
	}
}

func (h *LandingPagesHandler) Create() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "LandingPagesHandler.Create")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		var req LandingPageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		page := &models.LandingPage{Name: req.Name, Domain: req.Domain, HTML: req.HTML}
		if err := h.loadAttachments(c, page, req.AttachmentIDs); err != nil {
			tracing.TraceErr(span, err)
			api_errors.Respond(c, err)
			return
		}
		if err := h.landing.Create(ctx, page); err != nil {
			tracing.TraceErr(span, err)
			api_errors.Respond(c, err)
			return
		}
		tracing.TagEntity(span, page.ID)
		c.JSON(http.StatusCreated, page)
	}
}

func (h *LandingPagesHandler) Update() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "LandingPagesHandler.Update")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		var req LandingPageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		page, err := h.repositories.LandingPageRepository.GetByID(ctx, c.Param("id"))
		if err != nil {
			tracing.TraceErr(span, err)
			api_errors.Respond(c, err)
			return
		}
		page.Name, page.Domain, page.HTML = req.Name, req.Domain, req.HTML
		if req.AttachmentIDs != nil {
			if err := h.loadAttachments(c, page, req.AttachmentIDs); err != nil {
				tracing.TraceErr(span, err)
				api_errors.Respond(c, err)
				return
			}
		}
		if err := h.landing.Update(ctx, page); err != nil {
			tracing.TraceErr(span, err)
			api_errors.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, page)
	}
}

// attachments keep the request order, it defines {{ attachment_N }}
func (h *LandingPagesHandler) loadAttachments(c *gin.Context, page *models.LandingPage, ids []string) error {
	attachments, err := findAttachments(c, h.repositories, ids)
	if err != nil {
		return err
	}
	page.Attachments = attachments
	return nil
}

func findAttachments(c *gin.Context, repos *repository.Repositories, ids []string) ([]models.Attachment, error) {
	attachments := make([]models.Attachment, 0, len(ids))
	for _, id := range ids {
		attachment, err := repos.AttachmentRepository.GetByID(c.Request.Context(), id)
		if err != nil {
			return nil, err
		}
		attachments = append(attachments, *attachment)
	}
	return attachments, nil
}
