package handlers

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/customeros/mailsherpa/mailvalidate"
	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	api_errors "github.com/customeros/mercure/api/errors"
	"github.com/customeros/mercure/interfaces"
	"github.com/customeros/mercure/internal/models"
	"github.com/customeros/mercure/internal/repository"
	"github.com/customeros/mercure/internal/tracing"
	"github.com/customeros/mercure/internal/utils"
)

const maxAttachmentSize = 25 << 20

type EmailTemplateRequest struct {
	Name           string   `json:"name" binding:"required"`
	Subject        string   `json:"subject"`
	FromEmail      string   `json:"fromEmail" binding:"required"`
	TextContent    string   `json:"textContent"`
	HTMLContent    string   `json:"htmlContent"`
	HasOpenTracker *bool    `json:"hasOpenTracker"`
	LandingPageID  *string  `json:"landingPageId"`
	AttachmentIDs  []string `json:"attachmentIds"`
}

type TargetRequest struct {
	Email     string `json:"email" binding:"required"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type TargetGroupRequest struct {
	Name    string          `json:"name" binding:"required"`
	Targets []TargetRequest `json:"targets" binding:"dive"`
}

// ContentHandler manages what campaigns are made of: email templates,
// target groups and attachments.
type ContentHandler struct {
	repositories *repository.Repositories
	attachments  interfaces.AttachmentService
}

func NewContentHandler(repos *repository.Repositories, attachments interfaces.AttachmentService) *ContentHandler {
	return &ContentHandler{
		repositories: repos,
		attachments:  attachments,
	}
}

func (h *ContentHandler) CreateEmailTemplate() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "ContentHandler.CreateEmailTemplate")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		var req EmailTemplateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		template := &models.EmailTemplate{
			Name:           req.Name,
			Subject:        req.Subject,
			FromEmail:      req.FromEmail,
			TextContent:    req.TextContent,
			HTMLContent:    req.HTMLContent,
			HasOpenTracker: req.HasOpenTracker == nil || *req.HasOpenTracker,
		}
		if req.LandingPageID != nil && *req.LandingPageID != "" {
			if _, err := h.repositories.LandingPageRepository.GetByID(ctx, *req.LandingPageID); err != nil {
				tracing.TraceErr(span, err)
				api_errors.Respond(c, err)
				return
			}
			template.LandingPageID = req.LandingPageID
		}
		attachments, err := findAttachments(c, h.repositories, req.AttachmentIDs)
		if err != nil {
			tracing.TraceErr(span, err)
			api_errors.Respond(c, err)
			return
		}
		template.Attachments = attachments

		if err := h.repositories.EmailTemplateRepository.Create(ctx, template); err != nil {
			tracing.TraceErr(span, err)
			api_errors.Respond(c, err)
			return
		}
		tracing.TagEntity(span, template.ID)
		c.JSON(http.StatusCreated, template)
	}
}

func (h *ContentHandler) CreateTargetGroup() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "ContentHandler.CreateTargetGroup")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		var req TargetGroupRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		group := &models.TargetGroup{Name: req.Name}
		validation := api_errors.NewMultiErrors()
		for i, target := range req.Targets {
			email := utils.NormalizeEmail(target.Email)
			if v := mailvalidate.ValidateEmailSyntax(email); !v.IsValid {
				validation.Add("targets["+strconv.Itoa(i)+"].email", "invalid email address", nil)
				continue
			}
			group.Targets = append(group.Targets, models.Target{
				Email:     email,
				FirstName: strings.TrimSpace(target.FirstName),
				LastName:  strings.TrimSpace(target.LastName),
			})
		}
		if validation.HasErrors() {
			tracing.TraceErr(span, validation)
			api_errors.Respond(c, validation)
			return
		}

		if err := h.repositories.TargetGroupRepository.Create(ctx, group); err != nil {
			tracing.TraceErr(span, err)
			api_errors.Respond(c, err)
			return
		}
		tracing.TagEntity(span, group.ID)
		c.JSON(http.StatusCreated, group)
	}
}

// UploadAttachment takes a multipart "file" field. With buildable=true the
// file must be a zip archive holding generator.sh.
func (h *ContentHandler) UploadAttachment() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "ContentHandler.UploadAttachment")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		header, err := c.FormFile("file")
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required field: file"})
			return
		}
		if header.Size > maxAttachmentSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Attachment too large"})
			return
		}
		file, err := header.Open()
		if err != nil {
			tracing.TraceErr(span, err)
			api_errors.Respond(c, err)
			return
		}
		defer file.Close()
		content, err := io.ReadAll(file)
		if err != nil {
			tracing.TraceErr(span, err)
			api_errors.Respond(c, err)
			return
		}

		attachment := &models.Attachment{
			Name:           header.Filename,
			AttachmentName: c.PostForm("attachmentName"),
			ContentType:    header.Header.Get("Content-Type"),
			Buildable:      c.PostForm("buildable") == "true",
		}
		if err := h.attachments.Create(ctx, attachment, content); err != nil {
			tracing.TraceErr(span, err)
			if status := api_errors.StatusCode(err); status == http.StatusInternalServerError {
				api_errors.Respond(c, err)
			} else {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			}
			return
		}
		tracing.TagEntity(span, attachment.ID)
		c.JSON(http.StatusCreated, attachment)
	}
}
