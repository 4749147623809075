package handlers

import (
	"encoding/base64"
	"encoding/json"
	"mime"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mercure/config"
	"github.com/customeros/mercure/interfaces"
	"github.com/customeros/mercure/internal/enum"
	mercure_errors "github.com/customeros/mercure/internal/errors"
	"github.com/customeros/mercure/internal/logger"
	"github.com/customeros/mercure/internal/routes"
	"github.com/customeros/mercure/internal/tracing"
	"github.com/customeros/mercure/services/tracker"
)

// transparent 1x1 png
var pixel, _ = base64.StdEncoding.DecodeString("iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNkYAAAAAYAAjCB0C8AAAAASUVORK5CYII=")

// TrackingHandler serves the public routes embedded in mails and landing
// pages. Failures never leak details to the visitor.
type TrackingHandler struct {
	cfg         *config.AppConfig
	log         logger.Logger
	trackers    interfaces.TrackerService
	landing     interfaces.LandingPageService
	attachments interfaces.AttachmentService
}

func NewTrackingHandler(cfg *config.AppConfig, log logger.Logger, trackers interfaces.TrackerService, landing interfaces.LandingPageService, attachments interfaces.AttachmentService) *TrackingHandler {
	return &TrackingHandler{
		cfg:         cfg,
		log:         log,
		trackers:    trackers,
		landing:     landing,
		attachments: attachments,
	}
}

// Pixel counts an email open. Query parameters and posted form values, when
// present, are kept as the raw payload of the visit.
func (h *TrackingHandler) Pixel() gin.HandlerFunc {
	return h.pixel
}

func (h *TrackingHandler) pixel(c *gin.Context) {
	span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "TrackingHandler.Pixel")
	defer span.Finish()
	tracing.SetDefaultRestSpanTags(ctx, span)

	param := c.Param("id")
	if !strings.HasSuffix(param, routes.TrackerImageSuffix) {
		c.Status(http.StatusNotFound)
		return
	}
	trackerID := strings.TrimSuffix(param, routes.TrackerImageSuffix)
	tracing.TagEntity(span, trackerID)

	visit := tracker.VisitFromRequest(c.Request, pixelPayload(c.Request))
	if _, _, err := h.trackers.RecordVisit(ctx, trackerID, visit, enum.TrackerValueOpened); err != nil {
		tracing.TraceErr(span, err)
		c.Status(http.StatusNotFound)
		return
	}

	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Data(http.StatusOK, "image/png", pixel)
}

// pixelPayload merges query and body values, body first for a repeated name.
func pixelPayload(r *http.Request) string {
	if err := r.ParseForm(); err != nil || len(r.Form) == 0 {
		return ""
	}
	encoded, err := json.Marshal(r.Form)
	if err != nil {
		return ""
	}
	return string(encoded)
}

// BrowserInfos receives the navigator data posted by the landing page script.
// Posts on the image path are pixel hits.
func (h *TrackingHandler) BrowserInfos() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.HasSuffix(c.Param("id"), routes.TrackerImageSuffix) {
			h.pixel(c)
			return
		}

		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "TrackingHandler.BrowserInfos")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)
		trackerID := c.Param("id")
		tracing.TagEntity(span, trackerID)

		infos := c.PostForm("infos")
		if infos == "" {
			c.Status(http.StatusBadRequest)
			return
		}
		if err := h.trackers.SetBrowserInfos(ctx, trackerID, infos); err != nil {
			tracing.TraceErr(span, err)
			c.Status(http.StatusNotFound)
			return
		}
		c.Status(http.StatusOK)
	}
}

func (h *TrackingHandler) LandingPageView() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "TrackingHandler.LandingPageView")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)
		trackerID := c.Param("id")
		tracing.TagEntity(span, trackerID)

		result, err := h.landing.View(ctx, trackerID, tracker.VisitFromRequest(c.Request, ""))
		if err != nil {
			tracing.TraceErr(span, err)
			c.Status(http.StatusNotFound)
			return
		}
		if result.IsRedirect() {
			c.Redirect(http.StatusFound, result.RedirectURL)
			return
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(result.HTML))
	}
}

func (h *TrackingHandler) LandingPagePost() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "TrackingHandler.LandingPagePost")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)
		trackerID := c.Param("id")
		tracing.TagEntity(span, trackerID)

		if err := c.Request.ParseForm(); err != nil {
			tracing.TraceErr(span, err)
			c.Redirect(http.StatusFound, h.cfg.NeutralRedirectURL)
			return
		}

		page, err := h.landing.Post(ctx, trackerID, c.Request.PostForm, tracker.VisitFromRequest(c.Request, ""))
		if errors.Is(err, mercure_errors.ErrTrackerNotFound) {
			tracing.TraceErr(span, err)
			c.Status(http.StatusNotFound)
			return
		}
		if err != nil {
			tracing.TraceErr(span, err)
			h.log.Warnf("landing page post on tracker %s failed: %v", trackerID, err)
			c.Redirect(http.StatusFound, h.cfg.NeutralRedirectURL)
			return
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(page))
	}
}

func (h *TrackingHandler) Attachment() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "TrackingHandler.Attachment")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)
		attachmentID, trackerID := c.Param("attachment_id"), c.Param("tracker_id")
		tracing.TagEntity(span, attachmentID)

		attachment, content, err := h.attachments.Download(ctx, attachmentID, trackerID, tracker.VisitFromRequest(c.Request, ""))
		if err != nil {
			tracing.TraceErr(span, err)
			c.Status(http.StatusNotFound)
			return
		}

		c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": attachment.Filename()}))
		c.Data(http.StatusOK, attachment.MimeType(), content)
	}
}
