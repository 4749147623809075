package errors

import "github.com/pkg/errors"

var (
	// common errors
	ErrInvalidInput      = errors.New("invalid input parameters")
	ErrConnectionTimeout = errors.New("connection timeout")

	// campaign errors
	ErrCampaignNotFound      = errors.New("campaign not found")
	ErrTargetGroupNotFound   = errors.New("target group not found")
	ErrEmailTemplateNotFound = errors.New("email template not found")
	ErrLandingPageNotFound   = errors.New("landing page not found")
	ErrLandingPageMissing    = errors.New("email template has no landing page")

	// tracker errors
	ErrTrackerNotFound      = errors.New("tracker not found")
	ErrTrackerInfosNotFound = errors.New("no pending tracker infos")

	// attachment errors
	ErrAttachmentNotFound   = errors.New("attachment not found")
	ErrBuilderScriptMissing = errors.New("attachment archive has no generator.sh")
	ErrUnsafeArchivePath    = errors.New("attachment archive entry escapes build directory")
	ErrObjectNotFound       = errors.New("stored object not found")

	// cloning errors
	ErrUnknownCharset = errors.New("unable to detect page charset")
	ErrPageTooLarge   = errors.New("page exceeds clone size limit")
)
