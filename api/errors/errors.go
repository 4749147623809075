package errors

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	mercure_errors "github.com/customeros/mercure/internal/errors"
)

type MultiErrors struct {
	Errors map[string][]ErrorInfo
}

type ErrorInfo struct {
	Message  string
	RawError error
}

func NewMultiErrors() *MultiErrors {
	return &MultiErrors{
		Errors: make(map[string][]ErrorInfo),
	}
}

func (e *MultiErrors) Add(key, message string, err error) {
	e.Errors[key] = append(e.Errors[key], ErrorInfo{
		Message:  message,
		RawError: err,
	})
}

func (e *MultiErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

func (e *MultiErrors) Error() string {
	var parts []string
	for field, errors := range e.Errors {
		for _, err := range errors {
			parts = append(parts, fmt.Sprintf("%s: %s", field, err.Message))
		}
	}
	return strings.Join(parts, " | ")
}

// StatusCode maps domain errors to the admin API status codes.
func StatusCode(err error) int {
	var multi *MultiErrors
	if errors.As(err, &multi) {
		return http.StatusBadRequest
	}
	switch errors.Cause(err) {
	case mercure_errors.ErrInvalidInput:
		return http.StatusBadRequest
	case mercure_errors.ErrCampaignNotFound,
		mercure_errors.ErrTargetGroupNotFound,
		mercure_errors.ErrEmailTemplateNotFound,
		mercure_errors.ErrLandingPageNotFound,
		mercure_errors.ErrAttachmentNotFound,
		mercure_errors.ErrTrackerNotFound:
		return http.StatusNotFound
	case mercure_errors.ErrPageTooLarge:
		return http.StatusUnprocessableEntity
	case mercure_errors.ErrConnectionTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Respond writes {"error": ...}. Internal errors are not echoed back.
func Respond(c *gin.Context, err error) {
	status := StatusCode(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "Internal server error"
	}
	c.JSON(status, gin.H{"error": message})
}
