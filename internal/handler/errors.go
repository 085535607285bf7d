package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-mock/internal/model"
	"github.com/stemsi/exstem-mock/internal/orchestrator"
	"github.com/stemsi/exstem-mock/internal/registry"
	"github.com/stemsi/exstem-mock/internal/response"
	"github.com/stemsi/exstem-mock/internal/service"
	"github.com/stemsi/exstem-mock/internal/session"
)

// errorMapping pairs a sentinel with the status and code it is reported as.
type errorMapping struct {
	err    error
	status int
	code   response.ErrCode
}

// errorMappings is checked in order with errors.Is, so wrapped sentinels
// resolve to the first match.
var errorMappings = []errorMapping{
	{registry.ErrSectionNotMounted, http.StatusNotFound, response.ErrSectionNotMounted},
	{session.ErrClosed, http.StatusNotFound, response.ErrSectionNotMounted},
	{registry.ErrMockNotMounted, http.StatusNotFound, response.ErrMockNotMounted},
	{orchestrator.ErrClosed, http.StatusNotFound, response.ErrMockNotMounted},
	{service.ErrAttemptNotFound, http.StatusNotFound, response.ErrNotFound},
	{registry.ErrStageMismatch, http.StatusConflict, response.ErrStageMismatch},
	{registry.ErrMockMismatch, http.StatusConflict, response.ErrMockMismatch},
	{session.ErrAlreadySignaled, http.StatusConflict, response.ErrStageAlreadySignaled},
	{session.ErrAlreadyCompleted, http.StatusConflict, response.ErrSectionCompleted},
	{session.ErrInvalidTransition, http.StatusConflict, response.ErrInvalidTransition},
	{orchestrator.ErrInvalidTransition, http.StatusConflict, response.ErrInvalidTransition},
	{session.ErrMissingContext, http.StatusUnprocessableEntity, response.ErrSubmissionContext},
	{orchestrator.ErrInvalidConfig, http.StatusBadRequest, response.ErrValidation},
	{session.ErrSubmissionFailed, http.StatusBadGateway, response.ErrSubmissionFailed},
	{model.ErrContentUnavailable, http.StatusServiceUnavailable, response.ErrContentUnavailable},
}

// failWithError reports err with the status of its sentinel, or 500.
func failWithError(c *gin.Context, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
	}
	response.Fail(c, status, code)
}

func classify(err error) (int, response.ErrCode) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, response.ErrInternal
}
