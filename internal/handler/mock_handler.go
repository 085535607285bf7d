package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-mock/internal/middleware"
	"github.com/stemsi/exstem-mock/internal/model"
	"github.com/stemsi/exstem-mock/internal/orchestrator"
	"github.com/stemsi/exstem-mock/internal/registry"
	"github.com/stemsi/exstem-mock/internal/response"
	"github.com/stemsi/exstem-mock/internal/validator"
)

// MockHandler drives the multi-section mock exams.
type MockHandler struct {
	registry *registry.Registry
}

// NewMockHandler creates a new MockHandler.
func NewMockHandler(reg *registry.Registry) *MockHandler {
	return &MockHandler{registry: reg}
}

// MountMock godoc
// POST /api/v1/mocks/:mock_id/mount
// Creates or reattaches the orchestrator and recovers its stage.
func (h *MockHandler) MountMock(c *gin.Context) {
	mockID, ok := mockParam(c)
	if !ok {
		return
	}

	var req model.MountMockRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	for _, id := range req.Sections {
		if !validator.ValidResourceID(id) {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
				map[string]string{"sections": "section id " + id + " is not allowed"})
			return
		}
	}

	orch, err := h.registry.MountMock(c.Request.Context(), middleware.CandidateID(c), mockID, req)
	if err != nil {
		failWithError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"state": orch.State()})
}

// GetState godoc
// GET /api/v1/mocks/:mock_id/state
func (h *MockHandler) GetState(c *gin.Context) {
	orch, ok := h.mock(c)
	if !ok {
		return
	}
	response.Success(c, http.StatusOK, gin.H{"state": orch.State()})
}

// CompleteAudioCheck godoc
// POST /api/v1/mocks/:mock_id/audio-check
func (h *MockHandler) CompleteAudioCheck(c *gin.Context) {
	orch, ok := h.mock(c)
	if !ok {
		return
	}
	if err := orch.CompleteAudioCheck(c.Request.Context()); err != nil {
		failWithError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"state": orch.State()})
}

// ForceSubmit godoc
// POST /api/v1/mocks/:mock_id/force-submit
// Ends the mock early. The active section is submitted as an early exit and
// the remaining sections are skipped.
func (h *MockHandler) ForceSubmit(c *gin.Context) {
	orch, ok := h.mock(c)
	if !ok {
		return
	}
	if err := orch.ForceSubmit(c.Request.Context()); err != nil {
		failWithError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"state": orch.State()})
}

func (h *MockHandler) mock(c *gin.Context) (*orchestrator.Orchestrator, bool) {
	mockID, ok := mockParam(c)
	if !ok {
		return nil, false
	}
	orch, err := h.registry.Mock(middleware.CandidateID(c), mockID)
	if err != nil {
		failWithError(c, err)
		return nil, false
	}
	return orch, true
}

func mockParam(c *gin.Context) (string, bool) {
	id := c.Param("mock_id")
	if !validator.ValidResourceID(id) {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return "", false
	}
	return id, true
}
