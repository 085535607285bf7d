package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stemsi/exstem-mock/internal/middleware"
	"github.com/stemsi/exstem-mock/internal/model"
	"github.com/stemsi/exstem-mock/internal/registry"
	"github.com/stemsi/exstem-mock/internal/response"
	"github.com/stemsi/exstem-mock/internal/session"
	"github.com/stemsi/exstem-mock/internal/validator"
)

// AttemptReviewer loads stored attempts for read-only review.
type AttemptReviewer interface {
	ReviewRecord(ctx context.Context, attemptID uuid.UUID, candidateID int, sectionID string) (*model.ReviewRecord, error)
}

// SectionHandler exposes the timed section sessions of a candidate.
type SectionHandler struct {
	registry *registry.Registry
	reviewer AttemptReviewer
}

// NewSectionHandler creates a new SectionHandler.
func NewSectionHandler(reg *registry.Registry, reviewer AttemptReviewer) *SectionHandler {
	return &SectionHandler{registry: reg, reviewer: reviewer}
}

// MountSection godoc
// POST /api/v1/sections/:section_id/mount
// Creates or reattaches the session of a section and restores its progress.
func (h *SectionHandler) MountSection(c *gin.Context) {
	sectionID, ok := sectionParam(c)
	if !ok {
		return
	}

	var req model.MountSectionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	if req.MockID != "" && !validator.ValidResourceID(req.MockID) {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	sess, err := h.registry.MountSection(c.Request.Context(), middleware.CandidateID(c), sectionID, req.MockID, model.Stage(req.Stage))
	if err != nil {
		failWithError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"content": sess.Content(),
		"state":   sess.Snapshot(),
	})
}

// GetState godoc
// GET /api/v1/sections/:section_id/state?mock_id=
func (h *SectionHandler) GetState(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	response.Success(c, http.StatusOK, gin.H{"state": sess.Snapshot()})
}

// SetAnswer godoc
// PUT /api/v1/sections/:section_id/answers/:question_key
// Records one answer. Answers to a reviewed or completed section are rejected.
func (h *SectionHandler) SetAnswer(c *gin.Context) {
	questionKey := c.Param("question_key")
	if !validator.ValidQuestionKey(questionKey) {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.SetAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	sess, ok := h.session(c)
	if !ok {
		return
	}

	if !sess.SetAnswer(c.Request.Context(), questionKey, req.Value) {
		response.Fail(c, http.StatusConflict, response.ErrAnswerRejected)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"state": sess.Snapshot()})
}

// ToggleBookmark godoc
// POST /api/v1/sections/:section_id/bookmarks/:question_key
func (h *SectionHandler) ToggleBookmark(c *gin.Context) {
	questionKey := c.Param("question_key")
	if !validator.ValidQuestionKey(questionKey) {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	sess, ok := h.session(c)
	if !ok {
		return
	}

	if !sess.ToggleBookmark(c.Request.Context(), questionKey) {
		response.Fail(c, http.StatusConflict, response.ErrAnswerRejected)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"state": sess.Snapshot()})
}

// Start godoc
// POST /api/v1/sections/:section_id/start
func (h *SectionHandler) Start(c *gin.Context) {
	h.transition(c, (*session.Session).Start)
}

// Pause godoc
// POST /api/v1/sections/:section_id/pause
func (h *SectionHandler) Pause(c *gin.Context) {
	h.transition(c, (*session.Session).Pause)
}

// Resume godoc
// POST /api/v1/sections/:section_id/resume
func (h *SectionHandler) Resume(c *gin.Context) {
	h.transition(c, (*session.Session).Resume)
}

// Retake godoc
// POST /api/v1/sections/:section_id/retake
func (h *SectionHandler) Retake(c *gin.Context) {
	h.transition(c, (*session.Session).Retake)
}

// Finish godoc
// POST /api/v1/sections/:section_id/finish
// Scores the attempt. A submit that is already running answers 202 with the
// current state instead of starting a second one.
func (h *SectionHandler) Finish(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	// The attempt is persisted even if the client goes away mid-request.
	res, err := sess.Finish(context.WithoutCancel(c.Request.Context()))
	if err != nil {
		if errors.Is(err, session.ErrSubmissionInFlight) {
			response.Accepted(c, response.ErrSubmissionInFlight, gin.H{"state": sess.Snapshot()})
			return
		}
		failWithError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"result": res,
		"state":  sess.Snapshot(),
	})
}

// Review godoc
// POST /api/v1/sections/:section_id/review
// Opens a stored attempt of this section read-only.
func (h *SectionHandler) Review(c *gin.Context) {
	var req model.ReviewRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	attemptID, err := uuid.Parse(req.AttemptID)
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	sess, ok := h.session(c)
	if !ok {
		return
	}

	record, err := h.reviewer.ReviewRecord(c.Request.Context(), attemptID, middleware.CandidateID(c), sess.SectionID())
	if err != nil {
		failWithError(c, err)
		return
	}
	if err := sess.Review(*record); err != nil {
		failWithError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"state": sess.Snapshot()})
}

// Abandon godoc
// POST /api/v1/sections/:section_id/abandon
// Discards the attempt without scoring and unmounts the section.
func (h *SectionHandler) Abandon(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	if err := sess.Abandon(c.Request.Context()); err != nil {
		failWithError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"state": sess.Snapshot()})
}

// UnmountSection godoc
// DELETE /api/v1/sections/:section_id/mount?mock_id=
// Checkpoints an active section and releases it.
func (h *SectionHandler) UnmountSection(c *gin.Context) {
	sectionID, ok := sectionParam(c)
	if !ok {
		return
	}
	mockID, ok := mockQuery(c)
	if !ok {
		return
	}

	if err := h.registry.UnmountSection(c.Request.Context(), middleware.CandidateID(c), sectionID, mockID); err != nil {
		failWithError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"unmounted": true})
}

func (h *SectionHandler) transition(c *gin.Context, fn func(*session.Session, context.Context) error) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	if err := fn(sess, c.Request.Context()); err != nil {
		failWithError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"state": sess.Snapshot()})
}

// session resolves the mounted section addressed by the request. It writes
// the failure response itself.
func (h *SectionHandler) session(c *gin.Context) (*session.Session, bool) {
	sectionID, ok := sectionParam(c)
	if !ok {
		return nil, false
	}
	mockID, ok := mockQuery(c)
	if !ok {
		return nil, false
	}

	sess, err := h.registry.Section(middleware.CandidateID(c), sectionID, mockID)
	if err != nil {
		failWithError(c, err)
		return nil, false
	}
	return sess, true
}

func sectionParam(c *gin.Context) (string, bool) {
	id := c.Param("section_id")
	if !validator.ValidResourceID(id) {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return "", false
	}
	return id, true
}

// mockQuery reads the optional mock_id query parameter.
func mockQuery(c *gin.Context) (string, bool) {
	id := c.Query("mock_id")
	if id != "" && !validator.ValidResourceID(id) {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return "", false
	}
	return id, true
}
