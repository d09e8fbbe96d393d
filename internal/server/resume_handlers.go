package server

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/portfolio/internal/resumes"
	"github.com/MarcoPoloResearchLab/portfolio/internal/uploads"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// multipartOverhead leaves room for boundaries and headers around the file part.
const multipartOverhead = 1 << 20

type resumePayload struct {
	ID        string    `json:"id"`
	Version   string    `json:"version"`
	Label     string    `json:"label"`
	Date      time.Time `json:"date"`
	Filename  string    `json:"filename"`
	Changelog string    `json:"changelog"`
	IsCurrent bool      `json:"isCurrent"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type resumeRequestPayload struct {
	Date      string `json:"date"`
	Filename  string `json:"filename"`
	Changelog string `json:"changelog"`
	IsCurrent *bool  `json:"isCurrent"`
}

type realtimeEventPayload struct {
	Action    string    `json:"action"`
	ResumeIDs []string  `json:"resumeIds"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
}

func newResumePayload(record resumes.Version) resumePayload {
	return resumePayload{
		ID:        record.ID,
		Version:   record.Version,
		Label:     record.Label,
		Date:      record.Date.UTC(),
		Filename:  record.Filename,
		Changelog: record.Changelog,
		IsCurrent: record.IsCurrent,
		CreatedAt: record.CreatedAt.UTC(),
		UpdatedAt: record.UpdatedAt.UTC(),
	}
}

func (p resumeRequestPayload) input() resumes.Input {
	isCurrent := false
	if p.IsCurrent != nil {
		isCurrent = *p.IsCurrent
	}
	return resumes.Input{
		Date:      p.Date,
		Filename:  p.Filename,
		Changelog: p.Changelog,
		IsCurrent: isCurrent,
	}
}

func (h *httpHandler) handleListResumes(c *gin.Context) {
	records, err := h.ledger.List(c.Request.Context())
	if err != nil {
		h.writeLedgerError(c, err)
		return
	}
	response := make([]resumePayload, 0, len(records))
	for _, record := range records {
		response = append(response, newResumePayload(record))
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleCurrentResume(c *gin.Context) {
	record, err := h.ledger.Current(c.Request.Context())
	if err != nil {
		h.writeLedgerError(c, err)
		return
	}
	c.JSON(http.StatusOK, newResumePayload(record))
}

func (h *httpHandler) handleCreateResume(c *gin.Context) {
	var request resumeRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, errorPayload{Error: "invalid request body", Code: "resumes.request.invalid_body"})
		return
	}

	record, err := h.ledger.Create(c.Request.Context(), request.input())
	if err != nil {
		h.writeLedgerError(c, err)
		return
	}
	h.realtime.Publish(resumeChangeMessage(ResumeActionCreated, record.ID))
	c.JSON(http.StatusCreated, newResumePayload(record))
}

func (h *httpHandler) handleUpdateResume(c *gin.Context) {
	var request resumeRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, errorPayload{Error: "invalid request body", Code: "resumes.request.invalid_body"})
		return
	}

	record, err := h.ledger.Update(c.Request.Context(), c.Param("id"), request.input())
	if err != nil {
		h.writeLedgerError(c, err)
		return
	}
	h.realtime.Publish(resumeChangeMessage(ResumeActionUpdated, record.ID))
	c.JSON(http.StatusOK, newResumePayload(record))
}

func (h *httpHandler) handleDeleteResume(c *gin.Context) {
	id := c.Param("id")
	if err := h.ledger.Delete(c.Request.Context(), id); err != nil {
		h.writeLedgerError(c, err)
		return
	}
	h.realtime.Publish(resumeChangeMessage(ResumeActionDeleted, id))
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *httpHandler) handleUpload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.uploads.MaxBytes()+multipartOverhead)

	header, err := c.FormFile("file")
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			c.JSON(http.StatusBadRequest, errorPayload{Error: "file too large", Code: "uploads.too_large"})
			return
		}
		c.JSON(http.StatusBadRequest, errorPayload{Error: "no file uploaded", Code: "uploads.missing_file"})
		return
	}

	content, err := header.Open()
	if err != nil {
		h.logger.Error("failed to open uploaded file", zap.Error(err))
		c.JSON(http.StatusBadRequest, errorPayload{Error: "no file uploaded", Code: "uploads.missing_file"})
		return
	}
	defer content.Close()

	reference, err := h.uploads.Upload(c.Request.Context(), uploads.File{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Content:     content,
	})
	if err != nil {
		switch {
		case errors.Is(err, uploads.ErrMissingFile):
			c.JSON(http.StatusBadRequest, errorPayload{Error: "no file uploaded", Code: "uploads.missing_file"})
		case errors.Is(err, uploads.ErrUnsupportedType):
			c.JSON(http.StatusBadRequest, errorPayload{Error: "only PDF files are allowed", Code: "uploads.unsupported_type"})
		case errors.Is(err, uploads.ErrTooLarge):
			c.JSON(http.StatusBadRequest, errorPayload{Error: "file too large", Code: "uploads.too_large"})
		default:
			h.logger.Error("upload failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, errorPayload{Error: "upload failed", Code: "uploads.storage_failed"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "filename": reference})
}

func (h *httpHandler) handleResumeEvents(c *gin.Context) {
	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx, ResumeChannel)
	defer cleanup()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()

	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case message, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(message.EventType, realtimeEventPayload{
				Action:    message.Action,
				ResumeIDs: message.ResumeIDs,
				Timestamp: message.Timestamp,
				Source:    realtimeSourceBackend,
			})
			return true
		case <-heartbeat.C:
			c.SSEvent(realtimeEventHeartbeat, gin.H{"source": realtimeSourceBackend})
			return true
		}
	})
}

func (h *httpHandler) writeLedgerError(c *gin.Context, err error) {
	code := "internal_error"
	var serviceErr *resumes.ServiceError
	if errors.As(err, &serviceErr) {
		code = serviceErr.Code()
	}

	switch {
	case errors.Is(err, resumes.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, errorPayload{Error: "unauthorized", Code: code})
	case errors.Is(err, resumes.ErrValidation):
		c.JSON(http.StatusBadRequest, errorPayload{Error: "invalid input", Code: code})
	case errors.Is(err, resumes.ErrNotFound):
		c.JSON(http.StatusNotFound, errorPayload{Error: "not found", Code: code})
	default:
		h.logger.Error("resume ledger operation failed", zap.String("code", code), zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorPayload{Error: "internal error", Code: code})
	}
}
