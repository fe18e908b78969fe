package handlers

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/models"
	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/queue"
)

// QueueHandler exposes the queue for operator inspection.
type QueueHandler struct {
	Store  *queue.Store
	Logger *zap.Logger
}

func NewQueueHandler(store *queue.Store, logger *zap.Logger) *QueueHandler {
	return &QueueHandler{Store: store, Logger: logger}
}

// EntriesResponse is the paged listing shape.
type EntriesResponse struct {
	Entries []EntryDTO `json:"entries"`
	HasMore bool       `json:"has_more"`
}

// EntryDTO is one queue entry in the listing; the raw payload is
// omitted to keep responses small.
type EntryDTO struct {
	ID            string  `json:"id"`
	Status        string  `json:"status"`
	RetryCount    int     `json:"retry_count"`
	BatchID       string  `json:"batch_id"`
	ErrorMessage  *string `json:"error_message,omitempty"`
	NextAttemptAt string  `json:"next_attempt_at"`
	ProcessedAt   *string `json:"processed_at,omitempty"`
	CreatedAt     string  `json:"created_at"`
}

var validStatuses = map[string]bool{
	models.StatusPending:    true,
	models.StatusProcessing: true,
	models.StatusCompleted:  true,
	models.StatusFailed:     true,
}

// GetEntries handles GET /api/v1/queue/entries.
// Query parameters:
//   - status (optional): filter by queue status
//   - limit (optional, default 25): number of entries to return
//   - offset (optional, default 0): number of entries to skip
func (h *QueueHandler) GetEntries(c *fiber.Ctx) error {
	status := c.Query("status")
	if status != "" && !validStatuses[status] {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "status must be one of pending, processing, completed, failed",
		})
	}

	limit := 25
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 || parsed > 500 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "limit must be a positive integer up to 500",
			})
		}
		limit = parsed
	}

	offset := 0
	if offsetStr := c.Query("offset"); offsetStr != "" {
		parsed, err := strconv.Atoi(offsetStr)
		if err != nil || parsed < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "offset must be a non-negative integer",
			})
		}
		offset = parsed
	}

	entries, hasMore, err := h.Store.List(status, limit, offset)
	if err != nil {
		h.Logger.Error("failed to list queue entries",
			zap.String("status", status),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to fetch queue entries",
		})
	}

	dtos := make([]EntryDTO, 0, len(entries))
	for i := range entries {
		entry := &entries[i]
		dto := EntryDTO{
			ID:            entry.ID.String(),
			Status:        entry.Status,
			RetryCount:    entry.RetryCount,
			BatchID:       entry.BatchID.String(),
			ErrorMessage:  entry.ErrorMessage,
			NextAttemptAt: entry.NextAttemptAt.UTC().Format(time.RFC3339),
			CreatedAt:     entry.CreatedAt.UTC().Format(time.RFC3339),
		}
		if entry.ProcessedAt != nil {
			processed := entry.ProcessedAt.UTC().Format(time.RFC3339)
			dto.ProcessedAt = &processed
		}
		dtos = append(dtos, dto)
	}

	return c.JSON(EntriesResponse{Entries: dtos, HasMore: hasMore})
}
