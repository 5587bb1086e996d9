package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/ingest"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// MailboxPoller is the part of the ingest poller the API drives.
type MailboxPoller interface {
	RunOnce(ctx context.Context) (ingest.Result, error)
	Trigger()
}

// IngestHandler exposes the manual "fetch now" action.
type IngestHandler struct {
	poller MailboxPoller
}

// NewIngestHandler constructs handler. poller may be nil when no mailbox is configured.
func NewIngestHandler(poller MailboxPoller) *IngestHandler {
	return &IngestHandler{poller: poller}
}

// Fetch handles POST /api/ingest/fetch. With ?async=true the background loop
// is nudged and the call returns immediately.
func (h *IngestHandler) Fetch(c *fiber.Ctx) error {
	if h.poller == nil {
		return apperrors.NewConflict("mailbox ingestion is not configured", nil)
	}
	if parseBool(c.Query("async"), false) {
		h.poller.Trigger()
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"data": fiber.Map{"status": "triggered"}})
	}
	result, err := h.poller.RunOnce(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": result})
}
