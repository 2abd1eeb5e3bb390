package handlers

import (
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-csms/internal/ports"
)

// CommandHandler lets operators drive chargers through whichever
// transport currently connects each one.
type CommandHandler struct {
	commands ports.CommandService
	log      *zap.Logger
}

func NewCommandHandler(commands ports.CommandService, log *zap.Logger) *CommandHandler {
	return &CommandHandler{commands: commands, log: log}
}

func (h *CommandHandler) RegisterRoutes(router fiber.Router) {
	router.Post("/chargers/:id/remote-start", h.RemoteStart)
	router.Post("/chargers/:id/remote-stop", h.RemoteStop)
	router.Post("/chargers/:id/commands", h.Send)
}

type remoteStartRequest struct {
	IDTag       string `json:"id_tag"`
	ConnectorID int    `json:"connector_id"`
}

func (h *CommandHandler) RemoteStart(c *fiber.Ctx) error {
	var req remoteStartRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if req.IDTag == "" {
		return fiber.NewError(fiber.StatusBadRequest, "id_tag is required")
	}

	res, err := h.commands.RemoteStart(c.Context(), c.Params("id"), req.IDTag, req.ConnectorID)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

type remoteStopRequest struct {
	TransactionID int64 `json:"transaction_id"`
}

func (h *CommandHandler) RemoteStop(c *fiber.Ctx) error {
	var req remoteStopRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	res, err := h.commands.RemoteStop(c.Context(), c.Params("id"), req.TransactionID)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

type sendCommandRequest struct {
	Action         string          `json:"action"`
	Payload        json.RawMessage `json:"payload"`
	TimeoutSeconds int             `json:"timeout_seconds"`
}

// Send is the generic pass-through for the supported outbound actions
// (Reset, GetConfiguration, ChangeAvailability, ...).
func (h *CommandHandler) Send(c *fiber.Ctx) error {
	var req sendCommandRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if req.Action == "" {
		return fiber.NewError(fiber.StatusBadRequest, "action is required")
	}

	timeout := time.Duration(req.TimeoutSeconds) * time.Second
	res, err := h.commands.Send(c.Context(), c.Params("id"), req.Action, req.Payload, timeout)
	if err != nil {
		return err
	}
	return c.JSON(res)
}
