package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-csms/internal/domain"
	"github.com/seu-repo/ocpp-csms/internal/ports"
	"github.com/seu-repo/ocpp-csms/internal/registry"
)

// OwnerResolver reports which cluster node currently holds a charger,
// "" when nobody does. Satisfied by registry.Distributed.
type OwnerResolver interface {
	Owner(ctx context.Context, chargerID string) (string, error)
}

// ChargerHandler exposes the operator administration surface over
// chargers. cluster is nil in standalone mode; when set, chargers
// attached to other nodes still report connected.
type ChargerHandler struct {
	chargers ports.ChargerService
	conns    *registry.Local
	cluster  OwnerResolver
	log      *zap.Logger
}

func NewChargerHandler(chargers ports.ChargerService, conns *registry.Local, cluster OwnerResolver, log *zap.Logger) *ChargerHandler {
	return &ChargerHandler{chargers: chargers, conns: conns, cluster: cluster, log: log}
}

func (h *ChargerHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/chargers", h.List)
	router.Post("/chargers", h.Enroll)
	router.Get("/chargers/:id", h.Get)
	router.Get("/chargers/:id/statistics", h.Statistics)
	router.Patch("/chargers/:id/location", h.UpdateLocation)
	router.Patch("/chargers/:id/pricing", h.UpdatePricing)
	router.Patch("/chargers/:id/active", h.SetActive)
}

type chargerView struct {
	domain.Charger
	Connected    bool   `json:"connected"`
	TransportVia string `json:"transport,omitempty"`
	Node         string `json:"node,omitempty"`
}

func (h *ChargerHandler) view(ctx context.Context, c domain.Charger) chargerView {
	v := chargerView{Charger: c}
	if conn, ok := h.conns.Lookup(c.ID); ok {
		v.Connected = true
		v.TransportVia = conn.Transport
		return v
	}
	if h.cluster != nil {
		owner, err := h.cluster.Owner(ctx, c.ID)
		if err != nil {
			h.log.Warn("Failed to resolve charger owner", zap.String("charger_id", c.ID), zap.Error(err))
			return v
		}
		if owner != "" {
			v.Connected = true
			v.Node = owner
		}
	}
	return v
}

func (h *ChargerHandler) List(c *fiber.Ctx) error {
	activeOnly := c.QueryBool("active", false)
	chargers, err := h.chargers.List(c.Context(), activeOnly)
	if err != nil {
		return err
	}
	views := make([]chargerView, 0, len(chargers))
	for _, ch := range chargers {
		views = append(views, h.view(c.Context(), ch))
	}
	return c.JSON(fiber.Map{"chargers": views, "count": len(views)})
}

func (h *ChargerHandler) Get(c *fiber.Ctx) error {
	charger, err := h.chargers.Get(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(h.view(c.Context(), *charger))
}

type enrollRequest struct {
	ID             string   `json:"id"`
	Vendor         string   `json:"vendor"`
	Model          string   `json:"model"`
	ConnectorType  string   `json:"connector_type"`
	ChargingRateKW float64  `json:"charging_rate_kw"`
	PricePerKWh    float64  `json:"price_per_kwh"`
	Latitude       *float64 `json:"latitude"`
	Longitude      *float64 `json:"longitude"`
	Address        string   `json:"address"`
}

func (h *ChargerHandler) Enroll(c *fiber.Ctx) error {
	var req enrollRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if req.ID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "id is required")
	}

	charger := &domain.Charger{
		ID:             req.ID,
		Vendor:         req.Vendor,
		Model:          req.Model,
		ConnectorType:  req.ConnectorType,
		ChargingRateKW: req.ChargingRateKW,
		PricePerKWh:    req.PricePerKWh,
		Latitude:       req.Latitude,
		Longitude:      req.Longitude,
		Address:        req.Address,
	}
	if err := h.chargers.Enroll(c.Context(), charger); err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(charger)
}

func (h *ChargerHandler) UpdateLocation(c *fiber.Ctx) error {
	var req struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Address   string  `json:"address"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := h.chargers.UpdateLocation(c.Context(), c.Params("id"), req.Latitude, req.Longitude, req.Address); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"updated": true})
}

func (h *ChargerHandler) UpdatePricing(c *fiber.Ctx) error {
	var req struct {
		ChargingRateKW float64 `json:"charging_rate_kw"`
		PricePerKWh    float64 `json:"price_per_kwh"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := h.chargers.UpdatePricing(c.Context(), c.Params("id"), req.ChargingRateKW, req.PricePerKWh); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"updated": true})
}

func (h *ChargerHandler) SetActive(c *fiber.Ctx) error {
	var req struct {
		Active bool `json:"active"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := h.chargers.SetActive(c.Context(), c.Params("id"), req.Active); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"updated": true})
}

func (h *ChargerHandler) Statistics(c *fiber.Ctx) error {
	since := time.Now().Add(-24 * time.Hour)
	if v := c.Query("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "since must be RFC3339")
		}
		since = t
	}
	stats, err := h.chargers.Statistics(c.Context(), c.Params("id"), since)
	if err != nil {
		return err
	}
	return c.JSON(stats)
}
