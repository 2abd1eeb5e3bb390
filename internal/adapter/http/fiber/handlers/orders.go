package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-csms/internal/domain"
	"github.com/seu-repo/ocpp-csms/internal/ports"
)

// OrderHandler serves the business-facing view of transactions.
type OrderHandler struct {
	orders       ports.OrderRepository
	transactions ports.TransactionRepository
	log          *zap.Logger
}

func NewOrderHandler(orders ports.OrderRepository, transactions ports.TransactionRepository, log *zap.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, transactions: transactions, log: log}
}

func (h *OrderHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/orders", h.List)
	router.Get("/orders/:id", h.Get)
	router.Get("/chargers/:id/transactions", h.ChargerTransactions)
}

func (h *OrderHandler) List(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 100)
	orders, err := h.orders.List(c.Context(), limit)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"orders": orders, "count": len(orders)})
}

func (h *OrderHandler) Get(c *fiber.Ctx) error {
	order, err := h.orders.FindByID(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	if order == nil {
		return fiber.NewError(fiber.StatusNotFound, "order not found")
	}
	return c.JSON(order)
}

func (h *OrderHandler) ChargerTransactions(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 100)
	txs, err := h.transactions.ListByCharger(c.Context(), c.Params("id"), limit)
	if err != nil {
		return err
	}
	if txs == nil {
		txs = []domain.Transaction{}
	}
	return c.JSON(fiber.Map{"transactions": txs, "count": len(txs)})
}
