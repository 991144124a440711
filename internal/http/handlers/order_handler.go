package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/keeper-escrow/backend/internal/http/dto"
	"github.com/keeper-escrow/backend/internal/middleware"
	"github.com/keeper-escrow/backend/internal/models"
	"github.com/keeper-escrow/backend/internal/services"
	"github.com/keeper-escrow/backend/internal/ton"
)

type OrderHandler struct {
	orderService *services.OrderService
	log          *zap.Logger
}

func NewOrderHandler(orderService *services.OrderService, log *zap.Logger) *OrderHandler {
	return &OrderHandler{orderService: orderService, log: log}
}

func (h *OrderHandler) CreateOrder(c *fiber.Ctx) error {
	var req dto.CreateOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	orderID, err := strconv.ParseUint(req.OrderID, 10, 64)
	if err != nil {
		return badRequest(c, "order_id must be an unsigned 64-bit decimal")
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return writeError(c, h.log, err)
	}
	keeper, err := ton.NormalizeAddress(req.Keeper)
	if err != nil {
		return badRequest(c, "keeper must be a TON address")
	}
	depositor := ""
	if req.Depositor != "" {
		if depositor, err = ton.NormalizeAddress(req.Depositor); err != nil {
			return badRequest(c, "depositor must be a TON address")
		}
	}

	order, err := h.orderService.CreateOrder(c.UserContext(), middleware.GetIdentity(c), services.CreateOrderInput{
		OrderID:        orderID,
		Amount:         amount,
		Asset:          req.Asset,
		Keeper:         keeper,
		Depositor:      depositor,
		TimeoutSeconds: req.TimeoutSeconds,
	})
	if err != nil {
		return writeError(c, h.log, err)
	}

	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: order})
}

func (h *OrderHandler) GetOrder(c *fiber.Ctx) error {
	key, err := orderKey(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	order, err := h.orderService.GetOrderFor(c.UserContext(), key, middleware.GetIdentity(c))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: order})
}

// ListOrders returns the caller's orders. role narrows to depositor or keeper side.
func (h *OrderHandler) ListOrders(c *fiber.Ctx) error {
	identity := middleware.GetIdentity(c)
	filter := services.OrderFilter{
		Limit:  c.QueryInt("limit", 20),
		Offset: c.QueryInt("offset", 0),
	}
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	switch c.Query("role") {
	case "":
		filter.Party = &identity
	case "depositor":
		filter.Depositor = &identity
	case "keeper":
		filter.Keeper = &identity
	default:
		return badRequest(c, "role must be depositor or keeper")
	}

	if v := c.Query("status"); v != "" {
		status, ok := models.ParseOrderStatus(v)
		if !ok {
			return badRequest(c, "unknown status")
		}
		filter.Status = &status
	}
	if v := c.Query("asset"); v != "" {
		filter.Asset = &v
	}

	orders, err := h.orderService.ListOrders(c.UserContext(), filter)
	if err != nil {
		return writeError(c, h.log, err)
	}
	if orders == nil {
		orders = []models.DepositOrder{}
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.ListResponse{
		Items:  orders,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}})
}

func (h *OrderHandler) MarkReady(c *fiber.Ctx) error {
	key, err := orderKey(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	order, err := h.orderService.MarkReady(c.UserContext(), key, middleware.GetIdentity(c))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: order})
}

func (h *OrderHandler) Execute(c *fiber.Ctx) error {
	key, err := orderKey(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	var req dto.ExecuteOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return writeError(c, h.log, err)
	}

	order, err := h.orderService.PartiallyExecute(c.UserContext(), key, middleware.GetIdentity(c), amount)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: order})
}

func (h *OrderHandler) Cancel(c *fiber.Ctx) error {
	key, err := orderKey(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	order, err := h.orderService.CancelOrder(c.UserContext(), key, middleware.GetIdentity(c))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: order})
}

func (h *OrderHandler) GetOrderEvents(c *fiber.Ctx) error {
	key, err := orderKey(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	history, err := h.orderService.GetOrderEvents(c.UserContext(), key, middleware.GetIdentity(c))
	if err != nil {
		return writeError(c, h.log, err)
	}
	if history == nil {
		history = []models.AuditLog{}
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: history})
}

func orderKey(c *fiber.Ctx) (models.OrderKey, error) {
	asset := c.Params("asset")
	if asset == "" {
		return models.OrderKey{}, fiber.NewError(fiber.StatusBadRequest, "asset is required")
	}
	id, err := strconv.ParseUint(c.Params("orderId"), 10, 64)
	if err != nil {
		return models.OrderKey{}, fiber.NewError(fiber.StatusBadRequest, "invalid order id")
	}
	return models.OrderKey{OrderID: id, Asset: asset}, nil
}

// parseAmount reads a u64 decimal string. Empty, negative or out-of-range input is an invalid amount.
func parseAmount(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, services.ErrInvalidAmount
	}
	return v, nil
}
