package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/keeper-escrow/backend/internal/http/dto"
	"github.com/keeper-escrow/backend/internal/middleware"
	"github.com/keeper-escrow/backend/internal/services"
)

type LedgerHandler struct {
	ledgerService *services.LedgerService
	log           *zap.Logger
}

func NewLedgerHandler(ledgerService *services.LedgerService, log *zap.Logger) *LedgerHandler {
	return &LedgerHandler{ledgerService: ledgerService, log: log}
}

func (h *LedgerHandler) GetBalance(c *fiber.Ctx) error {
	account := c.Params("account")
	asset := c.Query("asset")
	if account == "" || asset == "" {
		return badRequest(c, "account and asset are required")
	}

	balance, err := h.ledgerService.Balance(c.UserContext(), account, asset)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: balance})
}

// Credit funds an account on the service ledger. Admin only.
func (h *LedgerHandler) Credit(c *fiber.Ctx) error {
	var req dto.CreditRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return writeError(c, h.log, err)
	}

	balance, err := h.ledgerService.Credit(c.UserContext(), middleware.GetIdentity(c), req.Account, req.Asset, amount)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: balance})
}
