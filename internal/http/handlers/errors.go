package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/keeper-escrow/backend/internal/http/dto"
	"github.com/keeper-escrow/backend/internal/ledger"
	"github.com/keeper-escrow/backend/internal/middleware"
	"github.com/keeper-escrow/backend/internal/services"
)

type errorKind struct {
	err    error
	status int
	code   string
}

var errorKinds = []errorKind{
	{services.ErrOrderNotFound, fiber.StatusNotFound, "order_not_found"},
	{services.ErrUnauthorized, fiber.StatusForbidden, "unauthorized"},
	{services.ErrAuthenticationFailure, fiber.StatusUnauthorized, "authentication_failure"},
	{services.ErrInvalidOrderStatus, fiber.StatusConflict, "invalid_order_status"},
	{services.ErrOrderTimeout, fiber.StatusConflict, "order_timeout"},
	{services.ErrDuplicateOrder, fiber.StatusConflict, "duplicate_order"},
	{services.ErrInvalidAmount, fiber.StatusBadRequest, "invalid_amount"},
	{services.ErrInvalidTimeout, fiber.StatusBadRequest, "invalid_timeout"},
	{services.ErrInvalidRequest, fiber.StatusBadRequest, "invalid_request"},
	{ledger.ErrInsufficientFunds, fiber.StatusUnprocessableEntity, "insufficient_funds"},
	{ledger.ErrBalanceOverflow, fiber.StatusUnprocessableEntity, "balance_overflow"},
	{ledger.ErrUnauthorizedDebit, fiber.StatusForbidden, "unauthorized_debit"},
	{ledger.ErrZeroAmount, fiber.StatusBadRequest, "invalid_amount"},
	{ledger.ErrSameAccount, fiber.StatusBadRequest, "same_account"},
	{ledger.ErrMissingAccountInfo, fiber.StatusBadRequest, "invalid_request"},
}

// errorStatus maps a service or ledger error to an HTTP status and a stable code.
func errorStatus(err error) (int, string) {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.status, k.code
		}
	}
	return fiber.StatusInternalServerError, "internal"
}

func writeError(c *fiber.Ctx, log *zap.Logger, err error) error {
	status, code := errorStatus(err)
	msg := err.Error()
	if status == fiber.StatusInternalServerError {
		log.Error("request failed",
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
		msg = "internal server error"
	}
	return c.Status(status).JSON(dto.ErrorResponse{
		Error:     msg,
		Code:      code,
		RequestID: middleware.GetRequestID(c),
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
		Error:     msg,
		Code:      "invalid_request",
		RequestID: middleware.GetRequestID(c),
	})
}
