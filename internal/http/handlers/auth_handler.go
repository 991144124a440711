package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/keeper-escrow/backend/internal/http/dto"
	"github.com/keeper-escrow/backend/internal/services"
)

type AuthHandler struct {
	authService *services.AuthService
	log         *zap.Logger
}

func NewAuthHandler(authService *services.AuthService, log *zap.Logger) *AuthHandler {
	return &AuthHandler{authService: authService, log: log}
}

// GeneratePayload returns a nonce the wallet signs in its ton_proof.
func (h *AuthHandler) GeneratePayload(c *fiber.Ctx) error {
	payload, err := h.authService.GeneratePayload(c.UserContext())
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.PayloadResponse{Payload: payload}})
}

func (h *AuthHandler) TonLogin(c *fiber.Ctx) error {
	var req dto.TonLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Address == "" || req.StateInit == "" || req.Proof.Payload == "" {
		return badRequest(c, "address, state_init and proof are required")
	}

	res, err := h.authService.Login(c.UserContext(), services.LoginRequest{
		Address:   req.Address,
		Network:   req.Network,
		PublicKey: req.PublicKey,
		StateInit: req.StateInit,
		Proof:     req.Proof,
	})
	if err != nil {
		h.log.Debug("ton login rejected", zap.Error(err))
		return writeError(c, h.log, err)
	}

	return c.JSON(dto.AuthResponse{Token: res.Token, Identity: res.Identity})
}
