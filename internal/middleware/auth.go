package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/keeper-escrow/backend/internal/http/dto"
)

const CtxIdentity = "identity"

// Authenticator resolves a bearer token to a wallet identity.
type Authenticator interface {
	Authenticate(token string) (string, error)
}

// AdminChecker reports whether identity may use admin routes.
type AdminChecker interface {
	IsAdmin(identity string) bool
}

func AuthMiddleware(authn Authenticator, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return unauthorized(c, "missing authorization header")
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenStr == authHeader || tokenStr == "" {
			return unauthorized(c, "invalid authorization format")
		}

		identity, err := authn.Authenticate(tokenStr)
		if err != nil {
			log.Debug("token rejected", zap.Error(err))
			return unauthorized(c, "invalid or expired token")
		}

		c.Locals(CtxIdentity, identity)
		return c.Next()
	}
}

// GetIdentity returns the authenticated wallet address, or "" on public routes.
func GetIdentity(c *fiber.Ctx) string {
	id, _ := c.Locals(CtxIdentity).(string)
	return id
}

func AdminMiddleware(admins AdminChecker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !admins.IsAdmin(GetIdentity(c)) {
			return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{
				Error:     "admin access required",
				RequestID: GetRequestID(c),
			})
		}
		return c.Next()
	}
}

func unauthorized(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
		Error:     msg,
		RequestID: GetRequestID(c),
	})
}
