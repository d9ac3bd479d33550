package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/tsiken/backend/internal/apperr"
	"github.com/tsiken/backend/internal/auth"
	"github.com/tsiken/backend/internal/config"
	"github.com/tsiken/backend/internal/http/dto"
	"github.com/tsiken/backend/internal/models"
	"github.com/tsiken/backend/internal/rbac"
	"github.com/tsiken/backend/internal/session"
	"go.uber.org/zap"
)

const (
	CtxUserID   = "user_id"
	CtxIdentity = "identity"

	HeaderDeviceID = "X-Device-ID"
)

func unauthorized(c *fiber.Ctx, msg string) error {
	reqID, _ := c.Locals(CtxRequestID).(string)
	return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: msg, RequestID: reqID})
}

func forbidden(c *fiber.Ctx, msg string) error {
	reqID, _ := c.Locals(CtxRequestID).(string)
	return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Error: msg, RequestID: reqID})
}

// AccountChecker reports the current role and lock state of a user.
type AccountChecker interface {
	CurrentAccount(ctx context.Context, id uuid.UUID) (*models.AccountStatus, error)
}

// AuthMiddleware parses the bearer token, then re-reads the account so a
// role change, lock or deletion takes effect before the token expires. The
// stored role replaces the one in the token.
func AuthMiddleware(cfg *config.Config, accounts AccountChecker, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return unauthorized(c, "missing authorization header")
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenStr == authHeader {
			return unauthorized(c, "invalid authorization format")
		}

		claims, err := auth.ParseJWT(cfg.JWTSecret, tokenStr)
		if err != nil {
			log.Debug("jwt parse error", zap.Error(err))
			return unauthorized(c, "invalid or expired token")
		}

		st, err := accounts.CurrentAccount(c.Context(), claims.UserID)
		if err != nil {
			if apperr.KindOf(err) == apperr.KindUnauthorized {
				return unauthorized(c, apperr.Public(err))
			}
			log.Error("account check failed", zap.String("user_id", claims.UserID.String()), zap.Error(err))
			reqID, _ := c.Locals(CtxRequestID).(string)
			return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{Error: "account check unavailable", RequestID: reqID})
		}
		if st.Locked {
			return forbidden(c, "account is locked, contact an administrator")
		}

		c.Locals(CtxUserID, claims.UserID)
		c.Locals(CtxIdentity, &models.Identity{
			UserID: claims.UserID.String(),
			Email:  claims.Email,
			Role:   st.Role,
		})

		return c.Next()
	}
}

func GetUserID(c *fiber.Ctx) uuid.UUID {
	id, _ := c.Locals(CtxUserID).(uuid.UUID)
	return id
}

func GetIdentity(c *fiber.Ctx) *models.Identity {
	id, _ := c.Locals(CtxIdentity).(*models.Identity)
	return id
}

func GetDeviceID(c *fiber.Ctx) string {
	return strings.TrimSpace(c.Get(HeaderDeviceID))
}

// RequirePermission checks the caller's role against rbac. Permissions that
// need an admin session also require a valid session for the calling device.
func RequirePermission(sessions *session.Store, permission string, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity := GetIdentity(c)
		if identity == nil {
			return unauthorized(c, "not signed in")
		}
		if !rbac.HasPermission(identity.Role, permission) {
			return forbidden(c, "insufficient permissions")
		}
		if !rbac.RequiresAdminSession(permission) {
			return c.Next()
		}

		v, err := sessions.Validate(c.Context(), GetDeviceID(c), identity)
		if err != nil {
			log.Error("admin session check failed", zap.Error(err))
			return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{Error: "session store unavailable"})
		}
		if !v.Valid {
			log.Info("admin session rejected",
				zap.String("user_id", identity.UserID),
				zap.String("reason", v.Reason),
			)
			return forbidden(c, "admin session required: "+v.Reason)
		}
		return c.Next()
	}
}
