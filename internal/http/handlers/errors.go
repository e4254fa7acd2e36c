package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/swap-market/backend/internal/apperrors"
	"github.com/swap-market/backend/internal/http/dto"
	"github.com/swap-market/backend/internal/middleware"
	"go.uber.org/zap"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// respondError renders err with the status of its kind. Store failures are
// logged and hidden behind a generic message.
func respondError(c *fiber.Ctx, log *zap.Logger, err error) error {
	status := apperrors.HTTPStatus(err)
	if status >= fiber.StatusInternalServerError {
		log.Error("request failed",
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
	}
	return c.Status(status).JSON(dto.ErrorResponse{
		Error:     apperrors.PublicMessage(err),
		Code:      string(apperrors.KindOf(err)),
		RequestID: middleware.GetRequestID(c),
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
		Error:     msg,
		Code:      string(apperrors.KindValidation),
		RequestID: middleware.GetRequestID(c),
	})
}

// pageParams reads limit/offset, clamping limit to [1, 100].
func pageParams(c *fiber.Ctx) (limit, offset int) {
	limit = defaultPageLimit
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
