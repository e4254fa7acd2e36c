package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/swap-market/backend/internal/http/dto"
	"github.com/swap-market/backend/internal/middleware"
	"github.com/swap-market/backend/internal/models"
	"github.com/swap-market/backend/internal/services"
	"go.uber.org/zap"
)

type SwapHandler struct {
	swapService *services.SwapService
	log         *zap.Logger
}

func NewSwapHandler(swapService *services.SwapService, log *zap.Logger) *SwapHandler {
	return &SwapHandler{swapService: swapService, log: log}
}

// CreateSwap: POST /api/swaps
func (h *SwapHandler) CreateSwap(c *fiber.Ctx) error {
	var req dto.CreateSwapRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	offering, err := uuid.Parse(req.OfferingProductID)
	if err != nil {
		return badRequest(c, "invalid offeringProductId")
	}
	requested, err := uuid.Parse(req.RequestedProductID)
	if err != nil {
		return badRequest(c, "invalid requestedProductId")
	}

	in := services.CreateSwapInput{
		OfferingProductID:  offering,
		RequestedProductID: requested,
		Message:            req.Message,
		ExtraPayment:       decimal.Zero,
	}
	if req.ExtraPayment != nil {
		in.ExtraPayment = *req.ExtraPayment
	}

	swap, err := h.swapService.Create(c.Context(), middleware.GetUserID(c), in)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: swap})
}

// MySent: GET /api/swaps/my-sent?status=&limit=&offset=
func (h *SwapHandler) MySent(c *fiber.Ctx) error {
	return h.list(c, h.swapService.ListSent)
}

// MyReceived: GET /api/swaps/my-received?status=&limit=&offset=
func (h *SwapHandler) MyReceived(c *fiber.Ctx) error {
	return h.list(c, h.swapService.ListReceived)
}

type swapLister func(ctx context.Context, user uuid.UUID, in services.ListSwapsInput) ([]models.Swap, error)

func (h *SwapHandler) list(c *fiber.Ctx, fetch swapLister) error {
	var in services.ListSwapsInput
	in.Limit, in.Offset = pageParams(c)

	if v := c.Query("status"); v != "" {
		status, err := models.ParseSwapStatus(v)
		if err != nil {
			return badRequest(c, "unknown status")
		}
		in.Status = &status
	}

	swaps, err := fetch(c.Context(), middleware.GetUserID(c), in)
	if err != nil {
		return respondError(c, h.log, err)
	}
	if swaps == nil {
		swaps = []models.Swap{}
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.ListResponse{Items: swaps, Limit: in.Limit, Offset: in.Offset}})
}

// GetSwap: GET /api/swaps/:id, только участникам
func (h *SwapHandler) GetSwap(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid swap id")
	}

	swap, err := h.swapService.Get(c.Context(), id, middleware.GetUserID(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: swap})
}

// AcceptSwap: POST /api/swaps/:id/accept
func (h *SwapHandler) AcceptSwap(c *fiber.Ctx) error {
	return h.respond(c, h.swapService.Accept)
}

// RejectSwap: POST /api/swaps/:id/reject
func (h *SwapHandler) RejectSwap(c *fiber.Ctx) error {
	return h.respond(c, h.swapService.Reject)
}

func (h *SwapHandler) respond(c *fiber.Ctx, apply func(ctx context.Context, swapID, actor uuid.UUID) (*models.Swap, error)) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid swap id")
	}

	swap, err := apply(c.Context(), id, middleware.GetUserID(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: swap})
}

// GetSwapEvents: GET /api/swaps/:id/events
func (h *SwapHandler) GetSwapEvents(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid swap id")
	}

	logs, err := h.swapService.Events(c.Context(), id, middleware.GetUserID(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	if logs == nil {
		logs = []models.AuditLog{}
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: logs})
}
