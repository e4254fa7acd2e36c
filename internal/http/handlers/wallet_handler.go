package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/swap-market/backend/internal/http/dto"
	"github.com/swap-market/backend/internal/middleware"
	"github.com/swap-market/backend/internal/models"
	"github.com/swap-market/backend/internal/services"
	"go.uber.org/zap"
)

type WalletHandler struct {
	ledgerService *services.LedgerService
	log           *zap.Logger
}

func NewWalletHandler(ledgerService *services.LedgerService, log *zap.Logger) *WalletHandler {
	return &WalletHandler{ledgerService: ledgerService, log: log}
}

// GetLedger возвращает записи кошелька пользователя, новые первыми.
// GET /api/wallet/ledger?limit=&offset=
func (h *WalletHandler) GetLedger(c *fiber.Ctx) error {
	limit, offset := pageParams(c)
	entries, err := h.ledgerService.ListForUser(c.Context(), middleware.GetUserID(c), limit, offset)
	if err != nil {
		return respondError(c, h.log, err)
	}
	if entries == nil {
		entries = []models.LedgerEntry{}
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.ListResponse{Items: entries, Limit: limit, Offset: offset}})
}
