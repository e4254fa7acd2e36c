package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/swap-market/backend/internal/http/dto"
	"github.com/swap-market/backend/internal/middleware"
	"github.com/swap-market/backend/internal/payments"
	"github.com/swap-market/backend/internal/services"
	"go.uber.org/zap"
)

type WebhookHandler struct {
	reconciler *services.EscrowReconciler
	log        *zap.Logger
}

func NewWebhookHandler(reconciler *services.EscrowReconciler, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{reconciler: reconciler, log: log}
}

// PaymentCallback: POST /api/payment/webhook/:gateway
//
// Подпись считается по сырому телу, поэтому body не парсится до проверки.
// Шлюз получает 2xx только когда повторная доставка ничего не изменит.
func (h *WebhookHandler) PaymentCallback(c *fiber.Ctx) error {
	gateway := c.Params("gateway")
	if !h.reconciler.Supports(gateway) {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
			Error:     "unknown payment gateway",
			Code:      "not_found",
			RequestID: middleware.GetRequestID(c),
		})
	}

	// fasthttp переиспользует буфер после ответа
	body := append([]byte(nil), c.Body()...)
	signature := c.Get(payments.SignatureHeader(gateway))

	res, err := h.reconciler.HandleCallback(c.Context(), gateway, body, signature)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: res})
}
