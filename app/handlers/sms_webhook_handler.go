package handlers

import (
	"log"

	"github.com/amirphl/momo-reconciler/app/dto"
	businessflow "github.com/amirphl/momo-reconciler/business_flow"
	"github.com/amirphl/momo-reconciler/utils"
	"github.com/gofiber/fiber/v3"
)

// SmsWebhookHandlerInterface defines the contract for the gateway webhook
type SmsWebhookHandlerInterface interface {
	Receive(c fiber.Ctx) error
}

// SmsWebhookHandler accepts SMS forwarded by the gateway
type SmsWebhookHandler struct {
	base
	flow businessflow.SmsIngestFlow
}

// NewSmsWebhookHandler creates a new webhook handler
func NewSmsWebhookHandler(flow businessflow.SmsIngestFlow) *SmsWebhookHandler {
	return &SmsWebhookHandler{base: newBase(), flow: flow}
}

// Receive stores an inbound SMS and queues it for parsing
// @Summary Receive SMS
// @Description Store an SMS forwarded by the gateway and queue it for parsing. The shared token is sent in X-Webhook-Token or the token query parameter.
// @Tags SMS Webhook
// @Accept json
// @Produce json
// @Param X-Webhook-Token header string false "Webhook token"
// @Param token query string false "Webhook token (alternative to the header)"
// @Param request body dto.SmsWebhookRequest true "SMS payload"
// @Success 202 {object} dto.APIResponse{data=dto.SmsWebhookResponse}
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 401 {object} dto.APIResponse "Invalid token"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/sms/webhook [post]
func (h *SmsWebhookHandler) Receive(c fiber.Ctx) error {
	token := c.Get("X-Webhook-Token")
	if token == "" {
		token = c.Query("token")
	}
	if err := h.flow.Authorize(token); err != nil {
		log.Printf("handlers: webhook token rejected from %s", utils.MaskIP(c.IP()))
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid webhook token", "INVALID_WEBHOOK_TOKEN", nil)
	}

	var req dto.SmsWebhookRequest
	if ok, err := h.bindJSON(c, &req); !ok {
		return err
	}

	ctx, cancel := requestContext(c, defaultRequestTimeout)
	defer cancel()

	res, err := h.flow.Receive(ctx, &req, token, clientMetadata(c))
	if err != nil {
		return h.flowError(c, err, "store sms")
	}
	return h.SuccessResponse(c, fiber.StatusAccepted, "SMS accepted", res)
}
