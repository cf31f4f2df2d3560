package handlers

import (
	"strconv"

	"github.com/amirphl/momo-reconciler/app/dto"
	businessflow "github.com/amirphl/momo-reconciler/business_flow"
	"github.com/gofiber/fiber/v3"
)

// SmsAdminHandlerInterface defines the contract for the operator console endpoints
type SmsAdminHandlerInterface interface {
	ListInbound(c fiber.Ctx) error
	ListManual(c fiber.Ctx) error
	ListManualPayments(c fiber.Ctx) error
	Candidates(c fiber.Ctx) error
	ManualAttach(c fiber.Ctx) error
	Attach(c fiber.Ctx) error
	Retry(c fiber.Ctx) error
	Dismiss(c fiber.Ctx) error
	QueueOverview(c fiber.Ctx) error
}

// SmsAdminHandler serves the manual review console
type SmsAdminHandler struct {
	base
	review     businessflow.ManualReviewFlow
	settlement businessflow.SettlementFlow
}

// NewSmsAdminHandler creates a new admin SMS handler
func NewSmsAdminHandler(review businessflow.ManualReviewFlow, settlement businessflow.SettlementFlow) *SmsAdminHandler {
	return &SmsAdminHandler{base: newBase(), review: review, settlement: settlement}
}

func (h *SmsAdminHandler) listRequest(c fiber.Ctx) (*dto.ListSmsRequest, error) {
	req := &dto.ListSmsRequest{}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return nil, h.ErrorResponse(c, fiber.StatusBadRequest, "limit must be a non-negative integer", "INVALID_LIMIT", nil)
		}
		req.Limit = limit
	}
	return req, nil
}

func (h *SmsAdminHandler) smsIDParam(c fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("smsId"), 10, 64)
	if err != nil || id == 0 {
		return 0, h.ErrorResponse(c, fiber.StatusBadRequest, "smsId must be a positive integer", "INVALID_SMS_ID", nil)
	}
	return uint(id), nil
}

// ListInbound lists recent inbound SMS
// @Summary List Inbound SMS
// @Tags Admin SMS
// @Produce json
// @Param limit query int false "Page size (default 50, max 200)"
// @Success 200 {object} dto.APIResponse{data=dto.ListSmsResponse}
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/admin/sms/inbound [get]
func (h *SmsAdminHandler) ListInbound(c fiber.Ctx) error {
	req, errResp := h.listRequest(c)
	if req == nil {
		return errResp
	}
	ctx, cancel := requestContext(c, defaultRequestTimeout)
	defer cancel()

	res, err := h.review.ListInbound(ctx, req)
	if err != nil {
		return h.flowError(c, err, "list inbound sms")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Inbound SMS retrieved successfully", res)
}

// ListManual lists SMS waiting for an operator
// @Summary List SMS In Manual Review
// @Description SMS in manual_review or error, newest first
// @Tags Admin SMS
// @Produce json
// @Param limit query int false "Page size (default 50, max 200)"
// @Success 200 {object} dto.APIResponse{data=dto.ListSmsResponse}
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/admin/sms/manual [get]
func (h *SmsAdminHandler) ListManual(c fiber.Ctx) error {
	req, errResp := h.listRequest(c)
	if req == nil {
		return errResp
	}
	ctx, cancel := requestContext(c, defaultRequestTimeout)
	defer cancel()

	res, err := h.review.ListManual(ctx, req)
	if err != nil {
		return h.flowError(c, err, "list manual sms")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Manual review SMS retrieved successfully", res)
}

// ListManualPayments lists payments awaiting review with their entity and parse
// @Summary List Payments In Manual Review
// @Tags Admin SMS
// @Produce json
// @Param limit query int false "Page size (default 50, max 200)"
// @Success 200 {object} dto.APIResponse{data=dto.ListManualPaymentsResponse}
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/admin/sms/manual/payments [get]
func (h *SmsAdminHandler) ListManualPayments(c fiber.Ctx) error {
	req, errResp := h.listRequest(c)
	if req == nil {
		return errResp
	}
	ctx, cancel := requestContext(c, defaultRequestTimeout)
	defer cancel()

	res, err := h.review.ListManualPayments(ctx, req)
	if err != nil {
		return h.flowError(c, err, "list manual payments")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Manual review payments retrieved successfully", res)
}

// Candidates lists the entities an SMS could settle
// @Summary SMS Candidates
// @Description Advisory matches for a parsed SMS. lookback is in minutes (1..10080); 0 or absent uses the configured window.
// @Tags Admin SMS
// @Produce json
// @Param smsId path int true "SMS ID"
// @Param lookback query int false "Lookback window in minutes"
// @Success 200 {object} dto.APIResponse{data=dto.SmsCandidatesResponse}
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 404 {object} dto.APIResponse "SMS not found or not parsed"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/admin/sms/manual/{smsId}/candidates [get]
func (h *SmsAdminHandler) Candidates(c fiber.Ctx) error {
	smsID, errResp := h.smsIDParam(c)
	if smsID == 0 {
		return errResp
	}
	lookback := 0
	if raw := c.Query("lookback"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "lookback must be an integer number of minutes", "INVALID_LOOKBACK", nil)
		}
		lookback = v
	}

	ctx, cancel := requestContext(c, defaultRequestTimeout)
	defer cancel()

	res, err := h.review.Candidates(ctx, smsID, lookback)
	if err != nil {
		return h.flowError(c, err, "load candidates")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Candidates retrieved successfully", res)
}

// ManualAttach settles an SMS against a payment in manual review
// @Summary Attach SMS To Payment
// @Tags Admin SMS
// @Accept json
// @Produce json
// @Param request body dto.ManualAttachRequest true "SMS and payment"
// @Success 200 {object} dto.APIResponse{data=dto.ManualAttachResponse}
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 404 {object} dto.APIResponse "SMS or payment not found"
// @Failure 409 {object} dto.APIResponse "Already matched"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/admin/sms/manual/attach [post]
func (h *SmsAdminHandler) ManualAttach(c fiber.Ctx) error {
	var req dto.ManualAttachRequest
	if ok, err := h.bindJSON(c, &req); !ok {
		return err
	}
	ctx, cancel := requestContext(c, defaultRequestTimeout)
	defer cancel()

	res, err := h.settlement.ManualAttach(ctx, &req, clientMetadata(c))
	if err != nil {
		return h.flowError(c, err, "attach sms to payment")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Payment confirmed", res)
}

// Attach settles an SMS against an entity
// @Summary Attach SMS To Entity
// @Description Idempotent: attaching the same SMS to the same entity again reports already_settled and changes nothing.
// @Tags Admin SMS
// @Accept json
// @Produce json
// @Param request body dto.AttachSmsRequest true "SMS and entity"
// @Success 200 {object} dto.APIResponse{data=dto.AttachSmsResponse}
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 404 {object} dto.APIResponse "SMS or entity not found"
// @Failure 409 {object} dto.APIResponse "SMS linked to another entity"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/admin/sms/attach [post]
func (h *SmsAdminHandler) Attach(c fiber.Ctx) error {
	var req dto.AttachSmsRequest
	if ok, err := h.bindJSON(c, &req); !ok {
		return err
	}
	ctx, cancel := requestContext(c, defaultRequestTimeout)
	defer cancel()

	res, err := h.settlement.AttachSms(ctx, &req, clientMetadata(c))
	if err != nil {
		return h.flowError(c, err, "attach sms")
	}
	message := "SMS attached"
	if res.AlreadySettled {
		message = "SMS already attached to this entity"
	}
	return h.SuccessResponse(c, fiber.StatusOK, message, res)
}

// Retry re-queues an SMS for parsing
// @Summary Retry SMS
// @Tags Admin SMS
// @Produce json
// @Param smsId path int true "SMS ID"
// @Success 200 {object} dto.APIResponse{data=dto.RetrySmsResponse}
// @Failure 400 {object} dto.APIResponse "SMS already queued"
// @Failure 404 {object} dto.APIResponse "SMS not found"
// @Failure 409 {object} dto.APIResponse "SMS already settled"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/admin/sms/manual/{smsId}/retry [post]
func (h *SmsAdminHandler) Retry(c fiber.Ctx) error {
	smsID, errResp := h.smsIDParam(c)
	if smsID == 0 {
		return errResp
	}
	ctx, cancel := requestContext(c, defaultRequestTimeout)
	defer cancel()

	res, err := h.review.Retry(ctx, smsID, clientMetadata(c))
	if err != nil {
		return h.flowError(c, err, "retry sms")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "SMS queued for parsing", res)
}

// Dismiss closes an SMS without settling anything
// @Summary Dismiss SMS
// @Tags Admin SMS
// @Accept json
// @Produce json
// @Param smsId path int true "SMS ID"
// @Param request body dto.DismissSmsRequest true "Resolution"
// @Success 200 {object} dto.APIResponse{data=dto.DismissSmsResponse}
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 404 {object} dto.APIResponse "SMS not found"
// @Failure 409 {object} dto.APIResponse "SMS already settled"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/admin/sms/manual/{smsId}/dismiss [post]
func (h *SmsAdminHandler) Dismiss(c fiber.Ctx) error {
	smsID, errResp := h.smsIDParam(c)
	if smsID == 0 {
		return errResp
	}
	var req dto.DismissSmsRequest
	if ok, err := h.bindJSON(c, &req); !ok {
		return err
	}
	ctx, cancel := requestContext(c, defaultRequestTimeout)
	defer cancel()

	res, err := h.review.Dismiss(ctx, smsID, &req, clientMetadata(c))
	if err != nil {
		return h.flowError(c, err, "dismiss sms")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "SMS dismissed", res)
}

// QueueOverview reports the ingestion queue depth
// @Summary Queue Overview
// @Tags Admin SMS
// @Produce json
// @Success 200 {object} dto.APIResponse{data=dto.QueueOverviewResponse}
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/admin/sms/queue [get]
func (h *SmsAdminHandler) QueueOverview(c fiber.Ctx) error {
	ctx, cancel := requestContext(c, defaultRequestTimeout)
	defer cancel()

	res, err := h.review.QueueOverview(ctx)
	if err != nil {
		return h.flowError(c, err, "read queue overview")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Queue overview retrieved successfully", res)
}
