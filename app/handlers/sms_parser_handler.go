package handlers

import (
	"strconv"

	"github.com/amirphl/momo-reconciler/app/dto"
	businessflow "github.com/amirphl/momo-reconciler/business_flow"
	"github.com/gofiber/fiber/v3"
)

// SmsParserHandlerInterface defines the contract for parser prompt management
type SmsParserHandlerInterface interface {
	TestParse(c fiber.Ctx) error
	ListPrompts(c fiber.Ctx) error
	ActivePrompt(c fiber.Ctx) error
	CreatePrompt(c fiber.Ctx) error
	ActivatePrompt(c fiber.Ctx) error
}

// SmsParserHandler manages model extractor prompts and dry-run parsing
type SmsParserHandler struct {
	base
	flow businessflow.SmsParserPromptFlow
}

// NewSmsParserHandler creates a new parser handler
func NewSmsParserHandler(flow businessflow.SmsParserPromptFlow) *SmsParserHandler {
	return &SmsParserHandler{base: newBase(), flow: flow}
}

// TestParse runs the parser chain on a sample without storing it
// @Summary Dry-run Parse
// @Tags Admin SMS Parser
// @Accept json
// @Produce json
// @Param request body dto.ParserTestRequest true "Sample SMS"
// @Success 200 {object} dto.APIResponse{data=dto.ParserTestResponse}
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/admin/sms/parser/test [post]
func (h *SmsParserHandler) TestParse(c fiber.Ctx) error {
	var req dto.ParserTestRequest
	if ok, err := h.bindJSON(c, &req); !ok {
		return err
	}
	// the model call may take a while
	ctx, cancel := requestContext(c, 2*defaultRequestTimeout)
	defer cancel()

	res, err := h.flow.TestParse(ctx, &req)
	if err != nil {
		return h.flowError(c, err, "parse sample")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Sample parsed", res)
}

// ListPrompts lists prompt versions, newest first
// @Summary List Parser Prompts
// @Tags Admin SMS Parser
// @Produce json
// @Param limit query int false "Page size (default 50, max 200)"
// @Success 200 {object} dto.APIResponse{data=dto.ListParserPromptsResponse}
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/admin/sms/parser/prompts [get]
func (h *SmsParserHandler) ListPrompts(c fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit"))
	ctx, cancel := requestContext(c, defaultRequestTimeout)
	defer cancel()

	res, err := h.flow.List(ctx, limit)
	if err != nil {
		return h.flowError(c, err, "list parser prompts")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Parser prompts retrieved successfully", res)
}

// ActivePrompt returns the prompt the model extractor uses
// @Summary Active Parser Prompt
// @Tags Admin SMS Parser
// @Produce json
// @Success 200 {object} dto.APIResponse{data=dto.ParserPromptItem}
// @Failure 404 {object} dto.APIResponse "No active prompt"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/admin/sms/parser/prompts/active [get]
func (h *SmsParserHandler) ActivePrompt(c fiber.Ctx) error {
	ctx, cancel := requestContext(c, defaultRequestTimeout)
	defer cancel()

	res, err := h.flow.Active(ctx)
	if err != nil {
		return h.flowError(c, err, "load active prompt")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Active parser prompt retrieved successfully", res)
}

// CreatePrompt stores a new prompt version
// @Summary Create Parser Prompt
// @Tags Admin SMS Parser
// @Accept json
// @Produce json
// @Param request body dto.CreateParserPromptRequest true "Prompt"
// @Success 201 {object} dto.APIResponse{data=dto.ParserPromptItem}
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/admin/sms/parser/prompts [post]
func (h *SmsParserHandler) CreatePrompt(c fiber.Ctx) error {
	var req dto.CreateParserPromptRequest
	if ok, err := h.bindJSON(c, &req); !ok {
		return err
	}
	ctx, cancel := requestContext(c, defaultRequestTimeout)
	defer cancel()

	res, err := h.flow.Create(ctx, &req, clientMetadata(c))
	if err != nil {
		return h.flowError(c, err, "create parser prompt")
	}
	return h.SuccessResponse(c, fiber.StatusCreated, "Parser prompt created", res)
}

// ActivatePrompt makes a prompt the active one
// @Summary Activate Parser Prompt
// @Tags Admin SMS Parser
// @Produce json
// @Param id path int true "Prompt ID"
// @Success 200 {object} dto.APIResponse{data=dto.ParserPromptItem}
// @Failure 400 {object} dto.APIResponse "Invalid id"
// @Failure 404 {object} dto.APIResponse "Prompt not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/admin/sms/parser/prompts/{id}/activate [post]
func (h *SmsParserHandler) ActivatePrompt(c fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "id must be a positive integer", "INVALID_PROMPT_ID", nil)
	}
	ctx, cancel := requestContext(c, defaultRequestTimeout)
	defer cancel()

	res, err := h.flow.Activate(ctx, uint(id), clientMetadata(c))
	if err != nil {
		return h.flowError(c, err, "activate parser prompt")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Parser prompt activated", res)
}
