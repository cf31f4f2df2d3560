package businessflow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/amirphl/momo-reconciler/app/dto"
	"github.com/amirphl/momo-reconciler/app/services"
	"github.com/amirphl/momo-reconciler/models"
	"github.com/amirphl/momo-reconciler/repository"
	"github.com/amirphl/momo-reconciler/utils"
)

// Dry-run routing outcomes
const (
	RoutingNoMatch       = "no_match"
	RoutingLowConfidence = "low_confidence"
	RoutingMatchable     = "matchable"
)

// SmsParserPromptFlow manages the model extractor prompts
type SmsParserPromptFlow interface {
	List(ctx context.Context, limit int) (*dto.ListParserPromptsResponse, error)
	Active(ctx context.Context) (*dto.ParserPromptItem, error)
	Create(ctx context.Context, req *dto.CreateParserPromptRequest, metadata *ClientMetadata) (*dto.ParserPromptItem, error)
	Activate(ctx context.Context, id uint, metadata *ClientMetadata) (*dto.ParserPromptItem, error)
	TestParse(ctx context.Context, req *dto.ParserTestRequest) (*dto.ParserTestResponse, error)
}

// SmsParserPromptFlowImpl implements SmsParserPromptFlow
type SmsParserPromptFlowImpl struct {
	tx         repository.Transactor
	promptRepo repository.SmsParserPromptRepository
	parser     services.SMSParser
	audit      AuditRecorder
	threshold  float64
}

func NewSmsParserPromptFlow(
	tx repository.Transactor,
	promptRepo repository.SmsParserPromptRepository,
	parser services.SMSParser,
	audit AuditRecorder,
	threshold float64,
) SmsParserPromptFlow {
	return &SmsParserPromptFlowImpl{
		tx:         tx,
		promptRepo: promptRepo,
		parser:     parser,
		audit:      audit,
		threshold:  threshold,
	}
}

func (f *SmsParserPromptFlowImpl) List(ctx context.Context, limit int) (*dto.ListParserPromptsResponse, error) {
	prompts, err := f.promptRepo.List(ctx, utils.ClampLimit(limit))
	if err != nil {
		return nil, NewBusinessError("LIST_PROMPTS_FAILED", "Failed to list parser prompts", err)
	}
	items := make([]dto.ParserPromptItem, 0, len(prompts))
	for _, p := range prompts {
		items = append(items, ToParserPromptItem(p))
	}
	return &dto.ListParserPromptsResponse{Items: items}, nil
}

func (f *SmsParserPromptFlowImpl) Active(ctx context.Context) (*dto.ParserPromptItem, error) {
	prompt, err := f.promptRepo.Active(ctx)
	if err != nil {
		return nil, NewBusinessError("PROMPT_LOOKUP_FAILED", "Failed to load active prompt", err)
	}
	if prompt == nil {
		return nil, ErrPromptNotFound
	}
	item := ToParserPromptItem(prompt)
	return &item, nil
}

// Create stores a new prompt version and optionally activates it
func (f *SmsParserPromptFlowImpl) Create(ctx context.Context, req *dto.CreateParserPromptRequest, metadata *ClientMetadata) (*dto.ParserPromptItem, error) {
	body := strings.TrimSpace(req.Body)
	if body == "" {
		return nil, ErrPromptBodyRequired
	}

	var prompt *models.SmsParserPrompt
	err := f.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		latest, err := f.promptRepo.LatestVersion(txCtx)
		if err != nil {
			return NewBusinessError("PROMPT_VERSION_FAILED", "Failed to read prompt version", err)
		}

		prompt = &models.SmsParserPrompt{
			Label:     strings.TrimSpace(req.Label),
			Body:      body,
			Version:   latest + 1,
			CreatedBy: actorID(metadata),
		}
		if err := f.promptRepo.Save(txCtx, prompt); err != nil {
			return NewBusinessError("PROMPT_SAVE_FAILED", "Failed to save parser prompt", err)
		}
		if _, err := f.audit.Record(txCtx, AuditEntry{
			Action:      models.AuditActionParserPromptCreate,
			EntityType:  prompt.TableName(),
			EntityID:    strconv.FormatUint(uint64(prompt.ID), 10),
			After:       prompt,
			Description: fmt.Sprintf("parser prompt v%d created", prompt.Version),
			Metadata:    metadata,
		}); err != nil {
			return err
		}

		if req.Activate {
			return f.activateInTx(txCtx, prompt, metadata)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	item := ToParserPromptItem(prompt)
	return &item, nil
}

// Activate makes id the only active prompt
func (f *SmsParserPromptFlowImpl) Activate(ctx context.Context, id uint, metadata *ClientMetadata) (*dto.ParserPromptItem, error) {
	var prompt *models.SmsParserPrompt
	err := f.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		prompt, err = f.promptRepo.ByID(txCtx, id)
		if err != nil {
			return NewBusinessError("PROMPT_LOOKUP_FAILED", "Failed to load parser prompt", err)
		}
		if prompt == nil {
			return ErrPromptNotFound
		}
		return f.activateInTx(txCtx, prompt, metadata)
	})
	if err != nil {
		return nil, err
	}

	item := ToParserPromptItem(prompt)
	return &item, nil
}

func (f *SmsParserPromptFlowImpl) activateInTx(ctx context.Context, prompt *models.SmsParserPrompt, metadata *ClientMetadata) error {
	previous, err := f.promptRepo.Active(ctx)
	if err != nil {
		return NewBusinessError("PROMPT_LOOKUP_FAILED", "Failed to load active prompt", err)
	}
	if err := f.promptRepo.Activate(ctx, prompt.ID); err != nil {
		return NewBusinessError("PROMPT_ACTIVATE_FAILED", "Failed to activate parser prompt", err)
	}
	prompt.IsActive = true

	_, err = f.audit.Record(ctx, AuditEntry{
		Action:      models.AuditActionParserPromptActivate,
		EntityType:  prompt.TableName(),
		EntityID:    strconv.FormatUint(uint64(prompt.ID), 10),
		Before:      previous,
		After:       prompt,
		Description: fmt.Sprintf("parser prompt v%d activated", prompt.Version),
		Metadata:    metadata,
	})
	return err
}

// TestParse runs the parser chain without storing anything
func (f *SmsParserPromptFlowImpl) TestParse(ctx context.Context, req *dto.ParserTestRequest) (*dto.ParserTestResponse, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrSMSTextRequired
	}

	from := req.From
	if from != "" {
		normalized, ok := utils.NormalizePhone(from)
		if !ok {
			return nil, ErrInvalidPhoneNumber
		}
		from = normalized
	}

	result, err := f.parser.Parse(ctx, services.ParseInput{Text: req.Text, From: from, ReceivedAt: utils.UTCNow()})
	if err != nil {
		if errors.Is(err, services.ErrNoPaymentFound) {
			return &dto.ParserTestResponse{Matched: false, Threshold: f.threshold, Routing: RoutingNoMatch}, nil
		}
		return nil, NewBusinessError("PARSER_FAILED", "Parser failed", err)
	}

	out := &dto.ParserTestResult{
		Amount:        result.Amount,
		Currency:      result.Currency,
		Ref:           result.Ref,
		PayerMask:     result.PayerMask,
		Confidence:    result.Confidence,
		ParserVersion: result.ParserVersion,
		Strategy:      string(result.Strategy),
		RawFields:     result.RawFields,
	}
	if result.Timestamp != nil {
		out.Timestamp = utils.ToPtr(utils.ToISO(*result.Timestamp))
	}

	routing := RoutingMatchable
	if result.Confidence < f.threshold {
		routing = RoutingLowConfidence
	}
	return &dto.ParserTestResponse{Matched: true, Result: out, Threshold: f.threshold, Routing: routing}, nil
}
