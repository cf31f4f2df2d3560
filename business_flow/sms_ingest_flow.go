package businessflow

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/amirphl/momo-reconciler/app/dto"
	"github.com/amirphl/momo-reconciler/app/jobqueue"
	"github.com/amirphl/momo-reconciler/app/services"
	"github.com/amirphl/momo-reconciler/config"
	"github.com/amirphl/momo-reconciler/models"
	"github.com/amirphl/momo-reconciler/repository"
	"github.com/amirphl/momo-reconciler/utils"
)

// maxParseFailures is the number of no-match parses after which an SMS goes to error
const maxParseFailures = 2

// unknownSender is stored when the gateway omits the sender
const unknownSender = "unknown"

// errStaleSms means another worker or an operator moved the SMS first
var errStaleSms = errors.New("sms is no longer awaiting parse")

// ParseQueue is the part of the ingestion queue the flows use
type ParseQueue interface {
	Enqueue(ctx context.Context, smsID uint, opts jobqueue.EnqueueOptions) (string, error)
	Overview(ctx context.Context) (*jobqueue.Overview, error)
}

// SmsIngestFlow accepts webhook deliveries and runs the parse pipeline behind the queue
type SmsIngestFlow interface {
	Authorize(token string) error
	Receive(ctx context.Context, req *dto.SmsWebhookRequest, token string, metadata *ClientMetadata) (*dto.SmsWebhookResponse, error)
	Process(ctx context.Context, smsID uint, attempt int) error
	OnExhausted(ctx context.Context, smsID uint, cause error)
}

// SmsIngestFlowImpl implements SmsIngestFlow and jobqueue.Processor
type SmsIngestFlowImpl struct {
	tx          repository.Transactor
	smsRepo     repository.RawSmsRepository
	parsedRepo  repository.ParsedPaymentRepository
	paymentRepo repository.PaymentRepository
	parser      services.SMSParser
	matcher     CandidateMatcher
	settlement  SettlementFlow
	queue       ParseQueue
	publisher   services.RealtimePublisher
	cfg         config.SMSConfig
	logger      *log.Logger
}

func NewSmsIngestFlow(
	tx repository.Transactor,
	smsRepo repository.RawSmsRepository,
	parsedRepo repository.ParsedPaymentRepository,
	paymentRepo repository.PaymentRepository,
	parser services.SMSParser,
	matcher CandidateMatcher,
	settlement SettlementFlow,
	queue ParseQueue,
	publisher services.RealtimePublisher,
	cfg config.SMSConfig,
	logger *log.Logger,
) SmsIngestFlow {
	if logger == nil {
		logger = log.Default()
	}
	return &SmsIngestFlowImpl{
		tx:          tx,
		smsRepo:     smsRepo,
		parsedRepo:  parsedRepo,
		paymentRepo: paymentRepo,
		parser:      parser,
		matcher:     matcher,
		settlement:  settlement,
		queue:       queue,
		publisher:   publisher,
		cfg:         cfg,
		logger:      logger,
	}
}

// Authorize compares token with the configured webhook secret in constant time. An unset secret rejects everything.
func (f *SmsIngestFlowImpl) Authorize(token string) error {
	if f.cfg.WebhookToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(f.cfg.WebhookToken)) != 1 {
		return ErrInvalidWebhookToken
	}
	return nil
}

// Receive stores the SMS and enqueues its parse job
func (f *SmsIngestFlowImpl) Receive(ctx context.Context, req *dto.SmsWebhookRequest, token string, metadata *ClientMetadata) (*dto.SmsWebhookResponse, error) {
	if err := f.Authorize(token); err != nil {
		return nil, err
	}

	sms, err := f.buildRawSms(req)
	if err != nil {
		return nil, err
	}

	if err := f.smsRepo.Save(ctx, sms); err != nil {
		return nil, NewBusinessError("SMS_SAVE_FAILED", "Failed to store sms", err)
	}
	services.SMSReceivedTotal.Inc()

	if _, err := f.queue.Enqueue(ctx, sms.ID, jobqueue.EnqueueOptions{}); err != nil {
		// The row is kept; surface it to operators who can retry it.
		f.logger.Printf("sms-ingest: enqueue sms id=%d failed: %v", sms.ID, err)
		f.markError(ctx, sms, models.ReviewReasonExhausted, "enqueue failed")
	}

	f.publisher.Publish(ctx, services.EventSMSReceived, map[string]any{
		"smsId":      sms.ID,
		"from":       utils.MaskPhone(sms.FromMsisdn),
		"receivedAt": utils.ToISO(sms.ReceivedAt),
	})

	return &dto.SmsWebhookResponse{ID: sms.ID}, nil
}

func (f *SmsIngestFlowImpl) buildRawSms(req *dto.SmsWebhookRequest) (*models.RawSms, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, ErrSMSTextRequired
	}

	from := unknownSender
	if strings.TrimSpace(req.From) != "" {
		normalized, ok := utils.NormalizePhone(req.From)
		if !ok {
			return nil, ErrInvalidPhoneNumber
		}
		from = normalized
	}

	var to *string
	if strings.TrimSpace(req.To) != "" {
		normalized, ok := utils.NormalizePhone(req.To)
		if !ok {
			return nil, ErrInvalidPhoneNumber
		}
		to = &normalized
	}

	receivedAt := utils.UTCNow()
	if strings.TrimSpace(req.ReceivedAt) != "" {
		ts, ok := parseReceivedAt(req.ReceivedAt)
		if !ok {
			return nil, ErrInvalidReceivedAt
		}
		receivedAt = ts
	}

	return &models.RawSms{
		Text:         req.Text,
		FromMsisdn:   from,
		ToMsisdn:     to,
		ReceivedAt:   receivedAt,
		IngestStatus: models.IngestStatusReceived,
		Metadata: models.SmsMetadata{
			ModemID: strings.TrimSpace(req.ModemID),
			SimSlot: req.SimSlot,
		},
	}, nil
}

// parseReceivedAt accepts RFC3339 or unix epoch in seconds or milliseconds
func parseReceivedAt(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return ts.UTC(), true
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		return time.Time{}, false
	}
	if n >= 1e12 {
		return time.UnixMilli(n).UTC(), true
	}
	return time.Unix(n, 0).UTC(), true
}

// Process runs one parse attempt for smsID. Returned errors are retried by the queue.
func (f *SmsIngestFlowImpl) Process(ctx context.Context, smsID uint, attempt int) error {
	sms, err := f.smsRepo.ByID(ctx, smsID)
	if err != nil {
		return fmt.Errorf("load sms %d: %w", smsID, err)
	}
	if sms == nil {
		return jobqueue.Permanent(ErrSMSNotFound)
	}
	if sms.IngestStatus != models.IngestStatusReceived {
		f.logger.Printf("sms-ingest: skip sms id=%d in status %s", sms.ID, sms.IngestStatus)
		return nil
	}

	result, err := f.parser.Parse(ctx, services.ParseInput{
		Text:       sms.Text,
		From:       sms.FromMsisdn,
		ReceivedAt: sms.ReceivedAt,
	})
	if err != nil {
		if errors.Is(err, services.ErrNoPaymentFound) {
			return f.recordParseFailure(ctx, sms)
		}
		f.logger.Printf("sms-ingest: parse sms id=%d attempt=%d failed: %v", sms.ID, attempt, err)
		return err
	}

	parsed, err := newParsedPayment(sms.ID, result)
	if err != nil {
		return jobqueue.Permanent(err)
	}

	match, err := f.matcher.Match(ctx, MatchQuery{
		Amount:     parsed.Amount,
		Ref:        utils.Deref(parsed.Ref),
		ReceivedAt: sms.ReceivedAt,
		Lookback:   f.cfg.Lookback(),
	})
	if err != nil {
		return err
	}
	parsed.Candidates = match.Pointers()

	lowConfidence := parsed.Confidence < f.cfg.ConfidenceThreshold
	if target, ok := match.AutoSettleTarget(); ok && !lowConfidence && f.cfg.AutoSettle {
		err := f.autoSettle(ctx, sms.ID, parsed, target)
		if err == nil {
			return nil
		}
		if errors.Is(err, errStaleSms) {
			f.logger.Printf("sms-ingest: sms id=%d moved during settlement, dropping attempt", sms.ID)
			return nil
		}
		f.logger.Printf("sms-ingest: auto-settle sms id=%d to %s failed: %v", sms.ID, target.Pointer(), err)
		// the transaction rolled back the parse row; insert it afresh
		parsed.ID = 0
		parsed.MatchedEntity = nil
		parsed.CreatedAt = time.Time{}
		return f.routeToReview(ctx, sms, parsed, match, models.ReviewReasonSettlementFailed, err.Error())
	}

	reason := reviewReason(match, lowConfidence)
	return f.routeToReview(ctx, sms, parsed, match, reason, "")
}

func newParsedPayment(smsID uint, r *services.ParseResult) (*models.ParsedPayment, error) {
	parsed := &models.ParsedPayment{
		SmsID:         smsID,
		Amount:        r.Amount,
		Currency:      r.Currency,
		Ref:           r.Ref,
		PayerMask:     r.PayerMask,
		Confidence:    r.Confidence,
		ParserVersion: r.ParserVersion,
		Strategy:      r.Strategy,
	}
	if len(r.RawFields) > 0 {
		raw, err := SnapshotJSON(r.RawFields)
		if err != nil {
			return nil, fmt.Errorf("encode raw fields: %w", err)
		}
		parsed.RawFields = raw
	}
	return parsed, nil
}

func reviewReason(match *MatchResult, lowConfidence bool) models.ReviewReason {
	switch {
	case match.AmountMismatch():
		return models.ReviewReasonAmountMismatch
	case lowConfidence:
		return models.ReviewReasonLowConfidence
	case match.Mode == MatchModeRefAmbiguous:
		return models.ReviewReasonAmbiguous
	case match.Mode == MatchModeAmountWindow && len(match.Candidates) > 1:
		return models.ReviewReasonAmbiguous
	case match.Mode == MatchModeAmountWindow:
		return models.ReviewReasonAmountOnly
	case match.Mode == MatchModeRefExact:
		// auto-settle disabled
		return models.ReviewReasonAmountOnly
	default:
		return models.ReviewReasonNoMatch
	}
}

func (f *SmsIngestFlowImpl) autoSettle(ctx context.Context, smsID uint, parsed *models.ParsedPayment, target Candidate) error {
	return f.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		locked, err := f.smsRepo.ByIDForUpdate(txCtx, smsID)
		if err != nil {
			return fmt.Errorf("lock sms %d: %w", smsID, err)
		}
		if locked == nil || locked.IngestStatus != models.IngestStatusReceived {
			return errStaleSms
		}
		if err := f.parsedRepo.Save(txCtx, parsed); err != nil {
			return NewBusinessError("PARSED_SAVE_FAILED", "Failed to store parsed sms", err)
		}
		_, err = f.settlement.Attach(txCtx, AttachCommand{
			Kind:     target.Intent.Kind,
			EntityID: target.Intent.ID,
			SmsID:    smsID,
		})
		return err
	})
}

// routeToReview stores the parse with a payment row awaiting an operator and moves the SMS to manual_review
func (f *SmsIngestFlowImpl) routeToReview(ctx context.Context, sms *models.RawSms, parsed *models.ParsedPayment, match *MatchResult, reason models.ReviewReason, note string) error {
	var suggested *Candidate
	if len(match.Candidates) == 1 {
		suggested = &match.Candidates[0]
		parsed.MatchedEntity = utils.ToPtr(suggested.Pointer().Candidate())
	}

	meta := sms.Metadata
	meta.Review = &models.ReviewInfo{
		Reason:     reason,
		Confidence: utils.ToPtr(parsed.Confidence),
		Candidates: match.Pointers(),
		Note:       note,
		At:         utils.UTCNow(),
	}

	err := f.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := f.parsedRepo.Save(txCtx, parsed); err != nil {
			return NewBusinessError("PARSED_SAVE_FAILED", "Failed to store parsed sms", err)
		}

		payment := &models.Payment{
			Kind:        models.IntentKindUnassigned,
			Amount:      parsed.Amount,
			Currency:    parsed.Currency,
			Status:      models.PaymentStatusManualReview,
			SmsParsedID: utils.ToPtr(parsed.ID),
			Metadata: models.PaymentMetadata{
				Ref:          utils.Deref(parsed.Ref),
				ManualReason: string(reason),
				SmsID:        utils.ToPtr(sms.ID),
			},
		}
		if suggested != nil {
			payment.Kind = suggested.Intent.Kind
			payment.IntentID = utils.ToPtr(suggested.Intent.ID)
		}
		if err := f.paymentRepo.Save(txCtx, payment); err != nil {
			return NewBusinessError("PAYMENT_CREATE_FAILED", "Failed to record payment for review", err)
		}

		ok, err := f.smsRepo.TransitionState(txCtx, sms.ID,
			[]models.IngestStatus{models.IngestStatusReceived}, models.IngestStatusManualReview, meta)
		if err != nil {
			return NewBusinessError("SMS_STATE_UPDATE_FAILED", "Failed to update sms status", err)
		}
		if !ok {
			return errStaleSms
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, errStaleSms) {
			f.logger.Printf("sms-ingest: sms id=%d moved before review routing, dropping attempt", sms.ID)
			return nil
		}
		return err
	}

	f.reviewed(ctx, sms.ID, models.IngestStatusManualReview, meta.Review)
	return nil
}

// recordParseFailure counts a no-match. The first one is retried; the second one is final.
func (f *SmsIngestFlowImpl) recordParseFailure(ctx context.Context, sms *models.RawSms) error {
	meta := sms.Metadata
	meta.ParseFailures++

	if meta.ParseFailures < maxParseFailures {
		ok, err := f.smsRepo.TransitionState(ctx, sms.ID,
			[]models.IngestStatus{models.IngestStatusReceived}, models.IngestStatusReceived, meta)
		if err != nil {
			return fmt.Errorf("record parse failure for sms %d: %w", sms.ID, err)
		}
		if !ok {
			return nil
		}
		return fmt.Errorf("sms %d parse failure %d: %w", sms.ID, meta.ParseFailures, services.ErrNoPaymentFound)
	}

	meta.Review = &models.ReviewInfo{
		Reason: models.ReviewReasonParseFailed,
		Note:   "no payment found in text",
		At:     utils.UTCNow(),
	}
	ok, err := f.smsRepo.TransitionState(ctx, sms.ID,
		[]models.IngestStatus{models.IngestStatusReceived}, models.IngestStatusError, meta)
	if err != nil {
		return fmt.Errorf("record parse failure for sms %d: %w", sms.ID, err)
	}
	if ok {
		f.reviewed(ctx, sms.ID, models.IngestStatusError, meta.Review)
	}
	return nil
}

// OnExhausted surfaces an SMS whose job gave up to manual review
func (f *SmsIngestFlowImpl) OnExhausted(ctx context.Context, smsID uint, cause error) {
	sms, err := f.smsRepo.ByID(ctx, smsID)
	if err != nil {
		f.logger.Printf("sms-ingest: load exhausted sms id=%d failed: %v", smsID, err)
		return
	}
	if sms == nil || sms.IngestStatus != models.IngestStatusReceived {
		return
	}
	note := "retries exhausted"
	if cause != nil {
		note = cause.Error()
	}
	f.markError(ctx, sms, models.ReviewReasonExhausted, note)
}

func (f *SmsIngestFlowImpl) markError(ctx context.Context, sms *models.RawSms, reason models.ReviewReason, note string) {
	meta := sms.Metadata
	meta.Review = &models.ReviewInfo{Reason: reason, Note: note, At: utils.UTCNow()}

	ok, err := f.smsRepo.TransitionState(ctx, sms.ID,
		[]models.IngestStatus{models.IngestStatusReceived}, models.IngestStatusError, meta)
	if err != nil {
		f.logger.Printf("sms-ingest: mark sms id=%d as error failed: %v", sms.ID, err)
		return
	}
	if ok {
		sms.IngestStatus = models.IngestStatusError
		sms.Metadata = meta
		f.reviewed(ctx, sms.ID, models.IngestStatusError, meta.Review)
	}
}

func (f *SmsIngestFlowImpl) reviewed(ctx context.Context, smsID uint, status models.IngestStatus, review *models.ReviewInfo) {
	services.SMSManualReviewTotal.WithLabelValues(string(review.Reason)).Inc()
	payload := map[string]any{
		"smsId":      smsID,
		"status":     string(status),
		"reason":     string(review.Reason),
		"candidates": review.Candidates,
	}
	if review.Confidence != nil {
		payload["confidence"] = *review.Confidence
	}
	f.publisher.Publish(ctx, services.EventSMSManualReview, payload)
}
