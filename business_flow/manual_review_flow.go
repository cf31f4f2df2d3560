package businessflow

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/amirphl/momo-reconciler/app/dto"
	"github.com/amirphl/momo-reconciler/app/jobqueue"
	"github.com/amirphl/momo-reconciler/models"
	"github.com/amirphl/momo-reconciler/repository"
	"github.com/amirphl/momo-reconciler/utils"
)

// Status strings returned by the review actions
const (
	RetryStatusQueued     = "queued"
	DismissStatusResolved = "resolved"
)

// reviewable are the statuses an operator may retry from
var reviewable = []models.IngestStatus{
	models.IngestStatusManualReview,
	models.IngestStatusError,
	models.IngestStatusParsed,
}

// dismissible also admits queued SMS; the worker skips anything no longer received
var dismissible = append([]models.IngestStatus{models.IngestStatusReceived}, reviewable...)

// ManualReviewFlow is the operator side of the pipeline
type ManualReviewFlow interface {
	ListManual(ctx context.Context, req *dto.ListSmsRequest) (*dto.ListSmsResponse, error)
	ListInbound(ctx context.Context, req *dto.ListSmsRequest) (*dto.ListSmsResponse, error)
	ListManualPayments(ctx context.Context, req *dto.ListSmsRequest) (*dto.ListManualPaymentsResponse, error)
	Retry(ctx context.Context, smsID uint, metadata *ClientMetadata) (*dto.RetrySmsResponse, error)
	Dismiss(ctx context.Context, smsID uint, req *dto.DismissSmsRequest, metadata *ClientMetadata) (*dto.DismissSmsResponse, error)
	Candidates(ctx context.Context, smsID uint, lookbackMinutes int) (*dto.SmsCandidatesResponse, error)
	QueueOverview(ctx context.Context) (*dto.QueueOverviewResponse, error)
}

// ManualReviewFlowImpl implements ManualReviewFlow
type ManualReviewFlowImpl struct {
	tx          repository.Transactor
	smsRepo     repository.RawSmsRepository
	parsedRepo  repository.ParsedPaymentRepository
	paymentRepo repository.PaymentRepository
	intents     IntentRegistry
	matcher     CandidateMatcher
	queue       ParseQueue
	audit       AuditRecorder
	logger      *log.Logger
}

func NewManualReviewFlow(
	tx repository.Transactor,
	smsRepo repository.RawSmsRepository,
	parsedRepo repository.ParsedPaymentRepository,
	paymentRepo repository.PaymentRepository,
	intents IntentRegistry,
	matcher CandidateMatcher,
	queue ParseQueue,
	audit AuditRecorder,
	logger *log.Logger,
) ManualReviewFlow {
	if logger == nil {
		logger = log.Default()
	}
	return &ManualReviewFlowImpl{
		tx:          tx,
		smsRepo:     smsRepo,
		parsedRepo:  parsedRepo,
		paymentRepo: paymentRepo,
		intents:     intents,
		matcher:     matcher,
		queue:       queue,
		audit:       audit,
		logger:      logger,
	}
}

func (f *ManualReviewFlowImpl) ListManual(ctx context.Context, req *dto.ListSmsRequest) (*dto.ListSmsResponse, error) {
	limit := utils.ClampLimit(req.Limit)
	rows, err := f.smsRepo.ListByStatuses(ctx, []models.IngestStatus{models.IngestStatusManualReview, models.IngestStatusError}, limit)
	if err != nil {
		return nil, NewBusinessError("LIST_MANUAL_SMS_FAILED", "Failed to list sms awaiting review", err)
	}
	return f.toSmsList(ctx, rows, limit)
}

func (f *ManualReviewFlowImpl) ListInbound(ctx context.Context, req *dto.ListSmsRequest) (*dto.ListSmsResponse, error) {
	limit := utils.ClampLimit(req.Limit)
	rows, err := f.smsRepo.ListRecent(ctx, limit)
	if err != nil {
		return nil, NewBusinessError("LIST_INBOUND_SMS_FAILED", "Failed to list inbound sms", err)
	}
	return f.toSmsList(ctx, rows, limit)
}

func (f *ManualReviewFlowImpl) toSmsList(ctx context.Context, rows []*models.RawSms, limit int) (*dto.ListSmsResponse, error) {
	ids := make([]uint, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	parsed, err := f.parsedRepo.LatestBySmsIDs(ctx, ids)
	if err != nil {
		return nil, NewBusinessError("PARSED_LOOKUP_FAILED", "Failed to load parsed sms", err)
	}

	items := make([]dto.SmsItem, 0, len(rows))
	for _, r := range rows {
		items = append(items, ToSmsItem(r, parsed[r.ID]))
	}
	return &dto.ListSmsResponse{Items: items, Limit: limit}, nil
}

func (f *ManualReviewFlowImpl) ListManualPayments(ctx context.Context, req *dto.ListSmsRequest) (*dto.ListManualPaymentsResponse, error) {
	limit := utils.ClampLimit(req.Limit)
	payments, err := f.paymentRepo.ListByStatus(ctx, models.PaymentStatusManualReview, limit)
	if err != nil {
		return nil, NewBusinessError("LIST_MANUAL_PAYMENTS_FAILED", "Failed to list payments awaiting review", err)
	}

	items := make([]dto.ManualPaymentItem, 0, len(payments))
	for _, p := range payments {
		item := dto.ManualPaymentItem{PaymentItem: ToPaymentItem(p)}

		if p.IntentID != nil && p.Kind != models.IntentKindUnassigned {
			if repo, err := f.intents.Get(p.Kind); err == nil {
				entity, err := repo.IntentByID(ctx, *p.IntentID, false)
				if err != nil {
					return nil, NewBusinessError("ENTITY_LOOKUP_FAILED", "Failed to load entity", err)
				}
				if entity != nil {
					summary := ToIntentSummary(entity.ToIntent())
					item.Entity = &summary
				}
			}
		}

		if p.SmsParsedID != nil {
			parsed, err := f.parsedRepo.ByID(ctx, *p.SmsParsedID)
			if err != nil {
				return nil, NewBusinessError("PARSED_LOOKUP_FAILED", "Failed to load parsed sms", err)
			}
			item.Parsed = ToParsedSmsSummary(parsed)
		}

		items = append(items, item)
	}
	return &dto.ListManualPaymentsResponse{Items: items, Limit: limit}, nil
}

// Retry clears the review state of an SMS and queues a fresh parse
func (f *ManualReviewFlowImpl) Retry(ctx context.Context, smsID uint, metadata *ClientMetadata) (*dto.RetrySmsResponse, error) {
	var before models.RawSms
	err := f.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		sms, parsed, err := f.lockReviewable(txCtx, smsID)
		if err != nil {
			return err
		}
		if sms.IngestStatus == models.IngestStatusReceived {
			return ErrRetryInFlight
		}
		before = *sms

		meta := sms.Metadata
		meta.AdminResolution = nil
		meta.Review = nil
		meta.ParseFailures = 0

		ok, err := f.smsRepo.TransitionState(txCtx, sms.ID, reviewable, models.IngestStatusReceived, meta)
		if err != nil {
			return NewBusinessError("SMS_STATE_UPDATE_FAILED", "Failed to reset sms", err)
		}
		if !ok {
			return ErrRetryInFlight
		}

		if parsed != nil {
			if err := f.closeReviewPayments(txCtx, parsed.ID, "retried"); err != nil {
				return err
			}
		}

		after := *sms
		after.IngestStatus = models.IngestStatusReceived
		after.Metadata = meta
		_, err = f.audit.Record(txCtx, AuditEntry{
			Action:      models.AuditActionSmsManualRetry,
			EntityType:  sms.TableName(),
			EntityID:    strconv.FormatUint(uint64(sms.ID), 10),
			Before:      before,
			After:       after,
			Description: fmt.Sprintf("sms %d re-queued from %s", sms.ID, before.IngestStatus),
			Metadata:    metadata,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	jobID, err := f.queue.Enqueue(ctx, smsID, jobqueue.EnqueueOptions{RemoveOnComplete: true})
	if err != nil {
		if _, rerr := f.smsRepo.TransitionState(ctx, smsID,
			[]models.IngestStatus{models.IngestStatusReceived}, before.IngestStatus, before.Metadata); rerr != nil {
			f.logger.Printf("manual-review: revert sms id=%d after enqueue failure: %v", smsID, rerr)
		}
		return nil, NewBusinessError("QUEUE_ENQUEUE_FAILED", "Failed to queue sms for parsing", err)
	}

	return &dto.RetrySmsResponse{Status: RetryStatusQueued, SmsID: smsID, JobID: jobID}, nil
}

// Dismiss closes out an SMS without settling anything
func (f *ManualReviewFlowImpl) Dismiss(ctx context.Context, smsID uint, req *dto.DismissSmsRequest, metadata *ClientMetadata) (*dto.DismissSmsResponse, error) {
	resolution := models.ResolutionStatus(req.Resolution)
	if !resolution.Valid() {
		return nil, ErrInvalidResolution
	}

	target := models.IngestStatusError
	if resolution == models.ResolutionLinkedElsewhere {
		target = models.IngestStatusParsed
	}

	err := f.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		sms, parsed, err := f.lockReviewable(txCtx, smsID)
		if err != nil {
			return err
		}
		before := *sms

		meta := sms.Metadata
		meta.AdminResolution = &models.AdminResolution{
			Status:     resolution,
			Note:       req.Note,
			ResolvedBy: actorID(metadata),
			ResolvedAt: utils.UTCNow(),
		}

		ok, err := f.smsRepo.TransitionState(txCtx, sms.ID, dismissible, target, meta)
		if err != nil {
			return NewBusinessError("SMS_STATE_UPDATE_FAILED", "Failed to resolve sms", err)
		}
		if !ok {
			return ErrSMSStateChanged
		}

		if parsed != nil {
			if err := f.closeReviewPayments(txCtx, parsed.ID, string(resolution)); err != nil {
				return err
			}
		}

		after := *sms
		after.IngestStatus = target
		after.Metadata = meta
		_, err = f.audit.Record(txCtx, AuditEntry{
			Action:      models.AuditActionSmsManualDismiss,
			EntityType:  sms.TableName(),
			EntityID:    strconv.FormatUint(uint64(sms.ID), 10),
			Before:      before,
			After:       after,
			Description: fmt.Sprintf("sms %d dismissed as %s", sms.ID, resolution),
			Metadata:    metadata,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	return &dto.DismissSmsResponse{Status: DismissStatusResolved, SmsID: smsID, IngestStatus: string(target)}, nil
}

// lockReviewable loads the SMS for update and rejects settled rows
func (f *ManualReviewFlowImpl) lockReviewable(ctx context.Context, smsID uint) (*models.RawSms, *models.ParsedPayment, error) {
	sms, err := f.smsRepo.ByIDForUpdate(ctx, smsID)
	if err != nil {
		return nil, nil, NewBusinessError("SMS_LOOKUP_FAILED", "Failed to load sms", err)
	}
	if sms == nil {
		return nil, nil, ErrSMSNotFound
	}
	parsed, err := f.parsedRepo.LatestBySmsID(ctx, sms.ID)
	if err != nil {
		return nil, nil, NewBusinessError("PARSED_LOOKUP_FAILED", "Failed to load parsed sms", err)
	}
	if parsed != nil && parsed.IsSettled() {
		return nil, nil, ErrSMSAlreadySettled
	}
	return sms, parsed, nil
}

// closeReviewPayments fails the payments still waiting on this parse
func (f *ManualReviewFlowImpl) closeReviewPayments(ctx context.Context, parsedID uint, reason string) error {
	open, err := f.paymentRepo.ListByParsedID(ctx, parsedID, models.PaymentStatusManualReview)
	if err != nil {
		return NewBusinessError("PAYMENT_LOOKUP_FAILED", "Failed to load linked payments", err)
	}
	for _, p := range open {
		p.Status = models.PaymentStatusFailed
		p.Metadata.ManualReason = reason
		if err := f.paymentRepo.Update(ctx, p); err != nil {
			return NewBusinessError("PAYMENT_UPDATE_FAILED", "Failed to close payment", err)
		}
	}
	return nil
}

// Candidates re-runs the matcher for the current parse. lookbackMinutes of zero means the default.
func (f *ManualReviewFlowImpl) Candidates(ctx context.Context, smsID uint, lookbackMinutes int) (*dto.SmsCandidatesResponse, error) {
	if lookbackMinutes != 0 {
		d := time.Duration(lookbackMinutes) * time.Minute
		if d < MinLookback || d > MaxLookback {
			return nil, ErrInvalidLookback
		}
	}

	sms, err := f.smsRepo.ByID(ctx, smsID)
	if err != nil {
		return nil, NewBusinessError("SMS_LOOKUP_FAILED", "Failed to load sms", err)
	}
	if sms == nil {
		return nil, ErrSMSNotFound
	}
	parsed, err := f.parsedRepo.LatestBySmsID(ctx, sms.ID)
	if err != nil {
		return nil, NewBusinessError("PARSED_LOOKUP_FAILED", "Failed to load parsed sms", err)
	}
	if parsed == nil {
		return nil, ErrSMSNotParsed
	}

	result, err := f.matcher.Match(ctx, MatchQuery{
		Amount:     parsed.Amount,
		Ref:        utils.Deref(parsed.Ref),
		ReceivedAt: sms.ReceivedAt,
		Lookback:   time.Duration(lookbackMinutes) * time.Minute,
	})
	if err != nil {
		return nil, err
	}

	candidates := make([]dto.SmsCandidateItem, 0, len(result.Candidates))
	for _, c := range result.Candidates {
		candidates = append(candidates, dto.SmsCandidateItem{
			Pointer:         c.Pointer().String(),
			Entity:          ToIntentSummary(c.Intent),
			DistanceSeconds: int64(c.Distance / time.Second),
		})
	}

	return &dto.SmsCandidatesResponse{
		SmsID:           sms.ID,
		LookbackMinutes: int(result.Lookback / time.Minute),
		Mode:            string(result.Mode),
		Parsed:          ToParsedSmsSummary(parsed),
		Candidates:      candidates,
	}, nil
}

func (f *ManualReviewFlowImpl) QueueOverview(ctx context.Context) (*dto.QueueOverviewResponse, error) {
	overview, err := f.queue.Overview(ctx)
	if err != nil {
		return nil, NewBusinessError("QUEUE_OVERVIEW_FAILED", "Failed to read queue overview", err)
	}
	return &dto.QueueOverviewResponse{
		Waiting:   overview.Waiting,
		Active:    overview.Active,
		Delayed:   overview.Delayed,
		Completed: overview.Completed,
		Failed:    overview.Failed,
		Totals:    overview.Totals,
	}, nil
}
