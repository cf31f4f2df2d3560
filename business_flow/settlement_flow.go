package businessflow

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/amirphl/momo-reconciler/app/dto"
	"github.com/amirphl/momo-reconciler/app/services"
	"github.com/amirphl/momo-reconciler/models"
	"github.com/amirphl/momo-reconciler/repository"
	"github.com/amirphl/momo-reconciler/utils"
	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// Settlement modes used in metrics and realtime events
const (
	SettlementModeAuto   = "auto"
	SettlementModeManual = "manual"
)

var attachActions = map[models.IntentKind]string{
	models.IntentKindTicket:     models.AuditActionTicketOrderAttachSms,
	models.IntentKindShop:       models.AuditActionShopOrderAttachSms,
	models.IntentKindQuote:      models.AuditActionInsuranceQuoteAttachSms,
	models.IntentKindDeposit:    models.AuditActionSaccoDepositAttachSms,
	models.IntentKindMembership: models.AuditActionMembershipAttachSms,
	models.IntentKindDonation:   models.AuditActionFundDonationAttachSms,
}

// AttachCommand binds one SMS to one entity. A nil actor means the pipeline settled it.
type AttachCommand struct {
	Kind     models.IntentKind
	EntityID uint
	SmsID    uint
	Metadata *ClientMetadata
}

// PaymentAttachCommand binds one SMS to a payment row awaiting review
type PaymentAttachCommand struct {
	PaymentID uint
	SmsID     uint
	Metadata  *ClientMetadata
}

// AttachResult is the outcome of a settlement
type AttachResult struct {
	SmsID   uint
	Pointer models.EntityPointer
	// AlreadySettled means the SMS was already bound to this entity; nothing was written
	AlreadySettled bool
	Before         *models.PaymentIntent
	After          models.PaymentIntent
	Entity         models.Intent
	Pass           *models.TicketPass
	PassCreated    bool
	Payments       []*models.Payment
	AuditLog       *models.AuditLog
}

// PaymentAttachResult is the outcome of a payment attach
type PaymentAttachResult struct {
	Payment    *models.Payment
	Settlement *AttachResult
}

// SettlementFlow applies a confirmed (sms, entity) match exactly once
type SettlementFlow interface {
	Attach(ctx context.Context, cmd AttachCommand) (*AttachResult, error)
	AttachToPayment(ctx context.Context, cmd PaymentAttachCommand) (*PaymentAttachResult, error)
	AttachSms(ctx context.Context, req *dto.AttachSmsRequest, metadata *ClientMetadata) (*dto.AttachSmsResponse, error)
	ManualAttach(ctx context.Context, req *dto.ManualAttachRequest, metadata *ClientMetadata) (*dto.ManualAttachResponse, error)
}

// SettlementFlowImpl implements SettlementFlow
type SettlementFlowImpl struct {
	tx          repository.Transactor
	smsRepo     repository.RawSmsRepository
	parsedRepo  repository.ParsedPaymentRepository
	paymentRepo repository.PaymentRepository
	passRepo    repository.TicketPassRepository
	intents     IntentRegistry
	audit       AuditRecorder
	publisher   services.RealtimePublisher
}

func NewSettlementFlow(
	tx repository.Transactor,
	smsRepo repository.RawSmsRepository,
	parsedRepo repository.ParsedPaymentRepository,
	paymentRepo repository.PaymentRepository,
	passRepo repository.TicketPassRepository,
	intents IntentRegistry,
	audit AuditRecorder,
	publisher services.RealtimePublisher,
) SettlementFlow {
	return &SettlementFlowImpl{
		tx:          tx,
		smsRepo:     smsRepo,
		parsedRepo:  parsedRepo,
		paymentRepo: paymentRepo,
		passRepo:    passRepo,
		intents:     intents,
		audit:       audit,
		publisher:   publisher,
	}
}

func (f *SettlementFlowImpl) Attach(ctx context.Context, cmd AttachCommand) (*AttachResult, error) {
	if !cmd.Kind.Matchable() {
		return nil, ErrUnknownIntentKind
	}

	var result *AttachResult
	err := f.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		r, err := f.attachInTx(txCtx, cmd, nil)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	f.afterSettle(ctx, result, cmd.Metadata)
	return result, nil
}

func (f *SettlementFlowImpl) AttachToPayment(ctx context.Context, cmd PaymentAttachCommand) (*PaymentAttachResult, error) {
	var result *PaymentAttachResult
	err := f.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		payment, err := f.paymentRepo.ByIDForUpdate(txCtx, cmd.PaymentID)
		if err != nil {
			return NewBusinessError("PAYMENT_LOOKUP_FAILED", "Failed to load payment", err)
		}
		if payment == nil {
			return ErrPaymentNotFound
		}
		if payment.IsConfirmed() {
			return ErrPaymentAlreadyConfirmed
		}

		sms, err := f.smsRepo.ByID(txCtx, cmd.SmsID)
		if err != nil {
			return NewBusinessError("SMS_LOOKUP_FAILED", "Failed to load sms", err)
		}
		if sms == nil {
			return ErrSMSNotFound
		}
		parsed, err := f.parsedRepo.LatestBySmsID(txCtx, sms.ID)
		if err != nil {
			return NewBusinessError("PARSED_LOOKUP_FAILED", "Failed to load parsed sms", err)
		}
		if parsed == nil {
			return ErrSMSNotParsed
		}
		if payment.SmsParsedID != nil && *payment.SmsParsedID != parsed.ID {
			return ErrPaymentLinkedElsewhere
		}
		if payment.IntentID == nil || payment.Kind == models.IntentKindUnassigned || !payment.Kind.Valid() {
			return ErrPaymentMissingIntent
		}

		before := *payment
		settlement, err := f.attachInTx(txCtx, AttachCommand{
			Kind:     payment.Kind,
			EntityID: *payment.IntentID,
			SmsID:    sms.ID,
			Metadata: cmd.Metadata,
		}, payment)
		if err != nil {
			return err
		}

		if _, err := f.audit.Record(txCtx, AuditEntry{
			Action:      models.AuditActionSmsManualAttach,
			EntityType:  models.Payment{}.TableName(),
			EntityID:    strconv.FormatUint(uint64(payment.ID), 10),
			Before:      before,
			After:       payment,
			Description: fmt.Sprintf("sms %d attached to payment %d", sms.ID, payment.ID),
			Metadata:    cmd.Metadata,
		}); err != nil {
			return err
		}

		result = &PaymentAttachResult{Payment: payment, Settlement: settlement}
		return nil
	})
	if err != nil {
		return nil, err
	}

	f.afterSettle(ctx, result.Settlement, cmd.Metadata)
	return result, nil
}

// attachInTx must run inside a transaction. payment, when set, is the row the operator picked.
func (f *SettlementFlowImpl) attachInTx(ctx context.Context, cmd AttachCommand, payment *models.Payment) (*AttachResult, error) {
	repo, err := f.intents.Get(cmd.Kind)
	if err != nil {
		return nil, err
	}

	// lock order: sms, then entity
	sms, err := f.smsRepo.ByIDForUpdate(ctx, cmd.SmsID)
	if err != nil {
		return nil, NewBusinessError("SMS_LOOKUP_FAILED", "Failed to load sms", err)
	}
	if sms == nil {
		return nil, ErrSMSNotFound
	}
	entity, err := repo.IntentByID(ctx, cmd.EntityID, true)
	if err != nil {
		return nil, NewBusinessError("ENTITY_LOOKUP_FAILED", "Failed to load entity", err)
	}
	if entity == nil {
		return nil, ErrEntityNotFound
	}
	parsed, err := f.parsedRepo.LatestBySmsID(ctx, sms.ID)
	if err != nil {
		return nil, NewBusinessError("PARSED_LOOKUP_FAILED", "Failed to load parsed sms", err)
	}
	if parsed == nil {
		return nil, ErrSMSNotParsed
	}

	pointer := models.EntityPointer{Kind: cmd.Kind, ID: cmd.EntityID}
	now := utils.UTCNow()
	ref := parsed.RefOr(fmt.Sprintf("sms-%d", sms.ID))

	if parsed.IsSettled() {
		if *parsed.MatchedEntity != pointer.String() {
			return nil, ErrSMSAlreadyMatched
		}
		result := &AttachResult{
			SmsID:          sms.ID,
			Pointer:        pointer,
			AlreadySettled: true,
			After:          entity.ToIntent(),
			Entity:         entity,
		}
		if cmd.Kind == models.IntentKindTicket {
			if result.Pass, err = f.passRepo.ByOrderID(ctx, cmd.EntityID); err != nil {
				return nil, NewBusinessError("TICKET_PASS_LOOKUP_FAILED", "Failed to load ticket pass", err)
			}
		}
		if payment != nil {
			if err := f.confirmPayment(ctx, payment, parsed, entity.ToIntent(), ref, now); err != nil {
				return nil, err
			}
			result.Payments = []*models.Payment{payment}
		}
		return result, nil
	}

	before := entity.ToIntent()
	settled, err := repo.MarkSettled(ctx, cmd.EntityID, ref, now)
	if err != nil {
		return nil, NewBusinessError("ENTITY_SETTLE_FAILED", "Failed to settle entity", err)
	}
	after := settled.ToIntent()

	result := &AttachResult{
		SmsID:   sms.ID,
		Pointer: pointer,
		Before:  &before,
		After:   after,
		Entity:  settled,
	}

	if cmd.Kind == models.IntentKindTicket {
		if result.Pass, result.PassCreated, err = f.issuePass(ctx, cmd.EntityID, cmd.Metadata); err != nil {
			return nil, err
		}
	}

	ok, err := f.parsedRepo.SetMatchedEntity(ctx, parsed.ID, pointer.String())
	if err != nil {
		return nil, NewBusinessError("MATCH_POINTER_FAILED", "Failed to mark sms as matched", err)
	}
	if !ok {
		return nil, ErrSMSAlreadyMatched
	}

	result.AuditLog, err = f.audit.Record(ctx, AuditEntry{
		Action:      attachActions[cmd.Kind],
		EntityType:  entity.TableName(),
		EntityID:    strconv.FormatUint(uint64(cmd.EntityID), 10),
		Before:      entity,
		After:       settled,
		Description: fmt.Sprintf("sms %d attached with ref %s", sms.ID, ref),
		Metadata:    cmd.Metadata,
	})
	if err != nil {
		return nil, err
	}

	if result.Payments, err = f.confirmLinkedPayments(ctx, parsed, after, ref, now, payment, before.Status != after.Status); err != nil {
		return nil, err
	}

	if err := f.smsRepo.UpdateState(ctx, sms.ID, models.IngestStatusParsed, sms.Metadata); err != nil {
		return nil, NewBusinessError("SMS_STATE_UPDATE_FAILED", "Failed to update sms status", err)
	}

	return result, nil
}

// issuePass creates the order's pass unless one exists; only a fresh pass is audited
func (f *SettlementFlowImpl) issuePass(ctx context.Context, orderID uint, metadata *ClientMetadata) (*models.TicketPass, bool, error) {
	token := uuid.New().String()
	sum := blake2b.Sum256([]byte(token))

	pass := &models.TicketPass{
		OrderID:     orderID,
		Zone:        models.TicketPassDefaultZone,
		Gate:        models.TicketPassDefaultGate,
		State:       models.TicketPassStateActive,
		QRTokenHash: hex.EncodeToString(sum[:]),
	}
	created, err := f.passRepo.CreateIfAbsent(ctx, pass)
	if err != nil {
		return nil, false, NewBusinessError("TICKET_PASS_CREATE_FAILED", "Failed to issue ticket pass", err)
	}
	if !created {
		existing, err := f.passRepo.ByOrderID(ctx, orderID)
		if err != nil {
			return nil, false, NewBusinessError("TICKET_PASS_LOOKUP_FAILED", "Failed to load ticket pass", err)
		}
		return existing, false, nil
	}

	if _, err := f.audit.Record(ctx, AuditEntry{
		Action:      models.AuditActionTicketPassInsert,
		EntityType:  pass.TableName(),
		EntityID:    strconv.FormatUint(uint64(pass.ID), 10),
		After:       pass,
		Description: fmt.Sprintf("pass issued for ticket order %d", orderID),
		Metadata:    metadata,
	}); err != nil {
		return nil, false, err
	}
	return pass, true, nil
}

// confirmLinkedPayments confirms every review payment tied to the parse.
// With none to confirm, a ledger row is written when the entity was still open.
func (f *SettlementFlowImpl) confirmLinkedPayments(ctx context.Context, parsed *models.ParsedPayment, intent models.PaymentIntent, ref string, now time.Time, picked *models.Payment, entityWasOpen bool) ([]*models.Payment, error) {
	linked, err := f.paymentRepo.ListByParsedID(ctx, parsed.ID, models.PaymentStatusManualReview)
	if err != nil {
		return nil, NewBusinessError("PAYMENT_LOOKUP_FAILED", "Failed to load linked payments", err)
	}

	payments := make([]*models.Payment, 0, len(linked)+1)
	if picked != nil {
		payments = append(payments, picked)
	}
	for _, p := range linked {
		if picked != nil && p.ID == picked.ID {
			continue
		}
		payments = append(payments, p)
	}

	for _, p := range payments {
		if err := f.confirmPayment(ctx, p, parsed, intent, ref, now); err != nil {
			return nil, err
		}
	}

	if len(payments) == 0 && entityWasOpen {
		p := &models.Payment{
			Kind:        intent.Kind,
			IntentID:    utils.ToPtr(intent.ID),
			Amount:      parsed.Amount,
			Currency:    parsed.Currency,
			Status:      models.PaymentStatusConfirmed,
			SmsParsedID: utils.ToPtr(parsed.ID),
			Metadata:    models.PaymentMetadata{Ref: ref, SmsID: utils.ToPtr(parsed.SmsID)},
			ConfirmedAt: utils.ToPtr(now),
		}
		if err := f.paymentRepo.Save(ctx, p); err != nil {
			return nil, NewBusinessError("PAYMENT_CREATE_FAILED", "Failed to record payment", err)
		}
		payments = append(payments, p)
	}

	return payments, nil
}

func (f *SettlementFlowImpl) confirmPayment(ctx context.Context, p *models.Payment, parsed *models.ParsedPayment, intent models.PaymentIntent, ref string, now time.Time) error {
	p.Kind = intent.Kind
	p.IntentID = utils.ToPtr(intent.ID)
	p.Status = models.PaymentStatusConfirmed
	p.SmsParsedID = utils.ToPtr(parsed.ID)
	p.ConfirmedAt = utils.ToPtr(now)
	p.Metadata.Ref = ref
	p.Metadata.SmsID = utils.ToPtr(parsed.SmsID)
	if err := f.paymentRepo.Update(ctx, p); err != nil {
		return NewBusinessError("PAYMENT_CONFIRM_FAILED", "Failed to confirm payment", err)
	}
	return nil
}

func (f *SettlementFlowImpl) afterSettle(ctx context.Context, result *AttachResult, metadata *ClientMetadata) {
	if result == nil || result.AlreadySettled {
		return
	}
	mode := SettlementModeManual
	if actorID(metadata) == nil {
		mode = SettlementModeAuto
	}
	services.SMSSettlementTotal.WithLabelValues(string(result.Pointer.Kind), mode).Inc()

	paymentIDs := make([]uint, 0, len(result.Payments))
	for _, p := range result.Payments {
		paymentIDs = append(paymentIDs, p.ID)
	}
	payload := map[string]any{
		"smsId":      result.SmsID,
		"entity":     result.Pointer.String(),
		"status":     result.After.Status,
		"mode":       mode,
		"paymentIds": paymentIDs,
	}
	if result.Pass != nil {
		payload["passId"] = result.Pass.ID
	}
	f.publisher.Publish(ctx, services.EventPaymentConfirmed, payload)
}

func (f *SettlementFlowImpl) AttachSms(ctx context.Context, req *dto.AttachSmsRequest, metadata *ClientMetadata) (*dto.AttachSmsResponse, error) {
	result, err := f.Attach(ctx, AttachCommand{
		Kind:     models.IntentKind(req.Entity.Kind),
		EntityID: req.Entity.ID,
		SmsID:    req.SmsID,
		Metadata: metadata,
	})
	if err != nil {
		return nil, err
	}
	return toAttachSmsResponse(result), nil
}

func (f *SettlementFlowImpl) ManualAttach(ctx context.Context, req *dto.ManualAttachRequest, metadata *ClientMetadata) (*dto.ManualAttachResponse, error) {
	result, err := f.AttachToPayment(ctx, PaymentAttachCommand{
		PaymentID: req.PaymentID,
		SmsID:     req.SmsID,
		Metadata:  metadata,
	})
	if err != nil {
		return nil, err
	}
	return &dto.ManualAttachResponse{
		Payment:    ToPaymentItem(result.Payment),
		Settlement: toAttachSmsResponse(result.Settlement),
	}, nil
}

func toAttachSmsResponse(r *AttachResult) *dto.AttachSmsResponse {
	if r == nil {
		return nil
	}
	resp := &dto.AttachSmsResponse{
		SmsID:          r.SmsID,
		Pointer:        r.Pointer.String(),
		AlreadySettled: r.AlreadySettled,
		Entity:         ToIntentSummary(r.After),
		PassCreated:    r.PassCreated,
		Pass:           ToTicketPassItem(r.Pass),
	}
	if r.Before != nil {
		before := ToIntentSummary(*r.Before)
		resp.Before = &before
	}
	for _, p := range r.Payments {
		resp.Payments = append(resp.Payments, ToPaymentItem(p))
	}
	return resp
}
