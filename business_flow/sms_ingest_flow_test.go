package businessflow

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/amirphl/momo-reconciler/app/dto"
	"github.com/amirphl/momo-reconciler/app/jobqueue"
	"github.com/amirphl/momo-reconciler/app/services"
	"github.com/amirphl/momo-reconciler/models"
	"github.com/amirphl/momo-reconciler/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSmsIngestReceive(t *testing.T) {
	ctx := context.Background()
	meta := NewClientMetadata("10.1.1.1", "gateway/1.0")

	t.Run("StoresAndEnqueues", func(t *testing.T) {
		h := newHarness()
		resp, err := h.ingest.Receive(ctx, &dto.SmsWebhookRequest{
			Text:    "You have received 25,000 RWF. Ref: MOMO12345",
			From:    "0788 000 111",
			To:      "+250 722 000 999",
			ModemID: "modem-a",
			SimSlot: utils.ToPtr(1),
		}, testWebhookToken, meta)
		require.NoError(t, err)
		require.NotZero(t, resp.ID)

		sms := h.store.sms[resp.ID]
		assert.Equal(t, "+250788000111", sms.FromMsisdn)
		require.NotNil(t, sms.ToMsisdn)
		assert.Equal(t, "+250722000999", *sms.ToMsisdn)
		assert.Equal(t, models.IngestStatusReceived, sms.IngestStatus)
		assert.Equal(t, "modem-a", sms.Metadata.ModemID)
		assert.Equal(t, 1, *sms.Metadata.SimSlot)
		assert.WithinDuration(t, time.Now(), sms.ReceivedAt, 5*time.Second)

		assert.Equal(t, []uint{resp.ID}, h.queue.enqueued)
		assert.False(t, h.queue.opts[0].RemoveOnComplete)
		require.Equal(t, []string{services.EventSMSReceived}, h.publisher.types())
		assert.NotContains(t, h.publisher.events[0].Payload["from"], "000111")
	})

	t.Run("MissingSenderIsUnknown", func(t *testing.T) {
		h := newHarness()
		resp, err := h.ingest.Receive(ctx, &dto.SmsWebhookRequest{Text: "25,000 RWF"}, testWebhookToken, meta)
		require.NoError(t, err)
		assert.Equal(t, "unknown", h.store.sms[resp.ID].FromMsisdn)
		assert.Nil(t, h.store.sms[resp.ID].ToMsisdn)
	})

	t.Run("AcceptsRFC3339AndEpoch", func(t *testing.T) {
		h := newHarness()
		resp, err := h.ingest.Receive(ctx, &dto.SmsWebhookRequest{Text: "x", ReceivedAt: "2026-03-01T10:00:00+02:00"}, testWebhookToken, meta)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC), h.store.sms[resp.ID].ReceivedAt)

		resp, err = h.ingest.Receive(ctx, &dto.SmsWebhookRequest{Text: "x", ReceivedAt: "1772352000"}, testWebhookToken, meta)
		require.NoError(t, err)
		assert.Equal(t, time.Unix(1772352000, 0).UTC(), h.store.sms[resp.ID].ReceivedAt)

		resp, err = h.ingest.Receive(ctx, &dto.SmsWebhookRequest{Text: "x", ReceivedAt: "1772352000123"}, testWebhookToken, meta)
		require.NoError(t, err)
		assert.Equal(t, time.UnixMilli(1772352000123).UTC(), h.store.sms[resp.ID].ReceivedAt)
	})

	t.Run("RejectsBadToken", func(t *testing.T) {
		h := newHarness()
		_, err := h.ingest.Receive(ctx, &dto.SmsWebhookRequest{Text: "25,000 RWF"}, "wrong", meta)
		require.Error(t, err)
		assert.True(t, IsUnauthorized(err))
		assert.True(t, IsInvalidWebhookToken(err))
		assert.Empty(t, h.store.sms)
		assert.Empty(t, h.queue.enqueued)
	})

	t.Run("RejectsEverythingWithoutConfiguredToken", func(t *testing.T) {
		h := newHarness()
		cfg := h.cfg
		cfg.WebhookToken = ""
		flow := NewSmsIngestFlow(h.store, memSmsRepo{s: h.store}, memParsedRepo{s: h.store}, memPaymentRepo{s: h.store},
			h.parser, h.matcher, h.settlement, h.queue, h.publisher, cfg, nil)
		_, err := flow.Receive(ctx, &dto.SmsWebhookRequest{Text: "25,000 RWF"}, "", meta)
		assert.True(t, IsUnauthorized(err))
	})

	t.Run("ValidatesInput", func(t *testing.T) {
		h := newHarness()
		cases := []struct {
			name string
			req  dto.SmsWebhookRequest
			want error
		}{
			{"BlankText", dto.SmsWebhookRequest{Text: "   "}, ErrSMSTextRequired},
			{"MalformedFrom", dto.SmsWebhookRequest{Text: "x", From: "12"}, ErrInvalidPhoneNumber},
			{"MalformedTo", dto.SmsWebhookRequest{Text: "x", To: "abc"}, ErrInvalidPhoneNumber},
			{"MalformedReceivedAt", dto.SmsWebhookRequest{Text: "x", ReceivedAt: "yesterday"}, ErrInvalidReceivedAt},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				req := tc.req
				_, err := h.ingest.Receive(ctx, &req, testWebhookToken, meta)
				assert.ErrorIs(t, err, tc.want)
				assert.True(t, IsValidationFailed(err))
			})
		}
		assert.Empty(t, h.store.sms)
	})

	t.Run("EnqueueFailureSurfacesForReview", func(t *testing.T) {
		h := newHarness()
		h.queue.err = errors.New("redis down")

		resp, err := h.ingest.Receive(ctx, &dto.SmsWebhookRequest{Text: "25,000 RWF"}, testWebhookToken, meta)
		require.NoError(t, err)

		sms := h.store.sms[resp.ID]
		assert.Equal(t, models.IngestStatusError, sms.IngestStatus)
		require.NotNil(t, sms.Metadata.Review)
		assert.Equal(t, models.ReviewReasonExhausted, sms.Metadata.Review.Reason)
	})
}

func TestSmsIngestProcess(t *testing.T) {
	ctx := context.Background()

	t.Run("AutoSettlesSingleRefMatch", func(t *testing.T) {
		h := newHarness()
		now := utils.UTCNow()
		order := h.store.addIntent(models.IntentKindTicket, 25000, utils.ToPtr("MOMO12345"), now.Add(-time.Hour))
		sms := h.store.addSms("25,000 RWF Ref: MOMO12345", models.IngestStatusReceived, now)
		h.parser.result = parseResult(25000, "MOMO12345", 0.95)

		require.NoError(t, h.ingest.Process(ctx, sms.ID, 1))

		assert.Equal(t, "paid", h.store.intent(models.IntentKindTicket, order.ID).Status)
		assert.Equal(t, models.IngestStatusParsed, h.store.sms[sms.ID].IngestStatus)
		assert.Equal(t, 1, h.store.passesFor(order.ID))

		parsed := h.store.parsedFor(sms.ID)
		require.Len(t, parsed, 1)
		assert.True(t, parsed[0].IsSettled())
		assert.Equal(t, []string{fmt.Sprintf("ticket:%d", order.ID)}, []string(parsed[0].Candidates))

		// Audit carries no actor for pipeline settlements
		for _, a := range h.store.audits {
			assert.Nil(t, a.ActorAdminID)
		}
		require.Contains(t, h.publisher.types(), services.EventPaymentConfirmed)
		for _, e := range h.publisher.events {
			if e.Type == services.EventPaymentConfirmed {
				assert.Equal(t, SettlementModeAuto, e.Payload["mode"])
			}
		}
	})

	t.Run("RefMatchWithDifferentAmountGoesToReview", func(t *testing.T) {
		h := newHarness()
		now := utils.UTCNow()
		order := h.store.addIntent(models.IntentKindTicket, 25050, utils.ToPtr("MOMO12345"), now.Add(-time.Hour))
		sms := h.store.addSms("25,000 RWF Ref: MOMO12345", models.IngestStatusReceived, now)
		h.parser.result = parseResult(25000, "MOMO12345", 0.95)

		require.NoError(t, h.ingest.Process(ctx, sms.ID, 1))

		assert.Equal(t, "pending", h.store.intent(models.IntentKindTicket, order.ID).Status)
		assert.Zero(t, h.store.passesFor(order.ID))

		stored := h.store.sms[sms.ID]
		assert.Equal(t, models.IngestStatusManualReview, stored.IngestStatus)
		require.NotNil(t, stored.Metadata.Review)
		assert.Equal(t, models.ReviewReasonAmountMismatch, stored.Metadata.Review.Reason)
		assert.Equal(t, []string{fmt.Sprintf("ticket:%d", order.ID)}, stored.Metadata.Review.Candidates)

		parsed := h.store.parsedFor(sms.ID)
		require.Len(t, parsed, 1)
		assert.False(t, parsed[0].IsSettled())
		assert.NotContains(t, h.publisher.types(), services.EventPaymentConfirmed)
	})

	t.Run("LowConfidenceNeverAutoSettles", func(t *testing.T) {
		h := newHarness()
		now := utils.UTCNow()
		order := h.store.addIntent(models.IntentKindTicket, 25000, utils.ToPtr("MOMO12345"), now.Add(-time.Hour))
		sms := h.store.addSms("garbled 25000 MOMO12345", models.IngestStatusReceived, now)
		h.parser.result = parseResult(25000, "MOMO12345", 0.3)

		require.NoError(t, h.ingest.Process(ctx, sms.ID, 1))

		assert.Equal(t, "pending", h.store.intent(models.IntentKindTicket, order.ID).Status)
		stored := h.store.sms[sms.ID]
		assert.Equal(t, models.IngestStatusManualReview, stored.IngestStatus)
		require.NotNil(t, stored.Metadata.Review)
		assert.Equal(t, models.ReviewReasonLowConfidence, stored.Metadata.Review.Reason)
		assert.InDelta(t, 0.3, *stored.Metadata.Review.Confidence, 1e-9)

		payments := h.store.paymentsFor(sms.ID)
		require.Len(t, payments, 1)
		assert.Equal(t, models.PaymentStatusManualReview, payments[0].Status)
		assert.Equal(t, models.IntentKindTicket, payments[0].Kind)
		assert.Equal(t, order.ID, *payments[0].IntentID)
		assert.Equal(t, string(models.ReviewReasonLowConfidence), payments[0].Metadata.ManualReason)

		parsed := h.store.parsedFor(sms.ID)
		require.Len(t, parsed, 1)
		assert.False(t, parsed[0].IsSettled())
		assert.Equal(t, fmt.Sprintf("candidate:ticket:%d", order.ID), *parsed[0].MatchedEntity)
		assert.Contains(t, h.publisher.types(), services.EventSMSManualReview)
	})

	t.Run("TwoAmountCandidatesAreAmbiguous", func(t *testing.T) {
		h := newHarness()
		now := utils.UTCNow()
		older := h.store.addIntent(models.IntentKindShop, 25000, nil, now.Add(-30*time.Minute))
		newer := h.store.addIntent(models.IntentKindShop, 25000, nil, now.Add(-5*time.Minute))
		sms := h.store.addSms("You have received 25,000 RWF", models.IngestStatusReceived, now)
		h.parser.result = parseResult(25000, "", 0.95)

		require.NoError(t, h.ingest.Process(ctx, sms.ID, 1))

		assert.Equal(t, "pending", h.store.intent(models.IntentKindShop, older.ID).Status)
		assert.Equal(t, "pending", h.store.intent(models.IntentKindShop, newer.ID).Status)

		stored := h.store.sms[sms.ID]
		assert.Equal(t, models.IngestStatusManualReview, stored.IngestStatus)
		assert.Equal(t, models.ReviewReasonAmbiguous, stored.Metadata.Review.Reason)
		assert.Equal(t, []string{
			fmt.Sprintf("shop:%d", newer.ID),
			fmt.Sprintf("shop:%d", older.ID),
		}, stored.Metadata.Review.Candidates)

		payments := h.store.paymentsFor(sms.ID)
		require.Len(t, payments, 1)
		assert.Equal(t, models.IntentKindUnassigned, payments[0].Kind)
		assert.Nil(t, payments[0].IntentID)
	})

	t.Run("SingleAmountCandidateIsAdvisory", func(t *testing.T) {
		h := newHarness()
		now := utils.UTCNow()
		quote := h.store.addIntent(models.IntentKindQuote, 40000, nil, now.Add(-2*time.Hour))
		h.store.addIntent(models.IntentKindQuote, 40050, nil, now.Add(-time.Hour))
		sms := h.store.addSms("40,000 RWF received", models.IngestStatusReceived, now)
		h.parser.result = parseResult(40000, "", 0.95)

		require.NoError(t, h.ingest.Process(ctx, sms.ID, 1))

		stored := h.store.sms[sms.ID]
		assert.Equal(t, models.IngestStatusManualReview, stored.IngestStatus)
		assert.Equal(t, models.ReviewReasonAmountOnly, stored.Metadata.Review.Reason)
		assert.Equal(t, []string{fmt.Sprintf("quote:%d", quote.ID)}, stored.Metadata.Review.Candidates)
		assert.Equal(t, "pending", h.store.intent(models.IntentKindQuote, quote.ID).Status)
	})

	t.Run("NoCandidates", func(t *testing.T) {
		h := newHarness()
		now := utils.UTCNow()
		h.store.addIntent(models.IntentKindDeposit, 24950, nil, now.Add(-time.Hour))
		h.store.addIntent(models.IntentKindDeposit, 25050, nil, now.Add(-time.Hour))
		h.store.addIntent(models.IntentKindDeposit, 25000, nil, now.Add(-48*time.Hour))
		sms := h.store.addSms("25,000 RWF", models.IngestStatusReceived, now)
		h.parser.result = parseResult(25000, "", 0.95)

		require.NoError(t, h.ingest.Process(ctx, sms.ID, 1))

		stored := h.store.sms[sms.ID]
		assert.Equal(t, models.ReviewReasonNoMatch, stored.Metadata.Review.Reason)
		assert.Empty(t, stored.Metadata.Review.Candidates)
		assert.Empty(t, h.store.parsedFor(sms.ID)[0].Candidates)
	})

	t.Run("AutoSettleDisabled", func(t *testing.T) {
		h := newHarness()
		cfg := h.cfg
		cfg.AutoSettle = false
		flow := NewSmsIngestFlow(h.store, memSmsRepo{s: h.store}, memParsedRepo{s: h.store}, memPaymentRepo{s: h.store},
			h.parser, h.matcher, h.settlement, h.queue, h.publisher, cfg, nil)
		now := utils.UTCNow()
		order := h.store.addIntent(models.IntentKindTicket, 25000, utils.ToPtr("MOMO12345"), now.Add(-time.Hour))
		sms := h.store.addSms("25,000 RWF Ref: MOMO12345", models.IngestStatusReceived, now)
		h.parser.result = parseResult(25000, "MOMO12345", 0.95)

		require.NoError(t, flow.Process(ctx, sms.ID, 1))
		assert.Equal(t, "pending", h.store.intent(models.IntentKindTicket, order.ID).Status)
		assert.Equal(t, models.IngestStatusManualReview, h.store.sms[sms.ID].IngestStatus)
	})

	t.Run("SettlementFailureRoutesToReview", func(t *testing.T) {
		h := newHarness()
		now := utils.UTCNow()
		order := h.store.addIntent(models.IntentKindTicket, 25000, utils.ToPtr("MOMO12345"), now.Add(-time.Hour))
		sms := h.store.addSms("25,000 RWF Ref: MOMO12345", models.IngestStatusReceived, now)
		h.parser.result = parseResult(25000, "MOMO12345", 0.95)
		h.store.failAudit = models.AuditActionTicketOrderAttachSms

		require.NoError(t, h.ingest.Process(ctx, sms.ID, 1))

		assert.Equal(t, "pending", h.store.intent(models.IntentKindTicket, order.ID).Status)
		assert.Equal(t, 0, h.store.passesFor(order.ID))
		stored := h.store.sms[sms.ID]
		assert.Equal(t, models.IngestStatusManualReview, stored.IngestStatus)
		assert.Equal(t, models.ReviewReasonSettlementFailed, stored.Metadata.Review.Reason)
		assert.NotEmpty(t, stored.Metadata.Review.Note)
		assert.Len(t, h.store.parsedFor(sms.ID), 1)
	})

	t.Run("NoPaymentFoundRetriesOnceThenErrors", func(t *testing.T) {
		h := newHarness()
		sms := h.store.addSms("Your airtime balance is low", models.IngestStatusReceived, utils.UTCNow())
		h.parser.err = services.ErrNoPaymentFound

		err := h.ingest.Process(ctx, sms.ID, 1)
		require.Error(t, err)
		assert.False(t, jobqueue.IsPermanent(err))
		assert.Equal(t, models.IngestStatusReceived, h.store.sms[sms.ID].IngestStatus)
		assert.Equal(t, 1, h.store.sms[sms.ID].Metadata.ParseFailures)

		require.NoError(t, h.ingest.Process(ctx, sms.ID, 2))
		stored := h.store.sms[sms.ID]
		assert.Equal(t, models.IngestStatusError, stored.IngestStatus)
		assert.Equal(t, 2, stored.Metadata.ParseFailures)
		assert.Equal(t, models.ReviewReasonParseFailed, stored.Metadata.Review.Reason)
		assert.Empty(t, h.store.parsedFor(sms.ID))
	})

	t.Run("TransientErrorIsRetried", func(t *testing.T) {
		h := newHarness()
		sms := h.store.addSms("25,000 RWF", models.IngestStatusReceived, utils.UTCNow())
		h.parser.err = fmt.Errorf("model extractor: %w", services.ErrTransient)

		err := h.ingest.Process(ctx, sms.ID, 1)
		require.Error(t, err)
		assert.ErrorIs(t, err, services.ErrTransient)
		assert.Equal(t, models.IngestStatusReceived, h.store.sms[sms.ID].IngestStatus)
		assert.Zero(t, h.store.sms[sms.ID].Metadata.ParseFailures)
	})

	t.Run("SkipsSmsNotAwaitingParse", func(t *testing.T) {
		h := newHarness()
		sms := h.store.addSms("25,000 RWF", models.IngestStatusManualReview, utils.UTCNow())

		require.NoError(t, h.ingest.Process(ctx, sms.ID, 1))
		assert.Zero(t, h.parser.calls)
	})

	t.Run("MissingSmsIsPermanent", func(t *testing.T) {
		h := newHarness()
		err := h.ingest.Process(ctx, 404, 1)
		assert.True(t, jobqueue.IsPermanent(err))
		assert.True(t, IsSMSNotFound(err))
	})
}

func TestSmsIngestOnExhausted(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	sms := h.store.addSms("25,000 RWF", models.IngestStatusReceived, utils.UTCNow())

	h.ingest.OnExhausted(ctx, sms.ID, errors.New("model extractor: context deadline exceeded"))

	stored := h.store.sms[sms.ID]
	assert.Equal(t, models.IngestStatusError, stored.IngestStatus)
	require.NotNil(t, stored.Metadata.Review)
	assert.Equal(t, models.ReviewReasonExhausted, stored.Metadata.Review.Reason)
	assert.Contains(t, stored.Metadata.Review.Note, "deadline exceeded")

	// A settled SMS is left alone
	settled := h.store.addSms("x", models.IngestStatusParsed, utils.UTCNow())
	h.ingest.OnExhausted(ctx, settled.ID, errors.New("late"))
	assert.Equal(t, models.IngestStatusParsed, h.store.sms[settled.ID].IngestStatus)
}
