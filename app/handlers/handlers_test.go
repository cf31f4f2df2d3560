package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/amirphl/momo-reconciler/app/dto"
	businessflow "github.com/amirphl/momo-reconciler/business_flow"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hookToken = "hook-token-0123456789"

type stubIngest struct {
	received *dto.SmsWebhookRequest
	meta     *businessflow.ClientMetadata
	err      error
}

func (s *stubIngest) Authorize(token string) error {
	if token != hookToken {
		return businessflow.ErrInvalidWebhookToken
	}
	return nil
}

func (s *stubIngest) Receive(_ context.Context, req *dto.SmsWebhookRequest, _ string, meta *businessflow.ClientMetadata) (*dto.SmsWebhookResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.received = req
	s.meta = meta
	return &dto.SmsWebhookResponse{ID: 42}, nil
}

func (s *stubIngest) Process(context.Context, uint, int) error { return nil }

func (s *stubIngest) OnExhausted(context.Context, uint, error) {}

type stubReview struct {
	businessflow.ManualReviewFlow
	lastLimit    int
	lastLookback int
	err          error
}

func (s *stubReview) ListManual(_ context.Context, req *dto.ListSmsRequest) (*dto.ListSmsResponse, error) {
	s.lastLimit = req.Limit
	return &dto.ListSmsResponse{Items: []dto.SmsItem{}, Limit: 50}, s.err
}

func (s *stubReview) Retry(_ context.Context, smsID uint, _ *businessflow.ClientMetadata) (*dto.RetrySmsResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &dto.RetrySmsResponse{Status: businessflow.RetryStatusQueued, SmsID: smsID}, nil
}

func (s *stubReview) Dismiss(_ context.Context, smsID uint, req *dto.DismissSmsRequest, _ *businessflow.ClientMetadata) (*dto.DismissSmsResponse, error) {
	return &dto.DismissSmsResponse{Status: businessflow.DismissStatusResolved, SmsID: smsID, IngestStatus: "error"}, s.err
}

func (s *stubReview) Candidates(_ context.Context, smsID uint, lookback int) (*dto.SmsCandidatesResponse, error) {
	s.lastLookback = lookback
	if s.err != nil {
		return nil, s.err
	}
	return &dto.SmsCandidatesResponse{SmsID: smsID, LookbackMinutes: lookback}, nil
}

type stubSettlement struct {
	businessflow.SettlementFlow
	res *dto.AttachSmsResponse
	err error
}

func (s *stubSettlement) AttachSms(context.Context, *dto.AttachSmsRequest, *businessflow.ClientMetadata) (*dto.AttachSmsResponse, error) {
	return s.res, s.err
}

func newTestApp(ingest *stubIngest, review *stubReview, settlement *stubSettlement) *fiber.App {
	app := fiber.New()
	webhook := NewSmsWebhookHandler(ingest)
	admin := NewSmsAdminHandler(review, settlement)
	app.Post("/sms/webhook", webhook.Receive)
	app.Get("/sms/manual", admin.ListManual)
	app.Get("/sms/manual/:smsId/candidates", admin.Candidates)
	app.Post("/sms/manual/:smsId/retry", admin.Retry)
	app.Post("/sms/manual/:smsId/dismiss", admin.Dismiss)
	app.Post("/sms/attach", admin.Attach)
	return app
}

func doRequest(t *testing.T, app *fiber.App, method, target, body string, headers map[string]string) (int, dto.APIResponse) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out dto.APIResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func errorCode(t *testing.T, res dto.APIResponse) string {
	t.Helper()
	detail, ok := res.Error.(map[string]any)
	require.True(t, ok)
	return detail["code"].(string)
}

func TestSmsWebhookHandler(t *testing.T) {
	t.Run("AcceptsWithHeaderToken", func(t *testing.T) {
		ingest := &stubIngest{}
		app := newTestApp(ingest, &stubReview{}, &stubSettlement{})

		status, res := doRequest(t, app, http.MethodPost, "/sms/webhook",
			`{"text":"You have received 25,000 RWF","from":"0788000111","receivedAt":"2026-05-04T10:00:00Z","simSlot":1}`,
			map[string]string{"X-Webhook-Token": hookToken, "User-Agent": "gateway/1"})
		assert.Equal(t, http.StatusAccepted, status)
		assert.True(t, res.Success)
		assert.Equal(t, float64(42), res.Data.(map[string]any)["id"])
		require.NotNil(t, ingest.received)
		assert.Equal(t, 1, *ingest.received.SimSlot)
		assert.Equal(t, "gateway/1", ingest.meta.UserAgent)
		assert.Nil(t, ingest.meta.ActorID)
	})

	t.Run("AcceptsQueryToken", func(t *testing.T) {
		app := newTestApp(&stubIngest{}, &stubReview{}, &stubSettlement{})

		status, _ := doRequest(t, app, http.MethodPost, "/sms/webhook?token="+hookToken, `{"text":"hi"}`, nil)
		assert.Equal(t, http.StatusAccepted, status)
	})

	t.Run("RejectsBadTokenBeforeValidating", func(t *testing.T) {
		ingest := &stubIngest{}
		app := newTestApp(ingest, &stubReview{}, &stubSettlement{})

		status, res := doRequest(t, app, http.MethodPost, "/sms/webhook", `{}`, map[string]string{"X-Webhook-Token": "nope"})
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "INVALID_WEBHOOK_TOKEN", errorCode(t, res))
		assert.Nil(t, ingest.received)
	})

	t.Run("MissingText", func(t *testing.T) {
		app := newTestApp(&stubIngest{}, &stubReview{}, &stubSettlement{})

		status, res := doRequest(t, app, http.MethodPost, "/sms/webhook", `{"from":"0788000111"}`, map[string]string{"X-Webhook-Token": hookToken})
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "VALIDATION_ERROR", errorCode(t, res))
	})

	t.Run("FlowValidationIsBadRequest", func(t *testing.T) {
		app := newTestApp(&stubIngest{err: businessflow.ErrInvalidReceivedAt}, &stubReview{}, &stubSettlement{})

		status, res := doRequest(t, app, http.MethodPost, "/sms/webhook", `{"text":"x","receivedAt":"yesterday"}`, map[string]string{"X-Webhook-Token": hookToken})
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "VALIDATION_FAILED", errorCode(t, res))
	})
}

func TestSmsAdminHandler(t *testing.T) {
	t.Run("ListPassesLimit", func(t *testing.T) {
		review := &stubReview{}
		app := newTestApp(&stubIngest{}, review, &stubSettlement{})

		status, _ := doRequest(t, app, http.MethodGet, "/sms/manual?limit=500", "", nil)
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, 500, review.lastLimit)

		status, res := doRequest(t, app, http.MethodGet, "/sms/manual?limit=-1", "", nil)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "INVALID_LIMIT", errorCode(t, res))
	})

	t.Run("CandidatesLookback", func(t *testing.T) {
		review := &stubReview{}
		app := newTestApp(&stubIngest{}, review, &stubSettlement{})

		status, _ := doRequest(t, app, http.MethodGet, "/sms/manual/7/candidates?lookback=120", "", nil)
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, 120, review.lastLookback)

		status, _ = doRequest(t, app, http.MethodGet, "/sms/manual/7/candidates?lookback=soon", "", nil)
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("RetryStatusMapping", func(t *testing.T) {
		tests := []struct {
			name   string
			err    error
			status int
		}{
			{"NotFound", businessflow.ErrSMSNotFound, http.StatusNotFound},
			{"Settled", businessflow.ErrSMSAlreadySettled, http.StatusConflict},
			{"InFlight", businessflow.ErrRetryInFlight, http.StatusBadRequest},
			{"Unexpected", businessflow.NewBusinessError("QUEUE_ENQUEUE_FAILED", "Failed to queue sms", context.DeadlineExceeded), http.StatusInternalServerError},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				app := newTestApp(&stubIngest{}, &stubReview{err: tt.err}, &stubSettlement{})

				status, res := doRequest(t, app, http.MethodPost, "/sms/manual/3/retry", "", nil)
				assert.Equal(t, tt.status, status)
				assert.False(t, res.Success)
			})
		}
	})

	t.Run("RetryQueued", func(t *testing.T) {
		app := newTestApp(&stubIngest{}, &stubReview{}, &stubSettlement{})

		status, res := doRequest(t, app, http.MethodPost, "/sms/manual/3/retry", "", nil)
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "queued", res.Data.(map[string]any)["status"])
	})

	t.Run("RetryRejectsBadID", func(t *testing.T) {
		app := newTestApp(&stubIngest{}, &stubReview{}, &stubSettlement{})

		status, res := doRequest(t, app, http.MethodPost, "/sms/manual/abc/retry", "", nil)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "INVALID_SMS_ID", errorCode(t, res))
	})

	t.Run("DismissValidatesResolution", func(t *testing.T) {
		app := newTestApp(&stubIngest{}, &stubReview{}, &stubSettlement{})

		status, _ := doRequest(t, app, http.MethodPost, "/sms/manual/3/dismiss", `{"resolution":"forget"}`, nil)
		assert.Equal(t, http.StatusBadRequest, status)

		status, res := doRequest(t, app, http.MethodPost, "/sms/manual/3/dismiss", `{"resolution":"discard","note":"test message"}`, nil)
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "resolved", res.Data.(map[string]any)["status"])
	})

	t.Run("AttachConflict", func(t *testing.T) {
		app := newTestApp(&stubIngest{}, &stubReview{}, &stubSettlement{err: businessflow.ErrSMSAlreadyMatched})

		status, res := doRequest(t, app, http.MethodPost, "/sms/attach", `{"smsId":1,"entity":{"kind":"ticket","id":9}}`, nil)
		assert.Equal(t, http.StatusConflict, status)
		assert.Equal(t, "ALREADY_MATCHED", errorCode(t, res))
	})

	t.Run("AttachRejectsUnknownKind", func(t *testing.T) {
		app := newTestApp(&stubIngest{}, &stubReview{}, &stubSettlement{})

		status, _ := doRequest(t, app, http.MethodPost, "/sms/attach", `{"smsId":1,"entity":{"kind":"membership","id":9}}`, nil)
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("AttachIdempotentMessage", func(t *testing.T) {
		settlement := &stubSettlement{res: &dto.AttachSmsResponse{SmsID: 1, Pointer: "ticket_orders:9", AlreadySettled: true}}
		app := newTestApp(&stubIngest{}, &stubReview{}, settlement)

		status, res := doRequest(t, app, http.MethodPost, "/sms/attach", `{"smsId":1,"entity":{"kind":"ticket","id":9}}`, nil)
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "SMS already attached to this entity", res.Message)
	})
}
