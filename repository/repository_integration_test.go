package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/amirphl/momo-reconciler/models"
	"github.com/amirphl/momo-reconciler/repository"
	testutil "github.com/amirphl/momo-reconciler/testing"
	"github.com/amirphl/momo-reconciler/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepositoriesAgainstPostgres(t *testing.T) {
	tdb := testutil.RequireTestDB(t)
	fixtures := testutil.NewTestFixtures(tdb)
	ctx := context.Background()

	t.Run("TransitionStateIsCompareAndSet", func(t *testing.T) {
		require.NoError(t, tdb.ClearAllTables())
		repo := repository.NewRawSmsRepository(tdb.DB)
		sms, err := fixtures.CreateRawSms("You have received 25,000 RWF", utils.UTCNow())
		require.NoError(t, err)

		meta := models.SmsMetadata{Review: &models.ReviewInfo{Reason: models.ReviewReasonNoMatch, At: utils.UTCNow()}}
		ok, err := repo.TransitionState(ctx, sms.ID, []models.IngestStatus{models.IngestStatusReceived}, models.IngestStatusManualReview, meta)
		require.NoError(t, err)
		assert.True(t, ok)

		// Verify a second worker holding a stale view loses
		ok, err = repo.TransitionState(ctx, sms.ID, []models.IngestStatus{models.IngestStatusReceived}, models.IngestStatusParsed, models.SmsMetadata{})
		require.NoError(t, err)
		assert.False(t, ok)

		stored, err := repo.ByID(ctx, sms.ID)
		require.NoError(t, err)
		assert.Equal(t, models.IngestStatusManualReview, stored.IngestStatus)
		require.NotNil(t, stored.Metadata.Review)
		assert.Equal(t, models.ReviewReasonNoMatch, stored.Metadata.Review.Reason)
	})

	t.Run("MatchedEntityOnlyOverwritesCandidates", func(t *testing.T) {
		require.NoError(t, tdb.ClearAllTables())
		repo := repository.NewParsedPaymentRepository(tdb.DB)
		sms, err := fixtures.CreateRawSms("sms", utils.UTCNow())
		require.NoError(t, err)
		parsed, err := fixtures.CreateParsed(sms.ID, 25000, "TX1")
		require.NoError(t, err)

		ok, err := repo.SetMatchedEntity(ctx, parsed.ID, "candidate:ticket:1")
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = repo.SetMatchedEntity(ctx, parsed.ID, "ticket:1")
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = repo.SetMatchedEntity(ctx, parsed.ID, "shop:2")
		require.NoError(t, err)
		assert.False(t, ok)

		latest, err := repo.LatestBySmsID(ctx, sms.ID)
		require.NoError(t, err)
		assert.True(t, latest.IsSettled())
		assert.Equal(t, "ticket:1", *latest.MatchedEntity)
	})

	t.Run("IntentQueries", func(t *testing.T) {
		require.NoError(t, tdb.ClearAllTables())
		now := utils.UTCNow()
		tickets := repository.NewTicketOrderRepository(tdb.DB)
		quotes := repository.NewInsuranceQuoteRepository(tdb.DB)

		inside, err := fixtures.CreateTicketOrder(25000, now.Add(-time.Hour))
		require.NoError(t, err)
		_, err = fixtures.CreateTicketOrder(25000, now.Add(-48*time.Hour))
		require.NoError(t, err)
		_, err = fixtures.CreateTicketOrder(24000, now.Add(-time.Hour))
		require.NoError(t, err)
		quote, err := fixtures.CreateInsuranceQuote(9000, "Q-778", now.Add(-time.Hour))
		require.NoError(t, err)

		open, err := tickets.ListOpenByAmount(ctx, 25000, now.Add(-24*time.Hour), now)
		require.NoError(t, err)
		require.Len(t, open, 1)
		assert.Equal(t, inside.ID, open[0].ID)
		assert.Equal(t, models.IntentKindTicket, open[0].Kind)

		byRef, err := quotes.ListOpenByRef(ctx, "Q-778")
		require.NoError(t, err)
		require.Len(t, byRef, 1)
		assert.Equal(t, quote.ID, byRef[0].ID)

		// references compare byte for byte
		byRef, err = quotes.ListOpenByRef(ctx, "q-778")
		require.NoError(t, err)
		assert.Empty(t, byRef)

		settled, err := tickets.MarkSettled(ctx, inside.ID, "TX9", now)
		require.NoError(t, err)
		assert.Equal(t, "paid", settled.ToIntent().Status)

		open, err = tickets.ListOpenByAmount(ctx, 25000, now.Add(-24*time.Hour), now)
		require.NoError(t, err)
		assert.Empty(t, open)
	})

	t.Run("PromptActivationKeepsOneActive", func(t *testing.T) {
		require.NoError(t, tdb.ClearAllTables())
		repo := repository.NewSmsParserPromptRepository(tdb.DB)
		first, err := fixtures.CreatePrompt(1)
		require.NoError(t, err)
		second, err := fixtures.CreatePrompt(2)
		require.NoError(t, err)

		require.NoError(t, repo.Activate(ctx, first.ID))
		require.NoError(t, repo.Activate(ctx, second.ID))

		active, err := repo.Active(ctx)
		require.NoError(t, err)
		assert.Equal(t, second.ID, active.ID)

		latest, err := repo.LatestVersion(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, latest)
	})

	t.Run("TransactorRollsBack", func(t *testing.T) {
		require.NoError(t, tdb.ClearAllTables())
		tx := repository.NewTransactor(tdb.DB)
		smsRepo := repository.NewRawSmsRepository(tdb.DB)

		sentinel := errors.New("abort")
		var id uint
		err := tx.WithTransaction(ctx, func(txCtx context.Context) error {
			sms := &models.RawSms{Text: "x", FromMsisdn: "unknown", ReceivedAt: utils.UTCNow(), IngestStatus: models.IngestStatusReceived}
			if err := smsRepo.Save(txCtx, sms); err != nil {
				return err
			}
			id = sms.ID
			return sentinel
		})
		require.ErrorIs(t, err, sentinel)

		stored, err := smsRepo.ByID(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, stored)
	})

	t.Run("AuditLogIsAppendOnly", func(t *testing.T) {
		repo := repository.NewAuditLogRepository(tdb.DB)
		entry := &models.AuditLog{Action: models.AuditActionSmsManualRetry, EntityType: "sms_raw", EntityID: "1", Success: utils.ToPtr(true)}
		require.NoError(t, repo.Save(ctx, entry))

		err := tdb.DB.Model(&models.AuditLog{}).Where("id = ?", entry.ID).Update("action", "tampered").Error
		assert.Error(t, err)

		logs, err := repo.List(ctx, models.AuditLogFilter{EntityID: utils.ToPtr("1")})
		require.NoError(t, err)
		require.NotEmpty(t, logs)
		assert.Equal(t, models.AuditActionSmsManualRetry, logs[0].Action)
	})
}
