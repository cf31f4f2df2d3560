package testing

import (
	"fmt"
	"time"

	"github.com/amirphl/momo-reconciler/models"
	"github.com/amirphl/momo-reconciler/utils"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// CreateRawSms stores an SMS in the received state
func (tf *TestFixtures) CreateRawSms(text string, receivedAt time.Time) (*models.RawSms, error) {
	sms := &models.RawSms{
		Text:         text,
		FromMsisdn:   "+250788000111",
		ReceivedAt:   receivedAt.UTC(),
		IngestStatus: models.IngestStatusReceived,
	}
	if err := tf.DB.DB.Create(sms).Error; err != nil {
		return nil, fmt.Errorf("failed to create sms: %w", err)
	}
	return sms, nil
}

// CreateParsed stores a parse for smsID
func (tf *TestFixtures) CreateParsed(smsID uint, amount int64, ref string) (*models.ParsedPayment, error) {
	parsed := &models.ParsedPayment{
		SmsID:         smsID,
		Amount:        amount,
		Currency:      utils.DefaultCurrency,
		Confidence:    0.9,
		ParserVersion: "rules:test",
		Strategy:      models.ParseStrategyRules,
	}
	if ref != "" {
		parsed.Ref = utils.ToPtr(ref)
	}
	if err := tf.DB.DB.Create(parsed).Error; err != nil {
		return nil, fmt.Errorf("failed to create parsed payment: %w", err)
	}
	return parsed, nil
}

// CreateTicketOrder stores a pending ticket order
func (tf *TestFixtures) CreateTicketOrder(total int64, createdAt time.Time) (*models.TicketOrder, error) {
	order := &models.TicketOrder{
		Total:     total,
		Status:    models.TicketOrderStatusPending,
		CreatedAt: createdAt.UTC(),
		UpdatedAt: createdAt.UTC(),
	}
	if err := tf.DB.DB.Create(order).Error; err != nil {
		return nil, fmt.Errorf("failed to create ticket order: %w", err)
	}
	return order, nil
}

// CreateInsuranceQuote stores a pending quote with a reference
func (tf *TestFixtures) CreateInsuranceQuote(premium int64, ref string, createdAt time.Time) (*models.InsuranceQuote, error) {
	quote := &models.InsuranceQuote{
		Premium:   premium,
		Status:    models.InsuranceQuoteStatusPending,
		Ref:       utils.ToPtr(ref),
		CreatedAt: createdAt.UTC(),
		UpdatedAt: createdAt.UTC(),
	}
	if err := tf.DB.DB.Create(quote).Error; err != nil {
		return nil, fmt.Errorf("failed to create insurance quote: %w", err)
	}
	return quote, nil
}

// CreatePrompt stores an inactive parser prompt
func (tf *TestFixtures) CreatePrompt(version int) (*models.SmsParserPrompt, error) {
	prompt := &models.SmsParserPrompt{
		Label:   fmt.Sprintf("prompt v%d", version),
		Body:    "Extract the amount and reference.",
		Version: version,
	}
	if err := tf.DB.DB.Create(prompt).Error; err != nil {
		return nil, fmt.Errorf("failed to create prompt: %w", err)
	}
	return prompt, nil
}
