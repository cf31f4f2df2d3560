package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/amirphl/momo-reconciler/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubExtractor struct {
	name   string
	result *Extraction
	err    error
	calls  int
}

func (s *stubExtractor) Name() string { return s.name }

func (s *stubExtractor) Extract(context.Context, string) (*Extraction, error) {
	s.calls++
	return s.result, s.err
}

func newTestRules(t *testing.T) *RulesExtractor {
	t.Helper()
	rules, err := NewRulesExtractor()
	require.NoError(t, err)
	return rules
}

func TestRulesExtractor_Templates(t *testing.T) {
	rules := newTestRules(t)

	tests := []struct {
		name       string
		text       string
		amount     int64
		currency   string
		ref        string
		confidence float64
		template   string
	}{
		{
			name:       "mtn received",
			text:       "You have received 25,000 RWF from JOHN DOE (*********123) on your mobile money account at 2024-05-01 10:00:00. Your new balance:125,000 RWF. Financial Transaction Id: 1234567890.",
			amount:     25000,
			currency:   "RWF",
			ref:        "1234567890.",
			confidence: 0.95,
			template:   "mtn_momo_received",
		},
		{
			name:       "mtn txid first",
			text:       "*162*TxId:10234567890*S*You have received 5000 RWF from Jean Bosco (*********456) at 2024-05-01 08:12:45.",
			amount:     5000,
			currency:   "RWF",
			ref:        "10234567890",
			confidence: 0.95,
			template:   "mtn_momo_txid_first",
		},
		{
			name:       "airtel received",
			text:       "You have received RWF 5,000 from 0731234567 JOHN. Trans ID: CI240501.1200.A12345. New balance RWF 10,000.",
			amount:     5000,
			currency:   "RWF",
			ref:        "CI240501.1200.A12345.",
			confidence: 0.95,
			template:   "airtel_money_received",
		},
		{
			name:       "generic heuristic",
			text:       "Payment 12,500 FRW Ref: TKT-88",
			amount:     12500,
			currency:   "FRW",
			ref:        "TKT-88",
			confidence: 0.45,
			template:   "generic_amount_ref",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := rules.Extract(context.Background(), tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.amount, got.Amount)
			assert.Equal(t, tt.currency, got.Currency)
			assert.Equal(t, tt.ref, got.Ref)
			assert.Equal(t, tt.confidence, got.Confidence)
			assert.Equal(t, "rules:v1", got.Version)
			assert.Equal(t, tt.template, got.RawFields["template"])
		})
	}
}

func TestRulesExtractor_NoMatch(t *testing.T) {
	rules := newTestRules(t)

	_, err := rules.Extract(context.Background(), "Your airtime bundle expires tomorrow")
	assert.ErrorIs(t, err, ErrNoPaymentFound)
}

func TestNewRulesExtractorFromYAML_Invalid(t *testing.T) {
	_, err := NewRulesExtractorFromYAML([]byte("templates: []"))
	assert.Error(t, err)

	_, err = NewRulesExtractorFromYAML([]byte("templates:\n  - name: bad\n    pattern: '(?P<ref>x'\n"))
	assert.Error(t, err)

	_, err = NewRulesExtractorFromYAML([]byte("templates:\n  - name: no_amount\n    pattern: 'RWF'\n"))
	assert.Error(t, err)
}

func TestChainParser_RulesFirst(t *testing.T) {
	model := &stubExtractor{name: "model"}
	parser := NewSMSParser(newTestRules(t), model, nil)

	res, err := parser.Parse(context.Background(), ParseInput{
		Text:       "Payment 12,500 RWF Ref: tkt-88.",
		From:       "+250788123456",
		ReceivedAt: time.Now(),
	})
	require.NoError(t, err)

	assert.Equal(t, 0, model.calls)
	assert.Equal(t, int64(12500), res.Amount)
	assert.Equal(t, "RWF", res.Currency)
	require.NotNil(t, res.Ref)
	assert.Equal(t, "TKT-88", *res.Ref)
	require.NotNil(t, res.PayerMask)
	assert.Equal(t, "+250788123***", *res.PayerMask)
	assert.Equal(t, models.ParseStrategyRules, res.Strategy)
}

func TestChainParser_FallsBackToModel(t *testing.T) {
	model := &stubExtractor{name: "model", result: &Extraction{
		Amount:     3000,
		Ref:        " abc123 ",
		Confidence: 1.7,
		Version:    "model:gpt-4o-mini",
	}}
	parser := NewSMSParser(newTestRules(t), model, nil)

	res, err := parser.Parse(context.Background(), ParseInput{Text: "Umaze kwakira amafaranga", From: "unknown"})
	require.NoError(t, err)

	assert.Equal(t, 1, model.calls)
	assert.Equal(t, int64(3000), res.Amount)
	assert.Equal(t, "RWF", res.Currency)
	assert.Equal(t, 1.0, res.Confidence)
	require.NotNil(t, res.Ref)
	assert.Equal(t, "ABC123", *res.Ref)
	assert.Nil(t, res.PayerMask)
	assert.Equal(t, models.ParseStrategyModel, res.Strategy)
}

func TestChainParser_NoStrategyMatches(t *testing.T) {
	model := &stubExtractor{name: "model", err: ErrNoPaymentFound}
	parser := NewSMSParser(newTestRules(t), model, nil)

	_, err := parser.Parse(context.Background(), ParseInput{Text: "hello there"})
	assert.ErrorIs(t, err, ErrNoPaymentFound)

	_, err = parser.Parse(context.Background(), ParseInput{Text: "   "})
	assert.ErrorIs(t, err, ErrNoPaymentFound)
}

func TestChainParser_TransientPropagates(t *testing.T) {
	model := &stubExtractor{name: "model", err: errors.Join(ErrTransient, errors.New("503"))}
	parser := NewSMSParser(newTestRules(t), model, nil)

	_, err := parser.Parse(context.Background(), ParseInput{Text: "no amounts here"})
	assert.ErrorIs(t, err, ErrTransient)
}

func TestChainParser_WithoutModel(t *testing.T) {
	parser := NewSMSParser(newTestRules(t), nil, nil)

	_, err := parser.Parse(context.Background(), ParseInput{Text: "no amounts here"})
	assert.ErrorIs(t, err, ErrNoPaymentFound)
}

func TestClampConfidence(t *testing.T) {
	assert.Equal(t, 0.0, clampConfidence(-0.2))
	assert.Equal(t, 0.3, clampConfidence(0.3))
	assert.Equal(t, 1.0, clampConfidence(4))
}
