package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/amirphl/momo-reconciler/models"
	"github.com/amirphl/momo-reconciler/utils"
)

// Parser error constants
var (
	// ErrNoPaymentFound means no strategy could read a payment out of the text
	ErrNoPaymentFound = errors.New("no payment found in sms")
	// ErrTransient marks failures worth retrying (model timeouts, 5xx, rate limits)
	ErrTransient = errors.New("transient parser failure")
)

// ParseInput is the SMS as seen by the parser
type ParseInput struct {
	Text       string
	From       string
	ReceivedAt time.Time
}

// Extraction is what a single strategy read from the text
type Extraction struct {
	Amount     int64
	Currency   string
	Ref        string
	PayerMask  string
	Timestamp  *time.Time
	Confidence float64
	Version    string
	RawFields  map[string]any
}

// ParseResult is the normalized output of the parser chain
type ParseResult struct {
	Amount        int64                `json:"amount"`
	Currency      string               `json:"currency"`
	Ref           *string              `json:"ref,omitempty"`
	PayerMask     *string              `json:"payer_mask,omitempty"`
	Timestamp     *time.Time           `json:"timestamp,omitempty"`
	Confidence    float64              `json:"confidence"`
	ParserVersion string               `json:"parser_version"`
	Strategy      models.ParseStrategy `json:"strategy"`
	RawFields     map[string]any       `json:"raw_fields,omitempty"`
}

// Extractor is one parsing strategy
type Extractor interface {
	Name() string
	// Extract returns ErrNoPaymentFound when the text holds nothing it recognizes
	Extract(ctx context.Context, text string) (*Extraction, error)
}

// SMSParser turns SMS text into a structured payment. It never touches storage.
type SMSParser interface {
	Parse(ctx context.Context, in ParseInput) (*ParseResult, error)
}

// ChainParser tries each extractor in order and keeps the first hit
type ChainParser struct {
	extractors []Extractor
	logger     *log.Logger
}

// NewSMSParser builds the rules-first chain. model may be nil when no model is configured.
func NewSMSParser(rules Extractor, model Extractor, logger *log.Logger) SMSParser {
	chain := []Extractor{rules}
	if model != nil {
		chain = append(chain, model)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &ChainParser{extractors: chain, logger: logger}
}

func (p *ChainParser) Parse(ctx context.Context, in ParseInput) (*ParseResult, error) {
	if strings.TrimSpace(in.Text) == "" {
		return nil, ErrNoPaymentFound
	}

	for _, ex := range p.extractors {
		extraction, err := ex.Extract(ctx, in.Text)
		if err != nil {
			if errors.Is(err, ErrNoPaymentFound) {
				SMSParseTotal.WithLabelValues(ex.Name(), "no_match").Inc()
				continue
			}
			outcome := "error"
			if errors.Is(err, ErrTransient) {
				outcome = "transient"
			}
			SMSParseTotal.WithLabelValues(ex.Name(), outcome).Inc()
			return nil, fmt.Errorf("%s extractor: %w", ex.Name(), err)
		}
		if extraction == nil || extraction.Amount <= 0 {
			SMSParseTotal.WithLabelValues(ex.Name(), "no_match").Inc()
			continue
		}

		SMSParseTotal.WithLabelValues(ex.Name(), "ok").Inc()
		return finishResult(extraction, models.ParseStrategy(ex.Name()), in), nil
	}

	return nil, ErrNoPaymentFound
}

func finishResult(e *Extraction, strategy models.ParseStrategy, in ParseInput) *ParseResult {
	currency := strings.ToUpper(strings.TrimSpace(e.Currency))
	if currency == "" || currency == "FRW" || currency == "RF" {
		currency = utils.DefaultCurrency
	}

	res := &ParseResult{
		Amount:        e.Amount,
		Currency:      currency,
		Timestamp:     e.Timestamp,
		Confidence:    clampConfidence(e.Confidence),
		ParserVersion: e.Version,
		Strategy:      strategy,
		RawFields:     e.RawFields,
	}

	if ref := utils.NormalizeRef(e.Ref); ref != "" {
		res.Ref = &ref
	}

	mask := strings.TrimSpace(e.PayerMask)
	if mask == "" {
		mask = utils.PayerMask(in.From)
	}
	if mask != "" {
		res.PayerMask = &mask
	}

	return res
}

func clampConfidence(c float64) float64 {
	switch {
	case c != c: // NaN
		return 0
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}
