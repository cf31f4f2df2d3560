package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/amirphl/momo-reconciler/models"
)

const (
	openaiChatCompletionsPath = "/chat/completions"
	openaiDefaultBaseURL      = "https://api.openai.com/v1"
	openaiDefaultModel        = "gpt-4o-mini"
	modelParserVersionPrefix  = "model:"
	defaultModelConfidence    = 0.5
)

// DefaultParserPrompt is used when no prompt row is active
const DefaultParserPrompt = `Extract mobile-money payment details from the SMS into strict JSON.
Fields: amount (RWF integer), currency, payer_mask (mask numbers), ref, timestamp (if present), confidence 0..1.
If the SMS is not a payment confirmation, return amount 0 and confidence 0.`

// PromptStore supplies the active system prompt
type PromptStore interface {
	Active(ctx context.Context) (*models.SmsParserPrompt, error)
}

// ModelExtractorConfig configures the OpenAI-compatible client
type ModelExtractorConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	// Redact masks long digit runs before the text is sent
	Redact bool
}

// ModelExtractor asks a chat-completions model to read the SMS
type ModelExtractor struct {
	cfg     ModelExtractorConfig
	prompts PromptStore
	client  *http.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat map[string]any `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type openaiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// modelPayload is the JSON the model is asked to produce
type modelPayload struct {
	Amount     *json.Number `json:"amount"`
	Currency   *string      `json:"currency"`
	PayerMask  *string      `json:"payer_mask"`
	Ref        *string      `json:"ref"`
	Timestamp  *string      `json:"timestamp"`
	Confidence *float64     `json:"confidence"`
}

var smsParseSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"amount":     map[string]any{"type": "integer"},
		"currency":   map[string]any{"type": "string"},
		"payer_mask": map[string]any{"type": "string"},
		"ref":        map[string]any{"type": "string"},
		"timestamp":  map[string]any{"type": "string"},
		"confidence": map[string]any{"type": "number"},
	},
	"required": []string{"amount", "currency", "ref", "confidence"},
}

// NewModelExtractor creates the model strategy. prompts may be nil.
func NewModelExtractor(cfg ModelExtractorConfig, prompts PromptStore) *ModelExtractor {
	if cfg.BaseURL == "" {
		cfg.BaseURL = openaiDefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = openaiDefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &ModelExtractor{
		cfg:     cfg,
		prompts: prompts,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

func (m *ModelExtractor) Name() string {
	return string(models.ParseStrategyModel)
}

func (m *ModelExtractor) Extract(ctx context.Context, text string) (*Extraction, error) {
	if m.cfg.APIKey == "" {
		return nil, ErrNoPaymentFound
	}

	systemPrompt, promptVersion := m.systemPrompt(ctx)
	if m.cfg.Redact {
		text = RedactForModel(text)
	}

	reqBody := chatRequest{
		Model: m.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf("SMS: \"\"\"%s\"\"\"", text)},
		},
		Temperature: 0.2,
		ResponseFormat: map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   "sms_parse",
				"schema": smsParseSchema,
			},
		},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.BaseURL+openaiChatCompletionsPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+m.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(httpReq)
	if err != nil {
		if isTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: model request timed out: %v", ErrTransient, err)
		}
		return nil, fmt.Errorf("%w: model request failed: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response body: %v", ErrTransient, err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := string(respBody)
		var apiErr openaiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, fmt.Errorf("%w: model API error (%d): %s", ErrTransient, resp.StatusCode, msg)
		}
		return nil, fmt.Errorf("model API error (%d): %s", resp.StatusCode, msg)
	}

	var chat chatResponse
	if err := json.Unmarshal(respBody, &chat); err != nil || len(chat.Choices) == 0 {
		return nil, ErrNoPaymentFound
	}

	return decodeModelPayload(chat.Choices[0].Message.Content, modelParserVersionPrefix+m.cfg.Model+promptVersion)
}

func (m *ModelExtractor) systemPrompt(ctx context.Context) (string, string) {
	if m.prompts == nil {
		return DefaultParserPrompt, ""
	}
	prompt, err := m.prompts.Active(ctx)
	if err != nil || prompt == nil || strings.TrimSpace(prompt.Body) == "" {
		return DefaultParserPrompt, ""
	}
	return prompt.Body, fmt.Sprintf("+prompt:v%d", prompt.Version)
}

// decodeModelPayload applies the model defaults: RWF currency, no ref, confidence 0.5
func decodeModelPayload(content, version string) (*Extraction, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	dec := json.NewDecoder(strings.NewReader(content))
	dec.UseNumber()
	var payload modelPayload
	if err := dec.Decode(&payload); err != nil || payload.Amount == nil {
		return nil, ErrNoPaymentFound
	}

	amountF, err := payload.Amount.Float64()
	if err != nil || amountF <= 0 || amountF != math.Trunc(amountF) || amountF > math.MaxInt64/2 {
		return nil, ErrNoPaymentFound
	}

	out := &Extraction{
		Amount:     int64(amountF),
		Confidence: defaultModelConfidence,
		Version:    version,
		RawFields:  map[string]any{"model_output": content},
	}
	if payload.Currency != nil {
		out.Currency = *payload.Currency
	}
	if payload.Ref != nil {
		out.Ref = *payload.Ref
	}
	if payload.PayerMask != nil {
		out.PayerMask = *payload.PayerMask
	}
	if payload.Confidence != nil {
		out.Confidence = *payload.Confidence
	}
	if payload.Timestamp != nil {
		if ts, err := time.Parse(time.RFC3339, strings.TrimSpace(*payload.Timestamp)); err == nil {
			ts = ts.UTC()
			out.Timestamp = &ts
		}
	}

	return out, nil
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
