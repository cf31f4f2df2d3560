package dto

// ParserPromptItem represents a model extractor system prompt
type ParserPromptItem struct {
	ID        uint   `json:"id"`
	Label     string `json:"label"`
	Body      string `json:"body"`
	Version   int    `json:"version"`
	IsActive  bool   `json:"is_active"`
	CreatedBy *uint  `json:"created_by,omitempty"`
	CreatedAt string `json:"created_at"`
}

// ListParserPromptsResponse lists prompts, newest version first
type ListParserPromptsResponse struct {
	Items []ParserPromptItem `json:"items"`
}

// CreateParserPromptRequest adds a new prompt version
type CreateParserPromptRequest struct {
	Label    string `json:"label" validate:"required,max=128"`
	Body     string `json:"body" validate:"required,max=8000"`
	Activate bool   `json:"activate,omitempty"`
}

// ParserTestRequest is a dry-run parse; nothing is stored
type ParserTestRequest struct {
	Text string `json:"text" validate:"required,max=4096"`
	From string `json:"from,omitempty" validate:"omitempty,max=32"`
}

// ParserTestResult is the normalized parse
type ParserTestResult struct {
	Amount        int64          `json:"amount"`
	Currency      string         `json:"currency"`
	Ref           *string        `json:"ref,omitempty"`
	PayerMask     *string        `json:"payer_mask,omitempty"`
	Timestamp     *string        `json:"timestamp,omitempty"`
	Confidence    float64        `json:"confidence"`
	ParserVersion string         `json:"parser_version"`
	Strategy      string         `json:"strategy"`
	RawFields     map[string]any `json:"raw_fields,omitempty"`
}

// ParserTestResponse reports whether a payment was found
type ParserTestResponse struct {
	Matched   bool              `json:"matched"`
	Result    *ParserTestResult `json:"result,omitempty"`
	Threshold float64           `json:"threshold"`
	Routing   string            `json:"routing"`
}
