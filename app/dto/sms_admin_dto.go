package dto

// ParsedSmsSummary is the current parse of an SMS as shown to operators
// Confidence is always a plain number
type ParsedSmsSummary struct {
	ID            uint     `json:"id"`
	Amount        int64    `json:"amount"`
	Currency      string   `json:"currency"`
	Ref           *string  `json:"ref,omitempty"`
	PayerMask     *string  `json:"payer_mask,omitempty"`
	Confidence    float64  `json:"confidence"`
	ParserVersion string   `json:"parser_version"`
	Strategy      string   `json:"strategy"`
	Candidates    []string `json:"candidates"`
	MatchedEntity *string  `json:"matched_entity,omitempty"`
	CreatedAt     string   `json:"created_at"`
}

// SmsReviewInfo explains why the pipeline could not settle the SMS
type SmsReviewInfo struct {
	Reason     string   `json:"reason"`
	Confidence *float64 `json:"confidence,omitempty"`
	Candidates []string `json:"candidates,omitempty"`
	Note       string   `json:"note,omitempty"`
	At         string   `json:"at"`
}

// SmsAdminResolution is the operator's dismissal of an SMS
type SmsAdminResolution struct {
	Status     string `json:"status"`
	Note       string `json:"note,omitempty"`
	ResolvedBy *uint  `json:"resolved_by,omitempty"`
	ResolvedAt string `json:"resolved_at"`
}

// SmsItem represents an inbound SMS in admin listings
type SmsItem struct {
	ID              uint                `json:"id"`
	Text            string              `json:"text"`
	FromMsisdn      string              `json:"from_msisdn"`
	FromMasked      string              `json:"from_masked"`
	ToMsisdn        *string             `json:"to_msisdn,omitempty"`
	ReceivedAt      string              `json:"received_at"`
	IngestStatus    string              `json:"ingest_status"`
	ModemID         string              `json:"modem_id,omitempty"`
	SimSlot         *int                `json:"sim_slot,omitempty"`
	ParseFailures   int                 `json:"parse_failures"`
	Review          *SmsReviewInfo      `json:"review,omitempty"`
	AdminResolution *SmsAdminResolution `json:"admin_resolution,omitempty"`
	Parsed          *ParsedSmsSummary   `json:"parsed,omitempty"`
}

// ListSmsRequest bounds an admin SMS listing. Limit defaults to 50 and is clamped to [1,200]
type ListSmsRequest struct {
	Limit int `json:"limit,omitempty" validate:"omitempty,min=0"`
}

// ListSmsResponse contains SMS rows, newest first
type ListSmsResponse struct {
	Items []SmsItem `json:"items"`
	Limit int       `json:"limit"`
}

// IntentSummary is the common view of a payable entity
type IntentSummary struct {
	Kind      string  `json:"kind"`
	ID        uint    `json:"id"`
	UserID    *uint   `json:"user_id,omitempty"`
	Amount    int64   `json:"amount"`
	Status    string  `json:"status"`
	Ref       *string `json:"ref,omitempty"`
	Label     string  `json:"label,omitempty"`
	CreatedAt string  `json:"created_at"`
}

// PaymentItem represents a payment ledger row
type PaymentItem struct {
	ID           uint    `json:"id"`
	Kind         string  `json:"kind"`
	IntentID     *uint   `json:"intent_id,omitempty"`
	Amount       int64   `json:"amount"`
	Currency     string  `json:"currency"`
	Status       string  `json:"status"`
	SmsParsedID  *uint   `json:"sms_parsed_id,omitempty"`
	Ref          string  `json:"ref,omitempty"`
	ManualReason string  `json:"manual_reason,omitempty"`
	ConfirmedAt  *string `json:"confirmed_at,omitempty"`
	CreatedAt    string  `json:"created_at"`
}

// ManualPaymentItem is a payment awaiting review with its entity and parse context
type ManualPaymentItem struct {
	PaymentItem
	Entity *IntentSummary    `json:"entity,omitempty"`
	Parsed *ParsedSmsSummary `json:"parsed,omitempty"`
}

// ListManualPaymentsResponse contains payments in manual_review, newest first
type ListManualPaymentsResponse struct {
	Items []ManualPaymentItem `json:"items"`
	Limit int                 `json:"limit"`
}

// AttachEntityRef names the entity an SMS settles
type AttachEntityRef struct {
	Kind string `json:"kind" validate:"required,oneof=ticket shop quote deposit"`
	ID   uint   `json:"id" validate:"required,min=1"`
}

// AttachSmsRequest binds an SMS to an entity
type AttachSmsRequest struct {
	SmsID  uint            `json:"smsId" validate:"required,min=1"`
	Entity AttachEntityRef `json:"entity" validate:"required"`
}

// TicketPassItem is the pass issued for a paid ticket order
type TicketPassItem struct {
	ID        uint   `json:"id"`
	OrderID   uint   `json:"order_id"`
	Zone      string `json:"zone"`
	Gate      string `json:"gate"`
	State     string `json:"state"`
	CreatedAt string `json:"created_at"`
}

// AttachSmsResponse describes the outcome of a settlement
// AlreadySettled is true when the SMS was already bound to this same entity and nothing changed
type AttachSmsResponse struct {
	SmsID          uint            `json:"sms_id"`
	Pointer        string          `json:"pointer"`
	AlreadySettled bool            `json:"already_settled"`
	Before         *IntentSummary  `json:"before,omitempty"`
	Entity         IntentSummary   `json:"entity"`
	PassCreated    bool            `json:"pass_created"`
	Pass           *TicketPassItem `json:"pass,omitempty"`
	Payments       []PaymentItem   `json:"payments,omitempty"`
}

// ManualAttachRequest binds an SMS to a payment in manual review
type ManualAttachRequest struct {
	SmsID     uint `json:"smsId" validate:"required,min=1"`
	PaymentID uint `json:"paymentId" validate:"required,min=1"`
}

// ManualAttachResponse returns the confirmed payment
type ManualAttachResponse struct {
	Payment    PaymentItem        `json:"payment"`
	Settlement *AttachSmsResponse `json:"settlement,omitempty"`
}

// RetrySmsResponse is returned after an SMS was re-queued
type RetrySmsResponse struct {
	Status string `json:"status"`
	SmsID  uint   `json:"sms_id"`
	JobID  string `json:"job_id,omitempty"`
}

// DismissSmsRequest closes out an SMS without touching any entity
type DismissSmsRequest struct {
	Resolution string `json:"resolution" validate:"required,oneof=linked_elsewhere discard ignored"`
	Note       string `json:"note,omitempty" validate:"omitempty,max=500"`
}

// DismissSmsResponse is returned after a dismissal
type DismissSmsResponse struct {
	Status       string `json:"status"`
	SmsID        uint   `json:"sms_id"`
	IngestStatus string `json:"ingest_status"`
}

// SmsCandidateItem is one advisory match for an SMS
type SmsCandidateItem struct {
	Pointer         string        `json:"pointer"`
	Entity          IntentSummary `json:"entity"`
	DistanceSeconds int64         `json:"distance_seconds"`
}

// SmsCandidatesResponse lists the entities an SMS could settle
type SmsCandidatesResponse struct {
	SmsID           uint               `json:"sms_id"`
	LookbackMinutes int                `json:"lookback_minutes"`
	Mode            string             `json:"mode"`
	Parsed          *ParsedSmsSummary  `json:"parsed"`
	Candidates      []SmsCandidateItem `json:"candidates"`
}

// QueueOverviewResponse is the ingestion queue depth
type QueueOverviewResponse struct {
	Waiting   int64            `json:"waiting"`
	Active    int64            `json:"active"`
	Delayed   int64            `json:"delayed"`
	Completed int64            `json:"completed"`
	Failed    int64            `json:"failed"`
	Totals    map[string]int64 `json:"totals"`
}
