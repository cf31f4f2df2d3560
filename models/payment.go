package models

import "time"

type PaymentStatus string

const (
	PaymentStatusPending      PaymentStatus = "pending"
	PaymentStatusManualReview PaymentStatus = "manual_review"
	PaymentStatusConfirmed    PaymentStatus = "confirmed"
	PaymentStatusFailed       PaymentStatus = "failed"
)

// PaymentMetadata is the typed document stored in payments.metadata
type PaymentMetadata struct {
	Ref          string `json:"ref,omitempty"`
	ManualReason string `json:"manualReason,omitempty"`
	SmsID        *uint  `json:"smsId,omitempty"`
}

// Payment is the ledger row tying a parsed SMS to a payable entity
type Payment struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	Kind        IntentKind      `gorm:"type:varchar(20);not null;index:idx_payments_kind" json:"kind"`
	IntentID    *uint           `gorm:"index:idx_payments_intent_id" json:"intent_id,omitempty"`
	Amount      int64           `gorm:"not null" json:"amount"`
	Currency    string          `gorm:"size:8;not null;default:'RWF'" json:"currency"`
	Status      PaymentStatus   `gorm:"type:varchar(20);not null;default:'pending';index:idx_payments_status" json:"status"`
	SmsParsedID *uint           `gorm:"index:idx_payments_sms_parsed_id" json:"sms_parsed_id,omitempty"`
	Metadata    PaymentMetadata `gorm:"type:jsonb;serializer:json;not null;default:'{}'" json:"metadata"`
	ConfirmedAt *time.Time      `json:"confirmed_at,omitempty"`
	CreatedAt   time.Time       `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_payments_created_at" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

func (Payment) TableName() string {
	return "payments"
}

func (p *Payment) IsConfirmed() bool {
	return p.Status == PaymentStatusConfirmed
}

// PaymentFilter represents filter criteria for payment queries
type PaymentFilter struct {
	ID          *uint
	Kind        *IntentKind
	Status      *PaymentStatus
	SmsParsedID *uint
}
