package models

import "time"

type InsuranceQuoteStatus string

const (
	InsuranceQuoteStatusPending InsuranceQuoteStatus = "pending"
	InsuranceQuoteStatusPaid    InsuranceQuoteStatus = "paid"
	InsuranceQuoteStatusExpired InsuranceQuoteStatus = "expired"
)

type InsuranceQuote struct {
	ID        uint                 `gorm:"primaryKey" json:"id"`
	UserID    *uint                `gorm:"index:idx_insurance_quotes_user_id" json:"user_id,omitempty"`
	Premium   int64                `gorm:"not null;index:idx_insurance_quotes_premium" json:"premium"`
	Status    InsuranceQuoteStatus `gorm:"type:varchar(20);not null;default:'pending';index:idx_insurance_quotes_status" json:"status"`
	Ref       *string              `gorm:"size:128;index:idx_insurance_quotes_ref" json:"ref,omitempty"`
	CreatedAt time.Time            `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_insurance_quotes_created_at" json:"created_at"`
	UpdatedAt time.Time            `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

func (InsuranceQuote) TableName() string {
	return "insurance_quotes"
}

func (q InsuranceQuote) ToIntent() PaymentIntent {
	return PaymentIntent{
		Kind:      IntentKindQuote,
		ID:        q.ID,
		UserID:    q.UserID,
		Amount:    q.Premium,
		Status:    string(q.Status),
		Ref:       q.Ref,
		Label:     "Insurance quote",
		CreatedAt: q.CreatedAt,
	}
}
