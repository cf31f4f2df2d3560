package models

import "time"

type SaccoDepositStatus string

const (
	SaccoDepositStatusPending   SaccoDepositStatus = "pending"
	SaccoDepositStatusConfirmed SaccoDepositStatus = "confirmed"
	SaccoDepositStatusRejected  SaccoDepositStatus = "rejected"
)

// SaccoDeposit is a savings-cooperative deposit made by mobile money
type SaccoDeposit struct {
	ID        uint               `gorm:"primaryKey" json:"id"`
	UserID    *uint              `gorm:"index:idx_sacco_deposits_user_id" json:"user_id,omitempty"`
	Amount    int64              `gorm:"not null;index:idx_sacco_deposits_amount" json:"amount"`
	Status    SaccoDepositStatus `gorm:"type:varchar(20);not null;default:'pending';index:idx_sacco_deposits_status" json:"status"`
	Ref       *string            `gorm:"size:128;index:idx_sacco_deposits_ref" json:"ref,omitempty"`
	CreatedAt time.Time          `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_sacco_deposits_created_at" json:"created_at"`
	UpdatedAt time.Time          `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

func (SaccoDeposit) TableName() string {
	return "sacco_deposits"
}

func (d SaccoDeposit) ToIntent() PaymentIntent {
	return PaymentIntent{
		Kind:      IntentKindDeposit,
		ID:        d.ID,
		UserID:    d.UserID,
		Amount:    d.Amount,
		Status:    string(d.Status),
		Ref:       d.Ref,
		Label:     "SACCO deposit",
		CreatedAt: d.CreatedAt,
	}
}
