package models

import "time"

type FundDonationStatus string

const (
	FundDonationStatusPending   FundDonationStatus = "pending"
	FundDonationStatusConfirmed FundDonationStatus = "confirmed"
)

type FundDonation struct {
	ID           uint               `gorm:"primaryKey" json:"id"`
	UserID       *uint              `gorm:"index:idx_fund_donations_user_id" json:"user_id,omitempty"`
	ProjectTitle string             `gorm:"size:255;not null" json:"project_title"`
	Amount       int64              `gorm:"not null" json:"amount"`
	Status       FundDonationStatus `gorm:"type:varchar(20);not null;default:'pending';index:idx_fund_donations_status" json:"status"`
	CreatedAt    time.Time          `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt    time.Time          `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

func (FundDonation) TableName() string {
	return "fund_donations"
}

func (d FundDonation) ToIntent() PaymentIntent {
	return PaymentIntent{
		Kind:      IntentKindDonation,
		ID:        d.ID,
		UserID:    d.UserID,
		Amount:    d.Amount,
		Status:    string(d.Status),
		Label:     d.ProjectTitle,
		CreatedAt: d.CreatedAt,
	}
}
