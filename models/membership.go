package models

import "time"

type MembershipStatus string

const (
	MembershipStatusPending MembershipStatus = "pending"
	MembershipStatusActive  MembershipStatus = "active"
)

type Membership struct {
	ID        uint             `gorm:"primaryKey" json:"id"`
	UserID    *uint            `gorm:"index:idx_memberships_user_id" json:"user_id,omitempty"`
	PlanName  string           `gorm:"size:128;not null" json:"plan_name"`
	Amount    int64            `gorm:"not null" json:"amount"`
	Status    MembershipStatus `gorm:"type:varchar(20);not null;default:'pending';index:idx_memberships_status" json:"status"`
	StartsAt  *time.Time       `json:"starts_at,omitempty"`
	ExpiresAt *time.Time       `json:"expires_at,omitempty"`
	CreatedAt time.Time        `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt time.Time        `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

func (Membership) TableName() string {
	return "memberships"
}

func (m Membership) ToIntent() PaymentIntent {
	return PaymentIntent{
		Kind:      IntentKindMembership,
		ID:        m.ID,
		UserID:    m.UserID,
		Amount:    m.Amount,
		Status:    string(m.Status),
		Label:     m.PlanName,
		CreatedAt: m.CreatedAt,
	}
}
