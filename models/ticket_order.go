package models

import "time"

type TicketOrderStatus string

const (
	TicketOrderStatusPending   TicketOrderStatus = "pending"
	TicketOrderStatusPaid      TicketOrderStatus = "paid"
	TicketOrderStatusCancelled TicketOrderStatus = "cancelled"
)

// TicketOrder is a match ticket purchase awaiting mobile-money payment
type TicketOrder struct {
	ID        uint              `gorm:"primaryKey" json:"id"`
	UserID    *uint             `gorm:"index:idx_ticket_orders_user_id" json:"user_id,omitempty"`
	MatchID   *uint             `gorm:"index:idx_ticket_orders_match_id" json:"match_id,omitempty"`
	Total     int64             `gorm:"not null;index:idx_ticket_orders_total" json:"total"`
	Status    TicketOrderStatus `gorm:"type:varchar(20);not null;default:'pending';index:idx_ticket_orders_status" json:"status"`
	MomoRef   *string           `gorm:"size:128;index:idx_ticket_orders_momo_ref" json:"momo_ref,omitempty"`
	CreatedAt time.Time         `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_ticket_orders_created_at" json:"created_at"`
	UpdatedAt time.Time         `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

func (TicketOrder) TableName() string {
	return "ticket_orders"
}

func (o TicketOrder) ToIntent() PaymentIntent {
	return PaymentIntent{
		Kind:      IntentKindTicket,
		ID:        o.ID,
		UserID:    o.UserID,
		Amount:    o.Total,
		Status:    string(o.Status),
		Ref:       o.MomoRef,
		Label:     "Ticket order",
		CreatedAt: o.CreatedAt,
	}
}
