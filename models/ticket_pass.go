package models

import "time"

const (
	TicketPassDefaultZone = "Blue"
	TicketPassDefaultGate = "G3"
	TicketPassStateActive = "active"
)

// TicketPass is the gate pass issued once a ticket order is paid. One per order.
type TicketPass struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	OrderID     uint      `gorm:"not null;uniqueIndex:uk_ticket_passes_order_id" json:"order_id"`
	Zone        string    `gorm:"size:32;not null" json:"zone"`
	Gate        string    `gorm:"size:32;not null" json:"gate"`
	State       string    `gorm:"size:20;not null;default:'active'" json:"state"`
	QRTokenHash string    `gorm:"size:64;not null" json:"-"`
	CreatedAt   time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
}

func (TicketPass) TableName() string {
	return "ticket_passes"
}
