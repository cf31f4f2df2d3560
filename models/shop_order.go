package models

import "time"

type ShopOrderStatus string

const (
	ShopOrderStatusPending   ShopOrderStatus = "pending"
	ShopOrderStatusPaid      ShopOrderStatus = "paid"
	ShopOrderStatusCancelled ShopOrderStatus = "cancelled"
)

// ShopOrder is a merchandise order from the club shop
type ShopOrder struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	UserID    *uint           `gorm:"index:idx_orders_user_id" json:"user_id,omitempty"`
	Total     int64           `gorm:"not null;index:idx_orders_total" json:"total"`
	Status    ShopOrderStatus `gorm:"type:varchar(20);not null;default:'pending';index:idx_orders_status" json:"status"`
	MomoRef   *string         `gorm:"size:128;index:idx_orders_momo_ref" json:"momo_ref,omitempty"`
	CreatedAt time.Time       `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_orders_created_at" json:"created_at"`
	UpdatedAt time.Time       `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

func (ShopOrder) TableName() string {
	return "orders"
}

func (o ShopOrder) ToIntent() PaymentIntent {
	return PaymentIntent{
		Kind:      IntentKindShop,
		ID:        o.ID,
		UserID:    o.UserID,
		Amount:    o.Total,
		Status:    string(o.Status),
		Ref:       o.MomoRef,
		Label:     "Shop order",
		CreatedAt: o.CreatedAt,
	}
}
