package models

import (
	"encoding/json"
	"time"
)

// AuditLog is an insert-only record of a state change
type AuditLog struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	Action       string          `gorm:"size:64;not null;index:idx_audit_action" json:"action"`
	EntityType   string          `gorm:"size:64;not null;index:idx_audit_entity,priority:1" json:"entity_type"`
	EntityID     string          `gorm:"size:64;not null;index:idx_audit_entity,priority:2" json:"entity_id"`
	Before       json.RawMessage `gorm:"type:jsonb" json:"before,omitempty"`
	After        json.RawMessage `gorm:"type:jsonb" json:"after,omitempty"`
	ActorAdminID *uint           `gorm:"index:idx_audit_actor_admin_id" json:"actor_admin_id,omitempty"`
	Description  *string         `gorm:"type:text" json:"description,omitempty"`
	IPAddress    *string         `gorm:"size:64" json:"ip_address,omitempty"`
	UserAgent    *string         `gorm:"type:text" json:"user_agent,omitempty"`
	RequestID    *string         `gorm:"size:255;index:idx_audit_request_id" json:"request_id,omitempty"`
	Success      *bool           `gorm:"default:true;index:idx_audit_success" json:"success"`
	ErrorMessage *string         `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt    time.Time       `gorm:"default:CURRENT_TIMESTAMP;index:idx_audit_created_at" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_log"
}

// Audit action constants
const (
	AuditActionTicketOrderAttachSms    = "ticket_orders.attach_sms"
	AuditActionShopOrderAttachSms      = "orders.attach_sms"
	AuditActionInsuranceQuoteAttachSms = "insurance_quotes.attach_sms"
	AuditActionSaccoDepositAttachSms   = "sacco_deposits.attach_sms"
	AuditActionMembershipAttachSms     = "memberships.attach_sms"
	AuditActionFundDonationAttachSms   = "fund_donations.attach_sms"
	AuditActionTicketPassInsert        = "ticket_passes.insert"
	AuditActionSmsManualAttach         = "sms.manual_attach"
	AuditActionSmsManualRetry          = "sms.manual_retry"
	AuditActionSmsManualDismiss        = "sms.manual_dismiss"
	AuditActionParserPromptCreate      = "sms.parser.prompt.create"
	AuditActionParserPromptActivate    = "sms.parser.prompt.activate"
)

// AuditLogFilter represents filter criteria for audit log queries
type AuditLogFilter struct {
	Action       *string
	EntityType   *string
	EntityID     *string
	ActorAdminID *uint
	Limit        int
}

func (a *AuditLog) IsFailed() bool {
	return a.Success != nil && !*a.Success
}
