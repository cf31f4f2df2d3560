// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/amirphl/momo-reconciler/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

// Transactor runs fn inside one database transaction
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(context.Context) error) error
}

// RawSmsRepository defines operations for inbound SMS
type RawSmsRepository interface {
	ByID(ctx context.Context, id uint) (*models.RawSms, error)
	ByIDForUpdate(ctx context.Context, id uint) (*models.RawSms, error)
	Save(ctx context.Context, sms *models.RawSms) error
	UpdateState(ctx context.Context, id uint, status models.IngestStatus, metadata models.SmsMetadata) error
	// TransitionState moves the row to status only when its current status is one of from
	TransitionState(ctx context.Context, id uint, from []models.IngestStatus, status models.IngestStatus, metadata models.SmsMetadata) (bool, error)
	ListByStatuses(ctx context.Context, statuses []models.IngestStatus, limit int) ([]*models.RawSms, error)
	ListRecent(ctx context.Context, limit int) ([]*models.RawSms, error)
}

// ParsedPaymentRepository defines operations for parsed SMS payloads
type ParsedPaymentRepository interface {
	ByID(ctx context.Context, id uint) (*models.ParsedPayment, error)
	Save(ctx context.Context, parsed *models.ParsedPayment) error
	LatestBySmsID(ctx context.Context, smsID uint) (*models.ParsedPayment, error)
	LatestBySmsIDs(ctx context.Context, smsIDs []uint) (map[uint]*models.ParsedPayment, error)
	// SetMatchedEntity sets the pointer only when it is empty or a candidate suggestion
	SetMatchedEntity(ctx context.Context, id uint, pointer string) (bool, error)
}

// PaymentRepository defines operations for payment ledger rows
type PaymentRepository interface {
	ByID(ctx context.Context, id uint) (*models.Payment, error)
	ByIDForUpdate(ctx context.Context, id uint) (*models.Payment, error)
	Save(ctx context.Context, payment *models.Payment) error
	Update(ctx context.Context, payment *models.Payment) error
	ListByStatus(ctx context.Context, status models.PaymentStatus, limit int) ([]*models.Payment, error)
	ListByParsedID(ctx context.Context, parsedID uint, status models.PaymentStatus) ([]*models.Payment, error)
}

// PaymentIntentRepository is implemented once per payable entity kind
type PaymentIntentRepository interface {
	Kind() models.IntentKind
	// IntentByID loads the entity; forUpdate locks the row inside a transaction. Missing is (nil, nil).
	IntentByID(ctx context.Context, id uint, forUpdate bool) (models.Intent, error)
	ListOpenByAmount(ctx context.Context, amount int64, since, until time.Time) ([]models.PaymentIntent, error)
	ListOpenByRef(ctx context.Context, ref string) ([]models.PaymentIntent, error)
	// MarkSettled moves the entity to its terminal paid state and returns the updated row
	MarkSettled(ctx context.Context, id uint, ref string, at time.Time) (models.Intent, error)
}

// TicketPassRepository defines operations for ticket passes
type TicketPassRepository interface {
	// CreateIfAbsent inserts the pass unless one exists for the order; created reports the insert
	CreateIfAbsent(ctx context.Context, pass *models.TicketPass) (bool, error)
	ByOrderID(ctx context.Context, orderID uint) (*models.TicketPass, error)
}

// AuditLogRepository is insert and read only
type AuditLogRepository interface {
	Save(ctx context.Context, log *models.AuditLog) error
	List(ctx context.Context, filter models.AuditLogFilter) ([]*models.AuditLog, error)
}

// SmsParserPromptRepository defines operations for parser prompts
type SmsParserPromptRepository interface {
	ByID(ctx context.Context, id uint) (*models.SmsParserPrompt, error)
	Save(ctx context.Context, prompt *models.SmsParserPrompt) error
	List(ctx context.Context, limit int) ([]*models.SmsParserPrompt, error)
	Active(ctx context.Context) (*models.SmsParserPrompt, error)
	LatestVersion(ctx context.Context) (int, error)
	// Activate makes id the only active prompt
	Activate(ctx context.Context, id uint) error
}
