package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amirphl/momo-reconciler/models"
	"github.com/amirphl/momo-reconciler/utils"
	"gorm.io/gorm"
)

// intentTable describes how one entity table maps onto PaymentIntent
type intentTable struct {
	kind         models.IntentKind
	amountColumn string
	refColumn    string // empty when the table has no reference column
	openStatus   string
	settle       func(ref string, at time.Time) map[string]any
}

// PaymentIntentRepositoryImpl serves one payable table
type PaymentIntentRepositoryImpl[T models.Intent] struct {
	*BaseRepository[T, struct{}]
	table intentTable
}

func newIntentRepository[T models.Intent](db *gorm.DB, table intentTable) PaymentIntentRepository {
	return &PaymentIntentRepositoryImpl[T]{
		BaseRepository: NewBaseRepository[T, struct{}](db),
		table:          table,
	}
}

// NewTicketOrderRepository creates the repository for ticket orders
func NewTicketOrderRepository(db *gorm.DB) PaymentIntentRepository {
	return newIntentRepository[models.TicketOrder](db, intentTable{
		kind:         models.IntentKindTicket,
		amountColumn: "total",
		refColumn:    "momo_ref",
		openStatus:   string(models.TicketOrderStatusPending),
		settle: func(ref string, at time.Time) map[string]any {
			return map[string]any{"status": models.TicketOrderStatusPaid, "momo_ref": ref, "updated_at": at}
		},
	})
}

// NewShopOrderRepository creates the repository for shop orders
func NewShopOrderRepository(db *gorm.DB) PaymentIntentRepository {
	return newIntentRepository[models.ShopOrder](db, intentTable{
		kind:         models.IntentKindShop,
		amountColumn: "total",
		refColumn:    "momo_ref",
		openStatus:   string(models.ShopOrderStatusPending),
		settle: func(ref string, at time.Time) map[string]any {
			return map[string]any{"status": models.ShopOrderStatusPaid, "momo_ref": ref, "updated_at": at}
		},
	})
}

// NewInsuranceQuoteRepository creates the repository for insurance quotes
func NewInsuranceQuoteRepository(db *gorm.DB) PaymentIntentRepository {
	return newIntentRepository[models.InsuranceQuote](db, intentTable{
		kind:         models.IntentKindQuote,
		amountColumn: "premium",
		refColumn:    "ref",
		openStatus:   string(models.InsuranceQuoteStatusPending),
		settle: func(ref string, at time.Time) map[string]any {
			return map[string]any{"status": models.InsuranceQuoteStatusPaid, "ref": ref, "updated_at": at}
		},
	})
}

// NewSaccoDepositRepository creates the repository for SACCO deposits
func NewSaccoDepositRepository(db *gorm.DB) PaymentIntentRepository {
	return newIntentRepository[models.SaccoDeposit](db, intentTable{
		kind:         models.IntentKindDeposit,
		amountColumn: "amount",
		refColumn:    "ref",
		openStatus:   string(models.SaccoDepositStatusPending),
		settle: func(ref string, at time.Time) map[string]any {
			return map[string]any{"status": models.SaccoDepositStatusConfirmed, "ref": ref, "updated_at": at}
		},
	})
}

// NewMembershipRepository creates the repository for memberships. Activation runs for one term.
func NewMembershipRepository(db *gorm.DB) PaymentIntentRepository {
	return newIntentRepository[models.Membership](db, intentTable{
		kind:         models.IntentKindMembership,
		amountColumn: "amount",
		openStatus:   string(models.MembershipStatusPending),
		settle: func(_ string, at time.Time) map[string]any {
			return map[string]any{
				"status":     models.MembershipStatusActive,
				"starts_at":  at,
				"expires_at": at.Add(utils.MembershipTerm),
				"updated_at": at,
			}
		},
	})
}

// NewFundDonationRepository creates the repository for fund donations
func NewFundDonationRepository(db *gorm.DB) PaymentIntentRepository {
	return newIntentRepository[models.FundDonation](db, intentTable{
		kind:         models.IntentKindDonation,
		amountColumn: "amount",
		openStatus:   string(models.FundDonationStatusPending),
		settle: func(_ string, at time.Time) map[string]any {
			return map[string]any{"status": models.FundDonationStatusConfirmed, "updated_at": at}
		},
	})
}

func (r *PaymentIntentRepositoryImpl[T]) Kind() models.IntentKind {
	return r.table.kind
}

func (r *PaymentIntentRepositoryImpl[T]) IntentByID(ctx context.Context, id uint, lock bool) (models.Intent, error) {
	entity, err := r.byID(ctx, id, lock)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, nil
	}
	return *entity, nil
}

// ListOpenByAmount returns open intents with exactly amount created inside [since, until]
func (r *PaymentIntentRepositoryImpl[T]) ListOpenByAmount(ctx context.Context, amount int64, since, until time.Time) ([]models.PaymentIntent, error) {
	db := r.getDB(ctx)

	var rows []T
	err := db.Where(fmt.Sprintf("%s = ? AND status = ? AND created_at >= ? AND created_at <= ?", r.table.amountColumn),
		amount, r.table.openStatus, since, until).
		Order("created_at DESC").
		Limit(utils.MaxListLimit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list open %s intents by amount: %w", r.table.kind, err)
	}

	return toIntents(rows), nil
}

// ListOpenByRef returns open intents whose reference equals ref
func (r *PaymentIntentRepositoryImpl[T]) ListOpenByRef(ctx context.Context, ref string) ([]models.PaymentIntent, error) {
	if r.table.refColumn == "" || ref == "" {
		return nil, nil
	}

	db := r.getDB(ctx)

	var rows []T
	err := db.Where(fmt.Sprintf("%s = ? AND status = ?", r.table.refColumn), ref, r.table.openStatus).
		Order("created_at DESC").
		Limit(utils.MaxListLimit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list open %s intents by ref: %w", r.table.kind, err)
	}

	return toIntents(rows), nil
}

func (r *PaymentIntentRepositoryImpl[T]) MarkSettled(ctx context.Context, id uint, ref string, at time.Time) (models.Intent, error) {
	db := r.getDB(ctx)

	var entity T
	res := db.Model(&entity).Where("id = ?", id).Updates(r.table.settle(ref, at))
	if res.Error != nil {
		return nil, fmt.Errorf("failed to settle %s %d: %w", r.table.kind, id, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("failed to settle %s %d: %w", r.table.kind, id, gorm.ErrRecordNotFound)
	}

	var after T
	if err := db.Where("id = ?", id).First(&after).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("settled %s %d vanished: %w", r.table.kind, id, err)
		}
		return nil, fmt.Errorf("failed to reload %s %d: %w", r.table.kind, id, err)
	}

	return after, nil
}

func toIntents[T models.Intent](rows []T) []models.PaymentIntent {
	out := make([]models.PaymentIntent, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.ToIntent())
	}
	return out
}
