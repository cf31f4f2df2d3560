package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
)

// ParseStrategy names the extractor that produced a parse
type ParseStrategy string

const (
	ParseStrategyRules ParseStrategy = "rules"
	ParseStrategyModel ParseStrategy = "model"
)

// candidatePointerPrefix marks a matched_entity value that is only a suggestion
const candidatePointerPrefix = "candidate:"

// ParsedPayment is one parse of a RawSms. Several rows may exist per SMS over
// retries; the latest row is the current parse. Only MatchedEntity changes after insert.
type ParsedPayment struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	SmsID         uint            `gorm:"not null;index:idx_sms_parsed_sms_id" json:"sms_id"`
	Amount        int64           `gorm:"not null;index:idx_sms_parsed_amount" json:"amount"`
	Currency      string          `gorm:"size:8;not null;default:'RWF'" json:"currency"`
	Ref           *string         `gorm:"size:128;index:idx_sms_parsed_ref" json:"ref,omitempty"`
	PayerMask     *string         `gorm:"size:64" json:"payer_mask,omitempty"`
	Confidence    float64         `gorm:"type:numeric(4,3);not null" json:"confidence"`
	ParserVersion string          `gorm:"size:64;not null" json:"parser_version"`
	Strategy      ParseStrategy   `gorm:"type:varchar(16);not null" json:"strategy"`
	RawFields     json.RawMessage `gorm:"type:jsonb;default:'{}'" json:"raw_fields,omitempty"`
	Candidates    pq.StringArray  `gorm:"type:text[]" json:"candidates"`
	MatchedEntity *string         `gorm:"size:128;index:idx_sms_parsed_matched_entity" json:"matched_entity,omitempty"`
	CreatedAt     time.Time       `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`

	Sms *RawSms `gorm:"foreignKey:SmsID;references:ID" json:"sms,omitempty"`
}

func (ParsedPayment) TableName() string {
	return "sms_parsed"
}

// IsSettled reports whether the parse is bound to a real entity, not just a suggestion
func (p *ParsedPayment) IsSettled() bool {
	return p.MatchedEntity != nil && !strings.HasPrefix(*p.MatchedEntity, candidatePointerPrefix)
}

// RefOr returns the parsed reference or the fallback when none was extracted
func (p *ParsedPayment) RefOr(fallback string) string {
	if p.Ref != nil && *p.Ref != "" {
		return *p.Ref
	}
	return fallback
}

// EntityPointer is a "kind:id" reference to a payable entity
type EntityPointer struct {
	Kind IntentKind
	ID   uint
}

func (e EntityPointer) String() string {
	return fmt.Sprintf("%s:%d", e.Kind, e.ID)
}

// Candidate renders the pointer as an advisory suggestion
func (e EntityPointer) Candidate() string {
	return candidatePointerPrefix + e.String()
}

// ParseEntityPointer parses "kind:id" or "candidate:kind:id"
func ParseEntityPointer(v string) (EntityPointer, bool) {
	v = strings.TrimPrefix(v, candidatePointerPrefix)
	kind, idPart, ok := strings.Cut(v, ":")
	if !ok {
		return EntityPointer{}, false
	}
	id, err := strconv.ParseUint(idPart, 10, 64)
	if err != nil || id == 0 {
		return EntityPointer{}, false
	}
	k := IntentKind(kind)
	if !k.Valid() {
		return EntityPointer{}, false
	}
	return EntityPointer{Kind: k, ID: uint(id)}, true
}

// ParsedPaymentFilter represents filter criteria for parsed payment queries
type ParsedPaymentFilter struct {
	ID    *uint
	SmsID *uint
}
