// Package models contains domain entities for SMS reconciliation and settlement
package models

import (
	"time"
)

// IngestStatus is the lifecycle status of an inbound SMS
type IngestStatus string

const (
	IngestStatusReceived     IngestStatus = "received"      // Stored, waiting for the parser worker
	IngestStatusParsed       IngestStatus = "parsed"        // Parsed and settled (or resolved elsewhere)
	IngestStatusManualReview IngestStatus = "manual_review" // Needs an operator decision
	IngestStatusError        IngestStatus = "error"         // Parser gave up or operator discarded it
)

// ReviewReason explains why an SMS landed in manual review
type ReviewReason string

const (
	ReviewReasonLowConfidence    ReviewReason = "low_confidence"
	ReviewReasonNoMatch          ReviewReason = "no_match"
	ReviewReasonAmbiguous        ReviewReason = "ambiguous"
	ReviewReasonAmountOnly       ReviewReason = "amount_only"
	ReviewReasonAmountMismatch   ReviewReason = "amount_mismatch" // Reference matched, amount did not
	ReviewReasonParseFailed      ReviewReason = "parse_failed"
	ReviewReasonExhausted        ReviewReason = "exhausted"
	ReviewReasonSettlementFailed ReviewReason = "settlement_failed"
)

// ResolutionStatus is the operator's terminal decision for an SMS
type ResolutionStatus string

const (
	ResolutionLinkedElsewhere ResolutionStatus = "linked_elsewhere"
	ResolutionDiscard         ResolutionStatus = "discard"
	ResolutionIgnored         ResolutionStatus = "ignored"
)

// Valid reports whether the resolution is one of the known values
func (r ResolutionStatus) Valid() bool {
	switch r {
	case ResolutionLinkedElsewhere, ResolutionDiscard, ResolutionIgnored:
		return true
	}
	return false
}

// ReviewInfo is the pipeline's note on why the SMS needs review
type ReviewInfo struct {
	Reason     ReviewReason `json:"reason"`
	Confidence *float64     `json:"confidence,omitempty"`
	Candidates []string     `json:"candidates,omitempty"`
	Note       string       `json:"note,omitempty"`
	At         time.Time    `json:"at"`
}

// AdminResolution records an operator dismissal
type AdminResolution struct {
	Status     ResolutionStatus `json:"status"`
	Note       string           `json:"note,omitempty"`
	ResolvedBy *uint            `json:"resolvedBy,omitempty"`
	ResolvedAt time.Time        `json:"resolvedAt"`
}

// SmsMetadata is the typed document stored in sms_raw.metadata
type SmsMetadata struct {
	ModemID         string           `json:"modemId,omitempty"`
	SimSlot         *int             `json:"simSlot,omitempty"`
	ParseFailures   int              `json:"parseFailures,omitempty"`
	Review          *ReviewInfo      `json:"review,omitempty"`
	AdminResolution *AdminResolution `json:"adminResolution,omitempty"`
}

// RawSms is an inbound SMS exactly as the gateway delivered it. Rows are never deleted.
type RawSms struct {
	ID           uint         `gorm:"primaryKey" json:"id"`
	Text         string       `gorm:"type:text;not null" json:"text"`
	FromMsisdn   string       `gorm:"size:32;not null;index:idx_sms_raw_from_msisdn" json:"from_msisdn"`
	ToMsisdn     *string      `gorm:"size:32" json:"to_msisdn,omitempty"`
	ReceivedAt   time.Time    `gorm:"not null;index:idx_sms_raw_received_at" json:"received_at"`
	Metadata     SmsMetadata  `gorm:"type:jsonb;serializer:json;not null;default:'{}'" json:"metadata"`
	IngestStatus IngestStatus `gorm:"type:varchar(20);not null;default:'received';index:idx_sms_raw_ingest_status" json:"ingest_status"`
	CreatedAt    time.Time    `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_sms_raw_created_at" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

func (RawSms) TableName() string {
	return "sms_raw"
}

// NeedsReview reports whether the SMS shows up in the manual review queue
func (s *RawSms) NeedsReview() bool {
	return s.IngestStatus == IngestStatusManualReview || s.IngestStatus == IngestStatusError
}

// RawSmsFilter represents filter criteria for raw SMS queries
type RawSmsFilter struct {
	ID             *uint
	FromMsisdn     *string
	IngestStatuses []IngestStatus
	ReceivedAfter  *time.Time
	ReceivedBefore *time.Time
}
