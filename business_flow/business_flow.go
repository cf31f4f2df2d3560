// Package businessflow contains the business logic for the application.
package businessflow

import (
	"github.com/amirphl/momo-reconciler/app/dto"
	"github.com/amirphl/momo-reconciler/models"
	"github.com/amirphl/momo-reconciler/utils"
)

// ClientMetadata holds the caller information stamped on audit entries
// ActorID is nil for pipeline actions
type ClientMetadata struct {
	IPAddress  string            `json:"ip_address"`
	UserAgent  string            `json:"user_agent"`
	RequestID  string            `json:"request_id,omitempty"`
	ActorID    *uint             `json:"actor_id,omitempty"`
	Additional map[string]string `json:"additional,omitempty"`
}

// NewClientMetadata creates a new ClientMetadata instance with basic information
func NewClientMetadata(ipAddress, userAgent string) *ClientMetadata {
	return &ClientMetadata{
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		Additional: make(map[string]string),
	}
}

// AddAdditional adds additional custom information to the metadata
func (cm *ClientMetadata) AddAdditional(key, value string) {
	if cm.Additional == nil {
		cm.Additional = make(map[string]string)
	}
	cm.Additional[key] = value
}

// SetRequestID sets the request ID
func (cm *ClientMetadata) SetRequestID(requestID string) {
	cm.RequestID = requestID
}

// SetActor sets the admin performing the action
func (cm *ClientMetadata) SetActor(adminID uint) {
	cm.ActorID = &adminID
}

func actorID(metadata *ClientMetadata) *uint {
	if metadata == nil {
		return nil
	}
	return metadata.ActorID
}

// ToParsedSmsSummary converts a parse to its admin view
func ToParsedSmsSummary(p *models.ParsedPayment) *dto.ParsedSmsSummary {
	if p == nil {
		return nil
	}
	candidates := []string(p.Candidates)
	if candidates == nil {
		candidates = []string{}
	}
	return &dto.ParsedSmsSummary{
		ID:            p.ID,
		Amount:        p.Amount,
		Currency:      p.Currency,
		Ref:           p.Ref,
		PayerMask:     p.PayerMask,
		Confidence:    p.Confidence,
		ParserVersion: p.ParserVersion,
		Strategy:      string(p.Strategy),
		Candidates:    candidates,
		MatchedEntity: p.MatchedEntity,
		CreatedAt:     utils.ToISO(p.CreatedAt),
	}
}

// ToSmsItem converts an inbound SMS and its current parse to the admin view
func ToSmsItem(sms *models.RawSms, parsed *models.ParsedPayment) dto.SmsItem {
	item := dto.SmsItem{
		ID:            sms.ID,
		Text:          sms.Text,
		FromMsisdn:    sms.FromMsisdn,
		FromMasked:    utils.MaskPhone(sms.FromMsisdn),
		ToMsisdn:      sms.ToMsisdn,
		ReceivedAt:    utils.ToISO(sms.ReceivedAt),
		IngestStatus:  string(sms.IngestStatus),
		ModemID:       sms.Metadata.ModemID,
		SimSlot:       sms.Metadata.SimSlot,
		ParseFailures: sms.Metadata.ParseFailures,
		Parsed:        ToParsedSmsSummary(parsed),
	}
	if r := sms.Metadata.Review; r != nil {
		item.Review = &dto.SmsReviewInfo{
			Reason:     string(r.Reason),
			Confidence: r.Confidence,
			Candidates: r.Candidates,
			Note:       r.Note,
			At:         utils.ToISO(r.At),
		}
	}
	if a := sms.Metadata.AdminResolution; a != nil {
		item.AdminResolution = &dto.SmsAdminResolution{
			Status:     string(a.Status),
			Note:       a.Note,
			ResolvedBy: a.ResolvedBy,
			ResolvedAt: utils.ToISO(a.ResolvedAt),
		}
	}
	return item
}

// ToIntentSummary converts the common entity view to its DTO
func ToIntentSummary(i models.PaymentIntent) dto.IntentSummary {
	return dto.IntentSummary{
		Kind:      string(i.Kind),
		ID:        i.ID,
		UserID:    i.UserID,
		Amount:    i.Amount,
		Status:    i.Status,
		Ref:       i.Ref,
		Label:     i.Label,
		CreatedAt: utils.ToISO(i.CreatedAt),
	}
}

// ToPaymentItem converts a payment ledger row to its DTO
func ToPaymentItem(p *models.Payment) dto.PaymentItem {
	item := dto.PaymentItem{
		ID:           p.ID,
		Kind:         string(p.Kind),
		IntentID:     p.IntentID,
		Amount:       p.Amount,
		Currency:     p.Currency,
		Status:       string(p.Status),
		SmsParsedID:  p.SmsParsedID,
		Ref:          p.Metadata.Ref,
		ManualReason: p.Metadata.ManualReason,
		CreatedAt:    utils.ToISO(p.CreatedAt),
	}
	if p.ConfirmedAt != nil {
		item.ConfirmedAt = utils.ToPtr(utils.ToISO(*p.ConfirmedAt))
	}
	return item
}

// ToTicketPassItem converts a ticket pass to its DTO
func ToTicketPassItem(p *models.TicketPass) *dto.TicketPassItem {
	if p == nil {
		return nil
	}
	return &dto.TicketPassItem{
		ID:        p.ID,
		OrderID:   p.OrderID,
		Zone:      p.Zone,
		Gate:      p.Gate,
		State:     p.State,
		CreatedAt: utils.ToISO(p.CreatedAt),
	}
}

// ToParserPromptItem converts a parser prompt to its DTO
func ToParserPromptItem(p *models.SmsParserPrompt) dto.ParserPromptItem {
	return dto.ParserPromptItem{
		ID:        p.ID,
		Label:     p.Label,
		Body:      p.Body,
		Version:   p.Version,
		IsActive:  p.IsActive,
		CreatedBy: p.CreatedBy,
		CreatedAt: utils.ToISO(p.CreatedAt),
	}
}
