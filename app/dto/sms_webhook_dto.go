package dto

// SmsWebhookRequest is the body posted by the SMS gateway (modem or phone forwarder)
// Field names follow the gateway contract (camelCase)
type SmsWebhookRequest struct {
	Text       string `json:"text" validate:"required,max=4096"`
	From       string `json:"from,omitempty" validate:"omitempty,max=32"`
	To         string `json:"to,omitempty" validate:"omitempty,max=32"`
	ReceivedAt string `json:"receivedAt,omitempty" validate:"omitempty,max=64"`
	ModemID    string `json:"modemId,omitempty" validate:"omitempty,max=64"`
	SimSlot    *int   `json:"simSlot,omitempty" validate:"omitempty,min=0,max=16"`
}

// SmsWebhookResponse returns the id of the stored SMS
type SmsWebhookResponse struct {
	ID uint `json:"id"`
}
