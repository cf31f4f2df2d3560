package models

import "time"

// SmsParserPrompt is a system prompt for the model extractor. At most one row is active.
type SmsParserPrompt struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Label     string    `gorm:"size:128;not null" json:"label"`
	Body      string    `gorm:"type:text;not null" json:"body"`
	Version   int       `gorm:"not null;default:1" json:"version"`
	IsActive  bool      `gorm:"not null;default:false" json:"is_active"`
	CreatedBy *uint     `json:"created_by,omitempty"`
	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
}

func (SmsParserPrompt) TableName() string {
	return "sms_parser_prompts"
}
