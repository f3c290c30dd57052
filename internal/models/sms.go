package models

import (
	"time"
)

// SmsCampaign is a bulk SMS send to a client audience. Campaigns are drafted,
// optionally scheduled, and dispatched by a background job.
type SmsCampaign struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Name        string     `gorm:"not null" json:"name"`
	Message     string     `gorm:"type:text;not null" json:"message"`
	Audience    string     `gorm:"not null;default:all_clients" json:"audience"`
	Status      string     `gorm:"default:draft;index" json:"status"`
	ScheduledAt *time.Time `gorm:"index" json:"scheduled_at"`
	SentAt      *time.Time `json:"sent_at"`
	SentCount   int        `gorm:"default:0" json:"sent_count"`
	FailedCount int        `gorm:"default:0" json:"failed_count"`
	CreatedByID uint       `json:"created_by_id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// Associations
	CreatedBy User         `gorm:"foreignKey:CreatedByID" json:"-"`
	Messages  []SmsMessage `gorm:"foreignKey:CampaignID" json:"messages,omitempty"`
}

// TableName specifies the table name for SmsCampaign
func (SmsCampaign) TableName() string {
	return "sms_campaigns"
}

// Campaign audience constants
const (
	SmsAudienceAllClients  = "all_clients"
	SmsAudienceActiveLoans = "active_loans"
	SmsAudienceInArrears   = "in_arrears"
)

// Campaign status constants
const (
	SmsCampaignStatusDraft     = "draft"
	SmsCampaignStatusScheduled = "scheduled"
	SmsCampaignStatusSending   = "sending"
	SmsCampaignStatusSent      = "sent"
)

// ValidSmsAudience reports whether a is a known audience selector
func ValidSmsAudience(a string) bool {
	switch a {
	case SmsAudienceAllClients, SmsAudienceActiveLoans, SmsAudienceInArrears:
		return true
	}
	return false
}

// IsDue returns true when a scheduled campaign should be dispatched
func (c *SmsCampaign) IsDue(ref time.Time) bool {
	if c.Status != SmsCampaignStatusScheduled {
		return false
	}
	return c.ScheduledAt == nil || !c.ScheduledAt.After(ref)
}

// SmsMessage is one outbound message belonging to a campaign or a system
// reminder. Delivery is simulated by the default provider.
type SmsMessage struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	CampaignID *uint      `gorm:"index" json:"campaign_id"`
	UserID     uint       `gorm:"not null;index" json:"user_id"`
	Phone      string     `gorm:"not null" json:"phone"`
	Body       string     `gorm:"type:text;not null" json:"body"`
	Status     string     `gorm:"default:queued;index" json:"status"`
	SentAt     *time.Time `json:"sent_at"`
	Error      *string    `json:"error"`
	CreatedAt  time.Time  `json:"created_at"`
}

// TableName specifies the table name for SmsMessage
func (SmsMessage) TableName() string {
	return "sms_messages"
}

// Message status constants
const (
	SmsMessageStatusQueued = "queued"
	SmsMessageStatusSent   = "sent"
	SmsMessageStatusFailed = "failed"
)
