package models

import "time"

// Referral links a referrer to the profile that signed up with their code.
// It is the stable key for the referral bonus ledger entry.
type Referral struct {
	ID         string `gorm:"primaryKey;size:36" json:"id"`
	ReferrerID string `gorm:"size:36;index;not null" json:"referrer_id"`
	ReferredID string `gorm:"size:36;uniqueIndex;not null" json:"referred_id"`

	ReferralCodeUsed   string     `gorm:"size:10;not null" json:"referral_code_used"`
	BonusTransactionID *string    `gorm:"size:36" json:"bonus_transaction_id,omitempty"`
	BonusAwarded       bool       `gorm:"not null;default:false" json:"bonus_awarded"`
	AwardedAt          *time.Time `json:"awarded_at,omitempty"`

	Timestamps
}
