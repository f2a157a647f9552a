package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// Payment is one activation attempt through the payment gateway.
type Payment struct {
	ID          string          `gorm:"primaryKey;size:36" json:"id"`
	ProfileID   string          `gorm:"size:36;not null;index" json:"profile_id"`
	Reference   string          `gorm:"size:100;uniqueIndex;not null" json:"reference"` // provider reference
	Amount      decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"amount"`
	Currency    string          `gorm:"size:3;not null" json:"currency"`
	PhoneNumber string          `gorm:"size:15;not null" json:"phone_number"`
	Status      PaymentStatus   `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`

	Timestamps
}
