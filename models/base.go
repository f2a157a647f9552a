package models

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Clients read balances and amounts as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// All lists every persisted model in migration order.
func All() []interface{} {
	return []interface{}{
		&Profile{},
		&Wallet{},
		&Transaction{},
		&Referral{},
		&Task{},
		&Payment{},
	}
}
