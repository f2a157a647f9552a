// models/wallet.go
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet holds the denormalized balance for a profile.
// Every ledger entry applies its balance rule in the same DB transaction
// that inserts or transitions it, so Balance always matches the ledger.
type Wallet struct {
	ID        string          `gorm:"primaryKey;size:36" json:"id"`
	ProfileID string          `gorm:"uniqueIndex;size:36;not null" json:"profile_id"`
	Balance   decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"balance"`

	Transactions []Transaction `gorm:"foreignKey:WalletID" json:"transactions,omitempty"`

	Timestamps
}

type TransactionType string

const (
	TransactionActivation TransactionType = "activation"
	TransactionWithdrawal TransactionType = "withdrawal"
	TransactionDeposit    TransactionType = "deposit"
	TransactionTransfer   TransactionType = "transfer"
)

type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionCompleted TransactionStatus = "completed"
	// TransactionFailed is only reached by a rejected withdrawal (funds refunded).
	TransactionFailed TransactionStatus = "failed"
)

// Direction says how an entry moves the balance.
type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
	DirectionMemo   Direction = "memo" // activation fee paid outside the wallet
)

// Transaction is an append-only ledger entry. Only status ever changes:
// pending deposits complete, pending withdrawals complete or fail.
type Transaction struct {
	ID        string            `gorm:"primaryKey;size:36" json:"id"`
	WalletID  string            `gorm:"size:36;not null;index" json:"wallet_id"`
	Amount    decimal.Decimal   `gorm:"type:numeric(12,2);not null" json:"amount"`
	Type      TransactionType   `gorm:"type:varchar(20);not null;index" json:"type"`
	Status    TransactionStatus `gorm:"type:varchar(20);not null;default:'completed';index" json:"status"`
	Direction Direction         `gorm:"type:varchar(10);not null" json:"direction"`

	// RecipientID is the counterparty profile for transfers.
	RecipientID *string  `gorm:"size:36;index" json:"recipient,omitempty"`
	Recipient   *Profile `gorm:"foreignKey:RecipientID" json:"-"`

	// At most one ledger entry per referral, payment and task.
	ReferralID *string `gorm:"size:36;uniqueIndex" json:"referral_id,omitempty"`
	PaymentID  *string `gorm:"size:36;uniqueIndex" json:"payment_id,omitempty"`
	TaskID     *string `gorm:"size:36;uniqueIndex" json:"task_id,omitempty"`

	Description string    `gorm:"type:text" json:"description"`
	Timestamp   time.Time `gorm:"not null;index" json:"timestamp"`
}
