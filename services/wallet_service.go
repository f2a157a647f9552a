// services/wallet_service.go
package services

import (
	"errors"

	"kenya-earn/logging"
	"kenya-earn/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrWithdrawalSettled = newError(KindConflict, "Withdrawal already settled")

type WalletService struct {
	DB *gorm.DB
}

func NewWalletService(db *gorm.DB) *WalletService {
	return &WalletService{DB: db}
}

// WalletView is the wallet page: balance plus history, newest first.
type WalletView struct {
	Balance      decimal.Decimal      `json:"balance"`
	Transactions []models.Transaction `json:"transactions"`
}

// GetWallet returns the caller's balance and ledger.
func (s *WalletService) GetWallet(profileID string) (*WalletView, error) {
	var w models.Wallet
	if err := s.DB.First(&w, "profile_id = ?", profileID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}

	var txs []models.Transaction
	if err := s.DB.Where("wallet_id = ?", w.ID).Order("timestamp DESC").Find(&txs).Error; err != nil {
		return nil, err
	}
	return &WalletView{Balance: w.Balance, Transactions: txs}, nil
}

// TransferResult holds both legs of a completed transfer.
type TransferResult struct {
	Debit  *models.Transaction `json:"debit"`
	Credit *models.Transaction `json:"credit"`
}

// Transfer moves amount from sender to the profile owning recipientCode.
// Both wallets are locked in ascending id order.
func (s *WalletService) Transfer(sender *models.Profile, recipientCode string, amount decimal.Decimal) (*TransferResult, error) {
	if !sender.IsActivated {
		return nil, ErrNotActivated
	}
	if err := checkAmount(amount); err != nil {
		return nil, err
	}

	var recipient models.Profile
	if err := s.DB.First(&recipient, "referral_code = ?", recipientCode).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecipientNotFound
		}
		return nil, err
	}
	if recipient.ID == sender.ID {
		return nil, ErrSelfTransfer
	}

	result := &TransferResult{}
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		locked, err := lockWalletsForProfiles(tx, sender.ID, recipient.ID)
		if err != nil {
			return err
		}
		from, to := locked[sender.ID], locked[recipient.ID]
		if from == nil || to == nil {
			return ErrWalletNotFound
		}

		senderID, recipientID := sender.ID, recipient.ID
		result.Debit = &models.Transaction{
			Amount:      amount,
			Type:        models.TransactionTransfer,
			Status:      models.TransactionCompleted,
			Direction:   models.DirectionDebit,
			RecipientID: &recipientID,
			Description: "Transfer to " + recipient.FullName(),
		}
		if err := appendEntry(tx, from, result.Debit); err != nil {
			return err
		}

		result.Credit = &models.Transaction{
			Amount:      amount,
			Type:        models.TransactionTransfer,
			Status:      models.TransactionCompleted,
			Direction:   models.DirectionCredit,
			RecipientID: &senderID,
			Description: "Transfer from " + sender.FullName(),
			Timestamp:   result.Debit.Timestamp,
		}
		return appendEntry(tx, to, result.Credit)
	})
	if err != nil {
		return nil, err
	}

	recordEntries(result.Debit, result.Credit)
	logging.Logger.Info("transfer completed",
		zap.String("sender", sender.ID),
		zap.String("recipient", recipient.ID),
		zap.String("amount", amount.StringFixed(2)),
	)
	return result, nil
}

// Withdraw holds amount from the balance as a pending withdrawal.
// Settlement happens out of band through SettleWithdrawal.
func (s *WalletService) Withdraw(profile *models.Profile, amount decimal.Decimal) (*models.Transaction, error) {
	if !profile.IsActivated {
		return nil, ErrNotActivated
	}
	if err := checkAmount(amount); err != nil {
		return nil, err
	}

	entry := &models.Transaction{
		Amount:      amount,
		Type:        models.TransactionWithdrawal,
		Status:      models.TransactionPending,
		Direction:   models.DirectionDebit,
		Description: "Withdrawal request",
	}
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		w, err := lockWalletForProfile(tx, profile.ID)
		if err != nil {
			return err
		}
		return appendEntry(tx, w, entry)
	})
	if err != nil {
		return nil, err
	}

	recordEntries(entry)
	logging.Logger.Info("withdrawal requested",
		zap.String("profile", profile.ID),
		zap.String("transaction", entry.ID),
		zap.String("amount", amount.StringFixed(2)),
	)
	return entry, nil
}

// SettleWithdrawal completes a pending withdrawal, or fails it and refunds the hold.
func (s *WalletService) SettleWithdrawal(transactionID string, approve bool) (*models.Transaction, error) {
	var entry models.Transaction
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&entry, "id = ? AND type = ?", transactionID, models.TransactionWithdrawal).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrWithdrawalNotFound
			}
			return err
		}

		w, err := lockWallet(tx, entry.WalletID)
		if err != nil {
			return err
		}

		to := models.TransactionCompleted
		if !approve {
			to = models.TransactionFailed
		}
		moved, err := transitionEntry(tx, w, &entry, to)
		if err != nil {
			return err
		}
		if !moved {
			return ErrWithdrawalSettled
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	recordEntries(&entry)
	logging.Logger.Info("withdrawal settled",
		zap.String("transaction", entry.ID),
		zap.String("status", string(entry.Status)),
	)
	return &entry, nil
}

// Deposit credits a profile's wallet with a completed deposit.
func (s *WalletService) Deposit(profileID string, amount decimal.Decimal, description string) (*models.Transaction, error) {
	if err := checkAmount(amount); err != nil {
		return nil, err
	}

	entry := &models.Transaction{
		Amount:      amount,
		Type:        models.TransactionDeposit,
		Status:      models.TransactionCompleted,
		Direction:   models.DirectionCredit,
		Description: description,
	}
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		w, err := lockWalletForProfile(tx, profileID)
		if err != nil {
			return err
		}
		return appendEntry(tx, w, entry)
	})
	if err != nil {
		return nil, err
	}

	recordEntries(entry)
	return entry, nil
}

// PendingWithdrawals lists withdrawals awaiting settlement, oldest first.
func (s *WalletService) PendingWithdrawals() ([]models.Transaction, error) {
	var txs []models.Transaction
	err := s.DB.Where("type = ? AND status = ?", models.TransactionWithdrawal, models.TransactionPending).
		Order("timestamp ASC").
		Find(&txs).Error
	return txs, err
}
