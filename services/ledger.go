// services/ledger.go
package services

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"kenya-earn/models"
	"kenya-earn/monitoring"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Balance rules, applied in the same DB transaction as the entry:
//
//	credit  completed        +amount
//	credit  pending          0 (until it completes)
//	debit   pending/completed -amount (held on request)
//	debit   pending -> failed +amount (refund)
//	memo    any              0
//
// So a wallet balance always equals LedgerBalance.

// checkAmount accepts positive amounts in whole cents; balance columns are numeric(12,2).
func checkAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !amount.Equal(amount.Round(2)) {
		return ErrAmountPrecision
	}
	return nil
}

// lockWallet loads the wallet row FOR UPDATE.
func lockWallet(tx *gorm.DB, walletID string) (*models.Wallet, error) {
	var w models.Wallet
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&w, "id = ?", walletID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// lockWalletForProfile loads a profile's wallet FOR UPDATE.
func lockWalletForProfile(tx *gorm.DB, profileID string) (*models.Wallet, error) {
	var w models.Wallet
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&w, "profile_id = ?", profileID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// lockWalletsForProfiles locks the wallets of several profiles in ascending
// wallet id order and returns them keyed by profile id. Every path that holds
// two wallets goes through here so they cannot deadlock against each other.
func lockWalletsForProfiles(tx *gorm.DB, profileIDs ...string) (map[string]*models.Wallet, error) {
	var ids []string
	if err := tx.Model(&models.Wallet{}).
		Where("profile_id IN ?", profileIDs).
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	sort.Strings(ids)

	locked := make(map[string]*models.Wallet, len(ids))
	for _, id := range ids {
		w, err := lockWallet(tx, id)
		if err != nil {
			return nil, err
		}
		locked[w.ProfileID] = w
	}
	return locked, nil
}

// applyDelta moves a locked wallet's balance, refusing to go below zero.
func applyDelta(tx *gorm.DB, w *models.Wallet, delta decimal.Decimal) error {
	if delta.IsZero() {
		return nil
	}
	next := w.Balance.Add(delta)
	if next.IsNegative() {
		return ErrInsufficientFunds
	}
	if err := tx.Model(&models.Wallet{}).Where("id = ?", w.ID).Update("balance", next).Error; err != nil {
		return fmt.Errorf("update wallet balance: %w", err)
	}
	w.Balance = next
	return nil
}

func insertDelta(t *models.Transaction) decimal.Decimal {
	switch t.Direction {
	case models.DirectionCredit:
		if t.Status == models.TransactionCompleted {
			return t.Amount
		}
	case models.DirectionDebit:
		if t.Status == models.TransactionPending || t.Status == models.TransactionCompleted {
			return t.Amount.Neg()
		}
	}
	return decimal.Zero
}

func transitionDelta(t *models.Transaction, to models.TransactionStatus) decimal.Decimal {
	switch {
	case t.Direction == models.DirectionCredit && to == models.TransactionCompleted:
		return t.Amount
	case t.Direction == models.DirectionDebit && to == models.TransactionFailed:
		return t.Amount
	}
	return decimal.Zero
}

// appendEntry inserts a ledger entry into a locked wallet and applies its balance rule.
func appendEntry(tx *gorm.DB, w *models.Wallet, t *models.Transaction) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now().UTC()
	}
	t.WalletID = w.ID

	if err := applyDelta(tx, w, insertDelta(t)); err != nil {
		return err
	}
	if err := tx.Create(t).Error; err != nil {
		return fmt.Errorf("insert %s transaction: %w", t.Type, err)
	}
	return nil
}

// transitionEntry moves a pending entry to its final status, at most once.
// It reports false when the entry had already left pending.
func transitionEntry(tx *gorm.DB, w *models.Wallet, t *models.Transaction, to models.TransactionStatus) (bool, error) {
	res := tx.Model(&models.Transaction{}).
		Where("id = ? AND status = ?", t.ID, models.TransactionPending).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	if err := applyDelta(tx, w, transitionDelta(t, to)); err != nil {
		return false, err
	}
	t.Status = to
	return true, nil
}

// recordEntries counts committed ledger entries.
func recordEntries(entries ...*models.Transaction) {
	for _, t := range entries {
		monitoring.LedgerEntriesTotal.WithLabelValues(string(t.Type), string(t.Status)).Inc()
	}
}

// LedgerBalance recomputes a wallet balance from its entries.
func LedgerBalance(db *gorm.DB, walletID string) (decimal.Decimal, error) {
	var entries []models.Transaction
	if err := db.Select("amount", "direction", "status").
		Where("wallet_id = ?", walletID).
		Find(&entries).Error; err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for i := range entries {
		total = total.Add(insertDelta(&entries[i]))
	}
	return total, nil
}
