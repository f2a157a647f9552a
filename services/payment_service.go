// services/payment_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kenya-earn/logging"
	"kenya-earn/models"
	"kenya-earn/monitoring"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrInvalidSignature = newError(KindValidation, "invalid signature")

// Outcome is what a confirmed charge did to the ledger.
type Outcome string

const (
	OutcomeActivated        Outcome = "activated"
	OutcomeDuplicate        Outcome = "duplicate"
	OutcomeUnderpaid        Outcome = "underpaid"
	OutcomeUnknownReference Outcome = "unknown_reference"
	OutcomeIgnored          Outcome = "ignored"
)

const eventChargeSuccess = "charge.success"

type PaymentService struct {
	DB            *gorm.DB
	Gateway       PaymentGateway
	WebhookSecret string
	Rules         Rules
	Guard         ReplayGuard
}

func NewPaymentService(db *gorm.DB, gateway PaymentGateway, webhookSecret string, rules Rules, guard ReplayGuard) *PaymentService {
	if guard == nil {
		guard = NopReplayGuard{}
	}
	return &PaymentService{
		DB:            db,
		Gateway:       gateway,
		WebhookSecret: webhookSecret,
		Rules:         rules,
		Guard:         guard,
	}
}

// ActivationSession is returned to the client to open the hosted checkout.
type ActivationSession struct {
	Reference        string          `json:"reference"`
	AuthorizationURL string          `json:"authorization_url"`
	AccessCode       string          `json:"access_code"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
}

// Initiate opens a checkout for the activation fee and records a pending payment.
func (s *PaymentService) Initiate(ctx context.Context, p *models.Profile, phone, email string) (*ActivationSession, error) {
	if p.IsActivated {
		return nil, ErrAlreadyActivated
	}
	if !ValidPhone(phone) {
		return nil, ErrInvalidPhone
	}
	if email == "" {
		email = p.Email
	}
	if email == "" {
		email = "user@example.com"
	}

	reference := fmt.Sprintf("ACTIVATE-%s-%d", p.ID, time.Now().Unix())
	res, err := s.Gateway.Initialize(ctx, InitializeRequest{
		Email:     email,
		Amount:    s.Rules.ActivationAmount.Shift(2).IntPart(),
		Currency:  s.Rules.Currency,
		Reference: reference,
		Metadata: map[string]interface{}{
			"custom_fields": []map[string]string{
				{"display_name": "Phone", "variable_name": "phone", "value": phone},
			},
			"mobile_money": map[string]string{"provider": "mpesa"},
		},
	})
	if err != nil {
		logging.Logger.Error("paystack initialize failed", zap.String("profile", p.ID), zap.Error(err))
		return nil, External(ErrPaymentProvider.Message, err)
	}
	if res.Reference != "" {
		reference = res.Reference
	}

	payment := models.Payment{
		ID:          uuid.NewString(),
		ProfileID:   p.ID,
		Reference:   reference,
		Amount:      s.Rules.ActivationAmount,
		Currency:    s.Rules.Currency,
		PhoneNumber: phone,
		Status:      models.PaymentPending,
	}
	if err := s.DB.WithContext(ctx).Create(&payment).Error; err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	logging.Logger.Info("activation initiated", zap.String("profile", p.ID), zap.String("reference", reference))
	return &ActivationSession{
		Reference:        reference,
		AuthorizationURL: res.AuthorizationURL,
		AccessCode:       res.AccessCode,
		Amount:           payment.Amount,
		Currency:         payment.Currency,
	}, nil
}

// HandleWebhook authenticates a provider callback and applies it.
// The raw body must be passed untouched: the signature covers its bytes.
func (s *PaymentService) HandleWebhook(ctx context.Context, body []byte, signature string) (Outcome, error) {
	if !VerifySignature(s.WebhookSecret, body, signature) {
		monitoring.WebhookEventsTotal.WithLabelValues("invalid_signature").Inc()
		return "", ErrInvalidSignature
	}
	if !gjson.ValidBytes(body) {
		return "", Validation("Invalid payload")
	}

	event := gjson.GetBytes(body, "event").String()
	if event != eventChargeSuccess {
		monitoring.WebhookEventsTotal.WithLabelValues(string(OutcomeIgnored)).Inc()
		return OutcomeIgnored, nil
	}

	data := gjson.GetBytes(body, "data")
	reference := data.Get("reference").String()
	if reference == "" {
		return "", Validation("Missing reference")
	}
	phone := data.Get(`metadata.custom_fields.#(variable_name=="phone").value`).String()

	outcome, err := s.ConfirmCharge(ctx, reference, data.Get("amount").Int())
	if err != nil {
		monitoring.WebhookEventsTotal.WithLabelValues("error").Inc()
		return "", err
	}
	monitoring.WebhookEventsTotal.WithLabelValues(string(outcome)).Inc()

	logging.Logger.Info("paystack webhook processed",
		zap.String("reference", reference),
		zap.String("phone", phone),
		zap.String("outcome", string(outcome)),
	)
	return outcome, nil
}

// ConfirmCharge applies a successful charge of paidSubunits to the payment
// with this reference. The payment row is locked and moved to completed with a
// conditional update, so activation and bonus side effects run at most once
// however often the charge is delivered.
func (s *PaymentService) ConfirmCharge(ctx context.Context, reference string, paidSubunits int64) (Outcome, error) {
	if seen, err := s.Guard.Seen(ctx, reference); err != nil {
		logging.Logger.Warn("replay guard unavailable", zap.Error(err))
	} else if seen {
		return OutcomeDuplicate, nil
	}

	paid := decimal.New(paidSubunits, -2)
	var (
		outcome Outcome
		entries []*models.Transaction
	)

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var payment models.Payment
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&payment, "reference = ?", reference).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			outcome = OutcomeUnknownReference
			return nil
		}
		if err != nil {
			return err
		}

		if payment.Status == models.PaymentCompleted {
			outcome = OutcomeDuplicate
			return nil
		}
		if paid.LessThan(payment.Amount) {
			outcome = OutcomeUnderpaid
			return nil
		}

		now := time.Now().UTC()
		res := tx.Model(&models.Payment{}).
			Where("id = ? AND status <> ?", payment.ID, models.PaymentCompleted).
			Updates(map[string]interface{}{"status": models.PaymentCompleted, "completed_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			outcome = OutcomeDuplicate
			return nil
		}

		if err := tx.Model(&models.Profile{}).Where("id = ?", payment.ProfileID).Update("is_activated", true).Error; err != nil {
			return err
		}
		var profile models.Profile
		if err := tx.First(&profile, "id = ?", payment.ProfileID).Error; err != nil {
			return fmt.Errorf("load paying profile: %w", err)
		}

		holders := []string{profile.ID}
		if profile.ReferredByID != nil {
			holders = append(holders, *profile.ReferredByID)
		}
		locked, err := lockWalletsForProfiles(tx, holders...)
		if err != nil {
			return err
		}
		w := locked[profile.ID]
		if w == nil {
			return ErrWalletNotFound
		}

		if profile.ReferredByID != nil {
			bonus, err := s.settleReferralBonus(tx, &profile, locked)
			if err != nil {
				return fmt.Errorf("settle referral bonus: %w", err)
			}
			if bonus != nil {
				entries = append(entries, bonus)
			}
		}

		activation := &models.Transaction{
			Amount:      payment.Amount,
			Type:        models.TransactionActivation,
			Status:      models.TransactionCompleted,
			Direction:   models.DirectionMemo,
			PaymentID:   &payment.ID,
			Description: "Account activation",
			Timestamp:   now,
		}
		if err := appendEntry(tx, w, activation); err != nil {
			return err
		}
		entries = append(entries, activation)

		outcome = OutcomeActivated
		return nil
	})
	if err != nil {
		return "", err
	}

	switch outcome {
	case OutcomeActivated, OutcomeDuplicate:
		if err := s.Guard.Remember(ctx, reference); err != nil {
			logging.Logger.Warn("replay guard remember failed", zap.Error(err))
		}
	case OutcomeUnderpaid:
		logging.Logger.Warn("charge below activation amount",
			zap.String("reference", reference),
			zap.String("paid", paid.StringFixed(2)),
		)
	case OutcomeUnknownReference:
		logging.Logger.Warn("charge for unknown payment reference", zap.String("reference", reference))
	}
	recordEntries(entries...)
	return outcome, nil
}

// settleReferralBonus completes the referrer's bonus for this referred profile.
// The referral row is the key: a pending bonus is flipped, a missing one is
// created as completed, and a completed one is left alone. locked holds the
// wallets already taken by the caller, keyed by profile id.
func (s *PaymentService) settleReferralBonus(tx *gorm.DB, referred *models.Profile, locked map[string]*models.Wallet) (*models.Transaction, error) {
	var ref models.Referral
	err := tx.First(&ref, "referred_id = ?", referred.ID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		var referrer models.Profile
		if err := tx.First(&referrer, "id = ?", *referred.ReferredByID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				logging.Logger.Warn("referrer no longer exists", zap.String("profile", referred.ID))
				return nil, nil
			}
			return nil, err
		}
		ref = models.Referral{
			ID:               uuid.NewString(),
			ReferrerID:       referrer.ID,
			ReferredID:       referred.ID,
			ReferralCodeUsed: referrer.ReferralCode,
		}
		if err := tx.Create(&ref).Error; err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	w := locked[ref.ReferrerID]
	if w == nil {
		logging.Logger.Warn("referrer has no wallet", zap.String("referrer", ref.ReferrerID))
		return nil, nil
	}

	var bonus models.Transaction
	err = tx.First(&bonus, "referral_id = ?", ref.ID).Error
	switch {
	case err == nil:
		moved, err := transitionEntry(tx, w, &bonus, models.TransactionCompleted)
		if err != nil {
			return nil, err
		}
		if !moved {
			return nil, nil
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		bonus = models.Transaction{
			Amount:      s.Rules.ReferralBonus,
			Type:        models.TransactionDeposit,
			Status:      models.TransactionCompleted,
			Direction:   models.DirectionCredit,
			ReferralID:  &ref.ID,
			Description: referralDescription(referred),
		}
		if err := appendEntry(tx, w, &bonus); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	now := time.Now().UTC()
	if err := tx.Model(&ref).Updates(map[string]interface{}{
		"bonus_transaction_id": bonus.ID,
		"bonus_awarded":        true,
		"awarded_at":           now,
	}).Error; err != nil {
		return nil, err
	}
	return &bonus, nil
}

// VerifyForProfile reports whether the caller's payment with this reference
// has completed. The webhook stays the source of truth.
func (s *PaymentService) VerifyForProfile(p *models.Profile, reference string) (bool, error) {
	var payment models.Payment
	err := s.DB.First(&payment, "profile_id = ? AND reference = ?", p.ID, reference).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, ErrPaymentNotFound
	}
	if err != nil {
		return false, err
	}
	return payment.Status == models.PaymentCompleted, nil
}

// SweepStats summarises one reconciliation pass.
type SweepStats struct {
	Checked   int `json:"checked"`
	Activated int `json:"activated"`
	Expired   int `json:"expired"`
	Errors    int `json:"errors"`
}

const sweepBatchSize = 100

// SweepPending re-verifies payments stuck pending for at least minAge.
// Confirmed charges go through ConfirmCharge; anything the provider reports
// as failed, or still pending after ttl, is marked failed.
func (s *PaymentService) SweepPending(ctx context.Context, minAge, ttl time.Duration) (SweepStats, error) {
	var stats SweepStats
	now := time.Now().UTC()

	var pending []models.Payment
	if err := s.DB.WithContext(ctx).
		Where("status = ? AND created_at <= ?", models.PaymentPending, now.Add(-minAge)).
		Order("created_at ASC").
		Limit(sweepBatchSize).
		Find(&pending).Error; err != nil {
		return stats, err
	}

	for _, p := range pending {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		stats.Checked++
		expired := now.Sub(p.CreatedAt) >= ttl

		res, err := s.Gateway.Verify(ctx, p.Reference)
		if err != nil {
			logging.Logger.Warn("sweep verify failed", zap.String("reference", p.Reference), zap.Error(err))
			if !expired {
				stats.Errors++
				monitoring.PaymentSweepTotal.WithLabelValues("error").Inc()
				continue
			}
		}

		if err == nil && res.Status == "success" {
			outcome, err := s.ConfirmCharge(ctx, p.Reference, res.Amount)
			if err != nil {
				stats.Errors++
				monitoring.PaymentSweepTotal.WithLabelValues("error").Inc()
				logging.Logger.Error("sweep confirm failed", zap.String("reference", p.Reference), zap.Error(err))
				continue
			}
			if outcome == OutcomeActivated {
				stats.Activated++
				monitoring.PaymentSweepTotal.WithLabelValues("activated").Inc()
			}
			continue
		}

		if expired || (err == nil && providerGaveUp(res.Status)) {
			ok, err := s.markFailed(ctx, p.ID)
			if err != nil {
				stats.Errors++
				continue
			}
			if ok {
				stats.Expired++
				monitoring.PaymentSweepTotal.WithLabelValues("expired").Inc()
			}
		}
	}

	if stats.Checked > 0 {
		logging.Logger.Info("payment sweep finished",
			zap.Int("checked", stats.Checked),
			zap.Int("activated", stats.Activated),
			zap.Int("expired", stats.Expired),
			zap.Int("errors", stats.Errors),
		)
	}
	return stats, nil
}

func providerGaveUp(status string) bool {
	switch status {
	case "failed", "abandoned", "reversed":
		return true
	}
	return false
}

func (s *PaymentService) markFailed(ctx context.Context, paymentID string) (bool, error) {
	res := s.DB.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ? AND status = ?", paymentID, models.PaymentPending).
		Update("status", models.PaymentFailed)
	return res.RowsAffected == 1, res.Error
}

// PendingPayments lists payments awaiting confirmation, oldest first.
func (s *PaymentService) PendingPayments() ([]models.Payment, error) {
	var payments []models.Payment
	err := s.DB.Where("status = ?", models.PaymentPending).Order("created_at ASC").Find(&payments).Error
	return payments, err
}
