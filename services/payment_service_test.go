package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"kenya-earn/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testSecret = "sk_test_secret"

func newPayments(db *gorm.DB, gw PaymentGateway) *PaymentService {
	return NewPaymentService(db, gw, testSecret, DefaultRules(), nil)
}

func chargeSuccess(reference string, amount int64) []byte {
	return []byte(fmt.Sprintf(`{"event":"charge.success","data":{"reference":%q,"amount":%d,"currency":"KES",`+
		`"metadata":{"custom_fields":[{"display_name":"Phone","variable_name":"phone","value":"254712345678"}]}}}`,
		reference, amount))
}

func countEntries(t *testing.T, db *gorm.DB, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.Transaction{}).Where(query, args...).Count(&n).Error)
	return n
}

func reload(t *testing.T, db *gorm.DB, p *models.Profile) *models.Profile {
	t.Helper()
	var out models.Profile
	require.NoError(t, db.First(&out, "id = ?", p.ID).Error)
	return &out
}

func TestInitiateRecordsPendingPayment(t *testing.T) {
	db := newTestDB(t)
	gw := &fakeGateway{}
	svc := newPayments(db, gw)
	p := seedProfile(t, db, "Amina", false)

	session, err := svc.Initiate(context.Background(), p, "254711000111", "")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(session.Reference, "ACTIVATE-"+p.ID+"-"))
	assert.NotEmpty(t, session.AuthorizationURL)
	requireAmount(t, "300", session.Amount)
	assert.Equal(t, "KES", session.Currency)

	require.Len(t, gw.inits, 1)
	assert.Equal(t, int64(30000), gw.inits[0].Amount)
	assert.Equal(t, p.Email, gw.inits[0].Email)
	assert.Equal(t, "KES", gw.inits[0].Currency)

	var payment models.Payment
	require.NoError(t, db.First(&payment, "reference = ?", session.Reference).Error)
	assert.Equal(t, models.PaymentPending, payment.Status)
	assert.Equal(t, "254711000111", payment.PhoneNumber)
}

func TestInitiateRejections(t *testing.T) {
	db := newTestDB(t)
	svc := newPayments(db, &fakeGateway{initErr: errors.New("boom")})

	active := seedProfile(t, db, "Active", true)
	_, err := svc.Initiate(context.Background(), active, "254711000111", "")
	assert.ErrorIs(t, err, ErrAlreadyActivated)

	p := seedProfile(t, db, "Fresh", false)
	_, err = svc.Initiate(context.Background(), p, "0711000111", "")
	assert.ErrorIs(t, err, ErrInvalidPhone)

	_, err = svc.Initiate(context.Background(), p, "254711000111", "")
	assert.Equal(t, KindExternal, KindOf(err))

	var payments int64
	require.NoError(t, db.Model(&models.Payment{}).Count(&payments).Error)
	assert.Zero(t, payments)
}

func TestWebhookActivatesOnce(t *testing.T) {
	db := newTestDB(t)
	svc := newPayments(db, &fakeGateway{})
	p := seedProfile(t, db, "Amina", false)
	pay := seedPayment(t, db, p, "ACTIVATE-"+p.ID+"-1", 0)

	body := chargeSuccess(pay.Reference, 30000)
	sig := Sign(testSecret, body)

	outcome, err := svc.HandleWebhook(context.Background(), body, sig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeActivated, outcome)

	outcome, err = svc.HandleWebhook(context.Background(), body, sig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)

	assert.True(t, reload(t, db, p).IsActivated)
	assert.Equal(t, int64(1), countEntries(t, db, "type = ?", models.TransactionActivation))

	var stored models.Payment
	require.NoError(t, db.First(&stored, "id = ?", pay.ID).Error)
	assert.Equal(t, models.PaymentCompleted, stored.Status)
	assert.NotNil(t, stored.CompletedAt)

	// the activation memo does not touch the balance
	requireAmount(t, "0", walletOf(t, db, p).Balance)
	requireReconciled(t, db, p)

	verified, err := svc.VerifyForProfile(p, pay.Reference)
	require.NoError(t, err)
	assert.True(t, verified)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	db := newTestDB(t)
	svc := newPayments(db, &fakeGateway{})
	p := seedProfile(t, db, "Amina", false)
	pay := seedPayment(t, db, p, "ACTIVATE-bad-sig", 0)

	body := chargeSuccess(pay.Reference, 30000)
	for _, sig := range []string{"", "not-hex", Sign("other-secret", body)} {
		_, err := svc.HandleWebhook(context.Background(), body, sig)
		assert.ErrorIs(t, err, ErrInvalidSignature)
	}

	assert.False(t, reload(t, db, p).IsActivated)
	assert.Zero(t, countEntries(t, db, "1 = 1"))
}

func TestWebhookIgnoresOtherEvents(t *testing.T) {
	db := newTestDB(t)
	svc := newPayments(db, &fakeGateway{})

	body := []byte(`{"event":"transfer.success","data":{"reference":"x"}}`)
	outcome, err := svc.HandleWebhook(context.Background(), body, Sign(testSecret, body))
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)

	body = []byte(`{"event":`)
	_, err = svc.HandleWebhook(context.Background(), body, Sign(testSecret, body))
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestWebhookUnknownReference(t *testing.T) {
	db := newTestDB(t)
	svc := newPayments(db, &fakeGateway{})

	body := chargeSuccess("ACTIVATE-nobody-1", 30000)
	outcome, err := svc.HandleWebhook(context.Background(), body, Sign(testSecret, body))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnknownReference, outcome)
	assert.Zero(t, countEntries(t, db, "1 = 1"))
}

func TestWebhookUnderpaidDoesNotActivate(t *testing.T) {
	db := newTestDB(t)
	svc := newPayments(db, &fakeGateway{})
	p := seedProfile(t, db, "Amina", false)
	pay := seedPayment(t, db, p, "ACTIVATE-under", 0)

	body := chargeSuccess(pay.Reference, 29999)
	outcome, err := svc.HandleWebhook(context.Background(), body, Sign(testSecret, body))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnderpaid, outcome)
	assert.False(t, reload(t, db, p).IsActivated)

	var stored models.Payment
	require.NoError(t, db.First(&stored, "id = ?", pay.ID).Error)
	assert.Equal(t, models.PaymentPending, stored.Status)
}

func TestActivationSettlesPendingReferralBonus(t *testing.T) {
	db := newTestDB(t)
	profiles := NewProfileService(db, DefaultRules(), nil)
	svc := newPayments(db, &fakeGateway{})

	referrer := seedProfile(t, db, "Mercy", true)
	referred, created, err := profiles.CompleteProfile(
		Identity{UID: "uid-brian", Name: "Brian Mwangi", Email: "brian@example.com"},
		CompletionInput{PhoneNumber: "254722000333", City: "Nairobi", Address: "Moi Avenue", ReferralCode: referrer.ReferralCode},
	)
	require.NoError(t, err)
	require.True(t, created)

	bonuses := entriesOf(t, db, referrer)
	require.Len(t, bonuses, 1)
	assert.Equal(t, models.TransactionPending, bonuses[0].Status)
	assert.Equal(t, "Brian used your code", bonuses[0].Description)
	requireAmount(t, "0", walletOf(t, db, referrer).Balance)

	pay := seedPayment(t, db, referred, "ACTIVATE-ref", 0)
	for i := 0; i < 3; i++ {
		_, err := svc.ConfirmCharge(context.Background(), pay.Reference, 30000)
		require.NoError(t, err)
	}

	bonuses = entriesOf(t, db, referrer)
	require.Len(t, bonuses, 1)
	assert.Equal(t, models.TransactionCompleted, bonuses[0].Status)
	requireAmount(t, "50", walletOf(t, db, referrer).Balance)
	requireReconciled(t, db, referrer)

	var ref models.Referral
	require.NoError(t, db.First(&ref, "referred_id = ?", referred.ID).Error)
	assert.True(t, ref.BonusAwarded)
	require.NotNil(t, ref.BonusTransactionID)
	assert.Equal(t, bonuses[0].ID, *ref.BonusTransactionID)
}

func TestActivationCreatesMissingReferralBonus(t *testing.T) {
	db := newTestDB(t)
	svc := newPayments(db, &fakeGateway{})

	referrer := seedProfile(t, db, "Mercy", true)
	referred := seedProfile(t, db, "Brian", false)
	require.NoError(t, db.Model(referred).Update("referred_by_id", referrer.ID).Error)

	pay := seedPayment(t, db, referred, "ACTIVATE-fallback", 0)
	outcome, err := svc.ConfirmCharge(context.Background(), pay.Reference, 30000)
	require.NoError(t, err)
	assert.Equal(t, OutcomeActivated, outcome)

	bonuses := entriesOf(t, db, referrer)
	require.Len(t, bonuses, 1)
	assert.Equal(t, models.TransactionCompleted, bonuses[0].Status)
	requireAmount(t, "50", walletOf(t, db, referrer).Balance)
	requireReconciled(t, db, referrer)
}

func TestConcurrentDeliveriesActivateOnce(t *testing.T) {
	db := newTestDB(t)
	profiles := NewProfileService(db, DefaultRules(), nil)
	svc := newPayments(db, &fakeGateway{})

	referrer := seedProfile(t, db, "Mercy", true)
	referred, _, err := profiles.CompleteProfile(
		Identity{UID: "uid-brian", Name: "Brian Mwangi", Email: "brian@example.com"},
		CompletionInput{PhoneNumber: "254722000333", City: "Nairobi", Address: "Moi Avenue", ReferralCode: referrer.ReferralCode},
	)
	require.NoError(t, err)
	pay := seedPayment(t, db, referred, "ACTIVATE-race", 0)
	body := chargeSuccess(pay.Reference, 30000)
	sig := Sign(testSecret, body)

	const deliveries = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes = map[Outcome]int{}
		errs     []error
	)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := svc.HandleWebhook(context.Background(), body, sig)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			outcomes[outcome]++
		}()
	}
	wg.Wait()

	require.Empty(t, errs)
	assert.Equal(t, 1, outcomes[OutcomeActivated])
	assert.Equal(t, deliveries-1, outcomes[OutcomeDuplicate])

	assert.Equal(t, int64(1), countEntries(t, db, "type = ? AND payment_id = ?", models.TransactionActivation, pay.ID))
	bonuses := entriesOf(t, db, referrer)
	require.Len(t, bonuses, 1)
	assert.Equal(t, models.TransactionCompleted, bonuses[0].Status)
	requireAmount(t, "50", walletOf(t, db, referrer).Balance)
	requireReconciled(t, db, referrer)
	requireReconciled(t, db, referred)
	assert.True(t, reload(t, db, referred).IsActivated)
}

func TestActivationLocksWalletsInIDOrder(t *testing.T) {
	db := newTestDB(t)
	svc := newPayments(db, &fakeGateway{})

	referrer := seedProfile(t, db, "Mercy", true)
	referred := seedProfile(t, db, "Brian", false)
	require.NoError(t, db.Model(referred).Update("referred_by_id", referrer.ID).Error)
	pay := seedPayment(t, db, referred, "ACTIVATE-order", 0)

	locks := recordWalletLocks(t, db)
	_, err := svc.ConfirmCharge(context.Background(), pay.Reference, 30000)
	require.NoError(t, err)

	got := locks()
	require.Len(t, got, 2)
	assert.True(t, sort.StringsAreSorted(got), "locked out of order: %v", got)
	assert.ElementsMatch(t, []string{walletOf(t, db, referrer).ID, walletOf(t, db, referred).ID}, got)
}

func TestReplayGuardShortCircuits(t *testing.T) {
	db := newTestDB(t)
	guard := &memoryGuard{}
	svc := NewPaymentService(db, &fakeGateway{}, testSecret, DefaultRules(), guard)
	p := seedProfile(t, db, "Amina", false)
	pay := seedPayment(t, db, p, "ACTIVATE-guarded", 0)

	outcome, err := svc.ConfirmCharge(context.Background(), pay.Reference, 30000)
	require.NoError(t, err)
	assert.Equal(t, OutcomeActivated, outcome)

	seen, err := guard.Seen(context.Background(), pay.Reference)
	require.NoError(t, err)
	assert.True(t, seen)

	outcome, err = svc.ConfirmCharge(context.Background(), pay.Reference, 30000)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)
}

func TestSweepPending(t *testing.T) {
	db := newTestDB(t)
	gw := &fakeGateway{verify: map[string]*VerifyResult{}}
	svc := newPayments(db, gw)

	paid := seedProfile(t, db, "Paid", false)
	abandoned := seedProfile(t, db, "Gone", false)
	stale := seedProfile(t, db, "Stale", false)
	fresh := seedProfile(t, db, "Fresh", false)

	paidPay := seedPayment(t, db, paid, "ACTIVATE-paid", 10*time.Minute)
	gonePay := seedPayment(t, db, abandoned, "ACTIVATE-gone", 10*time.Minute)
	stalePay := seedPayment(t, db, stale, "ACTIVATE-stale", 48*time.Hour)
	freshPay := seedPayment(t, db, fresh, "ACTIVATE-fresh", 0)

	gw.verify[paidPay.Reference] = &VerifyResult{Status: "success", Reference: paidPay.Reference, Amount: 30000}
	gw.verify[gonePay.Reference] = &VerifyResult{Status: "abandoned", Reference: gonePay.Reference}

	stats, err := svc.SweepPending(context.Background(), 2*time.Minute, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Checked)
	assert.Equal(t, 1, stats.Activated)
	assert.Equal(t, 2, stats.Expired)
	assert.Zero(t, stats.Errors)

	statusOf := func(id string) models.PaymentStatus {
		var pay models.Payment
		require.NoError(t, db.First(&pay, "id = ?", id).Error)
		return pay.Status
	}
	assert.Equal(t, models.PaymentCompleted, statusOf(paidPay.ID))
	assert.Equal(t, models.PaymentFailed, statusOf(gonePay.ID))
	assert.Equal(t, models.PaymentFailed, statusOf(stalePay.ID))
	assert.Equal(t, models.PaymentPending, statusOf(freshPay.ID))
	assert.True(t, reload(t, db, paid).IsActivated)

	pending, err := svc.PendingPayments()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, freshPay.ID, pending[0].ID)
}

func TestSweepKeepsPaymentOnProviderError(t *testing.T) {
	db := newTestDB(t)
	svc := newPayments(db, &fakeGateway{verifyErr: errors.New("timeout")})
	p := seedProfile(t, db, "Amina", false)
	pay := seedPayment(t, db, p, "ACTIVATE-err", 10*time.Minute)

	stats, err := svc.SweepPending(context.Background(), 2*time.Minute, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Errors)

	var stored models.Payment
	require.NoError(t, db.First(&stored, "id = ?", pay.ID).Error)
	assert.Equal(t, models.PaymentPending, stored.Status)
}

func TestLateSuccessAfterExpiryStillActivates(t *testing.T) {
	db := newTestDB(t)
	svc := newPayments(db, &fakeGateway{})
	p := seedProfile(t, db, "Amina", false)
	pay := seedPayment(t, db, p, "ACTIVATE-late", 0)
	require.NoError(t, db.Model(pay).Update("status", models.PaymentFailed).Error)

	outcome, err := svc.ConfirmCharge(context.Background(), pay.Reference, 30000)
	require.NoError(t, err)
	assert.Equal(t, OutcomeActivated, outcome)
	assert.True(t, reload(t, db, p).IsActivated)
}

func TestVerifyForProfileScopesToOwner(t *testing.T) {
	db := newTestDB(t)
	svc := newPayments(db, &fakeGateway{})
	owner := seedProfile(t, db, "Owner", false)
	other := seedProfile(t, db, "Other", false)
	pay := seedPayment(t, db, owner, "ACTIVATE-"+uuid.NewString(), 0)

	done, err := svc.VerifyForProfile(owner, pay.Reference)
	require.NoError(t, err)
	assert.False(t, done)

	_, err = svc.VerifyForProfile(other, pay.Reference)
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}
