package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"kenya-earn/database/dbtest"
	"kenya-earn/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func requireAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, dec(want).Equal(got), "want %s, got %s", want, got.StringFixed(2))
}

var codeSeq struct {
	sync.Mutex
	n int
}

func nextCode() string {
	codeSeq.Lock()
	defer codeSeq.Unlock()
	codeSeq.n++
	return fmt.Sprintf("CODE%04d", codeSeq.n)
}

// seedProfile creates a profile with an empty wallet.
func seedProfile(t *testing.T, db *gorm.DB, first string, activated bool) *models.Profile {
	t.Helper()
	p := &models.Profile{
		ID:              uuid.NewString(),
		FirebaseUID:     "uid-" + uuid.NewString(),
		FirstName:       first,
		LastName:        "Otieno",
		Email:           first + "@example.com",
		PhoneNumber:     "254712345678",
		ReferralCode:    nextCode(),
		IsActivated:     activated,
		ThemePreference: models.ThemeSystem,
	}
	require.NoError(t, db.Create(p).Error)
	require.NoError(t, db.Create(&models.Wallet{ID: uuid.NewString(), ProfileID: p.ID, Balance: decimal.Zero}).Error)
	return p
}

// fund credits the wallet through the ledger so balances stay reconcilable.
func fund(t *testing.T, db *gorm.DB, p *models.Profile, amount string) {
	t.Helper()
	_, err := NewWalletService(db).Deposit(p.ID, dec(amount), "Seed deposit")
	require.NoError(t, err)
}

func walletOf(t *testing.T, db *gorm.DB, p *models.Profile) models.Wallet {
	t.Helper()
	var w models.Wallet
	require.NoError(t, db.First(&w, "profile_id = ?", p.ID).Error)
	return w
}

func entriesOf(t *testing.T, db *gorm.DB, p *models.Profile) []models.Transaction {
	t.Helper()
	w := walletOf(t, db, p)
	var txs []models.Transaction
	require.NoError(t, db.Where("wallet_id = ?", w.ID).Order("timestamp ASC").Find(&txs).Error)
	return txs
}

// requireReconciled checks the stored balance against the ledger.
func requireReconciled(t *testing.T, db *gorm.DB, p *models.Profile) {
	t.Helper()
	w := walletOf(t, db, p)
	sum, err := LedgerBalance(db, w.ID)
	require.NoError(t, err)
	require.Truef(t, sum.Equal(w.Balance), "ledger %s != balance %s", sum, w.Balance)
}

// recordWalletLocks captures the ids of wallets loaded FOR UPDATE, in order.
func recordWalletLocks(t *testing.T, db *gorm.DB) func() []string {
	t.Helper()
	var (
		mu  sync.Mutex
		ids []string
	)
	err := db.Callback().Query().After("gorm:query").Register("test:wallet_locks", func(tx *gorm.DB) {
		if tx.Statement.Table != "wallets" || len(tx.Statement.Vars) == 0 {
			return
		}
		if _, ok := tx.Statement.Clauses[clause.Locking{}.Name()]; !ok {
			return
		}
		if id, ok := tx.Statement.Vars[0].(string); ok {
			mu.Lock()
			ids = append(ids, id)
			mu.Unlock()
		}
	})
	require.NoError(t, err)
	return func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), ids...)
	}
}

func newTestDB(t *testing.T) *gorm.DB {
	return dbtest.New(t)
}

// fakeGateway records initialisations and answers verifications from a map.
type fakeGateway struct {
	mu        sync.Mutex
	initErr   error
	inits     []InitializeRequest
	verify    map[string]*VerifyResult
	verifyErr error
}

func (g *fakeGateway) Initialize(_ context.Context, req InitializeRequest) (*InitializeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.initErr != nil {
		return nil, g.initErr
	}
	g.inits = append(g.inits, req)
	return &InitializeResult{
		AuthorizationURL: "https://checkout.paystack.com/" + req.Reference,
		AccessCode:       "ac_" + req.Reference,
		Reference:        req.Reference,
	}, nil
}

func (g *fakeGateway) Verify(_ context.Context, reference string) (*VerifyResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	if res, ok := g.verify[reference]; ok {
		return res, nil
	}
	return &VerifyResult{Status: "ongoing", Reference: reference}, nil
}

// memoryGuard is an in-process ReplayGuard.
type memoryGuard struct {
	mu   sync.Mutex
	refs map[string]bool
}

func (g *memoryGuard) Seen(_ context.Context, ref string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.refs[ref], nil
}

func (g *memoryGuard) Remember(_ context.Context, ref string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refs == nil {
		g.refs = map[string]bool{}
	}
	g.refs[ref] = true
	return nil
}

// seedPayment stores a pending activation payment created age ago.
func seedPayment(t *testing.T, db *gorm.DB, p *models.Profile, reference string, age time.Duration) *models.Payment {
	t.Helper()
	pay := &models.Payment{
		ID:          uuid.NewString(),
		ProfileID:   p.ID,
		Reference:   reference,
		Amount:      dec("300"),
		Currency:    "KES",
		PhoneNumber: "254712345678",
		Status:      models.PaymentPending,
	}
	require.NoError(t, db.Create(pay).Error)
	if age > 0 {
		created := time.Now().UTC().Add(-age)
		require.NoError(t, db.Model(&models.Payment{}).Where("id = ?", pay.ID).UpdateColumn("created_at", created).Error)
		pay.CreatedAt = created
	}
	return pay
}
