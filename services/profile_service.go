// services/profile_service.go
package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
	"time"

	"kenya-earn/logging"
	"kenya-earn/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var phonePattern = regexp.MustCompile(`^254\d{9}$`)

// ValidPhone accepts Kenyan MSISDNs written as 2547XXXXXXXX.
func ValidPhone(phone string) bool {
	return phonePattern.MatchString(phone)
}

// Rules are the platform's money constants.
type Rules struct {
	ActivationAmount decimal.Decimal
	Currency         string
	ReferralBonus    decimal.Decimal
}

func DefaultRules() Rules {
	return Rules{
		ActivationAmount: decimal.NewFromInt(300),
		Currency:         "KES",
		ReferralBonus:    decimal.RequireFromString("50.00"),
	}
}

// ObjectStore saves uploaded files and returns their public URL.
type ObjectStore interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error)
}

type ProfileService struct {
	DB    *gorm.DB
	Rules Rules
	Store ObjectStore // nil disables picture uploads
}

func NewProfileService(db *gorm.DB, rules Rules, store ObjectStore) *ProfileService {
	return &ProfileService{DB: db, Rules: rules, Store: store}
}

// CompletionInput is the sign-up form sent after the first login.
type CompletionInput struct {
	PhoneNumber    string  `json:"phone_number" validate:"required,max=15"`
	City           string  `json:"city" validate:"required,max=100"`
	Address        string  `json:"address" validate:"required"`
	ProfilePicture *string `json:"profile_picture" validate:"omitempty,url"`
	ReferralCode   string  `json:"referral_code" validate:"omitempty,max=10"`
}

// CompleteProfile creates the caller's profile and wallet, or updates the
// contact fields of an existing one. A referral code only counts on creation,
// where it records the referral and a pending bonus for the referrer.
func (s *ProfileService) CompleteProfile(id Identity, in CompletionInput) (*models.Profile, bool, error) {
	if !ValidPhone(in.PhoneNumber) {
		return nil, false, ErrInvalidPhone
	}

	var referrer *models.Profile
	if code := strings.TrimSpace(in.ReferralCode); code != "" {
		var r models.Profile
		if err := s.DB.First(&r, "referral_code = ?", strings.ToUpper(code)).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, false, ErrInvalidReferralCode
			}
			return nil, false, err
		}
		referrer = &r
	}

	var (
		profile models.Profile
		created bool
		bonus   *models.Transaction
	)
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		err := tx.First(&profile, "firebase_uid = ?", id.UID).Error
		switch {
		case err == nil:
			profile.PhoneNumber = in.PhoneNumber
			profile.City = in.City
			profile.Address = in.Address
			if in.ProfilePicture != nil {
				profile.ProfilePicture = *in.ProfilePicture
			}
			if err := tx.Save(&profile).Error; err != nil {
				return err
			}
			return ensureWallet(tx, profile.ID)
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		code, err := uniqueReferralCode(tx)
		if err != nil {
			return err
		}
		first, last := splitName(id.Name)
		profile = models.Profile{
			ID:              uuid.NewString(),
			FirebaseUID:     id.UID,
			FirstName:       first,
			LastName:        last,
			Email:           id.Email,
			PhoneNumber:     in.PhoneNumber,
			City:            in.City,
			Address:         in.Address,
			ProfilePicture:  id.Picture,
			ReferralCode:    code,
			ThemePreference: models.ThemeSystem,
		}
		if in.ProfilePicture != nil {
			profile.ProfilePicture = *in.ProfilePicture
		}
		if referrer != nil {
			profile.ReferredByID = &referrer.ID
		}
		if err := tx.Create(&profile).Error; err != nil {
			return fmt.Errorf("create profile: %w", err)
		}
		if err := ensureWallet(tx, profile.ID); err != nil {
			return err
		}
		created = true

		if referrer == nil {
			return nil
		}
		bonus, err = s.recordReferral(tx, referrer, &profile)
		return err
	})
	if err != nil {
		return nil, false, err
	}

	if bonus != nil {
		recordEntries(bonus)
	}
	if created {
		logging.Logger.Info("profile created",
			zap.String("profile", profile.ID),
			zap.Bool("referred", referrer != nil),
		)
	}
	return &profile, created, nil
}

// recordReferral stores the referral event and the referrer's pending bonus.
func (s *ProfileService) recordReferral(tx *gorm.DB, referrer, referred *models.Profile) (*models.Transaction, error) {
	ref := models.Referral{
		ID:               uuid.NewString(),
		ReferrerID:       referrer.ID,
		ReferredID:       referred.ID,
		ReferralCodeUsed: referrer.ReferralCode,
	}
	if err := tx.Create(&ref).Error; err != nil {
		return nil, fmt.Errorf("create referral: %w", err)
	}

	w, err := lockWalletForProfile(tx, referrer.ID)
	if err != nil {
		return nil, err
	}
	bonus := &models.Transaction{
		Amount:      s.Rules.ReferralBonus,
		Type:        models.TransactionDeposit,
		Status:      models.TransactionPending,
		Direction:   models.DirectionCredit,
		ReferralID:  &ref.ID,
		Description: referralDescription(referred),
	}
	if err := appendEntry(tx, w, bonus); err != nil {
		return nil, err
	}

	ref.BonusTransactionID = &bonus.ID
	if err := tx.Model(&ref).Update("bonus_transaction_id", bonus.ID).Error; err != nil {
		return nil, err
	}
	return bonus, nil
}

func referralDescription(referred *models.Profile) string {
	return referred.FirstName + " used your code"
}

func ensureWallet(tx *gorm.DB, profileID string) error {
	var count int64
	if err := tx.Model(&models.Wallet{}).Where("profile_id = ?", profileID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	w := models.Wallet{ID: uuid.NewString(), ProfileID: profileID, Balance: decimal.Zero}
	if err := tx.Create(&w).Error; err != nil {
		return fmt.Errorf("create wallet: %w", err)
	}
	return nil
}

const referralAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func newReferralCode() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = referralAlphabet[int(b)%len(referralAlphabet)]
	}
	return string(buf), nil
}

func uniqueReferralCode(tx *gorm.DB) (string, error) {
	for i := 0; i < 5; i++ {
		code, err := newReferralCode()
		if err != nil {
			return "", err
		}
		var count int64
		if err := tx.Model(&models.Profile{}).Where("referral_code = ?", code).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return code, nil
		}
	}
	return "", errors.New("could not allocate a unique referral code")
}

// splitName turns the identity display name into first and last name.
func splitName(name string) (string, string) {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return "", ""
	}
	return fields[0], strings.Join(fields[1:], " ")
}

// GetByUID loads the profile bound to a verified identity.
func (s *ProfileService) GetByUID(uid string) (*models.Profile, error) {
	var p models.Profile
	if err := s.DB.First(&p, "firebase_uid = ?", uid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	return &p, nil
}

// ProfileUpdate is a partial update; nil fields are left alone.
type ProfileUpdate struct {
	FirstName       *string `json:"first_name" validate:"omitempty,max=100"`
	LastName        *string `json:"last_name" validate:"omitempty,max=100"`
	Email           *string `json:"email" validate:"omitempty,email"`
	PhoneNumber     *string `json:"phone_number"`
	City            *string `json:"city" validate:"omitempty,max=100"`
	Address         *string `json:"address"`
	ProfilePicture  *string `json:"profile_picture" validate:"omitempty,url"`
	ThemePreference *string `json:"theme_preference"`
}

// UpdateProfile applies a partial update. Identity, referral code and
// activation are never writable here.
func (s *ProfileService) UpdateProfile(p *models.Profile, in ProfileUpdate) (*models.Profile, error) {
	updates := map[string]interface{}{}
	if in.FirstName != nil {
		updates["first_name"] = *in.FirstName
	}
	if in.LastName != nil {
		updates["last_name"] = *in.LastName
	}
	if in.Email != nil {
		updates["email"] = *in.Email
	}
	if in.PhoneNumber != nil {
		if !ValidPhone(*in.PhoneNumber) {
			return nil, ErrInvalidPhone
		}
		updates["phone_number"] = *in.PhoneNumber
	}
	if in.City != nil {
		updates["city"] = *in.City
	}
	if in.Address != nil {
		updates["address"] = *in.Address
	}
	if in.ProfilePicture != nil {
		updates["profile_picture"] = *in.ProfilePicture
	}
	if in.ThemePreference != nil {
		if !validTheme(*in.ThemePreference) {
			return nil, ErrInvalidTheme
		}
		updates["theme_preference"] = *in.ThemePreference
	}

	if len(updates) > 0 {
		if err := s.DB.Model(p).Updates(updates).Error; err != nil {
			return nil, err
		}
	}
	return s.GetByUID(p.FirebaseUID)
}

func validTheme(theme string) bool {
	switch theme {
	case models.ThemeLight, models.ThemeDark, models.ThemeSystem:
		return true
	}
	return false
}

// UpdateTheme stores the UI theme preference.
func (s *ProfileService) UpdateTheme(p *models.Profile, theme string) error {
	if !validTheme(theme) {
		return ErrInvalidTheme
	}
	if err := s.DB.Model(p).Update("theme_preference", theme).Error; err != nil {
		return err
	}
	p.ThemePreference = theme
	return nil
}

// UploadPicture stores a new profile picture and points the profile at it.
func (s *ProfileService) UploadPicture(ctx context.Context, p *models.Profile, filename, contentType string, body io.Reader) (string, error) {
	if s.Store == nil {
		return "", Validation("Picture uploads are not configured")
	}
	if !strings.HasPrefix(contentType, "image/") {
		return "", Validation("Profile picture must be an image")
	}

	key := fmt.Sprintf("profiles/%s/%d-%s%s", p.ID, time.Now().Unix(), uuid.NewString()[:8], strings.ToLower(path.Ext(filename)))
	url, err := s.Store.Upload(ctx, key, contentType, body)
	if err != nil {
		return "", fmt.Errorf("upload profile picture: %w", err)
	}

	if err := s.DB.Model(p).Update("profile_picture", url).Error; err != nil {
		return "", err
	}
	p.ProfilePicture = url
	return url, nil
}

// DeleteAccount removes a profile with its wallet, ledger, payments and
// referral rows. Rows owned by others keep existing with the reference cleared.
func (s *ProfileService) DeleteAccount(p *models.Profile) error {
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Task{}).Where("assigned_to_id = ?", p.ID).Update("assigned_to_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Profile{}).Where("referred_by_id = ?", p.ID).Update("referred_by_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Transaction{}).Where("recipient_id = ?", p.ID).Update("recipient_id", nil).Error; err != nil {
			return err
		}

		// A bonus still waiting on this profile's activation can never settle.
		// Pending credits never touched the referrer's balance, so only the status moves.
		referralIDs := tx.Model(&models.Referral{}).Select("id").Where("referred_id = ?", p.ID)
		if err := tx.Model(&models.Transaction{}).
			Where("referral_id IN (?) AND status = ?", referralIDs, models.TransactionPending).
			Update("status", models.TransactionFailed).Error; err != nil {
			return err
		}

		walletIDs := tx.Model(&models.Wallet{}).Select("id").Where("profile_id = ?", p.ID)
		if err := tx.Where("wallet_id IN (?)", walletIDs).Delete(&models.Transaction{}).Error; err != nil {
			return err
		}
		if err := tx.Where("profile_id = ?", p.ID).Delete(&models.Wallet{}).Error; err != nil {
			return err
		}
		if err := tx.Where("profile_id = ?", p.ID).Delete(&models.Payment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("referrer_id = ? OR referred_id = ?", p.ID, p.ID).Delete(&models.Referral{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Profile{}, "id = ?", p.ID).Error
	})
	if err != nil {
		return err
	}

	logging.Logger.Info("account deleted", zap.String("profile", p.ID))
	return nil
}
