package models

// Theme preferences accepted by the settings endpoint.
const (
	ThemeLight  = "light"
	ThemeDark   = "dark"
	ThemeSystem = "system"
)

// Profile is the local record of a user verified by the identity provider.
// FirebaseUID is trusted verbatim as the profile key.
type Profile struct {
	ID             string `gorm:"primaryKey;size:36" json:"id"`
	FirebaseUID    string `gorm:"uniqueIndex;size:128;not null" json:"firebase_uid"`
	FirstName      string `gorm:"size:100" json:"first_name"`
	LastName       string `gorm:"size:100" json:"last_name"`
	Email          string `json:"email"`
	PhoneNumber    string `gorm:"size:15" json:"phone_number"`
	City           string `gorm:"size:100" json:"city"`
	Address        string `gorm:"type:text" json:"address"`
	ProfilePicture string `gorm:"type:text" json:"profile_picture"`

	ReferralCode string   `gorm:"uniqueIndex;size:10;not null" json:"referral_code"`
	ReferredByID *string  `gorm:"size:36;index" json:"referred_by_id,omitempty"`
	ReferredBy   *Profile `gorm:"foreignKey:ReferredByID" json:"-"`

	IsActivated     bool   `gorm:"not null;default:false" json:"is_activated"`
	ThemePreference string `gorm:"size:10;not null;default:'system'" json:"theme_preference"`

	Wallet *Wallet `gorm:"foreignKey:ProfileID" json:"-"`

	Timestamps
}

// FullName joins first and last name for display.
func (p *Profile) FullName() string {
	if p.LastName == "" {
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}
