// services/dashboard_service.go
package services

import (
	"time"

	"kenya-earn/models"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"
)

type DashboardService struct {
	DB *gorm.DB
	// Location is the wall clock used for the greeting.
	Location *time.Location
	Now      func() time.Time
}

func NewDashboardService(db *gorm.DB, loc *time.Location) *DashboardService {
	if loc == nil {
		loc = time.UTC
	}
	return &DashboardService{DB: db, Location: loc, Now: time.Now}
}

type DashboardStats struct {
	CompletedTasks int64           `json:"completed_tasks"`
	PendingTasks   int64           `json:"pending_tasks"`
	TotalEarnings  decimal.Decimal `json:"total_earnings"`
}

type Dashboard struct {
	Greeting    string         `json:"greeting"`
	IsActivated bool           `json:"is_activated"`
	Stats       DashboardStats `json:"stats"`
}

// Greeting picks morning (5-12), afternoon (12-17) or evening by hour.
func Greeting(hour int, firstName string) string {
	// Casers keep state, so one per call.
	name := cases.Title(language.English).String(firstName)
	switch {
	case hour >= 5 && hour < 12:
		return "Good morning, " + name
	case hour >= 12 && hour < 17:
		return "Good afternoon, " + name
	default:
		return "Good evening, " + name
	}
}

// Get builds the dashboard summary. Earnings count completed deposits only:
// the activation entry records a fee the user paid, not money earned.
func (s *DashboardService) Get(p *models.Profile) (*Dashboard, error) {
	out := &Dashboard{
		Greeting:    Greeting(s.Now().In(s.Location).Hour(), p.FirstName),
		IsActivated: p.IsActivated,
	}

	if err := s.DB.Model(&models.Task{}).
		Where("assigned_to_id = ? AND status = ?", p.ID, models.TaskApproved).
		Count(&out.Stats.CompletedTasks).Error; err != nil {
		return nil, err
	}
	if err := s.DB.Model(&models.Task{}).
		Where("assigned_to_id = ? AND status = ?", p.ID, models.TaskPending).
		Count(&out.Stats.PendingTasks).Error; err != nil {
		return nil, err
	}

	// Activation entries are left out on purpose: they record the fee, not earnings.
	var deposits []models.Transaction
	if err := s.DB.Select("transactions.amount").
		Joins("JOIN wallets ON wallets.id = transactions.wallet_id").
		Where("wallets.profile_id = ? AND transactions.type = ? AND transactions.status = ?",
			p.ID, models.TransactionDeposit, models.TransactionCompleted).
		Find(&deposits).Error; err != nil {
		return nil, err
	}
	total := decimal.Zero
	for _, d := range deposits {
		total = total.Add(d.Amount)
	}
	out.Stats.TotalEarnings = total
	return out, nil
}
