package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TaskStatus tracks a task through the board
type TaskStatus string

const (
	TaskAvailable TaskStatus = "available"
	TaskPending   TaskStatus = "pending"
	TaskApproved  TaskStatus = "approved"
	TaskRejected  TaskStatus = "rejected"
)

// Task represents a reward-earning task
type Task struct {
	ID              string          `gorm:"primaryKey;size:36" json:"id"`
	Slug            string          `gorm:"size:220;index" json:"slug"`
	Title           string          `gorm:"size:200;not null" json:"title"`
	Description     string          `gorm:"type:text" json:"description"`
	RewardAmount    decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"reward_amount"`
	ImageURL        string          `gorm:"type:text" json:"image"`
	PostedBy        string          `gorm:"size:255" json:"posted_by"`
	AssignedToID    *string         `gorm:"size:36;index" json:"assigned_to,omitempty"`
	Status          TaskStatus      `gorm:"type:varchar(20);not null;default:'available';index" json:"status"`
	RejectionReason string          `gorm:"type:text" json:"rejection_reason,omitempty"`
	ExpiresAt       time.Time       `gorm:"not null;index" json:"expires_at"`
	SubmittedAt     *time.Time      `json:"submitted_at,omitempty"`
	ReviewedAt      *time.Time      `json:"reviewed_at,omitempty"`

	Timestamps
}
