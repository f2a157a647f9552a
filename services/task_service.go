// services/task_service.go
package services

import (
	"errors"
	"fmt"
	"time"

	"kenya-earn/logging"
	"kenya-earn/models"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrInvalidTaskStatus = newError(KindValidation, "Invalid status")
	ErrTaskNotInReview   = newError(KindConflict, "Task is not awaiting review")
)

type TaskService struct {
	DB *gorm.DB
}

func NewTaskService(db *gorm.DB) *TaskService {
	return &TaskService{DB: db}
}

// List returns open tasks for status "available" (or empty), otherwise the
// caller's own tasks in that status.
func (s *TaskService) List(p *models.Profile, status string) ([]models.Task, error) {
	if !p.IsActivated {
		return nil, ErrNotActivated
	}

	tasks := []models.Task{}
	switch models.TaskStatus(status) {
	case "", models.TaskAvailable:
		err := s.DB.Where("status = ? AND expires_at > ?", models.TaskAvailable, time.Now().UTC()).
			Order("expires_at ASC").
			Find(&tasks).Error
		return tasks, err
	case models.TaskPending, models.TaskApproved, models.TaskRejected:
		err := s.DB.Where("assigned_to_id = ? AND status = ?", p.ID, status).
			Order("updated_at DESC").
			Find(&tasks).Error
		return tasks, err
	default:
		return nil, ErrInvalidTaskStatus
	}
}

// Submit claims an available, unexpired task for review. The claim is a
// single conditional update so two profiles cannot both take the same task.
func (s *TaskService) Submit(p *models.Profile, taskID string) (*models.Task, error) {
	if !p.IsActivated {
		return nil, ErrNotActivated
	}

	now := time.Now().UTC()
	res := s.DB.Model(&models.Task{}).
		Where("id = ? AND status = ? AND expires_at > ?", taskID, models.TaskAvailable, now).
		Updates(map[string]interface{}{
			"assigned_to_id": p.ID,
			"status":         models.TaskPending,
			"submitted_at":   now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrTaskNotFound
	}

	var task models.Task
	if err := s.DB.First(&task, "id = ?", taskID).Error; err != nil {
		return nil, err
	}
	logging.Logger.Info("task submitted", zap.String("task", task.ID), zap.String("profile", p.ID))
	return &task, nil
}

// NewTask is the admin form for posting a task.
type NewTask struct {
	Title        string          `json:"title" validate:"required,max=200"`
	Description  string          `json:"description" validate:"required"`
	RewardAmount decimal.Decimal `json:"reward_amount"`
	ImageURL     string          `json:"image" validate:"omitempty,url"`
	PostedBy     string          `json:"posted_by" validate:"max=255"`
	ExpiresAt    time.Time       `json:"expires_at" validate:"required"`
}

// Create posts a new available task.
func (s *TaskService) Create(in NewTask) (*models.Task, error) {
	if err := checkAmount(in.RewardAmount); err != nil {
		return nil, err
	}
	if !in.ExpiresAt.After(time.Now()) {
		return nil, Validation("Expiry must be in the future")
	}

	id := uuid.NewString()
	task := &models.Task{
		ID:           id,
		Slug:         fmt.Sprintf("%s-%s", slug.Make(in.Title), id[:8]),
		Title:        in.Title,
		Description:  in.Description,
		RewardAmount: in.RewardAmount,
		ImageURL:     in.ImageURL,
		PostedBy:     in.PostedBy,
		Status:       models.TaskAvailable,
		ExpiresAt:    in.ExpiresAt.UTC(),
	}
	if err := s.DB.Create(task).Error; err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return task, nil
}

// Review approves or rejects a pending task. Approval credits the reward to
// the assignee as a completed deposit keyed by the task.
func (s *TaskService) Review(taskID string, approve bool, reason string) (*models.Task, *models.Transaction, error) {
	var (
		task   models.Task
		reward *models.Transaction
	)
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&task, "id = ?", taskID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTaskNotFound
			}
			return err
		}

		now := time.Now().UTC()
		to := models.TaskApproved
		if !approve {
			to = models.TaskRejected
		}
		res := tx.Model(&models.Task{}).
			Where("id = ? AND status = ?", task.ID, models.TaskPending).
			Updates(map[string]interface{}{
				"status":           to,
				"rejection_reason": reason,
				"reviewed_at":      now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 || task.AssignedToID == nil {
			return ErrTaskNotInReview
		}
		task.Status = to
		task.RejectionReason = reason
		task.ReviewedAt = &now

		if !approve {
			return nil
		}

		w, err := lockWalletForProfile(tx, *task.AssignedToID)
		if err != nil {
			return err
		}
		reward = &models.Transaction{
			Amount:      task.RewardAmount,
			Type:        models.TransactionDeposit,
			Status:      models.TransactionCompleted,
			Direction:   models.DirectionCredit,
			TaskID:      &task.ID,
			Description: "Reward: " + task.Title,
			Timestamp:   now,
		}
		return appendEntry(tx, w, reward)
	})
	if err != nil {
		return nil, nil, err
	}

	if reward != nil {
		recordEntries(reward)
	}
	logging.Logger.Info("task reviewed", zap.String("task", task.ID), zap.String("status", string(task.Status)))
	return &task, reward, nil
}
