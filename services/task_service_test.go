package services

import (
	"strings"
	"testing"
	"time"

	"kenya-earn/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func postTask(t *testing.T, db *gorm.DB, title, reward string, ttl time.Duration) *models.Task {
	t.Helper()
	task, err := NewTaskService(db).Create(NewTask{
		Title:        title,
		Description:  "Share the link on three WhatsApp groups",
		RewardAmount: dec(reward),
		PostedBy:     "ops@example.com",
		ExpiresAt:    time.Now().Add(ttl),
	})
	require.NoError(t, err)
	return task
}

func TestCreateTask(t *testing.T) {
	db := newTestDB(t)
	task := postTask(t, db, "Share Our Promo!", "25", time.Hour)

	assert.Equal(t, models.TaskAvailable, task.Status)
	assert.True(t, strings.HasPrefix(task.Slug, "share-our-promo-"))
	assert.Equal(t, time.UTC, task.ExpiresAt.Location())

	svc := NewTaskService(db)
	_, err := svc.Create(NewTask{Title: "x", RewardAmount: dec("0"), ExpiresAt: time.Now().Add(time.Hour)})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.Create(NewTask{Title: "x", RewardAmount: dec("10.005"), ExpiresAt: time.Now().Add(time.Hour)})
	assert.ErrorIs(t, err, ErrAmountPrecision)

	_, err = svc.Create(NewTask{Title: "x", RewardAmount: dec("1"), ExpiresAt: time.Now().Add(-time.Minute)})
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestListTasks(t *testing.T) {
	db := newTestDB(t)
	svc := NewTaskService(db)
	p := seedProfile(t, db, "Kamau", true)

	soon := postTask(t, db, "Soon", "10", time.Hour)
	later := postTask(t, db, "Later", "10", 48*time.Hour)
	expired := postTask(t, db, "Expired", "10", time.Hour)
	require.NoError(t, db.Model(expired).Update("expires_at", time.Now().UTC().Add(-time.Hour)).Error)

	tasks, err := svc.List(p, "")
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, soon.ID, tasks[0].ID)
	assert.Equal(t, later.ID, tasks[1].ID)

	_, err = svc.Submit(p, soon.ID)
	require.NoError(t, err)

	mine, err := svc.List(p, string(models.TaskPending))
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, soon.ID, mine[0].ID)

	none, err := svc.List(p, string(models.TaskApproved))
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	_, err = svc.List(p, "archived")
	assert.ErrorIs(t, err, ErrInvalidTaskStatus)

	dormant := seedProfile(t, db, "Dormant", false)
	_, err = svc.List(dormant, "")
	assert.ErrorIs(t, err, ErrNotActivated)
}

func TestSubmitClaimsOnce(t *testing.T) {
	db := newTestDB(t)
	svc := NewTaskService(db)
	first := seedProfile(t, db, "First", true)
	second := seedProfile(t, db, "Second", true)
	task := postTask(t, db, "Claim me", "10", time.Hour)

	got, err := svc.Submit(first, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskPending, got.Status)
	require.NotNil(t, got.AssignedToID)
	assert.Equal(t, first.ID, *got.AssignedToID)
	assert.NotNil(t, got.SubmittedAt)

	_, err = svc.Submit(second, task.ID)
	assert.ErrorIs(t, err, ErrTaskNotFound)

	_, err = svc.Submit(first, "missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)

	dormant := seedProfile(t, db, "Dormant", false)
	_, err = svc.Submit(dormant, task.ID)
	assert.ErrorIs(t, err, ErrNotActivated)
}

func TestReviewApprovalCreditsRewardOnce(t *testing.T) {
	db := newTestDB(t)
	svc := NewTaskService(db)
	p := seedProfile(t, db, "Kamau", true)
	task := postTask(t, db, "Review me", "75.50", time.Hour)

	_, err := svc.Submit(p, task.ID)
	require.NoError(t, err)

	reviewed, reward, err := svc.Review(task.ID, true, "")
	require.NoError(t, err)
	assert.Equal(t, models.TaskApproved, reviewed.Status)
	require.NotNil(t, reward)
	assert.Equal(t, models.TransactionDeposit, reward.Type)
	requireAmount(t, "75.50", walletOf(t, db, p).Balance)
	requireReconciled(t, db, p)

	_, _, err = svc.Review(task.ID, true, "")
	assert.ErrorIs(t, err, ErrTaskNotInReview)
	requireAmount(t, "75.50", walletOf(t, db, p).Balance)
}

func TestReviewRejection(t *testing.T) {
	db := newTestDB(t)
	svc := NewTaskService(db)
	p := seedProfile(t, db, "Kamau", true)
	task := postTask(t, db, "Reject me", "20", time.Hour)

	_, _, err := svc.Review(task.ID, false, "too early")
	assert.ErrorIs(t, err, ErrTaskNotInReview)

	_, err = svc.Submit(p, task.ID)
	require.NoError(t, err)

	reviewed, reward, err := svc.Review(task.ID, false, "Screenshot missing")
	require.NoError(t, err)
	assert.Nil(t, reward)
	assert.Equal(t, models.TaskRejected, reviewed.Status)
	assert.Equal(t, "Screenshot missing", reviewed.RejectionReason)
	requireAmount(t, "0", walletOf(t, db, p).Balance)

	_, _, err = svc.Review("missing", true, "")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}
