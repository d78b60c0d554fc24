package models

import (
	"context"
	"errors"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/inayat82/pos-backoffice/config"
	"github.com/inayat82/pos-backoffice/utils"
)

// SaleSubmission gives the sale commit a durable, explicit state
// machine per (admin_id, submission_key). A duplicate submit with the
// same key observes the first outcome instead of committing twice.
// Unique constraint: (admin_id, submission_key).
type SaleSubmission struct {
	ID            int              `gorm:"primary_key" json:"id"`
	AdminId       string           `gorm:"size:64;not null;index:uniq_submission,unique" json:"admin_id"`
	SubmissionKey string           `gorm:"size:255;not null;index:uniq_submission,unique" json:"submission_key"`
	Status        SubmissionStatus `gorm:"size:20;not null;index" json:"status"`
	SaleId        int              `gorm:"default:0" json:"sale_id"`
	InvoiceNumber string           `gorm:"size:100" json:"invoice_number"`
	FailureReason *string          `gorm:"type:text" json:"failure_reason"`
	CreatedAt     time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

var ErrSubmissionInProgress = errors.New("submission already in progress")

// SubmitSale runs CreateSale under the submission state machine. With an
// empty key the sale commits unguarded (unless REQUIRE_SUBMISSION_KEY),
// matching clients that do not send X-Submission-Key.
func SubmitSale(ctx context.Context, submissionKey string, input *NewSale) (*Sale, error) {
	if submissionKey == "" {
		if config.RequireSubmissionKey() {
			return nil, errors.New("submission key is required")
		}
		return CreateSale(ctx, input)
	}

	adminId, ok := utils.GetAdminIdFromContext(ctx)
	if !ok || adminId == "" {
		return nil, errors.New("admin id is required")
	}

	submission, err := claimSubmission(ctx, adminId, submissionKey)
	if err != nil {
		return nil, err
	}
	if submission.Status == SubmissionStatusSucceeded {
		// Replay: return the previously committed sale.
		return utils.FetchModel[Sale](ctx, adminId, submission.SaleId, "Items")
	}

	sale, err := CreateSale(ctx, input)
	if err != nil {
		markSubmissionFailed(ctx, submission, err)
		return nil, err
	}

	markSubmissionSucceeded(ctx, submission, sale)
	return sale, nil
}

// submissionStaleAfter bounds how long a Submitting claim is trusted.
// The commit path holds its redis lock for at most 30s, so a row still
// Submitting well past that belongs to a crashed attempt.
const submissionStaleAfter = 2 * time.Minute

func isDuplicateKeyError(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// claimSubmission moves the row to Submitting, creating it when absent.
// A row already Submitting belongs to a concurrent attempt unless it
// has gone stale; a Succeeded row is returned as-is for replay; an
// Idle/Failed row may be retried.
func claimSubmission(ctx context.Context, adminId string, submissionKey string) (*SaleSubmission, error) {
	db := config.GetDB()

	submission := SaleSubmission{
		AdminId:       adminId,
		SubmissionKey: submissionKey,
		Status:        SubmissionStatusSubmitting,
	}
	err := db.WithContext(ctx).Create(&submission).Error
	if err == nil {
		return &submission, nil
	}
	if !isDuplicateKeyError(err) {
		return nil, err
	}

	// Unique-key collision: someone already claimed this key.
	var existing SaleSubmission
	if err := db.WithContext(ctx).
		Where("admin_id = ? AND submission_key = ?", adminId, submissionKey).
		First(&existing).Error; err != nil {
		return nil, err
	}

	switch existing.Status {
	case SubmissionStatusSucceeded:
		return &existing, nil
	case SubmissionStatusSubmitting:
		// Reclaim only claims abandoned by a crashed attempt; the
		// conditional WHERE keeps two reclaimers from both winning.
		cutoff := time.Now().Add(-submissionStaleAfter)
		if existing.UpdatedAt.After(cutoff) {
			return nil, ErrSubmissionInProgress
		}
		result := db.WithContext(ctx).Model(&SaleSubmission{}).
			Where("id = ? AND status = ? AND updated_at < ?", existing.ID, SubmissionStatusSubmitting, cutoff).
			Updates(map[string]interface{}{"Status": SubmissionStatusSubmitting, "FailureReason": nil})
		if result.Error != nil {
			return nil, result.Error
		}
		if result.RowsAffected == 0 {
			return nil, ErrSubmissionInProgress
		}
		existing.FailureReason = nil
		return &existing, nil
	default:
		// Idle/Failed: take over the claim, but only if nobody else has.
		result := db.WithContext(ctx).Model(&SaleSubmission{}).
			Where("id = ? AND status IN ?", existing.ID, []SubmissionStatus{SubmissionStatusIdle, SubmissionStatusFailed}).
			Updates(map[string]interface{}{"Status": SubmissionStatusSubmitting, "FailureReason": nil})
		if result.Error != nil {
			return nil, result.Error
		}
		if result.RowsAffected == 0 {
			return nil, ErrSubmissionInProgress
		}
		existing.Status = SubmissionStatusSubmitting
		existing.FailureReason = nil
		return &existing, nil
	}
}

func markSubmissionSucceeded(ctx context.Context, submission *SaleSubmission, sale *Sale) {
	db := config.GetDB()
	err := db.WithContext(ctx).Model(submission).Updates(map[string]interface{}{
		"Status":        SubmissionStatusSucceeded,
		"SaleId":        sale.ID,
		"InvoiceNumber": sale.InvoiceNumber,
	}).Error
	if err != nil {
		config.LogError(config.GetLogger(), "saleSubmission.go", "markSubmissionSucceeded", "update submission", submission.ID, err)
	}
}

func markSubmissionFailed(ctx context.Context, submission *SaleSubmission, cause error) {
	db := config.GetDB()
	reason := cause.Error()
	err := db.WithContext(ctx).Model(submission).Updates(map[string]interface{}{
		"Status":        SubmissionStatusFailed,
		"FailureReason": &reason,
	}).Error
	if err != nil {
		config.LogError(config.GetLogger(), "saleSubmission.go", "markSubmissionFailed", "update submission", submission.ID, err)
	}
}
