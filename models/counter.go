package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/inayat82/pos-backoffice/config"
	"github.com/inayat82/pos-backoffice/utils"
	"gorm.io/gorm"
)

// Counter is the per-tenant monotonic sequence behind invoice numbers,
// one row per type (sale/purchase). The count is only ever moved by
// NextInvoiceNumber's atomic upsert.
//
// The primary key is (admin_id, type) with no surrogate id: an
// AUTO_INCREMENT column would make LAST_INSERT_ID() return the
// generated row id on the seeding insert instead of the value passed
// to LAST_INSERT_ID(expr).
type Counter struct {
	AdminId   string      `gorm:"primaryKey;size:64" json:"admin_id"`
	Type      CounterType `gorm:"primaryKey;size:20" json:"type"`
	Count     int64       `gorm:"not null;default:0" json:"count"`
	UpdatedAt time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

// FormatInvoiceNumber renders a claimed sequence value: prefix plus the
// count zero-padded to two digits (S01, S12, S123 and beyond).
func FormatInvoiceNumber(counterType CounterType, n int64) string {
	return fmt.Sprintf("%s%02d", counterType.Prefix(), n)
}

// FallbackInvoiceNumber is the degraded id used when the counter cannot
// be claimed: prefix, a T marker, then the last 4 digits of epoch ms.
// Not sequential and not guaranteed unique; gated by
// config.AllowFallbackInvoiceNumbers.
func FallbackInvoiceNumber(counterType CounterType, now time.Time) string {
	ms := now.UnixMilli()
	return fmt.Sprintf("%sT%04d", counterType.Prefix(), ms%10000)
}

// NextInvoiceNumber claims the tenant's next sequence value inside the
// caller's transaction and returns the formatted invoice number.
//
// The claim is a single atomic statement (insert-or-increment with
// LAST_INSERT_ID capture), so two concurrent transactions can never
// observe the same value: the second blocks on the row lock until the
// first commits or rolls back.
func NextInvoiceNumber(tx *gorm.DB, adminId string, counterType CounterType) (string, int64, error) {
	if tx == nil {
		return "", 0, errors.New("tx is nil")
	}
	if adminId == "" {
		return "", 0, errors.New("admin id is required")
	}
	if !counterType.Valid() {
		return "", 0, errors.New("invalid counter type")
	}

	err := tx.Exec(
		"INSERT INTO counters (admin_id, type, count, updated_at) VALUES (?, ?, LAST_INSERT_ID(1), NOW()) "+
			"ON DUPLICATE KEY UPDATE count = LAST_INSERT_ID(count + 1), updated_at = NOW()",
		adminId, string(counterType),
	).Error
	if err != nil {
		return "", 0, err
	}

	var next int64
	if err := tx.Raw("SELECT LAST_INSERT_ID()").Scan(&next).Error; err != nil {
		return "", 0, err
	}
	if next <= 0 {
		return "", 0, errors.New("counter claim returned no value")
	}

	return FormatInvoiceNumber(counterType, next), next, nil
}

// GetCounter reads the tenant's current count for a type; absent rows
// read as 0.
func GetCounter(ctx context.Context, counterType CounterType) (*Counter, error) {
	adminId, ok := utils.GetAdminIdFromContext(ctx)
	if !ok || adminId == "" {
		return nil, errors.New("admin id is required")
	}

	db := config.GetDB()
	var counter Counter
	err := db.WithContext(ctx).
		Where("admin_id = ? AND type = ?", adminId, string(counterType)).
		First(&counter).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &Counter{AdminId: adminId, Type: counterType, Count: 0}, nil
		}
		return nil, err
	}
	return &counter, nil
}
