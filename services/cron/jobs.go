package cron

import (
	"fmt"
	"time"

	"github.com/courseloom/api/model"
	"gorm.io/gorm"
)

// PendingPaymentTTL is how long a payment may sit in pending before the
// sweep fails it. A client that disconnects after order creation but never
// verifies leaves rows pending indefinitely otherwise.
const PendingPaymentTTL = 24 * time.Hour

// ExpirePendingPayments fails payments that have been pending longer than
// the TTL. The status guard in the WHERE clause means a payment completed
// by a late webhook between query and update is left alone.
func (m *CronManager) ExpirePendingPayments() {
	jobName := "expire_pending_payments"
	cutoff := time.Now().Add(-PendingPaymentTTL)

	result := m.db.Model(&model.CoursePayment{}).
		Where("status = ? AND created_at < ?", model.PaymentStatusPending, cutoff).
		Updates(map[string]interface{}{
			"status":         model.PaymentStatusFailed,
			"failed_at":      gorm.Expr("NOW()"),
			"failure_reason": "Payment expired",
		})

	if result.Error != nil {
		m.logJobError(jobName, fmt.Errorf("failed to expire payments: %w", result.Error))
		return
	}

	m.logJobComplete(jobName, fmt.Sprintf("expired %d stale pending payment(s)", result.RowsAffected))
}

// PruneReadNotifications deletes read notifications older than 90 days.
func (m *CronManager) PruneReadNotifications() {
	jobName := "prune_read_notifications"
	cutoff := time.Now().AddDate(0, 0, -90)

	result := m.db.Unscoped().
		Where("read = ? AND created_at < ?", true, cutoff).
		Delete(&model.UserNotification{})

	if result.Error != nil {
		m.logJobError(jobName, fmt.Errorf("failed to prune notifications: %w", result.Error))
		return
	}

	m.logJobComplete(jobName, fmt.Sprintf("pruned %d notification(s)", result.RowsAffected))
}
