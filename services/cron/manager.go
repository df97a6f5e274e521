package cron

import (
	"log"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// CronManager manages all scheduled cron jobs
type CronManager struct {
	cron *cron.Cron
	db   *gorm.DB
}

// NewCronManager creates a new cron manager
func NewCronManager(db *gorm.DB) *CronManager {
	// Create cron with seconds precision
	c := cron.New(cron.WithSeconds())

	return &CronManager{
		cron: c,
		db:   db,
	}
}

// Start registers all jobs and starts the scheduler
func (m *CronManager) Start() error {
	log.Println("Starting cron jobs...")

	if err := m.registerJobs(); err != nil {
		return err
	}

	m.cron.Start()

	log.Println("Cron jobs started successfully")
	return nil
}

// Stop stops all cron jobs
func (m *CronManager) Stop() {
	log.Println("Stopping cron jobs...")
	ctx := m.cron.Stop()
	<-ctx.Done()
	log.Println("Cron jobs stopped")
}

// registerJobs registers all cron jobs with their schedules
func (m *CronManager) registerJobs() error {
	// Every 30 minutes: fail payments stuck in pending past the TTL
	_, err := m.cron.AddFunc("0 */30 * * * *", func() {
		m.logJobStart("expire_pending_payments")
		m.ExpirePendingPayments()
	})
	if err != nil {
		return err
	}

	// Daily at 03:00: prune old read notifications
	_, err = m.cron.AddFunc("0 0 3 * * *", func() {
		m.logJobStart("prune_read_notifications")
		m.PruneReadNotifications()
	})
	if err != nil {
		return err
	}

	return nil
}

func (m *CronManager) logJobStart(name string) {
	log.Printf("[CRON] Starting job: %s", name)
}

func (m *CronManager) logJobError(name string, err error) {
	log.Printf("[CRON] Job %s failed: %v", name, err)
}

func (m *CronManager) logJobComplete(name string, msg string) {
	log.Printf("[CRON] Job %s completed: %s", name, msg)
}
