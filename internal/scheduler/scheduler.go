package scheduler

import (
	"database/sql"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// TaskExpiry deactivates tasks whose expiry has passed. It runs once
// a minute so an expired task stops accepting submissions promptly.
type TaskExpiry struct {
	db        *sql.DB
	scheduler gocron.Scheduler
}

func NewTaskExpiry(db *sql.DB) (*TaskExpiry, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &TaskExpiry{db: db, scheduler: s}, nil
}

func (t *TaskExpiry) Start() error {
	_, err := t.scheduler.NewJob(
		gocron.DurationJob(time.Minute),
		gocron.NewTask(t.expireTasks),
	)
	if err != nil {
		return err
	}

	t.scheduler.Start()
	log.Println("[SCHEDULER] Task expiry job started")
	return nil
}

func (t *TaskExpiry) Stop() error {
	return t.scheduler.Shutdown()
}

func (t *TaskExpiry) expireTasks() {
	result, err := t.db.Exec(`
		UPDATE tasks
		SET status = 'inactive'
		WHERE status = 'active' AND expires_at IS NOT NULL AND expires_at <= NOW()`)
	if err != nil {
		log.Printf("[SCHEDULER] Task expiry sweep failed: %v", err)
		return
	}

	if n, err := result.RowsAffected(); err == nil && n > 0 {
		log.Printf("[SCHEDULER] Deactivated %d expired task(s)", n)
	}
}
