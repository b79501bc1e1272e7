package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Task statuses.
const (
	TaskActive   = "active"
	TaskInactive = "inactive"
)

// Submission statuses.
const (
	SubmissionPending  = "pending"
	SubmissionApproved = "approved"
	SubmissionRejected = "rejected"
)

// StringList stores a list of strings as a JSONB column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	return json.Marshal(l)
}

func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into StringList", value)
	}
	return json.Unmarshal(b, l)
}

type Task struct {
	ID          int        `json:"id" db:"id"`
	Title       string     `json:"title" db:"title"`
	Description string     `json:"description" db:"description"`
	Reward      int64      `json:"reward" db:"reward"` // in paise
	URL         string     `json:"url" db:"url"`
	Steps       StringList `json:"steps" db:"steps"`
	Status      string     `json:"status" db:"status"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

type TaskSubmission struct {
	ID           int        `json:"id" db:"id"`
	SubmissionID string     `json:"submission_id" db:"submission_id"`
	TaskID       int        `json:"task_id" db:"task_id"`
	UserID       int        `json:"user_id" db:"user_id"`
	Status       string     `json:"status" db:"status"`
	Feedback     string     `json:"feedback,omitempty" db:"feedback"`
	SubmittedAt  time.Time  `json:"submitted_at" db:"submitted_at"`
	ReviewedAt   *time.Time `json:"reviewed_at,omitempty" db:"reviewed_at"`
}
