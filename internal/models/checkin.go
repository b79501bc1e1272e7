package models

import "time"

type CheckinState struct {
	UserID       int       `json:"user_id" db:"user_id"`
	LastCheckin  time.Time `json:"last_checkin" db:"last_checkin"`
	Streak       int       `json:"streak" db:"streak"`
	TotalRewards int64     `json:"total_rewards" db:"total_rewards"` // in paise
}

type CheckinRecord struct {
	ID        int       `json:"id" db:"id"`
	UserID    int       `json:"user_id" db:"user_id"`
	Reward    int64     `json:"reward" db:"reward"`
	Streak    int       `json:"streak" db:"streak"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type DistributionRun struct {
	RunID     string    `json:"run_id" db:"run_id"`
	Amount    int64     `json:"amount" db:"amount"`
	Reason    string    `json:"reason" db:"reason"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
