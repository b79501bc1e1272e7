package models

import "time"

type User struct {
	ID               int        `json:"id" example:"1"`                   // User ID
	Email            string     `json:"email" example:"user@example.com"` // User email
	Name             string     `json:"name" example:"Ravi Kumar"`        // Display name
	PhoneNumber      string     `json:"phoneNumber" example:"+919812345678"`
	Role             string     `json:"role" example:"user"`
	Verified         bool       `json:"verified"`
	RefCode          string     `json:"refCode" example:"K7KDJF"` // Referral code shared with invitees
	ReferrerID       *int       `json:"referrerId,omitempty"`
	ReferralCount    int        `json:"referralCount"`
	ReferralEarnings int64      `json:"referralEarnings"` // paise
	TasksPending     int        `json:"tasksPending"`
	TasksCompleted   int        `json:"tasksCompleted"`
	TasksRejected    int        `json:"tasksRejected"`
	CreatedAt        time.Time  `json:"createdAt"`
	LastCheckin      *time.Time `json:"lastCheckin,omitempty"`
}
