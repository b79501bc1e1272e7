package models

import (
	"time"
)

// Ledger entry types.
const (
	EntryCredit = "CREDIT"
	EntryDebit  = "DEBIT"
)

type LedgerEntry struct {
	ID        int       `json:"id" db:"id"`
	EntryID   string    `json:"entry_id" db:"entry_id"`
	UserID    int       `json:"user_id" db:"user_id"`
	Amount    int64     `json:"amount" db:"amount"`         // in paise, always positive
	EntryType string    `json:"entry_type" db:"entry_type"` // DEBIT or CREDIT
	Reason    string    `json:"reason" db:"reason"`
	Balance   int64     `json:"balance" db:"balance"` // account balance after this entry
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Account struct {
	UserID         int       `json:"user_id" db:"user_id"`
	Balance        int64     `json:"balance" db:"balance"`
	TotalEarned    int64     `json:"total_earned" db:"total_earned"`
	TotalWithdrawn int64     `json:"total_withdrawn" db:"total_withdrawn"`
	Version        int       `json:"version" db:"version"` // for optimistic locking
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}
